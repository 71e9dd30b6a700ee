package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"workflow-orchestrator/internal/models"
)

const scheduleColumns = `id, project_code, process_definition_code, crontab, timezone_id,
	release_state, worker_group, environment_code, warning_group_id, warning_type,
	failure_strategy, priority, user_id, created_at, updated_at`

// GetSchedule fetches a schedule by id. The boolean reports presence: a
// deleted schedule is an expected condition for the materializer, not an
// error.
func (s *Store) GetSchedule(ctx context.Context, id int) (models.Schedule, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+` FROM schedules WHERE id = $1
	`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Schedule{}, false, nil
	}
	if err != nil {
		return models.Schedule{}, false, fmt.Errorf("query schedule %d: %w", id, err)
	}
	return sched, true, nil
}

// ListOnlineSchedules returns every schedule whose release state is ONLINE,
// used to bootstrap the cron registry on master start.
func (s *Store) ListOnlineSchedules(ctx context.Context) ([]models.Schedule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+scheduleColumns+` FROM schedules WHERE release_state = $1 ORDER BY id
	`, models.ReleaseOnline)
	if err != nil {
		return nil, fmt.Errorf("query online schedules: %w", err)
	}
	defer rows.Close()

	var out []models.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func scanSchedule(row pgx.Row) (models.Schedule, error) {
	var sched models.Schedule
	err := row.Scan(
		&sched.ID, &sched.ProjectCode, &sched.ProcessDefinitionCode, &sched.Crontab,
		&sched.TimezoneID, &sched.ReleaseState, &sched.WorkerGroup, &sched.EnvironmentCode,
		&sched.WarningGroupID, &sched.WarningType, &sched.FailureStrategy, &sched.Priority,
		&sched.UserID, &sched.CreatedAt, &sched.UpdatedAt,
	)
	return sched, err
}

// GetProcessDefinitionByCode fetches a process definition. Presence is
// reported separately so callers can distinguish "deleted out-of-band" from a
// query failure.
func (s *Store) GetProcessDefinitionByCode(ctx context.Context, code int64) (models.ProcessDefinition, bool, error) {
	var def models.ProcessDefinition
	err := s.pool.QueryRow(ctx, `
		SELECT code, name, version, project_code, release_state, schedule_release_state, description, user_id
		FROM process_definitions WHERE code = $1
	`, code).Scan(
		&def.Code, &def.Name, &def.Version, &def.ProjectCode,
		&def.ReleaseState, &def.ScheduleReleaseState, &def.Description, &def.UserID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ProcessDefinition{}, false, nil
	}
	if err != nil {
		return models.ProcessDefinition{}, false, fmt.Errorf("query process definition %d: %w", code, err)
	}
	return def, true, nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id int) (models.User, bool, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, phone, email FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Phone, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("query user %d: %w", id, err)
	}
	return u, true, nil
}

// GetProcessInstance fetches a process instance by its numeric id to recover
// executor identity for failure alerts.
func (s *Store) GetProcessInstance(ctx context.Context, id int) (models.ProcessInstance, bool, error) {
	var inst models.ProcessInstance
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, executor_id, executor_name, host, state
		FROM process_instances WHERE id = $1
	`, id).Scan(&inst.ID, &inst.Name, &inst.ExecutorID, &inst.ExecutorName, &inst.Host, &inst.State)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ProcessInstance{}, false, nil
	}
	if err != nil {
		return models.ProcessInstance{}, false, fmt.Errorf("query process instance %d: %w", id, err)
	}
	return inst, true, nil
}
