package store

import (
	"context"
	"fmt"
	"time"

	"workflow-orchestrator/internal/models"
)

// ListCommandsInRange returns the commands for one process definition whose
// schedule time falls in [from, to]. The materializer uses the result as its
// in-memory dedup set, so the range must cover every fire time the invocation
// can compute.
func (s *Store) ListCommandsInRange(ctx context.Context, definitionCode int64, from, to time.Time) ([]models.Command, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, command_type, process_definition_code, process_definition_version,
		       COALESCE(schedule_id, 0), executor_id, manual_run, failure_strategy,
		       schedule_time, start_time, warning_group_id, warning_type,
		       worker_group, environment_code, priority
		FROM commands
		WHERE process_definition_code = $1 AND schedule_time BETWEEN $2 AND $3
	`, definitionCode, from, to)
	if err != nil {
		return nil, fmt.Errorf("query commands for definition %d: %w", definitionCode, err)
	}
	defer rows.Close()

	var out []models.Command
	for rows.Next() {
		var cmd models.Command
		if err := rows.Scan(
			&cmd.ID, &cmd.CommandType, &cmd.ProcessDefinitionCode, &cmd.ProcessDefinitionVersion,
			&cmd.ScheduleID, &cmd.ExecutorID, &cmd.ManualRun, &cmd.FailureStrategy,
			&cmd.ScheduleTime, &cmd.StartTime, &cmd.WarningGroupID, &cmd.WarningType,
			&cmd.WorkerGroup, &cmd.EnvironmentCode, &cmd.Priority,
		); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

// CreateCommand inserts a command. Scheduler commands are idempotent on
// (schedule_id, schedule_time): a duplicate insert is a no-op and the boolean
// reports whether a row was actually created.
func (s *Store) CreateCommand(ctx context.Context, cmd models.Command) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO commands (
			command_type, process_definition_code, process_definition_version,
			schedule_id, executor_id, manual_run, failure_strategy,
			schedule_time, start_time, warning_group_id, warning_type,
			worker_group, environment_code, priority
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (schedule_id, schedule_time) WHERE schedule_id IS NOT NULL DO NOTHING
	`,
		cmd.CommandType, cmd.ProcessDefinitionCode, cmd.ProcessDefinitionVersion,
		nilIfZero(cmd.ScheduleID), cmd.ExecutorID, cmd.ManualRun, cmd.FailureStrategy,
		cmd.ScheduleTime, cmd.StartTime, cmd.WarningGroupID, cmd.WarningType,
		cmd.WorkerGroup, cmd.EnvironmentCode, cmd.Priority,
	)
	if err != nil {
		return false, fmt.Errorf("insert command: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func nilIfZero(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
