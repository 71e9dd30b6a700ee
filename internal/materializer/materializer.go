// Package materializer turns cron fire events into deduplicated command rows.
//
// The upstream trigger is at-least-once: a tick can re-fire after a process
// restart, and distinct schedules fire concurrently. Exactly-once
// materialization therefore rests on the storage layer's
// (schedule id, schedule time) unique key; the in-memory dedup set loaded per
// invocation is an optimization that avoids most redundant inserts, not the
// guarantee itself.
package materializer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"workflow-orchestrator/internal/models"
	"workflow-orchestrator/internal/telemetry"
	"workflow-orchestrator/internal/trigger"
)

const (
	// LookaheadCount caps how many future fire times one invocation may
	// materialize.
	LookaheadCount = 50
	// LookaheadHorizon stops the loop once a computed fire time falls beyond
	// now + horizon, bounding pre-created work for high-frequency crontabs.
	LookaheadHorizon = 12 * time.Hour
)

// Store is the persistence slice the materializer consumes.
type Store interface {
	GetSchedule(ctx context.Context, id int) (models.Schedule, bool, error)
	GetProcessDefinitionByCode(ctx context.Context, code int64) (models.ProcessDefinition, bool, error)
	ListCommandsInRange(ctx context.Context, definitionCode int64, from, to time.Time) ([]models.Command, error)
	CreateCommand(ctx context.Context, cmd models.Command) (bool, error)
}

// Deregistrar removes a cron job; removal of an absent job must be a no-op.
type Deregistrar interface {
	Deregister(key trigger.JobKey) error
}

// Materializer handles fire events for all schedules. It is safe for
// concurrent fires of distinct schedules; one schedule's fires are serialized
// by the cron engine.
type Materializer struct {
	store    Store
	registry Deregistrar
	metrics  telemetry.Sink
	log      *logrus.Logger
	now      func() time.Time
}

func New(st Store, registry Deregistrar, metrics telemetry.Sink, log *logrus.Logger) *Materializer {
	return &Materializer{
		store:    st,
		registry: registry,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// OnFire is the trigger.Handler for schedule fire events. Persistence errors
// propagate to the caller; deregistration failures are logged and swallowed
// because a stale job firing harmlessly beats crashing the trigger goroutine.
func (m *Materializer) OnFire(ctx context.Context, fire trigger.FireEvent) error {
	logger := m.log.WithFields(logrus.Fields{
		"schedule_id": fire.Key.ScheduleID,
		"scheduled":   fire.ScheduledFireTime,
		"fired":       fire.FireTime,
	})
	logger.Info("schedule fired")

	sched, found, err := m.store.GetSchedule(ctx, fire.Key.ScheduleID)
	if err != nil {
		return err
	}
	if !found || sched.ReleaseState == models.ReleaseOffline {
		// Deleted or taken offline out-of-band; self-heal the trigger registry.
		logger.Warn("schedule missing or offline, removing cron job")
		if err := m.registry.Deregister(fire.Key); err != nil {
			logger.WithError(err).Error("failed to remove cron job")
		}
		return nil
	}

	def, found, err := m.store.GetProcessDefinitionByCode(ctx, sched.ProcessDefinitionCode)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("process definition %d for schedule %d not found", sched.ProcessDefinitionCode, sched.ID)
	}
	if def.ReleaseState == models.ReleaseOffline {
		// The job stays registered: it self-corrects once the schedule is
		// also marked offline, and fires harmlessly until then.
		logger.Warn("process definition offline, no command created")
		return nil
	}

	now := m.now()
	horizon := now.Add(LookaheadHorizon)

	// The dedup set covers every fire time this invocation can produce:
	// nothing before the reported tick, nothing past the horizon plus slack
	// for a tick computed right at the boundary.
	existing, err := m.store.ListCommandsInRange(ctx, sched.ProcessDefinitionCode, fire.ScheduledFireTime, horizon.Add(time.Hour))
	if err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(existing))
	for _, cmd := range existing {
		seen[cmd.ScheduleTime.Unix()] = struct{}{}
	}

	created := 0
	if err := m.materializeOne(ctx, sched, def, fire.ScheduledFireTime, fire.FireTime, seen, &created); err != nil {
		return err
	}

	fireTime := fire.ScheduledFireTime
	for i := 0; i < LookaheadCount; i++ {
		fireTime = fire.Next.NextAfter(fireTime)
		if fireTime.IsZero() || fireTime.After(horizon) {
			break
		}
		if err := m.materializeOne(ctx, sched, def, fireTime, fire.FireTime, seen, &created); err != nil {
			return err
		}
	}

	logger.WithField("created", created).Info("materialization complete")
	return nil
}

// materializeOne creates the command for one fire time unless the dedup set
// already holds it.
func (m *Materializer) materializeOne(ctx context.Context, sched models.Schedule, def models.ProcessDefinition,
	scheduleTime, startTime time.Time, seen map[int64]struct{}, created *int) error {

	key := scheduleTime.Unix()
	if _, ok := seen[key]; ok {
		m.metrics.IncCommandsDeduplicated()
		return nil
	}

	inserted, err := m.store.CreateCommand(ctx, buildCommand(sched, def, scheduleTime, startTime))
	if err != nil {
		return fmt.Errorf("create command for schedule %d at %s: %w", sched.ID, scheduleTime, err)
	}
	seen[key] = struct{}{}
	if inserted {
		*created++
		m.metrics.IncCommandsCreated()
	} else {
		// Lost the storage-level race to a concurrent fire; the unique key
		// did its job.
		m.metrics.IncCommandsDeduplicated()
	}
	return nil
}

func buildCommand(sched models.Schedule, def models.ProcessDefinition, scheduleTime, startTime time.Time) models.Command {
	workerGroup := sched.WorkerGroup
	if workerGroup == "" {
		workerGroup = models.DefaultWorkerGroup
	}
	return models.Command{
		CommandType:              models.CommandScheduler,
		ProcessDefinitionCode:    sched.ProcessDefinitionCode,
		ProcessDefinitionVersion: def.Version,
		ScheduleID:               sched.ID,
		ExecutorID:               sched.UserID,
		ManualRun:                false,
		FailureStrategy:          sched.FailureStrategy,
		ScheduleTime:             scheduleTime,
		StartTime:                startTime,
		WarningGroupID:           sched.WarningGroupID,
		WarningType:              sched.WarningType,
		WorkerGroup:              workerGroup,
		EnvironmentCode:          sched.EnvironmentCode,
		Priority:                 sched.Priority,
	}
}
