// Package trigger owns the cron side of command materialization: a registry
// of jobs keyed by (project, schedule) that fires a handler per cron tick and
// answers "next fire time after X" for the lookahead loop.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"workflow-orchestrator/internal/models"
)

// JobKey identifies one registered cron job.
type JobKey struct {
	ProjectCode int64
	ScheduleID  int
}

func (k JobKey) String() string {
	return fmt.Sprintf("job_%d_%d", k.ProjectCode, k.ScheduleID)
}

// KeyFor derives the job key for a schedule.
func KeyFor(sched models.Schedule) JobKey {
	return JobKey{ProjectCode: sched.ProjectCode, ScheduleID: sched.ID}
}

// NextComputer computes the fire time strictly after t for one job's cron
// expression. The zero time means the expression has no future fire times.
type NextComputer interface {
	NextAfter(t time.Time) time.Time
}

// FireEvent carries one cron tick to the handler. ScheduledFireTime is the
// tick the cron engine computed; FireTime is when it actually ran, which lags
// after restarts or clock stalls.
type FireEvent struct {
	Key               JobKey
	ScheduledFireTime time.Time
	FireTime          time.Time
	Next              NextComputer
}

// Handler is invoked synchronously on the cron engine's goroutine for each
// fire event. Returned errors are logged; the engine itself does not retry.
type Handler func(ctx context.Context, fire FireEvent) error

// Registry registers and removes cron jobs for schedules. Deregistration is
// idempotent: schedules deleted or taken offline out-of-band are cleaned up
// by the handler on their next fire.
type Registry struct {
	mu      sync.Mutex
	parser  cron.Parser
	cron    *cron.Cron
	jobs    map[JobKey]*cronJob
	handler Handler
	log     *logrus.Logger

	ctx     context.Context
	started bool
}

type cronJob struct {
	key   JobKey
	sched cron.Schedule
	entry cron.EntryID

	mu   sync.Mutex
	next time.Time
}

// NextAfter implements NextComputer from the job's parsed cron expression.
func (j *cronJob) NextAfter(t time.Time) time.Time {
	return j.sched.Next(t)
}

// New builds a registry. Expressions are evaluated in loc unless a schedule
// carries its own timezone id.
func New(loc *time.Location, handler Handler, log *logrus.Logger) *Registry {
	return &Registry{
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		cron:    cron.New(cron.WithLocation(loc)),
		jobs:    make(map[JobKey]*cronJob),
		handler: handler,
		log:     log,
	}
}

// Start begins firing registered jobs. ctx is handed to every handler
// invocation and stops being honored only when Stop is called.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.ctx = ctx
	r.started = true
	r.cron.Start()
}

// Stop halts the cron engine and waits for in-flight fires to return.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.started = false
	<-r.cron.Stop().Done()
}

// Register adds (or replaces) the cron job for a schedule.
func (r *Registry) Register(sched models.Schedule) error {
	spec := sched.Crontab
	if sched.TimezoneID != "" {
		spec = "CRON_TZ=" + sched.TimezoneID + " " + sched.Crontab
	}
	parsed, err := r.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse crontab %q for schedule %d: %w", sched.Crontab, sched.ID, err)
	}

	key := KeyFor(sched)
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.jobs[key]; ok {
		r.cron.Remove(old.entry)
		delete(r.jobs, key)
	}

	job := &cronJob{key: key, sched: parsed, next: parsed.Next(time.Now())}
	job.entry = r.cron.Schedule(parsed, cron.FuncJob(func() { r.fire(job) }))
	r.jobs[key] = job
	r.log.WithFields(logrus.Fields{"job": key.String(), "crontab": sched.Crontab}).Info("registered cron job")
	return nil
}

// Deregister removes the job if registered. Removing an absent job is a
// no-op, never an error.
func (r *Registry) Deregister(key JobKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[key]
	if !ok {
		return nil
	}
	r.cron.Remove(job.entry)
	delete(r.jobs, key)
	r.log.WithField("job", key.String()).Info("deregistered cron job")
	return nil
}

// Exists reports whether a job is currently registered.
func (r *Registry) Exists(key JobKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[key]
	return ok
}

func (r *Registry) fire(job *cronJob) {
	now := time.Now()

	job.mu.Lock()
	scheduled := job.next
	if scheduled.IsZero() || scheduled.After(now) {
		// First fire after registration, or the tracked tick drifted past
		// the engine; fall back to the tick that covers now.
		scheduled = job.sched.Next(now.Add(-time.Second))
	}
	job.next = job.sched.Next(scheduled)
	job.mu.Unlock()

	ev := FireEvent{Key: job.key, ScheduledFireTime: scheduled, FireTime: now, Next: job}
	if err := r.handler(r.ctx, ev); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"job":       job.key.String(),
			"scheduled": scheduled,
		}).Error("fire handler failed")
	}
}
