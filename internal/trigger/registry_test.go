package trigger

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"workflow-orchestrator/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testSchedule(id int, project int64, crontab string) models.Schedule {
	return models.Schedule{
		ID:           id,
		ProjectCode:  project,
		Crontab:      crontab,
		ReleaseState: models.ReleaseOnline,
	}
}

func TestKeyString(t *testing.T) {
	key := KeyFor(testSchedule(12, 3400, "0 * * * *"))
	if got := key.String(); got != "job_3400_12" {
		t.Fatalf("unexpected key string %q", got)
	}
}

func TestRegisterAndExists(t *testing.T) {
	r := New(time.UTC, func(context.Context, FireEvent) error { return nil }, testLogger())

	sched := testSchedule(1, 100, "0 0 * * *")
	if err := r.Register(sched); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.Exists(KeyFor(sched)) {
		t.Fatalf("expected job registered")
	}

	// Re-registering the same schedule replaces the entry, leaving one job.
	if err := r.Register(sched); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if len(r.jobs) != 1 {
		t.Fatalf("expected exactly one job after replace got %d", len(r.jobs))
	}
}

func TestRegisterRejectsBadCrontab(t *testing.T) {
	r := New(time.UTC, func(context.Context, FireEvent) error { return nil }, testLogger())
	if err := r.Register(testSchedule(1, 100, "not a crontab")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRegisterAcceptsSixFieldSpec(t *testing.T) {
	r := New(time.UTC, func(context.Context, FireEvent) error { return nil }, testLogger())
	if err := r.Register(testSchedule(1, 100, "0 0 12 * * ?")); err != nil {
		t.Fatalf("six-field spec should parse: %v", err)
	}
}

func TestDeregisterIdempotent(t *testing.T) {
	r := New(time.UTC, func(context.Context, FireEvent) error { return nil }, testLogger())

	sched := testSchedule(5, 200, "* * * * *")
	if err := r.Register(sched); err != nil {
		t.Fatalf("register: %v", err)
	}
	key := KeyFor(sched)
	if err := r.Deregister(key); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if r.Exists(key) {
		t.Fatalf("job should be gone")
	}
	if err := r.Deregister(key); err != nil {
		t.Fatalf("deregistering an absent job must be a no-op, got %v", err)
	}
}

func TestNextAfterAdvancesStrictly(t *testing.T) {
	r := New(time.UTC, func(context.Context, FireEvent) error { return nil }, testLogger())

	sched := testSchedule(2, 100, "*/5 * * * *")
	if err := r.Register(sched); err != nil {
		t.Fatalf("register: %v", err)
	}
	job := r.jobs[KeyFor(sched)]

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	first := job.NextAfter(base)
	if !first.After(base) {
		t.Fatalf("NextAfter must be strictly after its input: %v vs %v", first, base)
	}
	if first != base.Add(5*time.Minute) {
		t.Fatalf("expected %v got %v", base.Add(5*time.Minute), first)
	}
	second := job.NextAfter(first)
	if second != first.Add(5*time.Minute) {
		t.Fatalf("expected %v got %v", first.Add(5*time.Minute), second)
	}
}

func TestRegisterHonorsTimezone(t *testing.T) {
	r := New(time.UTC, func(context.Context, FireEvent) error { return nil }, testLogger())

	sched := testSchedule(3, 100, "0 9 * * *")
	sched.TimezoneID = "Asia/Shanghai"
	if err := r.Register(sched); err != nil {
		t.Fatalf("register: %v", err)
	}
	job := r.jobs[KeyFor(sched)]

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	next := job.NextAfter(base)
	// 09:00 in Asia/Shanghai is 01:00 UTC.
	if next.UTC().Hour() != 1 {
		t.Fatalf("expected fire at 01:00 UTC got %v", next.UTC())
	}
}
