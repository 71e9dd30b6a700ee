package materializer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"workflow-orchestrator/internal/models"
	"workflow-orchestrator/internal/telemetry"
	"workflow-orchestrator/internal/trigger"
)

type fakeStore struct {
	schedules map[int]models.Schedule
	defs      map[int64]models.ProcessDefinition
	commands  []models.Command
	unique    map[string]bool
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		schedules: map[int]models.Schedule{},
		defs:      map[int64]models.ProcessDefinition{},
		unique:    map[string]bool{},
	}
}

func (f *fakeStore) GetSchedule(_ context.Context, id int) (models.Schedule, bool, error) {
	s, ok := f.schedules[id]
	return s, ok, nil
}

func (f *fakeStore) GetProcessDefinitionByCode(_ context.Context, code int64) (models.ProcessDefinition, bool, error) {
	d, ok := f.defs[code]
	return d, ok, nil
}

func (f *fakeStore) ListCommandsInRange(_ context.Context, code int64, from, to time.Time) ([]models.Command, error) {
	var out []models.Command
	for _, c := range f.commands {
		if c.ProcessDefinitionCode == code && !c.ScheduleTime.Before(from) && !c.ScheduleTime.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateCommand(_ context.Context, cmd models.Command) (bool, error) {
	if f.createErr != nil {
		return false, f.createErr
	}
	key := fmt.Sprintf("%d|%d", cmd.ScheduleID, cmd.ScheduleTime.Unix())
	if f.unique[key] {
		return false, nil
	}
	f.unique[key] = true
	f.commands = append(f.commands, cmd)
	return true, nil
}

type fakeDeregistrar struct {
	calls []trigger.JobKey
}

func (f *fakeDeregistrar) Deregister(key trigger.JobKey) error {
	f.calls = append(f.calls, key)
	return nil
}

// fixedInterval mimics a cron expression firing every interval.
type fixedInterval struct {
	interval time.Duration
}

func (f fixedInterval) NextAfter(t time.Time) time.Time {
	return t.Add(f.interval)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func onlineSchedule() models.Schedule {
	return models.Schedule{
		ID:                    7,
		ProjectCode:           100,
		ProcessDefinitionCode: 4200,
		Crontab:               "*/10 * * * * *",
		ReleaseState:          models.ReleaseOnline,
		WarningGroupID:        3,
		WarningType:           models.WarningFailure,
		FailureStrategy:       models.FailureStrategyContinue,
		Priority:              models.PriorityMedium,
		UserID:                11,
	}
}

func setup(st *fakeStore) (*Materializer, *fakeDeregistrar) {
	sched := onlineSchedule()
	st.schedules[sched.ID] = sched
	st.defs[sched.ProcessDefinitionCode] = models.ProcessDefinition{
		Code:         sched.ProcessDefinitionCode,
		Version:      3,
		ReleaseState: models.ReleaseOnline,
	}
	dereg := &fakeDeregistrar{}
	return New(st, dereg, telemetry.NopSink{}, testLogger()), dereg
}

func fireEvent(scheduled time.Time, next trigger.NextComputer) trigger.FireEvent {
	return trigger.FireEvent{
		Key:               trigger.JobKey{ProjectCode: 100, ScheduleID: 7},
		ScheduledFireTime: scheduled,
		FireTime:          scheduled.Add(120 * time.Millisecond),
		Next:              next,
	}
}

func TestDuplicateFireMaterializesOnce(t *testing.T) {
	st := newFakeStore()
	m, _ := setup(st)
	tick := time.Now().Truncate(time.Second)
	ev := fireEvent(tick, fixedInterval{interval: time.Minute})

	if err := m.OnFire(context.Background(), ev); err != nil {
		t.Fatalf("first fire: %v", err)
	}
	before := len(st.commands)

	// Simulate the trigger re-firing the same tick after a restart.
	if err := m.OnFire(context.Background(), ev); err != nil {
		t.Fatalf("duplicate fire: %v", err)
	}
	if len(st.commands) != before {
		t.Fatalf("duplicate fire created commands: before=%d after=%d", before, len(st.commands))
	}

	count := 0
	for _, c := range st.commands {
		if c.ScheduleID == 7 && c.ScheduleTime.Equal(tick) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one command for the fire tick, got %d", count)
	}
}

func TestLookaheadIterationBound(t *testing.T) {
	st := newFakeStore()
	m, _ := setup(st)
	tick := time.Now().Truncate(time.Second)

	// Sub-minute cadence: the horizon is far away, so the iteration count is
	// the binding limit.
	if err := m.OnFire(context.Background(), fireEvent(tick, fixedInterval{interval: 10 * time.Second})); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if got, want := len(st.commands), 1+LookaheadCount; got != want {
		t.Fatalf("expected %d commands, got %d", want, got)
	}
}

func TestLookaheadHorizonBound(t *testing.T) {
	st := newFakeStore()
	m, _ := setup(st)
	now := time.Now()
	tick := now.Truncate(time.Second)

	// 30m cadence: the 12h horizon binds before 50 iterations do.
	if err := m.OnFire(context.Background(), fireEvent(tick, fixedInterval{interval: 30 * time.Minute})); err != nil {
		t.Fatalf("fire: %v", err)
	}
	horizon := now.Add(LookaheadHorizon)
	for _, c := range st.commands {
		if c.ScheduleTime.After(horizon.Add(time.Minute)) {
			t.Fatalf("command at %s exceeds horizon %s", c.ScheduleTime, horizon)
		}
	}
	if len(st.commands) >= 1+LookaheadCount {
		t.Fatalf("horizon did not stop the loop early: %d commands", len(st.commands))
	}
}

func TestOfflineScheduleShortCircuits(t *testing.T) {
	st := newFakeStore()
	m, dereg := setup(st)
	sched := st.schedules[7]
	sched.ReleaseState = models.ReleaseOffline
	st.schedules[7] = sched

	ev := fireEvent(time.Now(), fixedInterval{interval: time.Minute})
	if err := m.OnFire(context.Background(), ev); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(st.commands) != 0 {
		t.Fatalf("offline schedule created %d commands", len(st.commands))
	}
	if len(dereg.calls) != 1 {
		t.Fatalf("expected exactly one deregistration, got %d", len(dereg.calls))
	}
	if dereg.calls[0] != ev.Key {
		t.Fatalf("deregistered wrong job: %v", dereg.calls[0])
	}
}

func TestMissingScheduleDeregisters(t *testing.T) {
	st := newFakeStore()
	m, dereg := setup(st)
	delete(st.schedules, 7)

	if err := m.OnFire(context.Background(), fireEvent(time.Now(), fixedInterval{interval: time.Minute})); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(st.commands) != 0 || len(dereg.calls) != 1 {
		t.Fatalf("expected no commands and one deregistration, got %d/%d", len(st.commands), len(dereg.calls))
	}
}

func TestOfflineDefinitionKeepsJobRegistered(t *testing.T) {
	st := newFakeStore()
	m, dereg := setup(st)
	def := st.defs[4200]
	def.ReleaseState = models.ReleaseOffline
	st.defs[4200] = def

	if err := m.OnFire(context.Background(), fireEvent(time.Now(), fixedInterval{interval: time.Minute})); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(st.commands) != 0 {
		t.Fatalf("offline definition created %d commands", len(st.commands))
	}
	if len(dereg.calls) != 0 {
		t.Fatalf("definition-offline must not deregister the job")
	}
}

func TestWorkerGroupDefaultsWhenUnset(t *testing.T) {
	st := newFakeStore()
	m, _ := setup(st)

	if err := m.OnFire(context.Background(), fireEvent(time.Now(), fixedInterval{interval: time.Hour})); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(st.commands) == 0 {
		t.Fatalf("no commands created")
	}
	for _, c := range st.commands {
		if c.WorkerGroup != models.DefaultWorkerGroup {
			t.Fatalf("expected default worker group, got %q", c.WorkerGroup)
		}
		if c.ManualRun {
			t.Fatalf("scheduler command flagged as manual run")
		}
		if c.CommandType != models.CommandScheduler {
			t.Fatalf("unexpected command type %s", c.CommandType)
		}
	}
}

func TestPersistenceErrorPropagates(t *testing.T) {
	st := newFakeStore()
	m, _ := setup(st)
	st.createErr = errors.New("connection reset")

	err := m.OnFire(context.Background(), fireEvent(time.Now(), fixedInterval{interval: time.Minute}))
	if err == nil {
		t.Fatalf("expected persistence error to propagate")
	}
}
