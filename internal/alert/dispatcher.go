package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"workflow-orchestrator/internal/models"
	"workflow-orchestrator/internal/telemetry"
)

// NoBindPluginInstanceMsg is the exact terminal message for an alert whose
// group has no channel instances bound. Rebinding requires administrator
// action, so the alert is failed rather than retried.
const NoBindPluginInstanceMsg = "no bind plugin instance"

// Store is the persistence slice the dispatcher consumes.
type Store interface {
	ListPendingAlerts(ctx context.Context, limit int) ([]models.Alert, error)
	ListInstancesByAlertGroup(ctx context.Context, alertGroupID int) ([]models.AlertPluginInstance, error)
	GetProcessDefinitionByCode(ctx context.Context, code int64) (models.ProcessDefinition, bool, error)
	GetUser(ctx context.Context, id int) (models.User, bool, error)
	GetProcessInstance(ctx context.Context, id int) (models.ProcessInstance, bool, error)
	InsertAlertSendStatus(ctx context.Context, alertID, instanceID int, status models.AlertStatus, log string) error
	UpdateAlertStatus(ctx context.Context, alertID int, status models.AlertStatus, log string) error
}

// Config tunes the dispatch loop.
type Config struct {
	// PollInterval is the sleep between iterations.
	PollInterval time.Duration
	// WaitTimeout bounds the wait for one channel call. Zero or negative
	// invokes the channel synchronously with no bound.
	WaitTimeout time.Duration
	// BatchSize caps how many pending alerts one iteration drains.
	BatchSize int
}

// Dispatcher is the alert dispatch service: one background loop, alerts
// processed one at a time, channel instances invoked sequentially per alert.
type Dispatcher struct {
	store    Store
	registry *Registry
	cfg      Config
	metrics  telemetry.Sink
	log      *logrus.Logger
}

func NewDispatcher(st Store, registry *Registry, cfg Config, metrics telemetry.Sink, log *logrus.Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Dispatcher{store: st, registry: registry, cfg: cfg, metrics: metrics, log: log}
}

// Run polls for pending alerts until ctx is cancelled. An error in one
// iteration is logged and the loop continues; the loop is the unit of
// resilience. A send in flight at cancellation is not forcibly stopped.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("alert dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info("alert dispatcher stopped")
			return ctx.Err()
		default:
		}

		alerts, err := d.store.ListPendingAlerts(ctx, d.cfg.BatchSize)
		if err != nil {
			d.log.WithError(err).Error("list pending alerts failed")
		} else {
			d.metrics.SetPendingAlerts(len(alerts))
			for _, a := range alerts {
				if err := d.dispatch(ctx, a); err != nil {
					d.log.WithError(err).WithField("alert_id", a.ID).Error("dispatch failed")
				}
			}
		}

		select {
		case <-ctx.Done():
			d.log.Info("alert dispatcher stopped")
			return ctx.Err()
		case <-time.After(d.cfg.PollInterval):
		}
	}
}

// dispatch fans one alert out to its group's instances and finalizes the
// aggregate status exactly once.
func (d *Dispatcher) dispatch(ctx context.Context, a models.Alert) error {
	logger := d.log.WithFields(logrus.Fields{"alert_id": a.ID, "alert_group": a.AlertGroupID})

	instances, err := d.store.ListInstancesByAlertGroup(ctx, a.AlertGroupID)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		logger.Error("send alert failed: " + NoBindPluginInstanceMsg)
		results := []models.AlertResult{{Status: "false", Message: NoBindPluginInstanceMsg}}
		return d.store.UpdateAlertStatus(ctx, a.ID, models.AlertExecutionFailure, marshalResults(results))
	}

	data, err := d.enrich(ctx, a)
	if err != nil {
		return err
	}

	successCount := 0
	results := make([]models.AlertResult, 0, len(instances))
	for _, inst := range instances {
		result := d.invoke(ctx, inst, data)

		sendStatus := models.AlertExecutionFailure
		if result.Succeeded() {
			sendStatus = models.AlertExecutionSuccess
			successCount++
			d.metrics.IncAlertSuccess()
		} else {
			d.metrics.IncAlertFailure()
		}
		if err := d.store.InsertAlertSendStatus(ctx, a.ID, inst.ID, sendStatus, marshalResult(result)); err != nil {
			return err
		}
		results = append(results, result)
	}

	status := models.AlertExecutionSuccess
	if successCount == 0 {
		status = models.AlertExecutionFailure
	} else if successCount < len(instances) {
		status = models.AlertExecutionPartialSuccess
	}
	logger.WithFields(logrus.Fields{"instances": len(instances), "succeeded": successCount, "status": status}).Info("alert dispatched")
	return d.store.UpdateAlertStatus(ctx, a.ID, status, marshalResults(results))
}

// enrich builds the immutable per-alert view. Release states are read at
// dispatch time, not alert-creation time: an alert raised while a workflow
// was online is suppressed if the workflow went offline before dispatch ran.
func (d *Dispatcher) enrich(ctx context.Context, a models.Alert) (models.AlertData, error) {
	data := models.AlertData{
		ID:        a.ID,
		Title:     a.Title,
		Content:   a.Content,
		Log:       a.Log,
		WarnType:  a.WarningType,
		AlertType: a.AlertType,
	}

	if a.ProcessDefinitionCode != 0 {
		def, found, err := d.store.GetProcessDefinitionByCode(ctx, a.ProcessDefinitionCode)
		if err != nil {
			return models.AlertData{}, err
		}
		if found {
			data.NeedAlert = def.ReleaseState == models.ReleaseOnline && def.ScheduleReleaseState == models.ReleaseOnline
			data.ProcessDesc = def.Description
			if owner, found, err := d.store.GetUser(ctx, def.UserID); err != nil {
				return models.AlertData{}, err
			} else if found {
				data.Phone = owner.Phone
			}
		}
	}

	switch a.AlertType {
	case models.AlertProcessInstanceFailure, models.AlertProcessInstanceTimeout, models.AlertTaskFailure:
		events, err := models.ParseAlertContent(a.Content)
		if err != nil || len(events) == 0 {
			// Malformed content still gets delivered; only the executor
			// enrichment is lost.
			d.log.WithField("alert_id", a.ID).Warn("alert content not parseable, executor unknown")
			break
		}
		inst, found, err := d.store.GetProcessInstance(ctx, events[0].ProcessID)
		if err != nil {
			return models.AlertData{}, err
		}
		if found {
			data.User = inst.ExecutorName
		}
	}
	return data, nil
}

// invoke runs one instance: warning-type filter, channel lookup, then the
// bounded-wait call.
func (d *Dispatcher) invoke(ctx context.Context, inst models.AlertPluginInstance, data models.AlertData) models.AlertResult {
	ch, ok := d.registry.Get(inst.PluginDefineID)
	if !ok {
		msg := fmt.Sprintf("alert instance %s send error: no channel registered for plugin define id %d", inst.InstanceName, inst.PluginDefineID)
		d.log.Error(msg)
		return models.AlertResult{Status: "false", Message: msg}
	}

	instanceWarn := models.WarningAll
	if raw, ok := inst.Params[models.WarningParamKey]; ok && raw != "" {
		parsed, err := models.ParseWarningType(raw)
		if err != nil {
			msg := fmt.Sprintf("alert instance %s send error: %v", inst.InstanceName, err)
			d.log.Error(msg)
			return models.AlertResult{Status: "false", Message: msg}
		}
		instanceWarn = parsed
	}
	if !warningMatches(instanceWarn, data.WarnType) {
		// Skipped, not failed: recorded so the mismatch is queryable, but the
		// channel is never called.
		msg := fmt.Sprintf("alert instance %s ignored: instance warning type is %s, alert warning type is %s",
			inst.InstanceName, instanceWarn, data.WarnType)
		d.log.Info(msg)
		return models.AlertResult{Status: "false", Message: msg}
	}

	info := models.AlertInfo{Data: data, Params: inst.Params, PluginInstanceID: inst.ID}
	return d.boundedCall(ctx, ch, info)
}

// boundedCall invokes the channel, waiting at most WaitTimeout. On expiry the
// wait is abandoned without cancelling the call: the channel may still
// complete and deliver, which is simply not observed. A non-positive timeout
// invokes synchronously.
func (d *Dispatcher) boundedCall(ctx context.Context, ch Channel, info models.AlertInfo) models.AlertResult {
	call := ch.Process
	if info.Data.AlertType == models.AlertClose {
		call = ch.CloseAlert
	}

	if d.cfg.WaitTimeout <= 0 {
		return call(ctx, info)
	}

	resCh := make(chan models.AlertResult, 1)
	go func() {
		resCh <- call(ctx, info)
	}()
	select {
	case res := <-resCh:
		return res
	case <-time.After(d.cfg.WaitTimeout):
		msg := fmt.Sprintf("waiting for alert instance %d response timed out after %s", info.PluginInstanceID, d.cfg.WaitTimeout)
		d.log.Warn(msg)
		return models.AlertResult{Status: "false", Message: msg}
	}
}

// SendToGroup is the synchronous ad hoc entry point: immediate fan-out to one
// group without a persisted alert row. It reuses the per-instance filter and
// bounded-wait logic and returns the aggregate boolean success.
func (d *Dispatcher) SendToGroup(ctx context.Context, alertGroupID int, title, content string, warnType models.WarningType) (bool, []models.AlertResult, error) {
	instances, err := d.store.ListInstancesByAlertGroup(ctx, alertGroupID)
	if err != nil {
		return false, nil, err
	}
	if len(instances) == 0 {
		msg := fmt.Sprintf("alert group %d send error: not found alert instance", alertGroupID)
		d.log.Error(msg)
		return false, []models.AlertResult{{Status: "false", Message: msg}}, nil
	}

	data := models.AlertData{Title: title, Content: content, WarnType: warnType}
	success := true
	results := make([]models.AlertResult, 0, len(instances))
	for _, inst := range instances {
		result := d.invoke(ctx, inst, data)
		success = success && result.Succeeded()
		results = append(results, result)
	}
	return success, results, nil
}

func marshalResult(r models.AlertResult) string {
	b, _ := json.Marshal(r)
	return string(b)
}

func marshalResults(rs []models.AlertResult) string {
	b, _ := json.Marshal(rs)
	return string(b)
}

func warningMatches(instance models.WarningType, alert models.WarningType) bool {
	switch instance {
	case models.WarningAll:
		return true
	case models.WarningSuccess:
		return alert == models.WarningSuccess
	case models.WarningFailure:
		return alert == models.WarningFailure
	default:
		return false
	}
}
