package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink is the observability surface injected into the materializer and the
// alert dispatcher, so counters are wired dependencies instead of
// process-wide mutable state.
type Sink interface {
	IncCommandsCreated()
	IncCommandsDeduplicated()
	IncAlertSuccess()
	IncAlertFailure()
	SetPendingAlerts(n int)
}

var (
	once sync.Once

	commandsCreated   = prometheus.NewCounter(prometheus.CounterOpts{Name: "commands_created_total", Help: "Commands materialized from schedule fire events"})
	commandsDedup     = prometheus.NewCounter(prometheus.CounterOpts{Name: "commands_deduplicated_total", Help: "Fire times skipped because a command already existed"})
	alertSuccess      = prometheus.NewCounter(prometheus.CounterOpts{Name: "alert_send_success_total", Help: "Per-instance alert sends that succeeded"})
	alertFailure      = prometheus.NewCounter(prometheus.CounterOpts{Name: "alert_send_failure_total", Help: "Per-instance alert sends that failed or were skipped"})
	pendingAlertGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "alerts_pending", Help: "Alerts awaiting dispatch at the last poll"})
)

func register() {
	once.Do(func() {
		prometheus.MustRegister(
			commandsCreated,
			commandsDedup,
			alertSuccess,
			alertFailure,
			pendingAlertGauge,
		)
	})
}

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	register()
	return promhttp.Handler()
}

// PromSink is the prometheus-backed Sink.
type PromSink struct{}

// NewPromSink registers the collectors and returns the sink.
func NewPromSink() PromSink {
	register()
	return PromSink{}
}

func (PromSink) IncCommandsCreated()      { commandsCreated.Inc() }
func (PromSink) IncCommandsDeduplicated() { commandsDedup.Inc() }
func (PromSink) IncAlertSuccess()         { alertSuccess.Inc() }
func (PromSink) IncAlertFailure()         { alertFailure.Inc() }
func (PromSink) SetPendingAlerts(n int)   { pendingAlertGauge.Set(float64(n)) }

// NopSink discards all observations.
type NopSink struct{}

func (NopSink) IncCommandsCreated()      {}
func (NopSink) IncCommandsDeduplicated() {}
func (NopSink) IncAlertSuccess()         {}
func (NopSink) IncAlertFailure()         {}
func (NopSink) SetPendingAlerts(int)     {}
