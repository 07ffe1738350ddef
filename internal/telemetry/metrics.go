package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты обработки доставки (label "result").
const (
	ResultComplete      = "complete"
	ResultContinue      = "continue"
	ResultDelayed       = "continue_delayed"
	ResultFail          = "fail"
	ResultMalformed     = "malformed"
	ResultUnknownState  = "unknown_state"
	ResultHandlerError  = "handler_error"
	ResultDuplicate     = "duplicate"
	ResultPublishFailed = "publish_failed"
)

// Metrics — Prometheus метрики воркера.
type Metrics struct {
	// Deliveries — обработанные доставки по результату.
	Deliveries *prometheus.CounterVec

	// HandlerDuration — время выполнения Handler'а по состоянию.
	HandlerDuration *prometheus.HistogramVec

	// StaleEnvelopes — конверты старше порога ожидания.
	StaleEnvelopes *prometheus.CounterVec

	// StuckTasks — задачи без движения дольше порога (по журналу).
	StuckTasks *prometheus.GaugeVec

	// TriggerFires — срабатывания периодических триггеров.
	TriggerFires *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// В main передаётся prometheus.DefaultRegisterer, в тестах — новый реестр.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskmachine_deliveries_total",
			Help: "Deliveries handled by the worker loop, by result",
		}, []string{"worker", "result"}),

		HandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskmachine_handler_duration_seconds",
			Help:    "Handler execution time by state",
			Buckets: prometheus.DefBuckets,
		}, []string{"worker", "state"}),

		StaleEnvelopes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskmachine_stale_envelopes_total",
			Help: "Envelopes delivered after exceeding the wait threshold",
		}, []string{"worker", "state"}),

		StuckTasks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskmachine_stuck_tasks",
			Help: "Non-terminal tasks without progress beyond the wait threshold",
		}, []string{"worker"}),

		TriggerFires: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskmachine_trigger_fires_total",
			Help: "Periodic trigger fires, by result",
		}, []string{"trigger", "result"}),
	}
}
