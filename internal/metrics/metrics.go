package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Trigger modes used as label values
const (
	ModeEvent    = "event"
	ModePeriodic = "periodic"
)

// EngineMetrics holds the rule engine counters. A nil *EngineMetrics is
// valid and records nothing.
type EngineMetrics struct {
	registry *prometheus.Registry

	evaluationsTotal  prometheus.Counter
	triggersTotal     *prometheus.CounterVec
	actionsDispatched prometheus.Counter
	actionFailures    prometheus.Counter
	bindingsQueued    *prometheus.CounterVec
	bindingsDeduped   prometheus.Counter
	activeRules       prometheus.Gauge
}

// New creates the engine metrics and registers them on a fresh registry
func New() *EngineMetrics {
	m := &EngineMetrics{
		registry: prometheus.NewRegistry(),
		evaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshgate",
			Subsystem: "rules",
			Name:      "evaluations_total",
			Help:      "Total rule evaluations performed",
		}),
		triggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshgate",
			Subsystem: "rules",
			Name:      "triggers_total",
			Help:      "Total rule triggers by mode",
		}, []string{"mode"}),
		actionsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshgate",
			Subsystem: "rules",
			Name:      "actions_dispatched_total",
			Help:      "Actions handed to the outbound dispatcher",
		}),
		actionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshgate",
			Subsystem: "rules",
			Name:      "action_failures_total",
			Help:      "Actions the outbound dispatcher refused",
		}),
		bindingsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshgate",
			Subsystem: "bindings",
			Name:      "queued_total",
			Help:      "Binding tasks queued by action",
		}, []string{"action"}),
		bindingsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshgate",
			Subsystem: "bindings",
			Name:      "deduplicated_total",
			Help:      "Binding tasks dropped as duplicates",
		}),
		activeRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshgate",
			Subsystem: "rules",
			Name:      "active",
			Help:      "Number of enabled, non-deleted rules",
		}),
	}
	m.registry.MustRegister(
		m.evaluationsTotal,
		m.triggersTotal,
		m.actionsDispatched,
		m.actionFailures,
		m.bindingsQueued,
		m.bindingsDeduped,
		m.activeRules,
	)
	return m
}

// Registry exposes the underlying prometheus registry
func (m *EngineMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus text format
func (m *EngineMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *EngineMetrics) RecordEvaluation() {
	if m == nil {
		return
	}
	m.evaluationsTotal.Inc()
}

func (m *EngineMetrics) RecordTrigger(mode string) {
	if m == nil {
		return
	}
	m.triggersTotal.WithLabelValues(mode).Inc()
}

func (m *EngineMetrics) RecordAction(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.actionFailures.Inc()
		return
	}
	m.actionsDispatched.Inc()
}

// RecordBinding counts a queued binding task, or a duplicate when queued is false
func (m *EngineMetrics) RecordBinding(action string, queued bool) {
	if m == nil {
		return
	}
	if !queued {
		m.bindingsDeduped.Inc()
		return
	}
	m.bindingsQueued.WithLabelValues(action).Inc()
}

func (m *EngineMetrics) SetActiveRules(n int) {
	if m == nil {
		return
	}
	m.activeRules.Set(float64(n))
}
