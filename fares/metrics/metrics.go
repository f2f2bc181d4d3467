// Package metrics exposes the bot's Prometheus collectors and implements the
// recorder interfaces of the domain packages.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/farebot/fares/tracker"
)

const namespace = "farebot"

// Metrics holds all collectors, registered on its own registry.
type Metrics struct {
	reg *prometheus.Registry

	SourceAttempts *prometheus.CounterVec
	SourceServing  *prometheus.GaugeVec

	SearchCalls    *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec
	BreakerOpen    prometheus.Gauge

	ReconcileTickets  *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
	PriceChanges      *prometheus.CounterVec
	TrackedTickets    prometheus.Gauge

	RegistrationSteps *prometheus.CounterVec
	SendActions       *prometheus.CounterVec
}

// New creates the collectors on a fresh registry with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		SourceAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refdata_source_attempts_total",
			Help:      "Reference data fetch attempts per source and result.",
		}, []string{"source", "result"}),
		SourceServing: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refdata_source_serving",
			Help:      "1 for the source that served the last successful fetch.",
		}, []string{"source"}),
		SearchCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_calls_total",
			Help:      "Flight search provider calls per operation and outcome.",
		}, []string{"op", "outcome"}),
		SearchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_call_duration_seconds",
			Help:      "Flight search provider call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "search_breaker_open",
			Help:      "1 while the search circuit breaker is not closed.",
		}),
		ReconcileTickets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_tickets_total",
			Help:      "Tickets processed by reconcile passes per result.",
		}, []string{"result"}),
		ReconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of a full reconcile pass.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		PriceChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_changes_total",
			Help:      "Detected price changes per direction.",
		}, []string{"direction"}),
		TrackedTickets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_tickets",
			Help:      "Number of tracked tickets.",
		}),
		RegistrationSteps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_steps_total",
			Help:      "Registration flow steps per outcome.",
		}, []string{"outcome"}),
		SendActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_send_total",
			Help:      "Outbound Telegram actions per action and result.",
		}, []string{"action", "result"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func result(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

func (m *Metrics) SourceAttempt(label string, err error) {
	m.SourceAttempts.WithLabelValues(label, result(err)).Inc()
}

func (m *Metrics) SourceServing(label string) {
	m.SourceServing.Reset()
	m.SourceServing.WithLabelValues(label).Set(1)
}

func (m *Metrics) ObserveCall(op, outcome string, took time.Duration) {
	m.SearchCalls.WithLabelValues(op, outcome).Inc()
	m.SearchDuration.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) BreakerState(state string) {
	if state == "closed" {
		m.BreakerOpen.Set(0)
		return
	}
	m.BreakerOpen.Set(1)
}

func (m *Metrics) ReconcileDone(s tracker.Summary, took time.Duration) {
	for name, n := range map[string]int{
		"changed":   s.Changed,
		"unchanged": s.Unchanged,
		"empty":     s.Empty,
		"failed":    s.Failed,
		"skipped":   s.Skipped,
	} {
		m.ReconcileTickets.WithLabelValues(name).Add(float64(n))
	}
	m.ReconcileDuration.Observe(took.Seconds())
}

func (m *Metrics) PriceChanged(dir tracker.Direction) {
	m.PriceChanges.WithLabelValues(string(dir)).Inc()
}

func (m *Metrics) Tracked(n int) { m.TrackedTickets.Set(float64(n)) }

func (m *Metrics) RegistrationStep(outcome string) {
	m.RegistrationSteps.WithLabelValues(outcome).Inc()
}

// Dispatch matches sender.Options.Observer.
func (m *Metrics) Dispatch(action string, err error) {
	m.SendActions.WithLabelValues(action, result(err)).Inc()
}
