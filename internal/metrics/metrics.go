package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent
type Metrics struct {
	registry *prometheus.Registry

	// Provider fallback metrics
	ProviderCallsTotal       *prometheus.CounterVec
	ProviderCallDuration     *prometheus.HistogramVec
	FallbackExhaustedTotal   *prometheus.CounterVec
	ProvidersConfiguredTotal *prometheus.GaugeVec

	// Dispatch metrics
	ActionsDispatchedTotal *prometheus.CounterVec
	ActionsSuppressedTotal prometheus.Counter

	// Scheduling metrics
	PostsScheduledTotal *prometheus.CounterVec
	SlotsSkippedTotal   prometheus.Counter
	CycleDuration       prometheus.Histogram

	// Loop metrics
	LoopIterationsTotal prometheus.Counter
	PollItemsTotal      prometheus.Counter

	// Social client metrics
	SocialRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ProviderCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_calls_total",
				Help: "Backend calls by provider, operation and outcome",
			},
			[]string{"manager", "provider", "op", "outcome"},
		),
		ProviderCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_call_duration_seconds",
				Help:    "Duration of backend calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"manager", "provider", "op"},
		),
		FallbackExhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fallback_exhausted_total",
				Help: "Operations where every backend failed or returned nothing",
			},
			[]string{"manager", "op"},
		),
		ProvidersConfiguredTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "providers_configured_total",
				Help: "Live backends per fallback manager",
			},
			[]string{"manager"},
		),

		ActionsDispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actions_dispatched_total",
				Help: "Timeline actions dispatched by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		ActionsSuppressedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "actions_suppressed_total",
				Help: "Actions suppressed by the interaction ledger",
			},
		),

		PostsScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posts_scheduled_total",
				Help: "Posts handed to the posting collaborator by kind",
			},
			[]string{"kind"},
		),
		SlotsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "slots_skipped_total",
				Help: "Scheduling slots skipped because no text was produced",
			},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cycle_duration_seconds",
				Help:    "Duration of scheduling cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		LoopIterationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "loop_iterations_total",
				Help: "Control loop iterations executed",
			},
		),
		PollItemsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "poll_items_total",
				Help: "Timeline items received from polling",
			},
		),

		SocialRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "social_requests_total",
				Help: "Requests to the social backend by call and outcome",
			},
			[]string{"call", "outcome"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ProviderCallsTotal)
	m.registry.MustRegister(m.ProviderCallDuration)
	m.registry.MustRegister(m.FallbackExhaustedTotal)
	m.registry.MustRegister(m.ProvidersConfiguredTotal)

	m.registry.MustRegister(m.ActionsDispatchedTotal)
	m.registry.MustRegister(m.ActionsSuppressedTotal)

	m.registry.MustRegister(m.PostsScheduledTotal)
	m.registry.MustRegister(m.SlotsSkippedTotal)
	m.registry.MustRegister(m.CycleDuration)

	m.registry.MustRegister(m.LoopIterationsTotal)
	m.registry.MustRegister(m.PollItemsTotal)

	m.registry.MustRegister(m.SocialRequestsTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
