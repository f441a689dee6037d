// Package metrics exposes Prometheus instruments for the call pipeline.
//
// Every method is safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// CallsPlaced counts placement requests.
	// Labels: result (queued|rejected|unavailable|error)
	CallsPlaced *prometheus.CounterVec

	// ProviderDispatch counts origination requests sent to the voice provider.
	// Labels: result (accepted|failed)
	ProviderDispatch *prometheus.CounterVec

	// ProviderDispatchDuration measures origination latency in seconds.
	ProviderDispatchDuration prometheus.Histogram

	// WebhookEvents counts inbound provider callbacks.
	// Labels: kind (status|recording|transcription), outcome (applied|ignored|not_found|invalid|error)
	WebhookEvents *prometheus.CounterVec

	// StatusTransitions counts applied call status changes.
	// Labels: from, to
	StatusTransitions *prometheus.CounterVec

	// FlowRenders counts voice-flow responses by state.
	// Labels: state (navigating|delivering|menu_input|error)
	FlowRenders *prometheus.CounterVec

	// Notifications counts downstream status pushes.
	// Labels: result (sent|failed)
	Notifications *prometheus.CounterVec

	// HTTPRequestDuration measures API latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all instruments on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CallsPlaced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callrep_calls_placed_total",
			Help: "Call placement requests by result",
		}, []string{"result"}),

		ProviderDispatch: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callrep_provider_dispatch_total",
			Help: "Origination requests sent to the voice provider by result",
		}, []string{"result"}),

		ProviderDispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "callrep_provider_dispatch_duration_seconds",
			Help:    "Duration of origination requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callrep_webhook_events_total",
			Help: "Provider webhook callbacks by kind and outcome",
		}, []string{"kind", "outcome"}),

		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callrep_status_transitions_total",
			Help: "Applied call status transitions",
		}, []string{"from", "to"}),

		FlowRenders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callrep_voice_flow_renders_total",
			Help: "Voice flow responses by state",
		}, []string{"state"}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callrep_status_notifications_total",
			Help: "Downstream status pushes by result",
		}, []string{"result"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callrep_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path", "status_code"}),
	}
}

func (m *Metrics) CallPlaced(result string) {
	if m == nil {
		return
	}
	m.CallsPlaced.WithLabelValues(result).Inc()
}

func (m *Metrics) Dispatched(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderDispatch.WithLabelValues(result).Inc()
	m.ProviderDispatchDuration.Observe(d.Seconds())
}

func (m *Metrics) Webhook(kind, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) FlowRender(state string) {
	if m == nil {
		return
	}
	m.FlowRenders.WithLabelValues(state).Inc()
}

func (m *Metrics) Notified(result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(result).Inc()
}

// Middleware records request latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
