package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveConversations prometheus.Gauge
	ConversationEvents  *prometheus.CounterVec
	ChatRequests        *prometheus.CounterVec
	CompletionErrors    *prometheus.CounterVec
	CompletionLatency   prometheus.Histogram
	PromptTokens        prometheus.Histogram
	WSMessages          *prometheus.CounterVec

	latency *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConversations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Number of conversations currently held in memory.",
		}),
		ConversationEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_events_total",
			Help:      "Conversation lifecycle events by type.",
		}, []string{"event"}),
		ChatRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by transport and outcome.",
		}, []string{"transport", "outcome"}),
		CompletionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_errors_total",
			Help:      "Completion gateway errors by kind.",
		}, []string{"kind"}),
		CompletionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Completion round trip latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		PromptTokens: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prompt_tokens",
			Help:      "Estimated prompt tokens sent per completion.",
			Buckets:   prometheus.ExponentialBuckets(32, 2, 8),
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		latency: newLatencyWindow(256),
	}
}

// ObserveCompletion records one completion round trip.
func (m *Metrics) ObserveCompletion(d time.Duration, kind string) {
	ms := float64(d.Milliseconds())
	m.CompletionLatency.Observe(ms)
	m.latency.Observe("completion", ms)
	if kind != "" {
		m.CompletionErrors.WithLabelValues(kind).Inc()
	}
}

// ObserveRequest records end-to-end handling time of a chat request.
func (m *Metrics) ObserveRequest(transport, outcome string, d time.Duration) {
	m.ChatRequests.WithLabelValues(transport, outcome).Inc()
	m.latency.Observe("request_"+transport, float64(d.Milliseconds()))
}

func (m *Metrics) SnapshotLatency() LatencySnapshot {
	return m.latency.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
