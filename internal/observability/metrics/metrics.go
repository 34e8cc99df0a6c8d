package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for chat turns.
type ChatMetrics struct {
	turnsTotal     *prometheus.CounterVec
	remoteLatency  *prometheus.HistogramVec
	segmentsTotal  *prometheus.CounterVec
	activeSessions prometheus.Gauge
	rejectedTotal  *prometheus.CounterVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kbchat",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Completed chat turns by outcome",
		}, []string{"outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kbchat",
			Subsystem: "conversation",
			Name:      "retrieve_and_generate_latency_seconds",
			Help:      "Latency of knowledge base RetrieveAndGenerate calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30},
		}, []string{"status"}),
		segmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kbchat",
			Subsystem: "render",
			Name:      "segments_total",
			Help:      "Rendered answer segments by kind",
		}, []string{"kind"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kbchat",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Chat sessions currently held in memory",
		}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kbchat",
			Subsystem: "conversation",
			Name:      "rejected_messages_total",
			Help:      "Submitted messages rejected before the remote call",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.remoteLatency, m.segmentsTotal, m.activeSessions, m.rejectedTotal)
	return m
}

func (m *ChatMetrics) ObserveTurn(failed bool) {
	if m == nil {
		return
	}
	outcome := "answered"
	if failed {
		outcome = "fallback"
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *ChatMetrics) ObserveRemoteLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.remoteLatency.WithLabelValues(status).Observe(seconds)
}

func (m *ChatMetrics) ObserveSegment(kind string) {
	if m == nil {
		return
	}
	m.segmentsTotal.WithLabelValues(kind).Inc()
}

func (m *ChatMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *ChatMetrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(reason).Inc()
}
