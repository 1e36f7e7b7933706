package metrics

import "github.com/prometheus/client_golang/prometheus"

// EscalationMetrics exposes counters/histograms for the crisis dispatch flows.
type EscalationMetrics struct {
	escalationsTotal *prometheus.CounterVec
	rejectionsTotal  prometheus.Counter
	cascadeDepth     prometheus.Histogram
	activeRooms      prometheus.Gauge
	signalsTotal     *prometheus.CounterVec
}

func NewEscalationMetrics(reg prometheus.Registerer) *EscalationMetrics {
	m := &EscalationMetrics{
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindline",
			Subsystem: "escalation",
			Name:      "requests_total",
			Help:      "Total escalation requests by outcome",
		}, []string{"outcome"}),
		rejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mindline",
			Subsystem: "escalation",
			Name:      "rejections_total",
			Help:      "Total doctor rejections",
		}),
		cascadeDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mindline",
			Subsystem: "escalation",
			Name:      "cascade_depth",
			Help:      "Number of doctors tried before a request resolved",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mindline",
			Subsystem: "session",
			Name:      "active_rooms",
			Help:      "Rooms currently active",
		}),
		signalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindline",
			Subsystem: "session",
			Name:      "signals_relayed_total",
			Help:      "WebRTC signaling messages relayed by kind",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.escalationsTotal, m.rejectionsTotal, m.cascadeDepth, m.activeRooms, m.signalsTotal)
	return m
}

func (m *EscalationMetrics) ObserveEscalation(outcome string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(outcome).Inc()
}

func (m *EscalationMetrics) ObserveRejection() {
	if m == nil {
		return
	}
	m.rejectionsTotal.Inc()
}

func (m *EscalationMetrics) ObserveCascadeDepth(depth int) {
	if m == nil {
		return
	}
	m.cascadeDepth.Observe(float64(depth))
}

func (m *EscalationMetrics) RoomOpened() {
	if m == nil {
		return
	}
	m.activeRooms.Inc()
}

func (m *EscalationMetrics) RoomClosed() {
	if m == nil {
		return
	}
	m.activeRooms.Dec()
}

func (m *EscalationMetrics) ObserveSignal(kind string) {
	if m == nil {
		return
	}
	m.signalsTotal.WithLabelValues(kind).Inc()
}
