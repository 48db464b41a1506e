package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for calendar reads and writes.
type SchedulingMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	snapshotCache     *prometheus.CounterVec
	cancellationTotal *prometheus.CounterVec
	conflictsTotal    *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctorcal",
			Subsystem: "scheduling",
			Name:      "operations_total",
			Help:      "Total scheduling operations by outcome",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "doctorcal",
			Subsystem: "scheduling",
			Name:      "operation_duration_seconds",
			Help:      "Latency of scheduling operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		snapshotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctorcal",
			Subsystem: "scheduling",
			Name:      "snapshot_cache_total",
			Help:      "Calendar snapshot cache lookups",
		}, []string{"result"}),
		cancellationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctorcal",
			Subsystem: "scheduling",
			Name:      "appointments_cancelled_total",
			Help:      "Appointments cancelled, by cause",
		}, []string{"cause"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctorcal",
			Subsystem: "scheduling",
			Name:      "conflicts_total",
			Help:      "Rejected writes by conflict kind",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.operationLatency, m.snapshotCache, m.cancellationTotal, m.conflictsTotal)
	return m
}

// ObserveOperation records one call. outcome is "ok" or an error class such as "invalid" or "conflict".
func (m *SchedulingMetrics) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	label := "miss"
	if hit {
		label = "hit"
	}
	m.snapshotCache.WithLabelValues(label).Inc()
}

func (m *SchedulingMetrics) ObserveCancellations(cause string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cancellationTotal.WithLabelValues(cause).Add(float64(n))
}

func (m *SchedulingMetrics) ObserveConflict(kind string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(kind).Inc()
}
