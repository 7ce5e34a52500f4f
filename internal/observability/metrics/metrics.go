package metrics

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics exposes counters/histograms for sheet sync runs.
type SyncMetrics struct {
	runsTotal      *prometheus.CounterVec
	recordsTotal   *prometheus.CounterVec
	cellErrors     *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	writeBackTotal *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "sheet_sync",
			Name:      "runs_total",
			Help:      "Total sync attempts by kind and result",
		}, []string{"kind", "result"}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "sheet_sync",
			Name:      "records_total",
			Help:      "Records reconciled by kind and outcome",
		}, []string{"kind", "outcome"}),
		cellErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "sheet_sync",
			Name:      "cell_errors_total",
			Help:      "Cells no decode rule could interpret",
		}, []string{"kind"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "sheet_sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of one (source, tab) sync",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		writeBackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "sheet_sync",
			Name:      "write_back_total",
			Help:      "Overridden rows pushed back to the sheet",
		}, []string{"kind", "applied"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "sheet_sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync per kind",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.recordsTotal, m.cellErrors, m.runDuration, m.writeBackTotal, m.lastSuccess)
	return m
}

// ObserveRun records one finished attempt. result is "succeeded", "unchanged" or "failed".
func (m *SyncMetrics) ObserveRun(kind, result string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(kind, result).Inc()
	m.runDuration.WithLabelValues(kind).Observe(seconds)
}

func (m *SyncMetrics) ObserveRecords(kind, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsTotal.WithLabelValues(kind, outcome).Add(float64(n))
}

func (m *SyncMetrics) ObserveCellErrors(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cellErrors.WithLabelValues(kind).Add(float64(n))
}

func (m *SyncMetrics) ObserveWriteBack(kind string, applied bool) {
	if m == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	m.writeBackTotal.WithLabelValues(kind, label).Inc()
}

func (m *SyncMetrics) SetLastSuccess(kind string, unix float64) {
	if m == nil {
		return
	}
	m.lastSuccess.WithLabelValues(kind).Set(unix)
}
