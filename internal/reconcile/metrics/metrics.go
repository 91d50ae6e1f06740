package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Passes        *prometheus.CounterVec
	RecordsSynced prometheus.Counter
	Conflicts     *prometheus.CounterVec
	RecordErrors  prometheus.Counter
	PassDuration  prometheus.Histogram
}

// New registers the sync collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yoru_sync_passes_total",
			Help: "Total number of sync passes by outcome",
		}, []string{"outcome"}),
		RecordsSynced: f.NewCounter(prometheus.CounterOpts{
			Name: "yoru_sync_records_written_total",
			Help: "Total number of remote records written to the local store",
		}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yoru_sync_conflicts_total",
			Help: "Total number of conflicting record pairs by deciding rule",
		}, []string{"rule"}),
		RecordErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "yoru_sync_record_errors_total",
			Help: "Total number of records that failed to reconcile",
		}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "yoru_sync_pass_duration_seconds",
			Help:    "Duration of sync passes",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObservePass(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Passes.WithLabelValues(outcome).Inc()
	m.PassDuration.Observe(d.Seconds())
}

func (m *Metrics) AddSynced(n int) {
	if m == nil {
		return
	}
	m.RecordsSynced.Add(float64(n))
}

func (m *Metrics) IncrementConflict(rule string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(rule).Inc()
}

func (m *Metrics) AddRecordErrors(n int) {
	if m == nil {
		return
	}
	m.RecordErrors.Add(float64(n))
}
