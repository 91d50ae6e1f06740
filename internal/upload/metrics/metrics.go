package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	UploadsCompleted prometheus.Counter
	UploadFailures   *prometheus.CounterVec
	UploadRetries    prometheus.Counter
	UploadDuration   prometheus.Histogram
	QueueDepth       *prometheus.GaugeVec
	QueuePaused      *prometheus.GaugeVec
}

// New registers the upload collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		UploadsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "yoru_uploads_completed_total",
			Help: "Total number of artifacts uploaded",
		}),
		UploadFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yoru_upload_failures_total",
			Help: "Total number of failed upload attempts by error kind",
		}, []string{"kind"}),
		UploadRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "yoru_upload_retries_scheduled_total",
			Help: "Total number of upload retries scheduled with backoff",
		}),
		UploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "yoru_upload_duration_seconds",
			Help:    "Duration of upload attempts",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yoru_upload_queue_tasks",
			Help: "Number of tasks in the upload queue by status",
		}, []string{"status"}),
		QueuePaused: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yoru_upload_queue_paused",
			Help: "1 while the queue is paused for the given reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncrementCompleted() {
	if m == nil {
		return
	}
	m.UploadsCompleted.Inc()
}

func (m *Metrics) IncrementFailure(kind string) {
	if m == nil {
		return
	}
	m.UploadFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementRetry() {
	if m == nil {
		return
	}
	m.UploadRetries.Inc()
}

func (m *Metrics) ObserveUpload(d time.Duration) {
	if m == nil {
		return
	}
	m.UploadDuration.Observe(d.Seconds())
}

// SetDepth replaces the per-status gauge values.
func (m *Metrics) SetDepth(counts map[string]int) {
	if m == nil {
		return
	}
	m.QueueDepth.Reset()
	for status, n := range counts {
		m.QueueDepth.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) SetPaused(reason string, paused bool) {
	if m == nil {
		return
	}
	v := 0.0
	if paused {
		v = 1
	}
	m.QueuePaused.WithLabelValues(reason).Set(v)
}
