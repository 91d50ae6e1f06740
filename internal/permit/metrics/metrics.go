package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PermitsIssued        *prometheus.CounterVec
	IssueFailures        *prometheus.CounterVec
	VerificationFailures prometheus.Counter
	Refreshes            prometheus.Counter
	AdmissionDenials     *prometheus.CounterVec
}

// New registers the permit collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		PermitsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yoru_permits_issued_total",
			Help: "Total number of quota permits issued",
		}, []string{"tier"}),
		IssueFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yoru_permit_issue_failures_total",
			Help: "Total number of rejected permit issuance requests",
		}, []string{"reason"}),
		VerificationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "yoru_permit_verification_failures_total",
			Help: "Total number of permits that failed signature or structure checks",
		}),
		Refreshes: f.NewCounter(prometheus.CounterOpts{
			Name: "yoru_permit_refreshes_total",
			Help: "Total number of permit refreshes performed by the client cache",
		}),
		AdmissionDenials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yoru_permit_admission_denials_total",
			Help: "Total number of admission denials by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncrementIssued(tier string) {
	if m == nil {
		return
	}
	m.PermitsIssued.WithLabelValues(tier).Inc()
}

func (m *Metrics) IncrementIssueFailure(reason string) {
	if m == nil {
		return
	}
	m.IssueFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementVerificationFailure() {
	if m == nil {
		return
	}
	m.VerificationFailures.Inc()
}

func (m *Metrics) IncrementRefresh() {
	if m == nil {
		return
	}
	m.Refreshes.Inc()
}

func (m *Metrics) IncrementDenial(reason string) {
	if m == nil {
		return
	}
	m.AdmissionDenials.WithLabelValues(reason).Inc()
}
