package httpapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "commission"

	OutcomeMethodNotAllowed = "method_not_allowed"
	OutcomeParseFailed      = "parse_failed"
	OutcomeHoneypot         = "honeypot"
	OutcomeInvalid          = "invalid"
	OutcomeNotConfigured    = "not_configured"
	OutcomeSendFailed       = "send_failed"
	OutcomeSent             = "sent"
)

// CommissionMetrics counts submissions by outcome and times provider calls.
type CommissionMetrics struct {
	submissions  *prometheus.CounterVec
	sendDuration prometheus.Histogram
}

// NewCommissionMetrics registers the collectors with registerer.
func NewCommissionMetrics(registerer prometheus.Registerer) (*CommissionMetrics, error) {
	metrics := &CommissionMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "submissions_total",
			Help:      "Commission form submissions by outcome.",
		}, []string{"outcome"}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "send_duration_seconds",
			Help:      "Latency of email provider calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, collector := range []prometheus.Collector{metrics.submissions, metrics.sendDuration} {
		if registerErr := registerer.Register(collector); registerErr != nil {
			return nil, registerErr
		}
	}
	return metrics, nil
}

// SubmissionCounter exposes the per-outcome counter.
func (metrics *CommissionMetrics) SubmissionCounter(outcome string) prometheus.Counter {
	return metrics.submissions.WithLabelValues(outcome)
}

func (metrics *CommissionMetrics) observeOutcome(outcome string) {
	if metrics == nil {
		return
	}
	metrics.submissions.WithLabelValues(outcome).Inc()
}

func (metrics *CommissionMetrics) observeSend(startedAt time.Time) {
	if metrics == nil {
		return
	}
	metrics.sendDuration.Observe(time.Since(startedAt).Seconds())
}
