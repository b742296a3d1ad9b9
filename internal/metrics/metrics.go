package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the session engine's Prometheus collectors. A nil Recorder is a no-op.
type Recorder struct {
	SessionsStarted     prometheus.Counter
	ActiveSessions      prometheus.Gauge
	AttemptsSubmitted   *prometheus.CounterVec
	AutoSubmits         prometheus.Counter
	SubmissionFailures  *prometheus.CounterVec
	EligibilityDecision *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "sessions_started_total",
			Help:      "Quiz sessions that entered the in-progress state.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quiz",
			Name:      "sessions_active",
			Help:      "Sessions currently holding a session slot.",
		}),
		AttemptsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "attempts_submitted_total",
			Help:      "Attempts recorded in the ledger by outcome and trigger.",
		}, []string{"outcome", "trigger"}),
		AutoSubmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "auto_submits_total",
			Help:      "Timer expiries that won the submit race.",
		}),
		SubmissionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "submission_failures_total",
			Help:      "Ledger writes that failed after all retries.",
		}, []string{"trigger"}),
		EligibilityDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "eligibility_decisions_total",
			Help:      "Eligibility evaluations by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		r.SessionsStarted,
		r.ActiveSessions,
		r.AttemptsSubmitted,
		r.AutoSubmits,
		r.SubmissionFailures,
		r.EligibilityDecision,
	)
	return r
}

func (r *Recorder) SessionStarted() {
	if r == nil {
		return
	}
	r.SessionsStarted.Inc()
	r.ActiveSessions.Inc()
}

func (r *Recorder) SessionClosed() {
	if r == nil {
		return
	}
	r.ActiveSessions.Dec()
}

func (r *Recorder) AttemptRecorded(passed bool, trigger string) {
	if r == nil {
		return
	}
	outcome := "fail"
	if passed {
		outcome = "pass"
	}
	r.AttemptsSubmitted.WithLabelValues(outcome, trigger).Inc()
}

func (r *Recorder) AutoSubmitted() {
	if r == nil {
		return
	}
	r.AutoSubmits.Inc()
}

func (r *Recorder) SubmissionFailed(trigger string) {
	if r == nil {
		return
	}
	r.SubmissionFailures.WithLabelValues(trigger).Inc()
}

func (r *Recorder) Eligibility(status string) {
	if r == nil {
		return
	}
	r.EligibilityDecision.WithLabelValues(status).Inc()
}
