package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/yz4230/bluegreen/internal/entity"
)

const (
	LabelEnv     = "env"
	LabelOutcome = "outcome"
	LabelState   = "state"
	LabelSlot    = "slot"
)

// Recorder observes release progress. The zero value is not usable; use
// NewRecorder.
type Recorder struct {
	attempts      *prometheus.CounterVec
	stateDuration *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	activeSlot    *prometheus.GaugeVec
	degraded      *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bluegreen",
			Subsystem: "release",
			Name:      "attempts_total",
			Help:      "Finished release attempts by outcome.",
		}, []string{LabelEnv, LabelOutcome}),
		stateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bluegreen",
			Subsystem: "release",
			Name:      "state_duration_seconds",
			Help:      "Time spent in each release state, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 3, 8), // top bucket ~= 2 minutes
		}, []string{LabelEnv, LabelState}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bluegreen",
			Subsystem: "release",
			Name:      "transitions_total",
			Help:      "State machine transitions by target state.",
		}, []string{LabelEnv, LabelState}),
		activeSlot: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bluegreen",
			Subsystem: "routing",
			Name:      "active_slot",
			Help:      "1 for the slot currently receiving traffic, 0 otherwise.",
		}, []string{LabelEnv, LabelSlot}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bluegreen",
			Subsystem: "release",
			Name:      "degraded_total",
			Help:      "Attempts that left something for manual cleanup.",
		}, []string{LabelEnv}),
	}
	reg.MustRegister(r.attempts, r.stateDuration, r.transitions, r.activeSlot, r.degraded)
	return r
}

// Transition records leaving a state after spent.
func (r *Recorder) Transition(env string, from, to entity.ReleaseState, spent time.Duration) {
	r.stateDuration.WithLabelValues(env, string(from)).Observe(spent.Seconds())
	r.transitions.WithLabelValues(env, string(to)).Inc()
}

func (r *Recorder) Finished(attempt *entity.DeploymentAttempt) {
	r.attempts.WithLabelValues(attempt.Environment, string(attempt.Outcome)).Inc()
	if attempt.Degraded {
		r.degraded.WithLabelValues(attempt.Environment).Inc()
	}
}

func (r *Recorder) ActiveSlot(env string, active entity.SlotID) {
	for _, id := range entity.SlotIDs {
		v := 0.0
		if id == active {
			v = 1
		}
		r.activeSlot.WithLabelValues(env, id.String()).Set(v)
	}
}
