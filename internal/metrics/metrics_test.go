package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/yz4230/bluegreen/internal/entity"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Transition("prod", entity.StateIdle, entity.StateSlotSelected, 10*time.Millisecond)
	r.Transition("prod", entity.StateSlotSelected, entity.StateDeploying, time.Second)

	attempt := &entity.DeploymentAttempt{Environment: "prod", Outcome: entity.OutcomeSucceeded}
	attempt.Warn("old workload still running")
	r.Finished(attempt)
	r.ActiveSlot("prod", entity.SlotB)

	if got := testutil.ToFloat64(r.attempts.WithLabelValues("prod", "succeeded")); got != 1 {
		t.Errorf("attempts = %v; want 1", got)
	}
	if got := testutil.ToFloat64(r.degraded.WithLabelValues("prod")); got != 1 {
		t.Errorf("degraded = %v; want 1", got)
	}
	if got := testutil.ToFloat64(r.transitions.WithLabelValues("prod", "deploying")); got != 1 {
		t.Errorf("transitions = %v; want 1", got)
	}
	if got := testutil.ToFloat64(r.activeSlot.WithLabelValues("prod", "B")); got != 1 {
		t.Errorf("active B = %v; want 1", got)
	}
	if got := testutil.ToFloat64(r.activeSlot.WithLabelValues("prod", "A")); got != 0 {
		t.Errorf("active A = %v; want 0", got)
	}
	if n := testutil.CollectAndCount(r.stateDuration); n != 2 {
		t.Errorf("state duration series = %d; want 2", n)
	}
}
