package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yz4230/bluegreen/internal/entity"
)

func newTestAttemptRepository(t *testing.T) AttemptRepository {
	t.Helper()
	db, err := NewSQLiteDB(InMemory)
	if err != nil {
		t.Fatalf("NewSQLiteDB error: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewAttemptRepository(db)
}

func sampleAttempt(env string, startedAt time.Time) *entity.DeploymentAttempt {
	a := entity.NewDeploymentAttempt(env, entity.ArtifactRef{Repository: "ghcr.io/acme/web", Tag: "v2"}, startedAt)
	a.Transitions = append(a.Transitions, entity.Transition{
		From: entity.StateIdle, To: entity.StateSlotSelected, At: startedAt, Reason: "slot B is inactive",
	})
	a.State = entity.StateSlotSelected
	a.TargetSlot = entity.SlotB
	a.PreviousSlot = entity.SlotA
	return a
}

func TestAttemptRepository(t *testing.T) {
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newTestAttemptRepository(t)
		ctx := context.Background()
		a := sampleAttempt("staging", base)
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := repo.GetByID(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Artifact != a.Artifact || got.TargetSlot != entity.SlotB || got.PreviousSlot != entity.SlotA {
			t.Errorf("got %+v", got)
		}
		if got.Outcome != entity.OutcomePending {
			t.Errorf("Outcome = %q; want pending", got.Outcome)
		}
		if len(got.Transitions) != 1 || got.Transitions[0].To != entity.StateSlotSelected {
			t.Errorf("Transitions = %+v", got.Transitions)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := newTestAttemptRepository(t)
		ctx := context.Background()
		a := sampleAttempt("staging", base)
		if err := repo.Create(ctx, a); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(ctx, a); !errors.Is(err, entity.ErrConflict) {
			t.Fatalf("second Create: got %v, want ErrConflict", err)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := newTestAttemptRepository(t)
		if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, entity.ErrNotFound) {
			t.Fatalf("GetByID: got %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateAppendsTransitions", func(t *testing.T) {
		repo := newTestAttemptRepository(t)
		ctx := context.Background()
		a := sampleAttempt("staging", base)
		if err := repo.Create(ctx, a); err != nil {
			t.Fatal(err)
		}

		a.Transitions = append(a.Transitions,
			entity.Transition{From: entity.StateSlotSelected, To: entity.StateDeploying, At: base.Add(time.Second)},
			entity.Transition{From: entity.StateDeploying, To: entity.StateRollingBack, At: base.Add(2 * time.Second), Reason: "deploy failed"},
			entity.Transition{From: entity.StateRollingBack, To: entity.StateIdle, At: base.Add(3 * time.Second)},
		)
		a.State = entity.StateIdle
		a.Outcome = entity.OutcomeRolledBack
		a.Error = "deploy failed"
		a.Warn("workload x needs manual cleanup")
		finished := base.Add(3 * time.Second)
		a.FinishedAt = &finished
		if err := repo.Update(ctx, a); err != nil {
			t.Fatalf("Update: %v", err)
		}
		// a second update must not duplicate transitions
		if err := repo.Update(ctx, a); err != nil {
			t.Fatalf("second Update: %v", err)
		}

		got, err := repo.GetByID(ctx, a.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Outcome != entity.OutcomeRolledBack || got.State != entity.StateIdle {
			t.Errorf("Outcome/State = %q/%q", got.Outcome, got.State)
		}
		if !got.Degraded || len(got.Warnings) != 1 {
			t.Errorf("Degraded = %v, Warnings = %v", got.Degraded, got.Warnings)
		}
		if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
			t.Errorf("FinishedAt = %v", got.FinishedAt)
		}
		if len(got.Transitions) != 4 {
			t.Fatalf("Transitions = %d; want 4", len(got.Transitions))
		}
		if got.Transitions[2].To != entity.StateRollingBack || got.Transitions[2].Reason != "deploy failed" {
			t.Errorf("Transitions[2] = %+v", got.Transitions[2])
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		repo := newTestAttemptRepository(t)
		a := sampleAttempt("staging", base)
		if err := repo.Update(context.Background(), a); !errors.Is(err, entity.ErrNotFound) {
			t.Fatalf("Update: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListByEnvironment", func(t *testing.T) {
		repo := newTestAttemptRepository(t)
		ctx := context.Background()
		for i := range 3 {
			if err := repo.Create(ctx, sampleAttempt("production", base.Add(time.Duration(i)*time.Minute))); err != nil {
				t.Fatal(err)
			}
		}
		if err := repo.Create(ctx, sampleAttempt("staging", base)); err != nil {
			t.Fatal(err)
		}

		all, err := repo.ListByEnvironment(ctx, "production", 0)
		if err != nil {
			t.Fatalf("ListByEnvironment: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("len = %d; want 3", len(all))
		}
		if !all[0].StartedAt.After(all[1].StartedAt) {
			t.Errorf("attempts not newest first")
		}
		limited, err := repo.ListByEnvironment(ctx, "production", 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 2 {
			t.Fatalf("limited len = %d; want 2", len(limited))
		}
	})
}
