package repository

import (
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/yz4230/bluegreen/internal/entity"
)

type Attempt struct {
	ID           string `gorm:"primaryKey"`
	Environment  string `gorm:"index"`
	Repository   string
	Tag          string
	Digest       string
	TargetSlot   string
	PreviousSlot string
	State        string
	Outcome      string `gorm:"index"`
	Error        string
	Degraded     bool
	Warnings     []string `gorm:"serializer:json"`
	StartedAt    time.Time `gorm:"index"`
	FinishedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a *Attempt) ToEntity(transitions []Transition) *entity.DeploymentAttempt {
	ts := make([]entity.Transition, len(transitions))
	for i, t := range transitions {
		ts[i] = t.ToEntity()
	}
	return &entity.DeploymentAttempt{
		ID:          entity.NewID(a.ID),
		Environment: a.Environment,
		Artifact: entity.ArtifactRef{
			Repository: a.Repository,
			Tag:        a.Tag,
			Digest:     digest.Digest(a.Digest),
		},
		TargetSlot:   entity.SlotID(a.TargetSlot),
		PreviousSlot: entity.SlotID(a.PreviousSlot),
		State:        entity.ReleaseState(a.State),
		Outcome:      entity.DeploymentOutcome(a.Outcome),
		Error:        a.Error,
		Degraded:     a.Degraded,
		Warnings:     a.Warnings,
		Transitions:  ts,
		StartedAt:    a.StartedAt,
		FinishedAt:   a.FinishedAt,
	}
}

func (a *Attempt) FromEntity(e *entity.DeploymentAttempt) {
	a.ID = e.ID.String()
	a.Environment = e.Environment
	a.Repository = e.Artifact.Repository
	a.Tag = e.Artifact.Tag
	a.Digest = e.Artifact.Digest.String()
	a.TargetSlot = e.TargetSlot.String()
	a.PreviousSlot = e.PreviousSlot.String()
	a.State = string(e.State)
	a.Outcome = string(e.Outcome)
	a.Error = e.Error
	a.Degraded = e.Degraded
	a.Warnings = e.Warnings
	a.StartedAt = e.StartedAt
	a.FinishedAt = e.FinishedAt
}

type Transition struct {
	ID        uint   `gorm:"primaryKey"`
	AttemptID string `gorm:"index"`
	Seq       int
	From      string
	To        string
	At        time.Time
	Reason    string
}

func (t *Transition) ToEntity() entity.Transition {
	return entity.Transition{
		From:   entity.ReleaseState(t.From),
		To:     entity.ReleaseState(t.To),
		At:     t.At,
		Reason: t.Reason,
	}
}

func (t *Transition) FromEntity(attemptID entity.ID, seq int, e entity.Transition) {
	t.AttemptID = attemptID.String()
	t.Seq = seq
	t.From = string(e.From)
	t.To = string(e.To)
	t.At = e.At
	t.Reason = e.Reason
}
