package entity

import "time"

type DeploymentOutcome string

const (
	OutcomePending    DeploymentOutcome = "pending"
	OutcomeSucceeded  DeploymentOutcome = "succeeded"
	OutcomeFailed     DeploymentOutcome = "failed"
	OutcomeRolledBack DeploymentOutcome = "rolled_back"
)

// ReleaseState is a state of the release coordinator.
type ReleaseState string

const (
	StateIdle            ReleaseState = "idle"
	StateSlotSelected    ReleaseState = "slot_selected"
	StateDeploying       ReleaseState = "deploying"
	StateProbing         ReleaseState = "probing"
	StateCuttingOver     ReleaseState = "cutting_over"
	StateDecommissioning ReleaseState = "decommissioning"
	StateDone            ReleaseState = "done"
	StateRollingBack     ReleaseState = "rolling_back"
)

type Transition struct {
	From   ReleaseState `json:"from"`
	To     ReleaseState `json:"to"`
	At     time.Time    `json:"at"`
	Reason string       `json:"reason,omitempty"`
}

// DeploymentAttempt is the audit record of one coordinator invocation.
type DeploymentAttempt struct {
	ID           ID                `json:"id"`
	Environment  string            `json:"environment"`
	Artifact     ArtifactRef       `json:"artifact"`
	TargetSlot   SlotID            `json:"target_slot,omitempty"`
	PreviousSlot SlotID            `json:"previous_slot,omitempty"`
	State        ReleaseState      `json:"state"`
	Outcome      DeploymentOutcome `json:"outcome"`
	Error        string            `json:"error,omitempty"`
	Degraded     bool              `json:"degraded"`
	Warnings     []string          `json:"warnings,omitempty"`
	Transitions  []Transition      `json:"transitions"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

func NewDeploymentAttempt(env string, artifact ArtifactRef, now time.Time) *DeploymentAttempt {
	return &DeploymentAttempt{
		ID:          GenerateID(),
		Environment: env,
		Artifact:    artifact,
		State:       StateIdle,
		Outcome:     OutcomePending,
		StartedAt:   now,
	}
}

func (d *DeploymentAttempt) Finished() bool { return d.Outcome != OutcomePending }

// Warn marks the attempt degraded: something needs manual cleanup even
// though the outcome stands.
func (d *DeploymentAttempt) Warn(msg string) {
	d.Degraded = true
	d.Warnings = append(d.Warnings, msg)
}
