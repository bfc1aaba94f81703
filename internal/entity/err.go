package entity

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrInvalid   = errors.New("invalid entity")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
	ErrInternal  = errors.New("internal error")
)

// Release failures. Everything except ErrStateCorrupt and ErrConcurrentDeployment
// is raised mid-flight and sends the coordinator into rollback.
var (
	// ErrStateCorrupt means the persisted routing or slot records cannot be
	// trusted. It needs manual intervention.
	ErrStateCorrupt = errors.New("state corrupt")

	ErrDeploy       = errors.New("deploy failed")
	ErrUnhealthy    = errors.New("workload unhealthy")
	ErrProbeTimeout = errors.New("health probe timed out")
	ErrRouter       = errors.New("router switch failed")

	// ErrConcurrentDeployment is returned while another release holds the
	// environment lock. Nothing is mutated.
	ErrConcurrentDeployment = errors.New("concurrent deployment in progress")

	// ErrGateRejected means the verification stage reported no-go.
	ErrGateRejected = errors.New("release gate rejected")
)
