// Package coordinator drives one release of one environment through the
// blue-green state machine:
//
//	Idle -> SlotSelected -> Deploying -> Probing -> CuttingOver -> Decommissioning -> Done
//
// Deploying, Probing and CuttingOver fall back to RollingBack -> Idle on
// failure. Routing state is only ever written on a successful cutover.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/yz4230/bluegreen/internal/entity"
	"github.com/yz4230/bluegreen/internal/metrics"
	"github.com/yz4230/bluegreen/internal/repository"
	"github.com/yz4230/bluegreen/internal/storage"
)

type Deployer interface {
	Deploy(ctx context.Context, slot entity.Slot, artifact entity.ArtifactRef) (entity.Slot, error)
	Stop(ctx context.Context, slot entity.Slot) error
}

type Prober interface {
	Probe(ctx context.Context, slot entity.Slot, timeout, interval time.Duration) (entity.SlotStatus, error)
}

type Router interface {
	SwitchTo(ctx context.Context, id entity.SlotID) error
	// Active reports the slot the proxy is configured to send traffic to.
	Active(ctx context.Context) (entity.SlotID, bool, error)
}

// Components are the collaborators of a coordinator. Metrics may be nil.
type Components struct {
	Registry storage.SlotRegistry
	Deployer Deployer
	Prober   Prober
	Router   Router
	History  repository.AttemptRepository
	Metrics  *metrics.Recorder
}

type Options struct {
	Env           string
	ProbeTimeout  time.Duration
	ProbeInterval time.Duration
	SwitchTimeout time.Duration
	DrainDelay    time.Duration
}

type Request struct {
	Artifact entity.ArtifactRef
	// GateExitCode is the exit status of the verification stage, if one ran.
	GateExitCode *int
}

type Coordinator struct {
	c    Components
	opts Options
	now  func() time.Time
}

func New(c Components, opts Options) *Coordinator {
	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = time.Minute
	}
	if opts.ProbeInterval == 0 {
		opts.ProbeInterval = 2 * time.Second
	}
	if opts.SwitchTimeout == 0 {
		opts.SwitchTimeout = 15 * time.Second
	}
	return &Coordinator{c: c, opts: opts, now: time.Now}
}

func (c *Coordinator) Env() string { return c.opts.Env }

// Release promotes req.Artifact into the inactive slot and routes traffic to
// it. The returned attempt is nil only when the release was refused before
// it started: a rejected gate, an invalid artifact or a held environment
// lock. Otherwise the attempt is finalized, and err is non-nil unless its
// outcome is Succeeded.
func (c *Coordinator) Release(ctx context.Context, req Request) (*entity.DeploymentAttempt, error) {
	if req.GateExitCode != nil && *req.GateExitCode != 0 {
		return nil, fmt.Errorf("%w: verification exited with status %d", entity.ErrGateRejected, *req.GateExitCode)
	}
	if err := req.Artifact.Validate(); err != nil {
		return nil, err
	}

	unlock, err := c.c.Registry.Lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	attempt := entity.NewDeploymentAttempt(c.opts.Env, req.Artifact, c.now().UTC())
	if err := c.c.History.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	log := zerolog.Ctx(ctx).With().
		Str("env", c.opts.Env).
		Str("attempt", attempt.ID.String()).
		Str("artifact", req.Artifact.String()).
		Logger()
	r := &run{Coordinator: c, attempt: attempt, entered: attempt.StartedAt}
	return attempt, r.execute(log.WithContext(ctx))
}

// run is the state of a single Release call.
type run struct {
	*Coordinator
	attempt *entity.DeploymentAttempt
	entered time.Time
}

func (r *run) execute(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	log.Info().Msg("release started")

	env, err := r.c.Registry.Load(ctx)
	if err != nil {
		return r.finalize(ctx, entity.OutcomeFailed, fmt.Errorf("load environment: %w", err))
	}
	target, err := r.c.Registry.InactiveSlot(ctx)
	if err != nil {
		return r.finalize(ctx, entity.OutcomeFailed, fmt.Errorf("select slot: %w", err))
	}
	previous, hasPrevious := env.Active()
	if err := r.checkRouter(ctx, previous.ID); err != nil {
		return r.finalize(ctx, entity.OutcomeFailed, err)
	}
	r.attempt.TargetSlot = target.ID
	if hasPrevious {
		r.attempt.PreviousSlot = previous.ID
	}
	r.transition(ctx, entity.StateSlotSelected, fmt.Sprintf("slot %s is inactive", target.ID))

	r.transition(ctx, entity.StateDeploying, "")
	deployed, err := r.c.Deployer.Deploy(ctx, target, r.attempt.Artifact)
	if err != nil {
		return r.rollback(ctx, target, err)
	}
	r.saveSlot(ctx, deployed)

	r.transition(ctx, entity.StateProbing, "start acknowledged")
	status, err := r.c.Prober.Probe(ctx, deployed, r.opts.ProbeTimeout, r.opts.ProbeInterval)
	deployed.Status = status
	r.saveSlot(ctx, deployed)
	if err != nil {
		return r.rollback(ctx, deployed, err)
	}

	r.transition(ctx, entity.StateCuttingOver, "slot is healthy")
	if stranded, err := r.cutover(ctx, deployed.ID, r.attempt.PreviousSlot); err != nil {
		if stranded {
			// the slot is receiving traffic and must keep running
			return r.finalize(ctx, entity.OutcomeFailed, err)
		}
		return r.rollback(ctx, deployed, err)
	}

	r.transition(ctx, entity.StateDecommissioning, "")
	if hasPrevious {
		r.decommission(context.WithoutCancel(ctx), previous)
	}

	r.transition(ctx, entity.StateDone, "")
	return r.finalize(ctx, entity.OutcomeSucceeded, nil)
}

// checkRouter fails with ErrStateCorrupt when the proxy link disagrees with
// the routing state.
func (r *run) checkRouter(ctx context.Context, active entity.SlotID) error {
	linked, _, err := r.c.Router.Active(ctx)
	if err != nil {
		return fmt.Errorf("%w: inspect router: %v", entity.ErrStateCorrupt, err)
	}
	if linked != active {
		return fmt.Errorf("%w: router link points at slot %q but routing state names %q",
			entity.ErrStateCorrupt, linked, active)
	}
	return nil
}

// cutover repoints the router and persists the new active slot. A failed
// commit switches the router back to prev so it never disagrees with the
// persisted routing state. stranded reports that the switch back failed too,
// leaving id serving traffic.
func (r *run) cutover(ctx context.Context, id, prev entity.SlotID) (stranded bool, err error) {
	switchCtx, cancel := context.WithTimeout(ctx, r.opts.SwitchTimeout)
	defer cancel()
	if err := r.c.Router.SwitchTo(switchCtx, id); err != nil {
		return false, fmt.Errorf("switch router: %w", err)
	}
	if err := r.c.Registry.CommitActive(ctx, id); err != nil {
		revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.SwitchTimeout)
		defer cancel()
		if rerr := r.c.Router.SwitchTo(revertCtx, prev); rerr != nil {
			r.warn(ctx, fmt.Sprintf("router still points at slot %s after failed commit, slot left running: %v", id, rerr))
			return true, fmt.Errorf("%w: commit active slot %s: %v", entity.ErrStateCorrupt, id, err)
		}
		return false, fmt.Errorf("commit active slot: %w", err)
	}
	if r.c.Metrics != nil {
		r.c.Metrics.ActiveSlot(r.opts.Env, id)
	}
	return false, nil
}

func (r *run) decommission(ctx context.Context, slot entity.Slot) {
	log := zerolog.Ctx(ctx)
	slot.Status = entity.SlotDraining
	r.saveSlot(ctx, slot)

	if r.opts.DrainDelay > 0 {
		log.Debug().Dur("delay", r.opts.DrainDelay).Msg("draining old slot")
		time.Sleep(r.opts.DrainDelay)
	}

	if err := r.c.Deployer.Stop(ctx, slot); err != nil {
		r.warn(ctx, fmt.Sprintf("old slot %s was not stopped: %v", slot.ID, err))
		return
	}
	slot.Status = entity.SlotStopped
	slot.Artifact = entity.ArtifactRef{}
	r.saveSlot(ctx, slot)
}

// rollback stops whatever was started in slot and finalizes the attempt as
// RolledBack. Routing state is left untouched. Cleanup is detached from the
// caller's context so a cancelled release still cleans up.
func (r *run) rollback(ctx context.Context, slot entity.Slot, cause error) error {
	r.transition(ctx, entity.StateRollingBack, cause.Error())
	cleanup := context.WithoutCancel(ctx)

	if err := r.c.Deployer.Stop(cleanup, slot); err != nil {
		r.warn(cleanup, fmt.Sprintf("slot %s needs manual cleanup: %v", slot.ID, err))
		slot.Status = entity.SlotUnhealthy
	} else {
		slot.Status = entity.SlotStopped
		slot.Artifact = entity.ArtifactRef{}
	}
	r.saveSlot(cleanup, slot)

	r.transition(cleanup, entity.StateIdle, "rolled back")
	return r.finalize(cleanup, entity.OutcomeRolledBack, cause)
}

func (r *run) transition(ctx context.Context, to entity.ReleaseState, reason string) {
	now := r.now().UTC()
	from := r.attempt.State
	r.attempt.Transitions = append(r.attempt.Transitions, entity.Transition{From: from, To: to, At: now, Reason: reason})
	r.attempt.State = to
	if r.c.Metrics != nil {
		r.c.Metrics.Transition(r.opts.Env, from, to, now.Sub(r.entered))
	}
	r.entered = now

	ev := zerolog.Ctx(ctx).Info()
	if to == entity.StateRollingBack {
		ev = zerolog.Ctx(ctx).Warn()
	}
	ev.Str("from", string(from)).Str("to", string(to)).Str("reason", reason).Msg("release state changed")
	r.persist(ctx)
}

// finalize settles the outcome of the attempt. Later calls are no-ops.
func (r *run) finalize(ctx context.Context, outcome entity.DeploymentOutcome, cause error) error {
	if r.attempt.Finished() {
		return cause
	}
	finished := r.now().UTC()
	r.attempt.Outcome = outcome
	r.attempt.FinishedAt = &finished
	if cause != nil {
		r.attempt.Error = cause.Error()
	}
	r.persist(ctx)
	if r.c.Metrics != nil {
		r.c.Metrics.Finished(r.attempt)
	}

	log := zerolog.Ctx(ctx)
	switch outcome {
	case entity.OutcomeSucceeded:
		log.Info().Bool("degraded", r.attempt.Degraded).Str("slot", r.attempt.TargetSlot.String()).Msg("release succeeded")
	case entity.OutcomeRolledBack:
		log.Warn().Err(cause).Bool("degraded", r.attempt.Degraded).Msg("release rolled back")
	default:
		log.Error().Err(cause).Msg("release failed")
	}
	if cause != nil {
		return fmt.Errorf("release %s %s: %w", r.attempt.ID, outcome, cause)
	}
	return nil
}

func (r *run) warn(ctx context.Context, msg string) {
	zerolog.Ctx(ctx).Warn().Msg(msg)
	r.attempt.Warn(msg)
}

func (r *run) saveSlot(ctx context.Context, slot entity.Slot) {
	if err := r.c.Registry.SaveSlot(context.WithoutCancel(ctx), slot); err != nil {
		r.warn(ctx, fmt.Sprintf("slot %s status not saved: %v", slot.ID, err))
	}
}

func (r *run) persist(ctx context.Context) {
	if err := r.c.History.Update(context.WithoutCancel(ctx), r.attempt); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to record attempt history")
	}
}
