// Package deployer materializes an artifact in a slot.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/yz4230/bluegreen/internal/entity"
	"github.com/yz4230/bluegreen/internal/runtime"
	"github.com/yz4230/bluegreen/internal/utils"
)

type Options struct {
	Env           string
	HostIP        string
	ContainerPort int
	EnvVars       []string
	StartTimeout  time.Duration
	StopAttempts  uint
	RetryDelay    time.Duration
}

type Deployer struct {
	rt   runtime.Runtime
	opts Options
}

func New(rt runtime.Runtime, opts Options) *Deployer {
	if opts.HostIP == "" {
		opts.HostIP = "127.0.0.1"
	}
	if opts.StartTimeout == 0 {
		opts.StartTimeout = 30 * time.Second
	}
	if opts.StopAttempts == 0 {
		opts.StopAttempts = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	return &Deployer{rt: rt, opts: opts}
}

// Deploy replaces whatever occupies the slot with a workload running
// artifact and returns the slot in the Starting state. Health is the
// prober's business.
func (d *Deployer) Deploy(ctx context.Context, slot entity.Slot, artifact entity.ArtifactRef) (entity.Slot, error) {
	log := zerolog.Ctx(ctx).With().Str("slot", slot.ID.String()).Str("artifact", artifact.String()).Logger()
	if err := artifact.Validate(); err != nil {
		return slot, fmt.Errorf("%w: %v", entity.ErrDeploy, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.StartTimeout)
	defer cancel()

	if err := d.rt.Ping(ctx); err != nil {
		return slot, fmt.Errorf("%w: runtime unavailable: %v", entity.ErrDeploy, err)
	}

	// one port cannot be bound twice, so a stale occupant of the target
	// slot goes first
	if err := d.Stop(ctx, slot); err != nil {
		return slot, fmt.Errorf("%w: clear slot %s: %v", entity.ErrDeploy, slot.ID, err)
	}

	w, err := d.rt.Start(ctx, runtime.WorkloadSpec{
		Name:          d.workloadName(slot, artifact),
		Image:         artifact.String(),
		HostIP:        d.opts.HostIP,
		HostPort:      slot.Port,
		ContainerPort: d.opts.ContainerPort,
		Env:           d.opts.EnvVars,
		Labels: lo.Assign(d.labels(slot), map[string]string{
			runtime.LabelArtifact: artifact.String(),
		}),
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return slot, fmt.Errorf("%w: start not acknowledged within %s: %v", entity.ErrDeploy, d.opts.StartTimeout, err)
		}
		return slot, fmt.Errorf("%w: %v", entity.ErrDeploy, err)
	}
	log.Info().Str("workload", w.ID).Msg("workload started")

	slot.Artifact = artifact
	slot.Status = entity.SlotStarting
	return slot, nil
}

// Stop removes every workload bound to the slot.
func (d *Deployer) Stop(ctx context.Context, slot entity.Slot) error {
	log := zerolog.Ctx(ctx)
	workloads, err := d.Workloads(ctx, slot)
	if err != nil {
		return err
	}
	var errs []error
	for _, w := range workloads {
		err := retry.Do(
			func() error { return d.rt.Stop(ctx, w.ID) },
			retry.Context(ctx),
			retry.Attempts(d.opts.StopAttempts),
			retry.Delay(d.opts.RetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(attempt uint, err error) {
				log.Warn().Err(err).Str("workload", w.ID).Msgf("failed to stop workload, attempt: %d", attempt)
			}),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("stop workload %s: %w", w.ID, err))
			continue
		}
		log.Info().Str("slot", slot.ID.String()).Str("workload", w.ID).Msg("workload stopped")
	}
	return errors.Join(errs...)
}

func (d *Deployer) labels(slot entity.Slot) map[string]string {
	return map[string]string{
		runtime.LabelEnv:  d.opts.Env,
		runtime.LabelSlot: slot.ID.String(),
	}
}

func (d *Deployer) workloadName(slot entity.Slot, artifact entity.ArtifactRef) string {
	version := artifact.Tag
	if artifact.Digest != "" {
		version = artifact.Digest.Encoded()[:12]
	}
	return utils.SanitizeName(fmt.Sprintf("bluegreen-%s-%s-%s", d.opts.Env, strings.ToLower(slot.ID.String()), version))
}
