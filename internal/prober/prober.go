// Package prober gates a cutover on the health of a freshly started slot.
package prober

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/yz4230/bluegreen/internal/entity"
)

const (
	DefaultTimeout  = time.Minute
	DefaultInterval = 2 * time.Second
)

type Prober struct {
	strategy Strategy
	host     string
	maxBad   int
}

func New(settings Settings) (*Prober, error) {
	settings.FillDefaults()
	strategy, err := NewStrategy(settings)
	if err != nil {
		return nil, err
	}
	return NewWithStrategy(strategy, settings.Host, settings.MaxBadResponses), nil
}

func NewWithStrategy(strategy Strategy, host string, maxBad int) *Prober {
	return &Prober{strategy: strategy, host: host, maxBad: maxBad}
}

// Probe polls the slot every interval until it reports healthy. It returns
// ErrUnhealthy once more than maxBad consecutive bad responses were seen and
// ErrProbeTimeout when timeout elapses first. Cancelling ctx stops it at once.
func (p *Prober) Probe(ctx context.Context, slot entity.Slot, timeout, interval time.Duration) (entity.SlotStatus, error) {
	log := zerolog.Ctx(ctx).With().Str("slot", slot.ID.String()).Int("port", slot.Port).Logger()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	addr := net.JoinHostPort(p.host, strconv.Itoa(slot.Port))

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	bad := 0
	for attempt := 1; ; attempt++ {
		result, err := p.strategy.Check(probeCtx, addr)
		if ctx.Err() != nil {
			return entity.SlotUnhealthy, fmt.Errorf("probe slot %s: %w", slot.ID, ctx.Err())
		}
		switch result {
		case ResultHealthy:
			log.Info().Int("attempt", attempt).Msg("slot is healthy")
			return entity.SlotHealthy, nil
		case ResultBad:
			bad++
			log.Warn().Err(err).Int("attempt", attempt).Int("bad", bad).Msg("bad health response")
			if bad > p.maxBad {
				return entity.SlotUnhealthy, fmt.Errorf("%w: slot %s gave %d consecutive bad responses: %v",
					entity.ErrUnhealthy, slot.ID, bad, err)
			}
		default:
			bad = 0
			log.Debug().Err(err).Int("attempt", attempt).Msg("slot not ready yet")
		}

		select {
		case <-probeCtx.Done():
			if ctx.Err() != nil {
				return entity.SlotUnhealthy, fmt.Errorf("probe slot %s: %w", slot.ID, ctx.Err())
			}
			return entity.SlotUnhealthy, fmt.Errorf("%w: slot %s not healthy after %s",
				entity.ErrProbeTimeout, slot.ID, timeout)
		case <-ticker.C:
		}
	}
}
