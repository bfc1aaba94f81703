package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/sys/atomicwriter"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/yz4230/bluegreen/internal/entity"
	"golang.org/x/sys/unix"
)

const (
	routingFile = "routing.json"
	slotsFile   = "slots.json"
	lockFile    = ".lock"
)

// SlotRegistry persists the slot pair and routing state of one environment.
type SlotRegistry interface {
	Load(ctx context.Context) (*entity.Environment, error)
	InactiveSlot(ctx context.Context) (entity.Slot, error)
	CommitActive(ctx context.Context, id entity.SlotID) error
	SaveSlot(ctx context.Context, slot entity.Slot) error
	// Lock takes the environment's release lock without blocking.
	Lock() (unlock func(), err error)
}

type SlotRegistryImpl struct {
	dir   string
	env   string
	ports map[entity.SlotID]int
	log   zerolog.Logger
	now   func() time.Time
}

type slotsRecord struct {
	Slots []entity.Slot `json:"slots"`
}

// Load implements SlotRegistry.
func (r *SlotRegistryImpl) Load(ctx context.Context) (*entity.Environment, error) {
	routing, err := r.readRouting()
	if err != nil {
		return nil, err
	}
	slots, err := r.readSlots()
	if err != nil {
		return nil, err
	}
	env := &entity.Environment{Name: r.env, Routing: routing, Slots: slots}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// InactiveSlot implements SlotRegistry.
func (r *SlotRegistryImpl) InactiveSlot(ctx context.Context) (entity.Slot, error) {
	env, err := r.Load(ctx)
	if err != nil {
		return entity.Slot{}, err
	}
	return env.Inactive()
}

// CommitActive implements SlotRegistry.
func (r *SlotRegistryImpl) CommitActive(ctx context.Context, id entity.SlotID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: commit unknown slot %q", entity.ErrInvalid, id)
	}
	state := entity.RoutingState{ActiveSlot: id, LastSwitchedAt: r.now().UTC()}
	if err := r.write(routingFile, state); err != nil {
		return fmt.Errorf("commit routing state: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("env", r.env).Str("slot", id.String()).Msg("committed active slot")
	return nil
}

// SaveSlot implements SlotRegistry.
func (r *SlotRegistryImpl) SaveSlot(ctx context.Context, slot entity.Slot) error {
	if !slot.ID.Valid() {
		return fmt.Errorf("%w: save unknown slot %q", entity.ErrInvalid, slot.ID)
	}
	slots, err := r.readSlots()
	if err != nil {
		return err
	}
	slot.UpdatedAt = r.now().UTC()
	slots = lo.Map(slots, func(s entity.Slot, _ int) entity.Slot {
		return lo.Ternary(s.ID == slot.ID, slot, s)
	})
	if err := r.write(slotsFile, slotsRecord{Slots: slots}); err != nil {
		return fmt.Errorf("save slot %s: %w", slot.ID, err)
	}
	zerolog.Ctx(ctx).Debug().Str("env", r.env).Str("slot", slot.ID.String()).
		Str("status", string(slot.Status)).Msg("saved slot")
	return nil
}

// Lock implements SlotRegistry.
func (r *SlotRegistryImpl) Lock() (func(), error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(r.dir, lockFile), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: environment %s is locked", entity.ErrConcurrentDeployment, r.env)
		}
		return nil, fmt.Errorf("lock environment: %w", err)
	}
	return func() {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
			r.log.Error().Err(err).Str("env", r.env).Msg("failed to release environment lock")
		}
		f.Close()
	}, nil
}

func (r *SlotRegistryImpl) readRouting() (*entity.RoutingState, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, routingFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read routing state: %v", entity.ErrStateCorrupt, err)
	}
	var state entity.RoutingState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: decode routing state: %v", entity.ErrStateCorrupt, err)
	}
	return &state, nil
}

func (r *SlotRegistryImpl) readSlots() ([]entity.Slot, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, slotsFile))
	if errors.Is(err, os.ErrNotExist) {
		return lo.Map(entity.SlotIDs, func(id entity.SlotID, _ int) entity.Slot {
			return entity.Slot{ID: id, Port: r.ports[id], Status: entity.SlotStopped}
		}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read slots: %v", entity.ErrStateCorrupt, err)
	}
	var rec slotsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode slots: %v", entity.ErrStateCorrupt, err)
	}
	// configured ports win over recorded ones
	for i := range rec.Slots {
		if port, ok := r.ports[rec.Slots[i].ID]; ok {
			rec.Slots[i].Port = port
		}
	}
	return rec.Slots, nil
}

func (r *SlotRegistryImpl) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return atomicwriter.WriteFile(filepath.Join(r.dir, name), append(data, '\n'), 0o644)
}

func NewSlotRegistry(root, env string, ports map[entity.SlotID]int, log zerolog.Logger) SlotRegistry {
	return &SlotRegistryImpl{
		dir:   filepath.Join(root, env),
		env:   env,
		ports: ports,
		log:   log,
		now:   time.Now,
	}
}
