package entity

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

type SlotID string

const (
	SlotA SlotID = "A"
	SlotB SlotID = "B"
)

// SlotIDs lists both slots in their canonical order.
var SlotIDs = []SlotID{SlotA, SlotB}

func ParseSlotID(s string) (SlotID, error) {
	switch SlotID(s) {
	case SlotA, SlotB:
		return SlotID(s), nil
	case "a":
		return SlotA, nil
	case "b":
		return SlotB, nil
	}
	return "", fmt.Errorf("%w: unknown slot %q", ErrInvalid, s)
}

func (id SlotID) Valid() bool { return id == SlotA || id == SlotB }

// Other returns the opposite slot of the pair.
func (id SlotID) Other() SlotID {
	return lo.Ternary(id == SlotA, SlotB, SlotA)
}

func (id SlotID) String() string { return string(id) }

type SlotStatus string

const (
	SlotStopped   SlotStatus = "stopped"
	SlotStarting  SlotStatus = "starting"
	SlotHealthy   SlotStatus = "healthy"
	SlotUnhealthy SlotStatus = "unhealthy"
	SlotDraining  SlotStatus = "draining"
)

type Slot struct {
	ID        SlotID      `json:"id"`
	Port      int         `json:"port"`
	Artifact  ArtifactRef `json:"artifact,omitzero"`
	Status    SlotStatus  `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RoutingState is what traffic currently sees.
type RoutingState struct {
	ActiveSlot     SlotID    `json:"active_slot"`
	LastSwitchedAt time.Time `json:"last_switched_at"`
}

// Environment is the persisted slot pair of one environment. Routing is nil
// until the first cutover.
type Environment struct {
	Name    string        `json:"name"`
	Routing *RoutingState `json:"routing,omitempty"`
	Slots   []Slot        `json:"slots"`
}

func (e *Environment) Slot(id SlotID) (Slot, bool) {
	return lo.Find(e.Slots, func(s Slot) bool { return s.ID == id })
}

// Active returns the routed slot, if any.
func (e *Environment) Active() (Slot, bool) {
	if e.Routing == nil {
		return Slot{}, false
	}
	return e.Slot(e.Routing.ActiveSlot)
}

// Inactive returns the slot not referenced by the routing state. A fresh
// environment deploys into slot A first. Without routing state every slot
// must be stopped and empty, otherwise neither slot is known to be inactive.
func (e *Environment) Inactive() (Slot, error) {
	if err := e.Validate(); err != nil {
		return Slot{}, err
	}
	if e.Routing == nil {
		if live, ok := lo.Find(e.Slots, func(s Slot) bool {
			return s.Status != SlotStopped || !s.Artifact.IsZero()
		}); ok {
			return Slot{}, fmt.Errorf("%w: environment %s has no routing state but slot %s is %s with %q",
				ErrStateCorrupt, e.Name, live.ID, live.Status, live.Artifact)
		}
		s, _ := e.Slot(SlotA)
		return s, nil
	}
	s, _ := e.Slot(e.Routing.ActiveSlot.Other())
	return s, nil
}

// Validate checks that exactly the two slots exist and that the routing
// state, when present, names exactly one of them.
func (e *Environment) Validate() error {
	if len(e.Slots) != len(SlotIDs) {
		return fmt.Errorf("%w: environment %s has %d slots", ErrStateCorrupt, e.Name, len(e.Slots))
	}
	for _, id := range SlotIDs {
		if _, ok := e.Slot(id); !ok {
			return fmt.Errorf("%w: environment %s is missing slot %s", ErrStateCorrupt, e.Name, id)
		}
	}
	if e.Routing != nil && !e.Routing.ActiveSlot.Valid() {
		return fmt.Errorf("%w: environment %s routes to unknown slot %q", ErrStateCorrupt, e.Name, e.Routing.ActiveSlot)
	}
	return nil
}
