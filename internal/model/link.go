package model

import (
	"fmt"
	"strings"
)

// StrategyKind selects how a host is assigned at commit time.
type StrategyKind string

const (
	StrategyFixed          StrategyKind = "fixed"
	StrategyFirstAvailable StrategyKind = "first_available"
	StrategyFewestBookings StrategyKind = "fewest_bookings"
)

// ParseStrategyKind validates a strategy tag at load time so bad link
// configuration is rejected before it can reach an assignment pass.
func ParseStrategyKind(raw string) (StrategyKind, error) {
	switch StrategyKind(strings.TrimSpace(strings.ToLower(raw))) {
	case StrategyFixed:
		return StrategyFixed, nil
	case StrategyFirstAvailable:
		return StrategyFirstAvailable, nil
	case StrategyFewestBookings:
		return StrategyFewestBookings, nil
	}
	return "", fmt.Errorf("unknown assignment strategy %q", raw)
}

// AssignmentPool is the ordered set of eligible hosts for a link. Order is
// significant: first-available iterates it as-is and fewest-bookings breaks
// ties by it.
type AssignmentPool struct {
	ActorIDs []string
	Strategy StrategyKind
}

// LinkConfig is a fully resolved booking link: who can host, how the host is
// chosen, and the shape of the meeting. Built once at load time from stored
// settings; immutable afterwards.
type LinkConfig struct {
	ID      string
	OwnerID string // reference actor whose policy drives slot generation
	Pool    AssignmentPool
	FixedID string // required when Strategy == StrategyFixed
	Spec    MeetingSpec
}

func (l LinkConfig) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("link id is required")
	}
	if l.OwnerID == "" {
		return fmt.Errorf("link %s: owner actor id is required", l.ID)
	}
	if err := l.Spec.Validate(); err != nil {
		return fmt.Errorf("link %s: %w", l.ID, err)
	}
	switch l.Pool.Strategy {
	case StrategyFixed:
		if l.FixedID == "" {
			return fmt.Errorf("link %s: fixed strategy requires a designated actor", l.ID)
		}
	case StrategyFirstAvailable, StrategyFewestBookings:
		if len(l.Pool.ActorIDs) == 0 {
			return fmt.Errorf("link %s: pooled strategy requires a non-empty pool", l.ID)
		}
	default:
		return fmt.Errorf("link %s: unknown assignment strategy %q", l.ID, l.Pool.Strategy)
	}
	return nil
}

// HostIDs returns every actor that could end up hosting a booking on this
// link, in pool order.
func (l LinkConfig) HostIDs() []string {
	if l.Pool.Strategy == StrategyFixed {
		return []string{l.FixedID}
	}
	return l.Pool.ActorIDs
}
