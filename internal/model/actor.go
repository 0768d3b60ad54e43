package model

import (
	"fmt"

	"github.com/schedkit/schedkit/internal/hours"
	"github.com/schedkit/schedkit/internal/timezone"
)

// Actor is a potential host. It is owned by the account/team collaborator and
// read-only inside the engine.
type Actor struct {
	ID       string
	Timezone string // IANA zone name
	Hours    hours.Policy

	// Blocks are the actor's manual unavailable intervals, ordered by start.
	// They are merged into the busy set alongside stored commitments.
	Blocks []Window

	// ICSFeedURL, when set, is an external calendar feed whose events also
	// count as commitments during resolution.
	ICSFeedURL string
}

func (a Actor) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("actor id is required")
	}
	if _, err := timezone.Location(a.Timezone); err != nil {
		return fmt.Errorf("actor %s: %w", a.ID, err)
	}
	return nil
}
