package booking

import "errors"

// Policy violations: the request itself is invalid against link policy and is
// rejected, never retried.
var (
	ErrDurationMismatch  = errors.New("requested window duration does not match the meeting duration")
	ErrLeadTimeViolation = errors.New("requested window starts inside the minimum lead time")
	ErrDailyCapReached   = errors.New("daily booking cap reached for this link")
)

// ErrConflictRejected means the window stopped being available between
// resolution and commit. Expected under concurrency; the caller should
// re-resolve and let the end user pick again.
var ErrConflictRejected = errors.New("chosen window is no longer available")

// ErrPersistenceFailure wraps storage errors from the final persist step. The
// whole commit is safe to retry: persistence is the last step, so no partial
// state is left behind.
var ErrPersistenceFailure = errors.New("booking could not be persisted")

// ErrWindowTaken is returned by Store.CreateBooking when the storage layer's
// insert-if-no-overlap check finds a confirmed booking already occupying the
// buffered window. The committer maps it to ErrConflictRejected.
var ErrWindowTaken = errors.New("window already taken by a confirmed booking")

// ErrNotFound is returned by Store lookups for unknown IDs.
var ErrNotFound = errors.New("not found")

// CommitState labels the committer's terminal outcome, mostly for logging and
// HTTP mapping.
type CommitState string

const (
	StateValidating       CommitState = "validating"
	StateConflictRejected CommitState = "conflict-rejected"
	StateCommitted        CommitState = "committed"
	StateFailed           CommitState = "failed"
)

// StateOf classifies a Commit error into its terminal state.
func StateOf(err error) CommitState {
	switch {
	case err == nil:
		return StateCommitted
	case errors.Is(err, ErrPersistenceFailure):
		return StateFailed
	default:
		return StateConflictRejected
	}
}
