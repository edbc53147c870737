// Package allocator implements the capacity allocation engine: the
// table/adjacency graph, candidate plan generation, deterministic
// scoring, and the error taxonomy shared by the hold manager, manual
// session and orchestrator layers. Everything in this package is pure
// computation over in-memory snapshots; it never touches the store.
package allocator

import (
	"fmt"
	"time"
)

// InputValidationError reports a malformed request (party size, window
// or table ids). It is always a local caller error and is never retried.
type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CapacityError is a hard failure: no feasible plan exists for the
// request. Retrying with the same inputs cannot succeed.
type CapacityError struct {
	PartySize int
	Reason    string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("no suitable tables for party of %d: %s", e.PartySize, e.Reason)
}

// HoldConflictError reports that another live hold or a committed
// assignment occupies a requested table for an overlapping window.
// HoldID carries the offending hold's id when the conflict came from a
// hold ("" when it came from a committed assignment).
type HoldConflictError struct {
	HoldID   string
	TableIDs []string
}

func (e *HoldConflictError) Error() string {
	if e.HoldID != "" {
		return fmt.Sprintf("tables %v conflict with hold %s", e.TableIDs, e.HoldID)
	}
	return fmt.Sprintf("tables %v conflict with a committed assignment", e.TableIDs)
}

// RateLimitError reports that a booking exceeded the allowed number of
// hold proposals within the rolling rate-limit window.
type RateLimitError struct {
	BookingID string
	Limit     int
	Window    time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("booking %s exceeded %d hold attempts per %s", e.BookingID, e.Limit, e.Window)
}

// StaleContextError reports that the caller's contextVersion no longer
// matches the live inventory/holds/bookings snapshot. The caller must
// re-fetch context and recompute its candidate plans.
type StaleContextError struct {
	Expected string
	Provided string
}

func (e *StaleContextError) Error() string {
	return fmt.Sprintf("stale context: expected %s, provided %s", e.Expected, e.Provided)
}

// SessionConflictError reports an optimistic-concurrency violation on a
// manual assignment session: another actor already advanced the
// session's selection version.
type SessionConflictError struct {
	Code     string
	Expected int
	Provided int
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("session conflict (%s): expected version %d, provided %d", e.Code, e.Expected, e.Provided)
}

// CommitConflictError is the last-instant atomic-commit rejection: at
// commit time a requested table was already committed to a different,
// time-overlapping booking. Treated as transient by the orchestrator.
type CommitConflictError struct {
	BookingID string
	TableIDs  []string
}

func (e *CommitConflictError) Error() string {
	return fmt.Sprintf("commit rejected for booking %s: tables %v already assigned", e.BookingID, e.TableIDs)
}
