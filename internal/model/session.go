package model

import "time"

// SessionState enumerates the lifecycle of a manual assignment
// session. A booking with no session row is implicitly
// "uninitialized"; the first interaction creates the row in the
// active state and every later transition is recorded on it.
type SessionState string

const (
    SessionActive     SessionState = "active"
    SessionProposed   SessionState = "proposed"
    SessionHeld       SessionState = "held"
    SessionConfirmed  SessionState = "confirmed"
    SessionConflicted SessionState = "conflicted"
)

// AssignmentSession is the optimistic-concurrency wrapper around a
// staff member's interactive table selection for one booking. There
// is at most one session per booking (unique booking_id).
//
// SelectionVersion increases by one on every successful propose or
// hold, which invalidates any concurrently in-flight call that still
// carries the old version. ContextVersion fingerprints the
// inventory/holds/bookings snapshot the caller's candidate plans were
// computed against; a mismatch means the world changed under them and
// the call must be rejected as stale.
//
// Fields:
//  ID               – primary key (UUID).
//  BookingID        – booking the session belongs to (unique).
//  RestaurantID     – restaurant scope.
//  State            – current SessionState.
//  SelectionVersion – monotonically increasing optimistic version.
//  ContextVersion   – fingerprint of the snapshot last validated against.
//  HoldID           – hold currently owned by the session ("" when none).
//  SelectedTables   – table ids of the last proposed/held selection.
//  CreatedBy        – staff identifier that opened the session.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last transition timestamp.
type AssignmentSession struct {
    ID               string       // assignment_sessions.id
    BookingID        string       // assignment_sessions.booking_id
    RestaurantID     string       // assignment_sessions.restaurant_id
    State            SessionState // assignment_sessions.state
    SelectionVersion int          // assignment_sessions.selection_version
    ContextVersion   string       // assignment_sessions.context_version
    HoldID           string       // assignment_sessions.hold_id (empty = none)
    SelectedTables   []string     // assignment_session_tables.table_id
    CreatedBy        string       // assignment_sessions.created_by
    CreatedAt        time.Time    // assignment_sessions.created_at
    UpdatedAt        time.Time    // assignment_sessions.updated_at
}
