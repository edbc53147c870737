package model

import "time"

// Hold is a short-lived exclusive reservation of a table set for a
// time window. Holds keep a selection safe while staff finish a
// manual assignment or while the orchestrator commits. A hold is
// live while ExpiresAt is in the future; expiry is passive, nothing
// needs to delete the row for correctness.
//
// Fields:
//  ID           – primary key (UUID).
//  RestaurantID – restaurant scope.
//  BookingID    – booking the hold protects ("" for anonymous holds).
//  TableIDs     – tables covered, stored in table_hold_members rows.
//  StartAt      – start of the protected window (UTC).
//  EndAt        – end of the protected window (UTC, exclusive).
//  ExpiresAt    – wall-clock expiry of the hold itself.
//  CreatedBy    – staff identifier that placed the hold ("" for system).
//  CreatedAt    – creation timestamp.
type Hold struct {
    ID           string    // table_holds.id
    RestaurantID string    // table_holds.restaurant_id
    BookingID    string    // table_holds.booking_id (empty allowed)
    TableIDs     []string  // table_hold_members.table_id
    StartAt      time.Time // table_holds.start_at
    EndAt        time.Time // table_holds.end_at
    ExpiresAt    time.Time // table_holds.expires_at
    CreatedBy    string    // table_holds.created_by
    CreatedAt    time.Time // table_holds.created_at
}

// Live reports whether the hold is still in force at the given instant.
func (h Hold) Live(now time.Time) bool {
    return h.ExpiresAt.After(now)
}

// Window returns the interval the hold protects.
func (h Hold) Window() Window {
    return Window{StartAt: h.StartAt, EndAt: h.EndAt}
}
