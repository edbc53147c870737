package model

import "time"

// Assignment is the durable link between a booking and one table for
// an effective time window. Multi-table (merged) assignments share a
// MergeGroupID so the whole merge can be identified and released
// together. Rows are only ever created by the assignment committer's
// atomic transaction and are mutually exclusive with live holds on
// the same tables and window.
//
// Fields:
//  BookingID    – booking the table is committed to.
//  TableID      – committed table.
//  StartAt      – effective window start (UTC).
//  EndAt        – effective window end (UTC, exclusive).
//  MergeGroupID – shared UUID for merged table groups ("" for singles).
//  AssignedBy   – staff identifier or "" for orchestrated assignments.
//  CreatedAt    – commit timestamp.
type Assignment struct {
    BookingID    string    // booking_table_links.booking_id
    TableID      string    // booking_table_links.table_id
    StartAt      time.Time // booking_table_links.start_at
    EndAt        time.Time // booking_table_links.end_at
    MergeGroupID string    // booking_table_links.merge_group_id
    AssignedBy   string    // booking_table_links.assigned_by
    CreatedAt    time.Time // booking_table_links.created_at
}

// Window returns the assignment's effective interval.
func (a Assignment) Window() Window {
    return Window{StartAt: a.StartAt, EndAt: a.EndAt}
}
