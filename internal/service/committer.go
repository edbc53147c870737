package service

import (
	"context"

	"github.com/tablewise/tablewise/internal/allocator"
	"github.com/tablewise/tablewise/internal/model"
)

// Committer is the single write path for table assignments. Both the
// manual session confirm and the auto-assign orchestrator go through
// it, so the no-double-booking guarantee has exactly one enforcement
// point: the store's transactional Commit.
type Committer struct {
	assignments AssignmentStore
	bookings    BookingStore
}

// NewCommitter wires the committer.
func NewCommitter(assignments AssignmentStore, bookings BookingStore) *Committer {
	return &Committer{assignments: assignments, bookings: bookings}
}

// Commit links the tables to the booking for its window, consuming any
// of the booking's holds that covered them. Committing an identical
// selection twice is idempotent; a table already linked to a different
// overlapping booking yields a *allocator.CommitConflictError.
func (c *Committer) Commit(ctx context.Context, bookingID string, tableIDs []string, assignedBy string) ([]model.Assignment, error) {
	ids, err := normalizeTableIDs(tableIDs)
	if err != nil {
		return nil, err
	}
	booking, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Window().IsValid() {
		return nil, &allocator.InputValidationError{Field: "window", Reason: "booking window is not well formed"}
	}
	return c.assignments.Commit(ctx, booking.ID, ids, booking.Window(), assignedBy)
}

// Release removes the booking's links for the given tables in one
// atomic operation. An empty id list releases every link the booking
// holds.
func (c *Committer) Release(ctx context.Context, bookingID string, tableIDs []string) error {
	if bookingID == "" {
		return &allocator.InputValidationError{Field: "booking_id", Reason: "must not be empty"}
	}
	if len(tableIDs) == 0 {
		links, err := c.assignments.ListByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		for _, l := range links {
			tableIDs = append(tableIDs, l.TableID)
		}
		if len(tableIDs) == 0 {
			return nil
		}
	}
	return c.assignments.Release(ctx, bookingID, tableIDs)
}

// Assignments lists the booking's committed links.
func (c *Committer) Assignments(ctx context.Context, bookingID string) ([]model.Assignment, error) {
	return c.assignments.ListByBooking(ctx, bookingID)
}
