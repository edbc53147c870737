// Package service contains the engine's orchestration layers: the
// hold manager, the manual assignment session, the assignment
// committer and the auto-assign orchestrator. Services accept narrow
// store interfaces (satisfied by the MySQL repositories) so their
// concurrency behavior is testable against in-memory doubles.
package service

import (
	"context"
	"time"

	"github.com/tablewise/tablewise/internal/model"
)

// TableStore reads a restaurant's inventory snapshot.
type TableStore interface {
	ListActive(ctx context.Context, restaurantID string) ([]model.Table, error)
	ListAdjacency(ctx context.Context, restaurantID string, tableIDs []string) ([][2]string, error)
}

// BookingStore reads bookings and their committed table links.
type BookingStore interface {
	GetByID(ctx context.Context, bookingID string) (model.Booking, error)
	ListOverlapping(ctx context.Context, restaurantID string, window model.Window, excludeBookingID string) ([]model.Booking, error)
	ListLinksOverlapping(ctx context.Context, restaurantID string, window model.Window) ([]model.Assignment, error)
}

// HoldStore is the atomic hold primitive: Create performs the
// conflict check and insertion as one operation.
type HoldStore interface {
	Create(ctx context.Context, hold model.Hold, excludeHoldID string) (model.Hold, error)
	Release(ctx context.Context, holdID string) error
	GetByID(ctx context.Context, holdID string) (model.Hold, error)
	ListLiveOverlapping(ctx context.Context, restaurantID string, window model.Window, now time.Time) ([]model.Hold, error)
	SweepExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// AssignmentStore is the atomic commit primitive: Commit performs the
// overlap recheck, link insertion and hold consumption as one
// transaction.
type AssignmentStore interface {
	Commit(ctx context.Context, bookingID string, tableIDs []string, window model.Window, assignedBy string) ([]model.Assignment, error)
	Release(ctx context.Context, bookingID string, tableIDs []string) error
	ListByBooking(ctx context.Context, bookingID string) ([]model.Assignment, error)
}

// SessionStore persists manual assignment sessions with
// compare-and-set version advancement.
type SessionStore interface {
	GetOrCreate(ctx context.Context, bookingID, restaurantID, createdBy string) (model.AssignmentSession, error)
	GetByBooking(ctx context.Context, bookingID string) (model.AssignmentSession, error)
	Advance(ctx context.Context, sessionID string, expectedVersion int, state model.SessionState, contextVersion, holdID string, selectedTables []string) (model.AssignmentSession, error)
}
