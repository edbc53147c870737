package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tablewise/tablewise/internal/model"
)

// SessionRepo persists manual assignment sessions. The selection
// version is advanced with a compare-and-set UPDATE so that two staff
// members racing on the same booking can never both win: the loser's
// update matches zero rows and surfaces ErrVersionConflict.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the provided database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// GetOrCreate loads the booking's session, creating it in the active
// state when none exists yet (the "uninitialized -> active" transition).
func (r *SessionRepo) GetOrCreate(ctx context.Context, bookingID, restaurantID, createdBy string) (model.AssignmentSession, error) {
	s, err := r.GetByBooking(ctx, bookingID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.AssignmentSession{}, err
	}

	now := time.Now().UTC()
	const insert = `INSERT INTO assignment_sessions
        (id, booking_id, restaurant_id, state, selection_version, context_version,
         hold_id, selected_tables, created_by, created_at, updated_at)
        VALUES (?, ?, ?, ?, 0, '', '', '', NULLIF(?, ''), ?, ?)`
	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx, insert, id, bookingID, restaurantID,
		model.SessionActive, createdBy, now, now); err != nil {
		// Lost a creation race on the unique booking_id: re-read.
		if existing, readErr := r.GetByBooking(ctx, bookingID); readErr == nil {
			return existing, nil
		}
		return model.AssignmentSession{}, err
	}
	return r.GetByBooking(ctx, bookingID)
}

// GetByBooking loads the booking's session. Returns ErrNotFound when
// the session is still uninitialized.
func (r *SessionRepo) GetByBooking(ctx context.Context, bookingID string) (model.AssignmentSession, error) {
	const q = `SELECT id, booking_id, restaurant_id, state, selection_version, context_version,
        hold_id, selected_tables, COALESCE(created_by, ''), created_at, updated_at
        FROM assignment_sessions WHERE booking_id = ?`
	var s model.AssignmentSession
	var selected string
	err := r.db.QueryRowContext(ctx, q, bookingID).Scan(&s.ID, &s.BookingID, &s.RestaurantID,
		&s.State, &s.SelectionVersion, &s.ContextVersion, &s.HoldID, &selected,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AssignmentSession{}, ErrNotFound
	}
	if err != nil {
		return model.AssignmentSession{}, err
	}
	if selected != "" {
		s.SelectedTables = strings.Split(selected, ",")
	}
	return s, nil
}

// Advance transitions the session with optimistic concurrency: the
// update only applies when the stored selection_version still equals
// expectedVersion, and increments it by one. ErrVersionConflict means
// another actor advanced the session first.
func (r *SessionRepo) Advance(ctx context.Context, sessionID string, expectedVersion int, state model.SessionState, contextVersion, holdID string, selectedTables []string) (model.AssignmentSession, error) {
	const q = `UPDATE assignment_sessions
        SET state = ?, context_version = ?, hold_id = ?, selected_tables = ?,
            selection_version = selection_version + 1, updated_at = ?
        WHERE id = ? AND selection_version = ?`
	res, err := r.db.ExecContext(ctx, q, state, contextVersion, holdID,
		strings.Join(selectedTables, ","), time.Now().UTC(), sessionID, expectedVersion)
	if err != nil {
		return model.AssignmentSession{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.AssignmentSession{}, err
	}
	if affected == 0 {
		return model.AssignmentSession{}, ErrVersionConflict
	}

	const reload = `SELECT id, booking_id, restaurant_id, state, selection_version, context_version,
        hold_id, selected_tables, COALESCE(created_by, ''), created_at, updated_at
        FROM assignment_sessions WHERE id = ?`
	var s model.AssignmentSession
	var selected string
	if err := r.db.QueryRowContext(ctx, reload, sessionID).Scan(&s.ID, &s.BookingID, &s.RestaurantID,
		&s.State, &s.SelectionVersion, &s.ContextVersion, &s.HoldID, &selected,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return model.AssignmentSession{}, err
	}
	if selected != "" {
		s.SelectedTables = strings.Split(selected, ",")
	}
	return s, nil
}
