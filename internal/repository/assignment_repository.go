package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tablewise/tablewise/internal/allocator"
	"github.com/tablewise/tablewise/internal/model"
)

// AssignmentRepo owns the engine's single serialization point: the
// atomic commit of a table selection into durable booking-table links,
// and the atomic release. Commit re-checks conflicts at the moment of
// mutation — even if a hold previously reserved the tables — to defend
// against external mutation between read and write.
type AssignmentRepo struct {
	db *sql.DB
}

// NewAssignmentRepo returns an AssignmentRepo bound to the database.
func NewAssignmentRepo(db *sql.DB) *AssignmentRepo { return &AssignmentRepo{db: db} }

// Commit creates the booking's table links for the window and consumes
// any of the booking's holds covering those tables, all in one
// transaction. It is idempotent on (bookingID, tableID) pairs already
// committed, and returns *allocator.CommitConflictError when any table
// is already committed to a different, time-overlapping booking.
func (r *AssignmentRepo) Commit(ctx context.Context, bookingID string, tableIDs []string, window model.Window, assignedBy string) ([]model.Assignment, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Last-instant recheck against other bookings' links.
	conflictQ := `SELECT l.table_id FROM booking_table_links l
        WHERE l.table_id IN (` + placeholders(len(tableIDs)) + `)
        AND l.start_at < ? AND l.end_at > ? AND l.booking_id <> ? FOR UPDATE`
	args := make([]any, 0, len(tableIDs)+3)
	for _, id := range tableIDs {
		args = append(args, id)
	}
	args = append(args, window.EndAt, window.StartAt, bookingID)

	rows, err := tx.QueryContext(ctx, conflictQ, args...)
	if err != nil {
		return nil, err
	}
	var conflicting []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		conflicting = append(conflicting, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(conflicting) > 0 {
		return nil, &allocator.CommitConflictError{BookingID: bookingID, TableIDs: conflicting}
	}

	// Re-validate against other bookings' live holds in the same
	// transaction: a table a live hold still protects cannot be
	// committed out from under it. The booking's own holds are excluded
	// here because the commit consumes them below.
	holdID, heldTables, err := liveHoldConflictsTx(ctx, tx, tableIDs, window, now, "", bookingID)
	if err != nil {
		return nil, err
	}
	if holdID != "" {
		return nil, &allocator.CommitConflictError{BookingID: bookingID, TableIDs: heldTables}
	}

	// Existing links of this booking make the commit idempotent.
	existingQ := `SELECT table_id FROM booking_table_links
        WHERE booking_id = ? AND table_id IN (` + placeholders(len(tableIDs)) + `) FOR UPDATE`
	existArgs := make([]any, 0, len(tableIDs)+1)
	existArgs = append(existArgs, bookingID)
	for _, id := range tableIDs {
		existArgs = append(existArgs, id)
	}
	existRows, err := tx.QueryContext(ctx, existingQ, existArgs...)
	if err != nil {
		return nil, err
	}
	existing := map[string]bool{}
	for existRows.Next() {
		var id string
		if err := existRows.Scan(&id); err != nil {
			existRows.Close()
			return nil, err
		}
		existing[id] = true
	}
	existRows.Close()
	if err := existRows.Err(); err != nil {
		return nil, err
	}

	mergeGroupID := ""
	if len(tableIDs) > 1 {
		mergeGroupID = uuid.NewString()
	}

	const insert = `INSERT INTO booking_table_links
        (booking_id, table_id, start_at, end_at, merge_group_id, assigned_by, created_at)
        VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)`
	assignments := make([]model.Assignment, 0, len(tableIDs))
	for _, tableID := range tableIDs {
		if !existing[tableID] {
			if _, err := tx.ExecContext(ctx, insert, bookingID, tableID,
				window.StartAt, window.EndAt, mergeGroupID, assignedBy, now); err != nil {
				return nil, err
			}
		}
		assignments = append(assignments, model.Assignment{
			BookingID:    bookingID,
			TableID:      tableID,
			StartAt:      window.StartAt,
			EndAt:        window.EndAt,
			MergeGroupID: mergeGroupID,
			AssignedBy:   assignedBy,
			CreatedAt:    now,
		})
	}

	// Consume the booking's holds covering any of the committed tables.
	consumeQ := `SELECT DISTINCT h.id FROM table_holds h
        JOIN table_hold_members m ON m.hold_id = h.id
        WHERE h.booking_id = ? AND m.table_id IN (` + placeholders(len(tableIDs)) + `) FOR UPDATE`
	consumeArgs := make([]any, 0, len(tableIDs)+1)
	consumeArgs = append(consumeArgs, bookingID)
	for _, id := range tableIDs {
		consumeArgs = append(consumeArgs, id)
	}
	holdRows, err := tx.QueryContext(ctx, consumeQ, consumeArgs...)
	if err != nil {
		return nil, err
	}
	var holdIDs []string
	for holdRows.Next() {
		var id string
		if err := holdRows.Scan(&id); err != nil {
			holdRows.Close()
			return nil, err
		}
		holdIDs = append(holdIDs, id)
	}
	holdRows.Close()
	if err := holdRows.Err(); err != nil {
		return nil, err
	}
	for _, holdID := range holdIDs {
		if err := deleteHoldTx(ctx, tx, holdID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return assignments, nil
}

// Release removes exactly the given booking-table links, atomically.
// Missing links are ignored so the operation is safe to retry.
func (r *AssignmentRepo) Release(ctx context.Context, bookingID string, tableIDs []string) error {
	if len(tableIDs) == 0 {
		return nil
	}
	q := `DELETE FROM booking_table_links WHERE booking_id = ? AND table_id IN (` + placeholders(len(tableIDs)) + `)`
	args := make([]any, 0, len(tableIDs)+1)
	args = append(args, bookingID)
	for _, id := range tableIDs {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx, q, args...)
	return err
}

// ListByBooking returns the booking's committed links.
func (r *AssignmentRepo) ListByBooking(ctx context.Context, bookingID string) ([]model.Assignment, error) {
	const q = `SELECT booking_id, table_id, start_at, end_at, COALESCE(merge_group_id, ''),
        COALESCE(assigned_by, ''), created_at FROM booking_table_links
        WHERE booking_id = ? ORDER BY table_id`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.BookingID, &a.TableID, &a.StartAt, &a.EndAt,
			&a.MergeGroupID, &a.AssignedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, a)
	}
	return links, rows.Err()
}
