package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tablewise/tablewise/internal/allocator"
	"github.com/tablewise/tablewise/internal/model"
)

// HoldRepo provides data access to table holds. Hold creation is the
// first of the engine's two atomic write primitives: the conflict
// check against live holds and committed assignments runs in the same
// transaction as the insert, so two racing proposals for overlapping
// table sets can never both succeed. Expiry is passive — a hold whose
// expires_at has passed simply stops counting as a conflict.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

// Create inserts a hold for the table set and window after verifying,
// inside one transaction, that no live hold (other than excludeHoldID)
// and no committed assignment occupies any of the tables for an
// overlapping window. Returns *allocator.HoldConflictError on conflict.
func (r *HoldRepo) Create(ctx context.Context, hold model.Hold, excludeHoldID string) (model.Hold, error) {
	if hold.ID == "" {
		hold.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	hold.CreatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Hold{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := checkConflictsTx(ctx, tx, hold.BookingID, hold.TableIDs, hold.Window(), excludeHoldID, now); err != nil {
		return model.Hold{}, err
	}

	const insertHold = `INSERT INTO table_holds
        (id, restaurant_id, booking_id, start_at, end_at, expires_at, created_by, created_at)
        VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, NULLIF(?, ''), ?)`
	if _, err := tx.ExecContext(ctx, insertHold, hold.ID, hold.RestaurantID, hold.BookingID,
		hold.StartAt, hold.EndAt, hold.ExpiresAt, hold.CreatedBy, hold.CreatedAt); err != nil {
		return model.Hold{}, err
	}
	const insertMember = `INSERT INTO table_hold_members (hold_id, table_id) VALUES (?, ?)`
	for _, tableID := range hold.TableIDs {
		if _, err := tx.ExecContext(ctx, insertMember, hold.ID, tableID); err != nil {
			return model.Hold{}, err
		}
	}

	// Replacing one's own hold: the exclusion only makes sense if the
	// old hold stops existing once the new one is in place.
	if excludeHoldID != "" {
		if err := deleteHoldTx(ctx, tx, excludeHoldID); err != nil {
			return model.Hold{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Hold{}, err
	}
	committed = true
	return hold, nil
}

// checkConflictsTx locks and inspects live holds and committed links
// that intersect the requested tables and window. Used by hold
// creation; the assignment committer runs the live-hold half through
// liveHoldConflictsTx with its own booking excluded.
func checkConflictsTx(ctx context.Context, tx *sql.Tx, bookingID string, tableIDs []string, window model.Window, excludeHoldID string, now time.Time) error {
	conflictID, conflictTables, err := liveHoldConflictsTx(ctx, tx, tableIDs, window, now, excludeHoldID, "")
	if err != nil {
		return err
	}
	if conflictID != "" {
		return &allocator.HoldConflictError{HoldID: conflictID, TableIDs: conflictTables}
	}

	linkQ := `SELECT l.table_id FROM booking_table_links l
        WHERE l.table_id IN (` + placeholders(len(tableIDs)) + `)
        AND l.start_at < ? AND l.end_at > ? AND l.booking_id <> ? FOR UPDATE`
	linkArgs := make([]any, 0, len(tableIDs)+3)
	for _, id := range tableIDs {
		linkArgs = append(linkArgs, id)
	}
	linkArgs = append(linkArgs, window.EndAt, window.StartAt, bookingID)

	linkRows, err := tx.QueryContext(ctx, linkQ, linkArgs...)
	if err != nil {
		return err
	}
	var assignedTables []string
	for linkRows.Next() {
		var tableID string
		if err := linkRows.Scan(&tableID); err != nil {
			linkRows.Close()
			return err
		}
		assignedTables = append(assignedTables, tableID)
	}
	linkRows.Close()
	if err := linkRows.Err(); err != nil {
		return err
	}
	if len(assignedTables) > 0 {
		return &allocator.HoldConflictError{TableIDs: assignedTables}
	}
	return nil
}

// liveHoldConflictsTx locks the live holds that intersect the requested
// tables and window, returning the first offending hold id and the
// clashing tables. excludeHoldID skips one specific hold (a caller
// replacing its own); excludeBookingID skips every hold that booking
// owns (a commit consumes its own holds, it does not violate them).
func liveHoldConflictsTx(ctx context.Context, tx *sql.Tx, tableIDs []string, window model.Window, now time.Time, excludeHoldID, excludeBookingID string) (string, []string, error) {
	q := `SELECT h.id, m.table_id FROM table_holds h
        JOIN table_hold_members m ON m.hold_id = h.id
        WHERE h.expires_at > ? AND h.start_at < ? AND h.end_at > ?
        AND m.table_id IN (` + placeholders(len(tableIDs)) + `)`
	args := []any{now, window.EndAt, window.StartAt}
	for _, id := range tableIDs {
		args = append(args, id)
	}
	if excludeHoldID != "" {
		q += ` AND h.id <> ?`
		args = append(args, excludeHoldID)
	}
	if excludeBookingID != "" {
		q += ` AND (h.booking_id IS NULL OR h.booking_id <> ?)`
		args = append(args, excludeBookingID)
	}
	q += ` FOR UPDATE`

	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return "", nil, err
	}
	conflictID := ""
	var conflictTables []string
	for rows.Next() {
		var holdID, tableID string
		if err := rows.Scan(&holdID, &tableID); err != nil {
			rows.Close()
			return "", nil, err
		}
		if conflictID == "" {
			conflictID = holdID
		}
		conflictTables = append(conflictTables, tableID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", nil, err
	}
	return conflictID, conflictTables, nil
}

func deleteHoldTx(ctx context.Context, tx *sql.Tx, holdID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM table_hold_members WHERE hold_id = ?`, holdID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM table_holds WHERE id = ?`, holdID)
	return err
}

// Release deletes a hold and its members. Idempotent: releasing an
// already-released or expired hold is not an error.
func (r *HoldRepo) Release(ctx context.Context, holdID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := deleteHoldTx(ctx, tx, holdID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetByID loads one hold with its member tables.
func (r *HoldRepo) GetByID(ctx context.Context, holdID string) (model.Hold, error) {
	const q = `SELECT id, restaurant_id, COALESCE(booking_id, ''), start_at, end_at, expires_at,
        COALESCE(created_by, ''), created_at FROM table_holds WHERE id = ?`
	var h model.Hold
	err := r.db.QueryRowContext(ctx, q, holdID).Scan(&h.ID, &h.RestaurantID, &h.BookingID,
		&h.StartAt, &h.EndAt, &h.ExpiresAt, &h.CreatedBy, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Hold{}, ErrNotFound
	}
	if err != nil {
		return model.Hold{}, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT table_id FROM table_hold_members WHERE hold_id = ? ORDER BY table_id`, holdID)
	if err != nil {
		return model.Hold{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return model.Hold{}, err
		}
		h.TableIDs = append(h.TableIDs, id)
	}
	return h, rows.Err()
}

// ListLiveOverlapping returns the restaurant's live holds whose
// protected windows overlap the given interval.
func (r *HoldRepo) ListLiveOverlapping(ctx context.Context, restaurantID string, window model.Window, now time.Time) ([]model.Hold, error) {
	const q = `SELECT h.id, h.restaurant_id, COALESCE(h.booking_id, ''), h.start_at, h.end_at,
        h.expires_at, COALESCE(h.created_by, ''), h.created_at, m.table_id
        FROM table_holds h JOIN table_hold_members m ON m.hold_id = h.id
        WHERE h.restaurant_id = ? AND h.expires_at > ? AND h.start_at < ? AND h.end_at > ?
        ORDER BY h.id, m.table_id`
	rows, err := r.db.QueryContext(ctx, q, restaurantID, now, window.EndAt, window.StartAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []model.Hold
	index := map[string]int{}
	for rows.Next() {
		var h model.Hold
		var tableID string
		if err := rows.Scan(&h.ID, &h.RestaurantID, &h.BookingID, &h.StartAt, &h.EndAt,
			&h.ExpiresAt, &h.CreatedBy, &h.CreatedAt, &tableID); err != nil {
			return nil, err
		}
		if i, ok := index[h.ID]; ok {
			holds[i].TableIDs = append(holds[i].TableIDs, tableID)
			continue
		}
		h.TableIDs = []string{tableID}
		index[h.ID] = len(holds)
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

// SweepExpired deletes up to limit holds whose expiry has passed.
// Correctness never depends on this running; it is storage hygiene.
func (r *HoldRepo) SweepExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM table_holds WHERE expires_at <= ? ORDER BY expires_at LIMIT ?`, now, limit)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := r.Release(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
