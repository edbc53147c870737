package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tablewise/tablewise/internal/model"
)

// BookingRepo provides read access to bookings and their committed
// table links. The allocation engine never mutates bookings directly;
// it only reads them as conflict context and writes links through the
// assignment repository.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// GetByID loads one booking. Returns ErrNotFound when it does not exist.
func (r *BookingRepo) GetByID(ctx context.Context, bookingID string) (model.Booking, error) {
	const q = `SELECT id, restaurant_id, booking_date, start_at, end_at, party_size,
        COALESCE(zone_id, ''), status FROM bookings WHERE id = ?`
	var b model.Booking
	err := r.db.QueryRowContext(ctx, q, bookingID).Scan(&b.ID, &b.RestaurantID, &b.BookingDate,
		&b.StartAt, &b.EndAt, &b.PartySize, &b.ZoneID, &b.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	return b, err
}

// ListOverlapping returns the restaurant's non-cancelled bookings whose
// windows overlap the given half-open interval, excluding the booking
// an allocation decision is being made for.
func (r *BookingRepo) ListOverlapping(ctx context.Context, restaurantID string, window model.Window, excludeBookingID string) ([]model.Booking, error) {
	const q = `SELECT id, restaurant_id, booking_date, start_at, end_at, party_size,
        COALESCE(zone_id, ''), status FROM bookings
        WHERE restaurant_id = ? AND status NOT IN ('CANCELLED', 'NO_SHOW')
        AND start_at < ? AND end_at > ? AND id <> ? ORDER BY start_at, id`
	rows, err := r.db.QueryContext(ctx, q, restaurantID, window.EndAt, window.StartAt, excludeBookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.RestaurantID, &b.BookingDate, &b.StartAt, &b.EndAt,
			&b.PartySize, &b.ZoneID, &b.Status); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// ListLinksOverlapping returns committed table links of the restaurant
// that overlap the window. The result is the "already taken" set the
// candidate generator subtracts from the inventory.
func (r *BookingRepo) ListLinksOverlapping(ctx context.Context, restaurantID string, window model.Window) ([]model.Assignment, error) {
	const q = `SELECT l.booking_id, l.table_id, l.start_at, l.end_at,
        COALESCE(l.merge_group_id, ''), COALESCE(l.assigned_by, ''), l.created_at
        FROM booking_table_links l
        JOIN bookings b ON b.id = l.booking_id
        WHERE b.restaurant_id = ? AND l.start_at < ? AND l.end_at > ?
        ORDER BY l.table_id, l.booking_id`
	rows, err := r.db.QueryContext(ctx, q, restaurantID, window.EndAt, window.StartAt)
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
