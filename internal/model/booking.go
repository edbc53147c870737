package model

import "time"

// Window is a half-open time interval [StartAt, EndAt). All booking
// and hold comparisons in the engine use this type so the overlap
// rule lives in exactly one place.
type Window struct {
    StartAt time.Time
    EndAt   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
// [a, b) and [c, d) overlap iff a < d && c < b.
func (w Window) Overlaps(other Window) bool {
    return w.StartAt.Before(other.EndAt) && other.StartAt.Before(w.EndAt)
}

// IsValid reports whether the window is well formed (start strictly
// before end and neither endpoint zero).
func (w Window) IsValid() bool {
    return !w.StartAt.IsZero() && !w.EndAt.IsZero() && w.StartAt.Before(w.EndAt)
}

// Booking is a confirmed or pending reservation request as stored in
// the `bookings` table. The allocation engine treats bookings as
// read-only context: it never changes a booking's window or party
// size, only which tables are linked to it.
//
// Fields:
//  ID           – primary key (UUID).
//  RestaurantID – restaurant the booking belongs to.
//  BookingDate  – calendar date of the visit (restaurant-local).
//  StartAt      – start of the occupied window (UTC).
//  EndAt        – end of the occupied window (UTC, exclusive).
//  PartySize    – number of covers.
//  ZoneID       – requested seating zone ("" when the guest has no preference).
//  Status       – booking lifecycle state (PENDING, CONFIRMED, CANCELLED, ...).
type Booking struct {
    ID           string    // bookings.id
    RestaurantID string    // bookings.restaurant_id
    BookingDate  string    // bookings.booking_date (YYYY-MM-DD)
    StartAt      time.Time // bookings.start_at
    EndAt        time.Time // bookings.end_at
    PartySize    int       // bookings.party_size
    ZoneID       string    // bookings.zone_id (empty = any zone)
    Status       string    // bookings.status
}

// Window returns the booking's occupied interval.
func (b Booking) Window() Window {
    return Window{StartAt: b.StartAt, EndAt: b.EndAt}
}
