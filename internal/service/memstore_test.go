package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tablewise/tablewise/internal/allocator"
	"github.com/tablewise/tablewise/internal/model"
	"github.com/tablewise/tablewise/internal/repository"
)

// memState is the shared backing store of the in-memory fakes. The
// single mutex mirrors the serialization the MySQL transactions
// provide, so the concurrency tests exercise the same guarantees the
// real repositories give.
type memState struct {
	mu       sync.Mutex
	now      func() time.Time
	tables   []model.Table
	edges    [][2]string
	bookings map[string]model.Booking
	links    []model.Assignment
	holds    map[string]model.Hold
	sessions map[string]model.AssignmentSession // keyed by booking id
}

func newMemState() *memState {
	return &memState{
		now:      time.Now,
		bookings: map[string]model.Booking{},
		holds:    map[string]model.Hold{},
		sessions: map[string]model.AssignmentSession{},
	}
}

type memTables struct{ st *memState }
type memBookings struct{ st *memState }
type memHolds struct{ st *memState }
type memAssignments struct{ st *memState }
type memSessions struct{ st *memState }

func (m *memTables) ListActive(_ context.Context, restaurantID string) ([]model.Table, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []model.Table
	for _, t := range m.st.tables {
		if t.RestaurantID == restaurantID && t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTables) ListAdjacency(_ context.Context, _ string, tableIDs []string) ([][2]string, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	member := map[string]bool{}
	for _, id := range tableIDs {
		member[id] = true
	}
	var out [][2]string
	for _, e := range m.st.edges {
		if member[e[0]] && member[e[1]] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memBookings) GetByID(_ context.Context, bookingID string) (model.Booking, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	b, ok := m.st.bookings[bookingID]
	if !ok {
		return model.Booking{}, repository.ErrNotFound
	}
	return b, nil
}

func (m *memBookings) ListOverlapping(_ context.Context, restaurantID string, window model.Window, excludeBookingID string) ([]model.Booking, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []model.Booking
	for _, b := range m.st.bookings {
		if b.RestaurantID != restaurantID || b.ID == excludeBookingID {
			continue
		}
		if b.Status == "CANCELLED" || b.Status == "NO_SHOW" {
			continue
		}
		if b.Window().Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBookings) ListLinksOverlapping(_ context.Context, restaurantID string, window model.Window) ([]model.Assignment, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []model.Assignment
	for _, l := range m.st.links {
		b, ok := m.st.bookings[l.BookingID]
		if !ok || b.RestaurantID != restaurantID {
			continue
		}
		if window.Overlaps(model.Window{StartAt: l.StartAt, EndAt: l.EndAt}) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memHolds) Create(_ context.Context, hold model.Hold, excludeHoldID string) (model.Hold, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()

	if hold.ID == "" {
		hold.ID = uuid.NewString()
	}
	now := hold.CreatedAt
	requested := map[string]bool{}
	for _, id := range hold.TableIDs {
		requested[id] = true
	}

	for _, h := range m.st.holds {
		if h.ID == excludeHoldID || !h.Live(now) || !h.Window().Overlaps(hold.Window()) {
			continue
		}
		var clash []string
		for _, id := range h.TableIDs {
			if requested[id] {
				clash = append(clash, id)
			}
		}
		if len(clash) > 0 {
			return model.Hold{}, &allocator.HoldConflictError{HoldID: h.ID, TableIDs: clash}
		}
	}
	for _, l := range m.st.links {
		if l.BookingID == hold.BookingID {
			continue
		}
		if requested[l.TableID] && hold.Window().Overlaps(model.Window{StartAt: l.StartAt, EndAt: l.EndAt}) {
			return model.Hold{}, &allocator.HoldConflictError{TableIDs: []string{l.TableID}}
		}
	}

	delete(m.st.holds, excludeHoldID)
	m.st.holds[hold.ID] = hold
	return hold, nil
}

func (m *memHolds) Release(_ context.Context, holdID string) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	delete(m.st.holds, holdID)
	return nil
}

func (m *memHolds) GetByID(_ context.Context, holdID string) (model.Hold, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	h, ok := m.st.holds[holdID]
	if !ok {
		return model.Hold{}, repository.ErrNotFound
	}
	return h, nil
}

func (m *memHolds) ListLiveOverlapping(_ context.Context, restaurantID string, window model.Window, now time.Time) ([]model.Hold, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []model.Hold
	for _, h := range m.st.holds {
		if h.RestaurantID == restaurantID && h.Live(now) && h.Window().Overlaps(window) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memHolds) SweepExpired(_ context.Context, now time.Time, limit int) (int, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	removed := 0
	for id, h := range m.st.holds {
		if removed >= limit {
			break
		}
		if !h.Live(now) {
			delete(m.st.holds, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memAssignments) Commit(_ context.Context, bookingID string, tableIDs []string, window model.Window, assignedBy string) ([]model.Assignment, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()

	requested := map[string]bool{}
	for _, id := range tableIDs {
		requested[id] = true
	}
	var conflicting []string
	existing := map[string]bool{}
	for _, l := range m.st.links {
		if !requested[l.TableID] {
			continue
		}
		if l.BookingID == bookingID {
			existing[l.TableID] = true
			continue
		}
		if window.Overlaps(model.Window{StartAt: l.StartAt, EndAt: l.EndAt}) {
			conflicting = append(conflicting, l.TableID)
		}
	}
	if len(conflicting) > 0 {
		return nil, &allocator.CommitConflictError{BookingID: bookingID, TableIDs: conflicting}
	}

	// Other bookings' live holds block the commit; the booking's own
	// holds are consumed below instead.
	now := m.st.now()
	for _, h := range m.st.holds {
		if (h.BookingID != "" && h.BookingID == bookingID) || !h.Live(now) || !h.Window().Overlaps(window) {
			continue
		}
		var held []string
		for _, tid := range h.TableIDs {
			if requested[tid] {
				held = append(held, tid)
			}
		}
		if len(held) > 0 {
			return nil, &allocator.CommitConflictError{BookingID: bookingID, TableIDs: held}
		}
	}

	mergeGroupID := ""
	if len(tableIDs) > 1 {
		mergeGroupID = uuid.NewString()
	}
	out := make([]model.Assignment, 0, len(tableIDs))
	for _, id := range tableIDs {
		a := model.Assignment{
			BookingID:    bookingID,
			TableID:      id,
			StartAt:      window.StartAt,
			EndAt:        window.EndAt,
			MergeGroupID: mergeGroupID,
			AssignedBy:   assignedBy,
		}
		if !existing[id] {
			m.st.links = append(m.st.links, a)
		}
		out = append(out, a)
	}

	// Consume the booking's holds covering the committed tables.
	for id, h := range m.st.holds {
		if h.BookingID != bookingID {
			continue
		}
		for _, tid := range h.TableIDs {
			if requested[tid] {
				delete(m.st.holds, id)
				break
			}
		}
	}
	return out, nil
}

func (m *memAssignments) Release(_ context.Context, bookingID string, tableIDs []string) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range tableIDs {
		drop[id] = true
	}
	kept := m.st.links[:0]
	for _, l := range m.st.links {
		if l.BookingID == bookingID && drop[l.TableID] {
			continue
		}
		kept = append(kept, l)
	}
	m.st.links = kept
	return nil
}

func (m *memAssignments) ListByBooking(_ context.Context, bookingID string) ([]model.Assignment, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []model.Assignment
	for _, l := range m.st.links {
		if l.BookingID == bookingID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memSessions) GetOrCreate(_ context.Context, bookingID, restaurantID, createdBy string) (model.AssignmentSession, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if s, ok := m.st.sessions[bookingID]; ok {
		return s, nil
	}
	s := model.AssignmentSession{
		ID:           uuid.NewString(),
		BookingID:    bookingID,
		RestaurantID: restaurantID,
		State:        model.SessionActive,
		CreatedBy:    createdBy,
	}
	m.st.sessions[bookingID] = s
	return s, nil
}

func (m *memSessions) GetByBooking(_ context.Context, bookingID string) (model.AssignmentSession, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	s, ok := m.st.sessions[bookingID]
	if !ok {
		return model.AssignmentSession{}, repository.ErrNotFound
	}
	return s, nil
}

func (m *memSessions) Advance(_ context.Context, sessionID string, expectedVersion int, state model.SessionState, contextVersion, holdID string, selectedTables []string) (model.AssignmentSession, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	for bookingID, s := range m.st.sessions {
		if s.ID != sessionID {
			continue
		}
		if s.SelectionVersion != expectedVersion {
			return model.AssignmentSession{}, repository.ErrVersionConflict
		}
		s.State = state
		s.ContextVersion = contextVersion
		s.HoldID = holdID
		s.SelectedTables = append([]string(nil), selectedTables...)
		s.SelectionVersion++
		m.st.sessions[bookingID] = s
		return s, nil
	}
	return model.AssignmentSession{}, repository.ErrNotFound
}
