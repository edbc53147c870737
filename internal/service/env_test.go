package service

import (
	"time"

	"github.com/tablewise/tablewise/internal/allocator"
	"github.com/tablewise/tablewise/internal/clock"
	"github.com/tablewise/tablewise/internal/model"
)

// testEnv wires the full service stack over the in-memory fakes: a
// four-table dining room with a chain adjacency A-B-C-D and one
// confirmed booking for a party of four at 19:00.
type testEnv struct {
	st        *memState
	clk       *clock.Fixed
	planner   *Planner
	holds     *HoldManager
	committer *Committer
	sessions  *SessionService
	orch      *Orchestrator
}

const testRestaurant = "r1"

func testTable(id string, capacity int, mobility model.Mobility) model.Table {
	return model.Table{
		ID:           id,
		RestaurantID: testRestaurant,
		TableNumber:  id,
		Capacity:     capacity,
		ZoneID:       "main",
		Mobility:     mobility,
		IsActive:     true,
	}
}

func testBooking(id string, partySize int, startHour, endHour int) model.Booking {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	return model.Booking{
		ID:           id,
		RestaurantID: testRestaurant,
		BookingDate:  "2026-03-14",
		StartAt:      day.Add(time.Duration(startHour) * time.Hour),
		EndAt:        day.Add(time.Duration(endHour) * time.Hour),
		PartySize:    partySize,
		Status:       "CONFIRMED",
	}
}

func defaultAllocConfig() allocator.Config {
	return allocator.Config{
		AdjacencyMode:         allocator.ModeConnected,
		KMax:                  3,
		AdjacencyRequired:     true,
		AdjacencyMinPartySize: 2,
		MaxOverage:            2,
		MaxCombinationEvals:   500,
	}
}

func newTestEnv() *testEnv {
	st := newMemState()
	st.tables = []model.Table{
		testTable("A", 2, model.MobilityMovable),
		testTable("B", 2, model.MobilityMovable),
		testTable("C", 4, model.MobilityMovable),
		testTable("D", 6, model.MobilityMovable),
	}
	st.edges = [][2]string{{"A", "B"}, {"B", "C"}, {"C", "D"}}
	b := testBooking("b1", 4, 19, 21)
	st.bookings[b.ID] = b

	clk := &clock.Fixed{Instant: time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)}
	st.now = clk.Now

	tables := &memTables{st: st}
	bookings := &memBookings{st: st}
	holdsStore := &memHolds{st: st}
	assignments := &memAssignments{st: st}
	sessionsStore := &memSessions{st: st}

	planner := NewPlanner(tables, bookings, holdsStore, clk, defaultAllocConfig())
	holds := NewHoldManager(holdsStore, nil, clk, HoldConfig{
		MinTTL:          30 * time.Second,
		MaxTTL:          10 * time.Minute,
		DefaultTTL:      3 * time.Minute,
		RateLimitMax:    10,
		RateLimitWindow: time.Minute,
	}, defaultAllocConfig())
	committer := NewCommitter(assignments, bookings)
	sessions := NewSessionService(sessionsStore, bookings, planner, holds, committer, clk, 4)
	orch := NewOrchestrator(planner, committer, bookings, nil, clk, OrchestratorConfig{
		RetryDelays:   []time.Duration{0, 0, 0},
		SearchTimeout: 3 * time.Second,
	})

	return &testEnv{
		st:        st,
		clk:       clk,
		planner:   planner,
		holds:     holds,
		committer: committer,
		sessions:  sessions,
		orch:      orch,
	}
}
