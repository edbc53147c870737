package service

import (
	"context"
	"sort"
	"time"

	"github.com/tablewise/tablewise/internal/allocator"
	"github.com/tablewise/tablewise/internal/clock"
	"github.com/tablewise/tablewise/internal/metrics"
	"github.com/tablewise/tablewise/internal/model"
)

// Planner assembles the allocation snapshot for a booking and runs
// candidate generation plus scoring against it. It is the shared read
// path of quotes, manual sessions and the auto-assign orchestrator.
type Planner struct {
	tables   TableStore
	bookings BookingStore
	holds    HoldStore
	clk      clock.Clock
	cfg      allocator.Config
}

// NewPlanner wires the planner with its stores and policy.
func NewPlanner(tables TableStore, bookings BookingStore, holds HoldStore, clk clock.Clock, cfg allocator.Config) *Planner {
	return &Planner{tables: tables, bookings: bookings, holds: holds, clk: clk, cfg: cfg}
}

// Quote is the result of one planning run: the ranked candidate plans,
// the snapshot fingerprint they were computed against, and the search
// diagnostics.
type Quote struct {
	Booking        model.Booking
	Plans          []allocator.Plan
	Top            allocator.Plan
	ContextVersion string
	Diagnostics    allocator.Diagnostics
}

// Config exposes the planner's allocation policy to the session layer.
func (p *Planner) Config() allocator.Config { return p.cfg }

// Snapshot loads the booking's read set: the restaurant's active
// inventory, the merge graph over it, and every live hold and
// committed link overlapping the booking's window. The snapshot's
// fingerprint is the contextVersion handed to clients.
func (p *Planner) Snapshot(ctx context.Context, booking model.Booking) (allocator.Snapshot, error) {
	tables, err := p.tables.ListActive(ctx, booking.RestaurantID)
	if err != nil {
		return allocator.Snapshot{}, err
	}
	ids := make([]string, 0, len(tables))
	for _, t := range tables {
		ids = append(ids, t.ID)
	}
	edges, err := p.tables.ListAdjacency(ctx, booking.RestaurantID, ids)
	if err != nil {
		return allocator.Snapshot{}, err
	}
	now := p.clk.Now()
	holds, err := p.holds.ListLiveOverlapping(ctx, booking.RestaurantID, booking.Window(), now)
	if err != nil {
		return allocator.Snapshot{}, err
	}
	others, err := p.bookings.ListOverlapping(ctx, booking.RestaurantID, booking.Window(), booking.ID)
	if err != nil {
		return allocator.Snapshot{}, err
	}
	return allocator.Snapshot{
		Tables:   tables,
		Graph:    allocator.NewGraph(edges),
		Holds:    holds,
		Bookings: others,
	}, nil
}

// QuoteBooking loads the booking, builds its snapshot and returns the
// ranked plans over the tables still free in its window. A booking
// with no feasible plan yields a CapacityError; callers that want
// "empty alternates" semantics inspect the error type.
func (p *Planner) QuoteBooking(ctx context.Context, bookingID string) (Quote, error) {
	booking, err := p.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return Quote{}, err
	}
	if !booking.Window().IsValid() {
		return Quote{}, &allocator.InputValidationError{Field: "window", Reason: "booking window is not well formed"}
	}
	if booking.Status == "CANCELLED" || booking.Status == "NO_SHOW" {
		return Quote{}, &allocator.InputValidationError{Field: "status", Reason: "booking is not assignable"}
	}

	snap, err := p.Snapshot(ctx, booking)
	if err != nil {
		return Quote{}, err
	}
	return p.quoteAgainst(ctx, booking, snap)
}

// quoteAgainst runs generation and scoring against an already loaded
// snapshot, so the session layer can reuse the snapshot it validated
// staleness with.
func (p *Planner) quoteAgainst(ctx context.Context, booking model.Booking, snap allocator.Snapshot) (Quote, error) {
	start := p.clk.Now()

	links, err := p.bookings.ListLinksOverlapping(ctx, booking.RestaurantID, booking.Window())
	if err != nil {
		return Quote{}, err
	}
	busy := busyTables(booking, snap, links, p.clk.Now())

	free := make([]model.Table, 0, len(snap.Tables))
	for _, t := range snap.Tables {
		if _, taken := busy[t.ID]; !taken {
			free = append(free, t)
		}
	}

	req := allocator.Request{
		PartySize: booking.PartySize,
		Zone:      booking.ZoneID,
		Tables:    free,
		Graph:     snap.Graph,
	}
	plans, diag, err := allocator.Generate(req, p.cfg)
	if err != nil {
		return Quote{}, err
	}
	ranked, err := allocator.Score(plans, booking.PartySize, p.cfg)
	metrics.SearchDuration.Observe(p.clk.Now().Sub(start).Seconds())
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Booking:        booking,
		Plans:          ranked.Plans,
		Top:            ranked.Top,
		ContextVersion: snap.Fingerprint(),
		Diagnostics:    diag,
	}, nil
}

// busyTables collects the table ids unavailable for the booking:
// tables linked to another overlapping booking plus tables covered by
// another booking's live hold. The booking's own links and holds do
// not block it, which keeps re-quoting and re-holding idempotent.
func busyTables(booking model.Booking, snap allocator.Snapshot, links []model.Assignment, now time.Time) map[string]struct{} {
	busy := map[string]struct{}{}
	for _, l := range links {
		if l.BookingID == booking.ID {
			continue
		}
		if booking.Window().Overlaps(model.Window{StartAt: l.StartAt, EndAt: l.EndAt}) {
			busy[l.TableID] = struct{}{}
		}
	}
	for _, h := range snap.LiveHolds(now) {
		if h.BookingID != "" && h.BookingID == booking.ID {
			continue
		}
		if !booking.Window().Overlaps(h.Window()) {
			continue
		}
		for _, id := range h.TableIDs {
			busy[id] = struct{}{}
		}
	}
	return busy
}

// conflictedTables filters the requested table ids down to the busy
// ones, sorted for stable error payloads.
func conflictedTables(requested []string, busy map[string]struct{}) []string {
	var out []string
	for _, id := range requested {
		if _, taken := busy[id]; taken {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
