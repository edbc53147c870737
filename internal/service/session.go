package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tablewise/tablewise/internal/allocator"
	"github.com/tablewise/tablewise/internal/clock"
	"github.com/tablewise/tablewise/internal/metrics"
	"github.com/tablewise/tablewise/internal/model"
	"github.com/tablewise/tablewise/internal/repository"
)

// Check is one entry of the selection validation report. Checks run in
// a fixed priority order so the first failure a client sees is always
// the most fundamental one.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// ProposeRequest is one manual selection attempt against a session.
// SelectionVersion must equal the session's current version and
// ContextVersion must equal the live snapshot fingerprint, otherwise
// the attempt is rejected without side effects.
type ProposeRequest struct {
	BookingID        string
	TableIDs         []string
	ContextVersion   string
	SelectionVersion int
	Hold             bool
	TTL              time.Duration
	ActorID          string
}

// ProposeResult carries the advanced session, the validation report,
// and the hold when one was placed.
type ProposeResult struct {
	Session model.AssignmentSession
	Checks  []Check
	Hold    model.Hold
}

// ConfirmRequest finalizes a session's selection into committed
// assignments.
type ConfirmRequest struct {
	BookingID        string
	SelectionVersion int
	ActorID          string
}

// ConfirmResult carries the confirmed session and the committed links.
type ConfirmResult struct {
	Session     model.AssignmentSession
	Assignments []model.Assignment
}

// SessionService runs the interactive manual assignment flow: open a
// session, propose or hold a selection under optimistic concurrency,
// then confirm it into committed assignments. Every state transition
// is a compare-and-set on the session's selection version, so two
// staff members racing on the same booking cannot both win.
type SessionService struct {
	sessions  SessionStore
	bookings  BookingStore
	planner   *Planner
	holds     *HoldManager
	committer *Committer
	clk       clock.Clock

	// slackBudget caps a manual selection's overage beyond the party
	// size. Manual picks may waste more seats than the generator would,
	// but not unboundedly.
	slackBudget int
}

// NewSessionService wires the session service.
func NewSessionService(sessions SessionStore, bookings BookingStore, planner *Planner, holds *HoldManager, committer *Committer, clk clock.Clock, slackBudget int) *SessionService {
	if slackBudget <= 0 {
		slackBudget = 4
	}
	return &SessionService{
		sessions:    sessions,
		bookings:    bookings,
		planner:     planner,
		holds:       holds,
		committer:   committer,
		clk:         clk,
		slackBudget: slackBudget,
	}
}

// Open returns the booking's session (creating it on first use) and a
// fresh quote so the client starts from a valid context version.
func (s *SessionService) Open(ctx context.Context, bookingID, actorID string) (model.AssignmentSession, Quote, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return model.AssignmentSession{}, Quote{}, err
	}
	session, err := s.sessions.GetOrCreate(ctx, booking.ID, booking.RestaurantID, actorID)
	if err != nil {
		return model.AssignmentSession{}, Quote{}, err
	}
	snap, err := s.planner.Snapshot(ctx, booking)
	if err != nil {
		return session, Quote{}, err
	}
	// Quote with the session's own hold excluded, so the context
	// version handed out here matches the one Propose validates.
	quote, err := s.planner.quoteAgainst(ctx, booking, withoutHold(snap, session.HoldID))
	if err != nil {
		return session, Quote{}, err
	}
	return session, quote, nil
}

// Propose validates the selection against the live snapshot and
// advances the session. With Hold set it also places a hold on the
// selection, atomically replacing any hold the session already owned.
func (s *SessionService) Propose(ctx context.Context, req ProposeRequest) (ProposeResult, error) {
	ids, err := normalizeTableIDs(req.TableIDs)
	if err != nil {
		return ProposeResult{}, err
	}
	if req.ContextVersion == "" {
		return ProposeResult{}, &allocator.InputValidationError{Field: "context_version", Reason: "must not be empty"}
	}
	booking, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return ProposeResult{}, err
	}
	session, err := s.sessions.GetOrCreate(ctx, booking.ID, booking.RestaurantID, req.ActorID)
	if err != nil {
		return ProposeResult{}, err
	}
	if req.SelectionVersion != session.SelectionVersion {
		metrics.SessionConflictsTotal.WithLabelValues("version").Inc()
		return ProposeResult{Session: session}, &allocator.SessionConflictError{
			Code:     "version_mismatch",
			Expected: session.SelectionVersion,
			Provided: req.SelectionVersion,
		}
	}

	snap, err := s.planner.Snapshot(ctx, booking)
	if err != nil {
		return ProposeResult{}, err
	}
	// The session's own hold is part of the snapshot but not of the
	// context the client planned against, so it is excluded before
	// fingerprinting.
	fp := withoutHold(snap, session.HoldID).Fingerprint()
	if req.ContextVersion != fp {
		metrics.SessionConflictsTotal.WithLabelValues("stale_context").Inc()
		return ProposeResult{Session: session}, &allocator.StaleContextError{Expected: fp, Provided: req.ContextVersion}
	}

	checks, checkErr := s.validateSelection(ctx, booking, session, ids, snap)
	if checkErr != nil {
		return ProposeResult{Session: session, Checks: checks}, checkErr
	}

	if !req.Hold {
		advanced, err := s.advance(ctx, session, model.SessionProposed, fp, session.HoldID, ids)
		if err != nil {
			return ProposeResult{Session: session, Checks: checks}, err
		}
		return ProposeResult{Session: advanced, Checks: checks}, nil
	}

	hold, err := s.holds.Place(ctx, HoldRequest{
		RestaurantID:  booking.RestaurantID,
		BookingID:     booking.ID,
		TableIDs:      ids,
		Window:        booking.Window(),
		TTL:           req.TTL,
		ExcludeHoldID: session.HoldID,
		CreatedBy:     req.ActorID,
	})
	if err != nil {
		var conflict *allocator.HoldConflictError
		if errors.As(err, &conflict) {
			// Record the collision on the session; best effort, the
			// conflict error is the authoritative outcome.
			if advanced, advErr := s.advance(ctx, session, model.SessionConflicted, fp, session.HoldID, ids); advErr == nil {
				session = advanced
			}
		}
		return ProposeResult{Session: session, Checks: checks}, err
	}
	advanced, err := s.advance(ctx, session, model.SessionHeld, fp, hold.ID, ids)
	if err != nil {
		return ProposeResult{Session: session, Checks: checks, Hold: hold}, err
	}
	return ProposeResult{Session: advanced, Checks: checks, Hold: hold}, nil
}

// Confirm commits the session's held or proposed selection. The
// snapshot is re-fingerprinted first: if the world changed since the
// selection was validated the confirm is rejected as stale rather than
// risking a commit based on outdated context.
func (s *SessionService) Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	booking, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return ConfirmResult{}, err
	}
	session, err := s.sessions.GetByBooking(ctx, booking.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ConfirmResult{}, &allocator.InputValidationError{Field: "booking_id", Reason: "no assignment session for booking"}
		}
		return ConfirmResult{}, err
	}
	if req.SelectionVersion != session.SelectionVersion {
		metrics.SessionConflictsTotal.WithLabelValues("version").Inc()
		return ConfirmResult{Session: session}, &allocator.SessionConflictError{
			Code:     "version_mismatch",
			Expected: session.SelectionVersion,
			Provided: req.SelectionVersion,
		}
	}
	if session.State != model.SessionHeld && session.State != model.SessionProposed {
		return ConfirmResult{Session: session}, &allocator.SessionConflictError{
			Code:     "state",
			Expected: session.SelectionVersion,
			Provided: req.SelectionVersion,
		}
	}
	if len(session.SelectedTables) == 0 {
		return ConfirmResult{Session: session}, &allocator.InputValidationError{Field: "selection", Reason: "session has no selected tables"}
	}

	snap, err := s.planner.Snapshot(ctx, booking)
	if err != nil {
		return ConfirmResult{}, err
	}
	fp := withoutHold(snap, session.HoldID).Fingerprint()
	if fp != session.ContextVersion {
		metrics.SessionConflictsTotal.WithLabelValues("stale_context").Inc()
		return ConfirmResult{Session: session}, &allocator.StaleContextError{Expected: fp, Provided: session.ContextVersion}
	}

	links, err := s.committer.Commit(ctx, booking.ID, session.SelectedTables, req.ActorID)
	if err != nil {
		return ConfirmResult{Session: session}, err
	}
	// Commit consumed the booking's holds, so the session drops its
	// hold reference as part of the confirm transition.
	advanced, err := s.advance(ctx, session, model.SessionConfirmed, fp, "", session.SelectedTables)
	if err != nil {
		return ConfirmResult{Session: session, Assignments: links}, err
	}
	return ConfirmResult{Session: advanced, Assignments: links}, nil
}

// advance wraps the store's compare-and-set, translating the sentinel
// into the session conflict error clients handle.
func (s *SessionService) advance(ctx context.Context, session model.AssignmentSession, state model.SessionState, contextVersion, holdID string, tables []string) (model.AssignmentSession, error) {
	advanced, err := s.sessions.Advance(ctx, session.ID, session.SelectionVersion, state, contextVersion, holdID, tables)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			metrics.SessionConflictsTotal.WithLabelValues("version").Inc()
			return model.AssignmentSession{}, &allocator.SessionConflictError{
				Code:     "concurrent_update",
				Expected: session.SelectionVersion,
				Provided: session.SelectionVersion,
			}
		}
		return model.AssignmentSession{}, err
	}
	return advanced, nil
}

// validateSelection runs the manual checklist in priority order:
// capacity, slack, zone, movable, adjacency, committed conflicts, live
// holds. The full report is always returned; the error mirrors the
// first failing check.
func (s *SessionService) validateSelection(ctx context.Context, booking model.Booking, session model.AssignmentSession, ids []string, snap allocator.Snapshot) ([]Check, error) {
	byID := map[string]model.Table{}
	for _, t := range snap.Tables {
		byID[t.ID] = t
	}
	selection := make([]model.Table, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, &allocator.InputValidationError{Field: "table_ids", Reason: fmt.Sprintf("unknown or inactive table %s", id)}
		}
		selection = append(selection, t)
	}

	var checks []Check
	var firstErr error
	record := func(name string, ok bool, detail string, failure error) {
		checks = append(checks, Check{Name: name, OK: ok, Detail: detail})
		if !ok && firstErr == nil {
			firstErr = failure
		}
	}

	total := 0
	for _, t := range selection {
		total += t.Capacity
	}
	record("capacity", total >= booking.PartySize,
		fmt.Sprintf("capacity %d for party of %d", total, booking.PartySize),
		&allocator.CapacityError{PartySize: booking.PartySize, Reason: "selection capacity below party size"})

	slack := total - booking.PartySize
	record("slack", slack <= s.slackBudget,
		fmt.Sprintf("overage %d, budget %d", slack, s.slackBudget),
		&allocator.CapacityError{PartySize: booking.PartySize, Reason: fmt.Sprintf("selection wastes %d seats, budget is %d", slack, s.slackBudget)})

	zoneOK, zoneDetail := sameZone(selection, booking.ZoneID)
	record("zone", zoneOK, zoneDetail,
		&allocator.InputValidationError{Field: "table_ids", Reason: zoneDetail})

	movableOK := true
	if len(selection) > 1 {
		for _, t := range selection {
			if t.Mobility != model.MobilityMovable {
				movableOK = false
				break
			}
		}
	}
	record("movable", movableOK, "merged tables must be movable",
		&allocator.InputValidationError{Field: "table_ids", Reason: "merged selections may only contain movable tables"})

	cfg := s.planner.Config()
	adjacencyOK := true
	if len(selection) > 1 && cfg.RequireAdjacency(booking.PartySize) {
		adjacencyOK = snap.Graph.Satisfies(ids, cfg.AdjacencyMode)
	}
	record("adjacency", adjacencyOK, fmt.Sprintf("mode %s", cfg.AdjacencyMode),
		&allocator.InputValidationError{Field: "table_ids", Reason: "selection does not satisfy the adjacency requirement"})

	links, err := s.bookings.ListLinksOverlapping(ctx, booking.RestaurantID, booking.Window())
	if err != nil {
		return checks, err
	}
	busyLinks := map[string]struct{}{}
	for _, l := range links {
		if l.BookingID == booking.ID {
			continue
		}
		if booking.Window().Overlaps(model.Window{StartAt: l.StartAt, EndAt: l.EndAt}) {
			busyLinks[l.TableID] = struct{}{}
		}
	}
	conflicted := conflictedTables(ids, busyLinks)
	record("conflict", len(conflicted) == 0, fmt.Sprintf("committed conflicts: %v", conflicted),
		&allocator.HoldConflictError{TableIDs: conflicted})

	heldBy := map[string]string{}
	for _, h := range snap.LiveHolds(s.clk.Now()) {
		if h.ID == session.HoldID {
			continue
		}
		if !booking.Window().Overlaps(h.Window()) {
			continue
		}
		for _, id := range h.TableIDs {
			heldBy[id] = h.ID
		}
	}
	var heldTables []string
	holdID := ""
	for _, id := range ids {
		if hid, taken := heldBy[id]; taken {
			heldTables = append(heldTables, id)
			holdID = hid
		}
	}
	record("holds", len(heldTables) == 0, fmt.Sprintf("held tables: %v", heldTables),
		&allocator.HoldConflictError{HoldID: holdID, TableIDs: heldTables})

	return checks, firstErr
}

func sameZone(selection []model.Table, requestedZone string) (bool, string) {
	zones := map[string]struct{}{}
	for _, t := range selection {
		zones[t.ZoneID] = struct{}{}
	}
	if len(zones) > 1 {
		return false, "selection spans multiple zones"
	}
	if requestedZone != "" {
		for _, t := range selection {
			if t.ZoneID != requestedZone {
				return false, fmt.Sprintf("booking requested zone %s", requestedZone)
			}
		}
	}
	return true, "single zone"
}

// withoutHold drops one hold from the snapshot so a session's own hold
// does not invalidate its context version.
func withoutHold(snap allocator.Snapshot, holdID string) allocator.Snapshot {
	if holdID == "" {
		return snap
	}
	filtered := make([]model.Hold, 0, len(snap.Holds))
	for _, h := range snap.Holds {
		if h.ID == holdID {
			continue
		}
		filtered = append(filtered, h)
	}
	snap.Holds = filtered
	return snap
}
