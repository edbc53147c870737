package handler

import (
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/tablewise/tablewise/internal/allocator"
    "github.com/tablewise/tablewise/internal/middleware"
    "github.com/tablewise/tablewise/internal/model"
    "github.com/tablewise/tablewise/internal/service"
)

// AllocationHandler groups the services behind the staff-facing
// allocation endpoints: availability quotes, the interactive manual
// session, and the unattended auto-assign path.  All methods assume
// JWT authentication and role validation already ran in middleware.
type AllocationHandler struct {
    Sessions     *service.SessionService
    Holds        *service.HoldManager
    Committer    *service.Committer
    Orchestrator *service.Orchestrator
}

// NewAllocationHandler constructs the handler.  All dependencies must
// be non-nil.
func NewAllocationHandler(sessions *service.SessionService, holds *service.HoldManager, committer *service.Committer, orchestrator *service.Orchestrator) *AllocationHandler {
    if sessions == nil || holds == nil || committer == nil || orchestrator == nil {
        panic("nil service passed to NewAllocationHandler")
    }
    return &AllocationHandler{Sessions: sessions, Holds: holds, Committer: committer, Orchestrator: orchestrator}
}

// Quote handles GET /v1/bookings/:id/quote.  It opens (or resumes) the
// booking's assignment session and returns the ranked candidate plans
// with the context version the client must echo back on selection.
func (h *AllocationHandler) Quote(c echo.Context) error {
    bookingID := c.Param("id")
    if bookingID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    session, quote, err := h.Sessions.Open(c.Request().Context(), bookingID, middleware.ActorID(c))
    if err != nil {
        return writeAllocError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "booking_id":      quote.Booking.ID,
        "party_size":      quote.Booking.PartySize,
        "session":         sessionPayload(session),
        "context_version": quote.ContextVersion,
        "top":             planPayload(quote.Top),
        "alternates":      plansPayload(quote.Plans),
        "diagnostics":     quote.Diagnostics,
    })
}

// Select handles POST /v1/bookings/:id/selection.  The body carries
// the staff member's table selection plus the optimistic-concurrency
// tokens; with "hold" set the selection is also protected by a TTL
// hold.  The validation report is returned even when a check fails so
// the client can show which rule was violated.
func (h *AllocationHandler) Select(c echo.Context) error {
    bookingID := c.Param("id")
    if bookingID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    var body struct {
        TableIDs         []string `json:"table_ids"`
        ContextVersion   string   `json:"context_version"`
        SelectionVersion int      `json:"selection_version"`
        Hold             bool     `json:"hold"`
        TTLSeconds       int      `json:"ttl_seconds"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    res, err := h.Sessions.Propose(c.Request().Context(), service.ProposeRequest{
        BookingID:        bookingID,
        TableIDs:         body.TableIDs,
        ContextVersion:   body.ContextVersion,
        SelectionVersion: body.SelectionVersion,
        Hold:             body.Hold,
        TTL:              time.Duration(body.TTLSeconds) * time.Second,
        ActorID:          middleware.ActorID(c),
    })
    if err != nil {
        // A rejection that came with a report is a checklist failure;
        // return the full report so the client can show which rule was
        // violated instead of just a status code.
        if len(res.Checks) > 0 {
            status := http.StatusConflict
            var capErr *allocator.CapacityError
            var invalid *allocator.InputValidationError
            if errors.As(err, &capErr) {
                status = http.StatusUnprocessableEntity
            } else if errors.As(err, &invalid) {
                status = http.StatusBadRequest
            }
            return c.JSON(status, echo.Map{
                "error":   "selection_rejected",
                "message": err.Error(),
                "checks":  res.Checks,
                "session": sessionPayload(res.Session),
            })
        }
        return writeAllocError(c, err)
    }
    payload := echo.Map{
        "session": sessionPayload(res.Session),
        "checks":  res.Checks,
    }
    if res.Hold.ID != "" {
        payload["hold"] = holdPayload(res.Hold)
    }
    return c.JSON(http.StatusOK, payload)
}

// Assign handles POST /v1/bookings/:id/assign.  It commits the
// session's held or proposed selection into table links.
func (h *AllocationHandler) Assign(c echo.Context) error {
    bookingID := c.Param("id")
    if bookingID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    var body struct {
        SelectionVersion int `json:"selection_version"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    res, err := h.Sessions.Confirm(c.Request().Context(), service.ConfirmRequest{
        BookingID:        bookingID,
        SelectionVersion: body.SelectionVersion,
        ActorID:          middleware.ActorID(c),
    })
    if err != nil {
        return writeAllocError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "session":     sessionPayload(res.Session),
        "assignments": assignmentsPayload(res.Assignments),
    })
}

// AutoAssign handles POST /v1/bookings/:id/auto-assign.  The optional
// "trigger" query parameter records what initiated the run (defaults
// to "manual"); it feeds telemetry and the result cache key.
func (h *AllocationHandler) AutoAssign(c echo.Context) error {
    bookingID := c.Param("id")
    if bookingID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    trigger := c.QueryParam("trigger")
    if trigger == "" {
        trigger = "manual"
    }
    res, err := h.Orchestrator.AutoAssign(c.Request().Context(), bookingID, trigger)
    if err != nil && !res.Success {
        return writeAllocError(c, err)
    }
    return c.JSON(http.StatusOK, res)
}

// ReleaseAssignment handles DELETE /v1/bookings/:id/assignment.  An
// optional body may narrow the release to specific tables; with no
// body every link the booking holds is removed atomically.
func (h *AllocationHandler) ReleaseAssignment(c echo.Context) error {
    bookingID := c.Param("id")
    if bookingID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    var body struct {
        TableIDs []string `json:"table_ids"`
    }
    _ = c.Bind(&body) // empty body is fine
    if err := h.Committer.Release(c.Request().Context(), bookingID, body.TableIDs); err != nil {
        return writeAllocError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// ReleaseHold handles DELETE /v1/holds/:id.  Releasing an unknown or
// expired hold succeeds, so the operation is safe to retry.
func (h *AllocationHandler) ReleaseHold(c echo.Context) error {
    holdID := c.Param("id")
    if err := h.Holds.Release(c.Request().Context(), holdID); err != nil {
        return writeAllocError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// SweepHolds handles POST /v1/holds/sweep.  It deletes a bounded batch
// of expired holds and reports how many rows were removed.  Intended
// for a cron-style caller; expiry is already passive for correctness.
func (h *AllocationHandler) SweepHolds(c echo.Context) error {
    var body struct {
        Limit int `json:"limit"`
    }
    _ = c.Bind(&body)
    removed, err := h.Holds.Sweep(c.Request().Context(), body.Limit)
    if err != nil {
        return writeAllocError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"removed": removed})
}

func sessionPayload(s model.AssignmentSession) echo.Map {
    return echo.Map{
        "id":                s.ID,
        "booking_id":        s.BookingID,
        "state":             s.State,
        "selection_version": s.SelectionVersion,
        "context_version":   s.ContextVersion,
        "hold_id":           s.HoldID,
        "selected_tables":   s.SelectedTables,
    }
}

func planPayload(p allocator.Plan) echo.Map {
    return echo.Map{
        "table_ids":         p.TableIDs,
        "total_capacity":    p.TotalCapacity,
        "overage":           p.Overage,
        "table_count":       p.TableCount,
        "same_zone":         p.SameZone,
        "lookahead_penalty": p.LookaheadPenalty,
    }
}

func plansPayload(plans []allocator.Plan) []echo.Map {
    out := make([]echo.Map, 0, len(plans))
    for _, p := range plans {
        out = append(out, planPayload(p))
    }
    return out
}

func holdPayload(h model.Hold) echo.Map {
    return echo.Map{
        "id":         h.ID,
        "table_ids":  h.TableIDs,
        "expires_at": h.ExpiresAt,
    }
}

func assignmentsPayload(links []model.Assignment) []echo.Map {
    out := make([]echo.Map, 0, len(links))
    for _, l := range links {
        out = append(out, echo.Map{
            "table_id":       l.TableID,
            "merge_group_id": l.MergeGroupID,
            "start_at":       l.StartAt,
            "end_at":         l.EndAt,
        })
    }
    return out
}
