package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/tablewise/tablewise/internal/allocator"
    "github.com/tablewise/tablewise/internal/repository"
)

// writeAllocError maps the engine's typed errors onto HTTP statuses.
// Validation problems are the caller's fault (400), infeasible
// requests are 422, every optimistic-concurrency rejection is 409 so
// clients refresh and retry, and rate limiting is 429.
func writeAllocError(c echo.Context, err error) error {
    var (
        invalid  *allocator.InputValidationError
        capacity *allocator.CapacityError
        holdConf *allocator.HoldConflictError
        rate     *allocator.RateLimitError
        stale    *allocator.StaleContextError
        session  *allocator.SessionConflictError
        commit   *allocator.CommitConflictError
    )
    switch {
    case errors.As(err, &invalid):
        return c.JSON(http.StatusBadRequest, echo.Map{
            "error": "invalid_request", "field": invalid.Field, "message": invalid.Reason,
        })
    case errors.Is(err, repository.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
    case errors.As(err, &capacity):
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{
            "error": "no_capacity", "party_size": capacity.PartySize, "message": capacity.Reason,
        })
    case errors.As(err, &stale):
        return c.JSON(http.StatusConflict, echo.Map{
            "error": "stale_context", "expected": stale.Expected, "provided": stale.Provided,
        })
    case errors.As(err, &session):
        return c.JSON(http.StatusConflict, echo.Map{
            "error": "session_conflict", "code": session.Code,
            "expected_version": session.Expected, "provided_version": session.Provided,
        })
    case errors.As(err, &holdConf):
        return c.JSON(http.StatusConflict, echo.Map{
            "error": "hold_conflict", "hold_id": holdConf.HoldID, "table_ids": holdConf.TableIDs,
        })
    case errors.As(err, &commit):
        return c.JSON(http.StatusConflict, echo.Map{
            "error": "commit_conflict", "table_ids": commit.TableIDs,
        })
    case errors.As(err, &rate):
        return c.JSON(http.StatusTooManyRequests, echo.Map{
            "error": "rate_limited", "limit": rate.Limit, "window": rate.Window.String(),
        })
    default:
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }
}
