package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tablewise/tablewise/internal/handler"
	"github.com/tablewise/tablewise/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance: the health check used by load balancers
// and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAllocation registers the staff-facing allocation endpoints
// under /v1.  Every route requires a valid staff JWT; destructive
// operations additionally require the manager role.  The rate limiter
// runs after JWTAuth so it can key on the authenticated actor.
func RegisterAllocation(e *echo.Echo, a *handler.AllocationHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	// Quote, selection and assignment are day-to-day host work.
	staff := e.Group("/v1")
	staff.Use(middleware.JWTAuth(jwtSecret))
	staff.Use(middleware.RequireRole("HOST", "MANAGER"))
	staff.Use(limit)

	// Ranked candidate plans plus the context version for the booking.
	staff.GET("/bookings/:id/quote", a.Quote)
	// Validate and record a manual selection, optionally holding it.
	staff.POST("/bookings/:id/selection", a.Select)
	// Commit the session's selection into table links.
	staff.POST("/bookings/:id/assign", a.Assign)
	// Unattended quote-and-commit with bounded retries.
	staff.POST("/bookings/:id/auto-assign", a.AutoAssign)
	// Release a hold placed from a session or directly.
	staff.DELETE("/holds/:id", a.ReleaseHold)

	// Unassignment and hold sweeping change other people's work, so
	// they are manager-only.
	mgr := e.Group("/v1")
	mgr.Use(middleware.JWTAuth(jwtSecret))
	mgr.Use(middleware.RequireRole("MANAGER"))
	mgr.Use(limit)
	mgr.DELETE("/bookings/:id/assignment", a.ReleaseAssignment)
	mgr.POST("/holds/sweep", a.SweepHolds)
}
