package middleware

// identity.go defines helper functions shared across middleware and
// handlers. ActorID pulls the authenticated staff identifier out of the
// Echo context where JWTAuth stored it; holds and assignments are
// attributed to this value.

import (
    "github.com/labstack/echo/v4"
)

// ActorID extracts the staff identifier from the request context. It
// returns "system" when the request carries no authenticated subject,
// which is the attribution used by background jobs hitting internal
// routes.
func ActorID(c echo.Context) string {
    if v := c.Get("user_id"); v != nil {
        if s, ok := v.(string); ok && s != "" {
            return s
        }
    }
    return "system"
}
