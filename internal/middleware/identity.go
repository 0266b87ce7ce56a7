package middleware

// identity.go defines helper functions shared across middleware files.
// currentUserID pulls the user identifier that JWTAuth stored in the
// Echo context; the rate limiter uses it to scope buckets per user.

import (
    "fmt"

    "github.com/labstack/echo/v4"
)

// currentUserID extracts a user identifier from the Echo context. It
// returns "anon" when no user is authenticated.
func currentUserID(c echo.Context) string {
    v := c.Get("user_id")
    if v == nil {
        return "anon"
    }
    switch t := v.(type) {
    case string:
        if t != "" {
            return t
        }
    case float64:
        return fmt.Sprintf("%.0f", t)
    case uint64:
        return fmt.Sprintf("%d", t)
    case int64:
        return fmt.Sprintf("%d", t)
    }
    return "anon"
}
