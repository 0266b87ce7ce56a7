package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Health responds with a plain "ok" so load balancers can probe the server.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}
