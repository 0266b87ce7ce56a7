package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing
    "github.com/redis/go-redis/v9"

    "github.com/blueoxgroup/blueox-ride/internal/config"
    "github.com/blueoxgroup/blueox-ride/internal/handler"    // import the handlers that implement business logic
    "github.com/blueoxgroup/blueox-ride/internal/middleware" // import middleware for JWT authentication and role enforcement
    "github.com/blueoxgroup/blueox-ride/internal/model"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    // Map GET /healthz to the Health handler.  Load balancers and
    // monitoring systems use it to verify the service is up.
    e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies
// the necessary middleware.  Unauthenticated operations live under
// /v1/auth, while protected account endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
    // Operations that do not require an existing session.
    g := e.Group("/v1/auth")
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    // Refresh rotates the presented refresh token; refresh-access
    // issues a new access token without rotating.
    g.POST("/refresh", a.Refresh)
    g.POST("/refresh-access", a.RefreshAccess)
    // Logout accepts a JSON body containing a refresh_token and
    // invalidates it; no JWT is required on this path.
    g.POST("/logout", a.Logout)

    // Account endpoints that require a valid access token.
    auth := e.Group("/v1")
    auth.Use(middleware.JWTAuth(jwtSecret))
    auth.Use(middleware.RequireRole(model.RoleDriver, model.RolePassenger))
    auth.GET("/me", a.Me)
    auth.PUT("/me/phone", a.UpdatePhone)
}

// RegisterPublic registers unauthenticated browse endpoints.  The ride
// search is cached in Redis when a client is available; search results
// only need to be fresh within a few seconds.
func RegisterPublic(e *echo.Echo, r *handler.RideHandler, rdb *redis.Client) {
    if rdb != nil {
        cacheCfg := config.LoadCacheConfig()
        e.GET("/v1/rides/search", r.Search, middleware.NewRedisCache(cacheCfg, rdb))
    } else {
        e.GET("/v1/rides/search", r.Search)
    }
    e.GET("/v1/rides/:id", r.Get)
}

// RegisterRides registers the driver-side ride endpoints.  Every route
// requires a DRIVER access token.
func RegisterRides(e *echo.Echo, r *handler.RideHandler, jwtSecret string) {
    g := e.Group("/v1/rides")
    g.Use(middleware.JWTAuth(jwtSecret))
    g.Use(middleware.RequireRole(model.RoleDriver))
    g.POST("", r.Create)
    g.GET("/mine", r.ListMine)
    // Cancelling a ride refunds every confirmed booking.
    g.POST("/:id/cancel", r.Cancel)
    g.POST("/:id/complete", r.Complete)
}

// RegisterBookings registers booking and payment endpoints.  Booking
// creation and fee payment are passenger operations; cancellation is
// open to both roles because either side of a trip may cancel and the
// handler resolves who gets the refund.
func RegisterBookings(e *echo.Echo, b *handler.BookingHandler, p *handler.PaymentHandler, jwtSecret string, rdb *redis.Client) {
    passenger := e.Group("/v1")
    passenger.Use(middleware.JWTAuth(jwtSecret))
    passenger.Use(middleware.RequireRole(model.RolePassenger))
    passenger.POST("/rides/:id/bookings", b.Create)
    passenger.GET("/bookings/mine", b.ListMine)
    // Payment initiation talks to the gateway, so it gets a token
    // bucket on top of auth.
    if rdb != nil {
        rlCfg := config.LoadRateLimitConfig()
        passenger.POST("/bookings/:id/pay", p.Initiate, middleware.NewTokenBucket(rlCfg, rdb))
    } else {
        passenger.POST("/bookings/:id/pay", p.Initiate)
    }

    shared := e.Group("/v1")
    shared.Use(middleware.JWTAuth(jwtSecret))
    shared.Use(middleware.RequireRole(model.RoleDriver, model.RolePassenger))
    shared.GET("/bookings/:id", b.Get)
    shared.POST("/bookings/:id/cancel", p.Cancel)
}

// RegisterWebhook registers the gateway callback endpoint.  The
// gateway cannot carry a user token, so the route is unauthenticated;
// a Redis token bucket keeps abusive callers from hammering it.
func RegisterWebhook(e *echo.Echo, p *handler.PaymentHandler, rdb *redis.Client) {
    if rdb != nil {
        rlCfg := config.LoadRateLimitConfig()
        e.POST("/v1/payments/webhook", p.Webhook, middleware.NewTokenBucket(rlCfg, rdb))
        return
    }
    e.POST("/v1/payments/webhook", p.Webhook)
}
