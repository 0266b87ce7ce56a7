package main // Entry point package

import (
    "context" // context for schema bootstrap
    "log"     // Logging library
    "time"

    "github.com/joho/godotenv"    // Loads .env files into the environment
    "github.com/labstack/echo/v4" // Echo web framework
    echomw "github.com/labstack/echo/v4/middleware"

    "github.com/blueoxgroup/blueox-ride/internal/config"   // Internal config loader
    "github.com/blueoxgroup/blueox-ride/internal/database" // MySQL pool and schema bootstrap
    "github.com/blueoxgroup/blueox-ride/internal/handler"
    "github.com/blueoxgroup/blueox-ride/internal/momo"
    "github.com/blueoxgroup/blueox-ride/internal/queue"
    "github.com/blueoxgroup/blueox-ride/internal/repository"
    "github.com/blueoxgroup/blueox-ride/internal/router" // Internal router setup
)

func main() {
    // Load .env when present; real deployments set the environment
    // directly and the file is absent.
    _ = godotenv.Load()

    cfg := config.Load() // Load environment config

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    if err := database.EnsureSchema(ctx, db); err != nil {
        cancel()
        log.Fatalf("schema: %v", err)
    }
    cancel()

    // Redis is optional: without it the search cache and the webhook
    // rate limit are skipped, everything else works.
    rdb := config.NewRedisClient()

    users := repository.NewUserRepo(db)
    tokens := repository.NewTokenRepo(db)
    rides := repository.NewRideRepo(db)
    bookings := repository.NewBookingRepo(db)
    payments := repository.NewPaymentRepo(db)

    gateway := momo.NewClient(cfg.MomoBaseURL, cfg.MomoAPIKey, cfg.MomoTimeout)

    authH := &handler.AuthHandler{Users: users, Tokens: tokens, Cfg: cfg}
    rideH := &handler.RideHandler{Rides: rides, Bookings: bookings, Payments: payments, Momo: gateway}
    bookingH := &handler.BookingHandler{Rides: rides, Bookings: bookings, Payments: payments}
    paymentH := &handler.PaymentHandler{
        Rides:    rides,
        Bookings: bookings,
        Payments: payments,
        Users:    users,
        Momo:     gateway,
        Cfg:      cfg,
    }

    e := echo.New() // Create Echo instance
    e.Use(echomw.Recover())
    e.Use(echomw.Logger())

    router.RegisterRoutes(e) // Register application routes
    router.RegisterAuth(e, authH, cfg.JWTSecret)
    router.RegisterPublic(e, rideH, rdb)
    router.RegisterRides(e, rideH, cfg.JWTSecret)
    router.RegisterBookings(e, bookingH, paymentH, cfg.JWTSecret, rdb)
    router.RegisterWebhook(e, paymentH, rdb)

    // Consume booking.confirmed and payment.refunded events in the
    // background; the consumer reconnects on broker failures.
    go func() {
        if err := queue.StartBookingConsumer(); err != nil {
            log.Printf("queue consumer stopped: %v", err)
        }
    }()

    addr := ":" + cfg.Port                                // Address string with port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

    if err := e.Start(addr); err != nil { // Start HTTP server
        log.Fatal(err) // Log and exit if server fails
    }
}
