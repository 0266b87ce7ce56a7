package handler

import (
    "context"
    "database/sql"
    "errors"
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/blueoxgroup/blueox-ride/internal/model"
    "github.com/blueoxgroup/blueox-ride/internal/momo"
    "github.com/blueoxgroup/blueox-ride/internal/queue"
    "github.com/blueoxgroup/blueox-ride/internal/repository"
    queue_publisher "github.com/blueoxgroup/blueox-ride/internal/service"
    "github.com/blueoxgroup/blueox-ride/internal/utils"
)

// RideHandler serves ride publication, search, completion and
// cancellation. Cancelling a ride refunds every confirmed booking's
// deposit back to its passenger; the payouts are dispatched after the
// cancellation transaction commits.
type RideHandler struct {
    Rides    *repository.RideRepo
    Bookings *repository.BookingRepo
    Payments *repository.PaymentRepo
    Momo     *momo.Client
}

type createRideRequest struct {
    OriginName   string  `json:"origin_name"`
    OriginLat    float64 `json:"origin_lat"`
    OriginLng    float64 `json:"origin_lng"`
    DestName     string  `json:"dest_name"`
    DestLat      float64 `json:"dest_lat"`
    DestLng      float64 `json:"dest_lng"`
    DepartureAt  string  `json:"departure_at"`
    PricePerSeat uint32  `json:"price_per_seat"`
    TotalSeats   uint8   `json:"total_seats"`
}

// Create publishes a ride for the authenticated driver. All seats
// start available and the ride starts ACTIVE.
func (h *RideHandler) Create(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }

    var req createRideRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    req.OriginName = strings.TrimSpace(req.OriginName)
    req.DestName = strings.TrimSpace(req.DestName)
    if req.OriginName == "" || req.DestName == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "origin_name and dest_name are required"})
    }
    departure, err := time.Parse(time.RFC3339, req.DepartureAt)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "departure_at must be RFC3339"})
    }
    departure = departure.UTC()
    if !departure.After(time.Now().UTC()) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "departure_at must be in the future"})
    }
    if req.PricePerSeat == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_per_seat must be positive"})
    }
    if req.TotalSeats < 1 || req.TotalSeats > 8 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "total_seats must be between 1 and 8"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    ride := model.Ride{
        DriverID:     userID,
        OriginName:   req.OriginName,
        OriginLat:    req.OriginLat,
        OriginLng:    req.OriginLng,
        DestName:     req.DestName,
        DestLat:      req.DestLat,
        DestLng:      req.DestLng,
        DepartureAt:  departure,
        PricePerSeat: req.PricePerSeat,
        TotalSeats:   req.TotalSeats,
    }
    if err := h.Rides.Create(ctx, &ride); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create ride"})
    }

    return c.JSON(http.StatusCreated, echo.Map{
        "id":              ride.ID,
        "origin":          ride.OriginName,
        "destination":     ride.DestName,
        "departure_at":    ride.DepartureAt.Format(time.RFC3339),
        "price_per_seat":  ride.PricePerSeat,
        "total_seats":     ride.TotalSeats,
        "available_seats": ride.AvailableSeats,
        "status":          ride.Status,
    })
}

// ListMine returns the authenticated driver's rides, newest first.
func (h *RideHandler) ListMine(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    rides, err := h.Rides.ListByDriver(ctx, userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list rides"})
    }
    return c.JSON(http.StatusOK, echo.Map{"rides": rideViews(rides)})
}

// Search is the public ride search: ACTIVE rides with open seats
// departing in the future, filtered by origin/dest substrings and an
// optional YYYY-MM-DD departure day.
func (h *RideHandler) Search(c echo.Context) error {
    params := repository.SearchParams{
        Origin: strings.TrimSpace(c.QueryParam("origin")),
        Dest:   strings.TrimSpace(c.QueryParam("dest")),
    }
    if d := c.QueryParam("date"); d != "" {
        day, err := time.Parse("2006-01-02", d)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
        }
        params.Date = day
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    rides, err := h.Rides.Search(ctx, params)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "search failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"rides": rideViews(rides)})
}

// Get returns one ride's public details.
func (h *RideHandler) Get(c echo.Context) error {
    rideID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ride id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    ride, err := h.Rides.GetByID(ctx, rideID)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "ride not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load ride"})
    }
    return c.JSON(http.StatusOK, rideView(ride))
}

// Complete marks a departed ride COMPLETED along with every confirmed
// booking on it. Only the driver may complete their ride.
func (h *RideHandler) Complete(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }
    rideID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ride id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    tx, err := h.Rides.DB().BeginTx(ctx, nil)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    ride, err := h.Rides.GetByIDTx(ctx, tx, rideID)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "ride not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load ride"})
    }
    if ride.DriverID != userID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "not your ride"})
    }
    if ride.Status != model.RideStatusActive && ride.Status != model.RideStatusFull {
        return c.JSON(http.StatusConflict, echo.Map{"error": "ride cannot be completed in its current state"})
    }

    if err := h.Rides.UpdateStatusTx(ctx, tx, rideID, model.RideStatusCompleted); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update ride"})
    }
    if err := h.Bookings.CompleteByRideTx(ctx, tx, rideID); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update bookings"})
    }

    if err := tx.Commit(); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit"})
    }
    committed = true

    return c.JSON(http.StatusOK, echo.Map{"status": model.RideStatusCompleted})
}

// Cancel cancels a ride and refunds every confirmed booking's deposit
// back to its passenger. The whole cancellation commits in one
// transaction; the gateway payouts are dispatched afterwards, and a
// payout failure leaves its refund PENDING without undoing anything.
func (h *RideHandler) Cancel(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }
    rideID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ride id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
    defer cancel()

    tx, err := h.Rides.DB().BeginTx(ctx, nil)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    ride, err := h.Rides.GetByIDTx(ctx, tx, rideID)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "ride not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load ride"})
    }
    if ride.DriverID != userID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "not your ride"})
    }
    if ride.Status != model.RideStatusActive && ride.Status != model.RideStatusFull {
        return c.JSON(http.StatusConflict, echo.Map{"error": "ride cannot be cancelled in its current state"})
    }

    bookings, err := h.Bookings.ListConfirmedByRideTx(ctx, tx, rideID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list bookings"})
    }

    refunds := make([]*model.Payment, 0, len(bookings))
    events := make([]queue.PaymentRefundedEvent, 0, len(bookings))
    for _, b := range bookings {
        funding, err := h.Payments.FundingPaymentTx(ctx, tx, b.ID)
        if err != nil {
            if errors.Is(err, sql.ErrNoRows) {
                // A confirmed booking always has a completed fee; a
                // missing one is a data problem, not a reason to keep
                // the passenger booked on a cancelled ride.
                log.Printf("rides: cancel %d: booking %d has no completed payment", rideID, b.ID)
                if err := h.Bookings.TransitionTx(ctx, tx, b.ID, model.BookingStatusConfirmed, model.BookingStatusCancelledByDriver); err != nil {
                    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel booking"})
                }
                continue
            }
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load payment"})
        }

        reference, err := utils.NewGatewayReference("RF")
        if err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to generate reference"})
        }
        refund := &model.Payment{
            BookingID:        b.ID,
            PayerID:          b.PassengerID,
            Amount:           funding.Amount,
            PaymentType:      model.PaymentTypeRefundToPassenger,
            GatewayReference: reference,
            PayerContact:     funding.PayerContact,
        }

        if err := h.Bookings.TransitionTx(ctx, tx, b.ID, model.BookingStatusConfirmed, model.BookingStatusCancelledByDriver); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel booking"})
        }
        if err := h.Payments.UpdateStatusTx(ctx, tx, funding.ID, model.PaymentStatusRefunded); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update payment"})
        }
        if err := h.Payments.CreateTx(ctx, tx, refund); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record refund"})
        }

        refunds = append(refunds, refund)
        events = append(events, queue.PaymentRefundedEvent{
            BookingID:   b.ID,
            RideID:      rideID,
            Recipient:   "passenger",
            Amount:      refund.Amount,
            Reference:   reference,
            CancelledBy: "driver",
            RefundedAt:  time.Now().UTC().Format(time.RFC3339),
        })
    }

    if err := h.Rides.UpdateStatusTx(ctx, tx, rideID, model.RideStatusCancelled); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update ride"})
    }

    if err := tx.Commit(); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit"})
    }
    committed = true

    for i, refund := range refunds {
        dispatchRefund(ctx, h.Payments, h.Momo, refund)
        if err := queue_publisher.PublishPaymentRefunded(ctx, events[i]); err != nil {
            log.Printf("rides: publish payment.refunded %d: %v", events[i].BookingID, err)
        }
    }

    return c.JSON(http.StatusOK, echo.Map{
        "status":   model.RideStatusCancelled,
        "refunded": len(refunds),
    })
}

// rideView shapes a ride for API responses.
func rideView(r model.Ride) echo.Map {
    return echo.Map{
        "id":              r.ID,
        "driver_id":       r.DriverID,
        "origin":          r.OriginName,
        "origin_lat":      r.OriginLat,
        "origin_lng":      r.OriginLng,
        "destination":     r.DestName,
        "dest_lat":        r.DestLat,
        "dest_lng":        r.DestLng,
        "departure_at":    r.DepartureAt.UTC().Format(time.RFC3339),
        "price_per_seat":  r.PricePerSeat,
        "total_seats":     r.TotalSeats,
        "available_seats": r.AvailableSeats,
        "status":          r.Status,
    }
}

func rideViews(rides []model.Ride) []echo.Map {
    out := make([]echo.Map, 0, len(rides))
    for _, r := range rides {
        out = append(out, rideView(r))
    }
    return out
}
