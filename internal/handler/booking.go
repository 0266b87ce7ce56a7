package handler

import (
    "context"
    "database/sql"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/blueoxgroup/blueox-ride/internal/model"
    "github.com/blueoxgroup/blueox-ride/internal/repository"
    "github.com/blueoxgroup/blueox-ride/internal/utils"
)

// BookingHandler serves booking creation and listing. Creating a
// booking does not touch the ride's seat inventory; seats are only
// reserved when the booking fee completes, over in the webhook flow.
type BookingHandler struct {
    Rides    *repository.RideRepo
    Bookings *repository.BookingRepo
    Payments *repository.PaymentRepo
}

type createBookingRequest struct {
    Seats uint8 `json:"seats"`
}

// Create books seats on a ride for the authenticated passenger. The
// booking starts PENDING_PAYMENT; the fee is 10% of seats x price,
// rounded up, and the rest is settled in cash after the trip.
func (h *BookingHandler) Create(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }
    rideID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ride id"})
    }

    var req createBookingRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.Seats < 1 || req.Seats > 4 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats must be between 1 and 4"})
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
    if ride.DriverID == userID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "you cannot book your own ride"})
    }
    if ride.Status != model.RideStatusActive {
        return c.JSON(http.StatusConflict, echo.Map{"error": "ride is not open for booking"})
    }
    if !ride.DepartureAt.After(time.Now().UTC()) {
        return c.JSON(http.StatusConflict, echo.Map{"error": "ride has already departed"})
    }
    // Quote-time courtesy check; the authoritative one runs when the
    // fee completes and the seats are actually taken.
    if req.Seats > ride.AvailableSeats {
        return c.JSON(http.StatusConflict, echo.Map{"error": "not enough seats available"})
    }

    booking := model.Booking{
        RideID:      rideID,
        PassengerID: userID,
        SeatsBooked: req.Seats,
        BookingFee:  utils.BookingFee(ride.PricePerSeat, req.Seats),
        Status:      model.BookingStatusPendingPayment,
    }
    if err := h.Bookings.CreateTx(ctx, tx, &booking); err != nil {
        if errors.Is(err, repository.ErrDuplicateBooking) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "you already have an active booking on this ride"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create booking"})
    }

    if err := tx.Commit(); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit booking"})
    }
    committed = true

    return c.JSON(http.StatusCreated, echo.Map{
        "id":          booking.ID,
        "ride_id":     booking.RideID,
        "seats":       booking.SeatsBooked,
        "booking_fee": booking.BookingFee,
        "status":      booking.Status,
    })
}

// ListMine returns the authenticated passenger's bookings with ride
// and driver details, newest first.
func (h *BookingHandler) ListMine(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    bookings, err := h.Bookings.ListByPassenger(ctx, userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list bookings"})
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": bookings})
}

// Get returns one booking with its full payment trail. Only the
// passenger who owns the booking or the driver of its ride may see it.
func (h *BookingHandler) Get(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }
    bookingID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    booking, err := h.Bookings.GetByID(ctx, bookingID)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load booking"})
    }
    ride, err := h.Rides.GetByID(ctx, booking.RideID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load ride"})
    }
    if booking.PassengerID != userID && ride.DriverID != userID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "not your booking"})
    }

    payments, err := h.Payments.ListByBooking(ctx, bookingID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load payments"})
    }

    trail := make([]echo.Map, 0, len(payments))
    for _, p := range payments {
        entry := echo.Map{
            "reference": p.GatewayReference,
            "type":      p.PaymentType,
            "status":    p.Status,
            "amount":    p.Amount,
            "created":   p.CreatedAt.UTC().Format(time.RFC3339),
        }
        if p.ErrorMessage != nil {
            entry["error"] = *p.ErrorMessage
        }
        trail = append(trail, entry)
    }

    return c.JSON(http.StatusOK, echo.Map{
        "id":           booking.ID,
        "ride_id":      booking.RideID,
        "seats":        booking.SeatsBooked,
        "booking_fee":  booking.BookingFee,
        "status":       booking.Status,
        "origin":       ride.OriginName,
        "destination":  ride.DestName,
        "departure_at": ride.DepartureAt.UTC().Format(time.RFC3339),
        "payments":     trail,
    })
}
