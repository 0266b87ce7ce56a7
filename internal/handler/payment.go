package handler

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/blueoxgroup/blueox-ride/internal/config"
    "github.com/blueoxgroup/blueox-ride/internal/model"
    "github.com/blueoxgroup/blueox-ride/internal/momo"
    "github.com/blueoxgroup/blueox-ride/internal/queue"
    "github.com/blueoxgroup/blueox-ride/internal/repository"
    queue_publisher "github.com/blueoxgroup/blueox-ride/internal/service"
    "github.com/blueoxgroup/blueox-ride/internal/utils"
)

// cancelCutoff is how close to departure a passenger can cancel and
// still get their deposit back. Inside the window the deposit goes to
// the driver as compensation instead.
const cancelCutoff = time.Hour

// PaymentHandler owns the money side of a booking: initiating the
// booking-fee collection, reconciling gateway webhooks, and resolving
// refunds on cancellation.
type PaymentHandler struct {
    Rides    *repository.RideRepo
    Bookings *repository.BookingRepo
    Payments *repository.PaymentRepo
    Users    *repository.UserRepo
    Momo     *momo.Client
    Cfg      config.Config
}

type initiateRequest struct {
    Phone string `json:"phone"`
}

type webhookRequest struct {
    Reference     string `json:"reference"`
    Status        string `json:"status"`
    TransactionID string `json:"transaction_id"`
    Message       string `json:"message"`
}

// Initiate starts collecting the booking fee for a PENDING_PAYMENT
// booking. The PENDING payment row is written before the gateway is
// called, so a crash in between still leaves a record keyed by the
// reference for the webhook (or support) to resolve later. Seats are
// never touched here.
func (h *PaymentHandler) Initiate(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }
    bookingID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }

    var req initiateRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
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
    if booking.PassengerID != userID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "not your booking"})
    }
    if booking.Status != model.BookingStatusPendingPayment {
        return c.JSON(http.StatusConflict, echo.Map{"error": "booking is not awaiting payment"})
    }

    ride, err := h.Rides.GetByID(ctx, booking.RideID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load ride"})
    }
    if ride.Status == model.RideStatusCancelled {
        return c.JSON(http.StatusConflict, echo.Map{"error": "ride has been cancelled"})
    }
    if !ride.DepartureAt.After(time.Now().UTC()) {
        return c.JSON(http.StatusConflict, echo.Map{"error": "ride has already departed"})
    }

    contact, err := utils.NormalizeMsisdn(req.Phone)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone is not a valid mobile money number"})
    }

    reference, err := utils.NewGatewayReference("BF")
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to generate reference"})
    }

    payment := model.Payment{
        BookingID:        booking.ID,
        PayerID:          userID,
        Amount:           booking.BookingFee,
        PaymentType:      model.PaymentTypeBookingFee,
        GatewayReference: reference,
        PayerContact:     contact,
    }
    if err := h.Payments.Create(ctx, &payment); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record payment"})
    }

    result, err := h.Momo.Collect(c.Request().Context(), momo.CollectRequest{
        Reference:   reference,
        Amount:      payment.Amount,
        Contact:     contact,
        CallbackURL: h.Cfg.MomoCallbackURL,
    })
    if err != nil {
        // The request may or may not have reached the gateway. The
        // payment stays PENDING and the webhook (or a later retry with
        // a fresh reference) resolves it.
        log.Printf("momo: collect %s unresolved: %v", reference, err)
        return c.JSON(http.StatusAccepted, echo.Map{
            "reference": reference,
            "status":    model.PaymentStatusPending,
            "message":   "gateway unreachable, payment status pending",
        })
    }
    if !result.Accepted {
        if err := h.Payments.MarkFailed(ctx, payment.ID, result.Message); err != nil {
            log.Printf("payments: mark failed %s: %v", reference, err)
        }
        return c.JSON(http.StatusBadGateway, echo.Map{
            "error":     "payment was rejected by the gateway",
            "reference": reference,
        })
    }

    if err := h.Payments.MarkProcessing(ctx, payment.ID, result.TransactionID); err != nil {
        log.Printf("payments: mark processing %s: %v", reference, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "reference": reference,
        "amount":    payment.Amount,
        "contact":   contact,
        "status":    model.PaymentStatusProcessing,
    })
}

// Webhook receives asynchronous status updates from the mobile money
// gateway. The endpoint answers 200 for everything it understood, even
// no-ops, because any non-200 makes the gateway redeliver; only a
// genuine server fault returns 500 so the redelivery can succeed later.
// The payment row is locked by reference for the whole decision, which
// makes concurrent redeliveries serialize and the side effects fire at
// most once.
func (h *PaymentHandler) Webhook(c echo.Context) error {
    var req webhookRequest
    if err := c.Bind(&req); err != nil || req.Reference == "" || req.Status == "" {
        return c.JSON(http.StatusOK, echo.Map{"success": false, "error": "malformed payload"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
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

    payment, err := h.Payments.GetByReferenceTx(ctx, tx, req.Reference)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            // Unknown references are acknowledged without mutating
            // anything; redelivering them would never help.
            log.Printf("webhook: unknown reference %s", req.Reference)
            return c.JSON(http.StatusOK, echo.Map{"success": true})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load payment"})
    }

    // Idempotency gate: a payment in a terminal success state is never
    // touched again, whatever the redelivered status says.
    if payment.Status == model.PaymentStatusCompleted || payment.Status == model.PaymentStatusRefunded {
        return c.JSON(http.StatusOK, echo.Map{"success": true})
    }

    var confirmed *queue.BookingConfirmedEvent

    switch strings.ToLower(req.Status) {
    case momo.StatusCompleted:
        if payment.PaymentType == model.PaymentTypeBookingFee {
            event, status, err := h.settleBookingFee(ctx, tx, payment, req.TransactionID)
            if err != nil {
                return c.JSON(status, echo.Map{"error": err.Error()})
            }
            confirmed = event
        } else {
            // A refund payout reached the recipient.
            if err := h.Payments.MarkCompletedTx(ctx, tx, payment.ID, req.TransactionID); err != nil {
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update payment"})
            }
        }

    case momo.StatusFailed, momo.StatusCancelled, momo.StatusExpired:
        msg := "payment " + strings.ToLower(req.Status)
        if req.Message != "" {
            msg = msg + ": " + req.Message
        }
        if err := h.Payments.MarkFailedTx(ctx, tx, payment.ID, msg); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update payment"})
        }

    default:
        // Intermediate or unknown statuses are acknowledged but change
        // nothing; the terminal status arrives in a later delivery.
        log.Printf("webhook: ignoring status %q for %s", req.Status, req.Reference)
    }

    if err := tx.Commit(); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit"})
    }
    committed = true

    if confirmed != nil {
        if err := queue_publisher.PublishBookingConfirmed(ctx, *confirmed); err != nil {
            log.Printf("webhook: publish booking.confirmed %d: %v", confirmed.BookingID, err)
        }
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// settleBookingFee applies a completed booking-fee payment: the payment
// is marked COMPLETED, the seats are reserved, and the booking flips to
// CONFIRMED. When the seats are gone by the time the money arrives the
// payment stays COMPLETED but flagged for manual reconciliation; the
// booking is left PENDING_PAYMENT and no seats move.
func (h *PaymentHandler) settleBookingFee(ctx context.Context, tx *sql.Tx, payment model.Payment, txnID string) (*queue.BookingConfirmedEvent, int, error) {
    if err := h.Payments.MarkCompletedTx(ctx, tx, payment.ID, txnID); err != nil {
        return nil, http.StatusInternalServerError, errors.New("failed to update payment")
    }

    booking, err := h.Bookings.GetByIDTx(ctx, tx, payment.BookingID)
    if err != nil {
        return nil, http.StatusInternalServerError, errors.New("failed to load booking")
    }

    if err := h.Rides.ReserveSeatsTx(ctx, tx, booking.RideID, booking.SeatsBooked); err != nil {
        if errors.Is(err, repository.ErrInsufficientSeats) {
            note := fmt.Sprintf("paid but could not reserve %d seat(s) on ride %d", booking.SeatsBooked, booking.RideID)
            log.Printf("webhook: RECONCILE payment %s: %s", payment.GatewayReference, note)
            if ferr := h.Payments.FlagReconciliationTx(ctx, tx, payment.ID, note); ferr != nil {
                return nil, http.StatusInternalServerError, errors.New("failed to flag payment")
            }
            return nil, 0, nil
        }
        return nil, http.StatusInternalServerError, errors.New("failed to reserve seats")
    }

    if err := h.Bookings.TransitionTx(ctx, tx, booking.ID, model.BookingStatusPendingPayment, model.BookingStatusConfirmed); err != nil {
        if errors.Is(err, repository.ErrConflict) {
            // The booking moved under us, most likely cancelled while
            // the money was in flight. Give the seats back and flag.
            if rerr := h.Rides.ReleaseSeatsTx(ctx, tx, booking.RideID, booking.SeatsBooked); rerr != nil {
                return nil, http.StatusInternalServerError, errors.New("failed to release seats")
            }
            note := fmt.Sprintf("paid but booking %d was no longer pending", booking.ID)
            log.Printf("webhook: RECONCILE payment %s: %s", payment.GatewayReference, note)
            if ferr := h.Payments.FlagReconciliationTx(ctx, tx, payment.ID, note); ferr != nil {
                return nil, http.StatusInternalServerError, errors.New("failed to flag payment")
            }
            return nil, 0, nil
        }
        return nil, http.StatusInternalServerError, errors.New("failed to confirm booking")
    }

    ride, err := h.Rides.GetByIDTx(ctx, tx, booking.RideID)
    if err != nil {
        return nil, http.StatusInternalServerError, errors.New("failed to load ride")
    }

    return &queue.BookingConfirmedEvent{
        BookingID:   booking.ID,
        RideID:      ride.ID,
        PassengerID: booking.PassengerID,
        DriverID:    ride.DriverID,
        OriginName:  ride.OriginName,
        DestName:    ride.DestName,
        DepartureAt: ride.DepartureAt.UTC().Format(time.RFC3339),
        SeatsBooked: booking.SeatsBooked,
        BookingFee:  booking.BookingFee,
        Reference:   payment.GatewayReference,
        ConfirmedAt: time.Now().UTC().Format(time.RFC3339),
    }, 0, nil
}

// Cancel cancels a booking. For a CONFIRMED booking the deposit is
// refunded to whichever party the policy resolves: the passenger when
// the driver cancels or when the passenger cancels more than an hour
// before departure, the driver otherwise. Seats go back to the ride
// and a payout is dispatched to the gateway after commit; a payout
// failure never un-cancels the booking.
func (h *PaymentHandler) Cancel(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    }
    bookingID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
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

    booking, err := h.Bookings.GetByIDTx(ctx, tx, bookingID)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load booking"})
    }
    ride, err := h.Rides.GetByIDTx(ctx, tx, booking.RideID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load ride"})
    }

    var cancelledStatus, cancelledBy string
    switch userID {
    case booking.PassengerID:
        cancelledStatus = model.BookingStatusCancelledByPassenger
        cancelledBy = "passenger"
    case ride.DriverID:
        cancelledStatus = model.BookingStatusCancelledByDriver
        cancelledBy = "driver"
    default:
        return c.JSON(http.StatusForbidden, echo.Map{"error": "not your booking"})
    }

    // An unpaid booking just flips status: no seats were held and no
    // money changed hands.
    if booking.Status == model.BookingStatusPendingPayment {
        if err := h.Bookings.TransitionTx(ctx, tx, booking.ID, model.BookingStatusPendingPayment, cancelledStatus); err != nil {
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking changed, try again"})
        }
        if err := tx.Commit(); err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit"})
        }
        committed = true
        return c.JSON(http.StatusOK, echo.Map{"status": cancelledStatus})
    }
    if booking.Status != model.BookingStatusConfirmed {
        return c.JSON(http.StatusConflict, echo.Map{"error": "booking cannot be cancelled in its current state"})
    }

    funding, err := h.Payments.FundingPaymentTx(ctx, tx, booking.ID)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "no completed payment found for this booking"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load payment"})
    }

    refund, err := h.resolveRefund(ctx, tx, booking, ride, funding, cancelledBy)
    if err != nil {
        if errors.Is(err, repository.ErrNoPayoutContact) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "driver has no payout contact on file"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to resolve refund"})
    }

    if err := h.Bookings.TransitionTx(ctx, tx, booking.ID, model.BookingStatusConfirmed, cancelledStatus); err != nil {
        return c.JSON(http.StatusConflict, echo.Map{"error": "booking changed, try again"})
    }
    if err := h.Payments.UpdateStatusTx(ctx, tx, funding.ID, model.PaymentStatusRefunded); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update payment"})
    }
    if err := h.Rides.ReleaseSeatsTx(ctx, tx, booking.RideID, booking.SeatsBooked); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to release seats"})
    }
    if err := h.Payments.CreateTx(ctx, tx, refund); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record refund"})
    }

    if err := tx.Commit(); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit"})
    }
    committed = true

    recipient := "passenger"
    if refund.PaymentType == model.PaymentTypeRefundToDriver {
        recipient = "driver"
    }

    dispatchRefund(ctx, h.Payments, h.Momo, refund)
    if err := queue_publisher.PublishPaymentRefunded(ctx, queue.PaymentRefundedEvent{
        BookingID:   booking.ID,
        RideID:      ride.ID,
        Recipient:   recipient,
        Amount:      refund.Amount,
        Reference:   refund.GatewayReference,
        CancelledBy: cancelledBy,
        RefundedAt:  time.Now().UTC().Format(time.RFC3339),
    }); err != nil {
        log.Printf("cancel: publish payment.refunded %d: %v", booking.ID, err)
    }

    return c.JSON(http.StatusOK, echo.Map{
        "status": cancelledStatus,
        "refund": echo.Map{
            "recipient": recipient,
            "amount":    refund.Amount,
            "reference": refund.GatewayReference,
        },
    })
}

// resolveRefund builds the PENDING refund payment a cancellation owes.
// Driver cancellations always pay the passenger back. Passenger
// cancellations pay the passenger back only when made more than an
// hour before departure; inside that window the driver keeps the
// deposit as a no-show guarantee.
func (h *PaymentHandler) resolveRefund(ctx context.Context, tx *sql.Tx, booking model.Booking, ride model.Ride, funding model.Payment, cancelledBy string) (*model.Payment, error) {
    toPassenger := cancelledBy == "driver" ||
        time.Until(ride.DepartureAt) > cancelCutoff

    refund := model.Payment{
        BookingID: booking.ID,
        Amount:    funding.Amount,
    }
    if toPassenger {
        refund.PayerID = booking.PassengerID
        refund.PaymentType = model.PaymentTypeRefundToPassenger
        refund.PayerContact = funding.PayerContact
    } else {
        contact, err := h.Users.PhoneTx(ctx, tx, ride.DriverID)
        if err != nil {
            return nil, err
        }
        if contact == "" {
            return nil, repository.ErrNoPayoutContact
        }
        refund.PayerID = ride.DriverID
        refund.PaymentType = model.PaymentTypeRefundToDriver
        refund.PayerContact = contact
    }

    reference, err := utils.NewGatewayReference("RF")
    if err != nil {
        return nil, err
    }
    refund.GatewayReference = reference
    return &refund, nil
}

// dispatchRefund sends a committed refund payment to the gateway.
// Acceptance moves it to PROCESSING, a definitive rejection to FAILED,
// and a transport error leaves it PENDING for support to retry. The
// cancellation that created it has already committed either way.
func dispatchRefund(ctx context.Context, payments *repository.PaymentRepo, client *momo.Client, refund *model.Payment) {
    result, err := client.Disburse(ctx, momo.DisburseRequest{
        Reference: refund.GatewayReference,
        Amount:    refund.Amount,
        Contact:   refund.PayerContact,
    })
    if err != nil {
        log.Printf("momo: disburse %s unresolved: %v", refund.GatewayReference, err)
        return
    }
    if !result.Accepted {
        log.Printf("momo: disburse %s rejected: %s", refund.GatewayReference, result.Message)
        if err := payments.MarkFailed(ctx, refund.ID, result.Message); err != nil {
            log.Printf("payments: mark failed %s: %v", refund.GatewayReference, err)
        }
        return
    }
    if err := payments.MarkProcessing(ctx, refund.ID, result.TransactionID); err != nil {
        log.Printf("payments: mark processing %s: %v", refund.GatewayReference, err)
    }
}
