package handler

import (
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/labstack/echo/v4"

    "github.com/blueoxgroup/blueox-ride/internal/model"
    "github.com/blueoxgroup/blueox-ride/internal/repository"
)

const (
    paymentCols = "id, booking_id, payer_id, amount, payment_type, status, gateway_reference, gateway_transaction_id, payer_contact, error_message, retry_count, created_at, updated_at"
    bookingCols = "id, ride_id, passenger_id, seats_booked, booking_fee, status, created_at, updated_at"
    rideCols    = "id, driver_id, origin_name, origin_lat, origin_lng, dest_name, dest_lat, dest_lng, departure_at, price_per_seat, total_seats, available_seats, status, created_at, updated_at"
)

func newPaymentHandler(t *testing.T) (*PaymentHandler, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    t.Cleanup(func() { db.Close() })
    return &PaymentHandler{
        Rides:    repository.NewRideRepo(db),
        Bookings: repository.NewBookingRepo(db),
        Payments: repository.NewPaymentRepo(db),
        Users:    repository.NewUserRepo(db),
    }, mock
}

func postJSON(t *testing.T, h echo.HandlerFunc, target, body string) *httptest.ResponseRecorder {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    if err := h(c); err != nil {
        t.Fatalf("handler error: %v", err)
    }
    return rec
}

func paymentRow(status, paymentType string) *sqlmock.Rows {
    now := time.Now().UTC()
    return sqlmock.NewRows(strings.Split(paymentCols, ", ")).
        AddRow(11, 5, 9, 1000, paymentType, status, "BF-TEST-REF", nil, "237650123456", nil, 0, now, now)
}

func TestWebhookMalformedPayloadStillAcknowledged(t *testing.T) {
    h, mock := newPaymentHandler(t)

    rec := postJSON(t, h.Webhook, "/v1/payments/webhook", `{"garbage":`)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200", rec.Code)
    }
    if !strings.Contains(rec.Body.String(), `"success":false`) {
        t.Errorf("body = %s, want success false", rec.Body.String())
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unexpected database access: %v", err)
    }
}

func TestWebhookUnknownReferenceIsNoOp(t *testing.T) {
    h, mock := newPaymentHandler(t)

    mock.ExpectBegin()
    mock.ExpectQuery("FROM payments WHERE gateway_reference").
        WithArgs("BF-UNKNOWN").
        WillReturnRows(sqlmock.NewRows(strings.Split(paymentCols, ", ")))
    mock.ExpectRollback()

    rec := postJSON(t, h.Webhook, "/v1/payments/webhook",
        `{"reference":"BF-UNKNOWN","status":"completed"}`)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200", rec.Code)
    }
    if !strings.Contains(rec.Body.String(), `"success":true`) {
        t.Errorf("body = %s, want success true", rec.Body.String())
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestWebhookRedeliveryOfCompletedPaymentIsNoOp(t *testing.T) {
    h, mock := newPaymentHandler(t)

    mock.ExpectBegin()
    mock.ExpectQuery("FROM payments WHERE gateway_reference").
        WithArgs("BF-TEST-REF").
        WillReturnRows(paymentRow(model.PaymentStatusCompleted, model.PaymentTypeBookingFee))
    // no update, no seat movement: terminal payments are never touched
    mock.ExpectRollback()

    rec := postJSON(t, h.Webhook, "/v1/payments/webhook",
        `{"reference":"BF-TEST-REF","status":"completed","transaction_id":"tx-2"}`)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200", rec.Code)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestWebhookCompletedConfirmsBookingAndReservesSeats(t *testing.T) {
    h, mock := newPaymentHandler(t)
    now := time.Now().UTC()

    mock.ExpectBegin()
    mock.ExpectQuery("FROM payments WHERE gateway_reference").
        WithArgs("BF-TEST-REF").
        WillReturnRows(paymentRow(model.PaymentStatusProcessing, model.PaymentTypeBookingFee))
    mock.ExpectExec("UPDATE payments").
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(sqlmock.NewRows(strings.Split(bookingCols, ", ")).
            AddRow(5, 3, 9, 2, 1000, model.BookingStatusPendingPayment, now, now))
    // conditional seat decrement succeeds
    mock.ExpectExec("UPDATE rides").
        WillReturnResult(sqlmock.NewResult(0, 1))
    // ACTIVE -> FULL flip matches nothing, seats remain
    mock.ExpectExec("UPDATE rides SET status").
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectExec("UPDATE bookings SET status").
        WithArgs(model.BookingStatusConfirmed, uint64(5), model.BookingStatusPendingPayment).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(sqlmock.NewRows(strings.Split(rideCols, ", ")).
            AddRow(3, 2, "Douala", 4.05, 9.7, "Yaounde", 3.87, 11.52,
                now.Add(2*time.Hour), 5000, 4, 2, model.RideStatusActive, now, now))
    mock.ExpectCommit()

    rec := postJSON(t, h.Webhook, "/v1/payments/webhook",
        `{"reference":"BF-TEST-REF","status":"completed","transaction_id":"tx-1"}`)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200", rec.Code)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestWebhookCompletedWithSeatsGoneFlagsForReconciliation(t *testing.T) {
    h, mock := newPaymentHandler(t)
    now := time.Now().UTC()

    mock.ExpectBegin()
    mock.ExpectQuery("FROM payments WHERE gateway_reference").
        WithArgs("BF-TEST-REF").
        WillReturnRows(paymentRow(model.PaymentStatusProcessing, model.PaymentTypeBookingFee))
    mock.ExpectExec("UPDATE payments").
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(sqlmock.NewRows(strings.Split(bookingCols, ", ")).
            AddRow(5, 3, 9, 2, 1000, model.BookingStatusPendingPayment, now, now))
    // seats gone: the conditional decrement matches nothing
    mock.ExpectExec("UPDATE rides").
        WillReturnResult(sqlmock.NewResult(0, 0))
    // the payment keeps COMPLETED and only gets a reconciliation note
    mock.ExpectExec("UPDATE payments SET error_message").
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    rec := postJSON(t, h.Webhook, "/v1/payments/webhook",
        `{"reference":"BF-TEST-REF","status":"completed"}`)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200", rec.Code)
    }
    if !strings.Contains(rec.Body.String(), `"success":true`) {
        t.Errorf("body = %s, want success true", rec.Body.String())
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestWebhookFailureStatusesMarkPaymentFailed(t *testing.T) {
    for _, status := range []string{"failed", "cancelled", "expired"} {
        t.Run(status, func(t *testing.T) {
            h, mock := newPaymentHandler(t)

            mock.ExpectBegin()
            mock.ExpectQuery("FROM payments WHERE gateway_reference").
                WithArgs("BF-TEST-REF").
                WillReturnRows(paymentRow(model.PaymentStatusProcessing, model.PaymentTypeBookingFee))
            mock.ExpectExec("UPDATE payments").
                WillReturnResult(sqlmock.NewResult(0, 1))
            mock.ExpectCommit()

            rec := postJSON(t, h.Webhook, "/v1/payments/webhook",
                `{"reference":"BF-TEST-REF","status":"`+status+`","message":"insufficient funds"}`)
            if rec.Code != http.StatusOK {
                t.Fatalf("status = %d, want 200", rec.Code)
            }
            if err := mock.ExpectationsWereMet(); err != nil {
                t.Fatalf("unmet expectations: %v", err)
            }
        })
    }
}

func TestWebhookIntermediateStatusChangesNothing(t *testing.T) {
    h, mock := newPaymentHandler(t)

    mock.ExpectBegin()
    mock.ExpectQuery("FROM payments WHERE gateway_reference").
        WithArgs("BF-TEST-REF").
        WillReturnRows(paymentRow(model.PaymentStatusPending, model.PaymentTypeBookingFee))
    mock.ExpectCommit()

    rec := postJSON(t, h.Webhook, "/v1/payments/webhook",
        `{"reference":"BF-TEST-REF","status":"processing"}`)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200", rec.Code)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}
