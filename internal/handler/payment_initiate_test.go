package handler

import (
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/labstack/echo/v4"

    "github.com/blueoxgroup/blueox-ride/internal/config"
    "github.com/blueoxgroup/blueox-ride/internal/model"
    "github.com/blueoxgroup/blueox-ride/internal/momo"
)

// fakeGateway stands in for the mobile money API. Each instance
// answers every collect/disburse call with the configured result.
func fakeGateway(t *testing.T, statusCode int, result momo.Result) *httptest.Server {
    t.Helper()
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "application/json")
        w.WriteHeader(statusCode)
        _ = json.NewEncoder(w).Encode(result)
    }))
    t.Cleanup(srv.Close)
    return srv
}

func authedRequest(t *testing.T, h echo.HandlerFunc, userID uint64, paramID, body string) *httptest.ResponseRecorder {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    c.Set("user_id", userID)
    c.SetParamNames("id")
    c.SetParamValues(paramID)
    if err := h(c); err != nil {
        t.Fatalf("handler error: %v", err)
    }
    return rec
}

func pendingBookingRows(t *testing.T) *sqlmock.Rows {
    t.Helper()
    now := time.Now().UTC()
    return sqlmock.NewRows(strings.Split(bookingCols, ", ")).
        AddRow(5, 3, 9, 2, 1000, model.BookingStatusPendingPayment, now, now)
}

func activeRideRows(t *testing.T, departure time.Time) *sqlmock.Rows {
    t.Helper()
    now := time.Now().UTC()
    return sqlmock.NewRows(strings.Split(rideCols, ", ")).
        AddRow(3, 2, "Douala", 4.05, 9.7, "Yaounde", 3.87, 11.52,
            departure, 5000, 4, 2, model.RideStatusActive, now, now)
}

func TestInitiateRejectsForeignBooking(t *testing.T) {
    h, mock := newPaymentHandler(t)

    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(pendingBookingRows(t))

    rec := authedRequest(t, h.Initiate, 8, "5", `{"phone":"650123456"}`)
    if rec.Code != http.StatusForbidden {
        t.Fatalf("status = %d, want 403", rec.Code)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestInitiateRejectsNonPendingBooking(t *testing.T) {
    h, mock := newPaymentHandler(t)
    now := time.Now().UTC()

    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(sqlmock.NewRows(strings.Split(bookingCols, ", ")).
            AddRow(5, 3, 9, 2, 1000, model.BookingStatusConfirmed, now, now))

    rec := authedRequest(t, h.Initiate, 9, "5", `{"phone":"650123456"}`)
    if rec.Code != http.StatusConflict {
        t.Fatalf("status = %d, want 409", rec.Code)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestInitiateRejectsDepartedRide(t *testing.T) {
    h, mock := newPaymentHandler(t)

    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(pendingBookingRows(t))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(activeRideRows(t, time.Now().UTC().Add(-time.Minute)))

    rec := authedRequest(t, h.Initiate, 9, "5", `{"phone":"650123456"}`)
    if rec.Code != http.StatusConflict {
        t.Fatalf("status = %d, want 409", rec.Code)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestInitiateRejectsBadContact(t *testing.T) {
    h, mock := newPaymentHandler(t)

    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(pendingBookingRows(t))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(activeRideRows(t, time.Now().UTC().Add(2*time.Hour)))

    // no payment row may be written for an invalid contact
    rec := authedRequest(t, h.Initiate, 9, "5", `{"phone":"not-a-number"}`)
    if rec.Code != http.StatusBadRequest {
        t.Fatalf("status = %d, want 400", rec.Code)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestInitiateAcceptedByGateway(t *testing.T) {
    h, mock := newPaymentHandler(t)
    srv := fakeGateway(t, http.StatusOK, momo.Result{Accepted: true, TransactionID: "mm-900"})
    h.Momo = momo.NewClient(srv.URL, "test-key", time.Second)
    h.Cfg = config.Config{MomoCallbackURL: "https://api.example.test/v1/payments/webhook"}

    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(pendingBookingRows(t))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(activeRideRows(t, time.Now().UTC().Add(2*time.Hour)))
    // the PENDING row is written before the gateway call
    mock.ExpectExec("INSERT INTO payments").
        WillReturnResult(sqlmock.NewResult(11, 1))
    mock.ExpectExec("UPDATE payments").
        WillReturnResult(sqlmock.NewResult(0, 1))

    rec := authedRequest(t, h.Initiate, 9, "5", `{"phone":"+237 650 123 456"}`)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
    }
    var resp map[string]any
    if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
        t.Fatalf("unmarshal response: %v", err)
    }
    ref, _ := resp["reference"].(string)
    if !strings.HasPrefix(ref, "BF-") {
        t.Errorf("reference = %q, want BF- prefix", ref)
    }
    if resp["contact"] != "237650123456" {
        t.Errorf("contact = %v, want canonical 237650123456", resp["contact"])
    }
    if resp["status"] != model.PaymentStatusProcessing {
        t.Errorf("status = %v, want PROCESSING", resp["status"])
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestInitiateGatewayRejection(t *testing.T) {
    h, mock := newPaymentHandler(t)
    srv := fakeGateway(t, http.StatusUnprocessableEntity, momo.Result{Accepted: false, Message: "account blocked"})
    h.Momo = momo.NewClient(srv.URL, "test-key", time.Second)

    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(pendingBookingRows(t))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(activeRideRows(t, time.Now().UTC().Add(2*time.Hour)))
    mock.ExpectExec("INSERT INTO payments").
        WillReturnResult(sqlmock.NewResult(11, 1))
    // rejection is terminal for this attempt
    mock.ExpectExec("UPDATE payments").
        WillReturnResult(sqlmock.NewResult(0, 1))

    rec := authedRequest(t, h.Initiate, 9, "5", `{"phone":"650123456"}`)
    if rec.Code != http.StatusBadGateway {
        t.Fatalf("status = %d, want 502", rec.Code)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestInitiateGatewayUnreachableLeavesPaymentPending(t *testing.T) {
    h, mock := newPaymentHandler(t)
    srv := fakeGateway(t, http.StatusOK, momo.Result{Accepted: true})
    h.Momo = momo.NewClient(srv.URL, "test-key", time.Second)
    srv.Close() // the gateway is down before the call happens

    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(pendingBookingRows(t))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(activeRideRows(t, time.Now().UTC().Add(2*time.Hour)))
    // the payment row lands and then nothing touches it
    mock.ExpectExec("INSERT INTO payments").
        WillReturnResult(sqlmock.NewResult(11, 1))

    rec := authedRequest(t, h.Initiate, 9, "5", `{"phone":"650123456"}`)
    if rec.Code != http.StatusAccepted {
        t.Fatalf("status = %d, want 202", rec.Code)
    }
    if !strings.Contains(rec.Body.String(), model.PaymentStatusPending) {
        t.Errorf("body = %s, want PENDING status", rec.Body.String())
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}
