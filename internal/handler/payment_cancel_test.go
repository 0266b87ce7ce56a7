package handler

import (
    "encoding/json"
    "net/http"
    "strings"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"

    "github.com/blueoxgroup/blueox-ride/internal/model"
    "github.com/blueoxgroup/blueox-ride/internal/momo"
)

func confirmedBookingRows(t *testing.T) *sqlmock.Rows {
    t.Helper()
    now := time.Now().UTC()
    return sqlmock.NewRows(strings.Split(bookingCols, ", ")).
        AddRow(5, 3, 9, 2, 1000, model.BookingStatusConfirmed, now, now)
}

// expectRefundWrites covers the status transition, the original payment
// flip to REFUNDED, the seat release and the new refund row.
func expectRefundWrites(mock sqlmock.Sqlmock, cancelledStatus string) {
    mock.ExpectExec("UPDATE bookings SET status").
        WithArgs(cancelledStatus, uint64(5), model.BookingStatusConfirmed).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec("UPDATE payments SET status").
        WithArgs(model.PaymentStatusRefunded, uint64(11)).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec("UPDATE rides").
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec("UPDATE rides SET status").
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectExec("INSERT INTO payments").
        WillReturnResult(sqlmock.NewResult(12, 1))
}

func decodeRefund(t *testing.T, body []byte) (recipient string, reference string) {
    t.Helper()
    var resp struct {
        Status string `json:"status"`
        Refund struct {
            Recipient string `json:"recipient"`
            Amount    uint32 `json:"amount"`
            Reference string `json:"reference"`
        } `json:"refund"`
    }
    if err := json.Unmarshal(body, &resp); err != nil {
        t.Fatalf("unmarshal response: %v", err)
    }
    return resp.Refund.Recipient, resp.Refund.Reference
}

func TestCancelPassengerEarlyRefundsPassenger(t *testing.T) {
    h, mock := newPaymentHandler(t)
    srv := fakeGateway(t, http.StatusOK, momo.Result{Accepted: true, TransactionID: "mm-901"})
    h.Momo = momo.NewClient(srv.URL, "test-key", time.Second)

    mock.ExpectBegin()
    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(confirmedBookingRows(t))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(activeRideRows(t, time.Now().UTC().Add(2*time.Hour)))
    mock.ExpectQuery("FROM payments").
        WillReturnRows(paymentRow(model.PaymentStatusCompleted, model.PaymentTypeBookingFee))
    expectRefundWrites(mock, model.BookingStatusCancelledByPassenger)
    mock.ExpectCommit()
    // disbursement accepted after commit
    mock.ExpectExec("UPDATE payments").
        WillReturnResult(sqlmock.NewResult(0, 1))

    rec := authedRequest(t, h.Cancel, 9, "5", ``)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
    }
    recipient, ref := decodeRefund(t, rec.Body.Bytes())
    if recipient != "passenger" {
        t.Errorf("recipient = %q, want passenger", recipient)
    }
    if !strings.HasPrefix(ref, "RF-") {
        t.Errorf("reference = %q, want RF- prefix", ref)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCancelPassengerLateCompensatesDriver(t *testing.T) {
    h, mock := newPaymentHandler(t)
    srv := fakeGateway(t, http.StatusOK, momo.Result{Accepted: true, TransactionID: "mm-902"})
    h.Momo = momo.NewClient(srv.URL, "test-key", time.Second)

    mock.ExpectBegin()
    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(confirmedBookingRows(t))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(activeRideRows(t, time.Now().UTC().Add(30*time.Minute)))
    mock.ExpectQuery("FROM payments").
        WillReturnRows(paymentRow(model.PaymentStatusCompleted, model.PaymentTypeBookingFee))
    // inside the cutoff the payout goes to the driver's own contact
    mock.ExpectQuery("SELECT phone FROM users").
        WithArgs(uint64(2)).
        WillReturnRows(sqlmock.NewRows([]string{"phone"}).AddRow("237677000001"))
    expectRefundWrites(mock, model.BookingStatusCancelledByPassenger)
    mock.ExpectCommit()
    mock.ExpectExec("UPDATE payments").
        WillReturnResult(sqlmock.NewResult(0, 1))

    rec := authedRequest(t, h.Cancel, 9, "5", ``)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
    }
    recipient, _ := decodeRefund(t, rec.Body.Bytes())
    if recipient != "driver" {
        t.Errorf("recipient = %q, want driver", recipient)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCancelByDriverRefundsPassengerEvenInsideCutoff(t *testing.T) {
    h, mock := newPaymentHandler(t)
    srv := fakeGateway(t, http.StatusOK, momo.Result{Accepted: true, TransactionID: "mm-903"})
    h.Momo = momo.NewClient(srv.URL, "test-key", time.Second)

    mock.ExpectBegin()
    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(confirmedBookingRows(t))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(activeRideRows(t, time.Now().UTC().Add(10*time.Minute)))
    mock.ExpectQuery("FROM payments").
        WillReturnRows(paymentRow(model.PaymentStatusCompleted, model.PaymentTypeBookingFee))
    expectRefundWrites(mock, model.BookingStatusCancelledByDriver)
    mock.ExpectCommit()
    mock.ExpectExec("UPDATE payments").
        WillReturnResult(sqlmock.NewResult(0, 1))

    // user 2 is the driver of ride 3
    rec := authedRequest(t, h.Cancel, 2, "5", ``)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
    }
    recipient, _ := decodeRefund(t, rec.Body.Bytes())
    if recipient != "passenger" {
        t.Errorf("recipient = %q, want passenger", recipient)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCancelStandsWhenDisbursementFails(t *testing.T) {
    h, mock := newPaymentHandler(t)
    srv := fakeGateway(t, http.StatusOK, momo.Result{Accepted: true})
    h.Momo = momo.NewClient(srv.URL, "test-key", time.Second)
    srv.Close() // payout gateway is down

    mock.ExpectBegin()
    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(confirmedBookingRows(t))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(activeRideRows(t, time.Now().UTC().Add(2*time.Hour)))
    mock.ExpectQuery("FROM payments").
        WillReturnRows(paymentRow(model.PaymentStatusCompleted, model.PaymentTypeBookingFee))
    expectRefundWrites(mock, model.BookingStatusCancelledByPassenger)
    mock.ExpectCommit()
    // no payment update after commit: the refund stays PENDING

    rec := authedRequest(t, h.Cancel, 9, "5", ``)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCancelUnpaidBookingMovesNoMoney(t *testing.T) {
    h, mock := newPaymentHandler(t)
    now := time.Now().UTC()

    mock.ExpectBegin()
    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(sqlmock.NewRows(strings.Split(bookingCols, ", ")).
            AddRow(5, 3, 9, 2, 1000, model.BookingStatusPendingPayment, now, now))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(activeRideRows(t, now.Add(2*time.Hour)))
    mock.ExpectExec("UPDATE bookings SET status").
        WithArgs(model.BookingStatusCancelledByPassenger, uint64(5), model.BookingStatusPendingPayment).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    rec := authedRequest(t, h.Cancel, 9, "5", ``)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
    }
    if strings.Contains(rec.Body.String(), `"refund"`) {
        t.Errorf("body = %s, unpaid cancellation must not carry a refund", rec.Body.String())
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCancelByStrangerForbidden(t *testing.T) {
    h, mock := newPaymentHandler(t)

    mock.ExpectBegin()
    mock.ExpectQuery("FROM bookings WHERE id").
        WithArgs(uint64(5)).
        WillReturnRows(confirmedBookingRows(t))
    mock.ExpectQuery("FROM rides WHERE id").
        WithArgs(uint64(3)).
        WillReturnRows(activeRideRows(t, time.Now().UTC().Add(2*time.Hour)))
    mock.ExpectRollback()

    // user 77 is neither the passenger nor the driver
    rec := authedRequest(t, h.Cancel, 77, "5", ``)
    if rec.Code != http.StatusForbidden {
        t.Fatalf("status = %d, want 403", rec.Code)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}
