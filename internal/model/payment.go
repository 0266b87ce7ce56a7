package model

import "time"

// Payment type values.  BOOKING_FEE collects the deposit from the
// passenger; the REFUND_* types disburse it back out after a
// cancellation, to whichever party the refund policy resolves.
const (
    PaymentTypeBookingFee        = "BOOKING_FEE"
    PaymentTypeRefundToPassenger = "REFUND_TO_PASSENGER"
    PaymentTypeRefundToDriver    = "REFUND_TO_DRIVER"
)

// Payment status values.  PENDING means the row exists but the
// gateway has not acknowledged the request; PROCESSING means the
// gateway accepted it and the terminal state will arrive by webhook.
// REFUNDED is terminal and marks an original booking fee whose money
// went back out; it is distinct from FAILED so the reconciler's
// idempotency gate can treat both COMPLETED and REFUNDED as final.
const (
    PaymentStatusPending    = "PENDING"
    PaymentStatusProcessing = "PROCESSING"
    PaymentStatusCompleted  = "COMPLETED"
    PaymentStatusFailed     = "FAILED"
    PaymentStatusRefunded   = "REFUNDED"
)

// Payment records one mobile-money transaction attempt.  The
// GatewayReference is generated locally before the gateway call so a
// crash between the insert and the call still leaves an auditable
// row; it is unique and never reused across retries.
//
// Fields:
//  ID                   – primary key identifier.
//  BookingID            – booking this payment funds or refunds.
//  PayerID              – user the money is collected from (or paid to,
//                         for refunds).
//  Amount               – amount in minor currency units, positive.
//  PaymentType          – one of the PaymentType* constants.
//  Status               – one of the PaymentStatus* constants.
//  GatewayReference     – locally generated unique correlation token.
//  GatewayTransactionID – id assigned by the gateway, when present.
//  PayerContact         – canonical mobile-money number used for the call.
//  ErrorMessage         – last gateway or reconciliation error, if any.
//  RetryCount           – failed webhook deliveries observed so far.
//  CreatedAt            – creation timestamp.
//  UpdatedAt            – last update timestamp.
type Payment struct {
    ID                   uint64    // payments.id
    BookingID            uint64    // payments.booking_id
    PayerID              uint64    // payments.payer_id
    Amount               uint32    // payments.amount
    PaymentType          string    // payments.payment_type
    Status               string    // payments.status
    GatewayReference     string    // payments.gateway_reference
    GatewayTransactionID *string   // payments.gateway_transaction_id (nullable)
    PayerContact         string    // payments.payer_contact
    ErrorMessage         *string   // payments.error_message (nullable)
    RetryCount           uint32    // payments.retry_count
    CreatedAt            time.Time // payments.created_at
    UpdatedAt            time.Time // payments.updated_at
}
