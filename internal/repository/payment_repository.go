package repository

import (
    "context"
    "database/sql"

    "github.com/blueoxgroup/blueox-ride/internal/model"
)

// PaymentRepo provides data access to the payments table.  Payment
// status is owned exclusively by the initiation, webhook and refund
// workflows; nothing else mutates it.  The gateway_reference column
// carries a UNIQUE index, so a reference maps to at most one payment
// and the webhook reconciler can lock exactly the row it is about to
// transition.
type PaymentRepo struct {
    db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, booking_id, payer_id, amount, payment_type, status,
    gateway_reference, gateway_transaction_id, payer_contact, error_message,
    retry_count, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (model.Payment, error) {
    var p model.Payment
    var txnID, errMsg sql.NullString
    err := row.Scan(&p.ID, &p.BookingID, &p.PayerID, &p.Amount, &p.PaymentType,
        &p.Status, &p.GatewayReference, &txnID, &p.PayerContact, &errMsg,
        &p.RetryCount, &p.CreatedAt, &p.UpdatedAt)
    if err != nil {
        return p, err
    }
    if txnID.Valid {
        v := txnID.String
        p.GatewayTransactionID = &v
    }
    if errMsg.Valid {
        v := errMsg.String
        p.ErrorMessage = &v
    }
    return p, nil
}

// Create inserts a PENDING payment row and populates the generated ID.
// The row is written before the gateway is called so that a crash
// between the two steps still leaves an auditable record keyed by the
// reference.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
    const q = `INSERT INTO payments
        (booking_id, payer_id, amount, payment_type, status, gateway_reference, payer_contact)
        VALUES (?,?,?,?,?,?,?)`
    res, err := r.db.ExecContext(ctx, q,
        p.BookingID, p.PayerID, p.Amount, p.PaymentType,
        model.PaymentStatusPending, p.GatewayReference, p.PayerContact)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    p.ID = uint64(id)
    p.Status = model.PaymentStatusPending
    return nil
}

// CreateTx is Create inside an existing transaction.  Refund rows are
// inserted this way so the payout record commits or rolls back together
// with the cancellation that caused it.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
    const q = `INSERT INTO payments
        (booking_id, payer_id, amount, payment_type, status, gateway_reference, payer_contact)
        VALUES (?,?,?,?,?,?,?)`
    res, err := tx.ExecContext(ctx, q,
        p.BookingID, p.PayerID, p.Amount, p.PaymentType,
        model.PaymentStatusPending, p.GatewayReference, p.PayerContact)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    p.ID = uint64(id)
    p.Status = model.PaymentStatusPending
    return nil
}

// GetByReferenceTx looks a payment up by its gateway reference inside
// a transaction, locking the row.  The webhook reconciler performs
// its idempotency check against the locked row so the terminal-status
// test and the mutation happen under one lock.
func (r *PaymentRepo) GetByReferenceTx(ctx context.Context, tx *sql.Tx, ref string) (model.Payment, error) {
    const q = `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_reference = ? FOR UPDATE`
    return scanPayment(tx.QueryRowContext(ctx, q, ref))
}

// GetByID returns a payment by primary key. sql.ErrNoRows when absent.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (model.Payment, error) {
    const q = `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
    return scanPayment(r.db.QueryRowContext(ctx, q, id))
}

// FundingPaymentTx returns the COMPLETED booking-fee payment for a
// booking, when one exists.  The refund resolver requires it both as
// proof the booking was actually paid for and as the source of the
// passenger's payout contact.
func (r *PaymentRepo) FundingPaymentTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (model.Payment, error) {
    const q = `SELECT ` + paymentColumns + ` FROM payments
               WHERE booking_id = ? AND payment_type = ? AND status = ?
               ORDER BY id DESC LIMIT 1 FOR UPDATE`
    return scanPayment(tx.QueryRowContext(ctx, q, bookingID,
        model.PaymentTypeBookingFee, model.PaymentStatusCompleted))
}

// MarkProcessing records gateway acceptance: status PROCESSING plus
// the gateway-assigned transaction id when one was returned.
func (r *PaymentRepo) MarkProcessing(ctx context.Context, id uint64, txnID string) error {
    const q = `UPDATE payments SET status = ?, gateway_transaction_id = NULLIF(?, '') WHERE id = ?`
    _, err := r.db.ExecContext(ctx, q, model.PaymentStatusProcessing, txnID, id)
    return err
}

// MarkFailed records a terminal failure with the gateway's message.
func (r *PaymentRepo) MarkFailed(ctx context.Context, id uint64, msg string) error {
    const q = `UPDATE payments SET status = ?, error_message = ? WHERE id = ?`
    _, err := r.db.ExecContext(ctx, q, model.PaymentStatusFailed, msg, id)
    return err
}

// UpdateStatusTx sets a payment's status inside a transaction.
func (r *PaymentRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status string) error {
    _, err := tx.ExecContext(ctx, `UPDATE payments SET status = ? WHERE id = ?`, status, id)
    return err
}

// MarkCompletedTx marks a payment COMPLETED and stores the gateway
// transaction id delivered with the webhook, when present.
func (r *PaymentRepo) MarkCompletedTx(ctx context.Context, tx *sql.Tx, id uint64, txnID string) error {
    const q = `UPDATE payments
               SET status = ?, gateway_transaction_id = COALESCE(NULLIF(?, ''), gateway_transaction_id)
               WHERE id = ?`
    _, err := tx.ExecContext(ctx, q, model.PaymentStatusCompleted, txnID, id)
    return err
}

// MarkFailedTx marks a payment FAILED with a per-substatus cause and
// bumps retry_count so support can see how often the gateway reported
// a non-success outcome for this reference.
func (r *PaymentRepo) MarkFailedTx(ctx context.Context, tx *sql.Tx, id uint64, msg string) error {
    const q = `UPDATE payments
               SET status = ?, error_message = ?, retry_count = retry_count + 1
               WHERE id = ?`
    _, err := tx.ExecContext(ctx, q, model.PaymentStatusFailed, msg, id)
    return err
}

// FlagReconciliationTx stores a reconciliation note on a payment
// without touching its status.  Used when money was taken but the
// seats could not be reserved anymore; the payment stays COMPLETED
// and the note makes the case visible to support.
func (r *PaymentRepo) FlagReconciliationTx(ctx context.Context, tx *sql.Tx, id uint64, note string) error {
    const q = `UPDATE payments SET error_message = ? WHERE id = ?`
    _, err := tx.ExecContext(ctx, q, note, id)
    return err
}

// ListByBooking returns all payments attached to a booking, oldest
// first, giving support the full money trail for one reservation.
func (r *PaymentRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error) {
    const q = `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = ? ORDER BY id ASC`
    rows, err := r.db.QueryContext(ctx, q, bookingID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    payments := make([]model.Payment, 0)
    for rows.Next() {
        p, err := scanPayment(rows)
        if err != nil {
            return nil, err
        }
        payments = append(payments, p)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return payments, nil
}
