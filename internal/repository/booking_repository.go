package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/blueoxgroup/blueox-ride/internal/model"
)

// BookingRepo provides data access to the bookings table.  Booking
// status is the single source of truth for whether a seat transition
// already happened: both the webhook reconciler and the refund
// resolver gate their seat-inventory side effects on a conditional
// status UPDATE here, which can only succeed once.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, ride_id, passenger_id, seats_booked, booking_fee, status, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
    var b model.Booking
    err := row.Scan(&b.ID, &b.RideID, &b.PassengerID, &b.SeatsBooked,
        &b.BookingFee, &b.Status, &b.CreatedAt, &b.UpdatedAt)
    return b, err
}

// CreateTx inserts a PENDING_PAYMENT booking inside a transaction.
// The one-active-booking-per-(ride,passenger) rule is enforced here
// with a conditional INSERT ... SELECT that only produces a row when
// no non-cancelled booking exists for the pair; zero rows inserted
// means the passenger already has one and ErrDuplicateBooking is
// returned.  Doing the check and the insert in one statement keeps
// the rule safe under concurrent requests from the same passenger.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
    const q = `INSERT INTO bookings (ride_id, passenger_id, seats_booked, booking_fee, status)
               SELECT ?, ?, ?, ?, ?
               FROM DUAL
               WHERE NOT EXISTS (
                   SELECT 1 FROM bookings
                   WHERE ride_id = ? AND passenger_id = ?
                     AND status NOT IN (?, ?)
               )`
    res, err := tx.ExecContext(ctx, q,
        b.RideID, b.PassengerID, b.SeatsBooked, b.BookingFee, model.BookingStatusPendingPayment,
        b.RideID, b.PassengerID,
        model.BookingStatusCancelledByPassenger, model.BookingStatusCancelledByDriver)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrDuplicateBooking
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)
    b.Status = model.BookingStatusPendingPayment
    return nil
}

// GetByID returns a single booking. sql.ErrNoRows when absent.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
    const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
    return scanBooking(r.db.QueryRowContext(ctx, q, id))
}

// GetByIDTx returns a booking inside a transaction with a row lock so
// that its status cannot change under a workflow that is about to
// transition it.
func (r *BookingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Booking, error) {
    const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? FOR UPDATE`
    return scanBooking(tx.QueryRowContext(ctx, q, id))
}

// TransitionTx moves a booking from one exact status to another.  The
// WHERE clause carries the expected current status, so the transition
// happens at most once no matter how many times a webhook or cancel
// request replays; zero affected rows reports ErrConflict and the
// caller treats the transition as already done (or no longer legal).
func (r *BookingRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error {
    const q = `UPDATE bookings SET status = ? WHERE id = ? AND status = ?`
    res, err := tx.ExecContext(ctx, q, to, id, from)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrConflict
    }
    return nil
}

// ListConfirmedByRideTx returns all CONFIRMED bookings for a ride,
// locked for update.  The driver-side ride cancellation walks this
// list to fan refunds out to every funded passenger.
func (r *BookingRepo) ListConfirmedByRideTx(ctx context.Context, tx *sql.Tx, rideID uint64) ([]model.Booking, error) {
    const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE ride_id = ? AND status = ? FOR UPDATE`
    rows, err := tx.QueryContext(ctx, q, rideID, model.BookingStatusConfirmed)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    bookings := make([]model.Booking, 0)
    for rows.Next() {
        b, err := scanBooking(rows)
        if err != nil {
            return nil, err
        }
        bookings = append(bookings, b)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return bookings, nil
}

// CompleteByRideTx marks every CONFIRMED booking of a ride COMPLETED.
// Invoked when the driver marks the ride complete after departure.
func (r *BookingRepo) CompleteByRideTx(ctx context.Context, tx *sql.Tx, rideID uint64) error {
    const q = `UPDATE bookings SET status = ? WHERE ride_id = ? AND status = ?`
    _, err := tx.ExecContext(ctx, q, model.BookingStatusCompleted, rideID, model.BookingStatusConfirmed)
    return err
}

// BookingDetail pairs a booking with the ride fields a passenger needs
// to see in a listing.
type BookingDetail struct {
    ID          uint64 `json:"id"`
    RideID      uint64 `json:"ride_id"`
    SeatsBooked uint8  `json:"seats_booked"`
    BookingFee  uint32 `json:"booking_fee"`
    Status      string `json:"status"`
    OriginName  string `json:"origin_name"`
    DestName    string `json:"dest_name"`
    DepartureAt string `json:"departure_at"`
    PricePerSeat uint32 `json:"price_per_seat"`
    DriverName  string `json:"driver_name"`
}

// ListByPassenger returns all bookings for the given passenger along
// with ride and driver details, newest first.
func (r *BookingRepo) ListByPassenger(ctx context.Context, passengerID uint64) ([]BookingDetail, error) {
    const q = `SELECT b.id, b.ride_id, b.seats_booked, b.booking_fee, b.status,
                      r.origin_name, r.dest_name, r.departure_at, r.price_per_seat,
                      u.full_name
               FROM bookings b
               JOIN rides r ON r.id = b.ride_id
               JOIN users u ON u.id = r.driver_id
               WHERE b.passenger_id = ?
               ORDER BY b.created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, passengerID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    details := make([]BookingDetail, 0)
    for rows.Next() {
        var d BookingDetail
        var dep sql.NullTime
        if err := rows.Scan(&d.ID, &d.RideID, &d.SeatsBooked, &d.BookingFee, &d.Status,
            &d.OriginName, &d.DestName, &dep, &d.PricePerSeat, &d.DriverName); err != nil {
            return nil, err
        }
        if dep.Valid {
            d.DepartureAt = dep.Time.UTC().Format(time.RFC3339)
        }
        details = append(details, d)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return details, nil
}
