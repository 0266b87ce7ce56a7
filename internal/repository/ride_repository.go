package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/blueoxgroup/blueox-ride/internal/model"
)

// RideRepo provides data access to the rides table and owns every
// mutation of a ride's seat inventory.  Seat counts are only ever
// changed through ReserveSeatsTx and ReleaseSeatsTx, both of which
// run as single conditional UPDATE statements so that two passengers
// racing for the last seats serialize inside the database instead of
// losing updates across separate read and write round trips.
type RideRepo struct {
    db *sql.DB
}

// NewRideRepo returns a new RideRepo bound to the given database.
func NewRideRepo(db *sql.DB) *RideRepo { return &RideRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions
// spanning multiple repositories.
func (r *RideRepo) DB() *sql.DB { return r.db }

const rideColumns = `id, driver_id, origin_name, origin_lat, origin_lng,
    dest_name, dest_lat, dest_lng, departure_at, price_per_seat,
    total_seats, available_seats, status, created_at, updated_at`

func scanRide(row interface{ Scan(...any) error }) (model.Ride, error) {
    var rd model.Ride
    err := row.Scan(
        &rd.ID, &rd.DriverID, &rd.OriginName, &rd.OriginLat, &rd.OriginLng,
        &rd.DestName, &rd.DestLat, &rd.DestLng, &rd.DepartureAt, &rd.PricePerSeat,
        &rd.TotalSeats, &rd.AvailableSeats, &rd.Status, &rd.CreatedAt, &rd.UpdatedAt,
    )
    return rd, err
}

// Create inserts a new ride with available_seats equal to total_seats
// and status ACTIVE. It populates the generated ID on the model.
func (r *RideRepo) Create(ctx context.Context, rd *model.Ride) error {
    const q = `INSERT INTO rides
        (driver_id, origin_name, origin_lat, origin_lng, dest_name, dest_lat, dest_lng,
         departure_at, price_per_seat, total_seats, available_seats, status)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`
    res, err := r.db.ExecContext(ctx, q,
        rd.DriverID, rd.OriginName, rd.OriginLat, rd.OriginLng,
        rd.DestName, rd.DestLat, rd.DestLng,
        rd.DepartureAt.UTC(), rd.PricePerSeat, rd.TotalSeats, rd.TotalSeats,
        model.RideStatusActive)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    rd.ID = uint64(id)
    rd.AvailableSeats = rd.TotalSeats
    rd.Status = model.RideStatusActive
    return nil
}

// GetByID returns a single ride. sql.ErrNoRows when absent.
func (r *RideRepo) GetByID(ctx context.Context, id uint64) (model.Ride, error) {
    const q = `SELECT ` + rideColumns + ` FROM rides WHERE id = ?`
    return scanRide(r.db.QueryRowContext(ctx, q, id))
}

// GetByIDTx is GetByID inside an existing transaction with a row lock,
// used when a workflow needs the ride's departure time and driver to
// stay stable for the rest of the transaction.
func (r *RideRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Ride, error) {
    const q = `SELECT ` + rideColumns + ` FROM rides WHERE id = ? FOR UPDATE`
    return scanRide(tx.QueryRowContext(ctx, q, id))
}

// ReserveSeatsTx atomically takes seats from a ride's inventory.  The
// decrement and the availability check are one statement: the WHERE
// predicate only matches when the ride is ACTIVE and still has the
// requested number of seats, so a concurrent confirmation that got
// there first makes this one return ErrInsufficientSeats instead of
// driving available_seats negative.  When the last seat goes, the
// ride flips ACTIVE -> FULL in a second statement inside the same
// transaction.
func (r *RideRepo) ReserveSeatsTx(ctx context.Context, tx *sql.Tx, rideID uint64, seats uint8) error {
    const q = `UPDATE rides
               SET available_seats = available_seats - ?
               WHERE id = ? AND status = ? AND available_seats >= ?`
    res, err := tx.ExecContext(ctx, q, seats, rideID, model.RideStatusActive, seats)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrInsufficientSeats
    }
    const flip = `UPDATE rides SET status = ? WHERE id = ? AND available_seats = 0 AND status = ?`
    _, err = tx.ExecContext(ctx, flip, model.RideStatusFull, rideID, model.RideStatusActive)
    return err
}

// ReleaseSeatsTx returns seats to a ride's inventory after a booking
// cancellation.  The increment is capped by total_seats in the WHERE
// predicate so a stray double release can never overflow capacity.  A
// FULL ride regains ACTIVE status; a CANCELLED ride keeps its status,
// the seats are only released for bookkeeping.
func (r *RideRepo) ReleaseSeatsTx(ctx context.Context, tx *sql.Tx, rideID uint64, seats uint8) error {
    const q = `UPDATE rides
               SET available_seats = available_seats + ?
               WHERE id = ? AND available_seats + ? <= total_seats`
    res, err := tx.ExecContext(ctx, q, seats, rideID, seats)
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
    const flip = `UPDATE rides SET status = ? WHERE id = ? AND status = ?`
    _, err = tx.ExecContext(ctx, flip, model.RideStatusActive, rideID, model.RideStatusFull)
    return err
}

// UpdateStatusTx moves a ride to the given status inside a transaction.
// Terminal transitions (COMPLETED, CANCELLED) go through here.
func (r *RideRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, rideID uint64, status string) error {
    _, err := tx.ExecContext(ctx, `UPDATE rides SET status = ? WHERE id = ?`, status, rideID)
    return err
}

// ListByDriver returns all rides published by a driver, newest first.
func (r *RideRepo) ListByDriver(ctx context.Context, driverID uint64) ([]model.Ride, error) {
    const q = `SELECT ` + rideColumns + ` FROM rides WHERE driver_id = ? ORDER BY departure_at DESC`
    rows, err := r.db.QueryContext(ctx, q, driverID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return collectRides(rows)
}

// SearchParams narrows the public ride search.  Zero values mean "any".
type SearchParams struct {
    Origin string    // substring match on origin_name
    Dest   string    // substring match on dest_name
    Date   time.Time // calendar day of departure, UTC
}

// Search returns ACTIVE rides with at least one open seat departing in
// the future, optionally filtered by origin/destination substrings and
// a departure day.  Results are ordered by departure time.
func (r *RideRepo) Search(ctx context.Context, p SearchParams) ([]model.Ride, error) {
    q := `SELECT ` + rideColumns + ` FROM rides
          WHERE status = ? AND available_seats > 0 AND departure_at > UTC_TIMESTAMP()`
    args := []any{model.RideStatusActive}
    if s := strings.TrimSpace(p.Origin); s != "" {
        q += ` AND origin_name LIKE ?`
        args = append(args, "%"+s+"%")
    }
    if s := strings.TrimSpace(p.Dest); s != "" {
        q += ` AND dest_name LIKE ?`
        args = append(args, "%"+s+"%")
    }
    if !p.Date.IsZero() {
        q += ` AND DATE(departure_at) = ?`
        args = append(args, p.Date.UTC().Format("2006-01-02"))
    }
    q += ` ORDER BY departure_at ASC`
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return collectRides(rows)
}

func collectRides(rows *sql.Rows) ([]model.Ride, error) {
    rides := make([]model.Ride, 0)
    for rows.Next() {
        rd, err := scanRide(rows)
        if err != nil {
            return nil, err
        }
        rides = append(rides, rd)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return rides, nil
}
