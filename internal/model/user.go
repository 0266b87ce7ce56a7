package model

import "time"

// User role values.  A DRIVER publishes rides; a PASSENGER books seats
// on them.  One account holds exactly one role.
const (
    RoleDriver    = "DRIVER"
    RolePassenger = "PASSENGER"
)

// User represents an account on the platform.  A user is either a
// DRIVER who publishes rides or a PASSENGER who books seats.  The
// phone number doubles as the mobile-money payout contact and is
// stored in canonical digits (see utils.NormalizeMsisdn).
//
// Fields:
//  ID           – primary key identifier.
//  Email        – unique login email, lower-cased.
//  PasswordHash – bcrypt hashed password.
//  FullName     – display name shown on rides and bookings.
//  Phone        – canonical mobile-money number, may be empty for
//                 drivers who never received a payout.
//  Role         – DRIVER or PASSENGER.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    FullName     string    // users.full_name
    Phone        string    // users.phone
    Role         string    // users.role
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}
