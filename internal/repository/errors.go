// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrInsufficientSeats tells the webhook reconciler that a
// ride's capacity was exhausted by a faster concurrent booking, while
// ErrForbidden indicates that the current user is not authorized to
// perform an operation on a resource owned by someone else.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed
// because of conflicting state, such as paying for a booking that
// is no longer PENDING_PAYMENT. Handlers should translate this
// into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrInsufficientSeats is returned by RideRepo.ReserveSeatsTx when the
// conditional decrement matches no row, i.e. the ride no longer has
// enough open seats (or is no longer ACTIVE). This is a real-time
// resource conflict, never a transient fault, so callers surface it
// as a rejection instead of retrying.
var ErrInsufficientSeats = errors.New("insufficient seats")

// ErrDuplicateBooking is returned when a passenger already holds an
// active (non-cancelled) booking on the same ride.
var ErrDuplicateBooking = errors.New("duplicate active booking")

// ErrEmailExists is returned by UserRepo.Create when the email is
// already registered.
var ErrEmailExists = errors.New("email already exists")

// ErrNoPayoutContact is returned when a refund must be routed to a
// user who has no mobile-money number on file; the refund cannot be
// issued until support records one.
var ErrNoPayoutContact = errors.New("no payout contact on file")
