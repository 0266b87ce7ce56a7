package model

import "time"

// Booking status values.  A booking is created PENDING_PAYMENT and is
// only CONFIRMED when its funding payment completes.  The two
// cancelled variants record who cancelled, which drives refund
// routing.  COMPLETED is set when the ride itself completes.
const (
    BookingStatusPendingPayment       = "PENDING_PAYMENT"
    BookingStatusConfirmed            = "CONFIRMED"
    BookingStatusCancelledByPassenger = "CANCELLED_BY_PASSENGER"
    BookingStatusCancelledByDriver    = "CANCELLED_BY_DRIVER"
    BookingStatusCompleted            = "COMPLETED"
)

// Booking reserves seats on a ride for a passenger.  Seats are only
// tentatively requested at creation; the ride's inventory is touched
// when the booking fee payment completes, never before.  BookingFee
// is 10% of PricePerSeat×SeatsBooked, rounded up; the remainder is
// settled in cash after the trip.
//
// Fields:
//  ID          – primary key identifier.
//  RideID      – ride being booked.
//  PassengerID – user booking the seats.
//  SeatsBooked – number of seats requested, 1..4.
//  BookingFee  – online deposit in minor currency units.
//  Status      – one of the BookingStatus* constants.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Booking struct {
    ID          uint64    // bookings.id
    RideID      uint64    // bookings.ride_id
    PassengerID uint64    // bookings.passenger_id
    SeatsBooked uint8     // bookings.seats_booked
    BookingFee  uint32    // bookings.booking_fee
    Status      string    // bookings.status
    CreatedAt   time.Time // bookings.created_at
    UpdatedAt   time.Time // bookings.updated_at
}

// ActiveBookingStatuses lists the statuses that count toward the
// one-active-booking-per-(ride,passenger) rule.
var ActiveBookingStatuses = []string{
    BookingStatusPendingPayment,
    BookingStatusConfirmed,
    BookingStatusCompleted,
}
