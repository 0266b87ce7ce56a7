// Package queue defines message payloads exchanged over the message broker.
package queue

// BookingConfirmedEvent is published when a booking-fee payment
// completes and the booking is confirmed with seats reserved. It
// contains enough information for downstream consumers to log, notify,
// or trigger analytics without querying the primary database.
type BookingConfirmedEvent struct {
    BookingID   uint64 `json:"booking_id"`
    RideID      uint64 `json:"ride_id"`
    PassengerID uint64 `json:"passenger_id"`
    DriverID    uint64 `json:"driver_id"`
    OriginName  string `json:"origin_name"`
    DestName    string `json:"dest_name"`
    DepartureAt string `json:"departure_at"`
    SeatsBooked uint8  `json:"seats_booked"`
    BookingFee  uint32 `json:"booking_fee"`
    Reference   string `json:"reference"`
    ConfirmedAt string `json:"confirmed_at"`
}

// PaymentRefundedEvent is published when a cancellation resolves a
// refund. Recipient says which side of the trip the money went to.
type PaymentRefundedEvent struct {
    BookingID  uint64 `json:"booking_id"`
    RideID     uint64 `json:"ride_id"`
    Recipient  string `json:"recipient"` // "passenger" or "driver"
    Amount     uint32 `json:"amount"`
    Reference  string `json:"reference"`
    CancelledBy string `json:"cancelled_by"`
    RefundedAt string `json:"refunded_at"`
}
