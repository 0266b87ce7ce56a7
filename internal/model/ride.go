package model

import "time"

// Ride status values.  A ride starts ACTIVE, flips to FULL when its
// last seat is reserved, returns to ACTIVE when seats are released,
// and terminates in COMPLETED or CANCELLED.
const (
    RideStatusActive    = "ACTIVE"
    RideStatusFull      = "FULL"
    RideStatusCompleted = "COMPLETED"
    RideStatusCancelled = "CANCELLED"
)

// Ride is a trip published by a driver with a fixed seat inventory
// and a per-seat price.  available_seats never exceeds total_seats
// and never goes negative; both bounds are enforced by the database
// CHECK constraint and by the conditional updates in RideRepo.
//
// Fields:
//  ID            – primary key identifier.
//  DriverID      – user who published the ride.
//  OriginName    – human readable pickup location.
//  OriginLat/Lng – pickup coordinates.
//  DestName      – human readable drop-off location.
//  DestLat/Lng   – drop-off coordinates.
//  DepartureAt   – scheduled departure, UTC.
//  PricePerSeat  – price per seat in minor currency units (XAF).
//  TotalSeats    – published capacity, 1..8.
//  AvailableSeats– seats still open, 0..TotalSeats.
//  Status        – one of the RideStatus* constants.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Ride struct {
    ID             uint64    // rides.id
    DriverID       uint64    // rides.driver_id
    OriginName     string    // rides.origin_name
    OriginLat      float64   // rides.origin_lat
    OriginLng      float64   // rides.origin_lng
    DestName       string    // rides.dest_name
    DestLat        float64   // rides.dest_lat
    DestLng        float64   // rides.dest_lng
    DepartureAt    time.Time // rides.departure_at
    PricePerSeat   uint32    // rides.price_per_seat
    TotalSeats     uint8     // rides.total_seats
    AvailableSeats uint8     // rides.available_seats
    Status         string    // rides.status
    CreatedAt      time.Time // rides.created_at
    UpdatedAt      time.Time // rides.updated_at
}
