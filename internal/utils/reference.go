package utils

import (
    "fmt"
    "strconv"
    "strings"
    "time"
)

// NewGatewayReference builds a globally unique reference correlating a
// payment with one external mobile-money transaction attempt.  The
// nanosecond timestamp makes references monotonically discriminating
// across retries, the random tail keeps two requests in the same
// nanosecond apart, and the prefix ("BF" for booking fees, "RF" for
// refunds) makes the money direction readable in gateway dashboards.
// References are never reused: a failed payment keeps its reference
// and a retry gets a fresh one.
func NewGatewayReference(prefix string) (string, error) {
    tail, err := randomHex(4) // 8 hex chars
    if err != nil {
        return "", err
    }
    ts := strconv.FormatInt(time.Now().UTC().UnixNano(), 36)
    return fmt.Sprintf("%s-%s-%s", strings.ToUpper(prefix), strings.ToUpper(ts), strings.ToUpper(tail)), nil
}

// BookingFee computes the 10% online deposit for a booking, rounded up
// to the next minor currency unit. Integer math only: ceil(a*10%) is
// (a+9)/10.
func BookingFee(pricePerSeat uint32, seats uint8) uint32 {
    total := uint64(pricePerSeat) * uint64(seats)
    return uint32((total + 9) / 10)
}
