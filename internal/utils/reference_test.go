package utils

import (
    "regexp"
    "strings"
    "testing"
)

func TestBookingFee(t *testing.T) {
    tests := []struct {
        name         string
        pricePerSeat uint32
        seats        uint8
        want         uint32
    }{
        {"exact tenth", 5000, 2, 1000},
        {"rounds up", 5005, 1, 501},
        {"single franc", 1, 1, 1},
        {"three seats", 3333, 3, 1000},  // 9999 -> 999.9 -> 1000
        {"four seats", 12500, 4, 5000},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            if got := BookingFee(tt.pricePerSeat, tt.seats); got != tt.want {
                t.Errorf("BookingFee(%d, %d) = %d, want %d", tt.pricePerSeat, tt.seats, got, tt.want)
            }
        })
    }
}

func TestNewGatewayReferenceFormat(t *testing.T) {
    ref, err := NewGatewayReference("bf")
    if err != nil {
        t.Fatalf("NewGatewayReference: %v", err)
    }
    pattern := regexp.MustCompile(`^BF-[0-9A-Z]+-[0-9A-F]{8}$`)
    if !pattern.MatchString(ref) {
        t.Errorf("reference %q does not match %s", ref, pattern)
    }
    if !strings.HasPrefix(ref, "BF-") {
        t.Errorf("reference %q should carry the upper-cased prefix", ref)
    }
}

func TestNewGatewayReferenceUnique(t *testing.T) {
    seen := make(map[string]bool)
    for i := 0; i < 1000; i++ {
        ref, err := NewGatewayReference("RF")
        if err != nil {
            t.Fatalf("NewGatewayReference: %v", err)
        }
        if seen[ref] {
            t.Fatalf("duplicate reference %q after %d draws", ref, i)
        }
        seen[ref] = true
    }
}
