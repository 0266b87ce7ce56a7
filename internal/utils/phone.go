package utils

import (
    "errors"
    "regexp"
    "strings"
)

// ErrInvalidMsisdn is returned when a contact number cannot be reduced
// to a valid Cameroonian mobile-money number.
var ErrInvalidMsisdn = errors.New("invalid mobile money number")

// Cameroonian mobile numbers are nine digits starting with 6; the
// second digit selects the operator range (MTN and Orange both live
// in 62/65–69). Mobile-money accounts only exist on these ranges.
var msisdnLocal = regexp.MustCompile(`^6[25-9][0-9]{7}$`)

// NormalizeMsisdn canonicalizes a user-supplied mobile-money contact to
// the international digit form "2376XXXXXXXX".  Spacing, dashes, dots,
// parentheses, a leading "+", the "237" country code and the "00237"
// dial prefix are all tolerated on input.  The result is deterministic:
// every spelling of the same physical number yields the same stored
// digits, which is what lets later webhooks and support searches match
// on the contact.  ErrInvalidMsisdn is returned for anything that does
// not reduce to a valid local number.
func NormalizeMsisdn(raw string) (string, error) {
    var digits strings.Builder
    for _, r := range strings.TrimSpace(raw) {
        switch {
        case r >= '0' && r <= '9':
            digits.WriteRune(r)
        case r == '+' || r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
            // separators and the plus sign are dropped
        default:
            return "", ErrInvalidMsisdn
        }
    }
    d := digits.String()
    // strip dial prefixes down to the nine local digits
    switch {
    case strings.HasPrefix(d, "00237") && len(d) == 14:
        d = d[5:]
    case strings.HasPrefix(d, "237") && len(d) == 12:
        d = d[3:]
    }
    if !msisdnLocal.MatchString(d) {
        return "", ErrInvalidMsisdn
    }
    return "237" + d, nil
}
