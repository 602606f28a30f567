// Package phonenum normalizes subscriber numbers to E.164 form.
// The canonical form is +<country><subscriber>; bare national numbers
// (0XXXX) are assumed to be Iranian (+98).
package phonenum

import (
	"errors"
	"strings"
)

const defaultCountryCode = "98"

var ErrMalformed = errors.New("malformed number")

// Normalize converts a number to canonical +<cc><subscriber> form.
// Accepted inputs: "+98912...", "0098912...", "00<cc>...", "0912...".
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	if s == "" {
		return "", ErrMalformed
	}

	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "00"):
		s = s[2:]
	case strings.HasPrefix(s, "0"):
		s = defaultCountryCode + s[1:]
	default:
		// Already bare international digits.
	}

	if len(s) < 5 || !digitsOnly(s) {
		return "", ErrMalformed
	}
	return "+" + s, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
