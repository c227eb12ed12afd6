// Package phone normalizes Korean mobile numbers to the canonical
// 010 + 8 digit form and produces display-safe masked renderings.
package phone

import "strings"

const (
	prefix          = "010"
	canonicalLength = 11
	// Masked is the fixed rendering shown for any valid stored number.
	// It intentionally reveals nothing beyond the constant prefix.
	Masked = "010********"
)

// Normalize strips all non-digit characters and coerces the result toward
// the canonical form: a bare 8-digit subscriber number gets the 010 prefix,
// an over-long 010-prefixed string is truncated to 11 digits. Anything else
// is returned as-is and left for IsValid to reject; Normalize itself never
// fails.
func Normalize(input string) string {
	var digits strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	if len(d) == canonicalLength-len(prefix) {
		return prefix + d
	}
	if strings.HasPrefix(d, prefix) && len(d) > canonicalLength {
		return d[:canonicalLength]
	}
	return d
}

// IsValid reports whether digits is exactly 010 followed by 8 digits.
func IsValid(digits string) bool {
	if len(digits) != canonicalLength || !strings.HasPrefix(digits, prefix) {
		return false
	}
	for _, r := range digits[len(prefix):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Mask returns the fixed masked form for input if it normalizes to a valid
// number, and ok=false for absent or invalid input.
func Mask(input string) (string, bool) {
	if strings.TrimSpace(input) == "" {
		return "", false
	}
	if !IsValid(Normalize(input)) {
		return "", false
	}
	return Masked, true
}
