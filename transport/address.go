package transport

import "strings"

// DefaultSuffix is the canonical recipient suffix.
const DefaultSuffix = "@c.us"

// Digits returns the decimal digits of a canonical address or raw phone
// representation, dropping any suffix.
func Digits(address string) string {
	if at := strings.Index(address, "@"); at >= 0 {
		address = address[:at]
	}
	var b strings.Builder
	for _, r := range address {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
