package dispatch

import (
	"fmt"

	"github.com/spachava753/msgsession/msgerr"
	"github.com/spachava753/msgsession/transport"
)

// NormalizeRecipient keeps only the decimal digits of to and appends suffix.
func NormalizeRecipient(to string, suffix string) (string, error) {
	digits := transport.Digits(to)
	if digits == "" {
		return "", msgerr.New(msgerr.KindValidation, fmt.Sprintf("Invalid recipient: %q contains no digits", to))
	}
	return digits + suffix, nil
}
