package transport

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestDigits(t *testing.T) {
	be.Equal(t, Digits("15551234567@c.us"), "15551234567")
	be.Equal(t, Digits("+1 (555) 123-4567"), "15551234567")
	be.Equal(t, Digits("no digits"), "")
}

func TestEventString(t *testing.T) {
	be.Equal(t, Event{Kind: EventQR, Payload: "abcd"}.String(), "qr (4 bytes)")
	be.Equal(t, Event{Kind: EventAuthFailure, Reason: "bad password"}.String(), "auth_failure: bad password")
	be.Equal(t, Event{Kind: EventReady}.String(), "ready")
}
