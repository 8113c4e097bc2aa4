// Package transport defines the capability a session uses to reach the
// messaging network.
//
// A [Transport] reports its authentication progress as a stream of typed
// [Event] values and performs synchronous sends. Implementations live in
// subpackages:
//
//   - github.com/spachava753/msgsession/transport/smtpgw
//     Email-to-SMS gateway over SMTP with SASL PLAIN authentication.
//   - github.com/spachava753/msgsession/transport/imessage
//     macOS Messages.app via AppleScript.
//   - github.com/spachava753/msgsession/transport/transporttest
//     Scriptable in-memory transport for tests.
package transport

import (
	"errors"
	"fmt"
)

// EventKind identifies a lifecycle event.
type EventKind string

const (
	// EventQR carries a handshake payload the user must act on (for example
	// a scannable code).
	EventQR EventKind = "qr"
	// EventAuthenticated reports that stored or fresh credentials were
	// accepted.
	EventAuthenticated EventKind = "authenticated"
	// EventReady reports that the transport can send.
	EventReady EventKind = "ready"
	// EventAuthFailure reports that the credentials were rejected.
	EventAuthFailure EventKind = "auth_failure"
	// EventDisconnected reports that the transport logged out or lost its
	// connection for good.
	EventDisconnected EventKind = "disconnected"
)

// Event is one lifecycle notification from a transport.
type Event struct {
	Kind EventKind
	// Payload is the handshake payload for EventQR.
	Payload string
	// Reason is free text for EventAuthFailure and EventDisconnected.
	Reason string
}

// String formats the event for logs.
func (e Event) String() string {
	switch {
	case e.Kind == EventQR:
		return fmt.Sprintf("%s (%d bytes)", e.Kind, len(e.Payload))
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	default:
		return string(e.Kind)
	}
}

// Media is a resolved attachment.
type Media struct {
	MimeType string
	Filename string
	Data     []byte
}

// Transport is the external messaging capability owned by one session.
//
// Start bootstraps the transport. It may block while connecting; callers run
// it off the request path. A returned error means bootstrap failed before
// any event could be produced. The event channel is closed by the transport
// after its final event.
//
// Recipients passed to SendText and SendMedia are canonical addresses of the
// form "<digits>@<suffix>".
type Transport interface {
	Start() (<-chan Event, error)
	SendText(to string, body string) error
	SendMedia(to string, media Media, caption string) error
	Close() error
}

// Factory builds the transport for a session. credentialDir is the session's
// persisted-credential directory; it may not exist yet.
type Factory func(sessionID string, credentialDir string) (Transport, error)

// ErrClosed is returned by sends on a closed transport.
var ErrClosed = errors.New("transport: closed")
