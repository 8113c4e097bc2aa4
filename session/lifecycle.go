package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/spachava753/msgsession/msgerr"
	"github.com/spachava753/msgsession/transport"
)

// Lifecycle applies transport events to sessions.
//
// Each session has one lifecycle goroutine, which is the only writer of its
// status, payload and transport handle.
type Lifecycle struct {
	registry    *Registry
	credentials CredentialStore
	logger      zerolog.Logger
	now         func() time.Time
}

// run bootstraps the session's transport and consumes its events until a
// terminal transition or the end of the stream.
func (l *Lifecycle) run(s *Session) {
	t := s.Transport()
	if t == nil {
		return
	}
	events, err := t.Start()
	if err != nil {
		l.bootstrapFailed(s, err)
		return
	}
	for ev := range events {
		if l.Apply(s, ev) {
			return
		}
	}
	// A stream that ends without a terminal event is treated as a logout.
	l.Apply(s, transport.Event{Kind: transport.EventDisconnected, Reason: "event stream closed"})
}

// Apply applies one event to s and reports whether s is now terminal.
// Events for a terminal session are ignored.
func (l *Lifecycle) Apply(s *Session, ev transport.Event) bool {
	current := s.Status()
	if current.Terminal() {
		l.logger.Debug().Str("session", s.id).Stringer("event", ev).Msg("event ignored after terminal state")
		return true
	}

	switch ev.Kind {
	case transport.EventQR:
		if ev.Payload == "" {
			l.logger.Warn().Str("session", s.id).Msg("handshake event without payload ignored")
			return false
		}
		l.move(s, StatusQRPending, ev)
		return false

	case transport.EventReady, transport.EventAuthenticated:
		l.move(s, StatusConnected, ev)
		return false

	case transport.EventAuthFailure:
		l.logger.Warn().
			Str("session", s.id).
			Str("kind", string(msgerr.KindAuthentication)).
			Str("reason", ev.Reason).
			Msg("stored credentials rejected")
		if err := l.credentials.Delete(s.id); err != nil {
			l.logger.Error().Err(err).Str("session", s.id).Msg("credential cleanup failed")
		}
		l.closeTransport(s)
		l.retire(s, StatusAuthFailed, ev)
		return true

	case transport.EventDisconnected:
		l.closeTransport(s)
		l.retire(s, StatusDisconnected, ev)
		return true

	default:
		l.logger.Warn().Str("session", s.id).Str("event", string(ev.Kind)).Msg("unknown transport event")
		return false
	}
}

func (l *Lifecycle) move(s *Session, status Status, ev transport.Event) {
	payload := ""
	if status == StatusQRPending {
		payload = ev.Payload
	}
	previous := s.transition(status, payload, l.now())
	l.logTransition(s, previous, status, ev)
}

// retire records a terminal status. The session leaves the registry in the
// same step, so lookups never return a terminal session.
func (l *Lifecycle) retire(s *Session, status Status, ev transport.Event) {
	previous := l.registry.retire(s, status, l.now())
	l.logTransition(s, previous, status, ev)
}

func (l *Lifecycle) logTransition(s *Session, previous Status, status Status, ev transport.Event) {
	l.logger.Info().
		Str("session", s.id).
		Stringer("event", ev).
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("session transition")
}

func (l *Lifecycle) closeTransport(s *Session) {
	t := s.releaseTransport()
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		l.logger.Warn().Err(err).Str("session", s.id).Msg("closing transport failed")
	}
}

// bootstrapFailed forgets s as if it never existed. No terminal status is
// recorded.
func (l *Lifecycle) bootstrapFailed(s *Session, err error) {
	l.logger.Error().Err(err).Str("session", s.id).Msg("transport bootstrap failed")
	l.registry.removeIfCurrent(s)
	l.closeTransport(s)
}
