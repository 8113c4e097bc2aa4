package session

import (
	"sync"
	"time"

	"github.com/spachava753/msgsession/transport"
)

// Status is the connection state of a session.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusQRPending    Status = "qr_pending"
	StatusConnected    Status = "connected"
	StatusAuthFailed   Status = "auth_failed"
	StatusDisconnected Status = "disconnected"

	// StatusNotFound is reported for ids with no live session. No session
	// ever holds it.
	StatusNotFound Status = "not found"
)

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusAuthFailed || s == StatusDisconnected
}

// Session is the per-id connection state and its transport handle.
type Session struct {
	id string

	mu             sync.RWMutex
	status         Status
	qrPayload      string
	transport      transport.Transport
	lastTransition time.Time
	changed        chan struct{}
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID             string
	Status         Status
	QRPayload      string
	LastTransition time.Time
}

func newSession(id string, t transport.Transport, now time.Time) *Session {
	return &Session{
		id:             id,
		status:         StatusInitializing,
		transport:      t,
		lastTransition: now,
		changed:        make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Transport returns the transport handle, or nil once released.
func (s *Session) Transport() transport.Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport
}

// observe returns the state together with a channel closed on the next
// transition.
func (s *Session) observe() (Snapshot, <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), s.changed
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:             s.id,
		Status:         s.status,
		QRPayload:      s.qrPayload,
		LastTransition: s.lastTransition,
	}
}

// transition sets status and payload together. The payload is dropped for
// every status other than qr_pending.
func (s *Session) transition(status Status, payload string, now time.Time) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.status
	if status != StatusQRPending {
		payload = ""
	}
	s.status = status
	s.qrPayload = payload
	s.lastTransition = now
	close(s.changed)
	s.changed = make(chan struct{})
	return previous
}

// releaseTransport detaches the transport handle and returns it.
func (s *Session) releaseTransport() transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.transport
	s.transport = nil
	return t
}
