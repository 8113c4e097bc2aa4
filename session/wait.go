package session

import "time"

// DefaultCheckInterval bounds how long a waiter sleeps between checks when
// no transition wakes it.
const DefaultCheckInterval = time.Second

// WaitResult is the outcome of [Waiter.Wait].
type WaitResult struct {
	Connected bool
	// QRPayload is set when the wait ended because a handshake payload was
	// pending.
	QRPayload string
	Status    Status
}

// Waiter blocks until a session is usable.
type Waiter struct {
	registry *Registry
	interval time.Duration
}

// NewWaiter returns a waiter over r. A non-positive interval selects
// [DefaultCheckInterval].
func NewWaiter(r *Registry, interval time.Duration) *Waiter {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Waiter{registry: r, interval: interval}
}

// Wait blocks until the session for id is connected, shows a handshake
// payload, or timeout elapses, whichever comes first.
//
// Connected is checked before the payload. A pending payload ends the wait
// immediately with Connected false, since the caller can act on it before
// the timeout. On timeout the last known status is returned, or
// [StatusNotFound] when the session no longer exists.
//
// Wait wakes on every transition of the session and at least once per check
// interval. It cannot be cancelled.
func (w *Waiter) Wait(id string, timeout time.Duration) WaitResult {
	deadline := time.Now().Add(timeout)
	for {
		snap, changed, ok := w.registry.observe(id)
		if ok && snap.Status == StatusConnected {
			return WaitResult{Connected: true, Status: StatusConnected}
		}
		if ok && snap.QRPayload != "" {
			return WaitResult{QRPayload: snap.QRPayload, Status: snap.Status}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if !ok {
				return WaitResult{Status: StatusNotFound}
			}
			return WaitResult{Status: snap.Status}
		}

		timer := time.NewTimer(min(w.interval, remaining))
		select {
		case <-changed:
		case <-timer.C:
		}
		timer.Stop()
	}
}
