package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/spachava753/msgsession/transport"
)

// CredentialStore locates and deletes persisted credentials.
type CredentialStore interface {
	Dir(id string) string
	Delete(id string) error
}

// Options configures a [Registry].
type Options struct {
	Credentials CredentialStore
	Factory     transport.Factory
	Logger      zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Registry owns the live sessions of the process.
type Registry struct {
	credentials CredentialStore
	factory     transport.Factory
	logger      zerolog.Logger
	now         func() time.Time
	lifecycle   *Lifecycle

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Credentials == nil {
		return nil, errors.New("session: credential store is required")
	}
	if opts.Factory == nil {
		return nil, errors.New("session: transport factory is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Registry{
		credentials: opts.Credentials,
		factory:     opts.Factory,
		logger:      opts.Logger,
		now:         opts.Now,
		sessions:    map[string]*Session{},
	}
	r.lifecycle = &Lifecycle{registry: r, credentials: opts.Credentials, logger: opts.Logger, now: opts.Now}
	return r, nil
}

// GetOrCreate returns the live session for id, or registers a new one.
//
// An existing session is returned unchanged: its transport is not restarted.
// A new session starts in [StatusInitializing] and its transport bootstraps
// in the background; GetOrCreate does not wait for it. An error is returned
// only when the transport cannot be built, in which case nothing is
// registered.
func (r *Registry) GetOrCreate(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok && s.Transport() != nil {
		return s, nil
	}

	t, err := r.factory(id, r.credentials.Dir(id))
	if err != nil {
		return nil, fmt.Errorf("session: building transport for %q failed: %w", id, err)
	}

	s := newSession(id, t, r.now())
	r.sessions[id] = s
	r.logger.Info().Str("session", id).Msg("session created")

	go r.lifecycle.run(s)
	return s, nil
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Snapshot returns a copy of the live session for id.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	s, ok := r.Get(id)
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Remove drops id from the registry. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown closes the transport of every live session and empties the
// registry. Credential directories are kept.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		t := s.releaseTransport()
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session: closing %q failed: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// removeIfCurrent drops id only while it still maps to s.
func (r *Registry) removeIfCurrent(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[s.id]; ok && current == s {
		delete(r.sessions, s.id)
		return true
	}
	return false
}

// retire moves s to a terminal status and drops it from the registry while
// holding the registry lock. A newer session under the same id is left in
// place.
func (r *Registry) retire(s *Session, status Status, now time.Time) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[s.id]; ok && current == s {
		delete(r.sessions, s.id)
	}
	if previous := s.Status(); previous.Terminal() {
		return previous
	}
	return s.transition(status, "", now)
}

// observe returns the state of id and a channel closed on its next
// transition. The channel is nil when id is absent.
func (r *Registry) observe(id string) (Snapshot, <-chan struct{}, bool) {
	s, ok := r.Get(id)
	if !ok {
		return Snapshot{}, nil, false
	}
	snap, changed := s.observe()
	return snap, changed, true
}
