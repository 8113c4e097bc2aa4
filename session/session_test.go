package session

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/rs/zerolog"

	"github.com/spachava753/msgsession/credentials"
	"github.com/spachava753/msgsession/transport"
	"github.com/spachava753/msgsession/transport/transporttest"
)

func newTestRegistry(t *testing.T, pool *transporttest.Pool) (*Registry, *credentials.Store) {
	t.Helper()
	store := credentials.New(t.TempDir())
	registry, err := NewRegistry(Options{
		Credentials: store,
		Factory:     pool.Factory(),
		Logger:      zerolog.Nop(),
	})
	be.Err(t, err, nil)
	t.Cleanup(func() { _ = registry.Shutdown() })
	return registry, store
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func statusOf(r *Registry, id string) Status {
	snap, ok := r.Snapshot(id)
	if !ok {
		return StatusNotFound
	}
	return snap.Status
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	pool := &transporttest.Pool{}
	registry, store := newTestRegistry(t, pool)

	first, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	be.Equal(t, first.Status(), StatusInitializing)

	second, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	be.True(t, first == second)
	be.Equal(t, pool.Built("alpha"), 1)
	be.Equal(t, pool.CredentialDir("alpha"), store.Dir("alpha"))

	<-pool.Latest("alpha").Started()
	third, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	be.True(t, first == third)
	be.Equal(t, pool.Built("alpha"), 1)
}

func TestHandshakeThenReady(t *testing.T) {
	pool := &transporttest.Pool{}
	registry, _ := newTestRegistry(t, pool)

	s, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	fake := pool.Latest("alpha")

	fake.Emit(transport.Event{Kind: transport.EventQR, Payload: "2@handshake"})
	eventually(t, func() bool { return s.Status() == StatusQRPending })
	be.Equal(t, s.Snapshot().QRPayload, "2@handshake")

	fake.Emit(transport.Event{Kind: transport.EventQR, Payload: "2@rotated"})
	eventually(t, func() bool { return s.Snapshot().QRPayload == "2@rotated" })

	fake.Emit(transport.Event{Kind: transport.EventReady})
	eventually(t, func() bool { return s.Status() == StatusConnected })
	be.Equal(t, s.Snapshot().QRPayload, "")
}

func TestAuthenticatedWithoutHandshake(t *testing.T) {
	pool := &transporttest.Pool{Prepare: func(string) *transporttest.Fake {
		return transporttest.New(transport.Event{Kind: transport.EventAuthenticated})
	}}
	registry, _ := newTestRegistry(t, pool)

	s, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	eventually(t, func() bool { return s.Status() == StatusConnected })
}

func TestAuthFailureDeletesCredentials(t *testing.T) {
	pool := &transporttest.Pool{}
	registry, store := newTestRegistry(t, pool)

	_, err := store.Ensure("alpha")
	be.Err(t, err, nil)

	s, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	fake := pool.Latest("alpha")

	fake.Emit(transport.Event{Kind: transport.EventQR, Payload: "code"})
	fake.Emit(transport.Event{Kind: transport.EventAuthFailure, Reason: "bad keys"})
	eventually(t, func() bool { return statusOf(registry, "alpha") == StatusNotFound })

	be.Equal(t, s.Status(), StatusAuthFailed)
	be.Equal(t, s.Snapshot().QRPayload, "")
	be.True(t, fake.Closed())
	exists, err := store.Exists("alpha")
	be.Err(t, err, nil)
	be.True(t, !exists)

	// The consumer has stopped; a late event changes nothing.
	fake.Emit(transport.Event{Kind: transport.EventReady})
	time.Sleep(20 * time.Millisecond)
	be.Equal(t, s.Status(), StatusAuthFailed)
	be.Equal(t, statusOf(registry, "alpha"), StatusNotFound)
}

func TestDisconnectKeepsCredentials(t *testing.T) {
	pool := &transporttest.Pool{}
	registry, store := newTestRegistry(t, pool)

	dir, err := store.Ensure("alpha")
	be.Err(t, err, nil)

	s, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	fake := pool.Latest("alpha")

	fake.Emit(transport.Event{Kind: transport.EventReady})
	fake.Emit(transport.Event{Kind: transport.EventDisconnected, Reason: "logout"})
	eventually(t, func() bool { return statusOf(registry, "alpha") == StatusNotFound })

	be.Equal(t, s.Status(), StatusDisconnected)
	be.True(t, s.Transport() == nil)
	be.True(t, fake.Closed())
	_, err = os.Stat(dir)
	be.Err(t, err, nil)

	again, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	be.True(t, again != s)
	be.Equal(t, again.Status(), StatusInitializing)
	be.Equal(t, pool.Built("alpha"), 2)
}

func TestApplyIgnoresEventsAfterTerminal(t *testing.T) {
	pool := &transporttest.Pool{}
	registry, _ := newTestRegistry(t, pool)

	s, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	<-pool.Latest("alpha").Started()

	be.True(t, registry.lifecycle.Apply(s, transport.Event{Kind: transport.EventDisconnected}))
	be.True(t, registry.lifecycle.Apply(s, transport.Event{Kind: transport.EventReady}))
	be.True(t, registry.lifecycle.Apply(s, transport.Event{Kind: transport.EventQR, Payload: "x"}))
	be.Equal(t, s.Status(), StatusDisconnected)
	be.Equal(t, s.Snapshot().QRPayload, "")
}

func TestBootstrapFailureForgetsSession(t *testing.T) {
	pool := &transporttest.Pool{Prepare: func(string) *transporttest.Fake {
		fake := transporttest.New()
		fake.StartErr = errors.New("browser crashed")
		return fake
	}}
	registry, _ := newTestRegistry(t, pool)

	s, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	eventually(t, func() bool { return registry.Len() == 0 })
	be.Equal(t, s.Status(), StatusInitializing)
	be.True(t, pool.Latest("alpha").Closed())
}

func TestFactoryFailureRegistersNothing(t *testing.T) {
	pool := &transporttest.Pool{}
	pool.FailFactory(errors.New("no browser"))
	registry, _ := newTestRegistry(t, pool)

	_, err := registry.GetOrCreate("alpha")
	be.Err(t, err, "no browser")
	be.Equal(t, registry.Len(), 0)
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	registry, _ := newTestRegistry(t, &transporttest.Pool{})
	registry.Remove("missing")
	_, ok := registry.Get("missing")
	be.True(t, !ok)
}

func TestShutdownClosesTransports(t *testing.T) {
	pool := &transporttest.Pool{}
	registry, _ := newTestRegistry(t, pool)

	_, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	_, err = registry.GetOrCreate("beta")
	be.Err(t, err, nil)

	be.Err(t, registry.Shutdown(), nil)
	be.Equal(t, registry.Len(), 0)
	be.True(t, pool.Latest("alpha").Closed())
	be.True(t, pool.Latest("beta").Closed())
}

func TestShutdownEndsEventConsumers(t *testing.T) {
	pool := &transporttest.Pool{Prepare: func(string) *transporttest.Fake {
		return transporttest.New(transport.Event{Kind: transport.EventReady})
	}}
	registry, _ := newTestRegistry(t, pool)

	s, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	eventually(t, func() bool { return s.Status() == StatusConnected })

	be.Err(t, registry.Shutdown(), nil)
	eventually(t, func() bool { return s.Status() == StatusDisconnected })

	// The stream is closed, so a late event has nowhere to go.
	pool.Latest("alpha").Emit(transport.Event{Kind: transport.EventReady})
	time.Sleep(20 * time.Millisecond)
	be.Equal(t, s.Status(), StatusDisconnected)
}

func TestHandshakeWithoutPayloadIgnored(t *testing.T) {
	pool := &transporttest.Pool{}
	registry, _ := newTestRegistry(t, pool)

	s, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	<-pool.Latest("alpha").Started()

	be.True(t, !registry.lifecycle.Apply(s, transport.Event{Kind: transport.EventQR}))
	be.Equal(t, s.Status(), StatusInitializing)
	be.Equal(t, s.Snapshot().QRPayload, "")

	result := NewWaiter(registry, 10*time.Millisecond).Wait("alpha", 30*time.Millisecond)
	be.Equal(t, result.Status, StatusInitializing)
}

// registeredTerminal reports whether any registered session is terminal.
func registeredTerminal(r *Registry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Status().Terminal() {
			return true
		}
	}
	return false
}

func TestTerminalSessionsNeverRegistered(t *testing.T) {
	pool := &transporttest.Pool{}
	registry, _ := newTestRegistry(t, pool)

	done := make(chan struct{})
	violations := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			if registeredTerminal(registry) {
				select {
				case violations <- struct{}{}:
				default:
				}
			}
		}
	}()

	for i := 0; i < 50; i++ {
		s, err := registry.GetOrCreate("alpha")
		be.Err(t, err, nil)
		<-pool.Latest("alpha").Started()
		kind := transport.EventDisconnected
		if i%2 == 0 {
			kind = transport.EventAuthFailure
		}
		be.True(t, registry.lifecycle.Apply(s, transport.Event{Kind: kind}))

		// Once the terminal event is applied, the id maps to nothing.
		_, ok := registry.Get("alpha")
		be.True(t, !ok)
	}
	close(done)

	select {
	case <-violations:
		t.Fatal("a terminal session was visible in the registry")
	default:
	}
}

func TestRetireKeepsNewerSession(t *testing.T) {
	pool := &transporttest.Pool{}
	registry, _ := newTestRegistry(t, pool)

	old, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	<-pool.Latest("alpha").Started()
	registry.Remove("alpha")

	fresh, err := registry.GetOrCreate("alpha")
	be.Err(t, err, nil)
	be.True(t, registry.lifecycle.Apply(old, transport.Event{Kind: transport.EventDisconnected}))

	current, ok := registry.Get("alpha")
	be.True(t, ok)
	be.True(t, current == fresh)
	be.Equal(t, fresh.Status(), StatusInitializing)
}

func TestNewRegistryRequiresCollaborators(t *testing.T) {
	_, err := NewRegistry(Options{Factory: (&transporttest.Pool{}).Factory()})
	be.Err(t, err, "credential store is required")
	_, err = NewRegistry(Options{Credentials: credentials.New(t.TempDir())})
	be.Err(t, err, "transport factory is required")
}
