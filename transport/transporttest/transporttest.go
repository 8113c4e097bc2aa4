// Package transporttest provides a scriptable in-memory transport.
package transporttest

import (
	"sync"

	"github.com/spachava753/msgsession/transport"
)

// Sent is one recorded send.
type Sent struct {
	To      string
	Body    string
	Media   *transport.Media
	Caption string
}

// Fake is an in-memory [transport.Transport].
//
// Events passed to [New] are delivered as soon as Start is called. Further
// events are injected with Emit.
type Fake struct {
	StartErr error

	mu       sync.Mutex
	events   chan transport.Event
	sent     []Sent
	failures map[string]error
	closed   bool
	started  chan struct{}
	once     sync.Once
}

// New returns a fake that delivers script on Start.
func New(script ...transport.Event) *Fake {
	events := make(chan transport.Event, len(script)+16)
	for _, ev := range script {
		events <- ev
	}
	return &Fake{
		events:   events,
		failures: map[string]error{},
		started:  make(chan struct{}),
	}
}

// Start implements transport.Transport.
func (f *Fake) Start() (<-chan transport.Event, error) {
	f.once.Do(func() { close(f.started) })
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	return f.events, nil
}

// Started is closed once Start has been called.
func (f *Fake) Started() <-chan struct{} {
	return f.started
}

// Emit delivers ev to the session consuming this transport. Events after
// Close are dropped.
func (f *Fake) Emit(ev transport.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events <- ev
}

// FailSends makes every send to the canonical address to fail with err.
func (f *Fake) FailSends(to string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[to] = err
}

// SendText implements transport.Transport.
func (f *Fake) SendText(to string, body string) error {
	return f.record(Sent{To: to, Body: body})
}

// SendMedia implements transport.Transport.
func (f *Fake) SendMedia(to string, media transport.Media, caption string) error {
	return f.record(Sent{To: to, Media: &media, Caption: caption})
}

func (f *Fake) record(s Sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	if err := f.failures[s.To]; err != nil {
		return err
	}
	f.sent = append(f.sent, s)
	return nil
}

// Close implements transport.Transport. Like a real transport it reports
// disconnected and then ends the event stream.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	select {
	case f.events <- transport.Event{Kind: transport.EventDisconnected, Reason: "closed"}:
	default:
	}
	close(f.events)
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Sent returns the successful sends in order.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sent, len(f.sent))
	copy(out, f.sent)
	return out
}

// Pool hands out one fake per session id.
type Pool struct {
	// Prepare, when set, builds the fake for a session id. The default is
	// New().
	Prepare func(sessionID string) *Fake

	mu    sync.Mutex
	fakes map[string][]*Fake
	dirs  map[string]string
	err   error
}

// FailFactory makes the factory itself return err.
func (p *Pool) FailFactory(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Factory returns a transport.Factory backed by the pool.
func (p *Pool) Factory() transport.Factory {
	return func(sessionID string, credentialDir string) (transport.Transport, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.err != nil {
			return nil, p.err
		}
		if p.fakes == nil {
			p.fakes = map[string][]*Fake{}
			p.dirs = map[string]string{}
		}
		var fake *Fake
		if p.Prepare != nil {
			fake = p.Prepare(sessionID)
		}
		if fake == nil {
			fake = New()
		}
		p.fakes[sessionID] = append(p.fakes[sessionID], fake)
		p.dirs[sessionID] = credentialDir
		return fake, nil
	}
}

// Latest returns the most recently built fake for sessionID.
func (p *Pool) Latest(sessionID string) *Fake {
	p.mu.Lock()
	defer p.mu.Unlock()
	built := p.fakes[sessionID]
	if len(built) == 0 {
		return nil
	}
	return built[len(built)-1]
}

// Built returns how many transports were built for sessionID.
func (p *Pool) Built(sessionID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fakes[sessionID])
}

// CredentialDir returns the directory passed for sessionID.
func (p *Pool) CredentialDir(sessionID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirs[sessionID]
}
