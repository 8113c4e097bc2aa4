package runner

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/rs/zerolog"

	"github.com/spachava753/msgsession/credentials"
	"github.com/spachava753/msgsession/dispatch"
	"github.com/spachava753/msgsession/msgerr"
	"github.com/spachava753/msgsession/session"
	"github.com/spachava753/msgsession/transport"
	"github.com/spachava753/msgsession/transport/transporttest"
)

const testKey = "s3cret"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

type memoryPublisher struct {
	mu    sync.Mutex
	blobs map[string][]byte
	types map[string]string
}

func (p *memoryPublisher) Put(key string, contentType string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blobs == nil {
		p.blobs = map[string][]byte{}
		p.types = map[string]string{}
	}
	p.blobs[key] = data
	p.types[key] = contentType
	return nil
}

func (p *memoryPublisher) Delete(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.blobs, key)
	delete(p.types, key)
	return nil
}

func (p *memoryPublisher) get(key string) ([]byte, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blobs[key], p.types[key]
}

type fixture struct {
	pool      *transporttest.Pool
	registry  *session.Registry
	publisher *memoryPublisher
	out       *bytes.Buffer
	runner    *Runner
}

func newFixture(t *testing.T, script ...transport.Event) *fixture {
	t.Helper()
	pool := &transporttest.Pool{Prepare: func(string) *transporttest.Fake {
		return transporttest.New(script...)
	}}
	registry, err := session.NewRegistry(session.Options{
		Credentials: credentials.New(t.TempDir()),
		Factory:     pool.Factory(),
		Logger:      zerolog.Nop(),
	})
	be.Err(t, err, nil)
	t.Cleanup(func() { _ = registry.Shutdown() })

	dispatcher, err := dispatch.New(dispatch.Options{
		Sessions: registry,
		Logger:   zerolog.Nop(),
		Sleep:    func(time.Duration) {},
	})
	be.Err(t, err, nil)

	f := &fixture{
		pool:      pool,
		registry:  registry,
		publisher: &memoryPublisher{},
		out:       &bytes.Buffer{},
	}
	f.runner, err = New(Options{
		Registry:   registry,
		Waiter:     session.NewWaiter(registry, 10*time.Millisecond),
		Dispatcher: dispatcher,
		Publisher:  f.publisher,
		MasterKey:  testKey,
		Defaults: Defaults{
			SessionID:            "default",
			WaitTimeout:          2 * time.Second,
			DelayBetweenMessages: 2 * time.Second,
		},
		Output: f.out,
		Logger: zerolog.Nop(),
	})
	be.Err(t, err, nil)
	return f
}

func (f *fixture) decode(t *testing.T, v any) {
	t.Helper()
	be.Err(t, json.NewDecoder(f.out).Decode(v), nil)
}

func millis(ms int) *int {
	return &ms
}

func TestRunRejectsBadKey(t *testing.T) {
	f := newFixture(t, transport.Event{Kind: transport.EventReady})

	err := f.runner.Run(Input{Action: ActionConnect})
	be.True(t, msgerr.Is(err, msgerr.KindConfiguration))

	err = f.runner.Run(Input{APIKey: "wrong", Action: ActionConnect})
	be.True(t, msgerr.Is(err, msgerr.KindConfiguration))

	be.Equal(t, f.pool.Built("default"), 0)
	be.Equal(t, f.out.Len(), 0)
}

func TestRunRequiresMasterKey(t *testing.T) {
	f := newFixture(t)
	f.runner.masterKey = ""

	err := f.runner.Run(Input{APIKey: testKey, Action: ActionConnect})
	be.True(t, msgerr.Is(err, msgerr.KindConfiguration))
	be.Err(t, err, "master key is not configured")
}

func TestRunRejectsUnknownAction(t *testing.T) {
	f := newFixture(t)

	err := f.runner.Run(Input{APIKey: testKey, Action: "delete"})
	be.True(t, msgerr.Is(err, msgerr.KindValidation))
	be.Err(t, err, `unknown action "delete"`)
	be.Equal(t, f.pool.Built("default"), 0)
}

func TestRunValidatesBeforeConnecting(t *testing.T) {
	f := newFixture(t, transport.Event{Kind: transport.EventReady})

	err := f.runner.Run(Input{APIKey: testKey, Action: ActionSend, Message: "hi"})
	be.True(t, msgerr.Is(err, msgerr.KindValidation))
	be.Equal(t, err.Error(), "Missing required parameter: to")

	err = f.runner.Run(Input{APIKey: testKey, Action: ActionSend, To: "555"})
	be.True(t, msgerr.Is(err, msgerr.KindValidation))
	be.Equal(t, err.Error(), "Missing required parameter: message or attachment")

	err = f.runner.Run(Input{APIKey: testKey, Action: ActionSendBulk})
	be.True(t, msgerr.Is(err, msgerr.KindValidation))

	be.Equal(t, f.pool.Built("default"), 0)
}

func TestRunConnectPublishesQR(t *testing.T) {
	f := newFixture(t, transport.Event{Kind: transport.EventQR, Payload: "2@abc,def"})

	err := f.runner.Run(Input{APIKey: testKey, SessionID: "alpha", Action: ActionConnect})
	be.Err(t, err, nil)

	var rec ConnectRecord
	f.decode(t, &rec)
	be.Equal(t, rec.SessionID, "alpha")
	be.Equal(t, rec.Status, string(session.StatusQRPending))
	be.Equal(t, rec.Connected, false)
	be.Equal(t, rec.QRCodeGenerated, true)
	be.True(t, strings.Contains(rec.Message, QRImageKey))

	img, contentType := f.publisher.get(QRImageKey)
	be.Equal(t, contentType, "image/png")
	be.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))

	text, _ := f.publisher.get(QRTextKey)
	be.Equal(t, string(text), "2@abc,def")
}

func TestRunConnectWhenReady(t *testing.T) {
	f := newFixture(t, transport.Event{Kind: transport.EventReady})

	err := f.runner.Run(Input{APIKey: testKey, Action: ActionConnect})
	be.Err(t, err, nil)

	var rec ConnectRecord
	f.decode(t, &rec)
	be.Equal(t, rec.SessionID, "default")
	be.Equal(t, rec.Status, string(session.StatusConnected))
	be.Equal(t, rec.Connected, true)
	be.Equal(t, rec.QRCodeGenerated, false)
	be.True(t, strings.Contains(rec.Message, "send"))

	img, _ := f.publisher.get(QRImageKey)
	be.Equal(t, len(img), 0)
}

func TestRunConnectClearsStaleQR(t *testing.T) {
	f := newFixture(t, transport.Event{Kind: transport.EventReady})
	be.Err(t, f.publisher.Put(QRImageKey, "image/png", pngBytes), nil)
	be.Err(t, f.publisher.Put(QRTextKey, "text/plain", []byte("old")), nil)

	be.Err(t, f.runner.Run(Input{APIKey: testKey, Action: ActionConnect}), nil)

	img, _ := f.publisher.get(QRImageKey)
	be.Equal(t, len(img), 0)
	text, _ := f.publisher.get(QRTextKey)
	be.Equal(t, len(text), 0)
}

func TestNewAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	r, err := New(Options{
		Registry:   f.registry,
		Waiter:     f.runner.waiter,
		Dispatcher: f.runner.dispatcher,
		Publisher:  f.publisher,
		MasterKey:  testKey,
	})
	be.Err(t, err, nil)
	be.Equal(t, r.defaults, Defaults{
		SessionID:            DefaultSessionID,
		WaitTimeout:          DefaultWaitTimeout,
		DelayBetweenMessages: DefaultDelayBetweenMessages,
	})
}

func TestRunRejectsOutOfRangeMillis(t *testing.T) {
	f := newFixture(t, transport.Event{Kind: transport.EventReady})

	err := f.runner.Run(Input{APIKey: testKey, Action: ActionConnect, WaitForConnectionTimeout: millis(math.MaxInt)})
	be.True(t, msgerr.Is(err, msgerr.KindValidation))
	be.Err(t, err, "waitForConnectionTimeout must be between 0 and")

	err = f.runner.Run(Input{APIKey: testKey, Action: ActionConnect, WaitForConnectionTimeout: millis(-1)})
	be.True(t, msgerr.Is(err, msgerr.KindValidation))

	err = f.runner.Run(Input{
		APIKey:               testKey,
		Action:               ActionSendBulk,
		Messages:             []BulkMessage{{To: "1", Message: "a"}},
		DelayBetweenMessages: millis(-5),
	})
	be.True(t, msgerr.Is(err, msgerr.KindValidation))
	be.Err(t, err, "delayBetweenMessages")

	err = f.runner.Run(Input{
		APIKey:   testKey,
		Action:   ActionSendBulk,
		Messages: []BulkMessage{{To: "1", Message: "a"}, {To: "2", Message: "b", Delay: millis(maxMillis + 1)}},
	})
	be.True(t, msgerr.Is(err, msgerr.KindValidation))
	be.Err(t, err, "messages[1].delay")

	be.Equal(t, f.pool.Built("default"), 0)
}

func TestRunConnectTimeout(t *testing.T) {
	f := newFixture(t)

	err := f.runner.Run(Input{APIKey: testKey, Action: ActionConnect, WaitForConnectionTimeout: millis(50)})
	be.Err(t, err, nil)

	var rec ConnectRecord
	f.decode(t, &rec)
	be.Equal(t, rec.Status, string(session.StatusInitializing))
	be.Equal(t, rec.Connected, false)
}

func TestRunSendAfterDisconnect(t *testing.T) {
	f := newFixture(t, transport.Event{Kind: transport.EventDisconnected, Reason: "logout"})

	err := f.runner.Run(Input{
		APIKey:                   testKey,
		Action:                   ActionSend,
		To:                       "555",
		Message:                  "hi",
		WaitForConnectionTimeout: millis(100),
	})
	be.True(t, msgerr.Is(err, msgerr.KindConnection))
	be.Err(t, err, "status: not found")
	be.Equal(t, f.out.Len(), 0)
}

func TestRunSendWhileQRPending(t *testing.T) {
	f := newFixture(t, transport.Event{Kind: transport.EventQR, Payload: "ref"})

	err := f.runner.Run(Input{APIKey: testKey, Action: ActionSend, To: "555", Message: "hi"})
	be.True(t, msgerr.Is(err, msgerr.KindConnection))
	be.Err(t, err, QRImageKey)

	text, _ := f.publisher.get(QRTextKey)
	be.Equal(t, string(text), "ref")
}

func TestRunSendAttachment(t *testing.T) {
	f := newFixture(t, transport.Event{Kind: transport.EventReady})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(server.Close)

	err := f.runner.Run(Input{
		APIKey:     testKey,
		SessionID:  "alpha",
		Action:     ActionSend,
		To:         "+1 (555) 123-4567",
		Message:    "ignored",
		Attachment: server.URL + "/photo.png",
		Caption:    "look",
	})
	be.Err(t, err, nil)

	var rec SendRecord
	f.decode(t, &rec)
	be.Equal(t, rec, SendRecord{
		Success:   true,
		SessionID: "alpha",
		To:        "+1 (555) 123-4567",
		Type:      "attachment",
		Message:   "Attachment sent successfully",
	})

	sent := f.pool.Latest("alpha").Sent()
	be.Equal(t, len(sent), 1)
	be.Equal(t, sent[0].To, "15551234567@c.us")
	be.Equal(t, sent[0].Caption, "look")
	be.Equal(t, sent[0].Media.Filename, "photo.png")
}

func TestRunSendBulk(t *testing.T) {
	f := newFixture(t, transport.Event{Kind: transport.EventAuthenticated})

	err := f.runner.Run(Input{
		APIKey: testKey,
		Action: ActionSendBulk,
		Messages: []BulkMessage{
			{To: "1234567890", Message: "hi"},
			{To: "", Message: "x"},
			{To: "555", Message: "bye", Delay: millis(0)},
		},
		DelayBetweenMessages: millis(500),
	})
	be.Err(t, err, nil)

	var rec BulkRecord
	f.decode(t, &rec)
	be.Equal(t, rec.SessionID, "default")
	be.Equal(t, rec.Total, 3)
	be.Equal(t, rec.Successful, 2)
	be.Equal(t, rec.Failed, 1)
	be.Equal(t, rec.Results[1].Error, "Missing required parameter: to")
	be.Equal(t, rec.Results[2].Message, "Message sent successfully")

	be.Equal(t, len(f.pool.Latest("default").Sent()), 2)
}

func TestRunReusesSession(t *testing.T) {
	f := newFixture(t, transport.Event{Kind: transport.EventReady})

	be.Err(t, f.runner.Run(Input{APIKey: testKey, Action: ActionConnect}), nil)
	be.Err(t, f.runner.Run(Input{APIKey: testKey, Action: ActionSend, To: "1", Message: "a"}), nil)
	be.Equal(t, f.pool.Built("default"), 1)
}

func TestParseInputAllowsComments(t *testing.T) {
	in, err := ParseInput([]byte(`{
		// credentials
		"apiKey": "k",
		"action": "sendBulk",
		"messages": [
			{"to": "1", "message": "a", "delay": 250},
		],
		"waitForConnectionTimeout": 5000,
	}`))
	be.Err(t, err, nil)
	be.Equal(t, in.APIKey, "k")
	be.Equal(t, in.Action, ActionSendBulk)
	be.Equal(t, len(in.Messages), 1)
	be.Equal(t, *in.Messages[0].Delay, 250)
	be.Equal(t, *in.WaitForConnectionTimeout, 5000)
	be.Equal(t, in.DelayBetweenMessages, (*int)(nil))
}

func TestParseInputRejectsGarbage(t *testing.T) {
	_, err := ParseInput([]byte(`{"action": `))
	be.Err(t, err, "runner: parsing input")
}
