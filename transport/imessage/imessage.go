package imessage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spachava753/msgsession/transport"
)

const (
	messagesDBRelativePath = "Library/Messages/chat.db"
	outboxDirName          = "outbox"
)

// ErrUnsupportedPlatform is returned by Start outside macOS.
var ErrUnsupportedPlatform = errors.New("imessage: unsupported platform")

// Config configures the Messages.app transport.
type Config struct {
	// DBPath defaults to ~/Library/Messages/chat.db.
	DBPath string `toml:"db_path"`
	// Service is tried first: iMessage, SMS or RCS. The others follow.
	Service string `toml:"service"`
}

// Transport is the Messages.app transport for one session.
type Transport struct {
	cfg       Config
	outboxDir string
	run       func(lines []string, args []string) (string, error)

	mu     sync.Mutex
	events chan transport.Event
	closed bool
}

// New returns a transport staging attachments below credentialDir.
func New(cfg Config, credentialDir string) *Transport {
	return &Transport{
		cfg:       cfg,
		outboxDir: filepath.Join(credentialDir, outboxDirName),
		run:       runAppleScript,
	}
}

// NewFactory returns a factory building one transport per session.
func NewFactory(cfg Config) transport.Factory {
	return func(sessionID string, credentialDir string) (transport.Transport, error) {
		return New(cfg, credentialDir), nil
	}
}

// Start implements transport.Transport.
func (t *Transport) Start() (<-chan transport.Event, error) {
	if runtime.GOOS != "darwin" {
		return nil, ErrUnsupportedPlatform
	}
	dbPath, err := t.dbPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("imessage: chat database unavailable at %s: %w", dbPath, err)
	}

	events := []transport.Event{{Kind: transport.EventAuthenticated}, {Kind: transport.EventReady}}
	if err := probeDatabase(dbPath); err != nil {
		events = []transport.Event{{Kind: transport.EventAuthFailure, Reason: err.Error()}}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrClosed
	}
	t.events = make(chan transport.Event, len(events)+1)
	for _, ev := range events {
		t.events <- ev
	}
	return t.events, nil
}

// SendText implements transport.Transport.
func (t *Transport) SendText(to string, body string) error {
	if t.isClosed() {
		return transport.ErrClosed
	}
	handle, err := handleFor(to)
	if err != nil {
		return err
	}
	return t.sendToHandle(handle, textTarget(body))
}

// SendMedia implements transport.Transport. A non-empty caption follows the
// file as a separate message.
func (t *Transport) SendMedia(to string, media transport.Media, caption string) error {
	if t.isClosed() {
		return transport.ErrClosed
	}
	handle, err := handleFor(to)
	if err != nil {
		return err
	}
	path, err := t.stage(media)
	if err != nil {
		return err
	}
	if err := t.sendToHandle(handle, fileTarget(path)); err != nil {
		return err
	}
	if strings.TrimSpace(caption) == "" {
		return nil
	}
	return t.sendToHandle(handle, textTarget(caption))
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.events != nil {
		select {
		case t.events <- transport.Event{Kind: transport.EventDisconnected, Reason: "transport closed"}:
		default:
		}
		close(t.events)
	}
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) stage(media transport.Media) (string, error) {
	if err := os.MkdirAll(t.outboxDir, 0o700); err != nil {
		return "", fmt.Errorf("imessage: creating outbox failed: %w", err)
	}
	name := fmt.Sprintf("%d-%s", time.Now().UnixNano(), sanitizeFilename(media.Filename))
	path := filepath.Join(t.outboxDir, name)
	if err := os.WriteFile(path, media.Data, 0o600); err != nil {
		return "", fmt.Errorf("imessage: staging attachment failed: %w", err)
	}
	return path, nil
}

func (t *Transport) dbPath() (string, error) {
	if t.cfg.DBPath != "" {
		return t.cfg.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("imessage: unable to resolve home directory: %w", err)
	}
	return filepath.Join(home, messagesDBRelativePath), nil
}

// probeDatabase checks that chat.db can be opened and queried read-only.
func probeDatabase(dbPath string) error {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", strings.ReplaceAll(dbPath, " ", "%20"))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("imessage: opening sqlite database failed: %w", err)
	}
	defer db.Close()

	var handles int
	if err := db.QueryRow(`SELECT COUNT(*) FROM handle`).Scan(&handles); err != nil {
		return fmt.Errorf("imessage: reading chat database failed (grant Full Disk Access): %w", err)
	}
	return nil
}

// handleFor turns a canonical address into a Messages handle.
func handleFor(to string) (string, error) {
	digits := transport.Digits(to)
	if digits == "" {
		return "", fmt.Errorf("imessage: recipient %q has no digits", to)
	}
	return "+" + digits, nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return strings.ReplaceAll(name, " ", "_")
}
