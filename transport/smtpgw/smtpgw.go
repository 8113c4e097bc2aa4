package smtpgw

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/spachava753/msgsession/msgerr"
	"github.com/spachava753/msgsession/transport"
)

const dialTimeout = 30 * time.Second

// Config configures the gateway transport.
type Config struct {
	// Address is the SMTP server host:port.
	Address string `toml:"address"`
	// StartTLS upgrades a plain connection; otherwise TLS is implicit.
	StartTLS bool   `toml:"starttls"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	// From defaults to Username.
	From          string `toml:"from"`
	GatewayDomain string `toml:"gateway_domain"`
	Subject       string `toml:"subject"`

	IMAPAddress string `toml:"imap_address"`
	SentMailbox string `toml:"sent_mailbox"`
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.Address) == "" {
		return errors.New("smtpgw: address is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		return fmt.Errorf("smtpgw: invalid address %q: %w", cfg.Address, err)
	}
	if strings.TrimSpace(cfg.Username) == "" || cfg.Password == "" {
		return errors.New("smtpgw: username and password are required")
	}
	if strings.TrimSpace(cfg.GatewayDomain) == "" {
		return errors.New("smtpgw: gateway domain is required")
	}
	if (cfg.IMAPAddress == "") != (cfg.SentMailbox == "") {
		return errors.New("smtpgw: imap address and sent mailbox must be set together")
	}
	return nil
}

func (cfg Config) from() string {
	return firstNonEmpty(cfg.From, cfg.Username)
}

// Transport is the gateway transport for one session.
type Transport struct {
	cfg    Config
	logger zerolog.Logger
	// tlsConfig, when set, is cloned for every SMTP and IMAP dial.
	tlsConfig *tls.Config

	mu     sync.Mutex
	events chan transport.Event
	closed bool
}

// New validates cfg and returns a transport.
func New(cfg Config, logger zerolog.Logger) (*Transport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Transport{cfg: cfg, logger: logger}, nil
}

// NewFactory returns a factory building one transport per session. The
// gateway keeps no per-session credentials, so the directory is unused.
func NewFactory(cfg Config, logger zerolog.Logger) transport.Factory {
	return func(sessionID string, credentialDir string) (transport.Transport, error) {
		return New(cfg, logger.With().Str("session", sessionID).Logger())
	}
}

// Start implements transport.Transport.
func (t *Transport) Start() (<-chan transport.Event, error) {
	if t.isClosed() {
		return nil, transport.ErrClosed
	}
	c, err := t.connect()
	if err == nil {
		_ = c.Quit()
		c.Close()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrClosed
	}
	events, err := bootstrapEvents(err)
	if err != nil {
		return nil, err
	}
	t.events = make(chan transport.Event, len(events)+1)
	for _, ev := range events {
		t.events <- ev
	}
	return t.events, nil
}

// bootstrapEvents maps the outcome of the login probe onto lifecycle
// events. Errors other than a rejected login are bootstrap failures.
func bootstrapEvents(err error) ([]transport.Event, error) {
	switch {
	case err == nil:
		return []transport.Event{{Kind: transport.EventAuthenticated}, {Kind: transport.EventReady}}, nil
	case msgerr.Is(err, msgerr.KindAuthentication):
		return []transport.Event{{Kind: transport.EventAuthFailure, Reason: err.Error()}}, nil
	default:
		return nil, err
	}
}

// SendText implements transport.Transport.
func (t *Transport) SendText(to string, body string) error {
	return t.send(to, outgoing{Text: body})
}

// SendMedia implements transport.Transport.
func (t *Transport) SendMedia(to string, media transport.Media, caption string) error {
	return t.send(to, outgoing{Text: caption, Media: &media})
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

func (t *Transport) send(to string, msg outgoing) error {
	if t.isClosed() {
		return transport.ErrClosed
	}
	rcpt, err := gatewayAddress(to, t.cfg.GatewayDomain)
	if err != nil {
		return err
	}

	from := t.cfg.from()
	msg.From = from
	msg.To = rcpt
	msg.Subject = t.cfg.Subject
	raw, err := buildMessage(msg, generateMessageID(from), time.Now())
	if err != nil {
		return err
	}

	c, err := t.connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("smtpgw: MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(rcpt, nil); err != nil {
		return fmt.Errorf("smtpgw: RCPT TO %q failed: %w", rcpt, err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtpgw: DATA failed: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("smtpgw: writing message failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtpgw: finalizing message failed: %w", err)
	}
	if err := c.Quit(); err != nil {
		return fmt.Errorf("smtpgw: QUIT failed: %w", err)
	}

	// The message is already delivered; a missing sent copy is not a send
	// failure.
	if t.cfg.SentMailbox != "" {
		if err := t.appendSent(raw); err != nil {
			t.logger.Warn().Err(err).Str("mailbox", t.cfg.SentMailbox).Msg("sent copy not stored")
		}
	}
	return nil
}

func (t *Transport) clientTLS(address string) *tls.Config {
	cfg := &tls.Config{}
	if t.tlsConfig != nil {
		cfg = t.tlsConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName, _, _ = net.SplitHostPort(address)
	}
	return cfg
}

func (t *Transport) connect() (*smtp.Client, error) {
	tlsConfig := t.clientTLS(t.cfg.Address)
	dialer := &net.Dialer{Timeout: dialTimeout}

	var c *smtp.Client
	if t.cfg.StartTLS {
		conn, err := dialer.Dial("tcp", t.cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("smtpgw: SMTP dial failed: %w", err)
		}
		c, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("smtpgw: STARTTLS failed: %w", err)
		}
	} else {
		conn, err := tls.DialWithDialer(dialer, "tcp", t.cfg.Address, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("smtpgw: SMTP TLS dial failed: %w", err)
		}
		c = smtp.NewClient(conn)
	}

	auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
	if err := c.Auth(auth); err != nil {
		c.Close()
		var reply *smtp.SMTPError
		if errors.As(err, &reply) && reply.Code == smtp.ErrAuthFailed.Code {
			return nil, msgerr.Wrapf(msgerr.KindAuthentication, "smtpgw: SMTP auth failed", err)
		}
		return nil, fmt.Errorf("smtpgw: SMTP auth failed: %w", err)
	}
	return c, nil
}

func (t *Transport) appendSent(raw []byte) error {
	c, err := client.DialTLS(t.cfg.IMAPAddress, t.clientTLS(t.cfg.IMAPAddress))
	if err != nil {
		return fmt.Errorf("smtpgw: IMAP dial failed: %w", err)
	}
	defer c.Logout()

	if err := c.Login(t.cfg.Username, t.cfg.Password); err != nil {
		return fmt.Errorf("smtpgw: IMAP login failed: %w", err)
	}
	if err := c.Append(t.cfg.SentMailbox, []string{imap.SeenFlag}, time.Now(), bytes.NewBuffer(raw)); err != nil {
		return fmt.Errorf("smtpgw: appending to %q failed: %w", t.cfg.SentMailbox, err)
	}
	return nil
}

// gatewayAddress turns a canonical address into a gateway mailbox.
func gatewayAddress(to string, domain string) (string, error) {
	digits := transport.Digits(to)
	if digits == "" {
		return "", fmt.Errorf("smtpgw: recipient %q has no digits", to)
	}
	return digits + "@" + strings.TrimPrefix(strings.TrimSpace(domain), "@"), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
