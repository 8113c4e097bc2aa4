package smtpgw

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/rs/zerolog"

	"github.com/spachava753/msgsession/msgerr"
	"github.com/spachava753/msgsession/transport"
)

func validConfig() Config {
	return Config{
		Address:       "smtp.example.com:465",
		Username:      "bot@example.com",
		Password:      "secret",
		GatewayDomain: "sms.example.net",
	}
}

func TestConfigValidation(t *testing.T) {
	_, err := New(validConfig(), zerolog.Nop())
	be.Err(t, err, nil)

	cfg := validConfig()
	cfg.Address = "smtp.example.com"
	_, err = New(cfg, zerolog.Nop())
	be.Err(t, err, "invalid address")

	cfg = validConfig()
	cfg.Password = ""
	_, err = New(cfg, zerolog.Nop())
	be.Err(t, err, "username and password are required")

	cfg = validConfig()
	cfg.GatewayDomain = ""
	_, err = New(cfg, zerolog.Nop())
	be.Err(t, err, "gateway domain is required")

	cfg = validConfig()
	cfg.SentMailbox = "Sent"
	_, err = New(cfg, zerolog.Nop())
	be.Err(t, err, "must be set together")
}

func TestGatewayAddress(t *testing.T) {
	addr, err := gatewayAddress("15551234567@c.us", "sms.example.net")
	be.Err(t, err, nil)
	be.Equal(t, addr, "15551234567@sms.example.net")

	addr, err = gatewayAddress("555@c.us", "@mms.example.net")
	be.Err(t, err, nil)
	be.Equal(t, addr, "555@mms.example.net")

	_, err = gatewayAddress("@c.us", "sms.example.net")
	be.Err(t, err, "has no digits")
}

func TestBootstrapEvents(t *testing.T) {
	events, err := bootstrapEvents(nil)
	be.Err(t, err, nil)
	be.Equal(t, events, []transport.Event{{Kind: transport.EventAuthenticated}, {Kind: transport.EventReady}})

	events, err = bootstrapEvents(msgerr.Wrapf(msgerr.KindAuthentication, "smtpgw: SMTP auth failed", errors.New("535 bad credentials")))
	be.Err(t, err, nil)
	be.Equal(t, len(events), 1)
	be.Equal(t, events[0].Kind, transport.EventAuthFailure)
	be.Equal(t, events[0].Reason, "smtpgw: SMTP auth failed: 535 bad credentials")

	_, err = bootstrapEvents(errors.New("dial tcp: connection refused"))
	be.Err(t, err, "connection refused")
}

func TestCloseEndsEventStream(t *testing.T) {
	tr, err := New(validConfig(), zerolog.Nop())
	be.Err(t, err, nil)
	tr.events = make(chan transport.Event, 1)

	be.Err(t, tr.Close(), nil)
	be.Err(t, tr.Close(), nil)

	ev, ok := <-tr.events
	be.True(t, ok)
	be.Equal(t, ev.Kind, transport.EventDisconnected)
	_, ok = <-tr.events
	be.True(t, !ok)

	be.Err(t, tr.SendText("555@c.us", "hi"), transport.ErrClosed)
	_, err = tr.Start()
	be.Err(t, err, transport.ErrClosed)
}

func TestBuildTextMessage(t *testing.T) {
	raw, err := buildMessage(outgoing{
		From:    "bot@example.com",
		To:      "555@sms.example.net",
		Subject: "note\r\nBcc: evil@example.com",
		Text:    "line one\nline two",
	}, "<1.example.com>", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	be.Err(t, err, nil)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	be.Err(t, err, nil)
	be.Equal(t, msg.Header.Get("To"), "555@sms.example.net")
	be.Equal(t, msg.Header.Get("Bcc"), "")
	be.Equal(t, msg.Header.Get("Message-Id"), "<1.example.com>")

	body, err := io.ReadAll(msg.Body)
	be.Err(t, err, nil)
	be.Equal(t, string(body), "line one\r\nline two\r\n")
}

func TestBuildMediaMessage(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 200)
	raw, err := buildMessage(outgoing{
		From:  "bot@example.com",
		To:    "555@sms.example.net",
		Text:  "caption",
		Media: &transport.Media{MimeType: "image/png", Filename: "a.png", Data: data},
	}, "<2.example.com>", time.Now())
	be.Err(t, err, nil)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	be.Err(t, err, nil)
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	be.Err(t, err, nil)
	be.Equal(t, mediaType, "multipart/mixed")

	reader := multipart.NewReader(msg.Body, params["boundary"])
	textPart, err := reader.NextPart()
	be.Err(t, err, nil)
	text, err := io.ReadAll(textPart)
	be.Err(t, err, nil)
	be.Equal(t, strings.TrimSpace(string(text)), "caption")

	filePart, err := reader.NextPart()
	be.Err(t, err, nil)
	be.Equal(t, filePart.FileName(), "a.png")
	be.Equal(t, filePart.Header.Get("Content-Type"), "image/png")
	decoded, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding, filePart))
	be.Err(t, err, nil)
	be.Equal(t, decoded, data)

	for _, line := range strings.Split(string(raw), "\r\n") {
		be.True(t, len(line) <= 998)
	}
}
