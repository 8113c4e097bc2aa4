// Package runner executes one invocation: it checks authorization, brings up
// the requested session, and performs the connect, send or sendBulk action.
//
// Each run writes one JSON record to the output. Failures that abort the
// run are returned as errors classified with msgerr; per-item failures of a
// sendBulk run are reported inside its record instead.
package runner

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/spachava753/msgsession/dispatch"
	"github.com/spachava753/msgsession/msgerr"
	"github.com/spachava753/msgsession/session"
)

const (
	DefaultSessionID            = "default"
	DefaultWaitTimeout          = 120 * time.Second
	DefaultDelayBetweenMessages = 2 * time.Second

	// maxMillis bounds every millisecond field of an Input.
	maxMillis = 24 * 60 * 60 * 1000
)

// Defaults apply when an Input leaves a field unset. Zero fields take the
// package defaults.
type Defaults struct {
	SessionID            string
	WaitTimeout          time.Duration
	DelayBetweenMessages time.Duration
}

// Options configures a [Runner].
type Options struct {
	Registry   *session.Registry
	Waiter     *session.Waiter
	Dispatcher *dispatch.Dispatcher
	Publisher  Publisher
	MasterKey  string
	Defaults   Defaults
	Output     io.Writer
	Logger     zerolog.Logger
}

// Runner executes runs against a shared registry.
type Runner struct {
	registry   *session.Registry
	waiter     *session.Waiter
	dispatcher *dispatch.Dispatcher
	publisher  Publisher
	masterKey  string
	defaults   Defaults
	out        *json.Encoder
	logger     zerolog.Logger
}

// ConnectRecord is the output of a connect run.
type ConnectRecord struct {
	SessionID       string `json:"sessionId"`
	Status          string `json:"status"`
	Connected       bool   `json:"connected"`
	QRCodeGenerated bool   `json:"qrCodeGenerated"`
	Message         string `json:"message"`
}

// SendRecord is the output of a send run.
type SendRecord struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	To        string `json:"to"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

// BulkRecord is the output of a sendBulk run.
type BulkRecord struct {
	SessionID string `json:"sessionId"`
	dispatch.BatchSummary
}

// New returns a runner.
func New(opts Options) (*Runner, error) {
	if opts.Registry == nil || opts.Waiter == nil || opts.Dispatcher == nil {
		return nil, errors.New("runner: registry, waiter and dispatcher are required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("runner: publisher is required")
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Defaults.SessionID == "" {
		opts.Defaults.SessionID = DefaultSessionID
	}
	if opts.Defaults.WaitTimeout <= 0 {
		opts.Defaults.WaitTimeout = DefaultWaitTimeout
	}
	if opts.Defaults.DelayBetweenMessages <= 0 {
		opts.Defaults.DelayBetweenMessages = DefaultDelayBetweenMessages
	}
	return &Runner{
		registry:   opts.Registry,
		waiter:     opts.Waiter,
		dispatcher: opts.Dispatcher,
		publisher:  opts.Publisher,
		masterKey:  opts.MasterKey,
		defaults:   opts.Defaults,
		out:        json.NewEncoder(opts.Output),
		logger:     opts.Logger,
	}, nil
}

// Run executes in. Nothing touches a session before authorization and
// input validation pass.
func (r *Runner) Run(in Input) error {
	if err := r.authorize(in.APIKey); err != nil {
		return err
	}
	if err := validate(in); err != nil {
		return err
	}

	id := strings.TrimSpace(in.SessionID)
	if id == "" {
		id = r.defaults.SessionID
	}
	timeout := millisOr(in.WaitForConnectionTimeout, r.defaults.WaitTimeout)
	logger := r.logger.With().Str("session", id).Str("action", string(in.Action)).Logger()

	if _, err := r.registry.GetOrCreate(id); err != nil {
		return msgerr.Wrapf(msgerr.KindConnection, fmt.Sprintf("starting session %q failed", id), err)
	}
	logger.Info().Dur("timeout", timeout).Msg("waiting for session")
	result := r.waiter.Wait(id, timeout)

	if result.QRPayload != "" {
		if err := publishQR(r.publisher, result.QRPayload); err != nil {
			return err
		}
		logger.Info().Str("image_key", QRImageKey).Str("text_key", QRTextKey).Msg("QR code published")
	}

	if result.Connected {
		if err := clearQR(r.publisher); err != nil {
			logger.Warn().Err(err).Msg("clearing stale QR code failed")
		}
	}

	if in.Action == ActionConnect {
		return r.emit(connectRecord(id, result))
	}

	if !result.Connected {
		return notConnected(id, timeout, result)
	}

	switch in.Action {
	case ActionSend:
		return r.send(id, in)
	default:
		return r.sendBulk(id, in)
	}
}

func (r *Runner) authorize(key string) error {
	if r.masterKey == "" {
		return msgerr.New(msgerr.KindConfiguration, "master key is not configured")
	}
	if key == "" {
		return msgerr.New(msgerr.KindConfiguration, "apiKey is required")
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(r.masterKey)) != 1 {
		return msgerr.New(msgerr.KindConfiguration, "apiKey does not match the master key")
	}
	return nil
}

func validate(in Input) error {
	if err := validateMillis("waitForConnectionTimeout", in.WaitForConnectionTimeout); err != nil {
		return err
	}
	if err := validateMillis("delayBetweenMessages", in.DelayBetweenMessages); err != nil {
		return err
	}
	for i, m := range in.Messages {
		if err := validateMillis(fmt.Sprintf("messages[%d].delay", i), m.Delay); err != nil {
			return err
		}
	}

	switch in.Action {
	case ActionConnect:
		return nil
	case ActionSend:
		if strings.TrimSpace(in.To) == "" {
			return msgerr.New(msgerr.KindValidation, "Missing required parameter: to")
		}
		if in.Message == "" && in.Attachment == "" {
			return msgerr.New(msgerr.KindValidation, "Missing required parameter: message or attachment")
		}
		return nil
	case ActionSendBulk:
		if len(in.Messages) == 0 {
			return msgerr.New(msgerr.KindValidation, "Missing required parameter: messages")
		}
		return nil
	default:
		return msgerr.New(msgerr.KindValidation, fmt.Sprintf("unknown action %q (want connect, send or sendBulk)", in.Action))
	}
}

func (r *Runner) send(id string, in Input) error {
	result, err := r.dispatcher.Send(id, dispatch.Request{
		To:             in.To,
		Message:        in.Message,
		Attachment:     in.Attachment,
		AttachmentType: in.AttachmentType,
		Caption:        in.Caption,
	})
	if err != nil {
		return err
	}
	return r.emit(SendRecord{
		Success:   true,
		SessionID: id,
		To:        result.To,
		Type:      string(result.Kind),
		Message:   result.Message,
	})
}

func (r *Runner) sendBulk(id string, in Input) error {
	items := make([]dispatch.BulkItem, 0, len(in.Messages))
	for _, m := range in.Messages {
		item := dispatch.BulkItem{
			To:             m.To,
			Message:        m.Message,
			Attachment:     m.Attachment,
			AttachmentType: m.AttachmentType,
			Caption:        m.Caption,
		}
		if m.Delay != nil {
			d := time.Duration(*m.Delay) * time.Millisecond
			item.Delay = &d
		}
		items = append(items, item)
	}

	summary, err := r.dispatcher.SendBulk(id, items, millisOr(in.DelayBetweenMessages, r.defaults.DelayBetweenMessages))
	if err != nil {
		return err
	}
	return r.emit(BulkRecord{SessionID: id, BatchSummary: summary})
}

func (r *Runner) emit(record any) error {
	if err := r.out.Encode(record); err != nil {
		return fmt.Errorf("runner: writing output record failed: %w", err)
	}
	return nil
}

func connectRecord(id string, result session.WaitResult) ConnectRecord {
	rec := ConnectRecord{
		SessionID:       id,
		Status:          string(result.Status),
		Connected:       result.Connected,
		QRCodeGenerated: result.QRPayload != "",
	}
	switch {
	case result.Connected:
		rec.Message = fmt.Sprintf("Session %q is connected. Re-run with action send or sendBulk and sessionId %q to send messages.", id, id)
	case rec.QRCodeGenerated:
		rec.Message = fmt.Sprintf("Scan the QR code stored under %s (raw payload under %s), then re-run with action send or sendBulk and sessionId %q.", QRImageKey, QRTextKey, id)
	default:
		rec.Message = fmt.Sprintf("Session %q is not connected yet (status: %s). Re-run connect with sessionId %q.", id, result.Status, id)
	}
	return rec
}

func notConnected(id string, timeout time.Duration, result session.WaitResult) error {
	if result.QRPayload != "" {
		return msgerr.New(msgerr.KindConnection, fmt.Sprintf(
			"session %q is not connected (status: %s); scan the QR code stored under %s and re-run", id, result.Status, QRImageKey))
	}
	return msgerr.New(msgerr.KindConnection, fmt.Sprintf(
		"session %q did not connect within %s (status: %s)", id, timeout, result.Status))
}

func validateMillis(name string, ms *int) error {
	if ms == nil || (*ms >= 0 && *ms <= maxMillis) {
		return nil
	}
	return msgerr.New(msgerr.KindValidation, fmt.Sprintf("%s must be between 0 and %d milliseconds, got %d", name, maxMillis, *ms))
}

// millisOr converts a validated millisecond field.
func millisOr(ms *int, fallback time.Duration) time.Duration {
	if ms == nil {
		return fallback
	}
	return time.Duration(*ms) * time.Millisecond
}
