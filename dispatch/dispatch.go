package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/spachava753/msgsession/msgerr"
	"github.com/spachava753/msgsession/session"
	"github.com/spachava753/msgsession/transport"
)

const (
	errMissingTo      = "Missing required parameter: to"
	errMissingContent = "Missing required parameter: message or attachment"

	confirmText       = "Message sent successfully"
	confirmAttachment = "Attachment sent successfully"
)

// Kind is the content kind of a send.
type Kind string

const (
	KindText       Kind = "text"
	KindAttachment Kind = "attachment"
)

// Sessions looks up live sessions.
type Sessions interface {
	Get(id string) (*session.Session, bool)
}

// Request is a single send.
type Request struct {
	To             string
	Message        string
	Attachment     string
	AttachmentType string
	Caption        string
}

// SendResult is the outcome of a successful [Dispatcher.Send].
type SendResult struct {
	SessionID string
	To        string
	Kind      Kind
	Message   string
}

// BulkItem is one entry of a batch. Delay, when set, replaces the batch
// default after this item.
type BulkItem struct {
	To             string
	Message        string
	Attachment     string
	AttachmentType string
	Caption        string
	Delay          *time.Duration
}

// Result is the outcome of one batch item.
type Result struct {
	Index   int    `json:"index"`
	Success bool   `json:"success"`
	To      string `json:"to"`
	Kind    Kind   `json:"type"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchSummary aggregates a batch. Results align index-by-index with the
// input items.
type BatchSummary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// Options configures a [Dispatcher].
type Options struct {
	Sessions Sessions
	// Resolver defaults to NewResolver(nil).
	Resolver *Resolver
	// Suffix defaults to transport.DefaultSuffix.
	Suffix string
	Logger zerolog.Logger
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Dispatcher sends messages through connected sessions.
type Dispatcher struct {
	sessions Sessions
	resolver *Resolver
	suffix   string
	logger   zerolog.Logger
	sleep    func(time.Duration)
}

// New returns a dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Sessions == nil {
		return nil, errors.New("dispatch: session lookup is required")
	}
	if opts.Resolver == nil {
		opts.Resolver = NewResolver(nil)
	}
	if opts.Suffix == "" {
		opts.Suffix = transport.DefaultSuffix
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Dispatcher{
		sessions: opts.Sessions,
		resolver: opts.Resolver,
		suffix:   opts.Suffix,
		logger:   opts.Logger,
		sleep:    opts.Sleep,
	}, nil
}

// Send sends one message. The attachment path wins when both Attachment and
// Message are set.
func (d *Dispatcher) Send(sessionID string, req Request) (SendResult, error) {
	if strings.TrimSpace(req.To) == "" {
		return SendResult{}, msgerr.New(msgerr.KindValidation, errMissingTo)
	}
	if req.Attachment == "" && req.Message == "" {
		return SendResult{}, msgerr.New(msgerr.KindValidation, errMissingContent)
	}

	t, err := d.connected(sessionID)
	if err != nil {
		return SendResult{}, err
	}

	kind, err := d.deliver(t, req)
	if err != nil {
		return SendResult{}, err
	}

	d.logger.Info().Str("session", sessionID).Str("to", req.To).Str("type", string(kind)).Msg("message sent")
	return SendResult{
		SessionID: sessionID,
		To:        req.To,
		Kind:      kind,
		Message:   confirmation(kind),
	}, nil
}

// SendBulk sends items in order, one at a time.
//
// An item without a recipient is recorded as failed with no delay after it.
// Every other item is attempted; its failure is recorded and the batch goes
// on. After each attempted item except the last, SendBulk sleeps for the
// item's Delay, or defaultDelay when unset, if positive.
//
// An error is returned only when items is empty or the session is not
// connected at the start.
func (d *Dispatcher) SendBulk(sessionID string, items []BulkItem, defaultDelay time.Duration) (BatchSummary, error) {
	if len(items) == 0 {
		return BatchSummary{}, msgerr.New(msgerr.KindValidation, "messages must be a non-empty list")
	}
	if _, err := d.connected(sessionID); err != nil {
		return BatchSummary{}, err
	}

	summary := BatchSummary{Total: len(items), Results: make([]Result, 0, len(items))}
	for i, item := range items {
		result := Result{Index: i + 1, To: item.To, Kind: itemKind(item)}

		if strings.TrimSpace(item.To) == "" {
			result.Error = errMissingTo
			summary.add(result)
			d.logger.Warn().Str("session", sessionID).Int("index", result.Index).Msg(errMissingTo)
			continue
		}

		if err := d.sendItem(sessionID, item); err != nil {
			result.Error = err.Error()
			d.logger.Warn().Err(err).Str("session", sessionID).Int("index", result.Index).Str("to", item.To).Msg("bulk item failed")
		} else {
			result.Success = true
			result.Message = confirmation(result.Kind)
			d.logger.Info().Str("session", sessionID).Int("index", result.Index).Str("to", item.To).Msg("bulk item sent")
		}
		summary.add(result)

		if i < len(items)-1 {
			delay := defaultDelay
			if item.Delay != nil {
				delay = *item.Delay
			}
			if delay > 0 {
				d.sleep(delay)
			}
		}
	}

	d.logger.Info().
		Str("session", sessionID).
		Int("total", summary.Total).
		Int("successful", summary.Successful).
		Int("failed", summary.Failed).
		Msg("bulk send finished")
	return summary, nil
}

func (s *BatchSummary) add(r Result) {
	if r.Success {
		s.Successful++
	} else {
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

func (d *Dispatcher) sendItem(sessionID string, item BulkItem) error {
	if item.Attachment == "" && item.Message == "" {
		return msgerr.New(msgerr.KindValidation, errMissingContent)
	}
	t, err := d.connected(sessionID)
	if err != nil {
		return err
	}
	_, err = d.deliver(t, Request{
		To:             item.To,
		Message:        item.Message,
		Attachment:     item.Attachment,
		AttachmentType: item.AttachmentType,
		Caption:        item.Caption,
	})
	return err
}

func (d *Dispatcher) deliver(t transport.Transport, req Request) (Kind, error) {
	to, err := NormalizeRecipient(req.To, d.suffix)
	if err != nil {
		return "", err
	}

	if req.Attachment != "" {
		media, err := d.resolver.Resolve(req.Attachment, req.AttachmentType)
		if err != nil {
			return KindAttachment, err
		}
		if err := t.SendMedia(to, media, req.Caption); err != nil {
			return KindAttachment, msgerr.Wrap(msgerr.KindTransport, err)
		}
		return KindAttachment, nil
	}

	if err := t.SendText(to, req.Message); err != nil {
		return KindText, msgerr.Wrap(msgerr.KindTransport, err)
	}
	return KindText, nil
}

// connected returns the transport of sessionID when it is connected.
func (d *Dispatcher) connected(sessionID string) (transport.Transport, error) {
	s, ok := d.sessions.Get(sessionID)
	if !ok {
		return nil, notConnected(sessionID, session.StatusNotFound)
	}
	status := s.Status()
	t := s.Transport()
	// A released transport or terminal status means the session is being
	// torn down.
	if t == nil || status.Terminal() {
		return nil, notConnected(sessionID, session.StatusNotFound)
	}
	if status != session.StatusConnected {
		return nil, notConnected(sessionID, status)
	}
	return t, nil
}

func notConnected(sessionID string, status session.Status) error {
	return msgerr.New(msgerr.KindConnection, fmt.Sprintf("session %q is not connected (status: %s)", sessionID, status))
}

func itemKind(item BulkItem) Kind {
	if item.Attachment != "" {
		return KindAttachment
	}
	return KindText
}

func confirmation(kind Kind) string {
	if kind == KindAttachment {
		return confirmAttachment
	}
	return confirmText
}
