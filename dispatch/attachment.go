package dispatch

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/spachava753/msgsession/msgerr"
	"github.com/spachava753/msgsession/transport"
)

const (
	defaultFetchTimeout = 60 * time.Second
	// DefaultMaxAttachmentBytes caps fetched and inline attachments.
	DefaultMaxAttachmentBytes int64 = 64 << 20

	inlineFilename = "attachment"
)

// Resolver loads attachment bytes from a path, URL or inline payload.
type Resolver struct {
	HTTP     *http.Client
	MaxBytes int64
}

// NewResolver returns a resolver using client for URL fetches. A nil client
// selects one with a 60s timeout.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &Resolver{HTTP: client, MaxBytes: DefaultMaxAttachmentBytes}
}

// Resolve loads source, trying in order:
//
//  1. an existing local file, typed by content sniffing;
//  2. an http:// or https:// URL, typed by the server's Content-Type, which
//     is accepted even when nonstandard;
//  3. inline base64, typed by mimeType, which is then required. Anything up
//     to and including the first comma is dropped, so data URLs work.
//
// mimeType is only consulted for inline payloads.
func (r *Resolver) Resolve(source string, mimeType string) (transport.Media, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return transport.Media{}, msgerr.New(msgerr.KindValidation, "attachment is empty")
	}
	if isLocalFile(source) {
		return r.fromFile(source)
	}
	if hasHTTPScheme(source) {
		return r.fromURL(source)
	}
	return r.fromInline(source, mimeType)
}

func isLocalFile(source string) bool {
	info, err := os.Stat(source)
	return err == nil && info.Mode().IsRegular()
}

func hasHTTPScheme(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func (r *Resolver) fromFile(source string) (transport.Media, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return transport.Media{}, msgerr.Wrapf(msgerr.KindValidation, "dispatch: reading attachment "+source+" failed", err)
	}
	return transport.Media{
		MimeType: mimetype.Detect(data).String(),
		Filename: filepath.Base(source),
		Data:     data,
	}, nil
}

func (r *Resolver) fromURL(source string) (transport.Media, error) {
	client := r.HTTP
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	resp, err := client.Get(source)
	if err != nil {
		return transport.Media{}, msgerr.Wrapf(msgerr.KindTransport, "dispatch: fetching attachment failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return transport.Media{}, msgerr.New(msgerr.KindTransport, fmt.Sprintf("dispatch: fetching attachment %s failed: HTTP %d", source, resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes()+1))
	if err != nil {
		return transport.Media{}, msgerr.Wrapf(msgerr.KindTransport, "dispatch: reading attachment body failed", err)
	}
	if int64(len(data)) > r.maxBytes() {
		return transport.Media{}, msgerr.New(msgerr.KindValidation, fmt.Sprintf("dispatch: attachment %s exceeds %d bytes", source, r.maxBytes()))
	}

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	return transport.Media{
		MimeType: contentType,
		Filename: urlFilename(source),
		Data:     data,
	}, nil
}

func (r *Resolver) fromInline(source string, mimeType string) (transport.Media, error) {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return transport.Media{}, msgerr.New(msgerr.KindValidation, "type is required for inline attachments")
	}
	if comma := strings.Index(source, ","); comma >= 0 {
		source = source[comma+1:]
	}
	source = strings.TrimSpace(source)

	data, err := base64.StdEncoding.DecodeString(source)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(source, "="))
	}
	if err != nil {
		return transport.Media{}, msgerr.Wrapf(msgerr.KindValidation, "attachment is not a file, URL or valid base64", err)
	}
	if int64(len(data)) > r.maxBytes() {
		return transport.Media{}, msgerr.New(msgerr.KindValidation, fmt.Sprintf("dispatch: inline attachment exceeds %d bytes", r.maxBytes()))
	}
	return transport.Media{
		MimeType: mimeType,
		Filename: inlineFilename + extensionFor(mimeType),
		Data:     data,
	}, nil
}

func (r *Resolver) maxBytes() int64 {
	if r.MaxBytes <= 0 {
		return DefaultMaxAttachmentBytes
	}
	return r.MaxBytes
}

func urlFilename(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return inlineFilename
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return inlineFilename
	}
	return name
}

func extensionFor(mimeType string) string {
	if m := mimetype.Lookup(strings.ToLower(mimeType)); m != nil {
		return m.Extension()
	}
	return ""
}
