package smtpgw

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/spachava753/msgsession/transport"
)

const base64LineLength = 76

type outgoing struct {
	From    string
	To      string
	Subject string
	Text    string
	Media   *transport.Media
}

// buildMessage renders msg as an RFC 5322 message. Text-only messages are a
// single text/plain part; media messages are multipart/mixed with the text
// (if any) first.
func buildMessage(msg outgoing, messageID string, now time.Time) ([]byte, error) {
	headers := []string{
		fmt.Sprintf("From: %s", sanitizeHeader(msg.From)),
		fmt.Sprintf("To: %s", sanitizeHeader(msg.To)),
		fmt.Sprintf("Date: %s", now.Format(time.RFC1123Z)),
		fmt.Sprintf("Message-ID: %s", messageID),
		"MIME-Version: 1.0",
	}
	if subject := sanitizeHeader(msg.Subject); subject != "" {
		headers = append(headers, fmt.Sprintf("Subject: %s", mime.QEncoding.Encode("utf-8", subject)))
	}

	text := normalizeBody(msg.Text)
	if msg.Media == nil {
		headers = append(headers, "Content-Type: text/plain; charset=UTF-8")
		return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + text + "\r\n"), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if text != "" {
		part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=UTF-8"}})
		if err != nil {
			return nil, fmt.Errorf("smtpgw: writing text part failed: %w", err)
		}
		if _, err := part.Write([]byte(text + "\r\n")); err != nil {
			return nil, fmt.Errorf("smtpgw: writing text part failed: %w", err)
		}
	}

	mimeType := firstNonEmpty(msg.Media.MimeType, "application/octet-stream")
	filename := firstNonEmpty(msg.Media.Filename, "attachment")
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mimeType},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": filename})},
	})
	if err != nil {
		return nil, fmt.Errorf("smtpgw: writing attachment part failed: %w", err)
	}
	if err := writeBase64Lines(part, msg.Media.Data); err != nil {
		return nil, fmt.Errorf("smtpgw: encoding attachment failed: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("smtpgw: closing multipart body failed: %w", err)
	}

	headers = append(headers, fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q", mw.Boundary()))
	return append([]byte(strings.Join(headers, "\r\n")+"\r\n\r\n"), body.Bytes()...), nil
}

func writeBase64Lines(w interface{ Write([]byte) (int, error) }, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := min(base64LineLength, len(encoded))
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}

func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")
	return strings.TrimSpace(body)
}

func generateMessageID(address string) string {
	domain := "localhost"
	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		domain = address[at+1:]
	}
	return fmt.Sprintf("<%d.%s>", time.Now().UnixNano(), domain)
}
