package runner

import (
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	// QRImageKey stores the rendered PNG of the handshake payload.
	QRImageKey = "QR_CODE"
	// QRTextKey stores the raw handshake payload.
	QRTextKey = "QR_CODE_TEXT"

	qrImageSize = 512
)

// Publisher stores published artifacts.
type Publisher interface {
	Put(key string, contentType string, data []byte) error
	Delete(key string) error
}

func publishQR(p Publisher, payload string) error {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return fmt.Errorf("runner: rendering QR code failed: %w", err)
	}
	if err := p.Put(QRImageKey, "image/png", png); err != nil {
		return fmt.Errorf("runner: publishing QR image failed: %w", err)
	}
	if err := p.Put(QRTextKey, "text/plain; charset=utf-8", []byte(payload)); err != nil {
		return fmt.Errorf("runner: publishing QR text failed: %w", err)
	}
	return nil
}

// clearQR drops the artifacts of a handshake that is no longer pending.
func clearQR(p Publisher) error {
	return errors.Join(p.Delete(QRImageKey), p.Delete(QRTextKey))
}
