package assets

import (
	qr "github.com/skip2/go-qrcode"
)

const (
	minQRSize     = 128
	maxQRSize     = 1024
	defaultQRSize = 256
)

// QRCode renders content as a PNG QR code. Out of range sizes fall back to 256px.
func QRCode(content string, size int) ([]byte, error) {
	if size < minQRSize || size > maxQRSize {
		size = defaultQRSize
	}
	return qr.Encode(content, qr.Medium, size)
}
