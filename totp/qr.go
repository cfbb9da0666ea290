package totp

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// DefaultQRSize is the edge length in pixels of rendered enrollment images.
const DefaultQRSize = 256

// RenderQR encodes uri as a PNG QR code of size x size pixels. The output
// depends only on its inputs.
func RenderQR(uri string, size int) ([]byte, error) {
	if uri == "" {
		return nil, errors.New("uri is required")
	}
	if size <= 0 {
		size = DefaultQRSize
	}

	code, err := qr.Encode(uri, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return nil, fmt.Errorf("scale qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
