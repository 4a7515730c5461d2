package logo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// MaxDimension caps both logo edges; larger uploads are scaled down.
	MaxDimension = 512

	// MaxUploadBytes bounds what the processor will read from the upload.
	MaxUploadBytes = 5 << 20
)

var ErrUnsupportedFormat = errors.New("unsupported logo format")

// Processed is a normalized logo ready for object storage.
type Processed struct {
	Data        []byte
	ContentType string
	FileName    string
	Width       int
	Height      int
}

// Process decodes an uploaded logo, scales it to fit MaxDimension and
// re-encodes it as PNG. Re-encoding strips metadata and gives every company
// logo one predictable format.
func Process(r io.Reader) (*Processed, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading logo upload failed: %w", err)
	}
	if len(raw) > MaxUploadBytes {
		return nil, fmt.Errorf("logo exceeds the %d byte limit", MaxUploadBytes)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, ErrUnsupportedFormat
	}
	switch strings.ToLower(format) {
	case "png", "jpeg", "gif":
	default:
		return nil, ErrUnsupportedFormat
	}

	bounds := img.Bounds()
	if bounds.Dx() > MaxDimension || bounds.Dy() > MaxDimension {
		img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
		bounds = img.Bounds()
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding logo failed: %w", err)
	}

	return &Processed{
		Data:        buf.Bytes(),
		ContentType: "image/png",
		FileName:    "logo.png",
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}
