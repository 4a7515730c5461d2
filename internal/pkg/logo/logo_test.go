package logo

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestProcessKeepsSmallLogo(t *testing.T) {
	out, err := Process(bytes.NewReader(encodePNG(t, 200, 100)))
	assert.NoError(t, err)
	assert.Equal(t, 200, out.Width)
	assert.Equal(t, 100, out.Height)
	assert.Equal(t, "image/png", out.ContentType)
	assert.Equal(t, "logo.png", out.FileName)

	// Output is decodable PNG.
	decoded, err := png.Decode(bytes.NewReader(out.Data))
	assert.NoError(t, err)
	assert.Equal(t, 200, decoded.Bounds().Dx())
}

func TestProcessScalesOversizedLogo(t *testing.T) {
	out, err := Process(bytes.NewReader(encodePNG(t, 2048, 1024)))
	assert.NoError(t, err)
	assert.Equal(t, MaxDimension, out.Width)
	assert.Equal(t, MaxDimension/2, out.Height)
}

func TestProcessRejectsGarbage(t *testing.T) {
	_, err := Process(strings.NewReader("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestProcessRejectsOversizedUpload(t *testing.T) {
	big := bytes.Repeat([]byte{0xff}, MaxUploadBytes+1)
	_, err := Process(bytes.NewReader(big))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}
