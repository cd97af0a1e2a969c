// Package imaging prepares captured page images for storage and recognition.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	// decoders registered with image.Decode
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

// ErrUnsupportedImage is returned for payloads no registered decoder understands
var ErrUnsupportedImage = errors.New("unsupported image")

// MaxPixels caps decoded image size
const MaxPixels = 64 << 20

// Normalize decodes an encoded page image and re-encodes it as JPEG using the
// compression ratio of the requested quality.
func Normalize(data []byte, quality domain.ImageQuality) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnsupportedImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: %s image %dx%d out of bounds", ErrUnsupportedImage, format, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality(quality)}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// JPEGQuality converts the quality setting to a libjpeg style 1..100 value
func JPEGQuality(quality domain.ImageQuality) int {
	q := int(math.Round(quality.CompressionRatio() * 100))
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	return q
}

// Format reports the detected encoding of data, or "" when unknown
func Format(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return format
}
