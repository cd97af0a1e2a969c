// Package tesseract implements the recognition backend on top of the Tesseract
// OCR engine via gosseract.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

// traineddata names per ISO 639-1 code
var tessLanguages = map[string]string{
	"en": "eng",
	"es": "spa",
	"fr": "fra",
	"de": "deu",
	"it": "ita",
	"pt": "por",
	"ru": "rus",
	"ja": "jpn",
	"ko": "kor",
	"zh": "chi_sim",
	"ar": "ara",
	"hi": "hin",
}

// traineddata used when no hint is given, per recognizer variant
var variantLanguages = map[domain.RecognizerVariant][]string{
	domain.RecognizerChinese:    {"chi_sim"},
	domain.RecognizerDevanagari: {"hin"},
	domain.RecognizerJapanese:   {"jpn"},
	domain.RecognizerKorean:     {"kor"},
}

// Backend recognizes text with Tesseract. A gosseract client is not safe for
// concurrent use, so every call gets its own client.
type Backend struct {
	clientFactory    func() *gosseract.Client
	defaultLanguages []string
	tessdataPrefix   string

	// limits concurrent Tesseract instances
	slots chan struct{}
}

// Option configures the backend
type Option func(*Backend)

// WithDefaultLanguages sets the traineddata used for the latin recognizer
// when no hint is given, e.g. "eng", "spa".
func WithDefaultLanguages(langs ...string) Option {
	return func(b *Backend) {
		if len(langs) > 0 {
			b.defaultLanguages = langs
		}
	}
}

// WithTessdataPrefix points Tesseract at a custom tessdata directory
func WithTessdataPrefix(path string) Option {
	return func(b *Backend) {
		b.tessdataPrefix = path
	}
}

// WithMaxInstances bounds the number of concurrently running engines
func WithMaxInstances(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.slots = make(chan struct{}, n)
		}
	}
}

// NewBackend creates a Tesseract backed recognizer
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		clientFactory:    gosseract.NewClient,
		defaultLanguages: []string{"eng"},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.slots == nil {
		b.slots = make(chan struct{}, 4)
	}
	return b
}

// Languages returns the traineddata names for a call
func Languages(variant domain.RecognizerVariant, hint *domain.Language, defaults []string) []string {
	if hint != nil {
		if name, ok := tessLanguages[hint.Code]; ok {
			return []string{name}
		}
	}
	if langs, ok := variantLanguages[variant]; ok {
		return langs
	}
	return defaults
}

// Recognize implements domain.RecognitionBackend
func (b *Backend) Recognize(ctx context.Context, image []byte, variant domain.RecognizerVariant, hint *domain.Language) (string, float64, error) {
	select {
	case b.slots <- struct{}{}:
		defer func() { <-b.slots }()
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}

	c := b.clientFactory()
	defer c.Close()

	if b.tessdataPrefix != "" {
		c.TessdataPrefix = b.tessdataPrefix
	}
	if err := c.SetLanguage(Languages(variant, hint, b.defaultLanguages)...); err != nil {
		return "", 0, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", 0, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return "", 0, fmt.Errorf("recognize text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(text), averageConfidence(c), nil
}

// averageConfidence returns the mean word confidence in [0,1]
func averageConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}

var _ domain.RecognitionBackend = (*Backend)(nil)
