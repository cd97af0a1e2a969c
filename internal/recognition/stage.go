// Package recognition extracts text from page images.
package recognition

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

var errEmptyImage = errors.New("empty image")

// variants maps a language code to the script specific recognizer.
// Codes missing from the table use the latin recognizer.
var variants = map[string]domain.RecognizerVariant{
	"zh": domain.RecognizerChinese,
	"hi": domain.RecognizerDevanagari,
	"ja": domain.RecognizerJapanese,
	"ko": domain.RecognizerKorean,
}

// VariantFor returns the recognizer variant for a language hint
func VariantFor(hint *domain.Language) domain.RecognizerVariant {
	if hint == nil {
		return domain.RecognizerLatin
	}
	if v, ok := variants[hint.Code]; ok {
		return v
	}
	return domain.RecognizerLatin
}

// Stage runs a recognition backend over single page images
type Stage struct {
	backend domain.RecognitionBackend
	logger  *zap.Logger
}

// NewStage creates a recognition stage
func NewStage(backend domain.RecognitionBackend, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{backend: backend, logger: logger}
}

// Recognize extracts the text of one page. A nil hint, or the auto-detect
// pseudo language, lets the backend detect the script on its own.
func (s *Stage) Recognize(ctx context.Context, image []byte, hint *domain.Language) (domain.RecognizedText, error) {
	if len(image) == 0 {
		return domain.RecognizedText{}, &domain.RecognitionError{Err: errEmptyImage}
	}
	if hint != nil && hint.IsAuto() {
		hint = nil
	}
	variant := VariantFor(hint)

	text, confidence, err := s.backend.Recognize(ctx, image, variant, hint)
	if err != nil {
		// cancellation is not a backend failure and is passed through untouched
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.RecognizedText{}, err
		}
		return domain.RecognizedText{}, &domain.RecognitionError{Err: err}
	}

	result := domain.RecognizedText{
		Text:       text,
		Confidence: clampConfidence(confidence),
	}
	if hint != nil {
		lang := *hint
		result.Language = &lang
	}

	s.logger.Debug("text recognized",
		zap.String("variant", string(variant)),
		zap.Int("characters", len([]rune(text))),
		zap.Float64("confidence", result.Confidence),
	)
	return result, nil
}

func clampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
