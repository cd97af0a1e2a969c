package recognition

import (
	"context"
	"sync"
	"time"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

// DefaultStubText is returned for images without a scripted text
const DefaultStubText = "This is sample recognized text from the image."

// StubCall records one call made to the stub backend
type StubCall struct {
	Variant domain.RecognizerVariant
	Hint    string
}

// StubBackend is a deterministic recognition backend. Texts and failures are
// scripted per image payload.
type StubBackend struct {
	mu         sync.Mutex
	texts      map[string]string
	failures   map[string]error
	fallback   string
	confidence float64
	delay      time.Duration
	calls      []StubCall
}

// NewStubBackend creates a stub answering DefaultStubText with confidence 0.95
func NewStubBackend() *StubBackend {
	return &StubBackend{
		texts:      make(map[string]string),
		failures:   make(map[string]error),
		fallback:   DefaultStubText,
		confidence: 0.95,
	}
}

// SetText scripts the text recognized for an image
func (b *StubBackend) SetText(image []byte, text string) *StubBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.texts[string(image)] = text
	return b
}

// FailOn makes recognition of the image fail with err
func (b *StubBackend) FailOn(image []byte, err error) *StubBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[string(image)] = err
	return b
}

// SetFallback changes the text returned for unscripted images
func (b *StubBackend) SetFallback(text string) *StubBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fallback = text
	return b
}

// SetConfidence changes the reported confidence
func (b *StubBackend) SetConfidence(c float64) *StubBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confidence = c
	return b
}

// SetDelay makes each call take at least d
func (b *StubBackend) SetDelay(d time.Duration) *StubBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
	return b
}

// Calls returns the calls made so far
func (b *StubBackend) Calls() []StubCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]StubCall(nil), b.calls...)
}

// Recognize implements domain.RecognitionBackend
func (b *StubBackend) Recognize(ctx context.Context, image []byte, variant domain.RecognizerVariant, hint *domain.Language) (string, float64, error) {
	b.mu.Lock()
	call := StubCall{Variant: variant}
	if hint != nil {
		call.Hint = hint.Code
	}
	b.calls = append(b.calls, call)
	delay := b.delay
	failure := b.failures[string(image)]
	text, ok := b.texts[string(image)]
	if !ok {
		text = b.fallback
	}
	confidence := b.confidence
	b.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	if failure != nil {
		return "", 0, failure
	}
	return text, confidence, nil
}

var _ domain.RecognitionBackend = (*StubBackend)(nil)
