package translation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

// ErrModelNotInstalled is returned by the stub when asked to translate without a model
var ErrModelNotInstalled = errors.New("translation model not installed")

const downloadSteps = 10

// StubBackend is a deterministic offline translator. Unknown texts are
// prefixed with "[<target>] "; downloads report progress in ten steps.
type StubBackend struct {
	mu               sync.Mutex
	installed        map[string]bool
	dictionary       map[string]string
	failures         map[string]error
	downloadFailures map[string]error
	stepDelay        time.Duration

	translations atomic.Int64
	downloads    atomic.Int64
}

// NewStubBackend creates a stub with the given models preinstalled, English when none are given
func NewStubBackend(preinstalled ...string) *StubBackend {
	if len(preinstalled) == 0 {
		preinstalled = []string{"en"}
	}
	b := &StubBackend{
		installed:        make(map[string]bool),
		dictionary:       make(map[string]string),
		failures:         make(map[string]error),
		downloadFailures: make(map[string]error),
	}
	for _, code := range preinstalled {
		b.installed[code] = true
	}
	return b
}

// AddTranslation scripts the translation of text into target
func (b *StubBackend) AddTranslation(target, text, translated string) *StubBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dictionary[target+"|"+text] = translated
	return b
}

// FailOn makes translating text fail with err
func (b *StubBackend) FailOn(text string, err error) *StubBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[text] = err
	return b
}

// FailDownload makes downloading the model for code fail with err
func (b *StubBackend) FailDownload(code string, err error) *StubBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloadFailures[code] = err
	return b
}

// SetStepDelay sets the simulated time per download step
func (b *StubBackend) SetStepDelay(d time.Duration) *StubBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stepDelay = d
	return b
}

// Translations returns how many texts were translated
func (b *StubBackend) Translations() int64 { return b.translations.Load() }

// Downloads returns how many model downloads were started
func (b *StubBackend) Downloads() int64 { return b.downloads.Load() }

// Translate implements domain.TranslationBackend
func (b *StubBackend) Translate(ctx context.Context, text, sourceCode, targetCode string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, code := range []string{sourceCode, targetCode} {
		if !b.installed[code] {
			return "", fmt.Errorf("%s: %w", code, ErrModelNotInstalled)
		}
	}
	if err, ok := b.failures[text]; ok {
		return "", err
	}

	b.translations.Add(1)
	if translated, ok := b.dictionary[targetCode+"|"+text]; ok {
		return translated, nil
	}
	if sourceCode == targetCode {
		return text, nil
	}
	return "[" + targetCode + "] " + text, nil
}

// IsModelDownloaded implements domain.TranslationBackend
func (b *StubBackend) IsModelDownloaded(ctx context.Context, code string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.installed[code], nil
}

// DownloadModel implements domain.TranslationBackend
func (b *StubBackend) DownloadModel(ctx context.Context, code string, progress domain.ProgressFunc) error {
	b.downloads.Add(1)

	b.mu.Lock()
	delay := b.stepDelay
	failure := b.downloadFailures[code]
	b.mu.Unlock()

	report := func(p float64) {
		if progress != nil {
			progress(p)
		}
	}
	report(0)

	for i := 1; i <= downloadSteps; i++ {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		// failures surface halfway through, like a dropped connection
		if failure != nil && i == downloadSteps/2 {
			return failure
		}
		report(float64(i) / downloadSteps)
	}

	b.mu.Lock()
	b.installed[code] = true
	b.mu.Unlock()
	return nil
}

// DeleteModel implements domain.TranslationBackend
func (b *StubBackend) DeleteModel(ctx context.Context, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.installed, code)
	return nil
}

var _ domain.TranslationBackend = (*StubBackend)(nil)
