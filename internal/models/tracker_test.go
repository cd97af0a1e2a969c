package models

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/languages"
	"github.com/arunesh/TalkLens-Vibe1/internal/repositories"
)

// fakeBackend counts downloads and can hold them open until released
type fakeBackend struct {
	downloads atomic.Int32
	deletes   atomic.Int32

	mu        sync.Mutex
	installed map[string]bool

	release chan struct{}
	started chan struct{}
	failErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{installed: map[string]bool{"en": true}}
}

func (b *fakeBackend) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	return text, nil
}

func (b *fakeBackend) IsModelDownloaded(ctx context.Context, code string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.installed[code], nil
}

func (b *fakeBackend) DownloadModel(ctx context.Context, code string, progress domain.ProgressFunc) error {
	b.downloads.Add(1)
	if b.started != nil {
		close(b.started)
	}
	progress(0.25)
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.failErr != nil {
		return b.failErr
	}
	progress(0.5)
	progress(0.4) // out of order report must not move progress back
	progress(1.5)

	b.mu.Lock()
	b.installed[code] = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) DeleteModel(ctx context.Context, code string) error {
	b.deletes.Add(1)
	b.mu.Lock()
	delete(b.installed, code)
	b.mu.Unlock()
	return nil
}

func newTestTracker(t *testing.T, backend *fakeBackend) (*Tracker, *repositories.MemoryRepository) {
	records := repositories.NewMemoryRepository()
	return NewTracker(backend, records, zaptest.NewLogger(t)), records
}

func TestTracker_AutoIsAlwaysDownloaded(t *testing.T) {
	tracker, _ := newTestTracker(t, newFakeBackend())
	assert.True(t, tracker.IsDownloaded(context.Background(), languages.AutoDetect))
	assert.NoError(t, tracker.Delete(context.Background(), languages.AutoDetect))
}

func TestTracker_BackendStateIsRecorded(t *testing.T) {
	backend := newFakeBackend()
	tracker, records := newTestTracker(t, backend)
	ctx := context.Background()

	assert.True(t, tracker.IsDownloaded(ctx, languages.English))
	recorded, err := records.IsRecorded(ctx, "en")
	require.NoError(t, err)
	assert.True(t, recorded)

	assert.False(t, tracker.IsDownloaded(ctx, languages.Spanish))
}

// TestTracker_DownloadIsIdempotent tests that a second download is a no-op
func TestTracker_DownloadIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	tracker, _ := newTestTracker(t, backend)
	ctx := context.Background()

	require.NoError(t, tracker.Download(ctx, languages.Spanish))
	require.NoError(t, tracker.Download(ctx, languages.Spanish))

	assert.Equal(t, int32(1), backend.downloads.Load())
	assert.True(t, tracker.IsDownloaded(ctx, languages.Spanish))
	assert.Equal(t, float64(0), tracker.DownloadProgress(languages.Spanish))
}

// TestTracker_ConcurrentDownloadsShareOneFlight tests request coalescing per language
func TestTracker_ConcurrentDownloadsShareOneFlight(t *testing.T) {
	backend := newFakeBackend()
	backend.release = make(chan struct{})
	backend.started = make(chan struct{})
	tracker, _ := newTestTracker(t, backend)
	ctx := context.Background()

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = tracker.Download(ctx, languages.Spanish)
	}()
	<-backend.started

	assert.Equal(t, 0.25, tracker.DownloadProgress(languages.Spanish))

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = tracker.Download(ctx, languages.Spanish)
		}(i)
	}

	// let the joiners reach the flight before it finishes
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), backend.downloads.Load())
	assert.True(t, tracker.IsDownloaded(ctx, languages.Spanish))
}

// TestTracker_CancelledWaiterDoesNotAbortSharedDownload tests that one caller
// leaving a shared download does not fail the callers still waiting on it
func TestTracker_CancelledWaiterDoesNotAbortSharedDownload(t *testing.T) {
	backend := newFakeBackend()
	backend.release = make(chan struct{})
	backend.started = make(chan struct{})
	tracker, _ := newTestTracker(t, backend)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		errA <- tracker.Download(ctxA, languages.Spanish)
	}()
	<-backend.started

	errB := make(chan error, 1)
	go func() {
		errB <- tracker.Download(context.Background(), languages.Spanish)
	}()
	// let B join the flight before A leaves it
	time.Sleep(20 * time.Millisecond)

	cancelA()
	err := <-errA
	assert.ErrorIs(t, err, context.Canceled)

	close(backend.release)
	require.NoError(t, <-errB)

	assert.Equal(t, int32(1), backend.downloads.Load())
	assert.True(t, tracker.IsDownloaded(context.Background(), languages.Spanish))
}

func TestTracker_DownloadFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.failErr = errors.New("network unreachable")
	tracker, records := newTestTracker(t, backend)
	ctx := context.Background()

	err := tracker.Download(ctx, languages.French)
	require.Error(t, err)

	var downloadErr *domain.ModelDownloadError
	require.True(t, errors.As(err, &downloadErr))
	assert.Equal(t, "fr", downloadErr.Code)
	assert.ErrorIs(t, err, backend.failErr)

	assert.False(t, tracker.IsDownloaded(ctx, languages.French))
	assert.Equal(t, float64(0), tracker.DownloadProgress(languages.French))
	recorded, _ := records.IsRecorded(ctx, "fr")
	assert.False(t, recorded)
}

func TestTracker_DownloadCancelled(t *testing.T) {
	backend := newFakeBackend()
	backend.release = make(chan struct{})
	// the abandoned flight may still log after the test returns
	tracker := NewTracker(backend, repositories.NewMemoryRepository(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tracker.Download(ctx, languages.German)
	var downloadErr *domain.ModelDownloadError
	require.True(t, errors.As(err, &downloadErr))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, tracker.IsDownloaded(context.Background(), languages.German))
}

func TestTracker_ProgressListener(t *testing.T) {
	backend := newFakeBackend()
	tracker, _ := newTestTracker(t, backend)

	var mu sync.Mutex
	var seen []float64
	err := tracker.DownloadWithProgress(context.Background(), languages.Italian, func(p float64) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, 0.25, seen[1])
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
		assert.LessOrEqual(t, seen[i], 1.0)
	}
	assert.Equal(t, 1.0, seen[len(seen)-1])

	tracker.mu.RLock()
	assert.Empty(t, tracker.listeners)
	tracker.mu.RUnlock()
}

func TestTracker_Delete(t *testing.T) {
	backend := newFakeBackend()
	tracker, records := newTestTracker(t, backend)
	ctx := context.Background()

	// not downloaded: no-op
	require.NoError(t, tracker.Delete(ctx, languages.Korean))
	assert.Equal(t, int32(0), backend.deletes.Load())

	require.NoError(t, tracker.Download(ctx, languages.Korean))
	require.NoError(t, tracker.Delete(ctx, languages.Korean))
	assert.Equal(t, int32(1), backend.deletes.Load())
	assert.False(t, tracker.IsDownloaded(ctx, languages.Korean))

	recorded, _ := records.IsRecorded(ctx, "ko")
	assert.False(t, recorded)
}

func TestTracker_LanguagesAndSync(t *testing.T) {
	backend := newFakeBackend()
	backend.installed["ja"] = true
	tracker, records := newTestTracker(t, backend)
	ctx := context.Background()

	count, err := tracker.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	codes, err := records.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "ja"}, codes)

	list := tracker.Languages(ctx)
	require.Len(t, list, len(languages.All()))
	for _, l := range list {
		switch l.Code {
		case domain.AutoDetectCode, "en", "ja":
			assert.True(t, l.IsDownloaded, l.Code)
		default:
			assert.False(t, l.IsDownloaded, l.Code)
		}
	}

	assert.Equal(t, domain.ModelAvailability{IsDownloaded: true, DownloadProgress: 1}, tracker.Availability(ctx, languages.Japanese))
	assert.Equal(t, domain.ModelAvailability{}, tracker.Availability(ctx, languages.Arabic))
}
