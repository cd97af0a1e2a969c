package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arunesh/TalkLens-Vibe1/internal/cache"
	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/models"
	"github.com/arunesh/TalkLens-Vibe1/internal/processor"
	"github.com/arunesh/TalkLens-Vibe1/internal/recognition"
	"github.com/arunesh/TalkLens-Vibe1/internal/repositories"
	"github.com/arunesh/TalkLens-Vibe1/internal/settings"
	"github.com/arunesh/TalkLens-Vibe1/internal/translation"
)

type stack struct {
	usecase  *DocumentUsecase
	repo     *repositories.MemoryRepository
	settings *settings.Service
	ocr      *recognition.StubBackend
	mt       *translation.StubBackend
}

func newStack(t *testing.T) *stack {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()
	repo := repositories.NewMemoryRepository()

	ocr := recognition.NewStubBackend().
		SetText([]byte("page-1"), "Hola").
		SetText([]byte("page-2"), "Adios")
	mt := translation.NewStubBackend("en").
		AddTranslation("en", "Hola", "Hello").
		AddTranslation("en", "Adios", "Goodbye")
	tracker := models.NewTracker(mt, repo, logger)

	pipeline := processor.NewPipeline(
		recognition.NewStage(ocr, logger),
		translation.NewStage(mt, tracker, logger),
		logger,
		processor.WithTimeout(5*time.Second),
	)
	proc := processor.NewDocumentProcessor(pipeline, 2, 10, logger)
	proc.Start()
	t.Cleanup(proc.Stop)

	svc, err := settings.NewService(ctx, repo, logger)
	require.NoError(t, err)
	_, err = svc.SetLanguagePair(ctx, "es", "en")
	require.NoError(t, err)

	u := NewDocumentUsecase(repo, cache.NewSnapshotCache(4, time.Minute), proc, svc, logger, 4,
		WithImageNormalizer(identityNormalizer),
	)
	t.Cleanup(u.Shutdown)

	return &stack{usecase: u, repo: repo, settings: svc, ocr: ocr, mt: mt}
}

// TestEndToEndTranslateImages runs capture -> pipeline -> history with real components
func TestEndToEndTranslateImages(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	batch := NewBatch()
	batch.AddPage([]byte("page-1"))
	extra := batch.AddPage([]byte("discarded"))
	batch.AddPage([]byte("page-2"))
	require.NoError(t, batch.RemovePage(extra.ID))

	doc, err := s.usecase.TranslateImages(ctx, batch.Images())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, doc.Status)
	assert.True(t, doc.IsDisplayReady())
	require.Len(t, doc.Pages, 2)
	assert.Equal(t, "Hello", *doc.Pages[0].TranslatedText)
	assert.Equal(t, "Goodbye", *doc.Pages[1].TranslatedText)
	assert.Equal(t, int64(1), s.mt.Downloads(), "the spanish model is fetched once")

	// history
	got, err := s.usecase.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	docs, err := s.usecase.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	// delete removes it from both the store and the cache
	require.NoError(t, s.usecase.DeleteDocument(ctx, doc.ID))
	_, err = s.usecase.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestEndToEndFailedDocumentIsKept tests that failed runs land in history with status failed
func TestEndToEndFailedDocumentIsKept(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.ocr.FailOn([]byte("page-2"), errors.New("too dark"))

	doc, err := s.usecase.TranslateImages(ctx, [][]byte{[]byte("page-1"), []byte("page-2")})
	require.Error(t, err)

	var pageErr *domain.PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, 2, pageErr.PageNumber)

	stored, err := s.repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

// TestEndToEndClearAll tests that clearing history also empties the cache
func TestEndToEndClearAll(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc, err := s.usecase.TranslateImages(ctx, [][]byte{[]byte("page-1")})
	require.NoError(t, err)

	_, err = s.usecase.GetDocument(ctx, doc.ID)
	require.NoError(t, err)

	require.NoError(t, s.usecase.ClearAll(ctx))
	_, err = s.usecase.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestEndToEndWithoutImages tests that KeepOriginalImages=false strips stored payloads
func TestEndToEndWithoutImages(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	current := s.settings.Get(ctx)
	current.KeepOriginalImages = false
	_, err := s.settings.Update(ctx, current)
	require.NoError(t, err)

	doc, err := s.usecase.TranslateImages(ctx, [][]byte{[]byte("page-1")})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Pages[0].ImageData)

	stored, err := s.repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Pages[0].ImageData)
	assert.Equal(t, "Hello", *stored.Pages[0].TranslatedText)
}
