package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arunesh/TalkLens-Vibe1/internal/cache"
	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/imaging"
	"github.com/arunesh/TalkLens-Vibe1/internal/models"
	"github.com/arunesh/TalkLens-Vibe1/internal/processor"
	"github.com/arunesh/TalkLens-Vibe1/internal/recognition"
	"github.com/arunesh/TalkLens-Vibe1/internal/repositories"
	"github.com/arunesh/TalkLens-Vibe1/internal/settings"
	"github.com/arunesh/TalkLens-Vibe1/internal/translation"
	"github.com/arunesh/TalkLens-Vibe1/internal/usecases"
)

type server struct {
	handler http.Handler
	repo    *repositories.MemoryRepository
	ocr     *recognition.StubBackend
	mt      *translation.StubBackend
}

type fakeChecker struct{ err error }

func (f fakeChecker) CheckConnection(ctx context.Context) error { return f.err }

func identity(data []byte, _ domain.ImageQuality) ([]byte, error) { return data, nil }

func newServer(t *testing.T, checkers map[string]ConnectionChecker) *server {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()
	repo := repositories.NewMemoryRepository()

	ocr := recognition.NewStubBackend().SetText([]byte("page-1"), "Hola")
	mt := translation.NewStubBackend("en").AddTranslation("en", "Hola", "Hello")
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

	u := usecases.NewDocumentUsecase(repo, cache.NewSnapshotCache(4, time.Minute), proc, svc, logger, 4,
		usecases.WithImageNormalizer(identity),
	)
	t.Cleanup(u.Shutdown)

	h := NewRouter(Services{
		Documents: u,
		Settings:  svc,
		Models:    tracker,
		Health:    NewHealthHandler(checkers, logger),
	}, RouterConfig{RequestTimeout: 10 * time.Second, MaxConcurrent: 10, RateLimit: 1000}, logger)

	return &server{handler: h, repo: repo, ocr: ocr, mt: mt}
}

func (s *server) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, pages [][]byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i, page := range pages {
		part, err := mw.CreateFormFile(pagesField, fmt.Sprintf("page-%d.jpg", i+1))
		require.NoError(t, err)
		_, err = part.Write(page)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"timeout", &domain.PageError{PageNumber: 1, Err: &domain.TimeoutError{Phase: "recognizing", Err: context.DeadlineExceeded}}, http.StatusGatewayTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"canceled", context.Canceled, http.StatusRequestTimeout},
		{"download", &domain.ModelDownloadError{Code: "es", Err: errors.New("offline")}, http.StatusBadGateway},
		{"unsupported", &domain.UnsupportedLanguageError{Code: "xx"}, http.StatusBadRequest},
		{"bad image", fmt.Errorf("page 1: %w", imaging.ErrUnsupportedImage), http.StatusBadRequest},
		{"empty", domain.ErrEmptyDocument, http.StatusBadRequest},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"terminal", domain.ErrTerminalStatus, http.StatusConflict},
		{"recognition", &domain.PageError{PageNumber: 2, Err: &domain.RecognitionError{Err: errors.New("blur")}}, http.StatusUnprocessableEntity},
		{"translation", &domain.TranslationError{Source: "es", Target: "en", Err: errors.New("x")}, http.StatusUnprocessableEntity},
		{"integrity", &domain.DataIntegrityError{PageNumber: 1, Reason: "no text"}, http.StatusUnprocessableEntity},
		{"stopped", usecases.ErrUsecaseStopped, http.StatusServiceUnavailable},
		{"processor stopped", processor.ErrProcessorStopped, http.StatusServiceUnavailable},
		{"storage", domain.NewStorageError("save", errors.New("disk full")), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestMessageForHidesInternals(t *testing.T) {
	err := errors.New("dsn=secret")
	assert.Equal(t, "internal error", messageFor(http.StatusInternalServerError, err))
	assert.Equal(t, "service is shutting down", messageFor(http.StatusServiceUnavailable, err))
	assert.Equal(t, "dsn=secret", messageFor(http.StatusBadRequest, err))
}

func TestDocumentLifecycle(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, uploadRequest(t, [][]byte{[]byte("page-1")}, nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	doc := decode[domain.Document](t, rec)
	assert.Equal(t, domain.StatusCompleted, doc.Status)
	assert.Equal(t, "es", doc.SourceLanguage.Code)
	require.Len(t, doc.Pages, 1)
	require.NotNil(t, doc.Pages[0].TranslatedText)
	assert.Equal(t, "Hello", *doc.Pages[0].TranslatedText)

	// list
	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Data  []documentSummary `json:"data"`
		Total int               `json:"total"`
	}](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, doc.ID, list.Data[0].ID)
	assert.Equal(t, "Hello", list.Data[0].Preview)
	assert.Equal(t, "Completed", list.Data[0].StatusText)

	// get without images
	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/documents/"+doc.ID.String()+"?images=false", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decode[domain.Document](t, rec)
	assert.Empty(t, fetched.Pages[0].ImageData)

	// delete
	rec = s.do(t, httptest.NewRequest(http.MethodDelete, "/documents/"+doc.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/documents/"+doc.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDocumentOverridesLanguages(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, uploadRequest(t, [][]byte{[]byte("page-1")}, map[string]string{
		"source": "es",
		"target": "fr",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	doc := decode[domain.Document](t, rec)
	assert.Equal(t, "fr", doc.TargetLanguage.Code)
	require.NotNil(t, doc.Pages[0].TranslatedText)
	assert.Equal(t, "[fr] Hola", *doc.Pages[0].TranslatedText)
}

func TestCreateDocumentErrors(t *testing.T) {
	s := newServer(t, nil)

	t.Run("no pages", func(t *testing.T) {
		rec := s.do(t, uploadRequest(t, nil, map[string]string{"source": "es"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		rec := s.do(t, httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader("{}")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported language", func(t *testing.T) {
		rec := s.do(t, uploadRequest(t, [][]byte{[]byte("page-1")}, map[string]string{"target": "tlh"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("recognition failure", func(t *testing.T) {
		s.ocr.FailOn([]byte("smudge"), errors.New("unreadable"))

		rec := s.do(t, uploadRequest(t, [][]byte{[]byte("smudge")}, nil))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

		body := decode[errorResponse](t, rec)
		assert.Contains(t, body.Error, "unreadable")
		require.NotNil(t, body.Document)
		assert.Equal(t, domain.StatusFailed, body.Document.Status)
		assert.Empty(t, body.Document.Pages[0].ImageData)
	})
}

func TestCreateDocumentAsync(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, uploadRequest(t, [][]byte{[]byte("page-1")}, map[string]string{"async": "true"}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	summary := decode[documentSummary](t, rec)
	assert.Equal(t, domain.StatusPending, summary.Status)
	assert.Equal(t, 1, summary.PageCount)
}

func TestDocumentIDValidation(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/documents/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// deleting an unknown id is not an error
	rec = s.do(t, httptest.NewRequest(http.MethodDelete, "/documents/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClearDocuments(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, uploadRequest(t, [][]byte{[]byte("page-1")}, nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodDelete, "/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	docs, err := s.repo.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSettingsEndpoints(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode[domain.AppSettings](t, rec)
	assert.Equal(t, "es", current.SourceLanguage.Code)

	// partial update keeps the other fields
	rec = s.do(t, httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(`{"image_quality":"medium"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.AppSettings](t, rec)
	assert.Equal(t, domain.ImageQualityMedium, updated.ImageQuality)
	assert.Equal(t, "es", updated.SourceLanguage.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/settings/swap", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	swapped := decode[domain.AppSettings](t, rec)
	assert.Equal(t, "en", swapped.SourceLanguage.Code)
	assert.Equal(t, "es", swapped.TargetLanguage.Code)

	t.Run("invalid", func(t *testing.T) {
		rec := s.do(t, httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(`{"image_quality":"ultra"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = s.do(t, httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(`{"unknown":1}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLanguageEndpoints(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/languages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Data []domain.Language `json:"data"`
	}](t, rec)
	assert.NotEmpty(t, list.Data)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/languages/de/model", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	before := decode[modelResponse](t, rec)
	assert.False(t, before.IsDownloaded)

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/languages/de/model", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	after := decode[modelResponse](t, rec)
	assert.True(t, after.IsDownloaded)
	assert.True(t, after.Language.IsDownloaded)
	assert.Equal(t, int64(1), s.mt.Downloads())

	rec = s.do(t, httptest.NewRequest(http.MethodDelete, "/languages/de/model", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decode[modelResponse](t, rec)
	assert.False(t, deleted.IsDownloaded)

	t.Run("unsupported code", func(t *testing.T) {
		rec := s.do(t, httptest.NewRequest(http.MethodGet, "/languages/tlh/model", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("download failure", func(t *testing.T) {
		s.mt.FailDownload("fr", errors.New("network unreachable"))
		rec := s.do(t, httptest.NewRequest(http.MethodPost, "/languages/fr/model", nil))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	s := newServer(t, map[string]ConnectionChecker{"documents": fakeChecker{}})
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])

	s = newServer(t, map[string]ConnectionChecker{
		"documents": fakeChecker{},
		"redis":     fakeChecker{err: errors.New("connection refused")},
	})
	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, "unhealthy", body["status"])
	backends := body["backends"].(map[string]any)
	assert.Equal(t, "connected", backends["documents"])
	assert.Equal(t, "connection refused", backends["redis"])
}
