package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/middleware"
	"github.com/arunesh/TalkLens-Vibe1/internal/usecases"
)

const (
	pagesField          = "pages"
	defaultMaxUpload    = 32 << 20
	multipartMemorySize = 8 << 20
)

// DocumentService is the document usecase as seen by HTTP
type DocumentService interface {
	CreateDocument(ctx context.Context, images [][]byte, sourceCode, targetCode string) (domain.Document, error)
	ProcessDocument(ctx context.Context, doc domain.Document) (domain.Document, error)
	SubmitAsync(doc domain.Document) (bool, error)
	GetDocument(ctx context.Context, id uuid.UUID) (domain.Document, error)
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	ClearAll(ctx context.Context) error
}

var _ DocumentService = (*usecases.DocumentUsecase)(nil)

// DocumentHandler handles HTTP requests for documents
type DocumentHandler struct {
	documents DocumentService
	settings  SettingsService
	logger    *zap.Logger
	maxUpload int64
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documents DocumentService, settings SettingsService, logger *zap.Logger, maxUpload int64) *DocumentHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &DocumentHandler{
		documents: documents,
		settings:  settings,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

// documentSummary is a list entry without page payloads
type documentSummary struct {
	ID             uuid.UUID               `json:"id"`
	SourceLanguage domain.Language         `json:"source_language"`
	TargetLanguage domain.Language         `json:"target_language"`
	CreatedAt      time.Time               `json:"created_at"`
	Status         domain.ProcessingStatus `json:"status"`
	StatusText     string                  `json:"status_text"`
	PageCount      int                     `json:"page_count"`
	DisplayReady   bool                    `json:"display_ready"`
	Preview        string                  `json:"preview,omitempty"`
}

const previewLength = 120

func summarize(doc domain.Document) documentSummary {
	s := documentSummary{
		ID:             doc.ID,
		SourceLanguage: doc.SourceLanguage,
		TargetLanguage: doc.TargetLanguage,
		CreatedAt:      doc.CreatedAt,
		Status:         doc.Status,
		StatusText:     doc.Status.DisplayText(),
		PageCount:      doc.PageCount(),
		DisplayReady:   doc.IsDisplayReady(),
	}
	if first, ok := doc.ThumbnailPage(); ok && first.HasTranslatedText() {
		preview := []rune(*first.TranslatedText)
		if len(preview) > previewLength {
			preview = append(preview[:previewLength], '…')
		}
		s.Preview = string(preview)
	}
	return s
}

// CreateDocument handles POST /documents.
// Multipart form: one or more "pages" files, optional "source" and "target"
// codes (the settings pair by default) and "async=true" to queue the run.
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemorySize); err != nil {
		h.logger.Warn("failed to parse upload",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		respondError(w, h.logger, http.StatusBadRequest, "invalid multipart upload", requestID)
		return
	}
	defer r.MultipartForm.RemoveAll()

	images, err := readPages(r)
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	current := h.settings.Get(ctx)
	source := r.FormValue("source")
	if source == "" {
		source = current.SourceLanguage.Code
	}
	target := r.FormValue("target")
	if target == "" {
		target = current.TargetLanguage.Code
	}

	doc, err := h.documents.CreateDocument(ctx, images, source, target)
	if err != nil {
		respondErr(w, h.logger, err, requestID)
		return
	}

	if async, _ := strconv.ParseBool(r.FormValue("async")); async {
		queued, err := h.documents.SubmitAsync(doc)
		if err != nil {
			respondErr(w, h.logger, err, requestID)
			return
		}
		if !queued {
			respondError(w, h.logger, http.StatusServiceUnavailable, "processing queue is full", requestID)
			return
		}
		respondJSON(w, h.logger, http.StatusAccepted, summarize(doc), requestID)
		return
	}

	processed, err := h.documents.ProcessDocument(ctx, doc)
	if err != nil {
		status := statusFor(err)
		body := errorResponse{Error: messageFor(status, err), RequestID: requestID}
		if processed.Status == domain.StatusFailed {
			failed := processed.WithoutImages()
			body.Document = &failed
		}
		h.logger.Warn("document processing failed",
			zap.String("request_id", requestID),
			zap.String("id", doc.ID.String()),
			zap.Int("status", status),
			zap.Error(err),
		)
		respondJSON(w, h.logger, status, body, requestID)
		return
	}

	respondJSON(w, h.logger, http.StatusCreated, processed, requestID)
}

func readPages(r *http.Request) ([][]byte, error) {
	files := r.MultipartForm.File[pagesField]
	if len(files) == 0 {
		return nil, fmt.Errorf("at least one %q file is required", pagesField)
	}

	images := make([][]byte, 0, len(files))
	for i, header := range files {
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		images = append(images, data)
	}
	return images, nil
}

// GetDocument handles GET /documents/{id}. ?images=false drops page payloads.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.parseID(w, r, requestID)
	if !ok {
		return
	}

	doc, err := h.documents.GetDocument(ctx, id)
	if err != nil {
		respondErr(w, h.logger, err, requestID)
		return
	}

	if images, err := strconv.ParseBool(r.URL.Query().Get("images")); err == nil && !images {
		doc = doc.WithoutImages()
	}
	respondJSON(w, h.logger, http.StatusOK, doc, requestID)
}

// ListDocuments handles GET /documents, newest first
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	docs, err := h.documents.ListDocuments(ctx)
	if err != nil {
		respondErr(w, h.logger, err, requestID)
		return
	}

	summaries := make([]documentSummary, len(docs))
	for i, doc := range docs {
		summaries[i] = summarize(doc)
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"data":  summaries,
		"total": len(summaries),
	}, requestID)
}

// DeleteDocument handles DELETE /documents/{id}
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.parseID(w, r, requestID)
	if !ok {
		return
	}

	if err := h.documents.DeleteDocument(ctx, id); err != nil {
		respondErr(w, h.logger, err, requestID)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]string{"message": "document deleted"}, requestID)
}

// ClearDocuments handles DELETE /documents
func (h *DocumentHandler) ClearDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	if err := h.documents.ClearAll(ctx); err != nil {
		respondErr(w, h.logger, err, requestID)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]string{"message": "history cleared"}, requestID)
}

func (h *DocumentHandler) parseID(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "invalid document id", requestID)
		return uuid.Nil, false
	}
	return id, true
}
