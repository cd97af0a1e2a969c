package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/languages"
	"github.com/arunesh/TalkLens-Vibe1/internal/middleware"
	"github.com/arunesh/TalkLens-Vibe1/internal/models"
)

// ModelService manages translation models
type ModelService interface {
	Languages(ctx context.Context) []domain.Language
	Availability(ctx context.Context, lang domain.Language) domain.ModelAvailability
	Download(ctx context.Context, lang domain.Language) error
	Delete(ctx context.Context, lang domain.Language) error
}

var _ ModelService = (*models.Tracker)(nil)

// LanguageHandler serves the language catalog and model management
type LanguageHandler struct {
	models ModelService
	logger *zap.Logger
}

// NewLanguageHandler creates a new language handler
func NewLanguageHandler(models ModelService, logger *zap.Logger) *LanguageHandler {
	return &LanguageHandler{models: models, logger: logger}
}

type modelResponse struct {
	Language domain.Language `json:"language"`
	domain.ModelAvailability
}

// ListLanguages handles GET /languages
func (h *LanguageHandler) ListLanguages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"data": h.models.Languages(ctx),
	}, middleware.GetRequestID(ctx))
}

// GetModel handles GET /languages/{code}/model
func (h *LanguageHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	lang, ok := h.lookup(w, r, requestID)
	if !ok {
		return
	}
	h.respondModel(w, r, lang, http.StatusOK)
}

// DownloadModel handles POST /languages/{code}/model. The call returns once the model is available.
func (h *LanguageHandler) DownloadModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	lang, ok := h.lookup(w, r, requestID)
	if !ok {
		return
	}

	if err := h.models.Download(ctx, lang); err != nil {
		respondErr(w, h.logger, err, requestID)
		return
	}
	h.respondModel(w, r, lang, http.StatusOK)
}

// DeleteModel handles DELETE /languages/{code}/model
func (h *LanguageHandler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	lang, ok := h.lookup(w, r, requestID)
	if !ok {
		return
	}

	if err := h.models.Delete(ctx, lang); err != nil {
		respondErr(w, h.logger, err, requestID)
		return
	}
	h.respondModel(w, r, lang, http.StatusOK)
}

func (h *LanguageHandler) respondModel(w http.ResponseWriter, r *http.Request, lang domain.Language, status int) {
	ctx := r.Context()
	availability := h.models.Availability(ctx, lang)
	lang.IsDownloaded = availability.IsDownloaded
	respondJSON(w, h.logger, status, modelResponse{Language: lang, ModelAvailability: availability}, middleware.GetRequestID(ctx))
}

func (h *LanguageHandler) lookup(w http.ResponseWriter, r *http.Request, requestID string) (domain.Language, bool) {
	lang, err := languages.Lookup(chi.URLParam(r, "code"))
	if err != nil {
		respondErr(w, h.logger, err, requestID)
		return domain.Language{}, false
	}
	return lang, true
}
