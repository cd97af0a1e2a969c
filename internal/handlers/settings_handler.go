package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/middleware"
	"github.com/arunesh/TalkLens-Vibe1/internal/settings"
)

// SettingsService reads and changes user settings
type SettingsService interface {
	Get(ctx context.Context) domain.AppSettings
	Update(ctx context.Context, settings domain.AppSettings) (domain.AppSettings, error)
	SwapLanguages(ctx context.Context) (domain.AppSettings, error)
}

var _ SettingsService = (*settings.Service)(nil)

// SettingsHandler serves /settings
type SettingsHandler struct {
	settings SettingsService
	logger   *zap.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

// GetSettings handles GET /settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondJSON(w, h.logger, http.StatusOK, h.settings.Get(ctx), middleware.GetRequestID(ctx))
}

// UpdateSettings handles PUT /settings. Fields missing from the body keep their current value.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	next := h.settings.Get(ctx)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&next); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "invalid request body", requestID)
		return
	}

	updated, err := h.settings.Update(ctx, next)
	if err != nil {
		var storageErr *domain.StorageError
		if errors.As(err, &storageErr) {
			respondErr(w, h.logger, err, requestID)
			return
		}
		respondError(w, h.logger, http.StatusBadRequest, err.Error(), requestID)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, updated, requestID)
}

// SwapLanguages handles POST /settings/swap
func (h *SettingsHandler) SwapLanguages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	updated, err := h.settings.SwapLanguages(ctx)
	if err != nil {
		respondErr(w, h.logger, err, requestID)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, updated, requestID)
}
