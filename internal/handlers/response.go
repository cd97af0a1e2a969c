package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/imaging"
	"github.com/arunesh/TalkLens-Vibe1/internal/processor"
	"github.com/arunesh/TalkLens-Vibe1/internal/usecases"
)

// errorResponse is the body of every non-2xx answer
type errorResponse struct {
	Error     string           `json:"error"`
	RequestID string           `json:"request_id"`
	Document  *domain.Document `json:"document,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	var (
		timeoutErr     *domain.TimeoutError
		downloadErr    *domain.ModelDownloadError
		unsupportedErr *domain.UnsupportedLanguageError
		storageErr     *domain.StorageError
		recognitionErr *domain.RecognitionError
		translationErr *domain.TranslationError
		integrityErr   *domain.DataIntegrityError
	)

	switch {
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.As(err, &downloadErr):
		return http.StatusBadGateway
	case errors.As(err, &unsupportedErr),
		errors.Is(err, imaging.ErrUnsupportedImage),
		errors.Is(err, domain.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTerminalStatus):
		return http.StatusConflict
	case errors.As(err, &recognitionErr), errors.As(err, &translationErr), errors.As(err, &integrityErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, usecases.ErrUsecaseStopped), errors.Is(err, processor.ErrProcessorStopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// messageFor hides internal details of 5xx errors
func messageFor(status int, err error) string {
	switch status {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusServiceUnavailable:
		return "service is shutting down"
	}
	return err.Error()
}

func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

func respondError(w http.ResponseWriter, logger *zap.Logger, status int, message, requestID string) {
	respondJSON(w, logger, status, errorResponse{Error: message, RequestID: requestID}, requestID)
}

// respondErr answers with the status derived from err
func respondErr(w http.ResponseWriter, logger *zap.Logger, err error, requestID string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", requestID),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	respondError(w, logger, status, messageFor(status, err), requestID)
}
