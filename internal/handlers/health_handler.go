package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

const healthCheckTimeout = 5 * time.Second

// ConnectionChecker is a backend the health endpoint can probe
type ConnectionChecker interface {
	CheckConnection(ctx context.Context) error
}

// HealthHandler отвечает на проверки "ты жив?".
// Проверяет не только "я запустился", но и "могу ли я говорить с хранилищами".
type HealthHandler struct {
	checkers map[string]ConnectionChecker
	logger   *zap.Logger
	now      func() time.Time
}

// NewHealthHandler creates a health handler over the named backends
func NewHealthHandler(checkers map[string]ConnectionChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checkers: checkers, logger: logger, now: time.Now}
}

// Check probes every backend. The result maps backend names to "connected" or the error text.
func (h *HealthHandler) Check(ctx context.Context) (map[string]string, bool) {
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	result := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checkers[name].CheckConnection(ctx); err != nil {
			healthy = false
			result[name] = err.Error()
			continue
		}
		result[name] = "connected"
	}
	return result, healthy
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	// Быстрый таймаут для health check'а
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	backends, healthy := h.Check(ctx)
	body := map[string]any{
		"status":    "ok",
		"timestamp": h.now().Unix(),
		"backends":  backends,
	}

	status := http.StatusOK
	if !healthy {
		// Если хранилище недоступно, сервис нездоров (503)
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		h.logger.Warn("health check failed", zap.Any("backends", backends))
	}
	respondJSON(w, h.logger, status, body, "")
}
