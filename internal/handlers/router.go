package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/middleware"
)

// RouterConfig holds the HTTP limits applied by the middleware chain
type RouterConfig struct {
	RequestTimeout time.Duration
	MaxConcurrent  int
	RateLimit      int
	RateWindow     time.Duration
	MaxUploadBytes int64
}

// Services groups what the routes are served from
type Services struct {
	Documents DocumentService
	Settings  SettingsService
	Models    ModelService
	Health    *HealthHandler
}

// NewRouter настраивает HTTP-роутинг и middleware.
func NewRouter(svc Services, cfg RouterConfig, logger *zap.Logger) http.Handler {
	docHandler := NewDocumentHandler(svc.Documents, svc.Settings, logger, cfg.MaxUploadBytes)
	settingsHandler := NewSettingsHandler(svc.Settings, logger)
	languageHandler := NewLanguageHandler(svc.Models, logger)

	window := cfg.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	// Ограничитель скорости, чтобы нас не завалили запросами.
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, window)

	r := chi.NewRouter()
	r.Use(middleware.RequestIDMiddleware)

	// /health без остальных middleware, чтобы отвечать быстро и надежно.
	if svc.Health != nil {
		r.Get("/health", svc.Health.Health)
	}

	// Цепочка middleware (выполняются по порядку для каждого запроса):
	// логирование, recovery, таймаут, лимит одновременных запросов, rate limit.
	r.Group(func(r chi.Router) {
		r.Use(middleware.LoggingMiddleware(logger))
		r.Use(middleware.RecoveryMiddleware(logger))
		r.Use(middleware.TimeoutMiddleware(cfg.RequestTimeout))
		r.Use(middleware.ConcurrencyLimitMiddleware(cfg.MaxConcurrent, logger))
		r.Use(middleware.RateLimitMiddleware(rateLimiter, logger))

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", docHandler.ListDocuments)
			r.Post("/", docHandler.CreateDocument)
			r.Delete("/", docHandler.ClearDocuments)
			r.Get("/{id}", docHandler.GetDocument)
			r.Delete("/{id}", docHandler.DeleteDocument)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", settingsHandler.GetSettings)
			r.Put("/", settingsHandler.UpdateSettings)
			r.Post("/swap", settingsHandler.SwapLanguages)
		})

		r.Route("/languages", func(r chi.Router) {
			r.Get("/", languageHandler.ListLanguages)
			r.Get("/{code}/model", languageHandler.GetModel)
			r.Post("/{code}/model", languageHandler.DownloadModel)
			r.Delete("/{code}/model", languageHandler.DeleteModel)
		})
	})

	return r
}
