// Package settings owns the user preferences shared by every request.
package settings

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/languages"
)

// Service keeps the current settings in memory and writes changes through to the store.
// A failed write leaves the service dirty until the next successful Update or Flush.
type Service struct {
	store  domain.SettingsStore
	logger *zap.Logger

	mu      sync.RWMutex
	current domain.AppSettings
	dirty   bool
}

// NewService loads the stored settings, falling back to the defaults
func NewService(ctx context.Context, store domain.SettingsStore, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	stored, ok, err := store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	current := domain.DefaultSettings()
	if ok {
		normalized, err := normalize(stored)
		if err != nil {
			logger.Warn("stored settings are invalid, using defaults", zap.Error(err))
		} else {
			current = normalized
		}
	}

	logger.Info("settings loaded",
		zap.Bool("stored", ok),
		zap.String("source", current.SourceLanguage.Code),
		zap.String("target", current.TargetLanguage.Code),
	)

	return &Service{store: store, logger: logger, current: current}, nil
}

// Get returns the current settings
func (s *Service) Get(ctx context.Context) domain.AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates and replaces the settings
func (s *Service) Update(ctx context.Context, settings domain.AppSettings) (domain.AppSettings, error) {
	normalized, err := normalize(settings)
	if err != nil {
		return s.Get(ctx), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = normalized
	return normalized, s.persistLocked(ctx)
}

// SetLanguagePair changes only the source and target languages
func (s *Service) SetLanguagePair(ctx context.Context, sourceCode, targetCode string) (domain.AppSettings, error) {
	next := s.Get(ctx)
	next.SourceLanguage = domain.Language{Code: sourceCode}
	next.TargetLanguage = domain.Language{Code: targetCode}
	return s.Update(ctx, next)
}

// SwapLanguages exchanges source and target. Nothing happens while the source is auto-detect.
func (s *Service) SwapLanguages(ctx context.Context) (domain.AppSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.SourceLanguage.IsAuto() {
		return s.current, nil
	}

	s.current.SourceLanguage, s.current.TargetLanguage = s.current.TargetLanguage, s.current.SourceLanguage
	return s.current, s.persistLocked(ctx)
}

// Flush writes pending changes to the store
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persistLocked(ctx)
}

func (s *Service) persistLocked(ctx context.Context) error {
	if err := s.store.SaveSettings(ctx, s.current); err != nil {
		s.dirty = true
		s.logger.Error("failed to persist settings", zap.Error(err))
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	s.dirty = false
	return nil
}

// normalize resolves both languages against the catalog and validates the rest
func normalize(settings domain.AppSettings) (domain.AppSettings, error) {
	source, err := languages.Lookup(settings.SourceLanguage.Code)
	if err != nil {
		return settings, err
	}
	target, err := languages.Lookup(settings.TargetLanguage.Code)
	if err != nil {
		return settings, err
	}
	if target.IsAuto() {
		return settings, &domain.UnsupportedLanguageError{Code: target.Code}
	}

	if settings.ImageQuality == "" {
		settings.ImageQuality = domain.ImageQualityHigh
	}
	if err := settings.ImageQuality.Validate(); err != nil {
		return settings, err
	}

	settings.SourceLanguage = source
	settings.TargetLanguage = target
	settings.AutoDetectLanguage = source.IsAuto()
	return settings, nil
}
