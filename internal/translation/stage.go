// Package translation translates recognized page text between catalog languages.
package translation

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/languages"
)

// Stage translates text through a backend, making sure the required models are
// available first.
type Stage struct {
	backend    domain.TranslationBackend
	tracker    domain.ModelTracker
	identifier domain.LanguageIdentifier
	fallback   domain.Language
	logger     *zap.Logger
}

// Option configures the stage
type Option func(*Stage)

// WithIdentifier sets the identifier used to resolve an auto-detect source
func WithIdentifier(identifier domain.LanguageIdentifier) Option {
	return func(s *Stage) {
		s.identifier = identifier
	}
}

// WithFallbackLanguage sets the source used when auto-detection is unavailable or fails
func WithFallbackLanguage(lang domain.Language) Option {
	return func(s *Stage) {
		if !lang.IsAuto() && lang.Code != "" {
			s.fallback = lang
		}
	}
}

// NewStage creates a translation stage. Without an identifier an auto-detect
// source resolves to the fallback language, English unless configured.
func NewStage(backend domain.TranslationBackend, tracker domain.ModelTracker, logger *zap.Logger, opts ...Option) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stage{
		backend:  backend,
		tracker:  tracker,
		fallback: languages.English,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveSource returns the concrete source language for text
func (s *Stage) ResolveSource(ctx context.Context, text string, from domain.Language) domain.Language {
	if !from.IsAuto() {
		return from
	}
	if s.identifier == nil {
		s.logger.Debug("no language identifier configured, using fallback source",
			zap.String("fallback", s.fallback.Code),
		)
		return s.fallback
	}

	code, err := s.identifier.Identify(ctx, text)
	if err != nil {
		s.logger.Warn("language identification failed, using fallback source",
			zap.String("fallback", s.fallback.Code),
			zap.Error(err),
		)
		return s.fallback
	}
	lang, err := languages.Lookup(code)
	if err != nil || lang.IsAuto() {
		s.logger.Warn("identified language is not supported, using fallback source",
			zap.String("identified", code),
			zap.String("fallback", s.fallback.Code),
		)
		return s.fallback
	}
	return lang
}

// Translate translates text from one language to another. An auto-detect
// source is resolved first. The source model is not fetched separately when it
// equals the target; blank text is returned unchanged.
func (s *Stage) Translate(ctx context.Context, text string, from, to domain.Language) (string, error) {
	if to.IsAuto() {
		return "", &domain.UnsupportedLanguageError{Code: to.Code}
	}
	target, err := languages.Lookup(to.Code)
	if err != nil {
		return "", err
	}

	source := s.ResolveSource(ctx, text, from)
	source, err = languages.Lookup(source.Code)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	if err := s.ensureModel(ctx, target); err != nil {
		return "", err
	}
	if source.Code != target.Code {
		if err := s.ensureModel(ctx, source); err != nil {
			return "", err
		}
	}

	translated, err := s.backend.Translate(ctx, text, source.Code, target.Code)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &domain.TranslationError{Source: source.Code, Target: target.Code, Err: err}
	}
	return translated, nil
}

func (s *Stage) ensureModel(ctx context.Context, lang domain.Language) error {
	if s.tracker.IsDownloaded(ctx, lang) {
		return nil
	}
	s.logger.Info("translation model missing, downloading", zap.String("language", lang.Code))
	return s.tracker.Download(ctx, lang)
}
