// Package models tracks which translation models are available locally and
// drives their downloads.
package models

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/languages"
)

// Tracker is the single owner of per-language download state shared by
// concurrent pipeline runs.
type Tracker struct {
	backend domain.TranslationBackend
	records domain.ModelRecordStore
	logger  *zap.Logger

	flights   singleflight.Group
	flightMu  sync.Mutex
	flightCtx map[string]*flightContext
	flightSeq uint64

	mu         sync.RWMutex
	progress   map[string]float64
	listeners  map[string]map[uint64]domain.ProgressFunc
	listenerID uint64
}

// NewTracker creates a tracker over the backend and the durable record store
func NewTracker(backend domain.TranslationBackend, records domain.ModelRecordStore, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		backend:   backend,
		records:   records,
		logger:    logger,
		progress:  make(map[string]float64),
		listeners: make(map[string]map[uint64]domain.ProgressFunc),
		flightCtx: make(map[string]*flightContext),
	}
}

// flightContext outlives any single waiter of a shared download and is
// cancelled only when the last waiter has left. Each one runs under its own
// singleflight key, so a late caller never joins a flight that is being torn down.
type flightContext struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (t *Tracker) joinFlight(ctx context.Context, code string) *flightContext {
	t.flightMu.Lock()
	defer t.flightMu.Unlock()

	fc, ok := t.flightCtx[code]
	if !ok {
		t.flightSeq++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fc = &flightContext{
			key:    fmt.Sprintf("%s#%d", code, t.flightSeq),
			ctx:    fctx,
			cancel: cancel,
		}
		t.flightCtx[code] = fc
	}
	fc.waiters++
	return fc
}

func (t *Tracker) leaveFlight(code string, fc *flightContext) {
	t.flightMu.Lock()
	defer t.flightMu.Unlock()

	fc.waiters--
	if fc.waiters == 0 {
		fc.cancel()
		delete(t.flightCtx, code)
	}
}

// IsDownloaded reports whether the model for lang is available locally.
// A durable record short-circuits the backend check.
func (t *Tracker) IsDownloaded(ctx context.Context, lang domain.Language) bool {
	if lang.IsAuto() {
		return true
	}

	recorded, err := t.records.IsRecorded(ctx, lang.Code)
	if err != nil {
		t.logger.Warn("model record lookup failed, asking backend",
			zap.String("language", lang.Code),
			zap.Error(err),
		)
	}
	if recorded {
		return true
	}

	downloaded, err := t.backend.IsModelDownloaded(ctx, lang.Code)
	if err != nil {
		t.logger.Warn("backend model check failed",
			zap.String("language", lang.Code),
			zap.Error(err),
		)
		return false
	}
	if downloaded {
		if err := t.records.Record(ctx, lang.Code); err != nil {
			t.logger.Warn("failed to record downloaded model",
				zap.String("language", lang.Code),
				zap.Error(err),
			)
		}
	}
	return downloaded
}

// DownloadProgress returns the last known progress of an in-flight download, or 0
func (t *Tracker) DownloadProgress(lang domain.Language) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return clamp(t.progress[lang.Code])
}

// Availability combines the downloaded flag with in-flight progress
func (t *Tracker) Availability(ctx context.Context, lang domain.Language) domain.ModelAvailability {
	if t.IsDownloaded(ctx, lang) {
		return domain.ModelAvailability{IsDownloaded: true, DownloadProgress: 1}
	}
	return domain.ModelAvailability{DownloadProgress: t.DownloadProgress(lang)}
}

// Download fetches the model for lang. It returns immediately when the model is
// already available; concurrent calls for the same language share one backend download.
func (t *Tracker) Download(ctx context.Context, lang domain.Language) error {
	return t.DownloadWithProgress(ctx, lang, nil)
}

// DownloadWithProgress is Download with a progress callback for this caller
func (t *Tracker) DownloadWithProgress(ctx context.Context, lang domain.Language, onProgress domain.ProgressFunc) error {
	if t.IsDownloaded(ctx, lang) {
		if onProgress != nil {
			onProgress(1)
		}
		return nil
	}

	if onProgress != nil {
		id := t.addListener(lang.Code, onProgress)
		defer t.removeListener(lang.Code, id)
	}

	// the shared download runs on the flight context; this caller only stops waiting on its own ctx
	fc := t.joinFlight(ctx, lang.Code)
	defer t.leaveFlight(lang.Code, fc)

	ch := t.flights.DoChan(fc.key, func() (interface{}, error) {
		return nil, t.download(fc.ctx, lang)
	})

	select {
	case <-ctx.Done():
		return &domain.ModelDownloadError{Code: lang.Code, Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			t.logger.Debug("joined in-flight model download", zap.String("language", lang.Code))
		}
		return res.Err
	}
}

// download runs inside the single flight for lang.Code
func (t *Tracker) download(ctx context.Context, lang domain.Language) error {
	// a previous flight may have finished between the caller's check and this one
	if recorded, err := t.records.IsRecorded(ctx, lang.Code); err == nil && recorded {
		return nil
	}

	t.setProgress(lang.Code, 0)
	t.logger.Info("downloading translation model", zap.String("language", lang.Code))

	err := t.backend.DownloadModel(ctx, lang.Code, func(p float64) {
		t.setProgress(lang.Code, p)
	})
	if err != nil {
		t.clearProgress(lang.Code)
		t.logger.Error("model download failed",
			zap.String("language", lang.Code),
			zap.Error(err),
		)
		return &domain.ModelDownloadError{Code: lang.Code, Err: err}
	}

	if err := t.records.Record(ctx, lang.Code); err != nil {
		t.clearProgress(lang.Code)
		return &domain.ModelDownloadError{Code: lang.Code, Err: domain.NewStorageError("record model", err)}
	}

	t.setProgress(lang.Code, 1)
	t.clearProgress(lang.Code)
	t.logger.Info("translation model downloaded", zap.String("language", lang.Code))
	return nil
}

// Delete frees the model for lang. Deleting a model that is not downloaded is a no-op.
func (t *Tracker) Delete(ctx context.Context, lang domain.Language) error {
	if lang.IsAuto() || !t.IsDownloaded(ctx, lang) {
		return nil
	}

	if err := t.backend.DeleteModel(ctx, lang.Code); err != nil {
		return fmt.Errorf("delete model %s: %w", lang.Code, err)
	}
	if err := t.records.Remove(ctx, lang.Code); err != nil {
		return domain.NewStorageError("remove model record", err)
	}
	t.clearProgress(lang.Code)

	t.logger.Info("translation model deleted", zap.String("language", lang.Code))
	return nil
}

// Languages returns the catalog with IsDownloaded filled in
func (t *Tracker) Languages(ctx context.Context) []domain.Language {
	list := languages.All()
	for i := range list {
		list[i].IsDownloaded = t.IsDownloaded(ctx, list[i])
	}
	return list
}

// Sync records every model the backend already holds. It is run once at startup.
func (t *Tracker) Sync(ctx context.Context) (int, error) {
	count := 0
	for _, lang := range languages.Translatable() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if t.IsDownloaded(ctx, lang) {
			count++
		}
	}
	t.logger.Info("model records synchronised", zap.Int("downloaded", count))
	return count, nil
}

func (t *Tracker) setProgress(code string, p float64) {
	p = clamp(p)

	t.mu.Lock()
	// progress only moves forward within one download
	if p < t.progress[code] {
		p = t.progress[code]
	}
	t.progress[code] = p
	listeners := make([]domain.ProgressFunc, 0, len(t.listeners[code]))
	for _, fn := range t.listeners[code] {
		listeners = append(listeners, fn)
	}
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
}

func (t *Tracker) clearProgress(code string) {
	t.mu.Lock()
	delete(t.progress, code)
	t.mu.Unlock()
}

func (t *Tracker) addListener(code string, fn domain.ProgressFunc) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.listenerID++
	if t.listeners[code] == nil {
		t.listeners[code] = make(map[uint64]domain.ProgressFunc)
	}
	t.listeners[code][t.listenerID] = fn
	return t.listenerID
}

func (t *Tracker) removeListener(code string, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.listeners[code], id)
	if len(t.listeners[code]) == 0 {
		delete(t.listeners, code)
	}
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

var _ domain.ModelTracker = (*Tracker)(nil)
