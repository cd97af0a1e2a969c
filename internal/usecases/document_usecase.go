package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/imaging"
	"github.com/arunesh/TalkLens-Vibe1/internal/languages"
)

const (
	defaultQueueSize     = 100
	defaultBatchSize     = 10
	defaultFlushInterval = 5 * time.Second
	cacheOpTimeout       = 1 * time.Second
)

// ErrUsecaseStopped is returned by SubmitAsync after Shutdown
var ErrUsecaseStopped = errors.New("document usecase stopped")

// SettingsProvider returns the current user settings
type SettingsProvider interface {
	Get(ctx context.Context) domain.AppSettings
}

// ImageNormalizer prepares a captured page image for storage
type ImageNormalizer func(data []byte, quality domain.ImageQuality) ([]byte, error)

// DocumentUsecase отвечает за бизнес-логику работы с документами.
// Он связывает воедино хранилище, кэш снимков и конвейер распознавания/перевода.
// Главные задачи:
// 1. Кэширование снимков документов (Cache-Aside).
// 2. Контроль нагрузки (Rate Limiting).
// 3. Фоновая обработка документов пакетами.
type DocumentUsecase struct {
	store     domain.DocumentStore
	cache     domain.SnapshotCache
	processor domain.DocumentProcessor
	settings  SettingsProvider
	normalize ImageNormalizer
	logger    *zap.Logger

	// Управление конкурентностью
	wg              sync.WaitGroup
	queueMu         sync.RWMutex
	stopped         bool
	processingQueue chan domain.Document // Канал для фоновой обработки
	rateLimiter     *RateLimiter         // Семафор для ограничения одновременных операций

	batchSize     int
	flushInterval time.Duration
}

// Option configures the usecase
type Option func(*DocumentUsecase)

// WithImageNormalizer replaces the image normalizer
func WithImageNormalizer(fn ImageNormalizer) Option {
	return func(u *DocumentUsecase) {
		if fn != nil {
			u.normalize = fn
		}
	}
}

// WithBatching sets the background batch size and the flush interval
func WithBatching(size int, interval time.Duration) Option {
	return func(u *DocumentUsecase) {
		if size > 0 {
			u.batchSize = size
		}
		if interval > 0 {
			u.flushInterval = interval
		}
	}
}

// WithQueueSize sets the background queue capacity
func WithQueueSize(size int) Option {
	return func(u *DocumentUsecase) {
		if size > 0 {
			u.processingQueue = make(chan domain.Document, size)
		}
	}
}

// RateLimiter: простой ограничитель нагрузки на семафоре.
// Не дает запустить больше N операций одновременно, защищая ресурсы сервера.
type RateLimiter struct {
	semaphore     chan struct{}
	maxConcurrent int
}

// NewRateLimiter создает ограничитель с буфером на maxConcurrent запросов.
func NewRateLimiter(maxConcurrent int) *RateLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 10
	}
	return &RateLimiter{
		semaphore:     make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire ждет свободный слот или отмену контекста.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case rl.semaphore <- struct{}{}:
		return nil
	}
}

// Release освобождает слот.
func (rl *RateLimiter) Release() {
	select {
	case <-rl.semaphore:
	default:
	}
}

// InUse returns the number of held slots
func (rl *RateLimiter) InUse() int {
	return len(rl.semaphore)
}

// NewDocumentUsecase создает usecase и сразу стартует фоновый обработчик очереди.
func NewDocumentUsecase(
	store domain.DocumentStore,
	cache domain.SnapshotCache,
	processor domain.DocumentProcessor,
	settings SettingsProvider,
	logger *zap.Logger,
	maxConcurrentOps int,
	opts ...Option,
) *DocumentUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}

	u := &DocumentUsecase{
		store:           store,
		cache:           cache,
		processor:       processor,
		settings:        settings,
		normalize:       imaging.Normalize,
		logger:          logger,
		processingQueue: make(chan domain.Document, defaultQueueSize),
		rateLimiter:     NewRateLimiter(maxConcurrentOps),
		batchSize:       defaultBatchSize,
		flushInterval:   defaultFlushInterval,
	}
	for _, opt := range opts {
		opt(u)
	}

	u.startBackgroundProcessor()
	return u
}

// CreateDocument builds a pending document from page images.
// Images are normalized with the configured quality and numbered from 1.
func (u *DocumentUsecase) CreateDocument(ctx context.Context, images [][]byte, sourceCode, targetCode string) (domain.Document, error) {
	if len(images) == 0 {
		return domain.Document{}, domain.ErrEmptyDocument
	}

	source, err := languages.Lookup(sourceCode)
	if err != nil {
		return domain.Document{}, err
	}
	target, err := languages.Lookup(targetCode)
	if err != nil {
		return domain.Document{}, err
	}
	if target.IsAuto() {
		return domain.Document{}, &domain.UnsupportedLanguageError{Code: targetCode}
	}

	quality := u.settings.Get(ctx).ImageQuality
	batch := NewBatch()
	for i, image := range images {
		normalized, err := u.normalize(image, quality)
		if err != nil {
			return domain.Document{}, fmt.Errorf("page %d: %w", i+1, err)
		}
		batch.AddPage(normalized)
	}

	doc := domain.NewDocument(batch.Pages(), source, target)
	u.logger.Info("document created",
		zap.String("id", doc.ID.String()),
		zap.Int("pages", doc.PageCount()),
		zap.String("source", source.Code),
		zap.String("target", target.Code),
	)
	return doc, nil
}

// ProcessDocument runs the document through the pipeline and persists the
// terminal snapshot when history is kept. The returned error is the pipeline
// error; a storage error is returned only when the pipeline itself succeeded.
func (u *DocumentUsecase) ProcessDocument(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return doc, fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.rateLimiter.Release()

	results, err := u.processor.ProcessDocuments(ctx, []domain.Document{doc})
	if err != nil {
		return doc, err
	}
	if len(results) != 1 || results[0] == nil {
		return doc, fmt.Errorf("процессор вернул пустой результат")
	}

	result := results[0]
	if perr := u.persist(ctx, result.Document, result.Error); perr != nil && result.Error == nil {
		return result.Document, perr
	}
	return result.Document, result.Error
}

// TranslateImages creates a document with the language pair from the settings and processes it
func (u *DocumentUsecase) TranslateImages(ctx context.Context, images [][]byte) (domain.Document, error) {
	settings := u.settings.Get(ctx)
	doc, err := u.CreateDocument(ctx, images, settings.SourceLanguage.Code, settings.TargetLanguage.Code)
	if err != nil {
		return domain.Document{}, err
	}
	return u.ProcessDocument(ctx, doc)
}

// SubmitAsync ставит документ в очередь фоновой обработки.
// Если очередь полна, возвращает false, не блокируя вызывающего.
func (u *DocumentUsecase) SubmitAsync(doc domain.Document) (bool, error) {
	u.queueMu.RLock()
	defer u.queueMu.RUnlock()

	if u.stopped {
		return false, ErrUsecaseStopped
	}

	select {
	case u.processingQueue <- doc.Clone():
		return true, nil
	default:
		u.logger.Warn("очередь обработки полна, пропускаем",
			zap.String("doc_id", doc.ID.String()),
		)
		return false, nil
	}
}

// startBackgroundProcessor разгребает processingQueue пакетами до batchSize документов.
func (u *DocumentUsecase) startBackgroundProcessor() {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()

		batch := make([]domain.Document, 0, u.batchSize)

		// Тикер, чтобы не ждать вечно, если пакет не набирается полностью
		ticker := time.NewTicker(u.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case doc, ok := <-u.processingQueue:
				if !ok {
					// Канал закрыт (Shutdown), дорабатываем остатки и выходим
					if len(batch) > 0 {
						u.processBatch(context.Background(), batch)
					}
					return
				}

				batch = append(batch, doc)
				if len(batch) >= u.batchSize {
					u.processBatch(context.Background(), batch)
					batch = make([]domain.Document, 0, u.batchSize)
				}

			case <-ticker.C:
				if len(batch) > 0 {
					u.processBatch(context.Background(), batch)
					batch = make([]domain.Document, 0, u.batchSize)
				}
			}
		}
	}()
}

// processBatch обрабатывает пачку документов в отдельной горутине.
func (u *DocumentUsecase) processBatch(ctx context.Context, documents []domain.Document) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()

		// Соблюдаем лимиты даже в фоновой работе
		if err := u.rateLimiter.Acquire(ctx); err != nil {
			u.logger.Error("не удалось получить слот rate limiter", zap.Error(err))
			return
		}
		defer u.rateLimiter.Release()

		results, err := u.processor.ProcessDocuments(ctx, documents)
		if err != nil {
			u.logger.Error("ошибка пакетной обработки",
				zap.Int("количество", len(documents)),
				zap.Error(err),
			)
			return
		}

		successCount := 0
		for _, result := range results {
			if result.Error == nil && result.Document.IsComplete() {
				successCount++
			}
			if err := u.persist(ctx, result.Document, result.Error); err != nil {
				u.logger.Error("не удалось сохранить результат",
					zap.String("doc_id", result.Document.ID.String()),
					zap.Error(err),
				)
			}
		}

		u.logger.Info("пакет обработан",
			zap.Int("всего", len(documents)),
			zap.Int("успешно", successCount),
		)
	}()
}

// persist saves a terminal snapshot when translation history is kept.
// Rejected inputs (terminal or empty) and interrupted runs are not saved.
func (u *DocumentUsecase) persist(ctx context.Context, doc domain.Document, runErr error) error {
	if errors.Is(runErr, domain.ErrTerminalStatus) || errors.Is(runErr, domain.ErrEmptyDocument) {
		return nil
	}
	if !doc.Status.IsTerminal() {
		return nil
	}

	settings := u.settings.Get(ctx)
	if !settings.KeepTranslationHistory {
		return nil
	}
	if !settings.KeepOriginalImages {
		doc = doc.WithoutImages()
	}

	// the run context may already be done after a timeout
	saveCtx := context.WithoutCancel(ctx)
	if err := u.store.Save(saveCtx, doc); err != nil {
		u.logger.Error("ошибка сохранения документа",
			zap.String("id", doc.ID.String()),
			zap.Error(err),
		)
		return err
	}
	u.setCache(saveCtx, doc)
	return nil
}

// GetDocument получает документ по ID по схеме Cache-Aside:
// кэш -> хранилище -> запись в кэш.
func (u *DocumentUsecase) GetDocument(ctx context.Context, id uuid.UUID) (domain.Document, error) {
	if doc, ok := u.cache.Get(ctx, id); ok {
		u.logger.Debug("попадание в кэш", zap.String("id", id.String()))
		return doc, nil
	}

	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return domain.Document{}, fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.rateLimiter.Release()

	doc, err := u.store.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.logger.Error("не удалось получить документ из хранилища",
				zap.String("id", id.String()),
				zap.Error(err),
			)
		}
		return domain.Document{}, err
	}

	u.setCache(ctx, doc)
	return doc, nil
}

// ListDocuments returns stored documents, newest first
func (u *DocumentUsecase) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.rateLimiter.Release()

	docs, err := u.store.FetchAll(ctx)
	if err != nil {
		u.logger.Error("ошибка получения списка", zap.Error(err))
		return nil, err
	}
	return docs, nil
}

// DeleteDocument удаляет документ и чистит кэш.
func (u *DocumentUsecase) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.rateLimiter.Release()

	if err := u.store.Delete(ctx, id); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.logger.Error("ошибка удаления из хранилища",
				zap.String("id", id.String()),
				zap.Error(err),
			)
		}
		return err
	}

	u.invalidateCache(ctx, id)
	u.logger.Info("документ удален", zap.String("id", id.String()))
	return nil
}

// ClearAll removes every stored document and empties the cache
func (u *DocumentUsecase) ClearAll(ctx context.Context) error {
	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.rateLimiter.Release()

	if err := u.store.ClearAll(ctx); err != nil {
		u.logger.Error("ошибка очистки хранилища", zap.Error(err))
		return err
	}

	u.cache.Clear()
	u.logger.Info("история документов очищена")
	return nil
}

// setCache кладет снимок в кэш. Ошибка кэша не критична и только логируется.
func (u *DocumentUsecase) setCache(ctx context.Context, doc domain.Document) {
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()

	if err := u.cache.Set(cacheCtx, doc); err != nil {
		u.logger.Warn("не удалось закэшировать документ",
			zap.String("id", doc.ID.String()),
			zap.Error(err),
		)
	}
}

// invalidateCache удаляет запись из кэша. Синхронно, чтобы следующий Get не увидел удаленный документ.
func (u *DocumentUsecase) invalidateCache(ctx context.Context, id uuid.UUID) {
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()

	if err := u.cache.Delete(cacheCtx, id); err != nil {
		u.logger.Warn("не удалось очистить кэш",
			zap.String("id", id.String()),
			zap.Error(err),
		)
	}
}

// Shutdown корректно останавливает работу usecase'а: дорабатывает очередь и ждет фоновые задачи.
func (u *DocumentUsecase) Shutdown() {
	u.queueMu.Lock()
	if u.stopped {
		u.queueMu.Unlock()
		return
	}
	u.stopped = true
	close(u.processingQueue)
	u.queueMu.Unlock()

	u.wg.Wait()
	u.logger.Info("бизнес-логика остановлена")
}
