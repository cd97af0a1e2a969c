// Package bootstrap собирает компоненты сервиса из конфигурации.
// Его используют и HTTP сервер, и CLI, чтобы порядок сборки и остановки был одинаковым.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/cache"
	"github.com/arunesh/TalkLens-Vibe1/internal/config"
	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/languages"
	"github.com/arunesh/TalkLens-Vibe1/internal/models"
	"github.com/arunesh/TalkLens-Vibe1/internal/processor"
	"github.com/arunesh/TalkLens-Vibe1/internal/recognition"
	"github.com/arunesh/TalkLens-Vibe1/internal/recognition/tesseract"
	"github.com/arunesh/TalkLens-Vibe1/internal/repositories"
	"github.com/arunesh/TalkLens-Vibe1/internal/settings"
	"github.com/arunesh/TalkLens-Vibe1/internal/translation"
	"github.com/arunesh/TalkLens-Vibe1/internal/usecases"
)

var (
	// Хранилище может стартовать медленнее приложения, поэтому даем ему несколько попыток.
	ConnectRetries    = 5
	ConnectRetryDelay = 2 * time.Second
)

const (
	checkTimeout  = 5 * time.Second
	ensureTimeout = 10 * time.Second
	flushTimeout  = 5 * time.Second
)

// Backend is a store the service connects to at startup
type Backend interface {
	domain.HealthChecker
	Close() error
}

// Components holds everything a running service needs
type Components struct {
	Documents   domain.DocumentStore
	Settings    *settings.Service
	Tracker     *models.Tracker
	Cache       *cache.SnapshotCache
	Processor   *processor.OrderedProcessor
	Usecase     *usecases.DocumentUsecase
	Translation domain.TranslationBackend

	// Backends are the connected stores by name, for health checks
	Backends map[string]Backend

	logger *zap.Logger
}

// Options tweaks Build for callers that do not need every piece
type Options struct {
	// SkipCleanupWorker leaves the cache cleanup worker stopped (short lived CLI runs)
	SkipCleanupWorker bool
}

// Build connects the stores and wires the pipeline. On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Components, error) {
	c := &Components{
		Backends: make(map[string]Backend),
		logger:   logger,
	}

	if err := c.build(ctx, cfg, opts); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) build(ctx context.Context, cfg *config.Config, opts Options) error {
	// 1. Хранилища: документы, настройки, записи о моделях.
	settingsStore, records, err := c.initializeStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}

	// 2. Перевод и учет скачанных моделей.
	c.Translation = translation.NewStubBackend(cfg.Translation.Preinstalled...)
	c.Tracker = models.NewTracker(c.Translation, records, c.logger)
	if _, err := c.Tracker.Sync(ctx); err != nil {
		c.logger.Warn("не удалось сверить записи о моделях", zap.Error(err))
	}

	fallback, err := languages.Lookup(cfg.Translation.FallbackLanguage)
	if err != nil {
		return fmt.Errorf("translation.fallback_language: %w", err)
	}
	translator := translation.NewStage(c.Translation, c.Tracker, c.logger,
		translation.WithFallbackLanguage(fallback),
	)

	// 3. Распознавание текста.
	ocr, err := newRecognitionBackend(cfg.OCR)
	if err != nil {
		return err
	}

	// 4. Конвейер и процессор для фоновой обработки документов.
	pipeline := processor.NewPipeline(
		recognition.NewStage(ocr, c.logger),
		translator,
		c.logger,
		processor.WithTimeout(cfg.Pipeline.Timeout),
		processor.WithRecognitionWorkers(cfg.Pipeline.RecognitionWorkers),
	)
	c.Processor = processor.NewDocumentProcessor(pipeline,
		cfg.Concurrency.ProcessorWorkers,
		cfg.Concurrency.QueueSize,
		c.logger,
	)
	c.Processor.Start()

	// 5. Кэш снимков. Шардированный для скорости.
	c.Cache = cache.NewSnapshotCache(cfg.Cache.Shards, cfg.Cache.TTL,
		cache.WithCleanupInterval(cfg.Cache.CleanupInterval),
	)
	if !opts.SkipCleanupWorker {
		c.Cache.StartCleanupWorker()
	}

	// 6. Настройки пользователя.
	c.Settings, err = settings.NewService(ctx, settingsStore, c.logger)
	if err != nil {
		return fmt.Errorf("ошибка загрузки настроек: %w", err)
	}

	// 7. Бизнес-логика связывает хранилище, кэш и процессор воедино.
	c.Usecase = usecases.NewDocumentUsecase(
		c.Documents,
		c.Cache,
		c.Processor,
		c.Settings,
		c.logger,
		cfg.Concurrency.MaxConcurrentOps,
		usecases.WithQueueSize(cfg.Concurrency.QueueSize),
	)
	return nil
}

// initializeStores opens the document store chosen by storage.driver. Settings and
// model records go to Redis when it is enabled, otherwise to the document store
// (Reindexer keeps only documents, so it gets a SQLite side file for them).
func (c *Components) initializeStores(ctx context.Context, cfg *config.Config) (domain.SettingsStore, domain.ModelRecordStore, error) {
	var (
		settingsStore domain.SettingsStore
		records       domain.ModelRecordStore
	)

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		repo := repositories.NewMemoryRepository()
		c.Documents, settingsStore, records = repo, repo, repo

	case config.DriverSQLite:
		repo, err := connect(ctx, c, "sqlite", func() (*repositories.SQLiteRepository, error) {
			return repositories.NewSQLiteRepository(cfg.Storage.SQLitePath, c.logger)
		})
		if err != nil {
			return nil, nil, err
		}
		c.Documents, settingsStore, records = repo, repo, repo

	case config.DriverReindexer:
		repo, err := connect(ctx, c, "reindexer", func() (*repositories.ReindexerRepository, error) {
			return repositories.NewReindexerRepository(cfg.Reindexer.DSN, cfg.Reindexer.MaxConnections, c.logger)
		})
		if err != nil {
			return nil, nil, err
		}
		c.Documents = repo

		if !cfg.Redis.Enabled {
			side, err := connect(ctx, c, "sqlite", func() (*repositories.SQLiteRepository, error) {
				return repositories.NewSQLiteRepository(cfg.Storage.SQLitePath, c.logger)
			})
			if err != nil {
				return nil, nil, err
			}
			settingsStore, records = side, side
		}

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Redis.Enabled {
		redisRepo, err := connect(ctx, c, "redis", func() (*repositories.RedisRepository, error) {
			return repositories.NewRedisRepository(repositories.RedisConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				PoolSize: cfg.Redis.PoolSize,
				Prefix:   cfg.Redis.Prefix,
			}, c.logger)
		})
		if err != nil {
			return nil, nil, err
		}
		settingsStore, records = redisRepo, redisRepo
	}

	return settingsStore, records, nil
}

// connect открывает хранилище с повторными попытками.
// Перед тем как вернуть его, проверяет связь и наличие коллекций (таблиц).
func connect[T Backend](ctx context.Context, c *Components, name string, open func() (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 0; attempt < ConnectRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("повторная попытка подключения",
				zap.String("backend", name),
				zap.Int("попытка", attempt+1),
				zap.Duration("пауза", ConnectRetryDelay),
			)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(ConnectRetryDelay):
			}
		}

		backend, err := open()
		if err != nil {
			lastErr = err
			c.logger.Warn("не удалось открыть хранилище",
				zap.String("backend", name),
				zap.Int("попытка", attempt+1),
				zap.Error(err),
			)
			continue
		}

		// Есть ли живой коннект?
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err = backend.CheckConnection(checkCtx)
		cancel()
		if err != nil {
			backend.Close()
			lastErr = err
			c.logger.Warn("нет связи с хранилищем",
				zap.String("backend", name),
				zap.Int("попытка", attempt+1),
				zap.Error(err),
			)
			continue
		}

		// На месте ли коллекции? Если их нет, они будут созданы.
		ensureCtx, cancel := context.WithTimeout(ctx, ensureTimeout)
		err = backend.EnsureCollections(ensureCtx)
		cancel()
		if err != nil {
			backend.Close()
			lastErr = err
			c.logger.Warn("проблема с коллекциями",
				zap.String("backend", name),
				zap.Int("попытка", attempt+1),
				zap.Error(err),
			)
			continue
		}

		c.Backends[name] = backend
		c.logger.Info("хранилище подключено",
			zap.String("backend", name),
			zap.Int("попыток_затрачено", attempt+1),
		)
		return backend, nil
	}

	return zero, fmt.Errorf("не удалось подключиться к %s после %d попыток: %w", name, ConnectRetries, lastErr)
}

func newRecognitionBackend(cfg config.OCRConfig) (domain.RecognitionBackend, error) {
	switch cfg.Engine {
	case config.EngineStub:
		return recognition.NewStubBackend(), nil
	case config.EngineTesseract:
		return tesseract.NewBackend(
			tesseract.WithDefaultLanguages(cfg.Languages...),
			tesseract.WithTessdataPrefix(cfg.TessdataPrefix),
			tesseract.WithMaxInstances(cfg.MaxInstances),
		), nil
	}
	return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
}

// Close останавливает компоненты в обратном порядке: сначала бизнес-логика,
// потом процессор, кэш, и в самом конце хранилища.
func (c *Components) Close() error {
	var errs []error

	if c.Usecase != nil {
		c.Usecase.Shutdown()
	}
	if c.Processor != nil {
		c.Processor.Stop()
	}
	if c.Cache != nil {
		c.Cache.StopCleanupWorker()
	}

	// Настройки, которые не удалось записать раньше, пробуем записать еще раз.
	if c.Settings != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := c.Settings.Flush(ctx); err != nil {
			c.logger.Error("не удалось сохранить настройки", zap.Error(err))
			errs = append(errs, err)
		}
		cancel()
	}

	for name, backend := range c.Backends {
		if err := backend.Close(); err != nil {
			c.logger.Error("ошибка при закрытии хранилища",
				zap.String("backend", name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	c.Backends = map[string]Backend{}

	return errors.Join(errs...)
}
