package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/bootstrap"
	"github.com/arunesh/TalkLens-Vibe1/internal/config"
	"github.com/arunesh/TalkLens-Vibe1/internal/handlers"
	"github.com/arunesh/TalkLens-Vibe1/pkg/logger"
)

const (
	// Как часто пишем в лог состояние хранилищ.
	healthLogInterval = 30 * time.Second
	healthLogTimeout  = 5 * time.Second
	idleTimeout       = 60 * time.Second
)

// App держит вместе все зависимости сервиса, чтобы их не приходилось передавать глобально.
type App struct {
	config     *config.Config
	logger     *zap.Logger
	components *bootstrap.Components
	health     *handlers.HealthHandler
	server     *http.Server

	// Защищает от случайного повторного вызова Initialize().
	initOnce sync.Once
	initErr  error

	// Context позволяет отменить все фоновые задачи разом при выключении.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
}

// NewApp создает "пустую" заготовку приложения.
// Основная настройка произойдет позже в методе Initialize().
func NewApp() *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize настраивает все компоненты. Если что-то сломалось, возвращаем ошибку.
func (a *App) Initialize() error {
	a.initOnce.Do(func() {
		a.initErr = a.doInitialize()
	})
	return a.initErr
}

// doInitialize: сначала базовые вещи (логгер, конфиг), потом хранилища, конвейер и API.
func (a *App) doInitialize() error {
	// 1. Временный логгер, чтобы видеть проблемы с конфигом.
	if err := logger.Init("info", true); err != nil {
		return fmt.Errorf("не удалось инициализировать логгер: %w", err)
	}
	a.logger = logger.Get()

	// 2. Переменные окружения из .env (если файла нет, не страшно).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("не удалось прочитать .env", zap.Error(err))
	}

	// 3. Загружаем настройки: файл, если он есть, плюс ENV.
	configPath := os.Getenv("APP_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	if err := config.Load(configPath); err != nil {
		a.logger.Warn("не удалось загрузить конфиг-файл, используем значения по умолчанию и ENV",
			zap.String("path", configPath),
			zap.Error(err),
		)
		if err := config.Load(""); err != nil {
			return fmt.Errorf("критическая ошибка конфигурации: %w", err)
		}
	}
	a.config = config.Get()

	// 4. Настоящий логгер с уровнем из конфига.
	if err := logger.Init(a.config.Logging.Level, a.config.Logging.Development); err != nil {
		return fmt.Errorf("не удалось инициализировать логгер: %w", err)
	}
	a.logger = logger.Get()
	a.logger.Info("конфигурация загружена",
		zap.String("addr", a.config.Server.Addr()),
		zap.String("storage", a.config.Storage.Driver),
		zap.String("ocr", a.config.OCR.Engine),
	)

	// 5. Хранилища, конвейер, кэш, настройки и бизнес-логика.
	components, err := bootstrap.Build(a.ctx, a.config, a.logger, bootstrap.Options{})
	if err != nil {
		return fmt.Errorf("ошибка сборки компонентов: %w", err)
	}
	a.components = components

	// 6. HTTP сервер.
	a.initializeServer()

	a.logger.Info("приложение готово к работе")
	return nil
}

// initializeServer настраивает HTTP-роутинг и middleware.
func (a *App) initializeServer() {
	checkers := make(map[string]handlers.ConnectionChecker, len(a.components.Backends))
	for name, backend := range a.components.Backends {
		checkers[name] = backend
	}
	a.health = handlers.NewHealthHandler(checkers, a.logger)

	router := handlers.NewRouter(handlers.Services{
		Documents: a.components.Usecase,
		Settings:  a.components.Settings,
		Models:    a.components.Tracker,
		Health:    a.health,
	}, handlers.RouterConfig{
		RequestTimeout: a.config.Server.RequestTimeout,
		MaxConcurrent:  a.config.Concurrency.HTTPMaxWorkers,
		RateLimit:      a.config.Concurrency.HTTPMaxWorkers,
		RateWindow:     time.Minute,
		MaxUploadBytes: a.config.Server.MaxUploadBytes,
	}, a.logger)

	a.server = &http.Server{
		Addr:         a.config.Server.Addr(),
		Handler:      router,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// StartBackgroundJobs запускает все фоновые процессы.
func (a *App) StartBackgroundJobs() {
	a.wg.Add(1)
	go a.periodicHealthCheck()
}

// periodicHealthCheck раз в 30 секунд пишет в лог состояние хранилищ.
// Полезно для отладки "плавающих" проблем с сетью.
func (a *App) periodicHealthCheck() {
	defer a.wg.Done()

	ticker := time.NewTicker(healthLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.logger.Info("фоновая проверка здоровья остановлена")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(a.ctx, healthLogTimeout)
			backends, healthy := a.health.Check(ctx)
			cancel()

			if !healthy {
				a.logger.Warn("фоновая проверка: проблема с хранилищем", zap.Any("backends", backends))
			} else {
				a.logger.Debug("фоновая проверка: полёт нормальный")
			}
		}
	}
}

// Start запускает сервер в отдельной горутине, чтобы main мог слушать сигналы ОС.
func (a *App) Start() error {
	if err := a.Initialize(); err != nil {
		return err
	}

	a.StartBackgroundJobs()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("запуск HTTP сервера", zap.String("адрес", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("сервер упал с ошибкой", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown аккуратно останавливает приложение: ждем завершения текущих запросов,
// потом останавливаем конвейер и закрываем хранилища.
func (a *App) Shutdown() error {
	var shutdownErr error

	a.shutdownOnce.Do(func() {
		timeout := a.config.Server.ShutdownTimeout
		a.logger.Info("начинаем остановку приложения...")

		// 1. Сигнал всем фоновым задачам остановиться
		a.cancel()

		// 2. Останавливаем прием новых HTTP запросов
		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			if err := a.server.Shutdown(ctx); err != nil {
				a.logger.Error("ошибка при остановке сервера", zap.Error(err))
				shutdownErr = err
			}
			cancel()
		}

		// 3. Бизнес-логика, процессор, кэш, настройки и хранилища
		if a.components != nil {
			if err := a.components.Close(); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}

		// 4. Ждем, пока все горутины действительно завершатся
		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			a.logger.Info("все фоновые процессы завершены")
		case <-time.After(timeout):
			a.logger.Warn("таймаут ожидания завершения процессов (принудительный выход)")
		}

		a.logger.Info("приложение остановлено")
		_ = logger.Sync()
	})

	return shutdownErr
}

func main() {
	app := NewApp()

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Фатальная ошибка запуска: %v\n", err)
		os.Exit(1)
	}

	// Ожидание сигналов завершения от ОС (Ctrl+C или docker stop)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := app.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка при остановке: %v\n", err)
		os.Exit(1)
	}
}
