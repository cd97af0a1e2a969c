package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/arunesh/TalkLens-Vibe1/internal/languages"
)

var (
	instance *Config
	mu       sync.RWMutex
)

// Storage drivers
const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverReindexer = "reindexer"
)

// OCR engines
const (
	EngineStub      = "stub"
	EngineTesseract = "tesseract"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Reindexer   ReindexerConfig   `mapstructure:"reindexer"`
	Redis       RedisConfig       `mapstructure:"redis"`
	OCR         OCRConfig         `mapstructure:"ocr"`
	Translation TranslationConfig `mapstructure:"translation"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// StorageConfig selects the document store
type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// ReindexerConfig contains Reindexer database configuration
type ReindexerConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// RedisConfig contains the optional shared settings/model record store
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Prefix   string `mapstructure:"prefix"`
}

// OCRConfig selects the recognition engine
type OCRConfig struct {
	Engine         string   `mapstructure:"engine"`
	Languages      []string `mapstructure:"languages"`
	TessdataPrefix string   `mapstructure:"tessdata_prefix"`
	MaxInstances   int      `mapstructure:"max_instances"`
}

// TranslationConfig contains translation stage settings
type TranslationConfig struct {
	FallbackLanguage string `mapstructure:"fallback_language"`
	// Preinstalled lists models the offline backend ships with
	Preinstalled []string `mapstructure:"preinstalled"`
}

// PipelineConfig contains document pipeline settings
type PipelineConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	RecognitionWorkers int           `mapstructure:"recognition_workers"`
}

// CacheConfig contains cache configuration
type CacheConfig struct {
	Shards          int           `mapstructure:"shards"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ConcurrencyConfig contains concurrency settings
type ConcurrencyConfig struct {
	HTTPMaxWorkers   int `mapstructure:"http_max_workers"`
	ProcessorWorkers int `mapstructure:"processor_workers"`
	QueueSize        int `mapstructure:"queue_size"`
	MaxConcurrentOps int `mapstructure:"max_concurrent_ops"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Get returns the loaded configuration, or the defaults when Load was never called
func Get() *Config {
	mu.RLock()
	cfg := instance
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}

	defaults, err := load(viper.New(), "")
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return defaults
}

// Load initializes and loads configuration from file and environment variables
func Load(configPath string) error {
	cfg, err := load(viper.New(), configPath)
	if err != nil {
		return err
	}

	mu.Lock()
	instance = cfg
	mu.Unlock()
	return nil
}

// Reload reloads the configuration (thread-safe)
func Reload(configPath string) error {
	return Load(configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// AutomaticEnv only sees keys viper already knows about
	bindEnvVars(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.request_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", 64<<20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	// Storage defaults
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.sqlite_path", "pagetrans.db")

	// Reindexer defaults
	// Используем cproto протокол (требует CGO) - RPC/TCP порт 6534
	v.SetDefault("reindexer.dsn", "cproto://localhost:6534/pagetrans")
	v.SetDefault("reindexer.max_connections", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.prefix", "pagetrans:")

	// OCR defaults
	v.SetDefault("ocr.engine", EngineStub)
	v.SetDefault("ocr.languages", []string{"eng"})
	v.SetDefault("ocr.tessdata_prefix", "")
	v.SetDefault("ocr.max_instances", 4)

	// Translation defaults
	v.SetDefault("translation.fallback_language", languages.English.Code)
	v.SetDefault("translation.preinstalled", []string{languages.English.Code})

	// Pipeline defaults
	v.SetDefault("pipeline.timeout", time.Minute)
	v.SetDefault("pipeline.recognition_workers", 1)

	// Cache defaults
	v.SetDefault("cache.shards", 16)
	v.SetDefault("cache.ttl", 15*time.Minute)
	v.SetDefault("cache.cleanup_interval", time.Minute)

	// Concurrency defaults
	v.SetDefault("concurrency.http_max_workers", 100)
	v.SetDefault("concurrency.processor_workers", 4)
	v.SetDefault("concurrency.queue_size", 100)
	v.SetDefault("concurrency.max_concurrent_ops", 10)
}

// bindEnvVars binds environment variables to viper keys
func bindEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		env := "APP_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, env)
	}
}

// validate performs validation on the configuration
func validate(cfg *Config) error {
	// Validate Server
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	// Validate Storage
	switch cfg.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if cfg.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case DriverReindexer:
		if cfg.Reindexer.DSN == "" {
			return fmt.Errorf("reindexer.dsn is required for the reindexer driver")
		}
		if cfg.Reindexer.MaxConnections < 1 {
			return fmt.Errorf("reindexer.max_connections must be at least 1")
		}
	default:
		return fmt.Errorf("storage.driver must be one of %s, %s, %s", DriverMemory, DriverSQLite, DriverReindexer)
	}

	// Validate Redis
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	// Validate OCR
	switch cfg.OCR.Engine {
	case EngineStub, EngineTesseract:
	default:
		return fmt.Errorf("ocr.engine must be %s or %s", EngineStub, EngineTesseract)
	}
	if cfg.OCR.MaxInstances < 1 {
		return fmt.Errorf("ocr.max_instances must be at least 1")
	}

	// Validate Translation
	fallback, err := languages.Lookup(cfg.Translation.FallbackLanguage)
	if err != nil {
		return fmt.Errorf("translation.fallback_language: %w", err)
	}
	if fallback.IsAuto() {
		return fmt.Errorf("translation.fallback_language cannot be auto")
	}
	for _, code := range cfg.Translation.Preinstalled {
		if !languages.IsSupported(code) {
			return fmt.Errorf("translation.preinstalled: unsupported language %q", code)
		}
	}

	// Validate Pipeline
	if cfg.Pipeline.Timeout < 0 {
		return fmt.Errorf("pipeline.timeout must be non-negative")
	}
	if cfg.Pipeline.RecognitionWorkers < 1 {
		return fmt.Errorf("pipeline.recognition_workers must be at least 1")
	}

	// Validate Cache
	if cfg.Cache.Shards < 1 {
		return fmt.Errorf("cache.shards must be at least 1")
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	// Validate Concurrency
	if cfg.Concurrency.HTTPMaxWorkers < 1 {
		return fmt.Errorf("concurrency.http_max_workers must be at least 1")
	}
	if cfg.Concurrency.ProcessorWorkers < 1 {
		return fmt.Errorf("concurrency.processor_workers must be at least 1")
	}
	if cfg.Concurrency.QueueSize < 1 {
		return fmt.Errorf("concurrency.queue_size must be at least 1")
	}
	if cfg.Concurrency.MaxConcurrentOps < 1 {
		return fmt.Errorf("concurrency.max_concurrent_ops must be at least 1")
	}

	return nil
}
