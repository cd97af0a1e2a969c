package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	require.NoError(t, Load(""))
	cfg := Get()

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, EngineStub, cfg.OCR.Engine)
	assert.Equal(t, []string{"eng"}, cfg.OCR.Languages)
	assert.Equal(t, "en", cfg.Translation.FallbackLanguage)
	assert.Equal(t, time.Minute, cfg.Pipeline.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, int64(64<<20), cfg.Server.MaxUploadBytes)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  request_timeout: 45s
storage:
  driver: memory
ocr:
  engine: tesseract
  languages: [eng, spa]
translation:
  fallback_language: es
pipeline:
  timeout: 2m
  recognition_workers: 3
cache:
  ttl: 30s
`)

	require.NoError(t, Load(path))
	cfg := Get()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, EngineTesseract, cfg.OCR.Engine)
	assert.Equal(t, []string{"eng", "spa"}, cfg.OCR.Languages)
	assert.Equal(t, "es", cfg.Translation.FallbackLanguage)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.Timeout)
	assert.Equal(t, 3, cfg.Pipeline.RecognitionWorkers)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "7070")
	t.Setenv("APP_STORAGE_DRIVER", "memory")
	t.Setenv("APP_PIPELINE_TIMEOUT", "10s")
	t.Setenv("APP_REDIS_ENABLED", "true")
	t.Setenv("APP_REDIS_ADDR", "redis:6379")

	path := writeConfig(t, "server:\n  port: 9090\n")
	require.NoError(t, Reload(path))
	cfg := Get()

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.Timeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"bad driver", "storage:\n  driver: mongo\n", "storage.driver"},
		{"empty sqlite path", "storage:\n  driver: sqlite\n  sqlite_path: \"\"\n", "storage.sqlite_path"},
		{"bad engine", "ocr:\n  engine: cloud\n", "ocr.engine"},
		{"unknown fallback", "translation:\n  fallback_language: xx\n", "translation.fallback_language"},
		{"auto fallback", "translation:\n  fallback_language: auto\n", "cannot be auto"},
		{"bad preinstalled", "translation:\n  preinstalled: [en, tlh]\n", "translation.preinstalled"},
		{"zero workers", "pipeline:\n  recognition_workers: 0\n", "pipeline.recognition_workers"},
		{"zero ttl", "cache:\n  ttl: 0s\n", "cache.ttl"},
		{"redis without addr", "redis:\n  enabled: true\n  addr: \"\"\n", "redis.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
