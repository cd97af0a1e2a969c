package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRedisForTest(t *testing.T) *RedisRepository {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, run: docker-compose up -d redis")
	}

	repo, err := NewRedisRepository(RedisConfig{
		Addr:   addr,
		Prefix: "pagetrans-test-" + uuid.NewString() + ":",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Reset(context.Background())
		repo.Close()
	})
	return repo
}

func TestRedisRepository(t *testing.T) {
	t.Run("models", func(t *testing.T) { modelRecordContract(t, newRedisForTest(t)) })
	t.Run("settings", func(t *testing.T) { settingsContract(t, newRedisForTest(t)) })
}
