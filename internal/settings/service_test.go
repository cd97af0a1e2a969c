package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
	"github.com/arunesh/TalkLens-Vibe1/internal/languages"
	"github.com/arunesh/TalkLens-Vibe1/internal/repositories"
)

// MockSettingsStore is a mock implementation of SettingsStore
type MockSettingsStore struct {
	mock.Mock
}

var _ domain.SettingsStore = (*MockSettingsStore)(nil)

func (m *MockSettingsStore) LoadSettings(ctx context.Context) (domain.AppSettings, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.AppSettings), args.Bool(1), args.Error(2)
}

func (m *MockSettingsStore) SaveSettings(ctx context.Context, settings domain.AppSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func newService(t *testing.T) (*Service, *repositories.MemoryRepository) {
	repo := repositories.NewMemoryRepository()
	svc, err := NewService(context.Background(), repo, zaptest.NewLogger(t))
	require.NoError(t, err)
	return svc, repo
}

func TestServiceDefaults(t *testing.T) {
	svc, _ := newService(t)

	got := svc.Get(context.Background())
	assert.Equal(t, domain.DefaultSettings(), got)
	assert.True(t, got.SourceLanguage.IsAuto())
	assert.Equal(t, "en", got.TargetLanguage.Code)
}

func TestServiceLoadsStoredSettings(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemoryRepository()

	stored := domain.DefaultSettings()
	stored.SourceLanguage = domain.Language{Code: "es"}
	stored.TargetLanguage = domain.Language{Code: "fr"}
	stored.ImageQuality = domain.ImageQualityMedium
	require.NoError(t, repo.SaveSettings(ctx, stored))

	svc, err := NewService(ctx, repo, zaptest.NewLogger(t))
	require.NoError(t, err)

	got := svc.Get(ctx)
	assert.Equal(t, languages.Spanish, got.SourceLanguage)
	assert.Equal(t, languages.French, got.TargetLanguage)
	assert.False(t, got.AutoDetectLanguage)
	assert.Equal(t, domain.ImageQualityMedium, got.ImageQuality)
}

func TestServiceInvalidStoredSettingsFallBack(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemoryRepository()

	stored := domain.DefaultSettings()
	stored.TargetLanguage = domain.Language{Code: "xx"}
	require.NoError(t, repo.SaveSettings(ctx, stored))

	svc, err := NewService(ctx, repo, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), svc.Get(ctx))
}

func TestServiceLoadError(t *testing.T) {
	store := new(MockSettingsStore)
	store.On("LoadSettings", mock.Anything).Return(domain.AppSettings{}, false, errors.New("disk gone"))

	_, err := NewService(context.Background(), store, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestServiceUpdate(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	next := svc.Get(ctx)
	next.SourceLanguage = domain.Language{Code: "ES"}
	next.TargetLanguage = domain.Language{Code: "ja-JP"}
	next.KeepOriginalImages = false

	got, err := svc.Update(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, languages.Spanish, got.SourceLanguage)
	assert.Equal(t, languages.Japanese, got.TargetLanguage)
	assert.False(t, got.AutoDetectLanguage)
	assert.False(t, got.KeepOriginalImages)

	stored, ok, err := repo.LoadSettings(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, got, stored)
}

func TestServiceUpdateRejectsInvalid(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*domain.AppSettings)
	}{
		{"unknown source", func(s *domain.AppSettings) { s.SourceLanguage = domain.Language{Code: "xx"} }},
		{"unknown target", func(s *domain.AppSettings) { s.TargetLanguage = domain.Language{Code: "tlh"} }},
		{"auto target", func(s *domain.AppSettings) { s.TargetLanguage = languages.AutoDetect }},
		{"bad quality", func(s *domain.AppSettings) { s.ImageQuality = "ultra" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newService(t)
			before := svc.Get(ctx)

			next := before
			tt.mutate(&next)
			_, err := svc.Update(ctx, next)
			require.Error(t, err)

			assert.Equal(t, before, svc.Get(ctx))
			_, ok, _ := repo.LoadSettings(ctx)
			assert.False(t, ok, "invalid settings must not be persisted")
		})
	}
}

func TestServiceUnsupportedLanguageError(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.SetLanguagePair(context.Background(), "es", "xx")
	var unsupported *domain.UnsupportedLanguageError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "xx", unsupported.Code)
}

func TestServiceSwapLanguages(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	// auto source: nothing to swap
	got, err := svc.SwapLanguages(ctx)
	require.NoError(t, err)
	assert.True(t, got.SourceLanguage.IsAuto())
	assert.Equal(t, languages.English, got.TargetLanguage)

	_, err = svc.SetLanguagePair(ctx, "de", "it")
	require.NoError(t, err)

	got, err = svc.SwapLanguages(ctx)
	require.NoError(t, err)
	assert.Equal(t, languages.Italian, got.SourceLanguage)
	assert.Equal(t, languages.German, got.TargetLanguage)
	assert.Equal(t, got, svc.Get(ctx))
}

func TestServiceFlushRetriesFailedWrite(t *testing.T) {
	ctx := context.Background()
	store := new(MockSettingsStore)
	store.On("LoadSettings", mock.Anything).Return(domain.AppSettings{}, false, nil)
	store.On("SaveSettings", mock.Anything, mock.Anything).Return(errors.New("locked")).Once()
	store.On("SaveSettings", mock.Anything, mock.Anything).Return(nil).Once()

	svc, err := NewService(ctx, store, zaptest.NewLogger(t))
	require.NoError(t, err)

	// nothing pending yet
	require.NoError(t, svc.Flush(ctx))
	store.AssertNotCalled(t, "SaveSettings", mock.Anything, mock.Anything)

	_, err = svc.SetLanguagePair(ctx, "ko", "en")
	require.Error(t, err)
	// the in-memory value is kept even though the write failed
	assert.Equal(t, languages.Korean, svc.Get(ctx).SourceLanguage)

	require.NoError(t, svc.Flush(ctx))
	require.NoError(t, svc.Flush(ctx))
	store.AssertNumberOfCalls(t, "SaveSettings", 2)
}
