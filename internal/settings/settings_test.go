package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
	"github.com/DjordjeVuckovic/news-ingest/internal/arbiter"
	"github.com/DjordjeVuckovic/news-ingest/internal/translate"
)

type fakeKV struct {
	values map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: make(map[string]string)}
}

func (f *fakeKV) GetSetting(_ context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeKV) UpsertSetting(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

func (f *fakeKV) DeleteSetting(_ context.Context, key string) error {
	delete(f.values, key)
	return nil
}

func testThresholds() Thresholds {
	return Thresholds{Strict: 0.9, Ambiguous: 0.6, MaxChecks: 3}
}

func TestAIDedup_DefaultsDisabled(t *testing.T) {
	store := NewStore(newFakeKV(), testThresholds())

	got, err := store.AIDedup(context.Background())
	require.NoError(t, err)

	assert.False(t, got.Enabled)
	assert.Empty(t, got.Provider)
	assert.Equal(t, 0.9, got.Thresholds.Strict)
	assert.Equal(t, 3, got.Thresholds.MaxChecks)
}

func TestUpdateAIDedup_RoundTrip(t *testing.T) {
	store := NewStore(newFakeKV(), testThresholds())
	ctx := context.Background()

	require.NoError(t, store.UpdateAIDedup(ctx, true, arbiter.ProviderOllama))

	got, err := store.AIDedup(ctx)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, arbiter.ProviderOllama, got.Provider)
}

func TestUpdateAIDedup_Validation(t *testing.T) {
	store := NewStore(newFakeKV(), testThresholds())
	ctx := context.Background()

	err := store.UpdateAIDedup(ctx, true, "gpt9")
	var vErr *apperr.ValidationError
	require.ErrorAs(t, err, &vErr)

	err = store.UpdateAIDedup(ctx, true, "")
	require.ErrorAs(t, err, &vErr, "enabling without a provider must fail")

	assert.NoError(t, store.UpdateAIDedup(ctx, false, ""),
		"disabling with no provider is fine")
}

func TestTranslation_RoundTrip(t *testing.T) {
	store := NewStore(newFakeKV(), testThresholds())
	ctx := context.Background()

	in := translate.Credentials{
		Provider:              arbiter.ProviderDeepseek,
		DeepseekAPIKey:        "sk-real-key",
		DeepseekModel:         "deepseek-chat",
		OllamaBaseURL:         "http://localhost:11434",
		TranslateDescriptions: true,
		TargetLanguage:        "zh-CN",
	}
	require.NoError(t, store.SaveTranslation(ctx, in))

	out, err := store.LoadTranslation(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSaveTranslation_MaskedKeyDoesNotOverwrite(t *testing.T) {
	store := NewStore(newFakeKV(), testThresholds())
	ctx := context.Background()

	require.NoError(t, store.SaveTranslation(ctx, translate.Credentials{
		DeepseekAPIKey: "sk-real-key",
	}))

	require.NoError(t, store.SaveTranslation(ctx, translate.Credentials{
		DeepseekAPIKey: "***********-key",
	}))

	out, err := store.LoadTranslation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-real-key", out.DeepseekAPIKey)
}

func TestLoadTranslation_Empty(t *testing.T) {
	store := NewStore(newFakeKV(), testThresholds())

	out, err := store.LoadTranslation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, translate.Credentials{}, out)
}
