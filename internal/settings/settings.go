// Package settings persists runtime-tunable configuration in the database
// key-value table so it survives restarts and can be changed without a
// redeploy.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
	"github.com/DjordjeVuckovic/news-ingest/internal/arbiter"
	"github.com/DjordjeVuckovic/news-ingest/internal/translate"
)

// KV is the storage surface the settings store needs.
type KV interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	UpsertSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

const (
	keyAIDedupEnabled  = "ai_dedup.enabled"
	keyAIDedupProvider = "ai_dedup.provider"

	keyTranslationProvider     = "translation.provider"
	keyTranslationDeepseekKey  = "translation.deepseek_api_key"
	keyTranslationDeepseekURL  = "translation.deepseek_base_url"
	keyTranslationDeepseekMdl  = "translation.deepseek_model"
	keyTranslationOllamaURL    = "translation.ollama_base_url"
	keyTranslationOllamaMdl    = "translation.ollama_model"
	keyTranslationDescriptions = "translation.translate_descriptions"
	keyTranslationTargetLang   = "translation.target_language"
)

// Thresholds are the dedup tuning values surfaced read-only alongside the
// AI settings. They come from process config, not the KV table.
type Thresholds struct {
	Strict    float64 `json:"strict_threshold"`
	Ambiguous float64 `json:"ambiguous_threshold"`
	MaxChecks int     `json:"max_llm_checks"`
}

// AIDedup is the runtime state of model-assisted deduplication.
type AIDedup struct {
	Enabled    bool       `json:"enabled"`
	Provider   string     `json:"provider"`
	Thresholds Thresholds `json:"thresholds"`
}

type Store struct {
	kv         KV
	thresholds Thresholds
}

func NewStore(kv KV, thresholds Thresholds) *Store {
	return &Store{kv: kv, thresholds: thresholds}
}

// AIDedup reads the AI dedup settings, defaulting to disabled when unset.
func (s *Store) AIDedup(ctx context.Context) (AIDedup, error) {
	out := AIDedup{Thresholds: s.thresholds}

	raw, found, err := s.kv.GetSetting(ctx, keyAIDedupEnabled)
	if err != nil {
		return out, fmt.Errorf("failed to read %s: %w", keyAIDedupEnabled, err)
	}
	if found {
		out.Enabled, _ = strconv.ParseBool(raw)
	}

	provider, _, err := s.kv.GetSetting(ctx, keyAIDedupProvider)
	if err != nil {
		return out, fmt.Errorf("failed to read %s: %w", keyAIDedupProvider, err)
	}
	out.Provider = provider
	return out, nil
}

// UpdateAIDedup persists the enabled flag and provider choice. Enabling
// requires a known provider.
func (s *Store) UpdateAIDedup(ctx context.Context, enabled bool, provider string) error {
	if provider != "" &&
		provider != arbiter.ProviderDeepseek &&
		provider != arbiter.ProviderOllama {
		return apperr.NewValidation("unknown ai dedup provider: " + provider)
	}
	if enabled && provider == "" {
		return apperr.NewValidation("ai dedup cannot be enabled without a provider")
	}

	if err := s.kv.UpsertSetting(ctx, keyAIDedupEnabled, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("failed to store %s: %w", keyAIDedupEnabled, err)
	}
	if err := s.kv.UpsertSetting(ctx, keyAIDedupProvider, provider); err != nil {
		return fmt.Errorf("failed to store %s: %w", keyAIDedupProvider, err)
	}
	return nil
}

// LoadTranslation reads persisted translation credentials. Missing keys
// leave the zero value so callers can layer env defaults over it.
func (s *Store) LoadTranslation(ctx context.Context) (translate.Credentials, error) {
	var creds translate.Credentials

	read := func(key string, dst *string) error {
		val, _, err := s.kv.GetSetting(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		if val != "" {
			*dst = val
		}
		return nil
	}

	if err := read(keyTranslationProvider, &creds.Provider); err != nil {
		return creds, err
	}
	if err := read(keyTranslationDeepseekKey, &creds.DeepseekAPIKey); err != nil {
		return creds, err
	}
	if err := read(keyTranslationDeepseekURL, &creds.DeepseekBaseURL); err != nil {
		return creds, err
	}
	if err := read(keyTranslationDeepseekMdl, &creds.DeepseekModel); err != nil {
		return creds, err
	}
	if err := read(keyTranslationOllamaURL, &creds.OllamaBaseURL); err != nil {
		return creds, err
	}
	if err := read(keyTranslationOllamaMdl, &creds.OllamaModel); err != nil {
		return creds, err
	}
	if err := read(keyTranslationTargetLang, &creds.TargetLanguage); err != nil {
		return creds, err
	}

	raw, found, err := s.kv.GetSetting(ctx, keyTranslationDescriptions)
	if err != nil {
		return creds, fmt.Errorf("failed to read %s: %w", keyTranslationDescriptions, err)
	}
	if found {
		creds.TranslateDescriptions, _ = strconv.ParseBool(raw)
	}
	return creds, nil
}

// SaveTranslation persists translation credentials. An empty API key is not
// written so a masked round-trip cannot wipe the stored secret.
func (s *Store) SaveTranslation(ctx context.Context, creds translate.Credentials) error {
	pairs := map[string]string{
		keyTranslationProvider:     creds.Provider,
		keyTranslationDeepseekURL:  creds.DeepseekBaseURL,
		keyTranslationDeepseekMdl:  creds.DeepseekModel,
		keyTranslationOllamaURL:    creds.OllamaBaseURL,
		keyTranslationOllamaMdl:    creds.OllamaModel,
		keyTranslationDescriptions: strconv.FormatBool(creds.TranslateDescriptions),
		keyTranslationTargetLang:   creds.TargetLanguage,
	}
	if creds.DeepseekAPIKey != "" && !strings.HasPrefix(creds.DeepseekAPIKey, "*") {
		pairs[keyTranslationDeepseekKey] = creds.DeepseekAPIKey
	}

	for key, value := range pairs {
		if err := s.kv.UpsertSetting(ctx, key, value); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}
	return nil
}
