// Package translate renders foreign-language feed entries into the target
// language before they enter the dedup pipeline. Translation is best-effort:
// when no provider is usable the engine reports a soft skip, never an error
// that would block ingestion.
package translate

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
	"github.com/DjordjeVuckovic/news-ingest/internal/arbiter"
)

const DefaultTargetLanguage = "zh-CN"

// Result carries the translated fields of one entry.
type Result struct {
	Title       string
	Description string
}

// provider is one translation backend. Implementations live in this package;
// the engine picks between them based on configured credentials and health.
type provider interface {
	translate(ctx context.Context, title, description, targetLang string) (*Result, error)
	probe(ctx context.Context) error
	name() string
}

// Credentials is the runtime-updatable provider configuration.
type Credentials struct {
	Provider              string
	DeepseekAPIKey        string
	DeepseekBaseURL       string
	DeepseekModel         string
	OllamaBaseURL         string
	OllamaModel           string
	TranslateDescriptions bool
	TargetLanguage        string
}

type providerState struct {
	configured bool
	verified   bool
	pending    bool
	lastErr    string
}

// ProviderStatus is the externally visible health of one provider.
type ProviderStatus struct {
	Configured bool   `json:"configured"`
	Verified   bool   `json:"verified"`
	Pending    bool   `json:"pending"`
	LastError  string `json:"last_error,omitempty"`
}

// Snapshot is the masked view of the engine returned to the admin API.
// API keys never leave the engine unmasked.
type Snapshot struct {
	Provider              string         `json:"provider"`
	DeepseekAPIKey        string         `json:"deepseek_api_key"`
	DeepseekBaseURL       string         `json:"deepseek_base_url"`
	DeepseekModel         string         `json:"deepseek_model"`
	OllamaBaseURL         string         `json:"ollama_base_url"`
	OllamaModel           string         `json:"ollama_model"`
	TranslateDescriptions bool           `json:"translate_descriptions"`
	TargetLanguage        string         `json:"target_language"`
	Deepseek              ProviderStatus `json:"deepseek"`
	Ollama                ProviderStatus `json:"ollama"`
}

// Engine owns provider credentials and routes translation requests to the
// selected provider, falling back to the other one when the first is not
// usable.
type Engine struct {
	mu    sync.Mutex
	creds Credentials
	state map[string]*providerState
}

func NewEngine(creds Credentials) *Engine {
	if creds.TargetLanguage == "" {
		creds.TargetLanguage = DefaultTargetLanguage
	}
	e := &Engine{
		creds: creds,
		state: map[string]*providerState{
			arbiter.ProviderDeepseek: {},
			arbiter.ProviderOllama:   {},
		},
	}
	e.reconfigureLocked()
	return e
}

// UpdateCredentials replaces provider configuration at runtime. Newly
// configured providers start as pending until a probe verifies them.
func (e *Engine) UpdateCredentials(creds Credentials) error {
	if creds.Provider != "" &&
		creds.Provider != arbiter.ProviderDeepseek &&
		creds.Provider != arbiter.ProviderOllama {
		return apperr.NewValidation("unknown translation provider: " + creds.Provider)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if creds.TargetLanguage == "" {
		creds.TargetLanguage = e.creds.TargetLanguage
	}
	// A masked key submitted back from the UI means "keep the stored one".
	if isMasked(creds.DeepseekAPIKey) {
		creds.DeepseekAPIKey = e.creds.DeepseekAPIKey
	}
	e.creds = creds
	e.reconfigureLocked()
	return nil
}

func (e *Engine) reconfigureLocked() {
	ds := e.state[arbiter.ProviderDeepseek]
	ds.configured = e.creds.DeepseekAPIKey != ""
	ds.verified = false
	ds.pending = ds.configured
	ds.lastErr = ""

	ol := e.state[arbiter.ProviderOllama]
	ol.configured = e.creds.OllamaBaseURL != ""
	ol.verified = false
	ol.pending = ol.configured
	ol.lastErr = ""
}

// Snapshot returns the current configuration with the API key masked.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		Provider:              e.creds.Provider,
		DeepseekAPIKey:        maskKey(e.creds.DeepseekAPIKey),
		DeepseekBaseURL:       e.creds.DeepseekBaseURL,
		DeepseekModel:         e.creds.DeepseekModel,
		OllamaBaseURL:         e.creds.OllamaBaseURL,
		OllamaModel:           e.creds.OllamaModel,
		TranslateDescriptions: e.creds.TranslateDescriptions,
		TargetLanguage:        e.creds.TargetLanguage,
		Deepseek:              statusOf(e.state[arbiter.ProviderDeepseek]),
		Ollama:                statusOf(e.state[arbiter.ProviderOllama]),
	}
}

func statusOf(s *providerState) ProviderStatus {
	return ProviderStatus{
		Configured: s.configured,
		Verified:   s.verified,
		Pending:    s.pending,
		LastError:  s.lastErr,
	}
}

// Translate renders title (and optionally description) into the target
// language. Returns (nil, nil) when no provider is usable or the text does
// not need translating. A transient provider failure gets one quick retry.
func (e *Engine) Translate(ctx context.Context, title, description string) (*Result, error) {
	e.mu.Lock()
	creds := e.creds
	order := e.cascadeLocked()
	e.mu.Unlock()

	if !ShouldTranslate(title) {
		return nil, nil
	}
	if !creds.TranslateDescriptions {
		description = ""
	}

	for _, name := range order {
		p, err := e.buildProvider(name, creds)
		if err != nil {
			e.recordFailure(name, err)
			continue
		}

		res, err := p.translate(ctx, title, description, creds.TargetLanguage)
		if err != nil {
			slog.Warn("translation attempt failed, retrying once",
				"provider", name, "error", err)
			res, err = p.translate(ctx, title, description, creds.TargetLanguage)
		}
		if err != nil {
			e.recordFailure(name, err)
			continue
		}
		e.recordSuccess(name)
		return res, nil
	}
	return nil, nil
}

// cascadeLocked returns usable providers in preference order: the selected
// provider first, then the other one as fallback. Providers with a recorded
// failure and no pending reverification are skipped.
func (e *Engine) cascadeLocked() []string {
	candidates := []string{arbiter.ProviderDeepseek, arbiter.ProviderOllama}
	if e.creds.Provider == arbiter.ProviderOllama {
		candidates = []string{arbiter.ProviderOllama, arbiter.ProviderDeepseek}
	}

	var order []string
	for _, name := range candidates {
		s := e.state[name]
		if !s.configured {
			continue
		}
		if s.lastErr != "" && !s.pending {
			continue
		}
		order = append(order, name)
	}
	return order
}

func (e *Engine) buildProvider(name string, creds Credentials) (provider, error) {
	switch name {
	case arbiter.ProviderDeepseek:
		return newDeepseekProvider(creds.DeepseekAPIKey, creds.DeepseekBaseURL, creds.DeepseekModel)
	case arbiter.ProviderOllama:
		return newOllamaProvider(creds.OllamaBaseURL, creds.OllamaModel)
	default:
		return nil, apperr.NewValidation("unknown translation provider: " + name)
	}
}

func (e *Engine) recordFailure(name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state[name]
	s.verified = false
	s.pending = false
	s.lastErr = err.Error()
}

func (e *Engine) recordSuccess(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state[name]
	s.verified = true
	s.pending = false
	s.lastErr = ""
}

// Probe checks connectivity of the named provider and records the outcome.
func (e *Engine) Probe(ctx context.Context, name string) error {
	e.mu.Lock()
	creds := e.creds
	e.mu.Unlock()

	p, err := e.buildProvider(name, creds)
	if err != nil {
		e.recordFailure(name, err)
		return err
	}
	if err := p.probe(ctx); err != nil {
		e.recordFailure(name, err)
		return err
	}
	e.recordSuccess(name)
	return nil
}

// RevalidatePending probes configured providers that are awaiting first
// verification or sitting on a recorded failure, so a transient outage does
// not disable a provider permanently. Run periodically from a maintenance
// job.
func (e *Engine) RevalidatePending(ctx context.Context) {
	e.mu.Lock()
	var pending []string
	for name, s := range e.state {
		if s.configured && (s.pending || s.lastErr != "") {
			pending = append(pending, name)
		}
	}
	e.mu.Unlock()

	for _, name := range pending {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := e.Probe(probeCtx, name); err != nil {
			slog.Warn("provider revalidation failed", "provider", name, "error", err)
		}
		cancel()
	}
}

// ArbiterFor builds a similarity arbiter backed by the named provider,
// using the engine's current credentials.
func (e *Engine) ArbiterFor(name string) (arbiter.Client, error) {
	e.mu.Lock()
	creds := e.creds
	e.mu.Unlock()

	switch name {
	case arbiter.ProviderDeepseek:
		return arbiter.NewDeepseekClient(arbiter.DeepseekConfig{
			APIKey:  creds.DeepseekAPIKey,
			BaseURL: creds.DeepseekBaseURL,
			Model:   creds.DeepseekModel,
		})
	case arbiter.ProviderOllama:
		base := creds.OllamaBaseURL
		if base == "" {
			base = "http://localhost:11434"
		}
		return arbiter.NewOllamaClient(arbiter.OllamaConfig{
			BaseURL: base,
			Model:   creds.OllamaModel,
		})
	default:
		return nil, apperr.NewValidation("unknown arbiter provider: " + name)
	}
}

// ShouldTranslate reports whether text looks like it needs translating into
// the CJK target language: text that already contains CJK characters is left
// alone, and so is text that is not mostly ASCII letters (numbers, symbols,
// other scripts we cannot judge).
func ShouldTranslate(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	var letters, asciiLetters int
	for _, r := range trimmed {
		if unicode.Is(unicode.Han, r) ||
			unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) ||
			unicode.Is(unicode.Hangul, r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
			if r < 128 {
				asciiLetters++
			}
		}
	}
	// Titles that are almost all digits and symbols carry too little
	// signal to judge the language.
	if letters < minTranslateLetters {
		return false
	}
	return float64(asciiLetters)/float64(letters) >= 0.6
}

const minTranslateLetters = 3

const maskVisible = 4

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= maskVisible {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-maskVisible) + key[len(key)-maskVisible:]
}

func isMasked(key string) bool {
	return key != "" && strings.HasPrefix(key, "*")
}
