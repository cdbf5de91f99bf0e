package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DjordjeVuckovic/news-ingest/internal/arbiter"
)

const translateTimeout = 30 * time.Second

type translatePayload struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

func buildTranslatePrompt(title, description, targetLang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the news fields below into %s.\n", targetLang)
	b.WriteString("Respond with a single JSON object {\"title\": string, \"description\": string} and nothing else.\n")
	b.WriteString("Keep proper nouns recognizable. If description is empty, return an empty description.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", title)
	if description != "" {
		fmt.Fprintf(&b, "Description: %s\n", description)
	}
	return b.String()
}

func parseTranslateResult(content, fallbackTitle, fallbackDescription string) (*Result, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload translatePayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse translation from %q: %w", content, err)
	}
	if strings.TrimSpace(payload.Title) == "" {
		payload.Title = fallbackTitle
	}
	if payload.Description == "" {
		payload.Description = fallbackDescription
	}
	return &Result{Title: payload.Title, Description: payload.Description}, nil
}

type deepseekProvider struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func newDeepseekProvider(apiKey, baseURL, model string) (*deepseekProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek api key missing")
	}
	if baseURL == "" {
		baseURL = "https://api.deepseek.com"
	}
	if model == "" {
		model = "deepseek-chat"
	}
	return &deepseekProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: translateTimeout},
	}, nil
}

func (p *deepseekProvider) name() string {
	return arbiter.ProviderDeepseek
}

type deepseekChatRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	Temperature float32           `json:"temperature"`
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekChatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *deepseekProvider) translate(ctx context.Context, title, description, targetLang string) (*Result, error) {
	content, err := p.complete(ctx, buildTranslatePrompt(title, description, targetLang))
	if err != nil {
		return nil, err
	}
	return parseTranslateResult(content, title, description)
}

func (p *deepseekProvider) probe(ctx context.Context) error {
	_, err := p.complete(ctx, "ping")
	return err
}

func (p *deepseekProvider) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(deepseekChatRequest{
		Model: p.model,
		Messages: []deepseekMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimSuffix(p.baseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepseek request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read deepseek response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepseek returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var payload deepseekChatResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", fmt.Errorf("failed to parse deepseek response: %w", err)
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("deepseek response missing message content")
	}
	return *payload.Choices[0].Message.Content, nil
}

type ollamaProvider struct {
	base  url.URL
	model string
	http  *http.Client
}

func newOllamaProvider(baseURL, model string) (*ollamaProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama base url missing")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}
	if model == "" {
		model = "llama3.1"
	}
	return &ollamaProvider{
		base:  *base,
		model: model,
		http:  &http.Client{Timeout: translateTimeout},
	}, nil
}

func (p *ollamaProvider) name() string {
	return arbiter.ProviderOllama
}

type ollamaGenerateRequest struct {
	Model    string            `json:"model"`
	Messages []deepseekMessage `json:"messages"`
	Stream   bool              `json:"stream"`
}

type ollamaGenerateResponse struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message,omitempty"`
	Response string `json:"response,omitempty"`
}

func (p *ollamaProvider) translate(ctx context.Context, title, description, targetLang string) (*Result, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model: p.model,
		Messages: []deepseekMessage{
			{Role: "user", Content: buildTranslatePrompt(title, description, targetLang)},
		},
		Stream: false,
	})
	if err != nil {
		return nil, err
	}

	reqURL := p.base.JoinPath("/api/chat")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var payload ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse ollama response: %w", err)
	}

	content := payload.Response
	if payload.Message != nil && strings.TrimSpace(payload.Message.Content) != "" {
		content = payload.Message.Content
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("ollama response missing message content")
	}
	return parseTranslateResult(content, title, description)
}

func (p *ollamaProvider) probe(ctx context.Context) error {
	reqURL := p.base.JoinPath("/api/tags")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama probe failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama probe returned status %d", resp.StatusCode)
	}
	return nil
}
