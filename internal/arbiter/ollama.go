package arbiter

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
)

const defaultOllamaTimeout = 60 * time.Second

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaClient talks to a local inference server's chat endpoint.
type OllamaClient struct {
	base  url.URL
	model string
	http  *http.Client
}

type OllamaOption func(*OllamaClient)

func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(c *OllamaClient) {
		c.http = client
	}
}

func NewOllamaClient(cfg OllamaConfig, opts ...OllamaOption) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama base url missing")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}

	c := &OllamaClient{
		base:  *base,
		model: model,
		http:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *OllamaClient) Name() string {
	return ProviderOllama
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaChatResponse struct {
	Message  *ollamaMessage  `json:"message,omitempty"`
	Messages []ollamaMessage `json:"messages,omitempty"`
	Response string          `json:"response,omitempty"`
}

type ollamaMessage struct {
	Content string `json:"content"`
}

func (c *OllamaClient) JudgeSimilarity(ctx context.Context, candidate, existing Snippet) (*Decision, error) {
	reqBody, err := json.Marshal(ollamaChatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(candidate, existing)},
		},
		Stream: false,
	})
	if err != nil {
		return nil, err
	}

	reqURL := c.base.JoinPath("/api/chat")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
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

	content, ok := extractOllamaContent(respBody)
	if !ok {
		return nil, fmt.Errorf("ollama response missing message content")
	}
	return ParseDecision(content)
}

func (c *OllamaClient) Probe(ctx context.Context) error {
	reqURL := c.base.JoinPath("/api/tags")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
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

// extractOllamaContent tolerates the response shapes different ollama
// versions produce: a single message, a message list, or a bare response
// string.
func extractOllamaContent(raw []byte) (string, bool) {
	var parsed ollamaChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", false
	}

	if parsed.Message != nil && strings.TrimSpace(parsed.Message.Content) != "" {
		return parsed.Message.Content, true
	}

	if len(parsed.Messages) > 0 {
		var parts []string
		for _, msg := range parsed.Messages {
			if trimmed := strings.TrimSpace(msg.Content); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), true
		}
	}

	if strings.TrimSpace(parsed.Response) != "" {
		return parsed.Response, true
	}
	return "", false
}
