package arbiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultDeepseekTimeout = 30 * time.Second

type DeepseekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DeepseekClient talks to an OpenAI-compatible chat completions endpoint.
type DeepseekClient struct {
	cfg  DeepseekConfig
	http *http.Client
}

type DeepseekOption func(*DeepseekClient)

func WithDeepseekHTTPClient(client *http.Client) DeepseekOption {
	return func(c *DeepseekClient) {
		c.http = client
	}
}

func NewDeepseekClient(cfg DeepseekConfig, opts ...DeepseekOption) (*DeepseekClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepseek api key missing")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDeepseekTimeout
	}

	c := &DeepseekClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *DeepseekClient) Name() string {
	return ProviderDeepseek
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *DeepseekClient) JudgeSimilarity(ctx context.Context, candidate, existing Snippet) (*Decision, error) {
	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(candidate, existing)},
	})
	if err != nil {
		return nil, err
	}
	return ParseDecision(content)
}

func (c *DeepseekClient) Probe(ctx context.Context) error {
	_, err := c.complete(ctx, []chatMessage{
		{Role: "user", Content: "ping"},
	})
	return err
}

func (c *DeepseekClient) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: 0.1,
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
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

	var payload chatResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", fmt.Errorf("failed to parse deepseek response: %w", err)
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("deepseek response missing message content")
	}
	return *payload.Choices[0].Message.Content, nil
}
