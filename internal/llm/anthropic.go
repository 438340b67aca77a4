package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// AnthropicDriver speaks the Anthropic messages API.
type AnthropicDriver struct {
	APIKey     string
	BaseURL    string // default https://api.anthropic.com
	HTTPClient *http.Client
}

// NewAnthropicDriver constructs a driver; baseURL defaults when empty.
func NewAnthropicDriver(apiKey, baseURL string) *AnthropicDriver {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicDriver{APIKey: apiKey, BaseURL: baseURL, HTTPClient: http.DefaultClient}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature,omitempty"`
	System      string              `json:"system,omitempty"`
	Messages    []anthropicMessage  `json:"messages"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (d *AnthropicDriver) Complete(ctx context.Context, messages []Message, cfg Config) (Response, error) {
	if d.APIKey == "" {
		return Response{}, &NotConfiguredError{Reason: "anthropic api key missing"}
	}
	system, rest := hoistSystemMessages(messages, cfg)
	body := anthropicRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		System:      system,
	}
	for _, m := range rest {
		body.Messages = append(body.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/v1/messages", bytes.NewReader(raw))
	if err != nil {
		return Response{}, fmt.Errorf("build anthropic request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", d.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := d.client().Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		retry, _ := strconv.Atoi(resp.Header.Get("retry-after"))
		return Response{}, &RateLimitedError{RetryAfterSecs: retry}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, &ApiError{Status: resp.StatusCode, Message: string(respBody)}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Response{}, fmt.Errorf("parse anthropic response: %w", err)
	}
	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return Response{
		Content:      text,
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		FinishReason: parsed.StopReason,
	}, nil
}

func (d *AnthropicDriver) Stream(ctx context.Context, messages []Message, cfg Config, onChunk func(string)) (Response, error) {
	return Response{}, &ErrUnsupported{Operation: "anthropic.Stream"}
}

func (d *AnthropicDriver) client() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}
