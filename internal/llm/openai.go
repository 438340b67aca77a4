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

// chatCompletionsDriver implements the shared OpenAI-compatible
// chat-completions wire format used by the OpenAI, OpenRouter, and
// Local adapters; they differ only in base URL, default model,
// required auth, and timeout.
type chatCompletionsDriver struct {
	apiKey      string
	baseURL     string
	requireAuth bool
	httpClient  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (d *chatCompletionsDriver) complete(ctx context.Context, messages []Message, cfg Config) (Response, error) {
	if d.requireAuth && d.apiKey == "" {
		return Response{}, &NotConfiguredError{Reason: "api key missing"}
	}
	ordered := inlineSystemMessages(messages, cfg)
	body := chatRequest{Model: cfg.Model, MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
	for _, m := range ordered {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return Response{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	if d.apiKey != "" && d.apiKey != "none" {
		req.Header.Set("authorization", "Bearer "+d.apiKey)
	}

	client := d.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("chat request failed: %w", err)
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

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Response{}, fmt.Errorf("parse chat response: %w", err)
	}
	var content, finish string
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
		finish = parsed.Choices[0].FinishReason
	}
	return Response{
		Content:      content,
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		FinishReason: finish,
	}, nil
}

// OpenAIDriver speaks the OpenAI chat-completions API.
type OpenAIDriver struct{ d chatCompletionsDriver }

// NewOpenAIDriver constructs a driver; baseURL defaults when empty.
func NewOpenAIDriver(apiKey, baseURL string) *OpenAIDriver {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIDriver{d: chatCompletionsDriver{apiKey: apiKey, baseURL: baseURL, requireAuth: true}}
}

func (d *OpenAIDriver) Complete(ctx context.Context, messages []Message, cfg Config) (Response, error) {
	return d.d.complete(ctx, messages, cfg)
}
func (d *OpenAIDriver) Stream(ctx context.Context, messages []Message, cfg Config, onChunk func(string)) (Response, error) {
	return Response{}, &ErrUnsupported{Operation: "openai.Stream"}
}

// OpenRouterDriver speaks OpenRouter's OpenAI-compatible API.
type OpenRouterDriver struct{ d chatCompletionsDriver }

// NewOpenRouterDriver constructs a driver; baseURL defaults when empty.
func NewOpenRouterDriver(apiKey, baseURL string) *OpenRouterDriver {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api"
	}
	return &OpenRouterDriver{d: chatCompletionsDriver{apiKey: apiKey, baseURL: baseURL, requireAuth: true}}
}

func (d *OpenRouterDriver) Complete(ctx context.Context, messages []Message, cfg Config) (Response, error) {
	return d.d.complete(ctx, messages, cfg)
}
func (d *OpenRouterDriver) Stream(ctx context.Context, messages []Message, cfg Config, onChunk func(string)) (Response, error) {
	return Response{}, &ErrUnsupported{Operation: "openrouter.Stream"}
}
