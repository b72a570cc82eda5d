// Package ai provides the text generation collaborator: an OpenRouter-compatible
// chat completions client and the Call object job bodies drive it through.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dfeldman/bookbot-sub000/config"
	"github.com/dfeldman/bookbot-sub000/errors"
)

// Caller is the narrow interface job code depends on. *Client implements it;
// tests substitute a fake.
type Caller interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Message represents a message in a chat completion
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a high-level request to the model
type ChatRequest struct {
	Model        string // "" uses the client default
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64 // Override default temperature
	MaxTokens    *int     // Override default max tokens
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse represents the model response
type ChatResponse struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
	Cost         float64 // USD, computed from the pricing table
}

// chatCompletionRequest is the wire request to the chat completions endpoint
type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// chatCompletionResponse is the wire response from the chat completions endpoint
type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// Client is an OpenRouter-compatible chat completions client with a request
// rate limiter. One client is shared by all job bodies in a process.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	temp       float64
	maxTokens  int
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger
}

// NewClient creates a generation client from configuration
func NewClient(cfg config.OpenRouterConfig, log *zap.SugaredLogger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 10
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		temp:       cfg.Temperature,
		maxTokens:  cfg.MaxTokens,
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		logger:     log,
	}
}

// Chat sends a chat completion request, waiting on the rate limiter first
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	wireReq := chatCompletionRequest{
		Model:       model,
		Temperature: c.temp,
		MaxTokens:   c.maxTokens,
	}
	if req.Temperature != nil {
		wireReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		wireReq.MaxTokens = *req.MaxTokens
	}
	if req.SystemPrompt != "" {
		wireReq.Messages = append(wireReq.Messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	wireReq.Messages = append(wireReq.Messages, Message{Role: "user", Content: req.UserPrompt})

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "bookbot")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "chat completion request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("chat completion returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var wireResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	if len(wireResp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	choice := wireResp.Choices[0]
	cost := CalculateCost(model, wireResp.Usage.PromptTokens, wireResp.Usage.CompletionTokens)

	if c.logger != nil {
		c.logger.Debugw("Chat completion",
			"model", model,
			"prompt_tokens", wireResp.Usage.PromptTokens,
			"completion_tokens", wireResp.Usage.CompletionTokens,
			"cost_usd", cost,
			"finish_reason", choice.FinishReason,
			"duration", time.Since(start),
		)
	}

	return &ChatResponse{
		Content:      choice.Message.Content,
		Model:        wireResp.Model,
		FinishReason: choice.FinishReason,
		Usage:        wireResp.Usage,
		Cost:         cost,
	}, nil
}
