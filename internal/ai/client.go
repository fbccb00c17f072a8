package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/vibes/internal/shared"
)

const (
	// DefaultModel is used when the configuration leaves the model empty.
	DefaultModel   = "openai/gpt-4o-mini"
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	defaultTemperature = 0.8
	defaultMaxTokens   = 2000
	// requestsPerSecond paces chat completions; backfill rounds can fire several in a row.
	requestsPerSecond = 2
)

// errBadRequest marks 4xx responses other than 429 so that they do not trip the breaker.
var errBadRequest = errors.New("rejected request")

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest represents a request to the chat completions endpoint
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse represents the response from chat completions
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Client talks to an OpenRouter-compatible chat completions API.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int

	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[string]
	logger     *log.Logger
}

// NewClient creates a client from the AI credentials section, filling in defaults.
func NewClient(cfg shared.AIConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout()},
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		breaker:     shared.NewCircuitBreaker[string]("ai", logger, errBadRequest),
		logger:      logger,
	}
}

// Complete sends a system and user prompt and returns the first choice's content.
// Every failure wraps [shared.ErrProviderUnavailable].
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: %w: ai api key", shared.ErrProviderUnavailable, shared.ErrMissingCredentials)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", shared.ErrProviderUnavailable, err)
	}

	body, err := json.Marshal(ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	content, err := c.breaker.Execute(func() (string, error) {
		return c.send(ctx, body)
	})
	if err != nil {
		err = shared.BreakerError(err)
		if !errors.Is(err, shared.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %w", shared.ErrProviderUnavailable, err)
		}
		c.logger.Warn("chat completion failed", "model", c.model, "error", err)
		return "", err
	}
	return content, nil
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", shared.ErrServiceUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: status %d: %s: %w", shared.ErrAPIRequest, resp.StatusCode, shared.Truncate(string(data), 200), errBadRequest)
	}

	var completion ChatCompletionResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrMalformedResponse, err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("%w: %s", shared.ErrAPIRequest, completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", shared.ErrMalformedResponse)
	}

	c.logger.Debug("chat completion", "model", completion.Model, "tokens", completion.Usage.TotalTokens,
		"finish_reason", completion.Choices[0].FinishReason)
	return completion.Choices[0].Message.Content, nil
}
