// Package llm is the paid detector. It asks an Anthropic model to review a
// file against SOC 2 controls and reports the tokens the call consumed.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/j-veylop/complyscan/internal/detector"
	"github.com/j-veylop/complyscan/internal/logger"
	"github.com/j-veylop/complyscan/internal/models"
)

const (
	DefaultBaseURL     = "https://api.anthropic.com"
	DefaultModel       = "claude-sonnet-4-5"
	DefaultMaxTokens   = 4096
	DefaultTimeout     = 120 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond

	apiVersion = "2023-06-01"
)

// Config configures the Anthropic client.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	// Admit, when set, must grant every retry before it is sent. The first
	// attempt is admitted by the caller.
	Admit func() error
}

// Client calls the Anthropic Messages API.
type Client struct {
	httpClient *http.Client
	now        func() time.Time
	cfg        Config
}

// New creates a Client, filling unset fields of cfg with defaults.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		cfg:        cfg,
	}, nil
}

type messageRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Error      *apiError      `json:"error,omitempty"`
	ID         string         `json:"id"`
	StopReason string         `json:"stop_reason"`
	Content    []contentBlock `json:"content"`
	Usage      usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("anthropic request failed (status %d): %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		529: // overloaded
		return true
	default:
		return false
	}
}

// AnalyzeLLM reviews one file and returns its findings together with the
// token usage of the call. Usage is reported even when the reply cannot be
// parsed, since the tokens were spent.
func (c *Client) AnalyzeLLM(ctx context.Context, code, filePath string) ([]models.Violation, models.TokenUsage, error) {
	req := messageRequest{
		Model:     c.cfg.Model,
		System:    systemPrompt,
		MaxTokens: c.cfg.MaxTokens,
		Messages: []message{
			{Role: "user", Content: userPrompt(filePath, code)},
		},
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, models.TokenUsage{}, err
	}

	spent := models.TokenUsage{
		InputTokens:      resp.Usage.InputTokens,
		OutputTokens:     resp.Usage.OutputTokens,
		CacheReadTokens:  resp.Usage.CacheReadInputTokens,
		CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	findings, err := parseFindings(text)
	if err != nil {
		return nil, spent, err
	}

	return toViolations(findings, code, filePath, c.now()), spent, nil
}

// Detect implements detector.Detector.
func (c *Client) Detect(ctx context.Context, file detector.File) (*detector.Detection, error) {
	violations, spent, err := c.AnalyzeLLM(ctx, file.Content, file.Path)
	if err != nil && spent.Total() == 0 {
		return nil, err
	}
	for i := range violations {
		violations[i].ScanID = file.ScanID
	}
	return &detector.Detection{Violations: violations, Usage: &spent}, err
}

// send posts req, retrying transient failures with exponential backoff.
func (c *Client) send(ctx context.Context, req messageRequest) (*messageResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	backoff := c.cfg.BaseDelay

	for attempt := range c.cfg.MaxAttempts {
		if attempt > 0 {
			logger.Debug("Retrying anthropic request", "attempt", attempt+1, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2

			if c.cfg.Admit != nil {
				if err := c.cfg.Admit(); err != nil {
					return nil, fmt.Errorf("retry not admitted: %w", errors.Join(err, lastErr))
				}
			}
		}

		resp, err := c.post(ctx, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("anthropic request failed after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, payload []byte) (*messageResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out messageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("anthropic API error: %s", out.Error.Message)
	}

	return &out, nil
}
