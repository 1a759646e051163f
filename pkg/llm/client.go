// Package llm wraps the outbound text-generation provider behind a small,
// retrying client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/config"
)

var (
	// ErrDisabled is returned for every call when no provider is configured.
	ErrDisabled = errors.New("text generation disabled")
	// ErrEmptyResponse is returned when the provider answers with no content.
	ErrEmptyResponse = errors.New("empty completion")
)

// ResponseFormat selects between free text and a JSON object answer.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// Request is a single chat completion. A nil Temperature uses the
// configured default.
type Request struct {
	Model          string
	SystemPrompt   string
	UserPrompt     string
	Temperature    *float64
	MaxTokens      int
	ResponseFormat ResponseFormat
}

// Temperature returns a pointer to v for Request.Temperature.
func Temperature(v float64) *float64 {
	return &v
}

// Options tunes call behaviour.
type Options struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

// Client issues completions with a per-attempt timeout and bounded retries
// on transient failures.
type Client struct {
	model  llms.Model
	opts   Options
	logger *zap.Logger
}

// New builds a client from configuration. A disabled or keyless configuration
// yields a client whose calls all fail with ErrDisabled.
func New(cfg config.AIConfig, logger *zap.Logger) (*Client, error) {
	opts := Options{
		Model:          cfg.Model,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		Timeout:        cfg.Timeout,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
	}
	if !cfg.Enabled || cfg.APIKey == "" {
		return NewWithModel(nil, opts, logger), nil
	}

	providerOpts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	return NewWithModel(model, opts, logger), nil
}

// NewWithModel wraps an existing model. A nil model disables the client.
func NewWithModel(model llms.Model, opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{model: model, opts: opts, logger: logger}
}

// Enabled reports whether a provider is wired.
func (c *Client) Enabled() bool {
	return c != nil && c.model != nil
}

// Complete returns the text of the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	messages := make([]llms.MessageContent, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.UserPrompt))
	callOpts := c.callOptions(req)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.InitialBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.opts.MaxRetries)), ctx)

	var (
		content string
		attempt int
	)
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		resp, err := c.model.GenerateContent(attemptCtx, messages, callOpts...)
		if err != nil {
			if ctx.Err() == nil && isTransient(attemptCtx, err) {
				c.logger.Warn("completion attempt failed", zap.Int("attempt", attempt), zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
			return backoff.Permanent(ErrEmptyResponse)
		}
		content = resp.Choices[0].Content
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return "", fmt.Errorf("completion failed after %d attempt(s): %w", attempt, err)
	}
	return content, nil
}

func (c *Client) callOptions(req Request) []llms.CallOption {
	model := req.Model
	if model == "" {
		model = c.opts.Model
	}
	temperature := c.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.opts.MaxTokens
	}

	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	if req.ResponseFormat == FormatJSON {
		opts = append(opts, llms.WithJSONMode())
	}
	return opts
}

var statusCodePattern = regexp.MustCompile(`status code:? (\d{3})`)

func isTransient(attemptCtx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code == 429 || code >= 500
	}
	return false
}
