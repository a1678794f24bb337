package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"parlante/internal/domain"
	"parlante/internal/logging"
)

const defaultBaseURL = "https://api.openai.com/v1"

var (
	ErrMissingAPIKey  = errors.New("completion API key is not configured")
	ErrEmptyResponse  = errors.New("completion response has no choices[0].text")
	ErrRequestTimeout = errors.New("completion request timed out")
)

// Config controls the completion and speech endpoints.
type Config struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		c.APIBaseURL = defaultBaseURL
	}
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.Model == "" {
		c.Model = goopenai.GPT3Dot5TurboInstruct
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	return c
}

func newClient(cfg Config) *goopenai.Client {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.APIBaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	return goopenai.NewClientWithConfig(clientCfg)
}

// CompletionClient implements ports.CompletionClient against an
// OpenAI-compatible /completions endpoint.
type CompletionClient struct {
	cfg    Config
	client *goopenai.Client
	logger *zap.Logger
}

func NewCompletionClient(cfg Config, logger *zap.Logger) *CompletionClient {
	cfg = cfg.withDefaults()
	return &CompletionClient{
		cfg:    cfg,
		client: newClient(cfg),
		logger: logging.OrNop(logger).Named("completion"),
	}
}

// Complete sends exactly one request and never retries.
func (c *CompletionClient) Complete(ctx context.Context, req domain.CompletionRequest) domain.CompletionResult {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return domain.Failure(ErrMissingAPIKey)
	}

	started := time.Now()
	resp, err := c.client.CreateCompletion(ctx, goopenai.CompletionRequest{
		Model:       c.cfg.Model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		N:           req.N,
		Temperature: req.Temperature,
	})
	if err != nil {
		c.logger.Warn("completion failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return domain.Failure(describeError(err))
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Text) == "" {
		c.logger.Warn("completion returned no text", zap.Int("choices", len(resp.Choices)))
		return domain.Failure(ErrEmptyResponse)
	}

	fields := []zap.Field{zap.Duration("elapsed", time.Since(started))}
	if resp.Usage != nil {
		fields = append(fields, zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	}
	c.logger.Debug("completion succeeded", fields...)
	return domain.Success(resp.Choices[0].Text)
}

// describeError turns client errors into a readable reason, keeping the cause.
func describeError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion endpoint returned %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("completion endpoint returned %d: %w", reqErr.HTTPStatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrRequestTimeout, err)
	}
	return fmt.Errorf("completion request failed: %w", err)
}
