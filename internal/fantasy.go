package internal

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openrouter"
)

// FantasyConfig is a fully resolved chat provider entry.
type FantasyConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	Retries  int
}

var _ Provider = (*FantasyProvider)(nil)

// FantasyProvider sends composed prompts to a hosted chat model.
type FantasyProvider struct {
	model     fantasy.LanguageModel
	name      string
	timeout   time.Duration
	retries   int
	baseDelay time.Duration
}

func NewFantasyProvider(ctx context.Context, cfg FantasyConfig) (*FantasyProvider, error) {
	backend, err := newFantasyBackend(cfg)
	if err != nil {
		return nil, err
	}

	model, err := backend.LanguageModel(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("get language model %s: %w", cfg.Model, err)
	}

	return &FantasyProvider{
		model:     model,
		name:      cfg.Provider,
		timeout:   cfg.Timeout,
		retries:   cfg.Retries,
		baseDelay: 500 * time.Millisecond,
	}, nil
}

func newFantasyBackend(cfg FantasyConfig) (fantasy.Provider, error) {
	var (
		backend fantasy.Provider
		err     error
	)
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		backend, err = openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		backend, err = anthropic.New(opts...)
	case "openrouter":
		backend, err = openrouter.New(openrouter.WithAPIKey(cfg.APIKey))
	default:
		return nil, fmt.Errorf("%w: unsupported provider: %s", ErrConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Provider, err)
	}
	return backend, nil
}

func (p *FantasyProvider) Name() string { return p.name }

// Complete retries failed generations with exponential backoff. Cancellation
// of ctx is never retried.
func (p *FantasyProvider) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryBackoff(p.baseDelay, attempt)):
			}
		}

		text, err := p.generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			break
		}
	}
	return "", fmt.Errorf("%s generate: %w", p.name, lastErr)
}

func (p *FantasyProvider) generate(ctx context.Context, prompt string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := fantasy.NewAgent(p.model).Generate(ctx, fantasy.AgentCall{Prompt: prompt})
	if err != nil {
		return "", err
	}
	return result.Response.Content.Text(), nil
}

// Stream emits text deltas as they arrive. A failure after the stream has
// started is reported as a final "[error: ...]" chunk.
func (p *FantasyProvider) Stream(ctx context.Context, prompt string) (<-chan string, error) {
	parent := ctx
	cancel := context.CancelFunc(func() {})
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, p.timeout)
	}

	agent := fantasy.NewAgent(p.model)
	ch := make(chan string, 100)

	go func() {
		defer close(ch)
		defer cancel()

		_, err := agent.Stream(ctx, fantasy.AgentStreamCall{
			Prompt: prompt,
			OnTextDelta: func(_, text string) error {
				if text == "" {
					return nil
				}
				select {
				case ch <- text:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
		// Caller cancellation ends the stream silently.
		if err == nil || parent.Err() != nil {
			return
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			err = fmt.Errorf("provider timed out after %s: %w", p.timeout, err)
		}
		select {
		case ch <- fmt.Sprintf("\n[error: %v]", err):
		case <-parent.Done():
		}
	}()

	return ch, nil
}

// retryBackoff doubles base per attempt, capped at 30s, with +/-25% jitter.
func retryBackoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := base * time.Duration(1<<uint(attempt-1))
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	if backoff < 4 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4
	return backoff + jitter
}
