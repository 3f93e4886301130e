package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// RetryConfig bounds provider calls
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Timeout applies to each attempt
	Timeout        time.Duration
	MaxConcurrency int
}

// RetryingProvider adds per-attempt timeouts, backoff on transient errors and
// a process-wide concurrency cap around another Provider
type RetryingProvider struct {
	inner Provider
	cfg   RetryConfig
	sem   *semaphore.Weighted
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryingProvider wraps p
func NewRetryingProvider(p Provider, cfg RetryConfig) *RetryingProvider {
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	rp := &RetryingProvider{inner: p, cfg: cfg, sleep: sleepCtx}
	if cfg.MaxConcurrency > 0 {
		rp.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrency))
	}
	return rp
}

// Name returns the wrapped provider's name
func (p *RetryingProvider) Name() string {
	return p.inner.Name()
}

// Close closes the wrapped provider
func (p *RetryingProvider) Close() error {
	return p.inner.Close()
}

// Complete calls the wrapped provider, retrying transient failures
func (p *RetryingProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("failed to acquire concurrency slot: %w", err)
		}
		defer p.sem.Release(1)
	}

	var lastErr error
	backoff := p.cfg.InitialBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		resp, err := p.inner.Complete(attemptCtx, req)
		cancel()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetriable(err) || attempt == p.cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("completion canceled: %w", ctx.Err())
		}

		if err := p.sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("completion canceled: %w", err)
		}
		backoff *= 2
		if backoff > p.cfg.MaxBackoff {
			backoff = p.cfg.MaxBackoff
		}
	}

	return nil, lastErr
}

// IsRetriable reports whether a provider error is transient
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode == 529 || // Anthropic "overloaded"
			statusErr.StatusCode >= 500
	}

	errStr := strings.ToLower(err.Error())
	for _, transient := range []string{"connection refused", "connection reset", "timeout", "temporary failure", "eof"} {
		if strings.Contains(errStr, transient) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
