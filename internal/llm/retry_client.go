package llm

import (
	"context"

	hermeserrors "hermes/internal/errors"
	"hermes/internal/logging"
)

// retryClient wraps a Client with exponential backoff on transport errors.
type retryClient struct {
	inner  Client
	config hermeserrors.RetryConfig
	logger logging.Logger
}

// NewRetryClient wraps inner so transient failures are retried with backoff.
func NewRetryClient(inner Client, maxRetries int, logger logging.Logger) Client {
	config := hermeserrors.DefaultRetryConfig()
	if maxRetries > 0 {
		config.MaxAttempts = maxRetries
	}
	return NewRetryClientWithConfig(inner, config, logger)
}

// NewRetryClientWithConfig wraps inner with an explicit retry policy.
func NewRetryClientWithConfig(inner Client, config hermeserrors.RetryConfig, logger logging.Logger) Client {
	return &retryClient{inner: inner, config: config, logger: logging.OrNop(logger)}
}

func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return hermeserrors.RetryWithResult(ctx, c.config, c.logger,
		func(ctx context.Context) (*CompletionResponse, error) {
			return c.inner.Complete(ctx, req)
		})
}
