// Package adapter runs the per-stage provider calls for one entity and
// normalizes each provider response into a model.StageResult.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/profile-cli/internal/model"
	"github.com/sells-group/profile-cli/internal/ratelimit"
	"github.com/sells-group/profile-cli/internal/resilience"
)

// Adapter produces the StageResult for one stage of one entity. Run never
// returns an error: failures come back as a result with Failure set.
type Adapter interface {
	Stage() model.Stage
	Provider() string
	Run(ctx context.Context, req model.EnrichmentRequest) model.StageResult
}

// Caller sends provider calls through the rate limiter, a per-call timeout,
// the provider's circuit breaker and the retry policy, in that order.
type Caller struct {
	limiter  *ratelimit.Limiter
	breakers *resilience.Breakers
	retry    resilience.RetryConfig
}

// NewCaller builds a Caller. A nil breakers registry gets defaults.
func NewCaller(limiter *ratelimit.Limiter, breakers *resilience.Breakers, retry resilience.RetryConfig) *Caller {
	if breakers == nil {
		breakers = resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	return &Caller{limiter: limiter, breakers: breakers, retry: retry}
}

// call runs fn for provider. Every attempt, retries included, takes its own
// rate-limiter slot.
func call[T any](ctx context.Context, c *Caller, provider string, stage model.Stage, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(provider, string(stage))
	}
	cb := c.breakers.Get(provider)

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		var zero T
		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx, provider); err != nil {
				return zero, err
			}
		}

		callCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return resilience.Execute(callCtx, cb, fn)
	})
}

// failure converts a provider error into a failed StageResult.
func failure(ctx context.Context, stage model.Stage, provider string, timeout time.Duration, err error) model.StageResult {
	msg := err.Error()
	switch {
	case ctx.Err() != nil:
		msg = fmt.Sprintf("%s: cancelled: %v", provider, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		msg = fmt.Sprintf("%s: timed out after %s", provider, timeout)
	}
	return model.Failed(stage, resilience.ClassifyError(err), msg)
}

func logger(req model.EnrichmentRequest, stage model.Stage, provider string) *zap.Logger {
	return zap.L().With(
		zap.String("project", req.ProjectID),
		zap.String("entity", req.Name),
		zap.String("stage", string(stage)),
		zap.String("provider", provider),
	)
}
