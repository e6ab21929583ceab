// Package retry runs fallible operations under a bounded attempt count with a
// randomized delay between attempts.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
	"github.com/JakeFAU/jobpost-harvester/internal/telemetry"
)

// ErrExhausted wraps the last failure once every attempt failed.
var ErrExhausted = errors.New("retries exhausted")

// Sleeper blocks between attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Policy bounds attempts and the delay drawn before each retry.
type Policy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// Jittered returns a policy sleeping uniformly within [minDelay, maxDelay].
func Jittered(maxAttempts int, minDelay, maxDelay time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, MinDelay: minDelay, MaxDelay: maxDelay}
}

// Fixed returns a policy sleeping exactly delay between attempts.
func Fixed(maxAttempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, MinDelay: delay, MaxDelay: delay}
}

// Validate rejects policies that cannot run.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be > 0")
	}
	if p.MinDelay < 0 {
		return fmt.Errorf("min delay must be >= 0")
	}
	if p.MaxDelay < p.MinDelay {
		return fmt.Errorf("max delay must be >= min delay")
	}
	return nil
}

// Delay returns the wait before the next attempt.
func (p Policy) Delay() time.Duration {
	return Uniform(p.MinDelay, p.MaxDelay)
}

// Uniform draws a duration uniformly from [lo, hi].
func Uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(hi-lo)+1))
	if err != nil {
		return lo + (hi-lo)/2
	}
	return lo + time.Duration(n.Int64())
}

// Runner applies a Policy to operations.
type Runner struct {
	policy  Policy
	sleeper Sleeper
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New builds a Runner. A policy with no attempts runs operations once.
func New(policy Policy, sleeper Sleeper, logger *zap.Logger) *Runner {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{policy: policy, sleeper: sleeper, logger: logger}
}

// WithTracer makes r record spans with t instead of the global tracer.
func (r *Runner) WithTracer(t trace.Tracer) *Runner {
	r.tracer = t
	return r
}

func (r *Runner) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	t := r.tracer
	if t == nil {
		t = telemetry.Tracer()
	}
	return t.Start(ctx, operation, trace.WithAttributes(
		attribute.Int("retry.max_attempts", r.policy.MaxAttempts),
	))
}

// Policy returns the policy applied by r.
func (r *Runner) Policy() Policy {
	return r.policy
}

// Do runs fn until it succeeds or attempts are exhausted, returning the last failure
// wrapped with ErrExhausted.
func (r *Runner) Do(ctx context.Context, operation string, fn func(context.Context) error) (err error) {
	ctx, span := r.startSpan(ctx, operation)
	attempts := 0
	defer func() {
		telemetry.End(span, err, attribute.Int("retry.attempts", attempts))
	}()

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		attempts = attempt
		r.logger.Info("attempt starting",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
		)
		lastErr = fn(ctx)
		if lastErr == nil {
			metrics.ObserveRetryAttempt(operation, "ok")
			r.logger.Info("attempt succeeded", zap.String("operation", operation), zap.Int("attempt", attempt))
			return nil
		}
		metrics.ObserveRetryAttempt(operation, "error")
		span.AddEvent("attempt failed", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("error", lastErr.Error()),
		))
		r.logger.Warn("attempt failed",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Error(lastErr),
		)
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		}
		if attempt == r.policy.MaxAttempts {
			break
		}
		if err := r.sleep(ctx); err != nil {
			return fmt.Errorf("%s: wait before retry: %w", operation, err)
		}
	}
	r.logger.Error("all attempts exhausted",
		zap.String("operation", operation),
		zap.Int("max_attempts", r.policy.MaxAttempts),
		zap.Error(lastErr),
	)
	return fmt.Errorf("%s: %w after %d attempts: %w", operation, ErrExhausted, r.policy.MaxAttempts, lastErr)
}

func (r *Runner) sleep(ctx context.Context) error {
	delay := r.policy.Delay()
	r.logger.Debug("sleeping before retry", zap.Duration("delay", delay))
	if r.sleeper == nil {
		return nil
	}
	return r.sleeper.Sleep(ctx, delay)
}

// Value runs fn under r and returns its result.
func Value[T any](ctx context.Context, r *Runner, operation string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
