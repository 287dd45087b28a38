package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

// GuardConfig configures the protections around a provider.
type GuardConfig struct {
	// Timeout bounds each attempt. Zero disables the bound.
	Timeout time.Duration

	// Retry is applied to retryable failures, timeouts included.
	Retry dierrors.RetryConfig

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int

	// BreakerFailures consecutive failures open the circuit for BreakerReset.
	// Zero disables the breaker.
	BreakerFailures int
	BreakerReset    time.Duration
}

// DefaultGuardConfig returns the guard defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:         30 * time.Second,
		Retry:           dierrors.DefaultRetryConfig(),
		BreakerFailures: 5,
		BreakerReset:    30 * time.Second,
	}
}

// Guard decorates an Embedder so that every failure surfaces as a typed
// embedding error: provider errors and wrong-sized vectors become
// ErrCodeEmbeddingFailed, attempts exceeding the timeout become
// ErrCodeEmbeddingTimeout, and calls rejected by an open circuit become
// ErrCodeEmbeddingRejected.
type Guard struct {
	inner   Embedder
	cfg     GuardConfig
	limiter *rate.Limiter
	breaker *dierrors.CircuitBreaker
}

// NewGuard wraps inner.
func NewGuard(inner Embedder, cfg GuardConfig) *Guard {
	g := &Guard{inner: inner, cfg: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.BreakerFailures > 0 {
		g.breaker = dierrors.NewCircuitBreaker("embed:"+inner.ModelName(),
			dierrors.WithMaxFailures(cfg.BreakerFailures),
			dierrors.WithResetTimeout(cfg.BreakerReset),
		)
	}
	return g
}

// Embed embeds text under the guard's policy.
func (g *Guard) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := dierrors.RetryWithResult(ctx, g.cfg.Retry, func() ([]float32, error) {
		return g.attempt(ctx, text)
	})
	if err == nil {
		return vec, nil
	}
	if dierrors.IsEmbeddingFailure(err) {
		return nil, err
	}
	return nil, dierrors.EmbeddingFailure("embedding aborted", err)
}

func (g *Guard) attempt(ctx context.Context, text string) ([]float32, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, dierrors.EmbeddingFailure("rate limiter", err)
		}
	}
	if g.breaker == nil {
		return g.call(ctx, text)
	}
	vec, err := dierrors.CircuitCall(g.breaker, func() ([]float32, error) {
		return g.call(ctx, text)
	})
	if errors.Is(err, dierrors.ErrCircuitOpen) {
		return nil, dierrors.New(dierrors.ErrCodeEmbeddingRejected, "embedding provider unavailable", err)
	}
	return vec, err
}

// call runs one provider request. The request runs in its own goroutine so
// that a provider ignoring its context still cannot hold the caller past
// the timeout.
func (g *Guard) call(ctx context.Context, text string) ([]float32, error) {
	callCtx := ctx
	cancel := func() {}
	if g.cfg.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
	}
	defer cancel()

	type result struct {
		vec []float32
		err error
	}
	done := make(chan result, 1)
	go func() {
		vec, err := g.inner.Embed(callCtx, text)
		done <- result{vec, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-callCtx.Done():
		r = result{err: callCtx.Err()}
	}

	if r.err != nil {
		if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, dierrors.New(dierrors.ErrCodeEmbeddingTimeout,
				fmt.Sprintf("embedding exceeded %s", g.cfg.Timeout), r.err)
		}
		return nil, dierrors.EmbeddingFailure("embedding provider error", r.err)
	}
	if len(r.vec) != g.inner.Dimensions() {
		return nil, dierrors.New(dierrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("expected %d dimensions, got %d", g.inner.Dimensions(), len(r.vec)), nil)
	}
	return r.vec, nil
}

// BreakerState reports the circuit state, or closed when disabled.
func (g *Guard) BreakerState() dierrors.State {
	if g.breaker == nil {
		return dierrors.StateClosed
	}
	return g.breaker.State()
}

// Dimensions returns the inner dimension.
func (g *Guard) Dimensions() int {
	return g.inner.Dimensions()
}

// ModelName returns the inner model name.
func (g *Guard) ModelName() string {
	return g.inner.ModelName()
}

// Close closes the inner embedder.
func (g *Guard) Close() error {
	return g.inner.Close()
}
