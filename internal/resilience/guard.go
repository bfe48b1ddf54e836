// Package resilience wraps calls to the remote store with a connectivity
// pre-check, a per-attempt timeout and bounded exponential-backoff retry.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

var (
	ErrNoNetwork = errors.New("resilience: no network connection")
	ErrTimeout   = errors.New("resilience: operation timed out")
)

// Reachability reports the last known connectivity state.
type Reachability interface {
	Online() bool
}

type Policy struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultPolicy matches the remote settings used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
	}
}

// Guard runs operations under a Policy. Errors matching one of the permanent
// errors (via errors.Is) propagate immediately.
type Guard struct {
	policy    Policy
	net       Reachability
	permanent []error
	logger    *log.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New builds a Guard. A nil net is treated as always online.
func New(policy Policy, net Reachability, logger *log.Logger, permanent ...error) *Guard {
	if logger == nil {
		logger = log.Default()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Guard{
		policy:    policy,
		net:       net,
		permanent: permanent,
		logger:    logger,
		sleep:     sleepContext,
	}
}

func (g *Guard) Policy() Policy {
	return g.policy
}

func (g *Guard) online() bool {
	return g.net == nil || g.net.Online()
}

func (g *Guard) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNoNetwork) {
		return false
	}
	for _, p := range g.permanent {
		if errors.Is(err, p) {
			return false
		}
	}
	return true
}

// Do runs op until it succeeds, fails permanently or the retries run out.
func (g *Guard) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := Call(ctx, g, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Call is Do for operations that produce a value.
func Call[T any](ctx context.Context, g *Guard, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !g.online() {
		return zero, fmt.Errorf("%s: %w", name, ErrNoNetwork)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		v, err := attemptOnce(ctx, g.policy.Timeout, op)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !g.retryable(err) {
			return zero, fmt.Errorf("%s: %w", name, err)
		}
		if !g.online() {
			return zero, fmt.Errorf("%s: %w: %w", name, ErrNoNetwork, err)
		}
		if attempt >= g.policy.MaxRetries {
			break
		}

		delay := g.policy.BaseDelay * time.Duration(1<<attempt)
		g.logger.Printf("[warn] %s failed (attempt %d/%d), retrying in %s: %v",
			name, attempt+1, g.policy.MaxRetries+1, delay, err)
		if err := g.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: %w", name, err)
		}
	}
	return zero, fmt.Errorf("%s: %w", name, lastErr)
}

// CallOr returns fallback instead of failing when the operation times out.
// Every other failure is returned as from Call.
func CallOr[T any](ctx context.Context, g *Guard, name string, fallback T, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := Call(ctx, g, name, op)
	if errors.Is(err, ErrTimeout) {
		g.logger.Printf("[warn] %s timed out, using fallback", name)
		return fallback, nil
	}
	return v, err
}

type result[T any] struct {
	v   T
	err error
}

// attemptOnce abandons the wait when the timeout fires. The operation keeps
// running in its goroutine and its result is dropped.
func attemptOnce[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := op(attemptCtx)
		done <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, ErrTimeout
		}
		return r.v, r.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, ErrTimeout
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
