package fetch

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"
)

// retryPolicy implements jittered exponential backoff over transient
// failures: timeouts, network errors, 429 and 5xx responses.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
}

func newRetryPolicy(maxRetries int, base, max time.Duration, multiplier float64) *retryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if max <= 0 {
		max = 5 * time.Second
	}
	if multiplier <= 1 {
		multiplier = 2
	}
	return &retryPolicy{maxRetries: maxRetries, baseDelay: base, maxDelay: max, multiplier: multiplier}
}

// shouldRetry decides whether another attempt is allowed for the error.
// attempt is zero-based: attempt 0 is the first try. Per-attempt timeouts
// carry context.DeadlineExceeded in their chain and stay retryable; only
// the caller's own context ends the budget early.
func (p *retryPolicy) shouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case KindTimeout, KindNetwork:
			return true
		case KindHTTPStatus:
			return fe.Status == 429 || fe.Status >= 500
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// backoff returns the wait before the next attempt: half the capped
// exponential delay plus random jitter up to the other half.
func (p *retryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(p.multiplier, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
