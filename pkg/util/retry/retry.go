package retry

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrAttemptsExhausted is returned by Do when no attempt produced an
// accepted result.
var ErrAttemptsExhausted = errors.New("attempts exhausted")

// Policy retries an operation a fixed number of times with a fixed pause
// between attempts. An attempt yields an exit code; Accept decides whether
// that code ends the loop successfully.
type Policy struct {
	Attempts int
	Backoff  time.Duration
	Accept   func(code int) bool
}

// Outcome describes the last attempt made by Do.
type Outcome struct {
	Attempts int
	Code     int
}

// ZeroExit accepts only exit code 0.
func ZeroExit(code int) bool {
	return code == 0
}

// ExitCodes accepts any of the given codes.
func ExitCodes(codes ...int) func(int) bool {
	return func(code int) bool {
		for _, c := range codes {
			if c == code {
				return true
			}
		}
		return false
	}
}

// Accepts applies Accept, defaulting to ZeroExit.
func (p Policy) Accepts(code int) bool {
	if p.Accept == nil {
		return ZeroExit(code)
	}
	return p.Accept(code)
}

// Do calls attempt until Accept returns true for its result, the attempts
// are used up or ctx is done. attempt receives the 1-based attempt number.
// The pause happens between attempts only, never after the last one.
func (p Policy) Do(ctx context.Context, attempt func(n int) int) (Outcome, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var out Outcome
	backoff := wait.Backoff{
		Duration: p.Backoff,
		Factor:   1,
		Steps:    attempts,
	}
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(context.Context) (bool, error) {
		out.Attempts++
		out.Code = attempt(out.Attempts)
		return p.Accepts(out.Code), nil
	})

	switch {
	case err == nil:
		return out, nil
	case ctx.Err() != nil:
		return out, ctx.Err()
	case out.Attempts >= attempts:
		return out, ErrAttemptsExhausted
	default:
		return out, errors.Wrap(err, "retry")
	}
}
