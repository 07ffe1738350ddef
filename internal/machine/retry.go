package machine

import (
	"fmt"
	"time"

	"github.com/shaiso/taskmachine/internal/domain"
)

// Backoff вычисляет задержку перед попыткой attempt (начиная с 1).
type Backoff func(attempt int) time.Duration

// LinearBackoff: delay = step * attempt, ограничено max.
func LinearBackoff(step, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		delay := step * time.Duration(attempt)
		if max > 0 && delay > max {
			delay = max
		}
		return delay
	}
}

// ExponentialBackoff: delay = initial * 2^(attempt-1), ограничено max.
func ExponentialBackoff(initial, max time.Duration) Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 5 * time.Minute
	}
	return func(attempt int) time.Duration {
		delay := initial
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= max {
				return max
			}
		}
		if delay > max {
			delay = max
		}
		return delay
	}
}

// RetryOrFail — политика ограниченного retry для Handler'ов.
//
// Пока не исчерпано maxAttempts попыток, возвращает ContinueAfter с
// конвертом Retry() того же состояния. Иначе — Continue в ERROR
// с причиной в payload ("error", "failed_state").
func RetryOrFail(env domain.Envelope, cause error, maxAttempts int, backoff Backoff) Outcome {
	next := env.Attempt + 1
	if next < maxAttempts {
		return ContinueAfter(env.Retry(), backoff(next))
	}

	reason := fmt.Sprintf("%v: %v", ErrRetryExhausted, cause)
	failed := env.WithPayload("error", reason).WithPayload("failed_state", string(env.State))
	return Continue(failed.Next(domain.StateError, nil))
}
