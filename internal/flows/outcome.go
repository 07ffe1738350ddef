package flows

import (
	"github.com/shaiso/taskmachine/internal/domain"
	"github.com/shaiso/taskmachine/internal/machine"
	"github.com/shaiso/taskmachine/internal/steps"
)

// retryPolicy — ограничение повторов для временных ошибок downstream-сервиса.
type retryPolicy struct {
	maxAttempts int
	backoff     machine.Backoff
}

// fail переводит задачу в ERROR с причиной в payload.
func fail(env domain.Envelope, reason string) machine.Outcome {
	return machine.Continue(env.WithPayload("error", reason).Next(domain.StateError, nil))
}

// classify разбирает результат HTTP-вызова.
//
// done == false означает успешный ответ. Иначе outcome — повтор
// (временная ошибка) или переход в ERROR.
func classify(env domain.Envelope, resp *steps.Response, err error, policy retryPolicy) (outcome machine.Outcome, done bool) {
	if err == nil && resp.Err() == nil {
		return machine.Outcome{}, false
	}

	cause := err
	if cause == nil {
		cause = resp.Err()
	}

	if steps.IsTransient(resp, err) {
		return machine.RetryOrFail(env, cause, policy.maxAttempts, policy.backoff), true
	}
	return fail(env, cause.Error()), true
}
