package machine

import (
	"context"

	"github.com/shaiso/taskmachine/internal/domain"
)

// Terminal возвращает стандартные Handler'ы финальных состояний:
// COMPLETED → Complete, ERROR и ABORTED → Fail с причиной из payload["error"].
func Terminal() map[domain.State]Handler {
	fail := HandlerFunc(func(_ context.Context, env domain.Envelope, _ *Deps) (Outcome, error) {
		reason := env.PayloadString("error", "")
		if reason == "" {
			reason = string(env.State)
		}
		return Fail(reason), nil
	})

	return map[domain.State]Handler{
		domain.StateCompleted: HandlerFunc(func(context.Context, domain.Envelope, *Deps) (Outcome, error) {
			return Complete(), nil
		}),
		domain.StateError:   fail,
		domain.StateAborted: fail,
	}
}

// Merge объединяет наборы записей таблицы; последующие перекрывают предыдущие.
func Merge(sets ...map[domain.State]Handler) map[domain.State]Handler {
	out := make(map[domain.State]Handler)
	for _, set := range sets {
		for state, h := range set {
			out[state] = h
		}
	}
	return out
}
