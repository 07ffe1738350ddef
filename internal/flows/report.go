package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/taskmachine/internal/domain"
	"github.com/shaiso/taskmachine/internal/machine"
	"github.com/shaiso/taskmachine/internal/steps"
)

// ReportWorker — имя типа воркера отчётов.
const ReportWorker = "report"

// Состояния report.
const (
	StateWaiting    domain.State = "WAITING"
	StateRendering  domain.State = "RENDERING"
	StateDelivering domain.State = "DELIVERING"
)

const deliveryService = "delivery"

var deliveryRetry = retryPolicy{
	maxAttempts: 5,
	backoff:     machine.ExponentialBackoff(5*time.Second, 5*time.Minute),
}

// ReportTable строит таблицу report.
func ReportTable() *machine.Table {
	return machine.NewTable(ReportWorker, machine.Merge(
		map[domain.State]machine.Handler{
			domain.StateStarted: abortable(reportStart),
			StateWaiting:        abortable(reportWait),
			StateRendering:      abortable(reportRender),
			StateDelivering:     abortable(reportDeliver),
		},
		machine.Terminal(),
	)).MustCover(
		domain.StateStarted, StateWaiting, StateRendering, StateDelivering,
		domain.StateCompleted, domain.StateError, domain.StateAborted,
	)
}

// abortable переводит задачу в ABORTED, если в payload выставлен abort=true.
func abortable(fn machine.HandlerFunc) machine.Handler {
	return machine.HandlerFunc(func(ctx context.Context, env domain.Envelope, deps *machine.Deps) (machine.Outcome, error) {
		if env.PayloadBool("abort") {
			aborted := env.WithPayload("error", fmt.Sprintf("aborted in %s", env.State))
			return machine.Continue(aborted.Next(domain.StateAborted, nil)), nil
		}
		return fn(ctx, env, deps)
	})
}

func reportStart(_ context.Context, env domain.Envelope, _ *machine.Deps) (machine.Outcome, error) {
	if env.PayloadString("template", "") == "" {
		return fail(env, "template is required"), nil
	}
	return machine.Continue(env.Next(StateWaiting, nil)), nil
}

// reportWait ждёт наступления not_before, не блокируя воркер:
// конверт возвращается в то же состояние через отложенную очередь.
func reportWait(_ context.Context, env domain.Envelope, _ *machine.Deps) (machine.Outcome, error) {
	if notBefore, ok := env.PayloadTime("not_before"); ok {
		if remaining := time.Until(notBefore); remaining > 0 {
			return machine.ContinueAfter(env.Next(StateWaiting, nil), remaining), nil
		}
	}
	return machine.Continue(env.Next(StateRendering, nil)), nil
}

func reportRender(_ context.Context, env domain.Envelope, deps *machine.Deps) (machine.Outcome, error) {
	started := time.Now()

	body, err := steps.Render(env.PayloadString("template", ""), env.Payload)
	if err != nil {
		return fail(env, err.Error()), nil
	}

	deps.Logger.Debug("report rendered",
		"subject_id", env.SubjectID,
		"bytes", len(body),
		"duration", time.Since(started),
	)

	return machine.Continue(env.WithPayload("body", body).Next(StateDelivering, nil)), nil
}

func reportDeliver(ctx context.Context, env domain.Envelope, deps *machine.Deps) (machine.Outcome, error) {
	target := env.PayloadString("deliver_url", deps.Service(deliveryService))
	if target == "" {
		return fail(env, "deliver_url is not set and delivery service is not configured"), nil
	}

	resp, err := steps.HTTPCall(ctx, deps.HTTP, steps.Request{
		Method:  "POST",
		URL:     target,
		Headers: map[string]string{"Content-Type": "text/plain; charset=utf-8", "X-Subject-ID": env.SubjectID},
		Body:    env.PayloadString("body", ""),
	})
	if outcome, done := classify(env, resp, err, deliveryRetry); done {
		return outcome, nil
	}

	return machine.Continue(env.WithPayload("delivered_status", resp.StatusCode).Next(domain.StateCompleted, nil)), nil
}
