package flows

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shaiso/taskmachine/internal/domain"
	"github.com/shaiso/taskmachine/internal/machine"
	"github.com/shaiso/taskmachine/internal/steps"
)

// PricingWorker — имя типа воркера цен.
const PricingWorker = "pricing"

// Состояния pricing.
const (
	StateFetching domain.State = "FETCHING"
)

const pricingService = "pricing"

var pricingRetry = retryPolicy{
	maxAttempts: 5,
	backoff:     machine.LinearBackoff(2*time.Second, time.Minute),
}

// PricingTable строит таблицу pricing.
func PricingTable() *machine.Table {
	return machine.NewTable(PricingWorker, machine.Merge(
		map[domain.State]machine.Handler{
			domain.StateStarted: machine.HandlerFunc(pricingStart),
			StateFetching:       machine.HandlerFunc(pricingFetch),
		},
		machine.Terminal(),
	)).MustCover(domain.StateStarted, StateFetching, domain.StateCompleted, domain.StateError)
}

// pricingStart проверяет вход и выбирает адрес сервиса цен.
func pricingStart(_ context.Context, env domain.Envelope, deps *machine.Deps) (machine.Outcome, error) {
	sku := env.PayloadString("sku", "")
	region := env.PayloadString("region", "")
	if sku == "" || region == "" {
		return fail(env, "sku and region are required"), nil
	}

	priceURL := env.PayloadString("price_url", deps.Service(pricingService))
	if priceURL == "" {
		return fail(env, "price_url is not set and pricing service is not configured"), nil
	}

	return machine.Continue(env.WithPayload("price_url", priceURL).Next(StateFetching, nil)), nil
}

// pricingFetch запрашивает цену.
func pricingFetch(ctx context.Context, env domain.Envelope, deps *machine.Deps) (machine.Outcome, error) {
	sku := env.PayloadString("sku", "")
	if sku == "" {
		// Нечего запрашивать: считаем работу уже сделанной
		return machine.Complete(), nil
	}

	target, err := url.Parse(env.PayloadString("price_url", ""))
	if err != nil {
		return fail(env, fmt.Sprintf("invalid price_url: %v", err)), nil
	}
	q := target.Query()
	q.Set("sku", sku)
	q.Set("region", env.PayloadString("region", ""))
	target.RawQuery = q.Encode()

	resp, err := steps.HTTPCall(ctx, deps.HTTP, steps.Request{URL: target.String()})
	if outcome, done := classify(env, resp, err, pricingRetry); done {
		return outcome, nil
	}

	body, ok := resp.Body.(map[string]any)
	if !ok {
		return fail(env, "pricing response is not a JSON object"), nil
	}
	if !validPrice(body["price"]) {
		return fail(env, fmt.Sprintf("pricing response has no valid price: %v", body["price"])), nil
	}

	next := env.
		WithPayload("price", body["price"]).
		WithPayload("currency", body["currency"]).
		WithPayload("fetched_at", time.Now().UTC().Format(time.RFC3339))

	deps.Logger.Debug("price fetched", "subject_id", env.SubjectID, "sku", sku, "price", body["price"])

	return machine.Continue(next.Next(domain.StateCompleted, nil)), nil
}

// validPrice принимает цену числом или непустой строкой.
func validPrice(v any) bool {
	switch p := v.(type) {
	case float64:
		return true
	case string:
		return p != ""
	default:
		return false
	}
}
