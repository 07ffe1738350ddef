package flows

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/taskmachine/internal/domain"
	"github.com/shaiso/taskmachine/internal/machine"
)

func testDeps(services map[string]string) *machine.Deps {
	return &machine.Deps{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		HTTP:     &http.Client{Timeout: 5 * time.Second},
		Services: services,
	}
}

func execute(t *testing.T, table *machine.Table, env domain.Envelope, deps *machine.Deps) machine.Outcome {
	t.Helper()
	h, err := table.Lookup(env.State)
	if err != nil {
		t.Fatalf("lookup %s: %v", env.State, err)
	}
	out, err := h.Execute(context.Background(), env, deps)
	if err != nil {
		t.Fatalf("execute %s: %v", env.State, err)
	}
	if err := out.Valid(); err != nil {
		t.Fatalf("invalid outcome: %v", err)
	}
	return out
}

// --- Registry Tests ---

func TestLookup(t *testing.T) {
	def, err := Lookup("pricing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Prefetch != 50 || def.Build().Name() != "pricing" {
		t.Errorf("unexpected definition %+v", def)
	}

	def, _ = Lookup("report")
	if def.Prefetch != 1 {
		t.Errorf("report should be prefetch 1, got %d", def.Prefetch)
	}

	if _, err := Lookup("nope"); !errors.Is(err, ErrUnknownWorker) {
		t.Errorf("expected ErrUnknownWorker, got %v", err)
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 2 || names[0] != "pricing" || names[1] != "report" {
		t.Errorf("unexpected names %v", names)
	}
}

// --- Pricing Tests ---

func TestPricing_HappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sku") != "A-1" || r.URL.Query().Get("region") != "eu" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"price": 9.99, "currency": "EUR"}`))
	}))
	defer server.Close()

	table := PricingTable()
	deps := testDeps(map[string]string{"pricing": server.URL})

	env := domain.NewEnvelope(domain.StateStarted, "A-1", map[string]any{"sku": "A-1", "region": "eu"})

	out := execute(t, table, env, deps)
	if out.Kind() != machine.KindContinue || out.Next().State != StateFetching {
		t.Fatalf("expected continue to FETCHING, got %s", out)
	}
	if out.Next().PayloadString("price_url", "") != server.URL {
		t.Error("price_url should fall back to pricing service")
	}

	out = execute(t, table, out.Next(), deps)
	if out.Next().State != domain.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", out)
	}
	if out.Next().Payload["price"] != 9.99 || out.Next().Payload["currency"] != "EUR" {
		t.Errorf("price should be in payload: %v", out.Next().Payload)
	}

	out = execute(t, table, out.Next(), deps)
	if out.Kind() != machine.KindComplete {
		t.Errorf("expected Complete, got %s", out)
	}
}

func TestPricing_StartValidation(t *testing.T) {
	table := PricingTable()

	out := execute(t, table, domain.NewEnvelope(domain.StateStarted, "x", map[string]any{"sku": "A-1"}), testDeps(nil))
	if out.Next().State != domain.StateError {
		t.Errorf("missing region should go to ERROR, got %s", out)
	}

	out = execute(t, table, domain.NewEnvelope(domain.StateStarted, "x", map[string]any{"sku": "A-1", "region": "eu"}), testDeps(nil))
	if out.Next().State != domain.StateError {
		t.Errorf("missing price_url should go to ERROR, got %s", out)
	}

	out = execute(t, table, out.Next(), testDeps(nil))
	if out.Kind() != machine.KindFail || out.Reason() == "" {
		t.Errorf("ERROR should fail with reason, got %s", out)
	}
}

func TestPricing_FetchWithoutSkuCompletes(t *testing.T) {
	env := domain.NewEnvelope(StateFetching, "x", nil)
	out := execute(t, PricingTable(), env, testDeps(nil))
	if out.Kind() != machine.KindComplete {
		t.Errorf("expected Complete, got %s", out)
	}
}

func TestPricing_TransientErrorRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	table := PricingTable()
	env := domain.NewEnvelope(StateFetching, "A-1", map[string]any{"sku": "A-1", "region": "eu", "price_url": server.URL})

	// Попытки 0..3 — повтор того же состояния с задержкой
	for i := 0; i < 4; i++ {
		out := execute(t, table, env, testDeps(nil))
		if !out.Delayed() || out.Next().State != StateFetching {
			t.Fatalf("attempt %d: expected delayed retry, got %s", i, out)
		}
		if out.Next().Attempt != env.Attempt+1 {
			t.Fatalf("attempt should increase")
		}
		if out.Next().ID == env.ID {
			t.Fatal("retry should have a new envelope id")
		}
		env = out.Next()
	}

	// Последняя попытка — ERROR
	out := execute(t, table, env, testDeps(nil))
	if out.Next().State != domain.StateError {
		t.Fatalf("expected ERROR after exhausted retries, got %s", out)
	}
	if out.Next().PayloadString("failed_state", "") != string(StateFetching) {
		t.Error("failed_state should be recorded")
	}
	if calls.Load() != 5 {
		t.Errorf("expected 5 calls, got %d", calls.Load())
	}
}

func TestPricing_ClientErrorFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	env := domain.NewEnvelope(StateFetching, "A-1", map[string]any{"sku": "A-1", "region": "eu", "price_url": server.URL})
	out := execute(t, PricingTable(), env, testDeps(nil))
	if out.Delayed() || out.Next().State != domain.StateError {
		t.Errorf("4xx should go to ERROR without retry, got %s", out)
	}
}

func TestPricing_InvalidResponseFails(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"not json", "text/plain", "9.99"},
		{"array", "application/json", `[9.99]`},
		{"missing price", "application/json", `{"currency": "EUR"}`},
		{"null price", "application/json", `{"price": null}`},
		{"object price", "application/json", `{"price": {"amount": 9.99}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			env := domain.NewEnvelope(StateFetching, "A-1", map[string]any{"sku": "A-1", "region": "eu", "price_url": server.URL})
			out := execute(t, PricingTable(), env, testDeps(nil))
			if out.Delayed() || out.Next().State != domain.StateError {
				t.Errorf("expected ERROR, got %s", out)
			}
		})
	}
}

func TestValidPrice(t *testing.T) {
	if !validPrice(9.99) || !validPrice("9.99") {
		t.Error("number and numeric string should be valid")
	}
	if validPrice(nil) || validPrice("") || validPrice(map[string]any{}) {
		t.Error("nil, empty string and object should be invalid")
	}
}

// --- Report Tests ---

func TestReport_HappyPath(t *testing.T) {
	var delivered string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-Subject-ID") != "r-1" {
			t.Errorf("expected subject header")
		}
		b, _ := io.ReadAll(r.Body)
		delivered = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	table := ReportTable()
	deps := testDeps(map[string]string{"delivery": server.URL})

	env := domain.NewEnvelope(domain.StateStarted, "r-1", map[string]any{
		"template": "Report for {{ .customer | upper }}",
		"customer": "acme",
	})

	want := []domain.State{StateWaiting, StateRendering, StateDelivering, domain.StateCompleted}
	for _, state := range want {
		out := execute(t, table, env, deps)
		if out.Kind() != machine.KindContinue || out.Next().State != state {
			t.Fatalf("from %s: expected continue to %s, got %s", env.State, state, out)
		}
		env = out.Next()
	}

	if delivered != "Report for ACME" {
		t.Errorf("unexpected delivered body %q", delivered)
	}
	if env.PayloadInt("delivered_status", 0) != http.StatusNoContent {
		t.Errorf("delivered_status should be recorded: %v", env.Payload)
	}

	if out := execute(t, table, env, deps); out.Kind() != machine.KindComplete {
		t.Errorf("expected Complete, got %s", out)
	}
}

func TestReport_WaitingNotBefore(t *testing.T) {
	notBefore := time.Now().Add(90 * time.Second).UTC().Format(time.RFC3339)
	env := domain.NewEnvelope(StateWaiting, "r-1", map[string]any{"template": "x", "not_before": notBefore})

	out := execute(t, ReportTable(), env, testDeps(nil))
	if !out.Delayed() || out.Next().State != StateWaiting {
		t.Fatalf("expected delayed self-continuation, got %s", out)
	}
	if out.Delay() <= 0 || out.Delay() > 90*time.Second {
		t.Errorf("unexpected delay %v", out.Delay())
	}

	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	env = domain.NewEnvelope(StateWaiting, "r-1", map[string]any{"template": "x", "not_before": past})
	out = execute(t, ReportTable(), env, testDeps(nil))
	if out.Delayed() || out.Next().State != StateRendering {
		t.Errorf("past not_before should proceed to RENDERING, got %s", out)
	}
}

func TestReport_Abort(t *testing.T) {
	table := ReportTable()
	for _, state := range []domain.State{domain.StateStarted, StateWaiting, StateRendering, StateDelivering} {
		env := domain.NewEnvelope(state, "r-1", map[string]any{"abort": true})
		out := execute(t, table, env, testDeps(nil))
		if out.Next().State != domain.StateAborted {
			t.Errorf("%s: expected ABORTED, got %s", state, out)
		}

		out = execute(t, table, out.Next(), testDeps(nil))
		if out.Kind() != machine.KindFail {
			t.Errorf("ABORTED should fail, got %s", out)
		}
	}
}

func TestReport_RenderErrorFails(t *testing.T) {
	env := domain.NewEnvelope(StateRendering, "r-1", map[string]any{"template": "{{ .broken "})
	out := execute(t, ReportTable(), env, testDeps(nil))
	if out.Next().State != domain.StateError {
		t.Errorf("expected ERROR, got %s", out)
	}
}

func TestReport_StartRequiresTemplate(t *testing.T) {
	out := execute(t, ReportTable(), domain.NewEnvelope(domain.StateStarted, "r-1", nil), testDeps(nil))
	if out.Next().State != domain.StateError {
		t.Errorf("expected ERROR, got %s", out)
	}
}

func TestReport_DeliveryRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	env := domain.NewEnvelope(StateDelivering, "r-1", map[string]any{"body": "x", "deliver_url": server.URL})
	out := execute(t, ReportTable(), env, testDeps(nil))
	if !out.Delayed() || out.Delay() != 5*time.Second {
		t.Errorf("expected retry after 5s, got %s", out)
	}
}
