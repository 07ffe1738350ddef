package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewEnvelope(t *testing.T) {
	payload := map[string]any{"sku": "m5.large"}
	env := NewEnvelope(StateStarted, "r-1", payload)

	if env.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("ID should be generated")
	}
	if env.State != StateStarted {
		t.Errorf("expected STARTED, got %s", env.State)
	}
	if env.Attempt != 0 {
		t.Errorf("expected attempt 0, got %d", env.Attempt)
	}
	if env.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	// Исходный payload не должен разделяться с конвертом
	payload["sku"] = "changed"
	if env.Payload["sku"] != "m5.large" {
		t.Errorf("payload should be copied, got %v", env.Payload["sku"])
	}
}

func TestEnvelope_Next(t *testing.T) {
	env := NewEnvelope(StateStarted, "r-1", map[string]any{"k": "v"})
	env = env.Retry()

	next := env.Next(StateRunning, nil)

	if next.ID == env.ID {
		t.Error("Next should generate a new ID")
	}
	if next.State != StateRunning {
		t.Errorf("expected RUNNING, got %s", next.State)
	}
	if next.SubjectID != "r-1" {
		t.Errorf("subject should be preserved, got %s", next.SubjectID)
	}
	if next.Attempt != 0 {
		t.Errorf("attempt should be reset, got %d", next.Attempt)
	}
	if !next.CreatedAt.Equal(env.CreatedAt) {
		t.Error("CreatedAt should be preserved")
	}
	if next.Payload["k"] != "v" {
		t.Error("payload should be carried over when nil is passed")
	}

	// Мутация нового payload не затрагивает исходный конверт
	next.Payload["k"] = "other"
	if env.Payload["k"] != "v" {
		t.Error("source envelope payload must not change")
	}
}

func TestEnvelope_Next_ReplacesPayload(t *testing.T) {
	env := NewEnvelope(StateStarted, "r-1", map[string]any{"k": "v"})
	next := env.Next(StateCompleted, map[string]any{"price": 1.5})

	if _, ok := next.Payload["k"]; ok {
		t.Error("payload should be replaced")
	}
	if next.Payload["price"] != 1.5 {
		t.Errorf("expected price 1.5, got %v", next.Payload["price"])
	}
}

func TestEnvelope_Retry(t *testing.T) {
	env := NewEnvelope(StateRunning, "r-1", map[string]any{"nested": map[string]any{"a": 1}})
	retry := env.Retry()

	if retry.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", retry.Attempt)
	}
	if retry.ID == env.ID {
		t.Error("Retry should generate a new ID")
	}
	if retry.State != env.State {
		t.Error("Retry should keep state")
	}

	retry.Payload["nested"].(map[string]any)["a"] = 2
	if env.Payload["nested"].(map[string]any)["a"] != 1 {
		t.Error("nested payload should be deep copied")
	}
}

// Повторное выполнение Handler'а строит продолжение с тем же ID.
func TestEnvelope_ContinuationIDIsDeterministic(t *testing.T) {
	env := NewEnvelope(StateStarted, "r-1", map[string]any{"k": "v"})

	first := env.Next(StateRunning, nil)
	again := env.WithPayload("fetched_at", "later").Next(StateRunning, nil)
	if first.ID != again.ID {
		t.Error("same parent and state should yield the same continuation ID")
	}

	if env.Next(StateCompleted, nil).ID == first.ID {
		t.Error("different state should yield a different ID")
	}
	if env.Retry().ID != env.Retry().ID {
		t.Error("Retry ID should be deterministic")
	}
	if env.Retry().ID == env.Next(env.State, nil).ID {
		t.Error("Retry and Next into the same state should differ by attempt")
	}

	// Цепочка самопереходов не повторяет ID
	second := first.Next(StateRunning, nil)
	if second.ID == first.ID || second.ID == env.ID {
		t.Error("self-transition chain should produce fresh IDs")
	}

	other := NewEnvelope(StateStarted, "r-1", map[string]any{"k": "v"})
	if other.Next(StateRunning, nil).ID == first.ID {
		t.Error("different parents should yield different IDs")
	}
}

func TestEnvelope_ContinuationWithoutParentID(t *testing.T) {
	legacy := Envelope{State: StateStarted, SubjectID: "r-1"}

	a := legacy.Next(StateRunning, nil)
	b := legacy.Next(StateRunning, nil)
	if a.ID == uuid.Nil || a.ID == b.ID {
		t.Error("envelope without ID should get random continuation IDs")
	}
}

func TestEnvelope_WithPayload(t *testing.T) {
	env := NewEnvelope(StateRunning, "r-1", nil)
	out := env.WithPayload("error", "boom")

	if out.Payload["error"] != "boom" {
		t.Error("key should be set")
	}
	if env.Payload != nil {
		t.Error("source payload should stay nil")
	}
}

func TestEnvelope_Validate(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want error
	}{
		{"valid", Envelope{State: StateStarted, SubjectID: "r-1"}, nil},
		{"empty state", Envelope{SubjectID: "r-1"}, ErrEmptyState},
		{"empty subject", Envelope{State: StateStarted}, ErrEmptySubject},
		{"negative attempt", Envelope{State: StateStarted, SubjectID: "r-1", Attempt: -1}, ErrNegativeAttempt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	env := NewEnvelope(StateStarted, "r-1", map[string]any{"count": 3})

	body, err := env.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(body), `"subject_id":"r-1"`) {
		t.Errorf("unexpected wire format: %s", body)
	}

	decoded, err := DecodeEnvelope(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.ID != env.ID || decoded.State != env.State || decoded.SubjectID != env.SubjectID {
		t.Errorf("decoded envelope mismatch: %+v", decoded)
	}
	if decoded.PayloadInt("count", 0) != 3 {
		t.Errorf("expected count 3, got %v", decoded.Payload["count"])
	}
}

func TestDecodeEnvelope_MinimalWireFormat(t *testing.T) {
	// Продюсеры без id и created_at допустимы
	body := []byte(`{"state":"STARTED","subject_id":"r-1","attempt":0,"payload":{}}`)

	env, err := DecodeEnvelope(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Age(time.Now()) != 0 {
		t.Error("age without created_at should be 0")
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	bodies := []string{
		`not json`,
		`[]`,
		`null`,
		`{"state":"STARTED"}`,
		`{"subject_id":"r-1"}`,
		`{"state":"STARTED","subject_id":"r-1","attempt":"x"}`,
	}

	for _, body := range bodies {
		_, err := DecodeEnvelope([]byte(body))
		if !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("body %q: expected ErrMalformedEnvelope, got %v", body, err)
		}
	}
}

func TestEnvelope_PayloadHelpers(t *testing.T) {
	env := NewEnvelope(StateStarted, "r-1", map[string]any{
		"name":       "report",
		"count":      float64(7),
		"flag":       true,
		"wait_sec":   0.5,
		"not_before": "2030-01-02T03:04:05Z",
	})

	if env.PayloadString("name", "") != "report" {
		t.Error("PayloadString failed")
	}
	if env.PayloadString("missing", "def") != "def" {
		t.Error("PayloadString default failed")
	}
	if env.PayloadInt("count", 0) != 7 {
		t.Error("PayloadInt failed")
	}
	if !env.PayloadBool("flag") {
		t.Error("PayloadBool failed")
	}
	if env.PayloadDuration("wait_sec", 0) != 500*time.Millisecond {
		t.Error("PayloadDuration failed")
	}
	if ts, ok := env.PayloadTime("not_before"); !ok || ts.Year() != 2030 {
		t.Error("PayloadTime failed")
	}
}

func TestState_IsTerminal(t *testing.T) {
	terminal := []State{StateCompleted, StateError, StateAborted}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StateStarted.IsTerminal() || StateRunning.IsTerminal() {
		t.Error("STARTED and RUNNING should not be terminal")
	}
}
