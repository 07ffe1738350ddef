package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shaiso/taskmachine/internal/config"
)

func testOutput(jsonMode bool) (*Output, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewOutput(jsonMode, &buf, io.Discard), &buf
}

func testClient() *Client {
	return NewClient(config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParsePayload(t *testing.T) {
	payload, err := parsePayload(`{"sku": "A-1", "qty": 2}`, []string{"region=eu", "sku=B-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["sku"] != "B-2" || payload["region"] != "eu" || payload["qty"] != float64(2) {
		t.Errorf("unexpected payload %v", payload)
	}

	if _, err := parsePayload("", []string{"novalue"}); err == nil {
		t.Error("expected error for pair without '='")
	}
	if _, err := parsePayload("", []string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := parsePayload("[1,2]", nil); err == nil {
		t.Error("expected error for non-object JSON")
	}
}

func TestWorkersCmd_JSON(t *testing.T) {
	out, buf := testOutput(true)
	cmd := NewWorkersCmd(func() *Output { return out })
	cmd.SetArgs(nil)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var infos []WorkerInfo
	if err := json.Unmarshal(buf.Bytes(), &infos); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if len(infos) != 2 || infos[0].Name != "pricing" || infos[1].Name != "report" {
		t.Fatalf("unexpected workers %+v", infos)
	}
	if infos[1].Prefetch != 1 {
		t.Errorf("report prefetch should be 1, got %d", infos[1].Prefetch)
	}
}

func TestWorkersCmd_Table(t *testing.T) {
	out, buf := testOutput(false)
	cmd := NewWorkersCmd(func() *Output { return out })
	cmd.SetArgs(nil)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"NAME", "pricing", "FETCHING", "report", "DELIVERING"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output should contain %q:\n%s", want, buf.String())
		}
	}
}

func TestTopologyCmd_Describe(t *testing.T) {
	out, buf := testOutput(false)
	cmd := NewTopologyCmd(testClient, func() *Output { return out })
	cmd.SetArgs([]string{"report"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"report.delayed", "report.delayed.2000", "report.delayed.300000"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output should contain %q:\n%s", want, buf.String())
		}
	}
}

func TestTopologyCmd_UnknownWorker(t *testing.T) {
	out, _ := testOutput(false)
	cmd := NewTopologyCmd(testClient, func() *Output { return out })
	cmd.SetArgs([]string{"nope"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for unknown worker")
	}
}

func TestPublishCmd_UnknownWorker(t *testing.T) {
	out, _ := testOutput(false)
	cmd := NewPublishCmd(testClient, func() *Output { return out })
	cmd.SetArgs([]string{"nope", "s-1"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for unknown worker")
	}
}

// failWriter отказывает в любой записи.
type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestOutput_Table(t *testing.T) {
	out, buf := testOutput(false)

	if err := out.Table([]string{"NAME", "STATE"}, [][]string{{"pricing", "STARTED"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, separator and row, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[1], "----") || !strings.Contains(lines[2], "STARTED") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}

func TestOutput_WriteErrors(t *testing.T) {
	for _, jsonMode := range []bool{false, true} {
		out := NewOutput(jsonMode, failWriter{}, nil)

		if err := out.Print([]string{"A"}, [][]string{{"1"}}, map[string]int{"a": 1}); err == nil {
			t.Errorf("json=%v: expected write error", jsonMode)
		}
	}
}

func TestOutput_JSONEncodeError(t *testing.T) {
	out, _ := testOutput(true)

	if err := out.JSON(map[string]any{"bad": make(chan int)}); err == nil {
		t.Error("expected encode error")
	}
}

func TestWorkersCmd_PropagatesOutputError(t *testing.T) {
	out := NewOutput(false, failWriter{}, nil)
	cmd := NewWorkersCmd(func() *Output { return out })
	cmd.SetArgs(nil)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.Execute(); err == nil {
		t.Error("expected command to fail on output error")
	}
}
