package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "genip", func(context.Context) string { return "abc123" })

	log.Info(context.Background(), "wallet connected", "address", "0x1234", "chain_id", 1315)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	rec := lines[0]
	if rec["msg"] != "wallet connected" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["service"] != "genip" {
		t.Errorf("service = %v", rec["service"])
	}
	if rec["trace_id"] != "abc123" {
		t.Errorf("trace_id = %v", rec["trace_id"])
	}
	if rec["address"] != "0x1234" {
		t.Errorf("address = %v", rec["address"])
	}
	src, _ := rec["source"].(string)
	if !strings.Contains(src, "logger_test.go") {
		t.Errorf("source = %q, want caller file", src)
	}
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "genip", nil)

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")
	log.Error(context.Background(), "shown too")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if _, ok := lines[0]["trace_id"]; ok {
		t.Error("trace_id should be omitted without a span")
	}
}

func TestShortFile(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/a/b/c/file.go", "c/file.go"},
		{"file.go", "file.go"},
		{"b/file.go", "b/file.go"},
	}
	for _, tt := range tests {
		if got := shortFile(tt.in); got != tt.want {
			t.Errorf("shortFile(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
