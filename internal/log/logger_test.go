package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func reset() {
	logger = nil
	once = *new(sync.Once)
}

func TestSetupWriterJSON(t *testing.T) {
	reset()
	t.Cleanup(reset)

	var buf bytes.Buffer
	SetupWriter(&buf, "DEBUG", "json")
	Debug("visible", "k", "v")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["msg"] != "visible" || out["k"] != "v" {
		t.Errorf("unexpected record %v", out)
	}
}

func TestSetupWriterText(t *testing.T) {
	reset()
	t.Cleanup(reset)

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "text")
	Info("hidden")
	Warn("shown")

	got := buf.String()
	if strings.Contains(got, "hidden") {
		t.Errorf("info record should be filtered at WARN: %q", got)
	}
	if !strings.Contains(got, "msg=shown") {
		t.Errorf("expected text record, got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	reset()
	t.Cleanup(reset)

	tests := []struct {
		name  string
		build func() *slog.Logger
		key   string
		want  string
	}{
		{"component", func() *slog.Logger { return WithComponent("registry") }, "component", "registry"},
		{"slot", func() *slog.Logger { return WithSlot("main") }, "slot", "main"},
		{"job", func() *slog.Logger { return WithJob("job-123") }, "job_id", "job-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger = slog.New(slog.NewJSONHandler(&buf, nil))

			tt.build().Info("hello")

			var out map[string]any
			if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
				t.Fatalf("Failed to decode JSON: %v", err)
			}
			if out[tt.key] != tt.want {
				t.Errorf("Expected %s %q, got %v", tt.key, tt.want, out[tt.key])
			}
		})
	}
}

func TestSpanContextAddsTraceID(t *testing.T) {
	reset()
	t.Cleanup(reset)

	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "job")
	Get().InfoContext(ctx, "inside span")
	span.End()

	traceID := span.SpanContext().TraceID().String()
	if !strings.Contains(buf.String(), traceID) {
		t.Errorf("expected trace id %s in %q", traceID, buf.String())
	}
}
