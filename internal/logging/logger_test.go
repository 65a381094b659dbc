package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromContext_AttachesTraceID(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")
	t.Cleanup(func() { Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")) })

	ctx := WithTraceID(context.Background(), "abc123")
	FromContext(ctx).Info("hello")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["trace_id"] != "abc123" {
		t.Errorf("trace_id = %v", line["trace_id"])
	}
	if line["service"] != "afd-translator" {
		t.Errorf("service = %v", line["service"])
	}
}

func TestMiddleware(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(TraceHeader, "given-id")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if seen != "given-id" || w.Header().Get(TraceHeader) != "given-id" {
		t.Errorf("seen = %q, header = %q", seen, w.Header().Get(TraceHeader))
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	if len(seen) != 32 || w.Header().Get(TraceHeader) != seen {
		t.Errorf("generated id = %q, header = %q", seen, w.Header().Get(TraceHeader))
	}
}
