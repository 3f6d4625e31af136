package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/logger"
)

func newTestLogger(w *bytes.Buffer) *slog.Logger {
	return logger.NewWithWriter("wishlist-test", "debug", logger.FormatJSON, w)
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestRequestLogger_EnrichesContextLogger(t *testing.T) {
	var buf bytes.Buffer

	handler := RequestLogger(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("handler log")
	}))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	ctx = WithAccountID(ctx, "acct-7")
	ctx = trace.ContextWithSpanContext(ctx, sc)
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := lastLine(t, &buf)
	assert.Equal(t, "handler log", entry["msg"])
	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.Equal(t, "acct-7", entry["account_id"])
	assert.Equal(t, traceID.String(), entry["trace_id"])
	assert.Equal(t, spanID.String(), entry["span_id"])
}

func TestRequestLogging_GeneratesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	var seen string

	handler := RequestLogging(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/wishlists", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(CorrelationHeader))

	entry := lastLine(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, float64(http.StatusCreated), entry["status"])
	assert.Equal(t, seen, entry["correlation_id"])
}

func TestRequestLogging_ReusesInboundCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogging(newTestLogger(&buf))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "from-gateway")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "from-gateway", rec.Header().Get(CorrelationHeader))
}

func TestRequestLogging_Levels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/api/v1/wishlists", http.StatusInternalServerError, "ERROR"},
		{"/api/v1/wishlists", http.StatusConflict, "WARN"},
		{"/health/live", http.StatusOK, "DEBUG"},
		{"/metrics", http.StatusOK, "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.path+"/"+tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			handler := RequestLogging(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.level, lastLine(t, &buf)["level"])
		})
	}
}

func TestRecovery_ReturnsInternalError(t *testing.T) {
	var buf bytes.Buffer
	handler := Recovery(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "boom")
}

func TestNoStore(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "no-store, private", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "Authorization", rec.Header().Get("Vary"))
}

func TestStatusRecorder_FlushAndUnwrap(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := newStatusRecorder(inner)
	assert.Same(t, rec, newStatusRecorder(rec))

	require.NoError(t, http.NewResponseController(rec).Flush())
	assert.True(t, inner.Flushed)
	assert.Same(t, inner, rec.Unwrap())

	rec.WriteHeader(http.StatusAccepted)
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusAccepted, rec.status)
}
