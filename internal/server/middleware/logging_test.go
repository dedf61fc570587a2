package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "ok", status: http.StatusOK, wantLevel: "level=INFO"},
		{name: "client error", status: http.StatusNotFound, wantLevel: "level=WARN"},
		{name: "server error", status: http.StatusBadGateway, wantLevel: "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("hello"))
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/entities/orders", nil)
			w := httptest.NewRecorder()
			LoggingMiddleware(newBufferLogger(&buf))(next).ServeHTTP(w, req)

			out := buf.String()
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, "method=POST")
			assert.Contains(t, out, "path=/api/v1/entities/orders")
			assert.Contains(t, out, "bytes_written=5")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestLoggingMiddleware_DoesNotLogHeaders(t *testing.T) {
	var buf bytes.Buffer
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	LoggingMiddleware(newBufferLogger(&buf))(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.NotContains(t, buf.String(), "secret-token")
}

func TestLoggingWithSkip(t *testing.T) {
	var buf bytes.Buffer
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := LoggingWithSkip(newBufferLogger(&buf), []string{"/api/v1/health"})

	h(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Empty(t, buf.String())

	h(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/entities/jobs", nil))
	assert.Contains(t, buf.String(), "path=/api/v1/entities/jobs")
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}

	_, _, err := rw.Hijack()
	assert.Error(t, err)
	assert.False(t, rw.hijacked)
	assert.NotNil(t, rw.Unwrap())
}
