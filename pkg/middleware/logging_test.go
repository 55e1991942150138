package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger_Routes(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		handler   http.HandlerFunc
		wantLevel zapcore.Level
		wantMsg   string
		wantCode  int
		wantBytes int64
	}{
		{
			name:   "health check",
			method: http.MethodGet,
			path:   "/health",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			},
			wantLevel: zap.DebugLevel,
			wantMsg:   "HTTP request",
			wantCode:  http.StatusOK,
			wantBytes: 15,
		},
		{
			name:   "mcp rejects get",
			method: http.MethodGet,
			path:   "/mcp",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Allow", http.MethodPost)
				w.WriteHeader(http.StatusMethodNotAllowed)
			},
			wantLevel: zap.DebugLevel,
			wantMsg:   "HTTP request",
			wantCode:  http.StatusMethodNotAllowed,
		},
		{
			name:   "degraded health",
			method: http.MethodGet,
			path:   "/health",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
			},
			wantLevel: zap.WarnLevel,
			wantMsg:   "HTTP request failed",
			wantCode:  http.StatusServiceUnavailable,
			wantBytes: int64(len("catalog unavailable\n")),
		},
		{
			name:   "mcp server error",
			method: http.MethodPost,
			path:   "/mcp",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantLevel: zap.WarnLevel,
			wantMsg:   "HTTP request failed",
			wantCode:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			handler := RequestLogger(zap.New(core))(tt.handler)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, tt.wantMsg, entry.Message)

			fields := entry.ContextMap()
			assert.Equal(t, tt.method, fields["method"])
			assert.Equal(t, tt.path, fields["path"])
			assert.Equal(t, int64(tt.wantCode), fields["status"])
			assert.Equal(t, tt.wantBytes, fields["bytes"])
			assert.Contains(t, fields, "duration")
			assert.Contains(t, fields, "remote_addr")
		})
	}
}

func TestRequestLogger_InfoLevelHidesSuccessfulRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Zero(t, logs.Len(), "successful requests log at debug only")
}

func TestRequestLogger_NilLoggerReturnsHandler(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	RequestLogger(nil)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, 1, calls)
}

func TestResponseWriter(t *testing.T) {
	tests := []struct {
		name        string
		write       func(rw *responseWriter)
		wantStatus  int
		wantWritten int
	}{
		{
			name:        "body without header defaults to 200",
			write:       func(rw *responseWriter) { _, _ = rw.Write([]byte("pong")) },
			wantStatus:  http.StatusOK,
			wantWritten: 4,
		},
		{
			name: "explicit status before body",
			write: func(rw *responseWriter) {
				rw.WriteHeader(http.StatusAccepted)
				_, _ = rw.Write([]byte("{}"))
			},
			wantStatus:  http.StatusAccepted,
			wantWritten: 2,
		},
		{
			name: "second status is dropped",
			write: func(rw *responseWriter) {
				rw.WriteHeader(http.StatusBadRequest)
				rw.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "status after body is dropped",
			write: func(rw *responseWriter) {
				_, _ = rw.Write([]byte("partial"))
				rw.WriteHeader(http.StatusServiceUnavailable)
			},
			wantStatus:  http.StatusOK,
			wantWritten: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

			tt.write(rw)

			assert.True(t, rw.headerWritten)
			assert.Equal(t, tt.wantStatus, rw.statusCode)
			assert.Equal(t, tt.wantStatus, rec.Code, "underlying writer sees the same status")
			assert.Equal(t, tt.wantWritten, rw.written)
		})
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	var w http.ResponseWriter = rw
	flusher, ok := w.(http.Flusher)
	require.True(t, ok, "streamable MCP responses need a flusher")
	flusher.Flush()
	assert.True(t, rec.Flushed)
}
