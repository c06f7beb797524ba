package request

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureID(t *testing.T, header string) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/verify", nil)
	if header != "" {
		req.Header.Set(HeaderRequestID, header)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return captured, w
}

func TestRequestID(t *testing.T) {
	t.Run("generates a UUID", func(t *testing.T) {
		id, w := captureID(t, "")
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Header().Get(HeaderRequestID))
	})

	t.Run("keeps a valid client ID", func(t *testing.T) {
		id, w := captureID(t, "trace.span_1234")
		assert.Equal(t, "trace.span_1234", id)
		assert.Equal(t, id, w.Header().Get(HeaderRequestID))
	})

	t.Run("replaces unsafe client IDs", func(t *testing.T) {
		for _, bad := range []string{"a\nb", "has space", `q"uote`, strings.Repeat("a", MaxRequestIDLength+1)} {
			id, _ := captureID(t, bad)
			assert.NotEqual(t, bad, id)
			assert.Len(t, id, 36)
		}
	})

	t.Run("empty outside middleware", func(t *testing.T) {
		assert.Empty(t, GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
	})
}

func TestRecovery(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := RequestID(Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map")
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verify", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, w.Body.String())
	assert.Contains(t, logs.String(), "panic recovered")
	assert.Contains(t, logs.String(), w.Header().Get(HeaderRequestID))
}

func TestLoggerSkipsQuietPaths(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health/ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))

	for _, path := range []string{"/health", "/metrics"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Empty(t, logs.String())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Contains(t, logs.String(), `"status":503`)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/providers", nil))
	assert.Contains(t, logs.String(), `"path":"/providers"`)
}

func TestContentTypeJSON(t *testing.T) {
	handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := map[string]int{
		"application/json":                http.StatusNoContent,
		"application/json; charset=utf-8": http.StatusNoContent,
		"":                                http.StatusNoContent,
		"text/plain":                      http.StatusUnsupportedMediaType,
	}
	for ct, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, ct)
	}
}

func TestLatencyUsesRoutePattern(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(Latency(m))
	r.Delete("/verify/{provider}/{reference}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/verify/cbe/FT1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/verify/cbe/FT2", nil))

	require.Equal(t, 1, testutil.CollectAndCount(m.EndpointLatency), "one series for both references")
}
