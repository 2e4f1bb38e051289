package core

import (
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainguard/internal/config"
	"rainguard/internal/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(&config.Config{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

func TestRequestIDMiddlewareGenerates(t *testing.T) {
	var captured string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = types.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, captured)
	assert.Equal(t, captured, w.Header().Get("X-Request-Id"))
}

func TestRequestIDMiddlewarePropagates(t *testing.T) {
	var captured string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = types.GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "client-supplied")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, "client-supplied", captured)
	assert.Equal(t, "client-supplied", w.Header().Get("X-Request-Id"))
}

func TestRecovererWrites500JSON(t *testing.T) {
	s := newTestServer(t)
	handler := s.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), string(types.ErrCodeInternalUnexpected))
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestContextTimeoutMiddlewareSetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	handler := ContextTimeoutMiddleware(5 * time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)
	handler := s.SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

type recordedRequest struct {
	method, route, status string
	duration              time.Duration
}

type fakeCollector struct {
	requests []recordedRequest
}

func (f *fakeCollector) RecordRequest(method, route, status string, duration time.Duration) {
	f.requests = append(f.requests, recordedRequest{method, route, status, duration})
}

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	s := newTestServer(t)
	collector := &fakeCollector{}
	s.Metrics = collector

	s.Router().Use(s.MetricsMiddleware)
	s.Router().Get("/v1/sessions/{sessionID}/policy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/abc/policy", nil))

	require.Len(t, collector.requests, 1)
	assert.Equal(t, "GET", collector.requests[0].method)
	assert.Equal(t, "/v1/sessions/{sessionID}/policy", collector.requests[0].route)
	assert.Equal(t, "404", collector.requests[0].status)
}

func TestMetricsMiddlewareNilCollectorPassesThrough(t *testing.T) {
	s := newTestServer(t)
	called := false
	handler := s.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestMountRoutesCompressesResponses(t *testing.T) {
	s := newTestServer(t)
	payload := strings.Repeat("rainfall ", 1024)
	s.V1RouteRegistrars = append(s.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(payload))
		})
	})
	s.MountRoutes()

	r := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	decoded, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, payload, string(decoded))
}

type slowProbe struct{}

func (slowProbe) Name() string { return "slow" }
func (slowProbe) Check(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type okProbe struct{}

func (okProbe) Name() string                    { return "database" }
func (okProbe) Check(ctx context.Context) error { return nil }

func TestHandleHealthAllHealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{okProbe{}}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":{"status":"healthy"}`)
}

func TestHandleHealthNoProbes(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleHealthUnhealthyProbe(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{okProbe{}, slowProbe{}}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)
}
