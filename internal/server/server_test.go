package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/breaker"
	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/ratelimit"
	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/recovery"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGate(t *testing.T) *ratelimit.Gate {
	t.Helper()
	res, err := ratelimit.NewResolver(map[string]string{"mood": "2 per minute"}, "5 per minute", nil)
	require.NoError(t, err)
	gate, err := ratelimit.NewGate(ratelimit.NewLocalStore(),
		ratelimit.WithResolver(res),
		ratelimit.WithLogger(quietLogger()))
	require.NoError(t, err)
	return gate
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *breaker.Registry, *recovery.Coordinator) {
	t.Helper()
	reg := breaker.NewRegistry(breaker.WithRegistryLogger(quietLogger()))
	coord := recovery.New(recovery.WithLogger(quietLogger()))
	base := []Option{WithLogger(quietLogger())}
	s := New("127.0.0.1:0", newTestGate(t), reg, coord, append(base, opts...)...)
	return s, reg, coord
}

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := get(t, s.Handler(), "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_RequestIDPreserved(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := get(t, s.Handler(), "/healthz", map[string]string{"X-Request-ID": "trace-123"})
	assert.Equal(t, "trace-123", w.Header().Get("X-Request-ID"))
}

func TestServer_AppHandlerGuarded(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s, _, _ := newTestServer(t, WithAppHandler(app))
	hdr := map[string]string{"X-User-ID": "u1"}

	// Category mood allows 2 per minute.
	for range 2 {
		w := get(t, s.Handler(), "/api/mood/log", hdr)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := get(t, s.Handler(), "/api/mood/log", hdr)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	body := decodeBody(t, w)
	assert.Equal(t, "rate_limit_exceeded", body["error"])

	// Health never consumes quota.
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz", hdr).Code)
}

func TestServer_AdminQuota(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s, _, _ := newTestServer(t, WithAppHandler(app))
	hdr := map[string]string{"X-User-ID": "u1"}

	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/mood/log", hdr).Code)

	w := get(t, s.Handler(), "/admin/quota?user=u1&endpoint=/api/mood/log", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "mood", body["category"])
	assert.Equal(t, "free", body["tier"])
	assert.Equal(t, float64(2), body["limit"])
	assert.Equal(t, float64(1), body["remaining"])

	// Querying does not consume quota.
	w = get(t, s.Handler(), "/admin/quota?user=u1&endpoint=/api/mood/log", nil)
	assert.Equal(t, float64(1), decodeBody(t, w)["remaining"])
}

func TestServer_AdminQuotaReset(t *testing.T) {
	app := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s, _, _ := newTestServer(t, WithAppHandler(app))
	hdr := map[string]string{"X-User-ID": "u1"}

	for range 2 {
		require.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/mood/log", hdr).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, get(t, s.Handler(), "/api/mood/log", hdr).Code)

	req := httptest.NewRequest(http.MethodDelete, "/admin/quota?user=u1&endpoint=/api/mood/log", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/mood/log", hdr).Code)
}

func TestServer_AdminQuotaMissingEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := get(t, s.Handler(), "/admin/quota?user=u1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_parameter", decodeBody(t, w)["error"])
}

func TestServer_AdminBreakers(t *testing.T) {
	s, reg, _ := newTestServer(t)

	b := reg.Get("firestore")
	for range 5 {
		_ = b.Do(context.Background(), func(context.Context) error { return errors.New("down") })
	}

	w := get(t, s.Handler(), "/admin/breakers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Breakers []breaker.Snapshot `json:"breakers"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Breakers, 1)
	assert.Equal(t, "firestore", body.Breakers[0].Name)
	assert.Equal(t, "open", body.Breakers[0].State)
}

func TestServer_AdminErrors(t *testing.T) {
	s, _, coord := newTestServer(t)

	coord.HandleError(context.Background(),
		recovery.Database(errors.New("down")), recovery.Context{}, nil, 0)

	w := get(t, s.Handler(), "/admin/errors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(1), body["recent_count"])
	byType, ok := body["by_type"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), byType[recovery.TypeDatabase])
}

func TestAdaptErrors(t *testing.T) {
	coord := recovery.New(recovery.WithLogger(quietLogger()))

	t.Run("success passes through", func(t *testing.T) {
		h := AdaptErrors(coord, quietLogger(), "app", func(w http.ResponseWriter, _ *http.Request) error {
			w.WriteHeader(http.StatusCreated)
			return nil
		})
		w := get(t, h, "/x", nil)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("open breaker renders 503", func(t *testing.T) {
		b := breaker.New("dep",
			breaker.WithFailureThreshold(1),
			breaker.WithLogger(quietLogger()))
		_ = b.Do(context.Background(), func(context.Context) error { return errors.New("x") })

		h := AdaptErrors(coord, quietLogger(), "app", func(_ http.ResponseWriter, r *http.Request) error {
			return b.Do(r.Context(), func(context.Context) error { return nil })
		})
		w := get(t, h, "/x", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "service_unavailable", decodeBody(t, w)["error"])
	})

	t.Run("unrecovered error renders 500", func(t *testing.T) {
		h := AdaptErrors(coord, quietLogger(), "app", func(_ http.ResponseWriter, _ *http.Request) error {
			return errors.New("boom")
		})
		w := get(t, h, "/x", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal_error", decodeBody(t, w)["error"])
	})

	t.Run("recovered error renders 200", func(t *testing.T) {
		recovered := recovery.New(recovery.WithLogger(quietLogger()))
		recovered.Register(recovery.TypeConnection, func(context.Context, *recovery.Record) error {
			return nil
		})
		h := AdaptErrors(recovered, quietLogger(), "app", func(_ http.ResponseWriter, _ *http.Request) error {
			return recovery.Connection(errors.New("link down"))
		})
		w := get(t, h, "/x", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "recovered", decodeBody(t, w)["status"])
	})
}

func TestServer_StartShutdown(t *testing.T) {
	s, _, _ := newTestServer(t)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + s.Addr() + "/healthz")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, <-done)
}
