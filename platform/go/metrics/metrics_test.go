package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
)

var _ crud.Observer = (*Metrics)(nil)

func TestObserveOperation(t *testing.T) {
	m := New()

	m.ObserveOperation("tenant", "create", "memory", "ok", 3*time.Millisecond)
	m.ObserveOperation("tenant", "create", "memory", "ok", 5*time.Millisecond)
	m.ObserveOperation("tenant", "create", "memory", "conflict", time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("tenant", "create", "memory", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("tenant", "create", "memory", "conflict")))
	require.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}

func TestCacheCounters(t *testing.T) {
	m := New()
	m.CacheHit("organizations")
	m.CacheHit("organizations")
	m.CacheMiss("organizations")

	require.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("organizations", "hit")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("organizations", "miss")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/tenants/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/tenants/a", "/tenants/b", "/ok"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/tenants/{id}", http.MethodGet, "204")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/ok", http.MethodGet, "200")))
	require.Zero(t, testutil.ToFloat64(m.RequestsInFlight))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveOperation("organization", "find_all", "pgx", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `palmyra_crud_operations_total{driver="pgx",entity="organization",operation="find_all",outcome="ok"} 1`)
	require.Contains(t, string(body), "go_goroutines")
}
