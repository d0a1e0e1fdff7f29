package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/organizations/be/repo"
	"github.com/zenGate-Global/palmyra-tenancy-core/domains/organizations/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// withTenant stands in for the request-context middleware.
func withTenant(rc *requestcontext.Context, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rc != nil {
			r = r.WithContext(requestcontext.WithContext(r.Context(), *rc))
		}
		next.ServeHTTP(w, r)
	})
}

func TestOrganizationsRoutes(t *testing.T) {
	registry := schema.MustRegistry(model.CoreEntities()...)
	driver := persistence.NewMemoryDriver()
	require.NoError(t, driver.EnsureSchema(t.Context(), registry))

	tenants, err := crud.NewService[model.Tenant](driver, registry, model.TenantEntityName)
	require.NoError(t, err)
	acme, err := tenants.Create(t.Context(), model.Tenant{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	globex, err := tenants.Create(t.Context(), model.Tenant{Name: "Globex", Slug: "globex"})
	require.NoError(t, err)

	r, err := repo.New(driver, registry)
	require.NoError(t, err)
	routes := New(service.New(r), zaptest.NewLogger(t)).Routes()

	call := func(rc *requestcontext.Context, method, target, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		withTenant(rc, routes).ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
		return rec
	}
	acmeCtx := &requestcontext.Context{Actor: requestcontext.ActorKindUser, TenantID: &acme.ID}
	globexCtx := &requestcontext.Context{Actor: requestcontext.ActorKindUser, TenantID: &globex.ID}

	rec := call(acmeCtx, http.MethodPost, "/", `{"name":"HQ","slug":"hq","currency":"chf"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/api/v1/organizations/"))
	id := strings.TrimPrefix(location, "/api/v1/organizations/")
	require.Contains(t, rec.Body.String(), `"currency":"CHF"`)

	tests := []struct {
		name       string
		rc         *requestcontext.Context
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{name: "owner reads", rc: acmeCtx, method: http.MethodGet, target: "/" + id, wantStatus: http.StatusOK},
		{name: "other tenant cannot read", rc: globexCtx, method: http.MethodGet, target: "/" + id, wantStatus: http.StatusNotFound},
		{name: "other tenant cannot update", rc: globexCtx, method: http.MethodPatch, target: "/" + id, body: `{"name":"Mine"}`, wantStatus: http.StatusNotFound},
		{name: "no context", method: http.MethodGet, target: "/", wantStatus: http.StatusUnauthorized},
		{name: "malformed id", rc: acmeCtx, method: http.MethodGet, target: "/42", wantStatus: http.StatusBadRequest},
		{name: "tenant id in body is rejected", rc: acmeCtx, method: http.MethodPost, target: "/", body: `{"name":"X","slug":"x","tenantId":"` + globex.ID.String() + `"}`, wantStatus: http.StatusBadRequest},
		{name: "duplicate slug", rc: acmeCtx, method: http.MethodPost, target: "/", body: `{"name":"HQ","slug":"HQ"}`, wantStatus: http.StatusConflict},
		{name: "list", rc: acmeCtx, method: http.MethodGet, target: "/?slug=hq", wantStatus: http.StatusOK},
		{name: "delete", rc: acmeCtx, method: http.MethodDelete, target: "/" + id, wantStatus: http.StatusNoContent},
		{name: "deleted is gone", rc: acmeCtx, method: http.MethodGet, target: "/" + id, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(tt.rc, tt.method, tt.target, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}
