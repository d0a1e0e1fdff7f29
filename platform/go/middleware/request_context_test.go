package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/auth"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/auth/devtoken"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

type fakeResolver struct {
	mu        sync.Mutex
	tenants   map[uuid.UUID]bool
	orgs      map[uuid.UUID]uuid.UUID
	err       error
	tenantHit int
	orgHit    int
}

func (f *fakeResolver) TenantActive(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenantHit++
	if f.err != nil {
		return false, f.err
	}
	active, ok := f.tenants[id]
	if !ok {
		return false, crud.ErrNotFound
	}
	return active, nil
}

func (f *fakeResolver) OrganizationBelongs(_ context.Context, tenantID, orgID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orgHit++
	return f.orgs[orgID] == tenantID, nil
}

type countingObserver struct {
	hits, misses map[string]int
}

func (c *countingObserver) CacheHit(cache string)  { c.hits[cache]++ }
func (c *countingObserver) CacheMiss(cache string) { c.misses[cache]++ }

func token(t *testing.T, p devtoken.Params) string {
	t.Helper()
	p.ProjectID = "local"
	if p.UserID == "" {
		p.UserID = "user-123"
	}
	p.Email = "user@example.com"
	tok, err := devtoken.BuildUnsignedToken(p, time.Now())
	require.NoError(t, err)
	return tok
}

func newRouter(resolver Resolver, cfg Config, seen *requestcontext.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(platformauth.JWT(platformauth.UnsignedTokenVerifier(), nil))
	r.Use(RequestContext(resolver, cfg))
	r.Get("/test", func(w http.ResponseWriter, req *http.Request) {
		rc, ok := requestcontext.FromContext(req.Context())
		if ok {
			*seen = rc
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestRequestContext(t *testing.T) {
	active := uuid.New()
	suspended := uuid.New()
	org := uuid.New()
	foreignOrg := uuid.New()

	resolver := &fakeResolver{
		tenants: map[uuid.UUID]bool{active: true, suspended: false},
		orgs:    map[uuid.UUID]uuid.UUID{org: active, foreignOrg: suspended},
	}

	tests := []struct {
		name       string
		params     *devtoken.Params
		language   string
		wantStatus int
		check      func(t *testing.T, rc requestcontext.Context)
	}{
		{
			name:       "anonymous",
			language:   "fr-CA,fr;q=0.9,en;q=0.5",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rc requestcontext.Context) {
				require.Equal(t, requestcontext.ActorKindAnonymous, rc.Actor)
				require.Nil(t, rc.TenantID)
				require.Equal(t, "fr", rc.LanguageCode)
				require.NotEmpty(t, rc.RequestID)
			},
		},
		{
			name:       "tenant and organization",
			params:     &devtoken.Params{TenantID: active.String(), OrganizationID: org.String(), Roles: []string{"editor"}, Permissions: []string{"awards:read"}, Language: "es"},
			language:   "de",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rc requestcontext.Context) {
				require.Equal(t, requestcontext.ActorKindUser, rc.Actor)
				require.Equal(t, "user-123", rc.User.ID)
				require.Equal(t, "editor", rc.User.Role)
				require.Equal(t, active, *rc.TenantID)
				require.Equal(t, org, *rc.OrganizationID)
				require.Equal(t, []string{"awards:read"}, rc.Permissions)
				require.Equal(t, "es", rc.LanguageCode)
			},
		},
		{
			name:       "admin gains impersonation",
			params:     &devtoken.Params{IsAdmin: true},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rc requestcontext.Context) {
				require.Nil(t, rc.TenantID)
				require.Contains(t, rc.Permissions, requestcontext.PermissionTenantImpersonate)
				require.Equal(t, requestcontext.DefaultLanguage, rc.LanguageCode)
			},
		},
		{name: "malformed tenant", params: &devtoken.Params{TenantID: "acme"}, wantStatus: http.StatusUnauthorized},
		{name: "unknown tenant", params: &devtoken.Params{TenantID: uuid.NewString()}, wantStatus: http.StatusUnauthorized},
		{name: "suspended tenant", params: &devtoken.Params{TenantID: suspended.String()}, wantStatus: http.StatusForbidden},
		{name: "foreign organization", params: &devtoken.Params{TenantID: active.String(), OrganizationID: foreignOrg.String()}, wantStatus: http.StatusForbidden},
		{name: "malformed organization", params: &devtoken.Params{TenantID: active.String(), OrganizationID: "hq"}, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen requestcontext.Context
			handler := newRouter(resolver, Config{}, &seen)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.params != nil {
				req.Header.Set("Authorization", "Bearer "+token(t, *tt.params))
			}
			if tt.language != "" {
				req.Header.Set("Accept-Language", tt.language)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.check != nil {
				tt.check(t, seen)
			}
		})
	}
}

func TestRequestContextCachesResolution(t *testing.T) {
	tenantID := uuid.New()
	orgID := uuid.New()
	resolver := &fakeResolver{
		tenants: map[uuid.UUID]bool{tenantID: true},
		orgs:    map[uuid.UUID]uuid.UUID{orgID: tenantID},
	}
	observer := &countingObserver{hits: map[string]int{}, misses: map[string]int{}}

	var seen requestcontext.Context
	handler := newRouter(resolver, Config{CacheTTL: time.Minute, CacheSize: 8, Observer: observer}, &seen)
	bearer := "Bearer " + token(t, devtoken.Params{TenantID: tenantID.String(), OrganizationID: orgID.String()})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", bearer)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Equal(t, 1, resolver.tenantHit)
	require.Equal(t, 1, resolver.orgHit)
	require.Equal(t, 2, observer.hits[cacheTenants])
	require.Equal(t, 1, observer.misses[cacheTenants])
	require.Equal(t, 2, observer.hits[cacheOrganizations])
}

func TestRequestContextResolverFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unavailable", err: crud.Unavailable(errors.New("pool exhausted")), want: http.StatusServiceUnavailable},
		{name: "unexpected", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen requestcontext.Context
			handler := newRouter(&fakeResolver{err: tt.err}, Config{}, &seen)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Authorization", "Bearer "+token(t, devtoken.Params{TenantID: uuid.NewString()}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
		})
	}

	require.Panics(t, func() { RequestContext(nil, Config{}) })
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{name: "any origin", method: http.MethodGet, origin: "https://app.example.com", wantStatus: http.StatusOK, wantOrigin: "*"},
		{name: "listed origin", allowed: []string{"https://app.example.com"}, method: http.MethodGet, origin: "https://app.example.com", wantStatus: http.StatusOK, wantOrigin: "https://app.example.com"},
		{name: "unlisted origin", allowed: []string{"https://app.example.com"}, method: http.MethodGet, origin: "https://evil.example.com", wantStatus: http.StatusOK},
		{name: "preflight", allowed: []string{"*"}, method: http.MethodOptions, origin: "https://app.example.com", wantStatus: http.StatusNoContent, wantOrigin: "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			CORS(tt.allowed)(ok).ServeHTTP(rec, req)
			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
