package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	platformauth "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/auth"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

const (
	cacheTenants       = "tenant_active"
	cacheOrganizations = "organization_membership"
)

// Resolver answers the ownership questions the middleware must settle before trusting token claims.
// TenantActive returns crud.ErrNotFound for unknown tenants.
type Resolver interface {
	TenantActive(ctx context.Context, tenantID uuid.UUID) (bool, error)
	OrganizationBelongs(ctx context.Context, tenantID, orgID uuid.UUID) (bool, error)
}

// CacheObserver is notified of resolution cache lookups.
type CacheObserver interface {
	CacheHit(cache string)
	CacheMiss(cache string)
}

// Config controls RequestContext. A zero CacheTTL disables caching.
type Config struct {
	CacheTTL  time.Duration
	CacheSize int
	Observer  CacheObserver
}

type orgKey struct {
	tenant uuid.UUID
	org    uuid.UUID
}

type resolutionCache struct {
	tenants  *expirable.LRU[uuid.UUID, bool]
	orgs     *expirable.LRU[orgKey, bool]
	observer CacheObserver
}

func newResolutionCache(cfg Config) *resolutionCache {
	c := &resolutionCache{observer: cfg.Observer}
	if cfg.CacheTTL <= 0 {
		return c
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	c.tenants = expirable.NewLRU[uuid.UUID, bool](size, nil, cfg.CacheTTL)
	c.orgs = expirable.NewLRU[orgKey, bool](size, nil, cfg.CacheTTL)
	return c
}

func (c *resolutionCache) record(name string, hit bool) {
	if c.observer == nil {
		return
	}
	if hit {
		c.observer.CacheHit(name)
	} else {
		c.observer.CacheMiss(name)
	}
}

func (c *resolutionCache) tenantActive(ctx context.Context, r Resolver, id uuid.UUID) (bool, error) {
	if c.tenants != nil {
		if active, ok := c.tenants.Get(id); ok {
			c.record(cacheTenants, true)
			return active, nil
		}
		c.record(cacheTenants, false)
	}
	active, err := r.TenantActive(ctx, id)
	if err != nil {
		return false, err
	}
	if c.tenants != nil {
		c.tenants.Add(id, active)
	}
	return active, nil
}

func (c *resolutionCache) orgBelongs(ctx context.Context, r Resolver, key orgKey) (bool, error) {
	if c.orgs != nil {
		if belongs, ok := c.orgs.Get(key); ok {
			c.record(cacheOrganizations, true)
			return belongs, nil
		}
		c.record(cacheOrganizations, false)
	}
	belongs, err := r.OrganizationBelongs(ctx, key.tenant, key.org)
	if err != nil {
		return false, err
	}
	if c.orgs != nil {
		c.orgs.Add(key, belongs)
	}
	return belongs, nil
}

// RequestContext establishes the requestcontext.Context for every request. It must run after the JWT
// middleware: requests without credentials become anonymous, and tenant and organization claims are only
// trusted once the resolver confirms the tenant is active and owns the organization.
func RequestContext(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("request context middleware: resolver is required")
	}
	cache := newResolutionCache(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := platformlogging.FromRequest(r, zap.NewNop())
			requestID := middleware.GetReqID(ctx)

			rc := requestcontext.Anonymous(requestID)
			creds, ok := platformauth.UserFromContext(ctx)
			if ok && creds != nil {
				var status int
				var err error
				rc, status, err = fromCredentials(ctx, resolver, cache, creds, requestID)
				if err != nil {
					if status >= http.StatusInternalServerError {
						logger.Error("resolve request context", zap.Error(err))
					} else {
						logger.Warn("request context rejected", zap.Int("status", status), zap.Error(err))
					}
					http.Error(w, http.StatusText(status), status)
					return
				}
			}
			if rc.LanguageCode == "" {
				rc.LanguageCode = negotiateLanguage(r.Header.Get("Accept-Language"))
			}

			fields := []zap.Field{zap.String("actor_kind", string(rc.Actor))}
			if rc.User != nil {
				fields = append(fields, zap.String("user_id", rc.User.ID))
			}
			if rc.TenantID != nil {
				fields = append(fields, zap.String("tenant_id", rc.TenantID.String()))
			}
			if rc.OrganizationID != nil {
				fields = append(fields, zap.String("organization_id", rc.OrganizationID.String()))
			}
			ctx = platformlogging.WithLogger(ctx, logger.With(fields...))

			next.ServeHTTP(w, r.WithContext(requestcontext.WithContext(ctx, rc)))
		})
	}
}

var errRejected = errors.New("credentials rejected")

func fromCredentials(ctx context.Context, resolver Resolver, cache *resolutionCache, creds *platformauth.UserCredentials, requestID string) (requestcontext.Context, int, error) {
	user := &requestcontext.User{ID: creds.Id, Email: creds.Email}
	if creds.Name != nil {
		user.Name = *creds.Name
	}
	if len(creds.Roles) > 0 {
		user.Role = creds.Roles[0]
	}

	permissions := slices.Clone(creds.Permissions)
	if creds.IsAdmin && !slices.Contains(permissions, requestcontext.PermissionTenantImpersonate) {
		permissions = append(permissions, requestcontext.PermissionTenantImpersonate)
	}

	rc := requestcontext.Context{
		RequestID:    requestID,
		Actor:        requestcontext.ActorKindUser,
		User:         user,
		Permissions:  permissions,
		Roles:        slices.Clone(creds.Roles),
		LanguageCode: creds.Language,
	}

	if creds.TenantID == nil || *creds.TenantID == "" {
		if creds.OrganizationID != nil && *creds.OrganizationID != "" {
			return rc, http.StatusUnauthorized, errors.Join(errRejected, errors.New("organization claim without tenant"))
		}
		return rc, 0, nil
	}

	tenantID, err := uuid.Parse(*creds.TenantID)
	if err != nil || tenantID == uuid.Nil {
		return rc, http.StatusUnauthorized, errors.Join(errRejected, errors.New("invalid tenant id"))
	}
	active, err := cache.tenantActive(ctx, resolver, tenantID)
	switch {
	case errors.Is(err, crud.ErrNotFound):
		return rc, http.StatusUnauthorized, errors.Join(errRejected, err)
	case err != nil:
		return rc, resolveStatus(err), err
	case !active:
		return rc, http.StatusForbidden, errors.Join(errRejected, errors.New("tenant is not active"))
	}
	rc.TenantID = &tenantID

	if creds.OrganizationID == nil || *creds.OrganizationID == "" {
		return rc, 0, nil
	}
	orgID, err := uuid.Parse(*creds.OrganizationID)
	if err != nil || orgID == uuid.Nil {
		return rc, http.StatusUnauthorized, errors.Join(errRejected, errors.New("invalid organization id"))
	}
	belongs, err := cache.orgBelongs(ctx, resolver, orgKey{tenant: tenantID, org: orgID})
	if err != nil {
		return rc, resolveStatus(err), err
	}
	if !belongs {
		return rc, http.StatusForbidden, errors.Join(errRejected, errors.New("organization does not belong to tenant"))
	}
	rc.OrganizationID = &orgID

	return rc, 0, nil
}

func resolveStatus(err error) int {
	if errors.Is(err, crud.ErrUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// negotiateLanguage returns the base language of the preferred Accept-Language tag.
func negotiateLanguage(header string) string {
	if header == "" {
		return requestcontext.DefaultLanguage
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return requestcontext.DefaultLanguage
	}
	base, confidence := tags[0].Base()
	if confidence == language.No {
		return requestcontext.DefaultLanguage
	}
	return base.String()
}
