package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy-core/apps/internal/wiring"
	audithandler "github.com/zenGate-Global/palmyra-tenancy-core/domains/auditlogs/be/handler"
	awardshandler "github.com/zenGate-Global/palmyra-tenancy-core/domains/awards/be/handler"
	orgshandler "github.com/zenGate-Global/palmyra-tenancy-core/domains/organizations/be/handler"
	tenantshandler "github.com/zenGate-Global/palmyra-tenancy-core/domains/tenants/be/handler"
	usershandler "github.com/zenGate-Global/palmyra-tenancy-core/domains/users/be/handler"
	platformauth "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/auth"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/metrics"
	platformmiddleware "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/middleware"
)

// pooled is implemented by the SQL drivers.
type pooled interface {
	Pool() *pgxpool.Pool
}

func newRouter(cfg config, domains *wiring.Domains, verify platformauth.VerifyFunc, driver crud.Driver, m *metrics.Metrics, logger *zap.Logger) http.Handler {
	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.CORS(cfg.CORSOrigins),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger, "/healthz", "/readyz", "/metrics"))
	rootRouter.Use(m.Middleware)

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if p, ok := driver.(pooled); ok {
			if err := p.Pool().Ping(r.Context()); err != nil {
				logger.Warn("readiness check failed", zap.String("driver", driver.Name()), zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Method(http.MethodGet, "/metrics", m.Handler())

	apiRouter := chi.NewRouter()
	apiRouter.Use(buildAuthMiddleware(verify, domains.Tenants, cfg.TenantCacheTTL, logger))
	apiRouter.Use(platformmiddleware.RequestContext(domains.Resolver(), platformmiddleware.Config{
		CacheTTL:  cfg.TenantCacheTTL,
		CacheSize: cfg.TenantCacheSize,
		Observer:  m,
	}))

	apiRouter.Group(func(r chi.Router) {
		r.Use(platformauth.RequireRole("admin"))
		r.Mount("/admin/tenants", tenantshandler.New(domains.Tenants, logger).Routes())
	})
	apiRouter.Mount("/organizations", orgshandler.New(domains.Organizations, logger).Routes())
	apiRouter.Mount("/users", usershandler.New(domains.Users, logger).Routes())
	apiRouter.Mount("/awards", awardshandler.New(domains.Awards, logger).Routes())
	apiRouter.Mount("/audit-logs", audithandler.New(domains.AuditLogs, logger).Routes())

	rootRouter.Mount("/api/v1", apiRouter)
	return rootRouter
}
