package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy-core/apps/internal/wiring"
	platformauth "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/auth"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/setups"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	EnsureSchema    bool          `env:"DB_ENSURE_SCHEMA" envDefault:"false"`
	ReadRetries     uint64        `env:"DB_READ_RETRIES" envDefault:"2"`
	TenantCacheTTL  time.Duration `env:"TENANT_CACHE_TTL" envDefault:"1m"`
	TenantCacheSize int           `env:"TENANT_CACHE_SIZE" envDefault:"1024"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	Log  platformlogging.Config
	DB   persistence.Config
	Auth platformauth.Config
}

func main() {
	cfg, err := setups.Load[config]()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cfg.Log.Component = "api-server"
	logger, err := platformlogging.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	m := metrics.New()
	domains, driver, closeDriver, err := wiring.Open(ctx, cfg.DB, cfg.EnsureSchema, logger,
		crud.WithLogger(logger),
		crud.WithObserver(m),
		crud.WithReadRetries(cfg.ReadRetries, 50*time.Millisecond),
	)
	if err != nil {
		return err
	}
	defer closeDriver()

	if p, ok := driver.(pooled); ok {
		m.Registry().MustRegister(metrics.NewPoolCollector(p.Pool()))
	}

	verify, err := platformauth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	if cfg.Auth.Provider == platformauth.ProviderDev {
		logger.Warn("using dev auth verifier; do not use in production")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, domains, verify, driver, m, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port), zap.String("driver", driver.Name()))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("api server stopped")
	return nil
}
