// Package dbflags binds the storage configuration to command flags, falling back to the environment.
package dbflags

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-tenancy-core/apps/internal/wiring"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/setups"
)

// Flags holds the storage flags of one command.
type Flags struct {
	DatabaseURL string
	ORM         string
	LogLevel    string
}

// Bind registers --database-url, --orm and --log-level on cmd.
func Bind(cmd *cobra.Command) *Flags {
	f := &Flags{}
	cmd.Flags().StringVar(&f.DatabaseURL, "database-url", "", "PostgreSQL connection string (defaults to DATABASE_URL)")
	cmd.Flags().StringVar(&f.ORM, "orm", "", "storage driver: pgx, gorm or memory (defaults to DB_ORM)")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "warn", "log level")
	return f
}

// Config merges the flags over the environment.
func (f *Flags) Config() (persistence.Config, error) {
	cfg, err := setups.Load[persistence.Config]()
	if err != nil {
		return persistence.Config{}, err
	}
	if f.DatabaseURL != "" {
		cfg.Pool.ConnString = f.DatabaseURL
	}
	if f.ORM != "" {
		cfg.ORM = f.ORM
	}
	return cfg, nil
}

// Open connects storage and builds the domains.
func (f *Flags) Open(ctx context.Context, ensureSchema bool) (*wiring.Domains, func(), error) {
	cfg, err := f.Config()
	if err != nil {
		return nil, nil, err
	}
	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "cli",
		Level:     f.LogLevel,
		Format:    platformlogging.FormatConsole,
		Output:    os.Stderr,
	})
	if err != nil {
		return nil, nil, err
	}

	domains, _, closeDriver, err := wiring.Open(ctx, cfg, ensureSchema, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return domains, func() {
		closeDriver()
		_ = logger.Sync()
	}, nil
}
