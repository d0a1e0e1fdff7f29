package persistence

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
)

// Config selects and configures the storage engine.
type Config struct {
	// ORM picks the driver: pgx (default), gorm or memory.
	ORM  string `env:"DB_ORM" envDefault:"pgx"`
	Pool PoolConfig
}

// Open builds the configured driver. The returned close function releases every resource Open acquired.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (crud.Driver, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	orm := strings.ToLower(strings.TrimSpace(cfg.ORM))
	if orm == "" {
		orm = DriverPgx
	}

	if orm == DriverMemory {
		logger.Warn("using in-memory storage; data is lost on exit")
		return NewMemoryDriver(), func() {}, nil
	}
	if orm != DriverPgx && orm != DriverGorm {
		return nil, nil, fmt.Errorf("unsupported DB_ORM %q (expected %s, %s or %s)", cfg.ORM, DriverPgx, DriverGorm, DriverMemory)
	}

	pool, err := NewPool(ctx, cfg.Pool, logger)
	if err != nil {
		return nil, nil, err
	}

	if orm == DriverGorm {
		driver, err := NewGormDriver(pool, logger)
		if err != nil {
			ClosePool(pool)
			return nil, nil, err
		}
		return driver, func() {
			_ = driver.Close()
			ClosePool(pool)
		}, nil
	}

	driver, err := NewPgxDriver(pool, logger)
	if err != nil {
		ClosePool(pool)
		return nil, nil, err
	}
	return driver, func() { ClosePool(pool) }, nil
}
