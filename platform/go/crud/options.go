package crud

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPageSize is used by Paginate when Take is not set.
	DefaultPageSize = 20
	// MaxPageSize caps Paginate's Take.
	MaxPageSize = 100

	defaultReadRetries   = 3
	defaultRetryInterval = 50 * time.Millisecond
)

type config struct {
	logger        *zap.Logger
	observer      Observer
	clock         func() time.Time
	readRetries   uint64
	retryInterval time.Duration
	allowUnscoped bool
}

func defaultConfig() config {
	return config{
		logger:        zap.NewNop(),
		observer:      nopObserver{},
		clock:         time.Now,
		readRetries:   defaultReadRetries,
		retryInterval: defaultRetryInterval,
	}
}

// Option configures a CRUD service.
type Option func(*config)

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver reports every operation to o.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithReadRetries sets how many times reads are retried on ErrUnavailable. Zero disables retries.
func WithReadRetries(retries uint64, initialInterval time.Duration) Option {
	return func(c *config) {
		c.readRetries = retries
		if initialInterval > 0 {
			c.retryInterval = initialInterval
		}
	}
}

// AllowUnscoped lets NewService serve a tenant-scoped entity. Reserved for platform administration and
// bootstrap tooling that legitimately works across tenants.
func AllowUnscoped() Option {
	return func(c *config) {
		c.allowUnscoped = true
	}
}
