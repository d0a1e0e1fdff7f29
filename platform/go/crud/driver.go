package crud

import (
	"context"
	"time"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// Driver is the storage-engine adapter. Implementations must produce identical observable behaviour:
// the same rows, the same ordering (including NULL placement and byte-wise string collation) and the
// same error taxonomy.
//
// Drivers receive fully compiled filters; tenant scoping, soft-delete visibility and validation are the
// CRUD core's job. Returned records may hold driver-native values; the core normalizes them.
type Driver interface {
	Name() string
	// EnsureSchema creates missing tables, constraints and indexes for every registered entity.
	EnsureSchema(ctx context.Context, registry *schema.Registry) error
	Find(ctx context.Context, q Query) ([]schema.Record, error)
	Count(ctx context.Context, entity *schema.Entity, where Filter) (int64, error)
	Insert(ctx context.Context, entity *schema.Entity, rec schema.Record) error
	// Update applies values to every row matching where and returns the affected row count.
	Update(ctx context.Context, entity *schema.Entity, where Filter, values schema.Record) (int64, error)
	// Delete physically removes matching rows, honouring the declared on-delete actions.
	Delete(ctx context.Context, entity *schema.Entity, where Filter) (int64, error)
	// WithTx runs fn in a transaction carried on the context. Nested calls join the outer transaction.
	// Any error returned by fn rolls everything back.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// TranslateError maps driver errors onto the crud taxonomy. Unknown errors are returned opaque.
	TranslateError(err error) error
}

// Observer receives one call per CRUD operation.
type Observer interface {
	ObserveOperation(entity, operation, driver, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, string, string, time.Duration) {}

type txKey struct{}

func withTxMarker(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, true)
}

func inTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}
