package crud

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// Service is the generic CRUD service for one entity. It applies no tenant scoping, so it refuses
// tenant-scoped entities unless AllowUnscoped is passed.
type Service[T any] struct {
	e *engine[T]
}

// NewService builds the unscoped service for entityName. T must map exactly the entity's columns.
func NewService[T any](driver Driver, registry *schema.Registry, entityName string, opts ...Option) (*Service[T], error) {
	e, err := newEngine[T](driver, registry, entityName, opts)
	if err != nil {
		return nil, err
	}
	if model.IsTenantScoped(e.entity) && !e.cfg.allowUnscoped {
		return nil, fmt.Errorf("crud: entity %q is tenant-scoped; use NewTenantAwareService", entityName)
	}
	return &Service[T]{e: e}, nil
}

// Entity returns the entity metadata the service operates on.
func (s *Service[T]) Entity() *schema.Entity { return s.e.entity }

// FindAll returns every matching row ordered deterministically; Take <= 0 means no limit.
func (s *Service[T]) FindAll(ctx context.Context, opts FindOptions) (Result[T], error) {
	return s.e.findAll(ctx, opts, scope{})
}

// Paginate returns one page. Take defaults to DefaultPageSize and is capped at MaxPageSize.
func (s *Service[T]) Paginate(ctx context.Context, opts FindOptions) (Result[T], error) {
	return s.e.paginate(ctx, opts, scope{})
}

// Count returns the number of matching rows.
func (s *Service[T]) Count(ctx context.Context, opts FindOptions) (int64, error) {
	return s.e.countRows(ctx, opts, scope{})
}

// FindOneByIDString parses id and returns the row, ErrValidation for malformed ids or ErrNotFound.
func (s *Service[T]) FindOneByIDString(ctx context.Context, id string, opts FindOneOptions) (T, error) {
	return s.e.findOneByIDString(ctx, id, opts, scope{})
}

// FindOneByOptions returns the first row matching opts, or ErrNotFound.
func (s *Service[T]) FindOneByOptions(ctx context.Context, opts FindOneOptions) (T, error) {
	return s.e.findOne(ctx, "find_one", opts, scope{})
}

// Create inserts input and returns the stored row.
func (s *Service[T]) Create(ctx context.Context, input T) (T, error) {
	return s.e.create(ctx, &input, scope{})
}

// Update applies a partial update to the live row id.
func (s *Service[T]) Update(ctx context.Context, id uuid.UUID, values Values) (T, error) {
	return s.e.update(ctx, id, values, scope{})
}

// Delete soft-deletes every live row matching where. An empty where is rejected.
func (s *Service[T]) Delete(ctx context.Context, where Where) (DeleteResult, error) {
	return s.e.softDelete(ctx, where, scope{})
}

// DeleteByID soft-deletes the live row id.
func (s *Service[T]) DeleteByID(ctx context.Context, id uuid.UUID) (DeleteResult, error) {
	return s.e.softDelete(ctx, Where{model.ColumnID: id}, scope{})
}

// HardDelete physically removes matching rows, including soft-deleted ones. Only entities declared
// NonRecoverable allow it.
func (s *Service[T]) HardDelete(ctx context.Context, where Where) (DeleteResult, error) {
	return s.e.hardDelete(ctx, where, scope{})
}

// Restore clears deleted_at on a soft-deleted row.
func (s *Service[T]) Restore(ctx context.Context, id uuid.UUID) (T, error) {
	return s.e.restore(ctx, id, scope{})
}

// Transaction runs fn atomically. Services called with the ctx handed to fn join the transaction.
func (s *Service[T]) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.e.transaction(ctx, fn)
}
