package crud

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// TenantAwareService restricts every operation to the tenant (and organization, when selected) of the
// request context. Rows of other tenants behave exactly like rows that do not exist.
type TenantAwareService[T any] struct {
	e *engine[T]
}

// NewTenantAwareService builds the scoped service for a tenant-scoped entity.
func NewTenantAwareService[T any](driver Driver, registry *schema.Registry, entityName string, opts ...Option) (*TenantAwareService[T], error) {
	e, err := newEngine[T](driver, registry, entityName, opts)
	if err != nil {
		return nil, err
	}
	if !model.IsTenantScoped(e.entity) {
		return nil, fmt.Errorf("crud: entity %q has no %s column", entityName, model.ColumnTenantID)
	}
	return &TenantAwareService[T]{e: e}, nil
}

// Entity returns the entity metadata the service operates on.
func (s *TenantAwareService[T]) Entity() *schema.Entity { return s.e.entity }

// scope reads ownership from the request context. It fails with ErrContextMissing before any storage
// access when no tenant is established.
func (s *TenantAwareService[T]) scope(ctx context.Context) (scope, error) {
	tenantID, err := requestcontext.CurrentTenantID(ctx)
	if err != nil {
		return scope{}, err
	}
	orgID, err := requestcontext.CurrentOrganizationID(ctx)
	if err != nil {
		return scope{}, err
	}
	return scope{tenantID: tenantID, orgID: orgID}, nil
}

// rejected records a failed scope lookup with the usual metrics and logging.
func (s *TenantAwareService[T]) rejected(ctx context.Context, op string, err error) error {
	return s.e.run(ctx, op, func() error { return err })
}

func (s *TenantAwareService[T]) FindAll(ctx context.Context, opts FindOptions) (Result[T], error) {
	sc, err := s.scope(ctx)
	if err != nil {
		return Result[T]{}, s.rejected(ctx, "find_all", err)
	}
	return s.e.findAll(ctx, opts, sc)
}

func (s *TenantAwareService[T]) Paginate(ctx context.Context, opts FindOptions) (Result[T], error) {
	sc, err := s.scope(ctx)
	if err != nil {
		return Result[T]{}, s.rejected(ctx, "paginate", err)
	}
	return s.e.paginate(ctx, opts, sc)
}

func (s *TenantAwareService[T]) Count(ctx context.Context, opts FindOptions) (int64, error) {
	sc, err := s.scope(ctx)
	if err != nil {
		return 0, s.rejected(ctx, "count", err)
	}
	return s.e.countRows(ctx, opts, sc)
}

func (s *TenantAwareService[T]) FindOneByIDString(ctx context.Context, id string, opts FindOneOptions) (T, error) {
	sc, err := s.scope(ctx)
	if err != nil {
		var zero T
		return zero, s.rejected(ctx, "find_one_by_id", err)
	}
	return s.e.findOneByIDString(ctx, id, opts, sc)
}

func (s *TenantAwareService[T]) FindOneByOptions(ctx context.Context, opts FindOneOptions) (T, error) {
	sc, err := s.scope(ctx)
	if err != nil {
		var zero T
		return zero, s.rejected(ctx, "find_one", err)
	}
	return s.e.findOne(ctx, "find_one", opts, sc)
}

// Create stamps tenant_id (and organization_id when one is selected) from the context, overriding the
// input, and checks that every reference stays inside the tenant.
func (s *TenantAwareService[T]) Create(ctx context.Context, input T) (T, error) {
	sc, err := s.scope(ctx)
	if err != nil {
		var zero T
		return zero, s.rejected(ctx, "create", err)
	}
	return s.e.create(ctx, &input, sc)
}

// Update resolves id inside the tenant first. tenant_id is never writable through this service; an
// organization_id outside the selected organization is forbidden.
func (s *TenantAwareService[T]) Update(ctx context.Context, id uuid.UUID, values Values) (T, error) {
	var zero T
	sc, err := s.scope(ctx)
	if err != nil {
		return zero, s.rejected(ctx, "update", err)
	}

	scoped := make(Values, len(values))
	for k, v := range values {
		if k == model.ColumnTenantID {
			continue
		}
		scoped[k] = v
	}

	if raw, ok := scoped[model.ColumnOrganizationID]; ok && sc.orgID != nil && model.IsOrganizationScoped(s.e.entity) {
		col, _ := s.e.entity.Column(model.ColumnOrganizationID)
		v, err := schema.Normalize(col, raw)
		if err == nil && v != *sc.orgID {
			return zero, s.rejected(ctx, "update", fmt.Errorf("%w: %s cannot move to another organization", ErrForbidden, s.e.entity.Name))
		}
	}

	return s.e.update(ctx, id, scoped, sc)
}

func (s *TenantAwareService[T]) Delete(ctx context.Context, where Where) (DeleteResult, error) {
	sc, err := s.scope(ctx)
	if err != nil {
		return DeleteResult{}, s.rejected(ctx, "delete", err)
	}
	return s.e.softDelete(ctx, where, sc)
}

func (s *TenantAwareService[T]) DeleteByID(ctx context.Context, id uuid.UUID) (DeleteResult, error) {
	return s.Delete(ctx, Where{model.ColumnID: id})
}

func (s *TenantAwareService[T]) HardDelete(ctx context.Context, where Where) (DeleteResult, error) {
	sc, err := s.scope(ctx)
	if err != nil {
		return DeleteResult{}, s.rejected(ctx, "hard_delete", err)
	}
	return s.e.hardDelete(ctx, where, sc)
}

func (s *TenantAwareService[T]) Restore(ctx context.Context, id uuid.UUID) (T, error) {
	sc, err := s.scope(ctx)
	if err != nil {
		var zero T
		return zero, s.rejected(ctx, "restore", err)
	}
	return s.e.restore(ctx, id, sc)
}

// Transaction runs fn atomically. The request context travels with ctx, so scoped services called
// inside fn stay in the same tenant.
func (s *TenantAwareService[T]) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, err := s.scope(ctx); err != nil {
		return s.rejected(ctx, "transaction", err)
	}
	return s.e.transaction(ctx, fn)
}
