package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// Repository persists tenants through the unscoped CRUD service.
type Repository struct {
	crud *crud.Service[model.Tenant]
}

var _ service.Repository = (*Repository)(nil)

// New builds the repository on driver. The registry must contain model.TenantEntity.
func New(driver crud.Driver, registry *schema.Registry, opts ...crud.Option) (*Repository, error) {
	svc, err := crud.NewService[model.Tenant](driver, registry, model.TenantEntityName, opts...)
	if err != nil {
		return nil, err
	}
	return &Repository{crud: svc}, nil
}

func (r *Repository) Create(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	return r.crud.Create(ctx, t)
}

func (r *Repository) List(ctx context.Context, opts crud.FindOptions) (crud.Result[model.Tenant], error) {
	return r.crud.Paginate(ctx, opts)
}

func (r *Repository) Get(ctx context.Context, id string) (model.Tenant, error) {
	return r.crud.FindOneByIDString(ctx, id, crud.FindOneOptions{})
}

func (r *Repository) FindBySlug(ctx context.Context, slug string) (model.Tenant, error) {
	return r.crud.FindOneByOptions(ctx, crud.FindOneOptions{Where: crud.Where{"slug": slug}})
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, values crud.Values) (model.Tenant, error) {
	return r.crud.Update(ctx, id, values)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.crud.DeleteByID(ctx, id)
	return err
}
