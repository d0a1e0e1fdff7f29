package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/organizations/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// Repository persists organizations through the tenant-aware CRUD service.
type Repository struct {
	crud *crud.TenantAwareService[model.Organization]
}

var _ service.Repository = (*Repository)(nil)

// New builds the repository on driver. The registry must contain model.OrganizationEntity.
func New(driver crud.Driver, registry *schema.Registry, opts ...crud.Option) (*Repository, error) {
	svc, err := crud.NewTenantAwareService[model.Organization](driver, registry, model.OrganizationEntityName, opts...)
	if err != nil {
		return nil, err
	}
	return &Repository{crud: svc}, nil
}

func (r *Repository) Create(ctx context.Context, org model.Organization) (model.Organization, error) {
	return r.crud.Create(ctx, org)
}

func (r *Repository) List(ctx context.Context, opts crud.FindOptions) (crud.Result[model.Organization], error) {
	return r.crud.Paginate(ctx, opts)
}

func (r *Repository) Get(ctx context.Context, id string) (model.Organization, error) {
	return r.crud.FindOneByIDString(ctx, id, crud.FindOneOptions{})
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, values crud.Values) (model.Organization, error) {
	return r.crud.Update(ctx, id, values)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.crud.DeleteByID(ctx, id)
	return err
}
