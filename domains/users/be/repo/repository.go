package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/users/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// Entity declares the users table. Emails are unique within a tenant.
var Entity = schema.MustDeclareEntity(service.EntityName,
	schema.EntityOptions{
		Table:          "users",
		UniqueTogether: [][]string{{model.ColumnTenantID, "email"}},
	},
	model.TenantDeclarations(),
	schema.DeclareColumn("email", schema.TypeString, schema.ColumnOptions{Size: 320}),
	schema.DeclareColumn("full_name", schema.TypeString, schema.ColumnOptions{Size: 200}),
	schema.DeclareColumn("role", schema.TypeString, schema.ColumnOptions{Default: service.RoleMember, Size: 32}),
)

// Repository persists users through the tenant-aware CRUD service.
type Repository struct {
	crud *crud.TenantAwareService[service.User]
}

var _ service.Repository = (*Repository)(nil)

// New builds the repository on driver. The registry must contain Entity.
func New(driver crud.Driver, registry *schema.Registry, opts ...crud.Option) (*Repository, error) {
	svc, err := crud.NewTenantAwareService[service.User](driver, registry, service.EntityName, opts...)
	if err != nil {
		return nil, err
	}
	return &Repository{crud: svc}, nil
}

func (r *Repository) Create(ctx context.Context, user service.User) (service.User, error) {
	return r.crud.Create(ctx, user)
}

func (r *Repository) List(ctx context.Context, opts crud.FindOptions) (crud.Result[service.User], error) {
	return r.crud.Paginate(ctx, opts)
}

func (r *Repository) Get(ctx context.Context, id string) (service.User, error) {
	return r.crud.FindOneByIDString(ctx, id, crud.FindOneOptions{})
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (service.User, error) {
	return r.crud.FindOneByOptions(ctx, crud.FindOneOptions{Where: crud.Where{"email": email}})
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, values crud.Values) (service.User, error) {
	return r.crud.Update(ctx, id, values)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.crud.DeleteByID(ctx, id)
	return err
}
