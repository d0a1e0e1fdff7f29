package repo

import (
	"context"
	"errors"
	"time"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/auditlogs/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// Entity declares the audit_logs table. Entries are non-recoverable so that retention can hard-delete them.
var Entity = schema.MustDeclareEntity(service.EntityName,
	schema.EntityOptions{Table: "audit_logs", NonRecoverable: true},
	model.TenantDeclarations(),
	schema.DeclareColumn("action", schema.TypeString, schema.ColumnOptions{Size: 64, Index: true}),
	schema.DeclareColumn("entity", schema.TypeString, schema.ColumnOptions{Size: 64}),
	schema.DeclareColumn("entity_id", schema.TypeUUID, schema.ColumnOptions{Nullable: true, Index: true}),
	schema.DeclareColumn("actor_id", schema.TypeString, schema.ColumnOptions{Nullable: true, Size: 128}),
	schema.DeclareColumn("details", schema.TypeJSON, schema.ColumnOptions{Nullable: true}),
)

// Repository persists audit entries through the tenant-aware CRUD service.
type Repository struct {
	crud *crud.TenantAwareService[service.Entry]
}

var _ service.Repository = (*Repository)(nil)

// New builds the repository on driver. The registry must contain Entity.
func New(driver crud.Driver, registry *schema.Registry, opts ...crud.Option) (*Repository, error) {
	svc, err := crud.NewTenantAwareService[service.Entry](driver, registry, service.EntityName, opts...)
	if err != nil {
		return nil, err
	}
	return &Repository{crud: svc}, nil
}

func (r *Repository) Create(ctx context.Context, entry service.Entry) (service.Entry, error) {
	return r.crud.Create(ctx, entry)
}

func (r *Repository) List(ctx context.Context, opts crud.FindOptions) (crud.Result[service.Entry], error) {
	return r.crud.Paginate(ctx, opts)
}

func (r *Repository) Get(ctx context.Context, id string) (service.Entry, error) {
	return r.crud.FindOneByIDString(ctx, id, crud.FindOneOptions{})
}

func (r *Repository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.crud.HardDelete(ctx, crud.Where{model.ColumnCreatedAt: crud.Lt(before)})
	if errors.Is(err, crud.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}
