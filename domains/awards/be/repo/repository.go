package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/awards/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// UserEntityName is the entity awards reference as recipients.
const UserEntityName = "user"

// MetadataSchema constrains award metadata to a flat object of scalar values.
var MetadataSchema = []byte(`{
	"type": "object",
	"maxProperties": 32,
	"additionalProperties": {"type": ["string", "number", "boolean"]}
}`)

// Entity declares the awards table. Awards belong to an organization and may point at a recipient user;
// removing the user clears the recipient.
var Entity = schema.MustDeclareEntity(service.EntityName,
	schema.EntityOptions{Table: "awards"},
	model.TenantOrganizationDeclarations(),
	schema.DeclareColumn("name", schema.TypeString, schema.ColumnOptions{Size: 200}),
	schema.DeclareColumn("amount", schema.TypeFloat, schema.ColumnOptions{}),
	schema.DeclareColumn("currency", schema.TypeString, schema.ColumnOptions{Size: 3}),
	schema.DeclareColumn("expires_at", schema.TypeTime, schema.ColumnOptions{Nullable: true, Index: true}),
	schema.DeclareColumn("recipient_id", schema.TypeUUID, schema.ColumnOptions{Nullable: true, Index: true}),
	schema.DeclareColumn("metadata", schema.TypeJSON, schema.ColumnOptions{Nullable: true, JSONSchema: MetadataSchema}),
	schema.DeclareRelation(schema.ManyToOne, service.RelationRecipient, UserEntityName, schema.RelationOptions{
		JoinColumn: "recipient_id",
		OnDelete:   schema.OnDeleteSetNull,
	}),
)

// Repository persists awards through the tenant-aware CRUD service.
type Repository struct {
	crud *crud.TenantAwareService[service.Award]
}

var _ service.Repository = (*Repository)(nil)

// New builds the repository on driver. The registry must contain Entity and the users entity.
func New(driver crud.Driver, registry *schema.Registry, opts ...crud.Option) (*Repository, error) {
	svc, err := crud.NewTenantAwareService[service.Award](driver, registry, service.EntityName, opts...)
	if err != nil {
		return nil, err
	}
	return &Repository{crud: svc}, nil
}

func (r *Repository) Create(ctx context.Context, award service.Award) (service.Award, error) {
	return r.crud.Create(ctx, award)
}

func (r *Repository) List(ctx context.Context, opts crud.FindOptions) (crud.Result[service.Award], error) {
	return r.crud.Paginate(ctx, opts)
}

func (r *Repository) Get(ctx context.Context, id string) (service.Award, error) {
	return r.crud.FindOneByIDString(ctx, id, crud.FindOneOptions{})
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, values crud.Values) (service.Award, error) {
	return r.crud.Update(ctx, id, values)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.crud.DeleteByID(ctx, id)
	return err
}

func (r *Repository) Restore(ctx context.Context, id uuid.UUID) (service.Award, error) {
	return r.crud.Restore(ctx, id)
}

func (r *Repository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.crud.Transaction(ctx, fn)
}
