package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// Well-known columns and relations shared by every entity built on these bases.
const (
	ColumnID             = schema.PrimaryKey
	ColumnCreatedAt      = "created_at"
	ColumnUpdatedAt      = "updated_at"
	ColumnDeletedAt      = "deleted_at"
	ColumnIsActive       = "is_active"
	ColumnIsArchived     = "is_archived"
	ColumnArchivedAt     = "archived_at"
	ColumnTenantID       = "tenant_id"
	ColumnOrganizationID = "organization_id"

	RelationTenant       = "tenant"
	RelationOrganization = "organization"
)

// Base carries identity and lifecycle fields. Flags are pointers so that an unset flag picks up the
// column default on create instead of the Go zero value.
type Base struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	IsActive   *bool      `db:"is_active" json:"isActive,omitempty"`
	IsArchived *bool      `db:"is_archived" json:"isArchived,omitempty"`
	ArchivedAt *time.Time `db:"archived_at" json:"archivedAt,omitempty"`
}

// Active reports the is_active flag, treating an unloaded flag as the column default.
func (b Base) Active() bool { return b.IsActive == nil || *b.IsActive }

// Archived reports the is_archived flag.
func (b Base) Archived() bool { return b.IsArchived != nil && *b.IsArchived }

// Deleted reports whether the row is soft-deleted.
func (b Base) Deleted() bool { return b.DeletedAt != nil }

// TenantBase adds tenant ownership. TenantID is stamped from the request context by the tenant-aware
// CRUD service and is never taken from callers.
type TenantBase struct {
	Base
	TenantID *uuid.UUID `db:"tenant_id" json:"tenantId,omitempty"`
}

// TenantOrganizationBase adds organization ownership within the tenant.
type TenantOrganizationBase struct {
	TenantBase
	OrganizationID *uuid.UUID `db:"organization_id" json:"organizationId,omitempty"`
}

// BaseDeclarations returns the column group matching Base.
func BaseDeclarations() schema.Declaration {
	return schema.Group(
		schema.DeclareColumn(ColumnID, schema.TypeUUID, schema.ColumnOptions{Primary: true, Immutable: true}),
		schema.DeclareColumn(ColumnCreatedAt, schema.TypeTime, schema.ColumnOptions{Immutable: true, Index: true}),
		schema.DeclareColumn(ColumnUpdatedAt, schema.TypeTime, schema.ColumnOptions{Immutable: true}),
		schema.DeclareColumn(ColumnDeletedAt, schema.TypeTime, schema.ColumnOptions{Nullable: true, Immutable: true}),
		schema.DeclareColumn(ColumnIsActive, schema.TypeBool, schema.ColumnOptions{Default: true}),
		schema.DeclareColumn(ColumnIsArchived, schema.TypeBool, schema.ColumnOptions{Default: false}),
		schema.DeclareColumn(ColumnArchivedAt, schema.TypeTime, schema.ColumnOptions{Nullable: true, Immutable: true}),
	)
}

// TenantDeclarations returns the column group matching TenantBase.
func TenantDeclarations() schema.Declaration {
	return schema.Group(
		BaseDeclarations(),
		schema.DeclareColumn(ColumnTenantID, schema.TypeUUID, schema.ColumnOptions{Nullable: true, Index: true, Immutable: true}),
		schema.DeclareRelation(schema.ManyToOne, RelationTenant, TenantEntityName, schema.RelationOptions{
			JoinColumn: ColumnTenantID,
			OnDelete:   schema.OnDeleteCascade,
		}),
	)
}

// TenantOrganizationDeclarations returns the column group matching TenantOrganizationBase.
func TenantOrganizationDeclarations() schema.Declaration {
	return schema.Group(
		TenantDeclarations(),
		schema.DeclareColumn(ColumnOrganizationID, schema.TypeUUID, schema.ColumnOptions{Nullable: true, Index: true}),
		schema.DeclareRelation(schema.ManyToOne, RelationOrganization, OrganizationEntityName, schema.RelationOptions{
			JoinColumn: ColumnOrganizationID,
			OnDelete:   schema.OnDeleteCascade,
		}),
	)
}

// IsTenantScoped reports whether rows of e carry tenant ownership.
func IsTenantScoped(e *schema.Entity) bool {
	return e.HasColumn(ColumnTenantID)
}

// IsOrganizationScoped reports whether rows of e carry organization ownership.
func IsOrganizationScoped(e *schema.Entity) bool {
	return e.HasColumn(ColumnOrganizationID)
}
