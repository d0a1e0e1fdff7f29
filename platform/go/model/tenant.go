package model

import (
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

const (
	TenantEntityName       = "tenant"
	OrganizationEntityName = "organization"
)

// Tenant lifecycle states.
const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
)

// Tenant is the top-level isolation boundary. Tenants are administered through the unscoped CRUD service.
type Tenant struct {
	Base
	Name   string `db:"name" json:"name"`
	Slug   string `db:"slug" json:"slug"`
	Status string `db:"status" json:"status"`

	Organizations []Organization `rel:"organizations" json:"organizations,omitempty"`
}

// Organization is a sub-unit owned by exactly one tenant.
type Organization struct {
	TenantBase
	Name         string  `db:"name" json:"name"`
	Slug         string  `db:"slug" json:"slug"`
	OfficialName *string `db:"official_name" json:"officialName,omitempty"`
	Currency     *string `db:"currency" json:"currency,omitempty"`

	Tenant *Tenant `rel:"tenant" json:"tenant,omitempty"`
}

// TenantEntity declares the tenants table.
var TenantEntity = schema.MustDeclareEntity(TenantEntityName,
	schema.EntityOptions{Table: "tenants"},
	BaseDeclarations(),
	schema.DeclareColumn("name", schema.TypeString, schema.ColumnOptions{}),
	schema.DeclareColumn("slug", schema.TypeString, schema.ColumnOptions{Unique: true, Size: 100}),
	schema.DeclareColumn("status", schema.TypeString, schema.ColumnOptions{Default: TenantStatusActive, Size: 32}),
	schema.DeclareRelation(schema.OneToMany, "organizations", OrganizationEntityName, schema.RelationOptions{
		JoinColumn: ColumnTenantID,
	}),
)

// OrganizationEntity declares the organizations table; slugs are unique within a tenant.
var OrganizationEntity = schema.MustDeclareEntity(OrganizationEntityName,
	schema.EntityOptions{
		Table:          "organizations",
		UniqueTogether: [][]string{{ColumnTenantID, "slug"}},
	},
	TenantDeclarations(),
	schema.DeclareColumn("name", schema.TypeString, schema.ColumnOptions{}),
	schema.DeclareColumn("slug", schema.TypeString, schema.ColumnOptions{Size: 100}),
	schema.DeclareColumn("official_name", schema.TypeString, schema.ColumnOptions{Nullable: true}),
	schema.DeclareColumn("currency", schema.TypeString, schema.ColumnOptions{Nullable: true, Size: 3}),
)

// CoreEntities returns the entities every deployment registers.
func CoreEntities() []*schema.Entity {
	return []*schema.Entity{TenantEntity, OrganizationEntity}
}
