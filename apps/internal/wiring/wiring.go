// Package wiring assembles the entity registry and the domain services shared by the API server and the
// CLI tools.
package wiring

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	auditrepo "github.com/zenGate-Global/palmyra-tenancy-core/domains/auditlogs/be/repo"
	auditservice "github.com/zenGate-Global/palmyra-tenancy-core/domains/auditlogs/be/service"
	awardsrepo "github.com/zenGate-Global/palmyra-tenancy-core/domains/awards/be/repo"
	awardsservice "github.com/zenGate-Global/palmyra-tenancy-core/domains/awards/be/service"
	orgsrepo "github.com/zenGate-Global/palmyra-tenancy-core/domains/organizations/be/repo"
	orgsservice "github.com/zenGate-Global/palmyra-tenancy-core/domains/organizations/be/service"
	tenantsrepo "github.com/zenGate-Global/palmyra-tenancy-core/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy-core/domains/tenants/be/service"
	usersrepo "github.com/zenGate-Global/palmyra-tenancy-core/domains/users/be/repo"
	usersservice "github.com/zenGate-Global/palmyra-tenancy-core/domains/users/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// Entities lists every entity the deployment persists.
func Entities() []*schema.Entity {
	return append(model.CoreEntities(), usersrepo.Entity, awardsrepo.Entity, auditrepo.Entity)
}

// Registry validates Entities as one registry.
func Registry() (*schema.Registry, error) {
	return schema.NewRegistry(Entities()...)
}

// Domains holds one service per domain, all sharing a driver.
type Domains struct {
	Tenants       *tenantsservice.Service
	Organizations *orgsservice.Service
	Users         *usersservice.Service
	Awards        *awardsservice.Service
	AuditLogs     *auditservice.Service
}

// Build constructs every repository and service on driver. opts apply to all CRUD services.
func Build(driver crud.Driver, registry *schema.Registry, opts ...crud.Option) (*Domains, error) {
	tenants, err := tenantsrepo.New(driver, registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("tenants repository: %w", err)
	}
	orgs, err := orgsrepo.New(driver, registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("organizations repository: %w", err)
	}
	users, err := usersrepo.New(driver, registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("users repository: %w", err)
	}
	awards, err := awardsrepo.New(driver, registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("awards repository: %w", err)
	}
	audit, err := auditrepo.New(driver, registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("audit log repository: %w", err)
	}

	auditService := auditservice.New(audit)
	return &Domains{
		Tenants:       tenantsservice.New(tenants),
		Organizations: orgsservice.New(orgs),
		Users:         usersservice.New(users),
		Awards:        awardsservice.New(awards, awardAuditor(auditService)),
		AuditLogs:     auditService,
	}, nil
}

// Open connects the configured driver, optionally creates the schema, and builds the domains on it. The
// memory driver always gets its schema. The returned function releases the driver.
func Open(ctx context.Context, cfg persistence.Config, ensureSchema bool, logger *zap.Logger, opts ...crud.Option) (*Domains, crud.Driver, func(), error) {
	registry, err := Registry()
	if err != nil {
		return nil, nil, nil, err
	}
	driver, closeDriver, err := persistence.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	if ensureSchema || driver.Name() == persistence.DriverMemory {
		if err := driver.EnsureSchema(ctx, registry); err != nil {
			closeDriver()
			return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		if logger != nil {
			logger.Info("schema ensured", zap.String("driver", driver.Name()), zap.Int("entities", len(registry.Entities())))
		}
	}

	domains, err := Build(driver, registry, opts...)
	if err != nil {
		closeDriver()
		return nil, nil, nil, err
	}
	return domains, driver, closeDriver, nil
}

func awardAuditor(audit *auditservice.Service) awardsservice.AuditFunc {
	return func(ctx context.Context, action string, awardID uuid.UUID, details map[string]any) error {
		input := auditservice.RecordInput{Action: action, Entity: awardsservice.EntityName, EntityID: &awardID}
		if details != nil {
			input.Details = details
		}
		_, err := audit.Record(ctx, input)
		return err
	}
}

// Resolver answers the request-context middleware from the tenants and organizations services.
func (d *Domains) Resolver() middleware.Resolver {
	return resolver{tenants: d.Tenants, orgs: d.Organizations}
}

type resolver struct {
	tenants *tenantsservice.Service
	orgs    *orgsservice.Service
}

func (r resolver) TenantActive(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	return r.tenants.TenantActive(ctx, tenantID)
}

func (r resolver) OrganizationBelongs(ctx context.Context, tenantID, orgID uuid.UUID) (bool, error) {
	return r.orgs.BelongsToTenant(ctx, tenantID, orgID)
}
