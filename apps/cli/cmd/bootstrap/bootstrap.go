package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-tenancy-core/apps/cli/cmd/dbflags"
	"github.com/zenGate-Global/palmyra-tenancy-core/apps/internal/wiring"
	auditservice "github.com/zenGate-Global/palmyra-tenancy-core/domains/auditlogs/be/service"
	orgsservice "github.com/zenGate-Global/palmyra-tenancy-core/domains/organizations/be/service"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy-core/domains/tenants/be/service"
	usersservice "github.com/zenGate-Global/palmyra-tenancy-core/domains/users/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources (schema, tenants)",
		Long:  "Create the storage schema and seed tenants with their first organization and admin user.",
	}

	cmd.AddCommand(schemaCommand())
	cmd.AddCommand(tenantCommand())
	return cmd
}

func schemaCommand() *cobra.Command {
	var db *dbflags.Flags

	c := &cobra.Command{
		Use:   "schema",
		Short: "Create every table, index and foreign key (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeFn, err := db.Open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeFn()

			fmt.Fprintf(cmd.OutOrStdout(), "Schema ready (%d entities).\n", len(wiring.Entities()))
			return nil
		},
	}
	db = dbflags.Bind(c)
	return c
}

// TenantParams describes the tenant to seed.
type TenantParams struct {
	Slug       string
	Name       string
	OrgSlug    string
	OrgName    string
	AdminEmail string
	AdminName  string
}

// TenantResult reports what exists after seeding and what was created by this run.
type TenantResult struct {
	Tenant       model.Tenant
	Organization model.Organization
	Admin        *usersservice.User
	Created      []string
}

// SeedTenant creates the tenant, its organization and its admin user when they do not exist yet. It runs
// as a system actor impersonating the tenant, so no token is involved.
func SeedTenant(ctx context.Context, domains *wiring.Domains, p TenantParams) (TenantResult, error) {
	var res TenantResult
	requestID := "bootstrap-" + strings.TrimSpace(p.Slug)

	err := requestcontext.Run(ctx, requestcontext.System(requestID), func(ctx context.Context) error {
		tenant, created, err := ensureTenant(ctx, domains.Tenants, p)
		if err != nil {
			return err
		}
		res.Tenant = tenant
		if created {
			res.Created = append(res.Created, "tenant")
		}

		return requestcontext.Impersonate(ctx, tenant.ID, nil, func(ctx context.Context) error {
			org, created, err := ensureOrganization(ctx, domains.Organizations, p)
			if err != nil {
				return err
			}
			res.Organization = org
			if created {
				res.Created = append(res.Created, "organization")
			}

			if strings.TrimSpace(p.AdminEmail) != "" {
				admin, created, err := ensureAdmin(ctx, domains.Users, p)
				if err != nil {
					return err
				}
				res.Admin = &admin
				if created {
					res.Created = append(res.Created, "admin")
				}
			}

			if len(res.Created) == 0 {
				return nil
			}
			_, err = domains.AuditLogs.Record(ctx, auditservice.RecordInput{
				Action:   "tenant.bootstrapped",
				Entity:   model.TenantEntityName,
				EntityID: &tenant.ID,
				Details:  map[string]any{"created": res.Created},
			})
			return err
		})
	})
	return res, err
}

func ensureTenant(ctx context.Context, tenants *tenantsservice.Service, p TenantParams) (model.Tenant, bool, error) {
	id, err := tenants.ResolveSlug(ctx, p.Slug)
	switch {
	case err == nil:
		t, err := tenants.ResolveTenant(ctx, id)
		return t, false, err
	case !errors.Is(err, crud.ErrNotFound):
		return model.Tenant{}, false, fmt.Errorf("look up tenant: %w", err)
	}

	name := p.Name
	if strings.TrimSpace(name) == "" {
		name = p.Slug
	}
	t, err := tenants.Create(ctx, tenantsservice.CreateInput{Name: name, Slug: p.Slug})
	if err != nil {
		return model.Tenant{}, false, fmt.Errorf("create tenant: %w", err)
	}
	return t, true, nil
}

func ensureOrganization(ctx context.Context, orgs *orgsservice.Service, p TenantParams) (model.Organization, bool, error) {
	slug := p.OrgSlug
	if strings.TrimSpace(slug) == "" {
		slug = "main"
	}
	existing, err := orgs.List(ctx, orgsservice.ListOptions{Slug: &slug})
	if err != nil {
		return model.Organization{}, false, fmt.Errorf("look up organization: %w", err)
	}
	if len(existing.Organizations) > 0 {
		return existing.Organizations[0], false, nil
	}

	name := p.OrgName
	if strings.TrimSpace(name) == "" {
		name = slug
	}
	org, err := orgs.Create(ctx, orgsservice.CreateInput{Name: name, Slug: slug})
	if err != nil {
		return model.Organization{}, false, fmt.Errorf("create organization: %w", err)
	}
	return org, true, nil
}

func ensureAdmin(ctx context.Context, users *usersservice.Service, p TenantParams) (usersservice.User, bool, error) {
	email := strings.ToLower(strings.TrimSpace(p.AdminEmail))
	existing, err := users.List(ctx, usersservice.ListOptions{Email: &email})
	if err != nil {
		return usersservice.User{}, false, fmt.Errorf("look up admin user: %w", err)
	}
	for _, u := range existing.Users {
		if u.Email == email {
			return u, false, nil
		}
	}

	name := p.AdminName
	if strings.TrimSpace(name) == "" {
		name = email
	}
	u, err := users.Create(ctx, usersservice.CreateInput{Email: email, FullName: name, Role: usersservice.RoleAdmin})
	if err != nil {
		return usersservice.User{}, false, fmt.Errorf("create admin user: %w", err)
	}
	return u, true, nil
}

func tenantCommand() *cobra.Command {
	var (
		db *dbflags.Flags
		p  TenantParams
	)

	c := &cobra.Command{
		Use:   "tenant",
		Short: "Seed a tenant with an organization and an admin user (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			domains, closeFn, err := db.Open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := SeedTenant(cmd.Context(), domains, p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tenant: %s (%s)\n", res.Tenant.Slug, res.Tenant.ID)
			fmt.Fprintf(out, "Organization: %s (%s)\n", res.Organization.Slug, res.Organization.ID)
			if res.Admin != nil {
				fmt.Fprintf(out, "Admin user: %s (%s)\n", res.Admin.Email, res.Admin.ID)
			}
			if len(res.Created) == 0 {
				fmt.Fprintln(out, "Nothing to do; everything already existed.")
			} else {
				fmt.Fprintf(out, "Created: %s\n", strings.Join(res.Created, ", "))
			}
			return nil
		},
	}

	db = dbflags.Bind(c)
	c.Flags().StringVar(&p.Slug, "slug", "", "tenant slug")
	c.Flags().StringVar(&p.Name, "name", "", "tenant display name (defaults to slug)")
	c.Flags().StringVar(&p.OrgSlug, "org-slug", "main", "slug of the first organization")
	c.Flags().StringVar(&p.OrgName, "org-name", "", "name of the first organization (defaults to slug)")
	c.Flags().StringVar(&p.AdminEmail, "admin-email", "", "initial admin user email (optional)")
	c.Flags().StringVar(&p.AdminName, "admin-name", "", "initial admin user full name")

	_ = c.MarkFlagRequired("slug")
	return c
}
