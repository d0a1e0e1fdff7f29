package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy-core/apps/internal/wiring"
	auditservice "github.com/zenGate-Global/palmyra-tenancy-core/domains/auditlogs/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

func TestSeedTenantIsIdempotent(t *testing.T) {
	ctx := context.Background()
	registry, err := wiring.Registry()
	require.NoError(t, err)
	driver := persistence.NewMemoryDriver()
	require.NoError(t, driver.EnsureSchema(ctx, registry))
	domains, err := wiring.Build(driver, registry)
	require.NoError(t, err)

	params := TenantParams{Slug: "acme", Name: "Acme", OrgName: "Head Office", AdminEmail: "Admin@Acme.test", AdminName: "Ada"}

	first, err := SeedTenant(ctx, domains, params)
	require.NoError(t, err)
	require.Equal(t, []string{"tenant", "organization", "admin"}, first.Created)
	require.Equal(t, "main", first.Organization.Slug)
	require.Equal(t, first.Tenant.ID, *first.Organization.TenantID)
	require.Equal(t, "admin@acme.test", first.Admin.Email)

	second, err := SeedTenant(ctx, domains, params)
	require.NoError(t, err)
	require.Empty(t, second.Created)
	require.Equal(t, first.Tenant.ID, second.Tenant.ID)
	require.Equal(t, first.Organization.ID, second.Organization.ID)
	require.Equal(t, first.Admin.ID, second.Admin.ID)

	var entries auditservice.ListResult
	require.NoError(t, requestcontext.Run(ctx, requestcontext.System("check"), func(ctx context.Context) error {
		return requestcontext.Impersonate(ctx, first.Tenant.ID, nil, func(ctx context.Context) error {
			entries, err = domains.AuditLogs.List(ctx, auditservice.ListOptions{})
			return err
		})
	}))
	require.EqualValues(t, 1, entries.Total)
	require.Equal(t, "tenant.bootstrapped", entries.Entries[0].Action)
}

func TestSeedTenantRejectsBadSlug(t *testing.T) {
	ctx := context.Background()
	registry, err := wiring.Registry()
	require.NoError(t, err)
	driver := persistence.NewMemoryDriver()
	require.NoError(t, driver.EnsureSchema(ctx, registry))
	domains, err := wiring.Build(driver, registry)
	require.NoError(t, err)

	_, err = SeedTenant(ctx, domains, TenantParams{Slug: "not a slug!"})
	require.Error(t, err)
}
