package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/organizations/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

type env struct {
	svc     *service.Service
	tenants *crud.Service[model.Tenant]
}

func newEnv(t *testing.T) env {
	t.Helper()

	registry := schema.MustRegistry(model.CoreEntities()...)
	driver := persistence.NewMemoryDriver()
	require.NoError(t, driver.EnsureSchema(context.Background(), registry))

	repo, err := New(driver, registry)
	require.NoError(t, err)
	tenants, err := crud.NewService[model.Tenant](driver, registry, model.TenantEntityName)
	require.NoError(t, err)

	return env{svc: service.New(repo), tenants: tenants}
}

func (e env) tenant(t *testing.T, slug string) context.Context {
	t.Helper()
	created, err := e.tenants.Create(context.Background(), model.Tenant{Name: slug, Slug: slug})
	require.NoError(t, err)
	id := created.ID
	return requestcontext.WithContext(context.Background(), requestcontext.Context{
		Actor:    requestcontext.ActorKindUser,
		TenantID: &id,
	})
}

func TestOrganizationsAreTenantScoped(t *testing.T) {
	e := newEnv(t)
	acme := e.tenant(t, "acme")
	globex := e.tenant(t, "globex")

	hq, err := e.svc.Create(acme, service.CreateInput{Name: "Headquarters", Slug: "HQ", Currency: ptr("eur")})
	require.NoError(t, err)
	require.Equal(t, "hq", hq.Slug)
	require.Equal(t, "EUR", *hq.Currency)

	acmeID, _ := requestcontext.CurrentTenantID(acme)
	require.Equal(t, acmeID, *hq.TenantID)

	// Same slug in another tenant is fine; within a tenant it conflicts.
	_, err = e.svc.Create(globex, service.CreateInput{Name: "Headquarters", Slug: "hq"})
	require.NoError(t, err)
	_, err = e.svc.Create(acme, service.CreateInput{Name: "Other", Slug: "hq"})
	require.ErrorIs(t, err, crud.ErrConflict)

	_, err = e.svc.Get(globex, hq.ID.String())
	require.ErrorIs(t, err, crud.ErrNotFound)
	require.ErrorIs(t, e.svc.Delete(globex, hq.ID), crud.ErrNotFound)

	list, err := e.svc.List(acme, service.ListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, list.Total)

	_, err = e.svc.List(context.Background(), service.ListOptions{})
	require.ErrorIs(t, err, crud.ErrContextMissing)

	renamed, err := e.svc.Update(acme, hq.ID, service.UpdateInput{Name: ptr("Head Office"), Currency: ptr("")})
	require.NoError(t, err)
	require.Equal(t, "Head Office", renamed.Name)
	require.Nil(t, renamed.Currency)
}

func TestBelongsToTenant(t *testing.T) {
	e := newEnv(t)
	acme := e.tenant(t, "acme")
	globex := e.tenant(t, "globex")
	acmeID, _ := requestcontext.CurrentTenantID(acme)
	globexID, _ := requestcontext.CurrentTenantID(globex)

	hq, err := e.svc.Create(acme, service.CreateInput{Name: "HQ", Slug: "hq"})
	require.NoError(t, err)

	ctx := context.Background()
	belongs, err := e.svc.BelongsToTenant(ctx, acmeID, hq.ID)
	require.NoError(t, err)
	require.True(t, belongs)

	belongs, err = e.svc.BelongsToTenant(ctx, globexID, hq.ID)
	require.NoError(t, err)
	require.False(t, belongs)

	belongs, err = e.svc.BelongsToTenant(ctx, acmeID, uuid.New())
	require.NoError(t, err)
	require.False(t, belongs)

	require.NoError(t, e.svc.Delete(acme, hq.ID))
	belongs, err = e.svc.BelongsToTenant(ctx, acmeID, hq.ID)
	require.NoError(t, err)
	require.False(t, belongs)

	// The caller's context is left untouched.
	_, ok := requestcontext.FromContext(ctx)
	require.False(t, ok)
}

func ptr(s string) *string { return &s }
