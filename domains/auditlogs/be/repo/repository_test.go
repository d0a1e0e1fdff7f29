package repo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/auditlogs/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestAuditTrailRecordListPurge(t *testing.T) {
	ctx := context.Background()
	registry := schema.MustRegistry(append(model.CoreEntities(), Entity)...)
	driver := persistence.NewMemoryDriver()
	require.NoError(t, driver.EnsureSchema(ctx, registry))

	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	repo, err := New(driver, registry, crud.WithClock(c.Now))
	require.NoError(t, err)
	svc := service.New(repo)

	tenants, err := crud.NewService[model.Tenant](driver, registry, model.TenantEntityName)
	require.NoError(t, err)
	acme, err := tenants.Create(ctx, model.Tenant{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	globex, err := tenants.Create(ctx, model.Tenant{Name: "Globex", Slug: "globex"})
	require.NoError(t, err)

	scoped := func(id uuid.UUID) context.Context {
		return requestcontext.WithContext(ctx, requestcontext.Context{
			Actor:    requestcontext.ActorKindUser,
			User:     &requestcontext.User{ID: "uid-7"},
			TenantID: &id,
		})
	}
	acmeCtx, globexCtx := scoped(acme.ID), scoped(globex.ID)

	subject := uuid.New()
	old, err := svc.Record(acmeCtx, service.RecordInput{Action: "award.split", Entity: "award", EntityID: &subject, Details: map[string]any{"amount": 25}})
	require.NoError(t, err)
	require.Equal(t, "uid-7", *old.ActorID)
	require.JSONEq(t, `{"amount":25}`, string(old.Details))

	c.now = c.now.Add(48 * time.Hour)
	_, err = svc.Record(acmeCtx, service.RecordInput{Action: "award.deleted", Entity: "award", EntityID: &subject})
	require.NoError(t, err)
	_, err = svc.Record(globexCtx, service.RecordInput{Action: "award.split", Entity: "award"})
	require.NoError(t, err)

	list, err := svc.List(acmeCtx, service.ListOptions{EntityID: &subject})
	require.NoError(t, err)
	require.EqualValues(t, 2, list.Total)
	require.Equal(t, "award.deleted", list.Entries[0].Action)

	split := "award.split"
	list, err = svc.List(acmeCtx, service.ListOptions{Action: &split})
	require.NoError(t, err)
	require.EqualValues(t, 1, list.Total)

	purged, err := svc.Purge(acmeCtx, c.now.Add(-time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	_, err = svc.Get(acmeCtx, old.ID.String())
	require.ErrorIs(t, err, crud.ErrNotFound)

	purged, err = svc.Purge(acmeCtx, c.now.Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, purged)

	// The other tenant's entry is untouched by the purge.
	list, err = svc.List(globexCtx, service.ListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, list.Total)

	var details map[string]any
	require.NoError(t, json.Unmarshal(old.Details, &details))
	require.Equal(t, float64(25), details["amount"])
}
