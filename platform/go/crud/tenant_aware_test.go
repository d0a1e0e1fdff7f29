package crud_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

func TestTenantAwareIsolation(t *testing.T) {
	f := newFixture(t)
	ctxA := tenantCtx(f.tenant(t, "acme"), nil)
	ctxB := tenantCtx(f.tenant(t, "beta"), nil)

	memberA, err := f.members.Create(ctxA, Member{Email: "shared@example.com"})
	require.NoError(t, err)
	memberB, err := f.members.Create(ctxB, Member{Email: "shared@example.com"})
	require.NoError(t, err)

	res, err := f.members.FindAll(ctxA, crud.FindOptions{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Equal(t, memberA.ID, res.Items[0].ID)
	require.EqualValues(t, 1, res.Total)

	_, err = f.members.FindOneByIDString(ctxA, memberB.ID.String(), crud.FindOneOptions{})
	require.ErrorIs(t, err, crud.ErrNotFound)

	_, err = f.members.FindOneByOptions(ctxA, crud.FindOneOptions{Where: crud.Where{"id": memberB.ID}})
	require.ErrorIs(t, err, crud.ErrNotFound)

	_, err = f.members.Update(ctxA, memberB.ID, crud.Values{"name": "hijacked"})
	require.ErrorIs(t, err, crud.ErrNotFound)

	_, err = f.members.DeleteByID(ctxA, memberB.ID)
	require.ErrorIs(t, err, crud.ErrNotFound)

	_, err = f.members.Restore(ctxA, memberB.ID)
	require.ErrorIs(t, err, crud.ErrNotFound)

	stillB, err := f.members.FindOneByIDString(ctxB, memberB.ID.String(), crud.FindOneOptions{})
	require.NoError(t, err)
	require.Nil(t, stillB.Name)
	require.False(t, stillB.Deleted())
}

func TestTenantAwareRequiresContext(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	contexts := map[string]context.Context{
		"no request context":    context.Background(),
		"system without tenant": requestcontext.WithContext(context.Background(), requestcontext.System("job-1")),
		"anonymous":             requestcontext.WithContext(context.Background(), requestcontext.Anonymous("req-1")),
	}

	for name, ctx := range contexts {
		t.Run(name, func(t *testing.T) {
			calls := []func() error{
				func() error { _, err := f.members.FindAll(ctx, crud.FindOptions{}); return err },
				func() error { _, err := f.members.Paginate(ctx, crud.FindOptions{}); return err },
				func() error { _, err := f.members.Count(ctx, crud.FindOptions{}); return err },
				func() error {
					_, err := f.members.FindOneByIDString(ctx, id.String(), crud.FindOneOptions{})
					return err
				},
				func() error { _, err := f.members.FindOneByOptions(ctx, crud.FindOneOptions{}); return err },
				func() error { _, err := f.members.Create(ctx, Member{Email: "a@example.com"}); return err },
				func() error { _, err := f.members.Update(ctx, id, crud.Values{"name": "x"}); return err },
				func() error { _, err := f.members.Delete(ctx, crud.Where{"id": id}); return err },
				func() error { _, err := f.members.DeleteByID(ctx, id); return err },
				func() error { _, err := f.events.HardDelete(ctx, crud.Where{"id": id}); return err },
				func() error { _, err := f.members.Restore(ctx, id); return err },
				func() error {
					return f.members.Transaction(ctx, func(context.Context) error { return nil })
				},
			}
			for i, call := range calls {
				err := call()
				require.ErrorIs(t, err, crud.ErrContextMissing, "call %d", i)
				require.Equal(t, 401, crud.HTTPStatus(err))
			}
		})
	}

	admin, err := crud.NewService[Member](f.driver, f.registry, "member", crud.AllowUnscoped())
	require.NoError(t, err)
	total, err := admin.Count(context.Background(), crud.FindOptions{WithDeleted: true})
	require.NoError(t, err)
	require.Zero(t, total)

	require.Contains(t, f.observer.all(), "member/create/memory/context_missing")
}

func TestTenantAwareExplicitTenantFilter(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant(t, "acme")
	beta := f.tenant(t, "beta")
	ctx := tenantCtx(acme, nil)

	_, err := f.members.Create(ctx, Member{Email: "a@example.com"})
	require.NoError(t, err)

	own, err := f.members.FindAll(ctx, crud.FindOptions{Where: crud.Where{"tenant_id": acme}})
	require.NoError(t, err)
	require.Len(t, own.Items, 1)

	own, err = f.members.FindAll(ctx, crud.FindOptions{Where: crud.Where{"tenant_id": crud.In(acme.String())}})
	require.NoError(t, err)
	require.Len(t, own.Items, 1)

	for name, where := range map[string]crud.Where{
		"other tenant":  {"tenant_id": beta},
		"mixed in list": {"tenant_id": crud.In(acme, beta)},
		"negated":       {"tenant_id": crud.NotEq(acme)},
		"null tenant":   {"tenant_id": nil},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.members.FindAll(ctx, crud.FindOptions{Where: where})
			require.ErrorIs(t, err, crud.ErrForbidden)
			require.Equal(t, 403, crud.HTTPStatus(err))
		})
	}

	// Relation filters stay inside the scope: no member of acme belongs to beta.
	viaRelation, err := f.members.FindAll(ctx, crud.FindOptions{Where: crud.Where{"tenant": crud.Where{"id": beta}}})
	require.NoError(t, err)
	require.Empty(t, viaRelation.Items)

	_, err = f.members.Delete(ctx, crud.Where{"tenant_id": beta})
	require.ErrorIs(t, err, crud.ErrForbidden)
}

func TestTenantAwareCreateStampsOwnership(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant(t, "acme")
	beta := f.tenant(t, "beta")

	created, err := f.members.Create(tenantCtx(acme, nil), Member{
		TenantBase: model.TenantBase{TenantID: &beta},
		Email:      "a@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, created.TenantID)
	require.Equal(t, acme, *created.TenantID)

	_, err = f.members.FindOneByIDString(tenantCtx(beta, nil), created.ID.String(), crud.FindOneOptions{})
	require.ErrorIs(t, err, crud.ErrNotFound)
}

func TestTenantAwareUniqueWithinTenant(t *testing.T) {
	f := newFixture(t)
	ctx := tenantCtx(f.tenant(t, "acme"), nil)

	_, err := f.members.Create(ctx, Member{Email: "a@example.com"})
	require.NoError(t, err)
	_, err = f.members.Create(ctx, Member{Email: "a@example.com"})
	require.ErrorIs(t, err, crud.ErrConflict)
}

func TestTenantAwareOrganizationScope(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant(t, "acme")
	north := f.org(t, acme, "north")
	south := f.org(t, acme, "south")

	northCtx := tenantCtx(acme, &north)
	southCtx := tenantCtx(acme, &south)
	tenantWide := tenantCtx(acme, nil)

	inNorth, err := f.projects.Create(northCtx, Project{Name: "Apollo", TenantOrganizationBase: model.TenantOrganizationBase{OrganizationID: &south}})
	require.NoError(t, err)
	require.Equal(t, north, *inNorth.OrganizationID)

	inSouth, err := f.projects.Create(southCtx, Project{Name: "Gemini"})
	require.NoError(t, err)
	require.Equal(t, south, *inSouth.OrganizationID)

	unassigned, err := f.projects.Create(tenantWide, Project{Name: "Mercury"})
	require.NoError(t, err)
	require.Nil(t, unassigned.OrganizationID)

	northOnly, err := f.projects.FindAll(northCtx, crud.FindOptions{})
	require.NoError(t, err)
	require.Len(t, northOnly.Items, 1)
	require.Equal(t, inNorth.ID, northOnly.Items[0].ID)

	all, err := f.projects.FindAll(tenantWide, crud.FindOptions{})
	require.NoError(t, err)
	require.Len(t, all.Items, 3)

	_, err = f.projects.FindAll(northCtx, crud.FindOptions{Where: crud.Where{"organization_id": south}})
	require.ErrorIs(t, err, crud.ErrForbidden)

	_, err = f.projects.Update(northCtx, inNorth.ID, crud.Values{"organization_id": south})
	require.ErrorIs(t, err, crud.ErrForbidden)

	_, err = f.projects.Update(northCtx, inSouth.ID, crud.Values{"name": "renamed"})
	require.ErrorIs(t, err, crud.ErrNotFound)

	moved, err := f.projects.Update(tenantWide, unassigned.ID, crud.Values{"organization_id": north})
	require.NoError(t, err)
	require.Equal(t, north, *moved.OrganizationID)
}

func TestTenantAwareRejectsCrossTenantReferences(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant(t, "acme")
	beta := f.tenant(t, "beta")
	ctxA := tenantCtx(acme, nil)
	ctxB := tenantCtx(beta, nil)

	foreignMember, err := f.members.Create(ctxB, Member{Email: "b@example.com"})
	require.NoError(t, err)
	foreignOrg := f.org(t, beta, "beta-hq")

	_, err = f.projects.Create(ctxA, Project{Name: "Apollo", OwnerID: &foreignMember.ID})
	require.Contains(t, fieldErrors(t, err), "owner_id")

	_, err = f.projects.Create(ctxA, Project{
		Name:                   "Apollo",
		TenantOrganizationBase: model.TenantOrganizationBase{OrganizationID: &foreignOrg},
	})
	require.Contains(t, fieldErrors(t, err), "organization_id")

	project, err := f.projects.Create(ctxA, Project{Name: "Apollo"})
	require.NoError(t, err)

	_, err = f.projects.Update(ctxA, project.ID, crud.Values{"owner_id": foreignMember.ID})
	require.Contains(t, fieldErrors(t, err), "owner_id")

	_, err = f.projects.Create(ctxA, Project{Name: "Gemini", OwnerID: ptr(uuid.New())})
	require.Contains(t, fieldErrors(t, err), "owner_id")
}

func TestTenantAwareLoadsScopedRelations(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant(t, "acme")
	north := f.org(t, acme, "north")
	ctx := tenantCtx(acme, nil)

	owner, err := f.members.Create(ctx, Member{Email: "owner@example.com", Name: ptr("Owner")})
	require.NoError(t, err)

	withOwner, err := f.projects.Create(ctx, Project{
		Name:                   "Apollo",
		OwnerID:                &owner.ID,
		TenantOrganizationBase: model.TenantOrganizationBase{OrganizationID: &north},
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	orphan, err := f.projects.Create(ctx, Project{Name: "Gemini"})
	require.NoError(t, err)

	res, err := f.projects.FindAll(ctx, crud.FindOptions{Relations: []string{"owner", "organization"}})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	require.Equal(t, withOwner.ID, res.Items[0].ID)
	require.NotNil(t, res.Items[0].Owner)
	require.Equal(t, "owner@example.com", res.Items[0].Owner.Email)
	require.NotNil(t, res.Items[0].Organization)
	require.Equal(t, "north", res.Items[0].Organization.Slug)

	require.Equal(t, orphan.ID, res.Items[1].ID)
	require.Nil(t, res.Items[1].Owner)
	require.Nil(t, res.Items[1].Organization)

	byOwner, err := f.projects.FindAll(ctx, crud.FindOptions{Where: crud.Where{"owner": crud.Where{"email": "owner@example.com"}}})
	require.NoError(t, err)
	require.Len(t, byOwner.Items, 1)
	require.Equal(t, withOwner.ID, byOwner.Items[0].ID)

	_, err = f.members.DeleteByID(ctx, owner.ID)
	require.NoError(t, err)

	reloaded, err := f.projects.FindOneByIDString(ctx, withOwner.ID.String(), crud.FindOneOptions{Relations: []string{"owner"}})
	require.NoError(t, err)
	require.Nil(t, reloaded.Owner, "soft-deleted relations are hidden")
	require.Equal(t, owner.ID, *reloaded.OwnerID)

	reloaded, err = f.projects.FindOneByIDString(ctx, withOwner.ID.String(), crud.FindOneOptions{Relations: []string{"owner"}, WithDeleted: true})
	require.NoError(t, err)
	require.NotNil(t, reloaded.Owner)

	byOwner, err = f.projects.FindAll(ctx, crud.FindOptions{Where: crud.Where{"owner": crud.Where{"email": "owner@example.com"}}})
	require.NoError(t, err)
	require.Empty(t, byOwner.Items)
}

func TestTenantAwareUpdateIgnoresTenantID(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant(t, "acme")
	beta := f.tenant(t, "beta")
	ctx := tenantCtx(acme, nil)

	member, err := f.members.Create(ctx, Member{Email: "a@example.com"})
	require.NoError(t, err)

	updated, err := f.members.Update(ctx, member.ID, crud.Values{"tenant_id": beta, "name": "Ada"})
	require.NoError(t, err)
	require.Equal(t, acme, *updated.TenantID)
	require.Equal(t, "Ada", *updated.Name)

	_, err = f.members.Update(ctx, member.ID, crud.Values{"tenant_id": beta})
	require.Contains(t, fieldErrors(t, err), "payload")

	loaded, err := f.members.FindOneByIDString(ctx, member.ID.String(), crud.FindOneOptions{})
	require.NoError(t, err)
	require.Equal(t, acme, *loaded.TenantID)
}

func TestTenantAwareSoftDeleteLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := tenantCtx(f.tenant(t, "acme"), nil)

	ada, err := f.members.Create(ctx, Member{Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = f.members.Create(ctx, Member{Email: "bob@example.com"})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	res, err := f.members.Delete(ctx, crud.Where{"email": "ada@example.com"})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Affected)

	live, err := f.members.FindAll(ctx, crud.FindOptions{})
	require.NoError(t, err)
	require.Len(t, live.Items, 1)
	require.Equal(t, "bob@example.com", live.Items[0].Email)

	everything, err := f.members.FindAll(ctx, crud.FindOptions{WithDeleted: true})
	require.NoError(t, err)
	require.Len(t, everything.Items, 2)

	deleted, err := f.members.FindOneByIDString(ctx, ada.ID.String(), crud.FindOneOptions{WithDeleted: true})
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)
	require.Equal(t, f.clock.Now(), *deleted.DeletedAt)

	// A soft-deleted row still holds its unique key.
	_, err = f.members.Create(ctx, Member{Email: "ada@example.com"})
	require.ErrorIs(t, err, crud.ErrConflict)

	restored, err := f.members.Restore(ctx, ada.ID)
	require.NoError(t, err)
	require.Nil(t, restored.DeletedAt)

	live, err = f.members.FindAll(ctx, crud.FindOptions{})
	require.NoError(t, err)
	require.Len(t, live.Items, 2)
}

func TestTenantAwareHardDelete(t *testing.T) {
	f := newFixture(t)
	ctxA := tenantCtx(f.tenant(t, "acme"), nil)
	ctxB := tenantCtx(f.tenant(t, "beta"), nil)

	for _, ctx := range []context.Context{ctxA, ctxB} {
		for _, msg := range []string{"login", "logout"} {
			_, err := f.events.Create(ctx, Event{Message: msg})
			require.NoError(t, err)
		}
	}

	_, err := f.events.Delete(ctxA, crud.Where{"message": "logout"})
	require.NoError(t, err)

	_, err = f.events.HardDelete(ctxA, crud.Where{})
	require.Contains(t, fieldErrors(t, err), "where")

	res, err := f.events.HardDelete(ctxA, crud.Where{"message": crud.In("login", "logout")})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Affected, "soft-deleted rows are purged too")

	_, err = f.events.HardDelete(ctxA, crud.Where{"message": "login"})
	require.ErrorIs(t, err, crud.ErrNotFound)

	remaining, err := f.events.Count(ctxB, crud.FindOptions{WithDeleted: true})
	require.NoError(t, err)
	require.EqualValues(t, 2, remaining)

	_, err = f.members.HardDelete(ctxA, crud.Where{"email": "x"})
	require.ErrorIs(t, err, crud.ErrValidation)
}

func TestTenantAwareTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := tenantCtx(f.tenant(t, "acme"), nil)
	boom := errors.New("boom")

	err := f.members.Transaction(ctx, func(ctx context.Context) error {
		owner, err := f.members.Create(ctx, Member{Email: "owner@example.com"})
		if err != nil {
			return err
		}
		if _, err := f.projects.Create(ctx, Project{Name: "Apollo", OwnerID: &owner.ID}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	members, err := f.members.Count(ctx, crud.FindOptions{WithDeleted: true})
	require.NoError(t, err)
	require.Zero(t, members)
	projects, err := f.projects.Count(ctx, crud.FindOptions{WithDeleted: true})
	require.NoError(t, err)
	require.Zero(t, projects)

	err = f.members.Transaction(ctx, func(ctx context.Context) error {
		owner, err := f.members.Create(ctx, Member{Email: "owner@example.com"})
		if err != nil {
			return err
		}
		_, err = f.projects.Create(ctx, Project{Name: "Apollo", OwnerID: &owner.ID})
		return err
	})
	require.NoError(t, err)

	projects, err = f.projects.Count(ctx, crud.FindOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, projects)

	err = f.members.Transaction(ctx, func(ctx context.Context) error {
		_, err := f.members.Create(ctx, Member{Email: "owner@example.com"})
		return err
	})
	require.ErrorIs(t, err, crud.ErrConflict)
}

func TestTenantAwareImpersonation(t *testing.T) {
	f := newFixture(t)
	acme := f.tenant(t, "acme")
	_, err := f.members.Create(tenantCtx(acme, nil), Member{Email: "a@example.com"})
	require.NoError(t, err)

	system := requestcontext.WithContext(context.Background(), requestcontext.System("job-1"))
	err = requestcontext.Impersonate(system, acme, nil, func(ctx context.Context) error {
		res, err := f.members.FindAll(ctx, crud.FindOptions{})
		if err != nil {
			return err
		}
		require.Len(t, res.Items, 1)
		return nil
	})
	require.NoError(t, err)

	_, err = f.members.FindAll(system, crud.FindOptions{})
	require.ErrorIs(t, err, crud.ErrContextMissing)

	user := tenantCtx(f.tenant(t, "beta"), nil)
	err = requestcontext.Impersonate(user, acme, nil, func(context.Context) error { return nil })
	require.ErrorIs(t, err, crud.ErrForbidden)
}

func TestTenantAwareConcurrentRequests(t *testing.T) {
	f := newFixture(t)
	tenants := []uuid.UUID{f.tenant(t, "acme"), f.tenant(t, "beta"), f.tenant(t, "gamma")}

	var wg sync.WaitGroup
	errs := make(chan error, len(tenants)*10)
	for _, tenantID := range tenants {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(tenantID uuid.UUID) {
				defer wg.Done()
				ctx := tenantCtx(tenantID, nil)
				created, err := f.members.Create(ctx, Member{Email: uuid.NewString() + "@example.com"})
				if err != nil {
					errs <- err
					return
				}
				if *created.TenantID != tenantID {
					errs <- errors.New("member stamped with the wrong tenant")
				}
			}(tenantID)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, tenantID := range tenants {
		total, err := f.members.Count(tenantCtx(tenantID, nil), crud.FindOptions{})
		require.NoError(t, err)
		require.EqualValues(t, 10, total)
	}
}
