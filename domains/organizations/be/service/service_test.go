package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

type mockRepository struct {
	createFn func(ctx context.Context, org model.Organization) (model.Organization, error)
	getFn    func(ctx context.Context, id string) (model.Organization, error)
	updateFn func(ctx context.Context, id uuid.UUID, values crud.Values) (model.Organization, error)
}

func (m *mockRepository) Create(ctx context.Context, org model.Organization) (model.Organization, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, org)
}

func (m *mockRepository) List(context.Context, crud.FindOptions) (crud.Result[model.Organization], error) {
	panic("List not configured")
}

func (m *mockRepository) Get(ctx context.Context, id string) (model.Organization, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, id)
}

func (m *mockRepository) Update(ctx context.Context, id uuid.UUID, values crud.Values) (model.Organization, error) {
	if m.updateFn == nil {
		panic("updateFn not configured")
	}
	return m.updateFn(ctx, id, values)
}

func (m *mockRepository) Delete(context.Context, uuid.UUID) error {
	panic("Delete not configured")
}

func TestServiceCreateNormalizes(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	repo.createFn = func(_ context.Context, org model.Organization) (model.Organization, error) {
		require.Equal(t, "north-america", org.Slug)
		require.Equal(t, "USD", *org.Currency)
		require.Nil(t, org.OfficialName)
		require.Nil(t, org.TenantID)
		return org, nil
	}

	_, err := New(repo).Create(context.Background(), CreateInput{
		Name:         "North America",
		Slug:         " North America ",
		OfficialName: ptr("  "),
		Currency:     ptr(" usd "),
	})
	require.NoError(t, err)
}

func TestServiceValidation(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{})

	tests := []struct {
		name   string
		run    func() error
		fields []string
	}{
		{
			name: "create",
			run: func() error {
				_, err := svc.Create(context.Background(), CreateInput{Slug: "--", Currency: ptr("euro")})
				return err
			},
			fields: []string{"name", "slug", "currency"},
		},
		{
			name: "update empty",
			run: func() error {
				_, err := svc.Update(context.Background(), uuid.New(), UpdateInput{})
				return err
			},
			fields: []string{"payload"},
		},
		{
			name: "update blank name",
			run: func() error {
				_, err := svc.Update(context.Background(), uuid.New(), UpdateInput{Name: ptr("")})
				return err
			},
			fields: []string{"name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var validationErr *crud.ValidationError
			require.ErrorAs(t, tt.run(), &validationErr)
			for _, field := range tt.fields {
				require.Contains(t, validationErr.Fields, field)
			}
		})
	}
}

func TestBelongsToTenantImpersonates(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	orgID := uuid.New()
	failure := errors.New("boom")

	var seen requestcontext.Context
	repo := &mockRepository{}
	repo.getFn = func(ctx context.Context, id string) (model.Organization, error) {
		seen, _ = requestcontext.FromContext(ctx)
		switch id {
		case orgID.String():
			return model.Organization{}, nil
		case tenantID.String():
			return model.Organization{}, failure
		default:
			return model.Organization{}, crud.ErrNotFound
		}
	}
	svc := New(repo)

	belongs, err := svc.BelongsToTenant(context.Background(), tenantID, orgID)
	require.NoError(t, err)
	require.True(t, belongs)
	require.Equal(t, requestcontext.ActorKindSystem, seen.Actor)
	require.Equal(t, tenantID, *seen.TenantID)
	require.Nil(t, seen.OrganizationID)

	belongs, err = svc.BelongsToTenant(context.Background(), tenantID, uuid.New())
	require.NoError(t, err)
	require.False(t, belongs)

	_, err = svc.BelongsToTenant(context.Background(), tenantID, tenantID)
	require.ErrorIs(t, err, failure)

	belongs, err = svc.BelongsToTenant(context.Background(), uuid.Nil, orgID)
	require.NoError(t, err)
	require.False(t, belongs)
}

func ptr(s string) *string { return &s }
