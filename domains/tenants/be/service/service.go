package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
)

const maxNameLength = 255

var sortFields = map[string]string{
	"name":      "name",
	"slug":      "slug",
	"status":    "status",
	"createdAt": model.ColumnCreatedAt,
	"updatedAt": model.ColumnUpdatedAt,
}

// Repository is the storage required by the tenants service. Tenants live outside any tenant scope.
type Repository interface {
	Create(ctx context.Context, t model.Tenant) (model.Tenant, error)
	List(ctx context.Context, opts crud.FindOptions) (crud.Result[model.Tenant], error)
	Get(ctx context.Context, id string) (model.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (model.Tenant, error)
	Update(ctx context.Context, id uuid.UUID, values crud.Values) (model.Tenant, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ListOptions filters and paginates tenants.
type ListOptions struct {
	Page   httpapi.Page
	Status *string
	Sort   string
}

// ListResult wraps a page of tenants.
type ListResult struct {
	Tenants []model.Tenant
	Page    httpapi.Page
	Total   int64
}

// CreateInput is the payload for a new tenant.
type CreateInput struct {
	Name string
	Slug string
}

// UpdateInput holds the administrator-editable fields; nil leaves a field unchanged.
type UpdateInput struct {
	Name   *string
	Status *string
}

// Service administers tenants and answers tenant resolution for the request pipeline.
type Service struct {
	repo Repository
}

// New constructs the tenants Service.
func New(repo Repository) *Service {
	if repo == nil {
		panic("tenants repository is required")
	}
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, input CreateInput) (model.Tenant, error) {
	fields := crud.FieldErrors{}

	name := strings.TrimSpace(input.Name)
	validateName(fields, name)

	slug, err := model.NormalizeSlug(input.Slug)
	if err != nil {
		fields.Add("slug", err.Error())
	}

	if len(fields) > 0 {
		return model.Tenant{}, &crud.ValidationError{Entity: model.TenantEntityName, Fields: fields}
	}

	return s.repo.Create(ctx, model.Tenant{Name: name, Slug: slug, Status: model.TenantStatusActive})
}

func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	page := httpapi.NormalizePage(opts.Page.Page, opts.Page.PageSize)

	order, err := httpapi.ParseSort(opts.Sort, sortFields)
	if err != nil {
		return ListResult{}, err
	}
	if len(order) == 0 {
		order = []crud.Order{crud.Asc("slug")}
	}

	where := crud.Where{}
	if opts.Status != nil {
		status := strings.TrimSpace(*opts.Status)
		if !validStatus(status) {
			return ListResult{}, &crud.ValidationError{Entity: model.TenantEntityName, Fields: crud.FieldErrors{"status": {"unsupported status"}}}
		}
		where["status"] = status
	}

	result, err := s.repo.List(ctx, crud.FindOptions{
		Where: where,
		Order: order,
		Skip:  page.Skip(),
		Take:  page.PageSize,
	})
	if err != nil {
		return ListResult{}, err
	}

	return ListResult{Tenants: result.Items, Page: page, Total: result.Total}, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Tenant, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (model.Tenant, error) {
	fields := crud.FieldErrors{}
	values := crud.Values{}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		validateName(fields, name)
		values["name"] = name
	}
	if input.Status != nil {
		status := strings.TrimSpace(*input.Status)
		if !validStatus(status) {
			fields.Add("status", "status must be active or suspended")
		}
		values["status"] = status
	}
	if len(values) == 0 {
		fields.Add("payload", "at least one field must be provided")
	}

	if len(fields) > 0 {
		return model.Tenant{}, &crud.ValidationError{Entity: model.TenantEntityName, Fields: fields}
	}

	return s.repo.Update(ctx, id, values)
}

// Suspend blocks every request carrying the tenant until it is activated again.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID) (model.Tenant, error) {
	status := model.TenantStatusSuspended
	return s.Update(ctx, id, UpdateInput{Status: &status})
}

// Activate reverses Suspend.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (model.Tenant, error) {
	status := model.TenantStatusActive
	return s.Update(ctx, id, UpdateInput{Status: &status})
}

// Delete soft-deletes the tenant.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// ResolveTenant loads a live tenant by id. Soft-deleted tenants resolve as crud.ErrNotFound.
func (s *Service) ResolveTenant(ctx context.Context, id uuid.UUID) (model.Tenant, error) {
	if id == uuid.Nil {
		return model.Tenant{}, crud.ErrNotFound
	}
	return s.repo.Get(ctx, id.String())
}

// ResolveSlug maps a tenant slug, as carried by tokens minted before the tenant id was known, to its id.
func (s *Service) ResolveSlug(ctx context.Context, slug string) (uuid.UUID, error) {
	normalized, err := model.NormalizeSlug(slug)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: tenant slug %q", crud.ErrNotFound, slug)
	}
	t, err := s.repo.FindBySlug(ctx, normalized)
	if err != nil {
		return uuid.Nil, err
	}
	return t.ID, nil
}

// TenantActive reports whether the tenant may serve requests.
func (s *Service) TenantActive(ctx context.Context, id uuid.UUID) (bool, error) {
	t, err := s.ResolveTenant(ctx, id)
	if err != nil {
		return false, err
	}
	return t.Status == model.TenantStatusActive && t.Active() && !t.Archived(), nil
}

func validateName(fields crud.FieldErrors, name string) {
	switch {
	case name == "":
		fields.Add("name", "name is required")
	case len(name) > maxNameLength:
		fields.Add("name", "name is too long")
	}
}

func validStatus(status string) bool {
	return status == model.TenantStatusActive || status == model.TenantStatusSuspended
}
