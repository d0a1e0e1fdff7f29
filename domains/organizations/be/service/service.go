package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

var sortFields = map[string]string{
	"name":      "name",
	"slug":      "slug",
	"createdAt": model.ColumnCreatedAt,
}

// Repository is the tenant-scoped storage of organizations.
type Repository interface {
	Create(ctx context.Context, org model.Organization) (model.Organization, error)
	List(ctx context.Context, opts crud.FindOptions) (crud.Result[model.Organization], error)
	Get(ctx context.Context, id string) (model.Organization, error)
	Update(ctx context.Context, id uuid.UUID, values crud.Values) (model.Organization, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ListOptions filters and paginates organizations of the current tenant.
type ListOptions struct {
	Page httpapi.Page
	Slug *string
	Sort string
}

// ListResult wraps a page of organizations.
type ListResult struct {
	Organizations []model.Organization
	Page          httpapi.Page
	Total         int64
}

// CreateInput is the payload for a new organization.
type CreateInput struct {
	Name         string
	Slug         string
	OfficialName *string
	Currency     *string
}

// UpdateInput holds editable fields; nil leaves a field unchanged. The slug is fixed after creation.
type UpdateInput struct {
	Name         *string
	OfficialName *string
	Currency     *string
}

// Service manages the organizations of the tenant in the request context.
type Service struct {
	repo Repository
}

// New constructs the organizations Service.
func New(repo Repository) *Service {
	if repo == nil {
		panic("organizations repository is required")
	}
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, input CreateInput) (model.Organization, error) {
	fields := crud.FieldErrors{}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		fields.Add("name", "name is required")
	}
	slug, err := model.NormalizeSlug(input.Slug)
	if err != nil {
		fields.Add("slug", err.Error())
	}
	currency := normalizeCurrency(fields, input.Currency)

	if len(fields) > 0 {
		return model.Organization{}, &crud.ValidationError{Entity: model.OrganizationEntityName, Fields: fields}
	}

	return s.repo.Create(ctx, model.Organization{
		Name:         name,
		Slug:         slug,
		OfficialName: trimmed(input.OfficialName),
		Currency:     currency,
	})
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
	if opts.Slug != nil {
		slug, err := model.NormalizeSlug(*opts.Slug)
		if err != nil {
			return ListResult{}, &crud.ValidationError{Entity: model.OrganizationEntityName, Fields: crud.FieldErrors{"slug": {err.Error()}}}
		}
		where["slug"] = slug
	}

	result, err := s.repo.List(ctx, crud.FindOptions{Where: where, Order: order, Skip: page.Skip(), Take: page.PageSize})
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Organizations: result.Items, Page: page, Total: result.Total}, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Organization, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (model.Organization, error) {
	fields := crud.FieldErrors{}
	values := crud.Values{}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			fields.Add("name", "name cannot be empty")
		}
		values["name"] = name
	}
	if input.OfficialName != nil {
		values["official_name"] = trimmed(input.OfficialName)
	}
	if input.Currency != nil {
		values["currency"] = normalizeCurrency(fields, input.Currency)
	}
	if len(values) == 0 {
		fields.Add("payload", "at least one field must be provided")
	}

	if len(fields) > 0 {
		return model.Organization{}, &crud.ValidationError{Entity: model.OrganizationEntityName, Fields: fields}
	}
	return s.repo.Update(ctx, id, values)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// BelongsToTenant reports whether orgID is a live organization of tenantID. It runs as a system actor
// impersonating the tenant, so it is safe to call before any request context exists.
func (s *Service) BelongsToTenant(ctx context.Context, tenantID, orgID uuid.UUID) (bool, error) {
	if tenantID == uuid.Nil || orgID == uuid.Nil {
		return false, nil
	}

	system := requestcontext.System(requestcontext.CurrentRequestID(ctx))
	err := requestcontext.Run(ctx, system, func(ctx context.Context) error {
		return requestcontext.Impersonate(ctx, tenantID, nil, func(ctx context.Context) error {
			_, err := s.repo.Get(ctx, orgID.String())
			return err
		})
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, crud.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func normalizeCurrency(fields crud.FieldErrors, raw *string) *string {
	value := trimmed(raw)
	if value == nil {
		return nil
	}
	upper := strings.ToUpper(*value)
	if !currencyPattern.MatchString(upper) {
		fields.Add("currency", "currency must be a three-letter ISO 4217 code")
	}
	return &upper
}

func trimmed(raw *string) *string {
	if raw == nil {
		return nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil
	}
	return &value
}
