package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

// EntityName is the metadata name of the users entity.
const EntityName = "user"

// Roles a tenant user can hold.
const (
	RoleMember = "member"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

var sortFields = map[string]string{
	"email":     "email",
	"fullName":  "full_name",
	"createdAt": model.ColumnCreatedAt,
	"updatedAt": model.ColumnUpdatedAt,
}

// User is a member of a tenant.
type User struct {
	model.TenantBase
	Email    string `db:"email" json:"email"`
	FullName string `db:"full_name" json:"fullName"`
	Role     string `db:"role" json:"role"`
}

// Repository is the tenant-scoped storage of users.
type Repository interface {
	Create(ctx context.Context, user User) (User, error)
	List(ctx context.Context, opts crud.FindOptions) (crud.Result[User], error)
	Get(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Update(ctx context.Context, id uuid.UUID, values crud.Values) (User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ListOptions controls filtering and pagination.
type ListOptions struct {
	Page  httpapi.Page
	Email *string
	Sort  string
}

// ListResult wraps a page of users.
type ListResult struct {
	Users []User
	Page  httpapi.Page
	Total int64
}

// CreateInput represents the payload required to create a new user.
type CreateInput struct {
	Email    string
	FullName string
	Role     string
}

// UpdateInput encapsulates fields that can be modified by administrators.
type UpdateInput struct {
	FullName *string
	Role     *string
}

// UpdateSelfInput encapsulates fields that the authenticated user can modify.
type UpdateSelfInput struct {
	FullName *string
}

// Service implements the users domain for the tenant in the request context.
type Service struct {
	repo Repository
}

// New constructs a users Service backed by the provided repository.
func New(r Repository) *Service {
	if r == nil {
		panic("users repository is required")
	}
	return &Service{repo: r}
}

func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	fields := crud.FieldErrors{}

	email := normalizeEmail(fields, input.Email)
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		fields.Add("fullName", "fullName is required")
	}
	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = RoleMember
	} else if !validRole(role) {
		fields.Add("role", fmt.Sprintf("unsupported role %q", role))
	}

	if len(fields) > 0 {
		return User{}, &crud.ValidationError{Entity: EntityName, Fields: fields}
	}

	return s.repo.Create(ctx, User{Email: email, FullName: fullName, Role: role})
}

func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	page := httpapi.NormalizePage(opts.Page.Page, opts.Page.PageSize)

	order, err := httpapi.ParseSort(opts.Sort, sortFields)
	if err != nil {
		return ListResult{}, err
	}
	if len(order) == 0 {
		order = []crud.Order{crud.Asc("email")}
	}

	where := crud.Where{}
	if opts.Email != nil && strings.TrimSpace(*opts.Email) != "" {
		where["email"] = crud.Like("%" + escapeLike(strings.ToLower(strings.TrimSpace(*opts.Email))) + "%")
	}

	result, err := s.repo.List(ctx, crud.FindOptions{Where: where, Order: order, Skip: page.Skip(), Take: page.PageSize})
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Users: result.Items, Page: page, Total: result.Total}, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (User, error) {
	fields := crud.FieldErrors{}
	values := crud.Values{}

	if input.FullName != nil {
		name := strings.TrimSpace(*input.FullName)
		if name == "" {
			fields.Add("fullName", "fullName cannot be empty")
		}
		values["full_name"] = name
	}
	if input.Role != nil {
		role := strings.TrimSpace(*input.Role)
		if !validRole(role) {
			fields.Add("role", fmt.Sprintf("unsupported role %q", role))
		}
		values["role"] = role
	}
	if len(values) == 0 {
		fields.Add("payload", "at least one field must be provided")
	}

	if len(fields) > 0 {
		return User{}, &crud.ValidationError{Entity: EntityName, Fields: fields}
	}
	return s.repo.Update(ctx, id, values)
}

// Me returns the tenant user matching the authenticated principal's email.
func (s *Service) Me(ctx context.Context) (User, error) {
	principal, err := requestcontext.CurrentUser(ctx)
	if err != nil {
		return User{}, err
	}
	if principal == nil || strings.TrimSpace(principal.Email) == "" {
		return User{}, crud.ErrContextMissing
	}
	return s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(principal.Email)))
}

// UpdateSelf lets the authenticated user change their own profile.
func (s *Service) UpdateSelf(ctx context.Context, input UpdateSelfInput) (User, error) {
	if input.FullName == nil {
		return User{}, &crud.ValidationError{Entity: EntityName, Fields: crud.FieldErrors{"fullName": {"fullName is required"}}}
	}
	fullName := strings.TrimSpace(*input.FullName)
	if fullName == "" {
		return User{}, &crud.ValidationError{Entity: EntityName, Fields: crud.FieldErrors{"fullName": {"fullName cannot be empty"}}}
	}

	me, err := s.Me(ctx)
	if err != nil {
		return User{}, err
	}
	return s.repo.Update(ctx, me.ID, crud.Values{"full_name": fullName})
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func normalizeEmail(fields crud.FieldErrors, raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		fields.Add("email", "email is required")
		return email
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		fields.Add("email", "email must be a valid address")
	}
	return email
}

func validRole(role string) bool {
	switch role {
	case RoleMember, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
