package requestcontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

type contextKey string

const ctxRequestContext contextKey = "PALMYRA_REQUEST_CONTEXT"

// DefaultLanguage is returned by LanguageCode when the request did not negotiate one.
const DefaultLanguage = "en"

// PermissionTenantImpersonate allows a caller to run work on behalf of another tenant via Impersonate.
const PermissionTenantImpersonate = "tenant:impersonate"

var (
	// ErrContextMissing is returned by every read when no request context has been established, and by
	// CurrentTenantID when the established context carries no tenant.
	ErrContextMissing = errors.New("request context missing")
	// ErrForbidden is returned when the current context lacks the permission for an operation.
	ErrForbidden = errors.New("forbidden")
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// User is the authenticated principal of a request.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Context is the per-request ambient state. It is a value: Run and Impersonate never mutate an
// established Context, they shadow it.
type Context struct {
	RequestID      string     `json:"requestId,omitempty"`
	Actor          ActorKind  `json:"actor"`
	User           *User      `json:"user,omitempty"`
	TenantID       *uuid.UUID `json:"tenantId,omitempty"`
	OrganizationID *uuid.UUID `json:"organizationId,omitempty"`
	Permissions    []string   `json:"permissions,omitempty"`
	Roles          []string   `json:"roles,omitempty"`
	LanguageCode   string     `json:"languageCode,omitempty"`
}

// WithContext returns a derived context carrying rc. Slices are copied so later changes by the caller
// cannot leak into the established context.
func WithContext(ctx context.Context, rc Context) context.Context {
	rc.Permissions = slices.Clone(rc.Permissions)
	rc.Roles = slices.Clone(rc.Roles)
	return context.WithValue(ctx, ctxRequestContext, rc)
}

// FromContext extracts the request context, returning false when none is established.
func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	v := ctx.Value(ctxRequestContext)
	if v == nil {
		return Context{}, false
	}

	rc, ok := v.(Context)
	return rc, ok
}

// Run establishes rc for the dynamic extent of fn. Everything fn calls with the derived context, including
// goroutines it starts with it, observes rc; the caller's ctx is left untouched, so a nested Run shadows
// the outer context and the outer one is in effect again as soon as fn returns.
func Run(ctx context.Context, rc Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("requestcontext: fn is required")
	}
	return fn(WithContext(ctx, rc))
}

// System builds a context for background jobs and CLI tooling. It carries no tenant.
func System(requestID string) Context {
	return Context{RequestID: requestID, Actor: ActorKindSystem}
}

// Anonymous builds a context for unauthenticated requests.
func Anonymous(requestID string) Context {
	return Context{RequestID: requestID, Actor: ActorKindAnonymous}
}

// Impersonate runs fn under a shadowed context scoped to tenantID (and orgID when non-nil). The outer
// context must belong to a system actor or hold PermissionTenantImpersonate.
func Impersonate(ctx context.Context, tenantID uuid.UUID, orgID *uuid.UUID, fn func(ctx context.Context) error) error {
	outer, ok := FromContext(ctx)
	if !ok {
		return ErrContextMissing
	}
	if outer.Actor != ActorKindSystem && !outer.hasAll(PermissionTenantImpersonate) {
		return fmt.Errorf("%w: impersonating tenant %s requires %q", ErrForbidden, tenantID, PermissionTenantImpersonate)
	}
	if tenantID == uuid.Nil {
		return fmt.Errorf("%w: impersonation requires a tenant", ErrForbidden)
	}

	inner := outer
	tid := tenantID
	inner.TenantID = &tid
	inner.OrganizationID = nil
	if orgID != nil {
		oid := *orgID
		inner.OrganizationID = &oid
	}

	return Run(ctx, inner, fn)
}

// Snapshot serializes the established context so a background job can resume work under the same
// identity. Credentials are never part of a Context, so the payload carries no bearer token.
func Snapshot(ctx context.Context) ([]byte, error) {
	rc, err := current(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rc)
}

// Restore decodes a Snapshot payload. The result is independent of the snapshotted context and is
// meant to be established with Run.
func Restore(data []byte) (Context, error) {
	var rc Context
	if err := json.Unmarshal(data, &rc); err != nil {
		return Context{}, fmt.Errorf("restore request context: %w", err)
	}
	if rc.Actor == "" {
		return Context{}, fmt.Errorf("%w: snapshot has no actor", ErrContextMissing)
	}
	return rc, nil
}

func current(ctx context.Context) (Context, error) {
	rc, ok := FromContext(ctx)
	if !ok {
		return Context{}, ErrContextMissing
	}
	return rc, nil
}

// CurrentUser returns the authenticated user, or nil for anonymous and system contexts.
func CurrentUser(ctx context.Context) (*User, error) {
	rc, err := current(ctx)
	if err != nil {
		return nil, err
	}
	return rc.User, nil
}

// CurrentUserID returns the authenticated user id, or an empty string when there is no user.
func CurrentUserID(ctx context.Context) (string, error) {
	rc, err := current(ctx)
	if err != nil {
		return "", err
	}
	if rc.User == nil {
		return "", nil
	}
	return rc.User.ID, nil
}

// CurrentTenantID returns the tenant the request acts for.
func CurrentTenantID(ctx context.Context) (uuid.UUID, error) {
	rc, err := current(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if rc.TenantID == nil || *rc.TenantID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: no tenant in request context", ErrContextMissing)
	}
	return *rc.TenantID, nil
}

// CurrentOrganizationID returns the organization selected for the request, or nil when none is selected.
func CurrentOrganizationID(ctx context.Context) (*uuid.UUID, error) {
	rc, err := current(ctx)
	if err != nil {
		return nil, err
	}
	if rc.OrganizationID == nil || *rc.OrganizationID == uuid.Nil {
		return nil, nil
	}
	id := *rc.OrganizationID
	return &id, nil
}

// CurrentPermissions returns a copy of the granted permissions.
func CurrentPermissions(ctx context.Context) ([]string, error) {
	rc, err := current(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(rc.Permissions), nil
}

// CurrentRoles returns a copy of the granted roles.
func CurrentRoles(ctx context.Context) ([]string, error) {
	rc, err := current(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(rc.Roles), nil
}

// CurrentRequestID returns the request id, or an empty string outside any context.
func CurrentRequestID(ctx context.Context) string {
	rc, _ := FromContext(ctx)
	return rc.RequestID
}

// LanguageCode returns the negotiated language, defaulting to English.
func LanguageCode(ctx context.Context) string {
	rc, ok := FromContext(ctx)
	if !ok || rc.LanguageCode == "" {
		return DefaultLanguage
	}
	return rc.LanguageCode
}

// HasPermission reports whether the current context grants permission.
func HasPermission(ctx context.Context, permission string) bool {
	return HasPermissions(ctx, permission)
}

// HasPermissions reports whether the current context grants every listed permission.
func HasPermissions(ctx context.Context, permissions ...string) bool {
	rc, ok := FromContext(ctx)
	return ok && rc.hasAll(permissions...)
}

// HasAnyPermission reports whether the current context grants at least one listed permission.
func HasAnyPermission(ctx context.Context, permissions ...string) bool {
	rc, ok := FromContext(ctx)
	if !ok {
		return false
	}
	for _, p := range permissions {
		if slices.Contains(rc.Permissions, p) {
			return true
		}
	}
	return false
}

// HasRole reports whether the current context holds role.
func HasRole(ctx context.Context, role string) bool {
	return HasRoles(ctx, role)
}

// HasRoles reports whether the current context holds any of the listed roles.
func HasRoles(ctx context.Context, roles ...string) bool {
	rc, ok := FromContext(ctx)
	if !ok {
		return false
	}
	for _, r := range roles {
		if slices.Contains(rc.Roles, r) {
			return true
		}
	}
	return false
}

func (rc Context) hasAll(permissions ...string) bool {
	for _, p := range permissions {
		if !slices.Contains(rc.Permissions, p) {
			return false
		}
	}
	return true
}
