package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/users/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

// PermissionUsersWrite allows managing other users of the tenant. Tenant admins hold it implicitly.
const PermissionUsersWrite = "users:write"

// Service is the users behavior the handler depends on.
type Service interface {
	Create(ctx context.Context, input service.CreateInput) (service.User, error)
	List(ctx context.Context, opts service.ListOptions) (service.ListResult, error)
	Get(ctx context.Context, id string) (service.User, error)
	Update(ctx context.Context, id uuid.UUID, input service.UpdateInput) (service.User, error)
	Me(ctx context.Context) (service.User, error)
	UpdateSelf(ctx context.Context, input service.UpdateSelfInput) (service.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Handler wires the users service to HTTP.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/me", h.me)
	r.Patch("/me", h.updateMe)
	r.Get("/{userId}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(requireWriter)
		r.Post("/", h.create)
		r.Patch("/{userId}", h.update)
		r.Delete("/{userId}", h.delete)
	})
	return r
}

func requireWriter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !requestcontext.HasRole(ctx, service.RoleAdmin) && !requestcontext.HasPermission(ctx, PermissionUsersWrite) {
			httpapi.WriteProblem(w, httpapi.Problem{
				Title:  "Forbidden",
				Status: http.StatusForbidden,
				Detail: "managing users requires the " + PermissionUsersWrite + " permission",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role,omitempty"`
}

type updateRequest struct {
	FullName *string `json:"fullName,omitempty"`
	Role     *string `json:"role,omitempty"`
}

type updateMeRequest struct {
	FullName *string `json:"fullName,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.ListOptions{Page: httpapi.PageFromQuery(r), Sort: q.Get("sort")}
	if q.Has("email") {
		email := q.Get("email")
		opts.Email = &email
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		httpapi.Error(w, r, h.logger, "usersList", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.NewList(result.Users, result.Page, result.Total))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{Email: body.Email, FullName: body.FullName, Role: body.Role})
	if err != nil {
		httpapi.Error(w, r, h.logger, "usersCreate", err)
		return
	}
	w.Header().Set("Location", "/api/v1/users/"+created.ID.String())
	httpapi.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Get(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		httpapi.Error(w, r, h.logger, "usersGet", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "userId")
	if err != nil {
		httpapi.Error(w, r, h.logger, "usersUpdate", err)
		return
	}
	var body updateRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	updated, err := h.svc.Update(r.Context(), id, service.UpdateInput{FullName: body.FullName, Role: body.Role})
	if err != nil {
		httpapi.Error(w, r, h.logger, "usersUpdate", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Me(r.Context())
	if err != nil {
		httpapi.Error(w, r, h.logger, "usersMe", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var body updateMeRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	updated, err := h.svc.UpdateSelf(r.Context(), service.UpdateSelfInput{FullName: body.FullName})
	if err != nil {
		httpapi.Error(w, r, h.logger, "usersUpdateMe", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "userId")
	if err != nil {
		httpapi.Error(w, r, h.logger, "usersDelete", err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		httpapi.Error(w, r, h.logger, "usersDelete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

