package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
)

// Service is the tenants behavior the handler depends on.
type Service interface {
	Create(ctx context.Context, input service.CreateInput) (model.Tenant, error)
	List(ctx context.Context, opts service.ListOptions) (service.ListResult, error)
	Get(ctx context.Context, id string) (model.Tenant, error)
	Update(ctx context.Context, id uuid.UUID, input service.UpdateInput) (model.Tenant, error)
	Suspend(ctx context.Context, id uuid.UUID) (model.Tenant, error)
	Activate(ctx context.Context, id uuid.UUID) (model.Tenant, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Handler exposes tenant administration over HTTP.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the tenant endpoints. Callers guard the router with an admin check.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{tenantId}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/suspend", h.suspend)
		r.Post("/activate", h.activate)
	})
	return r
}

type createRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type updateRequest struct {
	Name   *string `json:"name,omitempty"`
	Status *string `json:"status,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.ListOptions{Page: httpapi.PageFromQuery(r), Sort: q.Get("sort")}
	if q.Has("status") {
		status := q.Get("status")
		opts.Status = &status
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		httpapi.Error(w, r, h.logger, "tenantsList", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.NewList(result.Tenants, result.Page, result.Total))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{Name: body.Name, Slug: body.Slug})
	if err != nil {
		httpapi.Error(w, r, h.logger, "tenantsCreate", err)
		return
	}
	w.Header().Set("Location", "/api/v1/admin/tenants/"+created.ID.String())
	httpapi.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "tenantId"))
	if err != nil {
		httpapi.Error(w, r, h.logger, "tenantsGet", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "tenantId")
	if err != nil {
		httpapi.Error(w, r, h.logger, "tenantsUpdate", err)
		return
	}
	var body updateRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	updated, err := h.svc.Update(r.Context(), id, service.UpdateInput{Name: body.Name, Status: body.Status})
	if err != nil {
		httpapi.Error(w, r, h.logger, "tenantsUpdate", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "tenantsSuspend", h.svc.Suspend)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "tenantsActivate", h.svc.Activate)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, uuid.UUID) (model.Tenant, error)) {
	id, err := httpapi.PathUUID(r, "tenantId")
	if err != nil {
		httpapi.Error(w, r, h.logger, op, err)
		return
	}
	t, err := fn(r.Context(), id)
	if err != nil {
		httpapi.Error(w, r, h.logger, op, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "tenantId")
	if err != nil {
		httpapi.Error(w, r, h.logger, "tenantsDelete", err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		httpapi.Error(w, r, h.logger, "tenantsDelete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
