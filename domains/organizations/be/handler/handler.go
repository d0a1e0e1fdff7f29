package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/organizations/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
)

// Service is the organizations behavior the handler depends on.
type Service interface {
	Create(ctx context.Context, input service.CreateInput) (model.Organization, error)
	List(ctx context.Context, opts service.ListOptions) (service.ListResult, error)
	Get(ctx context.Context, id string) (model.Organization, error)
	Update(ctx context.Context, id uuid.UUID, input service.UpdateInput) (model.Organization, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Handler exposes the current tenant's organizations over HTTP.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("organizations service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{organizationId}", h.get)
	r.Patch("/{organizationId}", h.update)
	r.Delete("/{organizationId}", h.delete)
	return r
}

type createRequest struct {
	Name         string  `json:"name"`
	Slug         string  `json:"slug"`
	OfficialName *string `json:"officialName,omitempty"`
	Currency     *string `json:"currency,omitempty"`
}

type updateRequest struct {
	Name         *string `json:"name,omitempty"`
	OfficialName *string `json:"officialName,omitempty"`
	Currency     *string `json:"currency,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.ListOptions{Page: httpapi.PageFromQuery(r), Sort: q.Get("sort")}
	if q.Has("slug") {
		slug := q.Get("slug")
		opts.Slug = &slug
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		httpapi.Error(w, r, h.logger, "organizationsList", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.NewList(result.Organizations, result.Page, result.Total))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{
		Name:         body.Name,
		Slug:         body.Slug,
		OfficialName: body.OfficialName,
		Currency:     body.Currency,
	})
	if err != nil {
		httpapi.Error(w, r, h.logger, "organizationsCreate", err)
		return
	}
	w.Header().Set("Location", "/api/v1/organizations/"+created.ID.String())
	httpapi.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	org, err := h.svc.Get(r.Context(), chi.URLParam(r, "organizationId"))
	if err != nil {
		httpapi.Error(w, r, h.logger, "organizationsGet", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, org)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "organizationId")
	if err != nil {
		httpapi.Error(w, r, h.logger, "organizationsUpdate", err)
		return
	}
	var body updateRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	updated, err := h.svc.Update(r.Context(), id, service.UpdateInput{
		Name:         body.Name,
		OfficialName: body.OfficialName,
		Currency:     body.Currency,
	})
	if err != nil {
		httpapi.Error(w, r, h.logger, "organizationsUpdate", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "organizationId")
	if err != nil {
		httpapi.Error(w, r, h.logger, "organizationsDelete", err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		httpapi.Error(w, r, h.logger, "organizationsDelete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
