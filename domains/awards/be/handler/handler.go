package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/awards/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/httpapi"
)

// Service is the awards behavior the handler depends on.
type Service interface {
	Create(ctx context.Context, input service.CreateInput) (service.Award, error)
	List(ctx context.Context, opts service.ListOptions) (service.ListResult, error)
	Get(ctx context.Context, id string) (service.Award, error)
	Update(ctx context.Context, id uuid.UUID, input service.UpdateInput) (service.Award, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) (service.Award, error)
	Split(ctx context.Context, id uuid.UUID, amount float64) (service.SplitResult, error)
}

// Handler wires the awards service to HTTP.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("awards service is required")
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
	r.Route("/{awardId}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/restore", h.restore)
		r.Post("/split", h.split)
	})
	return r
}

type createRequest struct {
	Name           string          `json:"name"`
	Amount         float64         `json:"amount"`
	Currency       string          `json:"currency"`
	ExpiresAt      *time.Time      `json:"expiresAt,omitempty"`
	RecipientID    *uuid.UUID      `json:"recipientId,omitempty"`
	OrganizationID *uuid.UUID      `json:"organizationId,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

type updateRequest struct {
	Name        *string         `json:"name,omitempty"`
	Amount      *float64        `json:"amount,omitempty"`
	ExpiresAt   *time.Time      `json:"expiresAt,omitempty"`
	RecipientID *uuid.UUID      `json:"recipientId,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

type splitRequest struct {
	Amount float64 `json:"amount"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.ListOptions{Page: httpapi.PageFromQuery(r), Sort: q.Get("sort")}
	fields := crud.FieldErrors{}

	if raw := q.Get("organizationId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fields.Add("organizationId", "organizationId must be a UUID")
		}
		opts.OrganizationID = &id
	}
	if q.Has("recipientEmail") {
		email := q.Get("recipientEmail")
		opts.RecipientEmail = &email
	}
	if raw := q.Get("expiresAfter"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fields.Add("expiresAfter", "expiresAfter must be an RFC 3339 timestamp")
		}
		opts.ExpiresAfter = &at
	}
	if raw := q.Get("includeDeleted"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			fields.Add("includeDeleted", "includeDeleted must be a boolean")
		}
		opts.IncludeDeleted = include
	}
	if len(fields) > 0 {
		httpapi.Error(w, r, h.logger, "awardsList", &crud.ValidationError{Entity: service.EntityName, Fields: fields})
		return
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		httpapi.Error(w, r, h.logger, "awardsList", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.NewList(result.Awards, result.Page, result.Total))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{
		Name:           body.Name,
		Amount:         body.Amount,
		Currency:       body.Currency,
		ExpiresAt:      body.ExpiresAt,
		RecipientID:    body.RecipientID,
		OrganizationID: body.OrganizationID,
		Metadata:       body.Metadata,
	})
	if err != nil {
		httpapi.Error(w, r, h.logger, "awardsCreate", err)
		return
	}
	w.Header().Set("Location", "/api/v1/awards/"+created.ID.String())
	httpapi.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	award, err := h.svc.Get(r.Context(), chi.URLParam(r, "awardId"))
	if err != nil {
		httpapi.Error(w, r, h.logger, "awardsGet", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, award)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "awardId")
	if err != nil {
		httpapi.Error(w, r, h.logger, "awardsUpdate", err)
		return
	}
	var body updateRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	updated, err := h.svc.Update(r.Context(), id, service.UpdateInput{
		Name:        body.Name,
		Amount:      body.Amount,
		ExpiresAt:   body.ExpiresAt,
		RecipientID: body.RecipientID,
		Metadata:    body.Metadata,
	})
	if err != nil {
		httpapi.Error(w, r, h.logger, "awardsUpdate", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "awardId")
	if err != nil {
		httpapi.Error(w, r, h.logger, "awardsDelete", err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		httpapi.Error(w, r, h.logger, "awardsDelete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "awardId")
	if err != nil {
		httpapi.Error(w, r, h.logger, "awardsRestore", err)
		return
	}
	restored, err := h.svc.Restore(r.Context(), id)
	if err != nil {
		httpapi.Error(w, r, h.logger, "awardsRestore", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, restored)
}

func (h *Handler) split(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "awardId")
	if err != nil {
		httpapi.Error(w, r, h.logger, "awardsSplit", err)
		return
	}
	var body splitRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	result, err := h.svc.Split(r.Context(), id, body.Amount)
	if err != nil {
		httpapi.Error(w, r, h.logger, "awardsSplit", err)
		return
	}
	w.Header().Set("Location", "/api/v1/awards/"+result.Split.ID.String())
	httpapi.WriteJSON(w, http.StatusCreated, result)
}
