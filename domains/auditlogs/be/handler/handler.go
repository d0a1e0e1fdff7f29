package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy-core/domains/auditlogs/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

// PermissionAuditPurge allows removing old audit entries.
const PermissionAuditPurge = "audit:purge"

// Service is the audit log behavior the handler depends on.
type Service interface {
	List(ctx context.Context, opts service.ListOptions) (service.ListResult, error)
	Get(ctx context.Context, id string) (service.Entry, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Handler exposes the audit trail over HTTP. Entries are written by other domains, never by clients.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("audit log service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/purge", h.purge)
	r.Get("/{entryId}", h.get)
	return r
}

type purgeRequest struct {
	Before time.Time `json:"before"`
}

type purgeResponse struct {
	Purged int64 `json:"purged"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.ListOptions{Page: httpapi.PageFromQuery(r), Sort: q.Get("sort")}
	if q.Has("action") {
		action := q.Get("action")
		opts.Action = &action
	}
	if q.Has("entity") {
		entity := q.Get("entity")
		opts.Entity = &entity
	}
	if raw := q.Get("entityId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpapi.Error(w, r, h.logger, "auditLogsList", &crud.ValidationError{
				Entity: service.EntityName,
				Fields: crud.FieldErrors{"entityId": {"entityId must be a UUID"}},
			})
			return
		}
		opts.EntityID = &id
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		httpapi.Error(w, r, h.logger, "auditLogsList", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.NewList(result.Entries, result.Page, result.Total))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Get(r.Context(), chi.URLParam(r, "entryId"))
	if err != nil {
		httpapi.Error(w, r, h.logger, "auditLogsGet", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	if !requestcontext.HasPermission(r.Context(), PermissionAuditPurge) {
		httpapi.WriteProblem(w, httpapi.Problem{
			Title:  "Forbidden",
			Status: http.StatusForbidden,
			Detail: "purging audit entries requires the " + PermissionAuditPurge + " permission",
		})
		return
	}

	var body purgeRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	purged, err := h.svc.Purge(r.Context(), body.Before)
	if err != nil {
		httpapi.Error(w, r, h.logger, "auditLogsPurge", err)
		return
	}
	h.logger.Info("audit entries purged", zap.Int64("purged", purged), zap.Time("before", body.Before))
	httpapi.WriteJSON(w, http.StatusOK, purgeResponse{Purged: purged})
}
