package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

// EntityName is the metadata name of the audit log entity.
const EntityName = "audit_log"

var sortFields = map[string]string{
	"createdAt": model.ColumnCreatedAt,
	"action":    "action",
	"entity":    "entity",
}

// Entry is one recorded action inside a tenant. Entries are never edited and only removed by Purge.
type Entry struct {
	model.TenantBase
	Action   string          `db:"action" json:"action"`
	Entity   string          `db:"entity" json:"entity"`
	EntityID *uuid.UUID      `db:"entity_id" json:"entityId,omitempty"`
	ActorID  *string         `db:"actor_id" json:"actorId,omitempty"`
	Details  json.RawMessage `db:"details" json:"details,omitempty"`
}

// Repository is the tenant-scoped storage of audit entries.
type Repository interface {
	Create(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, opts crud.FindOptions) (crud.Result[Entry], error)
	Get(ctx context.Context, id string) (Entry, error)
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

// RecordInput describes an action to record. Details is marshaled to JSON when set.
type RecordInput struct {
	Action   string
	Entity   string
	EntityID *uuid.UUID
	Details  any
}

// ListOptions filters and paginates audit entries.
type ListOptions struct {
	Page     httpapi.Page
	Action   *string
	Entity   *string
	EntityID *uuid.UUID
	Sort     string
}

// ListResult wraps a page of entries.
type ListResult struct {
	Entries []Entry
	Page    httpapi.Page
	Total   int64
}

// Service records and reads the audit trail of the tenant in the request context.
type Service struct {
	repo Repository
	now  func() time.Time
}

// New constructs the audit log Service.
func New(repo Repository) *Service {
	if repo == nil {
		panic("audit log repository is required")
	}
	return &Service{repo: repo, now: time.Now}
}

// Record stores an entry attributed to the current user, if any.
func (s *Service) Record(ctx context.Context, input RecordInput) (Entry, error) {
	fields := crud.FieldErrors{}
	action := strings.TrimSpace(input.Action)
	if action == "" {
		fields.Add("action", "action is required")
	}
	entity := strings.TrimSpace(input.Entity)
	if entity == "" {
		fields.Add("entity", "entity is required")
	}

	var details json.RawMessage
	if input.Details != nil {
		raw, err := json.Marshal(input.Details)
		if err != nil {
			fields.Add("details", fmt.Sprintf("details must be JSON encodable: %v", err))
		}
		details = raw
	}
	if len(fields) > 0 {
		return Entry{}, &crud.ValidationError{Entity: EntityName, Fields: fields}
	}

	entry := Entry{Action: action, Entity: entity, EntityID: input.EntityID, Details: details}
	if user, err := requestcontext.CurrentUser(ctx); err == nil && user != nil && user.ID != "" {
		actor := user.ID
		entry.ActorID = &actor
	}
	return s.repo.Create(ctx, entry)
}

func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	page := httpapi.NormalizePage(opts.Page.Page, opts.Page.PageSize)

	order, err := httpapi.ParseSort(opts.Sort, sortFields)
	if err != nil {
		return ListResult{}, err
	}
	if len(order) == 0 {
		order = []crud.Order{crud.Desc(model.ColumnCreatedAt)}
	}

	where := crud.Where{}
	if opts.Action != nil {
		where["action"] = strings.TrimSpace(*opts.Action)
	}
	if opts.Entity != nil {
		where["entity"] = strings.TrimSpace(*opts.Entity)
	}
	if opts.EntityID != nil {
		where["entity_id"] = *opts.EntityID
	}

	result, err := s.repo.List(ctx, crud.FindOptions{Where: where, Order: order, Skip: page.Skip(), Take: page.PageSize})
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Entries: result.Items, Page: page, Total: result.Total}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Entry, error) {
	return s.repo.Get(ctx, id)
}

// Purge permanently removes entries created before the cutoff and reports how many were removed.
// Cutoffs in the future are rejected.
func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, &crud.ValidationError{Entity: EntityName, Fields: crud.FieldErrors{"before": {"before is required"}}}
	}
	if before.After(s.now()) {
		return 0, &crud.ValidationError{Entity: EntityName, Fields: crud.FieldErrors{"before": {"before cannot be in the future"}}}
	}
	return s.repo.PurgeBefore(ctx, before)
}
