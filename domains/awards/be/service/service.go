package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
)

// EntityName is the metadata name of the awards entity.
const EntityName = "award"

// RelationRecipient is the relation from an award to its recipient user.
const RelationRecipient = "recipient"

// Audit actions recorded by the service.
const (
	ActionSplit    = "award.split"
	ActionDeleted  = "award.deleted"
	ActionRestored = "award.restored"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

var sortFields = map[string]string{
	"name":      "name",
	"amount":    "amount",
	"expiresAt": "expires_at",
	"createdAt": model.ColumnCreatedAt,
}

// Award is a monetary grant owned by an organization of the tenant and optionally assigned to a user.
type Award struct {
	model.TenantOrganizationBase
	Name        string          `db:"name" json:"name"`
	Amount      float64         `db:"amount" json:"amount"`
	Currency    string          `db:"currency" json:"currency"`
	ExpiresAt   *time.Time      `db:"expires_at" json:"expiresAt,omitempty"`
	RecipientID *uuid.UUID      `db:"recipient_id" json:"recipientId,omitempty"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata,omitempty"`

	Expired bool `db:"-" json:"expired"`
}

// AfterLoad derives Expired from ExpiresAt.
func (a *Award) AfterLoad() {
	a.Expired = a.ExpiresAt != nil && !a.ExpiresAt.After(time.Now())
}

// Repository is the tenant-scoped storage of awards.
type Repository interface {
	Create(ctx context.Context, award Award) (Award, error)
	List(ctx context.Context, opts crud.FindOptions) (crud.Result[Award], error)
	Get(ctx context.Context, id string) (Award, error)
	Update(ctx context.Context, id uuid.UUID, values crud.Values) (Award, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) (Award, error)
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditFunc records an award event inside the caller's transaction. A nil AuditFunc disables auditing.
type AuditFunc func(ctx context.Context, action string, awardID uuid.UUID, details map[string]any) error

// ListOptions filters and paginates awards.
type ListOptions struct {
	Page           httpapi.Page
	OrganizationID *uuid.UUID
	RecipientEmail *string
	ExpiresAfter   *time.Time
	IncludeDeleted bool
	Sort           string
}

// ListResult wraps a page of awards.
type ListResult struct {
	Awards []Award
	Page   httpapi.Page
	Total  int64
}

// CreateInput is the payload for a new award. OrganizationID is only honored when no organization is
// selected in the request context.
type CreateInput struct {
	Name           string
	Amount         float64
	Currency       string
	ExpiresAt      *time.Time
	RecipientID    *uuid.UUID
	OrganizationID *uuid.UUID
	Metadata       json.RawMessage
}

// UpdateInput holds editable fields; nil leaves a field unchanged.
type UpdateInput struct {
	Name        *string
	Amount      *float64
	ExpiresAt   *time.Time
	RecipientID *uuid.UUID
	Metadata    json.RawMessage
}

// SplitResult holds both halves of a split award.
type SplitResult struct {
	Original Award `json:"original"`
	Split    Award `json:"split"`
}

// Service manages the awards of the tenant in the request context.
type Service struct {
	repo  Repository
	audit AuditFunc
}

// New constructs the awards Service.
func New(repo Repository, audit AuditFunc) *Service {
	if repo == nil {
		panic("awards repository is required")
	}
	return &Service{repo: repo, audit: audit}
}

func (s *Service) Create(ctx context.Context, input CreateInput) (Award, error) {
	fields := crud.FieldErrors{}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		fields.Add("name", "name is required")
	}
	validateAmount(fields, input.Amount)
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if !currencyPattern.MatchString(currency) {
		fields.Add("currency", "currency must be a three-letter ISO 4217 code")
	}

	if len(fields) > 0 {
		return Award{}, &crud.ValidationError{Entity: EntityName, Fields: fields}
	}

	award := Award{
		Name:        name,
		Amount:      roundCents(input.Amount),
		Currency:    currency,
		ExpiresAt:   input.ExpiresAt,
		RecipientID: input.RecipientID,
		Metadata:    input.Metadata,
	}
	award.OrganizationID = input.OrganizationID
	return s.repo.Create(ctx, award)
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
	if opts.OrganizationID != nil {
		where[model.ColumnOrganizationID] = *opts.OrganizationID
	}
	if opts.RecipientEmail != nil {
		where[RelationRecipient] = crud.Where{"email": strings.ToLower(strings.TrimSpace(*opts.RecipientEmail))}
	}
	if opts.ExpiresAfter != nil {
		where["expires_at"] = crud.Gt(*opts.ExpiresAfter)
	}

	result, err := s.repo.List(ctx, crud.FindOptions{
		Where:       where,
		Order:       order,
		Skip:        page.Skip(),
		Take:        page.PageSize,
		WithDeleted: opts.IncludeDeleted,
	})
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Awards: result.Items, Page: page, Total: result.Total}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Award, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Award, error) {
	fields := crud.FieldErrors{}
	values := crud.Values{}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			fields.Add("name", "name cannot be empty")
		}
		values["name"] = name
	}
	if input.Amount != nil {
		validateAmount(fields, *input.Amount)
		values["amount"] = roundCents(*input.Amount)
	}
	if input.ExpiresAt != nil {
		values["expires_at"] = *input.ExpiresAt
	}
	if input.RecipientID != nil {
		if *input.RecipientID == uuid.Nil {
			values["recipient_id"] = nil
		} else {
			values["recipient_id"] = *input.RecipientID
		}
	}
	if input.Metadata != nil {
		values["metadata"] = input.Metadata
	}
	if len(values) == 0 {
		fields.Add("payload", "at least one field must be provided")
	}

	if len(fields) > 0 {
		return Award{}, &crud.ValidationError{Entity: EntityName, Fields: fields}
	}
	return s.repo.Update(ctx, id, values)
}

// Delete soft-deletes the award and records the event in the same transaction.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.record(ctx, ActionDeleted, id, nil)
	})
}

// Restore brings back a soft-deleted award.
func (s *Service) Restore(ctx context.Context, id uuid.UUID) (Award, error) {
	var restored Award
	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		var err error
		restored, err = s.repo.Restore(ctx, id)
		if err != nil {
			return err
		}
		return s.record(ctx, ActionRestored, id, nil)
	})
	return restored, err
}

// Split moves amount from the award into a new award with the same owner, currency and recipient.
// Both writes and the audit entry commit together or not at all.
func (s *Service) Split(ctx context.Context, id uuid.UUID, amount float64) (SplitResult, error) {
	fields := crud.FieldErrors{}
	validateAmount(fields, amount)
	if len(fields) > 0 {
		return SplitResult{}, &crud.ValidationError{Entity: EntityName, Fields: fields}
	}
	amount = roundCents(amount)

	var result SplitResult
	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		original, err := s.repo.Get(ctx, id.String())
		if err != nil {
			return err
		}
		if original.Expired {
			return crud.Conflictf("award %s has expired", id)
		}
		if amount >= original.Amount {
			return &crud.ValidationError{Entity: EntityName, Fields: crud.FieldErrors{
				"amount": {fmt.Sprintf("amount must be lower than the award amount %.2f", original.Amount)},
			}}
		}

		remaining := roundCents(original.Amount - amount)
		result.Original, err = s.repo.Update(ctx, id, crud.Values{"amount": remaining})
		if err != nil {
			return err
		}

		split := Award{
			Name:        original.Name,
			Amount:      amount,
			Currency:    original.Currency,
			ExpiresAt:   original.ExpiresAt,
			RecipientID: original.RecipientID,
			Metadata:    original.Metadata,
		}
		split.OrganizationID = original.OrganizationID
		result.Split, err = s.repo.Create(ctx, split)
		if err != nil {
			return err
		}

		return s.record(ctx, ActionSplit, id, map[string]any{
			"amount":    amount,
			"remaining": remaining,
			"splitId":   result.Split.ID.String(),
		})
	})
	if err != nil {
		return SplitResult{}, err
	}
	return result, nil
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, details map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit(ctx, action, id, details)
}

func validateAmount(fields crud.FieldErrors, amount float64) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || roundCents(amount) <= 0 {
		fields.Add("amount", "amount must be a positive number")
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
