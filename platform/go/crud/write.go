package crud

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

func (e *engine[T]) create(ctx context.Context, input *T, sc scope) (T, error) {
	var out T
	err := e.run(ctx, "create", func() error {
		if input == nil {
			return newValidationError(e.entity.Name, map[string]string{"payload": "is required"})
		}
		rec, err := e.prepareCreate(e.mapper.ToRecord(input), sc)
		if err != nil {
			return err
		}
		if err := e.checkReferences(ctx, rec, sc); err != nil {
			return err
		}
		if err := e.driver.Insert(ctx, e.entity, rec); err != nil {
			return err
		}
		stored, err := e.findOneRecord(ctx, FindOneOptions{Where: Where{model.ColumnID: rec[model.ColumnID]}}, sc)
		if err != nil {
			return err
		}
		out, err = e.mapper.FromRecord(stored)
		return err
	})
	return out, err
}

// prepareCreate normalizes the input, assigns identity and timestamps, stamps ownership, applies column
// defaults to empty or blank values and validates required columns.
func (e *engine[T]) prepareCreate(raw schema.Record, sc scope) (schema.Record, error) {
	fe := FieldErrors{}
	rec := make(schema.Record, len(e.entity.Columns))
	for _, col := range e.entity.Columns {
		v, err := schema.Normalize(col, raw[col.Name])
		if err != nil {
			fe.Add(col.Name, valueReason(err).Error())
			continue
		}
		rec[col.Name] = v
	}

	now := e.now()
	rec[model.ColumnID] = uuid.New()
	for _, name := range []string{model.ColumnCreatedAt, model.ColumnUpdatedAt} {
		if e.entity.HasColumn(name) {
			rec[name] = now
		}
	}
	if e.entity.HasColumn(model.ColumnDeletedAt) {
		rec[model.ColumnDeletedAt] = nil
	}

	if sc.active() {
		if model.IsTenantScoped(e.entity) {
			rec[model.ColumnTenantID] = sc.tenantID
		}
		if sc.orgID != nil && model.IsOrganizationScoped(e.entity) {
			rec[model.ColumnOrganizationID] = *sc.orgID
		}
	}

	for _, col := range e.entity.Columns {
		if col.Default == nil || (rec[col.Name] != nil && !isBlank(rec[col.Name])) {
			continue
		}
		v, err := schema.Normalize(col, col.Default)
		if err != nil {
			return nil, fmt.Errorf("column %q default: %w", col.Name, err)
		}
		rec[col.Name] = v
	}

	if e.entity.HasColumn(model.ColumnIsArchived) && e.entity.HasColumn(model.ColumnArchivedAt) {
		if rec[model.ColumnIsArchived] == true {
			rec[model.ColumnArchivedAt] = now
		} else {
			rec[model.ColumnArchivedAt] = nil
		}
	}

	for _, col := range e.entity.Columns {
		if _, bad := fe[col.Name]; bad {
			continue
		}
		v := rec[col.Name]
		if !col.Nullable && (v == nil || isBlank(v)) {
			fe.Add(col.Name, "is required")
			continue
		}
		if doc, ok := v.(json.RawMessage); ok {
			if err := col.ValidateJSON(doc); err != nil {
				fe.Add(col.Name, err.Error())
			}
		}
	}

	if len(fe) > 0 {
		return nil, &ValidationError{Entity: e.entity.Name, Fields: fe}
	}
	return rec, nil
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// checkReferences verifies that, under a tenant scope, every written many-to-one reference to a
// tenant-scoped entity resolves inside the same tenant. Unscoped writes rely on the storage foreign keys.
func (e *engine[T]) checkReferences(ctx context.Context, rec schema.Record, sc scope) error {
	if !sc.active() {
		return nil
	}

	fe := FieldErrors{}
	for _, rel := range e.entity.Relations {
		if rel.Kind != schema.ManyToOne {
			continue
		}
		ref, present := rec[rel.JoinColumn]
		if !present || ref == nil {
			continue
		}
		target, ok := e.registry.Entity(rel.Target)
		if !ok || !model.IsTenantScoped(target) {
			continue
		}

		filter := append(Filter{{Column: model.ColumnID, Op: OpEq, Value: ref}}, scopeFilter(target, sc, false)...)
		n, err := e.count(ctx, target, filter)
		if err != nil {
			return err
		}
		if n == 0 {
			fe.Add(rel.JoinColumn, fmt.Sprintf("must reference a %s of the current tenant", target.Name))
		}
	}

	if len(fe) > 0 {
		return &ValidationError{Entity: e.entity.Name, Fields: fe}
	}
	return nil
}

func (e *engine[T]) update(ctx context.Context, id uuid.UUID, values Values, sc scope) (T, error) {
	var out T
	err := e.run(ctx, "update", func() error {
		current, err := e.findOneRecord(ctx, FindOneOptions{Where: Where{model.ColumnID: id}}, sc)
		if err != nil {
			return err
		}
		changes, err := e.prepareUpdate(values)
		if err != nil {
			return err
		}
		if err := e.checkReferences(ctx, changes, sc); err != nil {
			return err
		}

		now := e.bump(current[model.ColumnUpdatedAt])
		if e.entity.HasColumn(model.ColumnUpdatedAt) {
			changes[model.ColumnUpdatedAt] = now
		}
		if archived, ok := changes[model.ColumnIsArchived]; ok && e.entity.HasColumn(model.ColumnArchivedAt) {
			switch {
			case archived != true:
				changes[model.ColumnArchivedAt] = nil
			case current[model.ColumnIsArchived] != true || current[model.ColumnArchivedAt] == nil:
				changes[model.ColumnArchivedAt] = now
			}
		}

		filter := append(Filter{{Column: model.ColumnID, Op: OpEq, Value: id}}, scopeFilter(e.entity, sc, false)...)
		n, err := e.driver.Update(ctx, e.entity, filter, changes)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, e.entity.Name)
		}

		merged := current.Clone()
		for k, v := range changes {
			merged[k] = v
		}
		out, err = e.mapper.FromRecord(merged)
		return err
	})
	return out, err
}

func (e *engine[T]) prepareUpdate(values Values) (schema.Record, error) {
	fe := FieldErrors{}
	if len(values) == 0 {
		fe.Add("payload", "at least one field must be provided")
	}

	changes := make(schema.Record, len(values))
	for name, raw := range values {
		col, ok := e.entity.Column(name)
		if !ok {
			fe.Add(name, "unknown field")
			continue
		}
		if col.Immutable {
			fe.Add(name, "cannot be updated")
			continue
		}
		v, err := schema.Normalize(col, raw)
		if err != nil {
			fe.Add(name, valueReason(err).Error())
			continue
		}
		if !col.Nullable && (v == nil || isBlank(v)) {
			fe.Add(name, "cannot be empty")
			continue
		}
		if doc, ok := v.(json.RawMessage); ok {
			if err := col.ValidateJSON(doc); err != nil {
				fe.Add(name, err.Error())
				continue
			}
		}
		changes[name] = v
	}

	if len(fe) > 0 {
		return nil, &ValidationError{Entity: e.entity.Name, Fields: fe}
	}
	return changes, nil
}

// bump returns the current time, nudged forward so that updated_at strictly increases.
func (e *engine[T]) bump(previous any) time.Time {
	now := e.now()
	if prev, ok := previous.(time.Time); ok && !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

func (e *engine[T]) softDelete(ctx context.Context, where Where, sc scope) (DeleteResult, error) {
	var res DeleteResult
	err := e.run(ctx, "delete", func() error {
		if !e.entity.HasColumn(model.ColumnDeletedAt) {
			return newValidationError(e.entity.Name, map[string]string{"entity": "does not support soft delete"})
		}
		if len(where) == 0 {
			return newValidationError(e.entity.Name, map[string]string{"where": "at least one condition is required"})
		}
		filter, err := compile(e.registry, e.entity, where, sc, false)
		if err != nil {
			return err
		}
		n, err := e.driver.Update(ctx, e.entity, filter, schema.Record{model.ColumnDeletedAt: e.now()})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, e.entity.Name)
		}
		res.Affected = n
		return nil
	})
	return res, err
}

func (e *engine[T]) hardDelete(ctx context.Context, where Where, sc scope) (DeleteResult, error) {
	var res DeleteResult
	err := e.run(ctx, "hard_delete", func() error {
		if !e.entity.NonRecoverable {
			return newValidationError(e.entity.Name, map[string]string{"entity": "is recoverable and can only be soft-deleted"})
		}
		if len(where) == 0 {
			return newValidationError(e.entity.Name, map[string]string{"where": "at least one condition is required"})
		}
		filter, err := compile(e.registry, e.entity, where, sc, true)
		if err != nil {
			return err
		}
		n, err := e.driver.Delete(ctx, e.entity, filter)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, e.entity.Name)
		}
		res.Affected = n
		return nil
	})
	return res, err
}

func (e *engine[T]) restore(ctx context.Context, id uuid.UUID, sc scope) (T, error) {
	var out T
	err := e.run(ctx, "restore", func() error {
		if !e.entity.HasColumn(model.ColumnDeletedAt) {
			return newValidationError(e.entity.Name, map[string]string{"entity": "does not support soft delete"})
		}
		where := Where{model.ColumnID: id, model.ColumnDeletedAt: NotNull()}
		current, err := e.findOneRecord(ctx, FindOneOptions{Where: where, WithDeleted: true}, sc)
		if err != nil {
			return err
		}
		filter, err := compile(e.registry, e.entity, where, sc, true)
		if err != nil {
			return err
		}
		n, err := e.driver.Update(ctx, e.entity, filter, schema.Record{model.ColumnDeletedAt: nil})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, e.entity.Name)
		}

		current = current.Clone()
		current[model.ColumnDeletedAt] = nil
		out, err = e.mapper.FromRecord(current)
		return err
	})
	return out, err
}
