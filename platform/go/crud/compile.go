package crud

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// scope is the ownership every compiled statement is restricted to. A zero tenant means unscoped.
type scope struct {
	tenantID uuid.UUID
	orgID    *uuid.UUID
}

func (s scope) active() bool { return s.tenantID != uuid.Nil }

// scopeFilter returns the mandatory conditions for entity: soft-delete visibility plus tenant and
// organization ownership. Every compiled statement, subquery and relation load goes through it.
func scopeFilter(entity *schema.Entity, sc scope, withDeleted bool) Filter {
	var f Filter
	if !withDeleted && entity.HasColumn(model.ColumnDeletedAt) {
		f = append(f, Condition{Column: model.ColumnDeletedAt, Op: OpIsNull})
	}
	if sc.active() && model.IsTenantScoped(entity) {
		f = append(f, Condition{Column: model.ColumnTenantID, Op: OpEq, Value: sc.tenantID})
	}
	if sc.active() && sc.orgID != nil && model.IsOrganizationScoped(entity) {
		f = append(f, Condition{Column: model.ColumnOrganizationID, Op: OpEq, Value: *sc.orgID})
	}
	return f
}

// compile turns a caller Where into a driver Filter and appends the scope conditions.
func compile(registry *schema.Registry, entity *schema.Entity, where Where, sc scope, withDeleted bool) (Filter, error) {
	fe := FieldErrors{}
	var filter Filter

	keys := make([]string, 0, len(where))
	for key := range where {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := where[key]

		if col, ok := entity.Column(key); ok {
			cond, err := compileCondition(col, raw)
			if err != nil {
				fe.Add(key, err.Error())
				continue
			}
			if err := checkOwnership(entity, cond, sc); err != nil {
				return nil, err
			}
			filter = append(filter, cond)
			continue
		}

		rel, ok := entity.Relation(key)
		if !ok {
			fe.Add(key, "unknown field")
			continue
		}
		nested, ok := asWhere(raw)
		if !ok {
			fe.Add(key, "relation filters take a nested where")
			continue
		}
		target, ok := registry.Entity(rel.Target)
		if !ok {
			return nil, fmt.Errorf("relation %q targets unregistered entity %q", rel.Name, rel.Target)
		}

		sub, err := compile(registry, target, nested, sc, withDeleted)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				for field, messages := range ve.Fields {
					for _, m := range messages {
						fe.Add(key+"."+field, m)
					}
				}
				continue
			}
			return nil, err
		}

		switch rel.Kind {
		case schema.ManyToOne:
			filter = append(filter, Condition{
				Column: rel.JoinColumn,
				Op:     OpInSubquery,
				Sub:    &Subquery{Entity: target, Column: model.ColumnID, Where: sub},
			})
		case schema.OneToMany:
			filter = append(filter, Condition{
				Column: model.ColumnID,
				Op:     OpInSubquery,
				Sub:    &Subquery{Entity: target, Column: rel.JoinColumn, Where: sub},
			})
		}
	}

	if len(fe) > 0 {
		return nil, &ValidationError{Entity: entity.Name, Fields: fe}
	}

	return append(filter, scopeFilter(entity, sc, withDeleted)...), nil
}

func asWhere(v any) (Where, bool) {
	switch t := v.(type) {
	case Where:
		return t, true
	case map[string]any:
		return Where(t), true
	default:
		return nil, false
	}
}

func compileCondition(col schema.Column, raw any) (Condition, error) {
	p, isPredicate := raw.(Predicate)
	if !isPredicate {
		p = Predicate{Op: OpEq, Value: raw}
	}

	switch p.Op {
	case OpIsNull, OpNotNull:
		return Condition{Column: col.Name, Op: p.Op}, nil

	case OpIn:
		if len(p.Values) == 0 {
			return Condition{}, errors.New("IN requires at least one value")
		}
		values := make([]any, 0, len(p.Values))
		for _, raw := range p.Values {
			v, err := schema.Normalize(col, raw)
			if err != nil {
				return Condition{}, valueReason(err)
			}
			if v == nil {
				return Condition{}, errors.New("IN does not match NULL; use IsNull")
			}
			values = append(values, v)
		}
		return Condition{Column: col.Name, Op: OpIn, Values: values}, nil

	case OpLike:
		if col.Type != schema.TypeString && col.Type != schema.TypeText {
			return Condition{}, errors.New("LIKE requires a string column")
		}
		pattern, ok := p.Value.(string)
		if !ok {
			return Condition{}, errors.New("LIKE requires a string pattern")
		}
		return Condition{Column: col.Name, Op: OpLike, Value: pattern}, nil

	case OpEq, OpNeq:
		v, err := schema.Normalize(col, p.Value)
		if err != nil {
			return Condition{}, valueReason(err)
		}
		if v == nil {
			if p.Op == OpEq {
				return Condition{Column: col.Name, Op: OpIsNull}, nil
			}
			return Condition{Column: col.Name, Op: OpNotNull}, nil
		}
		return Condition{Column: col.Name, Op: p.Op, Value: v}, nil

	case OpGt, OpGte, OpLt, OpLte:
		if col.Type == schema.TypeJSON || col.Type == schema.TypeBool {
			return Condition{}, fmt.Errorf("%s columns cannot be range-compared", col.Type)
		}
		v, err := schema.Normalize(col, p.Value)
		if err != nil {
			return Condition{}, valueReason(err)
		}
		if v == nil {
			return Condition{}, errors.New("range comparisons need a value")
		}
		return Condition{Column: col.Name, Op: p.Op, Value: v}, nil
	}

	return Condition{}, fmt.Errorf("unsupported operator %q", p.Op)
}

// checkOwnership rejects explicit tenant or organization predicates that point outside the scope.
func checkOwnership(entity *schema.Entity, cond Condition, sc scope) error {
	if !sc.active() {
		return nil
	}
	switch {
	case cond.Column == model.ColumnTenantID && model.IsTenantScoped(entity):
		if !onlyMatches(cond, sc.tenantID) {
			return fmt.Errorf("%w: %s filter targets another tenant", ErrForbidden, entity.Name)
		}
	case cond.Column == model.ColumnOrganizationID && sc.orgID != nil && model.IsOrganizationScoped(entity):
		if !onlyMatches(cond, *sc.orgID) {
			return fmt.Errorf("%w: %s filter targets another organization", ErrForbidden, entity.Name)
		}
	}
	return nil
}

func onlyMatches(cond Condition, id uuid.UUID) bool {
	switch cond.Op {
	case OpEq:
		return cond.Value == id
	case OpIn:
		for _, v := range cond.Values {
			if v != id {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func valueReason(err error) error {
	var ve *schema.ValueError
	if errors.As(err, &ve) {
		return errors.New(ve.Reason)
	}
	return err
}

// compileOrder validates caller ordering and appends the deterministic defaults: created_at ascending
// when the caller gave no order, then id as the final tiebreaker.
func compileOrder(entity *schema.Entity, order []Order) ([]Order, error) {
	fe := FieldErrors{}
	out := make([]Order, 0, len(order)+2)
	seen := make(map[string]bool, len(order))

	for _, o := range order {
		col, ok := entity.Column(o.Column)
		switch {
		case !ok:
			fe.Add("order."+o.Column, "unknown column")
			continue
		case col.Type == schema.TypeJSON:
			fe.Add("order."+o.Column, "json columns cannot be ordered")
			continue
		case seen[o.Column]:
			continue
		}
		seen[o.Column] = true
		out = append(out, o)
	}
	if len(fe) > 0 {
		return nil, &ValidationError{Entity: entity.Name, Fields: fe}
	}

	if len(out) == 0 && entity.HasColumn(model.ColumnCreatedAt) {
		out = append(out, Asc(model.ColumnCreatedAt))
	}
	if !seen[model.ColumnID] {
		out = append(out, Asc(model.ColumnID))
	}
	return out, nil
}

func validateRelations(entity *schema.Entity, names []string) error {
	fe := FieldErrors{}
	for _, name := range names {
		if _, ok := entity.Relation(name); !ok {
			fe.Add("relations."+name, "unknown relation")
		}
	}
	if len(fe) > 0 {
		return &ValidationError{Entity: entity.Name, Fields: fe}
	}
	return nil
}
