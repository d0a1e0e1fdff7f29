package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// matches evaluates a conjunction with SQL three-valued logic collapsed to false: any comparison
// involving NULL does not match. Callers hold d.mu.
func (d *MemoryDriver) matches(row schema.Record, f crud.Filter) (bool, error) {
	for _, c := range f {
		ok, err := d.evalCondition(row, c)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (d *MemoryDriver) evalCondition(row schema.Record, c crud.Condition) (bool, error) {
	v := row[c.Column]
	switch c.Op {
	case crud.OpIsNull:
		return v == nil, nil
	case crud.OpNotNull:
		return v != nil, nil
	}
	if v == nil {
		return false, nil
	}

	switch c.Op {
	case crud.OpEq:
		return equalValues(v, c.Value), nil
	case crud.OpNeq:
		return c.Value != nil && !equalValues(v, c.Value), nil
	case crud.OpGt, crud.OpGte, crud.OpLt, crud.OpLte:
		if c.Value == nil {
			return false, nil
		}
		cmp, err := compareValues(v, c.Value)
		if err != nil {
			return false, err
		}
		switch c.Op {
		case crud.OpGt:
			return cmp > 0, nil
		case crud.OpGte:
			return cmp >= 0, nil
		case crud.OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case crud.OpIn:
		for _, candidate := range c.Values {
			if equalValues(v, candidate) {
				return true, nil
			}
		}
		return false, nil
	case crud.OpLike:
		s, ok := v.(string)
		pattern, okPattern := c.Value.(string)
		if !ok || !okPattern {
			return false, fmt.Errorf("memory: LIKE on non-text column %q", c.Column)
		}
		re, err := likePattern(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	case crud.OpInSubquery:
		if c.Sub == nil {
			return false, fmt.Errorf("memory: condition on %s: missing subquery", c.Column)
		}
		for _, r := range d.tables[c.Sub.Entity.Name] {
			ok, err := d.matches(r, c.Sub.Where)
			if err != nil {
				return false, err
			}
			if ok && equalValues(v, r[c.Sub.Column]) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("memory: unsupported operator %q", c.Op)
}

// likePattern translates a PostgreSQL LIKE pattern (case-sensitive, backslash escape) to a regexp.
func likePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)^`)
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(`.*`)
		case r == '_':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		return nil, fmt.Errorf("memory: LIKE pattern %q must not end with the escape character", pattern)
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	if ra, ok := a.(json.RawMessage); ok {
		rb, ok := b.(json.RawMessage)
		return ok && bytes.Equal(ra, rb)
	}
	cmp, err := compareValues(a, b)
	return err == nil && cmp == 0
}

// compareValues orders two non-NULL normalized values the way PostgreSQL does for the mapped column
// types; strings compare byte-wise as under COLLATE "C".
func compareValues(a, b any) (int, error) {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case int64:
		if y, ok := b.(int64); ok {
			return compareOrdered(x, y), nil
		}
	case float64:
		if y, ok := b.(float64); ok {
			return compareOrdered(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	case uuid.UUID:
		if y, ok := b.(uuid.UUID); ok {
			return bytes.Compare(x[:], y[:]), nil
		}
	case json.RawMessage:
		if y, ok := b.(json.RawMessage); ok {
			return bytes.Compare(x, y), nil
		}
	}
	return 0, fmt.Errorf("memory: cannot compare %T with %T", a, b)
}

func compareOrdered[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// compareNullsLast sorts NULL after every value, which matches PostgreSQL's default for ascending order
// (and, once negated, NULLS FIRST for descending order).
func compareNullsLast(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c, err := compareValues(a, b)
	if err != nil {
		return 0
	}
	return c
}
