package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Record is one row keyed by column name. Values are normalized (see Normalize) once they leave a driver
// or enter the CRUD core.
type Record map[string]any

// Clone returns a shallow copy of the record; normalized values are immutable so sharing them is safe.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ValueError reports a value that cannot be represented in a column.
type ValueError struct {
	Column string
	Type   Type
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("column %q (%s): %s", e.Column, e.Type, e.Reason)
}

// Normalize converts v into the canonical Go value for the column type:
//
//	uuid -> uuid.UUID, string/text -> string, int -> int64, float -> float64, bool -> bool,
//	time -> time.Time (UTC, microsecond precision), json -> json.RawMessage (sorted keys).
//
// Nil pointers, uuid.Nil, the zero time and JSON null normalize to nil (SQL NULL). JSON schemas are not
// enforced here; writers call Column.ValidateJSON.
func Normalize(c Column, v any) (any, error) {
	v = indirect(v)
	if v == nil {
		return nil, nil
	}

	fail := func(format string, args ...any) (any, error) {
		return nil, &ValueError{Column: c.Name, Type: c.Type, Reason: fmt.Sprintf(format, args...)}
	}

	switch c.Type {
	case TypeUUID:
		switch t := v.(type) {
		case uuid.UUID:
			if t == uuid.Nil {
				return nil, nil
			}
			return t, nil
		case [16]byte:
			id := uuid.UUID(t)
			if id == uuid.Nil {
				return nil, nil
			}
			return id, nil
		case string:
			id, err := uuid.Parse(t)
			if err != nil {
				return fail("invalid uuid %q", t)
			}
			if id == uuid.Nil {
				return nil, nil
			}
			return id, nil
		case []byte:
			if len(t) == 16 {
				id, err := uuid.FromBytes(t)
				if err != nil {
					return fail("invalid uuid bytes")
				}
				return id, nil
			}
			id, err := uuid.ParseBytes(t)
			if err != nil {
				return fail("invalid uuid %q", string(t))
			}
			return id, nil
		}
		return fail("cannot use %T as uuid", v)

	case TypeString, TypeText:
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case []byte:
			s = string(t)
		default:
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.String {
				return fail("cannot use %T as string", v)
			}
			s = rv.String()
		}
		if !utf8.ValidString(s) {
			return fail("invalid utf-8")
		}
		if limit := c.MaxLength(); limit > 0 && utf8.RuneCountInString(s) > limit {
			return fail("longer than %d characters", limit)
		}
		return s, nil

	case TypeInt:
		switch t := v.(type) {
		case json.Number:
			n, err := t.Int64()
			if err != nil {
				return fail("invalid integer %q", t.String())
			}
			return n, nil
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u := rv.Uint()
			if u > math.MaxInt64 {
				return fail("integer %d overflows int64", u)
			}
			return int64(u), nil
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if f != math.Trunc(f) {
				return fail("%v is not an integer", f)
			}
			// float64(math.MaxInt64) rounds up to 2^63, so the bounds are spelled out.
			if f >= 0x1p63 || f < -0x1p63 {
				return fail("%v overflows int64", f)
			}
			return int64(f), nil
		}
		return fail("cannot use %T as integer", v)

	case TypeFloat:
		switch t := v.(type) {
		case json.Number:
			f, err := t.Float64()
			if err != nil {
				return fail("invalid number %q", t.String())
			}
			return f, nil
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return fail("non-finite number")
			}
			return f, nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return float64(rv.Uint()), nil
		}
		return fail("cannot use %T as number", v)

	case TypeBool:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Bool {
			return fail("cannot use %T as bool", v)
		}
		return rv.Bool(), nil

	case TypeTime:
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				return nil, nil
			}
			return NormalizeTime(t), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return fail("invalid RFC3339 timestamp %q", t)
			}
			return NormalizeTime(parsed), nil
		}
		return fail("cannot use %T as time", v)

	case TypeJSON:
		var raw []byte
		switch t := v.(type) {
		case json.RawMessage:
			raw = t
		case []byte:
			raw = t
		case string:
			raw = []byte(t)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return fail("encode json: %v", err)
			}
			raw = encoded
		}
		if len(raw) == 0 {
			return nil, nil
		}
		canonical, err := canonicalJSON(raw)
		if err != nil {
			return fail("%v", err)
		}
		if canonical == nil {
			return nil, nil
		}
		return canonical, nil
	}

	return fail("unsupported type")
}

// NormalizeRecord normalizes every value of rec whose key is a declared column. Unknown keys are rejected.
func (e *Entity) NormalizeRecord(rec Record) (Record, error) {
	out := make(Record, len(rec))
	for name, raw := range rec {
		col, ok := e.Column(name)
		if !ok {
			return nil, &ValueError{Column: name, Reason: fmt.Sprintf("not a column of %s", e.Name)}
		}
		v, err := Normalize(col, raw)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// NormalizeTime is the canonical timestamp form shared by all drivers: UTC at microsecond precision,
// which is what PostgreSQL timestamptz stores.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func indirect(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map) && rv.IsNil() {
		return nil
	}
	return rv.Interface()
}
