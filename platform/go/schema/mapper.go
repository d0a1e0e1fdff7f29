package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// AfterLoader is implemented by entities that derive ephemeral fields once a row has been loaded.
// Ephemeral fields are tagged `db:"-"` and are never persisted.
type AfterLoader interface {
	AfterLoad()
}

// Mapper converts between a struct type and Records using `db:"column"` tags. Embedded structs are
// flattened, pointer fields map nullable columns and `rel:"name"` fields receive loaded relations.
type Mapper[T any] struct {
	m *typeMapper
}

// NewMapper builds (or reuses) the reflection plan for T.
func NewMapper[T any]() (*Mapper[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	m, err := mapperFor(t)
	if err != nil {
		return nil, err
	}
	return &Mapper[T]{m: m}, nil
}

// Columns returns the mapped column names, sorted.
func (m *Mapper[T]) Columns() []string {
	names := make([]string, 0, len(m.m.fields))
	for _, f := range m.m.fields {
		names = append(names, f.column)
	}
	sort.Strings(names)
	return names
}

// Covers checks that T maps exactly the entity's columns and only declared relations.
func (m *Mapper[T]) Covers(e *Entity) error {
	var problems []string
	for _, c := range e.Columns {
		if _, ok := m.m.byColumn[c.Name]; !ok {
			problems = append(problems, fmt.Sprintf("column %q has no field", c.Name))
		}
	}
	for _, f := range m.m.fields {
		if !e.HasColumn(f.column) {
			problems = append(problems, fmt.Sprintf("field for %q is not a column", f.column))
		}
	}
	for _, r := range m.m.relations {
		rel, ok := e.Relation(r.name)
		if !ok {
			problems = append(problems, fmt.Sprintf("relation field %q is not declared", r.name))
			continue
		}
		wantSlice := rel.Kind == OneToMany
		if (r.typ.Kind() == reflect.Slice) != wantSlice {
			problems = append(problems, fmt.Sprintf("relation field %q has the wrong cardinality", r.name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s does not map entity %q: %s", m.m.typ, e.Name, strings.Join(problems, "; "))
	}
	return nil
}

// ToRecord reads every mapped field. Values are raw; entity-aware normalization happens in the CRUD core.
func (m *Mapper[T]) ToRecord(v *T) Record {
	return m.m.toRecord(reflect.ValueOf(v).Elem())
}

// FromRecord builds a T from a normalized record and runs AfterLoad hooks.
func (m *Mapper[T]) FromRecord(rec Record) (T, error) {
	var out T
	if err := m.m.fromRecord(rec, reflect.ValueOf(&out).Elem()); err != nil {
		return out, err
	}
	afterLoad(reflect.ValueOf(&out))
	return out, nil
}

type fieldInfo struct {
	column string
	index  []int
}

type relationField struct {
	name  string
	index []int
	typ   reflect.Type
	elem  reflect.Type
}

type typeMapper struct {
	typ       reflect.Type
	fields    []fieldInfo
	byColumn  map[string]int
	relations []relationField
}

var mapperCache sync.Map

func mapperFor(t reflect.Type) (*typeMapper, error) {
	if cached, ok := mapperCache.Load(t); ok {
		return cached.(*typeMapper), nil
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("mapper requires a struct type, got %s", t)
	}

	m := &typeMapper{typ: t, byColumn: make(map[string]int)}
	if err := m.collect(t, nil); err != nil {
		return nil, fmt.Errorf("map %s: %w", t, err)
	}

	actual, _ := mapperCache.LoadOrStore(t, m)
	return actual.(*typeMapper), nil
}

func (m *typeMapper) collect(t reflect.Type, prefix []int) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		tag, hasTag := f.Tag.Lookup("db")

		if rel, ok := f.Tag.Lookup("rel"); ok {
			if !f.IsExported() {
				return fmt.Errorf("relation field %s must be exported", f.Name)
			}
			rf := relationField{name: rel, index: index, typ: f.Type}
			switch {
			case f.Type.Kind() == reflect.Pointer && f.Type.Elem().Kind() == reflect.Struct,
				f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.Struct:
				rf.elem = f.Type.Elem()
			default:
				return fmt.Errorf("relation field %s must be a struct pointer or slice, got %s", f.Name, f.Type)
			}
			m.relations = append(m.relations, rf)
			continue
		}

		if f.Anonymous && !hasTag {
			if f.Type.Kind() != reflect.Struct {
				return fmt.Errorf("embedded field %s must be a struct value", f.Name)
			}
			if err := m.collect(f.Type, index); err != nil {
				return err
			}
			continue
		}

		if !f.IsExported() || !hasTag {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		if _, dup := m.byColumn[name]; dup {
			return fmt.Errorf("column %q is mapped twice", name)
		}
		m.byColumn[name] = len(m.fields)
		m.fields = append(m.fields, fieldInfo{column: name, index: index})
	}
	return nil
}

func (m *typeMapper) toRecord(rv reflect.Value) Record {
	rec := make(Record, len(m.fields))
	for _, f := range m.fields {
		rec[f.column] = rv.FieldByIndex(f.index).Interface()
	}
	return rec
}

func (m *typeMapper) fromRecord(rec Record, rv reflect.Value) error {
	for _, f := range m.fields {
		val, ok := rec[f.column]
		if !ok {
			continue
		}
		if err := assign(rv.FieldByIndex(f.index), val); err != nil {
			return fmt.Errorf("column %q: %w", f.column, err)
		}
	}

	for _, r := range m.relations {
		val, ok := rec[r.name]
		if !ok {
			continue
		}
		fv := rv.FieldByIndex(r.index)
		nested, err := mapperFor(r.elem)
		if err != nil {
			return err
		}

		if r.typ.Kind() == reflect.Pointer {
			child, isRecord := asRecord(val)
			if !isRecord {
				fv.Set(reflect.Zero(r.typ))
				continue
			}
			ptr := reflect.New(r.elem)
			if err := nested.fromRecord(child, ptr.Elem()); err != nil {
				return fmt.Errorf("relation %q: %w", r.name, err)
			}
			afterLoad(ptr)
			fv.Set(ptr)
			continue
		}

		children, _ := val.([]Record)
		slice := reflect.MakeSlice(r.typ, len(children), len(children))
		for i, child := range children {
			if err := nested.fromRecord(child, slice.Index(i)); err != nil {
				return fmt.Errorf("relation %q: %w", r.name, err)
			}
			afterLoad(slice.Index(i).Addr())
		}
		fv.Set(slice)
	}
	return nil
}

func asRecord(v any) (Record, bool) {
	switch t := v.(type) {
	case Record:
		return t, t != nil
	case map[string]any:
		return Record(t), t != nil
	default:
		return nil, false
	}
}

func afterLoad(ptr reflect.Value) {
	if hook, ok := ptr.Interface().(AfterLoader); ok {
		hook.AfterLoad()
	}
}

func assign(fv reflect.Value, val any) error {
	if val == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	if fv.Kind() == reflect.Pointer {
		elem := reflect.New(fv.Type().Elem())
		if err := assign(elem.Elem(), val); err != nil {
			return err
		}
		fv.Set(elem)
		return nil
	}

	src := reflect.ValueOf(val)
	if src.Type().AssignableTo(fv.Type()) {
		fv.Set(src)
		return nil
	}

	switch t := val.(type) {
	case json.RawMessage:
		if fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Uint8 {
			fv.SetBytes(append([]byte(nil), t...))
			return nil
		}
		return json.Unmarshal(t, fv.Addr().Interface())
	case uuid.UUID:
		if fv.Kind() == reflect.String {
			fv.SetString(t.String())
			return nil
		}
	}

	if sameFamily(src.Kind(), fv.Kind()) && src.Type().ConvertibleTo(fv.Type()) {
		if isSignedInt(src.Kind()) && isSignedInt(fv.Kind()) && fv.OverflowInt(src.Int()) {
			return fmt.Errorf("value %d overflows %s", src.Int(), fv.Type())
		}
		fv.Set(src.Convert(fv.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", val, fv.Type())
}

func isSignedInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

func sameFamily(a, b reflect.Kind) bool {
	family := func(k reflect.Kind) int {
		switch k {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return 1
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return 1
		case reflect.Float32, reflect.Float64:
			return 1
		case reflect.String:
			return 2
		case reflect.Bool:
			return 3
		default:
			return 0
		}
	}
	fa := family(a)
	return fa != 0 && fa == family(b)
}
