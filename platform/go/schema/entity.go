package schema

import (
	"errors"
	"fmt"
)

// ErrInvalidDeclaration marks entity declarations that cannot be honored by every driver.
var ErrInvalidDeclaration = errors.New("invalid entity declaration")

// Declaration is anything that can be attached to an entity: a Column, a Relation or a Group of them.
type Declaration interface {
	apply(e *Entity)
}

// ColumnOptions carries the driver-neutral column attributes.
type ColumnOptions struct {
	Nullable bool
	// Default is applied on create when the caller leaves the column empty.
	Default any
	Unique  bool
	Index   bool
	Primary bool
	// Immutable columns are written once on create and rejected by updates.
	Immutable bool
	// Size bounds string columns; zero means DefaultStringSize.
	Size int
	// JSONSchema is a JSON Schema document enforced on every write of a json column.
	JSONSchema []byte
}

// Column describes one persisted field.
type Column struct {
	Name string
	Type Type
	ColumnOptions

	schemaKey string
}

func (c Column) apply(e *Entity) { e.Columns = append(e.Columns, c) }

// MaxLength returns the character bound of string columns, or zero for unbounded types.
func (c Column) MaxLength() int {
	if c.Type != TypeString {
		return 0
	}
	if c.Size > 0 {
		return c.Size
	}
	return DefaultStringSize
}

// DeclareColumn describes a column of the given abstract type.
func DeclareColumn(name string, t Type, opts ColumnOptions) Column {
	return Column{Name: name, Type: t, ColumnOptions: opts}
}

// RelationOptions carries the driver-neutral relation attributes.
type RelationOptions struct {
	// JoinColumn is the local foreign key for ManyToOne relations and the foreign key on the target for OneToMany.
	JoinColumn string
	// OnDelete applies to ManyToOne relations; empty means RESTRICT.
	OnDelete OnDelete
}

// Relation links the declaring entity to a target entity by name.
type Relation struct {
	Name   string
	Kind   RelationKind
	Target string
	RelationOptions
}

func (r Relation) apply(e *Entity) { e.Relations = append(e.Relations, r) }

// DeclareRelation describes a relation to the named target entity.
func DeclareRelation(kind RelationKind, name, target string, opts RelationOptions) Relation {
	return Relation{Name: name, Kind: kind, Target: target, RelationOptions: opts}
}

type group []Declaration

func (g group) apply(e *Entity) {
	for _, d := range g {
		if d != nil {
			d.apply(e)
		}
	}
}

// Group bundles declarations so that reusable sets (base columns, ownership mixins) can be shared.
func Group(decls ...Declaration) Declaration {
	return group(decls)
}

// EntityOptions carries entity-level attributes.
type EntityOptions struct {
	Table string
	// NonRecoverable entities may be hard-deleted; recoverable entities are only ever soft-deleted.
	NonRecoverable bool
	UniqueTogether [][]string
}

// Entity is the single driver-neutral description of a persisted type.
type Entity struct {
	Name           string
	Table          string
	NonRecoverable bool
	UniqueTogether [][]string
	Columns        []Column
	Relations      []Relation

	columnIndex   map[string]int
	relationIndex map[string]int
}

// DeclareEntity assembles and validates an entity. Any error wraps ErrInvalidDeclaration.
func DeclareEntity(name string, opts EntityOptions, decls ...Declaration) (*Entity, error) {
	e := &Entity{
		Name:           name,
		Table:          opts.Table,
		NonRecoverable: opts.NonRecoverable,
		UniqueTogether: opts.UniqueTogether,
	}
	if e.Table == "" {
		e.Table = name
	}

	group(decls).apply(e)

	if err := e.validate(); err != nil {
		return nil, fmt.Errorf("%w: entity %q: %v", ErrInvalidDeclaration, name, err)
	}
	return e, nil
}

// MustDeclareEntity is DeclareEntity for package-level declarations; it panics on invalid input.
func MustDeclareEntity(name string, opts EntityOptions, decls ...Declaration) *Entity {
	e, err := DeclareEntity(name, opts, decls...)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Entity) validate() error {
	if err := ValidateIdentifier("entity", e.Name); err != nil {
		return err
	}
	if err := ValidateIdentifier("table", e.Table); err != nil {
		return err
	}

	e.columnIndex = make(map[string]int, len(e.Columns))
	primaries := 0
	for i := range e.Columns {
		c := &e.Columns[i]
		if err := ValidateIdentifier("column", c.Name); err != nil {
			return err
		}
		if _, dup := e.columnIndex[c.Name]; dup {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		e.columnIndex[c.Name] = i

		if !c.Type.valid() {
			return fmt.Errorf("column %q: unsupported type %q", c.Name, c.Type)
		}
		if c.Size < 0 || (c.Size > 0 && c.Type != TypeString) {
			return fmt.Errorf("column %q: size only applies to string columns", c.Name)
		}
		if c.Primary {
			primaries++
			if c.Name != PrimaryKey || c.Type != TypeUUID || c.Nullable {
				return fmt.Errorf("column %q: primary key must be a non-nullable uuid named %q", c.Name, PrimaryKey)
			}
		}
		if c.Default != nil {
			v, err := Normalize(*c, c.Default)
			if err != nil {
				return fmt.Errorf("column %q: default: %v", c.Name, err)
			}
			if v == nil {
				return fmt.Errorf("column %q: default must not be empty", c.Name)
			}
		}
		if len(c.JSONSchema) > 0 {
			if c.Type != TypeJSON {
				return fmt.Errorf("column %q: json schema requires a json column", c.Name)
			}
			digest, err := jsonHash(c.JSONSchema)
			if err != nil {
				return fmt.Errorf("column %q: json schema: %v", c.Name, err)
			}
			c.schemaKey = fmt.Sprintf("memory://entities/%s/%s/%s", e.Name, c.Name, digest[:16])
			if _, err := defaultValidator.compile(c.schemaKey, c.JSONSchema); err != nil {
				return fmt.Errorf("column %q: %v", c.Name, err)
			}
		}
	}
	if primaries != 1 {
		return fmt.Errorf("exactly one primary key column %q is required", PrimaryKey)
	}

	e.relationIndex = make(map[string]int, len(e.Relations))
	for i := range e.Relations {
		r := &e.Relations[i]
		if err := ValidateIdentifier("relation", r.Name); err != nil {
			return err
		}
		if _, dup := e.relationIndex[r.Name]; dup {
			return fmt.Errorf("duplicate relation %q", r.Name)
		}
		if _, clash := e.columnIndex[r.Name]; clash {
			return fmt.Errorf("relation %q shadows a column", r.Name)
		}
		e.relationIndex[r.Name] = i

		if r.Target == "" {
			return fmt.Errorf("relation %q: target is required", r.Name)
		}
		if r.JoinColumn == "" {
			return fmt.Errorf("relation %q: join column is required", r.Name)
		}

		switch r.Kind {
		case ManyToOne:
			if r.OnDelete == "" {
				r.OnDelete = OnDeleteRestrict
			}
			if !r.OnDelete.valid() {
				return fmt.Errorf("relation %q: unsupported on-delete action %q", r.Name, r.OnDelete)
			}
			col, ok := e.Column(r.JoinColumn)
			if !ok {
				return fmt.Errorf("relation %q: join column %q is not declared", r.Name, r.JoinColumn)
			}
			if col.Type != TypeUUID {
				return fmt.Errorf("relation %q: join column %q must be a uuid", r.Name, r.JoinColumn)
			}
			if r.OnDelete == OnDeleteSetNull && !col.Nullable {
				return fmt.Errorf("relation %q: SET_NULL requires nullable join column %q", r.Name, r.JoinColumn)
			}
		case OneToMany:
			if r.OnDelete != "" {
				return fmt.Errorf("relation %q: on-delete belongs to the owning many-to-one side", r.Name)
			}
		default:
			return fmt.Errorf("relation %q: unsupported kind %q", r.Name, r.Kind)
		}
	}

	for _, cols := range e.UniqueTogether {
		if len(cols) < 2 {
			return fmt.Errorf("unique-together constraints need at least two columns")
		}
		for _, name := range cols {
			if !e.HasColumn(name) {
				return fmt.Errorf("unique-together column %q is not declared", name)
			}
		}
	}

	return nil
}

// Column looks up a column by name.
func (e *Entity) Column(name string) (Column, bool) {
	i, ok := e.columnIndex[name]
	if !ok {
		return Column{}, false
	}
	return e.Columns[i], true
}

// HasColumn reports whether the entity declares the named column.
func (e *Entity) HasColumn(name string) bool {
	_, ok := e.columnIndex[name]
	return ok
}

// Relation looks up a relation by name.
func (e *Entity) Relation(name string) (Relation, bool) {
	i, ok := e.relationIndex[name]
	if !ok {
		return Relation{}, false
	}
	return e.Relations[i], true
}

// ColumnNames returns column names in declaration order.
func (e *Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}
