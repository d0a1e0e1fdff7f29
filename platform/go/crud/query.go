package crud

import (
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// Op is a comparison understood by every driver.
type Op string

const (
	OpEq         Op = "eq"
	OpNeq        Op = "neq"
	OpIn         Op = "in"
	OpIsNull     Op = "is_null"
	OpNotNull    Op = "not_null"
	OpLike       Op = "like"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpInSubquery Op = "in_subquery"
)

// Where is the caller-facing filter. Keys are column names (scalar value for equality, nil for IS NULL,
// or a Predicate) or relation names (a nested Where matched against the related entity). All entries
// are conjoined.
type Where map[string]any

// Predicate is a non-equality comparison inside a Where.
type Predicate struct {
	Op     Op
	Value  any
	Values []any
}

func Eq(v any) Predicate           { return Predicate{Op: OpEq, Value: v} }
func NotEq(v any) Predicate        { return Predicate{Op: OpNeq, Value: v} }
func In(values ...any) Predicate   { return Predicate{Op: OpIn, Values: values} }
func Like(pattern string) Predicate { return Predicate{Op: OpLike, Value: pattern} }
func Gt(v any) Predicate           { return Predicate{Op: OpGt, Value: v} }
func Gte(v any) Predicate          { return Predicate{Op: OpGte, Value: v} }
func Lt(v any) Predicate           { return Predicate{Op: OpLt, Value: v} }
func Lte(v any) Predicate          { return Predicate{Op: OpLte, Value: v} }
func IsNull() Predicate            { return Predicate{Op: OpIsNull} }
func NotNull() Predicate           { return Predicate{Op: OpNotNull} }

// Values is a partial update keyed by column name.
type Values map[string]any

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// FindOptions drives FindAll, Paginate and Count. Take <= 0 means no limit for FindAll.
type FindOptions struct {
	Where       Where
	Relations   []string
	Order       []Order
	Skip        int
	Take        int
	WithDeleted bool
}

// FindOneOptions drives the single-row lookups.
type FindOneOptions struct {
	Where       Where
	Relations   []string
	Order       []Order
	WithDeleted bool
}

// Result is a page of items plus the total number of matching rows, ignoring Skip and Take.
type Result[T any] struct {
	Items []T
	Total int64
}

// DeleteResult reports how many rows a delete touched.
type DeleteResult struct {
	Affected int64
}

// Condition is one compiled predicate handed to drivers. Values are already normalized for the column.
type Condition struct {
	Column string
	Op     Op
	Value  any
	Values []any
	Sub    *Subquery
}

// Filter is a conjunction of conditions.
type Filter []Condition

// Subquery selects Column from Entity rows matching Where; it backs relation filters.
type Subquery struct {
	Entity *schema.Entity
	Column string
	Where  Filter
}

// Query is a compiled read. Limit <= 0 means no limit.
type Query struct {
	Entity *schema.Entity
	Where  Filter
	Order  []Order
	Offset int
	Limit  int
}
