package schema

// Type is the driver-neutral column type. Every driver maps each Type to a native representation and
// returns values normalized back to the same Go type (see Normalize).
type Type string

const (
	TypeUUID   Type = "uuid"
	TypeString Type = "string"
	TypeText   Type = "text"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeBool   Type = "bool"
	TypeTime   Type = "time"
	TypeJSON   Type = "json"
)

func (t Type) valid() bool {
	switch t {
	case TypeUUID, TypeString, TypeText, TypeInt, TypeFloat, TypeBool, TypeTime, TypeJSON:
		return true
	default:
		return false
	}
}

// OnDelete is the action applied to referencing rows when a referenced row is removed.
type OnDelete string

const (
	OnDeleteCascade  OnDelete = "CASCADE"
	OnDeleteSetNull  OnDelete = "SET_NULL"
	OnDeleteRestrict OnDelete = "RESTRICT"
)

func (o OnDelete) valid() bool {
	switch o {
	case OnDeleteCascade, OnDeleteSetNull, OnDeleteRestrict:
		return true
	default:
		return false
	}
}

// RelationKind describes the cardinality of a relation from the declaring entity's side.
type RelationKind string

const (
	// ManyToOne relations hold the foreign key on the declaring entity.
	ManyToOne RelationKind = "many-to-one"
	// OneToMany relations are the inverse side; the foreign key lives on the target entity.
	OneToMany RelationKind = "one-to-many"
)

// PrimaryKey is the column every entity must declare as its uuid primary key.
const PrimaryKey = "id"

// DefaultStringSize bounds string columns declared without an explicit Size.
const DefaultStringSize = 255
