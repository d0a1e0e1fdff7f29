package persistence

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// columnType maps the abstract type to PostgreSQL. Strings use the "C" collation so that ordering is
// byte-wise, matching the in-memory driver.
func columnType(c schema.Column) string {
	switch c.Type {
	case schema.TypeUUID:
		return "UUID"
	case schema.TypeString:
		return fmt.Sprintf(`VARCHAR(%d) COLLATE "C"`, c.MaxLength())
	case schema.TypeText:
		return `TEXT COLLATE "C"`
	case schema.TypeInt:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeBool:
		return "BOOLEAN"
	case schema.TypeTime:
		return "TIMESTAMPTZ"
	case schema.TypeJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func onDeleteSQL(o schema.OnDelete) string {
	switch o {
	case schema.OnDeleteCascade:
		return "CASCADE"
	case schema.OnDeleteSetNull:
		return "SET NULL"
	default:
		return "RESTRICT"
	}
}

// BuildDDL returns idempotent statements creating the table, constraints and indexes of e. Column
// defaults are applied by the CRUD core, not by the database.
func BuildDDL(e *schema.Entity) []string {
	defs := make([]string, 0, len(e.Columns)+len(e.Relations)+len(e.UniqueTogether))
	for _, c := range e.Columns {
		def := quoteIdent(c.Name) + " " + columnType(c)
		if c.Primary {
			def += " PRIMARY KEY"
		} else if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	for _, c := range e.Columns {
		if c.Unique && !c.Primary {
			defs = append(defs, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
				quoteIdent(constraintName(e.Table, []string{c.Name}, "key")), quoteIdent(c.Name)))
		}
	}
	for _, cols := range e.UniqueTogether {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
			quoteIdent(constraintName(e.Table, cols, "key")), quoteIdents(cols)))
	}

	statements := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", quoteIdent(e.Table), strings.Join(defs, ",\n  ")),
	}

	for _, c := range e.Columns {
		if c.Index && !c.Unique && !c.Primary {
			statements = append(statements, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
				quoteIdent(constraintName(e.Table, []string{c.Name}, "idx")), quoteIdent(e.Table), quoteIdent(c.Name)))
		}
	}

	return statements
}

// BuildForeignKeys returns the foreign-key statements of e. They run after every table exists so that
// entity order and self references do not matter.
func BuildForeignKeys(e *schema.Entity, registry *schema.Registry) []string {
	var statements []string
	for _, r := range e.Relations {
		if r.Kind != schema.ManyToOne {
			continue
		}
		target, ok := registry.Entity(r.Target)
		if !ok {
			continue
		}
		name := constraintName(e.Table, []string{r.JoinColumn}, "fkey")
		statements = append(statements, fmt.Sprintf(`DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = %s) THEN
    ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s;
  END IF;
END $$`,
			quoteLiteral(name), quoteIdent(e.Table), quoteIdent(name), quoteIdent(r.JoinColumn),
			quoteIdent(target.Table), quoteIdent(schema.PrimaryKey), onDeleteSQL(r.OnDelete)))
	}
	return statements
}

func constraintName(table string, cols []string, suffix string) string {
	name := table + "_" + strings.Join(cols, "_") + "_" + suffix
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
