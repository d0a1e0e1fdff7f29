package schema

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-tenancy-core/apps/internal/wiring"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/persistence"
	entityschema "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// Command groups offline schema inspection commands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect entity metadata without a database",
	}

	cmd.AddCommand(listCommand())
	cmd.AddCommand(ddlCommand())
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered entities and their scoping",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := wiring.Registry()
			if err != nil {
				return err
			}
			return WriteEntities(cmd.OutOrStdout(), registry)
		},
	}
}

func ddlCommand() *cobra.Command {
	var entity string

	c := &cobra.Command{
		Use:   "ddl",
		Short: "Print the PostgreSQL DDL the schema bootstrap would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := wiring.Registry()
			if err != nil {
				return err
			}
			return WriteDDL(cmd.OutOrStdout(), registry, entity)
		},
	}
	c.Flags().StringVar(&entity, "entity", "", "only print the statements of this entity")
	return c
}

// WriteEntities prints one row per entity.
func WriteEntities(w io.Writer, registry *entityschema.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tTABLE\tSCOPE\tDELETE")
	for _, e := range registry.Entities() {
		scope := "global"
		switch {
		case model.IsOrganizationScoped(e):
			scope = "organization"
		case model.IsTenantScoped(e):
			scope = "tenant"
		}
		deletion := "soft"
		if e.NonRecoverable {
			deletion = "hard"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Table, scope, deletion)
	}
	return tw.Flush()
}

// WriteDDL prints the tables first and the foreign keys after, in the order the bootstrap applies them.
func WriteDDL(w io.Writer, registry *entityschema.Registry, only string) error {
	entities := registry.Entities()
	if only != "" {
		e, ok := registry.Entity(only)
		if !ok {
			return fmt.Errorf("unknown entity %q", only)
		}
		entities = []*entityschema.Entity{e}
	}

	var statements []string
	for _, e := range entities {
		statements = append(statements, persistence.BuildDDL(e)...)
	}
	for _, e := range entities {
		statements = append(statements, persistence.BuildForeignKeys(e, registry)...)
	}

	_, err := io.WriteString(w, strings.Join(statements, ";\n\n")+";\n")
	return err
}
