package tenantcmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-tenancy-core/apps/cli/cmd/dbflags"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy-core/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

// Command groups tenant administration commands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant administration",
	}

	cmd.AddCommand(listCommand())
	cmd.AddCommand(statusCommand("suspend", "Suspend a tenant; its requests are rejected until reactivated", model.TenantStatusSuspended))
	cmd.AddCommand(statusCommand("activate", "Reactivate a suspended tenant", model.TenantStatusActive))
	return cmd
}

func listCommand() *cobra.Command {
	var (
		db     *dbflags.Flags
		status string
		page   int
		size   int
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			domains, closeFn, err := db.Open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeFn()

			opts := tenantsservice.ListOptions{Page: httpapi.Page{Page: page, PageSize: size}, Sort: "slug"}
			if status != "" {
				opts.Status = &status
			}

			var result tenantsservice.ListResult
			err = asSystem(cmd.Context(), func(ctx context.Context) error {
				result, err = domains.Tenants.List(ctx, opts)
				return err
			})
			if err != nil {
				return err
			}
			return WriteTenants(cmd.OutOrStdout(), result)
		},
	}

	db = dbflags.Bind(c)
	c.Flags().StringVar(&status, "status", "", "filter by status (active or suspended)")
	c.Flags().IntVar(&page, "page", 1, "page number")
	c.Flags().IntVar(&size, "page-size", 50, "tenants per page")
	return c
}

func statusCommand(use, short, status string) *cobra.Command {
	var (
		db   *dbflags.Flags
		slug string
	)

	c := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			domains, closeFn, err := db.Open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeFn()

			t, err := SetStatus(cmd.Context(), domains.Tenants, slug, status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s (%s) is now %s.\n", t.Slug, t.ID, t.Status)
			return nil
		},
	}

	db = dbflags.Bind(c)
	c.Flags().StringVar(&slug, "slug", "", "tenant slug")
	_ = c.MarkFlagRequired("slug")
	return c
}

// SetStatus moves the tenant identified by slug to status.
func SetStatus(ctx context.Context, tenants *tenantsservice.Service, slug, status string) (model.Tenant, error) {
	var t model.Tenant
	err := asSystem(ctx, func(ctx context.Context) error {
		id, err := tenants.ResolveSlug(ctx, slug)
		if err != nil {
			return err
		}
		if status == model.TenantStatusSuspended {
			t, err = tenants.Suspend(ctx, id)
		} else {
			t, err = tenants.Activate(ctx, id)
		}
		return err
	})
	return t, err
}

// WriteTenants prints a page of tenants as a table.
func WriteTenants(w io.Writer, result tenantsservice.ListResult) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSLUG\tNAME\tSTATUS\tCREATED")
	for _, t := range result.Tenants {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Slug, t.Name, t.Status, t.CreatedAt.UTC().Format("2006-01-02"))
	}
	fmt.Fprintf(tw, "\npage %d of %d (%d tenants)\n", result.Page.Page, result.Page.TotalPages(result.Total), result.Total)
	return tw.Flush()
}

func asSystem(ctx context.Context, fn func(ctx context.Context) error) error {
	return requestcontext.Run(ctx, requestcontext.System("cli-tenant"), fn)
}
