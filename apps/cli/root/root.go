package root

import (
	"context"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X .../apps/cli/root.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "tenancyctl",
	Short:         "Operator CLI for the tenancy core",
	Long:          "Operator utilities: dev tokens, schema bootstrap and inspection, tenant seeding and lifecycle.",
	Version:       Version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI; ctx is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// Root returns the root command so subpackages can attach to it.
func Root() *cobra.Command {
	return rootCmd
}
