package auth

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/auth/devtoken"
)

func devTokenCommand() *cobra.Command {
	var (
		params devtoken.Params
		secret string
	)

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Generate a JWT for dev/local use (unsigned, or HS256 with --secret)",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()

			var (
				token string
				err   error
			)
			if secret != "" {
				token, err = devtoken.BuildSignedToken(params, now, []byte(secret))
			} else {
				token, err = devtoken.BuildUnsignedToken(params, now)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	// Required claims
	cmd.Flags().StringVar(&params.ProjectID, "project-id", "", "project ID (iss/aud)")
	cmd.Flags().StringVar(&params.UserID, "user-id", "", "user_id/sub/uid claim")
	cmd.Flags().StringVar(&params.Email, "email", "", "email claim")

	// Optional claims
	cmd.Flags().StringVar(&params.TenantID, "tenant", "", "tenantId claim (tenant UUID or slug)")
	cmd.Flags().StringVar(&params.OrganizationID, "organization", "", "organizationId claim")
	cmd.Flags().StringVar(&params.Name, "name", "", "display name")
	cmd.Flags().StringVar(&params.Language, "lang", "", "preferred language claim")
	cmd.Flags().BoolVar(&params.EmailVerified, "email-verified", true, "email_verified claim")
	cmd.Flags().BoolVar(&params.IsAdmin, "admin", false, "set isAdmin=true")
	cmd.Flags().StringSliceVar(&params.Roles, "roles", nil, "roles array (comma-separated)")
	cmd.Flags().StringSliceVar(&params.Permissions, "permissions", nil, "permissions array (comma-separated)")
	cmd.Flags().DurationVar(&params.ExpiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&params.Audience, "audience", "", "override aud; defaults to project-id")
	cmd.Flags().StringVar(&params.Issuer, "issuer", "", "override iss; defaults to securetoken URL")
	cmd.Flags().StringVar(&secret, "secret", "", "sign with HS256 using this secret (AUTH_PROVIDER=hs256)")

	_ = cmd.MarkFlagRequired("project-id")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
