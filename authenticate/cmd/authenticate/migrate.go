package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and provision the administrator account",
		Long: `migrate brings the credential store to the current schema version,
repairs missing optional columns and, when the store holds no credentials,
creates the administrator account from auth.admin_username/admin_password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, appOptions{logTo: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			provisioned, err := a.repo.EnsureSchema(cmd.Context())
			if err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			out := cmd.OutOrStdout()
			if provisioned {
				fmt.Fprintf(out, "schema ready, administrator %q provisioned\n", opts.cfg.Auth.AdminUsername)
			} else {
				fmt.Fprintln(out, "schema ready, credentials already present")
			}
			return nil
		},
	}
}
