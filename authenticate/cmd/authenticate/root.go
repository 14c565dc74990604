package main

import (
	"github.com/spf13/cobra"

	"github.com/hsklearn/vocab-auth/authenticate/internal/config"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "authenticate",
		Short: "Credential verification, lockout and login history for the vocabulary app",
		Long: `authenticate serves the vocabulary app's action endpoint: it verifies
usernames and passwords, locks accounts after repeated failures and keeps a
signed history of login attempts.

Run without a subcommand to start the HTTP service.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: ./config.yaml or /etc/vocab-auth/config.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newUnlockCmd(opts),
		newHistoryCmd(opts),
		newVerifyCmd(opts),
		newAddUserCmd(opts),
		newStatsCmd(opts),
	)
	return cmd
}
