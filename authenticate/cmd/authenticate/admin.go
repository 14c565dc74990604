package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hsklearn/vocab-auth/authenticate/internal/handlers"
	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
	"github.com/hsklearn/vocab-auth/authenticate/internal/service"
)

func newUnlockCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <username>",
		Short: "Clear the lock and failure count of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, appOptions{sinks: true, logTo: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.Unlock(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, service.ErrUserNotFound) {
					return fmt.Errorf("user %q not found", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %q unlocked\n", models.NormalizeUsername(args[0]))
			return nil
		},
	}
}

// historyRow is a history item with an optional signature check result.
type historyRow struct {
	models.HistoryItem `yaml:",inline"`
	Verified           *bool `json:"verified,omitempty" yaml:"verified,omitempty"`
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		output string
		verify bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent login attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch output {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unknown output format %q (table, json, yaml)", output)
			}

			a, err := newApp(cmd.Context(), opts.cfg, appOptions{logTo: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.svc.ListHistory(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([]historyRow, 0, len(entries))
			for _, e := range entries {
				row := historyRow{HistoryItem: e.ToHistoryItem()}
				if verify {
					ok := a.auditLog.VerifyEntry(e)
					row.Verified = &ok
				}
				rows = append(rows, row)
			}
			return writeHistory(cmd.OutOrStdout(), output, rows, verify)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json, yaml")
	cmd.Flags().BoolVar(&verify, "verify", false, "check each entry's signature against auth.audit_secret")
	return cmd
}

func writeHistory(w io.Writer, format string, rows []historyRow, verify bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	}

	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed, color.Bold)
	flag := func(ok bool) string {
		if ok {
			return good.Sprint(strconv.FormatBool(ok))
		}
		return bad.Sprint(strconv.FormatBool(ok))
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "ID\tTIMESTAMP\tUSERNAME\tSUCCESS\tIP\tUSER AGENT"
	if verify {
		header += "\tVERIFIED"
	}
	fmt.Fprintln(tw, header)
	for _, r := range rows {
		line := fmt.Sprintf("%d\t%s\t%s\t%s\t%s\t%s",
			r.ID, r.Timestamp, r.Username, flag(r.Success), r.IP, r.UserAgent)
		if r.Verified != nil {
			line += "\t" + flag(*r.Verified)
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "verify <username>",
		Short: "Verify a password exactly as the verifyUser action does",
		Long: `verify runs one verification against the credential store. It counts as a
real attempt: failures advance the lockout counter and are audited.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("password") {
				return errors.New("--password is required")
			}
			a, err := newApp(cmd.Context(), opts.cfg, appOptions{sinks: true, logTo: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := opts.cfg.Auth.DisplayLocation()
			if err != nil {
				return err
			}
			verify := a.svc.Verify
			if opts.cfg.Auth.AuditBlockedAttempts {
				verify = a.svc.VerifyAuditingBlocked
			}
			res, err := verify(cmd.Context(), args[0], password, service.Meta{UserAgent: "authenticate-cli"})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(handlers.NewVerifyResponse(res, loc))
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password to verify")
	return cmd
}

func newAddUserCmd(opts *rootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "adduser <username>",
		Short: "Create a learner account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errors.New("--password is required")
			}
			a, err := newApp(cmd.Context(), opts.cfg, appOptions{logTo: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			cred, err := a.svc.CreateUser(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %q with id %d\n", cred.Username, cred.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "stats <username>",
		Short: "Show login statistics of an account from Redis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := &app{cfg: opts.cfg}
			defer a.Close()

			client, err := a.openStats(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := client.GetStats(cmd.Context(), models.NormalizeUsername(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch output {
			case "yaml":
				return yaml.NewEncoder(out).Encode(stats)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			default:
				return fmt.Errorf("unknown output format %q (json, yaml)", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json, yaml")
	return cmd
}
