package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cexll/fcpbot/internal/command"
	"github.com/cexll/fcpbot/internal/ingest"
	"github.com/cexll/fcpbot/internal/teams"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep over open proposals and polls, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.eval.Sweep(cmd.Context())
		},
	}
}

func newIngestCmd() *cobra.Command {
	var (
		repos     []string
		since     string
		thenSweep bool
	)
	cmd := &cobra.Command{
		Use:   "ingest --repo owner/name [--repo ...]",
		Short: "Replay existing issue comments through the bot",
		Long: `Lists every issue comment of the given repositories, oldest first, and
feeds each one to the bot as if it had just been delivered. Replaying is
idempotent, so it can rebuild state for a fresh database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseSince(since)
			if err != nil {
				return err
			}

			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := ingest.New(a.tracker, a.eval).Repos(cmd.Context(), repos, from); err != nil {
				return err
			}
			if thenSweep {
				return a.eval.Sweep(cmd.Context())
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&repos, "repo", nil, "repository to ingest as owner/name (repeatable)")
	cmd.Flags().StringVar(&since, "since", "", "only comments updated at or after this date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().BoolVar(&thenSweep, "sweep", false, "run a sweep after ingesting")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func newParseCmd() *cobra.Command {
	var (
		mention   string
		setupFile string
	)
	cmd := &cobra.Command{
		Use:   "parse [comment text]",
		Short: "Print the commands a comment would trigger",
		Long: `Parses a comment body, given as arguments or on stdin, and prints one
recognized command per line. Nothing is posted or stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read comment: %w", err)
				}
				body = string(data)
			}

			setup, err := loadSetupIfPresent(setupFile)
			if err != nil {
				return err
			}

			cmds, err := command.NewParser(mention, setup).Parse(body)
			out := cmd.OutOrStdout()
			for _, c := range cmds {
				fmt.Fprintln(out, c)
			}
			if len(cmds) == 0 && err == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "no commands")
			}
			return err
		},
	}
	cmd.Flags().StringVar(&mention, "mention", envOr("BOT_MENTION", "@rfcbot"), "token commands start with")
	cmd.Flags().StringVar(&setupFile, "setup", envOr("SETUP_FILE", "rfcbot.toml"), "setup file used to resolve team names")
	return cmd
}

// loadSetupIfPresent lets parse work without a roster, in which case no team
// names resolve.
func loadSetupIfPresent(path string) (*teams.Setup, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return teams.Parse("")
	}
	return teams.Load(path)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
