package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cexll/fcpbot/internal/webhook"
)

var (
	loadDotEnv         = godotenv.Load
	openStore          = defaultOpenStore
	newTracker         = defaultTracker
	openRedis          = webhook.OpenRedis
	defaultListenServe = http.ListenAndServe
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatalf("fcpbot: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fcpbot",
		Short: "Final comment period bot for GitHub issues",
		Long: `fcpbot tracks final comment periods on GitHub issues and pull requests.

Team members drive it with comments such as "@rfcbot fcp merge",
"@rfcbot reviewed" and "@rfcbot concern <name>". Without a subcommand
it serves the webhook endpoint and runs the periodic sweep.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file (ignore error if file doesn't exist)
			_ = loadDotEnv()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), defaultListenServe)
		},
	}

	root.AddCommand(newServeCmd(), newSweepCmd(), newIngestCmd(), newParseCmd())
	return root
}
