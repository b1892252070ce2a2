// Command schoolpost is the operator CLI: it runs scrapes and generation
// inline, enqueues them for the worker, or calls a running API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/schoolpost/internal/app"
	"github.com/dharsanguruparan/schoolpost/internal/config"
	"github.com/dharsanguruparan/schoolpost/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "schoolpost: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schoolpost",
		Short: "schoolpost operator CLI",
		Long: `schoolpost scrapes the weekly mailings from the school portal, turns them into
daily reminders and a weekly overview per class group, and stores the results.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newScrapeCmd(),
		newGenerateCmd(),
		newScheduleCmd(),
		newMigrateCmd(),
		newRunsCmd(),
		newGroupsCmd(),
		newDocumentsCmd(),
		newEnqueueCmd(),
		newTriggerCmd(),
	)
	return cmd
}

// withApp loads configuration, builds the dependencies and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
