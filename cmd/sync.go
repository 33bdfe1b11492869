package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/authplane/authplane/internal/config"
	"github.com/authplane/authplane/internal/delegate"
	"github.com/authplane/authplane/internal/history"
	"github.com/authplane/authplane/internal/pgtool"
	"github.com/authplane/authplane/internal/pipeline"
	"github.com/authplane/authplane/internal/prompt"
)

var (
	syncYes           bool
	syncWorkspace     string
	syncWithUsers     bool
	syncWithFunctions bool
	syncSkipHistory   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <source> <target>",
	Short: "Replace the target's managed auth tables with the source's",
	Long: `Sync dumps the managed auth tables from the source environment,
clears the target's copies, removes sequence-watermark statements from the
dump, and loads the result into the target. The target becomes an exact
copy of the source for those tables.

The pooled endpoint is tried first for every connection; the direct
database host is the last resort. Failure at any stage aborts the run and
preserves the workspace for inspection.`,
	Example: `  # Sync staging auth data into a developer environment
  authplane sync staging dev

  # Non-interactive, with an explicit workspace
  authplane sync staging dev --yes --workspace /tmp/sync-run

  # Also run the delegated user and function migrations
  authplane sync staging dev --with-users --with-functions`,
	Args: cobra.ExactArgs(2),
	Run:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&syncYes, "yes", false, "Skip the interactive confirmation")
	syncCmd.Flags().StringVar(&syncWorkspace, "workspace", "", "Explicit workspace directory for run artifacts")
	syncCmd.Flags().BoolVar(&syncWithUsers, "with-users", false, "Run the delegated interactive-user migration after the sync")
	syncCmd.Flags().BoolVar(&syncWithFunctions, "with-functions", false, "Run the delegated function-code migration after the sync")
	syncCmd.Flags().BoolVar(&syncSkipHistory, "skip-history", false, "Do not record this run in the history store")
}

func runSync(cmd *cobra.Command, args []string) {
	sourceName, targetName := args[0], args[1]

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.ConfigFilePath == "" {
		fmt.Println(`authplane.toml not found. Create one that looks like:

[environments.staging]
project_ref = "abcdefghijklmnop"
region = "us-east-1"`)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := pipeline.New(cfg)
	orch.Confirm = prompt.TerminalConfirmer{}

	started := time.Now()
	result, runErr := orch.Run(ctx, pipeline.Options{
		Source:      sourceName,
		Target:      targetName,
		AutoConfirm: syncYes,
		Workspace:   syncWorkspace,
	})

	if !syncSkipHistory {
		recordHistory(cfg, sourceName, targetName, started, result, runErr)
	}

	if runErr != nil {
		if errors.Is(runErr, pipeline.ErrConfirmationDeclined) {
			fmt.Fprintln(os.Stderr, "Aborted.")
			os.Exit(1)
		}
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "✗ Sync failed: %v\n", runErr)
		os.Exit(1)
	}

	color.New(color.FgGreen, color.Bold).Fprintf(os.Stderr, "✓ Synced %s → %s in %s\n", sourceName, targetName, result.Duration.Round(time.Second))
	fmt.Fprintf(os.Stderr, "  Archive: %s\n", result.ArchivePath)
	fmt.Fprintf(os.Stderr, "  Log:     %s\n", result.LogPath)
	fmt.Fprintf(os.Stderr, "  Report:  %s\n", result.ReportPath)

	if syncWithUsers || syncWithFunctions {
		runDelegates(ctx, result.Workspace, sourceName, targetName)
	}
}

// runDelegates invokes the delegated migrations after a successful core
// sync. Each manages its own connections; only the exit status matters.
func runDelegates(ctx context.Context, workspace, sourceName, targetName string) {
	runner := &pgtool.ExecRunner{}
	opts := delegate.Options{
		Source:      sourceName,
		Target:      targetName,
		Workspace:   workspace,
		AutoConfirm: syncYes,
	}

	if syncWithUsers {
		fmt.Fprintln(os.Stderr, "Running delegated user migration...")
		logPath, err := delegate.RunUsers(ctx, runner, opts)
		if err != nil {
			color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "✗ User migration failed: %v (log: %s)\n", err, logPath)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "✓ User migration complete (log: %s)\n", logPath)
	}

	if syncWithFunctions {
		fmt.Fprintln(os.Stderr, "Running delegated function migration...")
		logPath, err := delegate.RunFunctions(ctx, runner, opts)
		if err != nil {
			color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "✗ Function migration failed: %v (log: %s)\n", err, logPath)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "✓ Function migration complete (log: %s)\n", logPath)
	}
}

// recordHistory appends the run outcome to the history store. History is
// best effort: a failure here never changes the run's exit status.
func recordHistory(cfg *config.Config, sourceName, targetName string, started time.Time, result *pipeline.RunResult, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := history.Open(ctx, cfg.HistoryURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: history unavailable: %v\n", err)
		return
	}
	defer func() { _ = store.Close() }()

	entry := history.Entry{
		Source:     sourceName,
		Target:     targetName,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Success:    runErr == nil,
		State:      string(pipeline.StateDone),
	}
	if result != nil {
		entry.RunID = result.RunID
		entry.Workspace = result.Workspace
	}
	if runErr != nil {
		entry.State = string(pipeline.StateFailed)
		entry.Error = runErr.Error()
	}
	if entry.RunID == "" {
		// Runs that fail before the workspace exists still get a row.
		entry.RunID = fmt.Sprintf("failed-%d", started.UnixNano())
	}

	if err := store.Record(ctx, entry); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record history: %v\n", err)
	}
}
