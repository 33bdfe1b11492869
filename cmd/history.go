package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/authplane/authplane/internal/config"
	"github.com/authplane/authplane/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync runs",
	Run:   runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := history.Open(ctx, cfg.HistoryURL)
	if err != nil {
		log.Fatalf("Failed to open history: %v", err)
	}
	defer func() { _ = store.Close() }()

	entries, err := store.Recent(ctx, historyLimit)
	if err != nil {
		log.Fatalf("Failed to read history: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No recorded runs.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSOURCE\tTARGET\tSTATE\tWORKSPACE")
	for _, e := range entries {
		state := e.State
		if !e.Success && e.Error != "" {
			state = fmt.Sprintf("%s (%s)", e.State, firstLine(e.Error))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format("2006-01-02 15:04"), e.Source, e.Target, state, e.Workspace)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	if len(s) > 60 {
		return s[:60] + "…"
	}
	return s
}
