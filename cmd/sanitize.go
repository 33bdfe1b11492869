package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/authplane/authplane/internal/sanitize"
)

var sanitizeOutput string

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize <file.sql>",
	Short: "Remove sequence-assignment statements from a SQL file",
	Long: `Sanitize filters an extracted SQL file the same way the sync pipeline
does: every statement that sets a sequence's current value is removed, and
everything else passes through unchanged. Useful for re-running the filter
on a preserved workspace after a failed run.`,
	Args: cobra.ExactArgs(1),
	Run:  runSanitize,
}

func init() {
	rootCmd.AddCommand(sanitizeCmd)

	sanitizeCmd.Flags().StringVarP(&sanitizeOutput, "output", "o", "", "Output path (default: <input>.sanitized.sql)")
}

func runSanitize(cmd *cobra.Command, args []string) {
	inPath := args[0]

	outPath := sanitizeOutput
	if outPath == "" {
		outPath = strings.TrimSuffix(inPath, ".sql") + ".sanitized.sql"
	}

	result, err := sanitize.File(inPath, outPath)
	if err != nil {
		log.Fatalf("Sanitize failed: %v", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Wrote %s (%d sequence assignment statement(s) removed)\n", outPath, result.StatementsRemoved)
}
