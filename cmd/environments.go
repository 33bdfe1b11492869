package cmd

import (
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/authplane/authplane/internal/config"
	"github.com/authplane/authplane/internal/endpoint"
)

var environmentsCmd = &cobra.Command{
	Use:     "environments",
	Aliases: []string{"envs"},
	Short:   "List configured environments and their endpoints",
	Run:     runEnvironments,
}

func init() {
	rootCmd.AddCommand(environmentsCmd)
}

func runEnvironments(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.ConfigFilePath == "" {
		fmt.Println("authplane.toml not found.")
		os.Exit(1)
	}

	names := make([]string, 0, len(cfg.Environments))
	for name := range cfg.Environments {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPROJECT\tENDPOINTS")
	for _, name := range names {
		env, err := config.ResolveEnvironment(cfg, name)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t(unresolvable: %v)\n", name, err)
			continue
		}
		for i, ep := range endpoint.Candidates(env) {
			if i == 0 {
				fmt.Fprintf(w, "%s\t%s\t%s %s\n", name, env.ProjectRef, ep.Label, ep.Addr())
			} else {
				fmt.Fprintf(w, "\t\t%s %s\n", ep.Label, ep.Addr())
			}
		}
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
}
