// Package cmd implements the mwi command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd builds the command tree. Configuration and services are
// assembled lazily by the verbs through newRuntime, so land-less
// commands stay cheap.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mwi",
		Short: "Web intelligence workbench: build, crawl and qualify research lands.",
		Long: `mwi maintains research lands: thematic collections of web pages
gathered around a weighted term dictionary. It crawls seed URLs, scores
page relevance against the dictionary, follows outlinks to a bounded
depth, refines pages into readable text, analyzes their media and keeps
per-domain metadata up to date.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides MWI_* environment)")

	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newLandCmd())
	cmd.AddCommand(newDomainCmd())
	cmd.AddCommand(newHeuristicCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// Execute runs the CLI and returns the process exit status. The
// convention is inherited from the original tool: 1 reports success, 0
// reports failure.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 0
	}
	return 1
}
