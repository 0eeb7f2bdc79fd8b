package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mywebintelligence/mwi/internal/enrich"
)

func newDomainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domain",
		Short: "Maintain per-domain metadata",
	}
	cmd.AddCommand(newDomainCrawlCmd())
	return cmd
}

func newDomainCrawlCmd() *cobra.Command {
	var httpFilter string
	var limit int
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch homepage metadata for unprocessed domains",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())

			enricher := enrich.New(rt.store, rt.newFetcher(), enrich.Config{
				Parallel: rt.cfg.Crawl.ParallelConnections,
				Timeout:  rt.cfg.Crawl.Timeout(),
			}, rt.log)

			processed, errCount, err := rt.trackRun(cmd.Context(), "domain", "",
				func(ctx context.Context, _ [16]byte) (int, int, error) {
					stats, err := enricher.Enrich(ctx, enrich.Options{
						Limit: limit, HTTPFilter: httpFilter,
					})
					return stats.Processed, stats.Errors, err
				})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d processed, %d errors\n", processed, errCount)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum domains to process")
	cmd.Flags().StringVar(&httpFilter, "http", "", "re-crawl only domains with this HTTP status")
	return cmd
}
