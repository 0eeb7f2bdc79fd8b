package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mywebintelligence/mwi/internal/heuristics"
)

func newHeuristicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heuristic",
		Short: "Host normalization maintenance",
	}
	cmd.AddCommand(newHeuristicUpdateCmd())
	return cmd
}

func newHeuristicUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Re-derive the canonical domain of every expression",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())

			normalizer, err := heuristics.New(rt.cfg.Heuristics)
			if err != nil {
				return fmt.Errorf("build heuristics: %w", err)
			}
			updated, _, err := rt.trackRun(cmd.Context(), "heuristics", "",
				func(ctx context.Context, _ [16]byte) (int, int, error) {
					n, err := normalizer.Update(ctx, rt.store, rt.log)
					return n, 0, err
				})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d expression(s) updated\n", updated)
			return nil
		},
	}
}
