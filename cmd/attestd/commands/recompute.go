package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	cfg "github.com/tendermint/reviewattest/config"
	"github.com/tendermint/reviewattest/internal/rating"
	"github.com/tendermint/reviewattest/node"
)

// NewRecomputeRatingsCmd returns the command that rebuilds every product
// rating summary from the stored reviews. It opens the store directly, so
// the node must not be running against a kv store.
func NewRecomputeRatingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-ratings",
		Short: "Rebuild all product rating summaries from the stored reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := node.OpenStore(config, cfg.DefaultDBProvider, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := rating.NewAggregator(s, logger, nil).RecomputeAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("recomputed %d products before failing: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d products\n", n)
			return nil
		},
	}
}
