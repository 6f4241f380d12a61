package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/crawler"
)

// newSetsCmd creates and configures the 'sets' subcommand.
func newSetsCmd(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "sets",
		Short: "List the expansion codes the card search currently offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := crawler.LoadConfig(viper.GetViper())
			if err != nil {
				return fmt.Errorf("load crawl config: %w", err)
			}
			engine := crawler.New(cfg, nil, logger, nil, nil)
			sets, err := engine.DiscoverSets()
			if err != nil {
				return err
			}
			if len(sets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no expansions found")
				return nil
			}
			for _, s := range sets {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}
