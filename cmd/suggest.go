package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/search"
)

// newSuggestCmd creates and configures the 'suggest' subcommand.
func newSuggestCmd(logger *zap.Logger) *cobra.Command {
	var (
		exact bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "suggest <query>",
		Short: "Search the catalog by card number, name, text, or tag",
		Long: `Runs a suggestion query against the local database. Matching is
case-, punctuation-, and whitespace-insensitive by default; pass --exact for
strict equality. Multi-word queries match cards satisfying any word.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			mode := search.ModePartial
			if exact {
				mode = search.ModeExact
			}
			engine := search.New(store.DB(), logger)
			results, err := engine.Suggest(cmd.Context(), strings.Join(args, " "), mode, limit)
			if err != nil {
				return fmt.Errorf("suggest: %w", err)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CARD\tNAME\tTRANSLATED")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.CardNumber, r.Name, r.TranslatedName)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&exact, "exact", false, "require exact matches")
	cmd.Flags().IntVar(&limit, "limit", 40, "maximum results (0 = unlimited)")
	return cmd
}
