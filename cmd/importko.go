package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/translations"
)

// newImportKoCmd creates and configures the 'import-ko' subcommand.
func newImportKoCmd(logger *zap.Logger) *cobra.Command {
	var (
		overwrite bool
		source    string
	)
	cmd := &cobra.Command{
		Use:   "import-ko <file.csv>",
		Short: "Import translated card texts from a CSV file",
		Long: `Reads a header-mapped CSV of card translations and writes them
into the database. Rows referencing unknown card numbers are skipped. A
translation's version only increases when its content actually changes, so
re-importing the same file is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open translation file: %w", err)
			}
			defer f.Close()

			importer := translations.New(store, logger).WithSource(source)
			res, err := importer.Import(cmd.Context(), f, overwrite)
			if err != nil {
				return fmt.Errorf("import translations: %w", err)
			}
			logger.Info("import finished",
				zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped))
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace translations that already exist")
	cmd.Flags().StringVar(&source, "source", translations.Source, "source label recorded on imported rows")
	return cmd
}
