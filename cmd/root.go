// Package cmd defines and implements the CLI commands for the hocg-catalog
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/catalog"
	"github.com/SmallTyrant/hocg-catalog/internal/logging"
	"github.com/SmallTyrant/hocg-catalog/pkg/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hocg-catalog",
		Short: "An offline, searchable catalog of Hololive OCG card printings.",
		Long: `hocg-catalog scrapes the official card list into a local SQLite
database and serves fast schema-tolerant searches over it. All commands work
against the same database file; the crawl can be re-run at any time and only
changed cards are touched.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		}
		config.InitConfig(logger)
	})

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().Bool("verbose", false, "use the development logger (debug level, console encoding)")
	cmd.PersistentFlags().String("db", "", "path to the SQLite database file")
	if err := viper.BindPFlag("db.path", cmd.PersistentFlags().Lookup("db")); err != nil {
		logger.Fatal("bind db flag", zap.Error(err))
	}

	cmd.AddCommand(newCrawlCmd(logger))
	cmd.AddCommand(newRefineCmd(logger))
	cmd.AddCommand(newSuggestCmd(logger))
	cmd.AddCommand(newServeCmd(logger))
	cmd.AddCommand(newImportKoCmd(logger))
	cmd.AddCommand(newSetsCmd(logger))

	return cmd
}

// Execute is the main entry point.
func Execute() {
	// The logger must exist before cobra parses flags, so --verbose is
	// sniffed from the raw arguments.
	development := os.Getenv("HOCG_DEV") != "" || slices.Contains(os.Args[1:], "--verbose")
	logger, err := logging.New(development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

// openStore opens the configured database, creating the schema when the file
// is new.
func openStore(logger *zap.Logger) (*catalog.Store, error) {
	path := viper.GetString("db.path")
	if path == "" {
		return nil, fmt.Errorf("db.path must be set")
	}
	store, err := catalog.Open(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return store, nil
}
