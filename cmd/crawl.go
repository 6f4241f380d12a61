package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/crawler"
	"github.com/SmallTyrant/hocg-catalog/internal/images"
	"github.com/SmallTyrant/hocg-catalog/internal/progress"
	"github.com/SmallTyrant/hocg-catalog/internal/progress/sinks"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [set-code]",
		Short: "Scrape card detail pages into the local database",
		Long: `Paginates the official card search for one expansion (or every
expansion when the argument is "all" or omitted), fetches each card's detail
page, and upserts the parsed records. Re-running is safe: cards are keyed on
card number and only changed fields are rewritten.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setCode := "all"
			if len(args) == 1 {
				setCode = args[0]
			}
			return runCrawl(cmd, logger, setCode)
		},
	}
	cmd.Flags().String("image-dir", "", "download card images into this directory")
	cmd.Flags().Int("max-cards", 0, "stop after this many cards (0 = no limit)")
	cmd.Flags().Duration("delay", 600*time.Millisecond, "pause between detail fetches")
	cmd.Flags().Int("workers", 1, "concurrent detail fetchers")
	cmd.Flags().Int("max-pages", 999, "list pages to paginate per set")
	for key, flag := range map[string]string{
		"crawl.image_dir": "image-dir",
		"crawl.max_cards": "max-cards",
		"crawl.delay":     "delay",
		"crawl.workers":   "workers",
		"crawl.max_pages": "max-pages",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			logger.Fatal("bind crawl flag", zap.String("flag", flag), zap.Error(err))
		}
	}
	return cmd
}

func runCrawl(cmd *cobra.Command, logger *zap.Logger, setCode string) error {
	cfg, err := crawler.LoadConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load crawl config: %w", err)
	}

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var imgCache *images.Cache
	if cfg.ImageDir != "" {
		imgCache, err = images.New(cfg.ImageDir, cfg.UserAgent, logger)
		if err != nil {
			return fmt.Errorf("init image cache: %w", err)
		}
	}

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return fmt.Errorf("init metrics sink: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLogSink(logger), promSink)
	defer func() {
		if cerr := hub.Close(cmd.Context()); cerr != nil {
			logger.Warn("progress hub close failed", zap.Error(cerr))
		}
	}()

	engine := crawler.New(cfg, store, logger, hub, imgCache)
	summary, err := engine.Crawl(cmd.Context(), setCode)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	logger.Info("crawl finished",
		zap.String("run_id", summary.RunID),
		zap.Strings("sets", summary.Sets),
		zap.Int("pages", summary.Pages),
		zap.Int64("saved", summary.Saved),
		zap.Int64("skipped", summary.Skipped),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return nil
}
