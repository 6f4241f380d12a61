package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/catalog"
	"github.com/SmallTyrant/hocg-catalog/internal/normalize"
	"github.com/SmallTyrant/hocg-catalog/internal/progress"
	"github.com/SmallTyrant/hocg-catalog/internal/progress/sinks"
)

// newRefineCmd creates and configures the 'refine' subcommand, which re-runs
// the text normalizer over everything already stored. Useful after the
// normalizer learns a new rule: no network traffic is involved.
func newRefineCmd(logger *zap.Logger) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Re-normalize all stored card texts in place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger))
			defer func() {
				if cerr := hub.Close(cmd.Context()); cerr != nil {
					logger.Warn("progress hub close failed", zap.Error(cerr))
				}
			}()

			runID := uuid.New()
			started := time.Now()
			updated, err := store.RefineTexts(cmd.Context(), normalize.Text, batchSize,
				func(p catalog.RefineProgress) {
					evt := progress.Event{
						RunID:     runID,
						TS:        time.Now().UTC(),
						Stage:     progress.StageRefine,
						SetCode:   "ALL",
						Processed: int64(p.Seen),
						Total:     int64(p.Total),
					}
					elapsed := time.Since(started).Seconds()
					if elapsed > 0 {
						evt.Rate = float64(p.Seen) / elapsed
					}
					if p.Total > 0 {
						evt.Percent = float64(p.Seen) / float64(p.Total) * 100
						if evt.Rate > 0 {
							remaining := float64(p.Total-p.Seen) / evt.Rate
							evt.ETA = time.Duration(remaining * float64(time.Second))
						}
					}
					hub.Emit(evt)
				})
			if err != nil {
				return fmt.Errorf("refine texts: %w", err)
			}
			logger.Info("refine finished", zap.Int("updated", updated))
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch", 200, "rows updated per transaction")
	return cmd
}
