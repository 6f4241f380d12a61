package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/api"
	"github.com/SmallTyrant/hocg-catalog/internal/search"
)

// newServeCmd creates and configures the 'serve' subcommand, which exposes
// the suggest API and Prometheus metrics over HTTP.
func newServeCmd(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the suggestion API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			engine := search.New(store.DB(), logger)
			server := api.NewServer(engine, logger.Named("api"))

			addr := viper.GetString("http.addr")
			srv := &http.Server{
				Addr:              addr,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server started", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			case <-cmd.Context().Done():
			}

			logger.Info("shutdown initiated")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address (host:port)")
	if err := viper.BindPFlag("http.addr", cmd.Flags().Lookup("addr")); err != nil {
		logger.Fatal("bind addr flag", zap.Error(err))
	}
	return cmd
}
