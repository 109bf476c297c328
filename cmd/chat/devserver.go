package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/devserver"
	"github.com/vovakirdan/wirechat-client/internal/log"
)

func newDevServerCmd() *cobra.Command {
	var (
		addr     string
		dbPath   string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local stand-in chat backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.New(logLevel)

			store, err := devserver.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := &http.Server{
				Addr:    addr,
				Handler: devserver.New(store, logger).Handler(),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", addr).Str("db", dbPath).Msg("devserver listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8090", "listen address")
	cmd.Flags().StringVar(&dbPath, "db", "devserver.db", "sqlite database path")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}
