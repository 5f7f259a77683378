package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emilythestrangee/thumbsup/internal/database"
	"github.com/emilythestrangee/thumbsup/internal/handlers"
	"github.com/emilythestrangee/thumbsup/internal/metrics"
	"github.com/emilythestrangee/thumbsup/internal/server"
)

const shutdownTimeout = 5 * time.Second

// serveCmd runs the API. releaseSignals stops signal capture once shutdown
// starts, so a second interrupt kills the process.
func serveCmd(releaseSignals func()) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, releaseSignals)
		},
	}
	cmd.Flags().String(portF, "8080", portFlagUsage)
	return cmd
}

func serve(cmd *cobra.Command, releaseSignals func()) error {
	registry := metrics.Registry()
	a, err := bootstrap(cmd.Flags(), metrics.NewVotes(registry))
	if err != nil {
		return err
	}
	defer a.Close()

	if err := database.Migrate(a.db.GetDB()); err != nil {
		return err
	}

	if a.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	secret := []byte(a.cfg.JWTSecret)
	handler := handlers.NewHandler(a.db.GetDB(), a.service, secret, a.log.Named("http"))
	srv := server.New(a.db, handler, registry, secret, a.log.Named("http")).HTTPServer(a.cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if err := waitForShutdown(cmd.Context(), errCh, releaseSignals); err != nil {
		return err
	}

	a.log.Info("shutting down gracefully, press Ctrl+C again to force")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	a.log.Info("server exited")
	return nil
}

// waitForShutdown blocks until the server fails or ctx is cancelled. On
// cancellation it calls releaseSignals and returns nil.
func waitForShutdown(ctx context.Context, errCh <-chan error, releaseSignals func()) error {
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	if releaseSignals != nil {
		releaseSignals()
	}
	return nil
}
