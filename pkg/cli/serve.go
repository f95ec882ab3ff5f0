package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/hirosegw/changeboard/pkg/cli/config"
	controller "github.com/hirosegw/changeboard/pkg/controller/http"
	"github.com/hirosegw/changeboard/pkg/infra/store"
	"github.com/hirosegw/changeboard/pkg/usecase"
)

func cmdServe() *cli.Command {
	var (
		serverCfg config.Server
		storeCfg  config.Store
		cacheCfg  config.Cache
	)

	flags := append(serverCfg.Flags(), storeCfg.Flags()...)
	flags = append(flags, cacheCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			logger.Info("Starting changeboard server",
				slog.String("addr", serverCfg.Addr),
				slog.String("db", storeCfg.DBPath),
			)

			db, err := store.Open(storeCfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			changelogUC := usecase.NewChangelog(db, db,
				usecase.WithCacheTTL(cacheCfg.TTL),
				usecase.WithFetchTimeout(cacheCfg.FetchTimeout),
			)

			server, err := controller.NewServer(
				ctx,
				changelogUC,
				controller.WithAddr(serverCfg.Addr),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", slog.Any("error", err))
				}
			}()

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
