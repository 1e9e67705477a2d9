package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"esports-aggregator/internal/cache"
	"esports-aggregator/internal/config"
	"esports-aggregator/internal/constants"
	"esports-aggregator/internal/domain"
	fxmodules "esports-aggregator/internal/fx"
	"esports-aggregator/internal/scheduler"
	"esports-aggregator/internal/server"
	"esports-aggregator/internal/service"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	handler *server.Handler,
	sched *scheduler.Scheduler,
	rt *service.Runtime,
	mirror *cache.Mirror,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	cfg.LogSummary(logger)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: c.Handler(server.NewRouter(handler, logger)),
	}

	// The scheduler outlives the OnStart context.
	schedCtx, cancelSched := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			warmCache(ctx, rt, mirror, logger)

			if err := sched.Start(schedCtx); err != nil {
				cancelSched()
				return err
			}

			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			err := srv.Shutdown(shutdownCtx)
			if err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
			}

			cancelSched()
			sched.Stop()

			if db != nil {
				if err := db.Close(); err != nil {
					logger.Warn().Err(err).Msg("error closing database connection")
				}
			}
			if err := mirror.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis connection")
			}

			if err == nil {
				logger.Info().Msg("server stopped gracefully")
			}
			return err
		},
	})
}

// warmCache restores mirrored entries so a restarted process can serve
// stale data before its first successful fetch.
func warmCache(ctx context.Context, rt *service.Runtime, mirror *cache.Mirror, logger zerolog.Logger) {
	if !mirror.Enabled() {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	if _, err := cache.Warm(wctx, mirror, domain.KindMatches, rt.Matches); err != nil {
		logger.Warn().Err(err).Msg("failed to warm matches cache")
	}
	if _, err := cache.Warm(wctx, mirror, domain.KindPlayerStats, rt.PlayerStats); err != nil {
		logger.Warn().Err(err).Msg("failed to warm player stats cache")
	}
}
