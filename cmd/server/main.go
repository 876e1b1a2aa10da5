package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"ctf-tracker/internal/config"
	"ctf-tracker/internal/constants"
	fxmodules "ctf-tracker/internal/fx"
	"ctf-tracker/internal/game"
	"ctf-tracker/internal/middleware"
	"ctf-tracker/internal/progression"
	"ctf-tracker/internal/server"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runEngine),
		fx.Invoke(runServer),
	).Run()
}

// runEngine starts the session loops' parent context and the progression
// flush worker.
func runEngine(
	lc fx.Lifecycle,
	games *game.Manager,
	prog *progression.Manager,
	logger zerolog.Logger,
) {
	engineCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			games.Start(engineCtx)
			go prog.Run(engineCtx)
			logger.Info().Msg("engine started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			games.Stop()
			logger.Info().Msg("engine stopped")
			return nil
		},
	})
}

func runServer(
	lc fx.Lifecycle,
	handler *server.Handler,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	var h http.Handler = handler.Routes()
	h = c.Handler(h)
	h = middleware.Recover(logger)(h)
	h = middleware.RequestID(logger)(h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: h,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
