package fx

import (
	"ctf-tracker/internal/api"
	"ctf-tracker/internal/config"
	"ctf-tracker/internal/cosmetics"
	"ctf-tracker/internal/database"
	"ctf-tracker/internal/game"
	"ctf-tracker/internal/logger"
	"ctf-tracker/internal/progression"
	"ctf-tracker/internal/query"
	"ctf-tracker/internal/repository"
	"ctf-tracker/internal/server"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func provideProgressionManager(repo *repository.ProgressionRepository, log zerolog.Logger) *progression.Manager {
	return progression.NewManager(repo, log)
}

func provideGameManager(cfg *config.Config, prog *progression.Manager, notifier *api.Notifier, log zerolog.Logger) *game.Manager {
	return game.NewManager(cfg, prog, notifier, log)
}

func provideCosmeticsService(repo *repository.CosmeticsRepository, log zerolog.Logger) *cosmetics.Service {
	return cosmetics.NewService(repo, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewProgressionRepository),
	fx.Provide(repository.NewCosmeticsRepository),
	// engine
	fx.Provide(provideProgressionManager),
	fx.Provide(api.NewNotifier),
	fx.Provide(provideGameManager),
	// read surface
	fx.Provide(provideCosmeticsService),
	fx.Provide(query.NewResolver),
	fx.Provide(server.New),
)
