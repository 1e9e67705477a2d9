package fx

import (
	"esports-aggregator/internal/api"
	"esports-aggregator/internal/cache"
	"esports-aggregator/internal/config"
	"esports-aggregator/internal/database"
	"esports-aggregator/internal/logger"
	"esports-aggregator/internal/repository"
	"esports-aggregator/internal/scheduler"
	"esports-aggregator/internal/server"
	"esports-aggregator/internal/service"

	"go.uber.org/fx"
)

// The sink is optional. A nil *repository.Store must reach consumers as a
// nil interface, not a typed nil.

func ProvideSink(store *repository.Store) service.Sink {
	if store == nil {
		return nil
	}
	return store
}

func ProvideRunRecorder(store *repository.Store) scheduler.RunRecorder {
	if store == nil {
		return nil
	}
	return store
}

func ProvideRunHistory(store *repository.Store) server.RunHistory {
	if store == nil {
		return nil
	}
	return store.SyncRuns
}

var Module = fx.Options(
	fx.Provide(config.Load),
	fx.Provide(logger.New),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewStore),
	fx.Provide(ProvideSink),
	fx.Provide(ProvideRunRecorder),
	fx.Provide(ProvideRunHistory),
	// providers and cache
	fx.Provide(api.NewRegistry),
	fx.Provide(cache.NewMirror),
	// svc
	fx.Provide(service.NewRuntime),
	fx.Provide(service.NewAggregator),
	fx.Provide(scheduler.New),
	fx.Provide(
		fx.Annotate(
			func(s *scheduler.Scheduler) *scheduler.Scheduler { return s },
			fx.As(new(service.SyncState)),
			fx.As(new(server.Syncer)),
		),
	),
	fx.Provide(service.NewStatusReporter),
	fx.Provide(service.NewTrendAnalyzer),
	// server
	fx.Provide(server.NewHandler),
)
