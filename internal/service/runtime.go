package service

import (
	"time"

	"esports-aggregator/internal/api"
	"esports-aggregator/internal/cache"
	"esports-aggregator/internal/config"
	"esports-aggregator/internal/domain"
	"esports-aggregator/internal/fallback"
	"esports-aggregator/internal/health"
	"esports-aggregator/internal/ratelimit"
)

// Runtime is the shared state of one aggregation process: adapters, token
// buckets, caches and provider health. Everything that reads or mutates that
// state receives the same *Runtime.
type Runtime struct {
	Registry        *api.Registry
	Limiter         *ratelimit.Limiter
	Health          *health.Tracker
	Matches         *cache.Store[domain.NormalizedMatch]
	PlayerStats     *cache.Store[domain.NormalizedPlayerStat]
	Fallback        *fallback.Generator
	Mirror          *cache.Mirror
	ProviderTimeout time.Duration
	Now             func() time.Time
}

func NewRuntime(cfg *config.Config, registry *api.Registry, mirror *cache.Mirror) *Runtime {
	return &Runtime{
		Registry:        registry,
		Limiter:         ratelimit.New(cfg.Providers),
		Health:          health.NewTracker(cfg.Providers, time.Now),
		Matches:         cache.NewStore[domain.NormalizedMatch](cfg.TTL(domain.KindMatches), cfg.CacheMaxKeys),
		PlayerStats:     cache.NewStore[domain.NormalizedPlayerStat](cfg.TTL(domain.KindPlayerStats), cfg.CacheMaxKeys),
		Fallback:        fallback.NewGenerator(time.Now),
		Mirror:          mirror,
		ProviderTimeout: cfg.ProviderTimeout,
		Now:             time.Now,
	}
}
