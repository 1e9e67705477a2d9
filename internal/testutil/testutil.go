// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"esports-aggregator/internal/api"
	"esports-aggregator/internal/cache"
	"esports-aggregator/internal/domain"
	"esports-aggregator/internal/fallback"
	"esports-aggregator/internal/health"
	"esports-aggregator/internal/ratelimit"
	"esports-aggregator/internal/service"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Epoch is the default start time of test clocks.
var Epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// Descriptor builds an enabled, keyless provider descriptor.
func Descriptor(id string, rpm, priority int, games ...domain.GameKind) domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		ID:                id,
		Games:             games,
		BaseURL:           "http://" + id + ".invalid",
		Enabled:           true,
		RequestsPerMinute: rpm,
		Priority:          priority,
	}
}

// Adapter is a scriptable api.Adapter. Nil funcs return no records.
type Adapter struct {
	Desc  domain.ProviderDescriptor
	Kinds []domain.RecordKind

	MatchesFn     func(ctx context.Context, q domain.Query) ([]domain.NormalizedMatch, error)
	PlayerStatsFn func(ctx context.Context, q domain.Query) ([]domain.NormalizedPlayerStat, error)

	matchCalls atomic.Int32
	statCalls  atomic.Int32
}

func NewAdapter(desc domain.ProviderDescriptor) *Adapter {
	return &Adapter{Desc: desc}
}

func (a *Adapter) ID() string { return a.Desc.ID }

func (a *Adapter) Supports(game domain.GameKind, kind domain.RecordKind) bool {
	if !a.Desc.SupportsGame(game) {
		return false
	}
	if len(a.Kinds) == 0 {
		return true
	}
	for _, k := range a.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (a *Adapter) Matches(ctx context.Context, q domain.Query) ([]domain.NormalizedMatch, error) {
	a.matchCalls.Add(1)
	if a.MatchesFn == nil {
		return []domain.NormalizedMatch{}, nil
	}
	return a.MatchesFn(ctx, q)
}

func (a *Adapter) PlayerStats(ctx context.Context, q domain.Query) ([]domain.NormalizedPlayerStat, error) {
	a.statCalls.Add(1)
	if a.PlayerStatsFn == nil {
		return []domain.NormalizedPlayerStat{}, nil
	}
	return a.PlayerStatsFn(ctx, q)
}

func (a *Adapter) RateLimitInfo() api.RateLimitInfo {
	return api.RateLimitInfo{Limit: a.Desc.RequestsPerMinute}
}

func (a *Adapter) MatchCalls() int { return int(a.matchCalls.Load()) }

func (a *Adapter) StatCalls() int { return int(a.statCalls.Load()) }

// Runtime wires adapters into a service.Runtime driven by clock.
func Runtime(clock *Clock, adapters ...*Adapter) *service.Runtime {
	descs := make([]domain.ProviderDescriptor, 0, len(adapters))
	ads := make([]api.Adapter, 0, len(adapters))
	for _, a := range adapters {
		descs = append(descs, a.Desc)
		ads = append(ads, a)
	}
	return &service.Runtime{
		Registry:        api.NewRegistryFrom(descs, ads),
		Limiter:         ratelimit.New(descs, ratelimit.WithClock(clock.Now)),
		Health:          health.NewTracker(descs, clock.Now),
		Matches:         cache.NewStore[domain.NormalizedMatch](5*time.Minute, 64, cache.WithClock(clock.Now)),
		PlayerStats:     cache.NewStore[domain.NormalizedPlayerStat](10*time.Minute, 64, cache.WithClock(clock.Now)),
		Fallback:        fallback.NewGenerator(clock.Now),
		ProviderTimeout: time.Second,
		Now:             clock.Now,
	}
}

func Match(source string, game domain.GameKind, id, teamA, teamB string, scoreA, scoreB int) domain.NormalizedMatch {
	return domain.NewMatch(source, game, id, teamA, teamB, scoreA, scoreB, Epoch, "Test Cup", domain.StatusCompleted)
}

func PlayerStat(source string, game domain.GameKind, player string, kills, deaths, assists int) domain.NormalizedPlayerStat {
	return domain.NewPlayerStat(source, game, source+"-"+player, player, "Test Team", kills, deaths, assists, 1.0, Epoch)
}
