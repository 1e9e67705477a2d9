package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"esports-aggregator/internal/api"
	"esports-aggregator/internal/cache"
	"esports-aggregator/internal/constants"
	"esports-aggregator/internal/domain"
	"esports-aggregator/internal/fallback"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	errProvidersExhausted = errors.New("no provider returned data")
	errEmptyResult        = errors.New("provider returned no records")
)

// Sink receives freshly synced records. It is optional.
type Sink interface {
	SaveMatches(ctx context.Context, records []domain.NormalizedMatch) error
	SavePlayerStats(ctx context.Context, records []domain.NormalizedPlayerStat) error
}

type Result[T any] struct {
	Records    []T                                   `json:"records"`
	DataSource domain.DataSource                     `json:"data_source"`
	Provider   string                                `json:"provider"`
	FetchedAt  time.Time                             `json:"fetched_at"`
	Sources    map[domain.GameKind]domain.DataSource `json:"sources,omitempty"`
}

// kindOps binds the record-kind specific pieces of the pipeline.
type kindOps[T any] struct {
	kind     domain.RecordKind
	store    *cache.Store[T]
	fetch    func(ctx context.Context, a api.Adapter, q domain.Query) ([]T, error)
	fallback func(q domain.Query) []T
	persist  func(ctx context.Context, records []T) error
	less     func(a, b T) bool
}

type Aggregator struct {
	rt     *Runtime
	logger zerolog.Logger

	matches kindOps[domain.NormalizedMatch]
	stats   kindOps[domain.NormalizedPlayerStat]
}

func NewAggregator(rt *Runtime, sink Sink, logger zerolog.Logger) *Aggregator {
	a := &Aggregator{rt: rt, logger: logger.With().Str("component", "aggregator").Logger()}

	a.matches = kindOps[domain.NormalizedMatch]{
		kind:  domain.KindMatches,
		store: rt.Matches,
		fetch: func(ctx context.Context, ad api.Adapter, q domain.Query) ([]domain.NormalizedMatch, error) {
			return ad.Matches(ctx, q)
		},
		fallback: rt.Fallback.Matches,
		less: func(x, y domain.NormalizedMatch) bool {
			return x.StartedAt.After(y.StartedAt)
		},
	}
	a.stats = kindOps[domain.NormalizedPlayerStat]{
		kind:  domain.KindPlayerStats,
		store: rt.PlayerStats,
		fetch: func(ctx context.Context, ad api.Adapter, q domain.Query) ([]domain.NormalizedPlayerStat, error) {
			return ad.PlayerStats(ctx, q)
		},
		fallback: rt.Fallback.PlayerStats,
		less: func(x, y domain.NormalizedPlayerStat) bool {
			return x.Efficiency > y.Efficiency
		},
	}
	if sink != nil {
		a.matches.persist = sink.SaveMatches
		a.stats.persist = sink.SavePlayerStats
	}
	return a
}

// Matches answers a match query. An empty Game queries every supported game.
func (a *Aggregator) Matches(ctx context.Context, q domain.Query) (Result[domain.NormalizedMatch], error) {
	q.Kind = domain.KindMatches
	if q.Game == "" {
		return across(ctx, a, a.matches, q)
	}
	return resolve(ctx, a, a.matches, q)
}

func (a *Aggregator) PlayerStats(ctx context.Context, q domain.Query) (Result[domain.NormalizedPlayerStat], error) {
	q.Kind = domain.KindPlayerStats
	if q.Game == "" {
		return across(ctx, a, a.stats, q)
	}
	return resolve(ctx, a, a.stats, q)
}

// resolve walks the tiers: fresh cache, providers by priority, stale cache,
// fallback. Provider errors never reach the caller.
func resolve[T any](ctx context.Context, a *Aggregator, ops kindOps[T], q domain.Query) (Result[T], error) {
	game, err := domain.ParseGame(string(q.Game))
	if err != nil {
		return Result[T]{}, err
	}
	q.Game = game

	key := cache.KeyFor(q)
	log := a.logger.With().Str("key", key.String()).Logger()

	entry, fresh, ok := ops.store.Get(key)
	if ok && fresh && !q.ForceRefresh {
		log.Debug().Msg("returning fresh cached records")
		return fromEntry(entry, domain.SourceLive, q.Limit), nil
	}
	if ok && ops.store.Refreshing(key) {
		log.Debug().Bool("fresh", fresh).Msg("refresh in flight, returning previous value")
		return fromEntry(entry, sourceFor(fresh), q.Limit), nil
	}

	// The coalesced fetch outlives any single caller so waiters are not
	// failed by the leader's cancellation. Each provider call has its own timeout.
	fetchCtx := context.WithoutCancel(ctx)
	_, shared, err := ops.store.Coalesce(key, func() ([]T, error) {
		// a flight that finished between our lookup and now already refreshed the key
		if !q.ForceRefresh {
			if e, fresh, ok := ops.store.Get(key); ok && fresh {
				return e.Payload, nil
			}
		}
		return fetchLive(fetchCtx, a, ops, q, key)
	})
	if err == nil {
		if entry, _, ok := ops.store.Get(key); ok {
			log.Info().Str("provider", entry.Source).Bool("shared", shared).Int("count", len(entry.Payload)).Msg("returning live records")
			return fromEntry(entry, domain.SourceLive, q.Limit), nil
		}
	}

	if entry, _, ok := ops.store.Get(key); ok {
		log.Warn().Err(err).Time("fetched_at", entry.FetchedAt).Msg("providers unavailable, serving stale cache")
		return fromEntry(entry, domain.SourceCached, q.Limit), nil
	}

	records := ops.fallback(q)
	if len(records) == 0 {
		log.Error().Err(err).Msg("no live, cached or fallback data")
		return Result[T]{}, fmt.Errorf("%w for %s %s", domain.ErrNoData, q.Game, ops.kind)
	}
	log.Warn().Err(err).Int("count", len(records)).Msg("providers unavailable and cache empty, serving fallback data")
	return Result[T]{
		Records:    limitRecords(records, q.Limit),
		DataSource: domain.SourceFallback,
		Provider:   fallback.SourceID,
		FetchedAt:  a.rt.Now(),
	}, nil
}

// fetchLive tries each provider once, in priority order. The first provider
// returning records wins; an empty success is kept only if nobody has data
// and nothing is cached under the key yet.
func fetchLive[T any](ctx context.Context, a *Aggregator, ops kindOps[T], q domain.Query, key cache.Key) ([]T, error) {
	fetchQuery := q
	fetchQuery.Limit = 0

	emptyFrom := ""
	for _, ad := range a.rt.Registry.For(q.Game, ops.kind) {
		records, status, err := callProvider(ctx, a, ops, ad, fetchQuery)
		if status != domain.PairRefreshed {
			a.logger.Debug().Err(err).Str("provider", ad.ID()).Str("status", string(status)).Msg("provider skipped")
			continue
		}
		if len(records) == 0 {
			if emptyFrom == "" {
				emptyFrom = ad.ID()
			}
			continue
		}
		store(ctx, a, ops, key, records, ad.ID())
		return records, nil
	}

	if emptyFrom != "" {
		if _, _, ok := ops.store.Get(key); ok {
			return nil, errEmptyResult
		}
		store(ctx, a, ops, key, []T{}, emptyFrom)
		return []T{}, nil
	}
	return nil, errProvidersExhausted
}

// callProvider performs one rate-limited, time-bounded adapter call and
// records its outcome in provider health.
func callProvider[T any](ctx context.Context, a *Aggregator, ops kindOps[T], ad api.Adapter, q domain.Query) ([]T, domain.PairStatus, error) {
	id := ad.ID()
	if a.rt.Health.IsDisabled(id) {
		return nil, domain.PairDisabled, nil
	}
	if !a.rt.Limiter.TryReserve(id) {
		a.rt.Health.MarkRateLimited(id, a.rt.Limiter.RetryAt(id))
		return nil, domain.PairDeferred, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.rt.ProviderTimeout)
	defer cancel()

	start := time.Now()
	records, err := ops.fetch(callCtx, ad, q)
	if err != nil {
		a.recordFailure(id, err)
		return nil, domain.PairFailed, err
	}

	a.rt.Health.RecordSuccess(id)
	a.logger.Debug().
		Str("provider", id).
		Str("game", string(q.Game)).
		Str("kind", string(ops.kind)).
		Int("count", len(records)).
		Dur("duration", time.Since(start)).
		Msg("provider call succeeded")
	return records, domain.PairRefreshed, nil
}

func (a *Aggregator) recordFailure(id string, err error) {
	kind := domain.ClassifyFailure(err)
	a.rt.Health.RecordFailure(id, kind, err.Error())

	switch kind {
	case domain.FailureUnconfigured:
		a.rt.Health.Disable(id, err.Error())
		a.logger.Warn().Str("provider", id).Err(err).Msg("provider unconfigured, disabled for this run")
	case domain.FailureData:
		a.logger.Warn().Str("provider", id).Err(err).Msg("provider returned malformed data")
	default:
		var transient *domain.ProviderTransientError
		if errors.As(err, &transient) && transient.RetryAfter > 0 {
			until := a.rt.Now().Add(transient.RetryAfter)
			a.rt.Limiter.Block(id, until)
			a.rt.Health.MarkRateLimited(id, until)
		}
		a.logger.Warn().Str("provider", id).Err(err).Msg("provider call failed")
	}
}

func store[T any](ctx context.Context, a *Aggregator, ops kindOps[T], key cache.Key, records []T, provider string) cache.Entry[T] {
	entry := ops.store.Put(key, records, provider)
	if a.rt.Mirror.Enabled() {
		go func() {
			mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.MirrorTimeout)
			defer cancel()
			if err := cache.Save(mctx, a.rt.Mirror, entry); err != nil {
				a.logger.Warn().Err(err).Str("key", key.String()).Msg("failed to mirror cache entry")
			}
		}()
	}
	return entry
}

// SyncPair refreshes the unfiltered entry of one game and kind from a single
// provider. Used by the scheduler; it shares coalescing with queries.
func (a *Aggregator) SyncPair(ctx context.Context, ad api.Adapter, game domain.GameKind, kind domain.RecordKind) domain.PairOutcome {
	q := domain.Query{Game: game, Kind: kind}
	if kind == domain.KindPlayerStats {
		return syncPair(ctx, a, a.stats, ad, q)
	}
	return syncPair(ctx, a, a.matches, ad, q)
}

func syncPair[T any](ctx context.Context, a *Aggregator, ops kindOps[T], ad api.Adapter, q domain.Query) domain.PairOutcome {
	out := domain.PairOutcome{ProviderID: ad.ID(), Game: q.Game, Kind: ops.kind}
	key := cache.KeyFor(q)

	var status domain.PairStatus
	var callErr error
	records, _, err := ops.store.Coalesce(key, func() ([]T, error) {
		var recs []T
		recs, status, callErr = callProvider(ctx, a, ops, ad, q)
		if status != domain.PairRefreshed {
			return nil, errProvidersExhausted
		}
		if len(recs) == 0 {
			// an empty success never replaces records already cached
			if _, _, ok := ops.store.Get(key); ok {
				return nil, errEmptyResult
			}
		}
		store(ctx, a, ops, key, recs, ad.ID())
		return recs, nil
	})

	switch {
	case err == nil && len(records) == 0:
		out.Status = domain.PairEmpty
	case err == nil:
		out.Status = domain.PairRefreshed
		out.Records = len(records)
	case errors.Is(err, errEmptyResult):
		out.Status = domain.PairEmpty
	case status == "":
		// joined another caller's fetch, which failed
		out.Status = domain.PairFailed
		out.Error = err.Error()
	default:
		out.Status = status
		if callErr != nil {
			out.Error = callErr.Error()
		}
	}

	if out.Status == domain.PairRefreshed && ops.persist != nil && len(records) > 0 {
		pctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
		defer cancel()
		if err := ops.persist(pctx, records); err != nil {
			a.logger.Warn().Err(err).Str("provider", ad.ID()).Msg("failed to persist synced records")
		}
	}
	return out
}

// across queries every supported game concurrently and merges the results.
// The merged data source is the most degraded one.
func across[T any](ctx context.Context, a *Aggregator, ops kindOps[T], q domain.Query) (Result[T], error) {
	results := make([]Result[T], len(domain.SupportedGames))
	g, gCtx := errgroup.WithContext(ctx)
	for i, game := range domain.SupportedGames {
		gq := q
		gq.Game = game
		g.Go(func() error {
			res, err := resolve(gCtx, a, ops, gq)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result[T]{}, err
	}

	merged := Result[T]{
		DataSource: domain.SourceLive,
		Sources:    make(map[domain.GameKind]domain.DataSource, len(results)),
	}
	for i, res := range results {
		merged.Records = append(merged.Records, res.Records...)
		merged.Sources[domain.SupportedGames[i]] = res.DataSource
		if res.DataSource.Degradation() > merged.DataSource.Degradation() {
			merged.DataSource = res.DataSource
		}
		if merged.FetchedAt.IsZero() || res.FetchedAt.Before(merged.FetchedAt) {
			merged.FetchedAt = res.FetchedAt
		}
	}
	merged.Provider = "multiple"
	sort.SliceStable(merged.Records, func(i, j int) bool { return ops.less(merged.Records[i], merged.Records[j]) })
	merged.Records = limitRecords(merged.Records, q.Limit)
	return merged, nil
}

func fromEntry[T any](entry cache.Entry[T], source domain.DataSource, limit int) Result[T] {
	return Result[T]{
		Records:    limitRecords(entry.Payload, limit),
		DataSource: source,
		Provider:   entry.Source,
		FetchedAt:  entry.FetchedAt,
	}
}

func sourceFor(fresh bool) domain.DataSource {
	if fresh {
		return domain.SourceLive
	}
	return domain.SourceCached
}

func limitRecords[T any](records []T, limit int) []T {
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	out := make([]T, len(records))
	copy(out, records)
	return out
}
