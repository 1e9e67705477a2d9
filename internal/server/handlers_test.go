package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"esports-aggregator/internal/config"
	"esports-aggregator/internal/domain"
	"esports-aggregator/internal/middleware"
	"esports-aggregator/internal/scheduler"
	"esports-aggregator/internal/service"
	"esports-aggregator/internal/testutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	runs []domain.SyncRun
	err  error
}

func (f fakeHistory) Recent(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.runs[:min(limit, len(f.runs))], nil
}

type fixture struct {
	router http.Handler
	hltv   *testutil.Adapter
	sched  *scheduler.Scheduler
}

func newFixture(t *testing.T, history RunHistory) fixture {
	t.Helper()
	clock := testutil.NewClock(testutil.Epoch)

	hltv := testutil.NewAdapter(testutil.Descriptor("hltv", 600, 10, domain.GameCSGO))
	hltv.MatchesFn = func(ctx context.Context, q domain.Query) ([]domain.NormalizedMatch, error) {
		return []domain.NormalizedMatch{
			testutil.Match("hltv", domain.GameCSGO, "1", "Vitality", "FaZe Clan", 16, 10),
			testutil.Match("hltv", domain.GameCSGO, "2", "G2 Esports", "MOUZ", 9, 16),
			testutil.Match("hltv", domain.GameCSGO, "3", "Heroic", "Astralis", 16, 14),
		}, nil
	}
	hltv.PlayerStatsFn = func(ctx context.Context, q domain.Query) ([]domain.NormalizedPlayerStat, error) {
		return []domain.NormalizedPlayerStat{testutil.PlayerStat("hltv", domain.GameCSGO, "device", 20, 10, 5)}, nil
	}

	rt := testutil.Runtime(clock, hltv)
	agg := service.NewAggregator(rt, nil, zerolog.Nop())
	sched := scheduler.New(&config.Config{SyncInterval: time.Hour}, agg, rt, nil, zerolog.Nop())
	status := service.NewStatusReporter(rt, sched)

	trends := service.NewTrendAnalyzer(rt)

	h := NewHandler(agg, status, trends, sched, history, rt.Registry, zerolog.Nop())
	return fixture{router: NewRouter(h, zerolog.Nop()), hltv: hltv, sched: sched}
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestGetMatches(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := do(t, f.router, http.MethodGet, "/api/esport/live/matches?game=csgo")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "csgo", body["game"])
	assert.Equal(t, "live", body["data_source"])
	assert.Equal(t, "hltv", body["provider"])
	assert.EqualValues(t, 3, body["count"])
	assert.Len(t, body["records"], 3)
}

func TestGetMatchesLimit(t *testing.T) {
	f := newFixture(t, nil)

	_, body := do(t, f.router, http.MethodGet, "/api/esport/live/matches?game=csgo&limit=2")
	assert.EqualValues(t, 2, body["count"])

	_, body = do(t, f.router, http.MethodGet, "/api/esport/live/matches?game=csgo&limit=0")
	assert.EqualValues(t, 1, body["count"], "limit is clamped to at least one")

	_, body = do(t, f.router, http.MethodGet, "/api/esport/live/matches?game=csgo&limit=100000")
	assert.EqualValues(t, 3, body["count"])

	rec, body := do(t, f.router, http.MethodGet, "/api/esport/live/matches?game=csgo&limit=ten")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid limit parameter", body["error"])

	assert.Equal(t, 1, f.hltv.MatchCalls())
}

func TestGetMatchesForceRefresh(t *testing.T) {
	f := newFixture(t, nil)

	do(t, f.router, http.MethodGet, "/api/esport/live/matches?game=csgo")
	do(t, f.router, http.MethodGet, "/api/esport/live/matches?game=csgo&force_refresh=true")
	assert.Equal(t, 2, f.hltv.MatchCalls())

	rec, _ := do(t, f.router, http.MethodGet, "/api/esport/live/matches?game=csgo&force_refresh=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMatchesUnsupportedGame(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := do(t, f.router, http.MethodGet, "/api/esport/live/matches?game=chess")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "unsupported game")
	assert.Zero(t, f.hltv.MatchCalls())
}

func TestGetMatchesAllGames(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := do(t, f.router, http.MethodGet, "/api/esport/live/matches")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["game"])
	assert.Equal(t, "fallback", body["data_source"])

	sources, ok := body["sources"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "live", sources["csgo"])
	assert.Equal(t, "fallback", sources["dota2"])
}

func TestGetPlayers(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := do(t, f.router, http.MethodGet, "/api/esport/live/players?game=csgo&player=device")
	require.Equal(t, http.StatusOK, rec.Code)
	records := body["records"].([]any)
	require.Len(t, records, 1)
	rec0 := records[0].(map[string]any)
	assert.Equal(t, "device", rec0["player"])
	assert.InDelta(t, 2.5, rec0["efficiency"], 1e-9)

	rec, body = do(t, f.router, http.MethodGet, "/api/esport/live/players?game=valorant")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fallback", body["data_source"])
}

func TestPostSync(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := do(t, f.router, http.MethodPost, "/api/esport/live/sync?force=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", body["status"])
	run := body["run"].(map[string]any)
	assert.Equal(t, true, run["forced"])

	rec, body = do(t, f.router, http.MethodPost, "/api/esport/live/sync")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "skipped", body["status"])

	rec, _ = do(t, f.router, http.MethodPost, "/api/esport/live/sync?force=nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSyncHistory(t *testing.T) {
	f := newFixture(t, nil)
	first := f.sched.Sync(context.Background(), true).Run
	second := f.sched.Sync(context.Background(), true).Run

	_, body := do(t, f.router, http.MethodGet, "/api/esport/live/sync/history")
	assert.Equal(t, false, body["persisted"])
	runs := body["runs"].([]any)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].(map[string]any)["id"])
	assert.Equal(t, first.ID, runs[1].(map[string]any)["id"])

	_, body = do(t, f.router, http.MethodGet, "/api/esport/live/sync/history?limit=1")
	assert.Len(t, body["runs"], 1)
}

func TestGetSyncHistoryPersisted(t *testing.T) {
	stored := []domain.SyncRun{{ID: "b"}, {ID: "a"}}
	f := newFixture(t, fakeHistory{runs: stored})

	_, body := do(t, f.router, http.MethodGet, "/api/esport/live/sync/history")
	assert.Equal(t, true, body["persisted"])
	assert.Len(t, body["runs"], 2)

	broken := newFixture(t, fakeHistory{err: errors.New("database is locked")})
	_, body = do(t, broken.router, http.MethodGet, "/api/esport/live/sync/history")
	assert.Equal(t, false, body["persisted"])
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t, nil)
	do(t, f.router, http.MethodGet, "/api/esport/live/matches?game=csgo")

	rec, body := do(t, f.router, http.MethodGet, "/api/esport/live/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["service_status"])

	providers := body["providers"].([]any)
	require.Len(t, providers, 1)
	p := providers[0].(map[string]any)
	assert.Equal(t, "hltv", p["provider_id"])
	assert.Equal(t, "usable", p["state"])

	cache := body["cache"].(map[string]any)
	assert.EqualValues(t, 1, cache["matches_cached"])
}

func TestGetGames(t *testing.T) {
	f := newFixture(t, nil)

	_, body := do(t, f.router, http.MethodGet, "/api/esport/live/games")
	assert.EqualValues(t, 3, body["count"])

	games := body["games"].([]any)
	csgo := games[0].(map[string]any)
	assert.Equal(t, "csgo", csgo["id"])
	assert.Equal(t, "Counter-Strike: Global Offensive", csgo["name"])
	assert.Len(t, csgo["providers"], 1)

	dota := games[2].(map[string]any)
	assert.Empty(t, dota["providers"])
}

func TestHealthCheckCarriesRequestID(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := do(t, f.router, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(middleware.RequestIDHeader))
}

func TestGetTrends(t *testing.T) {
	f := newFixture(t, nil)

	_, body := do(t, f.router, http.MethodGet, "/api/esport/live/analytics/trends")
	assert.Equal(t, "24h", body["timeframe"])
	assert.Empty(t, body["top_teams"], "nothing cached yet")

	do(t, f.router, http.MethodGet, "/api/esport/live/matches?game=csgo")
	do(t, f.router, http.MethodGet, "/api/esport/live/players?game=csgo")

	rec, body := do(t, f.router, http.MethodGet, "/api/esport/live/analytics/trends?game=csgo&timeframe=7d")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7d", body["timeframe"])
	assert.Equal(t, "csgo", body["game_filter"])

	teams := body["top_teams"].([]any)
	require.Len(t, teams, 6)
	assert.EqualValues(t, 1, teams[0].(map[string]any)["wins"])

	players := body["top_players"].([]any)
	require.Len(t, players, 1)
	assert.Equal(t, "device", players[0].(map[string]any)["name"])

	freq := body["match_frequency"].(map[string]any)
	assert.EqualValues(t, 3, freq["total"])
	assert.EqualValues(t, 3, freq["by_game"].(map[string]any)["csgo"])

	assert.Equal(t, 1, f.hltv.MatchCalls(), "trends never reach a provider")
}

func TestGetTrendsRejectsBadParams(t *testing.T) {
	f := newFixture(t, nil)

	rec, body := do(t, f.router, http.MethodGet, "/api/esport/live/analytics/trends?timeframe=30d")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "invalid timeframe")

	rec, _ = do(t, f.router, http.MethodGet, "/api/esport/live/analytics/trends?game=chess")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
