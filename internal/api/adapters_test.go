package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"esports-aggregator/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptor(id, baseURL string, games ...domain.GameKind) domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		ID:                id,
		Games:             games,
		BaseURL:           baseURL,
		Enabled:           true,
		RequestsPerMinute: 60,
		Priority:          10,
		Timeout:           2 * time.Second,
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

const hltvMatches = `{"matches":[
 {"id":1,"date":1717243200000,"live":false,"team1":{"name":"Vitality"},"team2":{"name":"FaZe Clan"},"result":{"team1":16,"team2":12},"event":{"name":"IEM Cologne"}},
 {"id":2,"date":1717246800000,"live":true,"team1":{"name":"G2 Esports"},"team2":{"name":"Vitality"},"result":{"team1":8,"team2":5},"event":{"name":"IEM Cologne"}},
 {"id":3,"date":1717250400000,"live":false,"team1":{"name":"MOUZ"},"team2":{"name":"Heroic"},"event":{"name":"IEM Cologne"}},
 {"id":4,"date":1717250400000,"live":false,"team1":{"name":""},"team2":{"name":"TBD"}}
]}`

func TestHLTVMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/matches", r.URL.Path)
		w.Header().Set("X-Ratelimit-Remaining", "42")
		_, _ = w.Write([]byte(hltvMatches))
	}))
	defer srv.Close()

	a := NewHLTVAdapter(descriptor("hltv", srv.URL, domain.GameCSGO))
	matches, err := a.Matches(context.Background(), domain.Query{Game: domain.GameCSGO})
	require.NoError(t, err)
	require.Len(t, matches, 3, "matches without both teams are dropped")

	done := matches[0]
	assert.Equal(t, "1", done.ID)
	assert.Equal(t, "hltv", done.Source)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, domain.OutcomeWin, done.Outcome)
	assert.Equal(t, "IEM Cologne", done.Event)
	assert.Equal(t, time.UnixMilli(1717243200000).UTC(), done.StartedAt)

	assert.Equal(t, domain.StatusLive, matches[1].Status)
	assert.Equal(t, domain.OutcomeUnknown, matches[1].Outcome)
	assert.Equal(t, domain.StatusScheduled, matches[2].Status)

	assert.Equal(t, 42, a.RateLimitInfo().Remaining)
}

func TestHLTVMatchesTeamFilterFlipsSides(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(hltvMatches))
	}))
	defer srv.Close()

	a := NewHLTVAdapter(descriptor("hltv", srv.URL, domain.GameCSGO))
	matches, err := a.Matches(context.Background(), domain.Query{Game: domain.GameCSGO, Team: "faze clan"})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, "FaZe Clan", m.TeamA)
	assert.Equal(t, "Vitality", m.TeamB)
	assert.Equal(t, 12, m.ScoreA)
	assert.Equal(t, 16, m.ScoreB)
	assert.Equal(t, domain.OutcomeLoss, m.Outcome)
}

func TestHLTVPlayerStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/players/top", r.URL.Path)
		_, _ = w.Write([]byte(`{"players":[
 {"id":7,"name":"device","team":{"name":"Astralis"},"rating2":1.12,"stats":{"kills":20,"deaths":10,"assists":4},"updatedAt":1717243200000},
 {"id":8,"name":"ZywOo","team":{"name":"Vitality"},"rating2":1.31,"stats":{"kills":25,"deaths":0,"assists":5}}
]}`))
	}))
	defer srv.Close()

	a := NewHLTVAdapter(descriptor("hltv", srv.URL, domain.GameCSGO))
	stats, err := a.PlayerStats(context.Background(), domain.Query{Game: domain.GameCSGO, Player: "DEVICE"})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "device", stats[0].Player)
	assert.Equal(t, "Astralis", stats[0].Team)
	assert.InDelta(t, 2.4, stats[0].Efficiency, 1e-9)

	all, err := a.PlayerStats(context.Background(), domain.Query{Game: domain.GameCSGO})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.InDelta(t, 30.0, all[1].Efficiency, 1e-9, "zero deaths count as one")
}

func TestClientErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrProviderUnconfigured)
				assert.Equal(t, domain.FailureUnconfigured, domain.ClassifyFailure(err))
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrProviderUnconfigured)
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var te *domain.ProviderTransientError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, http.StatusBadGateway, te.Status)
				assert.Equal(t, domain.FailureTransient, domain.ClassifyFailure(err))
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "30"},
			check: func(t *testing.T, err error) {
				var te *domain.ProviderTransientError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, 30*time.Second, te.RetryAfter)
			},
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `{"matches": [`,
			check: func(t *testing.T, err error) {
				var de *domain.ProviderDataError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, http.StatusOK, de.Status)
				assert.Equal(t, len(`{"matches": [`), de.BodySize)
				assert.Equal(t, domain.FailureData, domain.ClassifyFailure(err))
			},
		},
		{
			name:   "unexpected status",
			status: http.StatusNotFound,
			body:   "not here",
			check: func(t *testing.T, err error) {
				var de *domain.ProviderDataError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, http.StatusNotFound, de.Status)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewHLTVAdapter(descriptor("hltv", srv.URL, domain.GameCSGO))
			_, err := a.Matches(context.Background(), domain.Query{Game: domain.GameCSGO})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClientTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	a := NewHLTVAdapter(descriptor("hltv", srv.URL, domain.GameCSGO))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := a.Matches(ctx, domain.Query{Game: domain.GameCSGO})
	var te *domain.ProviderTransientError
	require.ErrorAs(t, err, &te)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMissingKeyFailsWithoutRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	desc := descriptor("riot", srv.URL, domain.GameValorant)
	desc.RequiresKey = true

	a := NewRiotAdapter(desc)
	_, err := a.Matches(context.Background(), domain.Query{Game: domain.GameValorant})
	assert.ErrorIs(t, err, domain.ErrProviderUnconfigured)
	assert.Zero(t, hits.Load())
}

func riotMatch(id string, completed bool, redRounds, blueRounds int) map[string]any {
	return map[string]any{
		"matchInfo": map[string]any{
			"matchId":          id,
			"gameStartMillis":  int64(1717243200000),
			"gameLengthMillis": int64(1800000),
			"isCompleted":      completed,
			"queueId":          "competitive",
		},
		"teams": []map[string]any{
			{"teamId": "Red", "won": redRounds > blueRounds, "roundsWon": redRounds},
			{"teamId": "Blue", "won": blueRounds > redRounds, "roundsWon": blueRounds},
		},
		"players": []map[string]any{
			{"puuid": "p1", "gameName": "TenZ", "teamId": "Red", "stats": map[string]any{"score": 5200, "kills": 22, "deaths": 14, "assists": 6}},
			{"puuid": "p2", "gameName": "aspas", "teamId": "Blue", "stats": map[string]any{"score": 6100, "kills": 27, "deaths": 12, "assists": 3}},
		},
	}
}

func TestRiotAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Riot-Token"))
		switch r.URL.Path {
		case "/val/match/v1/recent-matches/by-queue/competitive":
			writeJSON(t, w, map[string]any{"currentTime": 1, "matchIds": []string{"m1", "m2"}})
		case "/val/match/v1/matches/m1":
			writeJSON(t, w, riotMatch("m1", true, 13, 9))
		case "/val/match/v1/matches/m2":
			writeJSON(t, w, riotMatch("m2", false, 4, 6))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	desc := descriptor("riot", srv.URL, domain.GameValorant)
	desc.RequiresKey = true
	desc.APIKey = "secret"
	a := NewRiotAdapter(desc)

	matches, err := a.Matches(context.Background(), domain.Query{Game: domain.GameValorant})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "m1", matches[0].ID)
	assert.Equal(t, "Team Red", matches[0].TeamA)
	assert.Equal(t, domain.OutcomeWin, matches[0].Outcome)
	assert.Equal(t, "Competitive", matches[0].Event)
	assert.Equal(t, domain.StatusLive, matches[1].Status)

	stats, err := a.PlayerStats(context.Background(), domain.Query{Game: domain.GameValorant})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "TenZ", stats[0].Player)
	assert.Equal(t, "Team Red", stats[0].Team)
	assert.InDelta(t, 5200.0/22.0, stats[0].Rating, 1e-9)
	assert.Equal(t, time.UnixMilli(1717243200000+1800000).UTC(), stats[0].AsOf)
}

func TestOpenDotaAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/proMatches":
			writeJSON(t, w, []map[string]any{
				{"match_id": 101, "start_time": 1717243200, "duration": 2400, "radiant_name": "Team Liquid", "dire_name": "OG", "radiant_score": 20, "dire_score": 35, "radiant_win": true, "league_name": "DreamLeague"},
				{"match_id": 102, "start_time": 1717240000, "radiant_name": "", "dire_name": "OG"},
			})
		case "/matches/101":
			writeJSON(t, w, map[string]any{
				"match_id": 101, "start_time": 1717243200, "duration": 2400,
				"radiant_name": "Team Liquid", "dire_name": "OG",
				"players": []map[string]any{
					{"account_id": 1, "name": "miCKe", "isRadiant": true, "kills": 9, "deaths": 3, "assists": 12},
					{"account_id": 2, "personaname": "Topson", "isRadiant": false, "kills": 7, "deaths": 6, "assists": 8},
					{"account_id": 3, "isRadiant": false, "kills": 1, "deaths": 1, "assists": 1},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := NewOpenDotaAdapter(descriptor("opendota", srv.URL, domain.GameDota2))

	matches, err := a.Matches(context.Background(), domain.Query{Game: domain.GameDota2})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, domain.OutcomeWin, matches[0].Outcome, "radiant won despite fewer kills")
	assert.Equal(t, "DreamLeague", matches[0].Event)

	// seen from OG the same match is a loss
	og, err := a.Matches(context.Background(), domain.Query{Game: domain.GameDota2, Team: "OG"})
	require.NoError(t, err)
	require.Len(t, og, 1)
	assert.Equal(t, "OG", og[0].TeamA)
	assert.Equal(t, domain.OutcomeLoss, og[0].Outcome)

	stats, err := a.PlayerStats(context.Background(), domain.Query{Game: domain.GameDota2})
	require.NoError(t, err)
	require.Len(t, stats, 2, "anonymous players are dropped")
	assert.Equal(t, "Team Liquid", stats[0].Team)
	assert.Equal(t, "Topson", stats[1].Player)
	assert.Equal(t, "OG", stats[1].Team)
}

func TestFaceitAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/championships":
			assert.Equal(t, "cs2", r.URL.Query().Get("game"))
			writeJSON(t, w, map[string]any{"items": []map[string]any{{"championship_id": "c1", "name": "Cup"}}})
		case "/championships/c1/matches":
			writeJSON(t, w, map[string]any{"items": []map[string]any{
				{"match_id": "f1", "competition_name": "Cup", "status": "FINISHED", "started_at": 1717243200,
					"teams":   map[string]any{"faction1": map[string]any{"name": "Alpha"}, "faction2": map[string]any{"name": "Bravo"}},
					"results": map[string]any{"score": map[string]any{"faction1": 2, "faction2": 1}}},
				{"match_id": "f2", "competition_name": "Cup", "status": "SCHEDULED", "scheduled_at": 1717250000,
					"teams": map[string]any{"faction1": map[string]any{"name": "Charlie"}, "faction2": map[string]any{"name": "Delta"}}},
			}})
		case "/players":
			if r.URL.Query().Get("nickname") != "s1mple" {
				w.WriteHeader(http.StatusNotFound)
				writeJSON(t, w, map[string]any{"errors": []map[string]string{{"message": "player not found"}}})
				return
			}
			writeJSON(t, w, map[string]any{"player_id": "pid", "nickname": "s1mple"})
		case "/players/pid/stats/cs2":
			writeJSON(t, w, map[string]any{
				"lifetime": map[string]string{"Average K/D Ratio": "1.35"},
				"segments": []map[string]any{
					{"label": "Mirage", "stats": map[string]string{"Kills": "100", "Deaths": "80", "Assists": "20"}},
					{"label": "Inferno", "stats": map[string]string{"Kills": "50", "Deaths": "40", "Assists": "10"}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	desc := descriptor("faceit", srv.URL, domain.GameCSGO, domain.GameValorant)
	desc.RequiresKey = true
	desc.APIKey = "token"
	a := NewFaceitAdapter(desc)

	assert.True(t, a.Supports(domain.GameCSGO, domain.KindMatches))
	assert.False(t, a.Supports(domain.GameDota2, domain.KindMatches))

	matches, err := a.Matches(context.Background(), domain.Query{Game: domain.GameCSGO})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, domain.OutcomeWin, matches[0].Outcome)
	assert.Equal(t, domain.StatusScheduled, matches[1].Status)
	assert.Equal(t, time.Unix(1717250000, 0).UTC(), matches[1].StartedAt)

	none, err := a.PlayerStats(context.Background(), domain.Query{Game: domain.GameCSGO})
	require.NoError(t, err)
	assert.Empty(t, none, "player stats need a player name")

	before := time.Now()
	stats, err := a.PlayerStats(context.Background(), domain.Query{Game: domain.GameCSGO, Player: "s1mple"})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.WithinRange(t, stats[0].AsOf, before.Add(-time.Second), time.Now().Add(time.Second))
	assert.Equal(t, 150, stats[0].Kills)
	assert.Equal(t, 120, stats[0].Deaths)
	assert.Equal(t, 30, stats[0].Assists)
	assert.InDelta(t, 1.35, stats[0].Rating, 1e-9)

	unknown, err := a.PlayerStats(context.Background(), domain.Query{Game: domain.GameCSGO, Player: "s1mpel"})
	require.NoError(t, err, "an unknown nickname is not a provider failure")
	assert.Empty(t, unknown)
}

func TestRegistryOrdersByPriority(t *testing.T) {
	r := NewRegistryFrom(nil, nil)
	assert.Empty(t, r.All())

	low := descriptor("faceit", "http://x", domain.GameCSGO)
	low.Priority = 20
	high := descriptor("hltv", "http://y", domain.GameCSGO)

	cfgRegistry := newRegistry([]domain.ProviderDescriptor{low, high, descriptor("unknown", "http://z", domain.GameCSGO)}, zerolog.Nop())
	adapters := cfgRegistry.For(domain.GameCSGO, domain.KindMatches)
	require.Len(t, adapters, 2)
	assert.Equal(t, "hltv", adapters[0].ID())
	assert.Equal(t, "faceit", adapters[1].ID())
	assert.Empty(t, cfgRegistry.For(domain.GameDota2, domain.KindMatches))

	d, ok := cfgRegistry.Descriptor("faceit")
	require.True(t, ok)
	assert.Equal(t, 20, d.Priority)
}
