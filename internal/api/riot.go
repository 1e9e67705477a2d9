package api

import (
	"context"
	"fmt"
	"strings"

	"esports-aggregator/internal/domain"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"
)

const (
	riotDetailLimit       = 5
	riotDetailConcurrency = 3
)

// RiotAdapter reads recent competitive Valorant matches from the Riot API.
type RiotAdapter struct {
	*Client
}

func NewRiotAdapter(desc domain.ProviderDescriptor) *RiotAdapter {
	return &RiotAdapter{Client: newClient(desc, func(req *fasthttp.Request, key string) {
		req.Header.Set("X-Riot-Token", key)
	})}
}

func (a *RiotAdapter) Supports(game domain.GameKind, kind domain.RecordKind) bool {
	return game == domain.GameValorant && a.supportsGame(game)
}

func (a *RiotAdapter) recentMatches(ctx context.Context, n int) ([]RiotMatch, error) {
	recent, err := getJSON[RiotRecentMatches](ctx, a.Client, "/val/match/v1/recent-matches/by-queue/competitive", nil)
	if err != nil {
		return nil, err
	}
	ids := recent.MatchIDs
	if len(ids) > n {
		ids = ids[:n]
	}

	details := make([]RiotMatch, len(ids))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(riotDetailConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			m, err := getJSON[RiotMatch](gCtx, a.Client, "/val/match/v1/matches/"+id, nil)
			if err != nil {
				return err
			}
			details[i] = *m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return details, nil
}

func (a *RiotAdapter) Matches(ctx context.Context, q domain.Query) ([]domain.NormalizedMatch, error) {
	n := riotDetailLimit
	if q.Limit > 0 && q.Limit < n && q.Team == "" {
		n = q.Limit
	}
	details, err := a.recentMatches(ctx, n)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.NormalizedMatch, 0, len(details))
	for _, m := range details {
		if len(m.Teams) < 2 {
			continue
		}
		status := domain.StatusLive
		if m.MatchInfo.IsCompleted {
			status = domain.StatusCompleted
		}
		t1, t2 := m.Teams[0], m.Teams[1]
		matches = append(matches, domain.NewMatch(
			a.ID(), domain.GameValorant, m.MatchInfo.MatchID,
			"Team "+t1.TeamID, "Team "+t2.TeamID, t1.RoundsWon, t2.RoundsWon,
			unixMillis(m.MatchInfo.GameStartMillis), riotEventLabel(m.MatchInfo.QueueID), status,
		))
	}
	return filterMatches(matches, q), nil
}

func (a *RiotAdapter) PlayerStats(ctx context.Context, q domain.Query) ([]domain.NormalizedPlayerStat, error) {
	details, err := a.recentMatches(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return []domain.NormalizedPlayerStat{}, nil
	}
	m := details[0]
	asOf := unixMillis(m.MatchInfo.GameStartMillis + m.MatchInfo.GameLengthMillis)

	rounds := 0
	for _, t := range m.Teams {
		rounds += t.RoundsWon
	}

	stats := make([]domain.NormalizedPlayerStat, 0, len(m.Players))
	for _, p := range m.Players {
		if p.GameName == "" {
			continue
		}
		var acs float64
		if rounds > 0 {
			acs = float64(p.Stats.Score) / float64(rounds)
		}
		stats = append(stats, domain.NewPlayerStat(
			a.ID(), domain.GameValorant, fmt.Sprintf("%s-%s", m.MatchInfo.MatchID, p.PUUID),
			p.GameName, "Team "+p.TeamID, p.Stats.Kills, p.Stats.Deaths, p.Stats.Assists, acs, asOf,
		))
	}
	return filterPlayerStats(stats, q), nil
}

func riotEventLabel(queueID string) string {
	if queueID == "" {
		return "Competitive"
	}
	return strings.ToUpper(queueID[:1]) + queueID[1:]
}

type RiotRecentMatches struct {
	CurrentTime int64    `json:"currentTime"`
	MatchIDs    []string `json:"matchIds"`
}

type RiotMatch struct {
	MatchInfo struct {
		MatchID          string `json:"matchId"`
		GameStartMillis  int64  `json:"gameStartMillis"`
		GameLengthMillis int64  `json:"gameLengthMillis"`
		IsCompleted      bool   `json:"isCompleted"`
		QueueID          string `json:"queueId"`
	} `json:"matchInfo"`
	Teams []struct {
		TeamID    string `json:"teamId"`
		Won       bool   `json:"won"`
		RoundsWon int    `json:"roundsWon"`
	} `json:"teams"`
	Players []struct {
		PUUID    string `json:"puuid"`
		GameName string `json:"gameName"`
		TagLine  string `json:"tagLine"`
		TeamID   string `json:"teamId"`
		Stats    struct {
			Score   int `json:"score"`
			Kills   int `json:"kills"`
			Deaths  int `json:"deaths"`
			Assists int `json:"assists"`
		} `json:"stats"`
	} `json:"players"`
}
