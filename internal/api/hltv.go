package api

import (
	"context"
	"strconv"

	"esports-aggregator/internal/domain"
)

// HLTVAdapter reads Counter-Strike matches and player ratings from the
// community HLTV API. It needs no credentials.
type HLTVAdapter struct {
	*Client
}

func NewHLTVAdapter(desc domain.ProviderDescriptor) *HLTVAdapter {
	return &HLTVAdapter{Client: newClient(desc, nil)}
}

func (a *HLTVAdapter) Supports(game domain.GameKind, kind domain.RecordKind) bool {
	return game == domain.GameCSGO && a.supportsGame(game)
}

func (a *HLTVAdapter) Matches(ctx context.Context, q domain.Query) ([]domain.NormalizedMatch, error) {
	resp, err := getJSON[HLTVMatchesResponse](ctx, a.Client, "/matches", nil)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.NormalizedMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.Team1.Name == "" || m.Team2.Name == "" {
			continue
		}
		status := domain.StatusScheduled
		switch {
		case m.Live:
			status = domain.StatusLive
		case m.Result != nil:
			status = domain.StatusCompleted
		}
		var s1, s2 int
		if m.Result != nil {
			s1, s2 = m.Result.Team1, m.Result.Team2
		}
		matches = append(matches, domain.NewMatch(
			a.ID(), domain.GameCSGO, strconv.FormatInt(m.ID, 10),
			m.Team1.Name, m.Team2.Name, s1, s2,
			unixMillis(m.Date), m.Event.Name, status,
		))
	}
	return filterMatches(matches, q), nil
}

func (a *HLTVAdapter) PlayerStats(ctx context.Context, q domain.Query) ([]domain.NormalizedPlayerStat, error) {
	resp, err := getJSON[HLTVPlayersResponse](ctx, a.Client, "/players/top", nil)
	if err != nil {
		return nil, err
	}

	stats := make([]domain.NormalizedPlayerStat, 0, len(resp.Players))
	for _, p := range resp.Players {
		if p.Name == "" {
			continue
		}
		stats = append(stats, domain.NewPlayerStat(
			a.ID(), domain.GameCSGO, strconv.FormatInt(p.ID, 10),
			p.Name, p.Team.Name, p.Stats.Kills, p.Stats.Deaths, p.Stats.Assists,
			p.Rating2, unixMillis(p.UpdatedAt),
		))
	}
	return filterPlayerStats(stats, q), nil
}

type HLTVMatchesResponse struct {
	Matches []HLTVMatch `json:"matches"`
}

type HLTVMatch struct {
	ID    int64 `json:"id"`
	Date  int64 `json:"date"`
	Live  bool  `json:"live"`
	Team1 struct {
		Name string `json:"name"`
	} `json:"team1"`
	Team2 struct {
		Name string `json:"name"`
	} `json:"team2"`
	Result *struct {
		Team1 int `json:"team1"`
		Team2 int `json:"team2"`
	} `json:"result"`
	Event struct {
		Name string `json:"name"`
	} `json:"event"`
}

type HLTVPlayersResponse struct {
	Players []HLTVPlayer `json:"players"`
}

type HLTVPlayer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Team struct {
		Name string `json:"name"`
	} `json:"team"`
	Rating2 float64 `json:"rating2"`
	Stats   struct {
		Kills   int `json:"kills"`
		Deaths  int `json:"deaths"`
		Assists int `json:"assists"`
	} `json:"stats"`
	UpdatedAt int64 `json:"updatedAt"`
}
