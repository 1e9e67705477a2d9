package api

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"esports-aggregator/internal/domain"

	"github.com/valyala/fasthttp"
)

var faceitGameIDs = map[domain.GameKind]string{
	domain.GameCSGO:     "cs2",
	domain.GameValorant: "valorant",
}

// FaceitAdapter covers several games through the FACEIT Data API.
// Matches come from the first ongoing championship; player stats are only
// available for a named player.
type FaceitAdapter struct {
	*Client
}

func NewFaceitAdapter(desc domain.ProviderDescriptor) *FaceitAdapter {
	return &FaceitAdapter{Client: newClient(desc, func(req *fasthttp.Request, key string) {
		req.Header.Set("Authorization", "Bearer "+key)
	})}
}

func (a *FaceitAdapter) Supports(game domain.GameKind, kind domain.RecordKind) bool {
	_, ok := faceitGameIDs[game]
	return ok && a.supportsGame(game)
}

func (a *FaceitAdapter) Matches(ctx context.Context, q domain.Query) ([]domain.NormalizedMatch, error) {
	gameID := faceitGameIDs[q.Game]
	champs, err := getJSON[FaceitChampionships](ctx, a.Client, "/championships",
		url.Values{"game": {gameID}, "type": {"ongoing"}, "limit": {"1"}})
	if err != nil {
		return nil, err
	}
	if len(champs.Items) == 0 {
		return []domain.NormalizedMatch{}, nil
	}

	limit := 20
	if q.Limit > 0 && q.Team == "" {
		limit = q.Limit
	}
	resp, err := getJSON[FaceitMatches](ctx, a.Client, "/championships/"+champs.Items[0].ChampionshipID+"/matches",
		url.Values{"type": {"all"}, "limit": {strconv.Itoa(limit)}})
	if err != nil {
		return nil, err
	}

	matches := make([]domain.NormalizedMatch, 0, len(resp.Items))
	for _, m := range resp.Items {
		if m.Teams.Faction1.Name == "" || m.Teams.Faction2.Name == "" {
			continue
		}
		started := m.StartedAt
		if started == 0 {
			started = m.ScheduledAt
		}
		matches = append(matches, domain.NewMatch(
			a.ID(), q.Game, m.MatchID,
			m.Teams.Faction1.Name, m.Teams.Faction2.Name,
			m.Results.Score.Faction1, m.Results.Score.Faction2,
			unixSeconds(started), m.CompetitionName, faceitStatus(m.Status),
		))
	}
	return filterMatches(matches, q), nil
}

func (a *FaceitAdapter) PlayerStats(ctx context.Context, q domain.Query) ([]domain.NormalizedPlayerStat, error) {
	if q.Player == "" {
		return []domain.NormalizedPlayerStat{}, nil
	}
	gameID := faceitGameIDs[q.Game]

	player, err := getJSON[FaceitPlayer](ctx, a.Client, "/players",
		url.Values{"nickname": {q.Player}, "game": {gameID}})
	if err != nil {
		// unknown nickname
		var dataErr *domain.ProviderDataError
		if errors.As(err, &dataErr) && dataErr.Status == fasthttp.StatusNotFound {
			return []domain.NormalizedPlayerStat{}, nil
		}
		return nil, err
	}
	fetchedAt := time.Now().UTC()
	stats, err := getJSON[FaceitPlayerStats](ctx, a.Client, "/players/"+player.PlayerID+"/stats/"+gameID, nil)
	if err != nil {
		return nil, err
	}

	var kills, deaths, assists int
	for _, seg := range stats.Segments {
		kills += atoi(seg.Stats["Kills"])
		deaths += atoi(seg.Stats["Deaths"])
		assists += atoi(seg.Stats["Assists"])
	}
	rating, _ := strconv.ParseFloat(stats.Lifetime["Average K/D Ratio"], 64)

	record := domain.NewPlayerStat(
		a.ID(), q.Game, player.PlayerID, player.Nickname, "",
		kills, deaths, assists, rating, fetchedAt,
	)
	return filterPlayerStats([]domain.NormalizedPlayerStat{record}, domain.Query{Player: q.Player, Limit: q.Limit}), nil
}

func faceitStatus(s string) domain.MatchStatus {
	switch strings.ToUpper(s) {
	case "FINISHED":
		return domain.StatusCompleted
	case "ONGOING":
		return domain.StatusLive
	default:
		return domain.StatusScheduled
	}
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

type FaceitChampionships struct {
	Items []struct {
		ChampionshipID string `json:"championship_id"`
		Name           string `json:"name"`
	} `json:"items"`
}

type FaceitMatches struct {
	Items []struct {
		MatchID         string `json:"match_id"`
		CompetitionName string `json:"competition_name"`
		Status          string `json:"status"`
		StartedAt       int64  `json:"started_at"`
		ScheduledAt     int64  `json:"scheduled_at"`
		Teams           struct {
			Faction1 struct {
				Name string `json:"name"`
			} `json:"faction1"`
			Faction2 struct {
				Name string `json:"name"`
			} `json:"faction2"`
		} `json:"teams"`
		Results struct {
			Score struct {
				Faction1 int `json:"faction1"`
				Faction2 int `json:"faction2"`
			} `json:"score"`
		} `json:"results"`
	} `json:"items"`
}

type FaceitPlayer struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
}

type FaceitPlayerStats struct {
	Lifetime map[string]string `json:"lifetime"`
	Segments []struct {
		Label string            `json:"label"`
		Stats map[string]string `json:"stats"`
	} `json:"segments"`
}
