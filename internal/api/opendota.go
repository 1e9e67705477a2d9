package api

import (
	"context"
	"fmt"
	"strconv"

	"esports-aggregator/internal/domain"
)

// OpenDotaAdapter serves Dota 2 professional matches. Player stats come
// from the scoreboard of the most recent pro match.
type OpenDotaAdapter struct {
	*Client
}

func NewOpenDotaAdapter(desc domain.ProviderDescriptor) *OpenDotaAdapter {
	return &OpenDotaAdapter{Client: newClient(desc, nil)}
}

func (a *OpenDotaAdapter) Supports(game domain.GameKind, kind domain.RecordKind) bool {
	return game == domain.GameDota2 && a.supportsGame(game)
}

func (a *OpenDotaAdapter) Matches(ctx context.Context, q domain.Query) ([]domain.NormalizedMatch, error) {
	resp, err := getJSON[[]OpenDotaProMatch](ctx, a.Client, "/proMatches", nil)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.NormalizedMatch, 0, len(*resp))
	for _, m := range *resp {
		if m.RadiantName == "" || m.DireName == "" {
			continue
		}
		match := domain.NewMatch(
			a.ID(), domain.GameDota2, strconv.FormatInt(m.MatchID, 10),
			m.RadiantName, m.DireName, m.RadiantScore, m.DireScore,
			unixSeconds(m.StartTime), m.LeagueName, domain.StatusCompleted,
		)
		// scores are kills; the winner is whoever destroyed the ancient
		match.Outcome = domain.OutcomeLoss
		if m.RadiantWin {
			match.Outcome = domain.OutcomeWin
		}
		matches = append(matches, match)
	}
	return filterMatches(matches, q), nil
}

func (a *OpenDotaAdapter) PlayerStats(ctx context.Context, q domain.Query) ([]domain.NormalizedPlayerStat, error) {
	pro, err := getJSON[[]OpenDotaProMatch](ctx, a.Client, "/proMatches", nil)
	if err != nil {
		return nil, err
	}
	if len(*pro) == 0 {
		return []domain.NormalizedPlayerStat{}, nil
	}
	latest := (*pro)[0]

	detail, err := getJSON[OpenDotaMatchDetail](ctx, a.Client, fmt.Sprintf("/matches/%d", latest.MatchID), nil)
	if err != nil {
		return nil, err
	}

	asOf := unixSeconds(detail.StartTime + int64(detail.Duration))
	stats := make([]domain.NormalizedPlayerStat, 0, len(detail.Players))
	for _, p := range detail.Players {
		name := p.Name
		if name == "" {
			name = p.Personaname
		}
		if name == "" {
			continue
		}
		team := detail.DireName
		if p.IsRadiant {
			team = detail.RadiantName
		}
		id := fmt.Sprintf("%d-%d", detail.MatchID, p.AccountID)
		stats = append(stats, domain.NewPlayerStat(
			a.ID(), domain.GameDota2, id, name, team,
			p.Kills, p.Deaths, p.Assists, 0, asOf,
		))
	}
	return filterPlayerStats(stats, q), nil
}

type OpenDotaProMatch struct {
	MatchID      int64  `json:"match_id"`
	StartTime    int64  `json:"start_time"`
	Duration     int    `json:"duration"`
	RadiantName  string `json:"radiant_name"`
	DireName     string `json:"dire_name"`
	RadiantScore int    `json:"radiant_score"`
	DireScore    int    `json:"dire_score"`
	RadiantWin   bool   `json:"radiant_win"`
	LeagueName   string `json:"league_name"`
}

type OpenDotaMatchDetail struct {
	MatchID     int64  `json:"match_id"`
	StartTime   int64  `json:"start_time"`
	Duration    int    `json:"duration"`
	RadiantName string `json:"radiant_name"`
	DireName    string `json:"dire_name"`
	Players     []struct {
		AccountID   int64  `json:"account_id"`
		Name        string `json:"name"`
		Personaname string `json:"personaname"`
		IsRadiant   bool   `json:"isRadiant"`
		Kills       int    `json:"kills"`
		Deaths      int    `json:"deaths"`
		Assists     int    `json:"assists"`
	} `json:"players"`
}
