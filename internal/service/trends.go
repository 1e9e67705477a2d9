package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"esports-aggregator/internal/domain"
)

var ErrInvalidTimeframe = errors.New("invalid timeframe")

var timeframes = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

const (
	DefaultTimeframe = "24h"
	trendsTopN       = 10
)

func ParseTimeframe(s string) (string, time.Duration, error) {
	if s == "" {
		s = DefaultTimeframe
	}
	d, ok := timeframes[strings.ToLower(s)]
	if !ok {
		return "", 0, fmt.Errorf("%w: %q (want 1h, 6h, 24h or 7d)", ErrInvalidTimeframe, s)
	}
	return strings.ToLower(s), d, nil
}

type TeamTrend struct {
	Name    string          `json:"name"`
	Game    domain.GameKind `json:"game"`
	Matches int             `json:"matches"`
	Wins    int             `json:"wins"`
	Losses  int             `json:"losses"`
	Draws   int             `json:"draws"`
}

type PlayerTrend struct {
	Name       string          `json:"name"`
	Game       domain.GameKind `json:"game"`
	Source     string          `json:"source"`
	Rating     float64         `json:"rating"`
	Efficiency float64         `json:"efficiency"`
}

type MatchFrequency struct {
	Total  int                     `json:"total"`
	ByGame map[domain.GameKind]int `json:"by_game"`
}

type TrendsReport struct {
	Timeframe      string          `json:"timeframe"`
	GameFilter     domain.GameKind `json:"game_filter,omitempty"`
	TopTeams       []TeamTrend     `json:"top_teams"`
	TopPlayers     []PlayerTrend   `json:"top_players"`
	MatchFrequency MatchFrequency  `json:"match_frequency"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// TrendAnalyzer summarizes what the caches currently hold. It never calls a
// provider, so the report is only as wide as recent queries and syncs made it.
type TrendAnalyzer struct {
	rt *Runtime
}

func NewTrendAnalyzer(rt *Runtime) *TrendAnalyzer {
	return &TrendAnalyzer{rt: rt}
}

// Report builds trends for game (every game when empty) over the named timeframe.
func (a *TrendAnalyzer) Report(game domain.GameKind, timeframe string) (TrendsReport, error) {
	name, window, err := ParseTimeframe(timeframe)
	if err != nil {
		return TrendsReport{}, err
	}
	now := a.rt.Now()
	cutoff := now.Add(-window)

	report := TrendsReport{
		Timeframe:      name,
		GameFilter:     game,
		TopTeams:       []TeamTrend{},
		TopPlayers:     []PlayerTrend{},
		MatchFrequency: MatchFrequency{ByGame: make(map[domain.GameKind]int)},
		GeneratedAt:    now,
	}
	for _, g := range domain.SupportedGames {
		if game == "" || g == game {
			report.MatchFrequency.ByGame[g] = 0
		}
	}

	// the same match is often cached under several filter keys
	seen := make(map[string]bool)
	teams := make(map[string]*TeamTrend)
	for _, entry := range a.rt.Matches.Snapshot() {
		if game != "" && entry.Key.Game != game {
			continue
		}
		for _, m := range entry.Payload {
			id := m.Source + "/" + m.ID
			if seen[id] || m.StartedAt.Before(cutoff) {
				continue
			}
			seen[id] = true
			report.MatchFrequency.Total++
			report.MatchFrequency.ByGame[m.Game]++
			tallyMatch(teams, m)
		}
	}
	for _, t := range teams {
		report.TopTeams = append(report.TopTeams, *t)
	}
	sort.Slice(report.TopTeams, func(i, j int) bool {
		x, y := report.TopTeams[i], report.TopTeams[j]
		if x.Wins != y.Wins {
			return x.Wins > y.Wins
		}
		if x.Matches != y.Matches {
			return x.Matches > y.Matches
		}
		return x.Name < y.Name
	})
	report.TopTeams = report.TopTeams[:min(len(report.TopTeams), trendsTopN)]

	latest := make(map[string]domain.NormalizedPlayerStat)
	for _, entry := range a.rt.PlayerStats.Snapshot() {
		if game != "" && entry.Key.Game != game {
			continue
		}
		if entry.FetchedAt.Before(cutoff) {
			continue
		}
		for _, s := range entry.Payload {
			id := s.Source + "/" + string(s.Game) + "/" + strings.ToLower(s.Player)
			if prev, ok := latest[id]; ok && !s.AsOf.After(prev.AsOf) {
				continue
			}
			latest[id] = s
		}
	}
	for _, s := range latest {
		report.TopPlayers = append(report.TopPlayers, PlayerTrend{
			Name:       s.Player,
			Game:       s.Game,
			Source:     s.Source,
			Rating:     s.Rating,
			Efficiency: s.Efficiency,
		})
	}
	sort.Slice(report.TopPlayers, func(i, j int) bool {
		x, y := report.TopPlayers[i], report.TopPlayers[j]
		if x.Efficiency != y.Efficiency {
			return x.Efficiency > y.Efficiency
		}
		return x.Name < y.Name
	})
	report.TopPlayers = report.TopPlayers[:min(len(report.TopPlayers), trendsTopN)]

	return report, nil
}

// tallyMatch counts the match for both teams. Only completed matches move
// win, loss and draw totals.
func tallyMatch(teams map[string]*TeamTrend, m domain.NormalizedMatch) {
	side := func(name string) *TeamTrend {
		k := string(m.Game) + "/" + strings.ToLower(name)
		t, ok := teams[k]
		if !ok {
			t = &TeamTrend{Name: name, Game: m.Game}
			teams[k] = t
		}
		t.Matches++
		return t
	}
	a, b := side(m.TeamA), side(m.TeamB)

	switch m.Outcome {
	case domain.OutcomeWin:
		a.Wins++
		b.Losses++
	case domain.OutcomeLoss:
		a.Losses++
		b.Wins++
	case domain.OutcomeDraw:
		a.Draws++
		b.Draws++
	}
}
