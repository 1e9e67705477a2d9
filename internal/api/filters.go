package api

import (
	"strings"
	"time"

	"esports-aggregator/internal/domain"
)

func matchesTeam(m domain.NormalizedMatch, team string) bool {
	if team == "" {
		return true
	}
	return strings.EqualFold(m.TeamA, team) || strings.EqualFold(m.TeamB, team)
}

// filterMatches applies the team filter and limit. A match found by its
// second team is flipped so the requested team is always TeamA.
func filterMatches(in []domain.NormalizedMatch, q domain.Query) []domain.NormalizedMatch {
	out := make([]domain.NormalizedMatch, 0, len(in))
	for _, m := range in {
		if !matchesTeam(m, q.Team) {
			continue
		}
		if q.Team != "" && strings.EqualFold(m.TeamB, q.Team) {
			m = flipped(m)
		}
		out = append(out, m)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

func flipped(m domain.NormalizedMatch) domain.NormalizedMatch {
	out := m
	out.TeamA, out.TeamB = m.TeamB, m.TeamA
	out.ScoreA, out.ScoreB = m.ScoreB, m.ScoreA
	switch m.Outcome {
	case domain.OutcomeWin:
		out.Outcome = domain.OutcomeLoss
	case domain.OutcomeLoss:
		out.Outcome = domain.OutcomeWin
	}
	return out
}

func filterPlayerStats(in []domain.NormalizedPlayerStat, q domain.Query) []domain.NormalizedPlayerStat {
	out := make([]domain.NormalizedPlayerStat, 0, len(in))
	for _, s := range in {
		if q.Player != "" && !strings.EqualFold(s.Player, q.Player) {
			continue
		}
		if q.Team != "" && !strings.EqualFold(s.Team, q.Team) {
			continue
		}
		out = append(out, s)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

func unixSeconds(s int64) time.Time {
	if s <= 0 {
		return time.Time{}
	}
	return time.Unix(s, 0).UTC()
}

func unixMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
