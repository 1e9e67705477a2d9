package domain

import (
	"fmt"
	"strings"
	"time"
)

type GameKind string

const (
	GameCSGO     GameKind = "csgo"
	GameValorant GameKind = "valorant"
	GameDota2    GameKind = "dota2"
)

var SupportedGames = []GameKind{GameCSGO, GameValorant, GameDota2}

var gameDisplayNames = map[GameKind]string{
	GameCSGO:     "Counter-Strike: Global Offensive",
	GameValorant: "Valorant",
	GameDota2:    "Dota 2",
}

func ParseGame(s string) (GameKind, error) {
	g := GameKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := gameDisplayNames[g]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedGame, s)
	}
	return g, nil
}

func (g GameKind) DisplayName() string {
	return gameDisplayNames[g]
}

type RecordKind string

const (
	KindMatches     RecordKind = "matches"
	KindPlayerStats RecordKind = "player_stats"
)

// DataSource tells consumers how trustworthy a response is.
type DataSource string

const (
	SourceLive     DataSource = "live"
	SourceCached   DataSource = "cached"
	SourceFallback DataSource = "fallback"
)

// Degradation orders sources from best (0) to worst.
func (d DataSource) Degradation() int {
	switch d {
	case SourceLive:
		return 0
	case SourceCached:
		return 1
	default:
		return 2
	}
}

type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomeDraw    Outcome = "draw"
	OutcomeUnknown Outcome = "unknown"
)

type MatchStatus string

const (
	StatusScheduled MatchStatus = "scheduled"
	StatusLive      MatchStatus = "live"
	StatusCompleted MatchStatus = "completed"
)

type ProviderDescriptor struct {
	ID                string
	Games             []GameKind
	BaseURL           string
	APIKey            string
	RequiresKey       bool
	Enabled           bool
	RequestsPerMinute int
	Priority          int
	Timeout           time.Duration
}

func (p ProviderDescriptor) SupportsGame(game GameKind) bool {
	for _, g := range p.Games {
		if g == game {
			return true
		}
	}
	return false
}

// Configured reports whether the descriptor carries the credentials it needs.
func (p ProviderDescriptor) Configured() bool {
	return !p.RequiresKey || p.APIKey != ""
}

type Query struct {
	Game         GameKind
	Kind         RecordKind
	Team         string
	Player       string
	Limit        int
	ForceRefresh bool
}

// NormalizedMatch is seen from TeamA's side: Outcome is TeamA's result.
type NormalizedMatch struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	Game      GameKind    `json:"game"`
	TeamA     string      `json:"team_a"`
	TeamB     string      `json:"team_b"`
	ScoreA    int         `json:"score_a"`
	ScoreB    int         `json:"score_b"`
	Outcome   Outcome     `json:"outcome"`
	StartedAt time.Time   `json:"started_at"`
	Event     string      `json:"event"`
	Status    MatchStatus `json:"status"`
}

type NormalizedPlayerStat struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Game       GameKind  `json:"game"`
	Player     string    `json:"player"`
	Team       string    `json:"team"`
	Kills      int       `json:"kills"`
	Deaths     int       `json:"deaths"`
	Assists    int       `json:"assists"`
	Rating     float64   `json:"rating"`
	Efficiency float64   `json:"efficiency"`
	AsOf       time.Time `json:"as_of"`
}

func NewMatch(source string, game GameKind, id, teamA, teamB string, scoreA, scoreB int, startedAt time.Time, event string, status MatchStatus) NormalizedMatch {
	if scoreA < 0 {
		scoreA = 0
	}
	if scoreB < 0 {
		scoreB = 0
	}
	return NormalizedMatch{
		ID:        id,
		Source:    source,
		Game:      game,
		TeamA:     teamA,
		TeamB:     teamB,
		ScoreA:    scoreA,
		ScoreB:    scoreB,
		Outcome:   DeriveOutcome(scoreA, scoreB, status),
		StartedAt: startedAt,
		Event:     event,
		Status:    status,
	}
}

func NewPlayerStat(source string, game GameKind, id, player, team string, kills, deaths, assists int, rating float64, asOf time.Time) NormalizedPlayerStat {
	kills, deaths, assists = max(kills, 0), max(deaths, 0), max(assists, 0)
	return NormalizedPlayerStat{
		ID:         id,
		Source:     source,
		Game:       game,
		Player:     player,
		Team:       team,
		Kills:      kills,
		Deaths:     deaths,
		Assists:    assists,
		Rating:     rating,
		Efficiency: Efficiency(kills, deaths, assists),
		AsOf:       asOf,
	}
}

func DeriveOutcome(scoreA, scoreB int, status MatchStatus) Outcome {
	if status != StatusCompleted {
		return OutcomeUnknown
	}
	switch {
	case scoreA > scoreB:
		return OutcomeWin
	case scoreA < scoreB:
		return OutcomeLoss
	default:
		return OutcomeDraw
	}
}

// Efficiency is (kills+assists)/deaths with deaths floored at one.
func Efficiency(kills, deaths, assists int) float64 {
	return float64(kills+assists) / float64(max(deaths, 1))
}

type FailureKind string

const (
	FailureTransient    FailureKind = "transient"
	FailureData         FailureKind = "data"
	FailureUnconfigured FailureKind = "unconfigured"
)

type ProviderHealth struct {
	ProviderID          string      `json:"provider_id"`
	LastSuccess         time.Time   `json:"last_success,omitempty"`
	LastFailure         time.Time   `json:"last_failure,omitempty"`
	LastFailureReason   string      `json:"last_failure_reason,omitempty"`
	LastFailureKind     FailureKind `json:"last_failure_kind,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	RateLimitedUntil    time.Time   `json:"rate_limited_until,omitempty"`
	Disabled            bool        `json:"disabled"`
	DisabledReason      string      `json:"disabled_reason,omitempty"`
}

type PairStatus string

const (
	PairRefreshed PairStatus = "refreshed"
	// PairEmpty is a successful call that returned no records. It does not
	// cover the pair for lower priority providers.
	PairEmpty     PairStatus = "empty"
	PairDeferred  PairStatus = "deferred"
	PairFailed    PairStatus = "failed"
	PairDisabled  PairStatus = "disabled"
	PairCovered   PairStatus = "covered"
)

type PairOutcome struct {
	ProviderID string     `json:"provider_id"`
	Game       GameKind   `json:"game"`
	Kind       RecordKind `json:"kind"`
	Status     PairStatus `json:"status"`
	Records    int        `json:"records"`
	Error      string     `json:"error,omitempty"`
}

type SyncRun struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Forced     bool          `json:"forced"`
	Outcomes   []PairOutcome `json:"outcomes"`
}

func (r SyncRun) Count(status PairStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
