package service

import (
	"time"

	"esports-aggregator/internal/api"
	"esports-aggregator/internal/domain"
)

type ProviderState string

const (
	StateUsable       ProviderState = "usable"
	StateRateLimited  ProviderState = "rate_limited"
	StateDisabled     ProviderState = "disabled"
	StateUnconfigured ProviderState = "unconfigured"
)

// SyncState is the read-only view of the sync scheduler.
type SyncState interface {
	Running() bool
	LastRun() (domain.SyncRun, bool)
	NextRun() time.Time
}

type ProviderStatus struct {
	domain.ProviderHealth
	Games           []domain.GameKind `json:"games"`
	State           ProviderState     `json:"state"`
	TokensAvailable float64           `json:"tokens_available"`
	RetryAt         time.Time         `json:"retry_at,omitempty"`
	Upstream        api.RateLimitInfo `json:"upstream_rate_limit"`
}

type SchedulerStatus struct {
	Running bool            `json:"running"`
	LastRun *domain.SyncRun `json:"last_run,omitempty"`
	NextRun time.Time       `json:"next_run,omitempty"`
}

type CacheStatus struct {
	MatchesCached     int `json:"matches_cached"`
	PlayerStatsCached int `json:"player_stats_cached"`
}

type StatusReport struct {
	ServiceStatus string           `json:"service_status"`
	Providers     []ProviderStatus `json:"providers"`
	Scheduler     SchedulerStatus  `json:"scheduler"`
	Cache         CacheStatus      `json:"cache"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

type StatusReporter struct {
	rt   *Runtime
	sync SyncState
}

func NewStatusReporter(rt *Runtime, sync SyncState) *StatusReporter {
	return &StatusReporter{rt: rt, sync: sync}
}

func (r *StatusReporter) Report() StatusReport {
	now := r.rt.Now()
	report := StatusReport{
		ServiceStatus: "operational",
		GeneratedAt:   now,
		Cache: CacheStatus{
			MatchesCached:     r.rt.Matches.Len(),
			PlayerStatsCached: r.rt.PlayerStats.Len(),
		},
	}

	usableGames := make(map[domain.GameKind]bool)
	for _, ad := range r.rt.Registry.All() {
		desc, _ := r.rt.Registry.Descriptor(ad.ID())
		st := ProviderStatus{
			ProviderHealth:  r.rt.Health.Get(ad.ID()),
			Games:           desc.Games,
			TokensAvailable: r.rt.Limiter.Tokens(ad.ID()),
			Upstream:        ad.RateLimitInfo(),
		}
		st.State = providerState(st.ProviderHealth, desc, st.TokensAvailable, now)
		if st.State == StateRateLimited {
			st.RetryAt = r.rt.Limiter.RetryAt(ad.ID())
			if st.RateLimitedUntil.After(st.RetryAt) {
				st.RetryAt = st.RateLimitedUntil
			}
		}
		if st.State == StateUsable || st.State == StateRateLimited {
			for _, g := range desc.Games {
				usableGames[g] = true
			}
		}
		report.Providers = append(report.Providers, st)
	}

	for _, g := range domain.SupportedGames {
		if !usableGames[g] {
			report.ServiceStatus = "degraded"
			break
		}
	}

	if r.sync != nil {
		report.Scheduler.Running = r.sync.Running()
		report.Scheduler.NextRun = r.sync.NextRun()
		if run, ok := r.sync.LastRun(); ok {
			report.Scheduler.LastRun = &run
		}
	}
	return report
}

func providerState(h domain.ProviderHealth, desc domain.ProviderDescriptor, tokens float64, now time.Time) ProviderState {
	switch {
	case !desc.Enabled:
		return StateDisabled
	case !desc.Configured() || (h.Disabled && h.LastFailureKind == domain.FailureUnconfigured):
		return StateUnconfigured
	case h.Disabled:
		return StateDisabled
	case h.RateLimitedUntil.After(now) || tokens < 1:
		return StateRateLimited
	default:
		return StateUsable
	}
}
