package health

import (
	"sort"
	"sync"
	"time"

	"esports-aggregator/internal/domain"
)

// Tracker is the single owner of ProviderHealth records.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]*domain.ProviderHealth
	now    func() time.Time
}

func NewTracker(providers []domain.ProviderDescriptor, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{states: make(map[string]*domain.ProviderHealth, len(providers)), now: now}
	for _, p := range providers {
		h := &domain.ProviderHealth{ProviderID: p.ID}
		if !p.Enabled {
			h.Disabled = true
			h.DisabledReason = "disabled by configuration"
		}
		t.states[p.ID] = h
	}
	return t
}

func (t *Tracker) state(id string) *domain.ProviderHealth {
	h, ok := t.states[id]
	if !ok {
		h = &domain.ProviderHealth{ProviderID: id}
		t.states[id] = h
	}
	return h
}

func (t *Tracker) RecordSuccess(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.state(id)
	h.LastSuccess = t.now()
	h.ConsecutiveFailures = 0
	h.RateLimitedUntil = time.Time{}
}

func (t *Tracker) RecordFailure(id string, kind domain.FailureKind, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.state(id)
	h.LastFailure = t.now()
	h.LastFailureKind = kind
	h.LastFailureReason = reason
	h.ConsecutiveFailures++
}

// Disable excludes a provider for the rest of the process lifetime.
func (t *Tracker) Disable(id, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.state(id)
	h.Disabled = true
	h.DisabledReason = reason
}

func (t *Tracker) MarkRateLimited(id string, until time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.state(id)
	if until.After(h.RateLimitedUntil) {
		h.RateLimitedUntil = until
	}
}

func (t *Tracker) IsDisabled(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.states[id]
	return ok && h.Disabled
}

func (t *Tracker) Get(id string) domain.ProviderHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h, ok := t.states[id]; ok {
		return *h
	}
	return domain.ProviderHealth{ProviderID: id}
}

// Snapshot returns copies ordered by provider id.
func (t *Tracker) Snapshot() []domain.ProviderHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.ProviderHealth, 0, len(t.states))
	for _, h := range t.states {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}
