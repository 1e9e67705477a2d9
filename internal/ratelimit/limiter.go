package ratelimit

import (
	"sync"
	"time"

	"esports-aggregator/internal/domain"

	"golang.org/x/time/rate"
)

// Limiter holds one continuously refilling token bucket per provider.
// A provider configured for N requests per minute regains one token every
// minute/N and may burst up to N.
type Limiter struct {
	mu           sync.RWMutex
	buckets      map[string]*rate.Limiter
	blockedUntil map[string]time.Time
	now          func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(providers []domain.ProviderDescriptor, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:      make(map[string]*rate.Limiter, len(providers)),
		blockedUntil: make(map[string]time.Time),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, p := range providers {
		if p.RequestsPerMinute <= 0 {
			continue
		}
		every := time.Minute / time.Duration(p.RequestsPerMinute)
		lim := rate.NewLimiter(rate.Every(every), p.RequestsPerMinute)
		// rate.NewLimiter starts full but its clock is unset; anchor it to ours.
		lim.SetLimitAt(l.now(), rate.Every(every))
		l.buckets[p.ID] = lim
	}
	return l
}

// TryReserve takes one token if available. It never blocks.
func (l *Limiter) TryReserve(providerID string) bool {
	l.mu.RLock()
	lim, ok := l.buckets[providerID]
	until := l.blockedUntil[providerID]
	l.mu.RUnlock()
	if !ok {
		return false
	}
	now := l.now()
	if now.Before(until) {
		return false
	}
	return lim.AllowN(now, 1)
}

// Block denies reservations until the given time, as asked by an upstream 429.
func (l *Limiter) Block(providerID string, until time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until.After(l.blockedUntil[providerID]) {
		l.blockedUntil[providerID] = until
	}
}

// RetryAt reports the earliest time TryReserve could succeed.
func (l *Limiter) RetryAt(providerID string) time.Time {
	l.mu.RLock()
	lim, ok := l.buckets[providerID]
	until := l.blockedUntil[providerID]
	l.mu.RUnlock()

	now := l.now()
	if !ok {
		return time.Time{}
	}
	at := now
	if tokens := lim.TokensAt(now); tokens < 1 {
		wait := time.Duration((1 - tokens) / float64(lim.Limit()) * float64(time.Second))
		at = now.Add(wait)
	}
	if until.After(at) {
		at = until
	}
	return at
}

func (l *Limiter) Tokens(providerID string) float64 {
	l.mu.RLock()
	lim, ok := l.buckets[providerID]
	l.mu.RUnlock()
	if !ok {
		return 0
	}
	return lim.TokensAt(l.now())
}
