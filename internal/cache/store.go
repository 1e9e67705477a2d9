package cache

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is immutable once stored; a refresh replaces it wholesale.
type Entry[T any] struct {
	Key       Key           `json:"key"`
	Payload   []T           `json:"payload"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
	Source    string        `json:"source"`
}

func (e Entry[T]) FreshAt(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

type Option func(*options)

type options struct {
	now func() time.Time
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Store is a TTL cache bounded by key count. When full, the entry fetched
// longest ago is evicted. Reads never reorder entries.
type Store[T any] struct {
	mu      sync.RWMutex
	entries map[Key]*list.Element
	order   *list.List // front = most recently fetched
	ttl     time.Duration
	maxKeys int
	now     func() time.Time

	flight   singleflight.Group
	flightMu sync.Mutex
	inflight map[Key]int
}

func NewStore[T any](ttl time.Duration, maxKeys int, opts ...Option) *Store[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		entries:  make(map[Key]*list.Element),
		order:    list.New(),
		ttl:      ttl,
		maxKeys:  maxKeys,
		now:      o.now,
		inflight: make(map[Key]int),
	}
}

func (s *Store[T]) TTL() time.Duration { return s.ttl }

// Get returns the stored entry for key and whether it is still fresh.
// Stale entries are returned with fresh=false.
func (s *Store[T]) Get(key Key) (entry Entry[T], fresh bool, ok bool) {
	s.mu.RLock()
	el, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return Entry[T]{}, false, false
	}
	entry = el.Value.(Entry[T])
	return entry, entry.FreshAt(s.now()), true
}

// Put replaces the entry for key with a copy of payload.
func (s *Store[T]) Put(key Key, payload []T, source string) Entry[T] {
	entry := Entry[T]{
		Key:       key,
		Payload:   append([]T(nil), payload...),
		FetchedAt: s.now(),
		TTL:       s.ttl,
		Source:    source,
	}
	s.insert(entry)
	return entry
}

// Restore inserts a previously persisted entry unless a newer one is present.
func (s *Store[T]) Restore(entry Entry[T]) bool {
	if existing, _, ok := s.Get(entry.Key); ok && !existing.FetchedAt.Before(entry.FetchedAt) {
		return false
	}
	entry.TTL = s.ttl
	s.insert(entry)
	return true
}

func (s *Store[T]) insert(entry Entry[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[entry.Key]; ok {
		s.order.Remove(el)
	}
	s.entries[entry.Key] = s.place(entry)

	for s.order.Len() > s.maxKeys {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(Entry[T]).Key)
	}
}

// place keeps the list ordered by FetchedAt, newest first. Fresh puts land
// at the front; restored entries slot in behind anything fetched later.
func (s *Store[T]) place(entry Entry[T]) *list.Element {
	for el := s.order.Front(); el != nil; el = el.Next() {
		if !el.Value.(Entry[T]).FetchedAt.After(entry.FetchedAt) {
			return s.order.InsertBefore(entry, el)
		}
	}
	return s.order.PushBack(entry)
}

func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot lists entries from most to least recently fetched.
func (s *Store[T]) Snapshot() []Entry[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry[T], 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(Entry[T]))
	}
	return out
}

// Refreshing reports whether a coalesced refresh for key is running.
func (s *Store[T]) Refreshing(key Key) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	return s.inflight[key] > 0
}

// Coalesce runs fn at most once at a time per key. Callers arriving while
// fn runs share its result; shared reports whether that happened.
func (s *Store[T]) Coalesce(key Key, fn func() ([]T, error)) (records []T, shared bool, err error) {
	s.flightMu.Lock()
	s.inflight[key]++
	s.flightMu.Unlock()
	defer func() {
		s.flightMu.Lock()
		if s.inflight[key]--; s.inflight[key] <= 0 {
			delete(s.inflight, key)
		}
		s.flightMu.Unlock()
	}()

	v, err, shared := s.flight.Do(key.String(), func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, shared, err
	}
	records, _ = v.([]T)
	return records, shared, nil
}
