package currency

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"glaz/internal/cache"
)

const ratesCacheKey = "rates"

// Service serves rate snapshots with a TTL cache in front of the upstream
// source. Rates never fails: on upstream errors it degrades to the last
// successful snapshot, then to the hardcoded defaults.
type Service struct {
	source Source
	rates  *cache.LRUCache[Snapshot]

	mu        sync.Mutex
	lastKnown *Snapshot
}

func NewService(source Source, ttl time.Duration) *Service {
	return &Service{
		source: source,
		rates:  cache.NewLRUCache[Snapshot](1, ttl),
	}
}

// RegisterCaches adds the service's caches to a cleanup manager.
func (s *Service) RegisterCaches(m *cache.Manager) {
	m.Register(s.rates)
}

// Rates returns the current snapshot: cached if fresh, freshly fetched
// otherwise, with stale-then-default degradation when the fetch fails.
func (s *Service) Rates(ctx context.Context) Snapshot {
	if snap, ok := s.rates.Get(ratesCacheKey); ok {
		return snap
	}

	snap, err := s.source.Fetch(ctx)
	if err == nil {
		s.rates.Set(ratesCacheKey, snap)
		s.mu.Lock()
		s.lastKnown = &snap
		s.mu.Unlock()
		slog.InfoContext(ctx, "Fetched fresh exchange rates",
			"currencies", len(snap.Rates), "component", "currency")
		return snap
	}

	slog.WarnContext(ctx, "Exchange rates fetch failed",
		"error", err, "component", "currency")

	s.mu.Lock()
	stale := s.lastKnown
	s.mu.Unlock()
	if stale != nil {
		slog.InfoContext(ctx, "Serving stale exchange rates", "component", "currency")
		return *stale
	}
	return DefaultSnapshot()
}

// Convert exchanges amount between two currencies at the current rates.
func (s *Service) Convert(ctx context.Context, amount float64, from, to string) (float64, Snapshot) {
	snap := s.Rates(ctx)
	return Convert(amount, from, to, snap), snap
}
