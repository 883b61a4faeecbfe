package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	id "kyb/pkg/domain"

	"kyb/internal/outbox/models"
)

// InMemoryStore is an outbox partition held in process memory. Claimed rows
// are invisible to concurrent ProcessBatch calls until the claim ends, which
// mirrors FOR UPDATE SKIP LOCKED.
type InMemoryStore struct {
	mu      sync.Mutex
	name    string
	events  []*models.Event
	claimed map[id.EventID]struct{}
	now     func() time.Time
	timeout time.Duration
}

// NewInMemory creates an empty partition named name.
func NewInMemory(name string) *InMemoryStore {
	return &InMemoryStore{
		name:    name,
		claimed: make(map[id.EventID]struct{}),
		now:     time.Now,
	}
}

// WithClock overrides the time source used for ProcessedAt.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

// WithClaimTimeout bounds each claim. A claim still open when the timeout
// expires is abandoned without marking anything, as a rolled back
// transaction would be.
func (s *InMemoryStore) WithClaimTimeout(d time.Duration) *InMemoryStore {
	s.timeout = d
	return s
}

func (s *InMemoryStore) Name() string {
	return s.name
}

func (s *InMemoryStore) Append(_ context.Context, events ...*models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events = append(s.events, e.Clone())
	}
	return nil
}

// ProcessBatch claims up to limit unprocessed events, hands them to fn and
// marks the acknowledged ids processed. Returns the number of claimed events.
func (s *InMemoryStore) ProcessBatch(ctx context.Context, limit int, fn BatchFunc) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	claimCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		claimCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	batch := s.claim(limit)
	if len(batch) == 0 {
		return 0, nil
	}

	fnCtx, cancel := withinClaim(ctx, claimCtx)
	acked := fn(fnCtx, batch)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := claimCtx.Err(); err != nil {
		for _, e := range batch {
			delete(s.claimed, e.ID)
		}
		return 0, fmt.Errorf("outbox claim on %s expired: %w", s.name, err)
	}
	ackedSet := make(map[id.EventID]struct{}, len(acked))
	for _, eventID := range acked {
		ackedSet[eventID] = struct{}{}
	}
	processedAt := s.now().UTC()
	for _, e := range s.events {
		if _, ok := s.claimed[e.ID]; !ok {
			continue
		}
		if _, ok := ackedSet[e.ID]; ok {
			at := processedAt
			e.ProcessedAt = &at
		}
	}
	for _, e := range batch {
		delete(s.claimed, e.ID)
	}
	return len(batch), nil
}

func (s *InMemoryStore) claim(limit int) []*models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*models.Event, 0, limit)
	for _, e := range s.events {
		if e.ProcessedAt != nil {
			continue
		}
		if _, ok := s.claimed[e.ID]; ok {
			continue
		}
		candidates = append(candidates, e)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].OccurredAt.Before(candidates[j].OccurredAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]*models.Event, len(candidates))
	for i, e := range candidates {
		s.claimed[e.ID] = struct{}{}
		out[i] = e.Clone()
	}
	return out
}

// Backlog returns the number of unprocessed events.
func (s *InMemoryStore) Backlog(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.ProcessedAt == nil {
			n++
		}
	}
	return n, nil
}

// All returns copies of every event in insertion order.
func (s *InMemoryStore) All() []*models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Event, len(s.events))
	for i, e := range s.events {
		out[i] = e.Clone()
	}
	return out
}

// ByAggregate returns copies of the events for one aggregate in insertion order.
func (s *InMemoryStore) ByAggregate(aggregateID string) []*models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Event
	for _, e := range s.events {
		if e.AggregateID == aggregateID {
			out = append(out, e.Clone())
		}
	}
	return out
}
