package store

import (
	"context"
	"sort"
	"sync"
	"time"

	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"

	"kyb/internal/workitem/models"

	outboxstore "kyb/internal/outbox/store"
)

// InMemoryStore keeps work items in process memory. The aggregate write and
// the outbox append happen under one lock, which stands in for the database
// transaction of the PostgreSQL store.
type InMemoryStore struct {
	mu            sync.RWMutex
	items         map[id.WorkItemID]*models.WorkItem
	byApplication map[id.ApplicationID]id.WorkItemID
	outbox        outboxstore.Appender
}

func NewInMemory(outbox outboxstore.Appender) *InMemoryStore {
	return &InMemoryStore{
		items:         make(map[id.WorkItemID]*models.WorkItem),
		byApplication: make(map[id.ApplicationID]id.WorkItemID),
		outbox:        outbox,
	}
}

// Create inserts a new work item with version 1.
func (s *InMemoryStore) Create(ctx context.Context, w *models.WorkItem) error {
	events, err := outboxEvents(w)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byApplication[w.ApplicationID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	if _, exists := s.items[w.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	if err := s.outbox.Append(ctx, events...); err != nil {
		return err
	}
	stored := w.Clone()
	stored.Version = 1
	s.items[w.ID] = stored
	s.byApplication[w.ApplicationID] = w.ID
	w.Version = 1
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, workItemID id.WorkItemID) (*models.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.items[workItemID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return w.Clone(), nil
}

func (s *InMemoryStore) FindByApplicationID(ctx context.Context, applicationID id.ApplicationID) (*models.WorkItem, error) {
	s.mu.RLock()
	workItemID, ok := s.byApplication[applicationID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindByID(ctx, workItemID)
}

// Save replaces the stored aggregate when w.Version matches and appends its
// pending events. A mismatch returns sentinel.ErrConflict and writes nothing.
func (s *InMemoryStore) Save(ctx context.Context, w *models.WorkItem) error {
	events, err := outboxEvents(w)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[w.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != w.Version {
		return sentinel.ErrConflict
	}
	if err := s.outbox.Append(ctx, events...); err != nil {
		return err
	}
	stored := w.Clone()
	stored.Version = current.Version + 1
	stored.LastRefreshAt = current.LastRefreshAt
	s.items[w.ID] = stored
	w.Version = stored.Version
	return nil
}

// List returns matching work items ordered by SLA due date, then creation.
func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.WorkItem, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkItem
	for _, w := range s.items {
		if filter.Matches(w) {
			out = append(out, w.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SLADueAt.Equal(out[j].SLADueAt) {
			return out[i].SLADueAt.Before(out[j].SLADueAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// SetLastRefreshAt records a compliance refresh without touching the version,
// matching the PostgreSQL store where the column is owned by the scheduler.
func (s *InMemoryStore) SetLastRefreshAt(workItemID id.WorkItemID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.items[workItemID]
	if !ok {
		return sentinel.ErrNotFound
	}
	t := at
	w.LastRefreshAt = &t
	return nil
}
