package store

import (
	"context"
	"sync"
	"time"

	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"

	"kyb/internal/compliance/models"

	outboxstore "kyb/internal/outbox/store"
	workitem "kyb/internal/workitem/models"
)

// WorkItemSource is the subset of the in-memory work item store the
// compliance store reads from and stamps refreshes on.
type WorkItemSource interface {
	List(ctx context.Context, filter workitem.ListFilter) ([]*workitem.WorkItem, error)
	FindByID(ctx context.Context, workItemID id.WorkItemID) (*workitem.WorkItem, error)
	SetLastRefreshAt(workItemID id.WorkItemID, at time.Time) error
}

// InMemoryStore selects candidates from an in-memory work item store.
type InMemoryStore struct {
	mu     sync.Mutex
	items  WorkItemSource
	outbox outboxstore.Appender
}

func NewInMemory(items WorkItemSource, outbox outboxstore.Appender) *InMemoryStore {
	return &InMemoryStore{items: items, outbox: outbox}
}

func (s *InMemoryStore) DueForRefresh(ctx context.Context, now time.Time, limit int) ([]models.Candidate, error) {
	var due []models.Candidate
	for _, status := range []workitem.Status{workitem.StatusApproved, workitem.StatusCompleted} {
		items, err := s.items.List(ctx, workitem.ListFilter{Status: status, Limit: workitem.MaxListLimit})
		if err != nil {
			return nil, err
		}
		for _, w := range items {
			if c := models.CandidateFrom(w); c.IsDue(now) {
				due = append(due, c)
			}
		}
	}
	models.SortCandidates(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// TriggerRefresh appends the refresh event and stamps last_refresh_at. A case
// refreshed by someone else since selection returns sentinel.ErrConflict.
func (s *InMemoryStore) TriggerRefresh(ctx context.Context, c models.Candidate, now time.Time) error {
	event, err := models.NewRefreshEvent(c, now)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.items.FindByID(ctx, c.WorkItemID)
	if err != nil {
		return err
	}
	want, _ := c.ReferenceTime()
	got, _ := models.CandidateFrom(current).ReferenceTime()
	if !got.Equal(want) {
		return sentinel.ErrConflict
	}
	if err := s.outbox.Append(ctx, event); err != nil {
		return err
	}
	return s.items.SetLastRefreshAt(c.WorkItemID, now)
}
