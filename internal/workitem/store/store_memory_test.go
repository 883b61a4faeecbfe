package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"

	"kyb/internal/workitem/models"

	outboxstore "kyb/internal/outbox/store"
)

type InMemoryStoreSuite struct {
	suite.Suite
	outbox *outboxstore.InMemoryStore
	store  *InMemoryStore
	now    time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.outbox = outboxstore.NewInMemory("public")
	s.store = NewInMemory(s.outbox)
}

func (s *InMemoryStoreSuite) newItem() *models.WorkItem {
	w, err := models.NewWorkItem(models.NewWorkItemParams{
		ID:            id.NewWorkItemID(),
		ApplicationID: id.ApplicationID(uuid.New()),
		ApplicantName: "Northwind Traders",
		EntityType:    "limited_company",
		Country:       "IE",
		RiskLevel:     models.RiskMedium,
	}, s.now)
	s.Require().NoError(err)
	return w
}

func (s *InMemoryStoreSuite) TestCreate() {
	ctx := context.Background()
	w := s.newItem()
	s.Require().NoError(s.store.Create(ctx, w))
	s.Equal(int64(1), w.Version)
	s.Len(s.outbox.ByAggregate(w.ID.String()), 1)

	dup := s.newItem()
	dup.ApplicationID = w.ApplicationID
	s.ErrorIs(s.store.Create(ctx, dup), sentinel.ErrAlreadyUsed)
	s.Empty(s.outbox.ByAggregate(dup.ID.String()))

	byApp, err := s.store.FindByApplicationID(ctx, w.ApplicationID)
	s.Require().NoError(err)
	s.Equal(w.ID, byApp.ID)
}

func (s *InMemoryStoreSuite) TestSaveComparesVersion() {
	ctx := context.Background()
	w := s.newItem()
	s.Require().NoError(s.store.Create(ctx, w))

	first, err := s.store.FindByID(ctx, w.ID)
	s.Require().NoError(err)
	second, err := s.store.FindByID(ctx, w.ID)
	s.Require().NoError(err)

	s.Require().NoError(first.Assign("u1", "User One", models.Actor{}, s.now))
	s.Require().NoError(s.store.Save(ctx, first))
	s.Equal(int64(2), first.Version)

	s.Require().NoError(second.Assign("u2", "User Two", models.Actor{}, s.now))
	s.ErrorIs(s.store.Save(ctx, second), sentinel.ErrConflict)

	stored, err := s.store.FindByID(ctx, w.ID)
	s.Require().NoError(err)
	s.Equal("u1", *stored.AssignedToUserID)
	s.Len(s.outbox.ByAggregate(w.ID.String()), 2, "losing save must not append events")
}

func (s *InMemoryStoreSuite) TestReadsAreIsolatedCopies() {
	ctx := context.Background()
	w := s.newItem()
	s.Require().NoError(s.store.Create(ctx, w))

	got, err := s.store.FindByID(ctx, w.ID)
	s.Require().NoError(err)
	got.Status = models.StatusApproved

	again, err := s.store.FindByID(ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusNew, again.Status)
}

func (s *InMemoryStoreSuite) TestMissing() {
	ctx := context.Background()
	_, err := s.store.FindByID(ctx, id.NewWorkItemID())
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Save(ctx, s.newItem()), sentinel.ErrNotFound)
	s.ErrorIs(s.store.SetLastRefreshAt(id.NewWorkItemID(), s.now), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestSaveKeepsLastRefreshAt() {
	ctx := context.Background()
	w := s.newItem()
	s.Require().NoError(s.store.Create(ctx, w))
	w.ClearEvents()
	s.Require().NoError(s.store.SetLastRefreshAt(w.ID, s.now))

	s.Require().NoError(w.Assign("u1", "User", models.Actor{}, s.now))
	s.Require().NoError(s.store.Save(ctx, w))

	got, err := s.store.FindByID(ctx, w.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.LastRefreshAt)
	s.Equal(s.now, *got.LastRefreshAt)
}
