//go:build integration

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
	txcontext "kyb/pkg/platform/tx"
	"kyb/pkg/testutil/containers"

	"kyb/internal/outbox/models"
	"kyb/internal/platform/postgres"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	now   time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(postgres.EnsureOutbox(context.Background(), s.pg.DB, "documents"))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "outbox", "documents.outbox"))
	s.store = NewPostgres(s.pg.DB, "public")
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) event(aggregate string, offset time.Duration) *models.Event {
	e, err := models.NewEvent(id.NewEventID(), "work_item", aggregate, "workitem.assigned",
		map[string]string{"work_item_id": aggregate}, s.now.Add(offset))
	s.Require().NoError(err)
	return e
}

func (s *PostgresStoreSuite) TestAppendJoinsCallerTransaction() {
	ctx := context.Background()
	runner := txcontext.NewRunner(s.pg.DB)
	committed := s.event("agg-1", 0)
	rolledBack := s.event("agg-2", 0)

	s.Require().NoError(runner.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.Append(ctx, committed)
	}))
	errBoom := errors.New("boom")
	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Append(ctx, rolledBack); err != nil {
			return err
		}
		return errBoom
	})
	s.ErrorIs(err, errBoom)

	_, err = s.store.Get(ctx, committed.ID)
	s.NoError(err)
	_, err = s.store.Get(ctx, rolledBack.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestProcessBatchMarksOnlyAcknowledged() {
	ctx := context.Background()
	first := s.event("agg-1", time.Second)
	second := s.event("agg-1", 2*time.Second)
	earliest := s.event("agg-2", 0)
	s.Require().NoError(s.store.Append(ctx, first, second, earliest))

	var order []id.EventID
	claimed, err := s.store.ProcessBatch(ctx, 10, func(_ context.Context, events []*models.Event) []id.EventID {
		for _, e := range events {
			order = append(order, e.ID)
		}
		return []id.EventID{earliest.ID, first.ID}
	})
	s.Require().NoError(err)
	s.Equal(3, claimed)
	s.Equal([]id.EventID{earliest.ID, first.ID, second.ID}, order)

	got, err := s.store.Get(ctx, first.ID)
	s.Require().NoError(err)
	s.True(got.IsProcessed())
	got, err = s.store.Get(ctx, second.ID)
	s.Require().NoError(err)
	s.False(got.IsProcessed())

	backlog, err := s.store.Backlog(ctx)
	s.Require().NoError(err)
	s.Equal(1, backlog)
}

func (s *PostgresStoreSuite) TestSlowCallbackStillMarksWithinClaimTimeout() {
	ctx := context.Background()
	s.store.WithClaimTimeout(time.Second)
	first := s.event("agg-1", 0)
	second := s.event("agg-2", time.Second)
	s.Require().NoError(s.store.Append(ctx, first, second))

	claimed, err := s.store.ProcessBatch(ctx, 10, func(ctx context.Context, events []*models.Event) []id.EventID {
		// Stands in for a publish that only gives up when its context ends.
		<-ctx.Done()
		return []id.EventID{events[0].ID}
	})
	s.Require().NoError(err)
	s.Equal(2, claimed)

	got, err := s.store.Get(ctx, first.ID)
	s.Require().NoError(err)
	s.True(got.IsProcessed())
	backlog, err := s.store.Backlog(ctx)
	s.Require().NoError(err)
	s.Equal(1, backlog)
}

func (s *PostgresStoreSuite) TestConcurrentClaimsAreDisjoint() {
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		s.Require().NoError(s.store.Append(ctx, s.event("agg", time.Duration(i)*time.Second)))
	}

	var (
		mu      sync.Mutex
		seen    = map[id.EventID]int{}
		inBatch sync.WaitGroup
		wg      sync.WaitGroup
	)
	inBatch.Add(2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := NewPostgres(s.pg.DB, "public").ProcessBatch(ctx, 3, func(_ context.Context, events []*models.Event) []id.EventID {
				mu.Lock()
				acked := make([]id.EventID, 0, len(events))
				for _, e := range events {
					seen[e.ID]++
					acked = append(acked, e.ID)
				}
				mu.Unlock()
				// Hold both claims open so neither relay sees committed rows.
				inBatch.Done()
				inBatch.Wait()
				return acked
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Len(seen, 6)
	for eventID, n := range seen {
		s.Equal(1, n, "event %s claimed more than once", eventID)
	}
}

func (s *PostgresStoreSuite) TestSchemasAreIndependentPartitions() {
	ctx := context.Background()
	docs := NewPostgres(s.pg.DB, "documents")
	s.Equal("documents", docs.Name())
	s.Require().NoError(docs.Append(ctx, s.event("doc-1", 0)))

	claimed, err := s.store.ProcessBatch(ctx, 10, func(context.Context, []*models.Event) []id.EventID { return nil })
	s.Require().NoError(err)
	s.Zero(claimed)

	claimed, err = docs.ProcessBatch(ctx, 10, func(_ context.Context, events []*models.Event) []id.EventID {
		return []id.EventID{events[0].ID}
	})
	s.Require().NoError(err)
	s.Equal(1, claimed)
}
