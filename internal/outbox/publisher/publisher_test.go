package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"

	"kyb/internal/outbox/models"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func testEvent(t *testing.T) *models.Event {
	t.Helper()
	e, err := models.NewEvent(id.NewEventID(), "work_item", "wi-1", "workitem.approved",
		map[string]string{"status": "approved"}, time.Date(2026, 5, 2, 10, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	return e
}

func TestNewRecord(t *testing.T) {
	e := testEvent(t)
	r := NewRecord("kyb.workitem-events", e)

	assert.Equal(t, "kyb.workitem-events", r.Topic)
	assert.Equal(t, []byte("wi-1"), r.Key)
	assert.JSONEq(t, `{"status":"approved"}`, string(r.Value))

	headers := map[string]string{}
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, map[string]string{
		HeaderEventID:       e.ID.String(),
		HeaderEventType:     "workitem.approved",
		HeaderAggregateType: "work_item",
		HeaderOccurredAt:    "2026-05-02T10:30:00Z",
	}, headers)
}

func TestPublish(t *testing.T) {
	t.Run("acknowledged record returns nil", func(t *testing.T) {
		producer := &fakeProducer{}
		p := NewKafka(producer)
		require.NoError(t, p.Publish(context.Background(), "topic", testEvent(t)))
		assert.Len(t, producer.records, 1)
	})

	t.Run("broker error is a publish failure", func(t *testing.T) {
		producer := &fakeProducer{err: errors.New("NOT_ENOUGH_REPLICAS")}
		p := NewKafka(producer)
		err := p.Publish(context.Background(), "topic", testEvent(t))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePublishFailure))
	})
}
