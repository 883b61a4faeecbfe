package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
	txcontext "kyb/pkg/platform/tx"

	"kyb/internal/outbox/models"
)

// PostgresStore is the outbox table of one logical schema.
//
// Claims run in their own transaction: rows are selected FOR UPDATE SKIP
// LOCKED so concurrent relays never claim the same row, and processed_at is
// written in that transaction only for acknowledged ids. A crash before
// commit releases the row locks and leaves every row unprocessed.
type PostgresStore struct {
	db     *sql.DB
	schema string
	table  string
	tx     *txcontext.Runner
	now    func() time.Time
}

// NewPostgres creates a store for <schema>.outbox. An empty schema means public.
func NewPostgres(db *sql.DB, schema string) *PostgresStore {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	return &PostgresStore{
		db:     db,
		schema: schema,
		table:  pq.QuoteIdentifier(schema) + ".outbox",
		tx:     txcontext.NewRunner(db).WithTimeout(defaultClaimTimeout),
		now:    time.Now,
	}
}

// defaultClaimTimeout bounds one claim transaction, publishes included.
const defaultClaimTimeout = 30 * time.Second

// WithClaimTimeout overrides how long a claim transaction may stay open.
func (s *PostgresStore) WithClaimTimeout(d time.Duration) *PostgresStore {
	s.tx.WithTimeout(d)
	return s
}

func (s *PostgresStore) Name() string {
	return s.schema
}

// Append inserts events using the transaction in ctx when present, so the rows
// commit or roll back with the aggregate write that produced them.
func (s *PostgresStore) Append(ctx context.Context, events ...*models.Event) error {
	if len(events) == 0 {
		return nil
	}
	query := `INSERT INTO ` + s.table + ` (id, aggregate_id, aggregate_type, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	exec := txcontext.ExecutorFrom(ctx, s.db)
	for _, e := range events {
		_, err := exec.ExecContext(ctx, query,
			uuid.UUID(e.ID),
			e.AggregateID,
			e.AggregateType,
			e.EventType,
			[]byte(e.Payload),
			e.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("insert outbox event %s: %w", e.EventType, err)
		}
	}
	return nil
}

// ProcessBatch claims up to limit unprocessed rows ordered by occurred_at and
// marks the ids returned by fn as processed before committing the claim. fn
// runs on a context that ends before the claim transaction does, so ids it
// acknowledged are marked even when publishing runs long.
func (s *PostgresStore) ProcessBatch(ctx context.Context, limit int, fn BatchFunc) (int, error) {
	claimed := 0
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		events, err := s.claim(txCtx, limit)
		if err != nil {
			return err
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}

		fnCtx, cancel := withinClaim(ctx, txCtx)
		acked := fn(fnCtx, events)
		cancel()
		return s.markProcessed(txCtx, acked)
	})
	if err != nil {
		return 0, err
	}
	return claimed, nil
}

func (s *PostgresStore) claim(ctx context.Context, limit int) ([]*models.Event, error) {
	query := `SELECT id, aggregate_id, aggregate_type, event_type, payload, occurred_at
		FROM ` + s.table + `
		WHERE processed_at IS NULL
		ORDER BY occurred_at, seq
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows from %s: %w", s.schema, err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var (
			e       models.Event
			eventID uuid.UUID
			payload []byte
		)
		if err := rows.Scan(&eventID, &e.AggregateID, &e.AggregateType, &e.EventType, &payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		e.ID = id.EventID(eventID)
		e.Payload = payload
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) markProcessed(ctx context.Context, ids []id.EventID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, eventID := range ids {
		raw[i] = eventID.String()
	}
	query := `UPDATE ` + s.table + ` SET processed_at = $1 WHERE id = ANY($2::uuid[]) AND processed_at IS NULL`
	if _, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, s.now().UTC(), pq.Array(raw)); err != nil {
		return fmt.Errorf("mark outbox rows processed: %w", err)
	}
	return nil
}

// Backlog returns the number of unprocessed rows.
func (s *PostgresStore) Backlog(ctx context.Context) (int, error) {
	var n int
	query := `SELECT count(*) FROM ` + s.table + ` WHERE processed_at IS NULL`
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox backlog: %w", err)
	}
	return n, nil
}

// Get loads one event by id.
func (s *PostgresStore) Get(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	query := `SELECT aggregate_id, aggregate_type, event_type, payload, occurred_at, processed_at
		FROM ` + s.table + ` WHERE id = $1`
	var (
		e         = models.Event{ID: eventID}
		payload   []byte
		processed sql.NullTime
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(eventID)).
		Scan(&e.AggregateID, &e.AggregateType, &e.EventType, &payload, &e.OccurredAt, &processed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox event: %w", err)
	}
	e.Payload = payload
	if processed.Valid {
		t := processed.Time
		e.ProcessedAt = &t
	}
	return &e, nil
}
