package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
	txcontext "kyb/pkg/platform/tx"

	"kyb/internal/compliance/models"

	outboxstore "kyb/internal/outbox/store"
	workitem "kyb/internal/workitem/models"
)

// dueQuery ranks tiers and applies cadences from parameters so the SQL and
// models.Tier never disagree. $3/$4 are the high and medium risk levels and
// $5..$7 their cadences in days.
const dueQuery = `
WITH refs AS (
	SELECT id, application_id, applicant_name, risk_level, status, approved_at, last_refresh_at,
		COALESCE(last_refresh_at, approved_at) AS reference_at,
		CASE
			WHEN risk_level = ANY($3) THEN 0
			WHEN risk_level = ANY($4) THEN 1
			ELSE 2
		END AS tier_rank
	FROM work_items
	WHERE status IN ('approved', 'completed')
		AND COALESCE(last_refresh_at, approved_at) IS NOT NULL
)
SELECT id, application_id, applicant_name, risk_level, status, approved_at, last_refresh_at
FROM refs
WHERE reference_at + make_interval(days => CASE tier_rank WHEN 0 THEN $5::int WHEN 1 THEN $6::int ELSE $7::int END) <= $1
ORDER BY tier_rank, reference_at, id
LIMIT $2`

// PostgresStore reads due cases from work_items and writes refresh events to
// the outbox in the same transaction as the last_refresh_at update.
type PostgresStore struct {
	db     *sql.DB
	tx     *txcontext.Runner
	outbox outboxstore.Appender
}

func NewPostgres(db *sql.DB, outbox outboxstore.Appender) *PostgresStore {
	return &PostgresStore{db: db, tx: txcontext.NewRunner(db), outbox: outbox}
}

func (s *PostgresStore) DueForRefresh(ctx context.Context, now time.Time, limit int) ([]models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, dueQuery,
		now, limit,
		pq.Array(riskStrings(models.TierHigh.RiskLevels())),
		pq.Array(riskStrings(models.TierMedium.RiskLevels())),
		models.TierHigh.CadenceDays(),
		models.TierMedium.CadenceDays(),
		models.TierLow.CadenceDays(),
	)
	if err != nil {
		return nil, fmt.Errorf("select due cases: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var (
			c                   models.Candidate
			workItemID, appID   uuid.UUID
			risk, status        string
			approved, refreshed sql.NullTime
		)
		if err := rows.Scan(&workItemID, &appID, &c.ApplicantName, &risk, &status, &approved, &refreshed); err != nil {
			return nil, fmt.Errorf("scan due case: %w", err)
		}
		c.WorkItemID = id.WorkItemID(workItemID)
		c.ApplicationID = id.ApplicationID(appID)
		c.RiskLevel = workitem.RiskLevel(risk)
		c.Status = workitem.Status(status)
		c.ApprovedAt = timePtr(approved)
		c.LastRefreshAt = timePtr(refreshed)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due cases: %w", err)
	}
	return out, nil
}

// TriggerRefresh stamps last_refresh_at only if the reference time is still
// the one seen at selection, then appends the refresh event.
func (s *PostgresStore) TriggerRefresh(ctx context.Context, c models.Candidate, now time.Time) error {
	event, err := models.NewRefreshEvent(c, now)
	if err != nil {
		return err
	}
	ref, ok := c.ReferenceTime()
	if !ok {
		return fmt.Errorf("case %s has no reference time", c.ApplicationID)
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx,
			`UPDATE work_items SET last_refresh_at = $1
			WHERE id = $2 AND COALESCE(last_refresh_at, approved_at) = $3`,
			now, uuid.UUID(c.WorkItemID), ref)
		if err != nil {
			return fmt.Errorf("update last_refresh_at: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update last_refresh_at: %w", err)
		}
		if n == 0 {
			return sentinel.ErrConflict
		}
		return s.outbox.Append(ctx, event)
	})
}

func riskStrings(levels []workitem.RiskLevel) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
