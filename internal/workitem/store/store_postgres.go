package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	id "kyb/pkg/domain"
	"kyb/pkg/platform/sentinel"
	txcontext "kyb/pkg/platform/tx"

	"kyb/internal/workitem/models"

	outboxstore "kyb/internal/outbox/store"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var workItemColumns = []string{
	"id", "application_id", "applicant_name", "entity_type", "country", "risk_level",
	"status", "assigned_to_user_id", "assigned_to_user_name", "assigned_by", "sla_due_at",
	"requires_refresh", "comments", "approved_by", "approver_role", "approved_at",
	"completed_at", "declined_by", "decline_reason", "declined_at", "last_refresh_at",
	"created_by", "created_at", "updated_at", "version",
}

// PostgresStore persists work items in the work_items table. Every write runs
// in a transaction that also appends the aggregate's pending events to the
// outbox, so a state change and its events commit together or not at all.
type PostgresStore struct {
	db     *sql.DB
	tx     *txcontext.Runner
	outbox outboxstore.Appender
}

// NewPostgres constructs a PostgreSQL-backed work item store. outbox must
// write through the transaction carried in ctx (see outbox store.PostgresStore).
func NewPostgres(db *sql.DB, outbox outboxstore.Appender) *PostgresStore {
	return &PostgresStore{
		db:     db,
		tx:     txcontext.NewRunner(db),
		outbox: outbox,
	}
}

func (s *PostgresStore) Create(ctx context.Context, w *models.WorkItem) error {
	events, err := outboxEvents(w)
	if err != nil {
		return err
	}
	comments, err := json.Marshal(commentsOrEmpty(w.Comments))
	if err != nil {
		return fmt.Errorf("marshal comments: %w", err)
	}

	query, args, err := psql.Insert("work_items").
		Columns(workItemColumns...).
		Values(
			uuid.UUID(w.ID), uuid.UUID(w.ApplicationID), w.ApplicantName, w.EntityType, w.Country, string(w.RiskLevel),
			string(w.Status), nullString(w.AssignedToUserID), nullString(w.AssignedToUserName), w.AssignedBy, w.SLADueAt,
			w.RequiresRefresh, comments, w.ApprovedBy, w.ApproverRole, nullTime(w.ApprovedAt),
			nullTime(w.CompletedAt), w.DeclinedBy, w.DeclineReason, nullTime(w.DeclinedAt), nullTime(w.LastRefreshAt),
			w.CreatedBy, w.CreatedAt, w.UpdatedAt, 1,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert work item: %w", err)
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		exec := txcontext.ExecutorFrom(ctx, s.db)
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrAlreadyUsed
			}
			return fmt.Errorf("insert work item: %w", err)
		}
		return s.outbox.Append(ctx, events...)
	})
	if err != nil {
		return err
	}
	w.Version = 1
	return nil
}

// Save writes w when its Version still matches the stored row. The scheduler
// owns last_refresh_at, so it is not written here.
func (s *PostgresStore) Save(ctx context.Context, w *models.WorkItem) error {
	events, err := outboxEvents(w)
	if err != nil {
		return err
	}
	comments, err := json.Marshal(commentsOrEmpty(w.Comments))
	if err != nil {
		return fmt.Errorf("marshal comments: %w", err)
	}

	query, args, err := psql.Update("work_items").
		Set("risk_level", string(w.RiskLevel)).
		Set("status", string(w.Status)).
		Set("assigned_to_user_id", nullString(w.AssignedToUserID)).
		Set("assigned_to_user_name", nullString(w.AssignedToUserName)).
		Set("assigned_by", w.AssignedBy).
		Set("requires_refresh", w.RequiresRefresh).
		Set("comments", comments).
		Set("approved_by", w.ApprovedBy).
		Set("approver_role", w.ApproverRole).
		Set("approved_at", nullTime(w.ApprovedAt)).
		Set("completed_at", nullTime(w.CompletedAt)).
		Set("declined_by", w.DeclinedBy).
		Set("decline_reason", w.DeclineReason).
		Set("declined_at", nullTime(w.DeclinedAt)).
		Set("updated_at", w.UpdatedAt).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": uuid.UUID(w.ID), "version": w.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update work item: %w", err)
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		exec := txcontext.ExecutorFrom(ctx, s.db)
		res, err := exec.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update work item: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update work item: %w", err)
		}
		if affected == 0 {
			return s.missingOrStale(ctx, exec, w.ID)
		}
		return s.outbox.Append(ctx, events...)
	})
	if err != nil {
		return err
	}
	w.Version++
	return nil
}

func (s *PostgresStore) missingOrStale(ctx context.Context, exec txcontext.Executor, workItemID id.WorkItemID) error {
	var exists bool
	err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM work_items WHERE id = $1)`, uuid.UUID(workItemID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check work item: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *PostgresStore) FindByID(ctx context.Context, workItemID id.WorkItemID) (*models.WorkItem, error) {
	return s.findOne(ctx, sq.Eq{"id": uuid.UUID(workItemID)})
}

func (s *PostgresStore) FindByApplicationID(ctx context.Context, applicationID id.ApplicationID) (*models.WorkItem, error) {
	return s.findOne(ctx, sq.Eq{"application_id": uuid.UUID(applicationID)})
}

func (s *PostgresStore) findOne(ctx context.Context, where sq.Eq) (*models.WorkItem, error) {
	query, args, err := psql.Select(workItemColumns...).From("work_items").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select work item: %w", err)
	}
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, args...)
	w, err := scanWorkItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find work item: %w", err)
	}
	return w, nil
}

// List returns matching work items ordered by SLA due date, then creation.
func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.WorkItem, error) {
	filter = filter.Normalize()
	builder := psql.Select(workItemColumns...).From("work_items")
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.AssignedToUserID != "" {
		builder = builder.Where(sq.Eq{"assigned_to_user_id": filter.AssignedToUserID})
	}
	if filter.RequiresRefresh != nil {
		builder = builder.Where(sq.Eq{"requires_refresh": *filter.RequiresRefresh})
	}
	query, args, err := builder.
		OrderBy("sla_due_at ASC", "created_at ASC").
		Limit(uint64(filter.Limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list work items: %w", err)
	}

	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(row rowScanner) (*models.WorkItem, error) {
	var (
		w                       models.WorkItem
		workItemID, appID       uuid.UUID
		riskLevel, status       string
		assigneeID, assignee    sql.NullString
		comments                []byte
		approvedAt, completedAt sql.NullTime
		declinedAt, refreshAt   sql.NullTime
	)
	err := row.Scan(
		&workItemID, &appID, &w.ApplicantName, &w.EntityType, &w.Country, &riskLevel,
		&status, &assigneeID, &assignee, &w.AssignedBy, &w.SLADueAt,
		&w.RequiresRefresh, &comments, &w.ApprovedBy, &w.ApproverRole, &approvedAt,
		&completedAt, &w.DeclinedBy, &w.DeclineReason, &declinedAt, &refreshAt,
		&w.CreatedBy, &w.CreatedAt, &w.UpdatedAt, &w.Version,
	)
	if err != nil {
		return nil, err
	}
	w.ID = id.WorkItemID(workItemID)
	w.ApplicationID = id.ApplicationID(appID)
	w.RiskLevel = models.RiskLevel(riskLevel)
	w.Status = models.Status(status)
	w.AssignedToUserID = stringPtr(assigneeID)
	w.AssignedToUserName = stringPtr(assignee)
	w.ApprovedAt = timePtr(approvedAt)
	w.CompletedAt = timePtr(completedAt)
	w.DeclinedAt = timePtr(declinedAt)
	w.LastRefreshAt = timePtr(refreshAt)
	if err := json.Unmarshal(comments, &w.Comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	if w.Comments == nil {
		w.Comments = []models.Comment{}
	}
	return &w, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func commentsOrEmpty(c []models.Comment) []models.Comment {
	if c == nil {
		return []models.Comment{}
	}
	return c
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
