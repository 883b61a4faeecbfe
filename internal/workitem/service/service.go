package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"
	"kyb/pkg/platform/sentinel"
	"kyb/pkg/requestcontext"

	"kyb/internal/workitem/metrics"
	"kyb/internal/workitem/models"
)

//go:generate mockgen -destination=../mocks/store_mock.go -package=mocks kyb/internal/workitem/service Store

// Store persists work items. Save must reject a stale Version with
// sentinel.ErrConflict and append the aggregate's pending events in the same
// transaction as the state change.
type Store interface {
	Create(ctx context.Context, w *models.WorkItem) error
	FindByID(ctx context.Context, workItemID id.WorkItemID) (*models.WorkItem, error)
	FindByApplicationID(ctx context.Context, applicationID id.ApplicationID) (*models.WorkItem, error)
	Save(ctx context.Context, w *models.WorkItem) error
	List(ctx context.Context, filter models.ListFilter) ([]*models.WorkItem, error)
}

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 25 * time.Millisecond
)

// Service applies lifecycle commands: load, mutate, save. A save that loses an
// optimistic concurrency race reloads and re-applies the command against the
// fresh state, up to maxAttempts in total.
type Service struct {
	store        Store
	logger       *slog.Logger
	metrics      *metrics.Metrics
	maxAttempts  int
	retryBackoff time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetry sets the attempt ceiling and the linear backoff step between
// attempts (attempt n waits (n-1)*step).
func WithRetry(maxAttempts int, step time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if step >= 0 {
			s.retryBackoff = step
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a work item in status new. A second work item for the same
// application returns CodeConflict.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*models.WorkItem, error) {
	const name = "create"
	start := time.Now()
	defer s.metrics.ObserveCommand(name, start)

	if err := cmd.Validate(); err != nil {
		s.metrics.IncCommand(name, "rejected")
		return nil, err
	}
	risk, _ := models.ParseRiskLevel(cmd.RiskLevel)
	w, err := models.NewWorkItem(models.NewWorkItemParams{
		ID:            id.NewWorkItemID(),
		ApplicationID: cmd.ApplicationID,
		ApplicantName: cmd.ApplicantName,
		EntityType:    cmd.EntityType,
		Country:       cmd.Country,
		RiskLevel:     risk,
		CreatedBy:     cmd.By.UserID,
		SLADays:       cmd.SLADays,
	}, requestcontext.Now(ctx))
	if err != nil {
		s.metrics.IncCommand(name, "rejected")
		return nil, err
	}

	if err := s.store.Create(ctx, w); err != nil {
		s.metrics.IncCommand(name, "error")
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "a work item already exists for application %s", cmd.ApplicationID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create work item")
	}
	w.ClearEvents()
	s.metrics.IncCommand(name, "ok")
	s.logger.InfoContext(ctx, "work item created",
		"work_item_id", w.ID.String(),
		"application_id", w.ApplicationID.String(),
		"risk_level", string(w.RiskLevel),
		"sla_due_at", w.SLADueAt,
	)
	return w, nil
}

// Execute applies cmd to the work item it targets. Domain errors from Apply
// are returned unchanged and never retried; only version conflicts are.
func (s *Service) Execute(ctx context.Context, cmd Command) (*models.WorkItem, error) {
	name := cmd.Name()
	start := time.Now()
	defer s.metrics.ObserveCommand(name, start)

	if err := cmd.Validate(); err != nil {
		s.metrics.IncCommand(name, "rejected")
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			s.metrics.IncConflictRetry(name)
			if err := s.wait(ctx, attempt); err != nil {
				s.metrics.IncCommand(name, "error")
				return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "command cancelled while retrying")
			}
		}

		w, err := s.store.FindByID(ctx, cmd.Target())
		if err != nil {
			s.metrics.IncCommand(name, "error")
			return nil, translateLoadErr(err)
		}
		if err := cmd.Apply(w, now); err != nil {
			s.metrics.IncCommand(name, "rejected")
			return nil, err
		}

		err = s.store.Save(ctx, w)
		if err == nil {
			w.ClearEvents()
			s.metrics.IncCommand(name, "ok")
			s.logger.InfoContext(ctx, "work item command applied",
				"command", name,
				"work_item_id", w.ID.String(),
				"status", w.Status.String(),
				"version", w.Version,
				"attempt", attempt,
			)
			return w, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncCommand(name, "error")
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, translateLoadErr(err)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save work item")
		}
		lastErr = err
		s.logger.DebugContext(ctx, "work item version conflict",
			"command", name,
			"work_item_id", cmd.Target().String(),
			"attempt", attempt,
		)
	}

	s.metrics.IncCommand(name, "conflict")
	s.logger.WarnContext(ctx, "work item command gave up after version conflicts",
		"command", name,
		"work_item_id", cmd.Target().String(),
		"attempts", s.maxAttempts,
	)
	return nil, dErrors.Wrap(lastErr, dErrors.CodeConcurrencyConflict, "work item was modified concurrently")
}

func (s *Service) wait(ctx context.Context, attempt int) error {
	d := time.Duration(attempt-1) * s.retryBackoff
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) Assign(ctx context.Context, workItemID id.WorkItemID, assigneeID, assigneeName string, by models.Actor) (*models.WorkItem, error) {
	return s.Execute(ctx, NewAssign(workItemID, assigneeID, assigneeName, by))
}

func (s *Service) Unassign(ctx context.Context, workItemID id.WorkItemID, by models.Actor) (*models.WorkItem, error) {
	return s.Execute(ctx, NewUnassign(workItemID, by))
}

func (s *Service) StartReview(ctx context.Context, workItemID id.WorkItemID, by models.Actor) (*models.WorkItem, error) {
	return s.Execute(ctx, NewStartReview(workItemID, by))
}

func (s *Service) SubmitForApproval(ctx context.Context, workItemID id.WorkItemID, notes string, by models.Actor) (*models.WorkItem, error) {
	return s.Execute(ctx, NewSubmitForApproval(workItemID, notes, by))
}

func (s *Service) Approve(ctx context.Context, workItemID id.WorkItemID, by models.Actor) (*models.WorkItem, error) {
	return s.Execute(ctx, NewApprove(workItemID, by))
}

func (s *Service) Complete(ctx context.Context, workItemID id.WorkItemID, by models.Actor) (*models.WorkItem, error) {
	return s.Execute(ctx, NewComplete(workItemID, by))
}

func (s *Service) Decline(ctx context.Context, workItemID id.WorkItemID, reason string, by models.Actor) (*models.WorkItem, error) {
	return s.Execute(ctx, NewDecline(workItemID, reason, by))
}

func (s *Service) AddComment(ctx context.Context, workItemID id.WorkItemID, text string, by models.Actor) (*models.WorkItem, error) {
	return s.Execute(ctx, NewAddComment(workItemID, text, by))
}

func (s *Service) MarkForRefresh(ctx context.Context, workItemID id.WorkItemID, reason string, by models.Actor) (*models.WorkItem, error) {
	return s.Execute(ctx, NewMarkForRefresh(workItemID, reason, by))
}

func (s *Service) Get(ctx context.Context, workItemID id.WorkItemID) (*models.WorkItem, error) {
	w, err := s.store.FindByID(ctx, workItemID)
	if err != nil {
		return nil, translateLoadErr(err)
	}
	return w, nil
}

func (s *Service) GetByApplication(ctx context.Context, applicationID id.ApplicationID) (*models.WorkItem, error) {
	w, err := s.store.FindByApplicationID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no work item for application %s", applicationID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load work item")
	}
	return w, nil
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.WorkItem, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", filter.Status)
	}
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list work items")
	}
	return items, nil
}

func translateLoadErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "work item not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load work item")
}
