package models

import (
	"strings"
	"time"

	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"
)

// Actor is the back-office user performing an operation.
type Actor struct {
	UserID   string
	UserName string
	Role     string
}

// Comment is an append-only audit note on a work item.
type Comment struct {
	ID         id.CommentID `json:"id"`
	Text       string       `json:"text"`
	AuthorID   string       `json:"author_id"`
	AuthorName string       `json:"author_name"`
	CreatedAt  time.Time    `json:"created_at"`
}

// WorkItem is the aggregate root for a single onboarding case under review.
//
// Invariants:
//   - ApplicantName, EntityType and Country are a snapshot taken at creation
//   - Status only changes through the operations below, following the
//     lifecycle table (see Status)
//   - an operation that is not valid for the current status returns
//     CodeInvalidStateTransition and leaves every field untouched
//   - each successful mutation records exactly one DomainEvent
//   - Comments are never edited or removed
//   - SLADueAt is fixed at creation and not recomputed on risk changes
//   - Version is owned by the store and bumped on every successful save
type WorkItem struct {
	ID                 id.WorkItemID    `json:"id"`
	ApplicationID      id.ApplicationID `json:"application_id"`
	ApplicantName      string           `json:"applicant_name"`
	EntityType         string           `json:"entity_type"`
	Country            string           `json:"country"`
	RiskLevel          RiskLevel        `json:"risk_level"`
	Status             Status           `json:"status"`
	AssignedToUserID   *string          `json:"assigned_to_user_id,omitempty"`
	AssignedToUserName *string          `json:"assigned_to_user_name,omitempty"`
	AssignedBy         string           `json:"assigned_by,omitempty"`
	SLADueAt           time.Time        `json:"sla_due_at"`
	RequiresRefresh    bool             `json:"requires_refresh"`
	Comments           []Comment        `json:"comments"`

	ApprovedBy    string     `json:"approved_by,omitempty"`
	ApproverRole  string     `json:"approver_role,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DeclinedBy    string     `json:"declined_by,omitempty"`
	DeclineReason string     `json:"decline_reason,omitempty"`
	DeclinedAt    *time.Time `json:"declined_at,omitempty"`
	LastRefreshAt *time.Time `json:"last_refresh_at,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`

	events []DomainEvent
}

// NewWorkItemParams carries the creation snapshot from the case-creation flow.
type NewWorkItemParams struct {
	ID            id.WorkItemID
	ApplicationID id.ApplicationID
	ApplicantName string
	EntityType    string
	Country       string
	RiskLevel     RiskLevel
	CreatedBy     string
	SLADays       int
}

// NewWorkItem validates the snapshot and returns a work item in StatusNew with
// a pending EventCreated.
func NewWorkItem(p NewWorkItemParams, now time.Time) (*WorkItem, error) {
	p.ApplicantName = strings.TrimSpace(p.ApplicantName)
	p.EntityType = strings.TrimSpace(p.EntityType)
	p.Country = strings.ToUpper(strings.TrimSpace(p.Country))

	switch {
	case p.ID.IsNil():
		return nil, dErrors.New(dErrors.CodeValidation, "work item id is required")
	case p.ApplicationID.IsNil():
		return nil, dErrors.New(dErrors.CodeValidation, "application id is required")
	case p.ApplicantName == "":
		return nil, dErrors.New(dErrors.CodeValidation, "applicant name is required")
	case p.EntityType == "":
		return nil, dErrors.New(dErrors.CodeValidation, "entity type is required")
	case p.Country == "":
		return nil, dErrors.New(dErrors.CodeValidation, "country is required")
	case p.SLADays < 0:
		return nil, dErrors.New(dErrors.CodeValidation, "sla days must not be negative")
	}
	if p.RiskLevel == "" {
		p.RiskLevel = RiskUnknown
	}

	w := &WorkItem{
		ID:            p.ID,
		ApplicationID: p.ApplicationID,
		ApplicantName: p.ApplicantName,
		EntityType:    p.EntityType,
		Country:       p.Country,
		RiskLevel:     p.RiskLevel,
		Status:        StatusNew,
		SLADueAt:      SLADueAt(p.RiskLevel, now, p.SLADays),
		Comments:      []Comment{},
		CreatedBy:     p.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	due := w.SLADueAt
	w.record(EventCreated, now, EventPayload{
		RiskLevel:     w.RiskLevel,
		ApplicantName: w.ApplicantName,
		EntityType:    w.EntityType,
		Country:       w.Country,
		SLADueAt:      &due,
		ActorID:       p.CreatedBy,
	})
	return w, nil
}

// Assign sets (or replaces) the assignee.
func (w *WorkItem) Assign(assigneeID, assigneeName string, by Actor, now time.Time) error {
	if err := w.requireStatus("assign", StatusNew, StatusAssigned); err != nil {
		return err
	}
	if strings.TrimSpace(assigneeID) == "" {
		return dErrors.New(dErrors.CodeValidation, "assignee id is required")
	}
	prev := w.Status
	w.AssignedToUserID = &assigneeID
	w.AssignedToUserName = &assigneeName
	w.AssignedBy = by.UserID
	w.Status = StatusAssigned
	w.UpdatedAt = now
	w.record(EventAssigned, now, EventPayload{
		PreviousStatus:     prev,
		AssignedToUserID:   assigneeID,
		AssignedToUserName: assigneeName,
		ActorID:            by.UserID,
		ActorName:          by.UserName,
	})
	return nil
}

// Unassign clears the assignee and returns the item to the queue.
func (w *WorkItem) Unassign(by Actor, now time.Time) error {
	if err := w.requireStatus("unassign", StatusAssigned); err != nil {
		return err
	}
	w.AssignedToUserID = nil
	w.AssignedToUserName = nil
	w.AssignedBy = ""
	w.Status = StatusNew
	w.UpdatedAt = now
	w.record(EventUnassigned, now, EventPayload{
		PreviousStatus: StatusAssigned,
		ActorID:        by.UserID,
		ActorName:      by.UserName,
	})
	return nil
}

// StartReview moves an assigned item into review.
func (w *WorkItem) StartReview(by Actor, now time.Time) error {
	if err := w.requireStatus("start review", StatusAssigned); err != nil {
		return err
	}
	if !w.IsAssigned() {
		return dErrors.New(dErrors.CodeInvalidStateTransition, "cannot start review without an assignee")
	}
	w.Status = StatusInReview
	w.UpdatedAt = now
	w.record(EventReviewStarted, now, EventPayload{
		PreviousStatus: StatusAssigned,
		ActorID:        by.UserID,
		ActorName:      by.UserName,
	})
	return nil
}

// SubmitForApproval hands the reviewed item to an approver. Non-empty notes
// are appended as a comment by the submitter.
func (w *WorkItem) SubmitForApproval(notes string, by Actor, now time.Time) error {
	if err := w.requireStatus("submit for approval", StatusInReview); err != nil {
		return err
	}
	w.Status = StatusPendingApproval
	w.UpdatedAt = now
	payload := EventPayload{
		PreviousStatus: StatusInReview,
		ActorID:        by.UserID,
		ActorName:      by.UserName,
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		c := w.appendComment(notes, by, now)
		payload.CommentID = c.ID.String()
	}
	w.record(EventSubmittedForApproval, now, payload)
	return nil
}

// Approve records the approver identity and role.
func (w *WorkItem) Approve(by Actor, now time.Time) error {
	if err := w.requireStatus("approve", StatusPendingApproval); err != nil {
		return err
	}
	if strings.TrimSpace(by.UserID) == "" {
		return dErrors.New(dErrors.CodeValidation, "approver id is required")
	}
	w.Status = StatusApproved
	w.ApprovedBy = by.UserID
	w.ApproverRole = by.Role
	w.ApprovedAt = &now
	w.UpdatedAt = now
	w.record(EventApproved, now, EventPayload{
		PreviousStatus: StatusPendingApproval,
		RiskLevel:      w.RiskLevel,
		ActorID:        by.UserID,
		ActorName:      by.UserName,
		ActorRole:      by.Role,
	})
	return nil
}

// Complete closes an approved item.
func (w *WorkItem) Complete(by Actor, now time.Time) error {
	if err := w.requireStatus("complete", StatusApproved); err != nil {
		return err
	}
	w.Status = StatusCompleted
	w.CompletedAt = &now
	w.UpdatedAt = now
	w.record(EventCompleted, now, EventPayload{
		PreviousStatus: StatusApproved,
		ActorID:        by.UserID,
		ActorName:      by.UserName,
	})
	return nil
}

// Decline ends the primary flow from any non-terminal status.
func (w *WorkItem) Decline(reason string, by Actor, now time.Time) error {
	if w.Status.IsTerminal() {
		return w.invalidTransition("decline")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "decline reason is required")
	}
	prev := w.Status
	w.Status = StatusDeclined
	w.DeclinedBy = by.UserID
	w.DeclineReason = reason
	w.DeclinedAt = &now
	w.UpdatedAt = now
	w.record(EventDeclined, now, EventPayload{
		PreviousStatus: prev,
		Reason:         reason,
		ActorID:        by.UserID,
		ActorName:      by.UserName,
	})
	return nil
}

// AddComment appends an audit note. It is valid in every status.
func (w *WorkItem) AddComment(text string, by Actor, now time.Time) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, dErrors.New(dErrors.CodeValidation, "comment text is required")
	}
	c := w.appendComment(text, by, now)
	w.UpdatedAt = now
	w.record(EventCommentAdded, now, EventPayload{
		CommentID: c.ID.String(),
		ActorID:   by.UserID,
		ActorName: by.UserName,
	})
	return c, nil
}

// MarkForRefresh flags an approved or completed item for re-verification.
// The flag has no clearing transition.
func (w *WorkItem) MarkForRefresh(reason string, by Actor, now time.Time) error {
	if err := w.requireStatus("mark for refresh", StatusApproved, StatusCompleted); err != nil {
		return err
	}
	w.RequiresRefresh = true
	w.UpdatedAt = now
	w.record(EventMarkedForRefresh, now, EventPayload{
		Reason:    strings.TrimSpace(reason),
		ActorID:   by.UserID,
		ActorName: by.UserName,
	})
	return nil
}

func (w *WorkItem) IsAssigned() bool {
	return w.AssignedToUserID != nil && *w.AssignedToUserID != ""
}

// PendingEvents returns events recorded since the last ClearEvents.
func (w *WorkItem) PendingEvents() []DomainEvent {
	out := make([]DomainEvent, len(w.events))
	copy(out, w.events)
	return out
}

// ClearEvents drops pending events once the store has committed them.
func (w *WorkItem) ClearEvents() {
	w.events = nil
}

// Clone returns a deep copy without pending events.
func (w *WorkItem) Clone() *WorkItem {
	c := *w
	c.events = nil
	c.Comments = append([]Comment(nil), w.Comments...)
	if c.Comments == nil {
		c.Comments = []Comment{}
	}
	c.AssignedToUserID = cloneString(w.AssignedToUserID)
	c.AssignedToUserName = cloneString(w.AssignedToUserName)
	c.ApprovedAt = cloneTime(w.ApprovedAt)
	c.CompletedAt = cloneTime(w.CompletedAt)
	c.DeclinedAt = cloneTime(w.DeclinedAt)
	c.LastRefreshAt = cloneTime(w.LastRefreshAt)
	return &c
}

func (w *WorkItem) appendComment(text string, by Actor, now time.Time) Comment {
	c := Comment{
		ID:         id.NewCommentID(),
		Text:       text,
		AuthorID:   by.UserID,
		AuthorName: by.UserName,
		CreatedAt:  now,
	}
	w.Comments = append(w.Comments, c)
	return c
}

func (w *WorkItem) record(t EventType, now time.Time, p EventPayload) {
	p.WorkItemID = w.ID.String()
	p.ApplicationID = w.ApplicationID.String()
	p.Status = w.Status
	p.Version = w.Version + 1
	w.events = append(w.events, DomainEvent{
		ID:         id.NewEventID(),
		Type:       t,
		OccurredAt: now,
		Payload:    p,
	})
}

func (w *WorkItem) requireStatus(op string, allowed ...Status) error {
	for _, s := range allowed {
		if w.Status == s {
			return nil
		}
	}
	return w.invalidTransition(op)
}

func (w *WorkItem) invalidTransition(op string) error {
	return dErrors.Newf(dErrors.CodeInvalidStateTransition, "cannot %s work item in status %s", op, w.Status)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
