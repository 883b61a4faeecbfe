package service

import (
	"strings"
	"time"

	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"

	"kyb/internal/workitem/models"
)

// Command is one lifecycle action against an existing work item. Apply runs
// against a freshly loaded aggregate, so it is re-run on every conflict retry.
type Command interface {
	Name() string
	Target() id.WorkItemID
	Validate() error
	Apply(w *models.WorkItem, now time.Time) error
}

// CreateCommand opens a work item for a new application.
type CreateCommand struct {
	ApplicationID id.ApplicationID
	ApplicantName string
	EntityType    string
	Country       string
	RiskLevel     string
	SLADays       int
	By            models.Actor
}

func (c CreateCommand) Validate() error {
	if c.ApplicationID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "application id is required")
	}
	if _, ok := models.ParseRiskLevel(c.RiskLevel); !ok {
		return dErrors.Newf(dErrors.CodeValidation, "unknown risk level %q", c.RiskLevel)
	}
	return nil
}

type target struct {
	WorkItemID id.WorkItemID
	By         models.Actor
}

func (t target) Target() id.WorkItemID { return t.WorkItemID }

func (t target) validateTarget() error {
	if t.WorkItemID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "work item id is required")
	}
	return nil
}

type AssignCommand struct {
	target
	AssigneeID   string
	AssigneeName string
}

func NewAssign(workItemID id.WorkItemID, assigneeID, assigneeName string, by models.Actor) AssignCommand {
	return AssignCommand{target: target{workItemID, by}, AssigneeID: assigneeID, AssigneeName: assigneeName}
}

func (AssignCommand) Name() string { return "assign" }

func (c AssignCommand) Validate() error {
	if err := c.validateTarget(); err != nil {
		return err
	}
	if strings.TrimSpace(c.AssigneeID) == "" {
		return dErrors.New(dErrors.CodeValidation, "assignee id is required")
	}
	return nil
}

func (c AssignCommand) Apply(w *models.WorkItem, now time.Time) error {
	return w.Assign(c.AssigneeID, c.AssigneeName, c.By, now)
}

type UnassignCommand struct{ target }

func NewUnassign(workItemID id.WorkItemID, by models.Actor) UnassignCommand {
	return UnassignCommand{target{workItemID, by}}
}

func (UnassignCommand) Name() string      { return "unassign" }
func (c UnassignCommand) Validate() error { return c.validateTarget() }
func (c UnassignCommand) Apply(w *models.WorkItem, now time.Time) error {
	return w.Unassign(c.By, now)
}

type StartReviewCommand struct{ target }

func NewStartReview(workItemID id.WorkItemID, by models.Actor) StartReviewCommand {
	return StartReviewCommand{target{workItemID, by}}
}

func (StartReviewCommand) Name() string      { return "start_review" }
func (c StartReviewCommand) Validate() error { return c.validateTarget() }
func (c StartReviewCommand) Apply(w *models.WorkItem, now time.Time) error {
	return w.StartReview(c.By, now)
}

type SubmitForApprovalCommand struct {
	target
	Notes string
}

func NewSubmitForApproval(workItemID id.WorkItemID, notes string, by models.Actor) SubmitForApprovalCommand {
	return SubmitForApprovalCommand{target: target{workItemID, by}, Notes: notes}
}

func (SubmitForApprovalCommand) Name() string      { return "submit_for_approval" }
func (c SubmitForApprovalCommand) Validate() error { return c.validateTarget() }
func (c SubmitForApprovalCommand) Apply(w *models.WorkItem, now time.Time) error {
	return w.SubmitForApproval(c.Notes, c.By, now)
}

type ApproveCommand struct{ target }

func NewApprove(workItemID id.WorkItemID, by models.Actor) ApproveCommand {
	return ApproveCommand{target{workItemID, by}}
}

func (ApproveCommand) Name() string { return "approve" }

func (c ApproveCommand) Validate() error {
	if err := c.validateTarget(); err != nil {
		return err
	}
	if strings.TrimSpace(c.By.UserID) == "" {
		return dErrors.New(dErrors.CodeValidation, "approver id is required")
	}
	return nil
}

func (c ApproveCommand) Apply(w *models.WorkItem, now time.Time) error {
	return w.Approve(c.By, now)
}

type CompleteCommand struct{ target }

func NewComplete(workItemID id.WorkItemID, by models.Actor) CompleteCommand {
	return CompleteCommand{target{workItemID, by}}
}

func (CompleteCommand) Name() string      { return "complete" }
func (c CompleteCommand) Validate() error { return c.validateTarget() }
func (c CompleteCommand) Apply(w *models.WorkItem, now time.Time) error {
	return w.Complete(c.By, now)
}

type DeclineCommand struct {
	target
	Reason string
}

func NewDecline(workItemID id.WorkItemID, reason string, by models.Actor) DeclineCommand {
	return DeclineCommand{target: target{workItemID, by}, Reason: reason}
}

func (DeclineCommand) Name() string { return "decline" }

func (c DeclineCommand) Validate() error {
	if err := c.validateTarget(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "decline reason is required")
	}
	return nil
}

func (c DeclineCommand) Apply(w *models.WorkItem, now time.Time) error {
	return w.Decline(c.Reason, c.By, now)
}

type AddCommentCommand struct {
	target
	Text string
}

func NewAddComment(workItemID id.WorkItemID, text string, by models.Actor) AddCommentCommand {
	return AddCommentCommand{target: target{workItemID, by}, Text: text}
}

func (AddCommentCommand) Name() string { return "add_comment" }

func (c AddCommentCommand) Validate() error {
	if err := c.validateTarget(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Text) == "" {
		return dErrors.New(dErrors.CodeValidation, "comment text is required")
	}
	return nil
}

func (c AddCommentCommand) Apply(w *models.WorkItem, now time.Time) error {
	_, err := w.AddComment(c.Text, c.By, now)
	return err
}

type MarkForRefreshCommand struct {
	target
	Reason string
}

func NewMarkForRefresh(workItemID id.WorkItemID, reason string, by models.Actor) MarkForRefreshCommand {
	return MarkForRefreshCommand{target: target{workItemID, by}, Reason: reason}
}

func (MarkForRefreshCommand) Name() string      { return "mark_for_refresh" }
func (c MarkForRefreshCommand) Validate() error { return c.validateTarget() }
func (c MarkForRefreshCommand) Apply(w *models.WorkItem, now time.Time) error {
	return w.MarkForRefresh(c.Reason, c.By, now)
}
