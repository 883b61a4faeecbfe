package models

import (
	"time"

	id "kyb/pkg/domain"
)

// AggregateType is the outbox aggregate_type for work item events.
const AggregateType = "work_item"

// EventType names a domain event. The "workitem." prefix routes these to the
// work item topic.
type EventType string

const (
	EventCreated              EventType = "workitem.created"
	EventAssigned             EventType = "workitem.assigned"
	EventUnassigned           EventType = "workitem.unassigned"
	EventReviewStarted        EventType = "workitem.review_started"
	EventSubmittedForApproval EventType = "workitem.submitted_for_approval"
	EventApproved             EventType = "workitem.approved"
	EventCompleted            EventType = "workitem.completed"
	EventDeclined             EventType = "workitem.declined"
	EventCommentAdded         EventType = "workitem.comment_added"
	EventMarkedForRefresh     EventType = "workitem.marked_for_refresh"
)

// DomainEvent is recorded on the aggregate by a successful mutation and
// flushed to the outbox in the same transaction as the state change.
type DomainEvent struct {
	ID         id.EventID
	Type       EventType
	OccurredAt time.Time
	Payload    EventPayload
}

// EventPayload is the JSON body written to the outbox. Fields irrelevant to a
// given event type are omitted.
type EventPayload struct {
	WorkItemID         string     `json:"work_item_id"`
	ApplicationID      string     `json:"application_id"`
	Status             Status     `json:"status"`
	PreviousStatus     Status     `json:"previous_status,omitempty"`
	RiskLevel          RiskLevel  `json:"risk_level,omitempty"`
	ApplicantName      string     `json:"applicant_name,omitempty"`
	EntityType         string     `json:"entity_type,omitempty"`
	Country            string     `json:"country,omitempty"`
	SLADueAt           *time.Time `json:"sla_due_at,omitempty"`
	AssignedToUserID   string     `json:"assigned_to_user_id,omitempty"`
	AssignedToUserName string     `json:"assigned_to_user_name,omitempty"`
	ActorID            string     `json:"actor_id,omitempty"`
	ActorName          string     `json:"actor_name,omitempty"`
	ActorRole          string     `json:"actor_role,omitempty"`
	Reason             string     `json:"reason,omitempty"`
	CommentID          string     `json:"comment_id,omitempty"`
	Version            int64      `json:"version"`
}
