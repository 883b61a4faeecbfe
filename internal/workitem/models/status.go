package models

import "strings"

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusNew             Status = "new"
	StatusAssigned        Status = "assigned"
	StatusInReview        Status = "in_review"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusDeclined        Status = "declined"
	StatusCompleted       Status = "completed"
)

var allStatuses = []Status{
	StatusNew,
	StatusAssigned,
	StatusInReview,
	StatusPendingApproval,
	StatusApproved,
	StatusDeclined,
	StatusCompleted,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func (s Status) IsValid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the primary flow has ended. Only AddComment is
// accepted afterwards (and MarkForRefresh from Completed).
func (s Status) IsTerminal() bool {
	return s == StatusDeclined || s == StatusCompleted
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus accepts the wire form case-insensitively.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.IsValid()
}
