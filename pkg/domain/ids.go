// Package domain holds the typed identifiers shared by the work queue modules.
//
// Each identifier is a distinct named type over uuid.UUID so a WorkItemID can
// never be passed where an ApplicationID is expected. Parse* functions are the
// trust boundary for identifiers arriving from transports and reject the nil UUID.
package domain

import (
	"github.com/google/uuid"

	dErrors "kyb/pkg/domain-errors"
)

type (
	WorkItemID    uuid.UUID
	ApplicationID uuid.UUID
	CommentID     uuid.UUID
	EventID       uuid.UUID
)

func (id WorkItemID) String() string    { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id CommentID) String() string     { return uuid.UUID(id).String() }
func (id EventID) String() string       { return uuid.UUID(id).String() }

func (id WorkItemID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id CommentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// Text encoding keeps identifiers as canonical UUID strings in JSON.

func (id WorkItemID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id ApplicationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id CommentID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }

func (id *WorkItemID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ApplicationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CommentID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }

func NewWorkItemID() WorkItemID { return WorkItemID(uuid.New()) }
func NewCommentID() CommentID   { return CommentID(uuid.New()) }
func NewEventID() EventID       { return EventID(uuid.New()) }

func ParseWorkItemID(s string) (WorkItemID, error) {
	u, err := parseUUID(s, "work item id")
	return WorkItemID(u), err
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application id")
	return ApplicationID(u), err
}

func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event id")
	return EventID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" must not be nil")
	}
	return u, nil
}
