// Package store persists outbox events. Writers append inside the caller's
// transaction; the relay claims unprocessed rows in OccurredAt order and marks
// the acknowledged ones processed inside the same claim.
package store

import (
	"context"
	"time"

	id "kyb/pkg/domain"

	"kyb/internal/outbox/models"
)

// BatchFunc receives claimed events and returns the ids whose publish was
// acknowledged. Only those ids are marked processed.
type BatchFunc func(ctx context.Context, events []*models.Event) []id.EventID

// Appender is implemented by every outbox store.
type Appender interface {
	Append(ctx context.Context, events ...*models.Event) error
}

// markReserveDivisor sets the share of the remaining claim window withheld
// from the batch callback so acknowledged ids can still be marked.
const markReserveDivisor = 5

// withinClaim derives the callback context from ctx, ending it before the
// claim context's deadline. The callback must not join the claim
// transaction, so only the deadline is carried over.
func withinClaim(ctx, claimCtx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := claimCtx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	reserve := time.Until(deadline) / markReserveDivisor
	return context.WithDeadline(ctx, deadline.Add(-reserve))
}
