package store

import (
	"kyb/internal/workitem/models"

	outboxmodels "kyb/internal/outbox/models"
)

// outboxEvents converts the aggregate's pending domain events to outbox rows.
func outboxEvents(w *models.WorkItem) ([]*outboxmodels.Event, error) {
	pending := w.PendingEvents()
	out := make([]*outboxmodels.Event, 0, len(pending))
	for _, de := range pending {
		e, err := outboxmodels.NewEvent(de.ID, models.AggregateType, w.ID.String(), string(de.Type), de.Payload, de.OccurredAt)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
