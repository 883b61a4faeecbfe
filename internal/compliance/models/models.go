// Package models holds the compliance-refresh cadence rules and the event
// emitted when a case is due for periodic re-verification.
package models

import (
	"sort"
	"time"

	id "kyb/pkg/domain"

	outboxmodels "kyb/internal/outbox/models"
	workitem "kyb/internal/workitem/models"
)

// Tier groups risk levels that share a refresh cadence.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Tiers lists tiers in processing priority order.
var Tiers = []Tier{TierHigh, TierMedium, TierLow}

var tierRisks = map[Tier][]workitem.RiskLevel{
	TierHigh:   {workitem.RiskHigh, workitem.RiskCritical},
	TierMedium: {workitem.RiskMedium, workitem.RiskMediumHigh},
}

var cadenceDays = map[Tier]int{
	TierHigh:   90,
	TierMedium: 180,
	TierLow:    365,
}

// TierFor maps a risk level to its tier. Unlisted levels are TierLow.
func TierFor(r workitem.RiskLevel) Tier {
	for _, t := range []Tier{TierHigh, TierMedium} {
		for _, level := range tierRisks[t] {
			if level == r {
				return t
			}
		}
	}
	return TierLow
}

// RiskLevels returns the levels explicitly assigned to t. TierLow is the
// fallback and has none.
func (t Tier) RiskLevels() []workitem.RiskLevel {
	return append([]workitem.RiskLevel(nil), tierRisks[t]...)
}

// CadenceDays is the revalidation window of the tier.
func (t Tier) CadenceDays() int {
	if d, ok := cadenceDays[t]; ok {
		return d
	}
	return cadenceDays[TierLow]
}

// Rank orders tiers for processing, lowest first.
func (t Tier) Rank() int {
	for i, tier := range Tiers {
		if tier == t {
			return i
		}
	}
	return len(Tiers)
}

// Candidate is an approved or completed case considered for refresh.
type Candidate struct {
	WorkItemID    id.WorkItemID
	ApplicationID id.ApplicationID
	ApplicantName string
	RiskLevel     workitem.RiskLevel
	Status        workitem.Status
	ApprovedAt    *time.Time
	LastRefreshAt *time.Time
}

// CandidateFrom projects the fields the scheduler needs from a work item.
func CandidateFrom(w *workitem.WorkItem) Candidate {
	return Candidate{
		WorkItemID:    w.ID,
		ApplicationID: w.ApplicationID,
		ApplicantName: w.ApplicantName,
		RiskLevel:     w.RiskLevel,
		Status:        w.Status,
		ApprovedAt:    w.ApprovedAt,
		LastRefreshAt: w.LastRefreshAt,
	}
}

func (c Candidate) Tier() Tier {
	return TierFor(c.RiskLevel)
}

// ReferenceTime is the last refresh, or the approval when never refreshed.
func (c Candidate) ReferenceTime() (time.Time, bool) {
	if c.LastRefreshAt != nil {
		return *c.LastRefreshAt, true
	}
	if c.ApprovedAt != nil {
		return *c.ApprovedAt, true
	}
	return time.Time{}, false
}

// DueAt is when the candidate's revalidation window elapses.
func (c Candidate) DueAt() (time.Time, bool) {
	ref, ok := c.ReferenceTime()
	if !ok {
		return time.Time{}, false
	}
	return ref.AddDate(0, 0, c.Tier().CadenceDays()), true
}

// IsDue reports whether the case must be re-verified at now.
func (c Candidate) IsDue(now time.Time) bool {
	if c.Status != workitem.StatusApproved && c.Status != workitem.StatusCompleted {
		return false
	}
	due, ok := c.DueAt()
	return ok && !due.After(now)
}

// SortCandidates orders by tier (high first), then oldest reference time.
func SortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		ri, rj := cs[i].Tier().Rank(), cs[j].Tier().Rank()
		if ri != rj {
			return ri < rj
		}
		ti, _ := cs[i].ReferenceTime()
		tj, _ := cs[j].ReferenceTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return cs[i].WorkItemID.String() < cs[j].WorkItemID.String()
	})
}

const (
	// AggregateType is the outbox aggregate_type of refresh events; the
	// aggregate id is the application id.
	AggregateType = "case"
	// EventRefreshTriggered routes to the case topic.
	EventRefreshTriggered = "case.refresh_triggered"
	ReasonPeriodic        = "periodic_refresh"
)

// RefreshTriggeredPayload is the body of a case.refresh_triggered event.
type RefreshTriggeredPayload struct {
	ApplicationID  string             `json:"application_id"`
	WorkItemID     string             `json:"work_item_id"`
	ApplicantName  string             `json:"applicant_name"`
	RiskLevel      workitem.RiskLevel `json:"risk_level"`
	Tier           Tier               `json:"tier"`
	CadenceDays    int                `json:"cadence_days"`
	LastVerifiedAt time.Time          `json:"last_verified_at"`
	DueAt          time.Time          `json:"due_at"`
	TriggeredAt    time.Time          `json:"triggered_at"`
	Reason         string             `json:"reason"`
}

// NewRefreshEvent builds the outbox row announcing that c is due.
func NewRefreshEvent(c Candidate, now time.Time) (*outboxmodels.Event, error) {
	ref, _ := c.ReferenceTime()
	due, _ := c.DueAt()
	tier := c.Tier()
	return outboxmodels.NewEvent(id.NewEventID(), AggregateType, c.ApplicationID.String(), EventRefreshTriggered,
		RefreshTriggeredPayload{
			ApplicationID:  c.ApplicationID.String(),
			WorkItemID:     c.WorkItemID.String(),
			ApplicantName:  c.ApplicantName,
			RiskLevel:      c.RiskLevel,
			Tier:           tier,
			CadenceDays:    tier.CadenceDays(),
			LastVerifiedAt: ref,
			DueAt:          due,
			TriggeredAt:    now,
			Reason:         ReasonPeriodic,
		}, now)
}

// Result summarises one scheduler cycle.
type Result struct {
	Skipped   bool
	DryRun    bool
	Selected  int
	Triggered int
	Failed    int
	Due       []Candidate
}
