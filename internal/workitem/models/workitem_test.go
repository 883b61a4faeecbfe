package models

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"
)

var (
	reviewer = Actor{UserID: "u-reviewer", UserName: "Rita Reviewer", Role: "analyst"}
	approver = Actor{UserID: "u-approver", UserName: "Alan Approver", Role: "mlro"}
	t0       = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
)

func newItem(t *testing.T, risk RiskLevel) *WorkItem {
	t.Helper()
	w, err := NewWorkItem(NewWorkItemParams{
		ID:            id.NewWorkItemID(),
		ApplicationID: id.ApplicationID(uuid.New()),
		ApplicantName: "Acme Holdings Ltd",
		EntityType:    "private_limited_company",
		Country:       "gb",
		RiskLevel:     risk,
		CreatedBy:     "u-creator",
	}, t0)
	require.NoError(t, err)
	w.ClearEvents()
	return w
}

// op is one lifecycle operation applied to an aggregate.
type op struct {
	name string
	run  func(w *WorkItem, now time.Time) error
}

var ops = []op{
	{"assign", func(w *WorkItem, now time.Time) error { return w.Assign("u-reviewer", "Rita Reviewer", approver, now) }},
	{"unassign", func(w *WorkItem, now time.Time) error { return w.Unassign(approver, now) }},
	{"start_review", func(w *WorkItem, now time.Time) error { return w.StartReview(reviewer, now) }},
	{"submit", func(w *WorkItem, now time.Time) error { return w.SubmitForApproval("looks fine", reviewer, now) }},
	{"approve", func(w *WorkItem, now time.Time) error { return w.Approve(approver, now) }},
	{"complete", func(w *WorkItem, now time.Time) error { return w.Complete(approver, now) }},
	{"decline", func(w *WorkItem, now time.Time) error { return w.Decline("ubo mismatch", approver, now) }},
	{"mark_refresh", func(w *WorkItem, now time.Time) error { return w.MarkForRefresh("periodic", approver, now) }},
	{"comment", func(w *WorkItem, now time.Time) error {
		_, err := w.AddComment("note", reviewer, now)
		return err
	}},
}

// transitionTable is the reference lifecycle: op -> from -> to.
var transitionTable = map[string]map[Status]Status{
	"assign":       {StatusNew: StatusAssigned, StatusAssigned: StatusAssigned},
	"unassign":     {StatusAssigned: StatusNew},
	"start_review": {StatusAssigned: StatusInReview},
	"submit":       {StatusInReview: StatusPendingApproval},
	"approve":      {StatusPendingApproval: StatusApproved},
	"complete":     {StatusApproved: StatusCompleted},
	"decline": {
		StatusNew:             StatusDeclined,
		StatusAssigned:        StatusDeclined,
		StatusInReview:        StatusDeclined,
		StatusPendingApproval: StatusDeclined,
		StatusApproved:        StatusDeclined,
	},
	"mark_refresh": {StatusApproved: StatusApproved, StatusCompleted: StatusCompleted},
	"comment": {
		StatusNew:             StatusNew,
		StatusAssigned:        StatusAssigned,
		StatusInReview:        StatusInReview,
		StatusPendingApproval: StatusPendingApproval,
		StatusApproved:        StatusApproved,
		StatusDeclined:        StatusDeclined,
		StatusCompleted:       StatusCompleted,
	},
}

type WorkItemSuite struct {
	suite.Suite
}

func TestWorkItemSuite(t *testing.T) {
	suite.Run(t, new(WorkItemSuite))
}

func (s *WorkItemSuite) TestNewWorkItem() {
	s.Run("starts new with one created event", func() {
		w, err := NewWorkItem(NewWorkItemParams{
			ID:            id.NewWorkItemID(),
			ApplicationID: id.ApplicationID(uuid.New()),
			ApplicantName: "  Acme Ltd ",
			EntityType:    "llp",
			Country:       "gb",
			CreatedBy:     "u-1",
		}, t0)
		s.Require().NoError(err)
		s.Equal(StatusNew, w.Status)
		s.Equal(RiskUnknown, w.RiskLevel)
		s.Equal("Acme Ltd", w.ApplicantName)
		s.Equal("GB", w.Country)
		s.Empty(w.Comments)
		events := w.PendingEvents()
		s.Require().Len(events, 1)
		s.Equal(EventCreated, events[0].Type)
		s.Equal(int64(1), events[0].Payload.Version)
	})

	s.Run("rejects missing snapshot fields", func() {
		base := NewWorkItemParams{
			ID:            id.NewWorkItemID(),
			ApplicationID: id.ApplicationID(uuid.New()),
			ApplicantName: "Acme",
			EntityType:    "llp",
			Country:       "GB",
		}
		cases := map[string]func(p *NewWorkItemParams){
			"application id": func(p *NewWorkItemParams) { p.ApplicationID = id.ApplicationID{} },
			"applicant name": func(p *NewWorkItemParams) { p.ApplicantName = " " },
			"entity type":    func(p *NewWorkItemParams) { p.EntityType = "" },
			"country":        func(p *NewWorkItemParams) { p.Country = "" },
			"negative sla":   func(p *NewWorkItemParams) { p.SLADays = -1 },
		}
		for name, mutate := range cases {
			p := base
			mutate(&p)
			_, err := NewWorkItem(p, t0)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), name)
		}
	})

	s.Run("high risk without override uses the high risk SLA", func() {
		w := newItem(s.T(), RiskHigh)
		s.Equal(t0.AddDate(0, 0, slaDaysByRisk[RiskHigh]), w.SLADueAt)
	})

	s.Run("override wins over the risk table", func() {
		w, err := NewWorkItem(NewWorkItemParams{
			ID:            id.NewWorkItemID(),
			ApplicationID: id.ApplicationID(uuid.New()),
			ApplicantName: "Acme",
			EntityType:    "llp",
			Country:       "GB",
			RiskLevel:     RiskHigh,
			SLADays:       20,
		}, t0)
		s.Require().NoError(err)
		s.Equal(t0.AddDate(0, 0, 20), w.SLADueAt)
	})

	s.Run("unknown risk falls back to the default SLA", func() {
		w := newItem(s.T(), RiskUnknown)
		s.Equal(t0.AddDate(0, 0, DefaultSLADays), w.SLADueAt)
	})
}

func (s *WorkItemSuite) TestHappyPath() {
	w := newItem(s.T(), RiskMedium)
	now := t0.Add(time.Hour)

	s.Require().NoError(w.Assign("u-reviewer", "Rita Reviewer", approver, now))
	s.Equal(StatusAssigned, w.Status)
	s.Equal("u-reviewer", *w.AssignedToUserID)
	s.Equal(approver.UserID, w.AssignedBy)

	s.Require().NoError(w.StartReview(reviewer, now))
	s.Require().NoError(w.SubmitForApproval("all checks passed", reviewer, now))
	s.Require().Len(w.Comments, 1)
	s.Equal("all checks passed", w.Comments[0].Text)

	s.Require().NoError(w.Approve(approver, now))
	s.Equal(approver.UserID, w.ApprovedBy)
	s.Equal("mlro", w.ApproverRole)
	s.Require().NotNil(w.ApprovedAt)

	s.Require().NoError(w.Complete(approver, now))
	s.Equal(StatusCompleted, w.Status)

	s.Require().NoError(w.MarkForRefresh("", approver, now))
	s.True(w.RequiresRefresh)
	s.Equal(StatusCompleted, w.Status)

	types := []EventType{}
	for _, e := range w.PendingEvents() {
		types = append(types, e.Type)
	}
	s.Equal([]EventType{
		EventAssigned, EventReviewStarted, EventSubmittedForApproval,
		EventApproved, EventCompleted, EventMarkedForRefresh,
	}, types)
}

func (s *WorkItemSuite) TestUnassign() {
	w := newItem(s.T(), RiskLow)

	err := w.Unassign(approver, t0)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))

	s.Require().NoError(w.Assign("u-1", "One", approver, t0))
	s.Require().NoError(w.Unassign(approver, t0))
	s.Equal(StatusNew, w.Status)
	s.Nil(w.AssignedToUserID)
	s.Nil(w.AssignedToUserName)
	s.False(w.IsAssigned())
}

func (s *WorkItemSuite) TestReassignment() {
	w := newItem(s.T(), RiskLow)
	s.Require().NoError(w.Assign("u-1", "One", approver, t0))
	s.Require().NoError(w.Assign("u-2", "Two", reviewer, t0))
	s.Equal("u-2", *w.AssignedToUserID)
	s.Equal(reviewer.UserID, w.AssignedBy)
}

func (s *WorkItemSuite) TestDeclineFromEveryNonTerminalState() {
	paths := map[Status][]string{
		StatusNew:             {},
		StatusAssigned:        {"assign"},
		StatusInReview:        {"assign", "start_review"},
		StatusPendingApproval: {"assign", "start_review", "submit"},
		StatusApproved:        {"assign", "start_review", "submit", "approve"},
	}
	for from, path := range paths {
		s.Run(string(from), func() {
			w := newItem(s.T(), RiskLow)
			for _, name := range path {
				s.Require().NoError(opByName(name).run(w, t0))
			}
			s.Require().Equal(from, w.Status)

			s.Require().NoError(w.Decline("sanctions hit", approver, t0))
			s.Equal(StatusDeclined, w.Status)
			s.Equal("sanctions hit", w.DeclineReason)

			for _, o := range ops {
				w.ClearEvents()
				err := o.run(w, t0)
				if o.name == "comment" {
					s.NoError(err)
					continue
				}
				s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition), o.name)
				s.Empty(w.PendingEvents(), o.name)
				s.Equal(StatusDeclined, w.Status)
			}
		})
	}
}

func (s *WorkItemSuite) TestDeclineRequiresReason() {
	w := newItem(s.T(), RiskLow)
	err := w.Decline("   ", approver, t0)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(StatusNew, w.Status)
	s.Empty(w.PendingEvents())
}

func (s *WorkItemSuite) TestAddCommentValidation() {
	w := newItem(s.T(), RiskLow)
	_, err := w.AddComment("", reviewer, t0)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(w.Comments)
	s.Empty(w.PendingEvents())
}

func (s *WorkItemSuite) TestCloneIsDeep() {
	w := newItem(s.T(), RiskLow)
	s.Require().NoError(w.Assign("u-1", "One", approver, t0))
	_, err := w.AddComment("first", reviewer, t0)
	s.Require().NoError(err)

	c := w.Clone()
	*c.AssignedToUserID = "changed"
	c.Comments[0].Text = "changed"

	s.Equal("u-1", *w.AssignedToUserID)
	s.Equal("first", w.Comments[0].Text)
	s.Empty(c.PendingEvents())
}

// TestRandomSequencesFollowTransitionTable applies random operation sequences
// and compares the aggregate against the reference table: valid operations
// move to the table's target and record one event; invalid ones change
// nothing and record nothing.
func TestRandomSequencesFollowTransitionTable(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 300; run++ {
		w := newItem(t, RiskMedium)
		expected := StatusNew
		for step := 0; step < 25; step++ {
			o := ops[rng.Intn(len(ops))]
			before := w.Clone()
			beforeEvents := len(w.PendingEvents())

			err := o.run(w, t0.Add(time.Duration(step)*time.Minute))

			target, valid := transitionTable[o.name][expected]
			if valid {
				require.NoError(t, err, "run %d step %d op %s from %s", run, step, o.name, expected)
				expected = target
				assert.Len(t, w.PendingEvents(), beforeEvents+1)
			} else {
				require.Error(t, err, "run %d step %d op %s from %s", run, step, o.name, expected)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
				assert.Len(t, w.PendingEvents(), beforeEvents)
				assert.Equal(t, before, w.Clone(), "invalid op %s mutated aggregate", o.name)
			}
			require.Equal(t, expected, w.Status)
		}
	}
}

func opByName(name string) op {
	for _, o := range ops {
		if o.name == name {
			return o
		}
	}
	panic("unknown op " + name)
}
