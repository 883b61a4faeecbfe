package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListFilterMatches(t *testing.T) {
	analyst := "analyst-1"
	yes, no := true, false
	w := &WorkItem{Status: StatusInReview, AssignedToUserID: &analyst, RequiresRefresh: true}

	assert.True(t, ListFilter{}.Matches(w))
	assert.True(t, ListFilter{Status: StatusInReview, AssignedToUserID: analyst, RequiresRefresh: &yes}.Matches(w))
	assert.False(t, ListFilter{Status: StatusApproved}.Matches(w))
	assert.False(t, ListFilter{AssignedToUserID: "analyst-2"}.Matches(w))
	assert.False(t, ListFilter{RequiresRefresh: &no}.Matches(w))
	assert.False(t, ListFilter{AssignedToUserID: analyst}.Matches(&WorkItem{Status: StatusNew}))
}
