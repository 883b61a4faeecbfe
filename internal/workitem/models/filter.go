package models

// ListFilter narrows work item queries. Zero values mean "any".
type ListFilter struct {
	Status           Status
	AssignedToUserID string
	RequiresRefresh  *bool
	Limit            int
}

// MaxListLimit caps page sizes.
const MaxListLimit = 500

// Normalize applies the default and maximum page size.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		f.Limit = 100
	}
	return f
}

// Matches reports whether w passes every non-zero field of the filter.
func (f ListFilter) Matches(w *WorkItem) bool {
	if f.Status != "" && w.Status != f.Status {
		return false
	}
	if f.AssignedToUserID != "" && (w.AssignedToUserID == nil || *w.AssignedToUserID != f.AssignedToUserID) {
		return false
	}
	if f.RequiresRefresh != nil && w.RequiresRefresh != *f.RequiresRefresh {
		return false
	}
	return true
}
