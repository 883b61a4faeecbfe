package handler

import (
	"net/http"

	"kyb/internal/workitem/models"
	"kyb/internal/workitem/service"
	id "kyb/pkg/domain"
	"kyb/pkg/platform/httputil"
)

type assignRequest struct {
	AssigneeID   string `json:"assignee_id"`
	AssigneeName string `json:"assignee_name"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type commentRequest struct {
	Text string `json:"text"`
}

func decodeAssign(r *http.Request, workItemID id.WorkItemID, by models.Actor) (service.Command, error) {
	var req assignRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	return service.NewAssign(workItemID, req.AssigneeID, req.AssigneeName, by), nil
}

func decodeUnassign(_ *http.Request, workItemID id.WorkItemID, by models.Actor) (service.Command, error) {
	return service.NewUnassign(workItemID, by), nil
}

func decodeStartReview(_ *http.Request, workItemID id.WorkItemID, by models.Actor) (service.Command, error) {
	return service.NewStartReview(workItemID, by), nil
}

func decodeSubmit(r *http.Request, workItemID id.WorkItemID, by models.Actor) (service.Command, error) {
	var req notesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	return service.NewSubmitForApproval(workItemID, req.Notes, by), nil
}

func decodeApprove(_ *http.Request, workItemID id.WorkItemID, by models.Actor) (service.Command, error) {
	return service.NewApprove(workItemID, by), nil
}

func decodeComplete(_ *http.Request, workItemID id.WorkItemID, by models.Actor) (service.Command, error) {
	return service.NewComplete(workItemID, by), nil
}

func decodeDecline(r *http.Request, workItemID id.WorkItemID, by models.Actor) (service.Command, error) {
	var req reasonRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	return service.NewDecline(workItemID, req.Reason, by), nil
}

func decodeComment(r *http.Request, workItemID id.WorkItemID, by models.Actor) (service.Command, error) {
	var req commentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	return service.NewAddComment(workItemID, req.Text, by), nil
}

func decodeMarkRefresh(r *http.Request, workItemID id.WorkItemID, by models.Actor) (service.Command, error) {
	var req reasonRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	return service.NewMarkForRefresh(workItemID, req.Reason, by), nil
}
