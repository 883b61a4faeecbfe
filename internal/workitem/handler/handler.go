package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kyb/internal/platform/middleware"
	"kyb/internal/workitem/models"
	"kyb/internal/workitem/service"
	id "kyb/pkg/domain"
	dErrors "kyb/pkg/domain-errors"
	"kyb/pkg/platform/httputil"
	"kyb/pkg/requestcontext"
)

// Service is the work item command and query surface used by the handler.
type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*models.WorkItem, error)
	Execute(ctx context.Context, cmd service.Command) (*models.WorkItem, error)
	Get(ctx context.Context, workItemID id.WorkItemID) (*models.WorkItem, error)
	GetByApplication(ctx context.Context, applicationID id.ApplicationID) (*models.WorkItem, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.WorkItem, error)
}

// Handler exposes work item commands over HTTP.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the work item routes. Every route requires an actor.
func (h *Handler) Register(r chi.Router) {
	r.Route("/work-items", func(r chi.Router) {
		r.Use(middleware.RequireActor(h.logger))
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/assign", h.command(decodeAssign))
		r.Post("/{id}/unassign", h.command(decodeUnassign))
		r.Post("/{id}/start-review", h.command(decodeStartReview))
		r.Post("/{id}/submit", h.command(decodeSubmit))
		r.Post("/{id}/approve", h.command(decodeApprove))
		r.Post("/{id}/complete", h.command(decodeComplete))
		r.Post("/{id}/decline", h.command(decodeDecline))
		r.Post("/{id}/comments", h.command(decodeComment))
		r.Post("/{id}/mark-refresh", h.command(decodeMarkRefresh))
	})
}

type createRequest struct {
	ApplicationID string `json:"application_id"`
	ApplicantName string `json:"applicant_name"`
	EntityType    string `json:"entity_type"`
	Country       string `json:"country"`
	RiskLevel     string `json:"risk_level"`
	SLADays       int    `json:"sla_days"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	appID, err := id.ParseApplicationID(req.ApplicationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	item, err := h.svc.Create(ctx, service.CreateCommand{
		ApplicationID: appID,
		ApplicantName: req.ApplicantName,
		EntityType:    req.EntityType,
		Country:       req.Country,
		RiskLevel:     req.RiskLevel,
		SLADays:       req.SLADays,
		By:            actorFrom(ctx),
	})
	if err != nil {
		h.writeError(ctx, w, "create", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workItemID, err := id.ParseWorkItemID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	item, err := h.svc.Get(ctx, workItemID)
	if err != nil {
		h.writeError(ctx, w, "get", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

type listResponse struct {
	Items []*models.WorkItem `json:"items"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := models.ListFilter{AssignedToUserID: q.Get("assigned_to")}
	if raw := q.Get("status"); raw != "" {
		status, ok := models.ParseStatus(raw)
		if !ok {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", raw))
			return
		}
		filter.Status = status
	}
	if raw := q.Get("requires_refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "requires_refresh must be a boolean"))
			return
		}
		filter.RequiresRefresh = &v
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}
	var (
		items []*models.WorkItem
		err   error
	)
	if raw := q.Get("application_id"); raw != "" {
		items, err = h.listByApplication(ctx, raw, filter)
	} else {
		items, err = h.svc.List(ctx, filter)
	}
	if err != nil {
		h.writeError(ctx, w, "list", err)
		return
	}
	if items == nil {
		items = []*models.WorkItem{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Items: items})
}

// listByApplication resolves the single work item of an application. An
// application without one, or whose item fails the other filters, yields an
// empty list.
func (h *Handler) listByApplication(ctx context.Context, raw string, filter models.ListFilter) ([]*models.WorkItem, error) {
	applicationID, err := id.ParseApplicationID(raw)
	if err != nil {
		return nil, err
	}
	item, err := h.svc.GetByApplication(ctx, applicationID)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !filter.Matches(item) {
		return nil, nil
	}
	return []*models.WorkItem{item}, nil
}

// commandDecoder builds a command from the request body for one route.
type commandDecoder func(r *http.Request, workItemID id.WorkItemID, by models.Actor) (service.Command, error)

func (h *Handler) command(decode commandDecoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		workItemID, err := id.ParseWorkItemID(chi.URLParam(r, "id"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		cmd, err := decode(r, workItemID, actorFrom(ctx))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		item, err := h.svc.Execute(ctx, cmd)
		if err != nil {
			h.writeError(ctx, w, cmd.Name(), err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, item)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"operation", op,
		"error", err.Error(),
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "work item request failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "work item request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}

func actorFrom(ctx context.Context) models.Actor {
	p := requestcontext.Actor(ctx)
	return models.Actor{UserID: p.UserID, UserName: p.UserName, Role: p.Role}
}
