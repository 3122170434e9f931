// Package api provides HTTP handlers for the remediation service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/history"
	"github.com/opsforge/remediator/internal/orchestration"
	"github.com/opsforge/remediator/internal/pkg/ctxlog"
	"github.com/opsforge/remediator/internal/pkg/httputil"
)

// Orchestrator is the engine surface the handler needs.
type Orchestrator interface {
	Submit(ctx context.Context, req domain.RemediationRequest) (string, error)
	SubmitBatch(ctx context.Context, br orchestration.BatchRequest) ([]string, error)
	GetStatus(ctx context.Context, instanceID string) (*orchestration.InstanceStatus, error)
	Cancel(ctx context.Context, req orchestration.CancelRequest) error
	Purge(ctx context.Context, before time.Time) (int, error)
}

// Handler handles HTTP requests for the remediation service.
type Handler struct {
	engine    Orchestrator
	history   history.Repository
	validator *validator.Validate
}

// NewHandler creates a new remediation handler.
func NewHandler(engine Orchestrator, historyRepo history.Repository) *Handler {
	return &Handler{
		engine:    engine,
		history:   historyRepo,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all HTTP routes for the remediation service.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/remediations", func(r chi.Router) {
		r.Post("/", h.Submit)
		r.Post("/batch", h.SubmitBatch)
		r.Get("/{id}", h.GetStatus)
		r.Post("/{id}/cancel", h.Cancel)
	})

	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.QueryHistory)
		r.Get("/statistics", h.GetStatistics)
		r.Delete("/", h.Purge)
	})
}

// SubmitRequest represents the request body for submitting a remediation.
type SubmitRequest struct {
	TenantID      string         `json:"tenant_id" validate:"required"`
	IncidentID    string         `json:"incident_id" validate:"required"`
	Platform      string         `json:"platform" validate:"required"`
	Action        string         `json:"action" validate:"required"`
	Parameters    map[string]any `json:"parameters"`
	InitiatedBy   string         `json:"initiated_by" validate:"required"`
	Priority      string         `json:"priority" validate:"omitempty,oneof=Low Medium High Critical"`
	Justification string         `json:"justification"`
}

// ToDomain converts the request to a domain model.
func (r *SubmitRequest) ToDomain() domain.RemediationRequest {
	priority := domain.Priority(r.Priority)
	if priority == "" {
		priority = domain.PriorityMedium
	}

	return domain.RemediationRequest{
		TenantID:      r.TenantID,
		IncidentID:    r.IncidentID,
		Platform:      domain.Platform(r.Platform),
		Action:        domain.Action(r.Action),
		Parameters:    r.Parameters,
		InitiatedBy:   r.InitiatedBy,
		Priority:      priority,
		Justification: r.Justification,
	}
}

// Submit handles POST /remediations request. The remediation runs
// asynchronously; the instance id addresses it afterwards.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	id, err := h.engine.Submit(r.Context(), req.ToDomain())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusAccepted, map[string]string{"instance_id": id})
}

// SubmitBatchRequest represents the request body for a batch submission.
type SubmitBatchRequest struct {
	TenantID      string           `json:"tenant_id" validate:"required"`
	IncidentID    string           `json:"incident_id" validate:"required"`
	Platform      string           `json:"platform" validate:"required"`
	Action        string           `json:"action" validate:"required"`
	Targets       []map[string]any `json:"targets" validate:"required,min=1,max=100"`
	InitiatedBy   string           `json:"initiated_by" validate:"required"`
	Priority      string           `json:"priority" validate:"omitempty,oneof=Low Medium High Critical"`
	Justification string           `json:"justification"`
}

// SubmitBatch handles POST /remediations/batch request. Each target
// becomes its own instance.
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	priority := domain.Priority(req.Priority)
	if priority == "" {
		priority = domain.PriorityMedium
	}

	ids, err := h.engine.SubmitBatch(r.Context(), orchestration.BatchRequest{
		Platform:      domain.Platform(req.Platform),
		Action:        domain.Action(req.Action),
		TenantID:      req.TenantID,
		IncidentID:    req.IncidentID,
		InitiatedBy:   req.InitiatedBy,
		Priority:      priority,
		Justification: req.Justification,
		Targets:       req.Targets,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusAccepted, map[string]any{
		"instance_ids": ids,
		"submitted":    len(ids),
	})
}

// GetStatus handles GET /remediations/{id} request.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := h.engine.GetStatus(r.Context(), id)
	if err != nil {
		h.handleEngineError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, status)
}

// CancelRequest represents the request body for cancelling a remediation.
type CancelRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
	Reason      string `json:"reason" validate:"required"`
	Force       bool   `json:"force"`
}

// Cancel handles POST /remediations/{id}/cancel request.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	err := h.engine.Cancel(r.Context(), orchestration.CancelRequest{
		InstanceID: id,
		Actor:      req.CancelledBy,
		Reason:     req.Reason,
		Terminate:  req.Force,
	})
	if err != nil {
		h.handleEngineError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]string{"instance_id": id, "status": "cancelled"})
}

// QueryHistory handles GET /history request.
func (h *Handler) QueryHistory(w http.ResponseWriter, r *http.Request) {
	q, err := parseHistoryQuery(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.history.Search(r.Context(), q)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, page)
}

// GetStatistics handles GET /history/statistics request.
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	filter := history.StatsFilter{
		TenantID: r.URL.Query().Get("tenant_id"),
	}

	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "from must be an RFC3339 timestamp")
			return
		}
		filter.From = &t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "to must be an RFC3339 timestamp")
			return
		}
		filter.To = &t
	}

	stats, err := h.history.Statistics(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}

// Purge handles DELETE /history request. Requires an explicit cutoff;
// there is no default retention window at the API level.
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	before := r.URL.Query().Get("before")
	if before == "" {
		httputil.Error(w, http.StatusBadRequest, "before query parameter is required")
		return
	}

	cutoff, err := time.Parse(time.RFC3339, before)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "before must be an RFC3339 timestamp")
		return
	}

	removed, err := h.engine.Purge(r.Context(), cutoff)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	ctxlog.With(r.Context(), "before", cutoff, "removed", removed).Info("history purged")
	httputil.Success(w, http.StatusOK, map[string]int{"removed": removed})
}

func parseHistoryQuery(r *http.Request) (history.Query, error) {
	var q history.Query
	values := r.URL.Query()

	strFilter := func(name string) *string {
		if v := values.Get(name); v != "" {
			return &v
		}
		return nil
	}

	q.TenantID = strFilter("tenant_id")
	q.IncidentID = strFilter("incident_id")
	q.InitiatedBy = strFilter("initiated_by")

	if v := values.Get("platform"); v != "" {
		p := domain.Platform(v)
		q.Platform = &p
	}
	if v := values.Get("action"); v != "" {
		a := domain.Action(v)
		q.Action = &a
	}
	if v := values.Get("status"); v != "" {
		s := domain.ResponseStatus(v)
		q.Status = &s
	}

	if v := values.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, errors.New("from must be an RFC3339 timestamp")
		}
		q.From = &t
	}
	if v := values.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, errors.New("to must be an RFC3339 timestamp")
		}
		q.To = &t
	}

	if v := values.Get("sort_by"); v != "" {
		switch history.SortField(v) {
		case history.SortByInitiatedAt, history.SortByCompletedAt, history.SortByPlatform:
			q.SortBy = history.SortField(v)
		default:
			return q, errors.New("sort_by must be one of initiated_at, completed_at, platform")
		}
	}
	q.SortDesc = values.Get("sort_desc") == "true"

	if v := values.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, errors.New("page_size must be a positive integer")
		}
		if n > 500 {
			n = 500
		}
		q.PageSize = n
	}
	if v := values.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, errors.New("page must be a positive integer")
		}
		q.PageNumber = n
	}

	return q, nil
}

func (h *Handler) handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: orchestration.ErrInstanceNotFound, Status: http.StatusNotFound},
		{Error: orchestration.ErrInstanceTerminal, Status: http.StatusConflict},
		{Error: history.ErrEntryNotFound, Status: http.StatusNotFound},
	})
}
