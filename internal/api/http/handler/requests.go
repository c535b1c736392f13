package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/api/http/dto"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/onboarding"
)

type RequestsHandler struct {
	lifecycle *onboarding.Service
}

func NewRequestsHandler(lifecycle *onboarding.Service) *RequestsHandler {
	return &RequestsHandler{lifecycle: lifecycle}
}

// Create starts a new draft from a sparse field map.
// POST /requests
func (h *RequestsHandler) Create(c *gin.Context) {
	var req dto.DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := onboarding.PatchFromFields(req.Fields)
	r, err := h.lifecycle.CreateDraft(c.Request.Context(), patch, c.GetString("username"))
	if err != nil {
		slog.Error("Failed to create draft", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create draft"})
		return
	}

	c.JSON(http.StatusCreated, toRequestResponse(r))
}

// Update applies a sparse patch to a draft.
// PATCH /requests/:id
func (h *RequestsHandler) Update(c *gin.Context) {
	var req dto.DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := onboarding.PatchFromFields(req.Fields)
	r, err := h.lifecycle.UpdateDraft(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondLifecycleError(c, err, "request is not editable")
		return
	}

	c.JSON(http.StatusOK, toRequestResponse(r))
}

// Submit freezes a draft and moves it to pending review.
// POST /requests/:id/submit
func (h *RequestsHandler) Submit(c *gin.Context) {
	r, fieldErrs, err := h.lifecycle.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, onboarding.ErrValidationFailed) {
			resp := dto.ValidationFailureResponse{Error: "request is incomplete"}
			for _, fe := range fieldErrs {
				resp.Fields = append(resp.Fields, dto.FieldErrorResponse{Field: fe.Field, Message: fe.Message})
			}
			c.JSON(http.StatusUnprocessableEntity, resp)
			return
		}
		respondLifecycleError(c, err, "request cannot be submitted")
		return
	}

	c.JSON(http.StatusOK, toRequestResponse(r))
}

// BeginReview claims a pending request for the calling reviewer.
// POST /requests/:id/review
func (h *RequestsHandler) BeginReview(c *gin.Context) {
	r, err := h.lifecycle.BeginReview(c.Request.Context(), c.Param("id"), c.GetString("username"))
	if err != nil {
		respondLifecycleError(c, err, "request is not pending review")
		return
	}

	c.JSON(http.StatusOK, toRequestResponse(r))
}

// Approve approves a reviewed request and returns the provisioning job id.
// POST /requests/:id/approve
func (h *RequestsHandler) Approve(c *gin.Context) {
	var req dto.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, jobID, err := h.lifecycle.Approve(c.Request.Context(), c.Param("id"), c.GetString("username"), req.Comments)
	if err != nil {
		if r != nil {
			// Approved but not enqueued; surface the partial outcome.
			slog.Error("Approved without provisioning job", "request_id", r.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "approved but provisioning could not be scheduled"})
			return
		}
		respondLifecycleError(c, err, "request cannot be approved")
		return
	}

	c.JSON(http.StatusAccepted, dto.ApproveResponse{
		Request: toRequestResponse(r),
		JobID:   jobID,
	})
}

// Reject rejects a reviewed request.
// POST /requests/:id/reject
func (h *RequestsHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.lifecycle.Reject(c.Request.Context(), c.Param("id"), c.GetString("username"), req.Reason)
	if err != nil {
		respondLifecycleError(c, err, "request cannot be rejected")
		return
	}

	c.JSON(http.StatusOK, toRequestResponse(r))
}

// Cancel withdraws a request before provisioning.
// POST /requests/:id/cancel
func (h *RequestsHandler) Cancel(c *gin.Context) {
	r, err := h.lifecycle.Cancel(c.Request.Context(), c.Param("id"), c.GetString("username"))
	if err != nil {
		respondLifecycleError(c, err, "request cannot be cancelled")
		return
	}

	c.JSON(http.StatusOK, toRequestResponse(r))
}

// Get returns one request.
// GET /requests/:id
func (h *RequestsHandler) Get(c *gin.Context) {
	r, err := h.lifecycle.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondLifecycleError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, toRequestResponse(r))
}

// List returns pending requests, or the owner's requests when the owner
// query parameter is set.
// GET /requests?owner=...
func (h *RequestsHandler) List(c *gin.Context) {
	var (
		requests []onboarding.Request
		err      error
	)
	if owner := c.Query("owner"); owner != "" {
		requests, err = h.lifecycle.GetRequestsByOwner(c.Request.Context(), owner)
	} else {
		requests, err = h.lifecycle.GetPendingRequests(c.Request.Context())
	}
	if err != nil {
		slog.Error("Failed to list requests", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list requests"})
		return
	}

	resp := dto.ListRequestsResponse{Requests: make([]dto.RequestResponse, len(requests))}
	for i := range requests {
		resp.Requests[i] = toRequestResponse(&requests[i])
	}
	c.JSON(http.StatusOK, resp)
}

// Progress returns the draft completion report for UI rendering.
// GET /requests/:id/progress
func (h *RequestsHandler) Progress(c *gin.Context) {
	progress, err := h.lifecycle.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondLifecycleError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, dto.ProgressResponse{
		PercentComplete: progress.PercentComplete,
		CurrentPhase:    progress.CurrentPhase,
		MissingFields:   progress.MissingFields,
	})
}

// History returns the persisted transition log for a request.
// GET /requests/:id/history
func (h *RequestsHandler) History(c *gin.Context) {
	entries, err := h.lifecycle.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondLifecycleError(c, err, "")
		return
	}

	resp := dto.HistoryResponse{RequestID: c.Param("id")}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, dto.HistoryEntryResponse{
			FromStatus: string(entry.FromStatus),
			ToStatus:   string(entry.ToStatus),
			Actor:      entry.Actor,
			Note:       entry.Note,
			OccurredAt: entry.OccurredAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Stats returns request counts by status.
// GET /stats
func (h *RequestsHandler) Stats(c *gin.Context) {
	stats, err := h.lifecycle.GetStats(c.Request.Context())
	if err != nil {
		slog.Error("Failed to compute stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}

	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}
	c.JSON(http.StatusOK, dto.StatsResponse{Total: stats.Total, ByStatus: byStatus})
}

func respondLifecycleError(c *gin.Context, err error, conflictMsg string) {
	switch {
	case errors.Is(err, onboarding.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
	case errors.Is(err, onboarding.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": conflictMsg})
	default:
		slog.Error("Lifecycle operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func toRequestResponse(r *onboarding.Request) dto.RequestResponse {
	return dto.RequestResponse{
		ID:                    r.ID,
		Status:                string(r.Status),
		MissionName:           r.MissionName,
		MissionOwner:          r.MissionOwner,
		OwnerEmail:            r.OwnerEmail,
		SubscriptionID:        r.SubscriptionID,
		Environment:           r.Environment,
		Region:                r.Region,
		VNetCIDR:              r.VNetCIDR,
		RequestedServices:     r.RequestedServices,
		ClassificationLevel:   r.ClassificationLevel,
		ComplianceFrameworks:  r.ComplianceFrameworks,
		EstimatedUsers:        r.EstimatedUsers,
		BusinessJustification: r.BusinessJustification,
		CreatedAt:             r.CreatedAt,
		LastUpdatedAt:         r.LastUpdatedAt,
		SubmittedAt:           r.SubmittedAt,
		ReviewedAt:            r.ReviewedAt,
		ApprovedAt:            r.ApprovedAt,
		RejectedAt:            r.RejectedAt,
		ProvisionedAt:         r.ProvisionedAt,
		CompletedAt:           r.CompletedAt,
		ApprovedBy:            r.ApprovedBy,
		RejectedBy:            r.RejectedBy,
		ApprovalComments:      r.ApprovalComments,
		RejectionReason:       r.RejectionReason,
		ProvisioningJobID:     r.ProvisioningJobID,
		ProvisionedResources:  r.ProvisionedResources,
		ProvisioningError:     r.ProvisioningError,
	}
}
