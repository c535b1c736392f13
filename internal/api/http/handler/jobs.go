package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/api/http/dto"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/orchestrator"
)

type JobsHandler struct {
	orchestrator *orchestrator.Service
}

func NewJobsHandler(orch *orchestrator.Service) *JobsHandler {
	return &JobsHandler{orchestrator: orch}
}

// Status returns the pollable state of one provisioning job.
// GET /jobs/:id
func (h *JobsHandler) Status(c *gin.Context) {
	view, err := h.orchestrator.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, orchestrator.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		slog.Error("Failed to load job status", "job_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, dto.JobStatusResponse{
		JobID:                view.JobID,
		RequestID:            view.RequestID,
		Status:               string(view.Status),
		PercentComplete:      view.PercentComplete,
		CurrentStep:          view.CurrentStep,
		ProvisionedResources: view.ProvisionedResources,
		ErrorMessage:         view.ErrorMessage,
	})
}
