package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevinzhou/applyflow/internal/domain"
	"github.com/kevinzhou/applyflow/internal/logger"
	"github.com/kevinzhou/applyflow/internal/service"
)

// StatusChecker is the orchestrator surface consumed by the handler.
type StatusChecker interface {
	CheckStatus(ctx context.Context, jobID, ownerID string) (*service.JobStatus, error)
}

// OCRJobHandler handles OCR job status polling.
type OCRJobHandler struct {
	jobs StatusChecker
}

// NewOCRJobHandler creates a new OCR job handler.
func NewOCRJobHandler(jobs StatusChecker) *OCRJobHandler {
	return &OCRJobHandler{jobs: jobs}
}

// Status handles GET /api/v1/ocr/jobs/:id.
//
// Jobs are owner-scoped: a valid id belonging to another user answers 404
// exactly like a nonexistent one.
func (h *OCRJobHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID := c.GetHeader("X-User-ID")
	if ownerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	jobID := c.Param("id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job id is required"})
		return
	}

	status, err := h.jobs.CheckStatus(ctx, jobID, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		var pollErr *domain.PollError
		if errors.As(err, &pollErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "ocr service error"})
			return
		}
		logger.FromContext(ctx).WithError(err).Error("Status check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status check failed"})
		return
	}

	c.JSON(http.StatusOK, status)
}
