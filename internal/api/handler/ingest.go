package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/kevinzhou/applyflow/internal/logger"
	"github.com/kevinzhou/applyflow/internal/service"
)

// Ingestor is the ingestion facade consumed by the handler.
type Ingestor interface {
	Ingest(ctx context.Context, data []byte, mediaType, filename, ownerID string) (*service.IngestionOutcome, error)
}

// IngestHandler handles document upload and ingestion.
type IngestHandler struct {
	ingest         Ingestor
	maxUploadBytes int64
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(ingest Ingestor, maxUploadBytes int64) *IngestHandler {
	return &IngestHandler{
		ingest:         ingest,
		maxUploadBytes: maxUploadBytes,
	}
}

// Ingest handles POST /api/v1/documents/ingest.
//
// Expects a multipart upload with a "file" field. The owner comes from
// the X-User-ID header set by the upstream auth layer.
func (h *IngestHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID := c.GetHeader("X-User-ID")
	if ownerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "file exceeds upload size limit",
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}

	mediaType := fileHeader.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		// Browsers don't always set a useful part type; fall back to the
		// file extension before rejecting.
		if byExt := mime.TypeByExtension(filepath.Ext(fileHeader.Filename)); byExt != "" {
			mediaType = byExt
		}
	}

	outcome, err := h.ingest.Ingest(ctx, data, mediaType, fileHeader.Filename, ownerID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Ingestion failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed"})
		return
	}

	switch outcome.Kind {
	case service.OutcomeExtracted:
		c.JSON(http.StatusOK, outcome)
	case service.OutcomeOCROffered:
		c.JSON(http.StatusAccepted, outcome)
	default: // service.OutcomeRejected
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error":  outcome.RejectReason,
			"detail": "upload a PDF, Word (.docx), or plain text document",
		})
	}
}
