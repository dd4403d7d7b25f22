package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kevinzhou/applyflow/internal/domain"
	"github.com/kevinzhou/applyflow/internal/extraction"
	"github.com/kevinzhou/applyflow/internal/logger"
)

// Extractor is the text-extraction pipeline boundary.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mediaType, filename string) (*extraction.Result, error)
}

// OutcomeKind tags the three possible results of document ingestion.
type OutcomeKind string

const (
	OutcomeExtracted  OutcomeKind = "extracted"
	OutcomeOCROffered OutcomeKind = "ocr_offered"
	OutcomeRejected   OutcomeKind = "rejected"
)

// IngestionOutcome is the tagged result of ingesting one upload.
// Exactly one branch is populated, selected by Kind.
type IngestionOutcome struct {
	Kind OutcomeKind `json:"kind"`

	// Extracted
	Text     string `json:"text,omitempty"`
	Strategy string `json:"strategy,omitempty"`

	// OCR offered
	JobID    string          `json:"job_id,omitempty"`
	JobState domain.JobState `json:"job_state,omitempty"`
	JobError string          `json:"job_error,omitempty"`

	// Rejected
	RejectReason string `json:"reject_reason,omitempty"`

	// Diagnostics from the extraction pipeline, present for extracted
	// and ocr_offered outcomes.
	Attempts []extraction.Attempt `json:"attempts,omitempty"`
}

// IngestService is the single entry point for document ingestion: run the
// extraction pipeline, and only when it comes back insufficient persist
// the upload and hand it to the OCR orchestrator. Extraction and OCR are
// strictly sequenced, never run for the same upload in parallel.
type IngestService struct {
	pipeline Extractor
	jobs     *OCRJobService
	logger   *logger.Logger
}

// NewIngestService creates a new ingestion facade.
func NewIngestService(pipeline Extractor, jobs *OCRJobService, log *logger.Logger) *IngestService {
	if log == nil {
		log = logger.Default()
	}
	return &IngestService{
		pipeline: pipeline,
		jobs:     jobs,
		logger:   log,
	}
}

// Ingest turns an uploaded document into text or an OCR job.
//
// Unsupported media types and empty uploads are rejected before any
// storage interaction. If the pipeline yields passing text the document
// is discarded and the text returned. Otherwise the bytes are persisted
// and an OCR job requested; a submission failure still yields an
// OCROffered outcome whose JobState is failed, so the caller can tell the
// user immediately instead of polling a dead job.
func (s *IngestService) Ingest(ctx context.Context, data []byte, mediaType, filename, ownerID string) (*IngestionOutcome, error) {
	ctx = logger.SetOwnerID(ctx, ownerID)

	res, err := s.pipeline.Extract(ctx, data, mediaType, filename)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedMediaType) || errors.Is(err, domain.ErrEmptyDocument) {
			logger.FromContext(ctx).WithField("media_type", mediaType).
				Info("Upload rejected")
			return &IngestionOutcome{
				Kind:         OutcomeRejected,
				RejectReason: err.Error(),
			}, nil
		}
		return nil, fmt.Errorf("extract text: %w", err)
	}

	if res.Sufficient() {
		return &IngestionOutcome{
			Kind:     OutcomeExtracted,
			Text:     res.Text,
			Strategy: res.StrategyUsed,
			Attempts: res.Attempts,
		}, nil
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"likely_scanned": res.LikelyScanned,
		"attempts":       len(res.Attempts),
	}).Info("Extraction insufficient, escalating to OCR")

	ticket, err := s.jobs.RequestJob(ctx, &JobRequest{
		OwnerID:   ownerID,
		Data:      data,
		MediaType: mediaType,
		Filename:  filename,
	})
	if err != nil {
		var subErr *domain.SubmissionError
		if ticket != nil && errors.As(err, &subErr) {
			// The job row exists in failed state; surface it so the
			// caller sees the failure without polling.
			return &IngestionOutcome{
				Kind:     OutcomeOCROffered,
				JobID:    ticket.JobID,
				JobState: ticket.State,
				JobError: subErr.Reason,
				Attempts: res.Attempts,
			}, nil
		}
		return nil, fmt.Errorf("request ocr job: %w", err)
	}

	return &IngestionOutcome{
		Kind:     OutcomeOCROffered,
		JobID:    ticket.JobID,
		JobState: ticket.State,
		Attempts: res.Attempts,
	}, nil
}
