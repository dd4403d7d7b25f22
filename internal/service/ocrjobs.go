package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kevinzhou/applyflow/internal/domain"
	"github.com/kevinzhou/applyflow/internal/logger"
	"github.com/kevinzhou/applyflow/internal/ocr"
)

// JobStore is the persistence contract for OCR jobs. CreateIfAbsent is
// the dedup point: concurrent requests for the same (owner, content key)
// must converge on a single job.
type JobStore interface {
	CreateIfAbsent(ctx context.Context, ownerID, contentKey, linkedScanID string) (*domain.OcrJob, bool, error)
	GetByID(ctx context.Context, jobID, ownerID string) (*domain.OcrJob, error)
	MarkRunning(ctx context.Context, jobID, externalJobID string) error
	MarkSucceeded(ctx context.Context, jobID, text string) error
	MarkFailed(ctx context.Context, jobID, message string) error
}

// BlobStore persists uploaded document bytes; the orchestrator is the
// only writer.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// OCRClient is the external OCR service boundary.
type OCRClient interface {
	Submit(ctx context.Context, contentKey string) (string, error)
	Poll(ctx context.Context, externalJobID string) (*ocr.PollResult, error)
}

// OCRJobService orchestrates the OCR job state machine: create or reuse a
// job per (owner, content key), submit it to the external service, and
// advance its state on caller-driven polls. There are no background
// workers; every state change happens inside RequestJob or CheckStatus.
type OCRJobService struct {
	store  JobStore
	blobs  BlobStore
	client OCRClient
	logger *logger.Logger
}

// NewOCRJobService creates a new OCR job orchestrator.
func NewOCRJobService(store JobStore, blobs BlobStore, client OCRClient, log *logger.Logger) *OCRJobService {
	if log == nil {
		log = logger.Default()
	}
	return &OCRJobService{
		store:  store,
		blobs:  blobs,
		client: client,
		logger: log,
	}
}

// JobRequest asks for OCR of a document, given either raw bytes (not yet
// persisted) or the content key of an already-stored document.
type JobRequest struct {
	OwnerID      string
	ContentKey   string // set when the document is already in blob storage
	Data         []byte // set when bytes still need persisting
	MediaType    string
	Filename     string
	LinkedScanID string
}

// JobTicket is the synchronous answer to a job request.
type JobTicket struct {
	JobID      string          `json:"job_id"`
	ContentKey string          `json:"content_key"`
	State      domain.JobState `json:"state"`
	Reused     bool            `json:"reused"`
}

// RequestJob creates or reuses an OCR job for the document.
//
// Raw bytes are persisted to blob storage first; that is the only point
// where an upload becomes durable. An existing live job (in-flight, or
// succeeded within the reuse TTL) is returned as-is with no external
// submission, so concurrent or repeated requests never launch redundant
// paid OCR runs. A fresh job is submitted immediately: on success it
// moves queued -> running, on submission failure it moves to failed and
// the error is returned alongside the ticket so the caller learns
// synchronously.
func (s *OCRJobService) RequestJob(ctx context.Context, req *JobRequest) (*JobTicket, error) {
	key := req.ContentKey
	if key == "" {
		if len(req.Data) == 0 {
			return nil, domain.ErrEmptyDocument
		}
		key = buildContentKey(req.OwnerID, req.Filename, req.Data)
		if err := s.blobs.Put(ctx, key, req.Data, req.MediaType); err != nil {
			return nil, fmt.Errorf("persist document: %w", err)
		}
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldContentKey: key,
			logger.FieldSize:       len(req.Data),
		}).Info("Document persisted for OCR")
	}

	job, created, err := s.store.CreateIfAbsent(ctx, req.OwnerID, key, req.LinkedScanID)
	if err != nil {
		return nil, fmt.Errorf("create or reuse job: %w", err)
	}

	if !created {
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldJobID:      job.ID,
			logger.FieldContentKey: key,
			logger.FieldStatus:     string(job.State),
		}).Info("Reusing existing OCR job")
		return &JobTicket{JobID: job.ID, ContentKey: key, State: job.State, Reused: true}, nil
	}

	externalID, err := s.client.Submit(ctx, key)
	if err != nil {
		if markErr := s.store.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			logger.FromContext(ctx).WithField(logger.FieldJobID, job.ID).
				WithError(markErr).Error("Failed to record submission failure")
		}
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldJobID:      job.ID,
			logger.FieldContentKey: key,
		}).WithError(err).Error("OCR submission failed")
		return &JobTicket{JobID: job.ID, ContentKey: key, State: domain.JobStateFailed}, err
	}

	if err := s.store.MarkRunning(ctx, job.ID, externalID); err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldJobID:      job.ID,
		logger.FieldContentKey: key,
	}).Info("OCR job submitted")
	return &JobTicket{JobID: job.ID, ContentKey: key, State: domain.JobStateRunning}, nil
}

// JobStatus is the answer to a status poll.
type JobStatus struct {
	JobID string          `json:"job_id"`
	State domain.JobState `json:"state"`
	Text  string          `json:"text,omitempty"`
	Error string          `json:"error,omitempty"`
}

// CheckStatus reports a job's state, lazily advancing it from the
// external service when needed.
//
// Terminal states answer straight from the store with no external call.
// A queued job is reported as running (still working, nothing to poll
// yet). A running job is polled by external id: a terminal outcome is
// persisted atomically with its payload; a transient poll error leaves
// stored state untouched and reports running so the next poll retries;
// a non-retryable poll error is returned without mutating the job.
func (s *OCRJobService) CheckStatus(ctx context.Context, jobID, ownerID string) (*JobStatus, error) {
	job, err := s.store.GetByID(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}

	switch job.State {
	case domain.JobStateSucceeded:
		return &JobStatus{JobID: job.ID, State: domain.JobStateSucceeded, Text: job.ResultText}, nil
	case domain.JobStateFailed:
		return &JobStatus{JobID: job.ID, State: domain.JobStateFailed, Error: job.ErrorMessage}, nil
	case domain.JobStateQueued:
		// Not yet submitted; nothing to poll in this window.
		return &JobStatus{JobID: job.ID, State: domain.JobStateRunning}, nil
	}

	res, err := s.client.Poll(ctx, job.ExternalJobID)
	if err != nil {
		var pollErr *domain.PollError
		if errors.As(err, &pollErr) && pollErr.Transient {
			logger.FromContext(ctx).WithField(logger.FieldJobID, job.ID).
				WithError(err).Warn("Transient OCR poll error, reporting still running")
			return &JobStatus{JobID: job.ID, State: domain.JobStateRunning}, nil
		}
		logger.FromContext(ctx).WithField(logger.FieldJobID, job.ID).
			WithError(err).Error("OCR poll failed")
		return nil, err
	}

	switch res.State {
	case ocr.PollStateProcessing:
		return &JobStatus{JobID: job.ID, State: domain.JobStateRunning}, nil

	case ocr.PollStateCompleted:
		if err := s.store.MarkSucceeded(ctx, job.ID, res.Text); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				// Another poll won the terminal transition; report what
				// it persisted.
				return s.storedStatus(ctx, job.ID, ownerID)
			}
			return nil, fmt.Errorf("persist ocr result: %w", err)
		}
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldJobID: job.ID,
			logger.FieldChars: len(res.Text),
		}).Info("OCR job succeeded")
		return &JobStatus{JobID: job.ID, State: domain.JobStateSucceeded, Text: res.Text}, nil

	default: // ocr.PollStateFailed
		if err := s.store.MarkFailed(ctx, job.ID, res.FailureReason); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return s.storedStatus(ctx, job.ID, ownerID)
			}
			return nil, fmt.Errorf("persist ocr failure: %w", err)
		}
		logger.FromContext(ctx).WithField(logger.FieldJobID, job.ID).
			WithField("reason", res.FailureReason).Info("OCR job failed")
		return &JobStatus{JobID: job.ID, State: domain.JobStateFailed, Error: res.FailureReason}, nil
	}
}

// storedStatus answers from the persisted job record. Used after losing a
// terminal-transition race to a concurrent poll, whose outcome is now the
// job's truth.
func (s *OCRJobService) storedStatus(ctx context.Context, jobID, ownerID string) (*JobStatus, error) {
	job, err := s.store.GetByID(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	status := &JobStatus{JobID: job.ID, State: job.State}
	switch job.State {
	case domain.JobStateSucceeded:
		status.Text = job.ResultText
	case domain.JobStateFailed:
		status.Error = job.ErrorMessage
	case domain.JobStateQueued:
		status.State = domain.JobStateRunning
	}
	return status, nil
}

// buildContentKey derives an owner-scoped blob key from the document
// content. The key is a hash of the bytes, so re-uploading the same
// document lands on the same key and converges on the same OCR job;
// writing it twice to blob storage is a harmless overwrite.
func buildContentKey(ownerID, filename string, data []byte) string {
	sum := md5.Sum(data)
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("documents/%s/%s%s", ownerID, hex.EncodeToString(sum[:]), ext)
}
