package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kevinzhou/applyflow/internal/domain"
	"gorm.io/gorm"
)

// OCRJobRepository persists OCR job records and enforces their state
// machine at the row level. All mutations are single-row guarded updates,
// so a state never changes without its companion fields.
type OCRJobRepository struct {
	db *gorm.DB

	// reuseTTL bounds how long a succeeded job counts as a reusable
	// cached result for the same (owner, content key).
	reuseTTL time.Duration
}

// NewOCRJobRepository creates a new OCRJobRepository.
func NewOCRJobRepository(db *gorm.DB, reuseTTL time.Duration) *OCRJobRepository {
	return &OCRJobRepository{db: db, reuseTTL: reuseTTL}
}

// CreateIfAbsent returns the live job for (ownerID, contentKey) if one
// exists, otherwise creates a new job in the queued state. Live means
// queued/running, or succeeded within the reuse TTL.
//
// Concurrent callers racing on the same key are resolved by the partial
// unique index on in-flight jobs: the loser's insert fails with a
// duplicate key error and falls back to re-reading the winner's row.
func (r *OCRJobRepository) CreateIfAbsent(ctx context.Context, ownerID, contentKey, linkedScanID string) (*domain.OcrJob, bool, error) {
	if job, err := r.findLive(ctx, ownerID, contentKey); err == nil {
		return job, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("lookup live job: %w", err)
	}

	job := &domain.OcrJob{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		ContentKey:   contentKey,
		State:        domain.JobStateQueued,
		LinkedScanID: linkedScanID,
	}
	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost the creation race; return the winner's job.
		winner, ferr := r.findLive(ctx, ownerID, contentKey)
		if ferr != nil {
			return nil, false, fmt.Errorf("re-read after create race: %w", ferr)
		}
		return winner, false, nil
	}
	return nil, false, fmt.Errorf("create job: %w", err)
}

// findLive returns the most recent reusable job for (ownerID, contentKey):
// any queued/running job, or a succeeded job newer than the reuse TTL.
// Failed jobs never block a new attempt.
func (r *OCRJobRepository) findLive(ctx context.Context, ownerID, contentKey string) (*domain.OcrJob, error) {
	var job domain.OcrJob
	cutoff := time.Now().Add(-r.reuseTTL)
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND content_key = ?", ownerID, contentKey).
		Where("state IN ? OR (state = ? AND updated_at > ?)",
			[]domain.JobState{domain.JobStateQueued, domain.JobStateRunning},
			domain.JobStateSucceeded, cutoff).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetByID retrieves a job by id, scoped to its owner. Lookups for another
// owner's job fail with domain.ErrJobNotFound, indistinguishable from a
// nonexistent id.
func (r *OCRJobRepository) GetByID(ctx context.Context, jobID, ownerID string) (*domain.OcrJob, error) {
	var job domain.OcrJob
	err := r.db.WithContext(ctx).
		First(&job, "id = ? AND owner_id = ?", jobID, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// MarkRunning transitions queued -> running and records the external job
// id. The external id is set exactly once; a job already past queued is
// left untouched and ErrInvalidTransition is returned.
func (r *OCRJobRepository) MarkRunning(ctx context.Context, jobID, externalJobID string) error {
	res := r.db.WithContext(ctx).Model(&domain.OcrJob{}).
		Where("id = ? AND state = ?", jobID, domain.JobStateQueued).
		Updates(map[string]interface{}{
			"state":           domain.JobStateRunning,
			"external_job_id": externalJobID,
		})
	return transitionResult(res)
}

// MarkSucceeded transitions a non-terminal job to succeeded and stores the
// OCR result text in the same update.
func (r *OCRJobRepository) MarkSucceeded(ctx context.Context, jobID, text string) error {
	res := r.db.WithContext(ctx).Model(&domain.OcrJob{}).
		Where("id = ? AND state IN ?", jobID,
			[]domain.JobState{domain.JobStateQueued, domain.JobStateRunning}).
		Updates(map[string]interface{}{
			"state":       domain.JobStateSucceeded,
			"result_text": text,
		})
	return transitionResult(res)
}

// MarkFailed transitions a non-terminal job to failed and stores the error
// message in the same update.
func (r *OCRJobRepository) MarkFailed(ctx context.Context, jobID, message string) error {
	res := r.db.WithContext(ctx).Model(&domain.OcrJob{}).
		Where("id = ? AND state IN ?", jobID,
			[]domain.JobState{domain.JobStateQueued, domain.JobStateRunning}).
		Updates(map[string]interface{}{
			"state":         domain.JobStateFailed,
			"error_message": message,
		})
	return transitionResult(res)
}

func transitionResult(res *gorm.DB) error {
	if res.Error != nil {
		return fmt.Errorf("update job state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}
