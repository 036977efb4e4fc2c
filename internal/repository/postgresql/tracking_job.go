package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
)

type TrackingJobRepo struct {
	db db.DB
}

func NewTrackingJobRepo(db db.DB) storage.TrackingJobRepository {
	return &TrackingJobRepo{db: db}
}

func (r *TrackingJobRepo) Create(ctx context.Context, jobs []*repository.TrackingJob) error {
	if len(jobs) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.db, func(tx db.Tx) error {
		for _, job := range jobs {
			if job.ID == uuid.Nil {
				job.ID = uuid.New()
			}
			if job.Status == "" {
				job.Status = repository.JobStatusPending
			}
			_, err := tx.Exec(ctx, `
                INSERT INTO tracking_jobs (
                    id, tracking_cache_id, job_type, priority, status, scheduled_for, created_at, updated_at
                ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            `, job.ID, job.TrackingCacheID, job.JobType, job.Priority, job.Status,
				job.ScheduledFor, job.CreatedAt, job.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert tracking job: %w", err)
			}
		}
		return nil
	})
}

// ClaimDueTx locks pending jobs scheduled at or before now and marks them
// PROCESSING inside tx. Highest priority first, then earliest schedule.
func (r *TrackingJobRepo) ClaimDueTx(ctx context.Context, tx db.Tx, now time.Time, limit int) ([]*repository.TrackingJob, error) {
	var jobs []*repository.TrackingJob
	err := tx.Select(ctx, &jobs, `
        SELECT id, tracking_cache_id, job_type, priority, status, scheduled_for,
               last_error, created_at, updated_at, completed_at
        FROM tracking_jobs
        WHERE status = $1 AND scheduled_for <= $2
        ORDER BY priority DESC, scheduled_for ASC
        LIMIT $3
        FOR UPDATE SKIP LOCKED
    `, repository.JobStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select due tracking jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID.String()
		job.Status = repository.JobStatusProcessing
	}
	_, err = tx.Exec(ctx, `
        UPDATE tracking_jobs SET status = $1, updated_at = $2 WHERE id = ANY($3)
    `, repository.JobStatusProcessing, now, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to mark tracking jobs as processing: %w", err)
	}
	return jobs, nil
}

func (r *TrackingJobRepo) UpdateStatus(ctx context.Context, ids []uuid.UUID, status repository.JobStatus, lastError *string, completedAt *time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
        UPDATE tracking_jobs
        SET status = $1, last_error = $2, completed_at = $3, updated_at = now()
        WHERE id = ANY($4)
    `, status, lastError, completedAt, uuidStrings(ids))
	if err != nil {
		return fmt.Errorf("failed to update tracking jobs: %w", err)
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
