package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
)

const DefaultJobType = "refresh"

type EnqueueRequest struct {
	ShipmentIDs  []string
	JobType      string
	Priority     int
	ScheduledFor *time.Time
	ActorID      string
}

// Queue puts shipments on the tracking job queue for the worker.
type Queue struct {
	jobs    storage.TrackingJobRepository
	audit   AuditWriter
	logger  *zap.Logger
	timeNow func() time.Time
}

func NewQueue(jobs storage.TrackingJobRepository, auditWriter AuditWriter, logger *zap.Logger) *Queue {
	return &Queue{jobs: jobs, audit: auditWriter, logger: logger, timeNow: time.Now}
}

// Enqueue creates one pending job per distinct shipment id and returns how
// many were queued. Jobs without a schedule are due immediately.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (int, error) {
	ids := unique(req.ShipmentIDs)
	if len(ids) == 0 {
		return 0, apperr.ValidationFields("trackingCacheIds must not be empty", map[string]string{"trackingCacheIds": "required"})
	}
	jobType := req.JobType
	if jobType == "" {
		jobType = DefaultJobType
	}
	now := q.timeNow().UTC()
	scheduled := now
	if req.ScheduledFor != nil {
		scheduled = req.ScheduledFor.UTC()
	}

	jobs := make([]*repository.TrackingJob, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, &repository.TrackingJob{
			ID:              uuid.New(),
			TrackingCacheID: id,
			JobType:         jobType,
			Priority:        req.Priority,
			Status:          repository.JobStatusPending,
			ScheduledFor:    scheduled,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	if err := q.jobs.Create(ctx, jobs); err != nil {
		return 0, apperr.Persistence("failed to queue tracking jobs", err)
	}

	if err := q.audit.Record(ctx, audit.Entry{
		Action:   audit.ActionTrackingJobsQueued,
		Resource: audit.ResourceTracking,
		ActorID:  req.ActorID,
		Details: map[string]any{
			"count":        len(jobs),
			"jobType":      jobType,
			"priority":     req.Priority,
			"scheduledFor": scheduled,
		},
	}); err != nil {
		return 0, apperr.Persistence("failed to audit queued tracking jobs", err)
	}

	q.logger.Info("tracking jobs queued", zap.Int("count", len(jobs)), zap.Int("priority", req.Priority))
	return len(jobs), nil
}

// BatchRefresher is the part of Refresher the worker and scheduler need.
// BatchCeiling is the most shipments one Refresh call processes.
type BatchRefresher interface {
	Refresh(ctx context.Context, sel Selection, actorID string) (*Summary, error)
	BatchCeiling() int
}

// Worker drains due jobs in batches. Jobs are attempted once: a job whose
// shipment fails is marked FAILED and not picked up again.
type Worker struct {
	db           db.DB
	jobs         storage.TrackingJobRepository
	refresher    BatchRefresher
	pollInterval time.Duration
	batchSize    int
	logger       *zap.Logger
	timeNow      func() time.Time
}

// NewWorker claims at most the refresher's batch ceiling per poll so every
// claimed job is part of the run that settles it.
func NewWorker(database db.DB, jobs storage.TrackingJobRepository, refresher BatchRefresher, pollInterval time.Duration, batchSize int, logger *zap.Logger) *Worker {
	if ceiling := refresher.BatchCeiling(); ceiling > 0 && (batchSize <= 0 || batchSize > ceiling) {
		logger.Warn("tracking job batch size capped to refresh ceiling",
			zap.Int("batch_size", batchSize), zap.Int("ceiling", ceiling))
		batchSize = ceiling
	}
	return &Worker{
		db:           database,
		jobs:         jobs,
		refresher:    refresher,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
		timeNow:      time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("tracking job worker started", zap.Duration("poll_interval", w.pollInterval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("tracking job worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				w.logger.Error("tracking job batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce claims one batch of due jobs, refreshes their shipments as a
// single run and records each job's outcome. It returns the number of jobs
// claimed.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	var claimed []*repository.TrackingJob
	err := db.WithTx(ctx, w.db, func(tx db.Tx) error {
		var err error
		claimed, err = w.jobs.ClaimDueTx(ctx, tx, w.timeNow().UTC(), w.batchSize)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(claimed))
	for _, job := range claimed {
		ids = append(ids, job.TrackingCacheID)
	}

	summary, runErr := w.refresher.Refresh(ctx, Selection{ShipmentIDs: ids}, audit.SystemActor)
	if summary == nil {
		msg := "refresh failed"
		if runErr != nil {
			msg = runErr.Error()
		}
		if err := w.finish(ctx, jobIDs(claimed), repository.JobStatusFailed, &msg); err != nil {
			return len(claimed), err
		}
		return len(claimed), runErr
	}

	failures := make(map[string]string, len(summary.Errors))
	for _, e := range summary.Errors {
		failures[e.ShipmentID] = e.Error
	}

	var done []uuid.UUID
	for _, job := range claimed {
		msg, failed := failures[job.TrackingCacheID]
		if !failed {
			done = append(done, job.ID)
			continue
		}
		if err := w.finish(ctx, []uuid.UUID{job.ID}, repository.JobStatusFailed, &msg); err != nil {
			return len(claimed), err
		}
	}
	if err := w.finish(ctx, done, repository.JobStatusDone, nil); err != nil {
		return len(claimed), err
	}

	w.logger.Info("tracking jobs processed",
		zap.Int("jobs", len(claimed)),
		zap.Int("failed", len(claimed)-len(done)))
	return len(claimed), runErr
}

func (w *Worker) finish(ctx context.Context, ids []uuid.UUID, status repository.JobStatus, lastError *string) error {
	if len(ids) == 0 {
		return nil
	}
	completed := w.timeNow().UTC()
	return w.jobs.UpdateStatus(ctx, ids, status, lastError, &completed)
}

func jobIDs(jobs []*repository.TrackingJob) []uuid.UUID {
	ids := make([]uuid.UUID, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return ids
}
