// Package kafka relays outbox tasks to the message broker.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/metrics"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
)

var errShuttingDown = errors.New("publisher shutting down")

type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Publisher polls the outbox and hands each claimed task to the producer.
// A task that fails to send goes back to FAILED with one more attempt and is
// claimed again until it reaches MaxAttempts.
type Publisher struct {
	db             db.DB
	repo           storage.OutboxTaskRepository
	producer       Producer
	config         PublisherConfig
	logger         *zap.Logger
	timeNow        func() time.Time
	wg             sync.WaitGroup
	shutdownSignal chan struct{}
	stopOnce       sync.Once
}

func NewPublisher(database db.DB, repo storage.OutboxTaskRepository, producer Producer, config PublisherConfig, logger *zap.Logger) *Publisher {
	return &Publisher{
		db:             database,
		repo:           repo,
		producer:       producer,
		config:         config,
		logger:         logger,
		timeNow:        time.Now,
		shutdownSignal: make(chan struct{}),
	}
}

func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("outbox publisher started", zap.Duration("poll_interval", p.config.PollInterval))
	p.wg.Add(1)
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil && !errors.Is(err, errShuttingDown) && ctx.Err() == nil {
				metrics.OperationErrorsTotal.WithLabelValues("outbox_batch").Inc()
				p.logger.Error("outbox batch failed", zap.Error(err))
			}
		case <-p.shutdownSignal:
			p.logger.Info("outbox publisher received shutdown signal")
			return nil
		case <-ctx.Done():
			p.logger.Info("outbox publisher context cancelled")
			return nil
		}
	}
}

// Shutdown stops the polling loop, waits up to 30s for the current batch and
// closes the producer.
func (p *Publisher) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.shutdownSignal)
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			p.logger.Info("outbox publisher stopped")
		case <-time.After(30 * time.Second):
			p.logger.Warn("outbox publisher shutdown timed out")
		}

		if err := p.producer.Close(); err != nil {
			p.logger.Error("failed to close producer", zap.Error(err))
		}
	})
}

// ProcessBatch claims up to BatchSize tasks, marks them PROCESSING and sends
// them one by one. It returns the number of tasks claimed.
func (p *Publisher) ProcessBatch(ctx context.Context) (int, error) {
	var tasks []*repository.OutboxTask
	err := db.WithTx(ctx, p.db, func(tx db.Tx) error {
		var err error
		tasks, err = p.repo.ClaimTasksTx(ctx, tx, p.config.BatchSize, p.config.MaxAttempts)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if err := p.repo.UpdateTaskStatusTx(ctx, tx, task.ID, repository.TaskStatusProcessing, task.Attempts, nil, nil); err != nil {
				return fmt.Errorf("failed to mark task %s as PROCESSING: %w", task.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	p.logger.Debug("outbox tasks claimed", zap.Int("count", len(tasks)))
	for _, task := range tasks {
		select {
		case <-p.shutdownSignal:
			p.logger.Warn("shutdown during outbox batch", zap.String("task_id", task.ID.String()))
			return len(tasks), errShuttingDown
		case <-ctx.Done():
			return len(tasks), ctx.Err()
		default:
		}

		if err := p.processTask(ctx, task); err != nil {
			p.logger.Warn("outbox task not delivered",
				zap.String("task_id", task.ID.String()),
				zap.Int("attempt", task.Attempts+1),
				zap.Error(err))
		}
	}
	return len(tasks), nil
}

func (p *Publisher) processTask(ctx context.Context, task *repository.OutboxTask) error {
	sendErr := p.producer.SendMessage(ctx, task.Topic, []byte(task.ID.String()), task.Payload)
	if sendErr != nil {
		metrics.OutboxPublishedTotal.WithLabelValues("failed").Inc()
		attempts := task.Attempts + 1
		msg := sendErr.Error()
		if attempts >= p.config.MaxAttempts {
			p.logger.Error("outbox task gave up",
				zap.String("task_id", task.ID.String()),
				zap.Int("attempts", attempts))
		}
		if err := p.repo.UpdateTaskStatus(ctx, task.ID, repository.TaskStatusFailed, attempts, &msg, nil); err != nil {
			return fmt.Errorf("failed to record send failure (%v): %w", sendErr, err)
		}
		return sendErr
	}

	metrics.OutboxPublishedTotal.WithLabelValues("sent").Inc()
	now := p.timeNow().UTC()
	if err := p.repo.UpdateTaskStatus(ctx, task.ID, repository.TaskStatusDone, task.Attempts, nil, &now); err != nil {
		return fmt.Errorf("failed to mark task %s as DONE: %w", task.ID, err)
	}
	return nil
}
