// Package worker consumes confirmation email jobs from the Redis queue.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erp-solwed/formaciones/internal/models"
	"github.com/erp-solwed/formaciones/pkg/queue"
)

// backoff after a failed dequeue, so a Redis outage does not spin the loop.
const backoff = 2 * time.Second

// Jobs is implemented by *queue.Queue.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	DeadLetter(ctx context.Context, job *queue.Job, cause error) error
}

// Deliverer is implemented by *notify.Delivery.
type Deliverer interface {
	Deliver(ctx context.Context, msg models.ConfirmationEmail) error
}

// ConfirmationProcessor delivers queued confirmation emails.
type ConfirmationProcessor struct {
	jobs      Jobs
	deliverer Deliverer
	logger    *zap.Logger
}

// NewConfirmationProcessor creates a confirmation email processor.
func NewConfirmationProcessor(jobs Jobs, deliverer Deliverer, logger *zap.Logger) *ConfirmationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationProcessor{jobs: jobs, deliverer: deliverer, logger: logger}
}

// Process executes one confirmation email job.
func (p *ConfirmationProcessor) Process(ctx context.Context, job *queue.Job) error {
	msg, err := job.Confirmation()
	if err != nil {
		return err
	}
	return p.deliverer.Deliver(ctx, msg)
}

// Run starts the worker loop: dequeue, process, dead-letter on error.
// Failed jobs are not retried.
func (p *ConfirmationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("confirmation worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if dlqErr := p.jobs.DeadLetter(context.WithoutCancel(ctx), job, err); dlqErr != nil {
				p.logger.Error("dead letter failed", zap.Error(dlqErr))
			}
		}
	}
}
