package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/erp-solwed/formaciones/internal/metrics"
	"github.com/erp-solwed/formaciones/internal/models"
	"github.com/erp-solwed/formaciones/pkg/queue"
)

var (
	ErrQueueFull = errors.New("notify: queue full")
	ErrStopped   = errors.New("notify: dispatcher stopped")
)

// Dispatcher hands a confirmation email off for background delivery.
// Dispatch must not block on the delivery itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg models.ConfirmationEmail) error
}

// Deliverer is what pool workers call for each email.
type Deliverer interface {
	Deliver(ctx context.Context, msg models.ConfirmationEmail) error
}

// Pool delivers confirmations in-process with a fixed number of workers.
type Pool struct {
	deliverer Deliverer
	jobs      chan models.ConfirmationEmail
	workers   int
	logger    *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given worker count and buffer size.
func NewPool(d Deliverer, workers, size int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	return &Pool{
		deliverer: d,
		jobs:      make(chan models.ConfirmationEmail, size),
		workers:   workers,
		logger:    logger.Named("notify.pool"),
	}
}

// Start launches the workers. Deliveries run detached from ctx cancellation
// so Stop can drain what is already queued.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	base := context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for msg := range p.jobs {
				_ = p.deliverer.Deliver(base, msg)
			}
		}()
	}
	p.logger.Info("notification pool started", zap.Int("workers", p.workers), zap.Int("buffer", cap(p.jobs)))
}

// Dispatch queues msg without blocking. It returns ErrQueueFull when the buffer is full.
func (p *Pool) Dispatch(ctx context.Context, msg models.ConfirmationEmail) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}
	select {
	case p.jobs <- msg:
		return nil
	default:
		metrics.Notifications.WithLabelValues("dropped").Inc()
		p.logger.Warn("notification queue full, dropping confirmation", zap.String("email", msg.Email))
		return ErrQueueFull
	}
}

// Stop refuses new work and waits for queued deliveries, or until ctx is done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("notification pool drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueuer is implemented by *queue.Queue.
type Enqueuer interface {
	EnqueueConfirmation(ctx context.Context, msg models.ConfirmationEmail) (*queue.Job, error)
}

// QueueDispatcher pushes confirmations onto the Redis queue for cmd/worker.
type QueueDispatcher struct {
	queue  Enqueuer
	logger *zap.Logger
}

// NewQueueDispatcher creates a dispatcher backed by the job queue.
func NewQueueDispatcher(q Enqueuer, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueDispatcher{queue: q, logger: logger.Named("notify.queue")}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, msg models.ConfirmationEmail) error {
	job, err := d.queue.EnqueueConfirmation(ctx, msg)
	if err != nil {
		metrics.Notifications.WithLabelValues("enqueue_failed").Inc()
		return fmt.Errorf("enqueue confirmation: %w", err)
	}
	metrics.Notifications.WithLabelValues("queued").Inc()
	d.logger.Debug("confirmation queued", zap.String("job_id", job.ID), zap.String("email", msg.Email))
	return nil
}
