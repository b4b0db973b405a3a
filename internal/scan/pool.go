package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of pool work. A returned error cancels the pool.
type Task func(ctx context.Context) error

// Pool runs tasks on a fixed set of workers fed by a bounded queue. When
// the queue is full Submit backs off exponentially instead of blocking
// forever, and gives up once the context is cancelled.
type Pool struct {
	g          *errgroup.Group
	ctx        context.Context
	queue      chan Task
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
	saturated  atomic.Int64
}

// NewPool starts workers goroutines reading from a queue of queueSize.
func NewPool(ctx context.Context, workers, queueSize int, backoff, maxBackoff time.Duration, logger *slog.Logger) *Pool {
	workers = max(workers, 1)
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	maxBackoff = max(maxBackoff, backoff)
	if logger == nil {
		logger = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	p := &Pool{
		g:          g,
		ctx:        gctx,
		queue:      make(chan Task, max(queueSize, 0)),
		backoff:    backoff,
		maxBackoff: maxBackoff,
		logger:     logger,
	}
	for range workers {
		g.Go(p.work)
	}
	return p
}

func (p *Pool) work() error {
	for task := range p.queue {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		if err := task(p.ctx); err != nil {
			return err
		}
	}
	return nil
}

// Submit enqueues task, retrying with exponential backoff while the queue
// is saturated.
func (p *Pool) Submit(task Task) error {
	delay := p.backoff
	for {
		// A select with both cases ready picks at random.
		if err := p.ctx.Err(); err != nil {
			return err
		}
		select {
		case <-p.ctx.Done():
			return p.ctx.Err()
		case p.queue <- task:
			return nil
		default:
		}

		p.saturated.Add(1)
		p.logger.Debug("worker queue saturated, backing off", "delay", delay)
		timer := time.NewTimer(delay)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return p.ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, p.maxBackoff)
	}
}

// Wait closes the queue and waits for every submitted task. It returns
// the first task error or the cancellation cause. Wait must be called
// exactly once.
func (p *Pool) Wait() error {
	close(p.queue)
	return p.g.Wait()
}

// Abort waits for the workers after a failed Submit and returns err joined
// with whatever ended the pool, usually the task error that cancelled it.
func (p *Pool) Abort(err error) error {
	return errors.Join(err, p.Wait())
}

// Saturations reports how many times Submit found the queue full.
func (p *Pool) Saturations() int64 { return p.saturated.Load() }
