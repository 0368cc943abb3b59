// Package worker drains the task queue with a fixed pool of workers.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/okian/rnaught/internal/adapters/mq/queue"
	"github.com/okian/rnaught/pkg/logger"
	"github.com/okian/rnaught/pkg/metrics"
)

// Task is what workers read off the queue.
type Task = queue.Task

// Processor handles one task. A returned error fails that task only.
type Processor interface {
	Process(ctx context.Context, t Task) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, t Task) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, t Task) error { return f(ctx, t) }

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Task
}

// Stats counts task outcomes.
type Stats struct {
	Processed int64
	Failed    int64
}

// InMemoryWorker processes tasks until its queue is drained.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string

	processed atomic.Int64
	failed    atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		processor: processor,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop until the queue closes or ctx is canceled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			w.process(ctx, t)
		}
	}
}

// Shutdown stops the worker after its current task.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Stats returns the worker's task counts.
func (w *InMemoryWorker) Stats() Stats {
	return Stats{Processed: w.processed.Load(), Failed: w.failed.Load()}
}

func (w *InMemoryWorker) process(ctx context.Context, t Task) {
	w.processed.Add(1)
	err := w.safeProcess(ctx, t)
	if err == nil {
		return
	}
	w.failed.Add(1)
	metrics.RecordWorkerError(t.Stage)
	w.logger.Error(ctx, "task failed",
		logger.String("stage", t.Stage),
		logger.String("code", t.Code),
		logger.Error(err))
}

// safeProcess reports a panicking task as its error.
func (w *InMemoryWorker) safeProcess(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processor.Process(ctx, t)
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	wg      sync.WaitGroup
	logger  logger.Logger
}

// NewPool creates a worker pool. A non-positive count uses runtime.NumCPU().
func NewPool(workerCount int, queue Queue, processor Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(queue, processor,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger))
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned, which happens once the queue
// is closed and drained or the run context is canceled.
func (p *Pool) Wait() Stats {
	p.wg.Wait()
	metrics.UpdateWorkerActiveCount(0)
	return p.Stats()
}

// Stats sums the task counts of all workers.
func (p *Pool) Stats() Stats {
	var s Stats
	for _, w := range p.workers {
		ws := w.Stats()
		s.Processed += ws.Processed
		s.Failed += ws.Failed
	}
	return s
}

// Shutdown closes the queue if it is still open and stops every worker.
func (p *Pool) Shutdown(ctx context.Context) error {
	if c, ok := p.queue.(interface{ IsClosed() bool }); ok && c.IsClosed() {
		p.logger.Debug(ctx, "queue already closed")
	} else if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return firstErr
}
