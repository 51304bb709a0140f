package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/engramd/internal/logfields"
	"pkt.systems/pslog"
)

// RunFunc executes one ingestion task. Errors are terminal: the pool
// logs them and moves on, it never retries.
type RunFunc func(ctx context.Context, task Task) error

// Pool drains the queue with a fixed number of workers.
type Pool struct {
	queue  *Queue
	run    RunFunc
	size   int
	logger pslog.Logger
	busy   atomic.Int32
}

// NewPool builds a pool of size workers over queue. size < 1 is
// clamped to 1.
func NewPool(queue *Queue, size int, run RunFunc, logger pslog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		queue:  queue,
		run:    run,
		size:   size,
		logger: logfields.WithSubsystem(logger, "ingest.pool"),
	}
}

// Size returns the configured worker count.
func (p *Pool) Size() int {
	return p.size
}

// Busy returns the number of workers currently executing a task.
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Run starts the workers and blocks until ctx is cancelled and every
// worker has finished its current task. Tasks still queued at shutdown
// are abandoned.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("ingest.pool.start", "workers", p.size)
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, i)
	}
	wg.Wait()
	stats := p.queue.Stats()
	if stats.QueuedTasks > 0 {
		p.logger.Warn("ingest.pool.stop.abandoning", "queued_tasks", stats.QueuedTasks)
	} else {
		p.logger.Info("ingest.pool.stop")
	}
	return nil
}

func (p *Pool) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		task, ok := p.queue.take()
		if ok {
			p.execute(ctx, id, task)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-p.queue.Wake():
		}
	}
}

func (p *Pool) execute(ctx context.Context, worker int, task Task) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer p.queue.finish(task.Namespace)
	started := time.Now()
	err := p.run(ctx, task)
	if err != nil {
		// Fire and forget: the submitter already got its ack, so the
		// log line is the only trace of the failure.
		p.logger.Warn("ingest.task.failed",
			"worker", worker,
			"namespace", task.Namespace,
			"task_id", task.ID,
			"name", task.Name,
			"waited", started.Sub(task.EnqueuedAt).String(),
			"error", err)
		return
	}
	p.logger.Debug("ingest.task.completed",
		"worker", worker,
		"namespace", task.Namespace,
		"task_id", task.ID,
		"name", task.Name,
		"elapsed", time.Since(started).String())
}
