package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"meetingToJira/internal/models"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrPoolClosed is returned by Submit after Shutdown started.
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// Runner executes one job run to completion.
type Runner interface {
	Run(ctx context.Context, task Task) (models.Job, error)
}

type queuedTask struct {
	Task
	ctx context.Context
}

// Pool runs jobs on a fixed number of workers fed by a bounded queue.
// At most one job per meeting is queued or running at a time.
type Pool struct {
	runner  Runner
	workers int
	queue   chan queuedTask
	logger  *slog.Logger

	base     context.Context
	stopBase context.CancelFunc

	mu      sync.Mutex
	closed  bool
	active  map[string]string // meeting id -> job id
	cancels map[string]context.CancelFunc

	started sync.Once
	wg      sync.WaitGroup
}

func NewPool(runner Runner, workers, queueSize int, logger *slog.Logger) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0, got %d", workers)
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("queue size must be > 0, got %d", queueSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Pool{
		runner:   runner,
		workers:  workers,
		queue:    make(chan queuedTask, queueSize),
		logger:   logger,
		base:     base,
		stopBase: stop,
		active:   make(map[string]string),
		cancels:  make(map[string]context.CancelFunc),
	}, nil
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.started.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.work(i)
		}
		p.logger.Info("worker pool started", "workers", p.workers, "queue_size", cap(p.queue))
	})
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if jobID, ok := p.active[task.MeetingID]; ok {
		return fmt.Errorf("meeting %s has job %s in progress: %w", task.MeetingID, jobID, models.ErrAlreadyExists)
	}

	ctx, cancel := context.WithCancel(p.base)
	select {
	case p.queue <- queuedTask{Task: task, ctx: ctx}:
	default:
		cancel()
		return ErrQueueFull
	}
	p.active[task.MeetingID] = task.JobID
	p.cancels[task.JobID] = cancel
	return nil
}

// Cancel aborts a queued or running job. It reports whether the job was known.
func (p *Pool) Cancel(jobID string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[jobID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active reports whether meetingID has a queued or running job.
func (p *Pool) Active(meetingID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[meetingID]
	return ok
}

// Shutdown stops intake and waits for queued and running jobs. When ctx
// expires first the remaining jobs are cancelled, which records them as
// failed, and Shutdown waits for that before returning ctx's error.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.Start()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.stopBase()
		return nil
	case <-ctx.Done():
		p.logger.Warn("shutdown deadline reached, cancelling jobs")
		p.stopBase()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for t := range p.queue {
		p.execute(id, t)
	}
}

func (p *Pool) execute(worker int, t queuedTask) {
	defer p.release(t.Task)
	logger := p.logger.With("worker", worker, "job_id", t.JobID)
	job, err := p.runner.Run(t.ctx, t.Task)
	if err != nil {
		logger.Warn("job ended with error", "status", job.Status, "error", err)
		return
	}
	logger.Debug("job finished", "status", job.Status)
}

func (p *Pool) release(t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.cancels[t.JobID]; ok {
		cancel()
		delete(p.cancels, t.JobID)
	}
	if p.active[t.MeetingID] == t.JobID {
		delete(p.active, t.MeetingID)
	}
}
