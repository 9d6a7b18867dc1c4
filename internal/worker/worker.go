// Package worker runs benchmark jobs one at a time from a bounded queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BrettMayson/arma-bench/internal/logging"
	"github.com/BrettMayson/arma-bench/internal/runtime"
	"github.com/BrettMayson/arma-bench/internal/store"
	"github.com/BrettMayson/arma-bench/protocol"
)

const DefaultQueueSize = 16

type Worker struct {
	queue    chan *Job
	builder  Builder
	driver   runtime.Driver
	recorder Recorder
	logger   logging.Logger

	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	active string
}

type Option func(*Worker)

func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan *Job, n)
		}
	}
}

// WithRecorder records every job in the history store.
func WithRecorder(r Recorder) Option {
	return func(w *Worker) { w.recorder = r }
}

func WithLogger(l logging.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

func New(b Builder, d runtime.Driver, opts ...Option) *Worker {
	w := &Worker{
		queue:   make(chan *Job, DefaultQueueSize),
		builder: b,
		driver:  d,
		logger:  logging.Nop(),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Submit enqueues job, blocking while the queue is full.
func (w *Worker) Submit(ctx context.Context, job *Job) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}

	select {
	case w.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrClosed
	}
}

// Run consumes the queue until ctx is done (nil) or the worker is closed
// (ErrClosed). Jobs still queued at that point receive no reply.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "queue_size", cap(w.queue))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", "pending", len(w.queue))
			return nil
		case <-w.done:
			return ErrClosed
		case job := <-w.queue:
			w.process(ctx, job)
		}
	}
}

// Close stops Run and rejects further submissions.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}

// Active returns the id of the job being processed, or "".
func (w *Worker) Active() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Pending returns the number of queued jobs.
func (w *Worker) Pending() int {
	return len(w.queue)
}

func (w *Worker) setActive(id string) {
	w.mu.Lock()
	w.active = id
	w.mu.Unlock()
}

func (w *Worker) process(ctx context.Context, job *Job) {
	start := time.Now()
	log := w.logger.With("job_id", job.ID, "kind", job.Request.Kind)
	log.Info("job started", "branch", job.Config.Branch, "waited", start.Sub(job.EnqueuedAt).Round(time.Millisecond))

	w.setActive(job.ID)
	defer w.setActive("")
	w.recordStart(job, start, log)

	resp, err := w.execute(ctx, job, log)
	status, errMsg := store.StatusSucceeded, ""
	if err != nil {
		resp = errorResponse(err)
		status, errMsg = store.StatusFailed, err.Error()
		log.Warn("job failed", "error", err)
	}

	took := time.Since(start)
	w.recordFinish(job.ID, status, errMsg, took, log)
	log.Info("job finished", "status", status, "took", took.Round(time.Millisecond))

	if !job.deliver(resp) {
		log.Warn("reply dropped")
	}
}

// execute builds, launches and harvests a job. The package directory is
// removed before it returns, on every path.
func (w *Worker) execute(ctx context.Context, job *Job, log logging.Logger) (protocol.Response, error) {
	var resp protocol.Response

	pkg, err := w.builder.Build(job.ID, job.Request)
	if err != nil {
		return resp, fmt.Errorf("%w: %w", ErrBuild, err)
	}
	defer func() {
		if err := pkg.Close(); err != nil {
			log.Error("removing job directory", "dir", pkg.Dir, "error", err)
		}
	}()

	proc, err := w.driver.Start(ctx, job.Config, pkg)
	if err != nil {
		return resp, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	w.recordPID(job.ID, proc.PID(), log)

	waitErr := proc.Wait()
	if waitErr != nil {
		log.Warn("server exited with error", "error", waitErr)
	}

	res, err := w.harvest(pkg.Dir, pkg.Kind)
	if err != nil {
		if errors.Is(waitErr, runtime.ErrKilled) {
			err = waitErr
		}
		return resp, fmt.Errorf("%w: %w", ErrHarvest, err)
	}

	if job.Request.Kind == protocol.RequestCompare && res.Err == "" {
		if err := checkCompareIDs(job.Request.Items, res.Compare); err != nil {
			return resp, err
		}
	}
	return *res, nil
}

func (w *Worker) harvest(dir string, kind protocol.RequestKind) (res *protocol.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	res, err = w.driver.Harvest(dir, kind)
	if err == nil && res == nil {
		err = runtime.ErrNoResult
	}
	return res, err
}

func (w *Worker) recordStart(job *Job, start time.Time, log logging.Logger) {
	if w.recorder == nil {
		return
	}
	rec := &store.Job{
		ID:        job.ID,
		Kind:      string(job.Request.Kind),
		Binary:    job.Config.Binary,
		Branch:    job.Config.Branch,
		Items:     len(job.Request.Items),
		Status:    store.StatusRunning,
		CreatedAt: job.EnqueuedAt,
		StartedAt: start,
	}
	if err := w.recorder.CreateJob(rec); err != nil {
		log.Error("recording job", "error", err)
	}
}

func (w *Worker) recordPID(id string, pid int, log logging.Logger) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.SetJobPID(id, pid); err != nil {
		log.Error("recording job pid", "error", err)
	}
}

func (w *Worker) recordFinish(id, status, errMsg string, took time.Duration, log logging.Logger) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.FinishJob(id, status, errMsg, time.Now(), took); err != nil {
		log.Error("recording job result", "error", err)
	}
}
