// Package queue serializes agent work per group. Each group runs at most
// one job at a time while different groups proceed in parallel, so two
// conversations never contend for the same agent session.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aatumaykin/nanoclaw/internal/logger"
)

// JobKind tags the two unit-of-work flavors the queue accepts.
type JobKind string

const (
	KindMessageCheck  JobKind = "message_check"
	KindScheduledTask JobKind = "scheduled_task"
)

// Job is one unit of group work. It must respect ctx cancellation.
type Job func(ctx context.Context) error

// ProcessHandle lets the queue terminate a job's subprocess on shutdown.
type ProcessHandle interface {
	Terminate(ctx context.Context) error
}

// StatusFunc is invoked on every working/idle transition for a group.
type StatusFunc func(group string, working bool)

// Config tunes retry and concurrency behavior.
type Config struct {
	// MaxConcurrentGroups bounds how many groups run at once. Zero means
	// unbounded.
	MaxConcurrentGroups int
	RetryMaxAttempts    int
	RetryInitial        time.Duration
	RetryMax            time.Duration
}

// DefaultConfig matches the production tuning.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts: 5,
		RetryInitial:     time.Second,
		RetryMax:         60 * time.Second,
	}
}

type queuedJob struct {
	kind JobKind
	id   string
	run  Job
}

type groupState struct {
	messageJob    *queuedJob
	tasks         []*queuedJob
	running       bool
	process       ProcessHandle
	containerName string
}

// GroupQueue is the per-group concurrency coordinator.
type GroupQueue struct {
	mu       sync.Mutex
	groups   map[string]*groupState
	statusFn StatusFunc
	cfg      Config
	slots    chan struct{}
	logger   *logger.Logger
	metrics  *PrometheusMetrics
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	active   int
	queued   int
}

// New creates a GroupQueue. metrics may be nil.
func New(cfg Config, log *logger.Logger, metrics *PrometheusMetrics) *GroupQueue {
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = DefaultConfig().RetryMaxAttempts
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = DefaultConfig().RetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultConfig().RetryMax
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &GroupQueue{
		groups:  make(map[string]*groupState),
		cfg:     cfg,
		logger:  log,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.MaxConcurrentGroups > 0 {
		q.slots = make(chan struct{}, cfg.MaxConcurrentGroups)
	}
	return q
}

// SetStatusCallback registers the working/idle transition hook. It is
// called from queue goroutines and must be safe for concurrent use.
func (q *GroupQueue) SetStatusCallback(fn StatusFunc) {
	q.mu.Lock()
	q.statusFn = fn
	q.mu.Unlock()
}

// EnqueueMessageCheck queues a message-batch check for a group. A pending
// check absorbs later arrivals: the newest job replaces the queued one, so
// a burst of inbound messages results in a single run that sees them all.
func (q *GroupQueue) EnqueueMessageCheck(group string, job Job) {
	q.enqueue(group, &queuedJob{kind: KindMessageCheck, run: job})
}

// EnqueueTask queues a scheduled-task execution. Unlike message checks,
// tasks keep their own identity: two tasks for the same group run one
// after the other, in submission order.
func (q *GroupQueue) EnqueueTask(group, taskID string, job Job) {
	q.enqueue(group, &queuedJob{kind: KindScheduledTask, id: taskID, run: job})
}

func (q *GroupQueue) enqueue(group string, job *queuedJob) {
	q.mu.Lock()

	if q.ctx.Err() != nil {
		q.mu.Unlock()
		q.logger.Warn("queue is shutting down, job dropped",
			logger.Field{Key: "group", Value: group},
			logger.Field{Key: "kind", Value: string(job.kind)})
		return
	}

	state, ok := q.groups[group]
	if !ok {
		state = &groupState{}
		q.groups[group] = state
	}

	switch job.kind {
	case KindMessageCheck:
		if state.messageJob != nil {
			// Coalesce: the queued check will see the new messages anyway.
			state.messageJob = job
			q.mu.Unlock()
			return
		}
		state.messageJob = job
		q.queued++
	default:
		state.tasks = append(state.tasks, job)
		q.queued++
	}
	q.updateGauges()

	start := !state.running
	if start {
		state.running = true
		q.active++
		q.updateGauges()
		q.wg.Add(1)
	}
	fn := q.statusFn
	q.mu.Unlock()

	if start {
		if fn != nil {
			fn(group, true)
		}
		go q.runGroup(group)
	}
}

// runGroup drains a group's jobs one at a time, then exits.
func (q *GroupQueue) runGroup(group string) {
	defer q.wg.Done()

	for {
		if q.ctx.Err() != nil {
			q.finishGroup(group)
			return
		}

		job := q.takeJob(group)
		if job == nil {
			// takeJob already flipped the group to idle under its lock,
			// so a concurrent enqueue starts a fresh goroutine.
			return
		}

		if q.slots != nil {
			select {
			case q.slots <- struct{}{}:
			case <-q.ctx.Done():
				q.finishGroup(group)
				return
			}
		}

		q.executeWithRetry(group, job)

		if q.slots != nil {
			<-q.slots
		}
	}
}

// takeJob pops the next job for a group. When the group has no work left
// it transitions to idle under the same lock, so enqueue and drain never
// race each other into a stranded job.
func (q *GroupQueue) takeJob(group string) *queuedJob {
	q.mu.Lock()

	state := q.groups[group]
	if state != nil {
		if state.messageJob != nil {
			job := state.messageJob
			state.messageJob = nil
			q.queued--
			q.updateGauges()
			q.mu.Unlock()
			return job
		}
		if len(state.tasks) > 0 {
			job := state.tasks[0]
			state.tasks = state.tasks[1:]
			q.queued--
			q.updateGauges()
			q.mu.Unlock()
			return job
		}
		state.running = false
		state.process = nil
		state.containerName = ""
	}
	q.active--
	q.updateGauges()
	fn := q.statusFn
	q.mu.Unlock()

	if fn != nil {
		fn(group, false)
	}
	return nil
}

// finishGroup is the shutdown exit path: remaining queued jobs are dropped.
func (q *GroupQueue) finishGroup(group string) {
	q.mu.Lock()
	state := q.groups[group]
	if state != nil {
		state.running = false
		state.process = nil
		state.containerName = ""
		dropped := len(state.tasks)
		if state.messageJob != nil {
			dropped++
		}
		if dropped > 0 {
			q.queued -= dropped
			q.logger.Warn("dropping queued jobs on shutdown",
				logger.Field{Key: "group", Value: group},
				logger.Field{Key: "count", Value: dropped})
		}
		state.messageJob = nil
		state.tasks = nil
	}
	q.active--
	q.updateGauges()
	fn := q.statusFn
	q.mu.Unlock()

	if fn != nil {
		fn(group, false)
	}
}

// executeWithRetry runs a job, retrying failures with exponential backoff.
// A panic counts as a failure and never crashes the queue goroutine.
func (q *GroupQueue) executeWithRetry(group string, job *queuedJob) {
	backoff := q.cfg.RetryInitial

	for attempt := 1; attempt <= q.cfg.RetryMaxAttempts; attempt++ {
		start := time.Now()
		err := q.runJob(job)
		duration := time.Since(start)

		if err == nil {
			if q.metrics != nil {
				q.metrics.RecordJob(string(job.kind), "success", duration)
			}
			return
		}

		if q.metrics != nil {
			q.metrics.RecordJob(string(job.kind), "error", duration)
		}
		q.logger.Error("group job failed", err,
			logger.Field{Key: "group", Value: group},
			logger.Field{Key: "kind", Value: string(job.kind)},
			logger.Field{Key: "task_id", Value: job.id},
			logger.Field{Key: "attempt", Value: attempt})

		if attempt == q.cfg.RetryMaxAttempts || q.ctx.Err() != nil {
			q.logger.Error("group job dropped after retries", err,
				logger.Field{Key: "group", Value: group},
				logger.Field{Key: "kind", Value: string(job.kind)})
			return
		}

		select {
		case <-time.After(backoff):
		case <-q.ctx.Done():
			return
		}
		backoff *= 2
		if backoff > q.cfg.RetryMax {
			backoff = q.cfg.RetryMax
		}
	}
}

func (q *GroupQueue) runJob(job *queuedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during job execution: %v", r)
		}
	}()
	return job.run(q.ctx)
}

// RegisterProcess records a running job's subprocess handle so Shutdown
// can terminate it. Called by the job itself right after spawn.
func (q *GroupQueue) RegisterProcess(group string, handle ProcessHandle, containerName string) {
	q.mu.Lock()
	if state, ok := q.groups[group]; ok {
		state.process = handle
		state.containerName = containerName
	}
	q.mu.Unlock()
}

// Working reports whether the group currently has a running job.
func (q *GroupQueue) Working(group string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	state, ok := q.groups[group]
	return ok && state.running
}

// Shutdown stops accepting work, gives in-flight jobs the grace period to
// wind down, then force-terminates any subprocesses still registered and
// waits for the queue goroutines to exit.
func (q *GroupQueue) Shutdown(grace time.Duration) {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(grace):
	}

	q.logger.Warn("grace period expired, terminating subprocesses")
	q.terminateProcesses()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		q.logger.Error("queue did not drain after force-termination", nil)
	}
}

func (q *GroupQueue) terminateProcesses() {
	q.mu.Lock()
	type proc struct {
		group  string
		name   string
		handle ProcessHandle
	}
	var procs []proc
	for group, state := range q.groups {
		if state.process != nil {
			procs = append(procs, proc{group, state.containerName, state.process})
		}
	}
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, p := range procs {
		q.logger.Warn("terminating subprocess",
			logger.Field{Key: "group", Value: p.group},
			logger.Field{Key: "container", Value: p.name})
		if err := p.handle.Terminate(ctx); err != nil {
			q.logger.Error("failed to terminate subprocess", err,
				logger.Field{Key: "group", Value: p.group})
		}
	}
}

func (q *GroupQueue) updateGauges() {
	if q.metrics == nil {
		return
	}
	q.metrics.SetActiveGroups(q.active)
	q.metrics.SetQueuedJobs(q.queued)
}
