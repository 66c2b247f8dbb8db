// Package taskqueue is the Task Queue and Scheduler: a process-local worker
// pool executing submitted tasks with bounded concurrency, plus a
// robfig/cron-backed recurring-schedule facility.
package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	core "github.com/R3E-Network/orchestrator/internal/app/core/service"
	"github.com/R3E-Network/orchestrator/internal/app/system"
	"github.com/R3E-Network/orchestrator/pkg/logger"
)

var _ system.Service = (*Queue)(nil)

// TaskStatus enumerates a TaskRecord's lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Callable is the unit of work Enqueue accepts.
type Callable func(ctx context.Context) error

// TaskRecord is the status/result of one submitted task.
type TaskRecord struct {
	ID        uuid.UUID
	Name      string
	Status    TaskStatus
	Err       error
	EnqueuedAt time.Time
	StartedAt  *time.Time
	CompletedAt *time.Time
}

// Queue is a bounded-concurrency worker pool plus a recurring-schedule
// facility. Lifecycle follows the teacher's idempotent mu+cancel+wg
// Start/Stop idiom.
type Queue struct {
	maxWorkers int
	log        *logger.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	records  map[uuid.UUID]*TaskRecord
	sem      chan struct{}
	taskCh   chan func(ctx context.Context)
	cancels  map[uuid.UUID]context.CancelFunc

	cron       *cron.Cron
	entryLocks map[cron.EntryID]*sync.Mutex
}

// New returns a Queue bounded to maxWorkers concurrent tasks.
func New(maxWorkers int, log *logger.Logger) *Queue {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if log == nil {
		log = logger.NewDefault("taskqueue")
	}
	return &Queue{
		maxWorkers: maxWorkers,
		log:        log,
		records:    make(map[uuid.UUID]*TaskRecord),
		sem:        make(chan struct{}, maxWorkers),
		taskCh:     make(chan func(ctx context.Context), maxWorkers*4),
		cancels:    make(map[uuid.UUID]context.CancelFunc),
		cron:       cron.New(),
		entryLocks: make(map[cron.EntryID]*sync.Mutex),
	}
}

// Name satisfies system.Service.
func (q *Queue) Name() string { return "task-queue" }

// Descriptor satisfies system.DescriptorProvider.
func (q *Queue) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "task-queue",
		Domain:       "orchestrator",
		Layer:        core.LayerEngine,
		Capabilities: []string{"enqueue", "schedule"},
	}
}

// Start begins worker-pool dispatch and the cron scheduler.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.running = true
	q.mu.Unlock()

	for i := 0; i < q.maxWorkers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx)
	}

	q.cron.Start()
	q.log.Info("task queue started")
	return nil
}

// Stop halts worker dispatch and the cron scheduler, waiting for in-flight
// tasks to finish or ctx to expire.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	cancel := q.cancel
	q.running = false
	q.cancel = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	cronStopCtx := q.cron.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cronStopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	q.log.Info("task queue stopped")
	return nil
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case fn, ok := <-q.taskCh:
			if !ok {
				return
			}
			fn(ctx)
		}
	}
}

// Enqueue submits fn for execution, returning a task id immediately.
// Execution runs with bounded concurrency; tasks beyond maxWorkers queue.
func (q *Queue) Enqueue(name string, fn Callable) uuid.UUID {
	id := uuid.New()
	now := time.Now()
	record := &TaskRecord{ID: id, Name: name, Status: TaskPending, EnqueuedAt: now}

	q.mu.Lock()
	q.records[id] = record
	q.mu.Unlock()

	task := func(ctx context.Context) {
		runCtx, cancel := context.WithCancel(ctx)
		q.mu.Lock()
		q.cancels[id] = cancel
		q.mu.Unlock()
		defer func() {
			cancel()
			q.mu.Lock()
			delete(q.cancels, id)
			q.mu.Unlock()
		}()

		started := time.Now()
		q.mu.Lock()
		record.Status = TaskRunning
		record.StartedAt = &started
		q.mu.Unlock()

		err := q.runGuarded(runCtx, fn)

		completed := time.Now()
		q.mu.Lock()
		record.CompletedAt = &completed
		record.Err = err
		switch {
		case err == context.Canceled:
			record.Status = TaskCancelled
		case err != nil:
			record.Status = TaskFailed
		default:
			record.Status = TaskCompleted
		}
		q.mu.Unlock()
	}

	select {
	case q.taskCh <- task:
	default:
		// Buffer full: hand the task over from a goroutine so the caller
		// still gets its id without waiting.
		go func() { q.taskCh <- task }()
	}

	return id
}

// runGuarded recovers from a panicking Callable, converting it to an error
// rather than crashing the worker loop.
func (q *Queue) runGuarded(ctx context.Context, fn Callable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("taskqueue: task panicked: %v", r)
			q.log.WithField("panic", r).Error("task panicked")
		}
	}()
	return fn(ctx)
}

// Get returns a snapshot of the task's record, or false if unknown.
func (q *Queue) Get(id uuid.UUID) (TaskRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	record, ok := q.records[id]
	if !ok {
		return TaskRecord{}, false
	}
	return *record, true
}

// Cancel requests cancellation of a running task by id. A no-op if the task
// is not currently running.
func (q *Queue) Cancel(id uuid.UUID) {
	q.mu.Lock()
	cancel := q.cancels[id]
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Schedule registers a recurring task under a cron spec (e.g. "@every 1m").
// Each entry is guarded by its own mutex, held from the cron tick until the
// queued task finishes, so two invocations of the same entry never overlap;
// a tick that finds the previous invocation still pending or running is
// skipped.
func (q *Queue) Schedule(spec string, name string, fn Callable) (cron.EntryID, error) {
	lock := &sync.Mutex{}
	var entryID cron.EntryID

	wrapped := func() {
		if !lock.TryLock() {
			q.log.WithField("name", name).Warn("taskqueue: skipped overlapping scheduled run")
			return
		}
		q.Enqueue(name, func(ctx context.Context) error {
			defer lock.Unlock()
			return fn(ctx)
		})
	}

	id, err := q.cron.AddFunc(spec, wrapped)
	if err != nil {
		return 0, fmt.Errorf("taskqueue: schedule %q: %w", name, err)
	}
	entryID = id

	q.mu.Lock()
	q.entryLocks[entryID] = lock
	q.mu.Unlock()

	return entryID, nil
}

// Unschedule removes a previously registered recurring entry.
func (q *Queue) Unschedule(id cron.EntryID) {
	q.cron.Remove(id)
	q.mu.Lock()
	delete(q.entryLocks, id)
	q.mu.Unlock()
}
