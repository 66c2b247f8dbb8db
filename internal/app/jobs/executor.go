// Package jobs is the Job Executor: it drives one Job through its lifecycle
// state machine, orchestrating the Tool Runner, the Persistence Gateway, the
// Event Bus, and (on successful completion) a parse task.
package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/eventbus"
	"github.com/R3E-Network/orchestrator/internal/app/metrics"
	"github.com/R3E-Network/orchestrator/internal/app/parsers"
	"github.com/R3E-Network/orchestrator/internal/app/runner"
	"github.com/R3E-Network/orchestrator/internal/app/storage"
	"github.com/R3E-Network/orchestrator/internal/app/taskqueue"
	"github.com/R3E-Network/orchestrator/internal/app/toolregistry"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
	"github.com/R3E-Network/orchestrator/pkg/logger"
)

// Executor drives Jobs through the state machine of spec.md §4.4: pending ->
// queued -> running -> {completed, failed, timeout, cancelled}.
type Executor struct {
	gateway     storage.Gateway
	tools       *toolregistry.Registry
	bus         *eventbus.Bus
	parserReg   *parsers.Registry
	merger      *upsert.Merger
	queue       *taskqueue.Queue
	outputsRoot string
	log         *logger.Logger

	mu      sync.Mutex
	runners map[uuid.UUID]*runner.Runner
}

// New returns an Executor. outputsRoot is the parent directory under which
// each job gets its own working directory (outputsRoot/<job_id>).
func New(gateway storage.Gateway, tools *toolregistry.Registry, bus *eventbus.Bus, parserReg *parsers.Registry, merger *upsert.Merger, queue *taskqueue.Queue, outputsRoot string, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	return &Executor{
		gateway:     gateway,
		tools:       tools,
		bus:         bus,
		parserReg:   parserReg,
		merger:      merger,
		queue:       queue,
		outputsRoot: outputsRoot,
		log:         log,
		runners:     make(map[uuid.UUID]*runner.Runner),
	}
}

// SubmitRequest describes a new job to create and enqueue.
type SubmitRequest struct {
	ProjectID      uuid.UUID
	ToolName       string
	Parameters     map[string]any
	Priority       int
	TimeoutSeconds int
	CreatedBy      uuid.UUID
	WorkflowRunID  *uuid.UUID
}

// Submit renders req against the Tool Registry, persists a new Job (pending
// then immediately queued), and hands it to the Task Queue for execution.
func (e *Executor) Submit(ctx context.Context, req SubmitRequest) (job.Job, error) {
	def, ok := e.tools.Lookup(req.ToolName)
	if !ok {
		return job.Job{}, fmt.Errorf("jobs: tool %q not registered", req.ToolName)
	}
	command, err := def.Render(req.Parameters)
	if err != nil {
		return job.Job{}, fmt.Errorf("jobs: render command: %w", err)
	}

	now := time.Now()
	j := job.Job{
		ID:             uuid.New(),
		ProjectID:      req.ProjectID,
		ToolName:       req.ToolName,
		Parameters:     req.Parameters,
		Command:        command,
		Priority:       req.Priority,
		TimeoutSeconds: req.TimeoutSeconds,
		Status:         job.StatusPending,
		CreatedBy:      req.CreatedBy,
		WorkflowRunID:  req.WorkflowRunID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := e.gateway.CreateJob(ctx, j)
	if err != nil {
		return job.Job{}, fmt.Errorf("jobs: create: %w", err)
	}

	created.Status = job.StatusQueued
	created.UpdatedAt = time.Now()
	created, err = e.gateway.UpdateJob(ctx, created)
	if err != nil {
		return job.Job{}, fmt.Errorf("jobs: queue: %w", err)
	}

	e.enqueueRun(created.ID)
	return created, nil
}

// Retry creates a new Job with fields identical to oldJobID's (parameters,
// command, priority, timeout_seconds, project, tool_name), in queued state,
// and enqueues it. The old job is left untouched.
func (e *Executor) Retry(ctx context.Context, oldJobID uuid.UUID) (job.Job, error) {
	old, err := e.gateway.GetJob(ctx, oldJobID)
	if err != nil {
		return job.Job{}, fmt.Errorf("jobs: retry: load %s: %w", oldJobID, err)
	}

	now := time.Now()
	nj := job.Job{
		ID:             uuid.New(),
		ProjectID:      old.ProjectID,
		ToolName:       old.ToolName,
		Parameters:     old.Parameters,
		Command:        old.Command,
		Priority:       old.Priority,
		TimeoutSeconds: old.TimeoutSeconds,
		Status:         job.StatusQueued,
		CreatedBy:      old.CreatedBy,
		WorkflowRunID:  old.WorkflowRunID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := e.gateway.CreateJob(ctx, nj)
	if err != nil {
		return job.Job{}, fmt.Errorf("jobs: retry: create: %w", err)
	}

	e.enqueueRun(created.ID)
	return created, nil
}

// Cancel is a best-effort signal per spec.md §4.4: it marks the job
// cancelled immediately (unless already terminal) and, if a Tool Runner is
// executing this job in this process, invokes its cancellation.
func (e *Executor) Cancel(ctx context.Context, jobID uuid.UUID) error {
	j, err := e.gateway.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("jobs: cancel: load %s: %w", jobID, err)
	}
	if j.Status.Terminal() {
		return nil
	}

	now := time.Now()
	j.Status = job.StatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	if _, err := e.gateway.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("jobs: cancel: persist %s: %w", jobID, err)
	}
	e.bus.Publish(eventbus.JobTopic(jobID), eventbus.JobStatusEvent{JobID: jobID, Status: string(job.StatusCancelled)})

	e.mu.Lock()
	r := e.runners[jobID]
	e.mu.Unlock()
	if r != nil {
		r.Cancel()
	}
	return nil
}

func (e *Executor) enqueueRun(jobID uuid.UUID) {
	e.queue.Enqueue("run-job:"+jobID.String(), func(ctx context.Context) error {
		return e.RunJob(ctx, jobID)
	})
}

// RunJob implements the seven-step algorithm of spec.md §4.4 for one job.
func (e *Executor) RunJob(ctx context.Context, jobID uuid.UUID) error {
	j, err := e.gateway.GetJob(ctx, jobID)
	if err != nil {
		return e.failMissing(ctx, jobID, fmt.Sprintf("job not found: %v", err))
	}
	// A job cancelled while still queued is dropped here: no job leaves a
	// terminal state.
	if j.Status.Terminal() {
		return nil
	}

	def, ok := e.tools.Lookup(j.ToolName)
	if !ok {
		return e.failMissing(ctx, jobID, fmt.Sprintf("tool %q not resolvable", j.ToolName))
	}

	now := time.Now()
	j.Status = job.StatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	if j, err = e.gateway.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("jobs: persist running: %w", err)
	}
	e.bus.Publish(eventbus.JobTopic(jobID), eventbus.JobStatusEvent{JobID: jobID, Status: string(job.StatusRunning)})

	workDir := filepath.Join(e.outputsRoot, jobID.String())
	timeout := time.Duration(j.TimeoutSeconds) * time.Second

	sequence := 0
	var seqMu sync.Mutex
	r := runner.New(j.Command, workDir, timeout, func(line runner.OutputLine) {
		seqMu.Lock()
		seq := sequence
		sequence++
		seqMu.Unlock()

		outType := job.OutputStdout
		if line.Type == "stderr" {
			outType = job.OutputStderr
		}
		out := job.Output{JobID: jobID, Sequence: seq, Type: outType, Content: line.Content, Timestamp: time.Now()}
		if err := e.gateway.AppendOutput(ctx, out); err != nil {
			e.log.WithError(err).Warn("jobs: append output failed")
		}
		e.bus.Publish(eventbus.JobTopic(jobID), eventbus.JobOutputEvent{JobID: jobID, Output: line.Content, Type: line.Type})
	}, e.log)

	e.mu.Lock()
	e.runners[jobID] = r
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.runners, jobID)
		e.mu.Unlock()
	}()

	res, runErr := r.Run(ctx)

	// Cancel() may already have moved this job to a terminal state while the
	// runner was shutting down; a terminal job never transitions again.
	current, reloadErr := e.gateway.GetJob(ctx, jobID)
	if reloadErr == nil && current.Status.Terminal() {
		return nil
	}

	completedAt := time.Now()
	current.ExitCode = &res.ExitCode
	current.CompletedAt = &completedAt
	current.UpdatedAt = completedAt

	switch {
	case runErr == runner.ErrTimeout:
		current.Status = job.StatusTimeout
		current.ErrorMessage = "tool timed out"
	case runErr != nil:
		current.Status = job.StatusFailed
		current.ErrorMessage = runErr.Error()
	case res.ExitCode == 0:
		current.Status = job.StatusCompleted
	default:
		current.Status = job.StatusFailed
		current.ErrorMessage = fmt.Sprintf("Tool exited with code %d", res.ExitCode)
	}

	if current, err = e.gateway.UpdateJob(ctx, current); err != nil {
		return fmt.Errorf("jobs: persist terminal state: %w", err)
	}
	e.bus.Publish(eventbus.JobTopic(jobID), eventbus.JobStatusEvent{
		JobID:   jobID,
		Status:  string(current.Status),
		Details: current.ErrorMessage,
	})
	if current.StartedAt != nil {
		metrics.RecordJobExecution(current.ToolName, string(current.Status), completedAt.Sub(*current.StartedAt))
	}

	if current.Status == job.StatusCompleted && def.OutputParser != "" {
		e.queue.Enqueue("parse-job:"+jobID.String(), func(ctx context.Context) error {
			return e.RunParseTask(ctx, jobID)
		})
	}

	return nil
}

// failMissing sets a job failed for step-1 failures (missing job row or
// unresolvable tool); it tolerates the job row itself being unreadable by
// simply returning the error without attempting a write.
func (e *Executor) failMissing(ctx context.Context, jobID uuid.UUID, reason string) error {
	j, err := e.gateway.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("jobs: %s", reason)
	}
	now := time.Now()
	j.Status = job.StatusFailed
	j.ErrorMessage = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
	if _, err := e.gateway.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("jobs: persist failure for %s: %w", jobID, err)
	}
	e.bus.Publish(eventbus.JobTopic(jobID), eventbus.JobStatusEvent{JobID: jobID, Status: string(job.StatusFailed), Details: reason})
	return nil
}
