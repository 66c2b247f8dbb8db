// Package job holds the execution-unit entities: Job, JobTarget, JobOutput.
package job

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a Job. Transitions are defined in
// the job executor; no Job ever leaves a terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	default:
		return false
	}
}

// Job is one external tool execution.
type Job struct {
	ID             uuid.UUID
	ProjectID      uuid.UUID
	ToolName       string
	Parameters     map[string]any
	Command        string
	Priority       int
	TimeoutSeconds int
	Status         Status
	ExitCode       *int
	ErrorMessage   string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ScheduledAt    *time.Time
	CreatedBy      uuid.UUID
	WorkflowRunID  *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Target is a many-to-many link between a Job and an Asset it operates on.
type Target struct {
	JobID   uuid.UUID
	AssetID uuid.UUID
}

// OutputType distinguishes stdout from stderr chunks.
type OutputType string

const (
	OutputStdout OutputType = "stdout"
	OutputStderr OutputType = "stderr"
)

// Output is one ordered chunk of a Job's streamed output. Sequence numbers
// are contiguous per job, starting at 0, with no gaps.
type Output struct {
	JobID     uuid.UUID
	Sequence  int
	Type      OutputType
	Content   string
	Timestamp time.Time
}
