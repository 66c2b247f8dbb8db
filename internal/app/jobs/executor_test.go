package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/project"
	"github.com/R3E-Network/orchestrator/internal/app/eventbus"
	"github.com/R3E-Network/orchestrator/internal/app/parsers"
	"github.com/R3E-Network/orchestrator/internal/app/storage/memory"
	"github.com/R3E-Network/orchestrator/internal/app/taskqueue"
	"github.com/R3E-Network/orchestrator/internal/app/toolregistry"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
	"github.com/R3E-Network/orchestrator/pkg/logger"
)

func newTestExecutor(t *testing.T) (*Executor, *memory.Store, *eventbus.Bus) {
	t.Helper()
	store := memory.New()
	bus := eventbus.New(nil)
	tools := toolregistry.NewStatic([]toolregistry.Definition{
		{Name: "echo_tool", CommandTemplate: "echo {message}", Parameters: []toolregistry.Parameter{
			{Name: "message", Type: toolregistry.ParamString, Required: true},
		}},
		{Name: "fail_tool", CommandTemplate: "exit 7"},
		{Name: "multiline_tool", CommandTemplate: `printf 'one\ntwo\nthree\n'`},
	})
	merger := upsert.New(store, nil)
	q := taskqueue.New(2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, q.Start(ctx))
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	exec := New(store, tools, bus, parsers.Default(), merger, q, t.TempDir(), logger.NewDefault("test"))
	return exec, store, bus
}

func waitForJobTerminal(t *testing.T, store *memory.Store, id uuid.UUID) job.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := store.GetJob(context.Background(), id)
		require.NoError(t, err)
		if j.Status.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
	return job.Job{}
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	ctx := context.Background()

	proj, err := store.CreateProject(ctx, project.Project{ID: uuid.New(), Name: "p"})
	require.NoError(t, err)

	created, err := exec.Submit(ctx, SubmitRequest{
		ProjectID:      proj.ID,
		ToolName:       "echo_tool",
		Parameters:     map[string]any{"message": "hello"},
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)

	final := waitForJobTerminal(t, store, created.ID)
	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.NotNil(t, final.ExitCode)
	assert.Equal(t, 0, *final.ExitCode)

	outputs, err := store.ListOutput(ctx, created.ID, false)
	require.NoError(t, err)
	assert.NotEmpty(t, outputs)
}

// P1: output sequence monotonicity
func TestSubmitOutputSequenceIsContiguous(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	ctx := context.Background()

	proj, err := store.CreateProject(ctx, project.Project{ID: uuid.New(), Name: "p"})
	require.NoError(t, err)

	created, err := exec.Submit(ctx, SubmitRequest{
		ProjectID:      proj.ID,
		ToolName:       "multiline_tool",
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)

	waitForJobTerminal(t, store, created.ID)

	outputs, err := store.ListOutput(ctx, created.ID, false)
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	for i, o := range outputs {
		assert.Equal(t, i, o.Sequence)
	}
}

func TestSubmitRecordsNonZeroExitAsFailed(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	ctx := context.Background()

	proj, err := store.CreateProject(ctx, project.Project{ID: uuid.New(), Name: "p"})
	require.NoError(t, err)

	created, err := exec.Submit(ctx, SubmitRequest{
		ProjectID:      proj.ID,
		ToolName:       "fail_tool",
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)

	final := waitForJobTerminal(t, store, created.ID)
	assert.Equal(t, job.StatusFailed, final.Status)
	assert.Equal(t, "Tool exited with code 7", final.ErrorMessage)
}

func TestSubmitUnknownToolFails(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	ctx := context.Background()

	_, err := exec.Submit(ctx, SubmitRequest{ProjectID: uuid.New(), ToolName: "does_not_exist"})
	assert.Error(t, err)
}

func TestCancelMarksJobCancelled(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	ctx := context.Background()

	proj, err := store.CreateProject(ctx, project.Project{ID: uuid.New(), Name: "p"})
	require.NoError(t, err)

	created, err := exec.Submit(ctx, SubmitRequest{
		ProjectID:      proj.ID,
		ToolName:       "echo_tool",
		Parameters:     map[string]any{"message": "hi"},
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)

	require.NoError(t, exec.Cancel(ctx, created.ID))

	j, err := store.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, j.Status)
}

// P2: no job transitions out of a terminal state
func TestCancelOnTerminalJobIsNoop(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	ctx := context.Background()

	proj, err := store.CreateProject(ctx, project.Project{ID: uuid.New(), Name: "p"})
	require.NoError(t, err)

	created, err := exec.Submit(ctx, SubmitRequest{
		ProjectID:      proj.ID,
		ToolName:       "echo_tool",
		Parameters:     map[string]any{"message": "hi"},
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)

	completed := waitForJobTerminal(t, store, created.ID)
	require.Equal(t, job.StatusCompleted, completed.Status)

	require.NoError(t, exec.Cancel(ctx, created.ID))

	after, err := store.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, after.Status, "cancel must not move a job out of a terminal state")
}

func TestRetryCreatesNewJobWithIdenticalFields(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	ctx := context.Background()

	proj, err := store.CreateProject(ctx, project.Project{ID: uuid.New(), Name: "p"})
	require.NoError(t, err)

	created, err := exec.Submit(ctx, SubmitRequest{
		ProjectID:      proj.ID,
		ToolName:       "echo_tool",
		Parameters:     map[string]any{"message": "hi"},
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)
	waitForJobTerminal(t, store, created.ID)

	retried, err := exec.Retry(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, retried.ID)
	assert.Equal(t, created.Command, retried.Command)
	assert.Equal(t, created.ToolName, retried.ToolName)

	original, err := store.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, original.Status)
}
