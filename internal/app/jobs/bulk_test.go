package jobs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/project"
)

func TestRetryManyReportsPerJobFailures(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	ctx := context.Background()

	proj, err := store.CreateProject(ctx, project.Project{ID: uuid.New(), Name: "p"})
	require.NoError(t, err)

	first, err := exec.Submit(ctx, SubmitRequest{
		ProjectID:      proj.ID,
		ToolName:       "echo_tool",
		Parameters:     map[string]any{"message": "one"},
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)
	waitForJobTerminal(t, store, first.ID)

	second, err := exec.Submit(ctx, SubmitRequest{
		ProjectID:      proj.ID,
		ToolName:       "echo_tool",
		Parameters:     map[string]any{"message": "two"},
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)
	waitForJobTerminal(t, store, second.ID)

	missing := uuid.New()

	result := exec.RetryMany(ctx, []uuid.UUID{first.ID, second.ID, missing})
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, missing, result.Errors[0].JobID)
}

func TestCancelManyReportsPerJobFailures(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	ctx := context.Background()

	proj, err := store.CreateProject(ctx, project.Project{ID: uuid.New(), Name: "p"})
	require.NoError(t, err)

	first, err := exec.Submit(ctx, SubmitRequest{
		ProjectID:      proj.ID,
		ToolName:       "echo_tool",
		Parameters:     map[string]any{"message": "one"},
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)

	second, err := exec.Submit(ctx, SubmitRequest{
		ProjectID:      proj.ID,
		ToolName:       "echo_tool",
		Parameters:     map[string]any{"message": "two"},
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)

	missing := uuid.New()

	result := exec.CancelMany(ctx, []uuid.UUID{first.ID, second.ID, missing})
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, missing, result.Errors[0].JobID)

	j1, err := store.GetJob(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, j1.Status)
}
