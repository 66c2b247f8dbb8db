package app

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
	"github.com/R3E-Network/orchestrator/internal/app/jobs"
	"github.com/R3E-Network/orchestrator/internal/app/parsers"
	"github.com/R3E-Network/orchestrator/internal/app/storage/memory"
	"github.com/R3E-Network/orchestrator/internal/app/taskqueue"
	"github.com/R3E-Network/orchestrator/internal/app/toolregistry"
	"github.com/R3E-Network/orchestrator/internal/app/upsert"
	"github.com/R3E-Network/orchestrator/pkg/logger"
)

func TestNewWiresDefaultStoresAndStartsStops(t *testing.T) {
	application, err := New(Stores{}, nil, WithRuntimeConfig(RuntimeConfig{
		OutputsRoot: t.TempDir(),
	}), WithoutHTTPServer())
	require.NoError(t, err)
	require.NotNil(t, application.Gateway)
	require.NotNil(t, application.Jobs)
	require.NotNil(t, application.Workflows)
	require.NotNil(t, application.Importer)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, application.Start(ctx))
	defer func() { _ = application.Stop(context.Background()) }()

	assert.NotEmpty(t, application.Descriptors())
}

func TestNewRegistersHTTPServiceUnlessOptedOut(t *testing.T) {
	withHTTP, err := New(Stores{}, nil, WithRuntimeConfig(RuntimeConfig{
		OutputsRoot: t.TempDir(),
		HTTPAddr:    "127.0.0.1:0",
	}))
	require.NoError(t, err)
	require.NoError(t, withHTTP.Start(context.Background()))
	defer func() { _ = withHTTP.Stop(context.Background()) }()

	withoutHTTP, err := New(Stores{}, nil, WithRuntimeConfig(RuntimeConfig{
		OutputsRoot: t.TempDir(),
	}), WithoutHTTPServer())
	require.NoError(t, err)
	require.NoError(t, withoutHTTP.Start(context.Background()))
	defer func() { _ = withoutHTTP.Stop(context.Background()) }()
}

// TestScheduledJobsSweepPromotesDueJobs exercises scheduledJobsSweep's
// Callable directly rather than waiting on the real "@every 1m" cron tick.
func TestScheduledJobsSweepPromotesDueJobs(t *testing.T) {
	store := memory.New()
	bus := eventbus.New(nil)
	tools := toolregistry.NewStatic([]toolregistry.Definition{
		{Name: "echo_tool", CommandTemplate: "echo {message}", Parameters: []toolregistry.Parameter{
			{Name: "message", Type: toolregistry.ParamString, Required: true},
		}},
	})
	merger := upsert.New(store, nil)
	queue := taskqueue.New(2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, queue.Start(ctx))
	t.Cleanup(func() { _ = queue.Stop(context.Background()) })

	jobExec := jobs.New(store, tools, bus, parsers.Default(), merger, queue, t.TempDir(), logger.NewDefault("test"))

	proj, err := store.CreateProject(context.Background(), project.Project{ID: uuid.New(), Name: "p"})
	require.NoError(t, err)

	due := time.Now().Add(-time.Minute)
	created, err := store.CreateJob(context.Background(), job.Job{
		ID:          uuid.New(),
		ProjectID:   proj.ID,
		ToolName:    "echo_tool",
		Parameters:  map[string]any{"message": "hi"},
		Command:     "echo hi",
		Status:      job.StatusQueued,
		ScheduledAt: &due,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	})
	require.NoError(t, err)

	sweep := scheduledJobsSweep(store, queue, jobExec, logger.NewDefault("test"))
	require.NoError(t, sweep(context.Background()))

	deadline := time.Now().Add(2 * time.Second)
	var final job.Job
	for time.Now().Before(deadline) {
		final, err = store.GetJob(context.Background(), created.ID)
		require.NoError(t, err)
		if final.Status.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, job.StatusCompleted, final.Status)

	stillDue, err := store.ListDueScheduledJobs(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, stillDue)
}
