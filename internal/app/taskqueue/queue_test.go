package taskqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEnqueueRunsTaskToCompletion(t *testing.T) {
	q := New(2, nil)
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q.Stop(context.Background())

	var ran int32
	id := q.Enqueue("noop", func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	waitForTerminal(t, q, id)

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("task did not run")
	}
	record, _ := q.Get(id)
	if record.Status != TaskCompleted {
		t.Fatalf("got status %s", record.Status)
	}
}

func TestEnqueueRecordsFailure(t *testing.T) {
	q := New(1, nil)
	q.Start(context.Background())
	defer q.Stop(context.Background())

	id := q.Enqueue("boom", func(ctx context.Context) error {
		return errors.New("boom")
	})

	waitForTerminal(t, q, id)
	record, _ := q.Get(id)
	if record.Status != TaskFailed {
		t.Fatalf("got status %s", record.Status)
	}
}

func TestEnqueueRecoversPanic(t *testing.T) {
	q := New(1, nil)
	q.Start(context.Background())
	defer q.Stop(context.Background())

	id := q.Enqueue("panics", func(ctx context.Context) error {
		panic("oh no")
	})

	waitForTerminal(t, q, id)
	record, _ := q.Get(id)
	if record.Status != TaskFailed {
		t.Fatalf("got status %s", record.Status)
	}
}

func TestScheduleRunsRepeatedly(t *testing.T) {
	q := New(2, nil)
	q.Start(context.Background())
	defer q.Stop(context.Background())

	var count int32
	_, err := q.Schedule("@every 50ms", "tick", func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if atomic.LoadInt32(&count) < 2 {
		t.Fatalf("expected at least 2 runs, got %d", count)
	}
}

func waitForTerminal(t *testing.T, q *Queue, id uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := q.Get(id)
		if ok && record.CompletedAt != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task did not reach a terminal state in time")
}
