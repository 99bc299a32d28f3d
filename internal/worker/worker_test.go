package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"civicapp/internal/observability"
	"civicapp/internal/queue"
	contextutils "civicapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(q *queue.MemoryQueue, handler queue.Handler, workers int) *Worker {
	w := NewWorker(q, handler, workers, "test", observability.NewNopLogger())
	w.backoff = time.Millisecond
	return w
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(queue.NewMemoryQueue(1), nil, 0, "", observability.NewNopLogger())

	assert.Equal(t, "default", w.GetInstance())
	assert.Equal(t, 1, w.workers)
	assert.Equal(t, defaultMaxAttempts, w.maxAttempts)
	assert.False(t, w.IsReady())
	assert.Equal(t, "Initialized", w.GetStatus().CurrentActivity)
	assert.Empty(t, w.GetHistory())
}

func TestWorker_StartDrainsQueueUntilClosed(t *testing.T) {
	q := queue.NewMemoryQueue(10)
	var mu sync.Mutex
	var handled []string
	w := newTestWorker(q, func(ctx context.Context, task queue.Task) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, task.ReportID)
		return nil
	}, 3)

	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		require.NoError(t, q.Publish(context.Background(), queue.NewTask(queue.TaskReportReceived, id, "u1")))
	}
	require.NoError(t, q.Close())

	require.NoError(t, w.Start(context.Background()))

	assert.ElementsMatch(t, []string{"r1", "r2", "r3", "r4"}, handled)
	status := w.GetStatus()
	assert.False(t, status.IsRunning)
	assert.Equal(t, 4, status.TasksProcessed)
	assert.Equal(t, 0, status.TasksFailed)
	assert.Len(t, w.GetHistory(), 4)
	for _, record := range w.GetHistory() {
		assert.Equal(t, "Success", record.Status)
		assert.Equal(t, 1, record.Attempts)
	}
}

func TestWorker_RetriesTransientFailures(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	var calls atomic.Int32
	w := newTestWorker(q, func(ctx context.Context, task queue.Task) error {
		if calls.Add(1) < 3 {
			return contextutils.WrapError(contextutils.ErrServiceUnavailable, "smtp down")
		}
		return nil
	}, 1)

	require.NoError(t, q.Publish(context.Background(), queue.NewTask(queue.TaskStatusChanged, "r1", "u1")))
	require.NoError(t, q.Close())
	require.NoError(t, w.Start(context.Background()))

	assert.Equal(t, int32(3), calls.Load())
	history := w.GetHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "Success", history[0].Status)
	assert.Equal(t, 3, history[0].Attempts)
}

func TestWorker_GivesUpAfterMaxAttempts(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	var calls atomic.Int32
	w := newTestWorker(q, func(ctx context.Context, task queue.Task) error {
		calls.Add(1)
		return contextutils.WrapError(contextutils.ErrTimeout, "smtp timeout")
	}, 1)

	require.NoError(t, q.Publish(context.Background(), queue.NewTask(queue.TaskStatusChanged, "r1", "u1")))
	require.NoError(t, q.Close())
	require.NoError(t, w.Start(context.Background()))

	assert.Equal(t, int32(defaultMaxAttempts), calls.Load())
	status := w.GetStatus()
	assert.Equal(t, 1, status.TasksFailed)
	assert.Contains(t, status.LastRunError, "smtp timeout")

	history := w.GetHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "Failure", history[0].Status)

	logs := w.GetActivityLogs()
	var sawError bool
	for _, entry := range logs {
		if entry.Level == "ERROR" {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestWorker_PermanentFailureNotRetried(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	var calls atomic.Int32
	w := newTestWorker(q, func(ctx context.Context, task queue.Task) error {
		calls.Add(1)
		return errors.New("template missing")
	}, 1)

	require.NoError(t, q.Publish(context.Background(), queue.NewTask(queue.TaskReportReceived, "r1", "u1")))
	require.NoError(t, q.Close())
	require.NoError(t, w.Start(context.Background()))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, w.GetStatus().TasksFailed)
}

func TestWorker_StartupAndShutdown(t *testing.T) {
	q := queue.NewMemoryQueue(10)
	handled := make(chan string, 1)
	w := newTestWorker(q, func(ctx context.Context, task queue.Task) error {
		handled <- task.ReportID
		return nil
	}, 2)

	require.NoError(t, w.Startup(context.Background()))
	// A second Startup is a no-op
	require.NoError(t, w.Startup(context.Background()))

	require.Eventually(t, w.IsReady, time.Second, 5*time.Millisecond)

	require.NoError(t, q.Publish(context.Background(), queue.NewTask(queue.TaskReportReceived, "r1", "u1")))
	select {
	case id := <-handled:
		assert.Equal(t, "r1", id)
	case <-time.After(time.Second):
		t.Fatal("task was not handled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))
	assert.False(t, w.IsReady())

	// Shutdown without a running worker is a no-op
	require.NoError(t, w.Shutdown(ctx))
}

func TestWorker_DrainDeliversBufferedTasks(t *testing.T) {
	q := queue.NewMemoryQueue(10)
	var handled atomic.Int32
	release := make(chan struct{})
	w := newTestWorker(q, func(ctx context.Context, task queue.Task) error {
		<-release
		handled.Add(1)
		return nil
	}, 1)

	require.NoError(t, w.Startup(context.Background()))
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, q.Publish(context.Background(), queue.NewTask(queue.TaskReportReceived, id, "u1")))
	}
	require.NoError(t, q.Close())
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Drain(ctx))

	assert.Equal(t, int32(3), handled.Load())
	assert.False(t, w.IsReady())
}

func TestWorker_HistoryIsBounded(t *testing.T) {
	w := newTestWorker(queue.NewMemoryQueue(1), nil, 1)
	for i := 0; i < defaultMaxHistory+10; i++ {
		w.recordRun(queue.Task{ID: "t"}, time.Now(), 1, nil)
	}
	for i := 0; i < defaultMaxActivityLogs+5; i++ {
		w.logActivity("INFO", "tick")
	}

	assert.Len(t, w.GetHistory(), defaultMaxHistory)
	assert.Len(t, w.GetActivityLogs(), defaultMaxActivityLogs)
	assert.Equal(t, defaultMaxHistory+10, w.GetStatus().TasksProcessed)
}

func TestWorker_GetHistoryReturnsCopy(t *testing.T) {
	w := newTestWorker(queue.NewMemoryQueue(1), nil, 1)
	w.recordRun(queue.Task{ID: "t1"}, time.Now(), 1, nil)

	history := w.GetHistory()
	history[0].TaskID = "changed"

	assert.Equal(t, "t1", w.GetHistory()[0].TaskID)
}
