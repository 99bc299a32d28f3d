package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	contextutils "civicapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	task := NewTask(TaskStatusChanged, "report-1", "user-1")
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, TaskStatusChanged, task.Type)
	assert.Equal(t, "report-1", task.ReportID)
	assert.Equal(t, "user-1", task.UserID)
	assert.WithinDuration(t, time.Now(), task.EnqueuedAt, time.Second)
}

func TestTaskCodec(t *testing.T) {
	task := NewTask(TaskStatusChanged, "report-1", "user-1")
	task.Status = "Rejected"
	task.RejectReason = "Duplicate of #42"

	body, err := encodeTask(task)
	require.NoError(t, err)

	decoded, err := decodeTask(body)
	require.NoError(t, err)
	assert.Equal(t, task.ID, decoded.ID)
	assert.Equal(t, task.RejectReason, decoded.RejectReason)
	assert.True(t, task.EnqueuedAt.Equal(decoded.EnqueuedAt))

	_, err = decodeTask([]byte("{bad"))
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidFormat))

	_, err = decodeTask([]byte(`{"report_id":"r1"}`))
	assert.True(t, contextutils.IsError(err, contextutils.ErrMissingRequired))
}

func TestMemoryQueue_PublishConsume(t *testing.T) {
	q := NewMemoryQueue(10)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, q.Publish(ctx, NewTask(TaskReportReceived, id, "u1")))
	}
	assert.Equal(t, 3, q.Len())
	require.NoError(t, q.Close())

	var mu sync.Mutex
	var seen []string
	err := q.Consume(ctx, func(_ context.Context, task Task) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, task.ReportID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, seen)
}

func TestMemoryQueue_FullAndClosed(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, NewTask(TaskReportReceived, "r1", "u1")))

	err := q.Publish(ctx, NewTask(TaskReportReceived, "r2", "u1"))
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrServiceUnavailable))

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	err = q.Publish(ctx, NewTask(TaskReportReceived, "r3", "u1"))
	assert.True(t, contextutils.IsError(err, contextutils.ErrServiceUnavailable))
}

func TestMemoryQueue_ConsumeStopsOnCancel(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(context.Context, Task) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}
}

func TestMemoryQueue_ConcurrentConsumers(t *testing.T) {
	q := NewMemoryQueue(100)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, q.Publish(ctx, NewTask(TaskReportReceived, "r", "u")))
	}
	require.NoError(t, q.Close())

	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Consume(ctx, func(context.Context, Task) error {
				mu.Lock()
				count++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, count)
}
