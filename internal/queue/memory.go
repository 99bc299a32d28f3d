package queue

import (
	"context"
	"sync"

	contextutils "civicapp/internal/utils"
)

// MemoryQueue is an in-process Publisher and Consumer backed by a buffered channel.
// Tasks still buffered when the process exits are lost.
type MemoryQueue struct {
	tasks  chan Task
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates a queue that holds up to buffer pending tasks
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer < 1 {
		buffer = 1
	}
	return &MemoryQueue{tasks: make(chan Task, buffer)}
}

// Publish enqueues task without blocking; a full or closed queue is reported as unavailable
func (q *MemoryQueue) Publish(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return contextutils.WrapError(contextutils.ErrServiceUnavailable, "task queue is closed")
	}
	if err := ctx.Err(); err != nil {
		return contextutils.WrapError(contextutils.ErrTimeout, "publish cancelled")
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		return contextutils.WrapError(contextutils.ErrServiceUnavailable, "task queue is full")
	}
}

// Consume runs handler for each task until ctx is done or the queue is closed and drained.
// Several goroutines may consume concurrently.
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case task, ok := <-q.tasks:
			if !ok {
				return nil
			}
			_ = handler(ctx, task)
		}
	}
}

// Len returns the number of buffered tasks
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}

// Close stops accepting tasks; consumers drain what is buffered and return
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	return nil
}
