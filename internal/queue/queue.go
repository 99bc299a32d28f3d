// Package queue carries background notification tasks from request handlers to workers.
package queue

import (
	"context"
	"encoding/json"
	"time"

	contextutils "civicapp/internal/utils"

	"github.com/google/uuid"
)

// TaskType identifies what a worker should do with a task
type TaskType string

// Notification task types
const (
	TaskReportReceived TaskType = "report_received"
	TaskStatusChanged  TaskType = "status_changed"
)

// Task is a unit of background work. It is JSON encoded on the wire.
type Task struct {
	ID           string    `json:"id"`
	Type         TaskType  `json:"type"`
	ReportID     string    `json:"report_id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status,omitempty"`
	RejectReason string    `json:"reject_reason,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// NewTask stamps a task with an id and enqueue time
func NewTask(taskType TaskType, reportID, userID string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		ReportID:   reportID,
		UserID:     userID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Handler processes one task
type Handler func(ctx context.Context, task Task) error

// Publisher submits tasks for background processing
type Publisher interface {
	Publish(ctx context.Context, task Task) error
	Close() error
}

// Consumer delivers tasks to handler until ctx is cancelled or the queue is closed
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

func encodeTask(task Task) ([]byte, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to encode task")
	}
	return body, nil
}

func decodeTask(body []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return Task{}, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityWarn, "Malformed task payload", err.Error(), err)
	}
	if task.Type == "" {
		return Task{}, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn, "Malformed task payload", "task type is empty")
	}
	return task, nil
}
