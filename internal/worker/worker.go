// Package worker runs the background consumers that deliver report notifications.
// Workers run independently of HTTP request handling: the API only enqueues tasks,
// and a slow or failing mail server never delays a report mutation.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"civicapp/internal/observability"
	"civicapp/internal/queue"
	contextutils "civicapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxHistory      = 50
	defaultMaxActivityLogs = 100
	defaultMaxAttempts     = 3
	defaultRetryBackoff    = 500 * time.Millisecond
)

// Status represents the current state of the worker
type Status struct {
	IsRunning       bool      `json:"is_running"`
	CurrentActivity string    `json:"current_activity,omitempty"`
	LastRunStart    time.Time `json:"last_run_start"`
	LastRunFinish   time.Time `json:"last_run_finish"`
	LastRunError    string    `json:"last_run_error,omitempty"`
	TasksProcessed  int       `json:"tasks_processed"`
	TasksFailed     int       `json:"tasks_failed"`
}

// RunRecord tracks one handled task
type RunRecord struct {
	TaskID    string        `json:"task_id"`
	TaskType  string        `json:"task_type"`
	ReportID  string        `json:"report_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Status    string        `json:"status"` // Success, Failure
	Details   string        `json:"details,omitempty"`
}

// ActivityLog represents a single activity log entry
type ActivityLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // INFO, WARN, ERROR
	Message   string    `json:"message"`
}

// Worker consumes notification tasks with a fixed number of goroutines
type Worker struct {
	consumer     queue.Consumer
	handler      queue.Handler
	workers      int
	instance     string
	status       Status
	history      []RunRecord
	activityLogs []ActivityLog
	mu           sync.RWMutex
	logger       *observability.Logger

	maxAttempts int
	backoff     time.Duration

	// Time function for testing - defaults to time.Now
	timeNow func() time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a worker that feeds every task from consumer to handler
func NewWorker(consumer queue.Consumer, handler queue.Handler, workers int, instance string, logger *observability.Logger) *Worker {
	if instance == "" {
		instance = "default"
	}
	if workers <= 0 {
		workers = 1
	}

	return &Worker{
		consumer:     consumer,
		handler:      handler,
		workers:      workers,
		instance:     instance,
		status:       Status{CurrentActivity: "Initialized"},
		history:      make([]RunRecord, 0, defaultMaxHistory),
		activityLogs: make([]ActivityLog, 0, defaultMaxActivityLogs),
		logger:       logger,
		maxAttempts:  defaultMaxAttempts,
		backoff:      defaultRetryBackoff,
		timeNow:      time.Now,
	}
}

// Start consumes tasks until ctx is cancelled or the queue is closed
func (w *Worker) Start(ctx context.Context) error {
	w.setRunning(true, "Waiting for tasks")
	w.logger.Info(ctx, "Worker started", map[string]interface{}{
		"instance": w.instance,
		"workers":  w.workers,
	})
	w.logActivity("INFO", fmt.Sprintf("Worker %s started with %d consumers", w.instance, w.workers))

	g, gctx := errgroup.WithContext(ctx)
	for range w.workers {
		g.Go(func() error {
			return w.consumer.Consume(gctx, w.handle)
		})
	}
	err := g.Wait()

	w.setRunning(false, "Stopped")
	w.logActivity("INFO", fmt.Sprintf("Worker %s stopped", w.instance))
	if err != nil && ctx.Err() == nil {
		w.logger.Error(ctx, "Worker consumer failed", err, map[string]interface{}{"instance": w.instance})
		return err
	}
	w.logger.Info(ctx, "Worker shutting down", map[string]interface{}{"instance": w.instance})
	return nil
}

// Startup runs the worker in the background until Shutdown is called
func (w *Worker) Startup(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go func() {
		defer close(done)
		_ = w.Start(runCtx)
	}()
	return nil
}

// Shutdown stops the consumers and waits for in-flight tasks to finish or ctx to expire
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}

	w.logger.Info(ctx, "Worker starting shutdown", map[string]interface{}{"instance": w.instance})
	cancel()

	select {
	case <-done:
		w.logger.Info(ctx, "Worker shutdown completed", map[string]interface{}{"instance": w.instance})
		return nil
	case <-ctx.Done():
		return contextutils.WrapError(contextutils.ErrTimeout, "worker did not stop in time")
	}
}

// Drain waits for the consumers to return on their own, which they do once a closed
// queue is empty, then stops the worker. Consumers still running when ctx expires are cancelled.
func (w *Worker) Drain(ctx context.Context) error {
	w.mu.RLock()
	done := w.done
	w.mu.RUnlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return w.Shutdown(ctx)
}

// IsReady reports whether the consumers are running
func (w *Worker) IsReady() bool {
	return w.GetStatus().IsRunning
}

// handle runs one task, retrying transient failures with exponential backoff
func (w *Worker) handle(ctx context.Context, task queue.Task) (err error) {
	ctx, span := observability.TraceQueueFunction(ctx, "handle_task",
		observability.AttributeTaskType(string(task.Type)),
		observability.AttributeReportID(task.ReportID),
		attribute.String("worker.instance", w.instance),
	)
	defer observability.FinishSpan(span, &err)

	start := w.timeNow()
	w.updateActivity(fmt.Sprintf("Handling %s for report %s", task.Type, task.ReportID))

	attempts := 0
	for {
		attempts++
		err = w.handler(ctx, task)
		if err == nil || !contextutils.IsRetryable(err) || attempts >= w.maxAttempts {
			break
		}

		delay := w.backoff * time.Duration(1<<(attempts-1))
		w.logger.Warn(ctx, "Retrying notification task", map[string]interface{}{
			"task_id":  task.ID,
			"attempt":  attempts,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
		select {
		case <-ctx.Done():
			err = contextutils.WrapError(err, "worker stopped before retry")
			w.recordRun(task, start, attempts, err)
			return err
		case <-time.After(delay):
		}
	}
	span.SetAttributes(attribute.Int("task.attempts", attempts))

	w.recordRun(task, start, attempts, err)
	if err != nil {
		w.logger.Error(ctx, "Notification task failed", err, map[string]interface{}{
			"task_id":   task.ID,
			"task_type": string(task.Type),
			"report_id": task.ReportID,
			"attempts":  attempts,
		})
		w.logActivity("ERROR", fmt.Sprintf("Task %s (%s) failed: %v", task.ID, task.Type, err))
	}
	return err
}

func (w *Worker) recordRun(task queue.Task, start time.Time, attempts int, err error) {
	finish := w.timeNow()
	record := RunRecord{
		TaskID:    task.ID,
		TaskType:  string(task.Type),
		ReportID:  task.ReportID,
		StartTime: start,
		EndTime:   finish,
		Duration:  finish.Sub(start),
		Attempts:  attempts,
		Status:    "Success",
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.status.LastRunStart = start
	w.status.LastRunFinish = finish
	w.status.TasksProcessed++
	w.status.LastRunError = ""
	if err != nil {
		record.Status = "Failure"
		record.Details = err.Error()
		w.status.TasksFailed++
		w.status.LastRunError = err.Error()
	}
	w.status.CurrentActivity = "Waiting for tasks"

	w.history = append(w.history, record)
	if len(w.history) > defaultMaxHistory {
		w.history = w.history[len(w.history)-defaultMaxHistory:]
	}
}

func (w *Worker) setRunning(running bool, activity string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.IsRunning = running
	w.status.CurrentActivity = activity
}

func (w *Worker) updateActivity(activity string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.CurrentActivity = activity
}

// logActivity adds an activity log entry, keeping only the most recent ones
func (w *Worker) logActivity(level, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.activityLogs = append(w.activityLogs, ActivityLog{
		Timestamp: w.timeNow(),
		Level:     level,
		Message:   message,
	})
	if len(w.activityLogs) > defaultMaxActivityLogs {
		w.activityLogs = w.activityLogs[len(w.activityLogs)-defaultMaxActivityLogs:]
	}
}

// GetStatus returns the current worker status
func (w *Worker) GetStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// GetHistory returns the most recent handled tasks
func (w *Worker) GetHistory() []RunRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	history := make([]RunRecord, len(w.history))
	copy(history, w.history)
	return history
}

// GetActivityLogs returns recent activity logs
func (w *Worker) GetActivityLogs() []ActivityLog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	logs := make([]ActivityLog, len(w.activityLogs))
	copy(logs, w.activityLogs)
	return logs
}

// GetInstance returns the worker instance name
func (w *Worker) GetInstance() string {
	return w.instance
}
