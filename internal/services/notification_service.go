package services

import (
	"context"

	"civicapp/internal/models"
	"civicapp/internal/observability"
	"civicapp/internal/queue"
	"civicapp/internal/services/mailer"
	contextutils "civicapp/internal/utils"
)

// ReportNotifier is told about report lifecycle events. Implementations must not
// block or fail the caller; delivery happens in the background.
type ReportNotifier interface {
	NotifyReportReceived(ctx context.Context, report *models.Report)
	NotifyStatusChanged(ctx context.Context, report *models.Report)
}

// NotificationService enqueues lifecycle e-mails and, on the worker side, delivers them
type NotificationService struct {
	publisher queue.Publisher
	users     UserServiceInterface
	reports   ReportRepository
	mailer    mailer.Mailer
	metrics   *observability.NotificationMetrics
	logger    *observability.Logger
}

var _ ReportNotifier = (*NotificationService)(nil)

// NewNotificationService creates a notification service. publisher may be nil on the
// worker side and users/reports/mailer may be nil on the publishing side.
func NewNotificationService(publisher queue.Publisher, users UserServiceInterface, reports ReportRepository, m mailer.Mailer, metrics *observability.NotificationMetrics, logger *observability.Logger) *NotificationService {
	return &NotificationService{
		publisher: publisher,
		users:     users,
		reports:   reports,
		mailer:    m,
		metrics:   metrics,
		logger:    logger,
	}
}

// NotifyReportReceived enqueues the confirmation e-mail for a new report
func (s *NotificationService) NotifyReportReceived(ctx context.Context, report *models.Report) {
	s.enqueue(ctx, queue.NewTask(queue.TaskReportReceived, report.ID, report.UserID))
}

// NotifyStatusChanged enqueues the status e-mail for a moderation decision
func (s *NotificationService) NotifyStatusChanged(ctx context.Context, report *models.Report) {
	task := queue.NewTask(queue.TaskStatusChanged, report.ID, report.UserID)
	task.Status = string(report.Status)
	if report.RejectReason.Valid {
		task.RejectReason = report.RejectReason.String
	}
	s.enqueue(ctx, task)
}

func (s *NotificationService) enqueue(ctx context.Context, task queue.Task) {
	// The request may finish before the broker answers
	ctx = context.WithoutCancel(ctx)
	ctx, span := observability.TraceNotificationFunction(ctx, "enqueue",
		observability.AttributeTaskType(string(task.Type)),
		observability.AttributeReportID(task.ReportID),
	)
	defer span.End()

	if s.publisher == nil {
		s.logger.Warn(ctx, "No task publisher configured, dropping notification", map[string]interface{}{
			"task_type": string(task.Type),
			"report_id": task.ReportID,
		})
		return
	}

	if err := s.publisher.Publish(ctx, task); err != nil {
		s.metrics.Failed(ctx)
		s.logger.Error(ctx, "Failed to enqueue notification", err, map[string]interface{}{
			"task_type": string(task.Type),
			"report_id": task.ReportID,
		})
		return
	}
	s.metrics.Enqueued(ctx)
}

// HandleTask delivers one notification task. Permanent failures such as a deleted
// report or user are logged and dropped.
func (s *NotificationService) HandleTask(ctx context.Context, task queue.Task) (err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "handle_task",
		observability.AttributeTaskType(string(task.Type)),
		observability.AttributeReportID(task.ReportID),
	)
	defer observability.FinishSpan(span, &err)

	if s.mailer == nil || s.users == nil {
		return contextutils.ErrorWithContextf("notification delivery is not configured")
	}

	user, err := s.users.GetUserByID(ctx, task.UserID)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			s.logger.Warn(ctx, "Dropping notification for unknown user", map[string]interface{}{"task_id": task.ID})
			return nil
		}
		return err
	}

	report, err := s.loadReport(ctx, task)
	if err != nil {
		return err
	}
	if report == nil {
		s.logger.Info(ctx, "Report no longer exists, skipping notification", map[string]interface{}{
			"task_id":   task.ID,
			"report_id": task.ReportID,
		})
		return nil
	}

	switch task.Type {
	case queue.TaskReportReceived:
		err = s.mailer.SendReportReceived(ctx, user, report)
	case queue.TaskStatusChanged:
		err = s.mailer.SendStatusChanged(ctx, user, report)
	default:
		s.logger.Warn(ctx, "Unknown notification task type", map[string]interface{}{"task_type": string(task.Type)})
		return nil
	}
	if err != nil {
		s.metrics.Failed(ctx)
		return err
	}
	return nil
}

// loadReport prefers the stored report; status tasks fall back to the values carried in the task
func (s *NotificationService) loadReport(ctx context.Context, task queue.Task) (*models.Report, error) {
	if s.reports == nil {
		return &models.Report{ID: task.ReportID, UserID: task.UserID, Status: models.ReportStatus(task.Status)}, nil
	}

	report, err := s.reports.GetByID(ctx, task.ReportID)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	// Report the decision that triggered the task, not a later one
	if task.Type == queue.TaskStatusChanged && task.Status != "" {
		report.Status = models.ReportStatus(task.Status)
		report.RejectReason.String = task.RejectReason
		report.RejectReason.Valid = task.RejectReason != ""
	}
	return report, nil
}
