package services

import (
	"context"
	"database/sql"
	"strings"

	"civicapp/internal/cache"
	"civicapp/internal/config"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	contextutils "civicapp/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ReportServiceInterface is the report lifecycle manager. It is the only writer of
// report status and enforces the owner-may-edit-only-while-Pending rule.
type ReportServiceInterface interface {
	CreateReport(ctx context.Context, ownerID string, input models.NewReport) (*models.Report, error)
	GetReport(ctx context.Context, reportID, requesterID string) (*models.Report, error)
	UpdateReport(ctx context.Context, reportID, requesterID string, update models.ReportUpdate) (*models.Report, error)
	DeleteReport(ctx context.Context, reportID, requesterID string) error
	SetStatus(ctx context.Context, reportID string, change models.StatusChange) (*models.Report, error)
}

// ReportService implements ReportServiceInterface
type ReportService struct {
	reports  ReportRepository
	cache    cache.AggregateCache
	notifier ReportNotifier
	cfg      *config.Config
	logger   *observability.Logger
}

var _ ReportServiceInterface = (*ReportService)(nil)

// NewReportService creates a report lifecycle service
func NewReportService(reports ReportRepository, aggregateCache cache.AggregateCache, notifier ReportNotifier, cfg *config.Config, logger *observability.Logger) *ReportService {
	return &ReportService{
		reports:  reports,
		cache:    aggregateCache,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// CreateReport files a new Pending report for ownerID
func (s *ReportService) CreateReport(ctx context.Context, ownerID string, input models.NewReport) (result *models.Report, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "create_report",
		observability.AttributeUserID(ownerID),
		observability.AttributeCategory(input.Category),
	)
	defer observability.FinishSpan(span, &err)

	input.Category = strings.TrimSpace(input.Category)
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validateNewReport(input); err != nil {
		return nil, err
	}

	report := &models.Report{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		Category:    input.Category,
		Location:    input.Location,
		Description: input.Description,
		ImageURLs:   append([]string{}, input.ImageURLs...),
		Status:      models.StatusPending,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, err
	}

	span.SetAttributes(observability.AttributeReportID(report.ID))
	s.logger.Info(ctx, "Report created", map[string]interface{}{
		"report_id": report.ID,
		"user_id":   ownerID,
		"category":  report.Category,
	})

	s.invalidateDashboard(ctx)
	s.notifier.NotifyReportReceived(ctx, report)
	return report, nil
}

// GetReport returns a report to its owner
func (s *ReportService) GetReport(ctx context.Context, reportID, requesterID string) (result *models.Report, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "get_report",
		observability.AttributeReportID(reportID),
		observability.AttributeUserID(requesterID),
	)
	defer observability.FinishSpan(span, &err)

	report, err := s.load(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.UserID != requesterID {
		return nil, contextutils.WrapError(contextutils.ErrForbidden, "only the owner may view this report")
	}
	return report, nil
}

// UpdateReport applies the supplied fields to a Pending report owned by requesterID
func (s *ReportService) UpdateReport(ctx context.Context, reportID, requesterID string, update models.ReportUpdate) (result *models.Report, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "update_report",
		observability.AttributeReportID(reportID),
		observability.AttributeUserID(requesterID),
	)
	defer observability.FinishSpan(span, &err)

	if err := s.validateUpdate(&update); err != nil {
		return nil, err
	}

	if _, err := s.loadOwnedPending(ctx, reportID, requesterID); err != nil {
		return nil, err
	}

	updated, ok, err := s.reports.UpdatePending(ctx, reportID, requesterID, update)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The report changed between the check and the write
		return nil, s.explainOwnerWriteFailure(ctx, reportID, requesterID)
	}

	s.logger.Info(ctx, "Report updated", map[string]interface{}{"report_id": reportID, "user_id": requesterID})
	s.invalidateDashboard(ctx)
	return updated, nil
}

// DeleteReport removes a Pending report owned by requesterID
func (s *ReportService) DeleteReport(ctx context.Context, reportID, requesterID string) (err error) {
	ctx, span := observability.TraceReportFunction(ctx, "delete_report",
		observability.AttributeReportID(reportID),
		observability.AttributeUserID(requesterID),
	)
	defer observability.FinishSpan(span, &err)

	if _, err := s.loadOwnedPending(ctx, reportID, requesterID); err != nil {
		return err
	}

	ok, err := s.reports.DeletePending(ctx, reportID, requesterID)
	if err != nil {
		return err
	}
	if !ok {
		return s.explainOwnerWriteFailure(ctx, reportID, requesterID)
	}

	s.logger.Info(ctx, "Report deleted", map[string]interface{}{"report_id": reportID, "user_id": requesterID})
	s.invalidateDashboard(ctx)
	return nil
}

// SetStatus moves a report to any status. The caller must already have checked the
// administrator capability. The reject reason is kept only for Rejected.
func (s *ReportService) SetStatus(ctx context.Context, reportID string, change models.StatusChange) (result *models.Report, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "set_status",
		observability.AttributeReportID(reportID),
		attribute.String("report.requested_status", change.Status),
	)
	defer observability.FinishSpan(span, &err)

	status, ok := models.ParseReportStatus(change.Status)
	if !ok {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn,
			"invalid status", "status must be one of Pending, In Progress, Fixed, Rejected")
	}

	reason := strings.TrimSpace(change.RejectReason)
	rejectReason := sql.NullString{}
	if status == models.StatusRejected {
		if reason == "" {
			return nil, contextutils.NewAppError(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn,
				"reject reason is required when rejecting a report", "")
		}
		rejectReason = sql.NullString{String: reason, Valid: true}
	}

	if !isReportID(reportID) {
		return nil, reportNotFound(reportID)
	}

	report, err := s.reports.SetStatus(ctx, reportID, status, rejectReason)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Report status changed", map[string]interface{}{
		"report_id": reportID,
		"status":    string(status),
	})

	// Committed; the cache and notification steps are best-effort
	s.invalidateDashboard(ctx)
	if status == models.StatusFixed || status == models.StatusRejected {
		s.notifier.NotifyStatusChanged(ctx, report)
	}
	return report, nil
}

func (s *ReportService) load(ctx context.Context, reportID string) (*models.Report, error) {
	if !isReportID(reportID) {
		return nil, reportNotFound(reportID)
	}
	return retryRead(ctx, func(ctx context.Context) (*models.Report, error) {
		return s.reports.GetByID(ctx, reportID)
	})
}

// loadOwnedPending checks existence, then ownership, then the Pending state
func (s *ReportService) loadOwnedPending(ctx context.Context, reportID, requesterID string) (*models.Report, error) {
	report, err := s.load(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.UserID != requesterID {
		return nil, contextutils.WrapError(contextutils.ErrForbidden, "only the owner may modify this report")
	}
	if !report.Status.EditableByOwner() {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidState, contextutils.SeverityInfo,
			"report can only be changed while Pending", "current status is "+string(report.Status))
	}
	return report, nil
}

func (s *ReportService) explainOwnerWriteFailure(ctx context.Context, reportID, requesterID string) error {
	if _, err := s.loadOwnedPending(ctx, reportID, requesterID); err != nil {
		return err
	}
	return contextutils.NewAppError(contextutils.ErrorCodeInvalidState, contextutils.SeverityInfo,
		"report was modified concurrently", "")
}

func (s *ReportService) invalidateDashboard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, s.cfg.Dashboard.CacheKey); err != nil {
		s.logger.Warn(ctx, "Failed to invalidate dashboard cache", map[string]interface{}{
			"cache_key": s.cfg.Dashboard.CacheKey,
			"error":     err.Error(),
		})
	}
}

func (s *ReportService) validateNewReport(input models.NewReport) error {
	if input.Category == "" {
		return contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn, "category is required", "")
	}
	if input.Description == "" {
		return contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn, "description is required", "")
	}
	if !input.Location.Valid() {
		return invalidLocation()
	}
	if err := s.validateImages(input.ImageURLs); err != nil {
		return err
	}
	return contextutils.ValidateStruct(input)
}

func (s *ReportService) validateUpdate(update *models.ReportUpdate) error {
	if update.IsEmpty() {
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "no fields to update", "")
	}
	if update.Category != nil {
		trimmed := strings.TrimSpace(*update.Category)
		if trimmed == "" {
			return contextutils.NewAppError(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn, "category cannot be empty", "")
		}
		update.Category = &trimmed
	}
	if update.Description != nil {
		trimmed := strings.TrimSpace(*update.Description)
		if trimmed == "" {
			return contextutils.NewAppError(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn, "description cannot be empty", "")
		}
		update.Description = &trimmed
	}
	if update.Location != nil && !update.Location.Valid() {
		return invalidLocation()
	}
	if update.ImageURLs != nil {
		return s.validateImages(*update.ImageURLs)
	}
	return nil
}

func (s *ReportService) validateImages(images []string) error {
	if s.cfg.Reports.MaxImages > 0 && len(images) > s.cfg.Reports.MaxImages {
		return contextutils.NewAppError(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn,
			"too many images", "")
	}
	for _, ref := range images {
		if strings.TrimSpace(ref) == "" {
			return contextutils.NewAppError(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn,
				"image reference cannot be empty", "")
		}
	}
	return nil
}

func invalidLocation() error {
	return contextutils.NewAppError(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn,
		"location is out of range", "latitude must be within [-90,90] and longitude within [-180,180]")
}

func isReportID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func reportNotFound(id string) error {
	return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", id)
}
