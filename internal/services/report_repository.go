package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"civicapp/internal/database"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	contextutils "civicapp/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

// ReportRepository is the durable report collection. Owner mutations are
// conditional single-row statements so a concurrent status change cannot be overwritten.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	Exists(ctx context.Context, id string) (bool, error)
	// UpdatePending writes only the supplied fields, and only while the report is Pending and owned by ownerID.
	// ok is false when that condition no longer holds.
	UpdatePending(ctx context.Context, id, ownerID string, update models.ReportUpdate) (updated *models.Report, ok bool, err error)
	DeletePending(ctx context.Context, id, ownerID string) (ok bool, err error)
	SetStatus(ctx context.Context, id string, status models.ReportStatus, rejectReason sql.NullString) (*models.Report, error)
	CountByStatus(ctx context.Context) (map[models.ReportStatus]int, error)
	AverageResolutionDays(ctx context.Context) (float64, error)
	CountByCategory(ctx context.Context) ([]models.CategoryCount, error)
	Count(ctx context.Context, filter models.ReportFilter) (int, error)
	List(ctx context.Context, query models.ReportListQuery) ([]models.EnrichedReport, error)
	ListAll(ctx context.Context, filter models.ReportFilter) ([]models.Report, error)
}

// ReportRepositoryImpl implements ReportRepository on postgres
type ReportRepositoryImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewReportRepository creates a postgres-backed report repository
func NewReportRepository(db *sql.DB, logger *observability.Logger) *ReportRepositoryImpl {
	return &ReportRepositoryImpl{db: db, logger: logger}
}

const reportSelectFields = `r.id, r.user_id, r.category, r.latitude, r.longitude, r.description, r.image_urls, r.status, r.reject_reason, r.created_at, r.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner, extra ...interface{}) (*models.Report, error) {
	report := &models.Report{}
	var status string
	dest := []interface{}{
		&report.ID, &report.UserID, &report.Category,
		&report.Location.Latitude, &report.Location.Longitude,
		&report.Description, pq.Array(&report.ImageURLs), &status,
		&report.RejectReason, &report.CreatedAt, &report.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	report.Status = models.ReportStatus(status)
	return report, nil
}

// Create inserts report; the database assigns the timestamps
func (r *ReportRepositoryImpl) Create(ctx context.Context, report *models.Report) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "create_report",
		observability.AttributeReportID(report.ID),
		observability.AttributeCategory(report.Category),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		INSERT INTO reports (id, user_id, category, latitude, longitude, description, image_urls, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		report.ID, report.UserID, report.Category,
		report.Location.Latitude, report.Location.Longitude,
		report.Description, pq.Array(report.ImageURLs), string(report.Status),
	).Scan(&report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return missingReferenceError(err)
		}
		return contextutils.WrapError(database.ClassifyError(err), "failed to insert report")
	}
	return nil
}

// GetByID returns the report or a RECORD_NOT_FOUND error
func (r *ReportRepositoryImpl) GetByID(ctx context.Context, id string) (result *models.Report, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_report", observability.AttributeReportID(id))
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + reportSelectFields + ` FROM reports r WHERE r.id = $1`
	report, err := scanReport(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", id)
	}
	if err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to load report")
	}
	return report, nil
}

// Exists reports whether a report with id exists
func (r *ReportRepositoryImpl) Exists(ctx context.Context, id string) (result bool, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "report_exists", observability.AttributeReportID(id))
	defer observability.FinishSpan(span, &err)

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reports WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, contextutils.WrapError(database.ClassifyError(err), "failed to check report")
	}
	return exists, nil
}

// UpdatePending writes the supplied fields of a Pending report owned by ownerID.
// Absent fields are bound as NULL and keep their stored value.
func (r *ReportRepositoryImpl) UpdatePending(ctx context.Context, id, ownerID string, update models.ReportUpdate) (result *models.Report, ok bool, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "update_pending_report",
		observability.AttributeReportID(id),
		observability.AttributeUserID(ownerID),
	)
	defer observability.FinishSpan(span, &err)

	var (
		category, description sql.NullString
		latitude, longitude   sql.NullFloat64
		imageURLs             interface{}
	)
	if update.Category != nil {
		category = sql.NullString{String: *update.Category, Valid: true}
	}
	if update.Description != nil {
		description = sql.NullString{String: *update.Description, Valid: true}
	}
	if update.Location != nil {
		latitude = sql.NullFloat64{Float64: update.Location.Latitude, Valid: true}
		longitude = sql.NullFloat64{Float64: update.Location.Longitude, Valid: true}
	}
	if update.ImageURLs != nil {
		urls := *update.ImageURLs
		if urls == nil {
			urls = []string{}
		}
		imageURLs = pq.Array(urls)
	}

	query := `
		UPDATE reports r
		SET category = COALESCE($3, r.category),
			latitude = COALESCE($4, r.latitude),
			longitude = COALESCE($5, r.longitude),
			description = COALESCE($6, r.description),
			image_urls = COALESCE($7::text[], r.image_urls),
			updated_at = NOW()
		WHERE r.id = $1 AND r.user_id = $2 AND r.status = 'Pending'
		RETURNING ` + reportSelectFields

	updated, err := scanReport(r.db.QueryRowContext(ctx, query,
		id, ownerID, category, latitude, longitude, description, imageURLs,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, contextutils.WrapError(database.ClassifyError(err), "failed to update report")
	}
	return updated, true, nil
}

// DeletePending removes a Pending report owned by ownerID
func (r *ReportRepositoryImpl) DeletePending(ctx context.Context, id, ownerID string) (ok bool, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "delete_pending_report",
		observability.AttributeReportID(id),
		observability.AttributeUserID(ownerID),
	)
	defer observability.FinishSpan(span, &err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1 AND user_id = $2 AND status = 'Pending'`, id, ownerID)
	if err != nil {
		return false, contextutils.WrapError(database.ClassifyError(err), "failed to delete report")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, contextutils.WrapError(err, "failed to read affected rows")
	}
	return affected == 1, nil
}

// SetStatus moves a report to status, storing rejectReason alongside it
func (r *ReportRepositoryImpl) SetStatus(ctx context.Context, id string, status models.ReportStatus, rejectReason sql.NullString) (result *models.Report, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "set_report_status",
		observability.AttributeReportID(id),
		observability.AttributeStatus(string(status)),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		UPDATE reports r
		SET status = $2, reject_reason = $3, updated_at = NOW()
		WHERE r.id = $1
		RETURNING ` + reportSelectFields

	report, err := scanReport(r.db.QueryRowContext(ctx, query, id, string(status), rejectReason))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", id)
	}
	if err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to update report status")
	}
	return report, nil
}

// CountByStatus groups all reports by status
func (r *ReportRepositoryImpl) CountByStatus(ctx context.Context) (result map[models.ReportStatus]int, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "count_reports_by_status")
	defer observability.FinishSpan(span, &err)

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reports GROUP BY status`)
	if err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to count reports by status")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	counts := make(map[models.ReportStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan status count")
		}
		counts[models.ReportStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to iterate status counts")
	}
	return counts, nil
}

// AverageResolutionDays is the mean of (updated_at - created_at) in days over Fixed reports, 0 when none exist
func (r *ReportRepositoryImpl) AverageResolutionDays(ctx context.Context) (result float64, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "average_resolution_days")
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (updated_at - created_at))) / 86400.0, 0)
		FROM reports
		WHERE status = 'Fixed'
	`
	var days float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&days); err != nil {
		return 0, contextutils.WrapError(database.ClassifyError(err), "failed to compute resolution time")
	}
	return days, nil
}

// CountByCategory returns the category distribution, largest first
func (r *ReportRepositoryImpl) CountByCategory(ctx context.Context) (result []models.CategoryCount, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "count_reports_by_category")
	defer observability.FinishSpan(span, &err)

	rows, err := r.db.QueryContext(ctx, `
		SELECT category, COUNT(*) AS n
		FROM reports
		GROUP BY category
		ORDER BY n DESC, category ASC
	`)
	if err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to count reports by category")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	distribution := []models.CategoryCount{}
	for rows.Next() {
		var c models.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan category count")
		}
		distribution = append(distribution, c)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to iterate category counts")
	}
	return distribution, nil
}

// buildReportFilter renders the WHERE clause for filter starting at placeholder $1
func buildReportFilter(filter models.ReportFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("r.category = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func reportOrderBy(key models.SortKey, direction models.SortDirection) string {
	dir := "DESC"
	if direction == models.SortAsc {
		dir = "ASC"
	}
	if key == models.SortByVotes {
		return fmt.Sprintf(" ORDER BY (SELECT COUNT(*) FROM votes v WHERE v.report_id = r.id) %s, r.id %s", dir, dir)
	}
	return fmt.Sprintf(" ORDER BY r.created_at %s, r.id %s", dir, dir)
}

// Count returns the number of reports matching filter, independent of pagination
func (r *ReportRepositoryImpl) Count(ctx context.Context, filter models.ReportFilter) (result int, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "count_reports",
		observability.AttributeStatusFilter(string(filter.Status)),
		observability.AttributeCategoryFilter(filter.Category),
	)
	defer observability.FinishSpan(span, &err)

	where, args := buildReportFilter(filter)
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports r`+where, args...).Scan(&total); err != nil {
		return 0, contextutils.WrapError(database.ClassifyError(err), "failed to count reports")
	}
	return total, nil
}

// List returns one page of reports joined with their owner; vote counts are left at zero
func (r *ReportRepositoryImpl) List(ctx context.Context, q models.ReportListQuery) (result []models.EnrichedReport, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_reports",
		observability.AttributeStatusFilter(string(q.Filter.Status)),
		observability.AttributeCategoryFilter(q.Filter.Category),
		observability.AttributePage(q.Page),
		observability.AttributePageSize(q.PageSize),
		attribute.String("sort.key", string(q.SortKey)),
	)
	defer observability.FinishSpan(span, &err)

	where, args := buildReportFilter(q.Filter)
	args = append(args, q.PageSize, q.Offset())
	query := `SELECT ` + reportSelectFields + `, u.name, u.email FROM reports r JOIN users u ON u.id = r.user_id` +
		where + reportOrderBy(q.SortKey, q.Direction) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to list reports")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	items := []models.EnrichedReport{}
	for rows.Next() {
		owner := &models.ReportOwner{}
		report, err := scanReport(rows, &owner.Name, &owner.Email)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan report")
		}
		items = append(items, models.EnrichedReport{Report: *report, Owner: owner})
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to iterate reports")
	}
	return items, nil
}

// ListAll returns every report matching filter, newest first
func (r *ReportRepositoryImpl) ListAll(ctx context.Context, filter models.ReportFilter) (result []models.Report, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_all_reports",
		observability.AttributeStatusFilter(string(filter.Status)),
		observability.AttributeCategoryFilter(filter.Category),
	)
	defer observability.FinishSpan(span, &err)

	where, args := buildReportFilter(filter)
	query := `SELECT ` + reportSelectFields + ` FROM reports r` + where + reportOrderBy(models.SortByCreatedAt, models.SortDesc)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to list reports")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	reports := []models.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan report")
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to iterate reports")
	}
	return reports, nil
}
