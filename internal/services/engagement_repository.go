package services

import (
	"context"
	"database/sql"
	"iter"
	"strings"

	"civicapp/internal/database"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	contextutils "civicapp/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

// EngagementRepository stores votes and comments. Vote uniqueness is enforced by
// the (user_id, report_id) constraint, never by a read-then-write check.
type EngagementRepository interface {
	AddVote(ctx context.Context, vote *models.Vote) error
	CountVotes(ctx context.Context, reportID string) (int, error)
	CountVotesBulk(ctx context.Context, reportIDs []string) (map[string]int, error)
	CountCommentsBulk(ctx context.Context, reportIDs []string) (map[string]int, error)
	AddComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, reportID string) iter.Seq2[models.Comment, error]
}

// EngagementRepositoryImpl implements EngagementRepository on postgres
type EngagementRepositoryImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewEngagementRepository creates a postgres-backed engagement repository
func NewEngagementRepository(db *sql.DB, logger *observability.Logger) *EngagementRepositoryImpl {
	return &EngagementRepositoryImpl{db: db, logger: logger}
}

// AddVote inserts vote; a duplicate is RECORD_ALREADY_EXISTS and an unknown report RECORD_NOT_FOUND
func (r *EngagementRepositoryImpl) AddVote(ctx context.Context, vote *models.Vote) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "add_vote",
		observability.AttributeReportID(vote.ReportID),
		observability.AttributeUserID(vote.UserID),
	)
	defer observability.FinishSpan(span, &err)

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO votes (id, user_id, report_id)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, vote.ID, vote.UserID, vote.ReportID).Scan(&vote.CreatedAt)
	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err):
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeRecordExists, contextutils.SeverityInfo,
			"user has already voted on this report", "", err)
	case database.IsForeignKeyViolation(err):
		return missingReferenceError(err)
	default:
		return contextutils.WrapError(database.ClassifyError(err), "failed to insert vote")
	}
}

// CountVotes returns the number of votes on one report
func (r *EngagementRepositoryImpl) CountVotes(ctx context.Context, reportID string) (result int, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "count_votes", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes WHERE report_id = $1`, reportID).Scan(&count); err != nil {
		return 0, contextutils.WrapError(database.ClassifyError(err), "failed to count votes")
	}
	return count, nil
}

// CountVotesBulk counts votes for every id in one grouped query; ids without votes map to 0
func (r *EngagementRepositoryImpl) CountVotesBulk(ctx context.Context, reportIDs []string) (map[string]int, error) {
	return r.countBulk(ctx, "count_votes_bulk", `
		SELECT report_id, COUNT(*)
		FROM votes
		WHERE report_id = ANY($1::uuid[])
		GROUP BY report_id
	`, reportIDs)
}

// CountCommentsBulk counts comments for every id in one grouped query; ids without comments map to 0
func (r *EngagementRepositoryImpl) CountCommentsBulk(ctx context.Context, reportIDs []string) (map[string]int, error) {
	return r.countBulk(ctx, "count_comments_bulk", `
		SELECT report_id, COUNT(*)
		FROM comments
		WHERE report_id = ANY($1::uuid[])
		GROUP BY report_id
	`, reportIDs)
}

func (r *EngagementRepositoryImpl) countBulk(ctx context.Context, name, query string, reportIDs []string) (result map[string]int, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, name, attribute.Int("report.count", len(reportIDs)))
	defer observability.FinishSpan(span, &err)

	counts := make(map[string]int, len(reportIDs))
	for _, id := range reportIDs {
		counts[id] = 0
	}
	if len(reportIDs) == 0 {
		return counts, nil
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(reportIDs))
	if err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to count engagement")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan engagement count")
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(database.ClassifyError(err), "failed to iterate engagement counts")
	}
	return counts, nil
}

// AddComment inserts comment and fills in its timestamp and author name
func (r *EngagementRepositoryImpl) AddComment(ctx context.Context, comment *models.Comment) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "add_comment",
		observability.AttributeReportID(comment.ReportID),
		observability.AttributeUserID(comment.UserID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		WITH inserted AS (
			INSERT INTO comments (id, user_id, report_id, body)
			VALUES ($1, $2, $3, $4)
			RETURNING id, user_id, created_at
		)
		SELECT i.created_at, COALESCE(u.name, '')
		FROM inserted i
		LEFT JOIN users u ON u.id = i.user_id
	`
	err = r.db.QueryRowContext(ctx, query, comment.ID, comment.UserID, comment.ReportID, comment.Text).
		Scan(&comment.CreatedAt, &comment.AuthorName)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return missingReferenceError(err)
		}
		return contextutils.WrapError(database.ClassifyError(err), "failed to insert comment")
	}
	return nil
}

// ListComments yields the comments on reportID, newest first. Each range over the
// returned sequence runs a fresh query, so it can be iterated more than once.
func (r *EngagementRepositoryImpl) ListComments(ctx context.Context, reportID string) iter.Seq2[models.Comment, error] {
	return func(yield func(models.Comment, error) bool) {
		ctx, span := observability.TraceDatabaseFunction(ctx, "list_comments", observability.AttributeReportID(reportID))
		var err error
		defer observability.FinishSpan(span, &err)

		rows, err := r.db.QueryContext(ctx, `
			SELECT c.id, c.user_id, c.report_id, c.body, c.created_at, COALESCE(u.name, '')
			FROM comments c
			LEFT JOIN users u ON u.id = c.user_id
			WHERE c.report_id = $1
			ORDER BY c.created_at DESC, c.id DESC
		`, reportID)
		if err != nil {
			err = contextutils.WrapError(database.ClassifyError(err), "failed to list comments")
			yield(models.Comment{}, err)
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var c models.Comment
			if scanErr := rows.Scan(&c.ID, &c.UserID, &c.ReportID, &c.Text, &c.CreatedAt, &c.AuthorName); scanErr != nil {
				err = contextutils.WrapError(scanErr, "failed to scan comment")
				yield(models.Comment{}, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if rowsErr := rows.Err(); rowsErr != nil {
			err = contextutils.WrapError(database.ClassifyError(rowsErr), "failed to iterate comments")
			yield(models.Comment{}, err)
		}
	}
}

// missingReferenceError tells a caller without a users row apart from a missing report.
// Foreign keys use the postgres default names, e.g. votes_user_id_fkey.
func missingReferenceError(err error) error {
	if strings.HasSuffix(database.ViolatedConstraint(err), "_user_id_fkey") {
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeUnauthorized, contextutils.SeverityWarn,
			"caller is not a registered user", "", err)
	}
	return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeRecordNotFound, contextutils.SeverityInfo,
		"report not found", "", err)
}
