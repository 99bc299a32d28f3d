package services

import (
	"context"
	"iter"
	"strings"
	"unicode/utf8"

	"civicapp/internal/config"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	contextutils "civicapp/internal/utils"

	"github.com/google/uuid"
)

// EngagementServiceInterface manages votes and comments on reports
type EngagementServiceInterface interface {
	AddVote(ctx context.Context, reportID, userID string) (int, error)
	AddComment(ctx context.Context, reportID, userID, text string) (*models.Comment, error)
	ListComments(ctx context.Context, reportID string) (iter.Seq2[models.Comment, error], error)
	CountVotes(ctx context.Context, reportID string) (int, error)
	CountVotesBulk(ctx context.Context, reportIDs []string) (map[string]int, error)
}

// EngagementService implements EngagementServiceInterface
type EngagementService struct {
	engagement EngagementRepository
	reports    ReportRepository
	cfg        *config.Config
	logger     *observability.Logger
}

var _ EngagementServiceInterface = (*EngagementService)(nil)

// NewEngagementService creates an engagement service
func NewEngagementService(engagement EngagementRepository, reports ReportRepository, cfg *config.Config, logger *observability.Logger) *EngagementService {
	return &EngagementService{
		engagement: engagement,
		reports:    reports,
		cfg:        cfg,
		logger:     logger,
	}
}

// AddVote records userID's vote and returns the report's new vote total.
// A second vote by the same user is RECORD_ALREADY_EXISTS.
func (s *EngagementService) AddVote(ctx context.Context, reportID, userID string) (result int, err error) {
	ctx, span := observability.TraceEngagementFunction(ctx, "add_vote",
		observability.AttributeReportID(reportID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	if !isReportID(reportID) {
		return 0, reportNotFound(reportID)
	}

	vote := &models.Vote{ID: uuid.NewString(), UserID: userID, ReportID: reportID}
	if err := s.engagement.AddVote(ctx, vote); err != nil {
		return 0, err
	}

	return retryRead(ctx, func(ctx context.Context) (int, error) {
		return s.engagement.CountVotes(ctx, reportID)
	})
}

// AddComment stores a comment and returns it with the author's display name
func (s *EngagementService) AddComment(ctx context.Context, reportID, userID, text string) (result *models.Comment, err error) {
	ctx, span := observability.TraceEngagementFunction(ctx, "add_comment",
		observability.AttributeReportID(reportID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn, "comment text is required", "")
	}
	if limit := s.cfg.Reports.MaxCommentLength; limit > 0 && utf8.RuneCountInString(text) > limit {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn, "comment is too long", "")
	}
	if !isReportID(reportID) {
		return nil, reportNotFound(reportID)
	}

	comment := &models.Comment{
		ID:       uuid.NewString(),
		UserID:   userID,
		ReportID: reportID,
		Text:     text,
	}
	if err := s.engagement.AddComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// ListComments checks that the report exists and returns its comments newest first
func (s *EngagementService) ListComments(ctx context.Context, reportID string) (result iter.Seq2[models.Comment, error], err error) {
	ctx, span := observability.TraceEngagementFunction(ctx, "list_comments", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	if !isReportID(reportID) {
		return nil, reportNotFound(reportID)
	}
	exists, err := retryRead(ctx, func(ctx context.Context) (bool, error) {
		return s.reports.Exists(ctx, reportID)
	})
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, reportNotFound(reportID)
	}
	return s.engagement.ListComments(ctx, reportID), nil
}

// CountVotes returns the vote total of one report
func (s *EngagementService) CountVotes(ctx context.Context, reportID string) (int, error) {
	return retryRead(ctx, func(ctx context.Context) (int, error) {
		return s.engagement.CountVotes(ctx, reportID)
	})
}

// CountVotesBulk returns vote totals for many reports in one query
func (s *EngagementService) CountVotesBulk(ctx context.Context, reportIDs []string) (map[string]int, error) {
	return retryRead(ctx, func(ctx context.Context) (map[string]int, error) {
		return s.engagement.CountVotesBulk(ctx, reportIDs)
	})
}
