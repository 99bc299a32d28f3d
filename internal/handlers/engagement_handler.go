package handlers

import (
	"net/http"

	"civicapp/internal/models"
	"civicapp/internal/observability"
	"civicapp/internal/services"
	contextutils "civicapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// EngagementHandler handles votes and comments on reports
type EngagementHandler struct {
	engagementService services.EngagementServiceInterface
	logger            *observability.Logger
}

// NewEngagementHandler creates a new EngagementHandler
func NewEngagementHandler(engagementService services.EngagementServiceInterface, logger *observability.Logger) *EngagementHandler {
	return &EngagementHandler{
		engagementService: engagementService,
		logger:            logger,
	}
}

// AddVote handles POST /v1/reports/:id/vote
func (h *EngagementHandler) AddVote(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "add_vote")
	defer observability.FinishSpan(span, nil)

	userID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	reportID := c.Param("id")
	count, err := h.engagementService.AddVote(ctx, reportID, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report_id": reportID, "vote_count": count})
}

// AddComment handles POST /v1/reports/:id/comments
func (h *EngagementHandler) AddComment(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "add_comment")
	defer observability.FinishSpan(span, nil)

	userID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var req models.NewComment
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn,
			"Comment text is required", err.Error()))
		return
	}

	comment, err := h.engagementService.AddComment(ctx, c.Param("id"), userID, req.Text)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// ListComments handles GET /v1/reports/:id/comments
func (h *EngagementHandler) ListComments(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_comments")
	defer observability.FinishSpan(span, nil)

	comments, err := h.engagementService.ListComments(ctx, c.Param("id"))
	if err != nil {
		HandleAppError(c, err)
		return
	}

	result := []models.Comment{}
	for comment, err := range comments {
		if err != nil {
			h.logger.Error(ctx, "Failed to read comments", err, map[string]interface{}{"report_id": c.Param("id")})
			HandleAppError(c, err)
			return
		}
		result = append(result, comment)
	}
	c.JSON(http.StatusOK, gin.H{"comments": result, "total": len(result)})
}
