package handlers

import (
	"net/http"

	"civicapp/internal/config"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	"civicapp/internal/services"
	contextutils "civicapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// AdminHandler handles administrator moderation and dashboard requests
type AdminHandler struct {
	reportService services.ReportServiceInterface
	statsService  services.StatsServiceInterface
	userService   services.UserServiceInterface
	cfg           *config.Config
	logger        *observability.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(reportService services.ReportServiceInterface, statsService services.StatsServiceInterface, userService services.UserServiceInterface, cfg *config.Config, logger *observability.Logger) *AdminHandler {
	return &AdminHandler{
		reportService: reportService,
		statsService:  statsService,
		userService:   userService,
		cfg:           cfg,
		logger:        logger,
	}
}

// SetStatus handles PATCH /v1/reports/:id/status
func (h *AdminHandler) SetStatus(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "set_status")
	defer observability.FinishSpan(span, nil)

	var change models.StatusChange
	if err := c.ShouldBindJSON(&change); err != nil {
		HandleAppError(c, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn,
			"Status is required", err.Error()))
		return
	}

	reportID := c.Param("id")
	span.SetAttributes(observability.AttributeReportID(reportID), observability.AttributeStatus(change.Status))

	report, err := h.reportService.SetStatus(ctx, reportID, change)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	adminID, _ := GetCurrentUserID(c)
	h.logger.Info(ctx, "Report status changed by admin", map[string]interface{}{
		"report_id": reportID,
		"admin_id":  adminID,
		"status":    string(report.Status),
	})
	c.JSON(http.StatusOK, report)
}

// GetDashboard handles GET /v1/admin/dashboard
func (h *AdminHandler) GetDashboard(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_dashboard")
	defer observability.FinishSpan(span, nil)

	stats, err := h.statsService.DashboardStats(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListReports handles GET /v1/admin/reports; items include the owner's name and e-mail
func (h *AdminHandler) ListReports(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_list_reports")
	defer observability.FinishSpan(span, nil)

	query, err := ParseReportListQuery(c, h.cfg.Reports)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	query.IncludeOwner = true

	page, err := h.statsService.ListReports(ctx, query)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	writeReportPage(c, page)
}

// ListUsers handles GET /v1/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_users")
	defer observability.FinishSpan(span, nil)

	users, err := h.userService.ListUsers(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

// SetUserAdmin handles PUT /v1/admin/users/:id/admin with body {"is_admin": bool}
func (h *AdminHandler) SetUserAdmin(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "set_user_admin")
	defer observability.FinishSpan(span, nil)

	var req struct {
		IsAdmin *bool `json:"is_admin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "is_admin", nil, "must be true or false")
		return
	}

	userID := c.Param("id")
	if currentID, _ := GetCurrentUserID(c); currentID == userID && !*req.IsAdmin {
		HandleAppError(c, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
			"Administrators cannot revoke their own access", ""))
		return
	}

	if err := h.userService.SetAdmin(ctx, userID, *req.IsAdmin); err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": userID, "is_admin": *req.IsAdmin})
}
