package handlers

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"civicapp/internal/config"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	"civicapp/internal/services"
	"civicapp/internal/storage"
	contextutils "civicapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ReportHandler handles citizen report HTTP requests
type ReportHandler struct {
	reportService services.ReportServiceInterface
	statsService  services.StatsServiceInterface
	images        storage.ImageStore
	cfg           *config.Config
	logger        *observability.Logger
}

// NewReportHandler creates a new ReportHandler. images may be nil, in which case
// only JSON submissions with pre-stored image references are accepted.
func NewReportHandler(reportService services.ReportServiceInterface, statsService services.StatsServiceInterface, images storage.ImageStore, cfg *config.Config, logger *observability.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		statsService:  statsService,
		images:        images,
		cfg:           cfg,
		logger:        logger,
	}
}

// CreateReport handles POST /v1/reports (JSON or multipart/form-data with images)
func (h *ReportHandler) CreateReport(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_report")
	defer observability.FinishSpan(span, nil)

	userID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	var input models.NewReport
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		input, err = h.bindMultipartReport(c)
	} else {
		if bindErr := c.ShouldBindJSON(&input); bindErr != nil {
			h.logger.Warn(ctx, "Invalid create report request format", map[string]interface{}{
				"error": bindErr.Error(),
			})
			err = contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
				"Invalid request body", bindErr.Error())
		}
	}
	if err != nil {
		HandleAppError(c, err)
		return
	}

	report, err := h.reportService.CreateReport(ctx, userID, input)
	if err != nil {
		if len(input.ImageURLs) > 0 && !contextutils.IsRetryable(err) {
			h.logger.Warn(ctx, "Report rejected after images were stored", map[string]interface{}{
				"user_id":    userID,
				"image_urls": input.ImageURLs,
			})
		}
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(observability.AttributeReportID(report.ID))
	c.JSON(http.StatusCreated, report)
}

// bindMultipartReport reads form fields and stores every uploaded image
func (h *ReportHandler) bindMultipartReport(c *gin.Context) (models.NewReport, error) {
	ctx := c.Request.Context()

	form, err := c.MultipartForm()
	if err != nil {
		return models.NewReport{}, contextutils.NewAppError(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityWarn,
			"Invalid multipart form", err.Error())
	}

	input := models.NewReport{
		Category:    c.PostForm("category"),
		Description: c.PostForm("description"),
		ImageURLs:   form.Value["image_urls"],
	}

	lat, latErr := strconv.ParseFloat(strings.TrimSpace(c.PostForm("latitude")), 64)
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(c.PostForm("longitude")), 64)
	if latErr != nil || lngErr != nil {
		return models.NewReport{}, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
			"Invalid location", "latitude and longitude must be numbers")
	}
	input.Location = models.GeoPoint{Latitude: lat, Longitude: lng}

	files := form.File["images"]
	if len(files) == 0 {
		return input, nil
	}
	if h.cfg.Reports.MaxImages > 0 && len(files)+len(input.ImageURLs) > h.cfg.Reports.MaxImages {
		return models.NewReport{}, contextutils.NewAppError(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn,
			"too many images", "at most "+strconv.Itoa(h.cfg.Reports.MaxImages)+" images per report")
	}
	if h.images == nil {
		return models.NewReport{}, contextutils.WrapError(contextutils.ErrServiceUnavailable, "image storage is not configured")
	}

	// Validate everything before storing anything
	for _, fh := range files {
		if err := storage.ValidateImage(fh.Header.Get("Content-Type"), fh.Size, h.cfg.Reports.MaxImageBytes); err != nil {
			return models.NewReport{}, err
		}
	}

	for _, fh := range files {
		url, err := h.saveImage(c, fh)
		if err != nil {
			return models.NewReport{}, err
		}
		input.ImageURLs = append(input.ImageURLs, url)
	}

	h.logger.Debug(ctx, "Stored report images", map[string]interface{}{"count": len(files)})
	return input, nil
}

func (h *ReportHandler) saveImage(c *gin.Context, fh *multipart.FileHeader) (string, error) {
	file, err := fh.Open()
	if err != nil {
		return "", contextutils.NewAppErrorWithCause(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
			"Could not read uploaded image", fh.Filename, err)
	}
	defer func() {
		_ = file.Close()
	}()

	return h.images.Save(c.Request.Context(), fh.Filename, fh.Header.Get("Content-Type"), file, fh.Size)
}

// GetReport handles GET /v1/reports/:id
func (h *ReportHandler) GetReport(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_report")
	defer observability.FinishSpan(span, nil)

	userID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	report, err := h.reportService.GetReport(ctx, c.Param("id"), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// UpdateReport handles PUT /v1/reports/:id
func (h *ReportHandler) UpdateReport(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_report")
	defer observability.FinishSpan(span, nil)

	userID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	var update models.ReportUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Warn(ctx, "Invalid update report request format", map[string]interface{}{
			"error": err.Error(),
		})
		HandleAppError(c, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
			"Invalid request body", err.Error()))
		return
	}

	report, err := h.reportService.UpdateReport(ctx, c.Param("id"), userID, update)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// DeleteReport handles DELETE /v1/reports/:id
func (h *ReportHandler) DeleteReport(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_report")
	defer observability.FinishSpan(span, nil)

	userID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	reportID := c.Param("id")
	if err := h.reportService.DeleteReport(ctx, reportID, userID); err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Report deleted", "id": reportID})
}

// ListReports handles GET /v1/reports
func (h *ReportHandler) ListReports(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_reports")
	defer observability.FinishSpan(span, nil)

	query, err := ParseReportListQuery(c, h.cfg.Reports)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(
		observability.AttributePage(query.Page),
		observability.AttributePageSize(query.PageSize),
		attribute.String("sort.key", string(query.SortKey)),
	)

	page, err := h.statsService.ListReports(ctx, query)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	writeReportPage(c, page)
}

// ListFeed handles GET /v1/reports/feed
func (h *ReportHandler) ListFeed(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_feed")
	defer observability.FinishSpan(span, nil)

	filter, err := ParseReportFilter(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	reports, err := h.statsService.ListPublicReports(ctx, filter)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if reports == nil {
		reports = []models.EnrichedReport{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "total": len(reports)})
}
