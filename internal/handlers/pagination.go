package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"civicapp/internal/config"
	"civicapp/internal/models"
	contextutils "civicapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// ParsePagination parses standard pagination query params from the request.
// It enforces bounds and applies defaults when values are missing or invalid.
// "pageSize" is accepted as an alias of "page_size".
func ParsePagination(c *gin.Context, defaultPage, defaultSize, maxSize int) (int, int) {
	pageStr := c.DefaultQuery("page", strconv.Itoa(defaultPage))
	sizeStr := c.Query("page_size")
	if sizeStr == "" {
		sizeStr = c.DefaultQuery("pageSize", strconv.Itoa(defaultSize))
	}

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = defaultPage
	}

	size, err := strconv.Atoi(sizeStr)
	if err != nil || size < 1 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}

	return page, size
}

// ParseFilters returns a map of non-empty trimmed query params for the given keys.
func ParseFilters(c *gin.Context, keys ...string) map[string]string {
	filters := make(map[string]string, len(keys))
	for _, key := range keys {
		if val := strings.TrimSpace(c.Query(key)); val != "" {
			filters[key] = val
		}
	}
	return filters
}

// ParseReportFilter reads the status and category filters; "all" or empty means unfiltered
func ParseReportFilter(c *gin.Context) (models.ReportFilter, error) {
	filters := ParseFilters(c, "status", "category")

	var filter models.ReportFilter
	if raw := models.NormalizeFilterValue(filters["status"]); raw != "" {
		status, ok := models.ParseReportStatus(raw)
		if !ok {
			return filter, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
				"Invalid status", "unknown status filter "+raw)
		}
		filter.Status = status
	}
	filter.Category = models.NormalizeFilterValue(filters["category"])
	return filter, nil
}

// ParseReportListQuery builds a paginated listing query from the request.
// "sortKey" and "sortDirection" are accepted as aliases of "sort" and "order".
func ParseReportListQuery(c *gin.Context, cfg config.ReportsConfig) (models.ReportListQuery, error) {
	filter, err := ParseReportFilter(c)
	if err != nil {
		return models.ReportListQuery{}, err
	}

	page, size := ParsePagination(c, 1, cfg.DefaultPageSize, cfg.MaxPageSize)

	rawSort := c.Query("sort")
	if rawSort == "" {
		rawSort = c.Query("sortKey")
	}
	sortKey, ok := models.ParseSortKey(rawSort)
	if !ok {
		return models.ReportListQuery{}, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
			"Invalid sort key", "sort must be created_at or votes")
	}

	rawOrder := c.Query("order")
	if rawOrder == "" {
		rawOrder = c.Query("sortDirection")
	}
	direction, ok := models.ParseSortDirection(rawOrder)
	if !ok {
		return models.ReportListQuery{}, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
			"Invalid sort direction", "order must be asc or desc")
	}

	return models.ReportListQuery{
		Filter:    filter,
		Page:      page,
		PageSize:  size,
		SortKey:   sortKey,
		Direction: direction,
	}, nil
}

// WritePaginated standardizes paginated responses with a flexible items key, pagination block, and optional extras.
func WritePaginated(c *gin.Context, itemsKey string, items, pagination any, extra gin.H) {
	response := gin.H{
		itemsKey:     items,
		"pagination": pagination,
	}
	for k, v := range extra {
		response[k] = v
	}
	c.JSON(http.StatusOK, response)
}

// writeReportPage writes a ReportPage in the standard paginated shape
func writeReportPage(c *gin.Context, page *models.ReportPage) {
	items := page.Items
	if items == nil {
		items = []models.EnrichedReport{}
	}
	totalPages := 0
	if page.PageSize > 0 {
		totalPages = (page.Total + page.PageSize - 1) / page.PageSize
	}
	WritePaginated(c, "reports", items, gin.H{
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total":       page.Total,
		"total_pages": totalPages,
	}, gin.H{"total": page.Total})
}
