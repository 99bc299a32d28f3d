package services

import (
	"context"
	"time"

	"civicapp/internal/cache"
	"civicapp/internal/config"
	"civicapp/internal/models"
	"civicapp/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// StatsServiceInterface is the aggregation engine: dashboard snapshots and enriched listings
type StatsServiceInterface interface {
	DashboardStats(ctx context.Context) (*models.DashboardStats, error)
	ListReports(ctx context.Context, query models.ReportListQuery) (*models.ReportPage, error)
	ListPublicReports(ctx context.Context, filter models.ReportFilter) ([]models.EnrichedReport, error)
}

// StatsService implements StatsServiceInterface. The aggregate cache only saves work:
// every result is identical to a fresh computation over the same data.
type StatsService struct {
	reports    ReportRepository
	engagement EngagementRepository
	cache      cache.AggregateCache
	cfg        *config.Config
	metrics    *observability.DashboardMetrics
	logger     *observability.Logger
}

var _ StatsServiceInterface = (*StatsService)(nil)

// NewStatsService creates the aggregation engine
func NewStatsService(reports ReportRepository, engagement EngagementRepository, aggregateCache cache.AggregateCache, cfg *config.Config, metrics *observability.DashboardMetrics, logger *observability.Logger) *StatsService {
	return &StatsService{
		reports:    reports,
		engagement: engagement,
		cache:      aggregateCache,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// DashboardStats serves the snapshot from cache or recomputes and caches it.
// A failing cache degrades to direct computation.
func (s *StatsService) DashboardStats(ctx context.Context) (result *models.DashboardStats, err error) {
	key := s.cfg.Dashboard.CacheKey
	ttl := s.cfg.Dashboard.CacheTTL
	ctx, span := observability.TraceStatsFunction(ctx, "dashboard_stats",
		observability.AttributeCacheKey(key),
		attribute.String("cache.ttl", ttl.String()),
	)
	defer observability.FinishSpan(span, &err)

	useCache := s.cache != nil && ttl > 0
	if useCache {
		cached, found, cacheErr := s.cache.Get(ctx, key)
		switch {
		case cacheErr != nil:
			s.metrics.CacheError(ctx)
			s.logger.Warn(ctx, "Dashboard cache read failed, computing directly", map[string]interface{}{
				"cache_key": key,
				"error":     cacheErr.Error(),
			})
		case found:
			s.metrics.CacheHit(ctx)
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		default:
			s.metrics.CacheMiss(ctx)
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	start := time.Now()
	stats, err := s.computeDashboardStats(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.ComputeSeconds(ctx, time.Since(start).Seconds())

	if useCache {
		if putErr := s.cache.Put(ctx, key, stats, ttl); putErr != nil {
			s.metrics.CacheError(ctx)
			s.logger.Warn(ctx, "Failed to store dashboard stats", map[string]interface{}{
				"cache_key": key,
				"error":     putErr.Error(),
			})
		}
	}
	return stats, nil
}

func (s *StatsService) computeDashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	var (
		statusCounts map[models.ReportStatus]int
		avgDays      float64
		distribution []models.CategoryCount
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		statusCounts, err = retryRead(gctx, s.reports.CountByStatus)
		return err
	})
	g.Go(func() (err error) {
		avgDays, err = retryRead(gctx, s.reports.AverageResolutionDays)
		return err
	})
	g.Go(func() (err error) {
		distribution, err = retryRead(gctx, s.reports.CountByCategory)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &models.DashboardStats{
		AvgResolutionDays:    models.RoundDays(avgDays),
		CategoryDistribution: distribution,
	}
	if stats.CategoryDistribution == nil {
		stats.CategoryDistribution = []models.CategoryCount{}
	}
	stats.ApplyStatusCounts(statusCounts)
	return stats, nil
}

// ListReports returns one page of reports enriched with live vote counts.
// The total is counted separately so it does not depend on the page join.
func (s *StatsService) ListReports(ctx context.Context, q models.ReportListQuery) (result *models.ReportPage, err error) {
	q = s.normalizeListQuery(q)
	ctx, span := observability.TraceStatsFunction(ctx, "list_reports",
		observability.AttributeStatusFilter(string(q.Filter.Status)),
		observability.AttributeCategoryFilter(q.Filter.Category),
		observability.AttributePage(q.Page),
		observability.AttributePageSize(q.PageSize),
	)
	defer observability.FinishSpan(span, &err)

	total, err := retryRead(ctx, func(ctx context.Context) (int, error) {
		return s.reports.Count(ctx, q.Filter)
	})
	if err != nil {
		return nil, err
	}

	items, err := retryRead(ctx, func(ctx context.Context) ([]models.EnrichedReport, error) {
		return s.reports.List(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	votes, err := retryRead(ctx, func(ctx context.Context) (map[string]int, error) {
		return s.engagement.CountVotesBulk(ctx, enrichedIDs(items))
	})
	if err != nil {
		return nil, err
	}

	for i := range items {
		items[i].VoteCount = votes[items[i].ID]
		if !q.IncludeOwner {
			items[i].Owner = nil
		}
	}

	return &models.ReportPage{
		Items:    items,
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
	}, nil
}

// ListPublicReports returns every matching report newest first with vote and comment counts
func (s *StatsService) ListPublicReports(ctx context.Context, filter models.ReportFilter) (result []models.EnrichedReport, err error) {
	ctx, span := observability.TraceStatsFunction(ctx, "list_public_reports",
		observability.AttributeStatusFilter(string(filter.Status)),
		observability.AttributeCategoryFilter(filter.Category),
	)
	defer observability.FinishSpan(span, &err)

	reports, err := retryRead(ctx, func(ctx context.Context) ([]models.Report, error) {
		return s.reports.ListAll(ctx, filter)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(reports))
	for i, r := range reports {
		ids[i] = r.ID
	}

	var votes, comments map[string]int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		votes, err = retryRead(gctx, func(ctx context.Context) (map[string]int, error) {
			return s.engagement.CountVotesBulk(ctx, ids)
		})
		return err
	})
	g.Go(func() (err error) {
		comments, err = retryRead(gctx, func(ctx context.Context) (map[string]int, error) {
			return s.engagement.CountCommentsBulk(ctx, ids)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	enriched := make([]models.EnrichedReport, len(reports))
	for i, r := range reports {
		commentCount := comments[r.ID]
		enriched[i] = models.EnrichedReport{
			Report:       r,
			VoteCount:    votes[r.ID],
			CommentCount: &commentCount,
		}
	}
	span.SetAttributes(attribute.Int("report.count", len(enriched)))
	return enriched, nil
}

func (s *StatsService) normalizeListQuery(q models.ReportListQuery) models.ReportListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = s.cfg.Reports.DefaultPageSize
	}
	if max := s.cfg.Reports.MaxPageSize; max > 0 && q.PageSize > max {
		q.PageSize = max
	}
	if q.SortKey == "" {
		q.SortKey = models.SortByCreatedAt
	}
	if q.Direction == "" {
		q.Direction = models.SortDesc
	}
	return q
}

func enrichedIDs(items []models.EnrichedReport) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
