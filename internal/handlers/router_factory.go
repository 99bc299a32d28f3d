package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"

	"civicapp/internal/config"
	"civicapp/internal/middleware"
	"civicapp/internal/observability"
	"civicapp/internal/services"
	"civicapp/internal/storage"
	"civicapp/internal/version"
	"civicapp/internal/worker"
)

// ServiceName identifies the API process in traces and version output
const ServiceName = "civic-backend"

// NewRouter creates a new router factory with all the necessary middleware and routes.
// images and notificationWorker may be nil.
func NewRouter(
	cfg *config.Config,
	reportService services.ReportServiceInterface,
	engagementService services.EngagementServiceInterface,
	statsService services.StatsServiceInterface,
	userService services.UserServiceInterface,
	images storage.ImageStore,
	verifier *middleware.TokenVerifier,
	notificationWorker *worker.Worker,
	logger *observability.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ErrorRecoveryMiddleware(logger, nil))

	// HTTP request logging using our observability logger
	router.Use(func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  time.Since(start).Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		if statusCode >= 500 {
			fields["http.error_type"] = "server_error"
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		} else if statusCode >= 400 {
			fields["http.error_type"] = "client_error"
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		} else {
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
	})

	router.Use(observability.GinMiddleware(ServiceName))
	router.Use(observability.ErrorSpanMiddleware())

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.IsDevelopment = cfg.Server.Debug || cfg.IsTest
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	router.Use(middleware.RequestValidationMiddleware(cfg.Server.MaxRequestBody, logger))

	reportHandler := NewReportHandler(reportService, statsService, images, cfg, logger)
	engagementHandler := NewEngagementHandler(engagementService, logger)
	adminHandler := NewAdminHandler(reportService, statsService, userService, cfg, logger)
	userHandler := NewUserHandler(userService, logger)
	workerAdminHandler := NewWorkerAdminHandler(notificationWorker, logger)
	routeListing := NewRouteListingHandler(ServiceName)

	requireAuth := middleware.RequireAuth(verifier)
	requireAdmin := middleware.RequireAdmin(userService)

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, version.Info(ServiceName))
		})

		authed := v1.Group("", requireAuth)
		authed.GET("/me", userHandler.Me)

		reports := authed.Group("/reports")
		{
			reports.POST("", reportHandler.CreateReport)
			reports.GET("", reportHandler.ListReports)
			reports.GET("/feed", reportHandler.ListFeed)
			reports.GET("/:id", reportHandler.GetReport)
			reports.PUT("/:id", reportHandler.UpdateReport)
			reports.DELETE("/:id", reportHandler.DeleteReport)
			reports.POST("/:id/vote", engagementHandler.AddVote)
			reports.POST("/:id/comments", engagementHandler.AddComment)
			reports.GET("/:id/comments", engagementHandler.ListComments)
			reports.PATCH("/:id/status", requireAdmin, adminHandler.SetStatus)
		}

		admin := authed.Group("/admin", requireAdmin)
		{
			admin.GET("/dashboard", adminHandler.GetDashboard)
			admin.GET("/reports", adminHandler.ListReports)
			admin.GET("/users", adminHandler.ListUsers)
			admin.PUT("/users/:id/admin", adminHandler.SetUserAdmin)
			admin.GET("/worker/status", workerAdminHandler.GetWorkerStatus)
			admin.GET("/worker/logs", workerAdminHandler.GetWorkerLogs)
			admin.GET("/routes", routeListing.GetRouteListingJSON)
		}
	}

	routeListing.CollectRoutes(router)
	return router
}
