package handlers

import (
	"net/http"

	"civicapp/internal/observability"
	"civicapp/internal/worker"

	"github.com/gin-gonic/gin"
)

// WorkerAdminHandler reports on the in-process notification worker
type WorkerAdminHandler struct {
	worker *worker.Worker
	logger *observability.Logger
}

// NewWorkerAdminHandler creates a new WorkerAdminHandler. w is nil when
// notifications are consumed by a separate worker process.
func NewWorkerAdminHandler(w *worker.Worker, logger *observability.Logger) *WorkerAdminHandler {
	return &WorkerAdminHandler{worker: w, logger: logger}
}

// GetWorkerStatus handles GET /v1/admin/worker/status
func (h *WorkerAdminHandler) GetWorkerStatus(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_worker_status")
	defer observability.FinishSpan(span, nil)

	if h.worker == nil {
		c.JSON(http.StatusOK, gin.H{
			"in_process": false,
			"message":    "Notifications are handled by a separate worker process",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"in_process": true,
		"instance":   h.worker.GetInstance(),
		"status":     h.worker.GetStatus(),
		"history":    h.worker.GetHistory(),
	})
}

// GetWorkerLogs handles GET /v1/admin/worker/logs
func (h *WorkerAdminHandler) GetWorkerLogs(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_worker_logs")
	defer observability.FinishSpan(span, nil)

	logs := []worker.ActivityLog{}
	if h.worker != nil {
		logs = h.worker.GetActivityLogs()
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
