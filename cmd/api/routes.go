package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/warehouse-core/internal/bootstrap"
	"github.com/wms-platform/warehouse-core/pkg/contracts/openapi"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/middleware"
)

// newRouter builds the gin engine with the standard middleware chain, health
// endpoints and the /api/v1 routes.
func newRouter(cfg *middleware.Config, svc *bootstrap.Services, starter releaseStarter, ready func() error) *gin.Engine {
	router := gin.New()
	middleware.Setup(router, cfg)

	router.GET("/health", middleware.HealthCheck(cfg.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(cfg.ServiceName, ready))
	if cfg.Metrics != nil {
		router.GET("/metrics", middleware.MetricsEndpoint(cfg.Metrics))
	}
	router.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", openapi.Document())
	})

	api := router.Group("/api/v1")
	api.Use(middleware.Tenant())
	registerRoutes(api, svc, starter, cfg.Logger)
	return router
}

func registerRoutes(api *gin.RouterGroup, svc *bootstrap.Services, starter releaseStarter, logger *logging.Logger) {
	// ledger
	api.POST("/movements", applyMovementHandler(svc.Ledger, logger))
	api.POST("/reservations", reserveHandler(svc.Ledger, logger))
	api.POST("/reservations/release", releaseReservationHandler(svc.Ledger, logger))
	api.GET("/balances", balancesHandler(svc.Ledger, logger))
	api.GET("/ledger", ledgerHandler(svc.Ledger, logger))
	api.POST("/holds", holdStockHandler(svc.Ledger, logger))
	api.GET("/holds/:holdId", getHoldHandler(svc.Ledger, logger))
	api.POST("/holds/:holdId/release", releaseHoldHandler(svc.Ledger, logger))

	// orders and documents
	api.POST("/orders/:orderId/allocate", allocateOrderHandler(svc.Allocation, logger))
	api.POST("/orders/:orderId/deallocate", deallocateOrderHandler(svc.Allocation, logger))
	api.GET("/orders/:orderId/allocations", orderAllocationsHandler(svc.Allocation, logger))
	api.POST("/orders/:orderId/tasks", orderTasksHandler(svc.Tasks, logger))
	api.POST("/receipts/:receiptId/tasks", receiptTasksHandler(svc.Tasks, logger))
	api.POST("/counts/:countId/tasks", countTasksHandler(svc.Tasks, logger))
	api.POST("/putaway", putawayHandler(svc.Tasks, logger))

	// tasks (static routes before wildcards)
	api.GET("/tasks/mine", myTasksHandler(svc.Tasks, logger))
	api.GET("/tasks/:taskId", getTaskHandler(svc.Tasks, logger))
	api.POST("/tasks/:taskId/assign", assignTaskHandler(svc.Tasks, logger))
	api.POST("/tasks/:taskId/cancel", cancelTaskHandler(svc.Tasks, logger))
	api.POST("/tasks/:taskId/resume", resumeTaskHandler(svc.Tasks, logger))
	api.POST("/tasks/:taskId/steps/:stepId/complete", completeStepHandler(svc.Tasks, logger))

	// waves
	api.POST("/waves", createWaveHandler(svc.Waves, logger))
	api.GET("/waves/:waveId", getWaveHandler(svc.Waves, logger))
	api.POST("/waves/:waveId/release", releaseWaveHandler(svc.Waves, starter, logger))

	// exceptions, backorders and count review
	api.GET("/exceptions", listExceptionsHandler(svc.Exceptions, logger))
	api.POST("/exceptions/:id/resolve", resolveExceptionHandler(svc.Exceptions, logger))
	api.POST("/exceptions/:id/override", requestOverrideHandler(svc.Exceptions, logger))
	api.POST("/exceptions/:id/override/approve", approveOverrideHandler(svc.Exceptions, logger))
	api.POST("/exceptions/:id/override/reject", rejectOverrideHandler(svc.Exceptions, logger))
	api.GET("/backorders", listBackordersHandler(svc.Exceptions, logger))
	api.POST("/backorders/:id/resolve", resolveBackorderHandler(svc.Exceptions, logger))
	api.POST("/backorders/:id/cancel", cancelBackorderHandler(svc.Exceptions, logger))
	api.GET("/count-submissions", listCountSubmissionsHandler(svc.Counts, logger))
	api.POST("/count-submissions/:id/approve", approveCountHandler(svc.Counts, logger))
	api.POST("/count-submissions/:id/reject", rejectCountHandler(svc.Counts, logger))

	// scan sessions
	api.POST("/scan-sessions", startSessionHandler(svc.Scans, logger))
	api.GET("/scan-sessions/active", activeSessionsHandler(svc.Scans, logger))
	api.POST("/scan-sessions/resume", resumeHandoffHandler(svc.Scans, logger))
	api.POST("/scan-sessions/:id/scans", submitScanHandler(svc.Scans, logger))
	api.POST("/scan-sessions/:id/cancel", cancelSessionHandler(svc.Scans, logger))
	api.POST("/scan-sessions/:id/expected", pinExpectedHandler(svc.Scans, logger))
	api.POST("/scan-sessions/:id/handoff", issueHandoffHandler(svc.Scans, logger))
	api.GET("/scan-sessions/:id/events", sessionEventsHandler(svc.Scans, logger))
}
