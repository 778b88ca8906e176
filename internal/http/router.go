package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jobins-devs/redmine-jira-integration/internal/database"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/connections"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/fieldmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/projectmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/synclogs"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/syncstate"
	"github.com/jobins-devs/redmine-jira-integration/internal/syncer"
	"github.com/jobins-devs/redmine-jira-integration/internal/webhooks"
)

// RouterConfig carries every dependency the HTTP surface needs, improving
// testability and reducing parameter count.
type RouterConfig struct {
	Database *database.Database
	Version  string

	Gate          *webhooks.Gate
	SyncLogs      *synclogs.Repository
	SyncStates    *syncstate.Repository
	Mappings      *projectmappings.Repository
	FieldMappings *fieldmappings.Repository
	Connections   *connections.Repository
	Enqueuer      syncer.Enqueuer

	RequestTimeout time.Duration

	// NewClient overrides the tracker client factory for connection tests.
	// Defaults to tracker.NewClient when nil.
	NewClient syncer.ClientFactory
}

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Version)
	webhooksController := NewWebhooksController(cfg.Gate)
	dashboard := NewDashboardController(cfg.SyncLogs, cfg.SyncStates, cfg.Mappings, cfg.Connections, cfg.Enqueuer)
	connectionsController := NewConnectionsController(cfg.Connections, cfg.RequestTimeout, cfg.NewClient)
	projectMappingsController := NewProjectMappingsController(cfg.Mappings, cfg.Connections)
	fieldMappingsController := NewFieldMappingsController(cfg.FieldMappings)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// Webhook endpoints (no authentication, guarded by HMAC signatures)
	router.POST("/webhooks/redmine", webhooksController.Redmine)
	router.POST("/webhooks/jira", webhooksController.Jira)

	// Dashboard endpoints
	router.GET("/api/dashboard", dashboard.Overview)
	router.GET("/api/dashboard/stats", dashboard.Stats)
	router.GET("/api/sync-logs", dashboard.ListSyncLogs)
	router.GET("/api/sync-logs/:id", dashboard.GetSyncLog)
	router.POST("/api/sync-logs/:id/retry", dashboard.RetrySyncLog)

	// Connection management endpoints
	router.GET("/api/connections", connectionsController.List)
	router.POST("/api/connections", connectionsController.Create)
	router.PUT("/api/connections/:id", connectionsController.Update)
	router.DELETE("/api/connections/:id", connectionsController.Delete)
	router.POST("/api/connections/:id/test", connectionsController.Test)

	// Project mapping endpoints
	router.GET("/api/project-mappings", projectMappingsController.List)
	router.POST("/api/project-mappings", projectMappingsController.Create)
	router.PUT("/api/project-mappings/:id", projectMappingsController.Update)
	router.DELETE("/api/project-mappings/:id", projectMappingsController.Delete)
	router.POST("/api/project-mappings/:id/toggle", projectMappingsController.Toggle)

	// Field mapping endpoints
	router.GET("/api/field-mappings", fieldMappingsController.List)
	router.POST("/api/field-mappings", fieldMappingsController.Create)
	router.PUT("/api/field-mappings/:id", fieldMappingsController.Update)
	router.DELETE("/api/field-mappings/:id", fieldMappingsController.Delete)
	router.POST("/api/field-mappings/bulk-import", fieldMappingsController.BulkImport)

	return router
}
