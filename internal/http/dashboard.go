package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jobins-devs/redmine-jira-integration/internal/database/connections"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/projectmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/synclogs"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/syncstate"
	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
	"github.com/jobins-devs/redmine-jira-integration/internal/syncer"
)

// DashboardController serves the operational view over sync activity and the
// manual-retry surface.
type DashboardController struct {
	logs     *synclogs.Repository
	states   *syncstate.Repository
	mappings *projectmappings.Repository
	conns    *connections.Repository
	enqueuer syncer.Enqueuer
}

func NewDashboardController(logs *synclogs.Repository, states *syncstate.Repository, mappings *projectmappings.Repository, conns *connections.Repository, enqueuer syncer.Enqueuer) *DashboardController {
	return &DashboardController{
		logs:     logs,
		states:   states,
		mappings: mappings,
		conns:    conns,
		enqueuer: enqueuer,
	}
}

// Overview returns the headline counters plus the latest activity and
// failures.
func (d *DashboardController) Overview(c *gin.Context) {
	totalSynced, err := d.logs.CountByStatus(entities.SyncStatusSuccess)
	if err != nil {
		respondInternalError(c, err, "dashboard overview")
		return
	}
	pending, err := d.logs.CountByStatus(entities.SyncStatusPending)
	if err != nil {
		respondInternalError(c, err, "dashboard overview")
		return
	}
	failed, err := d.logs.CountByStatus(entities.SyncStatusFailed)
	if err != nil {
		respondInternalError(c, err, "dashboard overview")
		return
	}
	activeMappings, err := d.mappings.CountEnabled()
	if err != nil {
		respondInternalError(c, err, "dashboard overview")
		return
	}
	totalConnections, err := d.conns.CountActive()
	if err != nil {
		respondInternalError(c, err, "dashboard overview")
		return
	}
	linkedIssues, err := d.states.Count()
	if err != nil {
		respondInternalError(c, err, "dashboard overview")
		return
	}

	recent, err := d.logs.Recent(20)
	if err != nil {
		respondInternalError(c, err, "dashboard overview")
		return
	}
	failures, err := d.logs.RecentFailures(10)
	if err != nil {
		respondInternalError(c, err, "dashboard overview")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats": gin.H{
			"total_synced":      totalSynced,
			"pending":           pending,
			"failed":            failed,
			"active_mappings":   activeMappings,
			"total_connections": totalConnections,
			"linked_issues":     linkedIssues,
		},
		"recent_activity": recent,
		"error_logs":      failures,
	})
}

// Stats returns per-day sync outcomes for the trailing N days (default 7).
func (d *DashboardController) Stats(c *gin.Context) {
	days := 7
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondBadRequest(c, "invalid days")
			return
		}
		days = parsed
	}

	stats, err := d.logs.DailyStats(days)
	if err != nil {
		respondInternalError(c, err, "dashboard stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

var listableStatuses = map[entities.SyncStatus]bool{
	entities.SyncStatusPending:    true,
	entities.SyncStatusProcessing: true,
	entities.SyncStatusSuccess:    true,
	entities.SyncStatusFailed:     true,
	entities.SyncStatusRetrying:   true,
}

// ListSyncLogs returns sync attempts newest-first, optionally filtered by
// status.
func (d *DashboardController) ListSyncLogs(c *gin.Context) {
	status := entities.SyncStatus(c.Query("status"))
	if status != "" && !listableStatuses[status] {
		respondBadRequest(c, "invalid status")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			respondBadRequest(c, "invalid limit")
			return
		}
		limit = parsed
	}

	logs, err := d.logs.List(status, limit)
	if err != nil {
		respondInternalError(c, err, "list sync logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sync_logs": logs})
}

// GetSyncLog returns one sync attempt with its mapping.
func (d *DashboardController) GetSyncLog(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	syncLog, err := d.logs.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondNotFound(c, "sync log")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get sync log")
		return
	}
	c.JSON(http.StatusOK, syncLog)
}

// RetrySyncLog re-queues a failed sync as a fresh first attempt. Only failed
// logs are eligible; anything else gets a 422.
func (d *DashboardController) RetrySyncLog(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if _, err := d.logs.GetByID(id); errors.Is(err, gorm.ErrRecordNotFound) {
		respondNotFound(c, "sync log")
		return
	} else if err != nil {
		respondInternalError(c, err, "retry sync log")
		return
	}

	if err := d.logs.ResetForRetry(id); err != nil {
		if errors.Is(err, synclogs.ErrNotRetryable) {
			respondError(c, http.StatusUnprocessableEntity, "Only failed syncs can be retried.")
			return
		}
		respondInternalError(c, err, "retry sync log")
		return
	}

	if err := d.enqueuer.EnqueueSync(id, 1, 0); err != nil {
		respondInternalError(c, err, "retry sync log")
		return
	}

	respondSuccess(c, "Sync queued for retry.")
}
