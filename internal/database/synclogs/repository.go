// Package synclogs provides database operations for sync attempt records.
//
// SyncLog rows follow a strict state machine:
//
//	pending -> processing -> success
//	                      -> failed -> retrying -> processing (bounded)
//	                      -> failed (terminal, manual retry only)
//
// Rows are never deleted; they back the dashboard and audit trail.
package synclogs

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
)

// ErrNotClaimable is returned when a job cannot be moved to processing
// because another worker already owns it or it is in a terminal state.
var ErrNotClaimable = errors.New("sync log is not in a claimable state")

// ErrNotRetryable is returned when a manual retry targets a log that is not
// in the failed state.
var ErrNotRetryable = errors.New("only failed syncs can be retried")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(log *entities.SyncLog) error {
	return r.db.Create(log).Error
}

func (r *Repository) GetByID(id uint) (*entities.SyncLog, error) {
	var log entities.SyncLog
	if err := r.db.Preload("ProjectMapping").First(&log, id).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// HasRecentPending reports whether a pending log already exists for the same
// source issue inside the idempotency window. Used by the webhook gate to
// suppress duplicate deliveries.
func (r *Repository) HasRecentPending(sourceSystem entities.SystemType, sourceIssueID string, window time.Duration) (bool, error) {
	var count int64
	err := r.db.Model(&entities.SyncLog{}).
		Where("source_system = ?", sourceSystem).
		Where("source_issue_id = ?", sourceIssueID).
		Where("status = ?", entities.SyncStatusPending).
		Where("created_at > ?", time.Now().Add(-window)).
		Count(&count).Error
	return count > 0, err
}

// MarkProcessing atomically claims a pending or retrying log for a worker.
// The conditional update guarantees only one worker wins a re-queued job.
func (r *Repository) MarkProcessing(id uint) error {
	result := r.db.Model(&entities.SyncLog{}).
		Where("id = ?", id).
		Where("status IN ?", []entities.SyncStatus{entities.SyncStatusPending, entities.SyncStatusRetrying}).
		Update("status", entities.SyncStatusProcessing)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotClaimable
	}
	return nil
}

// MarkSuccess finishes a log, recording the target issue and processing time.
func (r *Repository) MarkSuccess(id uint, targetIssueID string) error {
	updates := map[string]any{
		"status":       entities.SyncStatusSuccess,
		"processed_at": time.Now(),
	}
	if targetIssueID != "" {
		updates["target_issue_id"] = targetIssueID
	}
	return r.db.Model(&entities.SyncLog{}).Where("id = ?", id).Updates(updates).Error
}

// MarkFailed records the error and moves the log to failed. Details are
// stored as JSON so remote error payloads survive verbatim.
func (r *Repository) MarkFailed(id uint, errorMessage string, errorDetails any) error {
	updates := map[string]any{
		"status":        entities.SyncStatusFailed,
		"error_message": errorMessage,
		"processed_at":  time.Now(),
	}
	if errorDetails != nil {
		if raw, err := json.Marshal(errorDetails); err == nil {
			updates["error_details"] = raw
		}
	}
	return r.db.Model(&entities.SyncLog{}).Where("id = ?", id).Updates(updates).Error
}

// MarkRetrying increments the attempt counter and flags the log for re-execution.
func (r *Repository) MarkRetrying(id uint) error {
	return r.db.Model(&entities.SyncLog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      entities.SyncStatusRetrying,
			"retry_count": gorm.Expr("retry_count + 1"),
		}).Error
}

// SetTargetIssueID records the mirrored issue's identifier on the log.
func (r *Repository) SetTargetIssueID(id uint, targetIssueID string) error {
	return r.db.Model(&entities.SyncLog{}).
		Where("id = ?", id).
		Update("target_issue_id", targetIssueID).Error
}

// ResetForRetry moves a failed log back to pending for a fresh manual attempt,
// clearing error state. Returns ErrNotRetryable for any other status.
func (r *Repository) ResetForRetry(id uint) error {
	result := r.db.Model(&entities.SyncLog{}).
		Where("id = ?", id).
		Where("status = ?", entities.SyncStatusFailed).
		Updates(map[string]any{
			"status":        entities.SyncStatusPending,
			"error_message": "",
			"error_details": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotRetryable
	}
	return nil
}

// ReleaseStale fails logs stuck in processing longer than the threshold,
// typically after a worker crash, so operators can retry them.
func (r *Repository) ReleaseStale(staleAfter time.Duration) (int64, error) {
	result := r.db.Model(&entities.SyncLog{}).
		Where("status = ?", entities.SyncStatusProcessing).
		Where("updated_at < ?", time.Now().Add(-staleAfter)).
		Updates(map[string]any{
			"status":        entities.SyncStatusFailed,
			"error_message": "sync was interrupted",
			"processed_at":  time.Now(),
		})
	return result.RowsAffected, result.Error
}

// List returns sync attempts newest-first, optionally filtered by status.
func (r *Repository) List(status entities.SyncStatus, limit int) ([]entities.SyncLog, error) {
	query := r.db.Preload("ProjectMapping").Order("created_at desc").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var logs []entities.SyncLog
	err := query.Find(&logs).Error
	return logs, err
}

// Recent returns the latest sync attempts for the dashboard.
func (r *Repository) Recent(limit int) ([]entities.SyncLog, error) {
	var logs []entities.SyncLog
	err := r.db.Preload("ProjectMapping").
		Order("created_at desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// RecentFailures returns the latest failed attempts.
func (r *Repository) RecentFailures(limit int) ([]entities.SyncLog, error) {
	var logs []entities.SyncLog
	err := r.db.Where("status = ?", entities.SyncStatusFailed).
		Order("created_at desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// CountByStatus returns the number of logs in the given status.
func (r *Repository) CountByStatus(status entities.SyncStatus) (int64, error) {
	var count int64
	err := r.db.Model(&entities.SyncLog{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// DailyStat is one day's worth of sync outcomes for the dashboard chart.
type DailyStat struct {
	Date    string `json:"date"`
	Total   int64  `json:"total"`
	Success int64  `json:"success"`
	Failed  int64  `json:"failed"`
}

// DailyStats aggregates outcomes per day over the trailing N days.
func (r *Repository) DailyStats(days int) ([]DailyStat, error) {
	var stats []DailyStat
	err := r.db.Model(&entities.SyncLog{}).
		Select("DATE(created_at) as date, count(*) as total, "+
			"sum(case when status = 'success' then 1 else 0 end) as success, "+
			"sum(case when status = 'failed' then 1 else 0 end) as failed").
		Where("created_at >= ?", time.Now().AddDate(0, 0, -days)).
		Group("DATE(created_at)").
		Order("date asc").
		Scan(&stats).Error
	return stats, err
}
