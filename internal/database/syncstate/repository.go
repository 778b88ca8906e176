// Package syncstate provides database operations for issue correspondence
// records. A row's existence for (source_system, source_issue_id) is what
// switches the pipeline between its create and update branches.
package syncstate

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
)

// ErrStateExists signals the unique (source, source_id, target, target_id)
// tuple already has a row — two webhooks raced to create the same issue.
var ErrStateExists = errors.New("sync state already exists for issue pair")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindBySourceIssue returns the correspondence record for a source issue,
// or nil when the issue has never been synced.
func (r *Repository) FindBySourceIssue(sourceSystem entities.SystemType, sourceIssueID string) (*entities.SyncState, error) {
	var state entities.SyncState
	err := r.db.
		Where("source_system = ?", sourceSystem).
		Where("source_issue_id = ?", sourceIssueID).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Create inserts a new correspondence record. A unique-constraint violation
// is surfaced as ErrStateExists so the pipeline can treat the race as a
// retryable job failure.
func (r *Repository) Create(state *entities.SyncState) error {
	state.LastSyncedAt = time.Now()
	err := r.db.Create(state).Error
	if err != nil && isUniqueViolation(err) {
		return ErrStateExists
	}
	return err
}

// UpdateState overwrites the correspondence timestamps and snapshot. No
// merging: the caller has already decided the incoming data wins.
func (r *Repository) UpdateState(id uint, sourceUpdatedAt, targetUpdatedAt string, snapshot []byte) error {
	return r.db.Model(&entities.SyncState{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"source_updated_at": sourceUpdatedAt,
			"target_updated_at": targetUpdatedAt,
			"last_synced_data":  snapshot,
			"last_synced_at":    time.Now(),
		}).Error
}

// Count returns the total number of correspondence rows.
func (r *Repository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&entities.SyncState{}).Count(&count).Error
	return count, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// sqlite reports "UNIQUE constraint failed: ..." without a typed error
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
