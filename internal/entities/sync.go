package entities

import (
	"time"

	"gorm.io/datatypes"
)

type SystemType string

const (
	SystemRedmine SystemType = "redmine"
	SystemJira    SystemType = "jira"
)

type SyncDirection string

const (
	DirectionRedmineToJira SyncDirection = "redmine_to_jira"
	DirectionJiraToRedmine SyncDirection = "jira_to_redmine"
	DirectionBidirectional SyncDirection = "bidirectional"
)

type MappingType string

const (
	MappingTypeTracker     MappingType = "tracker"
	MappingTypeStatus      MappingType = "status"
	MappingTypePriority    MappingType = "priority"
	MappingTypeCustomField MappingType = "custom_field"
	MappingTypeUser        MappingType = "user"
)

type SyncType string

const (
	SyncTypeCreate       SyncType = "create"
	SyncTypeUpdate       SyncType = "update"
	SyncTypeStatusChange SyncType = "status_change"
)

type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusProcessing SyncStatus = "processing"
	SyncStatusSuccess    SyncStatus = "success"
	SyncStatusFailed     SyncStatus = "failed"
	SyncStatusRetrying   SyncStatus = "retrying"
)

type ConnectionStatus string

const (
	ConnectionStatusConnected ConnectionStatus = "connected"
	ConnectionStatusFailed    ConnectionStatus = "failed"
	ConnectionStatusNotTested ConnectionStatus = "not_tested"
)

// Connection is a configured endpoint for one of the two tracker systems.
// Credentials are stored encrypted; the connections repository is the only
// place that sees them in the clear.
type Connection struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	Type             SystemType       `gorm:"size:20;index" json:"type"`
	Name             string           `gorm:"size:255" json:"name"`
	URL              string           `gorm:"size:2048" json:"url"`
	Credentials      string           `gorm:"type:text" json:"-"`
	IsActive         bool             `gorm:"index" json:"is_active"`
	LastTestedAt     *time.Time       `json:"last_tested_at,omitempty"`
	ConnectionStatus ConnectionStatus `gorm:"size:20;default:'not_tested'" json:"connection_status"`
	ConnectionError  string           `gorm:"type:text" json:"connection_error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ProjectMapping pairs a Redmine project with a Jira project and controls
// which sync directions are allowed.
type ProjectMapping struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	RedmineConnectionID uint           `gorm:"index" json:"redmine_connection_id"`
	JiraConnectionID    uint           `gorm:"index" json:"jira_connection_id"`
	RedmineProjectID    string         `gorm:"size:255" json:"redmine_project_id"`
	RedmineProjectName  string         `gorm:"size:255" json:"redmine_project_name"`
	JiraProjectKey      string         `gorm:"size:255" json:"jira_project_key"`
	JiraProjectName     string         `gorm:"size:255" json:"jira_project_name"`
	SyncDirection       SyncDirection  `gorm:"size:20;default:'bidirectional'" json:"sync_direction"`
	IsEnabled           bool           `gorm:"index" json:"is_enabled"`
	SyncConfig          datatypes.JSON `json:"sync_config,omitempty"`

	RedmineConnection Connection `gorm:"foreignKey:RedmineConnectionID" json:"redmine_connection,omitempty"`
	JiraConnection    Connection `gorm:"foreignKey:JiraConnectionID" json:"jira_connection,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanSyncFromRedmine reports whether Redmine-originated events may sync to Jira.
func (m *ProjectMapping) CanSyncFromRedmine() bool {
	return m.SyncDirection == DirectionRedmineToJira || m.SyncDirection == DirectionBidirectional
}

// CanSyncFromJira reports whether Jira-originated events may sync to Redmine.
func (m *ProjectMapping) CanSyncFromJira() bool {
	return m.SyncDirection == DirectionJiraToRedmine || m.SyncDirection == DirectionBidirectional
}

// FieldMapping translates one field value between the two systems' vocabularies.
type FieldMapping struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	MappingType      MappingType    `gorm:"size:20;index;uniqueIndex:uniq_field_mapping" json:"mapping_type"`
	RedmineValue     string         `gorm:"size:255;uniqueIndex:uniq_field_mapping" json:"redmine_value"`
	RedmineID        string         `gorm:"size:255" json:"redmine_id,omitempty"`
	JiraValue        string         `gorm:"size:255;uniqueIndex:uniq_field_mapping" json:"jira_value"`
	JiraID           string         `gorm:"size:255" json:"jira_id,omitempty"`
	AdditionalConfig datatypes.JSON `json:"additional_config,omitempty"`
	IsActive         bool           `gorm:"index" json:"is_active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SyncLog records one synchronization attempt. Rows are never deleted; they
// back the dashboard and the manual-retry surface.
type SyncLog struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ProjectMappingID *uint          `gorm:"index" json:"project_mapping_id,omitempty"`
	SourceSystem     SystemType     `gorm:"size:20;index:idx_sync_logs_source" json:"source_system"`
	TargetSystem     SystemType     `gorm:"size:20;index" json:"target_system"`
	SourceIssueID    string         `gorm:"size:255;index:idx_sync_logs_source" json:"source_issue_id"`
	TargetIssueID    string         `gorm:"size:255;index" json:"target_issue_id,omitempty"`
	SyncType         SyncType       `gorm:"size:20;index" json:"sync_type"`
	Status           SyncStatus     `gorm:"size:20;default:'pending';index" json:"status"`
	RetryCount       int            `gorm:"default:0" json:"retry_count"`
	ErrorMessage     string         `gorm:"type:text" json:"error_message,omitempty"`
	ErrorDetails     datatypes.JSON `json:"error_details,omitempty"`
	SyncData         datatypes.JSON `json:"sync_data,omitempty"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`

	ProjectMapping *ProjectMapping `gorm:"foreignKey:ProjectMappingID" json:"project_mapping,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncState is the durable correspondence between a source issue and its
// mirrored target issue. Presence of a row decides create-vs-update.
type SyncState struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	SourceSystem    SystemType     `gorm:"size:20;index:idx_sync_state_source;uniqueIndex:uniq_sync_state" json:"source_system"`
	TargetSystem    SystemType     `gorm:"size:20;uniqueIndex:uniq_sync_state" json:"target_system"`
	SourceIssueID   string         `gorm:"size:255;index:idx_sync_state_source;uniqueIndex:uniq_sync_state" json:"source_issue_id"`
	TargetIssueID   string         `gorm:"size:255;index;uniqueIndex:uniq_sync_state" json:"target_issue_id"`
	SourceUpdatedAt string         `gorm:"size:64" json:"source_updated_at"`
	TargetUpdatedAt string         `gorm:"size:64" json:"target_updated_at"`
	LastSyncedData  datatypes.JSON `json:"last_synced_data,omitempty"`
	LastSyncedAt    time.Time      `json:"last_synced_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
