package config

const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./redmine-jira-sync.db"

	// DefaultMaxRetries is the number of automatic attempts before a sync
	// job is left in its terminal failed state
	DefaultMaxRetries = 3
)
