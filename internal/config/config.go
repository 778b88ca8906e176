package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Database
		Webhooks
		Sync
		Tasks
		Sweeper
		Global
	}

	HTTP struct {
		Port int32
		Host string
	}
	Database struct {
		Path string
	}
	Webhooks struct {
		RedmineSecret string
		JiraSecret    string
	}
	Sync struct {
		MaxRetries        int
		IdempotencyWindow time.Duration
		RequestTimeout    time.Duration
		EncryptionKey     string // passphrase for credential encryption at rest
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	Sweeper struct {
		Enabled    bool
		Schedule   string // cron format: "*/5 * * * *" = every 5 minutes
		StaleAfter time.Duration
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8190)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)

	// Webhook secrets: empty disables signature verification for that system
	v.SetDefault("redmine_webhook_secret", "")
	v.SetDefault("jira_webhook_secret", "")

	// Sync engine defaults
	v.SetDefault("sync_max_retries", DefaultMaxRetries)
	v.SetDefault("sync_idempotency_window", "5m")
	v.SetDefault("sync_request_timeout", "30s")
	v.SetDefault("app_encryption_key", "")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_timeout", "5m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	// Stale-job sweeper defaults
	v.SetDefault("sweeper_enabled", true)
	v.SetDefault("sweeper_schedule", "*/5 * * * *")
	v.SetDefault("sweeper_stale_after", "15m")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Webhooks: Webhooks{
			RedmineSecret: v.GetString("REDMINE_WEBHOOK_SECRET"),
			JiraSecret:    v.GetString("JIRA_WEBHOOK_SECRET"),
		},
		Sync: Sync{
			MaxRetries:        v.GetInt("SYNC_MAX_RETRIES"),
			IdempotencyWindow: v.GetDuration("SYNC_IDEMPOTENCY_WINDOW"),
			RequestTimeout:    v.GetDuration("SYNC_REQUEST_TIMEOUT"),
			EncryptionKey:     v.GetString("APP_ENCRYPTION_KEY"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Sweeper: Sweeper{
			Enabled:    v.GetBool("SWEEPER_ENABLED"),
			Schedule:   v.GetString("SWEEPER_SCHEDULE"),
			StaleAfter: v.GetDuration("SWEEPER_STALE_AFTER"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
	}
}
