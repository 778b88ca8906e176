// Package entrypoint wires every component together and runs the server
// with graceful shutdown.
package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jobins-devs/redmine-jira-integration/internal/config"
	"github.com/jobins-devs/redmine-jira-integration/internal/crypto"
	"github.com/jobins-devs/redmine-jira-integration/internal/database"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/connections"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/fieldmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/projectmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/synclogs"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/syncstate"
	http_controllers "github.com/jobins-devs/redmine-jira-integration/internal/http"
	"github.com/jobins-devs/redmine-jira-integration/internal/scheduler"
	"github.com/jobins-devs/redmine-jira-integration/internal/syncer"
	"github.com/jobins-devs/redmine-jira-integration/internal/tasks"
	"github.com/jobins-devs/redmine-jira-integration/internal/translate"
	"github.com/jobins-devs/redmine-jira-integration/internal/webhooks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs the HTTP server until SIGINT/SIGTERM, then shuts down within
// the configured timeout.
func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background components before the listener so in-flight syncs
	// can finish their bookkeeping.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

// Run builds the full application from configuration and serves it.
func Run(cfg *config.Config, version string) {
	log.Printf("Starting Redmine-Jira sync engine v%s", version)

	if cfg.Sync.EncryptionKey == "" {
		log.Fatalf("APP_ENCRYPTION_KEY is not set. Generate one with the generate-key command.")
	}
	encryptor, err := crypto.NewEncryptorFromPassphrase(cfg.Sync.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential encryption: %v", err)
	}

	if cfg.Webhooks.RedmineSecret == "" {
		log.Printf("WARNING: REDMINE_WEBHOOK_SECRET is not set. Redmine webhook signatures will not be verified.")
	}
	if cfg.Webhooks.JiraSecret == "" {
		log.Printf("WARNING: JIRA_WEBHOOK_SECRET is not set. Jira webhook signatures will not be verified.")
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	connsRepo := connections.NewRepository(db.DB, encryptor)
	mappingsRepo := projectmappings.NewRepository(db.DB)
	fieldMappingsRepo := fieldmappings.NewRepository(db.DB)
	logsRepo := synclogs.NewRepository(db.DB)
	statesRepo := syncstate.NewRepository(db.DB)

	// Task queue
	var taskClient *tasks.Client
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:           cfg.Tasks.Workers,
			TaskTimeout:       cfg.Tasks.TaskTimeout,
			ReleaseAfter:      cfg.Tasks.ReleaseAfter,
			CleanupInterval:   cfg.Tasks.CleanupInterval,
			RetentionDuration: cfg.Tasks.RetentionDuration,
		}
		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer taskClient.Close()
	} else {
		log.Fatalf("Task queue is disabled; the sync engine cannot run without it.")
	}

	engine := syncer.NewEngine(syncer.Config{
		Logs:           logsRepo,
		States:         statesRepo,
		Mappings:       mappingsRepo,
		Conns:          connsRepo,
		Translator:     translate.NewTranslator(fieldMappingsRepo),
		Enqueuer:       taskClient,
		MaxRetries:     cfg.Sync.MaxRetries,
		RequestTimeout: cfg.Sync.RequestTimeout,
	})

	taskClient.Register(tasks.NewIssueSyncQueue(engine, cfg.Tasks.TaskTimeout))

	taskCtx, taskCancel := context.WithCancel(context.Background())
	defer taskCancel()
	go taskClient.Start(taskCtx)

	gate := webhooks.NewGate(
		logsRepo,
		mappingsRepo,
		taskClient,
		cfg.Webhooks.RedmineSecret,
		cfg.Webhooks.JiraSecret,
		cfg.Sync.IdempotencyWindow,
	)

	// Stale-sync sweeper
	var sweeper *scheduler.Sweeper
	if cfg.Sweeper.Enabled {
		sweeper = scheduler.NewSweeper(logsRepo, cfg.Sweeper.Schedule, cfg.Sweeper.StaleAfter)
		if err := sweeper.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start stale-sync sweeper: %v", err)
		}
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:       db,
		Version:        version,
		Gate:           gate,
		SyncLogs:       logsRepo,
		SyncStates:     statesRepo,
		Mappings:       mappingsRepo,
		FieldMappings:  fieldMappingsRepo,
		Connections:    connsRepo,
		Enqueuer:       taskClient,
		RequestTimeout: cfg.Sync.RequestTimeout,
	})

	Serve(router, cfg, func(ctx context.Context) {
		if sweeper != nil {
			sweeper.Stop()
		}
		taskCancel()
		taskClient.Stop(ctx)
	})
}
