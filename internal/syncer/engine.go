// Package syncer executes sync jobs end to end: claim the log, fetch the
// source issue, translate its fields, and create or update the mirrored
// issue on the other side.
//
// Retry bookkeeping lives here rather than in the task queue: every attempt
// is visible on the SyncLog row, and the next attempt is re-enqueued with an
// explicit delay from the backoff table.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jobins-devs/redmine-jira-integration/internal/database/connections"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/projectmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/synclogs"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/syncstate"
	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
	"github.com/jobins-devs/redmine-jira-integration/internal/tracker"
	"github.com/jobins-devs/redmine-jira-integration/internal/translate"
)

// Enqueuer schedules a sync job for later execution. Implemented by the
// tasks client; faked in tests.
type Enqueuer interface {
	EnqueueSync(syncLogID uint, attempt int, delay time.Duration) error
}

// ClientFactory builds a tracker client for a connection. Overridable so
// tests can substitute fakes for the remote systems.
type ClientFactory func(conn *entities.Connection, creds connections.Credentials, timeout time.Duration) (tracker.Client, error)

type Engine struct {
	logs       *synclogs.Repository
	states     *syncstate.Repository
	mappings   *projectmappings.Repository
	conns      *connections.Repository
	translator *translate.Translator
	enqueuer   Enqueuer

	maxRetries int
	timeout    time.Duration
	newClient  ClientFactory
}

type Config struct {
	Logs       *synclogs.Repository
	States     *syncstate.Repository
	Mappings   *projectmappings.Repository
	Conns      *connections.Repository
	Translator *translate.Translator
	Enqueuer   Enqueuer

	MaxRetries     int
	RequestTimeout time.Duration

	// NewClient defaults to tracker.NewClient when nil.
	NewClient ClientFactory
}

func NewEngine(cfg Config) *Engine {
	factory := cfg.NewClient
	if factory == nil {
		factory = tracker.NewClient
	}
	return &Engine{
		logs:       cfg.Logs,
		states:     cfg.States,
		mappings:   cfg.Mappings,
		conns:      cfg.Conns,
		translator: cfg.Translator,
		enqueuer:   cfg.Enqueuer,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.RequestTimeout,
		newClient:  factory,
	}
}

// Process runs one sync attempt. Attempts are 1-based; the first webhook
// enqueue is attempt 1. A log that cannot be claimed is skipped silently:
// another worker owns it or it already finished.
func (e *Engine) Process(ctx context.Context, syncLogID uint, attempt int) error {
	syncLog, err := e.logs.GetByID(syncLogID)
	if err != nil {
		return fmt.Errorf("load sync log %d: %w", syncLogID, err)
	}

	if err := e.logs.MarkProcessing(syncLogID); err != nil {
		if errors.Is(err, synclogs.ErrNotClaimable) {
			log.Printf("sync %d: not claimable, skipping", syncLogID)
			return nil
		}
		return fmt.Errorf("claim sync log %d: %w", syncLogID, err)
	}

	if err := e.run(ctx, syncLog); err != nil {
		return e.fail(syncLog, attempt, err)
	}
	return nil
}

func (e *Engine) run(ctx context.Context, syncLog *entities.SyncLog) error {
	if syncLog.ProjectMappingID == nil {
		return errors.New("sync log has no project mapping")
	}
	mapping, err := e.mappings.GetByID(*syncLog.ProjectMappingID)
	if err != nil {
		return fmt.Errorf("load project mapping %d: %w", *syncLog.ProjectMappingID, err)
	}

	sourceConn := &mapping.RedmineConnection
	targetConn := &mapping.JiraConnection
	if syncLog.SourceSystem == entities.SystemJira {
		sourceConn, targetConn = targetConn, sourceConn
	}

	sourceClient, err := e.buildClient(sourceConn)
	if err != nil {
		return err
	}
	targetClient, err := e.buildClient(targetConn)
	if err != nil {
		return err
	}

	issue, err := sourceClient.GetIssue(ctx, syncLog.SourceIssueID)
	if err != nil {
		return fmt.Errorf("fetch source issue %s: %w", syncLog.SourceIssueID, err)
	}

	fields, err := e.translator.BuildFields(syncLog.TargetSystem, issue)
	if err != nil {
		return fmt.Errorf("translate fields: %w", err)
	}

	state, err := e.states.FindBySourceIssue(syncLog.SourceSystem, syncLog.SourceIssueID)
	if err != nil {
		return fmt.Errorf("look up sync state: %w", err)
	}

	snapshot, _ := json.Marshal(issue.Raw)

	if state == nil {
		return e.createTarget(ctx, syncLog, mapping, targetClient, issue, fields, snapshot)
	}
	return e.updateTarget(ctx, syncLog, state, targetClient, issue, fields, snapshot)
}

func (e *Engine) createTarget(ctx context.Context, syncLog *entities.SyncLog, mapping *entities.ProjectMapping, target tracker.Client, issue *tracker.Issue, fields tracker.Fields, snapshot []byte) error {
	projectIdent := mapping.JiraProjectKey
	if syncLog.TargetSystem == entities.SystemRedmine {
		projectIdent = mapping.RedmineProjectID
	}

	created, err := target.CreateIssue(ctx, projectIdent, fields)
	if err != nil {
		return fmt.Errorf("create target issue: %w", err)
	}

	// Jira's create response carries no field data, so fall back to the
	// local clock for the target-side timestamp.
	targetUpdated := created.UpdatedAt
	if targetUpdated == "" {
		targetUpdated = time.Now().UTC().Format(time.RFC3339)
	}

	state := &entities.SyncState{
		SourceSystem:    syncLog.SourceSystem,
		TargetSystem:    syncLog.TargetSystem,
		SourceIssueID:   syncLog.SourceIssueID,
		TargetIssueID:   created.ID,
		SourceUpdatedAt: issue.UpdatedAt,
		TargetUpdatedAt: targetUpdated,
		LastSyncedData:  snapshot,
	}
	if err := e.states.Create(state); err != nil {
		// ErrStateExists means a concurrent job won the create race; fail
		// this attempt so the retry takes the update branch.
		return fmt.Errorf("record sync state: %w", err)
	}

	log.Printf("sync %d: created %s issue %s from %s issue %s",
		syncLog.ID, syncLog.TargetSystem, created.ID, syncLog.SourceSystem, syncLog.SourceIssueID)
	return e.logs.MarkSuccess(syncLog.ID, created.ID)
}

func (e *Engine) updateTarget(ctx context.Context, syncLog *entities.SyncLog, state *entities.SyncState, target tracker.Client, issue *tracker.Issue, fields tracker.Fields, snapshot []byte) error {
	if detectConflict(issue.UpdatedAt, state.SourceUpdatedAt) {
		// Last write wins. The conflict is noted for operators but never
		// blocks the sync.
		log.Printf("sync %d: conflict on %s issue %s (incoming %q not newer than synced %q), applying anyway",
			syncLog.ID, syncLog.SourceSystem, syncLog.SourceIssueID, issue.UpdatedAt, state.SourceUpdatedAt)
	}

	if err := target.UpdateIssue(ctx, state.TargetIssueID, fields); err != nil {
		return fmt.Errorf("update target issue %s: %w", state.TargetIssueID, err)
	}

	targetUpdated := time.Now().UTC().Format(time.RFC3339)
	if err := e.states.UpdateState(state.ID, issue.UpdatedAt, targetUpdated, snapshot); err != nil {
		return fmt.Errorf("update sync state: %w", err)
	}

	log.Printf("sync %d: updated %s issue %s from %s issue %s",
		syncLog.ID, syncLog.TargetSystem, state.TargetIssueID, syncLog.SourceSystem, syncLog.SourceIssueID)
	return e.logs.MarkSuccess(syncLog.ID, state.TargetIssueID)
}

// fail records the error on the log and schedules the next attempt when the
// budget allows. The returned error reflects bookkeeping problems only; the
// sync failure itself is fully captured on the SyncLog row.
func (e *Engine) fail(syncLog *entities.SyncLog, attempt int, syncErr error) error {
	log.Printf("sync %d: attempt %d failed: %v", syncLog.ID, attempt, syncErr)

	if err := e.logs.MarkFailed(syncLog.ID, syncErr.Error(), errorDetails(syncErr)); err != nil {
		return fmt.Errorf("record failure for sync log %d: %w", syncLog.ID, err)
	}

	if !ShouldRetry(attempt, e.maxRetries) {
		log.Printf("sync %d: giving up after %d attempts", syncLog.ID, attempt)
		return nil
	}

	if err := e.logs.MarkRetrying(syncLog.ID); err != nil {
		return fmt.Errorf("mark sync log %d retrying: %w", syncLog.ID, err)
	}
	delay := NextDelay(attempt)
	if err := e.enqueuer.EnqueueSync(syncLog.ID, attempt+1, delay); err != nil {
		return fmt.Errorf("schedule retry for sync log %d: %w", syncLog.ID, err)
	}
	log.Printf("sync %d: retry %d scheduled in %s", syncLog.ID, attempt+1, delay)
	return nil
}

func (e *Engine) buildClient(conn *entities.Connection) (tracker.Client, error) {
	creds, err := e.conns.DecryptCredentials(conn)
	if err != nil {
		return nil, err
	}
	return e.newClient(conn, creds, e.timeout)
}

// errorDetails extracts a structured payload from tracker request errors so
// remote responses survive verbatim in error_details.
func errorDetails(err error) any {
	var reqErr *tracker.RequestError
	if errors.As(err, &reqErr) {
		return map[string]any{
			"system":      reqErr.System,
			"status_code": reqErr.StatusCode,
			"body":        reqErr.Body,
		}
	}
	return nil
}

// timestampLayouts covers Redmine (RFC 3339 UTC) and Jira Cloud
// (millisecond offset) formats.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05Z",
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// detectConflict reports whether the incoming source edit is not newer than
// the last edit this engine synced. Unparseable timestamps disable the check
// rather than block the sync.
func detectConflict(sourceUpdatedAt, storedUpdatedAt string) bool {
	if storedUpdatedAt == "" || sourceUpdatedAt == "" {
		return false
	}
	incoming, ok := parseTimestamp(sourceUpdatedAt)
	if !ok {
		return false
	}
	stored, ok := parseTimestamp(storedUpdatedAt)
	if !ok {
		return false
	}
	return !incoming.After(stored)
}
