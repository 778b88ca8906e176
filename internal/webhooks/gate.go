// Package webhooks is the ingestion gate between the remote trackers and the
// sync pipeline. Every delivery passes signature verification, payload
// extraction, mapping lookup, and duplicate suppression before a pending
// SyncLog is created and queued.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jobins-devs/redmine-jira-integration/internal/database/projectmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/synclogs"
	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
	"github.com/jobins-devs/redmine-jira-integration/internal/syncer"
)

// ErrInvalidSignature rejects a delivery whose HMAC does not match. Mapped
// to 403 by the HTTP layer.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrBadPayload rejects a delivery missing issue data or identifiers.
// Mapped to 400 by the HTTP layer.
var ErrBadPayload = errors.New("bad webhook payload")

// Result is the outcome of an accepted delivery. Deliveries that were valid
// but not actionable (no mapping, duplicate) come back with Queued false.
type Result struct {
	Queued    bool
	Message   string
	SyncLogID uint
}

type Gate struct {
	logs     *synclogs.Repository
	mappings *projectmappings.Repository
	enqueuer syncer.Enqueuer

	redmineSecret string
	jiraSecret    string
	window        time.Duration
}

func NewGate(logs *synclogs.Repository, mappings *projectmappings.Repository, enqueuer syncer.Enqueuer, redmineSecret, jiraSecret string, window time.Duration) *Gate {
	return &Gate{
		logs:          logs,
		mappings:      mappings,
		enqueuer:      enqueuer,
		redmineSecret: redmineSecret,
		jiraSecret:    jiraSecret,
		window:        window,
	}
}

// VerifyRedmineSignature checks the hex HMAC-SHA256 of the raw body against
// the X-Redmine-Signature header value.
func VerifyRedmineSignature(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(computed), []byte(signature))
}

// VerifyJiraSignature checks the "sha256=" prefixed hex HMAC-SHA256 of the
// raw body against the X-Hub-Signature header value.
func VerifyJiraSignature(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(computed), []byte(signature))
}

// IngestRedmine processes one Redmine webhook delivery. Signature checking
// is skipped when no secret is configured.
func (g *Gate) IngestRedmine(body []byte, signature string) (*Result, error) {
	if g.redmineSecret != "" && !VerifyRedmineSignature(body, g.redmineSecret, signature) {
		log.Printf("webhook: invalid redmine signature")
		return nil, ErrInvalidSignature
	}

	var payload struct {
		Action string         `json:"action"`
		Issue  map[string]any `json:"issue"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if payload.Issue == nil {
		return nil, fmt.Errorf("%w: no issue data", ErrBadPayload)
	}

	issueID := stringID(payload.Issue["id"])
	projectID := ""
	if project, ok := payload.Issue["project"].(map[string]any); ok {
		projectID = stringID(project["id"])
	}
	if issueID == "" || projectID == "" {
		return nil, fmt.Errorf("%w: missing project or issue id", ErrBadPayload)
	}

	mapping, err := g.mappings.FindEnabledForRedmineProject(projectID)
	if err != nil {
		return nil, err
	}
	if mapping == nil || !mapping.CanSyncFromRedmine() {
		log.Printf("webhook: no mapping for redmine project %s, issue %s", projectID, issueID)
		return &Result{Message: "Sync not configured"}, nil
	}

	syncType := ClassifyRedmineEvent(payload.Action, payload.Issue)

	return g.queue(mapping.ID, entities.SystemRedmine, entities.SystemJira, issueID, syncType, payload.Issue)
}

// IngestJira processes one Jira webhook delivery.
func (g *Gate) IngestJira(body []byte, signature string) (*Result, error) {
	if g.jiraSecret != "" && !VerifyJiraSignature(body, g.jiraSecret, signature) {
		log.Printf("webhook: invalid jira signature")
		return nil, ErrInvalidSignature
	}

	var payload struct {
		WebhookEvent string         `json:"webhookEvent"`
		Issue        map[string]any `json:"issue"`
		Changelog    map[string]any `json:"changelog"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if payload.Issue == nil {
		return nil, fmt.Errorf("%w: no issue data", ErrBadPayload)
	}

	issueKey, _ := payload.Issue["key"].(string)
	projectKey := ""
	if fields, ok := payload.Issue["fields"].(map[string]any); ok {
		if project, ok := fields["project"].(map[string]any); ok {
			projectKey, _ = project["key"].(string)
		}
	}
	if issueKey == "" || projectKey == "" {
		return nil, fmt.Errorf("%w: missing project or issue key", ErrBadPayload)
	}

	mapping, err := g.mappings.FindEnabledForJiraProject(projectKey)
	if err != nil {
		return nil, err
	}
	if mapping == nil || !mapping.CanSyncFromJira() {
		log.Printf("webhook: no mapping for jira project %s, issue %s", projectKey, issueKey)
		return &Result{Message: "Sync not configured"}, nil
	}

	syncType := ClassifyJiraEvent(payload.WebhookEvent, payload.Changelog)

	return g.queue(mapping.ID, entities.SystemJira, entities.SystemRedmine, issueKey, syncType, payload.Issue)
}

// queue suppresses duplicate deliveries inside the idempotency window, then
// creates the pending log and hands it to the task queue.
func (g *Gate) queue(mappingID uint, source, target entities.SystemType, sourceIssueID string, syncType entities.SyncType, issue map[string]any) (*Result, error) {
	duplicate, err := g.logs.HasRecentPending(source, sourceIssueID, g.window)
	if err != nil {
		return nil, err
	}
	if duplicate {
		log.Printf("webhook: duplicate delivery for %s issue %s, skipping", source, sourceIssueID)
		return &Result{Message: "Already processing"}, nil
	}

	syncData, _ := json.Marshal(issue)
	syncLog := &entities.SyncLog{
		ProjectMappingID: &mappingID,
		SourceSystem:     source,
		TargetSystem:     target,
		SourceIssueID:    sourceIssueID,
		SyncType:         syncType,
		Status:           entities.SyncStatusPending,
		SyncData:         syncData,
	}
	if err := g.logs.Create(syncLog); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}

	if err := g.enqueuer.EnqueueSync(syncLog.ID, 1, 0); err != nil {
		return nil, fmt.Errorf("enqueue sync %d: %w", syncLog.ID, err)
	}

	log.Printf("webhook: queued sync %d for %s issue %s (%s)", syncLog.ID, source, sourceIssueID, syncType)
	return &Result{Queued: true, Message: "Webhook received and queued", SyncLogID: syncLog.ID}, nil
}

// ClassifyRedmineEvent labels a Redmine delivery for the audit trail. The
// labels are heuristic: presence of a status object on an update is treated
// as a status change.
func ClassifyRedmineEvent(action string, issue map[string]any) entities.SyncType {
	if action == "opened" || action == "created" {
		return entities.SyncTypeCreate
	}
	if _, ok := issue["status"]; ok {
		return entities.SyncTypeStatusChange
	}
	return entities.SyncTypeUpdate
}

// ClassifyJiraEvent labels a Jira delivery from its webhook event name and
// changelog.
func ClassifyJiraEvent(webhookEvent string, changelog map[string]any) entities.SyncType {
	if webhookEvent == "jira:issue_created" {
		return entities.SyncTypeCreate
	}
	if webhookEvent == "jira:issue_updated" && changelog != nil {
		if items, ok := changelog["items"].([]any); ok {
			for _, raw := range items {
				item, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				if field, _ := item["field"].(string); field == "status" {
					return entities.SyncTypeStatusChange
				}
			}
		}
	}
	return entities.SyncTypeUpdate
}

// stringID renders numeric or string JSON identifiers canonically.
func stringID(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.0f", value), ".0")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}
