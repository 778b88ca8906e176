package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
)

// RedmineClient talks to the Redmine REST API using API-key authentication.
type RedmineClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRedmineClient(baseURL, apiKey string, timeout time.Duration) *RedmineClient {
	return &RedmineClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *RedmineClient) System() entities.SystemType {
	return entities.SystemRedmine
}

// TestConnection fetches the current user to validate URL and API key.
func (c *RedmineClient) TestConnection(ctx context.Context) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "/users/current.json", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		User map[string]any `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode current user: %w", err)
	}
	return payload.User, nil
}

func (c *RedmineClient) GetIssue(ctx context.Context, issueID string) (*Issue, error) {
	path := fmt.Sprintf("/issues/%s.json?include=attachments,relations,journals", issueID)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Issue map[string]any `json:"issue"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode issue %s: %w", issueID, err)
	}
	if payload.Issue == nil {
		return nil, ErrIssueNotFound
	}
	return redmineIssueFromRaw(payload.Issue), nil
}

func (c *RedmineClient) CreateIssue(ctx context.Context, projectIdent string, fields Fields) (*Issue, error) {
	issue := Fields{"project_id": projectIdent}
	for k, v := range fields {
		issue[k] = v
	}
	body, err := c.do(ctx, http.MethodPost, "/issues.json", map[string]any{"issue": issue})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Issue map[string]any `json:"issue"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode created issue: %w", err)
	}
	return redmineIssueFromRaw(payload.Issue), nil
}

func (c *RedmineClient) UpdateIssue(ctx context.Context, issueID string, fields Fields) error {
	path := fmt.Sprintf("/issues/%s.json", issueID)
	_, err := c.do(ctx, http.MethodPut, path, map[string]any{"issue": fields})
	return err
}

func (c *RedmineClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Redmine-API-Key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("redmine request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrIssueNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, &RequestError{
			System:     entities.SystemRedmine,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}

func redmineIssueFromRaw(raw map[string]any) *Issue {
	issue := &Issue{Raw: raw}
	if raw == nil {
		return issue
	}
	if id, ok := raw["id"]; ok {
		issue.ID = stringify(id)
	}
	issue.Subject, _ = raw["subject"].(string)
	issue.Description, _ = raw["description"].(string)
	issue.TrackerName = nestedName(raw, "tracker")
	issue.StatusName = nestedName(raw, "status")
	issue.PriorityName = nestedName(raw, "priority")
	issue.AssigneeName = nestedName(raw, "assigned_to")
	issue.UpdatedAt, _ = raw["updated_on"].(string)
	return issue
}

// nestedName pulls the "name" field from a nested object like {"id":1,"name":"Bug"}.
func nestedName(raw map[string]any, key string) string {
	obj, ok := raw[key].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := obj["name"].(string)
	return name
}

// stringify renders JSON numbers without a trailing ".0" so issue ids keep
// their canonical form.
func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.0f", value), ".0")
	default:
		return fmt.Sprintf("%v", value)
	}
}
