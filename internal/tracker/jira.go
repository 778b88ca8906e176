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

// JiraClient talks to the Jira Cloud REST API v3 using basic auth
// (account email + API token).
type JiraClient struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *http.Client
}

func NewJiraClient(baseURL, email, apiToken string, timeout time.Duration) *JiraClient {
	return &JiraClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *JiraClient) System() entities.SystemType {
	return entities.SystemJira
}

// TestConnection fetches the authenticated user to validate credentials.
func (c *JiraClient) TestConnection(ctx context.Context) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "/rest/api/3/myself", nil)
	if err != nil {
		return nil, err
	}
	var user map[string]any
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("decode current user: %w", err)
	}
	return user, nil
}

func (c *JiraClient) GetIssue(ctx context.Context, issueKey string) (*Issue, error) {
	path := fmt.Sprintf("/rest/api/3/issue/%s?expand=changelog,renderedFields", issueKey)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode issue %s: %w", issueKey, err)
	}
	return jiraIssueFromRaw(raw), nil
}

func (c *JiraClient) CreateIssue(ctx context.Context, projectIdent string, fields Fields) (*Issue, error) {
	merged := Fields{"project": map[string]any{"key": projectIdent}}
	for k, v := range fields {
		merged[k] = v
	}
	body, err := c.do(ctx, http.MethodPost, "/rest/api/3/issue", map[string]any{"fields": merged})
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode created issue: %w", err)
	}
	return jiraIssueFromRaw(raw), nil
}

func (c *JiraClient) UpdateIssue(ctx context.Context, issueKey string, fields Fields) error {
	path := fmt.Sprintf("/rest/api/3/issue/%s", issueKey)
	_, err := c.do(ctx, http.MethodPut, path, map[string]any{"fields": fields})
	return err
}

func (c *JiraClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
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
	req.SetBasicAuth(c.email, c.apiToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jira request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrIssueNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, &RequestError{
			System:     entities.SystemJira,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}

func jiraIssueFromRaw(raw map[string]any) *Issue {
	issue := &Issue{Raw: raw}
	if raw == nil {
		return issue
	}
	issue.ID, _ = raw["key"].(string)
	fields, ok := raw["fields"].(map[string]any)
	if !ok {
		return issue
	}
	issue.Subject, _ = fields["summary"].(string)
	issue.Description, _ = fields["description"].(string)
	issue.TrackerName = nestedName(fields, "issuetype")
	issue.StatusName = nestedName(fields, "status")
	issue.PriorityName = nestedName(fields, "priority")
	issue.UpdatedAt, _ = fields["updated"].(string)
	if assignee, ok := fields["assignee"].(map[string]any); ok {
		issue.AssigneeName, _ = assignee["displayName"].(string)
	}
	return issue
}
