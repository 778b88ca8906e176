// Package tracker defines the issue-tracker client capability consumed by
// the sync pipeline, with one implementation per remote system. Callers pick
// an implementation through NewClient based on the connection type; nothing
// downstream branches on system tags.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jobins-devs/redmine-jira-integration/internal/database/connections"
	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
)

// DefaultTimeout bounds every outbound call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// ErrIssueNotFound is returned by GetIssue when the remote system reports 404.
var ErrIssueNotFound = errors.New("issue not found in remote system")

// RequestError carries the remote status and body verbatim so failed sync
// attempts record a meaningful error_details payload.
type RequestError struct {
	System     entities.SystemType
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s request failed: HTTP %d: %s", e.System, e.StatusCode, e.Body)
}

// Fields is the field payload written to a remote system, already translated
// into that system's vocabulary.
type Fields map[string]any

// Issue is the normalized view of a remote issue. Raw keeps the native
// payload for snapshots; the typed fields feed translation.
type Issue struct {
	ID           string
	Subject      string
	Description  string
	TrackerName  string // issue type in Jira terms
	StatusName   string
	PriorityName string
	AssigneeName string
	UpdatedAt    string // native timestamp string from the remote system
	Raw          map[string]any
}

// Client is the capability bundle the pipeline needs from either tracker.
type Client interface {
	System() entities.SystemType
	TestConnection(ctx context.Context) (map[string]any, error)
	GetIssue(ctx context.Context, issueID string) (*Issue, error)
	CreateIssue(ctx context.Context, projectIdent string, fields Fields) (*Issue, error)
	UpdateIssue(ctx context.Context, issueID string, fields Fields) error
}

// NewClient builds the concrete client for a connection using its decrypted
// credentials.
func NewClient(conn *entities.Connection, creds connections.Credentials, timeout time.Duration) (Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	switch conn.Type {
	case entities.SystemRedmine:
		return NewRedmineClient(conn.URL, creds.APIKey, timeout), nil
	case entities.SystemJira:
		return NewJiraClient(conn.URL, creds.Email, creds.APIToken, timeout), nil
	default:
		return nil, fmt.Errorf("unknown connection type %q", conn.Type)
	}
}
