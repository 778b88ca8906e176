package syncer

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jobins-devs/redmine-jira-integration/internal/crypto"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/connections"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/fieldmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/projectmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/synclogs"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/syncstate"
	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
	"github.com/jobins-devs/redmine-jira-integration/internal/tracker"
	"github.com/jobins-devs/redmine-jira-integration/internal/translate"
)

type fakeClient struct {
	system    entities.SystemType
	issues    map[string]*tracker.Issue
	createdID string

	getErr    error
	createErr error
	updateErr error

	createCalls []tracker.Fields
	createIdent string
	updateCalls map[string]tracker.Fields
}

func newFakeClient(system entities.SystemType) *fakeClient {
	return &fakeClient{
		system:      system,
		issues:      map[string]*tracker.Issue{},
		updateCalls: map[string]tracker.Fields{},
	}
}

func (f *fakeClient) System() entities.SystemType { return f.system }

func (f *fakeClient) TestConnection(_ context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}

func (f *fakeClient) GetIssue(_ context.Context, issueID string) (*tracker.Issue, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	issue, ok := f.issues[issueID]
	if !ok {
		return nil, tracker.ErrIssueNotFound
	}
	return issue, nil
}

func (f *fakeClient) CreateIssue(_ context.Context, projectIdent string, fields tracker.Fields) (*tracker.Issue, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createIdent = projectIdent
	f.createCalls = append(f.createCalls, fields)
	return &tracker.Issue{ID: f.createdID}, nil
}

func (f *fakeClient) UpdateIssue(_ context.Context, issueID string, fields tracker.Fields) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updateCalls[issueID] = fields
	return nil
}

type fakeEnqueuer struct {
	calls []enqueueCall
	err   error
}

type enqueueCall struct {
	syncLogID uint
	attempt   int
	delay     time.Duration
}

func (f *fakeEnqueuer) EnqueueSync(syncLogID uint, attempt int, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, enqueueCall{syncLogID: syncLogID, attempt: attempt, delay: delay})
	return nil
}

type testEnv struct {
	db       *gorm.DB
	logs     *synclogs.Repository
	states   *syncstate.Repository
	engine   *Engine
	redmine  *fakeClient
	jira     *fakeClient
	enqueuer *fakeEnqueuer
	mapping  *entities.ProjectMapping
}

func setupEngine(t *testing.T) (*testEnv, func()) {
	dbPath := "./test_syncer_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&entities.Connection{},
		&entities.ProjectMapping{},
		&entities.FieldMapping{},
		&entities.SyncLog{},
		&entities.SyncState{},
	)
	require.NoError(t, err)

	encryptor, err := crypto.NewEncryptorFromPassphrase("test-passphrase")
	require.NoError(t, err)

	conns := connections.NewRepository(db, encryptor)

	redmineConn := &entities.Connection{Type: entities.SystemRedmine, Name: "redmine", URL: "http://redmine.local"}
	require.NoError(t, conns.Create(redmineConn, connections.Credentials{APIKey: "key"}))
	jiraConn := &entities.Connection{Type: entities.SystemJira, Name: "jira", URL: "http://jira.local"}
	require.NoError(t, conns.Create(jiraConn, connections.Credentials{Email: "a@b.c", APIToken: "token"}))

	mappings := projectmappings.NewRepository(db)
	mapping := &entities.ProjectMapping{
		RedmineConnectionID: redmineConn.ID,
		JiraConnectionID:    jiraConn.ID,
		RedmineProjectID:    "internal-tools",
		JiraProjectKey:      "TOOL",
		SyncDirection:       entities.DirectionBidirectional,
		IsEnabled:           true,
	}
	require.NoError(t, mappings.Create(mapping))

	env := &testEnv{
		db:       db,
		logs:     synclogs.NewRepository(db),
		states:   syncstate.NewRepository(db),
		redmine:  newFakeClient(entities.SystemRedmine),
		jira:     newFakeClient(entities.SystemJira),
		enqueuer: &fakeEnqueuer{},
		mapping:  mapping,
	}

	env.engine = NewEngine(Config{
		Logs:           env.logs,
		States:         env.states,
		Mappings:       mappings,
		Conns:          conns,
		Translator:     translate.NewTranslator(fieldmappings.NewRepository(db)),
		Enqueuer:       env.enqueuer,
		MaxRetries:     3,
		RequestTimeout: time.Second,
		NewClient: func(conn *entities.Connection, _ connections.Credentials, _ time.Duration) (tracker.Client, error) {
			if conn.Type == entities.SystemRedmine {
				return env.redmine, nil
			}
			return env.jira, nil
		},
	})

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return env, cleanup
}

func (env *testEnv) createLog(t *testing.T, source entities.SystemType, sourceIssueID string) *entities.SyncLog {
	target := entities.SystemJira
	if source == entities.SystemJira {
		target = entities.SystemRedmine
	}
	syncLog := &entities.SyncLog{
		ProjectMappingID: &env.mapping.ID,
		SourceSystem:     source,
		TargetSystem:     target,
		SourceIssueID:    sourceIssueID,
		SyncType:         entities.SyncTypeUpdate,
		Status:           entities.SyncStatusPending,
	}
	require.NoError(t, env.logs.Create(syncLog))
	return syncLog
}

func TestEngineCreatesTargetIssue(t *testing.T) {
	env, cleanup := setupEngine(t)
	defer cleanup()

	env.redmine.issues["101"] = &tracker.Issue{
		ID:        "101",
		Subject:   "New bug",
		UpdatedAt: "2026-08-01T10:00:00Z",
		Raw:       map[string]any{"id": float64(101)},
	}
	env.jira.createdID = "TOOL-7"

	syncLog := env.createLog(t, entities.SystemRedmine, "101")
	require.NoError(t, env.engine.Process(context.Background(), syncLog.ID, 1))

	assert.Equal(t, "TOOL", env.jira.createIdent)
	require.Len(t, env.jira.createCalls, 1)
	assert.Equal(t, "New bug", env.jira.createCalls[0]["summary"])

	state, err := env.states.FindBySourceIssue(entities.SystemRedmine, "101")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "TOOL-7", state.TargetIssueID)
	assert.Equal(t, "2026-08-01T10:00:00Z", state.SourceUpdatedAt)

	updated, err := env.logs.GetByID(syncLog.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusSuccess, updated.Status)
	assert.Equal(t, "TOOL-7", updated.TargetIssueID)
}

func TestEngineUpdatesExistingIssue(t *testing.T) {
	env, cleanup := setupEngine(t)
	defer cleanup()

	env.redmine.issues["101"] = &tracker.Issue{
		ID:        "101",
		Subject:   "Edited subject",
		UpdatedAt: "2026-08-02T09:00:00Z",
	}
	require.NoError(t, env.states.Create(&entities.SyncState{
		SourceSystem:    entities.SystemRedmine,
		TargetSystem:    entities.SystemJira,
		SourceIssueID:   "101",
		TargetIssueID:   "TOOL-7",
		SourceUpdatedAt: "2026-08-01T10:00:00Z",
	}))

	syncLog := env.createLog(t, entities.SystemRedmine, "101")
	require.NoError(t, env.engine.Process(context.Background(), syncLog.ID, 1))

	assert.Empty(t, env.jira.createCalls)
	require.Contains(t, env.jira.updateCalls, "TOOL-7")
	assert.Equal(t, "Edited subject", env.jira.updateCalls["TOOL-7"]["summary"])

	state, err := env.states.FindBySourceIssue(entities.SystemRedmine, "101")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-02T09:00:00Z", state.SourceUpdatedAt)

	updated, err := env.logs.GetByID(syncLog.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusSuccess, updated.Status)
	assert.Equal(t, "TOOL-7", updated.TargetIssueID)
}

func TestEngineConflictDoesNotBlockSync(t *testing.T) {
	env, cleanup := setupEngine(t)
	defer cleanup()

	// incoming edit is older than what was last synced
	env.redmine.issues["101"] = &tracker.Issue{
		ID:        "101",
		Subject:   "Stale edit",
		UpdatedAt: "2026-08-01T08:00:00Z",
	}
	require.NoError(t, env.states.Create(&entities.SyncState{
		SourceSystem:    entities.SystemRedmine,
		TargetSystem:    entities.SystemJira,
		SourceIssueID:   "101",
		TargetIssueID:   "TOOL-7",
		SourceUpdatedAt: "2026-08-01T10:00:00Z",
	}))

	syncLog := env.createLog(t, entities.SystemRedmine, "101")
	require.NoError(t, env.engine.Process(context.Background(), syncLog.ID, 1))

	// last write wins: the update is applied regardless
	require.Contains(t, env.jira.updateCalls, "TOOL-7")

	updated, err := env.logs.GetByID(syncLog.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusSuccess, updated.Status)
}

func TestEngineSyncsJiraToRedmine(t *testing.T) {
	env, cleanup := setupEngine(t)
	defer cleanup()

	env.jira.issues["TOOL-9"] = &tracker.Issue{
		ID:        "TOOL-9",
		Subject:   "Jira-born issue",
		UpdatedAt: "2026-08-03T12:00:00.000+0000",
	}
	env.redmine.createdID = "202"

	syncLog := env.createLog(t, entities.SystemJira, "TOOL-9")
	require.NoError(t, env.engine.Process(context.Background(), syncLog.ID, 1))

	assert.Equal(t, "internal-tools", env.redmine.createIdent)
	require.Len(t, env.redmine.createCalls, 1)
	assert.Equal(t, "Jira-born issue", env.redmine.createCalls[0]["subject"])

	state, err := env.states.FindBySourceIssue(entities.SystemJira, "TOOL-9")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "202", state.TargetIssueID)
}

func TestEngineSchedulesRetryOnFailure(t *testing.T) {
	env, cleanup := setupEngine(t)
	defer cleanup()

	env.redmine.getErr = &tracker.RequestError{
		System:     entities.SystemRedmine,
		StatusCode: 503,
		Body:       "maintenance",
	}

	syncLog := env.createLog(t, entities.SystemRedmine, "101")
	require.NoError(t, env.engine.Process(context.Background(), syncLog.ID, 1))

	updated, err := env.logs.GetByID(syncLog.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusRetrying, updated.Status)
	assert.Equal(t, 1, updated.RetryCount)
	assert.Contains(t, updated.ErrorMessage, "HTTP 503")
	assert.NotEmpty(t, updated.ErrorDetails)

	require.Len(t, env.enqueuer.calls, 1)
	assert.Equal(t, syncLog.ID, env.enqueuer.calls[0].syncLogID)
	assert.Equal(t, 2, env.enqueuer.calls[0].attempt)
	assert.Equal(t, 60*time.Second, env.enqueuer.calls[0].delay)
}

func TestEngineGivesUpAfterMaxAttempts(t *testing.T) {
	env, cleanup := setupEngine(t)
	defer cleanup()

	env.redmine.getErr = &tracker.RequestError{
		System:     entities.SystemRedmine,
		StatusCode: 500,
		Body:       "boom",
	}

	syncLog := env.createLog(t, entities.SystemRedmine, "101")
	require.NoError(t, env.engine.Process(context.Background(), syncLog.ID, 3))

	updated, err := env.logs.GetByID(syncLog.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, updated.Status)
	assert.Empty(t, env.enqueuer.calls)
}

func TestEngineRetryExhaustion(t *testing.T) {
	env, cleanup := setupEngine(t)
	defer cleanup()

	env.redmine.getErr = &tracker.RequestError{
		System:     entities.SystemRedmine,
		StatusCode: 503,
		Body:       "maintenance",
	}

	syncLog := env.createLog(t, entities.SystemRedmine, "101")

	// attempt 1: fails, first retry scheduled
	require.NoError(t, env.engine.Process(context.Background(), syncLog.ID, 1))
	updated, err := env.logs.GetByID(syncLog.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusRetrying, updated.Status)
	assert.Equal(t, 1, updated.RetryCount)
	require.Len(t, env.enqueuer.calls, 1)
	assert.Equal(t, 2, env.enqueuer.calls[0].attempt)
	assert.Equal(t, 60*time.Second, env.enqueuer.calls[0].delay)

	// attempt 2: fails again, second retry with the longer delay
	require.NoError(t, env.engine.Process(context.Background(), syncLog.ID, 2))
	updated, err = env.logs.GetByID(syncLog.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusRetrying, updated.Status)
	assert.Equal(t, 2, updated.RetryCount)
	require.Len(t, env.enqueuer.calls, 2)
	assert.Equal(t, 3, env.enqueuer.calls[1].attempt)
	assert.Equal(t, 300*time.Second, env.enqueuer.calls[1].delay)

	// attempt 3: budget exhausted, failed is terminal and the counter stops
	require.NoError(t, env.engine.Process(context.Background(), syncLog.ID, 3))
	updated, err = env.logs.GetByID(syncLog.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, updated.Status)
	assert.Equal(t, 2, updated.RetryCount)
	assert.Len(t, env.enqueuer.calls, 2)

	// and a terminal log can no longer be claimed
	require.NoError(t, env.engine.Process(context.Background(), syncLog.ID, 4))
	assert.Len(t, env.enqueuer.calls, 2)
}

func TestEngineSkipsUnclaimableLog(t *testing.T) {
	env, cleanup := setupEngine(t)
	defer cleanup()

	syncLog := env.createLog(t, entities.SystemRedmine, "101")
	require.NoError(t, env.logs.MarkProcessing(syncLog.ID))
	require.NoError(t, env.logs.MarkSuccess(syncLog.ID, "TOOL-7"))

	require.NoError(t, env.engine.Process(context.Background(), syncLog.ID, 2))

	// a finished log is never re-run
	assert.Empty(t, env.jira.createCalls)
	assert.Empty(t, env.jira.updateCalls)
}
