package http

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobins-devs/redmine-jira-integration/internal/database"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/projectmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/synclogs"
	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
	"github.com/jobins-devs/redmine-jira-integration/internal/webhooks"
)

type stubEnqueuer struct {
	calls int
}

func (s *stubEnqueuer) EnqueueSync(_ uint, _ int, _ time.Duration) error {
	s.calls++
	return nil
}

func setupWebhooksTest(t *testing.T, redmineSecret string) (*gin.Engine, *database.Database, *stubEnqueuer, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbPath := "./test_webhooks_http_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	logs := synclogs.NewRepository(db.DB)
	mappings := projectmappings.NewRepository(db.DB)
	enqueuer := &stubEnqueuer{}
	gate := webhooks.NewGate(logs, mappings, enqueuer, redmineSecret, "", 5*time.Minute)

	controller := NewWebhooksController(gate)
	router := gin.New()
	router.POST("/webhooks/redmine", controller.Redmine)
	router.POST("/webhooks/jira", controller.Jira)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}
	return router, db, enqueuer, cleanup
}

func seedMapping(t *testing.T, db *database.Database) {
	t.Helper()
	mapping := &entities.ProjectMapping{
		RedmineProjectID: "42",
		JiraProjectKey:   "TOOL",
		SyncDirection:    entities.DirectionBidirectional,
		IsEnabled:        true,
	}
	require.NoError(t, db.DB.Create(mapping).Error)
}

func redmineSignature(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhooksController_Redmine(t *testing.T) {
	body := `{"action":"updated","issue":{"id":101,"project":{"id":42}}}`

	t.Run("queues a valid delivery", func(t *testing.T) {
		router, db, enqueuer, cleanup := setupWebhooksTest(t, "secret")
		defer cleanup()
		seedMapping(t, db)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/webhooks/redmine", bytes.NewBufferString(body))
		req.Header.Set("X-Redmine-Signature", redmineSignature(body, "secret"))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Webhook received and queued")
		assert.Equal(t, 1, enqueuer.calls)
	})

	t.Run("rejects an invalid signature", func(t *testing.T) {
		router, db, enqueuer, cleanup := setupWebhooksTest(t, "secret")
		defer cleanup()
		seedMapping(t, db)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/webhooks/redmine", bytes.NewBufferString(body))
		req.Header.Set("X-Redmine-Signature", redmineSignature(body, "wrong"))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, 0, enqueuer.calls)
	})

	t.Run("rejects a payload without issue data", func(t *testing.T) {
		router, _, _, cleanup := setupWebhooksTest(t, "")
		defer cleanup()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/webhooks/redmine", bytes.NewBufferString(`{"action":"updated"}`))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("acknowledges deliveries with no mapping", func(t *testing.T) {
		router, _, enqueuer, cleanup := setupWebhooksTest(t, "")
		defer cleanup()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/webhooks/redmine", bytes.NewBufferString(body))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Sync not configured")
		assert.Equal(t, 0, enqueuer.calls)
	})

	t.Run("acknowledges duplicate deliveries", func(t *testing.T) {
		router, db, enqueuer, cleanup := setupWebhooksTest(t, "")
		defer cleanup()
		seedMapping(t, db)

		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/webhooks/redmine", bytes.NewBufferString(body))
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		}
		assert.Equal(t, 1, enqueuer.calls)
	})
}

func TestWebhooksController_Jira(t *testing.T) {
	body := `{"webhookEvent":"jira:issue_created","issue":{"key":"TOOL-7","fields":{"project":{"key":"TOOL"}}}}`

	t.Run("queues a valid delivery", func(t *testing.T) {
		router, db, enqueuer, cleanup := setupWebhooksTest(t, "")
		defer cleanup()
		seedMapping(t, db)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/webhooks/jira", bytes.NewBufferString(body))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, enqueuer.calls)

		var count int64
		db.DB.Model(&entities.SyncLog{}).Where("source_system = ?", entities.SystemJira).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("rejects a payload without issue data", func(t *testing.T) {
		router, _, _, cleanup := setupWebhooksTest(t, "")
		defer cleanup()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/webhooks/jira", bytes.NewBufferString(`{"webhookEvent":"jira:issue_created"}`))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
