package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jobins-devs/redmine-jira-integration/internal/database/connections"
	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
	"github.com/jobins-devs/redmine-jira-integration/internal/syncer"
	"github.com/jobins-devs/redmine-jira-integration/internal/tracker"
)

// ConnectionsController manages tracker endpoints and credential testing.
type ConnectionsController struct {
	conns     *connections.Repository
	timeout   time.Duration
	newClient syncer.ClientFactory
}

func NewConnectionsController(conns *connections.Repository, timeout time.Duration, newClient syncer.ClientFactory) *ConnectionsController {
	if newClient == nil {
		newClient = tracker.NewClient
	}
	return &ConnectionsController{
		conns:     conns,
		timeout:   timeout,
		newClient: newClient,
	}
}

type connectionRequest struct {
	Type        entities.SystemType      `json:"type"`
	Name        string                   `json:"name"`
	URL         string                   `json:"url"`
	Credentials *connections.Credentials `json:"credentials"`
	IsActive    *bool                    `json:"is_active"`
}

func validateConnectionType(systemType entities.SystemType) bool {
	return systemType == entities.SystemRedmine || systemType == entities.SystemJira
}

func validateCredentials(systemType entities.SystemType, creds connections.Credentials) string {
	if systemType == entities.SystemRedmine {
		if creds.APIKey == "" {
			return "credentials.api_key is required for redmine connections"
		}
		return ""
	}
	if creds.Email == "" || creds.APIToken == "" {
		return "credentials.email and credentials.api_token are required for jira connections"
	}
	return ""
}

func (ctrl *ConnectionsController) List(c *gin.Context) {
	conns, err := ctrl.conns.GetAll()
	if err != nil {
		respondInternalError(c, err, "list connections")
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns})
}

func (ctrl *ConnectionsController) Create(c *gin.Context) {
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if !validateConnectionType(req.Type) {
		respondBadRequest(c, "type must be redmine or jira")
		return
	}
	if req.Name == "" {
		respondBadRequest(c, "name is required")
		return
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		respondBadRequest(c, "url must be a valid URL")
		return
	}
	if req.Credentials == nil {
		respondBadRequest(c, "credentials are required")
		return
	}
	if msg := validateCredentials(req.Type, *req.Credentials); msg != "" {
		respondBadRequest(c, msg)
		return
	}

	conn := &entities.Connection{
		Type:             req.Type,
		Name:             req.Name,
		URL:              req.URL,
		IsActive:         true,
		ConnectionStatus: entities.ConnectionStatusNotTested,
	}
	if err := ctrl.conns.Create(conn, *req.Credentials); err != nil {
		respondInternalError(c, err, "create connection")
		return
	}
	respondCreated(c, conn)
}

func (ctrl *ConnectionsController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	conn, err := ctrl.conns.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondNotFound(c, "connection")
		return
	}
	if err != nil {
		respondInternalError(c, err, "update connection")
		return
	}

	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	if req.Name != "" {
		conn.Name = req.Name
	}
	if req.URL != "" {
		if _, err := url.ParseRequestURI(req.URL); err != nil {
			respondBadRequest(c, "url must be a valid URL")
			return
		}
		conn.URL = req.URL
	}
	if req.IsActive != nil {
		conn.IsActive = *req.IsActive
	}
	if req.Credentials != nil {
		if msg := validateCredentials(conn.Type, *req.Credentials); msg != "" {
			respondBadRequest(c, msg)
			return
		}
	}

	if err := ctrl.conns.Update(conn, req.Credentials); err != nil {
		respondInternalError(c, err, "update connection")
		return
	}
	c.JSON(http.StatusOK, conn)
}

func (ctrl *ConnectionsController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := ctrl.conns.Delete(id); err != nil {
		respondInternalError(c, err, "delete connection")
		return
	}
	respondSuccess(c, "Connection deleted successfully!")
}

// Test verifies a connection's credentials against the live system and
// records the outcome on the row.
func (ctrl *ConnectionsController) Test(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	conn, err := ctrl.conns.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondNotFound(c, "connection")
		return
	}
	if err != nil {
		respondInternalError(c, err, "test connection")
		return
	}

	creds, err := ctrl.conns.DecryptCredentials(conn)
	if err != nil {
		respondInternalError(c, err, "test connection")
		return
	}
	client, err := ctrl.newClient(conn, creds, ctrl.timeout)
	if err != nil {
		respondInternalError(c, err, "test connection")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctrl.timeout)
	defer cancel()

	user, err := client.TestConnection(ctx)
	if err != nil {
		if recordErr := ctrl.conns.RecordTestResult(conn, false, err.Error()); recordErr != nil {
			respondInternalError(c, recordErr, "test connection")
			return
		}
		respondError(c, http.StatusUnprocessableEntity, "Connection failed: "+err.Error())
		return
	}

	if err := ctrl.conns.RecordTestResult(conn, true, ""); err != nil {
		respondInternalError(c, err, "test connection")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Connection successful!", Data: user})
}
