package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jobins-devs/redmine-jira-integration/internal/database/connections"
	"github.com/jobins-devs/redmine-jira-integration/internal/database/projectmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
)

// ProjectMappingsController manages project pairs and their sync direction.
type ProjectMappingsController struct {
	mappings *projectmappings.Repository
	conns    *connections.Repository
}

func NewProjectMappingsController(mappings *projectmappings.Repository, conns *connections.Repository) *ProjectMappingsController {
	return &ProjectMappingsController{mappings: mappings, conns: conns}
}

type projectMappingRequest struct {
	RedmineConnectionID uint                   `json:"redmine_connection_id"`
	JiraConnectionID    uint                   `json:"jira_connection_id"`
	RedmineProjectID    string                 `json:"redmine_project_id"`
	RedmineProjectName  string                 `json:"redmine_project_name"`
	JiraProjectKey      string                 `json:"jira_project_key"`
	JiraProjectName     string                 `json:"jira_project_name"`
	SyncDirection       entities.SyncDirection `json:"sync_direction"`
	IsEnabled           *bool                  `json:"is_enabled"`
	SyncConfig          map[string]any         `json:"sync_config"`
}

func validSyncDirection(direction entities.SyncDirection) bool {
	switch direction {
	case entities.DirectionRedmineToJira, entities.DirectionJiraToRedmine, entities.DirectionBidirectional:
		return true
	}
	return false
}

func (ctrl *ProjectMappingsController) List(c *gin.Context) {
	mappings, err := ctrl.mappings.GetAll()
	if err != nil {
		respondInternalError(c, err, "list project mappings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings})
}

func (ctrl *ProjectMappingsController) Create(c *gin.Context) {
	var req projectMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.RedmineProjectID == "" || req.JiraProjectKey == "" {
		respondBadRequest(c, "redmine_project_id and jira_project_key are required")
		return
	}
	if !validSyncDirection(req.SyncDirection) {
		respondBadRequest(c, "sync_direction must be redmine_to_jira, jira_to_redmine or bidirectional")
		return
	}
	if _, err := ctrl.conns.GetByID(req.RedmineConnectionID); err != nil {
		respondBadRequest(c, "redmine_connection_id does not exist")
		return
	}
	if _, err := ctrl.conns.GetByID(req.JiraConnectionID); err != nil {
		respondBadRequest(c, "jira_connection_id does not exist")
		return
	}

	mapping := &entities.ProjectMapping{
		RedmineConnectionID: req.RedmineConnectionID,
		JiraConnectionID:    req.JiraConnectionID,
		RedmineProjectID:    req.RedmineProjectID,
		RedmineProjectName:  req.RedmineProjectName,
		JiraProjectKey:      req.JiraProjectKey,
		JiraProjectName:     req.JiraProjectName,
		SyncDirection:       req.SyncDirection,
		IsEnabled:           true,
	}
	if req.IsEnabled != nil {
		mapping.IsEnabled = *req.IsEnabled
	}
	if req.SyncConfig != nil {
		raw, _ := json.Marshal(req.SyncConfig)
		mapping.SyncConfig = raw
	}

	if err := ctrl.mappings.Create(mapping); err != nil {
		respondInternalError(c, err, "create project mapping")
		return
	}
	respondCreated(c, mapping)
}

// Update changes routing settings only; the project pair itself is fixed at
// creation time.
func (ctrl *ProjectMappingsController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	mapping, err := ctrl.mappings.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondNotFound(c, "project mapping")
		return
	}
	if err != nil {
		respondInternalError(c, err, "update project mapping")
		return
	}

	var req projectMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	if req.SyncDirection != "" {
		if !validSyncDirection(req.SyncDirection) {
			respondBadRequest(c, "sync_direction must be redmine_to_jira, jira_to_redmine or bidirectional")
			return
		}
		mapping.SyncDirection = req.SyncDirection
	}
	if req.IsEnabled != nil {
		mapping.IsEnabled = *req.IsEnabled
	}
	if req.SyncConfig != nil {
		raw, _ := json.Marshal(req.SyncConfig)
		mapping.SyncConfig = raw
	}

	if err := ctrl.mappings.Update(mapping); err != nil {
		respondInternalError(c, err, "update project mapping")
		return
	}
	c.JSON(http.StatusOK, mapping)
}

func (ctrl *ProjectMappingsController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := ctrl.mappings.Delete(id); err != nil {
		respondInternalError(c, err, "delete project mapping")
		return
	}
	respondSuccess(c, "Project mapping deleted successfully!")
}

// Toggle flips is_enabled.
func (ctrl *ProjectMappingsController) Toggle(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	enabled, err := ctrl.mappings.Toggle(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondNotFound(c, "project mapping")
		return
	}
	if err != nil {
		respondInternalError(c, err, "toggle project mapping")
		return
	}
	message := "Project mapping disabled successfully!"
	if enabled {
		message = "Project mapping enabled successfully!"
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: message, Data: gin.H{"is_enabled": enabled}})
}
