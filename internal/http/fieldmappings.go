package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jobins-devs/redmine-jira-integration/internal/database/fieldmappings"
	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
)

// FieldMappingsController manages the value translation table.
type FieldMappingsController struct {
	mappings *fieldmappings.Repository
}

func NewFieldMappingsController(mappings *fieldmappings.Repository) *FieldMappingsController {
	return &FieldMappingsController{mappings: mappings}
}

type fieldMappingRequest struct {
	MappingType      entities.MappingType `json:"mapping_type"`
	RedmineValue     string               `json:"redmine_value"`
	RedmineID        string               `json:"redmine_id"`
	JiraValue        string               `json:"jira_value"`
	JiraID           string               `json:"jira_id"`
	AdditionalConfig map[string]any       `json:"additional_config"`
	IsActive         *bool                `json:"is_active"`
}

func validMappingType(mappingType entities.MappingType) bool {
	switch mappingType {
	case entities.MappingTypeTracker, entities.MappingTypeStatus, entities.MappingTypePriority,
		entities.MappingTypeCustomField, entities.MappingTypeUser:
		return true
	}
	return false
}

func (ctrl *FieldMappingsController) List(c *gin.Context) {
	mappingType := entities.MappingType(c.Query("type"))
	if mappingType != "" && !validMappingType(mappingType) {
		respondBadRequest(c, "invalid mapping type")
		return
	}
	mappings, err := ctrl.mappings.GetAll(mappingType)
	if err != nil {
		respondInternalError(c, err, "list field mappings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings})
}

func (ctrl *FieldMappingsController) Create(c *gin.Context) {
	var req fieldMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if !validMappingType(req.MappingType) {
		respondBadRequest(c, "mapping_type must be one of tracker, status, priority, custom_field, user")
		return
	}
	if req.RedmineValue == "" || req.JiraValue == "" {
		respondBadRequest(c, "redmine_value and jira_value are required")
		return
	}

	mapping := &entities.FieldMapping{
		MappingType:  req.MappingType,
		RedmineValue: req.RedmineValue,
		RedmineID:    req.RedmineID,
		JiraValue:    req.JiraValue,
		JiraID:       req.JiraID,
		IsActive:     true,
	}
	if req.IsActive != nil {
		mapping.IsActive = *req.IsActive
	}
	if req.AdditionalConfig != nil {
		raw, _ := json.Marshal(req.AdditionalConfig)
		mapping.AdditionalConfig = raw
	}

	if err := ctrl.mappings.Create(mapping); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			respondError(c, http.StatusConflict, "This mapping already exists.")
			return
		}
		respondInternalError(c, err, "create field mapping")
		return
	}
	respondCreated(c, mapping)
}

func (ctrl *FieldMappingsController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	mapping, err := ctrl.mappings.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondNotFound(c, "field mapping")
		return
	}
	if err != nil {
		respondInternalError(c, err, "update field mapping")
		return
	}

	var req fieldMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	if req.RedmineValue != "" {
		mapping.RedmineValue = req.RedmineValue
	}
	if req.RedmineID != "" {
		mapping.RedmineID = req.RedmineID
	}
	if req.JiraValue != "" {
		mapping.JiraValue = req.JiraValue
	}
	if req.JiraID != "" {
		mapping.JiraID = req.JiraID
	}
	if req.IsActive != nil {
		mapping.IsActive = *req.IsActive
	}
	if req.AdditionalConfig != nil {
		raw, _ := json.Marshal(req.AdditionalConfig)
		mapping.AdditionalConfig = raw
	}

	if err := ctrl.mappings.Update(mapping); err != nil {
		respondInternalError(c, err, "update field mapping")
		return
	}
	c.JSON(http.StatusOK, mapping)
}

func (ctrl *FieldMappingsController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := ctrl.mappings.Delete(id); err != nil {
		respondInternalError(c, err, "delete field mapping")
		return
	}
	respondSuccess(c, "Field mapping deleted successfully!")
}

// BulkImport creates many mappings at once, skipping duplicates.
func (ctrl *FieldMappingsController) BulkImport(c *gin.Context) {
	var req struct {
		Mappings []fieldMappingRequest `json:"mappings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if len(req.Mappings) == 0 {
		respondBadRequest(c, "mappings are required")
		return
	}

	rows := make([]entities.FieldMapping, 0, len(req.Mappings))
	for _, item := range req.Mappings {
		if !validMappingType(item.MappingType) {
			respondBadRequest(c, "invalid mapping_type in mappings")
			return
		}
		if item.RedmineValue == "" || item.JiraValue == "" {
			respondBadRequest(c, "redmine_value and jira_value are required for every mapping")
			return
		}
		row := entities.FieldMapping{
			MappingType:  item.MappingType,
			RedmineValue: item.RedmineValue,
			RedmineID:    item.RedmineID,
			JiraValue:    item.JiraValue,
			JiraID:       item.JiraID,
			IsActive:     true,
		}
		if item.IsActive != nil {
			row.IsActive = *item.IsActive
		}
		rows = append(rows, row)
	}

	created, err := ctrl.mappings.BulkImport(rows)
	if err != nil {
		respondInternalError(c, err, "bulk import field mappings")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"created": created,
		"skipped": len(rows) - created,
	})
}
