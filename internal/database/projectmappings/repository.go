// Package projectmappings provides database operations for project mappings.
// The sync engine treats mappings as read-only routing configuration; writes
// come from the admin surface.
package projectmappings

import (
	"errors"

	"gorm.io/gorm"

	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(mapping *entities.ProjectMapping) error {
	return r.db.Create(mapping).Error
}

func (r *Repository) Update(mapping *entities.ProjectMapping) error {
	return r.db.Save(mapping).Error
}

func (r *Repository) Delete(id uint) error {
	return r.db.Delete(&entities.ProjectMapping{}, id).Error
}

func (r *Repository) GetByID(id uint) (*entities.ProjectMapping, error) {
	var mapping entities.ProjectMapping
	err := r.db.
		Preload("RedmineConnection").
		Preload("JiraConnection").
		First(&mapping, id).Error
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *Repository) GetAll() ([]entities.ProjectMapping, error) {
	var mappings []entities.ProjectMapping
	err := r.db.
		Preload("RedmineConnection").
		Preload("JiraConnection").
		Order("created_at desc").
		Find(&mappings).Error
	return mappings, err
}

// Toggle flips is_enabled and returns the new value.
func (r *Repository) Toggle(id uint) (bool, error) {
	var mapping entities.ProjectMapping
	if err := r.db.First(&mapping, id).Error; err != nil {
		return false, err
	}
	mapping.IsEnabled = !mapping.IsEnabled
	if err := r.db.Save(&mapping).Error; err != nil {
		return false, err
	}
	return mapping.IsEnabled, nil
}

// CountEnabled returns the number of enabled mappings.
func (r *Repository) CountEnabled() (int64, error) {
	var count int64
	err := r.db.Model(&entities.ProjectMapping{}).Where("is_enabled = ?", true).Count(&count).Error
	return count, err
}

// FindEnabledForRedmineProject resolves the enabled mapping routing events
// from the given Redmine project. Returns nil when none is configured.
func (r *Repository) FindEnabledForRedmineProject(projectID string) (*entities.ProjectMapping, error) {
	return r.findEnabled("redmine_project_id = ?", projectID)
}

// FindEnabledForJiraProject resolves the enabled mapping routing events from
// the given Jira project key. Returns nil when none is configured.
func (r *Repository) FindEnabledForJiraProject(projectKey string) (*entities.ProjectMapping, error) {
	return r.findEnabled("jira_project_key = ?", projectKey)
}

func (r *Repository) findEnabled(query string, arg string) (*entities.ProjectMapping, error) {
	var mapping entities.ProjectMapping
	err := r.db.
		Preload("RedmineConnection").
		Preload("JiraConnection").
		Where("is_enabled = ?", true).
		Where(query, arg).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}
