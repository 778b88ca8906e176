// Package fieldmappings provides database operations for field mappings.
//
// The lookup helpers implement the translate.MappingLookup interface:
//
//	var _ translate.MappingLookup = (*Repository)(nil)
package fieldmappings

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(mapping *entities.FieldMapping) error {
	return r.db.Create(mapping).Error
}

func (r *Repository) Update(mapping *entities.FieldMapping) error {
	return r.db.Save(mapping).Error
}

func (r *Repository) Delete(id uint) error {
	return r.db.Delete(&entities.FieldMapping{}, id).Error
}

func (r *Repository) GetByID(id uint) (*entities.FieldMapping, error) {
	var mapping entities.FieldMapping
	if err := r.db.First(&mapping, id).Error; err != nil {
		return nil, err
	}
	return &mapping, nil
}

// GetAll lists mappings, optionally filtered by type.
func (r *Repository) GetAll(mappingType entities.MappingType) ([]entities.FieldMapping, error) {
	var mappings []entities.FieldMapping
	query := r.db.Order("mapping_type, redmine_value")
	if mappingType != "" {
		query = query.Where("mapping_type = ?", mappingType)
	}
	err := query.Find(&mappings).Error
	return mappings, err
}

// BulkImport inserts mappings in one transaction, skipping rows that collide
// with the unique (type, redmine_value, jira_value) constraint.
func (r *Repository) BulkImport(mappings []entities.FieldMapping) (int, error) {
	imported := 0
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for i := range mappings {
			var count int64
			tx.Model(&entities.FieldMapping{}).
				Where("mapping_type = ? AND redmine_value = ? AND jira_value = ?",
					mappings[i].MappingType, mappings[i].RedmineValue, mappings[i].JiraValue).
				Count(&count)
			if count > 0 {
				continue
			}
			if err := tx.Create(&mappings[i]).Error; err != nil {
				return fmt.Errorf("import mapping %q -> %q: %w",
					mappings[i].RedmineValue, mappings[i].JiraValue, err)
			}
			imported++
		}
		return nil
	})
	return imported, err
}

// GetMappingForRedmine finds the active mapping keyed by a Redmine-side value.
// Returns nil when no active mapping exists; translation then omits the field.
func (r *Repository) GetMappingForRedmine(mappingType entities.MappingType, redmineValue string) (*entities.FieldMapping, error) {
	return r.findActive(mappingType, "redmine_value = ?", redmineValue)
}

// GetMappingForJira finds the active mapping keyed by a Jira-side value.
func (r *Repository) GetMappingForJira(mappingType entities.MappingType, jiraValue string) (*entities.FieldMapping, error) {
	return r.findActive(mappingType, "jira_value = ?", jiraValue)
}

func (r *Repository) findActive(mappingType entities.MappingType, query string, value string) (*entities.FieldMapping, error) {
	var mapping entities.FieldMapping
	err := r.db.
		Where("is_active = ?", true).
		Where("mapping_type = ?", mappingType).
		Where(query, value).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}
