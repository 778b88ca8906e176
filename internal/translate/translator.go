// Package translate maps issue field values between the two trackers'
// vocabularies using the admin-managed field mapping table.
//
// Translation is deliberately lossy: a value without an active mapping is
// omitted from the outgoing payload, never an error. Only active rows are
// consulted; the lookup itself lives in the fieldmappings repository.
package translate

import (
	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
	"github.com/jobins-devs/redmine-jira-integration/internal/tracker"
)

// MappingLookup is the slice of the field mapping repository the translator
// needs. Implemented by fieldmappings.Repository.
type MappingLookup interface {
	GetMappingForRedmine(mappingType entities.MappingType, redmineValue string) (*entities.FieldMapping, error)
	GetMappingForJira(mappingType entities.MappingType, jiraValue string) (*entities.FieldMapping, error)
}

type Translator struct {
	lookup MappingLookup
}

func NewTranslator(lookup MappingLookup) *Translator {
	return &Translator{lookup: lookup}
}

// Translate resolves a single mapping row for a source-system value. Returns
// nil when no active mapping exists. Custom fields use the same contract with
// MappingTypeCustomField and the field identifier as the value.
func (t *Translator) Translate(mappingType entities.MappingType, sourceSystem entities.SystemType, value string) (*entities.FieldMapping, error) {
	if sourceSystem == entities.SystemRedmine {
		return t.lookup.GetMappingForRedmine(mappingType, value)
	}
	return t.lookup.GetMappingForJira(mappingType, value)
}

// BuildJiraFields translates a Redmine issue into a Jira field payload.
// Status is not pushed towards Jira: status transitions there require the
// transitions endpoint, which the engine does not drive.
func (t *Translator) BuildJiraFields(issue *tracker.Issue) (tracker.Fields, error) {
	fields := tracker.Fields{
		"summary":     issue.Subject,
		"description": issue.Description,
	}

	if issue.TrackerName != "" {
		mapping, err := t.lookup.GetMappingForRedmine(entities.MappingTypeTracker, issue.TrackerName)
		if err != nil {
			return nil, err
		}
		if mapping != nil {
			fields["issuetype"] = map[string]any{"name": mapping.JiraValue}
		}
	}

	if issue.PriorityName != "" {
		mapping, err := t.lookup.GetMappingForRedmine(entities.MappingTypePriority, issue.PriorityName)
		if err != nil {
			return nil, err
		}
		if mapping != nil {
			fields["priority"] = map[string]any{"name": mapping.JiraValue}
		}
	}

	if issue.AssigneeName != "" {
		mapping, err := t.lookup.GetMappingForRedmine(entities.MappingTypeUser, issue.AssigneeName)
		if err != nil {
			return nil, err
		}
		if mapping != nil && mapping.JiraID != "" {
			fields["assignee"] = map[string]any{"id": mapping.JiraID}
		}
	}

	return fields, nil
}

// BuildRedmineFields translates a Jira issue into a Redmine field payload.
// Redmine's API takes numeric ids, so mappings without a redmine_id are
// skipped like unmapped values.
func (t *Translator) BuildRedmineFields(issue *tracker.Issue) (tracker.Fields, error) {
	fields := tracker.Fields{
		"subject":     issue.Subject,
		"description": issue.Description,
	}

	if issue.TrackerName != "" {
		mapping, err := t.lookup.GetMappingForJira(entities.MappingTypeTracker, issue.TrackerName)
		if err != nil {
			return nil, err
		}
		if mapping != nil && mapping.RedmineID != "" {
			fields["tracker_id"] = mapping.RedmineID
		}
	}

	if issue.PriorityName != "" {
		mapping, err := t.lookup.GetMappingForJira(entities.MappingTypePriority, issue.PriorityName)
		if err != nil {
			return nil, err
		}
		if mapping != nil && mapping.RedmineID != "" {
			fields["priority_id"] = mapping.RedmineID
		}
	}

	if issue.AssigneeName != "" {
		mapping, err := t.lookup.GetMappingForJira(entities.MappingTypeUser, issue.AssigneeName)
		if err != nil {
			return nil, err
		}
		if mapping != nil && mapping.RedmineID != "" {
			fields["assigned_to_id"] = mapping.RedmineID
		}
	}

	if issue.StatusName != "" {
		mapping, err := t.lookup.GetMappingForJira(entities.MappingTypeStatus, issue.StatusName)
		if err != nil {
			return nil, err
		}
		if mapping != nil && mapping.RedmineID != "" {
			fields["status_id"] = mapping.RedmineID
		}
	}

	return fields, nil
}

// BuildFields dispatches on the target system.
func (t *Translator) BuildFields(target entities.SystemType, issue *tracker.Issue) (tracker.Fields, error) {
	if target == entities.SystemJira {
		return t.BuildJiraFields(issue)
	}
	return t.BuildRedmineFields(issue)
}
