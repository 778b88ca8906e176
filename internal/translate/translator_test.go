package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
	"github.com/jobins-devs/redmine-jira-integration/internal/tracker"
)

type fakeLookup struct {
	byRedmine map[string]*entities.FieldMapping
	byJira    map[string]*entities.FieldMapping
}

func lookupKey(mappingType entities.MappingType, value string) string {
	return string(mappingType) + "/" + value
}

func (f *fakeLookup) GetMappingForRedmine(mappingType entities.MappingType, redmineValue string) (*entities.FieldMapping, error) {
	return f.byRedmine[lookupKey(mappingType, redmineValue)], nil
}

func (f *fakeLookup) GetMappingForJira(mappingType entities.MappingType, jiraValue string) (*entities.FieldMapping, error) {
	return f.byJira[lookupKey(mappingType, jiraValue)], nil
}

func TestBuildJiraFields(t *testing.T) {
	lookup := &fakeLookup{
		byRedmine: map[string]*entities.FieldMapping{
			lookupKey(entities.MappingTypeTracker, "Bug"): {
				MappingType: entities.MappingTypeTracker, RedmineValue: "Bug", JiraValue: "Bug",
			},
			lookupKey(entities.MappingTypePriority, "High"): {
				MappingType: entities.MappingTypePriority, RedmineValue: "High", JiraValue: "High",
			},
			lookupKey(entities.MappingTypeUser, "Jane Doe"): {
				MappingType: entities.MappingTypeUser, RedmineValue: "Jane Doe", JiraValue: "jane", JiraID: "acc-123",
			},
		},
	}
	translator := NewTranslator(lookup)

	issue := &tracker.Issue{
		Subject:      "Crash on save",
		Description:  "steps to reproduce",
		TrackerName:  "Bug",
		StatusName:   "In Progress",
		PriorityName: "High",
		AssigneeName: "Jane Doe",
	}

	fields, err := translator.BuildJiraFields(issue)
	require.NoError(t, err)

	assert.Equal(t, "Crash on save", fields["summary"])
	assert.Equal(t, "steps to reproduce", fields["description"])
	assert.Equal(t, map[string]any{"name": "Bug"}, fields["issuetype"])
	assert.Equal(t, map[string]any{"name": "High"}, fields["priority"])
	assert.Equal(t, map[string]any{"id": "acc-123"}, fields["assignee"])

	// status is never pushed towards Jira
	assert.NotContains(t, fields, "status")
}

func TestBuildJiraFieldsOmitsUnmapped(t *testing.T) {
	translator := NewTranslator(&fakeLookup{byRedmine: map[string]*entities.FieldMapping{}})

	issue := &tracker.Issue{
		Subject:      "No mappings configured",
		TrackerName:  "Feature",
		PriorityName: "Urgent",
		AssigneeName: "Nobody",
	}

	fields, err := translator.BuildJiraFields(issue)
	require.NoError(t, err)

	assert.NotContains(t, fields, "issuetype")
	assert.NotContains(t, fields, "priority")
	assert.NotContains(t, fields, "assignee")
	assert.Equal(t, "No mappings configured", fields["summary"])
}

func TestBuildJiraFieldsSkipsAssigneeWithoutJiraID(t *testing.T) {
	lookup := &fakeLookup{
		byRedmine: map[string]*entities.FieldMapping{
			lookupKey(entities.MappingTypeUser, "Jane Doe"): {
				MappingType: entities.MappingTypeUser, RedmineValue: "Jane Doe", JiraValue: "jane",
			},
		},
	}
	translator := NewTranslator(lookup)

	fields, err := translator.BuildJiraFields(&tracker.Issue{AssigneeName: "Jane Doe"})
	require.NoError(t, err)
	assert.NotContains(t, fields, "assignee")
}

func TestBuildRedmineFields(t *testing.T) {
	lookup := &fakeLookup{
		byJira: map[string]*entities.FieldMapping{
			lookupKey(entities.MappingTypeTracker, "Bug"): {
				MappingType: entities.MappingTypeTracker, JiraValue: "Bug", RedmineValue: "Bug", RedmineID: "1",
			},
			lookupKey(entities.MappingTypeStatus, "Done"): {
				MappingType: entities.MappingTypeStatus, JiraValue: "Done", RedmineValue: "Closed", RedmineID: "5",
			},
			lookupKey(entities.MappingTypePriority, "Highest"): {
				MappingType: entities.MappingTypePriority, JiraValue: "Highest", RedmineValue: "Immediate", RedmineID: "7",
			},
			lookupKey(entities.MappingTypeUser, "Jane Doe"): {
				MappingType: entities.MappingTypeUser, JiraValue: "Jane Doe", RedmineValue: "jdoe", RedmineID: "42",
			},
		},
	}
	translator := NewTranslator(lookup)

	issue := &tracker.Issue{
		Subject:      "PROJ-9 mirrored",
		Description:  "body",
		TrackerName:  "Bug",
		StatusName:   "Done",
		PriorityName: "Highest",
		AssigneeName: "Jane Doe",
	}

	fields, err := translator.BuildRedmineFields(issue)
	require.NoError(t, err)

	assert.Equal(t, "PROJ-9 mirrored", fields["subject"])
	assert.Equal(t, "1", fields["tracker_id"])
	assert.Equal(t, "5", fields["status_id"])
	assert.Equal(t, "7", fields["priority_id"])
	assert.Equal(t, "42", fields["assigned_to_id"])
}

func TestBuildRedmineFieldsRequiresRedmineID(t *testing.T) {
	// mappings exist but carry no redmine_id, so Redmine's numeric-id
	// fields cannot be built
	lookup := &fakeLookup{
		byJira: map[string]*entities.FieldMapping{
			lookupKey(entities.MappingTypeTracker, "Bug"): {
				MappingType: entities.MappingTypeTracker, JiraValue: "Bug", RedmineValue: "Bug",
			},
			lookupKey(entities.MappingTypeStatus, "Done"): {
				MappingType: entities.MappingTypeStatus, JiraValue: "Done", RedmineValue: "Closed",
			},
		},
	}
	translator := NewTranslator(lookup)

	fields, err := translator.BuildRedmineFields(&tracker.Issue{
		Subject:     "unmappable",
		TrackerName: "Bug",
		StatusName:  "Done",
	})
	require.NoError(t, err)

	assert.NotContains(t, fields, "tracker_id")
	assert.NotContains(t, fields, "status_id")
	assert.Equal(t, "unmappable", fields["subject"])
}

func TestBuildFieldsDispatch(t *testing.T) {
	translator := NewTranslator(&fakeLookup{})

	jiraFields, err := translator.BuildFields(entities.SystemJira, &tracker.Issue{Subject: "x"})
	require.NoError(t, err)
	assert.Contains(t, jiraFields, "summary")

	redmineFields, err := translator.BuildFields(entities.SystemRedmine, &tracker.Issue{Subject: "x"})
	require.NoError(t, err)
	assert.Contains(t, redmineFields, "subject")
}
