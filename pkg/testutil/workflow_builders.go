// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"testing"
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// CreateTestTask creates a task definition of the given type.
func CreateTestTask(id, taskType string, overrides ...func(*models.TaskObject)) models.TaskObject {
	task := models.TaskObject{
		ID:   id,
		Type: taskType,
		Args: map[string]string{},
	}

	for _, override := range overrides {
		override(&task)
	}

	return task
}

// WithDestinations routes the task to the named tasks without conditions.
func WithDestinations(names ...string) func(*models.TaskObject) {
	return func(t *models.TaskObject) {
		for _, name := range names {
			t.TaskDestinations = append(t.TaskDestinations, models.TaskDestination{Name: name})
		}
	}
}

// WithConditionalDestination routes the task to name when every condition holds.
func WithConditionalDestination(name string, conditions ...string) func(*models.TaskObject) {
	return func(t *models.TaskObject) {
		t.TaskDestinations = append(t.TaskDestinations, models.TaskDestination{Name: name, Conditions: conditions})
	}
}

// WithMandatoryOutputs declares output artifacts the task must report.
func WithMandatoryOutputs(names ...string) func(*models.TaskObject) {
	return func(t *models.TaskObject) {
		for _, name := range names {
			t.Artifacts.Output = append(t.Artifacts.Output, models.Artifact{Name: name, Mandatory: true})
		}
	}
}

// WithInput declares an input artifact.
func WithInput(name, value string) func(*models.TaskObject) {
	return func(t *models.TaskObject) {
		t.Artifacts.Input = append(t.Artifacts.Input, models.Artifact{Name: name, Value: value})
	}
}

// CreateTestWorkflow creates a workflow routed to aeTitle.
func CreateTestWorkflow(aeTitle string, tasks ...models.TaskObject) *models.Workflow {
	return &models.Workflow{
		Name:               "workflow-" + aeTitle,
		Version:            "1.0.0",
		Description:        "test workflow",
		InformaticsGateway: models.InformaticsGateway{AeTitle: aeTitle},
		Tasks:              tasks,
	}
}

// CreateTestRevision wraps wf into the first revision of a new workflow id.
func CreateTestRevision(wf *models.Workflow, overrides ...func(*models.WorkflowRevision)) *models.WorkflowRevision {
	revision := &models.WorkflowRevision{
		ID:         uuid.New().String(),
		WorkflowID: uuid.New().String(),
		Revision:   1,
		Workflow:   wf,
		CreatedAt:  time.Now().UTC(),
	}

	for _, override := range overrides {
		override(revision)
	}

	return revision
}

// SeedRevision stores revision and returns it.
func SeedRevision(t *testing.T, p persistence.Persistence, revision *models.WorkflowRevision) *models.WorkflowRevision {
	t.Helper()

	require.NoError(t, p.WorkflowRepository().Create(t.Context(), revision))

	return revision
}
