package validation

import (
	"testing"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:               "lung-nodule",
		Version:            "1.0.0",
		InformaticsGateway: models.InformaticsGateway{AeTitle: "MONAI"},
		Tasks: []models.TaskObject{
			{
				ID:   "router",
				Type: "router",
				TaskDestinations: []models.TaskDestination{
					{Name: "segmentation", Conditions: []string{"{{ context.executions.router.result.modality }} == 'CT'"}},
				},
			},
			{
				ID:   "segmentation",
				Type: "argo",
				Artifacts: models.ArtifactMap{
					Output: []models.Artifact{{Name: "mask", Mandatory: true}},
				},
			},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	require.NoError(t, v.Validate(validWorkflow()))
}

func TestValidate_Problems(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*models.Workflow)
		problem string
	}{
		{"missing name", func(w *models.Workflow) { w.Name = "" }, "Name"},
		{"ae title too long", func(w *models.Workflow) { w.InformaticsGateway.AeTitle = "A_VERY_LONG_AE_TITLE" }, "ae_title"},
		{"no tasks", func(w *models.Workflow) { w.Tasks = nil }, "Tasks"},
		{"duplicate task id", func(w *models.Workflow) { w.Tasks[1].ID = "router" }, "not unique"},
		{"unknown destination", func(w *models.Workflow) { w.Tasks[0].TaskDestinations[0].Name = "missing" }, "unknown task"},
		{"self loop", func(w *models.Workflow) { w.Tasks[1].TaskDestinations = []models.TaskDestination{{Name: "segmentation"}} }, "routes to itself"},
		{"bad condition", func(w *models.Workflow) { w.Tasks[0].TaskDestinations[0].Conditions = []string{"=="} }, "invalid condition"},
		{"dotted task id", func(w *models.Workflow) { w.Tasks[1].ID = "seg.v2"; w.Tasks[0].TaskDestinations[0].Name = "seg.v2" }, "id"},
		{"duplicate output", func(w *models.Workflow) {
			w.Tasks[1].Artifacts.Output = append(w.Tasks[1].Artifacts.Output, models.Artifact{Name: "mask"})
		}, "twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := validWorkflow()
			tt.mutate(wf)

			err := v.Validate(wf)
			require.ErrorIs(t, err, ErrInvalidWorkflow)

			var validationErr *Error
			require.ErrorAs(t, err, &validationErr)
			assert.Contains(t, validationErr.Error(), tt.problem)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	require.ErrorIs(t, v.Validate(nil), ErrInvalidWorkflow)
}
