// Package models defines the workflow definitions, instances and reporting records
// handled by the workflow manager.
package models

import "time"

// WorkflowRevision is one immutable version of a workflow definition.
// WorkflowID is stable across revisions, Revision increases monotonically and
// at most one revision per WorkflowID has Deleted == nil.
type WorkflowRevision struct {
	ID         string     `json:"id"          bson:"_id"`
	WorkflowID string     `json:"workflow_id" bson:"workflow_id"`
	Revision   int        `json:"revision"    bson:"revision"`
	Workflow   *Workflow  `json:"workflow"    bson:"workflow"`
	CreatedAt  time.Time  `json:"created_at"  bson:"created_at"`
	Deleted    *time.Time `json:"deleted,omitempty" bson:"deleted,omitempty"`
}

// IsDeleted reports whether the revision was soft-deleted.
func (r *WorkflowRevision) IsDeleted() bool {
	return r.Deleted != nil
}

// Workflow is the task graph and routing metadata of a revision.
type Workflow struct {
	Name               string             `json:"name"                bson:"name"                validate:"required,min=1,max=64"`
	Version            string             `json:"version"             bson:"version"             validate:"required"`
	Description        string             `json:"description"         bson:"description"         validate:"max=200"`
	InformaticsGateway InformaticsGateway `json:"informatics_gateway" bson:"informatics_gateway"`
	Tasks              []TaskObject       `json:"tasks"               bson:"tasks"               validate:"required,min=1,dive"`
}

// InformaticsGateway holds the AE-title routing used to match incoming requests.
type InformaticsGateway struct {
	AeTitle            string   `json:"ae_title"                      bson:"ae_title"                      validate:"required,max=15"`
	DataOrigins        []string `json:"data_origins,omitempty"        bson:"data_origins,omitempty"`
	ExportDestinations []string `json:"export_destinations,omitempty" bson:"export_destinations,omitempty"`
}

// AcceptsCaller reports whether a request from callingAeTitle may start this workflow.
// An empty DataOrigins list accepts every caller.
func (g InformaticsGateway) AcceptsCaller(callingAeTitle string) bool {
	if len(g.DataOrigins) == 0 {
		return true
	}

	for _, origin := range g.DataOrigins {
		if origin == callingAeTitle {
			return true
		}
	}

	return false
}

// TaskObject is the definition of one task in the workflow graph.
type TaskObject struct {
	ID               string            `json:"id"                          bson:"id"                          validate:"required,max=50"`
	Description      string            `json:"description,omitempty"       bson:"description,omitempty"`
	Type             string            `json:"type"                        bson:"type"                        validate:"required"`
	Args             map[string]string `json:"args,omitempty"              bson:"args,omitempty"`
	TimeoutMinutes   int               `json:"timeout_minutes,omitempty"   bson:"timeout_minutes,omitempty"   validate:"min=0"`
	TaskDestinations []TaskDestination `json:"task_destinations,omitempty" bson:"task_destinations,omitempty" validate:"dive"`
	Artifacts        ArtifactMap       `json:"artifacts"                   bson:"artifacts"`
}

// MandatoryOutputs returns the names of the output artifacts the task must produce.
func (t TaskObject) MandatoryOutputs() []string {
	names := make([]string, 0, len(t.Artifacts.Output))

	for _, artifact := range t.Artifacts.Output {
		if artifact.Mandatory {
			names = append(names, artifact.Name)
		}
	}

	return names
}

// TaskDestination gates a downstream task behind a list of conditions; all of
// them must evaluate to true.
type TaskDestination struct {
	Name       string   `json:"name"                 bson:"name"                 validate:"required"`
	Conditions []string `json:"conditions,omitempty" bson:"conditions,omitempty"`
}

// ArtifactMap lists the artifacts a task consumes and produces.
type ArtifactMap struct {
	Input  []Artifact `json:"input,omitempty"  bson:"input,omitempty"`
	Output []Artifact `json:"output,omitempty" bson:"output,omitempty"`
}

// Artifact is a named storage location. Value may reference prior task outputs.
type Artifact struct {
	Name      string `json:"name"            bson:"name"            validate:"required"`
	Value     string `json:"value,omitempty" bson:"value,omitempty"`
	Mandatory bool   `json:"mandatory"       bson:"mandatory"`
}

// FindTask returns the task definition with the given id.
func (w *Workflow) FindTask(taskID string) (TaskObject, bool) {
	for _, task := range w.Tasks {
		if task.ID == taskID {
			return task, true
		}
	}

	return TaskObject{}, false
}
