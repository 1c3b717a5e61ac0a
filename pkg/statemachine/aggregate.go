package statemachine

import "github.com/dukex/workflow-manager/pkg/models"

// DeriveInstanceStatus computes the workflow instance status from its tasks:
// Failed when any task failed or partially failed, Succeeded when every task
// succeeded, Canceled when every task is terminal and at least one was
// canceled, Created otherwise.
func DeriveInstanceStatus(tasks []models.TaskExecution) models.WorkflowInstanceStatus {
	if len(tasks) == 0 {
		return models.WorkflowInstanceStatusCreated
	}

	allSucceeded := true
	allTerminal := true
	anyCanceled := false

	for i := range tasks {
		status := tasks[i].Status

		if status.IsFailure() {
			return models.WorkflowInstanceStatusFailed
		}

		if status != models.TaskExecutionStatusSucceeded {
			allSucceeded = false
		}

		if !status.IsTerminal() {
			allTerminal = false
		}

		if status == models.TaskExecutionStatusCanceled {
			anyCanceled = true
		}
	}

	switch {
	case allSucceeded:
		return models.WorkflowInstanceStatusSucceeded
	case allTerminal && anyCanceled:
		return models.WorkflowInstanceStatusCanceled
	default:
		return models.WorkflowInstanceStatusCreated
	}
}

// MissingMandatoryOutputs returns the mandatory outputs of def absent from outputs.
func MissingMandatoryOutputs(def models.TaskObject, outputs map[string]string) []string {
	var missing []string

	for _, name := range def.MandatoryOutputs() {
		if path, ok := outputs[name]; !ok || path == "" {
			missing = append(missing, name)
		}
	}

	return missing
}
