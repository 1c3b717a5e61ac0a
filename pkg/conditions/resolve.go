package conditions

import (
	"strings"
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
)

// Resolve returns the value addressed by a placeholder path, or nil when the
// path does not resolve. Supported paths:
//
//	context.workflow.{name,id,instance_id,payload_id,ae_title,revision}
//	context.input.<key>
//	context.executions.<task_id>.{status,reason,execution_id,task_type,output_dir,start_time,end_time}
//	context.executions.<task_id>.result.<key>
//	context.executions.<task_id>.artifacts.<name>
func Resolve(path string, instance *models.WorkflowInstance) any {
	if instance == nil {
		return nil
	}

	parts := strings.Split(strings.TrimSpace(path), ".")
	if len(parts) < 3 || !strings.EqualFold(parts[0], "context") {
		return nil
	}

	switch strings.ToLower(parts[1]) {
	case "workflow":
		return resolveWorkflow(strings.ToLower(parts[2]), instance)
	case "input":
		value, ok := instance.InputMetadata[strings.Join(parts[2:], ".")]
		if !ok {
			return nil
		}

		return value
	case "executions":
		if len(parts) < 4 {
			return nil
		}

		index := instance.TaskIndex(parts[2], "")
		if index < 0 {
			return nil
		}

		return resolveExecution(&instance.Tasks[index], parts[3:])
	default:
		return nil
	}
}

func resolveWorkflow(field string, instance *models.WorkflowInstance) any {
	switch field {
	case "name":
		return instance.WorkflowName
	case "id":
		return instance.WorkflowID
	case "instance_id":
		return instance.ID
	case "payload_id":
		return instance.PayloadID
	case "ae_title":
		return instance.AeTitle
	case "revision":
		return float64(instance.Revision)
	default:
		return nil
	}
}

func resolveExecution(task *models.TaskExecution, parts []string) any {
	switch strings.ToLower(parts[0]) {
	case "status":
		return string(task.Status)
	case "reason":
		return string(task.Reason)
	case "execution_id":
		return task.ExecutionID
	case "task_type":
		return task.TaskType
	case "output_dir":
		return task.OutputDirectory
	case "start_time":
		return task.TaskStartTime.UTC().Format(time.RFC3339)
	case "end_time":
		if task.TaskEndTime == nil {
			return nil
		}

		return task.TaskEndTime.UTC().Format(time.RFC3339)
	case "result":
		if len(parts) < 2 {
			return nil
		}

		value, ok := task.ResultMetadata[strings.Join(parts[1:], ".")]
		if !ok {
			return nil
		}

		return normalize(value)
	case "artifacts":
		if len(parts) < 2 {
			return nil
		}

		value, ok := task.OutputArtifacts[strings.Join(parts[1:], ".")]
		if !ok {
			return nil
		}

		return value
	default:
		return nil
	}
}

// normalize converts numeric values to float64, the only numeric type govaluate compares.
func normalize(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	default:
		return value
	}
}
