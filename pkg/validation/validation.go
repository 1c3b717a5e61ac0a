// Package validation checks workflow definitions before they are stored.
package validation

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/workflow-manager/pkg/conditions"
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidWorkflow = errors.New("invalid workflow definition")

//go:embed workflow.schema.json
var workflowSchema string

// Error lists every problem found in one definition.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidWorkflow, strings.Join(e.Problems, "; "))
}

func (e *Error) Unwrap() error {
	return ErrInvalidWorkflow
}

type Validator struct {
	schema   *gojsonschema.Schema
	validate *validator.Validate
}

func New() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(workflowSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow schema: %w", err)
	}

	return &Validator{
		schema:   schema,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Validate checks the shape of wf against the JSON schema, its field rules and
// the consistency of its task graph.
func (v *Validator) Validate(wf *models.Workflow) error {
	if wf == nil {
		return &Error{Problems: []string{"workflow is required"}}
	}

	var problems []string

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(wf))
	if err != nil {
		return fmt.Errorf("failed to run workflow schema: %w", err)
	}

	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	if err := v.validate.Struct(wf); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fieldError := range fieldErrors {
				problems = append(problems, fmt.Sprintf("%s failed on %s", fieldError.Namespace(), fieldError.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	problems = append(problems, graphProblems(wf)...)

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}

	return nil
}

// graphProblems reports duplicate task ids, dangling or self referencing
// destinations and conditions that do not parse.
func graphProblems(wf *models.Workflow) []string {
	var problems []string

	ids := make(map[string]bool, len(wf.Tasks))
	for _, task := range wf.Tasks {
		if ids[task.ID] {
			problems = append(problems, fmt.Sprintf("task id %q is not unique", task.ID))
		}

		ids[task.ID] = true
	}

	for _, task := range wf.Tasks {
		for _, destination := range task.TaskDestinations {
			switch {
			case destination.Name == task.ID:
				problems = append(problems, fmt.Sprintf("task %q routes to itself", task.ID))
			case !ids[destination.Name]:
				problems = append(problems, fmt.Sprintf("task %q routes to unknown task %q", task.ID, destination.Name))
			}

			for _, condition := range destination.Conditions {
				if err := conditions.Validate(condition); err != nil {
					problems = append(problems, fmt.Sprintf("task %q destination %q: %v", task.ID, destination.Name, err))
				}
			}
		}

		outputs := make(map[string]bool, len(task.Artifacts.Output))
		for _, artifact := range task.Artifacts.Output {
			if outputs[artifact.Name] {
				problems = append(problems, fmt.Sprintf("task %q declares output %q twice", task.ID, artifact.Name))
			}

			outputs[artifact.Name] = true
		}
	}

	return problems
}
