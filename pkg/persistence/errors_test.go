package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("instance error unwraps to sentinel", func(t *testing.T) {
		err := persistence.NewInstanceError("GetByID", "wi-1", persistence.ErrWorkflowInstanceNotFound)

		assert.True(t, persistence.IsWorkflowInstanceNotFound(err))
		assert.True(t, persistence.IsNotFound(err))
		assert.False(t, persistence.IsConcurrentUpdate(err))
		assert.Contains(t, err.Error(), "GetByID")
		assert.Contains(t, err.Error(), "wi-1")
	})

	t.Run("task error names the execution", func(t *testing.T) {
		err := persistence.NewTaskError("UpdateTaskStatus", "wi-1", "exec-1", persistence.ErrConcurrentUpdate)

		assert.True(t, persistence.IsConcurrentUpdate(err))
		assert.True(t, errors.Is(err, persistence.ErrConcurrentUpdate))
		assert.Contains(t, err.Error(), "exec-1")
		assert.Contains(t, err.Error(), "wi-1")
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("GetByWorkflowID", "wf-1", persistence.ErrWorkflowNotFound)

		assert.True(t, persistence.IsNotFound(err))
		assert.Contains(t, err.Error(), "GetByWorkflowID")
		assert.Contains(t, err.Error(), "workflow not found")
	})

	t.Run("already exists is not a not found", func(t *testing.T) {
		err := persistence.NewInstanceError("AddTask", "wi-1", persistence.ErrTaskAlreadyExists)

		assert.False(t, persistence.IsNotFound(err))
		assert.ErrorIs(t, err, persistence.ErrTaskAlreadyExists)
	})
}
