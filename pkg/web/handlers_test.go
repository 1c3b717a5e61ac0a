package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/persistence/file"
	"github.com/dukex/workflow-manager/pkg/services"
	"github.com/dukex/workflow-manager/pkg/testutil"
	"github.com/dukex/workflow-manager/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app   *fiber.App
	p     persistence.Persistence
	stats *services.ExecutionStats
}

func setupTestApp(t *testing.T) *testServer {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.DiscardHandler)

	workflows, err := services.NewWorkflows(p)
	require.NoError(t, err)

	stats := services.NewExecutionStats(p, logger, nil)

	handlers := web.NewAPIHandlers(
		workflows,
		services.NewInstances(p),
		services.NewPayloads(p),
		services.NewAcknowledgements(p, logger),
		stats,
	)

	app := fiber.New()
	handlers.Register(app)

	return &testServer{app: app, p: p, stats: stats}
}

func (s *testServer) do(t *testing.T, method, target string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		if raw, ok := body.(string); ok {
			reader = bytes.NewBufferString(raw)
		} else {
			encoded, err := json.Marshal(body)
			require.NoError(t, err)

			reader = bytes.NewBuffer(encoded)
		}
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, payload
}

func (s *testServer) seedInstance(t *testing.T, instance *models.WorkflowInstance) {
	t.Helper()

	require.NoError(t, s.p.WorkflowInstanceRepository().Create(t.Context(), instance))
}

func validWorkflow() *models.Workflow {
	return testutil.CreateTestWorkflow("MONAI",
		testutil.CreateTestTask("router", "router", testutil.WithDestinations("segmentation")),
		testutil.CreateTestTask("segmentation", "argo"),
	)
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	invalid := validWorkflow()
	invalid.Tasks[0].TaskDestinations[0].Name = "missing"

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedType   string
	}{
		{"successful creation", validWorkflow(), http.StatusCreated, ""},
		{"invalid task graph", invalid, http.StatusBadRequest, "validation_error"},
		{"invalid JSON", "invalid-json", http.StatusBadRequest, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := setupTestApp(t)

			status, body := server.do(t, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status)

			if tt.expectedStatus == http.StatusCreated {
				var revision models.WorkflowRevision
				require.NoError(t, json.Unmarshal(body, &revision))
				assert.NotEmpty(t, revision.WorkflowID)
				assert.Equal(t, 1, revision.Revision)

				return
			}

			var problem map[string]any
			require.NoError(t, json.Unmarshal(body, &problem))
			assert.Equal(t, tt.expectedType, problem["type"])
		})
	}
}

func TestAPIHandlers_WorkflowLifecycle(t *testing.T) {
	server := setupTestApp(t)

	status, body := server.do(t, http.MethodPost, "/workflows", validWorkflow())
	require.Equal(t, http.StatusCreated, status)

	var created models.WorkflowRevision
	require.NoError(t, json.Unmarshal(body, &created))

	changed := validWorkflow()
	changed.Description = "updated"

	status, body = server.do(t, http.MethodPut, "/workflows/"+created.WorkflowID, changed)
	require.Equal(t, http.StatusOK, status)

	var updated models.WorkflowRevision
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, 2, updated.Revision)

	status, body = server.do(t, http.MethodGet, "/workflows/"+created.WorkflowID, nil)
	require.Equal(t, http.StatusOK, status)

	var fetched models.WorkflowRevision
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, "updated", fetched.Workflow.Description)

	status, body = server.do(t, http.MethodGet, "/workflows?pageNumber=1&pageSize=5", nil)
	require.Equal(t, http.StatusOK, status)

	var page web.PagedResponse[models.WorkflowRevision]
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, int64(1), page.TotalRecords)
	assert.Equal(t, 5, page.PageSize)

	status, _ = server.do(t, http.MethodGet, "/workflows/aetitle/MONAI", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = server.do(t, http.MethodDelete, "/workflows/"+created.WorkflowID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = server.do(t, http.MethodGet, "/workflows/"+created.WorkflowID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "workflow_not_found")
}

func TestAPIHandlers_InvalidPaging(t *testing.T) {
	server := setupTestApp(t)

	status, _ := server.do(t, http.MethodGet, "/workflows?pageNumber=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.do(t, http.MethodGet, "/workflowinstances?status=Exploded", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_FailedAndAcknowledge(t *testing.T) {
	server := setupTestApp(t)

	server.seedInstance(t, &models.WorkflowInstance{
		ID:         "instance-1",
		WorkflowID: "wf-1",
		PayloadID:  "payload-1",
		StartTime:  time.Now().UTC(),
		Status:     models.WorkflowInstanceStatusFailed,
		Tasks: []models.TaskExecution{
			{ExecutionID: "exec-1", TaskID: "segmentation", Status: models.TaskExecutionStatusFailed},
		},
	})

	status, body := server.do(t, http.MethodGet, "/workflowinstances/failed", nil)
	require.Equal(t, http.StatusOK, status)

	var failed web.PagedResponse[models.WorkflowInstance]
	require.NoError(t, json.Unmarshal(body, &failed))
	assert.Equal(t, int64(1), failed.TotalRecords)

	status, body = server.do(t, http.MethodGet, "/workflowinstances/instance-1/executions/exec-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"task_id":"segmentation"`)

	status, body = server.do(t, http.MethodPut, "/workflowinstances/instance-1/executions/exec-1/acknowledge", nil)
	require.Equal(t, http.StatusOK, status)

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))
	assert.NotNil(t, instance.Tasks[0].AcknowledgedTaskErrors)
	assert.NotNil(t, instance.AcknowledgedWorkflowErrors)

	status, body = server.do(t, http.MethodGet, "/workflowinstances/failed", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &failed))
	assert.Zero(t, failed.TotalRecords)

	status, body = server.do(t, http.MethodPut, "/workflowinstances/missing/acknowledge", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "workflow_instance_not_found")

	status, body = server.do(t, http.MethodGet, "/workflowinstances/instance-1/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "task_not_found")
}

func TestAPIHandlers_Payloads(t *testing.T) {
	server := setupTestApp(t)

	require.NoError(t, server.p.PayloadRepository().Upsert(t.Context(), &models.Payload{
		PayloadID:     "payload-1",
		Bucket:        "bucket",
		CalledAeTitle: "MONAI",
		Timestamp:     time.Now().UTC(),
	}))

	server.seedInstance(t, &models.WorkflowInstance{
		ID:         "instance-1",
		WorkflowID: "wf-1",
		PayloadID:  "payload-1",
		StartTime:  time.Now().UTC(),
		Status:     models.WorkflowInstanceStatusCreated,
	})

	status, body := server.do(t, http.MethodGet, "/payloads", nil)
	require.Equal(t, http.StatusOK, status)

	var page web.PagedResponse[models.Payload]
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, int64(1), page.TotalRecords)

	status, body = server.do(t, http.MethodGet, "/payloads/payload-1/workflowinstances", nil)
	require.Equal(t, http.StatusOK, status)

	var instances []models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instances))
	require.Len(t, instances, 1)
	assert.Equal(t, "instance-1", instances[0].ID)

	status, _ = server.do(t, http.MethodGet, "/payloads/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_TaskStats(t *testing.T) {
	server := setupTestApp(t)

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	dispatch := &events.TaskDispatch{
		BaseEvent:          events.NewBaseEvent(events.TaskDispatchEvent, "corr-1"),
		WorkflowInstanceID: "instance-1",
		WorkflowID:         "wf-1",
		TaskID:             "segmentation",
		ExecutionID:        "exec-1",
	}
	dispatch.Timestamp = started
	server.stats.RecordDispatch(t.Context(), dispatch)

	update := &events.TaskUpdate{
		BaseEvent:          events.NewBaseEvent(events.TaskUpdateEvent, "corr-1"),
		WorkflowInstanceID: "instance-1",
		TaskID:             "segmentation",
		ExecutionID:        "exec-1",
		Status:             models.TaskExecutionStatusSucceeded,
		ExecutionStats:     map[string]string{services.StatsFinishedAt: started.Add(time.Minute).Format(time.RFC3339)},
	}
	update.Timestamp = started.Add(time.Minute)
	server.stats.RecordUpdate(t.Context(), update)

	window := "startTime=2024-03-01T00:00:00Z&endTime=2024-03-02T00:00:00Z"

	status, body := server.do(t, http.MethodGet, "/tasks/stats?"+window+"&workflowId=wf-1&taskId=segmentation", nil)
	require.Equal(t, http.StatusOK, status)

	var stats struct {
		TotalRecords           int64   `json:"total_records"`
		AverageDurationSeconds float64 `json:"average_duration_seconds"`
	}
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, int64(1), stats.TotalRecords)
	assert.InDelta(t, 60, stats.AverageDurationSeconds, 0.001)

	status, body = server.do(t, http.MethodGet, "/tasks/statsoverview?"+window, nil)
	require.Equal(t, http.StatusOK, status)

	var overview web.StatsOverviewResponse
	require.NoError(t, json.Unmarshal(body, &overview))
	assert.Equal(t, int64(1), overview.Total)

	status, _ = server.do(t, http.MethodGet, "/tasks/stats?"+window+"&workflowId=wf-1", nil)
	assert.Equal(t, http.StatusBadRequest, status, "workflowId requires taskId")

	status, _ = server.do(t, http.MethodGet, "/tasks/stats?startTime=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	server := setupTestApp(t)

	status, body := server.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
}
