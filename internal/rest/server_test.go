package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/internal/config"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/bpmn/workflow"
	"github.com/pbinitiative/zentask/pkg/processor"
	"github.com/pbinitiative/zentask/pkg/script/feel"
	"github.com/pbinitiative/zentask/pkg/script/js"
	"github.com/pbinitiative/zentask/pkg/storage/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	server   *Server
	store    *inmemory.Storage
	instance runtime.ProcessInstance
	userId   int64
}

func newTestServer(t *testing.T) *testServer {
	store := inmemory.NewStorage()
	jsRuntime, err := js.NewJsRuntime(t.Context(), 2, 1)
	require.NoError(t, err)
	factory := workflow.NewFactory(
		workflow.WithJsRuntime(jsRuntime),
		workflow.WithFeelRuntime(feel.NewFeelRuntime()),
		workflow.WithPredictions(true),
	)
	conf := config.Default()
	conf.Processor.LockTimeout = 100 * time.Millisecond
	conf.Processor.LockRetryInterval = 10 * time.Millisecond
	conf.Processor.PersistPredictedTasks = true
	proc := processor.New(store, processor.EngineFactoryFuncs[*workflow.Workflow]{New: factory.New, Restore: factory.Restore},
		conf.Processor, conf.Cache, nil, hclog.NewNullLogger())

	user := runtime.User{Id: store.GenerateId(), Username: "alice", CreatedAt: time.Now()}
	require.NoError(t, store.SaveUser(t.Context(), user))

	f, err := os.Open(filepath.Join("testdata", "approval.yaml"))
	require.NoError(t, err)
	defer f.Close()
	spec, err := runtime.LoadWorkflowSpec(f)
	require.NoError(t, err)
	res, err := proc.StartProcess(t.Context(), spec, "approval", user.Id, map[string]any{"amount": 21})
	require.NoError(t, err)

	return &testServer{
		server:   NewServer(proc, store, conf),
		store:    store,
		instance: res.Instance,
		userId:   user.Id,
	}
}

func (ts *testServer) do(t *testing.T, method string, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.server.Handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) path(format string, args ...any) string {
	return fmt.Sprintf("/v1/process-instances/%d", ts.instance.Id) + fmt.Sprintf(format, args...)
}

func (ts *testServer) listTasks(t *testing.T, query string) []TaskResponse {
	rec := ts.do(t, http.MethodGet, ts.path("/tasks%s", query), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tasks []TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	return tasks
}

func taskBySpec(tasks []TaskResponse, name string) (TaskResponse, bool) {
	for _, task := range tasks {
		if task.TaskSpec == name {
			return task, true
		}
	}
	return TaskResponse{}, false
}

func TestGetProcessInstance(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, ts.path("/"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ProcessInstanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ts.instance.Id, resp.Id)
	assert.Equal(t, string(runtime.ProcessInstanceStatusUserInputRequired), resp.Status)

	rec = ts.do(t, http.MethodGet, "/v1/process-instances/12345/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/process-instances/abc/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTasks(t *testing.T) {
	ts := newTestServer(t)

	tasks := ts.listTasks(t, "")
	_, ok := taskBySpec(tasks, "end")
	assert.False(t, ok, "predicted tasks are hidden by default")
	approve, ok := taskBySpec(tasks, "approve")
	require.True(t, ok)
	assert.Equal(t, "READY", approve.State)

	tasks = ts.listTasks(t, "?predicted=true")
	end, ok := taskBySpec(tasks, "end")
	require.True(t, ok)
	assert.Equal(t, "LIKELY", end.State)

	tasks = ts.listTasks(t, "?predicted=true&mostRecent=true")
	assert.Len(t, tasks, 4)

	rec := ts.do(t, http.MethodGet, ts.path("/tasks?predicted=maybe"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/process-instances/12345/tasks", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteTask(t *testing.T) {
	ts := newTestServer(t)
	approve, ok := taskBySpec(ts.listTasks(t, ""), "approve")
	require.True(t, ok)

	rec := ts.do(t, http.MethodPost, ts.path("/tasks/%s/complete", approve.Guid), CompleteTaskRequest{UserId: ts.userId + 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, ts.path("/tasks/%s/complete", approve.Guid), CompleteTaskRequest{
		UserId: ts.userId,
		Data:   map[string]any{"approved": true},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp OperationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(runtime.ProcessInstanceStatusComplete), resp.Instance.Status)

	rec = ts.do(t, http.MethodGet, ts.path("/events"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var evts []EventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evts))
	var types []string
	for _, ev := range evts {
		types = append(types, ev.EventType)
	}
	assert.Contains(t, types, string(runtime.EventTypeProcessInstanceCompleted))
}

func TestResetProcess(t *testing.T) {
	ts := newTestServer(t)
	review, ok := taskBySpec(ts.listTasks(t, ""), "review")
	require.True(t, ok)

	rec := ts.do(t, http.MethodPost, ts.path("/reset"), ResetRequest{TaskGuid: "e2d1c1a6-0000-4000-8000-000000000000"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, ts.path("/reset"), ResetRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, ts.path("/reset"), ResetRequest{TaskGuid: review.Guid})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp OperationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(runtime.ProcessInstanceStatusSuspended), resp.Instance.Status)

	rec = ts.do(t, http.MethodPost, ts.path("/resume"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(runtime.ProcessInstanceStatusUserInputRequired), resp.Instance.Status)

	rec = ts.do(t, http.MethodPost, ts.path("/resume"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSuspendAndTerminate(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, ts.path("/suspend"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, ts.path("/run"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, ts.path("/terminate"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp OperationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(runtime.ProcessInstanceStatusTerminated), resp.Instance.Status)

	rec = ts.do(t, http.MethodPost, ts.path("/terminate"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLockedInstance(t *testing.T) {
	ts := newTestServer(t)
	now := time.Now()
	locked, err := ts.store.TryLockProcessInstance(t.Context(), ts.instance.Id, "other-worker", now, now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, locked)

	rec := ts.do(t, http.MethodPost, ts.path("/run"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSystemEndpoints(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)

	rec = ts.do(t, http.MethodGet, "/system/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
