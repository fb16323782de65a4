package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/internal/config"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/definition"
	"github.com/pbinitiative/zentask/pkg/events"
	"github.com/pbinitiative/zentask/pkg/humantask"
	"github.com/pbinitiative/zentask/pkg/jsondata"
	"github.com/pbinitiative/zentask/pkg/ptr"
	"github.com/pbinitiative/zentask/pkg/storage"
	"github.com/pbinitiative/zentask/pkg/storage/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type env struct {
	store      *inmemory.Storage
	reconciler *Reconciler
	instance   runtime.ProcessInstance
	initiator  runtime.User
}

func defaultProcessorConfig() config.Processor {
	return config.Processor{
		MaxTaskDataSize:       1 << 20,
		PersistPredictedTasks: true,
		AutoCreateLaneGroups:  true,
	}
}

func newEnv(t *testing.T, cfg config.Processor) *env {
	ctx := context.Background()
	store := inmemory.NewStorage()
	logger := hclog.NewNullLogger()
	r := NewReconciler(
		store,
		definition.NewCache(store, 10, time.Minute, logger),
		jsondata.NewStore(store, 10, time.Minute),
		humantask.NewResolver(store, cfg.AutoCreateLaneGroups, logger),
		events.NewRecorder(store),
		nil,
		cfg,
		logger,
	)
	alice := runtime.User{Id: store.GenerateId(), Username: "alice"}
	require.NoError(t, store.SaveUser(ctx, alice))
	instance := runtime.ProcessInstance{
		Id:                     store.GenerateId(),
		ProcessModelIdentifier: "approval",
		ProcessInitiatorId:     alice.Id,
		Status:                 runtime.ProcessInstanceStatusNotStarted,
	}
	require.NoError(t, store.SaveProcessInstance(ctx, instance))
	return &env{store: store, reconciler: r, instance: instance, initiator: alice}
}

func (e *env) reconcile(t *testing.T, snapshot runtime.WorkflowSnapshot, opts Options) Result {
	res, err := e.reconciler.Reconcile(context.Background(), e.instance, snapshot, opts)
	require.NoError(t, err)
	e.instance = res.Instance
	return res
}

func approvalSpec(lane string) *runtime.WorkflowSpec {
	return &runtime.WorkflowSpec{
		Spec: runtime.ProcessSpec{
			Name:  "approval",
			Start: "start",
			Tasks: []runtime.TaskSpec{
				{Name: "start", Kind: runtime.TaskKindStartEvent, Outputs: []string{"approve"}},
				{Name: "approve", Kind: runtime.TaskKindManualTask, Lane: lane, Outputs: []string{"end"}},
				{Name: "end", Kind: runtime.TaskKindEndEvent},
			},
		},
		SerializerVersion: runtime.SerializerVersion,
	}
}

type approvalTree struct {
	snapshot runtime.WorkflowSnapshot
	start    *runtime.TaskSnapshot
	approve  *runtime.TaskSnapshot
	end      *runtime.TaskSnapshot
}

// newApprovalTree builds start(COMPLETED) -> approve(READY) -> end(LIKELY).
func newApprovalTree(lane string) *approvalTree {
	wfId := uuid.New()
	start := runtime.TaskSnapshot{Id: uuid.New(), ProcessId: wfId, TaskSpec: "start", State: runtime.TaskStateCompleted, LastStateChange: t0, Data: map[string]any{}}
	approve := runtime.TaskSnapshot{Id: uuid.New(), ProcessId: wfId, TaskSpec: "approve", State: runtime.TaskStateReady, LastStateChange: t0.Add(time.Second), Data: map[string]any{"amount": 10}}
	end := runtime.TaskSnapshot{Id: uuid.New(), ProcessId: wfId, TaskSpec: "end", State: runtime.TaskStateLikely, LastStateChange: t0.Add(time.Second), Data: map[string]any{}}
	start.ChildIds = []uuid.UUID{approve.Id}
	approve.ParentId = &start.Id
	approve.ChildIds = []uuid.UUID{end.Id}
	end.ParentId = &approve.Id

	tree := &approvalTree{snapshot: runtime.WorkflowSnapshot{
		Id:        wfId,
		Spec:      approvalSpec(lane),
		Processes: []runtime.ProcessSnapshot{{Id: wfId, SpecName: "approval", Data: map[string]any{}}},
		Tasks:     []runtime.TaskSnapshot{start, approve, end},
	}}
	tree.refresh()
	return tree
}

func (a *approvalTree) refresh() {
	a.start = &a.snapshot.Tasks[0]
	a.approve = &a.snapshot.Tasks[1]
	a.end = &a.snapshot.Tasks[2]
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultProcessorConfig())
	tree := newApprovalTree("")

	first := e.reconcile(t, tree.snapshot, Options{})
	assert.Len(t, first.Upserted, 3)
	assert.Equal(t, 1, first.HumanTasksCreated)
	assert.Equal(t, runtime.ProcessInstanceStatusUserInputRequired, first.Instance.Status)
	require.NotNil(t, first.Instance.BpmnProcessId)
	require.NotNil(t, first.Instance.BpmnProcessDefinitionId)

	before, err := e.store.FindTasksByProcessInstanceId(ctx, e.instance.Id, runtime.TaskStateAnyMask)
	require.NoError(t, err)
	humanTasksBefore, err := e.store.FindHumanTasksByProcessInstanceId(ctx, e.instance.Id)
	require.NoError(t, err)
	instanceBefore, err := e.store.FindProcessInstanceById(ctx, e.instance.Id)
	require.NoError(t, err)

	second := e.reconcile(t, tree.snapshot, Options{})
	assert.Empty(t, second.Upserted)
	assert.Empty(t, second.Deleted)
	assert.Equal(t, 0, second.HumanTasksCreated)

	after, err := e.store.FindTasksByProcessInstanceId(ctx, e.instance.Id, runtime.TaskStateAnyMask)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	humanTasks, err := e.store.FindHumanTasksByProcessInstanceId(ctx, e.instance.Id)
	require.NoError(t, err)
	assert.Len(t, humanTasks, 1)
	assert.Equal(t, humanTasksBefore, humanTasks)

	instanceAfter, err := e.store.FindProcessInstanceById(ctx, e.instance.Id)
	require.NoError(t, err)
	assert.Equal(t, instanceBefore, instanceAfter)
	assert.Equal(t, instanceBefore.UpdatedAt, second.Instance.UpdatedAt)

	processes, err := e.store.FindBpmnProcessesByProcessInstanceId(ctx, e.instance.Id)
	require.NoError(t, err)
	require.Len(t, processes, 1)
	assert.Equal(t, tree.snapshot.Id.String(), processes[0].Guid)
	assert.True(t, processes[0].IsTopLevel())
	assert.Equal(t, processes[0].Id, processes[0].TopLevelProcessId)
}

func TestTaskRecordsCarryStructure(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultProcessorConfig())
	tree := newApprovalTree("")
	e.reconcile(t, tree.snapshot, Options{BatchStart: t0.Add(-time.Minute)})

	approve, err := e.store.FindTaskByGuid(ctx, tree.approve.Id.String())
	require.NoError(t, err)
	props, err := approve.TaskProperties()
	require.NoError(t, err)
	require.NotNil(t, props.Parent)
	assert.Equal(t, tree.start.Id.String(), *props.Parent)
	assert.Equal(t, []string{tree.end.Id.String()}, props.Children)
	assert.Equal(t, "approve", props.TaskSpec)
	require.NotNil(t, approve.StartInSeconds)
	assert.Equal(t, runtime.ToSeconds(tree.approve.LastStateChange), *approve.StartInSeconds)
	assert.Nil(t, approve.EndInSeconds)

	data, err := e.store.FindJsonData(ctx, approve.JsonDataHash)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":10}`, string(data.Data))

	end, err := e.store.FindTaskByGuid(ctx, tree.end.Id.String())
	require.NoError(t, err)
	assert.Equal(t, runtime.TaskStateLikely, end.State)
	assert.Nil(t, end.StartInSeconds)

	// start finished within the pass and starts no later than the batch start
	start, err := e.store.FindTaskByGuid(ctx, tree.start.Id.String())
	require.NoError(t, err)
	require.NotNil(t, start.StartInSeconds)
	assert.Equal(t, runtime.ToSeconds(t0.Add(-time.Minute)), *start.StartInSeconds)
	require.NotNil(t, start.EndInSeconds)
	assert.Equal(t, runtime.ToSeconds(t0), *start.EndInSeconds)
}

func TestPredictedTasksAreExcludedFromListing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultProcessorConfig())
	tree := newApprovalTree("")
	e.reconcile(t, tree.snapshot, Options{})

	definite, err := ListTasks(ctx, e.store, e.instance.Id, false)
	require.NoError(t, err)
	assert.Len(t, definite, 2)
	all, err := ListTasks(ctx, e.store, e.instance.Id, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPredictedTasksNotPersistedWhenDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := defaultProcessorConfig()
	cfg.PersistPredictedTasks = false
	e := newEnv(t, cfg)
	tree := newApprovalTree("")
	e.reconcile(t, tree.snapshot, Options{})

	_, err := e.store.FindTaskByGuid(ctx, tree.end.Id.String())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCompletingManualTaskClosesHumanTask(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultProcessorConfig())
	tree := newApprovalTree("")
	e.reconcile(t, tree.snapshot, Options{})

	tree.approve.State = runtime.TaskStateCompleted
	tree.approve.LastStateChange = t0.Add(time.Minute)
	tree.end.State = runtime.TaskStateCompleted
	tree.end.LastStateChange = t0.Add(time.Minute)
	tree.snapshot.Completed = true
	res := e.reconcile(t, tree.snapshot, Options{CompletedBy: ptr.To(e.initiator.Id)})

	assert.Equal(t, runtime.ProcessInstanceStatusComplete, res.Instance.Status)
	assert.NotNil(t, res.Instance.EndInSeconds)

	humanTasks, err := e.store.FindHumanTasksByProcessInstanceId(ctx, e.instance.Id)
	require.NoError(t, err)
	require.Len(t, humanTasks, 1)
	assert.True(t, humanTasks[0].Completed)
	require.NotNil(t, humanTasks[0].CompletedByUserId)
	assert.Equal(t, e.initiator.Id, *humanTasks[0].CompletedByUserId)

	evts, err := e.store.FindProcessInstanceEvents(ctx, e.instance.Id)
	require.NoError(t, err)
	var approveEvent *runtime.ProcessInstanceEvent
	for i := range evts {
		if evts[i].TaskGuid != nil && *evts[i].TaskGuid == tree.approve.Id.String() {
			approveEvent = &evts[i]
		}
	}
	require.NotNil(t, approveEvent)
	assert.Equal(t, runtime.EventTypeTaskCompleted, approveEvent.EventType)
	require.NotNil(t, approveEvent.UserId)
	assert.Equal(t, e.initiator.Id, *approveEvent.UserId)
}

func TestUnfinishedTasksLeavingTheTreeAreDeleted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultProcessorConfig())
	tree := newApprovalTree("")
	e.reconcile(t, tree.snapshot, Options{})

	oldEnd := *tree.end
	newEnd := oldEnd
	newEnd.Id = uuid.New()
	tree.approve.ChildIds = []uuid.UUID{newEnd.Id}
	tree.snapshot.Tasks[2] = newEnd
	tree.refresh()

	res := e.reconcile(t, tree.snapshot, Options{})
	assert.Equal(t, []string{oldEnd.Id.String()}, res.Deleted)
	_, err := e.store.FindTaskByGuid(ctx, oldEnd.Id.String())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	evts, err := e.store.FindProcessInstanceEvents(ctx, e.instance.Id)
	require.NoError(t, err)
	skipped := 0
	for _, ev := range evts {
		if ev.EventType == runtime.EventTypeTaskSkipped {
			skipped++
		}
	}
	assert.Equal(t, 1, skipped)
}

func TestRemovedTasksTakeTheirHumanTasks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultProcessorConfig())
	tree := newApprovalTree("")
	e.reconcile(t, tree.snapshot, Options{})

	removed := []string{tree.approve.Id.String(), tree.end.Id.String()}
	tree.start.ChildIds = nil
	tree.snapshot.Tasks = tree.snapshot.Tasks[:1]
	res := e.reconcile(t, tree.snapshot, Options{Removed: removed})
	assert.ElementsMatch(t, removed, res.Deleted)

	humanTasks, err := e.store.FindHumanTasksByProcessInstanceId(ctx, e.instance.Id)
	require.NoError(t, err)
	assert.Empty(t, humanTasks)
}

func TestNoPotentialOwnersIsIsolated(t *testing.T) {
	ctx := context.Background()
	cfg := defaultProcessorConfig()
	cfg.AutoCreateLaneGroups = false
	e := newEnv(t, cfg)
	tree := newApprovalTree("finance")

	res := e.reconcile(t, tree.snapshot, Options{})
	require.Len(t, res.TaskErrors, 1)
	var noOwners *humantask.NoPotentialOwnersForTaskError
	require.ErrorAs(t, res.TaskErrors[0], &noOwners)
	assert.Equal(t, tree.approve.Id.String(), noOwners.TaskGuid)

	tasks, err := e.store.FindTasksByProcessInstanceId(ctx, e.instance.Id, runtime.TaskStateAnyMask)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	evts, err := e.store.FindProcessInstanceEvents(ctx, e.instance.Id)
	require.NoError(t, err)
	found := false
	for _, ev := range evts {
		if ev.EventType == runtime.EventTypeProcessInstanceError {
			found = true
			details, err := e.store.FindProcessInstanceErrorDetails(ctx, ev.Id)
			require.NoError(t, err)
			assert.Len(t, details, 1)
		}
	}
	assert.True(t, found)
}

func TestDeferredSubprocessTasksAreSkipped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, defaultProcessorConfig())

	wfId := uuid.New()
	spec := &runtime.WorkflowSpec{
		Spec: runtime.ProcessSpec{
			Name:  "outer",
			Start: "call",
			Tasks: []runtime.TaskSpec{{Name: "call", Kind: runtime.TaskKindCallActivity, Call: &runtime.CallProperties{ProcessRef: "inner"}}},
		},
		SubprocessSpecs: map[string]*runtime.ProcessSpec{"inner": nil},
	}
	call := runtime.TaskSnapshot{Id: uuid.New(), ProcessId: wfId, TaskSpec: "call", State: runtime.TaskStateStarted, LastStateChange: t0}
	inner := runtime.TaskSnapshot{Id: uuid.New(), ProcessId: call.Id, TaskSpec: "inner_start", State: runtime.TaskStateReady, LastStateChange: t0}
	snapshot := runtime.WorkflowSnapshot{
		Id:   wfId,
		Spec: spec,
		Processes: []runtime.ProcessSnapshot{
			{Id: wfId, SpecName: "outer"},
			{Id: call.Id, ParentId: &call.Id, SpecName: "inner"},
		},
		Tasks: []runtime.TaskSnapshot{call, inner},
	}

	res := e.reconcile(t, snapshot, Options{})
	assert.Equal(t, []string{inner.Id.String()}, res.Skipped)
	assert.Equal(t, []string{call.Id.String()}, res.Upserted)

	// once the spec is available the sub-process is stored
	spec.SubprocessSpecs["inner"] = &runtime.ProcessSpec{
		Name:  "inner",
		Start: "inner_start",
		Tasks: []runtime.TaskSpec{{Name: "inner_start", Kind: runtime.TaskKindNoneTask}},
	}
	res = e.reconcile(t, snapshot, Options{})
	assert.Empty(t, res.Skipped)
	assert.Equal(t, []string{inner.Id.String()}, res.Upserted)

	processes, err := e.store.FindBpmnProcessesByProcessInstanceId(ctx, e.instance.Id)
	require.NoError(t, err)
	require.Len(t, processes, 2)
	var top, sub runtime.BpmnProcess
	for _, p := range processes {
		if p.IsTopLevel() {
			top = p
		} else {
			sub = p
		}
	}
	require.NotNil(t, sub.DirectParentProcessId)
	assert.Equal(t, top.Id, *sub.DirectParentProcessId)
	assert.Equal(t, top.Id, sub.TopLevelProcessId)
	assert.Equal(t, call.Id.String(), sub.Guid)
}

func TestDataSizeLimitStagesNothing(t *testing.T) {
	ctx := context.Background()
	cfg := defaultProcessorConfig()
	cfg.MaxTaskDataSize = 16
	e := newEnv(t, cfg)
	tree := newApprovalTree("")
	tree.approve.Data = map[string]any{"payload": "a value that is clearly longer than sixteen bytes"}

	_, err := e.reconciler.Reconcile(ctx, e.instance, tree.snapshot, Options{})
	var sizeErr *DataSizeLimitExceededError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 16, sizeErr.Limit)

	tasks, err := e.store.FindTasksByProcessInstanceId(ctx, e.instance.Id, runtime.TaskStateAnyMask)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	hash, _, err := jsondata.Serialize(tree.approve.Data)
	require.NoError(t, err)
	_, err = e.store.FindJsonData(ctx, hash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSuspendedStatusIsKept(t *testing.T) {
	e := newEnv(t, defaultProcessorConfig())
	e.instance.Status = runtime.ProcessInstanceStatusSuspended
	tree := newApprovalTree("")
	res := e.reconcile(t, tree.snapshot, Options{})
	assert.Equal(t, runtime.ProcessInstanceStatusSuspended, res.Instance.Status)

	res = e.reconcile(t, tree.snapshot, Options{Status: runtime.ProcessInstanceStatusRunning})
	assert.Equal(t, runtime.ProcessInstanceStatusRunning, res.Instance.Status)
}

func TestTaskTiming(t *testing.T) {
	start, end := taskTiming(runtime.TaskStateFuture, nil, nil, 10, 5, false)
	assert.Nil(t, start)
	assert.Nil(t, end)

	start, end = taskTiming(runtime.TaskStateReady, nil, nil, 10, 5, false)
	assert.Equal(t, 10.0, *start)
	assert.Nil(t, end)

	start, end = taskTiming(runtime.TaskStateCompleted, nil, nil, 10, 5, true)
	assert.Equal(t, 5.0, *start)
	assert.Equal(t, 10.0, *end)

	// an existing start is kept, the end never precedes it
	start, end = taskTiming(runtime.TaskStateCompleted, ptr.To(12.0), nil, 10, 5, true)
	assert.Equal(t, 12.0, *start)
	assert.Equal(t, 12.0, *end)

	start, end = taskTiming(runtime.TaskStateCompleted, ptr.To(3.0), ptr.To(4.0), 10, 5, false)
	assert.Equal(t, 3.0, *start)
	assert.Equal(t, 4.0, *end)
}
