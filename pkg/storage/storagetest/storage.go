package storagetest

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	stdruntime "runtime"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/ptr"
	"github.com/pbinitiative/zentask/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type StorageTestFunc func(s storage.Storage, t *testing.T) func(t *testing.T)

// StorageTester is a conformance suite every storage.Storage implementation has to pass.
type StorageTester struct {
	initiator       runtime.User
	processInstance runtime.ProcessInstance
}

func (st *StorageTester) GetTests() map[string]StorageTestFunc {
	tests := map[string]StorageTestFunc{}

	// all test functions need to be registered here
	functions := []StorageTestFunc{
		st.TestDefinitionStorageWriter,
		st.TestDefinitionStorageReader,
		st.TestJsonDataStorage,
		st.TestProcessInstanceStorage,
		st.TestBpmnProcessStorage,
		st.TestTaskStorage,
		st.TestDeleteTasksRemovesHumanTasks,
		st.TestHumanTaskStorage,
		st.TestIdentityStorage,
		st.TestEventStorage,
		st.TestProcessInstanceQueue,
		st.TestBatchFlushIsAtomic,
	}

	for _, function := range functions {
		funcName := getFunctionName(function)
		strippedName := funcName[strings.LastIndex(funcName, ".")+1:]
		strippedName = strings.TrimSuffix(strippedName, "-fm")
		tests[strippedName] = function
	}
	return tests
}

func getFunctionName(i any) string {
	return stdruntime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
}

// PrepareTestData will prepare common data for the tests
func (st *StorageTester) PrepareTestData(s storage.Storage, t *testing.T) {
	r := s.GenerateId()

	st.initiator = runtime.User{
		Id:        r,
		Username:  fmt.Sprintf("initiator-%d", r),
		CreatedAt: time.Now().Truncate(time.Millisecond),
	}
	err := s.SaveUser(t.Context(), st.initiator)
	require.NoError(t, err)

	st.processInstance = runtime.ProcessInstance{
		Id:                     s.GenerateId(),
		ProcessModelIdentifier: "storage/test",
		ProcessInitiatorId:     st.initiator.Id,
		Status:                 runtime.ProcessInstanceStatusRunning,
		CreatedAt:              time.Now().Truncate(time.Millisecond),
		UpdatedAt:              time.Now().Truncate(time.Millisecond),
	}
	err = s.SaveProcessInstance(t.Context(), st.processInstance)
	require.NoError(t, err)
}

func getDefinition(r int64) runtime.BpmnProcessDefinition {
	hash := runtime.HashBytes(fmt.Appendf(nil, "definition-%d", r))
	return runtime.BpmnProcessDefinition{
		Id:                runtime.IdFromHash(hash),
		BpmnIdentifier:    fmt.Sprintf("process_%d", r),
		BpmnName:          "Process",
		SingleProcessHash: hash,
		Properties:        []byte(`{"name":"process","start":"a"}`),
		CreatedAt:         time.Now().Truncate(time.Millisecond),
	}
}

func getTaskDefinition(def runtime.BpmnProcessDefinition, name string) runtime.TaskDefinition {
	return runtime.TaskDefinition{
		Id:                      runtime.IdFromHash(def.SingleProcessHash + "/" + name),
		BpmnProcessDefinitionId: def.Id,
		BpmnIdentifier:          name,
		BpmnName:                strings.ToUpper(name),
		Typename:                string(runtime.TaskKindManualTask),
		Properties:              fmt.Appendf(nil, `{"name":%q,"typename":"ManualTask"}`, name),
	}
}

func getJsonData(v string) runtime.JsonData {
	data := fmt.Appendf(nil, `{"value":%q}`, v)
	return runtime.JsonData{Hash: runtime.HashBytes(data), Data: data}
}

// prepareProcess stores a definition with one task definition, json data and a top level bpmn process.
func (st *StorageTester) prepareProcess(s storage.Storage, t *testing.T) (runtime.TaskDefinition, runtime.JsonData, runtime.BpmnProcess) {
	r := s.GenerateId()
	def := getDefinition(r)
	require.NoError(t, s.SaveBpmnProcessDefinition(t.Context(), def))
	td := getTaskDefinition(def, "task")
	require.NoError(t, s.SaveTaskDefinition(t.Context(), td))
	data := getJsonData(fmt.Sprintf("process-%d", r))
	require.NoError(t, s.SaveJsonData(t.Context(), data))

	id := s.GenerateId()
	process := runtime.BpmnProcess{
		Id:                      id,
		Guid:                    fmt.Sprintf("process-guid-%d", id),
		BpmnProcessDefinitionId: def.Id,
		ProcessInstanceId:       st.processInstance.Id,
		TopLevelProcessId:       id,
		JsonDataHash:            data.Hash,
		Properties:              []byte(`{}`),
	}
	require.NoError(t, s.SaveBpmnProcess(t.Context(), process))
	return td, data, process
}

func getTask(s storage.Storage, td runtime.TaskDefinition, data runtime.JsonData, process runtime.BpmnProcess, state runtime.TaskState) runtime.Task {
	id := s.GenerateId()
	return runtime.Task{
		Id:                id,
		Guid:              fmt.Sprintf("task-guid-%d", id),
		BpmnProcessId:     process.Id,
		ProcessInstanceId: process.ProcessInstanceId,
		TaskDefinitionId:  td.Id,
		State:             state,
		Properties:        []byte(`{"parent":null,"children":[],"task_spec":"task","last_state_change":1}`),
		JsonDataHash:      data.Hash,
	}
}

func (st *StorageTester) TestDefinitionStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		def := getDefinition(s.GenerateId())
		err := s.SaveBpmnProcessDefinition(t.Context(), def)
		assert.NoError(t, err)

		// second writer of the same hash is a no-op
		err = s.SaveBpmnProcessDefinition(t.Context(), def)
		assert.NoError(t, err)

		td := getTaskDefinition(def, "task")
		assert.NoError(t, s.SaveTaskDefinition(t.Context(), td))
		assert.NoError(t, s.SaveTaskDefinition(t.Context(), td))

		child := getDefinition(s.GenerateId())
		assert.NoError(t, s.SaveBpmnProcessDefinition(t.Context(), child))
		rel := runtime.BpmnProcessDefinitionRelationship{ParentId: def.Id, ChildId: child.Id}
		assert.NoError(t, s.SaveBpmnProcessDefinitionRelationship(t.Context(), rel))
		assert.NoError(t, s.SaveBpmnProcessDefinitionRelationship(t.Context(), rel))

		children, err := s.FindChildDefinitionIds(t.Context(), def.Id)
		assert.NoError(t, err)
		assert.Equal(t, []int64{child.Id}, children)

		tds, err := s.FindTaskDefinitions(t.Context(), def.Id)
		assert.NoError(t, err)
		assert.Len(t, tds, 1)
	}
}

func (st *StorageTester) TestDefinitionStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		def := getDefinition(s.GenerateId())
		def.FullProcessModelHash = ptr.To(runtime.HashBytes([]byte(def.SingleProcessHash + "full")))
		assert.NoError(t, s.SaveBpmnProcessDefinition(t.Context(), def))
		assert.NoError(t, s.SaveTaskDefinition(t.Context(), getTaskDefinition(def, "b_task")))
		assert.NoError(t, s.SaveTaskDefinition(t.Context(), getTaskDefinition(def, "a_task")))

		byId, err := s.FindBpmnProcessDefinitionById(t.Context(), def.Id)
		assert.NoError(t, err)
		assert.Equal(t, def.SingleProcessHash, byId.SingleProcessHash)
		assert.Equal(t, def.BpmnIdentifier, byId.BpmnIdentifier)
		assert.JSONEq(t, string(def.Properties), string(byId.Properties))

		// a root definition is not shared with sub-processes of the same content
		_, err = s.FindBpmnProcessDefinitionBySingleHash(t.Context(), def.SingleProcessHash)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		shared := def
		shared.Id = def.Id + 1
		shared.FullProcessModelHash = nil
		assert.NoError(t, s.SaveBpmnProcessDefinition(t.Context(), shared))
		bySingle, err := s.FindBpmnProcessDefinitionBySingleHash(t.Context(), def.SingleProcessHash)
		assert.NoError(t, err)
		assert.Equal(t, shared.Id, bySingle.Id)

		// a second root with the same root spec but another model is its own row
		otherRoot := def
		otherRoot.Id = def.Id + 2
		otherRoot.FullProcessModelHash = ptr.To(runtime.HashBytes([]byte(def.SingleProcessHash + "other")))
		assert.NoError(t, s.SaveBpmnProcessDefinition(t.Context(), otherRoot))
		byOtherFull, err := s.FindBpmnProcessDefinitionByFullHash(t.Context(), *otherRoot.FullProcessModelHash)
		assert.NoError(t, err)
		assert.Equal(t, otherRoot.Id, byOtherFull.Id)

		byFull, err := s.FindBpmnProcessDefinitionByFullHash(t.Context(), *def.FullProcessModelHash)
		assert.NoError(t, err)
		assert.Equal(t, def.Id, byFull.Id)

		tds, err := s.FindTaskDefinitions(t.Context(), def.Id)
		assert.NoError(t, err)
		assert.Len(t, tds, 2)
		assert.Equal(t, "a_task", tds[0].BpmnIdentifier)
		assert.Equal(t, "b_task", tds[1].BpmnIdentifier)

		_, err = s.FindBpmnProcessDefinitionBySingleHash(t.Context(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindBpmnProcessDefinitionByFullHash(t.Context(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindBpmnProcessDefinitionById(t.Context(), -1)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		tds, err = s.FindTaskDefinitions(t.Context(), -1)
		assert.NoError(t, err)
		assert.Empty(t, tds)
	}
}

func (st *StorageTester) TestJsonDataStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		data := getJsonData(fmt.Sprintf("json-%d", s.GenerateId()))
		assert.NoError(t, s.SaveJsonData(t.Context(), data))
		assert.NoError(t, s.SaveJsonData(t.Context(), data))

		found, err := s.FindJsonData(t.Context(), data.Hash)
		assert.NoError(t, err)
		assert.Equal(t, data.Hash, found.Hash)
		assert.JSONEq(t, string(data.Data), string(found.Data))

		_, err = s.FindJsonData(t.Context(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestProcessInstanceStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		pi := runtime.ProcessInstance{
			Id:                     s.GenerateId(),
			ProcessModelIdentifier: "storage/instance",
			ProcessInitiatorId:     st.initiator.Id,
			Status:                 runtime.ProcessInstanceStatusNotStarted,
			CreatedAt:              time.Now().Truncate(time.Millisecond),
			UpdatedAt:              time.Now().Truncate(time.Millisecond),
		}
		assert.NoError(t, s.SaveProcessInstance(t.Context(), pi))

		pi.Status = runtime.ProcessInstanceStatusSuspended
		pi.StartInSeconds = ptr.To(10.5)
		assert.NoError(t, s.SaveProcessInstance(t.Context(), pi))

		found, err := s.FindProcessInstanceById(t.Context(), pi.Id)
		assert.NoError(t, err)
		assert.Equal(t, runtime.ProcessInstanceStatusSuspended, found.Status)
		assert.Equal(t, pi.ProcessModelIdentifier, found.ProcessModelIdentifier)
		assert.Equal(t, 10.5, ptr.Deref(found.StartInSeconds, 0))
		assert.Nil(t, found.EndInSeconds)

		suspended, err := s.FindProcessInstancesByStatus(t.Context(), runtime.ProcessInstanceStatusSuspended)
		assert.NoError(t, err)
		assert.Contains(t, ids(suspended, func(p runtime.ProcessInstance) int64 { return p.Id }), pi.Id)

		_, err = s.FindProcessInstanceById(t.Context(), -1)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestBpmnProcessStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		_, data, top := st.prepareProcess(s, t)

		childId := s.GenerateId()
		child := runtime.BpmnProcess{
			Id:                      childId,
			Guid:                    fmt.Sprintf("child-guid-%d", childId),
			BpmnProcessDefinitionId: top.BpmnProcessDefinitionId,
			ProcessInstanceId:       top.ProcessInstanceId,
			TopLevelProcessId:       top.Id,
			DirectParentProcessId:   ptr.To(top.Id),
			JsonDataHash:            data.Hash,
			Properties:              []byte(`{}`),
		}
		assert.NoError(t, s.SaveBpmnProcess(t.Context(), child))

		found, err := s.FindBpmnProcessById(t.Context(), child.Id)
		assert.NoError(t, err)
		assert.Equal(t, child.Guid, found.Guid)
		assert.Equal(t, top.Id, found.TopLevelProcessId)
		assert.Equal(t, top.Id, ptr.Deref(found.DirectParentProcessId, 0))
		assert.False(t, found.IsTopLevel())

		all, err := s.FindBpmnProcessesByProcessInstanceId(t.Context(), top.ProcessInstanceId)
		assert.NoError(t, err)
		assert.Contains(t, ids(all, func(p runtime.BpmnProcess) int64 { return p.Id }), top.Id)
		assert.Contains(t, ids(all, func(p runtime.BpmnProcess) int64 { return p.Id }), child.Id)

		assert.NoError(t, s.DeleteBpmnProcesses(t.Context(), child.Id))
		_, err = s.FindBpmnProcessById(t.Context(), child.Id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestTaskStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		td, data, process := st.prepareProcess(s, t)

		ready := getTask(s, td, data, process, runtime.TaskStateReady)
		likely := getTask(s, td, data, process, runtime.TaskStateLikely)
		assert.NoError(t, s.SaveTask(t.Context(), ready))
		assert.NoError(t, s.SaveTask(t.Context(), likely))

		// upsert by guid keeps the original id
		updated := ready
		updated.Id = s.GenerateId()
		updated.State = runtime.TaskStateCompleted
		updated.StartInSeconds = ptr.To(1.25)
		updated.EndInSeconds = ptr.To(2.5)
		assert.NoError(t, s.SaveTask(t.Context(), updated))

		found, err := s.FindTaskByGuid(t.Context(), ready.Guid)
		assert.NoError(t, err)
		assert.Equal(t, ready.Id, found.Id)
		assert.Equal(t, runtime.TaskStateCompleted, found.State)
		assert.Equal(t, 1.25, ptr.Deref(found.StartInSeconds, 0))
		assert.Equal(t, 2.5, ptr.Deref(found.EndInSeconds, 0))
		props, err := found.TaskProperties()
		assert.NoError(t, err)
		assert.Equal(t, "task", props.TaskSpec)

		definite, err := s.FindTasksByProcessInstanceId(t.Context(), process.ProcessInstanceId, runtime.TaskStateDefiniteMask)
		assert.NoError(t, err)
		guids := ids(definite, func(t runtime.Task) string { return t.Guid })
		assert.Contains(t, guids, ready.Guid)
		assert.NotContains(t, guids, likely.Guid)

		predicted, err := s.FindTasksByProcessInstanceId(t.Context(), process.ProcessInstanceId, runtime.TaskStatePredictedMask)
		assert.NoError(t, err)
		assert.Contains(t, ids(predicted, func(t runtime.Task) string { return t.Guid }), likely.Guid)

		assert.NoError(t, s.DeleteTasks(t.Context(), likely.Guid))
		_, err = s.FindTaskByGuid(t.Context(), likely.Guid)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestDeleteTasksRemovesHumanTasks(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		td, data, process := st.prepareProcess(s, t)
		task := getTask(s, td, data, process, runtime.TaskStateReady)
		assert.NoError(t, s.SaveTask(t.Context(), task))

		ht := runtime.HumanTask{
			Id:                s.GenerateId(),
			ProcessInstanceId: process.ProcessInstanceId,
			TaskGuid:          task.Guid,
			TaskName:          "task",
			TaskTitle:         "Task",
			TaskType:          string(runtime.TaskKindManualTask),
			TaskStatus:        runtime.TaskStateReady.String(),
			CreatedAt:         time.Now().Truncate(time.Millisecond),
			UpdatedAt:         time.Now().Truncate(time.Millisecond),
		}
		assert.NoError(t, s.SaveHumanTask(t.Context(), ht))
		assert.NoError(t, s.SaveHumanTaskUser(t.Context(), runtime.HumanTaskUser{HumanTaskId: ht.Id, UserId: st.initiator.Id, AddedBy: runtime.HumanTaskUserAddedByProcessInitiator}))

		assert.NoError(t, s.DeleteTasks(t.Context(), task.Guid))

		_, err := s.FindOpenHumanTaskByTaskGuid(t.Context(), task.Guid)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		users, err := s.FindHumanTaskUsers(t.Context(), ht.Id)
		assert.NoError(t, err)
		assert.Empty(t, users)
	}
}

func (st *StorageTester) TestHumanTaskStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		td, data, process := st.prepareProcess(s, t)
		task := getTask(s, td, data, process, runtime.TaskStateReady)
		assert.NoError(t, s.SaveTask(t.Context(), task))

		group := runtime.Group{Id: s.GenerateId(), Identifier: fmt.Sprintf("group-%d", s.GenerateId())}
		assert.NoError(t, s.SaveGroup(t.Context(), group))

		ht := runtime.HumanTask{
			Id:                    s.GenerateId(),
			ProcessInstanceId:     process.ProcessInstanceId,
			TaskGuid:              task.Guid,
			TaskName:              "task",
			TaskTitle:             "Task",
			TaskType:              string(runtime.TaskKindManualTask),
			TaskStatus:            runtime.TaskStateReady.String(),
			LaneName:              ptr.To(group.Identifier),
			LaneAssignmentId:      ptr.To(group.Id),
			BpmnProcessIdentifier: "process",
			CreatedAt:             time.Now().Truncate(time.Millisecond),
			UpdatedAt:             time.Now().Truncate(time.Millisecond),
		}
		assert.NoError(t, s.SaveHumanTask(t.Context(), ht))

		open, err := s.FindOpenHumanTaskByTaskGuid(t.Context(), task.Guid)
		assert.NoError(t, err)
		assert.Equal(t, ht.Id, open.Id)
		assert.Equal(t, group.Id, ptr.Deref(open.LaneAssignmentId, 0))
		assert.Equal(t, group.Identifier, ptr.Deref(open.LaneName, ""))

		byLane, err := s.FindOpenHumanTasksByLaneAssignmentId(t.Context(), group.Id)
		assert.NoError(t, err)
		assert.Len(t, byLane, 1)

		// additive and idempotent assignment
		htu := runtime.HumanTaskUser{HumanTaskId: ht.Id, UserId: st.initiator.Id, AddedBy: runtime.HumanTaskUserAddedByLaneAssignment}
		assert.NoError(t, s.SaveHumanTaskUser(t.Context(), htu))
		assert.NoError(t, s.SaveHumanTaskUser(t.Context(), htu))
		users, err := s.FindHumanTaskUsers(t.Context(), ht.Id)
		assert.NoError(t, err)
		assert.Equal(t, []runtime.HumanTaskUser{htu}, users)

		ht.Completed = true
		ht.CompletedByUserId = ptr.To(st.initiator.Id)
		assert.NoError(t, s.SaveHumanTask(t.Context(), ht))
		_, err = s.FindOpenHumanTaskByTaskGuid(t.Context(), task.Guid)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		all, err := s.FindHumanTasksByProcessInstanceId(t.Context(), process.ProcessInstanceId)
		assert.NoError(t, err)
		var completed runtime.HumanTask
		for _, h := range all {
			if h.Id == ht.Id {
				completed = h
			}
		}
		assert.True(t, completed.Completed)
		assert.Equal(t, st.initiator.Id, ptr.Deref(completed.CompletedByUserId, 0))

		byLane, err = s.FindOpenHumanTasksByLaneAssignmentId(t.Context(), group.Id)
		assert.NoError(t, err)
		assert.Empty(t, byLane)
	}
}

func (st *StorageTester) TestIdentityStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()
		user := runtime.User{Id: r, Username: fmt.Sprintf("user-%d", r), DisplayName: "User", Email: "user@example.com", CreatedAt: time.Now().Truncate(time.Millisecond)}
		assert.NoError(t, s.SaveUser(t.Context(), user))

		byName, err := s.FindUserByUsername(t.Context(), user.Username)
		assert.NoError(t, err)
		assert.Equal(t, user.Id, byName.Id)
		byId, err := s.FindUserById(t.Context(), user.Id)
		assert.NoError(t, err)
		assert.Equal(t, user.Username, byId.Username)

		group := runtime.Group{Id: s.GenerateId(), Identifier: fmt.Sprintf("reviewers-%d", r), Name: "Reviewers"}
		assert.NoError(t, s.SaveGroup(t.Context(), group))
		// a second group with the same identifier is ignored
		assert.NoError(t, s.SaveGroup(t.Context(), runtime.Group{Id: s.GenerateId(), Identifier: group.Identifier}))
		found, err := s.FindGroupByIdentifier(t.Context(), group.Identifier)
		assert.NoError(t, err)
		assert.Equal(t, group.Id, found.Id)

		members, err := s.FindGroupMemberIds(t.Context(), group.Id)
		assert.NoError(t, err)
		assert.Empty(t, members)

		assert.NoError(t, s.AddUserToGroup(t.Context(), user.Id, group.Id))
		assert.NoError(t, s.AddUserToGroup(t.Context(), user.Id, group.Id))
		members, err = s.FindGroupMemberIds(t.Context(), group.Id)
		assert.NoError(t, err)
		assert.Equal(t, []int64{user.Id}, members)

		_, err = s.FindUserByUsername(t.Context(), "missing-user")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindGroupByIdentifier(t.Context(), "missing-group")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func (st *StorageTester) TestEventStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		first := runtime.ProcessInstanceEvent{
			Id:                s.GenerateId(),
			ProcessInstanceId: st.processInstance.Id,
			EventType:         runtime.EventTypeTaskCompleted,
			TaskGuid:          ptr.To("task-1"),
			Timestamp:         100,
		}
		second := runtime.ProcessInstanceEvent{
			Id:                s.GenerateId(),
			ProcessInstanceId: st.processInstance.Id,
			EventType:         runtime.EventTypeProcessInstanceError,
			UserId:            ptr.To(st.initiator.Id),
			Timestamp:         200,
		}
		assert.NoError(t, s.SaveProcessInstanceEvent(t.Context(), second))
		assert.NoError(t, s.SaveProcessInstanceEvent(t.Context(), first))
		detail := runtime.ProcessInstanceErrorDetail{Id: s.GenerateId(), ProcessInstanceEventId: second.Id, Message: "boom", Stacktrace: "trace"}
		assert.NoError(t, s.SaveProcessInstanceErrorDetail(t.Context(), detail))

		events, err := s.FindProcessInstanceEvents(t.Context(), st.processInstance.Id)
		assert.NoError(t, err)
		var own []runtime.ProcessInstanceEvent
		for _, e := range events {
			if e.Id == first.Id || e.Id == second.Id {
				own = append(own, e)
			}
		}
		assert.Equal(t, []runtime.ProcessInstanceEvent{first, second}, own)

		details, err := s.FindProcessInstanceErrorDetails(t.Context(), second.Id)
		assert.NoError(t, err)
		assert.Equal(t, []runtime.ProcessInstanceErrorDetail{detail}, details)
	}
}

func (st *StorageTester) TestProcessInstanceQueue(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		id := s.GenerateId()
		now := time.Now()

		locked, err := s.TryLockProcessInstance(t.Context(), id, "worker-a", now, now.Add(-time.Minute))
		assert.NoError(t, err)
		assert.True(t, locked)

		locked, err = s.TryLockProcessInstance(t.Context(), id, "worker-b", now, now.Add(-time.Minute))
		assert.NoError(t, err)
		assert.False(t, locked)

		// unlock by someone else does nothing
		assert.NoError(t, s.UnlockProcessInstance(t.Context(), id, "worker-b"))
		locked, err = s.TryLockProcessInstance(t.Context(), id, "worker-b", now, now.Add(-time.Minute))
		assert.NoError(t, err)
		assert.False(t, locked)

		// a stale lock can be taken over
		later := now.Add(2 * time.Minute)
		locked, err = s.TryLockProcessInstance(t.Context(), id, "worker-b", later, later.Add(-time.Minute))
		assert.NoError(t, err)
		assert.True(t, locked)

		assert.NoError(t, s.UnlockProcessInstance(t.Context(), id, "worker-b"))
		locked, err = s.TryLockProcessInstance(t.Context(), id, "worker-a", later, later.Add(-time.Minute))
		assert.NoError(t, err)
		assert.True(t, locked)
		assert.NoError(t, s.UnlockProcessInstance(t.Context(), id, "worker-a"))
	}
}

func (st *StorageTester) TestBatchFlushIsAtomic(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		td, data, process := st.prepareProcess(s, t)
		fresh := getJsonData(fmt.Sprintf("batch-%d", s.GenerateId()))

		batch := s.NewBatch()
		flushed := false
		batch.AddPostFlushAction(t.Context(), func() { flushed = true })
		assert.NoError(t, batch.SaveJsonData(t.Context(), fresh))
		broken := getTask(s, td, data, process, runtime.TaskStateReady)
		broken.TaskDefinitionId = -1
		assert.NoError(t, batch.SaveTask(t.Context(), broken))

		err := batch.Flush(t.Context())
		assert.Error(t, err)
		assert.False(t, flushed)

		_, err = s.FindJsonData(t.Context(), fresh.Hash)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindTaskByGuid(t.Context(), broken.Guid)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		// the batch is reusable after a failed flush
		assert.NoError(t, batch.SaveJsonData(t.Context(), fresh))
		assert.NoError(t, batch.Flush(t.Context()))
		_, err = s.FindJsonData(t.Context(), fresh.Hash)
		assert.NoError(t, err)
	}
}

func ids[T any, K comparable](items []T, key func(T) K) []K {
	res := make([]K, 0, len(items))
	for _, item := range items {
		res = append(res, key(item))
	}
	return res
}
