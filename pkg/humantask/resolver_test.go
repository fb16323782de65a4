package humantask

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
	"github.com/pbinitiative/zentask/pkg/storage/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *inmemory.Storage
	instance  runtime.ProcessInstance
	initiator runtime.User
	process   runtime.BpmnProcess
	taskDefId int64
	jsonHash  string
}

func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	store := inmemory.NewStorage()
	f := &fixture{store: store}

	f.initiator = f.addUser(t, "alice")
	f.instance = runtime.ProcessInstance{
		Id:                     store.GenerateId(),
		ProcessModelIdentifier: "approval",
		ProcessInitiatorId:     f.initiator.Id,
		Status:                 runtime.ProcessInstanceStatusRunning,
	}
	require.NoError(t, store.SaveProcessInstance(ctx, f.instance))

	def := runtime.BpmnProcessDefinition{Id: store.GenerateId(), BpmnIdentifier: "approval", SingleProcessHash: "h1"}
	require.NoError(t, store.SaveBpmnProcessDefinition(ctx, def))
	td := runtime.TaskDefinition{Id: store.GenerateId(), BpmnProcessDefinitionId: def.Id, BpmnIdentifier: "approve", Typename: "ManualTask"}
	require.NoError(t, store.SaveTaskDefinition(ctx, td))
	f.taskDefId = td.Id
	f.jsonHash = "empty"
	require.NoError(t, store.SaveJsonData(ctx, runtime.JsonData{Hash: f.jsonHash, Data: []byte("{}")}))
	f.process = runtime.BpmnProcess{
		Id:                      store.GenerateId(),
		Guid:                    uuid.NewString(),
		BpmnProcessDefinitionId: def.Id,
		ProcessInstanceId:       f.instance.Id,
		JsonDataHash:            f.jsonHash,
	}
	f.process.TopLevelProcessId = f.process.Id
	require.NoError(t, store.SaveBpmnProcess(ctx, f.process))
	return f
}

func (f *fixture) addUser(t *testing.T, username string) runtime.User {
	user := runtime.User{Id: f.store.GenerateId(), Username: username, CreatedAt: time.Now()}
	require.NoError(t, f.store.SaveUser(context.Background(), user))
	return user
}

func (f *fixture) addGroup(t *testing.T, identifier string, members ...runtime.User) runtime.Group {
	ctx := context.Background()
	group := runtime.Group{Id: f.store.GenerateId(), Identifier: identifier, Name: identifier}
	require.NoError(t, f.store.SaveGroup(ctx, group))
	for _, m := range members {
		require.NoError(t, f.store.AddUserToGroup(ctx, m.Id, group.Id))
	}
	return group
}

func (f *fixture) request(t *testing.T, spec runtime.TaskSpec, data map[string]any) Request {
	id := uuid.New()
	task := runtime.Task{
		Id:                f.store.GenerateId(),
		Guid:              id.String(),
		BpmnProcessId:     f.process.Id,
		ProcessInstanceId: f.instance.Id,
		TaskDefinitionId:  f.taskDefId,
		State:             runtime.TaskStateReady,
		Properties:        []byte("{}"),
		JsonDataHash:      f.jsonHash,
	}
	require.NoError(t, f.store.SaveTask(context.Background(), task))
	return Request{
		Instance:          f.instance,
		Task:              runtime.TaskSnapshot{Id: id, TaskSpec: spec.Name, State: runtime.TaskStateReady, Data: data},
		Spec:              &spec,
		ProcessIdentifier: "approval",
	}
}

func (f *fixture) sync(t *testing.T, r *Resolver, req Request) (Result, error) {
	ctx := context.Background()
	batch := f.store.NewBatch()
	res, err := r.ResolveAndSync(ctx, batch, req)
	if err != nil {
		return res, err
	}
	require.NoError(t, batch.Flush(ctx))
	return res, nil
}

func (f *fixture) userIds(t *testing.T, humanTaskId int64) []int64 {
	users, err := f.store.FindHumanTaskUsers(context.Background(), humanTaskId)
	require.NoError(t, err)
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserId)
	}
	return ids
}

func manualTask(lane string) runtime.TaskSpec {
	return runtime.TaskSpec{Name: "approve", Description: "Approve request", Kind: runtime.TaskKindManualTask, Lane: lane}
}

func TestInitiatorLanes(t *testing.T) {
	for _, lane := range []string{"", "process initiator", "Process Initiator"} {
		f := newFixture(t)
		r := NewResolver(f.store, true, hclog.NewNullLogger())

		res, err := f.sync(t, r, f.request(t, manualTask(lane), nil))
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Nil(t, res.HumanTask.LaneAssignmentId)
		assert.Equal(t, "Approve request", res.HumanTask.TaskTitle)
		assert.Equal(t, []int64{f.initiator.Id}, f.userIds(t, res.HumanTask.Id))
	}
}

func TestGroupLane(t *testing.T) {
	f := newFixture(t)
	bob := f.addUser(t, "bob")
	carol := f.addUser(t, "carol")
	group := f.addGroup(t, "reviewers", bob, carol)
	r := NewResolver(f.store, false, hclog.NewNullLogger())

	res, err := f.sync(t, r, f.request(t, manualTask("reviewers"), nil))
	require.NoError(t, err)
	require.NotNil(t, res.HumanTask.LaneAssignmentId)
	assert.Equal(t, group.Id, *res.HumanTask.LaneAssignmentId)
	assert.ElementsMatch(t, []int64{bob.Id, carol.Id}, f.userIds(t, res.HumanTask.Id))
	require.NotNil(t, res.HumanTask.LaneName)
	assert.Equal(t, "reviewers", *res.HumanTask.LaneName)
}

func TestLaneOwnersOverrideGroup(t *testing.T) {
	f := newFixture(t)
	bob := f.addUser(t, "bob")
	carol := f.addUser(t, "carol")
	f.addGroup(t, "reviewers", bob)
	r := NewResolver(f.store, false, hclog.NewNullLogger())

	data := map[string]any{"lane_owners": map[string]any{"reviewers": []any{"carol", "nobody"}}}
	res, err := f.sync(t, r, f.request(t, manualTask("reviewers"), data))
	require.NoError(t, err)
	assert.Nil(t, res.HumanTask.LaneAssignmentId)
	assert.Equal(t, []int64{carol.Id}, f.userIds(t, res.HumanTask.Id))

	data = map[string]any{"lane_owners": map[string]any{"reviewers": []any{"nobody"}}}
	_, err = f.sync(t, r, f.request(t, manualTask("reviewers"), data))
	var noOwners *NoPotentialOwnersForTaskError
	require.ErrorAs(t, err, &noOwners)
	assert.Equal(t, "reviewers", noOwners.Lane)
}

func TestMissingGroup(t *testing.T) {
	f := newFixture(t)
	strict := NewResolver(f.store, false, hclog.NewNullLogger())

	_, err := f.sync(t, strict, f.request(t, manualTask("finance"), nil))
	var noOwners *NoPotentialOwnersForTaskError
	require.ErrorAs(t, err, &noOwners)

	empty := f.addGroup(t, "empty")
	_, err = f.sync(t, strict, f.request(t, manualTask(empty.Identifier), nil))
	require.ErrorAs(t, err, &noOwners)
}

func TestAutoCreatedGroupPicksUpMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := NewResolver(f.store, true, hclog.NewNullLogger())

	res, err := f.sync(t, r, f.request(t, manualTask("finance"), nil))
	require.NoError(t, err)
	assert.Empty(t, f.userIds(t, res.HumanTask.Id))

	group, err := f.store.FindGroupByIdentifier(ctx, "finance")
	require.NoError(t, err)
	assert.Equal(t, group.Id, *res.HumanTask.LaneAssignmentId)

	dave := f.addUser(t, "dave")
	require.NoError(t, f.store.AddUserToGroup(ctx, dave.Id, group.Id))
	batch := f.store.NewBatch()
	added, err := r.OnGroupMembershipChanged(ctx, batch, group.Id)
	require.NoError(t, err)
	require.NoError(t, batch.Flush(ctx))
	assert.Equal(t, 1, added)
	assert.Equal(t, []int64{dave.Id}, f.userIds(t, res.HumanTask.Id))

	ok, err := r.CanUserCompleteTask(ctx, res.HumanTask.TaskGuid, dave.Id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAutoCreatedGroupCommitsWithBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := NewResolver(f.store, true, hclog.NewNullLogger())
	req := f.request(t, manualTask("finance"), nil)

	assignment, err := r.Resolve(ctx, req)
	require.NoError(t, err)
	require.Len(t, assignment.NewGroups, 1)
	_, err = f.store.FindGroupByIdentifier(ctx, "finance")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// a failing statement later in the batch drops the staged group as well
	batch := f.store.NewBatch()
	_, err = r.ResolveAndSync(ctx, batch, req)
	require.NoError(t, err)
	require.NoError(t, batch.SaveHumanTaskUser(ctx, runtime.HumanTaskUser{HumanTaskId: f.store.GenerateId(), UserId: f.initiator.Id}))
	require.Error(t, batch.Flush(ctx))
	_, err = f.store.FindGroupByIdentifier(ctx, "finance")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	res, err := f.sync(t, r, req)
	require.NoError(t, err)
	group, err := f.store.FindGroupByIdentifier(ctx, "finance")
	require.NoError(t, err)
	assert.Equal(t, assignment.NewGroups[0].Id, group.Id)
	assert.Equal(t, group.Id, *res.HumanTask.LaneAssignmentId)

	// the next pass finds the group and stages nothing for it
	assignment, err = r.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, assignment.NewGroups)
}

func TestResolveAndSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bob := f.addUser(t, "bob")
	group := f.addGroup(t, "reviewers", bob)
	r := NewResolver(f.store, true, hclog.NewNullLogger())

	req := f.request(t, manualTask("reviewers"), nil)
	first, err := f.sync(t, r, req)
	require.NoError(t, err)
	before, err := f.store.FindHumanTasksByProcessInstanceId(ctx, f.instance.Id)
	require.NoError(t, err)

	carol := f.addUser(t, "carol")
	require.NoError(t, f.store.AddUserToGroup(ctx, carol.Id, group.Id))
	second, err := f.sync(t, r, req)
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.HumanTask.Id, second.HumanTask.Id)
	assert.Equal(t, []int64{carol.Id}, second.AddedUsers)

	all, err := f.store.FindHumanTasksByProcessInstanceId(ctx, f.instance.Id)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	// new members do not touch the human task row
	assert.Equal(t, before, all)
}

func TestAssignmentExtension(t *testing.T) {
	f := newFixture(t)
	bob := f.addUser(t, "bob")
	carol := f.addUser(t, "carol")
	group := f.addGroup(t, "legal", carol)
	r := NewResolver(f.store, false, hclog.NewNullLogger())

	spec := manualTask("")
	spec.Extensions = map[string]any{"assignment": map[string]any{"assignee": "bob", "candidateGroups": "legal"}}
	res, err := f.sync(t, r, f.request(t, spec, nil))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{bob.Id, carol.Id}, f.userIds(t, res.HumanTask.Id))
	assert.Equal(t, group.Id, *res.HumanTask.LaneAssignmentId)
}

func TestCanUserCompleteTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bob := f.addUser(t, "bob")
	r := NewResolver(f.store, true, hclog.NewNullLogger())

	res, err := f.sync(t, r, f.request(t, manualTask(""), nil))
	require.NoError(t, err)

	ok, err := r.CanUserCompleteTask(ctx, res.HumanTask.TaskGuid, f.initiator.Id)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.CanUserCompleteTask(ctx, res.HumanTask.TaskGuid, bob.Id)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.CanUserCompleteTask(ctx, uuid.NewString(), f.initiator.Id)
	require.NoError(t, err)
	assert.False(t, ok)
}
