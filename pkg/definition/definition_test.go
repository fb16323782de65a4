package definition

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalWorkflow() *runtime.WorkflowSpec {
	return &runtime.WorkflowSpec{
		Spec: runtime.ProcessSpec{
			Name:  "approval",
			Start: "start",
			Tasks: []runtime.TaskSpec{
				{Name: "start", Kind: runtime.TaskKindStartEvent, Outputs: []string{"review"}},
				{Name: "review", Kind: runtime.TaskKindCallActivity, Call: &runtime.CallProperties{ProcessRef: "review_process"}, Outputs: []string{"end"}},
				{Name: "end", Kind: runtime.TaskKindEndEvent},
			},
		},
		SubprocessSpecs: map[string]*runtime.ProcessSpec{
			"review_process": {
				Name:  "review_process",
				Start: "sub_start",
				Tasks: []runtime.TaskSpec{
					{Name: "sub_start", Kind: runtime.TaskKindStartEvent, Outputs: []string{"approve"}},
					{Name: "approve", Kind: runtime.TaskKindManualTask, Lane: "reviewers", Outputs: []string{"sub_end"}},
					{Name: "sub_end", Kind: runtime.TaskKindEndEvent},
				},
			},
		},
		SerializerVersion: runtime.SerializerVersion,
	}
}

func newCache(store *inmemory.Storage) *Cache {
	return NewCache(store, 10, time.Minute, hclog.NewNullLogger())
}

func TestSingleHashIgnoresTaskOrder(t *testing.T) {
	spec := approvalWorkflow().Spec
	reordered := spec
	reordered.Tasks = []runtime.TaskSpec{spec.Tasks[2], spec.Tasks[0], spec.Tasks[1]}

	h1, err := SingleProcessHash(spec)
	require.NoError(t, err)
	h2, err := SingleProcessHash(reordered)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	changed := spec
	changed.Start = "end"
	h3, err := SingleProcessHash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestStoreWorkflowSpec(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStorage()
	cache := newCache(store)

	lookup := NewLookup()
	batch := store.NewBatch()
	root, err := cache.StoreWorkflowSpec(ctx, batch, lookup, approvalWorkflow())
	require.NoError(t, err)
	require.NoError(t, batch.Flush(ctx))

	assert.Equal(t, "approval", root.BpmnIdentifier)
	require.NotNil(t, root.FullProcessModelHash)

	sub, ok := lookup.Process("review_process")
	require.True(t, ok)
	assert.Nil(t, sub.FullProcessModelHash)
	td, ok := lookup.TaskDefinition("review_process", "approve")
	require.True(t, ok)
	assert.Equal(t, string(runtime.TaskKindManualTask), td.Typename)
	assert.Equal(t, sub.Id, td.BpmnProcessDefinitionId)

	children, err := store.FindChildDefinitionIds(ctx, root.Id)
	require.NoError(t, err)
	assert.Equal(t, []int64{sub.Id}, children)

	stored, err := store.FindTaskDefinitions(ctx, root.Id)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestDefinitionReuse(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStorage()

	var ids []int64
	for range 2 {
		// a fresh cache per instance forces the lookup through storage
		cache := newCache(store)
		batch := store.NewBatch()
		root, err := cache.StoreWorkflowSpec(ctx, batch, NewLookup(), approvalWorkflow())
		require.NoError(t, err)
		require.NoError(t, batch.Flush(ctx))
		ids = append(ids, root.Id)
	}
	assert.Equal(t, ids[0], ids[1])

	fullHash, err := FullProcessModelHash(approvalWorkflow())
	require.NoError(t, err)
	byHash, err := store.FindBpmnProcessDefinitionByFullHash(ctx, fullHash)
	require.NoError(t, err)
	assert.Equal(t, ids[0], byHash.Id)

	sub, err := store.FindBpmnProcessDefinitionBySingleHash(ctx, mustHash(t, *approvalWorkflow().SubprocessSpecs["review_process"]))
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], sub.Id)
}

func storeModel(t *testing.T, store *inmemory.Storage, wf *runtime.WorkflowSpec) runtime.BpmnProcessDefinition {
	batch := store.NewBatch()
	root, err := newCache(store).StoreWorkflowSpec(t.Context(), batch, NewLookup(), wf)
	require.NoError(t, err)
	require.NoError(t, batch.Flush(t.Context()))
	return root
}

func TestModelsSharingRootSpecKeepTheirSubprocesses(t *testing.T) {
	store := inmemory.NewStorage()

	v1 := approvalWorkflow()
	v2 := approvalWorkflow()
	v2.SubprocessSpecs["review_process"].Tasks[1].Name = "sign"
	v2.SubprocessSpecs["review_process"].Tasks[0].Outputs = []string{"sign"}

	root1 := storeModel(t, store, v1)
	root2 := storeModel(t, store, v2)
	assert.NotEqual(t, root1.Id, root2.Id)
	assert.Equal(t, root1.SingleProcessHash, root2.SingleProcessHash)

	for _, tc := range []struct {
		root runtime.BpmnProcessDefinition
		task string
	}{{root1, "approve"}, {root2, "sign"}} {
		loaded, err := newCache(store).LoadWorkflowSpec(t.Context(), tc.root.Id)
		require.NoError(t, err)
		_, ok := loaded.SubprocessSpecs["review_process"].Task(tc.task)
		assert.True(t, ok, "root %d is missing task %s", tc.root.Id, tc.task)
	}
}

func TestNestedSubprocessesRelateToRoot(t *testing.T) {
	store := inmemory.NewStorage()
	wf := approvalWorkflow()
	review := wf.SubprocessSpecs["review_process"]
	review.Tasks[1] = runtime.TaskSpec{Name: "approve", Kind: runtime.TaskKindCallActivity, Call: &runtime.CallProperties{ProcessRef: "sign_process"}, Outputs: []string{"sub_end"}}
	wf.SubprocessSpecs["sign_process"] = &runtime.ProcessSpec{
		Name:  "sign_process",
		Start: "sign_start",
		Tasks: []runtime.TaskSpec{
			{Name: "sign_start", Kind: runtime.TaskKindStartEvent, Outputs: []string{"sign"}},
			{Name: "sign", Kind: runtime.TaskKindManualTask, Outputs: []string{"sign_end"}},
			{Name: "sign_end", Kind: runtime.TaskKindEndEvent},
		},
	}
	root := storeModel(t, store, wf)

	children, err := store.FindChildDefinitionIds(t.Context(), root.Id)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	loaded, err := newCache(store).LoadWorkflowSpec(t.Context(), root.Id)
	require.NoError(t, err)
	assert.Contains(t, loaded.SubprocessSpecs, "sign_process")
}

func TestLoadWorkflowSpecKeepsDeferredSubprocess(t *testing.T) {
	store := inmemory.NewStorage()
	wf := approvalWorkflow()
	wf.SubprocessSpecs["review_process"] = nil
	root := storeModel(t, store, wf)

	loaded, err := newCache(store).LoadWorkflowSpec(t.Context(), root.Id)
	require.NoError(t, err)
	sub, deferred, found := loaded.ProcessSpec("review_process")
	assert.Nil(t, sub)
	assert.True(t, deferred)
	assert.True(t, found)

	expected, err := FullProcessModelHash(wf)
	require.NoError(t, err)
	actual, err := FullProcessModelHash(loaded)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func mustHash(t *testing.T, spec runtime.ProcessSpec) string {
	h, err := SingleProcessHash(spec)
	require.NoError(t, err)
	return h
}

func TestDeferredSubprocessIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStorage()
	cache := newCache(store)

	wf := approvalWorkflow()
	wf.SubprocessSpecs["review_process"] = nil

	lookup := NewLookup()
	batch := store.NewBatch()
	_, err := cache.StoreWorkflowSpec(ctx, batch, lookup, wf)
	require.NoError(t, err)
	require.NoError(t, batch.Flush(ctx))

	_, ok := lookup.Process("review_process")
	assert.False(t, ok)
}

func TestLoadWorkflowSpec(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStorage()
	cache := newCache(store)

	wf := approvalWorkflow()
	batch := store.NewBatch()
	root, err := cache.StoreWorkflowSpec(ctx, batch, NewLookup(), wf)
	require.NoError(t, err)
	require.NoError(t, batch.Flush(ctx))

	loaded, err := cache.LoadWorkflowSpec(ctx, root.Id)
	require.NoError(t, err)
	assert.Equal(t, "approval", loaded.Spec.Name)
	require.Contains(t, loaded.SubprocessSpecs, "review_process")
	approve, ok := loaded.SubprocessSpecs["review_process"].Task("approve")
	require.True(t, ok)
	assert.Equal(t, "reviewers", approve.Lane)

	expected, err := FullProcessModelHash(wf)
	require.NoError(t, err)
	actual, err := FullProcessModelHash(loaded)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}
