// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package definition stores process and task definitions addressed by the hash of their content.
//
// A process spec is persisted once per unique hash as a BpmnProcessDefinition row holding the
// spec without its tasks plus one TaskDefinition row per task. Instances running the same model
// share the rows.
//
// Sub-process definitions are shared by single process hash. A root definition is keyed by the
// hash of the whole model instead and relates to every sub-process of that model, so the graph
// of an instance can be rebuilt from its root row alone.
package definition

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
)

type Cache struct {
	store  storage.DefinitionStorageReader
	byHash *expirable.LRU[string, runtime.BpmnProcessDefinition]
	logger hclog.Logger
}

func NewCache(store storage.DefinitionStorageReader, size int, ttl time.Duration, logger hclog.Logger) *Cache {
	return &Cache{
		store:  store,
		byHash: expirable.NewLRU[string, runtime.BpmnProcessDefinition](size, nil, ttl),
		logger: logger,
	}
}

// Lookup is the table filled while storing the definitions of one pass. It resolves
// process and task identifiers to their stored definitions.
type Lookup struct {
	processes map[string]runtime.BpmnProcessDefinition
	tasks     map[string]map[string]runtime.TaskDefinition
}

func NewLookup() *Lookup {
	return &Lookup{
		processes: make(map[string]runtime.BpmnProcessDefinition),
		tasks:     make(map[string]map[string]runtime.TaskDefinition),
	}
}

func (l *Lookup) Process(processIdentifier string) (runtime.BpmnProcessDefinition, bool) {
	def, ok := l.processes[processIdentifier]
	return def, ok
}

func (l *Lookup) TaskDefinition(processIdentifier string, taskIdentifier string) (runtime.TaskDefinition, bool) {
	td, ok := l.tasks[processIdentifier][taskIdentifier]
	return td, ok
}

// TaskDefinitions returns the task definitions of the process keyed by task identifier.
func (l *Lookup) TaskDefinitions(processIdentifier string) map[string]runtime.TaskDefinition {
	return l.tasks[processIdentifier]
}

func (l *Lookup) put(def runtime.BpmnProcessDefinition, tasks []runtime.TaskDefinition) {
	l.processes[def.BpmnIdentifier] = def
	byName := make(map[string]runtime.TaskDefinition, len(tasks))
	for _, td := range tasks {
		byName[td.BpmnIdentifier] = td
	}
	l.tasks[def.BpmnIdentifier] = byName
}

// normalized returns a copy of spec with tasks ordered by name so that the order in which a
// modeler listed the tasks does not change the hash.
func normalized(spec runtime.ProcessSpec) runtime.ProcessSpec {
	spec.Tasks = slices.Clone(spec.Tasks)
	slices.SortFunc(spec.Tasks, func(a, b runtime.TaskSpec) int {
		return strings.Compare(a.Name, b.Name)
	})
	return spec
}

func SingleProcessHash(spec runtime.ProcessSpec) (string, error) {
	hash, _, err := runtime.ContentHash(normalized(spec))
	if err != nil {
		return "", fmt.Errorf("failed to hash process spec %s: %w", spec.Name, err)
	}
	return hash, nil
}

// FullProcessModelHash covers the root spec, every sub-process spec and the serializer version.
func FullProcessModelHash(wf *runtime.WorkflowSpec) (string, error) {
	full := runtime.WorkflowSpec{
		Spec:              normalized(wf.Spec),
		SubprocessSpecs:   make(map[string]*runtime.ProcessSpec, len(wf.SubprocessSpecs)),
		SerializerVersion: runtime.SerializerVersion,
	}
	for name, sub := range wf.SubprocessSpecs {
		if sub == nil {
			full.SubprocessSpecs[name] = nil
			continue
		}
		n := normalized(*sub)
		full.SubprocessSpecs[name] = &n
	}
	hash, _, err := runtime.ContentHash(full)
	if err != nil {
		return "", fmt.Errorf("failed to hash workflow spec %s: %w", wf.Spec.Name, err)
	}
	return hash, nil
}

func fullHashKey(hash string) string {
	return "full:" + hash
}

func (c *Cache) findByHash(ctx context.Context, hash string, full bool) (runtime.BpmnProcessDefinition, error) {
	key := hash
	if full {
		key = fullHashKey(hash)
	}
	if def, ok := c.byHash.Get(key); ok {
		return def, nil
	}
	var def runtime.BpmnProcessDefinition
	var err error
	if full {
		def, err = c.store.FindBpmnProcessDefinitionByFullHash(ctx, hash)
	} else {
		def, err = c.store.FindBpmnProcessDefinitionBySingleHash(ctx, hash)
	}
	if err != nil {
		return def, err
	}
	c.byHash.Add(key, def)
	return def, nil
}

// StoreDefinition finds or stages the definition of spec and records it in lookup. parent,
// when given, gets a relationship row to the definition. full is passed for the root process
// only, the root is then found or created by the full model hash.
func (c *Cache) StoreDefinition(ctx context.Context, batch storage.Batch, lookup *Lookup, spec runtime.ProcessSpec, parent *runtime.BpmnProcessDefinition, full *runtime.WorkflowSpec) (runtime.BpmnProcessDefinition, error) {
	def, ok := lookup.Process(spec.Name)
	if !ok {
		var err error
		def, err = c.findOrStage(ctx, batch, lookup, spec, full)
		if err != nil {
			return def, err
		}
	}
	if parent != nil && parent.Id != def.Id {
		err := batch.SaveBpmnProcessDefinitionRelationship(ctx, runtime.BpmnProcessDefinitionRelationship{
			ParentId: parent.Id,
			ChildId:  def.Id,
		})
		if err != nil {
			return def, fmt.Errorf("failed to stage definition relationship: %w", err)
		}
	}
	return def, nil
}

func (c *Cache) findOrStage(ctx context.Context, batch storage.Batch, lookup *Lookup, spec runtime.ProcessSpec, full *runtime.WorkflowSpec) (runtime.BpmnProcessDefinition, error) {
	singleHash, err := SingleProcessHash(spec)
	if err != nil {
		return runtime.BpmnProcessDefinition{}, err
	}
	if full != nil {
		fullHash, err := FullProcessModelHash(full)
		if err != nil {
			return runtime.BpmnProcessDefinition{}, err
		}
		def, err := c.findByHash(ctx, fullHash, true)
		if err == nil {
			return def, c.loadTasks(ctx, lookup, def)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return def, err
		}
		return c.stage(ctx, batch, lookup, spec, singleHash, &fullHash)
	}
	def, err := c.findByHash(ctx, singleHash, false)
	if err == nil {
		return def, c.loadTasks(ctx, lookup, def)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return def, err
	}
	return c.stage(ctx, batch, lookup, spec, singleHash, nil)
}

func (c *Cache) loadTasks(ctx context.Context, lookup *Lookup, def runtime.BpmnProcessDefinition) error {
	tasks, err := c.store.FindTaskDefinitions(ctx, def.Id)
	if err != nil {
		return fmt.Errorf("failed to load task definitions of %s: %w", def.BpmnIdentifier, err)
	}
	lookup.put(def, tasks)
	return nil
}

func (c *Cache) stage(ctx context.Context, batch storage.Batch, lookup *Lookup, spec runtime.ProcessSpec, singleHash string, fullHash *string) (runtime.BpmnProcessDefinition, error) {
	properties, err := runtime.CanonicalJSON(spec.WithoutTasks())
	if err != nil {
		return runtime.BpmnProcessDefinition{}, fmt.Errorf("failed to serialize process spec %s: %w", spec.Name, err)
	}
	name := spec.Description
	if name == "" {
		name = spec.Name
	}
	identity := singleHash
	if fullHash != nil {
		identity = *fullHash
	}
	def := runtime.BpmnProcessDefinition{
		Id:                   runtime.IdFromHash(identity),
		BpmnIdentifier:       spec.Name,
		BpmnName:             name,
		SingleProcessHash:    singleHash,
		FullProcessModelHash: fullHash,
		Properties:           properties,
		CreatedAt:            time.Now(),
	}
	if err := batch.SaveBpmnProcessDefinition(ctx, def); err != nil {
		return def, fmt.Errorf("failed to stage process definition %s: %w", spec.Name, err)
	}

	sorted := normalized(spec)
	tasks := make([]runtime.TaskDefinition, 0, len(sorted.Tasks))
	for i := range sorted.Tasks {
		ts := &sorted.Tasks[i]
		props, err := runtime.CanonicalJSON(ts)
		if err != nil {
			return def, fmt.Errorf("failed to serialize task spec %s: %w", ts.Name, err)
		}
		td := runtime.TaskDefinition{
			Id:                      runtime.IdFromHash(identity + "/" + ts.Name),
			BpmnProcessDefinitionId: def.Id,
			BpmnIdentifier:          ts.Name,
			BpmnName:                ts.DisplayName(),
			Typename:                string(ts.Kind),
			Properties:              props,
		}
		if err := batch.SaveTaskDefinition(ctx, td); err != nil {
			return def, fmt.Errorf("failed to stage task definition %s: %w", ts.Name, err)
		}
		tasks = append(tasks, td)
	}
	lookup.put(def, tasks)

	batch.AddPostFlushAction(ctx, func() {
		if fullHash != nil {
			c.byHash.Add(fullHashKey(*fullHash), def)
			return
		}
		c.byHash.Add(singleHash, def)
	})
	c.logger.Debug("Staged process definition", "process", spec.Name, "hash", identity, "tasks", len(tasks))
	return def, nil
}

// StoreWorkflowSpec stores the root spec and every sub-process reachable from it through call
// activities. Sub-processes whose spec is deferred are skipped and picked up by a later call.
func (c *Cache) StoreWorkflowSpec(ctx context.Context, batch storage.Batch, lookup *Lookup, wf *runtime.WorkflowSpec) (runtime.BpmnProcessDefinition, error) {
	root, err := c.StoreDefinition(ctx, batch, lookup, wf.Spec, nil, wf)
	if err != nil {
		return root, err
	}
	type pending struct {
		spec   *runtime.ProcessSpec
		parent runtime.BpmnProcessDefinition
	}
	queue := []pending{{spec: &wf.Spec, parent: root}}
	visited := map[string]bool{wf.Spec.Name: true}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, ts := range current.spec.Tasks {
			if !ts.Kind.SpawnsSubprocess() || ts.Call == nil {
				continue
			}
			ref := ts.Call.ProcessRef
			sub, deferred, found := wf.ProcessSpec(ref)
			if !found {
				return root, fmt.Errorf("task %s calls unknown process %s", ts.Name, ref)
			}
			if deferred {
				c.logger.Debug("Skipping deferred subprocess spec", "process", ref)
				continue
			}
			def, err := c.StoreDefinition(ctx, batch, lookup, *sub, &current.parent, nil)
			if err != nil {
				return root, err
			}
			if current.parent.Id != root.Id && def.Id != root.Id {
				err = batch.SaveBpmnProcessDefinitionRelationship(ctx, runtime.BpmnProcessDefinitionRelationship{
					ParentId: root.Id,
					ChildId:  def.Id,
				})
				if err != nil {
					return root, fmt.Errorf("failed to stage definition relationship: %w", err)
				}
			}
			if !visited[ref] {
				visited[ref] = true
				queue = append(queue, pending{spec: sub, parent: def})
			}
		}
	}
	return root, nil
}

// LoadWorkflowSpec rebuilds the workflow spec of a root definition from storage. The root
// relates to every stored sub-process of its model. Call targets without a stored definition
// come back as deferred.
func (c *Cache) LoadWorkflowSpec(ctx context.Context, rootDefinitionId int64) (*runtime.WorkflowSpec, error) {
	root, err := c.loadProcessSpec(ctx, rootDefinitionId)
	if err != nil {
		return nil, err
	}
	wf := &runtime.WorkflowSpec{
		Spec:              root,
		SubprocessSpecs:   make(map[string]*runtime.ProcessSpec),
		SerializerVersion: runtime.SerializerVersion,
	}
	children, err := c.store.FindChildDefinitionIds(ctx, rootDefinitionId)
	if err != nil {
		return nil, fmt.Errorf("failed to load child definitions of %d: %w", rootDefinitionId, err)
	}
	for _, childId := range children {
		if childId == rootDefinitionId {
			continue
		}
		spec, err := c.loadProcessSpec(ctx, childId)
		if err != nil {
			return nil, err
		}
		if _, dup := wf.SubprocessSpecs[spec.Name]; dup {
			return nil, fmt.Errorf("definition %d relates to more than one process named %s", rootDefinitionId, spec.Name)
		}
		wf.SubprocessSpecs[spec.Name] = &spec
	}
	markDeferred(wf, &wf.Spec)
	for _, sub := range wf.SubprocessSpecs {
		if sub != nil {
			markDeferred(wf, sub)
		}
	}
	return wf, nil
}

func markDeferred(wf *runtime.WorkflowSpec, spec *runtime.ProcessSpec) {
	for _, ts := range spec.Tasks {
		if !ts.Kind.SpawnsSubprocess() || ts.Call == nil || ts.Call.ProcessRef == wf.Spec.Name {
			continue
		}
		if _, ok := wf.SubprocessSpecs[ts.Call.ProcessRef]; !ok {
			wf.SubprocessSpecs[ts.Call.ProcessRef] = nil
		}
	}
}

func (c *Cache) loadProcessSpec(ctx context.Context, definitionId int64) (runtime.ProcessSpec, error) {
	def, err := c.store.FindBpmnProcessDefinitionById(ctx, definitionId)
	if err != nil {
		return runtime.ProcessSpec{}, fmt.Errorf("failed to load process definition %d: %w", definitionId, err)
	}
	tasks, err := c.store.FindTaskDefinitions(ctx, definitionId)
	if err != nil {
		return runtime.ProcessSpec{}, fmt.Errorf("failed to load task definitions of %d: %w", definitionId, err)
	}
	spec, err := def.ProcessSpec(tasks)
	if err != nil {
		return spec, fmt.Errorf("failed to decode process definition %d: %w", definitionId, err)
	}
	return spec, nil
}
