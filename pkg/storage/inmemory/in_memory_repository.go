package inmemory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
)

type queueEntry struct {
	lockedBy string
	lockedAt time.Time
}

type tables struct {
	BpmnProcessDefinitions map[int64]runtime.BpmnProcessDefinition
	TaskDefinitions        map[int64]runtime.TaskDefinition
	Relationships          map[runtime.BpmnProcessDefinitionRelationship]struct{}
	JsonData               map[string]runtime.JsonData
	ProcessInstances       map[int64]runtime.ProcessInstance
	BpmnProcesses          map[int64]runtime.BpmnProcess
	Tasks                  map[string]runtime.Task
	HumanTasks             map[int64]runtime.HumanTask
	HumanTaskUsers         map[int64]map[int64]runtime.HumanTaskUser
	Users                  map[int64]runtime.User
	Groups                 map[int64]runtime.Group
	GroupMembers           map[int64]map[int64]struct{}
	Events                 map[int64]runtime.ProcessInstanceEvent
	ErrorDetails           map[int64]runtime.ProcessInstanceErrorDetail
}

func newTables() tables {
	return tables{
		BpmnProcessDefinitions: make(map[int64]runtime.BpmnProcessDefinition),
		TaskDefinitions:        make(map[int64]runtime.TaskDefinition),
		Relationships:          make(map[runtime.BpmnProcessDefinitionRelationship]struct{}),
		JsonData:               make(map[string]runtime.JsonData),
		ProcessInstances:       make(map[int64]runtime.ProcessInstance),
		BpmnProcesses:          make(map[int64]runtime.BpmnProcess),
		Tasks:                  make(map[string]runtime.Task),
		HumanTasks:             make(map[int64]runtime.HumanTask),
		HumanTaskUsers:         make(map[int64]map[int64]runtime.HumanTaskUser),
		Users:                  make(map[int64]runtime.User),
		Groups:                 make(map[int64]runtime.Group),
		GroupMembers:           make(map[int64]map[int64]struct{}),
		Events:                 make(map[int64]runtime.ProcessInstanceEvent),
		ErrorDetails:           make(map[int64]runtime.ProcessInstanceErrorDetail),
	}
}

func (t tables) clone() tables {
	c := tables{
		BpmnProcessDefinitions: maps.Clone(t.BpmnProcessDefinitions),
		TaskDefinitions:        maps.Clone(t.TaskDefinitions),
		Relationships:          maps.Clone(t.Relationships),
		JsonData:               maps.Clone(t.JsonData),
		ProcessInstances:       maps.Clone(t.ProcessInstances),
		BpmnProcesses:          maps.Clone(t.BpmnProcesses),
		Tasks:                  maps.Clone(t.Tasks),
		HumanTasks:             maps.Clone(t.HumanTasks),
		HumanTaskUsers:         make(map[int64]map[int64]runtime.HumanTaskUser, len(t.HumanTaskUsers)),
		Users:                  maps.Clone(t.Users),
		Groups:                 maps.Clone(t.Groups),
		GroupMembers:           make(map[int64]map[int64]struct{}, len(t.GroupMembers)),
		Events:                 maps.Clone(t.Events),
		ErrorDetails:           maps.Clone(t.ErrorDetails),
	}
	for k, v := range t.HumanTaskUsers {
		c.HumanTaskUsers[k] = maps.Clone(v)
	}
	for k, v := range t.GroupMembers {
		c.GroupMembers[k] = maps.Clone(v)
	}
	return c
}

// Storage keeps the task model in memory,
// please use NewStorage to create a new object of this type.
type Storage struct {
	mu    sync.RWMutex
	data  tables
	queue map[int64]queueEntry
}

func (mem *Storage) GenerateId() int64 {
	return rand.Int63()
}

func NewStorage() *Storage {
	return &Storage{
		data:  newTables(),
		queue: make(map[int64]queueEntry),
	}
}

var _ storage.Storage = &Storage{}

func (mem *Storage) NewBatch() storage.Batch {
	return &StorageBatch{
		db:        mem,
		stmtToRun: make([]func(d *tables) error, 0, 10),
	}
}

// write runs fn against the tables under the write lock.
func (mem *Storage) write(fn func(d *tables) error) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return fn(&mem.data)
}

var _ storage.DefinitionStorageReader = &Storage{}

func (mem *Storage) FindBpmnProcessDefinitionById(ctx context.Context, id int64) (runtime.BpmnProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.data.BpmnProcessDefinitions[id]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindBpmnProcessDefinitionBySingleHash(ctx context.Context, hash string) (runtime.BpmnProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	for _, def := range mem.data.BpmnProcessDefinitions {
		if def.SingleProcessHash == hash && def.FullProcessModelHash == nil {
			return def, nil
		}
	}
	return runtime.BpmnProcessDefinition{}, storage.ErrNotFound
}

func (mem *Storage) FindBpmnProcessDefinitionByFullHash(ctx context.Context, hash string) (runtime.BpmnProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	for _, def := range mem.data.BpmnProcessDefinitions {
		if def.FullProcessModelHash != nil && *def.FullProcessModelHash == hash {
			return def, nil
		}
	}
	return runtime.BpmnProcessDefinition{}, storage.ErrNotFound
}

func (mem *Storage) FindTaskDefinitions(ctx context.Context, bpmnProcessDefinitionId int64) ([]runtime.TaskDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.TaskDefinition, 0)
	for _, td := range mem.data.TaskDefinitions {
		if td.BpmnProcessDefinitionId == bpmnProcessDefinitionId {
			res = append(res, td)
		}
	}
	slices.SortFunc(res, func(a, b runtime.TaskDefinition) int {
		return strings.Compare(a.BpmnIdentifier, b.BpmnIdentifier)
	})
	return res, nil
}

func (mem *Storage) FindChildDefinitionIds(ctx context.Context, parentId int64) ([]int64, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]int64, 0)
	for rel := range mem.data.Relationships {
		if rel.ParentId == parentId {
			res = append(res, rel.ChildId)
		}
	}
	slices.Sort(res)
	return res, nil
}

var _ storage.DefinitionStorageWriter = &Storage{}

func saveBpmnProcessDefinition(d *tables, definition runtime.BpmnProcessDefinition) error {
	for _, def := range d.BpmnProcessDefinitions {
		switch {
		case definition.FullProcessModelHash == nil && def.FullProcessModelHash == nil && def.SingleProcessHash == definition.SingleProcessHash:
			return nil
		case definition.FullProcessModelHash != nil && def.FullProcessModelHash != nil && *def.FullProcessModelHash == *definition.FullProcessModelHash:
			return nil
		}
	}
	if _, ok := d.BpmnProcessDefinitions[definition.Id]; ok {
		return nil
	}
	d.BpmnProcessDefinitions[definition.Id] = definition
	return nil
}

func (mem *Storage) SaveBpmnProcessDefinition(ctx context.Context, definition runtime.BpmnProcessDefinition) error {
	return mem.write(func(d *tables) error { return saveBpmnProcessDefinition(d, definition) })
}

func saveTaskDefinition(d *tables, definition runtime.TaskDefinition) error {
	if _, ok := d.BpmnProcessDefinitions[definition.BpmnProcessDefinitionId]; !ok {
		return fmt.Errorf("task definition %s references missing process definition %d", definition.BpmnIdentifier, definition.BpmnProcessDefinitionId)
	}
	for _, td := range d.TaskDefinitions {
		if td.BpmnProcessDefinitionId == definition.BpmnProcessDefinitionId && td.BpmnIdentifier == definition.BpmnIdentifier {
			return nil
		}
	}
	if _, ok := d.TaskDefinitions[definition.Id]; ok {
		return nil
	}
	d.TaskDefinitions[definition.Id] = definition
	return nil
}

func (mem *Storage) SaveTaskDefinition(ctx context.Context, definition runtime.TaskDefinition) error {
	return mem.write(func(d *tables) error { return saveTaskDefinition(d, definition) })
}

func saveRelationship(d *tables, relationship runtime.BpmnProcessDefinitionRelationship) error {
	d.Relationships[relationship] = struct{}{}
	return nil
}

func (mem *Storage) SaveBpmnProcessDefinitionRelationship(ctx context.Context, relationship runtime.BpmnProcessDefinitionRelationship) error {
	return mem.write(func(d *tables) error { return saveRelationship(d, relationship) })
}

var _ storage.JsonDataStorageReader = &Storage{}

func (mem *Storage) FindJsonData(ctx context.Context, hash string) (runtime.JsonData, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.data.JsonData[hash]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

var _ storage.JsonDataStorageWriter = &Storage{}

func saveJsonData(d *tables, data runtime.JsonData) error {
	if _, ok := d.JsonData[data.Hash]; ok {
		return nil
	}
	d.JsonData[data.Hash] = runtime.JsonData{Hash: data.Hash, Data: slices.Clone(data.Data)}
	return nil
}

func (mem *Storage) SaveJsonData(ctx context.Context, data runtime.JsonData) error {
	return mem.write(func(d *tables) error { return saveJsonData(d, data) })
}

var _ storage.ProcessInstanceStorageReader = &Storage{}

func (mem *Storage) FindProcessInstanceById(ctx context.Context, id int64) (runtime.ProcessInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.data.ProcessInstances[id]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindProcessInstancesByStatus(ctx context.Context, statuses ...runtime.ProcessInstanceStatus) ([]runtime.ProcessInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.ProcessInstance, 0)
	for _, pi := range mem.data.ProcessInstances {
		if slices.Contains(statuses, pi.Status) {
			res = append(res, pi)
		}
	}
	slices.SortFunc(res, func(a, b runtime.ProcessInstance) int {
		return cmpInt64(a.Id, b.Id)
	})
	return res, nil
}

var _ storage.ProcessInstanceStorageWriter = &Storage{}

func saveProcessInstance(d *tables, instance runtime.ProcessInstance) error {
	if _, ok := d.Users[instance.ProcessInitiatorId]; !ok {
		return fmt.Errorf("process instance %d references missing initiator %d", instance.Id, instance.ProcessInitiatorId)
	}
	d.ProcessInstances[instance.Id] = instance
	return nil
}

func (mem *Storage) SaveProcessInstance(ctx context.Context, instance runtime.ProcessInstance) error {
	return mem.write(func(d *tables) error { return saveProcessInstance(d, instance) })
}

var _ storage.BpmnProcessStorageReader = &Storage{}

func (mem *Storage) FindBpmnProcessById(ctx context.Context, id int64) (runtime.BpmnProcess, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.data.BpmnProcesses[id]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindBpmnProcessesByProcessInstanceId(ctx context.Context, processInstanceId int64) ([]runtime.BpmnProcess, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.BpmnProcess, 0)
	for _, p := range mem.data.BpmnProcesses {
		if p.ProcessInstanceId == processInstanceId {
			res = append(res, p)
		}
	}
	slices.SortFunc(res, func(a, b runtime.BpmnProcess) int {
		return cmpInt64(a.Id, b.Id)
	})
	return res, nil
}

var _ storage.BpmnProcessStorageWriter = &Storage{}

func saveBpmnProcess(d *tables, process runtime.BpmnProcess) error {
	for _, p := range d.BpmnProcesses {
		if p.Guid == process.Guid && p.Id != process.Id {
			return fmt.Errorf("bpmn process with guid %s already exists as %d", process.Guid, p.Id)
		}
	}
	d.BpmnProcesses[process.Id] = process
	return nil
}

func (mem *Storage) SaveBpmnProcess(ctx context.Context, process runtime.BpmnProcess) error {
	return mem.write(func(d *tables) error { return saveBpmnProcess(d, process) })
}

func deleteBpmnProcesses(d *tables, ids ...int64) error {
	for _, id := range ids {
		for _, t := range d.Tasks {
			if t.BpmnProcessId == id {
				return fmt.Errorf("bpmn process %d still owns task %s", id, t.Guid)
			}
		}
		delete(d.BpmnProcesses, id)
	}
	return nil
}

func (mem *Storage) DeleteBpmnProcesses(ctx context.Context, ids ...int64) error {
	return mem.write(func(d *tables) error { return deleteBpmnProcesses(d, ids...) })
}

var _ storage.TaskStorageReader = &Storage{}

func (mem *Storage) FindTaskByGuid(ctx context.Context, guid string) (runtime.Task, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.data.Tasks[guid]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindTasksByProcessInstanceId(ctx context.Context, processInstanceId int64, mask runtime.TaskState) ([]runtime.Task, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.Task, 0)
	for _, t := range mem.data.Tasks {
		if t.ProcessInstanceId == processInstanceId && t.State.Is(mask) {
			res = append(res, t)
		}
	}
	slices.SortFunc(res, func(a, b runtime.Task) int {
		return cmpInt64(a.Id, b.Id)
	})
	return res, nil
}

var _ storage.TaskStorageWriter = &Storage{}

func saveTask(d *tables, task runtime.Task) error {
	if _, ok := d.BpmnProcesses[task.BpmnProcessId]; !ok {
		return fmt.Errorf("task %s references missing bpmn process %d", task.Guid, task.BpmnProcessId)
	}
	if _, ok := d.TaskDefinitions[task.TaskDefinitionId]; !ok {
		return fmt.Errorf("task %s references missing task definition %d", task.Guid, task.TaskDefinitionId)
	}
	if _, ok := d.JsonData[task.JsonDataHash]; !ok {
		return fmt.Errorf("task %s references missing json data %s", task.Guid, task.JsonDataHash)
	}
	if existing, ok := d.Tasks[task.Guid]; ok {
		task.Id = existing.Id
	}
	d.Tasks[task.Guid] = task
	return nil
}

func (mem *Storage) SaveTask(ctx context.Context, task runtime.Task) error {
	return mem.write(func(d *tables) error { return saveTask(d, task) })
}

func deleteTasks(d *tables, guids ...string) error {
	for _, guid := range guids {
		for id, ht := range d.HumanTasks {
			if ht.TaskGuid == guid {
				delete(d.HumanTasks, id)
				delete(d.HumanTaskUsers, id)
			}
		}
		delete(d.Tasks, guid)
	}
	return nil
}

func (mem *Storage) DeleteTasks(ctx context.Context, guids ...string) error {
	return mem.write(func(d *tables) error { return deleteTasks(d, guids...) })
}

var _ storage.HumanTaskStorageReader = &Storage{}

func (mem *Storage) FindOpenHumanTaskByTaskGuid(ctx context.Context, taskGuid string) (runtime.HumanTask, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	for _, ht := range mem.data.HumanTasks {
		if ht.TaskGuid == taskGuid && !ht.Completed {
			return ht, nil
		}
	}
	return runtime.HumanTask{}, storage.ErrNotFound
}

func (mem *Storage) FindHumanTasksByProcessInstanceId(ctx context.Context, processInstanceId int64) ([]runtime.HumanTask, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.HumanTask, 0)
	for _, ht := range mem.data.HumanTasks {
		if ht.ProcessInstanceId == processInstanceId {
			res = append(res, ht)
		}
	}
	slices.SortFunc(res, func(a, b runtime.HumanTask) int {
		return cmpInt64(a.Id, b.Id)
	})
	return res, nil
}

func (mem *Storage) FindOpenHumanTasksByLaneAssignmentId(ctx context.Context, groupId int64) ([]runtime.HumanTask, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.HumanTask, 0)
	for _, ht := range mem.data.HumanTasks {
		if !ht.Completed && ht.LaneAssignmentId != nil && *ht.LaneAssignmentId == groupId {
			res = append(res, ht)
		}
	}
	slices.SortFunc(res, func(a, b runtime.HumanTask) int {
		return cmpInt64(a.Id, b.Id)
	})
	return res, nil
}

func (mem *Storage) FindHumanTaskUsers(ctx context.Context, humanTaskId int64) ([]runtime.HumanTaskUser, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.HumanTaskUser, 0)
	for _, u := range mem.data.HumanTaskUsers[humanTaskId] {
		res = append(res, u)
	}
	slices.SortFunc(res, func(a, b runtime.HumanTaskUser) int {
		return cmpInt64(a.UserId, b.UserId)
	})
	return res, nil
}

var _ storage.HumanTaskStorageWriter = &Storage{}

func saveHumanTask(d *tables, task runtime.HumanTask) error {
	if _, ok := d.Tasks[task.TaskGuid]; !ok {
		return fmt.Errorf("human task %d references missing task %s", task.Id, task.TaskGuid)
	}
	if task.LaneAssignmentId != nil {
		if _, ok := d.Groups[*task.LaneAssignmentId]; !ok {
			return fmt.Errorf("human task %d references missing group %d", task.Id, *task.LaneAssignmentId)
		}
	}
	if !task.Completed {
		for _, ht := range d.HumanTasks {
			if ht.Id != task.Id && ht.TaskGuid == task.TaskGuid && !ht.Completed {
				return fmt.Errorf("task %s already has open human task %d", task.TaskGuid, ht.Id)
			}
		}
	}
	d.HumanTasks[task.Id] = task
	return nil
}

func (mem *Storage) SaveHumanTask(ctx context.Context, task runtime.HumanTask) error {
	return mem.write(func(d *tables) error { return saveHumanTask(d, task) })
}

func saveHumanTaskUser(d *tables, user runtime.HumanTaskUser) error {
	if _, ok := d.HumanTasks[user.HumanTaskId]; !ok {
		return fmt.Errorf("human task user references missing human task %d", user.HumanTaskId)
	}
	if _, ok := d.Users[user.UserId]; !ok {
		return fmt.Errorf("human task user references missing user %d", user.UserId)
	}
	users, ok := d.HumanTaskUsers[user.HumanTaskId]
	if !ok {
		users = make(map[int64]runtime.HumanTaskUser)
		d.HumanTaskUsers[user.HumanTaskId] = users
	}
	if _, ok := users[user.UserId]; !ok {
		users[user.UserId] = user
	}
	return nil
}

func (mem *Storage) SaveHumanTaskUser(ctx context.Context, user runtime.HumanTaskUser) error {
	return mem.write(func(d *tables) error { return saveHumanTaskUser(d, user) })
}

var _ storage.IdentityStorageReader = &Storage{}

func (mem *Storage) FindUserById(ctx context.Context, id int64) (runtime.User, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.data.Users[id]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindUserByUsername(ctx context.Context, username string) (runtime.User, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	for _, u := range mem.data.Users {
		if u.Username == username {
			return u, nil
		}
	}
	return runtime.User{}, storage.ErrNotFound
}

func (mem *Storage) FindGroupByIdentifier(ctx context.Context, identifier string) (runtime.Group, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	for _, g := range mem.data.Groups {
		if g.Identifier == identifier {
			return g, nil
		}
	}
	return runtime.Group{}, storage.ErrNotFound
}

func (mem *Storage) FindGroupMemberIds(ctx context.Context, groupId int64) ([]int64, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := slices.Collect(maps.Keys(mem.data.GroupMembers[groupId]))
	if res == nil {
		res = make([]int64, 0)
	}
	slices.Sort(res)
	return res, nil
}

var _ storage.IdentityStorageWriter = &Storage{}

func (mem *Storage) SaveUser(ctx context.Context, user runtime.User) error {
	return mem.write(func(d *tables) error {
		for _, u := range d.Users {
			if u.Username == user.Username && u.Id != user.Id {
				return fmt.Errorf("user %s already exists", user.Username)
			}
		}
		d.Users[user.Id] = user
		return nil
	})
}

func saveGroup(d *tables, group runtime.Group) error {
	for _, g := range d.Groups {
		if g.Identifier == group.Identifier {
			return nil
		}
	}
	d.Groups[group.Id] = group
	return nil
}

func (mem *Storage) SaveGroup(ctx context.Context, group runtime.Group) error {
	return mem.write(func(d *tables) error { return saveGroup(d, group) })
}

func (mem *Storage) AddUserToGroup(ctx context.Context, userId int64, groupId int64) error {
	return mem.write(func(d *tables) error {
		if _, ok := d.Users[userId]; !ok {
			return fmt.Errorf("user %d: %w", userId, storage.ErrNotFound)
		}
		if _, ok := d.Groups[groupId]; !ok {
			return fmt.Errorf("group %d: %w", groupId, storage.ErrNotFound)
		}
		members, ok := d.GroupMembers[groupId]
		if !ok {
			members = make(map[int64]struct{})
			d.GroupMembers[groupId] = members
		}
		members[userId] = struct{}{}
		return nil
	})
}

var _ storage.EventStorageReader = &Storage{}

func (mem *Storage) FindProcessInstanceEvents(ctx context.Context, processInstanceId int64) ([]runtime.ProcessInstanceEvent, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.ProcessInstanceEvent, 0)
	for _, e := range mem.data.Events {
		if e.ProcessInstanceId == processInstanceId {
			res = append(res, e)
		}
	}
	slices.SortFunc(res, func(a, b runtime.ProcessInstanceEvent) int {
		if a.Timestamp != b.Timestamp {
			if a.Timestamp < b.Timestamp {
				return -1
			}
			return 1
		}
		return cmpInt64(a.Id, b.Id)
	})
	return res, nil
}

func (mem *Storage) FindProcessInstanceErrorDetails(ctx context.Context, eventId int64) ([]runtime.ProcessInstanceErrorDetail, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.ProcessInstanceErrorDetail, 0)
	for _, d := range mem.data.ErrorDetails {
		if d.ProcessInstanceEventId == eventId {
			res = append(res, d)
		}
	}
	slices.SortFunc(res, func(a, b runtime.ProcessInstanceErrorDetail) int {
		return cmpInt64(a.Id, b.Id)
	})
	return res, nil
}

var _ storage.EventStorageWriter = &Storage{}

func saveEvent(d *tables, event runtime.ProcessInstanceEvent) error {
	d.Events[event.Id] = event
	return nil
}

func (mem *Storage) SaveProcessInstanceEvent(ctx context.Context, event runtime.ProcessInstanceEvent) error {
	return mem.write(func(d *tables) error { return saveEvent(d, event) })
}

func saveErrorDetail(d *tables, detail runtime.ProcessInstanceErrorDetail) error {
	if _, ok := d.Events[detail.ProcessInstanceEventId]; !ok {
		return fmt.Errorf("error detail references missing event %d", detail.ProcessInstanceEventId)
	}
	d.ErrorDetails[detail.Id] = detail
	return nil
}

func (mem *Storage) SaveProcessInstanceErrorDetail(ctx context.Context, detail runtime.ProcessInstanceErrorDetail) error {
	return mem.write(func(d *tables) error { return saveErrorDetail(d, detail) })
}

var _ storage.ProcessInstanceQueue = &Storage{}

func (mem *Storage) TryLockProcessInstance(ctx context.Context, processInstanceId int64, lockedBy string, now time.Time, staleBefore time.Time) (bool, error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	entry, ok := mem.queue[processInstanceId]
	if ok && entry.lockedBy != "" && !entry.lockedAt.Before(staleBefore) {
		return false, nil
	}
	mem.queue[processInstanceId] = queueEntry{lockedBy: lockedBy, lockedAt: now}
	return true, nil
}

func (mem *Storage) UnlockProcessInstance(ctx context.Context, processInstanceId int64, lockedBy string) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	entry, ok := mem.queue[processInstanceId]
	if !ok || entry.lockedBy != lockedBy {
		return nil
	}
	delete(mem.queue, processInstanceId)
	return nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

type StorageBatch struct {
	db              *Storage
	stmtToRun       []func(d *tables) error
	postFlushAction []func()
}

var _ storage.Batch = &StorageBatch{}

// Flush applies the collected statements on a copy of the tables and swaps it in only when
// every statement succeeded.
func (b *StorageBatch) Flush(ctx context.Context) error {
	b.db.mu.Lock()
	working := b.db.data.clone()
	var errJoin error
	for _, stmt := range b.stmtToRun {
		if err := stmt(&working); err != nil {
			errJoin = errors.Join(errJoin, err)
			break
		}
	}
	if errJoin == nil {
		b.db.data = working
	}
	b.db.mu.Unlock()
	actions := b.postFlushAction
	b.stmtToRun = make([]func(d *tables) error, 0, 10)
	b.postFlushAction = nil
	if errJoin != nil {
		return errJoin
	}
	for _, action := range actions {
		action()
	}
	return nil
}

func (b *StorageBatch) AddPostFlushAction(ctx context.Context, action func()) {
	b.postFlushAction = append(b.postFlushAction, action)
}

func (b *StorageBatch) add(stmt func(d *tables) error) error {
	b.stmtToRun = append(b.stmtToRun, stmt)
	return nil
}

func (b *StorageBatch) SaveBpmnProcessDefinition(ctx context.Context, definition runtime.BpmnProcessDefinition) error {
	return b.add(func(d *tables) error { return saveBpmnProcessDefinition(d, definition) })
}

func (b *StorageBatch) SaveTaskDefinition(ctx context.Context, definition runtime.TaskDefinition) error {
	return b.add(func(d *tables) error { return saveTaskDefinition(d, definition) })
}

func (b *StorageBatch) SaveBpmnProcessDefinitionRelationship(ctx context.Context, relationship runtime.BpmnProcessDefinitionRelationship) error {
	return b.add(func(d *tables) error { return saveRelationship(d, relationship) })
}

func (b *StorageBatch) SaveJsonData(ctx context.Context, data runtime.JsonData) error {
	return b.add(func(d *tables) error { return saveJsonData(d, data) })
}

func (b *StorageBatch) SaveProcessInstance(ctx context.Context, instance runtime.ProcessInstance) error {
	return b.add(func(d *tables) error { return saveProcessInstance(d, instance) })
}

func (b *StorageBatch) SaveBpmnProcess(ctx context.Context, process runtime.BpmnProcess) error {
	return b.add(func(d *tables) error { return saveBpmnProcess(d, process) })
}

func (b *StorageBatch) DeleteBpmnProcesses(ctx context.Context, ids ...int64) error {
	return b.add(func(d *tables) error { return deleteBpmnProcesses(d, ids...) })
}

func (b *StorageBatch) SaveTask(ctx context.Context, task runtime.Task) error {
	return b.add(func(d *tables) error { return saveTask(d, task) })
}

func (b *StorageBatch) DeleteTasks(ctx context.Context, guids ...string) error {
	return b.add(func(d *tables) error { return deleteTasks(d, guids...) })
}

func (b *StorageBatch) SaveHumanTask(ctx context.Context, task runtime.HumanTask) error {
	return b.add(func(d *tables) error { return saveHumanTask(d, task) })
}

func (b *StorageBatch) SaveHumanTaskUser(ctx context.Context, user runtime.HumanTaskUser) error {
	return b.add(func(d *tables) error { return saveHumanTaskUser(d, user) })
}

func (b *StorageBatch) SaveGroup(ctx context.Context, group runtime.Group) error {
	return b.add(func(d *tables) error { return saveGroup(d, group) })
}

func (b *StorageBatch) SaveProcessInstanceEvent(ctx context.Context, event runtime.ProcessInstanceEvent) error {
	return b.add(func(d *tables) error { return saveEvent(d, event) })
}

func (b *StorageBatch) SaveProcessInstanceErrorDetail(ctx context.Context, detail runtime.ProcessInstanceErrorDetail) error {
	return b.add(func(d *tables) error { return saveErrorDetail(d, detail) })
}
