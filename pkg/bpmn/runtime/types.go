// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"encoding/json"
	"math"
	"time"
)

type BpmnProcessDefinition struct {
	Id                   int64
	BpmnIdentifier       string
	BpmnName             string
	SingleProcessHash    string
	FullProcessModelHash *string
	Properties           []byte // ProcessSpec without task specs
	CreatedAt            time.Time
}

// ProcessSpec rebuilds the process spec from the stored properties and the task definitions.
func (d BpmnProcessDefinition) ProcessSpec(tasks []TaskDefinition) (ProcessSpec, error) {
	var spec ProcessSpec
	if err := json.Unmarshal(d.Properties, &spec); err != nil {
		return spec, err
	}
	spec.Tasks = make([]TaskSpec, 0, len(tasks))
	for _, td := range tasks {
		ts, err := td.TaskSpec()
		if err != nil {
			return spec, err
		}
		spec.Tasks = append(spec.Tasks, ts)
	}
	return spec, nil
}

type BpmnProcessDefinitionRelationship struct {
	ParentId int64
	ChildId  int64
}

type TaskDefinition struct {
	Id                      int64
	BpmnProcessDefinitionId int64
	BpmnIdentifier          string
	BpmnName                string
	Typename                string
	Properties              []byte // TaskSpec
}

func (d TaskDefinition) TaskSpec() (TaskSpec, error) {
	var spec TaskSpec
	err := json.Unmarshal(d.Properties, &spec)
	return spec, err
}

type JsonData struct {
	Hash string
	Data []byte
}

// BpmnProcess is the runtime record of a process or sub-process. The top level process
// of an instance points to itself through TopLevelProcessId.
type BpmnProcess struct {
	Id                      int64
	Guid                    string
	BpmnProcessDefinitionId int64
	ProcessInstanceId       int64
	TopLevelProcessId       int64
	DirectParentProcessId   *int64
	JsonDataHash            string
	Properties              []byte
}

func (p BpmnProcess) IsTopLevel() bool {
	return p.DirectParentProcessId == nil
}

type Task struct {
	Id                int64
	Guid              string
	BpmnProcessId     int64
	ProcessInstanceId int64
	TaskDefinitionId  int64
	State             TaskState
	Properties        []byte // TaskProperties
	JsonDataHash      string
	StartInSeconds    *float64
	EndInSeconds      *float64
}

func (t Task) TaskProperties() (TaskProperties, error) {
	var props TaskProperties
	err := json.Unmarshal(t.Properties, &props)
	return props, err
}

const (
	InternalInstanceMarker  = "instance"
	InternalIterationMarker = "iteration"
)

// TaskProperties is the structural blob kept next to every task record.
type TaskProperties struct {
	Parent          *string        `json:"parent"`
	Children        []string       `json:"children"`
	TaskSpec        string         `json:"task_spec"`
	LastStateChange float64        `json:"last_state_change"`
	InternalData    map[string]any `json:"internal_data,omitempty"`
}

// IsRepetition reports whether the task is one instance or iteration of a
// multi-instance or loop task.
func (p TaskProperties) IsRepetition() bool {
	if p.InternalData == nil {
		return false
	}
	_, instance := p.InternalData[InternalInstanceMarker]
	_, iteration := p.InternalData[InternalIterationMarker]
	return instance || iteration
}

type ProcessInstanceStatus string

const (
	ProcessInstanceStatusNotStarted        ProcessInstanceStatus = "not_started"
	ProcessInstanceStatusRunning           ProcessInstanceStatus = "running"
	ProcessInstanceStatusUserInputRequired ProcessInstanceStatus = "user_input_required"
	ProcessInstanceStatusWaiting           ProcessInstanceStatus = "waiting"
	ProcessInstanceStatusComplete          ProcessInstanceStatus = "complete"
	ProcessInstanceStatusError             ProcessInstanceStatus = "error"
	ProcessInstanceStatusSuspended         ProcessInstanceStatus = "suspended"
	ProcessInstanceStatusTerminated        ProcessInstanceStatus = "terminated"
)

// IsActive reports whether background runners may advance an instance in this status.
func (s ProcessInstanceStatus) IsActive() bool {
	switch s {
	case ProcessInstanceStatusComplete, ProcessInstanceStatusError, ProcessInstanceStatusSuspended, ProcessInstanceStatusTerminated:
		return false
	}
	return true
}

type ProcessInstance struct {
	Id                      int64
	ProcessModelIdentifier  string
	ProcessInitiatorId      int64
	BpmnProcessDefinitionId *int64
	BpmnProcessId           *int64
	Status                  ProcessInstanceStatus
	StartInSeconds          *float64
	EndInSeconds            *float64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

type HumanTask struct {
	Id                    int64
	ProcessInstanceId     int64
	TaskGuid              string
	TaskName              string
	TaskTitle             string
	TaskType              string
	TaskStatus            string
	LaneName              *string
	LaneAssignmentId      *int64
	BpmnProcessIdentifier string
	Completed             bool
	CompletedByUserId     *int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type HumanTaskUserAddedBy string

const (
	HumanTaskUserAddedByProcessInitiator HumanTaskUserAddedBy = "process_initiator"
	HumanTaskUserAddedByLaneAssignment   HumanTaskUserAddedBy = "lane_assignment"
	HumanTaskUserAddedByLaneOwner        HumanTaskUserAddedBy = "lane_owner"
	HumanTaskUserAddedByAssignee         HumanTaskUserAddedBy = "assignee"
)

type HumanTaskUser struct {
	HumanTaskId int64
	UserId      int64
	AddedBy     HumanTaskUserAddedBy
}

type User struct {
	Id          int64
	Username    string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

type Group struct {
	Id         int64
	Identifier string
	Name       string
}

type ProcessInstanceEventType string

const (
	EventTypeProcessInstanceCreated    ProcessInstanceEventType = "process_instance_created"
	EventTypeProcessInstanceCompleted  ProcessInstanceEventType = "process_instance_completed"
	EventTypeProcessInstanceError      ProcessInstanceEventType = "process_instance_error"
	EventTypeProcessInstanceSuspended  ProcessInstanceEventType = "process_instance_suspended"
	EventTypeProcessInstanceResumed    ProcessInstanceEventType = "process_instance_resumed"
	EventTypeProcessInstanceTerminated ProcessInstanceEventType = "process_instance_terminated"
	EventTypeProcessInstanceRewound    ProcessInstanceEventType = "process_instance_rewound_to_task"
	EventTypeProcessInstanceMigrated   ProcessInstanceEventType = "process_instance_migrated"
	EventTypeTaskCompleted             ProcessInstanceEventType = "task_completed"
	EventTypeTaskFailed                ProcessInstanceEventType = "task_failed"
	EventTypeTaskSkipped               ProcessInstanceEventType = "task_skipped"
	EventTypeTaskCancelled             ProcessInstanceEventType = "task_cancelled"
)

type ProcessInstanceEvent struct {
	Id                int64
	ProcessInstanceId int64
	TaskGuid          *string
	EventType         ProcessInstanceEventType
	UserId            *int64
	Timestamp         float64
}

type ProcessInstanceErrorDetail struct {
	Id                     int64
	ProcessInstanceEventId int64
	Message                string
	Stacktrace             string
}

// ToSeconds converts t to the fractional unix seconds used by the timestamp columns.
func ToSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// FromSeconds is the inverse of ToSeconds.
func FromSeconds(seconds float64) time.Time {
	return time.UnixMicro(int64(math.Round(seconds * 1e6)))
}
