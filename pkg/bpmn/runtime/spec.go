// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// SerializerVersion is mixed into the full process model hash so that a change in the
// persisted spec layout produces new definition rows instead of matching old ones.
const SerializerVersion = "1"

type TaskKind string

const (
	TaskKindStartEvent       TaskKind = "StartEvent"
	TaskKindEndEvent         TaskKind = "EndEvent"
	TaskKindNoneTask         TaskKind = "NoneTask"
	TaskKindScriptTask       TaskKind = "ScriptTask"
	TaskKindManualTask       TaskKind = "ManualTask"
	TaskKindUserTask         TaskKind = "UserTask"
	TaskKindCallActivity     TaskKind = "CallActivity"
	TaskKindSubWorkflowTask  TaskKind = "SubWorkflowTask"
	TaskKindExclusiveGateway TaskKind = "ExclusiveGateway"
)

// IsManual reports whether a person has to act on tasks of this kind.
func (k TaskKind) IsManual() bool {
	return k == TaskKindManualTask || k == TaskKindUserTask
}

// SpawnsSubprocess reports whether tasks of this kind run a nested bpmn process.
func (k TaskKind) SpawnsSubprocess() bool {
	return k == TaskKindCallActivity || k == TaskKindSubWorkflowTask
}

type ScriptProperties struct {
	Script string `yaml:"script" json:"script"`
}

type CallProperties struct {
	ProcessRef string `yaml:"processRef" json:"process_ref"`
}

type ConditionalFlow struct {
	Target    string `yaml:"target" json:"target"`
	Condition string `yaml:"condition" json:"condition"`
}

type GatewayProperties struct {
	Conditions []ConditionalFlow `yaml:"conditions" json:"conditions"`
	Default    string            `yaml:"default,omitempty" json:"default,omitempty"`
}

type MultiInstanceProperties struct {
	// Collection names the task data variable holding the list to iterate over.
	Collection      string `yaml:"collection" json:"collection"`
	ElementVariable string `yaml:"elementVariable,omitempty" json:"element_variable,omitempty"`
	Sequential      bool   `yaml:"sequential,omitempty" json:"sequential,omitempty"`
}

// TaskSpec is the static description of one node of a process.
// Kind selects which of the optional property blocks applies; Extensions carries
// modeler-defined fields that the core never interprets.
type TaskSpec struct {
	Name          string                   `yaml:"name" json:"name"`
	Description   string                   `yaml:"description,omitempty" json:"description,omitempty"`
	Kind          TaskKind                 `yaml:"kind" json:"typename"`
	Lane          string                   `yaml:"lane,omitempty" json:"lane,omitempty"`
	Outputs       []string                 `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Script        *ScriptProperties        `yaml:"script,omitempty" json:"script,omitempty"`
	Call          *CallProperties          `yaml:"call,omitempty" json:"call,omitempty"`
	Gateway       *GatewayProperties       `yaml:"gateway,omitempty" json:"gateway,omitempty"`
	MultiInstance *MultiInstanceProperties `yaml:"multiInstance,omitempty" json:"multi_instance,omitempty"`
	Extensions    map[string]any           `yaml:"extensions,omitempty" json:"extensions,omitempty"`
}

func (t *TaskSpec) DisplayName() string {
	if t.Description != "" {
		return t.Description
	}
	return t.Name
}

func (t *TaskSpec) Validate() error {
	if t.Name == "" {
		return errors.New("task spec without name")
	}
	switch t.Kind {
	case TaskKindStartEvent, TaskKindEndEvent, TaskKindNoneTask, TaskKindManualTask, TaskKindUserTask:
	case TaskKindScriptTask:
		if t.Script == nil {
			return fmt.Errorf("script task %s has no script", t.Name)
		}
	case TaskKindCallActivity, TaskKindSubWorkflowTask:
		if t.Call == nil || t.Call.ProcessRef == "" {
			return fmt.Errorf("%s %s has no process reference", t.Kind, t.Name)
		}
	case TaskKindExclusiveGateway:
		if t.Gateway == nil {
			return fmt.Errorf("gateway %s has no conditions", t.Name)
		}
	default:
		return fmt.Errorf("task %s has unsupported kind %q", t.Name, t.Kind)
	}
	if t.MultiInstance != nil && t.MultiInstance.Collection == "" {
		return fmt.Errorf("multi-instance task %s has no collection", t.Name)
	}
	return nil
}

// ProcessSpec describes a single process or sub-process.
type ProcessSpec struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Start       string     `yaml:"start" json:"start"`
	Tasks       []TaskSpec `yaml:"tasks" json:"task_specs,omitempty"`
}

func (p *ProcessSpec) Task(name string) (*TaskSpec, bool) {
	for i := range p.Tasks {
		if p.Tasks[i].Name == name {
			return &p.Tasks[i], true
		}
	}
	return nil, false
}

// WithoutTasks returns a copy of the process spec with the task specs stripped. Task
// specs are persisted as their own rows.
func (p *ProcessSpec) WithoutTasks() ProcessSpec {
	return ProcessSpec{
		Name:        p.Name,
		Description: p.Description,
		Start:       p.Start,
	}
}

func (p *ProcessSpec) Validate() error {
	if p.Name == "" {
		return errors.New("process spec without name")
	}
	if _, ok := p.Task(p.Start); !ok {
		return fmt.Errorf("process %s: start task %q not found", p.Name, p.Start)
	}
	var errJoin error
	for i := range p.Tasks {
		task := &p.Tasks[i]
		errJoin = errors.Join(errJoin, task.Validate())
		for _, out := range task.Outputs {
			if _, ok := p.Task(out); !ok {
				errJoin = errors.Join(errJoin, fmt.Errorf("process %s: task %s points to unknown task %q", p.Name, task.Name, out))
			}
		}
	}
	return errJoin
}

// WorkflowSpec is the full definition graph of a process model: the root process and
// every process reachable through call activities. A nil entry in SubprocessSpecs marks a
// sub-process whose spec has not been loaded yet.
type WorkflowSpec struct {
	Spec              ProcessSpec             `yaml:"spec" json:"spec"`
	SubprocessSpecs   map[string]*ProcessSpec `yaml:"subprocessSpecs,omitempty" json:"subprocess_specs"`
	SerializerVersion string                  `yaml:"-" json:"serializer_version"`
}

// ProcessSpec returns the spec for the named process. deferred is true when the
// process is known but its spec is not available yet.
func (w *WorkflowSpec) ProcessSpec(name string) (spec *ProcessSpec, deferred bool, found bool) {
	if w.Spec.Name == name {
		return &w.Spec, false, true
	}
	sub, ok := w.SubprocessSpecs[name]
	if !ok {
		return nil, false, false
	}
	if sub == nil {
		return nil, true, true
	}
	return sub, false, true
}

func (w *WorkflowSpec) Validate() error {
	errJoin := w.Spec.Validate()
	for name, sub := range w.SubprocessSpecs {
		if sub == nil {
			continue
		}
		if sub.Name != name {
			errJoin = errors.Join(errJoin, fmt.Errorf("subprocess spec registered as %s is named %s", name, sub.Name))
		}
		errJoin = errors.Join(errJoin, sub.Validate())
	}
	return errJoin
}

// LoadWorkflowSpec reads a workflow spec from its YAML form.
func LoadWorkflowSpec(r io.Reader) (*WorkflowSpec, error) {
	var spec WorkflowSpec
	if err := yaml.NewDecoder(r).Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to decode workflow spec: %w", err)
	}
	spec.SerializerVersion = SerializerVersion
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow spec: %w", err)
	}
	return &spec, nil
}
