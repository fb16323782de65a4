// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package processor

import (
	"context"

	"github.com/google/uuid"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

// Engine is the workflow engine the processor drives. Every call on one engine happens while
// the instance lock is held.
type Engine interface {
	Snapshot(mask runtime.TaskState) runtime.WorkflowSnapshot
	DoEngineSteps(ctx context.Context) error
	CompleteTask(id uuid.UUID, data map[string]any) error
	// ResetToTask rewinds the engine and returns the ids of the tasks it discarded.
	ResetToTask(id uuid.UUID) ([]uuid.UUID, error)
	// Cancel stops every unfinished task and returns the ids of the tasks it discarded.
	Cancel() []uuid.UUID
	IsCompleted() bool
}

type EngineFactory interface {
	NewEngine(spec *runtime.WorkflowSpec, data map[string]any) (Engine, error)
	RestoreEngine(snapshot runtime.WorkflowSnapshot) (Engine, error)
}

// EngineFactoryFuncs adapts a pair of constructors returning a concrete engine type.
type EngineFactoryFuncs[E Engine] struct {
	New     func(spec *runtime.WorkflowSpec, data map[string]any) (E, error)
	Restore func(snapshot runtime.WorkflowSnapshot) (E, error)
}

func (f EngineFactoryFuncs[E]) NewEngine(spec *runtime.WorkflowSpec, data map[string]any) (Engine, error) {
	e, err := f.New(spec, data)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (f EngineFactoryFuncs[E]) RestoreEngine(snapshot runtime.WorkflowSnapshot) (Engine, error) {
	e, err := f.Restore(snapshot)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// failedTask is implemented by engine errors bound to one task.
type failedTask interface {
	FailedTaskId() uuid.UUID
}
