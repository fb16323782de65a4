// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"fmt"
	"strings"
)

// TaskState is a bit flag so that tree queries can filter on several states at once.
type TaskState uint16

const (
	TaskStateMaybe TaskState = 1 << iota
	TaskStateLikely
	TaskStateFuture
	TaskStateWaiting
	TaskStateReady
	TaskStateStarted
	TaskStateCompleted
	TaskStateError
	TaskStateCancelled
)

const (
	TaskStatePredictedMask   = TaskStateMaybe | TaskStateLikely
	TaskStateNotFinishedMask = TaskStatePredictedMask | TaskStateFuture | TaskStateWaiting | TaskStateReady | TaskStateStarted
	TaskStateFinishedMask    = TaskStateCompleted | TaskStateError | TaskStateCancelled
	TaskStateDefiniteMask    = TaskStateFuture | TaskStateWaiting | TaskStateReady | TaskStateStarted | TaskStateFinishedMask
	TaskStateAnyMask         = TaskStateNotFinishedMask | TaskStateFinishedMask
)

var taskStateNames = map[TaskState]string{
	TaskStateMaybe:     "MAYBE",
	TaskStateLikely:    "LIKELY",
	TaskStateFuture:    "FUTURE",
	TaskStateWaiting:   "WAITING",
	TaskStateReady:     "READY",
	TaskStateStarted:   "STARTED",
	TaskStateCompleted: "COMPLETED",
	TaskStateError:     "ERROR",
	TaskStateCancelled: "CANCELLED",
}

func (s TaskState) String() string {
	if name, ok := taskStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TaskState(%d)", uint16(s))
}

// Is reports whether s has any of the bits in mask set.
func (s TaskState) Is(mask TaskState) bool {
	return s&mask != 0
}

// IsPredicted reports whether the task is a LIKELY/MAYBE placeholder.
func (s TaskState) IsPredicted() bool {
	return s.Is(TaskStatePredictedMask)
}

// IsFinished reports whether the task reached a terminal state.
func (s TaskState) IsFinished() bool {
	return s.Is(TaskStateFinishedMask)
}

// IsReached reports whether the task became real and ready to run at some point.
func (s TaskState) IsReached() bool {
	return s.Is(TaskStateReady | TaskStateStarted | TaskStateWaiting | TaskStateFinishedMask)
}

// States returns the single states contained in the mask in ascending order.
func (s TaskState) States() []TaskState {
	res := make([]TaskState, 0, len(taskStateNames))
	for state := TaskStateMaybe; state <= TaskStateCancelled; state <<= 1 {
		if s&state != 0 {
			res = append(res, state)
		}
	}
	return res
}

func ParseTaskState(s string) (TaskState, error) {
	upper := strings.ToUpper(s)
	for state, name := range taskStateNames {
		if name == upper {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown task state %q", s)
}

func (s TaskState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TaskState) UnmarshalText(text []byte) error {
	parsed, err := ParseTaskState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
