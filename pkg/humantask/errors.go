// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package humantask

import "fmt"

// NoPotentialOwnersForTaskError is returned when the lane of a manual task resolves to nobody.
type NoPotentialOwnersForTaskError struct {
	TaskGuid string
	TaskName string
	Lane     string
	Reason   string
}

func (e *NoPotentialOwnersForTaskError) Error() string {
	return fmt.Sprintf("no potential owners for task %s (%s) in lane %q: %s", e.TaskName, e.TaskGuid, e.Lane, e.Reason)
}
