// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package processor

import (
	"context"
	"sync"
)

type runningInstance struct {
	sem  chan struct{}
	refs int
}

// runningInstances serializes workers of one processor before they compete for the stored
// instance lock.
type runningInstances struct {
	instances map[int64]*runningInstance
	mu        sync.Mutex
}

func newRunningInstances() *runningInstances {
	return &runningInstances{instances: make(map[int64]*runningInstance)}
}

func (c *runningInstances) lock(ctx context.Context, processInstanceId int64) error {
	c.mu.Lock()
	ins, ok := c.instances[processInstanceId]
	if !ok {
		ins = &runningInstance{sem: make(chan struct{}, 1)}
		c.instances[processInstanceId] = ins
	}
	ins.refs++
	c.mu.Unlock()

	select {
	case ins.sem <- struct{}{}:
		return nil
	default:
	}
	select {
	case ins.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		c.release(processInstanceId, ins)
		return ctx.Err()
	}
}

func (c *runningInstances) unlock(processInstanceId int64) {
	c.mu.Lock()
	ins := c.instances[processInstanceId]
	c.mu.Unlock()
	<-ins.sem
	c.release(processInstanceId, ins)
}

func (c *runningInstances) release(processInstanceId int64, ins *runningInstance) {
	c.mu.Lock()
	ins.refs--
	if ins.refs == 0 {
		delete(c.instances, processInstanceId)
	}
	c.mu.Unlock()
}
