package script

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RunnerPool keeps between min and max runners. Runners are expensive to create (a fresh vm
// each) and are not safe for concurrent use, a runner is handed to one caller at a time.
type RunnerPool[R any] struct {
	pool          chan R
	newRunner     func() R
	activeCount   int
	activeMu      sync.Mutex
	maxSize       int
	minSize       int
	cleanupPeriod time.Duration
}

const defaultCleanupPeriod = 10 * time.Minute

func NewRunnerPool[R any](ctx context.Context, newRunner func() R, maxSize int, minSize int) (*RunnerPool[R], error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("runner pool max size must be positive, got %d", maxSize)
	}
	if maxSize < minSize {
		return nil, fmt.Errorf("runner pool min size %d is greater than max size %d", minSize, maxSize)
	}

	p := &RunnerPool[R]{
		pool:          make(chan R, maxSize),
		newRunner:     newRunner,
		maxSize:       maxSize,
		minSize:       minSize,
		cleanupPeriod: defaultCleanupPeriod,
	}
	for i := 0; i < minSize; i++ {
		p.pool <- newRunner()
		p.activeCount++
	}

	// idle runners above the minimum are dropped periodically
	go func() {
		ticker := time.NewTicker(p.cleanupPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.shrink()
			case <-ctx.Done():
				return
			}
		}
	}()
	return p, nil
}

func (p *RunnerPool[R]) shrink() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for p.activeCount > p.minSize {
		select {
		case <-p.pool:
			p.activeCount--
		default:
			return
		}
	}
}

// Get hands out an idle runner, creates one while below the maximum, otherwise waits
// until a runner is returned or ctx is done.
func (p *RunnerPool[R]) Get(ctx context.Context) (R, error) {
	select {
	case r := <-p.pool:
		return r, nil
	default:
	}

	p.activeMu.Lock()
	if p.activeCount < p.maxSize {
		p.activeCount++
		p.activeMu.Unlock()
		return p.newRunner(), nil
	}
	p.activeMu.Unlock()

	select {
	case r := <-p.pool:
		return r, nil
	case <-ctx.Done():
		var zero R
		return zero, fmt.Errorf("waiting for script runner: %w", ctx.Err())
	}
}

// Put returns the runner to the pool.
func (p *RunnerPool[R]) Put(r R) {
	select {
	case p.pool <- r:
	default:
		p.activeMu.Lock()
		p.activeCount--
		p.activeMu.Unlock()
	}
}

// Discard forgets a runner that must not be reused, for example after an interrupted run.
func (p *RunnerPool[R]) Discard() {
	p.activeMu.Lock()
	p.activeCount--
	p.activeMu.Unlock()
}

func (p *RunnerPool[R]) Active() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return p.activeCount
}
