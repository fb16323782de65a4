package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	id int
}

func newCountingFactory() (func() *counter, *int) {
	created := 0
	return func() *counter {
		created++
		return &counter{id: created}
	}, &created
}

func TestPoolStartsWithMinRunners(t *testing.T) {
	factory, created := newCountingFactory()
	pool, err := NewRunnerPool(t.Context(), factory, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, *created)
	assert.Equal(t, 2, pool.Active())
}

func TestPoolRejectsInvalidSizes(t *testing.T) {
	factory, _ := newCountingFactory()
	_, err := NewRunnerPool(t.Context(), factory, 1, 2)
	assert.Error(t, err)
	_, err = NewRunnerPool(t.Context(), factory, 0, 0)
	assert.Error(t, err)
}

func TestPoolReusesReturnedRunner(t *testing.T) {
	factory, created := newCountingFactory()
	pool, err := NewRunnerPool(t.Context(), factory, 2, 0)
	require.NoError(t, err)

	r, err := pool.Get(t.Context())
	require.NoError(t, err)
	pool.Put(r)
	again, err := pool.Get(t.Context())
	require.NoError(t, err)
	assert.Same(t, r, again)
	assert.Equal(t, 1, *created)
}

func TestPoolWaitsAtMaxSize(t *testing.T) {
	factory, _ := newCountingFactory()
	pool, err := NewRunnerPool(t.Context(), factory, 1, 0)
	require.NoError(t, err)

	held, err := pool.Get(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Put(held)
	r, err := pool.Get(t.Context())
	require.NoError(t, err)
	assert.Same(t, held, r)
}

func TestPoolShrinksToMin(t *testing.T) {
	factory, _ := newCountingFactory()
	pool, err := NewRunnerPool(t.Context(), factory, 3, 1)
	require.NoError(t, err)

	a, _ := pool.Get(t.Context())
	b, _ := pool.Get(t.Context())
	c, _ := pool.Get(t.Context())
	pool.Put(a)
	pool.Put(b)
	pool.Put(c)
	assert.Equal(t, 3, pool.Active())

	pool.shrink()
	assert.Equal(t, 1, pool.Active())
}
