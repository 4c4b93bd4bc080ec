package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimited_GetPut(t *testing.T) {
	c := NewLimited[string, int](3)
	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestLimited_EvictsOldestInsertion(t *testing.T) {
	c := NewLimited[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)

	// reading "a" must not save it from eviction
	_, _ = c.Get("a")
	evicted := c.Put("c", 3)
	assert.True(t, evicted)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b", "c"}, c.Keys())
	assert.Equal(t, 2, c.Len())
}

func TestLimited_Purge(t *testing.T) {
	c := NewLimited[string, int](4)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Purge()
	assert.Zero(t, c.Len())
}

func TestLimited_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewLimited[int, int](0).Capacity())
	assert.Equal(t, DefaultCapacity, NewLimited[int, int](-3).Capacity())
}

func TestLimited_ConcurrentPutsStayBounded(t *testing.T) {
	c := NewLimited[string, int](50)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Go(func() {
			for i := range 500 {
				c.Put(fmt.Sprintf("%d-%d", g, i), i)
			}
		})
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
	assert.Len(t, c.Keys(), 50)
}
