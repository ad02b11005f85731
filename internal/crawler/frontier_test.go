package crawler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontier_DedupAndBudget(t *testing.T) {
	f := NewFrontier(2)
	assert.True(t, f.Push("a"))
	assert.False(t, f.Push("a"))
	assert.True(t, f.Push("b"))
	assert.True(t, f.Push("c"))

	u, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "a", u)
	u, ok = f.Next()
	require.True(t, ok)
	assert.Equal(t, "b", u)

	// budget spent even though c is queued
	_, ok = f.Next()
	assert.False(t, ok)
	assert.Equal(t, 2, f.Visited())
}

func TestFrontier_RunsDry(t *testing.T) {
	f := NewFrontier(10)
	f.Push("seed")

	u, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "seed", u)

	result := make(chan bool)
	go func() {
		_, ok := f.Next()
		result <- ok
	}()

	// the waiting worker must not give up while seed is in flight
	select {
	case <-result:
		t.Fatal("Next returned while a page was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	f.Done()
	assert.False(t, <-result)
}

func TestFrontier_Stop(t *testing.T) {
	f := NewFrontier(10)
	f.Push("seed")
	_, ok := f.Next()
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		f.Next()
		close(done)
	}()
	f.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not wake the waiting worker")
	}
	assert.False(t, f.Push("late"))
}

func TestFrontier_ConcurrentWorkersNeverExceedBudget(t *testing.T) {
	const budget = 25
	f := NewFrontier(budget)
	f.Push("page-0")

	var mu sync.Mutex
	seen := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				u, ok := f.Next()
				if !ok {
					return
				}
				mu.Lock()
				seen[u]++
				mu.Unlock()
				// every page links to the next three, with cycles back to the start
				var n int
				fmt.Sscanf(u, "page-%d", &n)
				for i := 1; i <= 3; i++ {
					f.Push(fmt.Sprintf("page-%d", (n+i)%40))
				}
				f.Done()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, budget, f.Visited())
	assert.Len(t, seen, budget)
	for u, count := range seen {
		assert.Equal(t, 1, count, u)
	}
}
