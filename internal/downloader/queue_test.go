package downloader

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	assert.Equal(t, 5, q.Len())
	for i := 0; i < 5; i++ {
		assert.Equal(t, i, q.Pop())
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue[string]()
	got := make(chan string, 1)
	go func() { got <- q.Pop() }()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push("task")
	select {
	case v := <-got:
		assert.Equal(t, "task", v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue[int]()
	const producers, perProducer = 8, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	items := q.Drain()
	require.Len(t, items, producers*perProducer)
	seen := make(map[int]bool, len(items))
	for _, v := range items {
		assert.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
	}
	assert.Equal(t, 0, q.Len())
}

func TestResultChannel_Drain(t *testing.T) {
	r := NewResultChannel()
	r.Push(Unrouted{Reason: ReasonEmpty})
	r.Push(Unrouted{Reason: ReasonFetchFailed})

	assert.Equal(t, 2, r.Len())
	out := r.Drain()
	require.Len(t, out, 2)
	assert.Equal(t, ReasonEmpty, out[0].Reason)
	assert.Empty(t, r.Drain())
}
