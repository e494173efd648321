package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Seq  int
	Name string
}

func TestPush_Unbounded(t *testing.T) {
	q := New[record]()
	assert.Zero(t, q.Len())

	assert.Equal(t, 1, q.Push(record{Seq: 1, Name: "HIL_GPS"}))
	assert.Equal(t, 2, q.Push(record{Seq: 2}, record{Seq: 3}))
	assert.Equal(t, 3, q.Len())
	assert.Zero(t, q.Dropped())
}

func TestPush_BoundedCountsRefused(t *testing.T) {
	q := NewBounded[int](3)

	assert.Equal(t, 2, q.Push(1, 2))
	assert.Equal(t, 1, q.Push(3, 4, 5))
	assert.Equal(t, 0, q.Push(6))
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(3), q.Dropped())
	assert.Equal(t, []int{1, 2, 3}, q.Take(0))
}

func TestNewBounded_NonPositiveIsUnbounded(t *testing.T) {
	q := NewBounded[int](-1)
	for i := range 100 {
		q.Push(i)
	}
	assert.Equal(t, 100, q.Len())
}

func TestTake_Batches(t *testing.T) {
	q := New[int]()
	assert.Nil(t, q.Take(10))

	q.Push(1, 2, 3, 4, 5)
	assert.Equal(t, []int{1, 2}, q.Take(2))
	assert.Equal(t, 3, q.Len())

	q.Push(6)
	assert.Equal(t, []int{3, 4, 5, 6}, q.Take(100))
	assert.Zero(t, q.Len())
}

func TestTake_BatchOwnsItsBacking(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)

	batch := q.Take(2)
	q.Push(9, 9)
	assert.Equal(t, []int{1, 2}, batch)
	assert.Equal(t, []int{3, 9, 9}, q.Take(0))
}

func TestRequeue_GoesToHeadAndIgnoresLimit(t *testing.T) {
	q := NewBounded[int](2)
	q.Push(1, 2)
	batch := q.Take(0)
	q.Push(3, 4)

	q.Requeue(batch...)
	assert.Equal(t, 4, q.Len())
	assert.Equal(t, []int{1, 2, 3, 4}, q.Take(0))

	q.Requeue()
	assert.Zero(t, q.Len())
}

func TestQueue_ConcurrentPushTake(t *testing.T) {
	q := New[int]()
	const producers, each = 8, 500

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range each {
				q.Push(p*each + i)
			}
		}()
	}

	seen := make(map[int]bool, producers*each)
	var taken sync.WaitGroup
	taken.Add(1)
	stop := make(chan struct{})
	go func() {
		defer taken.Done()
		for {
			for _, v := range q.Take(64) {
				seen[v] = true
			}
			select {
			case <-stop:
				for _, v := range q.Take(0) {
					seen[v] = true
				}
				return
			default:
			}
		}
	}()

	wg.Wait()
	close(stop)
	taken.Wait()

	require.Len(t, seen, producers*each)
	assert.Zero(t, q.Len())
}
