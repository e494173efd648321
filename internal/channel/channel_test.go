package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeed_TrySendRejectsWhenFull(t *testing.T) {
	ch := New[int](2)
	assert.True(t, ch.TrySend(1))
	assert.True(t, ch.TrySend(2))
	assert.False(t, ch.TrySend(3))
	assert.Equal(t, 2, ch.Len())
	assert.Equal(t, uint64(1), ch.Dropped())
	assert.Equal(t, []int{1, 2}, Drain[int](ch, 0))
}

func TestFeed_OfferEvictsOldest(t *testing.T) {
	ch := New[int](2)
	assert.False(t, ch.Offer(1))
	assert.False(t, ch.Offer(2))
	assert.True(t, ch.Offer(3))
	assert.True(t, ch.Offer(4))

	assert.Equal(t, uint64(2), ch.Dropped())
	assert.Equal(t, []int{3, 4}, Drain[int](ch, 0))
}

func TestFeed_OfferConcurrentWithDrain(t *testing.T) {
	ch := New[int](4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 1000 {
			ch.Offer(i)
		}
	}()

	got := 0
	for {
		got += len(Drain[int](ch, 0))
		select {
		case <-done:
			got += len(Drain[int](ch, 0))
			assert.Equal(t, uint64(1000), uint64(got)+ch.Dropped())
			return
		default:
		}
	}
}

func TestDrain_TakesBufferedOnly(t *testing.T) {
	ch := New[int](8)
	for i := range 5 {
		ch.Send(i)
	}

	assert.Equal(t, []int{0, 1, 2}, Drain[int](ch, 3))
	assert.Equal(t, []int{3, 4}, Drain[int](ch, 0))
	assert.Nil(t, Drain[int](ch, 0))
}

func TestDrain_ClosedChannel(t *testing.T) {
	ch := New[string](4)
	ch.Send("a")
	ch.Close()

	assert.Equal(t, []string{"a"}, Drain[string](ch, 0))
	assert.Empty(t, Drain[string](ch, 0))
}

func TestNew_ClampsSize(t *testing.T) {
	ch := New[int](0)
	assert.True(t, ch.TrySend(1))
	assert.False(t, ch.TrySend(2))
}
