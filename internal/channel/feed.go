package channel

import "sync/atomic"

// Feed is a bounded channel of values produced outside the consumer's
// loop, such as sensor samples pushed between ticks.
type Feed[T any] struct {
	ch      chan T
	dropped atomic.Uint64
}

// New creates a feed holding up to size values. Sizes below one are raised
// to one so TrySend can ever succeed.
func New[T any](size int) *Feed[T] {
	return &Feed[T]{ch: make(chan T, max(size, 1))}
}

// Send waits for room.
func (f *Feed[T]) Send(v T) {
	f.ch <- v
}

func (f *Feed[T]) TrySend(v T) bool {
	select {
	case f.ch <- v:
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}

// Offer never waits: when the feed is full the oldest value is evicted to
// make room, so a slow consumer sees the freshest values. It reports
// whether a value was evicted.
func (f *Feed[T]) Offer(v T) bool {
	evicted := false
	for {
		select {
		case f.ch <- v:
			return evicted
		default:
		}
		select {
		case <-f.ch:
			f.dropped.Add(1)
			evicted = true
		default:
		}
	}
}

// Dropped counts values rejected by TrySend or evicted by Offer.
func (f *Feed[T]) Dropped() uint64 {
	return f.dropped.Load()
}

func (f *Feed[T]) Receive() <-chan T {
	return f.ch
}

func (f *Feed[T]) Len() int {
	return len(f.ch)
}

// Close must not race with a send.
func (f *Feed[T]) Close() {
	close(f.ch)
}
