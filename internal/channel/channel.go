// Package channel hands values between goroutines through bounded feeds.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T)
	// TrySend delivers v only if it fits without waiting.
	TrySend(v T) bool
	// Offer delivers v without waiting, evicting the oldest value if needed.
	Offer(v T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Dropped() uint64
	Close()
}

// Drain returns the values already buffered in r without waiting. At most
// max values are taken; max <= 0 takes everything present at the call.
func Drain[T any](r Receiver[T], max int) []T {
	n := r.Len()
	if max > 0 && n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for len(out) < n {
		select {
		case v, ok := <-r.Receive():
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
	return out
}
