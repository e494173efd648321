package actuation

import (
	"sync/atomic"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/mavlink"
)

// Command is one decoded actuator control array.
type Command struct {
	Seq      uint64
	Controls [MaxChannels]float64
	Armed    bool
	Received time.Time
}

// FromMessage builds a Command from a HIL_ACTUATOR_CONTROLS message.
func FromMessage(m *mavlink.HilActuatorControls, seq uint64, received time.Time) *Command {
	c := &Command{Seq: seq, Armed: mavlink.Armed(m), Received: received}
	for i, v := range m.Controls {
		c.Controls[i] = float64(v)
	}
	return c
}

// resyncRun is the number of consecutive, mutually in-order frames behind
// the current sequence after which the unwrapper re-anchors on them. Such a
// run means the sender skipped more than half the 8-bit space or restarted.
const resyncRun = 3

// SeqUnwrapper extends the 8-bit wire sequence into a monotonic counter.
// A backward jump (a reordered frame) yields a value below the current one
// so the slot rejects it.
type SeqUnwrapper struct {
	last   uint8
	value  uint64
	primed bool

	behind uint8
	run    int
}

// Unwrap returns the extended sequence number for seq.
func (u *SeqUnwrapper) Unwrap(seq uint8) uint64 {
	if !u.primed {
		u.primed = true
		u.last = seq
		// start one wrap in so a backward jump cannot underflow
		u.value = 256 + uint64(seq)
		return u.value
	}
	delta := int64(int8(seq - u.last))
	if delta > 0 {
		u.last = seq
		u.value += uint64(delta)
		u.run = 0
		return u.value
	}
	if delta < 0 {
		if u.run > 0 && seq == u.behind+1 {
			u.run++
		} else {
			u.run = 1
		}
		u.behind = seq
		if u.run >= resyncRun {
			u.last = seq
			u.value++
			u.run = 0
			return u.value
		}
	}
	return uint64(int64(u.value) + delta)
}

// Slot is the single-entry, last-write-wins handoff between the poller and
// the tick. Readers always see a fully built Command.
type Slot struct {
	latest atomic.Pointer[Command]
}

// Publish stores c unless a command with an equal or higher sequence number
// is already present. It reports whether c was stored.
func (s *Slot) Publish(c *Command) bool {
	for {
		cur := s.latest.Load()
		if cur != nil && c.Seq <= cur.Seq {
			return false
		}
		if s.latest.CompareAndSwap(cur, c) {
			return true
		}
	}
}

// Load returns the latest command, nil before the first one.
func (s *Slot) Load() *Command {
	return s.latest.Load()
}
