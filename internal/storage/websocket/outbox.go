package websocket

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/yl5006/sitl-gazebo/pkg/streaming"
)

// outbox numbers envelopes and keeps them until the server acknowledges
// them. The writer walks it with a cursor; a reconnect rewinds the cursor to
// the last acknowledged seq so the unconfirmed tail is sent again.
type outbox struct {
	mu      sync.Mutex
	limit   int
	next    uint64
	acked   uint64
	cursor  uint64
	pending []entry

	start    []byte
	startDue bool

	dropped uint64
	ready   chan struct{}
}

type entry struct {
	seq  uint64
	data []byte
}

func newOutbox(limit int) *outbox {
	return &outbox{limit: limit, next: 1, ready: make(chan struct{}, 1)}
}

func (o *outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// begin opens a session with its start_session envelope. Numbering restarts
// and start goes out ahead of everything else, now and after each reconnect.
func (o *outbox) begin(start []byte) {
	o.mu.Lock()
	o.next, o.acked, o.cursor = 1, 0, 0
	o.pending = nil
	o.start, o.startDue = start, true
	o.mu.Unlock()
	o.signal()
}

// end forgets the session.
func (o *outbox) end() {
	o.mu.Lock()
	o.pending = nil
	o.start, o.startDue = nil, false
	o.mu.Unlock()
}

// push wraps payload in a numbered envelope. When the window is full the
// oldest envelope is evicted; it counts as dropped unless it was written.
func (o *outbox) push(msgType string, payload any) (uint64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	o.mu.Lock()
	seq := o.next
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Seq: seq, Payload: raw})
	if err != nil {
		o.mu.Unlock()
		return 0, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	o.next++
	o.pending = append(o.pending, entry{seq: seq, data: data})
	if len(o.pending) > o.limit {
		if o.pending[0].seq > o.cursor {
			o.dropped++
		}
		o.pending = o.pending[1:]
	}
	o.mu.Unlock()

	o.signal()
	return seq, nil
}

// ack releases every envelope up to and including seq.
func (o *outbox) ack(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if seq > o.acked {
		o.acked = seq
	}
	i := sort.Search(len(o.pending), func(i int) bool { return o.pending[i].seq > seq })
	o.pending = o.pending[i:]
}

// take hands the writer everything past its cursor, start first if due.
func (o *outbox) take() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out [][]byte
	if o.startDue {
		out = append(out, o.start)
		o.startDue = false
	}
	i := sort.Search(len(o.pending), func(i int) bool { return o.pending[i].seq > o.cursor })
	for _, e := range o.pending[i:] {
		out = append(out, e.data)
		o.cursor = e.seq
	}
	return out
}

// rewind prepares a fresh connection: start_session again, then every
// envelope the server has not acknowledged.
func (o *outbox) rewind() {
	o.mu.Lock()
	o.cursor = o.acked
	o.startDue = o.start != nil
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) droppedCount() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
