package bridge

import (
	"time"

	"github.com/yl5006/sitl-gazebo/internal/transport"
)

// Status is a point-in-time snapshot for diagnostics.
type Status struct {
	State State  `json:"state"`
	Local string `json:"local"`
	Peer  string `json:"peer"`

	TelemetrySent   uint64 `json:"telemetrySent"`
	Suppressed      uint64 `json:"suppressed"`
	SendErrors      uint64 `json:"sendErrors"`
	Received        uint64 `json:"received"`
	DecodeErrors    uint64 `json:"decodeErrors"`
	Unrouted        uint64 `json:"unrouted"`
	StaleCommands   uint64 `json:"staleCommands"`
	FailsafeEngaged uint64 `json:"failsafeEngaged"`
	FeedDropped     uint64 `json:"feedDropped"`

	LastSeq uint64    `json:"lastSeq"`
	Armed   bool      `json:"armed"`
	LastCmd time.Time `json:"lastCmd"`

	TimeOffset      time.Duration `json:"timeOffset"`
	TimesyncSamples uint64        `json:"timesyncSamples"`
	RemoteBootMs    uint32        `json:"remoteBootMs"`

	MirrorSent    uint64 `json:"mirrorSent"`
	MirrorDropped uint64 `json:"mirrorDropped"`
}

// Status may be called from any goroutine.
func (b *Bridge) Status() Status {
	s := Status{
		State:           b.state.load(),
		TelemetrySent:   b.metrics.sent.load(),
		Suppressed:      b.metrics.suppressed.load(),
		SendErrors:      b.metrics.sendErrors.load(),
		Received:        b.metrics.received.load(),
		DecodeErrors:    b.metrics.decodeErrors.load(),
		Unrouted:        b.metrics.unrouted.load(),
		StaleCommands:   b.metrics.stale.load(),
		FailsafeEngaged: b.metrics.failsafe.load(),
		FeedDropped:     b.feed.Dropped(),
		TimeOffset:      b.tsync.Offset(),
		TimesyncSamples: b.tsync.Samples(),
		RemoteBootMs:    b.remoteTime.bootMs.Load(),
	}
	if cmd := b.slot.Load(); cmd != nil {
		s.LastSeq = cmd.Seq
		s.Armed = cmd.Armed
		s.LastCmd = cmd.Received
	}
	if ep := b.endpoint; ep != nil && s.State != Uninitialized {
		s.Local = addrString(ep.LocalAddr())
		s.Peer = addrString(ep.Peer())
		if udp, ok := ep.(*transport.UDPEndpoint); ok && udp.Mirror() != nil {
			s.MirrorSent = udp.Mirror().Sent()
			s.MirrorDropped = udp.Mirror().Dropped()
		}
	}
	return s
}
