// Package transport carries MAVLink datagrams between the bridge and the
// autopilot. Sends never block the caller and receives wait at most the
// requested timeout.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/mavlink"
)

// Direction tags a datagram seen by an Observer.
type Direction uint8

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "in"
	}
	return "out"
}

// Observer sees every datagram that crosses the endpoint, e.g. a capture
// file. Observe must not retain b.
type Observer interface {
	Observe(dir Direction, local, remote net.Addr, b []byte)
}

// Datagram is one received payload and its source.
type Datagram struct {
	Data   []byte
	Source net.Addr
}

// Endpoint is the contract shared by the UDP and serial links.
type Endpoint interface {
	// Send writes b to the primary peer and mirrors it to the secondary.
	Send(b []byte) error
	// SendTo writes b to dst only.
	SendTo(b []byte, dst net.Addr) error
	// PollReceive waits up to timeout for one datagram. ok is false when
	// the wait expired.
	PollReceive(timeout time.Duration) (d Datagram, ok bool, err error)
	// Peer returns the primary peer, nil until one is known.
	Peer() net.Addr
	// SetPeer records the primary peer.
	SetPeer(addr net.Addr)
	LocalAddr() net.Addr
	Close() error
}

// FrameDecoder is implemented by endpoints whose reads do not align with
// frame boundaries.
type FrameDecoder interface {
	Decode(b []byte) ([]mavlink.Frame, []error)
}

// Options carries the collaborators of a UDPEndpoint.
type Options struct {
	Factory  SocketFactory
	Observer Observer
	Logger   *slog.Logger
}

// UDPEndpoint is the datagram endpoint. Send and PollReceive may be called
// from different goroutines; PollReceive itself must have a single caller.
type UDPEndpoint struct {
	socket      UDPSocket
	sendTimeout time.Duration
	primary     atomic.Pointer[net.UDPAddr]
	mirror      *Mirror
	observer    Observer
	logger      *slog.Logger
	closed      atomic.Bool
	buf         []byte
}

// Bind opens the local socket. Any failure is a *BindError.
func Bind(cfg Config, opts Options) (*UDPEndpoint, error) {
	if opts.Factory == nil {
		opts.Factory = RealSocketFactory{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	laddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, &BindError{Addr: cfg.Listen, Err: err}
	}
	socket, err := opts.Factory.ListenUDP("udp", laddr)
	if err != nil {
		return nil, &BindError{Addr: cfg.Listen, Err: err}
	}
	if cfg.ReadBuffer > 0 {
		if err := socket.SetReadBuffer(cfg.ReadBuffer); err != nil {
			opts.Logger.Warn("Failed to set UDP receive buffer", "size", cfg.ReadBuffer, "error", err)
		}
	}

	e := &UDPEndpoint{
		socket:      socket,
		sendTimeout: cfg.SendTimeout,
		observer:    opts.Observer,
		logger:      opts.Logger,
		buf:         make([]byte, 65535),
	}

	if cfg.Secondary != "" {
		addr, err := net.ResolveUDPAddr("udp", cfg.Secondary)
		if err != nil {
			socket.Close()
			return nil, &BindError{Addr: cfg.Secondary, Err: err}
		}
		e.mirror = NewMirror(socket, addr, cfg.MirrorQueue, cfg.SendTimeout, opts.Logger)
	}

	opts.Logger.Info("UDP endpoint bound", "local", socket.LocalAddr().String(), "secondary", cfg.Secondary)
	return e, nil
}

// Start runs the mirror goroutine, if any, until ctx is done.
func (e *UDPEndpoint) Start(ctx context.Context) {
	if e.mirror != nil {
		e.mirror.Start(ctx)
	}
}

// Mirror returns the secondary forwarder, nil when none is configured.
func (e *UDPEndpoint) Mirror() *Mirror {
	return e.mirror
}

func (e *UDPEndpoint) Send(b []byte) error {
	if e.mirror != nil {
		e.mirror.ForwardAsync(b)
	}
	peer := e.primary.Load()
	if peer == nil {
		return ErrNoPeer
	}
	return e.write(b, peer)
}

func (e *UDPEndpoint) SendTo(b []byte, dst net.Addr) error {
	addr, ok := dst.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", dst.String())
		if err != nil {
			return &TransportError{Op: "send", Addr: dst.String(), Err: err}
		}
		addr = resolved
	}
	return e.write(b, addr)
}

func (e *UDPEndpoint) write(b []byte, addr *net.UDPAddr) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.sendTimeout > 0 {
		_ = e.socket.SetWriteDeadline(time.Now().Add(e.sendTimeout))
	}
	if _, err := e.socket.WriteToUDP(b, addr); err != nil {
		return &TransportError{Op: "send", Addr: addr.String(), Err: err}
	}
	if e.observer != nil {
		e.observer.Observe(Outbound, e.socket.LocalAddr(), addr, b)
	}
	return nil
}

func (e *UDPEndpoint) PollReceive(timeout time.Duration) (Datagram, bool, error) {
	if e.closed.Load() {
		return Datagram{}, false, ErrClosed
	}
	if err := e.socket.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Datagram{}, false, &TransportError{Op: "receive", Err: err}
	}

	n, addr, err := e.socket.ReadFromUDP(e.buf)
	switch {
	case err == nil:
	case isTimeout(err):
		return Datagram{}, false, nil
	case errors.Is(err, net.ErrClosed):
		return Datagram{}, false, ErrClosed
	default:
		return Datagram{}, false, &TransportError{Op: "receive", Err: err}
	}

	data := make([]byte, n)
	copy(data, e.buf[:n])
	if e.observer != nil {
		e.observer.Observe(Inbound, e.socket.LocalAddr(), addr, data)
	}
	return Datagram{Data: data, Source: addr}, true, nil
}

func (e *UDPEndpoint) Peer() net.Addr {
	if p := e.primary.Load(); p != nil {
		return p
	}
	return nil
}

// SetPeer records addr as the primary peer. Non-UDP addresses are ignored.
func (e *UDPEndpoint) SetPeer(addr net.Addr) {
	if a, ok := addr.(*net.UDPAddr); ok {
		e.primary.Store(a)
	}
}

func (e *UDPEndpoint) LocalAddr() net.Addr {
	return e.socket.LocalAddr()
}

// Close closes the socket, which also unblocks a pending PollReceive.
func (e *UDPEndpoint) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if e.mirror != nil {
		e.mirror.Close()
	}
	if err := e.socket.Close(); err != nil {
		return fmt.Errorf("close socket: %w", err)
	}
	return nil
}
