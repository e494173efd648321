package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/mavlink"
	"go.bug.st/serial"
)

// SerialPort is the part of serial.Port the endpoint uses.
type SerialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialAddr names the device as the peer of a serial link.
type SerialAddr string

func (SerialAddr) Network() string  { return "serial" }
func (a SerialAddr) String() string { return string(a) }

// SerialEndpoint runs the endpoint contract over a point-to-point serial
// link. The single peer is the device itself.
type SerialEndpoint struct {
	port     SerialPort
	addr     SerialAddr
	observer Observer
	writeMu  sync.Mutex
	parser   mavlink.Parser
	closed   atomic.Bool
	buf      []byte
}

// OpenSerial opens cfg.Device at cfg.Baud, 8N1. Failure is a *BindError.
func OpenSerial(cfg SerialConfig, observer Observer, logger *slog.Logger) (*SerialEndpoint, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, &BindError{Addr: cfg.Device, Err: err}
	}
	if logger != nil {
		logger.Info("Serial endpoint opened", "device", cfg.Device, "baud", cfg.Baud)
	}
	return NewSerialEndpoint(port, cfg.Device, observer), nil
}

// NewSerialEndpoint wraps an already open port.
func NewSerialEndpoint(port SerialPort, name string, observer Observer) *SerialEndpoint {
	return &SerialEndpoint{
		port:     port,
		addr:     SerialAddr(name),
		observer: observer,
		buf:      make([]byte, 4096),
	}
}

func (e *SerialEndpoint) Send(b []byte) error {
	return e.SendTo(b, e.addr)
}

// SendTo ignores dst; a serial link has one peer.
func (e *SerialEndpoint) SendTo(b []byte, _ net.Addr) error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if _, err := e.port.Write(b); err != nil {
		return &TransportError{Op: "send", Addr: e.addr.String(), Err: err}
	}
	if e.observer != nil {
		e.observer.Observe(Outbound, e.addr, e.addr, b)
	}
	return nil
}

// PollReceive returns whatever bytes arrived within timeout. They need not
// form whole frames; pass them through Decode.
func (e *SerialEndpoint) PollReceive(timeout time.Duration) (Datagram, bool, error) {
	if e.closed.Load() {
		return Datagram{}, false, ErrClosed
	}
	if err := e.port.SetReadTimeout(timeout); err != nil {
		return Datagram{}, false, &TransportError{Op: "receive", Addr: e.addr.String(), Err: err}
	}
	n, err := e.port.Read(e.buf)
	if err != nil {
		if e.closed.Load() || errors.Is(err, io.EOF) {
			return Datagram{}, false, ErrClosed
		}
		return Datagram{}, false, &TransportError{Op: "receive", Addr: e.addr.String(), Err: err}
	}
	if n == 0 {
		return Datagram{}, false, nil
	}

	data := make([]byte, n)
	copy(data, e.buf[:n])
	if e.observer != nil {
		e.observer.Observe(Inbound, e.addr, e.addr, data)
	}
	return Datagram{Data: data, Source: e.addr}, true, nil
}

// Decode feeds b to the stream parser. Only the polling goroutine may call it.
func (e *SerialEndpoint) Decode(b []byte) ([]mavlink.Frame, []error) {
	return e.parser.Feed(b)
}

func (e *SerialEndpoint) Peer() net.Addr      { return e.addr }
func (e *SerialEndpoint) SetPeer(net.Addr)    {}
func (e *SerialEndpoint) LocalAddr() net.Addr { return e.addr }

func (e *SerialEndpoint) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if err := e.port.Close(); err != nil {
		return fmt.Errorf("close %s: %w", e.addr, err)
	}
	return nil
}
