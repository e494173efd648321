package transport

import (
	"net"
	"sync"
	"time"
)

// MockPacket is a datagram exchanged with a MockUDPSocket.
type MockPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// MockUDPSocket implements UDPSocket in memory. It is safe for concurrent
// use so a poller goroutine can read while a test injects traffic.
type MockUDPSocket struct {
	mu            sync.Mutex
	inbound       chan MockPacket
	done          chan struct{}
	closed        bool
	written       []MockPacket
	readDeadline  time.Time
	writeDeadline time.Time

	// LocalAddress is returned by LocalAddr.
	LocalAddress *net.UDPAddr
	// WriteError, when set, is returned by every WriteToUDP call.
	WriteError error
	// ReadBufferSize holds the value set by SetReadBuffer.
	ReadBufferSize int
	// EnforceWriteDeadline makes writes after an expired write deadline
	// fail with a timeout, as a real socket does.
	EnforceWriteDeadline bool
}

// NewMockUDPSocket creates an open mock bound to 127.0.0.1:14560.
func NewMockUDPSocket() *MockUDPSocket {
	return &MockUDPSocket{
		inbound:      make(chan MockPacket, 1024),
		done:         make(chan struct{}),
		LocalAddress: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort},
	}
}

// Inject queues a datagram for the next ReadFromUDP.
func (m *MockUDPSocket) Inject(data []byte, from *net.UDPAddr) {
	m.inbound <- MockPacket{Data: append([]byte(nil), data...), Addr: from}
}

// Written returns a copy of every datagram written so far.
func (m *MockUDPSocket) Written() []MockPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockPacket(nil), m.written...)
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ReadFromUDP waits for an injected datagram until the read deadline.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	deadline := m.readDeadline
	m.mu.Unlock()

	var expire <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expire = timer.C
	}

	select {
	case <-m.done:
		return 0, nil, net.ErrClosed
	case pkt := <-m.inbound:
		return copy(b, pkt.Data), pkt.Addr, nil
	case <-expire:
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
}

// WriteToUDP records the datagram.
func (m *MockUDPSocket) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	if m.EnforceWriteDeadline && !m.writeDeadline.IsZero() && !time.Now().Before(m.writeDeadline) {
		return 0, &net.OpError{Op: "write", Net: "udp", Err: timeoutError{}}
	}
	m.written = append(m.written, MockPacket{Data: append([]byte(nil), b...), Addr: addr})
	return len(b), nil
}

// SetReadBuffer records the buffer size.
func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadBufferSize = bytes
	return nil
}

// SetReadDeadline records the deadline used by the next read.
func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDeadline = t
	return nil
}

// SetWriteDeadline records the deadline checked by writes when
// EnforceWriteDeadline is set. Mock writes never block.
func (m *MockUDPSocket) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeDeadline = t
	return nil
}

// Close unblocks pending reads.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// LocalAddr returns the mock local address.
func (m *MockUDPSocket) LocalAddr() net.Addr {
	return m.LocalAddress
}

// MockSocketFactory hands out a preconfigured socket.
type MockSocketFactory struct {
	Socket *MockUDPSocket
	// Error is returned by ListenUDP if set.
	Error error
	// Calls records every requested local address.
	Calls []*net.UDPAddr
}

// ListenUDP returns Socket or Error.
func (f *MockSocketFactory) ListenUDP(_ string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.Calls = append(f.Calls, laddr)
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Socket, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
