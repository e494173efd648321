package transport

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const mirrorLogInterval = 10 * time.Second

// Mirror copies outbound datagrams to a secondary observer from its own
// goroutine, so the caller never waits on the second write.
type Mirror struct {
	socket  UDPSocket
	addr    *net.UDPAddr
	timeout time.Duration
	queue   chan []byte
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  *slog.Logger
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewMirror forwards to addr through socket with a queue of size datagrams.
// Each write is bounded by timeout; zero leaves the socket deadline alone.
func NewMirror(socket UDPSocket, addr *net.UDPAddr, size int, timeout time.Duration, logger *slog.Logger) *Mirror {
	if size <= 0 {
		size = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		socket:  socket,
		addr:    addr,
		timeout: timeout,
		queue:   make(chan []byte, size),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Start launches the forwarding goroutine. Write failures are counted as
// drops and summarised periodically.
func (m *Mirror) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		var (
			failed  int
			lastErr error
		)
		ticker := time.NewTicker(mirrorLogInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case b := <-m.queue:
				if err := m.write(b); err != nil {
					failed++
					lastErr = err
					m.dropped.Add(1)
					continue
				}
				m.sent.Add(1)
			case <-ticker.C:
				if failed > 0 {
					m.logger.Warn("Dropped mirrored datagrams", "count", failed, "addr", m.addr.String(), "error", lastErr)
					failed, lastErr = 0, nil
				}
			}
		}
	}()
	m.logger.Info("Mirroring outbound datagrams", "addr", m.addr.String())
}

// write arms its own deadline; the socket's deadline is shared with the
// primary path and has usually expired by the time a queued copy goes out.
func (m *Mirror) write(b []byte) error {
	if m.timeout > 0 {
		if err := m.socket.SetWriteDeadline(time.Now().Add(m.timeout)); err != nil {
			return err
		}
	}
	_, err := m.socket.WriteToUDP(b, m.addr)
	return err
}

// ForwardAsync queues a copy of b, dropping it when the queue is full.
func (m *Mirror) ForwardAsync(b []byte) {
	select {
	case <-m.done:
		return
	default:
	}
	select {
	case m.queue <- append([]byte(nil), b...):
	default:
		m.dropped.Add(1)
	}
}

// Sent returns the number of datagrams delivered to the socket.
func (m *Mirror) Sent() uint64 { return m.sent.Load() }

// Dropped returns the number of datagrams lost to a full queue or a failed write.
func (m *Mirror) Dropped() uint64 { return m.dropped.Load() }

// Close stops the goroutine and waits for it. Queued datagrams are discarded.
func (m *Mirror) Close() {
	m.once.Do(func() { close(m.done) })
	m.wg.Wait()
}
