package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/yl5006/sitl-gazebo/pkg/streaming"
)

const (
	windowSize   = 10_000
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// stream owns the socket to the ingest server. The outbox is the only
// source of outbound data; one writer goroutine per socket drains it.
type stream struct {
	mu     sync.Mutex
	conn   *ws.Conn
	closed bool
	done   chan struct{}

	out  *outbox
	acks chan streaming.AckMessage

	wsURL   string
	secret  string
	backoff time.Duration
	logger  *slog.Logger
}

func newStream(logger *slog.Logger) *stream {
	return &stream{
		done:    make(chan struct{}),
		out:     newOutbox(windowSize),
		acks:    make(chan streaming.AckMessage, ackChSize),
		backoff: time.Second,
		logger:  logger,
	}
}

func (s *stream) dial(rawURL, secret string) error {
	s.wsURL = rawURL
	s.secret = secret

	conn, err := s.dialOnce()
	if err != nil {
		return err
	}
	s.attach(conn)
	return nil
}

func (s *stream) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(s.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", s.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// attach makes conn current and starts its loops. It reports false when the
// stream was closed meanwhile.
func (s *stream) attach(conn *ws.Conn) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return false
	}
	s.conn = conn
	s.mu.Unlock()

	go s.writeLoop(conn)
	go s.readLoop(conn)
	return true
}

func (s *stream) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-s.done:
			return
		case <-s.out.ready:
		}
		batch, ok := s.next(conn)
		if !ok {
			// pass the signal on to the current writer
			s.out.signal()
			return
		}
		for _, data := range batch {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.fail(conn, "write deadline", err)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				s.fail(conn, "write", err)
				return
			}
		}
	}
}

// next takes pending envelopes for conn while it is still current. A retired
// socket never advances the outbox cursor, so nothing slips past a rewind.
func (s *stream) next(conn *ws.Conn) ([][]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return nil, false
	}
	return s.out.take(), true
}

// readLoop applies acks to the outbox and hands control acks to waiters.
func (s *stream) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.fail(conn, "read", err)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			s.logger.Debug("Ignoring server message", "raw", string(message))
			continue
		}
		if ack.Seq > 0 {
			s.out.ack(ack.Seq)
		}
		if ack.For != "" {
			select {
			case s.acks <- ack:
			default:
				s.logger.Debug("Ack channel full, dropping", "for", ack.For)
			}
		}
	}
}

// fail retires conn and reconnects. Only the first loop to fail on a given
// socket does so.
func (s *stream) fail(conn *ws.Conn, op string, err error) {
	s.mu.Lock()
	if s.closed || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()
	_ = conn.Close()

	s.logger.Warn("WebSocket "+op+" failed, reconnecting", "error", err)
	go s.reconnect()
}

// reconnect dials with exponential backoff. The outbox is rewound before
// the new writer starts, so the server sees start_session followed by
// everything it has not acknowledged.
func (s *stream) reconnect() {
	backoff := s.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-s.done:
			return
		case <-time.After(backoff):
		}

		conn, err := s.dialOnce()
		if err != nil {
			s.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		s.out.rewind()
		if s.attach(conn) {
			s.logger.Info("WebSocket reconnected", "attempt", attempt)
		}
		return
	}
	s.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// await blocks until the server confirms a control message of msgType.
func (s *stream) await(msgType string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-s.acks:
			if ack.For == msgType {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", msgType)
		case <-s.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", msgType)
		}
	}
}

// close sends a close frame and stops all goroutines. Unacknowledged
// envelopes are abandoned.
func (s *stream) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}
