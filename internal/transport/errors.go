package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPeer is returned by Send before a primary peer is known.
	ErrNoPeer = errors.New("no peer address")
	// ErrClosed is returned once the endpoint has been closed.
	ErrClosed = errors.New("endpoint closed")
)

// BindError reports that the local address could not be bound. It is the
// only fatal transport error.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// TransportError is a recoverable per-datagram send or receive failure.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
