// Package mavlink frames the subset of the MAVLink common message set
// exchanged between the simulator bridge and an autopilot. Encoding, checksum
// and signature handling are delegated to gomavlib; this package adds the
// frame extent checks the bridge needs to skip bad frames inside a datagram
// or a serial stream.
package mavlink

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bluenviron/gomavlib/v3/pkg/dialect"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

const (
	magicV1 byte = 0xFE
	magicV2 byte = 0xFD

	headerLenV1  = 6
	headerLenV2  = 10
	checksumLen  = 2
	signatureLen = 13

	incompatSigned byte = 0x01

	// MaxFrameLen is the largest possible v2 frame, signature included.
	MaxFrameLen = headerLenV2 + 255 + checksumLen + signatureLen
)

// Decode errors. Every error returned by the decoder wraps one of these.
var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownMessageID = errors.New("unknown message id")
	ErrTruncatedPayload = errors.New("truncated payload")
)

var dialectRW = mustDialect()

func mustDialect() *dialect.ReadWriter {
	rw := &dialect.ReadWriter{Dialect: &dialect.Dialect{Version: 3, Messages: messages}}
	if err := rw.Initialize(); err != nil {
		panic(fmt.Sprintf("mavlink: dialect: %v", err))
	}
	return rw
}

// Header holds the routing fields of a frame.
type Header struct {
	Seq         uint8
	SystemID    uint8
	ComponentID uint8
}

// Frame is a decoded message together with its header.
type Frame struct {
	Header
	Message Message
}

// Marshal encodes m as a MAVLink v2 frame carrying h. h.SystemID must not be
// zero. Trailing zero bytes of the payload are truncated as v2 requires.
func Marshal(h Header, m Message) ([]byte, error) {
	var buf bytes.Buffer
	w := &frame.Writer{
		ByteWriter:     &buf,
		DialectRW:      dialectRW,
		OutVersion:     frame.V2,
		OutSystemID:    h.SystemID,
		OutComponentID: h.ComponentID,
	}
	if err := w.Initialize(); err != nil {
		return nil, fmt.Errorf("mavlink writer: %w", err)
	}
	err := w.WriteFrame(&frame.V2Frame{
		SequenceNumber: h.Seq,
		SystemID:       h.SystemID,
		ComponentID:    h.ComponentID,
		Message:        m,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", NameOf(m), err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes the frame at the start of buf. It returns the number of
// bytes the frame occupies; for ErrUnknownMessageID and checksum failures the
// count is still valid so callers can skip the frame.
func Unmarshal(buf []byte) (Frame, int, error) {
	total, err := frameLen(buf)
	if err != nil {
		return Frame{}, 0, err
	}

	r := &frame.Reader{ByteReader: bytes.NewReader(buf[:total]), DialectRW: dialectRW}
	if err := r.Initialize(); err != nil {
		return Frame{}, 0, fmt.Errorf("mavlink reader: %w", err)
	}
	fr, err := r.Read()
	if err != nil {
		return Frame{}, total, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	// ids outside the dialect come back undecoded and unchecked
	if raw, ok := fr.GetMessage().(*message.MessageRaw); ok {
		return Frame{}, total, fmt.Errorf("%w: %d", ErrUnknownMessageID, raw.GetID())
	}

	h := Header{
		Seq:         fr.GetSequenceNumber(),
		SystemID:    fr.GetSystemID(),
		ComponentID: fr.GetComponentID(),
	}
	return Frame{Header: h, Message: fr.GetMessage()}, total, nil
}

// frameLen returns the extent of the frame at the start of buf, signature
// included, without validating its content.
func frameLen(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("%w: empty buffer", ErrTruncatedPayload)
	}

	var total int
	switch buf[0] {
	case magicV2:
		if len(buf) < headerLenV2 {
			return 0, fmt.Errorf("%w: %d byte header", ErrTruncatedPayload, len(buf))
		}
		total = headerLenV2 + int(buf[1]) + checksumLen
		if buf[2]&incompatSigned != 0 {
			total += signatureLen
		}
	case magicV1:
		if len(buf) < headerLenV1 {
			return 0, fmt.Errorf("%w: %d byte header", ErrTruncatedPayload, len(buf))
		}
		total = headerLenV1 + int(buf[1]) + checksumLen
	default:
		return 0, fmt.Errorf("%w: bad start byte %#02x", ErrMalformedMessage, buf[0])
	}

	if len(buf) < total {
		return 0, fmt.Errorf("%w: have %d of %d bytes", ErrTruncatedPayload, len(buf), total)
	}
	return total, nil
}

// DecodeDatagram decodes every frame packed into a single datagram. Frames
// with a known extent but a bad checksum or unknown id are skipped and
// reported; decoding stops at the first frame whose extent cannot be trusted.
func DecodeDatagram(buf []byte) ([]Frame, []error) {
	var (
		frames []Frame
		errs   []error
	)
	for off := 0; off < len(buf); {
		f, n, err := Unmarshal(buf[off:])
		if err != nil {
			errs = append(errs, err)
			if n == 0 {
				break
			}
			off += n
			continue
		}
		frames = append(frames, f)
		off += n
	}
	return frames, errs
}

// Encoder stamps outgoing frames with the bridge's identity and a rolling
// sequence number. It is safe for concurrent use.
type Encoder struct {
	systemID    uint8
	componentID uint8
	seq         atomic.Uint32
}

// NewEncoder creates an encoder for the given system and component ids.
func NewEncoder(systemID, componentID uint8) *Encoder {
	return &Encoder{systemID: systemID, componentID: componentID}
}

// Encode marshals m with the next sequence number.
func (e *Encoder) Encode(m Message) ([]byte, error) {
	seq := uint8(e.seq.Add(1) - 1)
	return Marshal(Header{Seq: seq, SystemID: e.systemID, ComponentID: e.componentID}, m)
}

// SystemID returns the system id stamped on encoded frames.
func (e *Encoder) SystemID() uint8 {
	return e.systemID
}
