package mavlink

import "errors"

// maxPending bounds the bytes a Parser holds while waiting for a frame to complete.
const maxPending = 4 * MaxFrameLen

// Parser splits a byte stream (serial links) into frames. Bytes before a
// start marker are discarded; a frame whose checksum fails is dropped one
// byte at a time so the parser can resynchronise on the next marker.
type Parser struct {
	pending []byte
}

// Feed appends b to the stream and returns the frames and decode errors it completes.
func (p *Parser) Feed(b []byte) ([]Frame, []error) {
	p.pending = append(p.pending, b...)

	var (
		frames []Frame
		errs   []error
	)
	for {
		start := indexMagic(p.pending)
		if start < 0 {
			p.pending = p.pending[:0]
			break
		}
		p.pending = p.pending[start:]

		f, n, err := Unmarshal(p.pending)
		switch {
		case err == nil:
			frames = append(frames, f)
			p.pending = p.pending[n:]
			continue
		case errors.Is(err, ErrTruncatedPayload):
			if len(p.pending) > maxPending {
				p.pending = p.pending[1:]
				errs = append(errs, err)
				continue
			}
		case errors.Is(err, ErrUnknownMessageID):
			errs = append(errs, err)
			p.pending = p.pending[n:]
			continue
		default:
			errs = append(errs, err)
			p.pending = p.pending[1:]
			continue
		}
		break
	}

	// Compact so the backing array does not grow without bound.
	if cap(p.pending) > maxPending && len(p.pending) < cap(p.pending)/2 {
		p.pending = append([]byte(nil), p.pending...)
	}
	return frames, errs
}

// Reset discards any buffered partial frame.
func (p *Parser) Reset() {
	p.pending = p.pending[:0]
}

func indexMagic(b []byte) int {
	for i, c := range b {
		if c == magicV2 || c == magicV1 {
			return i
		}
	}
	return -1
}
