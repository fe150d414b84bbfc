package protocol

import (
	"io"

	"github.com/pkg/errors"
)

// ErrPacketTooLarge is returned by EncodePacket when payload exceeds
// MaxPacketSize. This client does not implement multi-packet
// fragmentation of a single logical payload (spec.md §4.1, §9(b)).
var ErrPacketTooLarge = errors.New("protocol: payload exceeds maximum packet size")

// Framer reassembles a MySQL packet stream out of arbitrarily sized
// chunks of bytes read off a duplex transport. It owns a rolling
// buffer; bytes that don't yet make up a complete packet carry over
// to the next Feed call.
//
// A Framer is not safe for concurrent use; the session serializes all
// reads through one goroutine (spec.md §5).
type Framer struct {
	buf []byte
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends chunk to the rolling buffer and pulls out every
// complete packet it now contains. It returns the packet payloads
// (header stripped) in arrival order and the sequence id each packet
// carried.
func (f *Framer) Feed(chunk []byte) (payloads [][]byte, seqIDs []byte) {
	if len(chunk) > 0 {
		f.buf = append(f.buf, chunk...)
	}
	for {
		if len(f.buf) < 4 {
			return payloads, seqIDs
		}
		length := int(f.buf[0]) | int(f.buf[1])<<8 | int(f.buf[2])<<16
		seq := f.buf[3]
		total := length + 4
		if len(f.buf) < total {
			return payloads, seqIDs
		}
		payload := make([]byte, length)
		copy(payload, f.buf[4:total])
		payloads = append(payloads, payload)
		seqIDs = append(seqIDs, seq)
		f.buf = f.buf[total:]
	}
}

// Pending returns the number of bytes currently buffered waiting for
// more of the current packet to arrive.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// EncodePacket prepends the 4-byte MySQL packet header to payload and
// returns the complete wire frame ready for a single Write.
func EncodePacket(payload []byte, seq uint8) ([]byte, error) {
	if len(payload) > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	out := make([]byte, 4+len(payload))
	l := len(payload)
	out[0] = byte(l)
	out[1] = byte(l >> 8)
	out[2] = byte(l >> 16)
	out[3] = seq
	copy(out[4:], payload)
	return out, nil
}

// ReadPacket reads exactly one framed packet from r, synchronously.
// It is the counterpart of Framer for callers that own a blocking
// net.Conn directly, such as the session's command loop.
func ReadPacket(r io.Reader) (payload []byte, seq uint8, err error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, 0, err
	}
	length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
	seq = header[3]
	payload = make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, 0, err
		}
	}
	return payload, seq, nil
}

// WritePacket frames payload with seq and writes it to w in a single
// call.
func WritePacket(w io.Writer, payload []byte, seq uint8) error {
	framed, err := EncodePacket(payload, seq)
	if err != nil {
		return err
	}
	_, err = w.Write(framed)
	return err
}
