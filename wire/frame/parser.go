package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// headerSize is the fixed prefix of every backend frame: tag + length.
const headerSize = 5

// ErrMalformedFrame indicates a corrupt length prefix. The stream cannot be
// resynchronized after this; the connection must be torn down.
var ErrMalformedFrame = errors.New("frame: malformed length prefix")

// Parser incrementally decodes backend frames from raw socket-read bytes.
// Bytes belonging to an incomplete frame are carried over to the next call in
// a pooled scratch buffer, so a frame header or body split across reads is
// reassembled transparently.
//
// A Parser belongs to a single connection and is not safe for concurrent use.
type Parser struct {
	carry *bytebufferpool.ByteBuffer
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse consumes one chunk of raw bytes and returns every frame completed by
// it, in wire order. Partial trailing bytes are retained for the next call.
// A malformed length prefix poisons the stream and is returned as an error.
func (p *Parser) Parse(chunk []byte) ([]Frame, error) {
	data := chunk
	if p.carry != nil && len(p.carry.B) > 0 {
		p.carry.B = append(p.carry.B, chunk...)
		data = p.carry.B
	}

	var frames []Frame
	for {
		if len(data) < headerSize {
			break
		}
		length := binary.BigEndian.Uint32(data[1:headerSize])
		if length < 4 {
			return nil, fmt.Errorf("%w: tag %q length %d", ErrMalformedFrame, data[0], length)
		}

		total := 1 + int(length)
		if len(data) < total {
			break
		}

		payload := make([]byte, total-headerSize)
		copy(payload, data[headerSize:total])
		frames = append(frames, Frame{Tag: data[0], Payload: payload})
		data = data[total:]
	}

	p.retain(data)
	return frames, nil
}

// retain stores the unconsumed suffix for the next Parse call. The bytes are
// copied into a fresh pooled buffer because both the caller's chunk and the
// previous carry buffer are invalidated on return.
func (p *Parser) retain(rest []byte) {
	old := p.carry
	p.carry = nil

	if len(rest) > 0 {
		bb := bytebufferpool.Get()
		bb.B = append(bb.B, rest...)
		p.carry = bb
	}

	if old != nil {
		old.Reset()
		bytebufferpool.Put(old)
	}
}

// Buffered returns the number of carried-over bytes awaiting completion of a
// frame. Used by tests and diagnostics.
func (p *Parser) Buffered() int {
	if p.carry == nil {
		return 0
	}
	return len(p.carry.B)
}
