// Package frame decodes the backend side of the PostgreSQL wire protocol
// into discrete frames. A frame is a 1-byte message type tag followed by a
// 4-byte big-endian length (inclusive of the length field itself, exclusive
// of the tag) and length-4 payload bytes.
//
// The Parser is incremental: it can be fed the raw bytes of successive socket
// reads split at arbitrary boundaries and yields exactly the frames that a
// single parse of the concatenated stream would yield.
package frame

import "fmt"

// Backend message type tags interpreted by the engine itself. Frames with
// other tags are passed through to the consuming action untouched.
const (
	TagAuthentication  = 'R'
	TagBackendKeyData  = 'K'
	TagParameterStatus = 'S'
	TagReadyForQuery   = 'Z'
	TagErrorResponse   = 'E'
	TagNoticeResponse  = 'N'
	TagCommandComplete = 'C'
	TagRowDescription  = 'T'
	TagDataRow         = 'D'
	TagNoData          = 'n'
	TagParseComplete   = '1'
	TagBindComplete    = '2'
	TagCloseComplete   = '3'
)

// Frame is one complete backend protocol message. The payload is a copy of
// the wire bytes: it is consumed by exactly one action's read handler and
// then discarded, it is never pooled.
type Frame struct {
	Tag     byte
	Payload []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame{Tag: %c, Len: %d}", f.Tag, len(f.Payload))
}
