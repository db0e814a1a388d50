package frame

import "errors"

// Stream prefix. A stream that does not start with these bytes is raw data:
// a single chunk without meta at depth zero.
var Magic = []byte{0x91, 0xD1, 0xF2}

const Version byte = 0x01

// Record tags. The CHUNK tag carries the visibility flag in its low bit.
const (
	TagChunk byte = 0x40
	TagOpen  byte = 0x20
	TagClose byte = 0x30

	visBit byte = 0x01
)

var (
	ErrBadVersion      = errors.New("frame: unsupported stream version")
	ErrBadTag          = errors.New("frame: unknown record tag")
	ErrBadKind         = errors.New("frame: unknown meta value kind")
	ErrTruncated       = errors.New("frame: truncated stream")
	ErrUnmatchedClose  = errors.New("frame: unmatched close record")
	ErrVarintOverflow  = errors.New("frame: varint overflow")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrMetaTooLarge    = errors.New("frame: meta block too large")
	ErrTooDeep         = errors.New("frame: nesting too deep")
	ErrPathMismatch    = errors.New("frame: chunk path out of order")
	ErrWriterClosed    = errors.New("frame: writer closed")
)

// Limits constrains decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
	MaxMetaBytes    uint64
	MaxDepth        int
	MaxFrameChunks  int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 1 << 30,
		MaxMetaBytes:    16 << 20,
		MaxDepth:        256,
		MaxFrameChunks:  1 << 20,
	}
}
