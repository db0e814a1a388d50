package frame

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/binpipe/internal/chunk"
)

// Reader decodes a chunk stream from a pipe. If the stream does not begin
// with the magic marker it degrades to raw mode: the entire input becomes a
// single chunk without meta at depth zero.
type Reader struct {
	br     *bufio.Reader
	limits Limits

	framed  bool
	started bool
	done    bool

	// counters holds the next chunk index per open frame layer; its length
	// is the current depth plus one.
	counters []int
}

func NewReader(r io.Reader) *Reader {
	return NewReaderLimits(r, DefaultLimits())
}

func NewReaderLimits(r io.Reader, limits Limits) *Reader {
	return &Reader{br: bufio.NewReader(r), limits: limits}
}

// Framed reports whether the stream carried the magic marker. Only valid
// after the first call to Next.
func (r *Reader) Framed() bool { return r.framed }

// Depth is the current frame depth.
func (r *Reader) Depth() int {
	if len(r.counters) == 0 {
		return 0
	}
	return len(r.counters) - 1
}

func (r *Reader) start() error {
	r.started = true
	r.counters = []int{0}

	head, err := r.br.Peek(len(Magic))
	if err != nil {
		// Shorter than the magic marker: raw stream.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if !bytes.Equal(head, Magic) {
		return nil
	}
	if _, err := r.br.Discard(len(Magic)); err != nil {
		return err
	}
	version, err := r.br.ReadByte()
	if err != nil {
		return ErrTruncated
	}
	if version != Version {
		return fmt.Errorf("%w: 0x%02x", ErrBadVersion, version)
	}
	r.framed = true
	return nil
}

// Next returns the next chunk, or io.EOF when the stream is drained. Frame
// depth changes are consumed transparently; the returned chunk carries its
// reconstructed path.
func (r *Reader) Next() (*chunk.Chunk, error) {
	if !r.started {
		if err := r.start(); err != nil {
			return nil, err
		}
		if !r.framed {
			return r.rawChunk()
		}
	}
	if r.done {
		return nil, io.EOF
	}
	if !r.framed {
		return nil, io.EOF
	}

	for {
		tag, err := r.br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(r.counters) > 1 {
					return nil, ErrTruncated
				}
				r.done = true
				return nil, io.EOF
			}
			return nil, err
		}
		switch {
		case tag&^visBit == TagChunk:
			return r.readChunk(tag&visBit != 0)
		case tag == TagOpen:
			if len(r.counters) >= r.limits.MaxDepth {
				return nil, ErrTooDeep
			}
			r.counters = append(r.counters, 0)
		case tag == TagClose:
			if len(r.counters) <= 1 {
				return nil, ErrUnmatchedClose
			}
			r.counters = r.counters[:len(r.counters)-1]
			r.counters[len(r.counters)-1]++
		default:
			return nil, fmt.Errorf("%w: 0x%02x", ErrBadTag, tag)
		}
	}
}

func (r *Reader) readChunk(visible bool) (*chunk.Chunk, error) {
	payloadLen, err := readUvarint(r.br)
	if err != nil {
		return nil, err
	}
	if payloadLen > r.limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return nil, ErrTruncated
	}

	metaLen, err := readUvarint(r.br)
	if err != nil {
		return nil, err
	}
	if metaLen > r.limits.MaxMetaBytes {
		return nil, ErrMetaTooLarge
	}
	block := make([]byte, metaLen)
	if _, err := io.ReadFull(r.br, block); err != nil {
		return nil, ErrTruncated
	}

	depth := len(r.counters) - 1
	c := chunk.New(payload)
	c.Visible = visible
	c.Path = append([]int(nil), r.counters...)
	c.Scope = depth
	r.counters[depth]++
	if len(block) > 0 {
		if err := decodeMeta(block, c, depth, r.limits); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (r *Reader) rawChunk() (*chunk.Chunk, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(io.LimitReader(r.br, int64(r.limits.MaxPayloadBytes)+1)); err != nil {
		return nil, err
	}
	if uint64(buf.Len()) > r.limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	r.done = true
	return chunk.New(buf.Bytes()), nil
}
