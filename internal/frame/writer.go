package frame

import (
	"fmt"
	"io"

	"github.com/danmuck/binpipe/internal/chunk"
)

// Writer encodes a chunk stream onto a pipe. OPEN and CLOSE records are
// derived from each chunk's path: the writer tracks the same counter stack
// as the reader and refuses chunks whose path contradicts it, so that
// encode/decode round-trips exactly.
type Writer struct {
	w      io.Writer
	limits Limits

	started  bool
	closed   bool
	counters []int
}

func NewWriter(w io.Writer) *Writer {
	return NewWriterLimits(w, DefaultLimits())
}

func NewWriterLimits(w io.Writer, limits Limits) *Writer {
	return &Writer{w: w, limits: limits}
}

func (w *Writer) start() error {
	w.started = true
	w.counters = []int{0}
	if _, err := w.w.Write(Magic); err != nil {
		return err
	}
	_, err := w.w.Write([]byte{Version})
	return err
}

// WriteChunk emits a chunk record, first aligning the frame depth with the
// chunk's path by emitting CLOSE and OPEN records.
func (w *Writer) WriteChunk(c *chunk.Chunk) error {
	if w.closed {
		return ErrWriterClosed
	}
	if !w.started {
		if err := w.start(); err != nil {
			return err
		}
	}
	if len(c.Path) == 0 {
		return ErrPathMismatch
	}
	if len(c.Path) > w.limits.MaxDepth {
		return ErrTooDeep
	}
	if uint64(len(c.Data)) > w.limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}

	if err := w.align(c.Path); err != nil {
		return err
	}

	meta, err := encodeMeta(c)
	if err != nil {
		return err
	}
	if uint64(len(meta)) > w.limits.MaxMetaBytes {
		return ErrMetaTooLarge
	}

	tag := TagChunk
	if c.Visible {
		tag |= visBit
	}
	record := []byte{tag}
	record = appendUvarint(record, uint64(len(c.Data)))
	record = append(record, c.Data...)
	record = appendUvarint(record, uint64(len(meta)))
	record = append(record, meta...)
	if _, err := w.w.Write(record); err != nil {
		return err
	}
	w.counters[len(w.counters)-1]++
	return nil
}

func (w *Writer) align(path []int) error {
	// Pop frames the chunk is no longer inside of.
	for len(w.counters) > len(path) {
		if err := w.emitClose(); err != nil {
			return err
		}
	}
	// Sibling groups end before a new one opens: close until every open
	// ancestor matches the chunk's path prefix.
	for len(w.counters) > 1 && !w.ancestorsMatch(path) {
		if err := w.emitClose(); err != nil {
			return err
		}
	}
	// Open frames down to the chunk's depth.
	for len(w.counters) < len(path) {
		idx := len(w.counters) - 1
		if path[idx] != w.counters[idx] {
			return fmt.Errorf("%w: want prefix %d at depth %d, have %d",
				ErrPathMismatch, w.counters[idx], idx, path[idx])
		}
		if _, err := w.w.Write([]byte{TagOpen}); err != nil {
			return err
		}
		w.counters = append(w.counters, 0)
	}
	if got, want := path[len(path)-1], w.counters[len(path)-1]; got != want {
		return fmt.Errorf("%w: chunk index %d, expected %d", ErrPathMismatch, got, want)
	}
	for i := 0; i < len(path)-1; i++ {
		if path[i] != w.counters[i] {
			return fmt.Errorf("%w: ancestor index %d at depth %d, expected %d",
				ErrPathMismatch, path[i], i, w.counters[i])
		}
	}
	return nil
}

func (w *Writer) ancestorsMatch(path []int) bool {
	for i := 0; i < len(w.counters)-1; i++ {
		if path[i] != w.counters[i] {
			return false
		}
	}
	return true
}

func (w *Writer) emitClose() error {
	if _, err := w.w.Write([]byte{TagClose}); err != nil {
		return err
	}
	w.counters = w.counters[:len(w.counters)-1]
	w.counters[len(w.counters)-1]++
	return nil
}

// Close ends the stream, closing any frames still open. The underlying
// writer is not closed.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if !w.started {
		return w.start()
	}
	for len(w.counters) > 1 {
		if err := w.emitClose(); err != nil {
			return err
		}
	}
	return nil
}
