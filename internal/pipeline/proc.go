package pipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/logging"
	"github.com/danmuck/binpipe/internal/unit"
)

// proc is one stage of a running pipeline. Chunks are pushed downstream as
// they are produced; flush signals end of input.
type proc interface {
	feed(c *chunk.Chunk) error
	flush() error
}

// emitter renumbers trailing path indices so that chunks within one frame
// carry monotonically increasing indices, then forwards downstream.
type emitter struct {
	next   proc
	prefix []int
	index  int
	primed bool
}

func (e *emitter) emit(c *chunk.Chunk) error {
	p := c.Path[:len(c.Path)-1]
	if !e.primed || !eqInts(e.prefix, p) {
		e.prefix = append(e.prefix[:0], p...)
		e.index = 0
		e.primed = true
	}
	c.Path = append(append(make([]int, 0, len(p)+1), p...), e.index)
	e.index++
	return e.next.feed(c)
}

func eqInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// unitProc runs one bound unit. Frame-aware units buffer one frame and are
// driven through Filter instead of Process.
type unitProc struct {
	d   *Driver
	bu  *boundUnit
	ctx *unit.Context
	out emitter

	squeeze bool

	// nest appends this many path levels to every output, counting outputs
	// per input chunk; used by the single-unit frame entry (`unit ... [`).
	nest int

	buf   []*chunk.Chunk
	key   []int
	keyed bool
}

func (p *unitProc) feed(c *chunk.Chunk) error {
	if p.bu.filter != nil {
		key := c.Path[:len(c.Path)-1]
		if p.keyed && !eqInts(p.key, key) {
			if err := p.drain(); err != nil {
				return err
			}
		}
		if !p.keyed {
			p.key = append(p.key[:0], key...)
			p.keyed = true
		}
		if len(p.buf) >= p.d.Limits.MaxFrameChunks {
			return &unit.FrameError{Err: fmt.Errorf("frame exceeds %d chunks", p.d.Limits.MaxFrameChunks)}
		}
		p.buf = append(p.buf, c)
		return nil
	}
	return p.process(c)
}

func (p *unitProc) process(c *chunk.Chunk) error {
	if !c.Visible {
		return p.forward(c, c.Path)
	}

	p.ctx.Depth = c.Depth()
	p.ctx.Binding.Chunk = c
	p.ctx.Lenient = p.bu.lenient
	p.ctx.Quiet = p.bu.quiet

	parent := append([]int(nil), c.Path...)
	var fused *chunk.Chunk
	sink := func(o *chunk.Chunk) error {
		if p.squeeze {
			if fused == nil {
				fused = o
				return nil
			}
			fused.Data = append(fused.Data, o.Data...)
			return nil
		}
		return p.forward(o, parent)
	}

	var err error
	if p.bu.reverse {
		err = p.bu.reverser.Reverse(p.ctx, c, sink)
	} else {
		err = p.bu.u.Process(p.ctx, c, sink)
	}
	if err != nil {
		return p.classify(c, err)
	}
	if p.squeeze && fused != nil {
		return p.forward(fused, parent)
	}
	return nil
}

// forward nests and renumbers one output chunk. The parent path decides
// which frame the output lands in when the proc nests.
func (p *unitProc) forward(o *chunk.Chunk, parent []int) error {
	if p.nest > 0 {
		path := append(append([]int(nil), parent...), 0)
		for i := 1; i < p.nest; i++ {
			path = append(path, 0)
		}
		o.Path = path
		o.Scope = len(path) - 1
	}
	return p.out.emit(o)
}

func (p *unitProc) drain() error {
	if !p.keyed || len(p.buf) == 0 {
		p.buf = nil
		p.keyed = false
		return nil
	}
	frame := p.buf
	p.buf = nil
	p.keyed = false

	p.ctx.Depth = frame[0].Depth()
	p.ctx.Binding.Chunk = frame[0]
	out, err := p.bu.filter.Filter(p.ctx, frame)
	if err != nil {
		return p.classify(frame[0], err)
	}
	for _, c := range out {
		if err := p.forward(c, c.Path); err != nil {
			return err
		}
	}
	return nil
}

func (p *unitProc) flush() error {
	if p.bu.filter != nil {
		if err := p.drain(); err != nil {
			return err
		}
	}
	return p.out.next.flush()
}

// classify decides between drop-and-warn and abort. Argument and frame
// faults abort; -L downgrades per-chunk argument faults; everything else
// drops the chunk with a warning.
func (p *unitProc) classify(c *chunk.Chunk, err error) error {
	var fe *unit.FrameError
	if errors.As(err, &fe) {
		return err
	}
	var ae *unit.ArgumentError
	if errors.As(err, &ae) && !p.bu.lenient {
		return err
	}
	if !p.bu.quiet {
		logging.Failure(p.bu.name, unit.PathString(c.Path), err)
	}
	return nil
}

// collectProc gathers chunks, used by group bodies and in-memory
// sub-pipelines.
type collectProc struct {
	chunks []*chunk.Chunk
}

func (p *collectProc) feed(c *chunk.Chunk) error {
	p.chunks = append(p.chunks, c)
	return nil
}

func (p *collectProc) flush() error { return nil }

// rawSink writes top-level chunk payloads to the output. Multiple chunks
// are separated by line breaks, matching unframed multi-output behavior.
type rawSink struct {
	w     io.Writer
	wrote bool
}

func (p *rawSink) feed(c *chunk.Chunk) error {
	if p.wrote {
		if _, err := p.w.Write([]byte("\n")); err != nil {
			return err
		}
	}
	p.wrote = true
	_, err := p.w.Write(c.Data)
	return err
}

func (p *rawSink) flush() error { return nil }
