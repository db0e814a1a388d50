package pipeline

import (
	"errors"
	"io"
	"strings"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/frame"
	"github.com/danmuck/binpipe/internal/unit"
)

// ExtractNesting strips bracket tokens off the end of a single unit's argv
// and returns the remaining arguments, the net frame depth change, and
// whether the unit's outputs are squeezed into one chunk.
func ExtractNesting(args []string) ([]string, int, bool) {
	end := len(args)
	nesting := 0
	squeeze := false
	for end > 0 {
		arg := args[end-1]
		if arg == "" || strings.Trim(arg, "[]|") != "" {
			break
		}
		for _, tok := range splitControl(arg) {
			switch tok.sym {
			case symOpen, symOpenScope:
				nesting++
			case symClose, symCloseScope:
				nesting--
			case symSqueeze:
				squeeze = true
			}
		}
		end--
	}
	return args[:end], nesting, squeeze
}

// framedSink writes chunks back onto the wire.
type framedSink struct {
	w *frame.Writer
}

func (p *framedSink) feed(c *chunk.Chunk) error {
	if err := p.w.WriteChunk(c); err != nil {
		return &unit.FrameError{Err: err}
	}
	return nil
}

func (p *framedSink) flush() error {
	if err := p.w.Close(); err != nil {
		return &unit.FrameError{Err: err}
	}
	return nil
}

// collapseProc truncates chunk paths when frames close, renumbering at the
// target depth.
type collapseProc struct {
	depth int
	out   emitter
}

func (p *collapseProc) feed(c *chunk.Chunk) error {
	c.Truncate(p.depth)
	c.PruneScope(p.depth)
	c.ResetVisibilityMark()
	return p.out.emit(c)
}

func (p *collapseProc) flush() error {
	return p.out.next.flush()
}

// RunSingle executes one unit as a process in a shell pipe: framed or raw
// input on stdin, framed or raw output on stdout, with the depth change
// requested by the unit's bracket tokens.
func (d *Driver) RunSingle(name string, args []string, nesting int, squeeze bool, in io.Reader, out io.Writer) error {
	bu, err := d.bind(name, args)
	if err != nil {
		return err
	}
	ctx := d.newContext()

	reader := frame.NewReaderLimits(in, d.Limits)
	first, rerr := reader.Next()
	if rerr != nil && !errors.Is(rerr, io.EOF) {
		return &unit.FrameError{Err: rerr}
	}

	gauge := 0
	if first != nil {
		gauge = first.Depth()
	}
	target := gauge + nesting
	if target < 0 {
		target = 0
	}

	var sink proc
	if target > 0 || (nesting >= 0 && reader.Framed()) {
		sink = &framedSink{w: frame.NewWriterLimits(out, d.Limits)}
	} else {
		sink = &rawSink{w: out}
	}

	var tail proc = sink
	if nesting < 0 {
		tail = &collapseProc{depth: target, out: emitter{next: sink}}
	}

	up := &unitProc{d: d, bu: bu, ctx: ctx, squeeze: squeeze, out: emitter{next: tail}}
	if nesting > 0 {
		up.nest = nesting
	}

	if bu.source != nil {
		// A source process ignores its input; generated chunks take the
		// place of the outputs of one synthetic root chunk.
		root := chunk.New(nil)
		k := 0
		gen := func(c *chunk.Chunk) error {
			if up.nest > 0 {
				path := append(append([]int(nil), root.Path...), k)
				for i := 1; i < up.nest; i++ {
					path = append(path, 0)
				}
				c.Path = path
				c.Scope = len(path) - 1
				k++
				return up.out.emit(c)
			}
			return up.out.emit(c)
		}
		ctx.Depth = 0
		if err := bu.source.Generate(ctx, gen); err != nil {
			return err
		}
		return up.flush()
	}

	if first != nil {
		if err := up.feed(first); err != nil {
			return err
		}
	}
	for {
		c, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &unit.FrameError{Err: err}
		}
		if err := up.feed(c); err != nil {
			return err
		}
	}
	return up.flush()
}
