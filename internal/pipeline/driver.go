package pipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/frame"
	"github.com/danmuck/binpipe/internal/multibin"
	"github.com/danmuck/binpipe/internal/unit"
	"github.com/danmuck/binpipe/internal/units"
)

// Driver wires a parsed pipeline into a running chain of procs.
type Driver struct {
	Handlers       *multibin.Registry
	Limits         frame.Limits
	RecursionLimit int
}

func NewDriver() *Driver {
	return &Driver{
		Handlers:       multibin.DefaultRegistry(),
		Limits:         frame.DefaultLimits(),
		RecursionLimit: 32,
	}
}

// boundUnit is a configured unit instance with its reserved switches.
type boundUnit struct {
	u        unit.Unit
	name     string
	reverse  bool
	quiet    bool
	lenient  bool
	reverser unit.Reverser
	filter   unit.FrameFilter
	source   unit.Source
}

type boundStage interface {
	boundStage()
}

type boundUnitStage struct {
	bu      *boundUnit
	squeeze bool
}

func (*boundUnitStage) boundStage() {}

type boundGroupStage struct {
	header        *boundUnit
	headerSqueeze bool
	body          []boundStage
	scoped        bool
}

func (*boundGroupStage) boundStage() {}

// bind instantiates and configures one unit: reserved switches first, then
// unit flags, then positional multibin arguments.
func (d *Driver) bind(name string, args []string) (*boundUnit, error) {
	u, err := units.New(name)
	if err != nil {
		return nil, &unit.ArgumentError{Err: err}
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	reverse := fs.BoolP("reverse", "R", false, "run the unit in reverse")
	quiet := fs.BoolP("quiet", "Q", false, "suppress non-fatal warnings")
	lenient := fs.BoolP("lenient", "L", false, "drop chunks on per-chunk argument failures")
	u.Flags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, unit.Argumentf("%s: %v", name, err)
	}

	cctx := &unit.ConfigContext{Registry: d.Handlers}
	if err := u.Configure(cctx, fs.Args()); err != nil {
		var ae *unit.ArgumentError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, &unit.ArgumentError{Err: err}
	}

	bu := &boundUnit{
		u:       u,
		name:    name,
		reverse: *reverse,
		quiet:   *quiet,
		lenient: *lenient,
	}
	bu.reverser, _ = u.(unit.Reverser)
	bu.filter, _ = u.(unit.FrameFilter)
	bu.source, _ = u.(unit.Source)
	if bu.reverse && bu.reverser == nil {
		return nil, unit.Argumentf("%s is not reversible", name)
	}
	return bu, nil
}

func (d *Driver) bindStages(stages []Stage) ([]boundStage, error) {
	out := make([]boundStage, 0, len(stages))
	for _, st := range stages {
		switch s := st.(type) {
		case *UnitStage:
			bu, err := d.bind(s.UnitName, s.Args)
			if err != nil {
				return nil, err
			}
			out = append(out, &boundUnitStage{bu: bu, squeeze: s.Squeeze})
		case *GroupStage:
			var header *boundUnit
			var headerSqueeze bool
			if s.Header != nil {
				bu, err := d.bind(s.Header.UnitName, s.Header.Args)
				if err != nil {
					return nil, err
				}
				header = bu
				headerSqueeze = s.Header.Squeeze
			}
			body, err := d.bindStages(s.Body)
			if err != nil {
				return nil, err
			}
			out = append(out, &boundGroupStage{
				header:        header,
				headerSqueeze: headerSqueeze,
				body:          body,
				scoped:        s.ScopedExit,
			})
		}
	}
	return out, nil
}

// newContext builds the shared per-run evaluation environment.
func (d *Driver) newContext() *unit.Context {
	return &unit.Context{
		Binding: &multibin.Context{
			Registry: d.Handlers,
			MaxDepth: d.RecursionLimit,
			RunUnit:  d.runUnitForHandler,
		},
	}
}

// chain builds the proc pipeline back to front.
func (d *Driver) chain(stages []boundStage, ctx *unit.Context, final proc) proc {
	cur := final
	for i := len(stages) - 1; i >= 0; i-- {
		switch s := stages[i].(type) {
		case *boundUnitStage:
			cur = &unitProc{d: d, bu: s.bu, ctx: ctx, squeeze: s.squeeze, out: emitter{next: cur}}
		case *boundGroupStage:
			cur = &groupProc{d: d, g: s, ctx: ctx, out: emitter{next: cur}}
		}
	}
	return cur
}

// groupProc executes a bracket group: the header's outputs per input chunk
// form one frame, the body transforms it, and the close collapses the
// results back to the outer depth.
type groupProc struct {
	d   *Driver
	g   *boundGroupStage
	ctx *unit.Context
	out emitter
}

func (p *groupProc) feed(c *chunk.Chunk) error {
	if !c.Visible {
		return p.out.emit(c)
	}
	members, err := p.runHeader(c)
	if err != nil {
		return err
	}
	return p.processFrame(c, members, c.Depth())
}

// processFrame runs the body over one frame and collapses the results back
// to the outer depth.
func (p *groupProc) processFrame(origin *chunk.Chunk, members []*chunk.Chunk, outerDepth int) error {
	res, err := p.runBody(members)
	if err != nil {
		return err
	}
	if p.g.scoped {
		return p.mergeScoped(origin, res, outerDepth)
	}
	for _, r := range res {
		r.Truncate(outerDepth)
		r.PruneScope(outerDepth)
		r.ResetVisibilityMark()
		if err := p.out.emit(r); err != nil {
			return err
		}
	}
	return nil
}

// runHeader produces the frame members for one input chunk.
func (p *groupProc) runHeader(c *chunk.Chunk) ([]*chunk.Chunk, error) {
	if p.g.header == nil {
		// A bare bracket group frames the chunk by itself.
		member := c.Copy()
		member.Path = append(append([]int(nil), c.Path...), 0)
		member.Scope = member.Depth()
		return []*chunk.Chunk{member}, nil
	}
	nested := &collectProc{}
	hp := &unitProc{
		d:       p.d,
		bu:      p.g.header,
		ctx:     p.ctx,
		squeeze: p.g.headerSqueeze,
		nest:    1,
		out:     emitter{next: nested},
	}
	if err := hp.feed(c); err != nil {
		return nil, err
	}
	if err := hp.drainForHeader(); err != nil {
		return nil, err
	}
	return nested.chunks, nil
}

// drainForHeader flushes a frame-aware header without flushing downstream.
func (p *unitProc) drainForHeader() error {
	if p.bu != nil && p.bu.filter != nil {
		return p.drain()
	}
	return nil
}

func (p *groupProc) runBody(frameChunks []*chunk.Chunk) ([]*chunk.Chunk, error) {
	collector := &collectProc{}
	head := p.d.chain(p.g.body, p.ctx, collector)
	for _, m := range frameChunks {
		if err := head.feed(m); err != nil {
			return nil, err
		}
	}
	if err := head.flush(); err != nil {
		return nil, err
	}
	return collector.chunks, nil
}

// mergeScoped applies the `|]` close: meta computed inside the group lands
// on the original chunk while its payload stays untouched. Body outputs
// surface only when a unit inside marked them visible.
func (p *groupProc) mergeScoped(c *chunk.Chunk, res []*chunk.Chunk, outerDepth int) error {
	merged := map[string]bool{}
	for _, r := range res {
		for _, name := range r.MetaNames() {
			if merged[name] || c.HasMeta(name) {
				continue
			}
			v, err := r.Meta(name)
			if err != nil {
				continue
			}
			if err := c.SetMeta(name, v, outerDepth); err != nil {
				return err
			}
			merged[name] = true
		}
	}
	if err := p.out.emit(c); err != nil {
		return err
	}
	for _, r := range res {
		if !r.VisibilityTouched() || !r.Visible {
			continue
		}
		r.Truncate(outerDepth)
		r.PruneScope(outerDepth)
		r.ResetVisibilityMark()
		if err := p.out.emit(r); err != nil {
			return err
		}
	}
	return nil
}

func (p *groupProc) flush() error {
	return p.out.next.flush()
}

// Run executes a full pipeline in process: raw bytes in, raw bytes out.
// Multiple surviving top-level chunks are separated by line breaks.
func (d *Driver) Run(p *Pipeline, in io.Reader, out io.Writer) error {
	bound, err := d.bindStages(p.Stages)
	if err != nil {
		return err
	}
	ctx := d.newContext()
	sink := &rawSink{w: out}
	head := d.chain(bound, ctx, sink)

	if src := headSource(bound); src != nil {
		if gp, ok := head.(*groupProc); ok {
			// A source heading a bracket group emits all of its chunks
			// into a single frame.
			var members []*chunk.Chunk
			k := 0
			collect := func(c *chunk.Chunk) error {
				c.Path = []int{0, k}
				c.Scope = 1
				k++
				members = append(members, c)
				return nil
			}
			if err := runGenerate(src, ctx, collect); err != nil {
				return err
			}
			origin := chunk.New(nil)
			if err := gp.processFrame(origin, members, 0); err != nil {
				return err
			}
			return head.flush()
		}
		gen := func(c *chunk.Chunk) error {
			return head.feed(c)
		}
		if err := runGenerate(src, ctx, gen); err != nil {
			return err
		}
		return head.flush()
	}

	reader := frame.NewReaderLimits(in, d.Limits)
	for {
		c, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &unit.FrameError{Err: err}
		}
		if err := head.feed(c); err != nil {
			return err
		}
	}
	return head.flush()
}

// headSource reports the source unit driving the pipeline, when the first
// stage is one.
func headSource(bound []boundStage) *boundUnit {
	if len(bound) == 0 {
		return nil
	}
	switch s := bound[0].(type) {
	case *boundUnitStage:
		if s.bu.source != nil {
			return s.bu
		}
	case *boundGroupStage:
		if s.header != nil && s.header.source != nil {
			return s.header
		}
	}
	return nil
}

// runGenerate drives a source unit. Generated chunks are numbered at the
// top level by the chain's own emitters.
func runGenerate(bu *boundUnit, ctx *unit.Context, emit unit.Sink) error {
	ctx.Depth = 0
	return bu.source.Generate(ctx, emit)
}

// runUnitForHandler backs the eat and q handlers: one unit over one
// in-memory chunk, outputs concatenated.
func (d *Driver) runUnitForHandler(mctx *multibin.Context, name string, args []string, input []byte) ([]byte, error) {
	bu, err := d.bind(name, args)
	if err != nil {
		return nil, err
	}
	ctx := &unit.Context{Binding: &multibin.Context{
		Registry: d.Handlers,
		Depth:    mctx.Depth,
		MaxDepth: mctx.MaxDepth,
		RunUnit:  d.runUnitForHandler,
	}}
	c := chunk.New(input)
	ctx.Binding.Chunk = c

	var out []byte
	sink := func(o *chunk.Chunk) error {
		out = append(out, o.Data...)
		return nil
	}
	if bu.reverse {
		err = bu.reverser.Reverse(ctx, c, sink)
	} else {
		err = bu.u.Process(ctx, c, sink)
	}
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", name, err)
	}
	return out, nil
}
