package unit

import (
	"github.com/spf13/pflag"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/multibin"
)

// Sink receives chunks as a unit produces them. Emission is lazy: a unit
// calls the sink per output instead of collecting results.
type Sink func(*chunk.Chunk) error

// Unit is one transformation. Instances move through
// configured -> processing -> drained; there are no other states.
type Unit interface {
	Name() string
	Help() string

	// Flags declares unit-specific switches. The reserved switches
	// (-R, -Q, -L, --help) are owned by the runtime.
	Flags(fs *pflag.FlagSet)

	// Configure binds positional arguments, compiling multibin expressions
	// once per instance.
	Configure(ctx *ConfigContext, args []string) error

	// Process transforms one chunk into zero or more chunks.
	Process(ctx *Context, c *chunk.Chunk, emit Sink) error
}

// Reverser is implemented by units that advertise an inverse, selected with
// the -R switch.
type Reverser interface {
	Unit
	Reverse(ctx *Context, c *chunk.Chunk, emit Sink) error
}

// FrameFilter is implemented by frame-aware units (sorted, dedup, scope).
// The driver buffers one full frame and passes it through Filter in place
// of per-chunk processing.
type FrameFilter interface {
	Unit
	Filter(ctx *Context, frame []*chunk.Chunk) ([]*chunk.Chunk, error)
}

// Source is implemented by head units that generate chunks instead of
// transforming input (emit, ef).
type Source interface {
	Unit
	Generate(ctx *Context, emit Sink) error
}

// ConfigContext is handed to Configure.
type ConfigContext struct {
	Registry *multibin.Registry
}

// Context is the per-run environment. Binding.Chunk is pointed at the chunk
// under evaluation before each Process call so that per-chunk multibin
// arguments resolve against it.
type Context struct {
	Binding *multibin.Context

	// Depth is the current frame depth; meta bindings created by units are
	// scoped to it.
	Depth int

	Lenient bool
	Quiet   bool
}

// Arg is one bound multibin argument.
type Arg struct {
	expr *multibin.Expr
}

// ParseArg compiles a multibin expression into an argument binding.
func ParseArg(ctx *ConfigContext, raw string) (Arg, error) {
	e, err := multibin.Compile(raw, ctx.Registry)
	if err != nil {
		return Arg{}, &ArgumentError{Err: err}
	}
	return Arg{expr: e}, nil
}

// Bytes evaluates the argument for the chunk currently bound in ctx.
// Evaluation failures are argument faults.
func (a Arg) Bytes(ctx *Context) ([]byte, error) {
	if a.expr == nil {
		return nil, nil
	}
	out, err := a.expr.Eval(ctx.Binding)
	if err != nil {
		return nil, &ArgumentError{Err: err}
	}
	return out, nil
}

// Static reports whether the argument is chunk-independent.
func (a Arg) Static() bool {
	return a.expr == nil || a.expr.Static()
}

// Bound reports whether the argument was set.
func (a Arg) Bound() bool { return a.expr != nil }

// Literal returns the raw text of a handler-free argument.
func (a Arg) Literal() (string, bool) {
	if a.expr == nil {
		return "", false
	}
	return a.expr.Literal()
}
