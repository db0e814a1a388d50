package units

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/unit"
)

// emitUnit is the canonical source: each positional argument becomes one
// chunk. Arguments are multibin expressions, so `emit b64:aGk=` emits the
// decoded bytes.
type emitUnit struct {
	base
	args []unit.Arg
}

func init() {
	Register(func() unit.Unit {
		return &emitUnit{base: base{name: "emit", help: "emit each argument as one chunk"}}
	})
	Register(func() unit.Unit {
		return &efUnit{base: base{name: "ef", help: "emit the contents of each matching file as one chunk"}}
	})
}

func (u *emitUnit) Configure(ctx *unit.ConfigContext, args []string) error {
	for _, raw := range args {
		a, err := unit.ParseArg(ctx, raw)
		if err != nil {
			return err
		}
		u.args = append(u.args, a)
	}
	return nil
}

func (u *emitUnit) Generate(ctx *unit.Context, emit unit.Sink) error {
	for _, a := range u.args {
		data, err := a.Bytes(ctx)
		if err != nil {
			return err
		}
		emitted := chunk.New(data)
		if err := emit(emitted); err != nil {
			return err
		}
	}
	return nil
}

func (u *emitUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	// As a pass-through stage, emit forwards input unchanged.
	return emit(c)
}

// efUnit emits file contents; the file path travels along as meta.
type efUnit struct {
	base
	patterns []string
}

func (u *efUnit) Configure(_ *unit.ConfigContext, args []string) error {
	if len(args) == 0 {
		return unit.Argumentf("ef takes at least one path or glob pattern")
	}
	u.patterns = args
	return nil
}

func (u *efUnit) Generate(ctx *unit.Context, emit unit.Sink) error {
	var paths []string
	for _, pattern := range u.patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return unit.Argumentf("ef pattern %q: %v", pattern, err)
		}
		if matches == nil {
			// A literal path that does not glob still gets a read attempt
			// so the user sees the open error.
			matches = []string{pattern}
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		c := chunk.New(data)
		if err := c.SetMeta("origin", chunk.StringValue(path), 0); err != nil {
			return err
		}
		if err := emit(c); err != nil {
			return err
		}
	}
	return nil
}

func (u *efUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	return emit(c)
}
