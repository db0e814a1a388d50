package units

import (
	"github.com/spf13/pflag"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/unit"
)

// base supplies the boilerplate half of the unit contract.
type base struct {
	name string
	help string
}

func (b base) Name() string { return b.name }
func (b base) Help() string { return b.help }

func (base) Flags(*pflag.FlagSet) {}

func (base) Configure(*unit.ConfigContext, []string) error { return nil }

type bytesFn func(ctx *unit.Context, c *chunk.Chunk, input []byte) ([]byte, error)

// transform is a 1:1 unit without an inverse.
type transform struct {
	base
	fwd bytesFn
}

func (u *transform) Process(ctx *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	out, err := u.fwd(ctx, c, c.Data)
	if err != nil {
		return err
	}
	return emit(c.Derive(out))
}

// reversible is a 1:1 unit carrying both directions; it is reversible
// exactly because it constructs with a non-nil inverse.
type reversible struct {
	transform
	rev bytesFn
}

func (u *reversible) Reverse(ctx *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	out, err := u.rev(ctx, c, c.Data)
	if err != nil {
		return err
	}
	return emit(c.Derive(out))
}

func plain(fn func([]byte) ([]byte, error)) bytesFn {
	return func(_ *unit.Context, _ *chunk.Chunk, input []byte) ([]byte, error) {
		return fn(input)
	}
}
