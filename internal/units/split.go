package units

import (
	"regexp"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/multibin"
	"github.com/danmuck/binpipe/internal/unit"
)

// chopUnit splits the payload into fixed size blocks.
type chopUnit struct {
	base
	size     int
	truncate bool
}

func init() {
	Register(func() unit.Unit {
		return &chopUnit{base: base{name: "chop", help: "split the payload into blocks of the given size"}}
	})
	Register(func() unit.Unit {
		return &resplitUnit{base: base{name: "resplit", help: "split the payload on a regular expression, default line breaks"}}
	})
	Register(func() unit.Unit {
		return &snipUnit{base: base{name: "snip", help: "emit one chunk per start:end slice argument"}}
	})
}

func (u *chopUnit) Flags(fs *pflag.FlagSet) {
	fs.BoolVarP(&u.truncate, "truncate", "t", false, "drop a trailing block shorter than the block size")
}

func (u *chopUnit) Configure(_ *unit.ConfigContext, args []string) error {
	if len(args) != 1 {
		return unit.Argumentf("chop takes exactly one block size")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return unit.Argumentf("chop block size %q", args[0])
	}
	u.size = n
	return nil
}

func (u *chopUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	data := c.Data
	for len(data) > 0 {
		n := u.size
		if n > len(data) {
			if u.truncate {
				return nil
			}
			n = len(data)
		}
		if err := emit(c.Derive(append([]byte(nil), data[:n]...))); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// resplitUnit splits on a pattern; the separators are discarded.
type resplitUnit struct {
	base
	pattern *regexp.Regexp
}

func (u *resplitUnit) Configure(_ *unit.ConfigContext, args []string) error {
	raw := `\r?\n`
	if len(args) > 1 {
		return unit.Argumentf("resplit takes at most one pattern")
	}
	if len(args) == 1 {
		unescaped, err := multibin.Unescape([]byte(args[0]))
		if err != nil {
			return unit.Argumentf("resplit pattern %q: %v", args[0], err)
		}
		raw = string(unescaped)
	}
	re, err := regexp.Compile(raw)
	if err != nil {
		return unit.Argumentf("resplit pattern %q: %v", raw, err)
	}
	u.pattern = re
	return nil
}

func (u *resplitUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	for _, part := range u.pattern.Split(string(c.Data), -1) {
		if err := emit(c.Derive([]byte(part))); err != nil {
			return err
		}
	}
	return nil
}

// snipUnit emits the requested slices of the payload.
type snipUnit struct {
	base
	slices []string
}

func (u *snipUnit) Configure(_ *unit.ConfigContext, args []string) error {
	if len(args) == 0 {
		return unit.Argumentf("snip takes at least one start:end slice")
	}
	u.slices = args
	return nil
}

func (u *snipUnit) Process(ctx *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	for _, spec := range u.slices {
		start, end, err := multibin.ResolveSlice(spec, len(c.Data), ctx.Binding)
		if err != nil {
			return err
		}
		if err := emit(c.Derive(append([]byte(nil), c.Data[start:end]...))); err != nil {
			return err
		}
	}
	return nil
}
