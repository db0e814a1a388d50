package units

import (
	"strconv"
	"strings"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/unit"
)

// putUnit binds a meta variable on each chunk; the binding is scoped to the
// frame depth it was created at and dies when that frame closes.
type putUnit struct {
	base
	name  string
	value unit.Arg
}

func init() {
	Register(func() unit.Unit {
		return &putUnit{base: base{name: "put", help: "bind a meta variable; the value defaults to the chunk payload"}}
	})
	Register(func() unit.Unit {
		return &wipeUnit{base: base{name: "wipe", help: "remove meta variables; all of them without arguments"}}
	})
	Register(func() unit.Unit {
		return &cfmtUnit{base: base{name: "cfmt", help: "format chunks: {} is the payload, {name} reads meta"}}
	})
}

func (u *putUnit) Configure(ctx *unit.ConfigContext, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return unit.Argumentf("put takes a name and an optional value")
	}
	if chunk.IsReserved(args[0]) {
		return unit.Argumentf("meta name %q is reserved", args[0])
	}
	if !chunk.ValidName(args[0]) {
		return unit.Argumentf("meta name %q is not an identifier", args[0])
	}
	u.name = args[0]
	if len(args) == 2 {
		a, err := unit.ParseArg(ctx, args[1])
		if err != nil {
			return err
		}
		u.value = a
	}
	return nil
}

func (u *putUnit) Process(ctx *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	var value chunk.Value
	if u.value.Bound() {
		// A bare name that resolves on the chunk reads that variable, so
		// `put len size` captures the payload length.
		if lit, ok := u.value.Literal(); ok && chunk.ValidName(lit) && c.HasMeta(lit) {
			v, err := c.Meta(lit)
			if err != nil {
				return err
			}
			value = v
		} else {
			raw, err := u.value.Bytes(ctx)
			if err != nil {
				return err
			}
			value = coerce(raw)
		}
	} else {
		value = chunk.BytesValue(append([]byte(nil), c.Data...))
	}
	if err := c.SetMeta(u.name, value, ctx.Depth); err != nil {
		return err
	}
	return emit(c)
}

// coerce stores small decimal strings as integers so that slice bounds and
// cfmt number formatting work naturally.
func coerce(raw []byte) chunk.Value {
	s := string(raw)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && s != "" {
		return chunk.IntValue(n)
	}
	return chunk.BytesValue(raw)
}

type wipeUnit struct {
	base
	names []string
}

func (u *wipeUnit) Configure(_ *unit.ConfigContext, args []string) error {
	for _, name := range args {
		if chunk.IsReserved(name) {
			return unit.Argumentf("meta name %q is reserved", name)
		}
	}
	u.names = args
	return nil
}

func (u *wipeUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	names := u.names
	if len(names) == 0 {
		names = c.MetaNames()
	}
	for _, name := range names {
		if c.HasMeta(name) && !chunk.IsReserved(name) {
			if err := c.DelMeta(name); err != nil {
				return err
			}
		}
	}
	return emit(c)
}

// cfmtUnit renders a format string per chunk. Brace fields reference meta
// variables; an empty field is the payload, `{{` and `}}` are literal.
type cfmtUnit struct {
	base
	format string
}

func (u *cfmtUnit) Configure(_ *unit.ConfigContext, args []string) error {
	if len(args) != 1 {
		return unit.Argumentf("cfmt takes exactly one format string")
	}
	u.format = args[0]
	return nil
}

func (u *cfmtUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	var out []byte
	f := u.format
	for i := 0; i < len(f); i++ {
		switch {
		case f[i] == '{' && i+1 < len(f) && f[i+1] == '{':
			out = append(out, '{')
			i++
		case f[i] == '}' && i+1 < len(f) && f[i+1] == '}':
			out = append(out, '}')
			i++
		case f[i] == '{':
			end := strings.IndexByte(f[i:], '}')
			if end < 0 {
				return unit.Argumentf("cfmt: unterminated field in %q", f)
			}
			name := f[i+1 : i+end]
			if name == "" {
				out = append(out, c.Data...)
			} else {
				v, err := c.Meta(name)
				if err != nil {
					return err
				}
				out = append(out, v.Render()...)
			}
			i += end
		default:
			out = append(out, f[i])
		}
	}
	return emit(c.Derive(out))
}
