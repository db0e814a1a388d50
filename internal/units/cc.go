package units

import (
	"bytes"
	"errors"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/unit"
)

// ccpUnit prepends data to each chunk; the reverse direction strips a
// matching prefix. ccaUnit is the same at the tail end.
type ccpUnit struct {
	base
	data   unit.Arg
	append bool
}

func init() {
	Register(func() unit.Unit {
		return &ccpUnit{base: base{name: "ccp", help: "prepend the argument to each chunk; -R removes the prefix"}}
	})
	Register(func() unit.Unit {
		return &ccpUnit{
			base:   base{name: "cca", help: "append the argument to each chunk; -R removes the suffix"},
			append: true,
		}
	})
}

func (u *ccpUnit) Configure(ctx *unit.ConfigContext, args []string) error {
	if len(args) != 1 {
		return unit.Argumentf("%s takes exactly one data argument", u.name)
	}
	a, err := unit.ParseArg(ctx, args[0])
	if err != nil {
		return err
	}
	u.data = a
	return nil
}

func (u *ccpUnit) Process(ctx *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	data, err := u.data.Bytes(ctx)
	if err != nil {
		return err
	}
	var out []byte
	if u.append {
		out = append(append([]byte(nil), c.Data...), data...)
	} else {
		out = append(append([]byte(nil), data...), c.Data...)
	}
	return emit(c.Derive(out))
}

func (u *ccpUnit) Reverse(ctx *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	data, err := u.data.Bytes(ctx)
	if err != nil {
		return err
	}
	if u.append {
		if !bytes.HasSuffix(c.Data, data) {
			return errors.New("chunk does not carry the expected suffix")
		}
		return emit(c.Derive(append([]byte(nil), c.Data[:len(c.Data)-len(data)]...)))
	}
	if !bytes.HasPrefix(c.Data, data) {
		return errors.New("chunk does not carry the expected prefix")
	}
	return emit(c.Derive(append([]byte(nil), c.Data[len(data):]...)))
}
