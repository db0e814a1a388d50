package units

import (
	"bytes"
	"errors"

	"github.com/tidwall/gjson"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/unit"
)

func init() {
	Register(func() unit.Unit {
		return &reversible{
			transform: transform{
				base: base{name: "nop", help: "forward chunks unchanged"},
				fwd:  plain(func(in []byte) ([]byte, error) { return in, nil }),
			},
			rev: plain(func(in []byte) ([]byte, error) { return in, nil }),
		}
	})
	Register(func() unit.Unit {
		return &reversible{
			transform: transform{
				base: base{name: "rev", help: "reverse the payload byte order"},
				fwd:  plain(reverseBytes),
			},
			rev: plain(reverseBytes),
		}
	})
	Register(func() unit.Unit {
		return &transform{
			base: base{name: "clower", help: "lowercase the payload"},
			fwd:  plain(func(in []byte) ([]byte, error) { return bytes.ToLower(in), nil }),
		}
	})
	Register(func() unit.Unit {
		return &transform{
			base: base{name: "cupper", help: "uppercase the payload"},
			fwd:  plain(func(in []byte) ([]byte, error) { return bytes.ToUpper(in), nil }),
		}
	})
	Register(func() unit.Unit { return &trimUnit{base: base{name: "trim", help: "trim junk from both payload ends, default whitespace"}} })
	Register(func() unit.Unit { return &xtjsonUnit{base: base{name: "xtjson", help: "extract a JSON field from the payload"}} })
}

func reverseBytes(in []byte) ([]byte, error) {
	out := make([]byte, len(in))
	for i, b := range in {
		out[len(in)-1-i] = b
	}
	return out, nil
}

type trimUnit struct {
	base
	cutset unit.Arg
}

func (u *trimUnit) Configure(ctx *unit.ConfigContext, args []string) error {
	if len(args) > 1 {
		return unit.Argumentf("trim takes at most one byte set")
	}
	if len(args) == 1 {
		a, err := unit.ParseArg(ctx, args[0])
		if err != nil {
			return err
		}
		u.cutset = a
	}
	return nil
}

func (u *trimUnit) Process(ctx *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	cutset := " \t\r\n\x00"
	if u.cutset.Bound() {
		raw, err := u.cutset.Bytes(ctx)
		if err != nil {
			return err
		}
		cutset = string(raw)
	}
	return emit(c.Derive(bytes.Trim(c.Data, cutset)))
}

// xtjsonUnit extracts one field from a JSON payload using a gjson query.
type xtjsonUnit struct {
	base
	query string
}

func (u *xtjsonUnit) Configure(_ *unit.ConfigContext, args []string) error {
	if len(args) != 1 {
		return unit.Argumentf("xtjson takes exactly one query")
	}
	u.query = args[0]
	return nil
}

func (u *xtjsonUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	if !gjson.ValidBytes(c.Data) {
		return errors.New("payload is not valid JSON")
	}
	result := gjson.GetBytes(c.Data, u.query)
	if !result.Exists() {
		return errors.New("query matched nothing")
	}
	if result.IsArray() {
		for _, item := range result.Array() {
			if err := emit(c.Derive([]byte(item.String()))); err != nil {
				return err
			}
		}
		return nil
	}
	return emit(c.Derive([]byte(result.String())))
}
