package units

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/spf13/pflag"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/unit"
)

// zlUnit inflates zlib streams; raw deflate input is accepted as a
// fallback. -R deflates.
type zlUnit struct {
	base
	level int
}

func init() {
	Register(func() unit.Unit {
		return &zlUnit{
			base:  base{name: "zl", help: "zlib decompress the payload; -R compresses"},
			level: zlib.BestCompression,
		}
	})
}

func (u *zlUnit) Flags(fs *pflag.FlagSet) {
	fs.IntVar(&u.level, "level", zlib.BestCompression, "compression level for -R (1-9)")
}

func (u *zlUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	r, err := zlib.NewReader(bytes.NewReader(c.Data))
	if err != nil {
		fr := flate.NewReader(bytes.NewReader(c.Data))
		out, ferr := io.ReadAll(fr)
		if ferr != nil {
			return err
		}
		return emit(c.Derive(out))
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return emit(c.Derive(out))
}

func (u *zlUnit) Reverse(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, u.level)
	if err != nil {
		return err
	}
	if _, err := w.Write(c.Data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return emit(c.Derive(buf.Bytes()))
}
