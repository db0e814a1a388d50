package units

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/unit"
)

var numberPattern = regexp.MustCompile(`0[xX][0-9a-fA-F]+|0[bB][01]+|0[oO][0-7]+|\d+`)

// packUnit extracts every integer literal from the payload text and packs
// the values into --block sized words. -R unpacks binary data back into a
// list of numbers.
type packUnit struct {
	base
	block     int
	bigEndian bool
}

func init() {
	Register(func() unit.Unit {
		return &packUnit{base: base{name: "pack", help: "pack integers found in the payload into binary; -R unpacks"}}
	})
}

func (u *packUnit) Flags(fs *pflag.FlagSet) {
	fs.IntVarP(&u.block, "block", "b", 1, "word width in bytes")
	fs.BoolVarP(&u.bigEndian, "big-endian", "E", false, "write multi-byte words big endian")
}

func (u *packUnit) Configure(_ *unit.ConfigContext, args []string) error {
	if len(args) != 0 {
		return unit.Argumentf("pack takes no positional arguments")
	}
	if u.block < 1 || u.block > 8 {
		return unit.Argumentf("pack block width %d is out of range", u.block)
	}
	return nil
}

func (u *packUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	var out []byte
	for _, tok := range numberPattern.FindAllString(string(c.Data), -1) {
		v, err := strconv.ParseUint(tok, 0, 64)
		if err != nil {
			continue
		}
		word := make([]byte, u.block)
		for i := 0; i < u.block; i++ {
			shift := uint(8 * i)
			if u.bigEndian {
				shift = uint(8 * (u.block - 1 - i))
			}
			word[i] = byte(v >> shift)
		}
		out = append(out, word...)
	}
	return emit(c.Derive(out))
}

func (u *packUnit) Reverse(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	data := c.Data
	if len(data)%u.block != 0 {
		return fmt.Errorf("payload length %d is not a multiple of block width %d", len(data), u.block)
	}
	var words []string
	for i := 0; i < len(data); i += u.block {
		var v uint64
		for j := 0; j < u.block; j++ {
			shift := uint(8 * j)
			if u.bigEndian {
				shift = uint(8 * (u.block - 1 - j))
			}
			v |= uint64(data[i+j]) << shift
		}
		words = append(words, fmt.Sprintf("0x%0*X", 2*u.block, v))
	}
	return emit(c.Derive([]byte(strings.Join(words, " "))))
}
