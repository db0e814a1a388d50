package multibin

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/ascii85"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

var (
	ErrNoChunk     = errors.New("multibin: handler needs a chunk context")
	ErrBadArgument = errors.New("multibin: bad handler argument")
)

// PBKDF2 shortcut defaults, stated in every unit's --help.
const (
	PBKDF2Iterations = 1000
)

// DefaultRegistry builds the built-in handler set.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	for _, h := range builtins() {
		reg.Register(h)
	}
	return reg
}

func builtins() []*Handler {
	return []*Handler{
		{
			Name: "s",
			Help: "pass the payload through unchanged; escapes handler names",
			Eval: func(_ *Context, _ []string, input []byte) ([]byte, error) {
				return input, nil
			},
		},
		{
			Name: "hex",
			Help: "decode a hexadecimal payload, whitespace ignored",
			Eval: func(_ *Context, _ []string, input []byte) ([]byte, error) {
				return hex.DecodeString(string(StripSpace(input)))
			},
		},
		{
			Name: "b64",
			Help: "decode a base64 payload, padding optional",
			Eval: func(_ *Context, _ []string, input []byte) ([]byte, error) {
				return DecodeBase64(input)
			},
		},
		{
			Name: "b85",
			Help: "decode an ascii85 payload",
			Eval: func(_ *Context, _ []string, input []byte) ([]byte, error) {
				dec := ascii85.NewDecoder(bytes.NewReader(StripSpace(input)))
				return io.ReadAll(dec)
			},
		},
		{
			Name: "url",
			Help: "decode percent-encoding in the payload",
			Eval: func(_ *Context, _ []string, input []byte) ([]byte, error) {
				return DecodeURL(input)
			},
		},
		{
			Name: "esc",
			Help: "process C-style escape sequences in the payload",
			Eval: func(_ *Context, _ []string, input []byte) ([]byte, error) {
				return Unescape(input)
			},
		},
		{
			Name:     "var",
			Help:     "read the meta variable named by the payload",
			PerChunk: true,
			Eval: func(ctx *Context, _ []string, input []byte) ([]byte, error) {
				if ctx == nil || ctx.Chunk == nil {
					return nil, ErrNoChunk
				}
				v, err := ctx.Chunk.Meta(string(input))
				if err != nil {
					return nil, err
				}
				return v.Render(), nil
			},
		},
		{
			Name:     "cut",
			Help:     "extract payload slice `start:end` from the chunk and remove it",
			PerChunk: true,
			Eval: func(ctx *Context, args []string, input []byte) ([]byte, error) {
				return slice(ctx, args, input, true)
			},
		},
		{
			Name:     "copy",
			Help:     "extract payload slice `start:end` from the chunk",
			PerChunk: true,
			Eval: func(ctx *Context, args []string, input []byte) ([]byte, error) {
				return slice(ctx, args, input, false)
			},
		},
		{
			Name: "pbkdf2",
			Help: "pbkdf2[size,salt[,iter]]: derive a key from the payload (HMAC-SHA1, 1000 iterations)",
			Eval: evalPBKDF2,
		},
		{
			Name: "md5",
			Help: "MD5 digest of the payload",
			Eval: func(_ *Context, _ []string, input []byte) ([]byte, error) {
				sum := md5.Sum(input)
				return sum[:], nil
			},
		},
		{
			Name: "sha1",
			Help: "SHA1 digest of the payload",
			Eval: func(_ *Context, _ []string, input []byte) ([]byte, error) {
				sum := sha1.Sum(input)
				return sum[:], nil
			},
		},
		{
			Name: "sha256",
			Help: "SHA256 digest of the payload",
			Eval: func(_ *Context, _ []string, input []byte) ([]byte, error) {
				sum := sha256.Sum256(input)
				return sum[:], nil
			},
		},
		{
			Name: "rep",
			Help: "rep[n]: repeat the payload n times",
			Eval: func(_ *Context, args []string, input []byte) ([]byte, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("%w: rep takes one count", ErrBadArgument)
				}
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 0 {
					return nil, fmt.Errorf("%w: rep count %q", ErrBadArgument, args[0])
				}
				return bytes.Repeat(input, n), nil
			},
		},
		{
			Name:        "accu",
			Help:        "accu[count,seed[,step]]: emit count bytes of (seed + i*step) mod 256, followed by the payload if one is given",
			Synthesizes: true,
			Eval:        evalAccu,
		},
		{
			Name: "file",
			Help: "read the file named by the payload",
			Eval: func(_ *Context, _ []string, input []byte) ([]byte, error) {
				return os.ReadFile(string(input))
			},
		},
		{
			Name: "range",
			Help: "range[start:end]: read a byte range of the file named by the payload",
			Eval: evalRange,
		},
		{
			Name: "eat",
			Help: "eat[unit,args...]: run a unit over the payload in memory",
			Eval: func(ctx *Context, args []string, input []byte) ([]byte, error) {
				return runUnit(ctx, args, input)
			},
		},
		{
			Name: "q",
			Help: "q[unit,args...]: like eat, but yields the payload unchanged on failure",
			Eval: func(ctx *Context, args []string, input []byte) ([]byte, error) {
				out, err := runUnit(ctx, args, input)
				if err != nil {
					return input, nil
				}
				return out, nil
			},
		},
	}
}

// StripSpace removes ASCII whitespace, shared by the textual decoders.
func StripSpace(input []byte) []byte {
	out := make([]byte, 0, len(input))
	for _, b := range input {
		switch b {
		case ' ', '\t', '\r', '\n':
		default:
			out = append(out, b)
		}
	}
	return out
}

func DecodeBase64(input []byte) ([]byte, error) {
	s := string(StripSpace(input))
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var firstErr error
	for _, enc := range encodings {
		out, err := enc.DecodeString(s)
		if err == nil {
			return out, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func DecodeURL(input []byte) ([]byte, error) {
	out := make([]byte, 0, len(input))
	for i := 0; i < len(input); i++ {
		if input[i] == '%' && i+2 < len(input) {
			if hi, ok := unhex(input[i+1]); ok {
				if lo, ok := unhex(input[i+2]); ok {
					out = append(out, hi<<4|lo)
					i += 2
					continue
				}
			}
		}
		out = append(out, input[i])
	}
	return out, nil
}

func unhex(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

// Unescape processes C-style escape sequences. Unknown escapes pass the
// backslash through.
func Unescape(input []byte) ([]byte, error) {
	out := make([]byte, 0, len(input))
	for i := 0; i < len(input); i++ {
		if input[i] != '\\' || i+1 >= len(input) {
			out = append(out, input[i])
			continue
		}
		i++
		switch input[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '0':
			out = append(out, 0)
		case 'a':
			out = append(out, 7)
		case 'b':
			out = append(out, 8)
		case 'f':
			out = append(out, 12)
		case 'v':
			out = append(out, 11)
		case '\\', '"', '\'':
			out = append(out, input[i])
		case 'x':
			if i+2 < len(input) {
				if hi, ok := unhex(input[i+1]); ok {
					if lo, ok := unhex(input[i+2]); ok {
						out = append(out, hi<<4|lo)
						i += 2
						continue
					}
				}
			}
			out = append(out, '\\', 'x')
		default:
			out = append(out, '\\', input[i])
		}
	}
	return out, nil
}

func slice(ctx *Context, args []string, input []byte, remove bool) ([]byte, error) {
	if ctx == nil || ctx.Chunk == nil {
		return nil, ErrNoChunk
	}
	spec := string(input)
	if len(args) == 1 && spec == "" {
		spec = args[0]
	}
	start, end, err := ResolveSlice(spec, len(ctx.Chunk.Data), ctx)
	if err != nil {
		return nil, err
	}
	data := ctx.Chunk.Data
	out := append([]byte(nil), data[start:end]...)
	if remove {
		rest := make([]byte, 0, len(data)-(end-start))
		rest = append(rest, data[:start]...)
		rest = append(rest, data[end:]...)
		ctx.Chunk.Data = rest
	}
	return out, nil
}

func evalPBKDF2(_ *Context, args []string, input []byte) ([]byte, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("%w: pbkdf2 takes size, salt, and an optional iteration count", ErrBadArgument)
	}
	size, err := strconv.Atoi(args[0])
	if err != nil || size <= 0 {
		return nil, fmt.Errorf("%w: pbkdf2 size %q", ErrBadArgument, args[0])
	}
	iter := PBKDF2Iterations
	if len(args) == 3 {
		iter, err = strconv.Atoi(args[2])
		if err != nil || iter <= 0 {
			return nil, fmt.Errorf("%w: pbkdf2 iterations %q", ErrBadArgument, args[2])
		}
	}
	return pbkdf2.Key(input, []byte(args[1]), iter, size, sha1.New), nil
}

func evalAccu(_ *Context, args []string, input []byte) ([]byte, error) {
	if len(args) < 1 || len(args) > 3 {
		return nil, fmt.Errorf("%w: accu takes count, seed, and an optional step", ErrBadArgument)
	}
	count, err := strconv.Atoi(args[0])
	if err != nil || count < 0 {
		return nil, fmt.Errorf("%w: accu count %q", ErrBadArgument, args[0])
	}
	seed, step := 0, 1
	if len(args) >= 2 {
		seed, err = strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("%w: accu seed %q", ErrBadArgument, args[1])
		}
	}
	if len(args) == 3 {
		step, err = strconv.Atoi(args[2])
		if err != nil {
			return nil, fmt.Errorf("%w: accu step %q", ErrBadArgument, args[2])
		}
	}
	out := make([]byte, count)
	for i := range out {
		out[i] = byte(seed + i*step)
	}
	if len(input) > 0 {
		out = append(out, input...)
	}
	return out, nil
}

func evalRange(ctx *Context, args []string, input []byte) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: range takes one start:end bound", ErrBadArgument)
	}
	raw, err := os.ReadFile(string(input))
	if err != nil {
		return nil, err
	}
	start, end, err := ResolveSlice(args[0], len(raw), ctx)
	if err != nil {
		return nil, err
	}
	return raw[start:end], nil
}

func runUnit(ctx *Context, args []string, input []byte) ([]byte, error) {
	if ctx == nil || ctx.RunUnit == nil {
		return nil, ErrNoRunner
	}
	if len(args) < 1 {
		return nil, fmt.Errorf("%w: missing unit name", ErrBadArgument)
	}
	if ctx.Depth >= ctx.MaxDepth {
		return nil, ErrTooDeep
	}
	sub := *ctx
	sub.Depth++
	return ctx.RunUnit(&sub, args[0], args[1:], input)
}
