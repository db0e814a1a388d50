package multibin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/binpipe/internal/chunk"
)

var ErrBadSlice = errors.New("multibin: bad slice")

// ResolveSlice resolves a `start:end` spec against a buffer length. Either
// part may be empty, negative (counted from the end), or the name of a meta
// variable on the chunk under evaluation.
func ResolveSlice(spec string, length int, ctx *Context) (int, int, error) {
	parts := strings.Split(spec, ":")
	if len(parts) > 2 {
		return 0, 0, fmt.Errorf("%w: %q has more than two bounds", ErrBadSlice, spec)
	}

	start, err := resolveBound(parts[0], 0, length, ctx)
	if err != nil {
		return 0, 0, err
	}
	end := length
	if len(parts) == 2 {
		end, err = resolveBound(parts[1], length, length, ctx)
		if err != nil {
			return 0, 0, err
		}
	}
	if start > end {
		start = end
	}
	return start, end, nil
}

func resolveBound(part string, fallback, length int, ctx *Context) (int, error) {
	part = strings.TrimSpace(part)
	if part == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(part)
	if err != nil {
		if ctx == nil || ctx.Chunk == nil || !chunk.ValidName(part) {
			return 0, fmt.Errorf("%w: bound %q", ErrBadSlice, part)
		}
		v, merr := ctx.Chunk.Meta(part)
		if merr != nil {
			return 0, fmt.Errorf("%w: bound %q: %v", ErrBadSlice, part, merr)
		}
		if v.Kind == chunk.KindInt {
			n = int(v.Int)
		} else {
			n, err = strconv.Atoi(string(v.Render()))
			if err != nil {
				return 0, fmt.Errorf("%w: meta %q is not numeric", ErrBadSlice, part)
			}
		}
	}
	if n < 0 {
		n += length
	}
	if n < 0 {
		n = 0
	}
	if n > length {
		n = length
	}
	return n, nil
}
