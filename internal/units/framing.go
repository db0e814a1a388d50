package units

import (
	"bytes"
	"sort"

	"github.com/spf13/pflag"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/multibin"
	"github.com/danmuck/binpipe/internal/unit"
)

// Frame-aware units. The driver buffers one full frame and hands it to
// Filter in place of per-chunk processing.

func init() {
	Register(func() unit.Unit {
		return &sortedUnit{base: base{name: "sorted", help: "sort the chunks of each frame by payload"}}
	})
	Register(func() unit.Unit {
		return &dedupUnit{base: base{name: "dedup", help: "drop duplicate chunks within each frame"}}
	})
	Register(func() unit.Unit {
		return &pickUnit{base: base{name: "pick", help: "keep only the chunks selected by start:end slices"}}
	})
	Register(func() unit.Unit {
		return &scopeUnit{base: base{name: "scope", help: "limit visibility to the selected frame indices"}}
	})
	Register(func() unit.Unit {
		return &sepUnit{base: base{name: "sep", help: "insert a separator between the chunks of a frame, default line break"}}
	})
}

type sortedUnit struct {
	base
	descending bool
}

func (u *sortedUnit) Flags(fs *pflag.FlagSet) {
	fs.BoolVarP(&u.descending, "descending", "d", false, "sort in descending order")
}

func (u *sortedUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	return emit(c)
}

func (u *sortedUnit) Filter(_ *unit.Context, frame []*chunk.Chunk) ([]*chunk.Chunk, error) {
	// Invisible chunks hold their positions; visible ones sort around them.
	slots, visible := visibleSlots(frame)
	sort.SliceStable(visible, func(i, j int) bool {
		less := bytes.Compare(visible[i].Data, visible[j].Data) < 0
		if u.descending {
			return !less
		}
		return less
	})
	for i, slot := range slots {
		frame[slot] = visible[i]
	}
	return frame, nil
}

type dedupUnit struct {
	base
}

func (u *dedupUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	return emit(c)
}

func (u *dedupUnit) Filter(_ *unit.Context, frame []*chunk.Chunk) ([]*chunk.Chunk, error) {
	seen := make(map[string]struct{}, len(frame))
	out := frame[:0]
	for _, c := range frame {
		if !c.Visible {
			out = append(out, c)
			continue
		}
		key := string(c.Data)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

type pickUnit struct {
	base
	slices []string
}

func (u *pickUnit) Configure(_ *unit.ConfigContext, args []string) error {
	if len(args) == 0 {
		return unit.Argumentf("pick takes at least one start:end slice")
	}
	u.slices = args
	return nil
}

func (u *pickUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	return emit(c)
}

func (u *pickUnit) Filter(ctx *unit.Context, frame []*chunk.Chunk) ([]*chunk.Chunk, error) {
	keep, err := selectIndices(u.slices, len(frame), ctx)
	if err != nil {
		return nil, err
	}
	var out []*chunk.Chunk
	for i, c := range frame {
		if keep[i] || !c.Visible {
			out = append(out, c)
		}
	}
	return out, nil
}

type scopeUnit struct {
	base
	slices []string
}

func (u *scopeUnit) Configure(_ *unit.ConfigContext, args []string) error {
	if len(args) == 0 {
		return unit.Argumentf("scope takes at least one start:end slice")
	}
	u.slices = args
	return nil
}

func (u *scopeUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	return emit(c)
}

func (u *scopeUnit) Filter(ctx *unit.Context, frame []*chunk.Chunk) ([]*chunk.Chunk, error) {
	keep, err := selectIndices(u.slices, len(frame), ctx)
	if err != nil {
		return nil, err
	}
	for i, c := range frame {
		c.SetVisible(keep[i])
	}
	return frame, nil
}

type sepUnit struct {
	base
	value unit.Arg
}

func (u *sepUnit) Configure(ctx *unit.ConfigContext, args []string) error {
	if len(args) > 1 {
		return unit.Argumentf("sep takes at most one separator argument")
	}
	if len(args) == 1 {
		a, err := unit.ParseArg(ctx, args[0])
		if err != nil {
			return err
		}
		u.value = a
	}
	return nil
}

func (u *sepUnit) Process(_ *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	return emit(c)
}

// Filter interleaves separator chunks and re-marks everything visible: sep
// sits at the end of a frame, where hidden chunks rejoin the output.
func (u *sepUnit) Filter(ctx *unit.Context, frame []*chunk.Chunk) ([]*chunk.Chunk, error) {
	sep := []byte("\n")
	if u.value.Bound() {
		var err error
		sep, err = u.value.Bytes(ctx)
		if err != nil {
			return nil, err
		}
	}
	out := make([]*chunk.Chunk, 0, 2*len(frame))
	for i, c := range frame {
		if i > 0 {
			out = append(out, c.Derive(append([]byte(nil), sep...)))
		}
		out = append(out, c)
	}
	for _, c := range out {
		c.SetVisible(true)
	}
	return out, nil
}

func visibleSlots(frame []*chunk.Chunk) ([]int, []*chunk.Chunk) {
	var slots []int
	var visible []*chunk.Chunk
	for i, c := range frame {
		if c.Visible {
			slots = append(slots, i)
			visible = append(visible, c)
		}
	}
	return slots, visible
}

// selectIndices marks the frame positions covered by any of the slices.
func selectIndices(specs []string, length int, ctx *unit.Context) ([]bool, error) {
	keep := make([]bool, length)
	for _, spec := range specs {
		start, end, err := multibin.ResolveSlice(spec, length, ctx.Binding)
		if err != nil {
			return nil, err
		}
		if !hasColon(spec) && start < length {
			// A bare index selects one chunk, not a suffix.
			end = start + 1
		}
		for i := start; i < end && i < length; i++ {
			keep[i] = true
		}
	}
	return keep, nil
}

func hasColon(spec string) bool {
	for i := 0; i < len(spec); i++ {
		if spec[i] == ':' {
			return true
		}
	}
	return false
}
