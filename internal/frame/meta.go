package frame

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/danmuck/binpipe/internal/chunk"
)

// The meta block is a sequence of (name, kind tag, value) triples. Names are
// length-prefixed strings; encoding is sorted by name so equal meta maps
// produce equal bytes.

func appendValue(dst []byte, v chunk.Value) ([]byte, error) {
	dst = append(dst, byte(v.Kind))
	switch v.Kind {
	case chunk.KindBytes:
		dst = appendUvarint(dst, uint64(len(v.Bytes)))
		dst = append(dst, v.Bytes...)
	case chunk.KindInt:
		dst = appendVarint(dst, v.Int)
	case chunk.KindString:
		dst = appendUvarint(dst, uint64(len(v.Str)))
		dst = append(dst, v.Str...)
	case chunk.KindList:
		dst = appendUvarint(dst, uint64(len(v.List)))
		var err error
		for _, item := range v.List {
			dst, err = appendValue(dst, item)
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadKind, byte(v.Kind))
	}
	return dst, nil
}

func readValue(r *bytes.Reader, limits Limits) (chunk.Value, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return chunk.Value{}, ErrTruncated
	}
	switch chunk.Kind(kind) {
	case chunk.KindBytes:
		raw, err := readBlob(r, limits.MaxMetaBytes)
		if err != nil {
			return chunk.Value{}, err
		}
		return chunk.BytesValue(raw), nil
	case chunk.KindInt:
		n, err := readVarint(r)
		if err != nil {
			return chunk.Value{}, err
		}
		return chunk.IntValue(n), nil
	case chunk.KindString:
		raw, err := readBlob(r, limits.MaxMetaBytes)
		if err != nil {
			return chunk.Value{}, err
		}
		return chunk.StringValue(string(raw)), nil
	case chunk.KindList:
		count, err := readUvarint(r)
		if err != nil {
			return chunk.Value{}, err
		}
		if count > limits.MaxMetaBytes {
			return chunk.Value{}, ErrMetaTooLarge
		}
		items := make([]chunk.Value, 0, count)
		for i := uint64(0); i < count; i++ {
			item, err := readValue(r, limits)
			if err != nil {
				return chunk.Value{}, err
			}
			items = append(items, item)
		}
		return chunk.ListValue(items...), nil
	}
	return chunk.Value{}, fmt.Errorf("%w: 0x%02x", ErrBadKind, kind)
}

func readBlob(r *bytes.Reader, max uint64) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, ErrMetaTooLarge
	}
	raw := make([]byte, n)
	if _, err := readFull(r, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func readFull(r *bytes.Reader, dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	n, err := r.Read(dst)
	if err != nil || n < len(dst) {
		return n, ErrTruncated
	}
	return n, nil
}

func encodeMeta(c *chunk.Chunk) ([]byte, error) {
	names := c.MetaNames()
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)
	var dst []byte
	for _, name := range names {
		v, err := c.Meta(name)
		if err != nil {
			return nil, err
		}
		dst = appendUvarint(dst, uint64(len(name)))
		dst = append(dst, name...)
		dst, err = appendValue(dst, v)
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func decodeMeta(block []byte, c *chunk.Chunk, depth int, limits Limits) error {
	r := bytes.NewReader(block)
	for r.Len() > 0 {
		raw, err := readBlob(r, limits.MaxMetaBytes)
		if err != nil {
			return err
		}
		name := string(raw)
		v, err := readValue(r, limits)
		if err != nil {
			return err
		}
		if err := c.SetMeta(name, v, depth); err != nil {
			return fmt.Errorf("frame: meta %q: %w", name, err)
		}
	}
	return nil
}
