package chunk

import (
	"errors"
	"testing"
)

func TestDeriveSharesMetaUntilWrite(t *testing.T) {
	parent := New([]byte("payload"))
	if err := parent.SetMeta("key", StringValue("k1"), 0); err != nil {
		t.Fatalf("set meta: %v", err)
	}

	child := parent.Derive([]byte("half"))
	v, err := child.Meta("key")
	if err != nil {
		t.Fatalf("child meta: %v", err)
	}
	if v.Str != "k1" {
		t.Fatalf("child meta mismatch: %q", v.Str)
	}

	if err := child.SetMeta("key", StringValue("k2"), 0); err != nil {
		t.Fatalf("child set meta: %v", err)
	}
	v, err = parent.Meta("key")
	if err != nil {
		t.Fatalf("parent meta: %v", err)
	}
	if v.Str != "k1" {
		t.Fatalf("mutation leaked to parent: %q", v.Str)
	}
}

func TestReservedNamesAreComputed(t *testing.T) {
	c := New([]byte("abcd"))
	c.Path = []int{2, 5}

	size, err := c.Meta(MetaSize)
	if err != nil || size.Int != 4 {
		t.Fatalf("size: %v %v", size, err)
	}
	idx, err := c.Meta(MetaIndex)
	if err != nil || idx.Int != 5 {
		t.Fatalf("index: %v %v", idx, err)
	}
	path, err := c.Meta(MetaPath)
	if err != nil || path.Str != "2/5" {
		t.Fatalf("path: %v %v", path, err)
	}

	if err := c.SetMeta(MetaSize, IntValue(1), 0); !errors.Is(err, ErrReservedName) {
		t.Fatalf("expected ErrReservedName, got %v", err)
	}
}

func TestPruneScopeDropsDeeperBindings(t *testing.T) {
	c := New(nil)
	if err := c.SetMeta("outer", IntValue(1), 0); err != nil {
		t.Fatalf("set outer: %v", err)
	}
	if err := c.SetMeta("inner", IntValue(2), 2); err != nil {
		t.Fatalf("set inner: %v", err)
	}

	c.PruneScope(1)
	if c.HasMeta("inner") {
		t.Fatalf("inner survived prune")
	}
	if !c.HasMeta("outer") {
		t.Fatalf("outer did not survive prune")
	}
}

func TestInheritKeepsOwnBindings(t *testing.T) {
	parent := New(nil)
	parent.Path = []int{3}
	if err := parent.SetMeta("a", IntValue(1), 0); err != nil {
		t.Fatalf("set a: %v", err)
	}
	if err := parent.SetMeta("b", IntValue(2), 0); err != nil {
		t.Fatalf("set b: %v", err)
	}

	child := New([]byte("x"))
	if err := child.SetMeta("a", IntValue(9), 0); err != nil {
		t.Fatalf("set child a: %v", err)
	}
	child.Inherit(parent)

	a, _ := child.Meta("a")
	if a.Int != 9 {
		t.Fatalf("child binding lost on inherit: %d", a.Int)
	}
	b, _ := child.Meta("b")
	if b.Int != 2 {
		t.Fatalf("parent binding not inherited: %d", b.Int)
	}
	if len(child.Path) != 1 || child.Path[0] != 3 {
		t.Fatalf("path not inherited: %v", child.Path)
	}
}

func TestValidName(t *testing.T) {
	good := []string{"a", "_x", "k9", "long_name"}
	bad := []string{"", "9k", "a-b", "a.b", "a b"}
	for _, name := range good {
		if !ValidName(name) {
			t.Fatalf("expected valid: %q", name)
		}
	}
	for _, name := range bad {
		if ValidName(name) {
			t.Fatalf("expected invalid: %q", name)
		}
	}
}

func TestSniff(t *testing.T) {
	if got := sniff([]byte{0x7F, 'E', 'L', 'F', 0}); got != "elf" {
		t.Fatalf("elf: %q", got)
	}
	if got := sniff([]byte{0x78, 0x9C, 1, 2}); got != "zlib" {
		t.Fatalf("zlib: %q", got)
	}
	if got := sniff([]byte("hello world")); got != "text" {
		t.Fatalf("text: %q", got)
	}
	if got := sniff([]byte{0x00, 0x01}); got != "data" {
		t.Fatalf("data: %q", got)
	}
}
