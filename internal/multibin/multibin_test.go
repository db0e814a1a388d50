package multibin

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/pbkdf2"

	"github.com/danmuck/binpipe/internal/chunk"
)

func eval(t *testing.T, raw string, c *chunk.Chunk) []byte {
	t.Helper()
	reg := DefaultRegistry()
	e, err := Compile(raw, reg)
	if err != nil {
		t.Fatalf("compile %q: %v", raw, err)
	}
	out, err := e.Eval(&Context{Chunk: c, Registry: reg, MaxDepth: 8})
	if err != nil {
		t.Fatalf("eval %q: %v", raw, err)
	}
	return out
}

func TestPlainLiteral(t *testing.T) {
	if got := eval(t, "Hello World", nil); string(got) != "Hello World" {
		t.Fatalf("literal: %q", got)
	}
}

func TestBareHandlerNameIsLiteral(t *testing.T) {
	if got := eval(t, "hex", nil); string(got) != "hex" {
		t.Fatalf("bare name: %q", got)
	}
}

func TestHexDecode(t *testing.T) {
	if got := eval(t, "hex:48 65 6c 6c 6f", nil); string(got) != "Hello" {
		t.Fatalf("hex: %q", got)
	}
}

func TestHandlerComposition(t *testing.T) {
	// b64(hex-decoded) == b64 applied after hex? No: h1:h2:LIT is h1(h2(LIT)).
	got := eval(t, "hex:b64:NDg2NQ==", nil)
	if string(got) != "He" {
		t.Fatalf("composition: %q", got)
	}
}

func TestVarReadsMeta(t *testing.T) {
	c := chunk.New([]byte("payload"))
	if err := c.SetMeta("key", chunk.StringValue("secret"), 0); err != nil {
		t.Fatalf("set meta: %v", err)
	}
	if got := eval(t, "var:key", c); string(got) != "secret" {
		t.Fatalf("var: %q", got)
	}
}

func TestVarUnknownFails(t *testing.T) {
	reg := DefaultRegistry()
	e, err := Compile("var:missing", reg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = e.Eval(&Context{Chunk: chunk.New(nil), Registry: reg})
	if !errors.Is(err, chunk.ErrNoSuchMeta) {
		t.Fatalf("expected ErrNoSuchMeta, got %v", err)
	}
}

func TestCutRemovesFromChunk(t *testing.T) {
	c := chunk.New([]byte("0123456789abcdef0123456789abcdefTAIL"))
	got := eval(t, "cut::32", c)
	if string(got) != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("cut result: %q", got)
	}
	if string(c.Data) != "TAIL" {
		t.Fatalf("chunk after cut: %q", c.Data)
	}
}

func TestCopyLeavesChunk(t *testing.T) {
	c := chunk.New([]byte("abcdef"))
	got := eval(t, "copy:2:4", c)
	if string(got) != "cd" {
		t.Fatalf("copy result: %q", got)
	}
	if string(c.Data) != "abcdef" {
		t.Fatalf("chunk after copy: %q", c.Data)
	}
}

func TestNegativeSliceBound(t *testing.T) {
	c := chunk.New([]byte("abcdef"))
	if got := eval(t, "copy:-2:", c); string(got) != "ef" {
		t.Fatalf("negative bound: %q", got)
	}
}

func TestSliceBoundFromMeta(t *testing.T) {
	c := chunk.New([]byte("abcdef"))
	if err := c.SetMeta("n", chunk.IntValue(3), 0); err != nil {
		t.Fatalf("set meta: %v", err)
	}
	if got := eval(t, "copy::n", c); string(got) != "abc" {
		t.Fatalf("meta bound: %q", got)
	}
}

func TestPBKDF2Shortcut(t *testing.T) {
	got := eval(t, "pbkdf2[32,s4lty]:swordfish", nil)
	want := pbkdf2.Key([]byte("swordfish"), []byte("s4lty"), PBKDF2Iterations, 32, sha1.New)
	if !bytes.Equal(got, want) {
		t.Fatalf("pbkdf2: %s", hex.EncodeToString(got))
	}
	if len(got) != 32 {
		t.Fatalf("pbkdf2 size: %d", len(got))
	}
}

func TestDigestShortcuts(t *testing.T) {
	got := eval(t, "md5:x", nil)
	if hex.EncodeToString(got) != "9dd4e461268c8034f5c8564e155c67a6" {
		t.Fatalf("md5: %s", hex.EncodeToString(got))
	}
	got = eval(t, "sha256:abc", nil)
	if hex.EncodeToString(got) != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("sha256: %s", hex.EncodeToString(got))
	}
}

func TestRepAndAccu(t *testing.T) {
	if got := eval(t, "rep[3]:ab", nil); string(got) != "ababab" {
		t.Fatalf("rep: %q", got)
	}
	if got := eval(t, "accu[4,65]", nil); string(got) != "ABCD" {
		t.Fatalf("accu: %q", got)
	}
	if got := eval(t, "accu[3,0,2]", nil); !bytes.Equal(got, []byte{0, 2, 4}) {
		t.Fatalf("accu step: %v", got)
	}
}

func TestFileAndRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if got := eval(t, "file:"+path, nil); string(got) != "0123456789" {
		t.Fatalf("file: %q", got)
	}
	if got := eval(t, "range[2:5]:"+path, nil); string(got) != "234" {
		t.Fatalf("range: %q", got)
	}
}

func TestUnknownBracketedHandlerFails(t *testing.T) {
	_, err := Compile("bogus[1]:x", DefaultRegistry())
	if !errors.Is(err, ErrUnknownHandler) {
		t.Fatalf("expected ErrUnknownHandler, got %v", err)
	}
}

func TestMissingPayloadFails(t *testing.T) {
	_, err := Compile("rep[3]", DefaultRegistry())
	if !errors.Is(err, ErrMissingPayload) {
		t.Fatalf("expected ErrMissingPayload, got %v", err)
	}
}

func TestStaticDetection(t *testing.T) {
	reg := DefaultRegistry()
	static, err := Compile("b64:aGk=", reg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !static.Static() {
		t.Fatalf("b64 chain reported per-chunk")
	}
	dynamic, err := Compile("var:name", reg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if dynamic.Static() {
		t.Fatalf("var chain reported static")
	}
}

func TestEscapeHandler(t *testing.T) {
	if got := eval(t, `esc:a\nb\x00c`, nil); !bytes.Equal(got, []byte{'a', '\n', 'b', 0, 'c'}) {
		t.Fatalf("esc: %v", got)
	}
}

func TestEatRunsUnitRunner(t *testing.T) {
	reg := DefaultRegistry()
	e, err := Compile("eat[upper]:hi", reg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx := &Context{
		Registry: reg,
		MaxDepth: 2,
		RunUnit: func(_ *Context, name string, _ []string, input []byte) ([]byte, error) {
			if name != "upper" {
				t.Fatalf("unit name: %q", name)
			}
			return bytes.ToUpper(input), nil
		},
	}
	got, err := e.Eval(ctx)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if string(got) != "HI" {
		t.Fatalf("eat: %q", got)
	}
}

func TestRecursionCap(t *testing.T) {
	reg := DefaultRegistry()
	e, err := Compile("eat[x]:y", reg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx := &Context{Registry: reg, Depth: 4, MaxDepth: 4, RunUnit: func(*Context, string, []string, []byte) ([]byte, error) {
		return nil, nil
	}}
	if _, err := e.Eval(ctx); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("expected ErrTooDeep, got %v", err)
	}
}
