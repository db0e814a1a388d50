package pipeline

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/binpipe/internal/testutil/testlog"
	"github.com/danmuck/binpipe/internal/unit"
)

func runPipeline(t *testing.T, argv []string, stdin []byte) string {
	t.Helper()
	testlog.Start(t)
	p, err := Parse(argv)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var out bytes.Buffer
	if err := NewDriver().Run(p, bytes.NewReader(stdin), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

func split(cmd string) []string {
	return strings.Fields(cmd)
}

func TestDecodeChainRoundTrip(t *testing.T) {
	// Re-encode first, then decode the result back; the two chains are
	// inverses of one another.
	encoded := runPipeline(t, split("emit secret | hex -R | zl -R | b64 -R"), nil)
	if encoded == "secret" {
		t.Fatalf("encoding chain did nothing")
	}
	decoded := runPipeline(t, split("b64 | zl | hex"), []byte(encoded))
	if decoded != "secret" {
		t.Fatalf("decode chain: %q", decoded)
	}
}

func TestPackScenario(t *testing.T) {
	out := runPipeline(t, []string{"emit", "0xBA 0xAD 0xC0 0xFF 0xEE", "|", "pack", "|", "hex", "-R"}, nil)
	if out != "BAADC0FFEE" {
		t.Fatalf("pack chain: %q", out)
	}
}

func TestScopedMetaScenario(t *testing.T) {
	argv := []string{
		"emit", "abc\ndef", "|",
		"resplit", "[|", "put", "len", "size", "|", "cfmt", "{len}:{}", "]",
	}
	out := runPipeline(t, argv, nil)
	if out != "3:abc\n3:def" {
		t.Fatalf("scoped meta: %q", out)
	}
}

func TestCryptoRoundTripScenario(t *testing.T) {
	argv := []string{
		"emit", "hi", "|",
		"aes", "pbkdf2[32,s]:pw", "--iv", "md5:x", "-R", "|",
		"ccp", "md5:x", "|",
		"aes", "pbkdf2[32,s]:pw", "--iv", "cut:0:16",
	}
	out := runPipeline(t, argv, nil)
	if out != "hi" {
		t.Fatalf("crypto round trip: %q", out)
	}
}

func TestCutIVScenario(t *testing.T) {
	// data = IV(16) || AES-CBC-256(PBKDF2(swordfish, s4lty), plaintext)
	sealed := runPipeline(t, []string{
		"emit", "attack at dawn", "|",
		"aes", "pbkdf2[32,s4lty]:swordfish", "--iv", "pbkdf2[16,iv]:seed", "-R", "|",
		"ccp", "pbkdf2[16,iv]:seed",
	}, nil)
	// decrypting strips the IV off the payload with cut
	opened := runPipeline(t, []string{
		"aes", "--mode", "cbc", "--iv", "cut::16", "pbkdf2[32,s4lty]:swordfish",
	}, []byte(sealed))
	if opened != "attack at dawn" {
		t.Fatalf("cut+kdf: %q", opened)
	}
}

func TestMetaInheritance(t *testing.T) {
	argv := []string{
		"emit", "abc\ndef", "|", "put", "tag", "T", "|",
		"resplit", "[|", "cfmt", "{tag}:{}", "]",
	}
	out := runPipeline(t, argv, nil)
	if out != "T:abc\nT:def" {
		t.Fatalf("inheritance: %q", out)
	}
}

func TestFrameScopingUnbindsOnClose(t *testing.T) {
	// k is bound inside the frame; after the close it is gone, so cfmt
	// fails per chunk and the chunk is dropped.
	argv := []string{
		"emit", "x", "|", "nop", "[|", "put", "k", "v", "]", "|", "cfmt", "{k}",
	}
	out := runPipeline(t, argv, nil)
	if out != "" {
		t.Fatalf("scoping leak: %q", out)
	}
}

func TestScopeLimitsProcessing(t *testing.T) {
	argv := []string{"emit", "BINARY", "REFINERY", "[|", "scope", "0", "|", "clower", "]"}
	out := runPipeline(t, argv, nil)
	if out != "binary\nREFINERY" {
		t.Fatalf("scope: %q", out)
	}
}

func TestSortedFrame(t *testing.T) {
	argv := []string{"emit", "cherry", "apple", "banana", "[|", "sorted", "]"}
	out := runPipeline(t, argv, nil)
	if out != "apple\nbanana\ncherry" {
		t.Fatalf("sorted: %q", out)
	}
}

func TestDedupFrame(t *testing.T) {
	argv := []string{"emit", "a", "b", "a", "c", "b", "[|", "dedup", "]"}
	out := runPipeline(t, argv, nil)
	if out != "a\nb\nc" {
		t.Fatalf("dedup: %q", out)
	}
}

func TestChopGroupTransforms(t *testing.T) {
	argv := []string{"emit", "OOOOOOOO", "|", "chop", "2", "[|", "ccp", "F", "|", "cca", ".", "]"}
	out := runPipeline(t, argv, nil)
	if out != "FOO.\nFOO.\nFOO.\nFOO." {
		t.Fatalf("chop group: %q", out)
	}
}

func TestSqueezeFusesOutputs(t *testing.T) {
	argv := []string{"emit", "OOCL", "|", "nop", "[|", "snip", "2:3", "0:2", "3:4", "[]]"}
	out := runPipeline(t, argv, nil)
	if out != "COOL" {
		t.Fatalf("squeeze: %q", out)
	}
}

func TestScopedExitComputesMetaOnly(t *testing.T) {
	argv := []string{
		"emit", "payload", "|",
		"nop", "[|", "put", "n", "size", "|", "cfmt", "changed", "|]", "|",
		"cfmt", "{n}:{}",
	}
	out := runPipeline(t, argv, nil)
	if out != "7:payload" {
		t.Fatalf("scoped exit: %q", out)
	}
}

func TestOrderPreservation(t *testing.T) {
	out := runPipeline(t, []string{"emit", "1", "2", "3", "4", "|", "ccp", "n"}, nil)
	if out != "n1\nn2\nn3\nn4" {
		t.Fatalf("order: %q", out)
	}
}

func TestUnitErrorDropsChunkOnly(t *testing.T) {
	// the middle chunk is not valid base64 text, so its decode fails and
	// it is dropped; the others survive
	argv := []string{"emit", "aGk=", "!!!!", "eW8=", "|", "b64"}
	out := runPipeline(t, argv, nil)
	if out != "hi\nyo" {
		t.Fatalf("drop: %q", out)
	}
}

func TestUnknownUnitIsArgumentError(t *testing.T) {
	testlog.Start(t)
	_, err := Parse([]string{"emit", "x", "|", "nope"})
	var ae *unit.ArgumentError
	if !errors.As(err, &ae) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestNotReversibleIsArgumentError(t *testing.T) {
	testlog.Start(t)
	p, err := Parse([]string{"emit", "x", "|", "clower", "-R"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	err = NewDriver().Run(p, bytes.NewReader(nil), &bytes.Buffer{})
	var ae *unit.ArgumentError
	if !errors.As(err, &ae) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestEatHandlerRunsSubPipeline(t *testing.T) {
	out := runPipeline(t, []string{"emit", "eat[b64]:aGVsbG8=", "|", "cupper"}, nil)
	if out != "HELLO" {
		t.Fatalf("eat: %q", out)
	}
}

func TestSingleUnitFramedHandoff(t *testing.T) {
	testlog.Start(t)
	d := NewDriver()

	var framed1 bytes.Buffer
	if err := d.RunSingle("chop", []string{"2"}, 1, false, bytes.NewReader([]byte("OOOO")), &framed1); err != nil {
		t.Fatalf("chop [: %v", err)
	}
	if !bytes.HasPrefix(framed1.Bytes(), []byte{0x91, 0xD1, 0xF2, 0x01}) {
		t.Fatalf("no frame magic on wire: % x", framed1.Bytes()[:4])
	}

	var framed2 bytes.Buffer
	if err := d.RunSingle("ccp", []string{"F"}, 0, false, &framed1, &framed2); err != nil {
		t.Fatalf("ccp: %v", err)
	}

	var out bytes.Buffer
	if err := d.RunSingle("cca", []string{"."}, -1, false, &framed2, &out); err != nil {
		t.Fatalf("cca ]: %v", err)
	}
	if out.String() != "FOO.\nFOO." {
		t.Fatalf("handoff result: %q", out.String())
	}
}

func TestSingleUnitRawPassThrough(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	if err := NewDriver().RunSingle("cupper", nil, 0, false, bytes.NewReader([]byte("shout")), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "SHOUT" {
		t.Fatalf("raw mode: %q", out.String())
	}
}
