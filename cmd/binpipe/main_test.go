package main

import (
	"bytes"
	"testing"

	"github.com/danmuck/binpipe/internal/logging"
	"github.com/danmuck/binpipe/internal/unit"
)

func TestRunPipelineMode(t *testing.T) {
	logging.ConfigureTests()
	var out bytes.Buffer
	code := run([]string{"emit", "0xBA 0xAD 0xC0 0xFF 0xEE", "|", "pack", "|", "hex", "-R"}, bytes.NewReader(nil), &out)
	if code != unit.ExitOK {
		t.Fatalf("exit code: %d", code)
	}
	if out.String() != "BAADC0FFEE" {
		t.Fatalf("output: %q", out.String())
	}
}

func TestRunSingleUnitMode(t *testing.T) {
	logging.ConfigureTests()
	var out bytes.Buffer
	code := run([]string{"cupper"}, bytes.NewReader([]byte("quiet")), &out)
	if code != unit.ExitOK {
		t.Fatalf("exit code: %d", code)
	}
	if out.String() != "QUIET" {
		t.Fatalf("output: %q", out.String())
	}
}

func TestRunUnknownUnit(t *testing.T) {
	logging.ConfigureTests()
	var out bytes.Buffer
	code := run([]string{"frobnicate"}, bytes.NewReader(nil), &out)
	if code != unit.ExitArgument {
		t.Fatalf("exit code: %d", code)
	}
}

func TestRunBadSwitch(t *testing.T) {
	logging.ConfigureTests()
	var out bytes.Buffer
	code := run([]string{"emit", "x", "|", "hex", "--definitely-not-a-switch"}, bytes.NewReader(nil), &out)
	if code != unit.ExitArgument {
		t.Fatalf("exit code: %d", code)
	}
}
