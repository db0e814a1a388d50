package pipeline

import (
	"errors"
	"testing"

	"github.com/danmuck/binpipe/internal/unit"
)

func TestParseLinearPipeline(t *testing.T) {
	p, err := Parse([]string{"emit", "abc", "|", "b64", "|", "hex", "-R"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(p.Stages) != 3 {
		t.Fatalf("stage count: %d", len(p.Stages))
	}
	last, ok := p.Stages[2].(*UnitStage)
	if !ok || last.UnitName != "hex" || len(last.Args) != 1 || last.Args[0] != "-R" {
		t.Fatalf("last stage: %+v", p.Stages[2])
	}
}

func TestParseBracketGroupTakesHeader(t *testing.T) {
	p, err := Parse([]string{"emit", "x", "|", "chop", "2", "[|", "ccp", "F", "|", "cca", ".", "]"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(p.Stages) != 2 {
		t.Fatalf("stage count: %d", len(p.Stages))
	}
	g, ok := p.Stages[1].(*GroupStage)
	if !ok {
		t.Fatalf("second stage is %T", p.Stages[1])
	}
	if g.Header == nil || g.Header.UnitName != "chop" {
		t.Fatalf("group header: %+v", g.Header)
	}
	if len(g.Body) != 2 {
		t.Fatalf("group body: %d stages", len(g.Body))
	}
	if g.ScopedExit {
		t.Fatalf("plain close parsed as scoped")
	}
}

func TestParseScopedExit(t *testing.T) {
	p, err := Parse([]string{"emit", "x", "|", "nop", "[|", "put", "k", "v", "|]"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	g, ok := p.Stages[1].(*GroupStage)
	if !ok || !g.ScopedExit {
		t.Fatalf("scoped exit not detected: %+v", p.Stages[1])
	}
}

func TestParseNestedGroups(t *testing.T) {
	p, err := Parse([]string{"emit", "x", "|", "chop", "4", "[|", "chop", "2", "[|", "ccp", "F", "]", "]"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	outer := p.Stages[1].(*GroupStage)
	inner, ok := outer.Body[0].(*GroupStage)
	if !ok || inner.Header == nil || inner.Header.UnitName != "chop" {
		t.Fatalf("inner group: %+v", outer.Body[0])
	}
}

func TestParseExtraClosesTolerated(t *testing.T) {
	p, err := Parse([]string{"emit", "x", "|", "chop", "2", "[|", "ccp", "F", "]]]"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.ExtraCloses != 2 {
		t.Fatalf("extra closes: %d", p.ExtraCloses)
	}
}

func TestParseSqueeze(t *testing.T) {
	p, err := Parse([]string{"emit", "x", "|", "nop", "[|", "snip", "0:1", "2:3", "[]]"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	g := p.Stages[1].(*GroupStage)
	s, ok := g.Body[0].(*UnitStage)
	if !ok || !s.Squeeze {
		t.Fatalf("squeeze not attached: %+v", g.Body[0])
	}
}

func TestParseUnknownUnit(t *testing.T) {
	_, err := Parse([]string{"frobnicate", "x"})
	var ae *unit.ArgumentError
	if !errors.As(err, &ae) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestParseUnclosedGroup(t *testing.T) {
	_, err := Parse([]string{"emit", "x", "[|", "nop"})
	var ae *unit.ArgumentError
	if !errors.As(err, &ae) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestExtractNesting(t *testing.T) {
	args, nesting, squeeze := ExtractNesting([]string{"2", "["})
	if len(args) != 1 || args[0] != "2" || nesting != 1 || squeeze {
		t.Fatalf("open: %v %d %v", args, nesting, squeeze)
	}
	args, nesting, _ = ExtractNesting([]string{".", "]"})
	if len(args) != 1 || nesting != -1 {
		t.Fatalf("close: %v %d", args, nesting)
	}
	_, nesting, squeeze = ExtractNesting([]string{"x", "[]]"})
	if nesting != -1 || !squeeze {
		t.Fatalf("squeeze close: %d %v", nesting, squeeze)
	}
	// multibin bracket arguments are not control tokens
	args, nesting, _ = ExtractNesting([]string{"rep[3]:x"})
	if len(args) != 1 || nesting != 0 {
		t.Fatalf("multibin arg consumed: %v %d", args, nesting)
	}
}
