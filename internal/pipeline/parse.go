package pipeline

import (
	"strings"

	"github.com/danmuck/binpipe/internal/unit"
	"github.com/danmuck/binpipe/internal/units"
)

// Stage is one node of a parsed pipeline: a unit invocation or a bracket
// group.
type Stage interface {
	stage()
}

// UnitStage is a unit invocation with its raw argument tokens, switches
// included. Squeeze fuses the unit's outputs into a single chunk.
type UnitStage struct {
	UnitName string
	Args     []string
	Squeeze  bool
}

func (*UnitStage) stage() {}

// GroupStage is a bracket group. The header unit produces the frame: its
// outputs per input chunk become one frame processed by Body. ScopedExit
// marks the `|]` form which merges computed meta back onto the original
// chunk instead of replacing it.
type GroupStage struct {
	Header     *UnitStage
	Body       []Stage
	ScopedExit bool
}

func (*GroupStage) stage() {}

// Pipeline is the parsed command line.
type Pipeline struct {
	Stages []Stage

	// ExtraCloses counts closing brackets beyond balance; they are
	// tolerated and close nothing.
	ExtraCloses int
}

type symbol int

const (
	symWord symbol = iota
	symPipe
	symOpen       // [
	symOpenScope  // [|
	symClose      // ]
	symCloseScope // |]
	symSqueeze    // []
)

type token struct {
	sym  symbol
	text string
}

// tokenize expands argv entries into pipeline tokens. Only entries made up
// entirely of bracket and pipe characters are treated as control tokens;
// anything else is a word belonging to the current unit.
func tokenize(argv []string) []token {
	var out []token
	for _, arg := range argv {
		if arg == "" || strings.Trim(arg, "[]|") != "" {
			out = append(out, token{sym: symWord, text: arg})
			continue
		}
		out = append(out, splitControl(arg)...)
	}
	return out
}

// splitControl scans a run of bracket characters greedily: `[|`, `|]`, and
// `[]` bind tighter than the single-character tokens.
func splitControl(arg string) []token {
	var out []token
	for len(arg) > 0 {
		switch {
		case strings.HasPrefix(arg, "[|"):
			out = append(out, token{sym: symOpenScope})
			arg = arg[2:]
		case strings.HasPrefix(arg, "|]"):
			out = append(out, token{sym: symCloseScope})
			arg = arg[2:]
		case strings.HasPrefix(arg, "[]"):
			out = append(out, token{sym: symSqueeze})
			arg = arg[2:]
		case arg[0] == '[':
			out = append(out, token{sym: symOpen})
			arg = arg[1:]
		case arg[0] == ']':
			out = append(out, token{sym: symClose})
			arg = arg[1:]
		default: // '|'
			out = append(out, token{sym: symPipe})
			arg = arg[1:]
		}
	}
	return out
}

type parser struct {
	tokens []token
	pos    int
}

// Parse turns argv into a pipeline tree.
func Parse(argv []string) (*Pipeline, error) {
	p := &parser{tokens: tokenize(argv)}
	stages, extra, err := p.parseBody(false)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Stages: stages, ExtraCloses: extra}, nil
}

// parseBody consumes stages until the end of input or, when nested, the
// closing bracket of the enclosing group.
func (p *parser) parseBody(nested bool) ([]Stage, int, error) {
	var stages []Stage
	var current *UnitStage

	flush := func() {
		if current != nil {
			stages = append(stages, current)
			current = nil
		}
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		p.pos++
		switch tok.sym {
		case symWord:
			if current == nil {
				if !units.Known(tok.text) {
					return nil, 0, unit.Argumentf("unknown unit %q", tok.text)
				}
				current = &UnitStage{UnitName: tok.text}
			} else {
				current.Args = append(current.Args, tok.text)
			}
		case symPipe:
			flush()
		case symSqueeze:
			if current == nil {
				return nil, 0, unit.Argumentf("squeeze brackets need a preceding unit")
			}
			current.Squeeze = true
		case symOpen, symOpenScope:
			header := current
			current = nil
			body, scoped, err := p.parseGroup()
			if err != nil {
				return nil, 0, err
			}
			stages = append(stages, &GroupStage{Header: header, Body: body, ScopedExit: scoped})
		case symClose, symCloseScope:
			flush()
			if nested {
				p.pos--
				return stages, 0, nil
			}
			// Closing brackets beyond balance close nothing.
			extra := 1
			for p.pos < len(p.tokens) {
				next := p.tokens[p.pos]
				if next.sym != symClose && next.sym != symCloseScope {
					return nil, 0, unit.Argumentf("trailing tokens after closing brackets")
				}
				p.pos++
				extra++
			}
			return stages, extra, nil
		}
	}
	flush()
	if nested {
		return nil, 0, unit.Argumentf("unclosed bracket group")
	}
	return stages, 0, nil
}

// parseGroup parses a group body up to and including its closing bracket.
func (p *parser) parseGroup() ([]Stage, bool, error) {
	body, _, err := p.parseBody(true)
	if err != nil {
		return nil, false, err
	}
	if p.pos >= len(p.tokens) {
		return nil, false, unit.Argumentf("unclosed bracket group")
	}
	closeTok := p.tokens[p.pos]
	p.pos++
	return body, closeTok.sym == symCloseScope, nil
}
