package multibin

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownHandler = errors.New("multibin: unknown handler")
	ErrMissingPayload = errors.New("multibin: handler chain has no payload")
	ErrUnbalanced     = errors.New("multibin: unbalanced brackets")
	ErrNoRunner       = errors.New("multibin: no unit runner installed")
	ErrTooDeep        = errors.New("multibin: nested pipeline too deep")
)

type step struct {
	handler *Handler
	args    []string
}

// Expr is a compiled expression: a chain of handler steps applied right to
// left over a literal tail. Compilation happens once per unit instance;
// evaluation happens per chunk when any step is chunk-dependent.
type Expr struct {
	raw      string
	steps    []step
	literal  []byte
	perChunk bool
}

// Compile parses an expression against a registry. A token is consumed as a
// handler while it names a registered handler; the first token that does not
// starts the literal payload.
func Compile(raw string, reg *Registry) (*Expr, error) {
	tokens, err := splitColons(raw)
	if err != nil {
		return nil, err
	}

	e := &Expr{raw: raw}
	for i, tok := range tokens {
		name, args, bracketed, err := splitAtom(tok)
		if err != nil {
			return nil, err
		}
		h, ok := reg.Get(name)
		if ok && i == len(tokens)-1 && !bracketed {
			// A bare trailing name is a literal; handler use requires a
			// trailing colon (`md5:`) or bracket arguments (`accu[3]`).
			ok = false
		}
		if !ok {
			if bracketed {
				return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
			}
			e.literal = []byte(strings.Join(tokens[i:], ":"))
			return e, nil
		}
		e.steps = append(e.steps, step{handler: h, args: args})
		if h.PerChunk {
			e.perChunk = true
		}
	}

	// No literal: the rightmost handler must synthesize its own bytes.
	last := e.steps[len(e.steps)-1].handler
	if !last.Synthesizes {
		return nil, fmt.Errorf("%w: %q", ErrMissingPayload, raw)
	}
	return e, nil
}

// Static reports whether the result is the same for every chunk.
func (e *Expr) Static() bool { return !e.perChunk }

// Literal returns the payload text when the expression is a bare literal
// with no handler steps.
func (e *Expr) Literal() (string, bool) {
	if len(e.steps) != 0 {
		return "", false
	}
	return string(e.literal), true
}

func (e *Expr) String() string { return e.raw }

// Eval runs the chain right to left.
func (e *Expr) Eval(ctx *Context) ([]byte, error) {
	cur := e.literal
	for i := len(e.steps) - 1; i >= 0; i-- {
		s := e.steps[i]
		out, err := s.handler.Eval(ctx, s.args, cur)
		if err != nil {
			return nil, fmt.Errorf("handler %s: %w", s.handler.Name, err)
		}
		cur = out
	}
	return cur, nil
}

// splitColons splits on top-level colons, leaving bracketed arguments
// intact.
func splitColons(raw string) ([]string, error) {
	var tokens []string
	depth := 0
	start := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: %q", ErrUnbalanced, raw)
			}
		case ':':
			if depth == 0 {
				tokens = append(tokens, raw[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnbalanced, raw)
	}
	return append(tokens, raw[start:]), nil
}

// splitAtom takes a token apart into handler name and bracket arguments.
func splitAtom(tok string) (name string, args []string, bracketed bool, err error) {
	open := strings.IndexByte(tok, '[')
	if open < 0 {
		return tok, nil, false, nil
	}
	if !strings.HasSuffix(tok, "]") {
		return "", nil, false, fmt.Errorf("%w: %q", ErrUnbalanced, tok)
	}
	name = tok[:open]
	inner := tok[open+1 : len(tok)-1]
	if inner == "" {
		return name, nil, true, nil
	}
	return name, splitArgs(inner), true, nil
}

// splitArgs splits bracket arguments on commas outside nested brackets.
func splitArgs(inner string) []string {
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, inner[start:i])
				start = i + 1
			}
		}
	}
	return append(args, inner[start:])
}
