package assembler

import (
	"fmt"
	"math"
	"strconv"
)

// Expr is an operand expression.
type Expr interface {
	Pos() Span
	String() string
}

// Number is a literal.
type Number struct {
	Value int64
	At    Span
}

// Ref names a symbol. Local names arrive already qualified.
type Ref struct {
	Name string
	At   Span
}

// Here is the address of the current statement.
type Here struct {
	At Span
}

// Unary is a prefix operator: - ~ and the byte selectors < > ^.
type Unary struct {
	Op string
	X  Expr
	At Span
}

// Binary is an infix operator.
type Binary struct {
	Op   string
	X, Y Expr
	At   Span
}

func (e *Number) Pos() Span { return e.At }
func (e *Ref) Pos() Span    { return e.At }
func (e *Here) Pos() Span   { return e.At }
func (e *Unary) Pos() Span  { return e.At }
func (e *Binary) Pos() Span { return e.At }

func (e *Number) String() string {
	if e.Value < 10 && e.Value > -10 {
		return strconv.FormatInt(e.Value, 10)
	}
	if e.Value < 0 {
		return fmt.Sprintf("-$%X", -e.Value)
	}
	return fmt.Sprintf("$%X", e.Value)
}
func (e *Ref) String() string    { return e.Name }
func (e *Here) String() string   { return "*" }
func (e *Unary) String() string  { return e.Op + e.X.String() }
func (e *Binary) String() string { return "(" + e.X.String() + e.Op + e.Y.String() + ")" }

// Env supplies symbol values and the current address to Eval.
type Env interface {
	Value(name string) (int64, bool)
	PC() int64
}

// Eval computes e. A name the environment does not know gives an
// *UndefinedSymbolError.
func Eval(e Expr, env Env) (int64, error) {
	switch e := e.(type) {
	case *Number:
		return e.Value, nil
	case *Ref:
		v, ok := env.Value(e.Name)
		if !ok {
			return 0, &UndefinedSymbolError{Name: e.Name, Span: e.At}
		}
		return v, nil
	case *Here:
		return env.PC(), nil
	case *Unary:
		x, err := Eval(e.X, env)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case "-":
			if x == math.MinInt64 {
				return 0, overflow(e.At, e.String())
			}
			return -x, nil
		case "+":
			return x, nil
		case "~":
			return ^x, nil
		case "<":
			return x & 0xFF, nil
		case ">":
			return x >> 8 & 0xFF, nil
		case "^":
			return x >> 16 & 0xFF, nil
		}
	case *Binary:
		x, err := Eval(e.X, env)
		if err != nil {
			return 0, err
		}
		y, err := Eval(e.Y, env)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case "+":
			r := x + y
			if (x > 0 && y > 0 && r < 0) || (x < 0 && y < 0 && r >= 0) {
				return 0, overflow(e.At, e.String())
			}
			return r, nil
		case "-":
			r := x - y
			if (x >= 0 && y < 0 && r < 0) || (x < 0 && y > 0 && r >= 0) {
				return 0, overflow(e.At, e.String())
			}
			return r, nil
		case "*":
			r := x * y
			if x != 0 && (r/x != y || x == -1 && y == math.MinInt64) {
				return 0, overflow(e.At, e.String())
			}
			return r, nil
		case "/", "%":
			if y == 0 {
				return 0, &EvalError{Span: e.At, Detail: "division by zero"}
			}
			if x == math.MinInt64 && y == -1 {
				return 0, overflow(e.At, e.String())
			}
			if e.Op == "/" {
				return x / y, nil
			}
			return x % y, nil
		case "&":
			return x & y, nil
		case "|":
			return x | y, nil
		case "^":
			return x ^ y, nil
		case "<<", ">>":
			if y < 0 || y > 63 {
				return 0, &EvalError{Span: e.At, Detail: fmt.Sprintf("shift count %d out of range", y)}
			}
			if e.Op == "<<" {
				r := x << y
				if r>>y != x {
					return 0, overflow(e.At, e.String())
				}
				return r, nil
			}
			return x >> y, nil
		}
	}
	return 0, &EvalError{Span: e.Pos(), Detail: fmt.Sprintf("cannot evaluate %s", e)}
}

func overflow(at Span, expr string) error {
	return &EvalError{Span: at, Detail: fmt.Sprintf("%s overflows 64 bits", expr)}
}

// Refs lists the symbol names e depends on.
func Refs(e Expr) []string {
	var out []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case *Ref:
			out = append(out, e.Name)
		case *Unary:
			walk(e.X)
		case *Binary:
			walk(e.X)
			walk(e.Y)
		}
	}
	walk(e)
	return out
}

// Binary operators by precedence, loosest first.
var precedence = [][]string{
	{"|"},
	{"^"},
	{"&"},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "%"},
}

type exprParser struct {
	toks    []Token
	pos     int
	here    string
	qualify func(string) string
}

// parseExpr parses toks as one complete expression. here is the current-PC
// symbol and qualify maps local names to their full form.
func parseExpr(toks []Token, here string, qualify func(string) string) (Expr, error) {
	if len(toks) == 0 {
		return nil, &ParseError{Reason: MalformedOperand, Detail: "missing expression"}
	}
	p := &exprParser{toks: toks, here: here, qualify: qualify}
	e, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		t := p.toks[p.pos]
		return nil, &ParseError{Span: t.Span, Reason: MalformedOperand, Detail: fmt.Sprintf("unexpected %s", t)}
	}
	return e, nil
}

func (p *exprParser) peek() (Token, bool) {
	if p.pos < len(p.toks) {
		return p.toks[p.pos], true
	}
	return Token{}, false
}

func (p *exprParser) binary(level int) (Expr, error) {
	if level == len(precedence) {
		return p.unary()
	}
	x, err := p.binary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.Kind != TokenPunct || !contains(precedence[level], t.Text) {
			return x, nil
		}
		p.pos++
		y, err := p.binary(level + 1)
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: t.Text, X: x, Y: y, At: t.Span}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (p *exprParser) unary() (Expr, error) {
	t, ok := p.peek()
	if !ok {
		last := p.toks[len(p.toks)-1].Span
		return nil, &ParseError{Span: last, Reason: MalformedOperand, Detail: "expression ends early"}
	}
	if t.Kind == TokenPunct {
		switch t.Text {
		case "-", "+", "~", "<", ">", "^":
			p.pos++
			x, err := p.unary()
			if err != nil {
				return nil, err
			}
			return &Unary{Op: t.Text, X: x, At: t.Span}, nil
		}
	}
	return p.primary()
}

func (p *exprParser) primary() (Expr, error) {
	t, _ := p.peek()
	p.pos++
	switch {
	case t.Kind == TokenNumber, t.Kind == TokenChar:
		return &Number{Value: t.Value, At: t.Span}, nil
	case t.isName():
		name := t.Text
		if p.qualify != nil {
			name = p.qualify(name)
		}
		return &Ref{Name: name, At: t.Span}, nil
	case t.Kind == TokenPunct && t.Text == p.here:
		return &Here{At: t.Span}, nil
	case t.is("("):
		x, err := p.binary(0)
		if err != nil {
			return nil, err
		}
		c, ok := p.peek()
		if !ok || !c.is(")") {
			return nil, &ParseError{Span: t.Span, Reason: MalformedOperand, Detail: "missing )"}
		}
		p.pos++
		return x, nil
	}
	return nil, &ParseError{Span: t.Span, Reason: MalformedOperand, Detail: fmt.Sprintf("unexpected %s", t)}
}
