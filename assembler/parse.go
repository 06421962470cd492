package assembler

import (
	"fmt"
	"strings"

	"github.com/Urethramancer/tabasm/arch"
)

// element is one piece of a compiled operand syntax: an expression slot, a
// register name or a punctuation character.
type element struct {
	slot bool
	lit  string
	name bool
}

type pattern struct {
	syntax string
	elems  []element
}

func compilePattern(syntax string) pattern {
	p := pattern{syntax: syntax}
	for i := 0; i < len(syntax); {
		switch {
		case strings.HasPrefix(syntax[i:], "{}"):
			p.elems = append(p.elems, element{slot: true})
			i += 2
		case isLetter(syntax[i]):
			j := i
			for j < len(syntax) && isAlnum(syntax[j]) {
				j++
			}
			p.elems = append(p.elems, element{lit: syntax[i:j], name: true})
			i = j
		default:
			p.elems = append(p.elems, element{lit: syntax[i : i+1]})
			i++
		}
	}
	return p
}

func (e element) matches(t Token) bool {
	if e.name {
		return t.isName() && strings.EqualFold(t.Text, e.lit)
	}
	return t.is(e.lit)
}

// Canonical directive names and their aliases.
var directiveAliases = map[string]string{
	"org":   "org",
	"byte":  "byte",
	"db":    "byte",
	"word":  "word",
	"dw":    "word",
	"long":  "long",
	"dl":    "long",
	"dword": "dword",
	"dd":    "dword",
	"fill":  "fill",
	"res":   "fill",
	"ds":    "fill",
	"align": "align",
	"width": "width",
	"equ":   "equ",
}

type parser struct {
	def      *arch.Definition
	rules    arch.SyntaxRules
	patterns []pattern
	limit    int
	errs     ErrorList
	prog     *Program
	global   string
}

// Parse turns src into a Program. Undefined symbols are not an error here.
// Up to limit errors are collected before giving up; limit <= 0 collects
// them all.
func Parse(src string, def *arch.Definition, limit int) (*Program, error) {
	p := &parser{
		def:   def,
		rules: def.Syntax,
		limit: limit,
		prog:  &Program{Lines: strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")},
	}
	for _, s := range def.SyntaxPatterns() {
		p.patterns = append(p.patterns, compilePattern(s))
	}

	lx := NewLexer(src, def.Syntax)
	lx.IsMnemonic = func(s string) bool {
		_, ok := def.Lookup(s)
		return ok
	}

	var line []Token
	bad := false
	for tok, err := range lx.Tokens() {
		if err != nil {
			if p.fail(err) {
				break
			}
			bad = true
			continue
		}
		switch tok.Kind {
		case TokenComment:
			continue
		case TokenEOL, TokenEOF:
			if !bad && len(line) > 0 {
				if err := p.parseLine(line); err != nil && p.fail(err) {
					return nil, p.result()
				}
			}
			line, bad = line[:0], false
			continue
		}
		line = append(line, tok)
	}
	if err := p.result(); err != nil {
		return nil, err
	}
	return p.prog, nil
}

// fail records err and reports whether the error limit is reached.
func (p *parser) fail(err error) bool {
	e, ok := err.(Error)
	if !ok {
		e = &ParseError{Reason: MalformedOperand, Detail: err.Error()}
	}
	p.errs = append(p.errs, e)
	return p.limit > 0 && len(p.errs) >= p.limit
}

func (p *parser) result() error {
	switch len(p.errs) {
	case 0:
		return nil
	case 1:
		return p.errs[0]
	}
	return p.errs
}

func (p *parser) qualify(name string) string {
	if p.rules.LocalPrefix != "" && strings.HasPrefix(name, p.rules.LocalPrefix) {
		return p.global + name
	}
	return name
}

func (p *parser) add(st Statement) {
	st.Line = st.Span.Line
	p.prog.Statements = append(p.prog.Statements, st)
}

func (p *parser) expr(toks []Token) (Expr, error) {
	return parseExpr(toks, p.rules.CurrentPC, p.qualify)
}

func (p *parser) parseLine(toks []Token) error {
	labeled := false
	for len(toks) >= 2 && toks[0].isName() && toks[1].is(p.rules.LabelEnd) {
		if labeled {
			return &ParseError{Span: toks[0].Span, Reason: DuplicateLabelOnLine, Detail: toks[0].Text}
		}
		labeled = true
		name := p.qualify(toks[0].Text)
		if name == toks[0].Text {
			p.global = name
		}
		p.add(Statement{Kind: StmtLabel, Span: toks[0].Span, Name: name})
		toks = toks[2:]
	}
	if len(toks) == 0 {
		return nil
	}

	t := toks[0]
	if t.isName() && len(toks) >= 2 && (toks[1].is("=") || toks[1].Kind == TokenDirective && toks[1].Text == "equ") {
		if labeled {
			return &ParseError{Span: t.Span, Reason: DuplicateLabelOnLine, Detail: t.Text}
		}
		return p.equate(t, toks[2:])
	}

	switch t.Kind {
	case TokenMnemonic:
		return p.instruction(t, toks[1:])
	case TokenDirective:
		return p.directive(t, toks[1:])
	case TokenIdent:
		return &ParseError{Span: t.Span, Reason: UnknownMnemonic, Detail: t.Text}
	}
	return &ParseError{Span: t.Span, Reason: MalformedOperand, Detail: fmt.Sprintf("unexpected %s", t)}
}

func (p *parser) equate(name Token, rest []Token) error {
	if len(rest) == 0 {
		return &ParseError{Span: name.Span, Reason: MalformedOperand, Detail: "equate needs a value"}
	}
	v, err := p.expr(rest)
	if err != nil {
		return err
	}
	p.add(Statement{Kind: StmtEquate, Span: name.Span, Name: p.qualify(name.Text), Value: v})
	return nil
}

// splitArgs splits toks at commas outside parentheses.
func splitArgs(toks []Token) [][]Token {
	var out [][]Token
	depth, last := 0, 0
	for i, t := range toks {
		switch {
		case t.is("("):
			depth++
		case t.is(")"):
			depth--
		case t.is(",") && depth == 0:
			out = append(out, toks[last:i])
			last = i + 1
		}
	}
	return append(out, toks[last:])
}

func (p *parser) directive(t Token, rest []Token) error {
	st := Statement{Kind: StmtDirective, Span: t.Span}
	if md, ok := p.def.ModeDirective(t.Text); ok {
		if len(rest) > 0 {
			return &ParseError{Span: rest[0].Span, Reason: MalformedOperand, Detail: "." + md.Name + " takes no operand"}
		}
		st.Directive = md.Name
		p.add(st)
		return nil
	}
	dir, ok := directiveAliases[t.Text]
	if !ok {
		return &ParseError{Span: t.Span, Reason: UnknownDirective, Detail: t.Text}
	}
	st.Directive = dir

	var parts [][]Token
	if len(rest) > 0 {
		parts = splitArgs(rest)
	}
	for _, part := range parts {
		if len(part) == 0 {
			return &ParseError{Span: t.Span, Reason: MalformedOperand, Detail: "empty argument"}
		}
		if len(part) == 1 && part[0].Kind == TokenString {
			st.Args = append(st.Args, Arg{Str: part[0].Text, IsString: true, Span: part[0].Span})
			continue
		}
		// Names in .width and .equ are not expressions.
		if len(st.Args) == 0 && (dir == "width" || dir == "equ") {
			if len(part) != 1 || !part[0].isName() {
				return &ParseError{Span: part[0].Span, Reason: MalformedOperand, Detail: "expected a name"}
			}
			st.Args = append(st.Args, Arg{Str: part[0].Text, Span: part[0].Span})
			continue
		}
		e, err := p.expr(part)
		if err != nil {
			return err
		}
		st.Args = append(st.Args, Arg{Expr: e, Span: part[0].Span})
	}

	lo, hi := 1, -1
	switch dir {
	case "org":
		hi = 1
	case "fill", "align":
		hi = 2
	case "width", "equ":
		lo, hi = 2, 2
	}
	if len(st.Args) < lo || hi >= 0 && len(st.Args) > hi {
		return &ParseError{Span: t.Span, Reason: MalformedOperand, Detail: fmt.Sprintf(".%s: wrong number of arguments", t.Text)}
	}
	for i, a := range st.Args {
		if a.IsString && dir != "byte" {
			return &ParseError{Span: a.Span, Reason: MalformedOperand, Detail: fmt.Sprintf(".%s does not take strings", t.Text)}
		}
		if a.Expr == nil && !a.IsString && i > 0 {
			return &ParseError{Span: a.Span, Reason: MalformedOperand, Detail: "expected an expression"}
		}
	}

	if dir == "equ" {
		p.add(Statement{Kind: StmtEquate, Span: st.Args[0].Span, Name: p.qualify(st.Args[0].Str), Value: st.Args[1].Expr})
		return nil
	}
	p.add(st)
	return nil
}

func (p *parser) instruction(t Token, ops []Token) error {
	in, ok := p.def.Lookup(t.Text)
	if !ok {
		return &ParseError{Span: t.Span, Reason: UnknownMnemonic, Detail: t.Text}
	}
	modes, forced, exprs, err := p.operand(in, t, ops)
	if err != nil {
		return err
	}
	p.add(Statement{
		Kind:     StmtInstruction,
		Span:     t.Span,
		Instr:    in,
		Modes:    modes,
		Forced:   forced,
		Operands: exprs,
	})
	return nil
}

// operand matches the operand tokens against every syntax pattern, most
// specific first, and returns the modes of the first pattern the
// instruction supports. A bracketed pattern that matches is final.
func (p *parser) operand(in *arch.Instruction, t Token, toks []Token) ([]*arch.Mode, int, []Expr, error) {
	if len(toks) == 0 {
		var modes []*arch.Mode
		for _, m := range p.def.ModesBySyntax("") {
			if in.Supports(m.Name) {
				modes = append(modes, m)
			}
		}
		// A bare shift means the accumulator.
		if len(modes) == 0 {
			for _, e := range in.Encodings {
				if m, ok := p.def.Mode(e.Mode); ok && m.Slots() == 0 && m.Bytes == 0 {
					modes = append(modes, m)
				}
			}
		}
		if len(modes) == 0 {
			return nil, 0, nil, &ParseError{Span: t.Span, Reason: UnsupportedAddressingMode, Detail: in.Mnemonic + " needs an operand"}
		}
		return modes, 0, nil, nil
	}

	toks, forced, err := p.sizePrefix(toks)
	if err != nil {
		return nil, 0, nil, err
	}

	matched := false
	for _, pat := range p.patterns {
		if len(pat.elems) == 0 {
			continue
		}
		exprs, ok := p.match(pat.elems, toks, nil)
		if !ok {
			continue
		}
		matched = true
		var modes []*arch.Mode
		for _, m := range p.def.ModesBySyntax(pat.syntax) {
			if !in.Supports(m.Name) || forced != 0 && m.Bytes != forced {
				continue
			}
			modes = append(modes, m)
		}
		if len(modes) > 0 {
			return modes, forced, exprs, nil
		}
		// Brackets in the written form select indirection. They are never
		// read again as grouping for a plainer pattern.
		if strings.ContainsAny(pat.syntax, "([") {
			break
		}
	}
	if matched {
		return nil, 0, nil, &ParseError{Span: toks[0].Span, Reason: UnsupportedAddressingMode, Detail: fmt.Sprintf("%s %s", in.Mnemonic, joinTokens(toks))}
	}
	if _, err := p.expr(toks); err != nil {
		return nil, 0, nil, err
	}
	return nil, 0, nil, &ParseError{Span: toks[0].Span, Reason: MalformedOperand, Detail: joinTokens(toks)}
}

// sizePrefix removes a size prefix at the start of the operand or right
// after an opening bracket and returns the forced byte count.
func (p *parser) sizePrefix(toks []Token) ([]Token, int, error) {
	if len(p.rules.SizePrefixes) == 0 {
		return toks, 0, nil
	}
	forced := 0
	out := make([]Token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		atStart := len(out) == 0 || out[len(out)-1].is("(") || out[len(out)-1].is("[")
		if atStart && t.isName() && i+1 < len(toks) && toks[i+1].is(":") {
			if n, ok := p.rules.SizePrefixes[strings.ToLower(t.Text)+":"]; ok {
				if forced != 0 {
					return nil, 0, &ParseError{Span: t.Span, Reason: MalformedOperand, Detail: "more than one size prefix"}
				}
				forced = n
				i++
				continue
			}
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, 0, &ParseError{Span: toks[0].Span, Reason: MalformedOperand, Detail: "size prefix without operand"}
	}
	return out, forced, nil
}

// match binds toks to elems. Slots take the shortest run of tokens that
// parses as a complete expression and lets the rest of the pattern match.
func (p *parser) match(elems []element, toks []Token, out []Expr) ([]Expr, bool) {
	if len(elems) == 0 {
		return out, len(toks) == 0
	}
	e := elems[0]
	if !e.slot {
		if len(toks) == 0 || !e.matches(toks[0]) {
			return nil, false
		}
		return p.match(elems[1:], toks[1:], out)
	}
	first := 1
	if len(elems) == 1 {
		first = len(toks)
	}
	for n := first; n <= len(toks); n++ {
		x, err := p.expr(toks[:n])
		if err != nil {
			continue
		}
		if r, ok := p.match(elems[1:], toks[n:], append(out[:len(out):len(out)], x)); ok {
			return r, true
		}
	}
	return nil, false
}

func joinTokens(toks []Token) string {
	var sb strings.Builder
	for _, t := range toks {
		switch t.Kind {
		case TokenString:
			fmt.Fprintf(&sb, "%q", t.Text)
		case TokenChar:
			fmt.Fprintf(&sb, "'%s'", t.Text)
		default:
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}
