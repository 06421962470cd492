package assembler

import (
	"iter"
	"sort"
	"strconv"
	"strings"

	"github.com/Urethramancer/tabasm/arch"
)

// Lexer turns source text into tokens. Whitespace other than newlines is
// dropped. After an error the rest of the line is skipped, so a caller can
// keep pulling tokens and collect several errors.
type Lexer struct {
	// IsMnemonic, when set, tags identifiers in statement position that name
	// an instruction as TokenMnemonic.
	IsMnemonic func(string) bool

	src   string
	rules arch.SyntaxRules
	hex   []string
	bin   []string
	oct   []string

	pos  int
	line int
	col  int

	// afterValue is true when the previous token ends an operand, so '%' is
	// the modulo operator rather than a binary prefix.
	afterValue bool
	// stmt is true while the next identifier may be a mnemonic.
	stmt bool
	// label is true right after a statement-position identifier.
	label bool
}

// NewLexer returns a lexer over src using the given conventions.
func NewLexer(src string, rules arch.SyntaxRules) *Lexer {
	lx := &Lexer{src: src, rules: rules}
	lx.hex = longestFirst(rules.HexPrefixes)
	lx.bin = longestFirst(rules.BinPrefixes)
	lx.oct = longestFirst(rules.OctPrefixes)
	lx.Reset()
	return lx
}

func longestFirst(p []string) []string {
	out := append([]string(nil), p...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// Reset rewinds to the start of the source.
func (lx *Lexer) Reset() {
	lx.pos, lx.line, lx.col = 0, 1, 1
	lx.afterValue, lx.label = false, false
	lx.stmt = true
}

// Tokens walks the whole source from the start. Each call is a fresh walk.
// The sequence ends after TokenEOF.
func (lx *Lexer) Tokens() iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		w := NewLexer(lx.src, lx.rules)
		w.IsMnemonic = lx.IsMnemonic
		for {
			tok, err := w.Next()
			if !yield(tok, err) {
				return
			}
			if err == nil && tok.Kind == TokenEOF {
				return
			}
		}
	}
}

func (lx *Lexer) peek(off int) byte {
	if lx.pos+off < len(lx.src) {
		return lx.src[lx.pos+off]
	}
	return 0
}

func (lx *Lexer) advance(n int) {
	for i := 0; i < n && lx.pos < len(lx.src); i++ {
		if lx.src[lx.pos] == '\n' {
			lx.line++
			lx.col = 1
		} else {
			lx.col++
		}
		lx.pos++
	}
}

func (lx *Lexer) rest() string {
	return lx.src[lx.pos:]
}

// skipLine drops everything up to (not including) the next newline.
func (lx *Lexer) skipLine() {
	for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
		lx.advance(1)
	}
}

func (lx *Lexer) fail(span Span, reason LexReason, text string) (Token, error) {
	lx.skipLine()
	return Token{}, &LexError{Span: span, Reason: reason, Text: text}
}

// Next returns the next token. At the end of input it keeps returning
// TokenEOF.
func (lx *Lexer) Next() (Token, error) {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '\f' {
			lx.advance(1)
			continue
		}
		break
	}

	span := Span{Line: lx.line, Col: lx.col}
	if lx.pos >= len(lx.src) {
		return Token{Kind: TokenEOF, Span: span}, nil
	}

	tok, err := lx.scan(span)
	if err != nil {
		lx.afterValue, lx.label = false, false
		return tok, err
	}
	lx.track(tok)
	return tok, nil
}

// track updates the context used to classify the following token.
func (lx *Lexer) track(tok Token) {
	switch tok.Kind {
	case TokenEOL:
		lx.stmt, lx.label, lx.afterValue = true, false, false
		return
	case TokenComment:
		return
	}
	label := lx.label
	lx.label = false
	switch {
	case tok.Kind == TokenIdent && lx.stmt:
		lx.label = true
		lx.stmt = false
	case label && tok.Kind == TokenPunct && tok.Text == lx.rules.LabelEnd:
		lx.stmt = true
	default:
		lx.stmt = false
	}
	lx.afterValue = tok.Kind == TokenIdent || tok.Kind == TokenNumber ||
		tok.Kind == TokenChar || tok.is(")") || tok.is("]")
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlnum(c byte) bool {
	return isLetter(c) || isDigit(c)
}

func digitIn(c byte, base int) bool {
	switch base {
	case 2:
		return c == '0' || c == '1'
	case 8:
		return c >= '0' && c <= '7'
	case 16:
		return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
	}
	return isDigit(c)
}

const punctuation = "#,()[]+-*/%&|^~<>=:"

func (lx *Lexer) scan(span Span) (Token, error) {
	c := lx.src[lx.pos]
	r := lx.rest()

	switch {
	case c == '\n':
		lx.advance(1)
		return Token{Kind: TokenEOL, Span: span}, nil

	case lx.rules.Comment != "" && strings.HasPrefix(r, lx.rules.Comment):
		start := lx.pos
		lx.skipLine()
		return Token{Kind: TokenComment, Text: lx.src[start:lx.pos], Span: span}, nil

	case c == '"':
		return lx.scanString(span)

	case c == '\'':
		return lx.scanChar(span)
	}

	if tok, ok, err := lx.scanPrefixedNumber(span); ok {
		return tok, err
	}

	switch {
	case isDigit(c):
		return lx.scanNumber(span, "", 10)

	case isLetter(c) || lx.rules.LocalPrefix != "" && strings.HasPrefix(r, lx.rules.LocalPrefix) &&
		isLetter(lx.peek(len(lx.rules.LocalPrefix))):
		n := 0
		if !isLetter(c) {
			n = len(lx.rules.LocalPrefix)
		}
		for lx.pos+n < len(lx.src) && isAlnum(lx.src[lx.pos+n]) {
			n++
		}
		text := r[:n]
		lx.advance(n)
		kind := TokenIdent
		if lx.stmt && lx.IsMnemonic != nil && lx.IsMnemonic(text) {
			kind = TokenMnemonic
		}
		return Token{Kind: kind, Text: text, Span: span}, nil

	case lx.rules.DirectivePrefix != "" && strings.HasPrefix(r, lx.rules.DirectivePrefix) &&
		isLetter(lx.peek(len(lx.rules.DirectivePrefix))):
		p := len(lx.rules.DirectivePrefix)
		n := p
		for lx.pos+n < len(lx.src) && isAlnum(lx.src[lx.pos+n]) {
			n++
		}
		name := strings.ToLower(r[p:n])
		lx.advance(n)
		return Token{Kind: TokenDirective, Text: name, Span: span}, nil
	}

	if strings.HasPrefix(r, "<<") || strings.HasPrefix(r, ">>") {
		lx.advance(2)
		return Token{Kind: TokenPunct, Text: r[:2], Span: span}, nil
	}
	if strings.IndexByte(punctuation, c) >= 0 {
		lx.advance(1)
		return Token{Kind: TokenPunct, Text: string(c), Span: span}, nil
	}
	return lx.fail(span, InvalidCharacter, string(c))
}

// scanPrefixedNumber handles radix prefixes that are not digits, such as "$"
// and "%". A binary prefix that could also be an operator only counts when a
// value is expected and a binary digit follows.
func (lx *Lexer) scanPrefixedNumber(span Span) (Token, bool, error) {
	r := lx.rest()
	try := func(prefixes []string, base int) (Token, bool, error) {
		for _, p := range prefixes {
			if p == "" || isDigit(p[0]) || !strings.HasPrefix(r, p) {
				continue
			}
			next := lx.peek(len(p))
			if strings.ContainsAny(p, punctuation) {
				if lx.afterValue || !digitIn(next, base) {
					continue
				}
			}
			tok, err := lx.scanNumber(span, p, base)
			return tok, true, err
		}
		return Token{}, false, nil
	}
	if tok, ok, err := try(lx.hex, 16); ok {
		return tok, ok, err
	}
	if tok, ok, err := try(lx.bin, 2); ok {
		return tok, ok, err
	}
	return try(lx.oct, 8)
}

// scanNumber reads the alphanumeric run after prefix and parses it in base.
// A number starting with a digit may carry a digit-led prefix such as "0x".
func (lx *Lexer) scanNumber(span Span, prefix string, base int) (Token, error) {
	start := lx.pos
	n := len(prefix)
	for lx.pos+n < len(lx.src) && isAlnum(lx.src[lx.pos+n]) {
		n++
	}
	text := lx.src[start : start+n]
	digits := text[len(prefix):]
	if prefix == "" {
		if p, b, ok := lx.digitPrefix(text); ok {
			digits, base = text[len(p):], b
		}
	}
	lx.advance(n)
	v, err := strconv.ParseUint(digits, base, 32)
	if err != nil || digits == "" {
		return lx.fail(span, InvalidNumericLiteral, text)
	}
	return Token{Kind: TokenNumber, Text: text, Value: int64(v), Span: span}, nil
}

// digitPrefix finds a radix prefix that starts with a digit, like "0x".
func (lx *Lexer) digitPrefix(text string) (string, int, bool) {
	lower := strings.ToLower(text)
	for _, set := range []struct {
		list []string
		base int
	}{{lx.hex, 16}, {lx.bin, 2}, {lx.oct, 8}} {
		for _, p := range set.list {
			if p != "" && isDigit(p[0]) && strings.HasPrefix(lower, strings.ToLower(p)) {
				return p, set.base, true
			}
		}
	}
	return "", 0, false
}

func unescape(c byte) (byte, bool) {
	switch c {
	case 'n':
		return '\n', true
	case 'r':
		return '\r', true
	case 't':
		return '\t', true
	case '0':
		return 0, true
	case '\\', '"', '\'':
		return c, true
	}
	return 0, false
}

// quoted reads up to the closing quote q on the current line.
func (lx *Lexer) quoted(q byte) (string, bool) {
	var sb strings.Builder
	lx.advance(1)
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\n':
			return sb.String(), false
		case c == q:
			lx.advance(1)
			return sb.String(), true
		case c == '\\':
			if e, ok := unescape(lx.peek(1)); ok {
				sb.WriteByte(e)
				lx.advance(2)
				continue
			}
		}
		sb.WriteByte(c)
		lx.advance(1)
	}
	return sb.String(), false
}

func (lx *Lexer) scanString(span Span) (Token, error) {
	s, ok := lx.quoted('"')
	if !ok {
		return lx.fail(span, UnterminatedString, "\""+s)
	}
	return Token{Kind: TokenString, Text: s, Span: span}, nil
}

// scanChar reads 'c'. Several characters between single quotes make a
// string, as in .byte 'ABC'.
func (lx *Lexer) scanChar(span Span) (Token, error) {
	s, ok := lx.quoted('\'')
	if !ok {
		return lx.fail(span, UnterminatedString, "'"+s)
	}
	if len(s) == 1 {
		return Token{Kind: TokenChar, Text: s, Value: int64(s[0]), Span: span}, nil
	}
	return Token{Kind: TokenString, Text: s, Span: span}, nil
}
