package assembler

import "fmt"

// Span is a 1-based source position.
type Span struct {
	Line int
	Col  int
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Col)
}

// IsZero reports whether the span points nowhere, as for context-supplied
// symbols and vectors.
func (s Span) IsZero() bool {
	return s.Line == 0
}

// TokenKind is the lexical class of a Token.
type TokenKind uint8

const (
	TokenEOF TokenKind = iota
	TokenEOL
	TokenIdent
	TokenMnemonic
	TokenNumber
	TokenString
	TokenChar
	TokenPunct
	TokenDirective
	TokenComment
)

var tokenNames = []string{"EOF", "EOL", "identifier", "mnemonic", "number", "string", "char", "punct", "directive", "comment"}

func (k TokenKind) String() string {
	if int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return fmt.Sprintf("token(%d)", k)
}

// Token is one lexeme. Text holds the identifier, punctuation, directive name
// (without prefix) or decoded string; Value holds numbers and characters.
type Token struct {
	Kind  TokenKind
	Text  string
	Value int64
	Span  Span
}

func (t Token) String() string {
	switch t.Kind {
	case TokenNumber, TokenChar:
		return fmt.Sprintf("%s %d", t.Kind, t.Value)
	case TokenEOF, TokenEOL:
		return t.Kind.String()
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}

// is reports whether t is the punctuation p.
func (t Token) is(p string) bool {
	return t.Kind == TokenPunct && t.Text == p
}

// isName reports whether t can name a symbol.
func (t Token) isName() bool {
	return t.Kind == TokenIdent || t.Kind == TokenMnemonic
}
