package assembler

import (
	"errors"
	"fmt"
	"strings"
)

// Error is implemented by every error the assembler reports about a program.
// Internal is true only for defects in the assembler or architecture data.
type Error interface {
	error
	Pos() Span
	Internal() bool
}

// LexReason classifies a LexError.
type LexReason uint8

const (
	UnterminatedString LexReason = iota
	InvalidCharacter
	InvalidNumericLiteral
)

var lexReasons = []string{"unterminated string", "invalid character", "invalid numeric literal"}

func (r LexReason) String() string { return lexReasons[r] }

// LexError is a malformed token.
type LexError struct {
	Span   Span
	Reason LexReason
	Text   string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s: %s %q", e.Span, e.Reason, e.Text)
}
func (e *LexError) Pos() Span      { return e.Span }
func (e *LexError) Internal() bool { return false }

// ParseReason classifies a ParseError.
type ParseReason uint8

const (
	UnknownMnemonic ParseReason = iota
	UnsupportedAddressingMode
	MalformedOperand
	DuplicateLabelOnLine
	UnknownDirective
)

var parseReasons = []string{
	"unknown mnemonic",
	"unsupported addressing mode",
	"malformed operand",
	"more than one label on line",
	"unknown directive",
}

func (r ParseReason) String() string { return parseReasons[r] }

// ParseError is a syntactically invalid statement.
type ParseError struct {
	Span   Span
	Reason ParseReason
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Span, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Span, e.Reason, e.Detail)
}
func (e *ParseError) Pos() Span      { return e.Span }
func (e *ParseError) Internal() bool { return false }

// ModeAmbiguityError means a processor width could not be determined
// statically where an encoding depends on it.
type ModeAmbiguityError struct {
	Span      Span
	Dimension string
	Detail    string
}

func (e *ModeAmbiguityError) Error() string {
	if e.Dimension == "" {
		return fmt.Sprintf("%s: ambiguous width: %s", e.Span, e.Detail)
	}
	return fmt.Sprintf("%s: width of %s is unknown: %s", e.Span, e.Dimension, e.Detail)
}
func (e *ModeAmbiguityError) Pos() Span      { return e.Span }
func (e *ModeAmbiguityError) Internal() bool { return false }

// DuplicateSymbolError is a second definition of a name. First is zero when
// the earlier definition came from the context.
type DuplicateSymbolError struct {
	Name   string
	First  Span
	Second Span
}

func (e *DuplicateSymbolError) Error() string {
	if e.First.IsZero() {
		return fmt.Sprintf("%s: %s redefines a context symbol", e.Second, e.Name)
	}
	return fmt.Sprintf("%s: %s already defined at %s", e.Second, e.Name, e.First)
}
func (e *DuplicateSymbolError) Pos() Span      { return e.Second }
func (e *DuplicateSymbolError) Internal() bool { return false }

// UndefinedSymbolError is a reference to a name that is never defined.
type UndefinedSymbolError struct {
	Name string
	Span Span
}

func (e *UndefinedSymbolError) Error() string {
	return fmt.Sprintf("%s: undefined symbol %s", e.Span, e.Name)
}
func (e *UndefinedSymbolError) Pos() Span      { return e.Span }
func (e *UndefinedSymbolError) Internal() bool { return false }

// OperandOverflowError is a value that does not fit its encoded field. Min and
// Max give the accepted range.
type OperandOverflowError struct {
	Span  Span
	Mode  string
	Value int64
	Min   int64
	Max   int64
}

func (e *OperandOverflowError) Error() string {
	return fmt.Sprintf("%s: value %d out of range for %s (%d..%d)", e.Span, e.Value, e.Mode, e.Min, e.Max)
}
func (e *OperandOverflowError) Pos() Span      { return e.Span }
func (e *OperandOverflowError) Internal() bool { return false }

// EvalError is an expression that cannot be computed, such as a division by
// zero.
type EvalError struct {
	Span   Span
	Detail string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Span, e.Detail)
}
func (e *EvalError) Pos() Span      { return e.Span }
func (e *EvalError) Internal() bool { return false }

// EncodingReason classifies an EncodingError.
type EncodingReason uint8

const (
	UnsupportedCombination EncodingReason = iota
	SizeMismatch
	ModeDivergence
)

var encodingReasons = []string{"unsupported combination", "size differs between passes", "width state differs between passes"}

func (r EncodingReason) String() string { return encodingReasons[r] }

// EncodingError is an internal inconsistency. Seeing one is a bug in the
// assembler or in the architecture tables.
type EncodingError struct {
	Span   Span
	Reason EncodingReason
	Detail string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s: internal error: %s: %s", e.Span, e.Reason, e.Detail)
}
func (e *EncodingError) Pos() Span      { return e.Span }
func (e *EncodingError) Internal() bool { return true }

// OverlapError is an address written more than once.
type OverlapError struct {
	Address uint32
	Spans   []Span
}

func (e *OverlapError) Error() string {
	s := make([]string, len(e.Spans))
	for i, sp := range e.Spans {
		if sp.IsZero() {
			s[i] = "vector"
		} else {
			s[i] = sp.String()
		}
	}
	return fmt.Sprintf("overlapping output at $%04X (%s)", e.Address, strings.Join(s, ", "))
}

func (e *OverlapError) Pos() Span {
	if len(e.Spans) > 0 {
		return e.Spans[len(e.Spans)-1]
	}
	return Span{}
}
func (e *OverlapError) Internal() bool { return false }

// ErrorList is returned when more than one error was collected.
type ErrorList []Error

func (l ErrorList) Error() string {
	s := make([]string, len(l))
	for i, e := range l {
		s[i] = e.Error()
	}
	return strings.Join(s, "\n")
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (l ErrorList) Unwrap() []error {
	out := make([]error, len(l))
	for i, e := range l {
		out[i] = e
	}
	return out
}

// at fills in the position of a span-less error coming out of the encoder.
func at(err error, s Span) error {
	var (
		me *ModeAmbiguityError
		oe *OperandOverflowError
		ee *EncodingError
		ve *EvalError
	)
	switch {
	case errors.As(err, &me) && me.Span.IsZero():
		me.Span = s
	case errors.As(err, &oe) && oe.Span.IsZero():
		oe.Span = s
	case errors.As(err, &ee) && ee.Span.IsZero():
		ee.Span = s
	case errors.As(err, &ve) && ve.Span.IsZero():
		ve.Span = s
	}
	return err
}
