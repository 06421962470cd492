package assembler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Urethramancer/tabasm/arch"
	"github.com/Urethramancer/tabasm/project"
)

// ModeState holds the current width of every dimension of an architecture,
// in definition order. It is a comparable value.
type ModeState [arch.MaxDimensions]arch.Width

// Width returns the width of dimension i.
func (s ModeState) Width(i int) arch.Width {
	return s[i]
}

// Format renders the state with the dimension names of def, e.g. "m=8 x=16".
func (s ModeState) Format(def *arch.Definition) string {
	parts := make([]string, len(def.Flags.Dimensions))
	for i, d := range def.Flags.Dimensions {
		parts[i] = fmt.Sprintf("%s=%s", d.Name, s[i])
	}
	return strings.Join(parts, " ")
}

// InitialState returns the state at the start of a program: the dimension
// defaults, overridden by the context.
func InitialState(def *arch.Definition, ctx *project.Context) (ModeState, error) {
	var s ModeState
	for i, d := range def.Flags.Dimensions {
		s[i] = d.Default
	}
	if ctx == nil {
		return s, nil
	}
	for name, bits := range ctx.Widths {
		i, ok := def.Dimension(name)
		if !ok {
			return s, fmt.Errorf("context sets unknown width dimension %q", name)
		}
		w, err := toWidth(int64(bits))
		if err != nil {
			return s, fmt.Errorf("context width %s: %w", name, err)
		}
		s[i] = w
	}
	return s, nil
}

func toWidth(bits int64) (arch.Width, error) {
	switch bits {
	case 8:
		return arch.Width8, nil
	case 16:
		return arch.Width16, nil
	}
	return arch.WidthUnknown, fmt.Errorf("width %d is not 8 or 16", bits)
}

// tracker follows the width state through a program.
type tracker struct {
	def   *arch.Definition
	state ModeState
}

// step applies the effect of st to the state. eval resolves operands; an
// operand it cannot resolve makes the new state unknowable.
func (t *tracker) step(st *Statement, eval func(Expr) (int64, error)) error {
	switch st.Kind {
	case StmtInstruction:
		mn := st.Mnemonic()
		set, clr := t.def.SetsFlags(mn), t.def.ClearsFlags(mn)
		if set || clr {
			if len(st.Operands) != 1 {
				return &ModeAmbiguityError{Span: st.Span, Detail: mn + " without an operand"}
			}
			v, err := eval(st.Operands[0])
			if err != nil {
				var ue *UndefinedSymbolError
				if errors.As(err, &ue) {
					return &ModeAmbiguityError{Span: st.Span, Detail: fmt.Sprintf("%s operand %s is not known here", mn, st.Operands[0])}
				}
				return err
			}
			for _, b := range t.def.Flags.Bits {
				if uint32(v)&b.Mask == 0 {
					continue
				}
				i, _ := t.def.Dimension(b.Dimension)
				if set {
					t.state[i] = b.Set
				} else {
					t.state[i] = b.Clear
				}
			}
		}
		if t.def.Invalidates(mn) {
			for i := range t.def.Flags.Dimensions {
				t.state[i] = arch.WidthUnknown
			}
		}

	case StmtDirective:
		if md, ok := t.def.ModeDirective(st.Directive); ok {
			i, _ := t.def.Dimension(md.Dimension)
			t.state[i] = md.Width
			return nil
		}
		if st.Directive != "width" {
			return nil
		}
		name := st.Args[0].Str
		i, ok := t.def.Dimension(name)
		if !ok {
			return &ParseError{Span: st.Args[0].Span, Reason: MalformedOperand, Detail: fmt.Sprintf("unknown width dimension %q", name)}
		}
		v, err := eval(st.Args[1].Expr)
		if err != nil {
			var ue *UndefinedSymbolError
			if errors.As(err, &ue) {
				return &ModeAmbiguityError{Span: st.Span, Dimension: name, Detail: ".width operand is not known here"}
			}
			return err
		}
		w, err := toWidth(v)
		if err != nil {
			return &OperandOverflowError{Span: st.Args[1].Span, Mode: ".width", Value: v, Min: 8, Max: 16}
		}
		t.state[i] = w
	}
	return nil
}
