package assembler

import (
	"fmt"
)

// dataWidth is the element size of each data directive.
var dataWidth = map[string]int{
	"byte":  1,
	"word":  2,
	"long":  3,
	"dword": 4,
}

// maxFill bounds .fill and .align so a typo cannot allocate gigabytes.
const maxFill = 1 << 24

// directiveSize calculates the byte size of a directive for the sizing pass.
// Counts given to .fill and .align must already be known.
func (r *resolver) directiveSize(st *Statement, pc uint32) (int, error) {
	if w, ok := dataWidth[st.Directive]; ok {
		n := 0
		for _, a := range st.Args {
			if a.IsString {
				n += len(a.Str)
			} else {
				n += w
			}
		}
		return n, nil
	}

	switch st.Directive {
	case "fill":
		return r.count(st.Args[0], pc, ".fill")

	case "align":
		n, err := r.count(st.Args[0], pc, ".align")
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, &OperandOverflowError{Span: st.Args[0].Span, Mode: ".align", Value: 0, Min: 1, Max: maxFill}
		}
		return (n - int(pc%uint32(n))) % n, nil
	}
	// org, width and the mode directives take no space.
	return 0, nil
}

// count evaluates a size argument.
func (r *resolver) count(a Arg, pc uint32, dir string) (int, error) {
	v, err := Eval(a.Expr, env{r.syms, pc})
	if err != nil {
		return 0, err
	}
	if v < 0 || v > maxFill {
		return 0, &OperandOverflowError{Span: a.Span, Mode: dir, Value: v, Min: 0, Max: maxFill}
	}
	return int(v), nil
}

// directiveData generates the bytes of a directive in the code pass.
func (r *resolver) directiveData(st *Statement, pc uint32) ([]byte, error) {
	e := env{r.syms, pc}
	if w, ok := dataWidth[st.Directive]; ok {
		var out []byte
		for _, a := range st.Args {
			if a.IsString {
				out = append(out, a.Str...)
				continue
			}
			v, err := Eval(a.Expr, e)
			if err != nil {
				return nil, err
			}
			if !fits(v, w, false) {
				lo, hi := limits(w, false)
				return nil, &OperandOverflowError{Span: a.Span, Mode: "." + st.Directive, Value: v, Min: lo, Max: hi}
			}
			out = putLE(out, v, w)
		}
		return out, nil
	}

	switch st.Directive {
	case "fill", "align":
		n, err := r.directiveSize(st, pc)
		if err != nil {
			return nil, err
		}
		var fill int64
		if len(st.Args) > 1 {
			if fill, err = Eval(st.Args[1].Expr, e); err != nil {
				return nil, err
			}
			if !fits(fill, 1, false) {
				return nil, &OperandOverflowError{Span: st.Args[1].Span, Mode: "." + st.Directive, Value: fill, Min: -128, Max: 255}
			}
		}
		out := make([]byte, n)
		for i := range out {
			out[i] = byte(fill)
		}
		return out, nil

	case "org", "width":
		return nil, nil
	}
	if _, ok := r.def.ModeDirective(st.Directive); ok {
		return nil, nil
	}
	return nil, &EncodingError{Span: st.Span, Reason: UnsupportedCombination, Detail: fmt.Sprintf("no code for .%s", st.Directive)}
}
