package assembler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Urethramancer/tabasm/arch"
	"github.com/Urethramancer/tabasm/project"
)

// plan is what pass 1 decided about a statement. Pass 2 follows it exactly.
type plan struct {
	addr  uint32
	size  int
	mode  *arch.Mode
	state ModeState
}

// resolver runs both passes over one program. It is used once.
type resolver struct {
	def  *arch.Definition
	ctx  *project.Context
	prog *Program
	syms *SymbolTable
	enc  *Encoder
	log  *slog.Logger

	origin   uint32
	plans    []plan
	deferred []int
}

func newResolver(def *arch.Definition, ctx *project.Context, prog *Program, log *slog.Logger) *resolver {
	r := &resolver{
		def:  def,
		ctx:  ctx,
		prog: prog,
		syms: NewSymbolTable(ctx),
		enc:  NewEncoder(def),
		log:  log,
	}
	if ctx.HasOrigin {
		r.origin = ctx.Origin
	}
	return r
}

func isUndefined(err error) bool {
	var ue *UndefinedSymbolError
	return errors.As(err, &ue)
}

// maxAddress is the highest address the architecture can reach.
func (r *resolver) maxAddress() int64 {
	return int64(1)<<uint(8*r.def.AddressBytes) - 1
}

// pass1 assigns addresses, sizes and modes, and defines labels and every
// equate whose value is already computable.
func (r *resolver) pass1() error {
	init, err := InitialState(r.def, r.ctx)
	if err != nil {
		return err
	}
	tr := tracker{def: r.def, state: init}
	pc := r.origin
	r.plans = make([]plan, len(r.prog.Statements))

	for i := range r.prog.Statements {
		st := &r.prog.Statements[i]
		p := plan{addr: pc, state: tr.state}
		eval := func(e Expr) (int64, error) { return Eval(e, env{r.syms, pc}) }

		switch st.Kind {
		case StmtLabel:
			if err := r.syms.Define(st.Name, int64(pc), project.Label, st.Span); err != nil {
				return err
			}
			r.log.Debug("label", "name", st.Name, "address", pc)

		case StmtEquate:
			if err := r.syms.Declare(st.Name, project.Const, st.Span); err != nil {
				return err
			}
			v, err := eval(st.Value)
			switch {
			case err == nil:
				r.syms.Set(st.Name, v)
				r.log.Debug("equate", "name", st.Name, "value", v)
			case isUndefined(err):
				r.deferred = append(r.deferred, i)
			default:
				return err
			}

		case StmtInstruction:
			p.mode = r.chooseMode(st, pc)
			_, n, err := r.enc.Size(st.Mnemonic(), p.mode.Name, tr.state)
			if err != nil {
				return at(err, st.Span)
			}
			p.size = 1 + n

		case StmtDirective:
			if st.Directive == "org" {
				v, err := eval(st.Args[0].Expr)
				if err != nil {
					return err
				}
				if v < 0 || v > r.maxAddress() {
					return &OperandOverflowError{Span: st.Args[0].Span, Mode: ".org", Value: v, Min: 0, Max: r.maxAddress()}
				}
				pc = uint32(v)
				p.addr = pc
				break
			}
			n, err := r.directiveSize(st, pc)
			if err != nil {
				return err
			}
			p.size = n
		}

		if err := tr.step(st, eval); err != nil {
			return err
		}
		r.plans[i] = p
		if int64(pc)+int64(p.size) > r.maxAddress()+1 {
			return &OperandOverflowError{Span: st.Span, Mode: "address", Value: int64(pc) + int64(p.size), Min: 0, Max: r.maxAddress() + 1}
		}
		pc += uint32(p.size)
	}
	return nil
}

// chooseMode picks one mode from the statement's candidates. A size prefix
// has already narrowed them. Otherwise the smallest mode that holds a value
// known now wins, and an unknown value gets the default address size.
func (r *resolver) chooseMode(st *Statement, pc uint32) *arch.Mode {
	modes := st.Modes
	if len(modes) == 1 {
		return modes[0]
	}
	if len(st.Operands) == 1 {
		if v, err := Eval(st.Operands[0], env{r.syms, pc}); err == nil {
			for _, m := range modes {
				if fitsUnsigned(v, m.Bytes) {
					return m
				}
			}
			return modes[len(modes)-1]
		}
	}
	for _, m := range modes {
		if m.Bytes == r.def.DefaultAddressBytes {
			return m
		}
	}
	for _, m := range modes {
		if m.Bytes >= r.def.DefaultAddressBytes {
			return m
		}
	}
	return modes[len(modes)-1]
}

// resolveDeferred evaluates the equates pass 1 could not, repeating until
// nothing changes, then freezes the symbol table.
func (r *resolver) resolveDeferred() error {
	for len(r.deferred) > 0 {
		progress := false
		rest := r.deferred[:0]
		for _, i := range r.deferred {
			st := &r.prog.Statements[i]
			v, err := Eval(st.Value, env{r.syms, r.plans[i].addr})
			switch {
			case err == nil:
				r.syms.Set(st.Name, v)
				r.log.Debug("equate", "name", st.Name, "value", v, "deferred", true)
				progress = true
			case isUndefined(err):
				rest = append(rest, i)
			default:
				return err
			}
		}
		r.deferred = rest
		if !progress {
			i := r.deferred[0]
			_, err := Eval(r.prog.Statements[i].Value, env{r.syms, r.plans[i].addr})
			return err
		}
	}
	r.syms.Freeze()
	return nil
}

// pass2 re-derives the width state, evaluates every operand against the
// frozen table and emits the code. Any disagreement with pass 1 is an
// internal error.
func (r *resolver) pass2() ([]EncodedUnit, []ListingLine, error) {
	init, err := InitialState(r.def, r.ctx)
	if err != nil {
		return nil, nil, err
	}
	tr := tracker{def: r.def, state: init}
	var (
		units   []EncodedUnit
		listing []ListingLine
	)

	for i := range r.prog.Statements {
		st := &r.prog.Statements[i]
		p := r.plans[i]
		pc := p.addr
		eval := func(e Expr) (int64, error) { return Eval(e, env{r.syms, pc}) }

		if tr.state != p.state {
			return nil, nil, &EncodingError{
				Span:   st.Span,
				Reason: ModeDivergence,
				Detail: fmt.Sprintf("pass 1 had %s, pass 2 has %s", p.state.Format(r.def), tr.state.Format(r.def)),
			}
		}

		var data []byte
		switch st.Kind {
		case StmtInstruction:
			values := make([]int64, len(st.Operands))
			for j, e := range st.Operands {
				v, err := eval(e)
				if err != nil {
					return nil, nil, err
				}
				values[j] = v
			}
			data, err = r.enc.Encode(st.Mnemonic(), p.mode.Name, tr.state, values, pc)
			if err != nil {
				span := st.Span
				if len(st.Operands) > 0 {
					span = st.Operands[0].Pos()
				}
				return nil, nil, at(err, span)
			}

		case StmtDirective:
			data, err = r.directiveData(st, pc)
			if err != nil {
				return nil, nil, err
			}
		}

		if len(data) != p.size {
			return nil, nil, &EncodingError{
				Span:   st.Span,
				Reason: SizeMismatch,
				Detail: fmt.Sprintf("planned %d bytes, encoded %d", p.size, len(data)),
			}
		}
		if err := tr.step(st, eval); err != nil {
			return nil, nil, err
		}

		if len(data) > 0 {
			units = append(units, EncodedUnit{Address: pc, Bytes: data, Span: st.Span})
		}
		if n := len(listing); n > 0 && listing[n-1].Span.Line == st.Line {
			listing[n-1].Bytes = append(listing[n-1].Bytes, data...)
			continue
		}
		listing = append(listing, ListingLine{
			Address: pc,
			Bytes:   append([]byte(nil), data...),
			Span:    st.Span,
			Source:  r.source(st.Line),
		})
	}
	return units, listing, nil
}

func (r *resolver) source(line int) string {
	if line < 1 || line > len(r.prog.Lines) {
		return ""
	}
	return r.prog.Lines[line-1]
}

// vectorUnits resolves the handlers of the context's exception vectors.
func (r *resolver) vectorUnits() ([]EncodedUnit, []VectorInfo, error) {
	var (
		units []EncodedUnit
		infos []VectorInfo
	)
	for _, v := range r.ctx.Vectors {
		info := VectorInfo{Name: v.Name, Address: v.Address, Handler: v.Handler}
		if v.Handler == "" {
			infos = append(infos, info)
			continue
		}
		e, err := r.handlerExpr(v.Handler)
		if err != nil {
			return nil, nil, fmt.Errorf("vector %s: %w", v.Name, err)
		}
		val, err := Eval(e, env{r.syms, v.Address})
		if err != nil {
			return nil, nil, fmt.Errorf("vector %s: %w", v.Name, err)
		}
		n := v.Bytes
		if n == 0 {
			n = r.def.VectorBytes
		}
		if !fits(val, n, false) {
			lo, hi := limits(n, false)
			return nil, nil, &OperandOverflowError{Mode: "vector " + v.Name, Value: val, Min: lo, Max: hi}
		}
		info.Value = uint32(val)
		info.Resolved = true
		infos = append(infos, info)
		units = append(units, EncodedUnit{Address: v.Address, Bytes: putLE(nil, val, n)})
		r.log.Debug("vector", "name", v.Name, "address", v.Address, "handler", val)
	}
	return units, infos, nil
}

// handlerExpr parses a vector handler written in source syntax.
func (r *resolver) handlerExpr(text string) (Expr, error) {
	lx := NewLexer(text, r.def.Syntax)
	var toks []Token
	for tok, err := range lx.Tokens() {
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokenEOF || tok.Kind == TokenEOL || tok.Kind == TokenComment {
			continue
		}
		toks = append(toks, tok)
	}
	return parseExpr(toks, r.def.Syntax.CurrentPC, nil)
}
