package assembler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Urethramancer/tabasm/arch"
	"github.com/Urethramancer/tabasm/project"
)

func TestBuildImageCoalesces(t *testing.T) {
	img, err := buildImage([]EncodedUnit{
		{Address: 0x12, Bytes: []byte{3}},
		{Address: 0x10, Bytes: []byte{1, 2}},
		{Address: 0x20, Bytes: []byte{9}},
		{Address: 0x30},
	})
	require.NoError(t, err)
	require.Equal(t, []Segment{
		{Start: 0x10, Data: []byte{1, 2, 3}},
		{Start: 0x20, Data: []byte{9}},
	}, img.Segments())
	require.EqualValues(t, 0x10, img.Start())
	require.EqualValues(t, 0x21, img.End())
}

func TestBuildImageOverlap(t *testing.T) {
	a := Span{Line: 1, Col: 1}
	b := Span{Line: 2, Col: 1}
	c := Span{Line: 3, Col: 1}
	_, err := buildImage([]EncodedUnit{
		{Address: 0x10, Bytes: make([]byte, 8), Span: a},
		{Address: 0x11, Bytes: []byte{1}, Span: b},
		{Address: 0x14, Bytes: []byte{1}, Span: c},
	})
	var oe *OverlapError
	require.ErrorAs(t, err, &oe)
	require.EqualValues(t, 0x11, oe.Address)
	require.Equal(t, []Span{a, b}, oe.Spans)
}

func TestPatchExtendsAndBridges(t *testing.T) {
	img, err := buildImage([]EncodedUnit{
		{Address: 0, Bytes: []byte{1, 2}},
		{Address: 4, Bytes: []byte{5}},
	})
	require.NoError(t, err)
	img.apply(project.Patch{Kind: project.PatchData, Address: 1, Data: []byte{0xA, 0xB, 0xC, 0xD, 0xE}})
	require.Equal(t, []Segment{{Start: 0, Data: []byte{1, 0xA, 0xB, 0xC, 0xD, 0xE}}}, img.Segments())
}

func TestTrackerSteps(t *testing.T) {
	def := arch.WDC65816()
	init, err := InitialState(def, nil)
	require.NoError(t, err)
	require.Equal(t, "m=8 x=8", init.Format(def))

	prog, err := Parse("rep #$30\nsep #$10\nplp\n.i16\n.width m, 8", def, 1)
	require.NoError(t, err)
	tr := tracker{def: def, state: init}
	eval := func(e Expr) (int64, error) { return Eval(e, env{t: NewSymbolTable(nil)}) }

	want := []string{"m=16 x=16", "m=16 x=8", "m=? x=?", "m=? x=16", "m=8 x=16"}
	for i := range prog.Statements {
		require.NoError(t, tr.step(&prog.Statements[i], eval))
		require.Equal(t, want[i], tr.state.Format(def))
	}
}

func TestInitialStateRejectsUnknownDimension(t *testing.T) {
	ctx := project.New()
	ctx.Widths["q"] = 8
	_, err := InitialState(arch.WDC65816(), ctx)
	require.Error(t, err)
}

func TestLimits(t *testing.T) {
	lo, hi := limits(1, false)
	require.EqualValues(t, -128, lo)
	require.EqualValues(t, 255, hi)
	lo, hi = limits(2, true)
	require.EqualValues(t, -32768, lo)
	require.EqualValues(t, 32767, hi)
	require.Equal(t, []byte{0x56, 0x34, 0x12}, putLE(nil, 0x123456, 3))
}

func TestEvalOperators(t *testing.T) {
	syms := NewSymbolTable(nil)
	require.NoError(t, syms.Define("base", 0x1234, project.Const, Span{Line: 1}))
	tests := []struct {
		src  string
		want int64
	}{
		{"base + 2", 0x1236},
		{"base >> 8", 0x12},
		{"1 << 4 | 1", 0x11},
		{"~0 & $FF", 0xFF},
		{"10 / 3", 3},
		{"6 ^ 3", 5},
		{"-(2 - 5)", 3},
		{"* + 1", 0x101},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			lx := NewLexer(tc.src, arch.MOS6502().Syntax)
			var toks []Token
			for tok, err := range lx.Tokens() {
				require.NoError(t, err)
				if tok.Kind != TokenEOF {
					toks = append(toks, tok)
				}
			}
			e, err := parseExpr(toks, "*", nil)
			require.NoError(t, err)
			v, err := Eval(e, env{syms, 0x100})
			require.NoError(t, err)
			require.Equal(t, tc.want, v)
		})
	}

	_, err := Eval(&Binary{Op: "/", X: &Number{Value: 1}, Y: &Number{Value: 0}}, env{syms, 0})
	var ee *EvalError
	require.ErrorAs(t, err, &ee)

	num := func(v int64) Expr { return &Number{Value: v} }
	overflows := []Expr{
		&Binary{Op: "*", X: &Binary{Op: "*", X: num(0xFFFFFFFF), Y: num(0xFFFFFFFF)}, Y: num(0xFFFFFFFF)},
		&Binary{Op: "+", X: num(math.MaxInt64), Y: num(1)},
		&Binary{Op: "-", X: num(math.MinInt64), Y: num(1)},
		&Binary{Op: "<<", X: num(1), Y: num(63)},
		&Binary{Op: "<<", X: num(0x1234), Y: num(60)},
		&Binary{Op: "/", X: num(math.MinInt64), Y: num(-1)},
		&Unary{Op: "-", X: num(math.MinInt64)},
	}
	for _, e := range overflows {
		_, err := Eval(e, env{syms, 0})
		require.ErrorAs(t, err, &ee, e.String())
		require.Contains(t, ee.Detail, "overflows")
	}

	v, err := Eval(&Binary{Op: "*", X: num(-1), Y: num(math.MaxInt64)}, env{syms, 0})
	require.NoError(t, err)
	require.Equal(t, int64(-math.MaxInt64), v)
	v, err = Eval(&Binary{Op: "<<", X: num(-1), Y: num(8)}, env{syms, 0})
	require.NoError(t, err)
	require.Equal(t, int64(-256), v)
}
