package assembler_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Urethramancer/tabasm/arch"
	"github.com/Urethramancer/tabasm/assembler"
	"github.com/Urethramancer/tabasm/project"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ToLower(strings.Join(strings.Fields(s), "")))
	require.NoError(t, err, "invalid expected hex string")
	return b
}

// assembleAndMatchHex assembles src and compares the flattened image with
// the expected bytes, given in hex.
func assembleAndMatchHex(t *testing.T, def *arch.Definition, ctx *project.Context, src, expectedHex string) {
	t.Helper()
	img, _, err := assembler.Assemble(src, def, ctx)
	require.NoError(t, err, "source:\n%s", src)
	require.Equal(t, mustHex(t, expectedHex), img.Bytes(0), "source:\n%s", src)
}

func TestEncodings6502(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"Implied", "nop", "EA"},
		{"Immediate", "lda #$12", "A9 12"},
		{"ImmediateChar", "lda #'A'", "A9 41"},
		{"Direct", "lda $12", "A5 12"},
		{"Absolute", "lda $1234", "AD 34 12"},
		{"ForcedAbsolute", "lda a:$12", "AD 12 00"},
		{"DirectX", "lda $12,x", "B5 12"},
		{"AbsoluteY", "lda $1234,Y", "B9 34 12"},
		{"IndexedIndirect", "lda ($10,X)", "A1 10"},
		{"IndirectIndexed", "lda ($10),Y", "B1 10"},
		{"JumpIndirect", "jmp ($1234)", "6C 34 12"},
		{"Accumulator", "asl a", "0A"},
		{"BareShift", "asl", "0A"},
		{"ShiftDirect", "asl $10", "06 10"},
		{"LowByte", "lda #<$1234", "A9 34"},
		{"HighByte", "lda #>$1234", "A9 12"},
		{"BinaryLiteral", "lda #%1010", "A9 0A"},
		{"Expression", "lda #(2+3)*4", "A9 14"},
		{"Modulo", "lda #7 % 3", "A9 01"},
		{"Negative", "lda #-1", "A9 FF"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assembleAndMatchHex(t, arch.MOS6502(), nil, tc.src, tc.hex)
		})
	}
}

func TestEncodings65816(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"Long", "lda $123456", "AF 56 34 12"},
		{"ForcedLong", "lda f:$12", "AF 12 00 00"},
		{"LongX", "lda $123456,x", "BF 56 34 12"},
		{"IndirectLong", "lda [$10]", "A7 10"},
		{"IndirectLongY", "lda [$10],y", "B7 10"},
		{"Stack", "lda $03,s", "A3 03"},
		{"StackIndirectY", "lda ($03,s),y", "B3 03"},
		{"BankByte", "lda #^$123456", "A9 12"},
		{"BlockMove", "mvn $01,$02", "54 02 01"},
		{"JumpLong", "jml $123456", "5C 56 34 12"},
		{"JumpIndirectLong", "jml [$1234]", "DC 34 12"},
		{"ForcedJump", "jmp f:$001234", "5C 34 12 00"},
		{"Index16", "rep #$10\nldx #$1234", "C2 10 A2 34 12"},
		{"ModeDirective", ".a16\nlda #$1234", "A9 34 12"},
		{"WidthDirective", ".width x, 16\nldy #1", "A0 01 00"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assembleAndMatchHex(t, arch.WDC65816(), nil, tc.src, tc.hex)
		})
	}
}

// The width of LDA # follows SEP and REP on the m bit.
func TestWidthFollowsFlags(t *testing.T) {
	src := `
		sep #$20
		lda #5
		rep #$20
		lda #$600
	`
	assembleAndMatchHex(t, arch.WDC65816(), nil, src, "E2 20 A9 05 C2 20 A9 00 06")
}

func TestContextWidths(t *testing.T) {
	ctx := project.New()
	ctx.Widths["m"] = 16
	assembleAndMatchHex(t, arch.WDC65816(), ctx, "lda #1", "A9 01 00")
}

func TestDirectives(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"Byte", ".byte 1, 2, $FF", "01 02 FF"},
		{"ByteString", `.byte "AB", 0`, "41 42 00"},
		{"ByteQuoted", ".db 'ABC'", "41 42 43"},
		{"Word", ".word $1234, 1", "34 12 01 00"},
		{"Long", ".long $123456", "56 34 12"},
		{"Dword", ".dword 1", "01 00 00 00"},
		{"Fill", ".fill 3, $EA", "EA EA EA"},
		{"Res", ".res 2", "00 00"},
		{"Align", ".byte 1\n.align 4\n.byte 2", "01 00 00 00 02"},
		{"Selectors", ".byte <$1234, >$1234, ^$123456", "34 12 12"},
		{"Equate", "VAL = 3\n.byte VAL", "03"},
		{"EquDirective", "VAL .equ 4\n.byte VAL", "04"},
		{"EquPrefix", ".equ VAL, 5\n.byte VAL", "05"},
		{"Here", ".org $1000\n.word *", "00 10"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assembleAndMatchHex(t, arch.MOS6502(), nil, tc.src, tc.hex)
		})
	}
}

func TestForwardReference(t *testing.T) {
	src := `
		jmp target
		nop
target:	rts
	`
	assembleAndMatchHex(t, arch.MOS6502(), nil, src, "4C 04 00 EA 60")
}

func TestForwardEquate(t *testing.T) {
	src := `
		lda #first
		.byte second
first = second + 1
second = end - 1
end:	rts
	`
	img, rep, err := assembler.Assemble(src, arch.MOS6502(), nil)
	require.NoError(t, err)
	require.Equal(t, mustHex(t, "A9 03 02 60"), img.Bytes(0))
	s, ok := rep.Symbol("first")
	require.True(t, ok)
	require.Equal(t, project.Const, s.Kind)
	require.EqualValues(t, 3, s.Value)
}

func TestUnknownValueUsesDefaultSize(t *testing.T) {
	// A label defined later is assumed to need the default address size.
	src := `
		lda data
		rts
data:	.byte 1
	`
	assembleAndMatchHex(t, arch.WDC65816(), nil, src, "AD 04 00 60 01")
}

func TestBranches(t *testing.T) {
	src := `
		.org $1000
loop:	dex
		bne loop
		beq done
		nop
done:	rts
	`
	assembleAndMatchHex(t, arch.MOS6502(), nil, src, "CA D0 FD F0 01 EA 60")
	assembleAndMatchHex(t, arch.WDC65C02(), nil, "bra *", "80 FE")
	assembleAndMatchHex(t, arch.WDC65816(), nil, "brl *", "82 FD FF")
}

func TestLocalLabels(t *testing.T) {
	src := `
first:
@loop:	dex
		bne @loop
second:
@loop:	dey
		bne @loop
	`
	img, rep, err := assembler.Assemble(src, arch.MOS6502(), nil)
	require.NoError(t, err)
	require.Equal(t, mustHex(t, "CA D0 FD 88 D0 FD"), img.Bytes(0))
	s, ok := rep.Symbol("second@loop")
	require.True(t, ok)
	require.EqualValues(t, 3, s.Value)
}

func TestContextSymbolsAndOrigin(t *testing.T) {
	ctx := project.New()
	ctx.SetOrigin(0x8000)
	require.NoError(t, ctx.DefSymbol(project.Symbol{Name: "PORT", Value: 0xD000}))

	img, rep, err := assembler.Assemble("start: sta PORT", arch.MOS6502(), ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0x8000, img.Start())
	require.Equal(t, mustHex(t, "8D 00 D0"), img.Bytes(0))
	s, ok := rep.Symbol("start")
	require.True(t, ok)
	require.Equal(t, project.Label, s.Kind)
}

func TestVectorsAndPatches(t *testing.T) {
	ctx := project.New()
	ctx.Vectors = []project.ExceptionVector{
		{Name: "RESET", Address: 0xFFFC, Handler: "start"},
		{Name: "IRQ", Address: 0xFFFE, Handler: "start+1"},
		{Name: "NMI", Address: 0xFFFA},
	}
	ctx.Patches = []project.Patch{
		{Kind: project.PatchData, Address: 0x8001, Data: []byte{0x60}},
		{Kind: project.PatchRep, Address: 0x8002, Byte: 0xFF, Len: 2},
	}

	src := ".org $8000\nstart: nop\n nop\n lda #NMI & $FF"
	img, rep, err := assembler.Assemble(src, arch.MOS6502(), ctx)
	require.NoError(t, err)

	segs := img.Segments()
	require.Len(t, segs, 2)
	require.EqualValues(t, 0x8000, segs[0].Start)
	require.Equal(t, mustHex(t, "EA 60 FF FF"), segs[0].Data)
	require.EqualValues(t, 0xFFFC, segs[1].Start)
	require.Equal(t, mustHex(t, "00 80 01 80"), segs[1].Data)

	b, ok := img.At(0xFFFD)
	require.True(t, ok)
	require.EqualValues(t, 0x80, b)
	_, ok = img.At(0x9000)
	require.False(t, ok)

	require.Len(t, rep.Vectors, 3)
	require.True(t, rep.Vectors[0].Resolved)
	require.EqualValues(t, 0x8000, rep.Vectors[0].Value)
	require.False(t, rep.Vectors[2].Resolved)
	require.Len(t, rep.Segments, 2)
}

func TestFlattenFillsGaps(t *testing.T) {
	img, _, err := assembler.Assemble(".org 0\n.byte 1\n.org 3\n.byte 2", arch.MOS6502(), nil)
	require.NoError(t, err)
	require.Equal(t, mustHex(t, "01 AA AA 02"), img.Bytes(0xAA))
}

func TestOverflow(t *testing.T) {
	tests := []struct {
		name string
		def  *arch.Definition
		src  string
		val  int64
	}{
		{"Immediate8", arch.WDC65816(), "sep #$20\nlda #256", 256},
		{"ForcedDirect", arch.MOS6502(), "lda z:$1234", 0x1234},
		{"ByteData", arch.MOS6502(), ".byte 300", 300},
		{"Branch", arch.MOS6502(), "bne far\n.fill 200\nfar: rts", 200},
		{"BankBits", arch.MOS6502(), "lda $12345", 0x12345},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := assembler.Assemble(tc.src, tc.def, nil)
			var oe *assembler.OperandOverflowError
			require.ErrorAs(t, err, &oe)
			require.Equal(t, tc.val, oe.Value)
			require.False(t, oe.Internal())
		})
	}
}

func TestArithmeticOverflow(t *testing.T) {
	for _, src := range []string{
		"big = $FFFFFFFF*$FFFFFFFF*$FFFFFFFF",
		".dword $FFFFFFFF*$FFFFFFFF*$FFFFFFFF",
		"lda $FFFFFFFF*$FFFFFFFF*$FFFFFFFF",
		".byte 1 << 63",
	} {
		t.Run(src, func(t *testing.T) {
			_, _, err := assembler.Assemble(src, arch.MOS6502(), nil)
			var ee *assembler.EvalError
			require.ErrorAs(t, err, &ee)
			require.Equal(t, 1, ee.Pos().Line)
		})
	}
}

func TestDuplicateLabel(t *testing.T) {
	_, _, err := assembler.Assemble("FOO: nop\nFOO: nop", arch.MOS6502(), nil)
	var de *assembler.DuplicateSymbolError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "FOO", de.Name)
	require.Equal(t, assembler.Span{Line: 1, Col: 1}, de.First)
	require.Equal(t, assembler.Span{Line: 2, Col: 1}, de.Second)

	ctx := project.New()
	require.NoError(t, ctx.DefSymbol(project.Symbol{Name: "FOO", Value: 1}))
	_, _, err = assembler.Assemble("FOO = 2", arch.MOS6502(), ctx)
	require.ErrorAs(t, err, &de)
	require.True(t, de.First.IsZero())
}

func TestUndefinedSymbol(t *testing.T) {
	tests := []struct {
		name, src, sym string
	}{
		{"Operand", "lda nowhere", "nowhere"},
		{"Equate", "x1 = y1 + 1", "y1"},
		{"Cycle", "p1 = p2\np2 = p1", "p2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := assembler.Assemble(tc.src, arch.MOS6502(), nil)
			var ue *assembler.UndefinedSymbolError
			require.ErrorAs(t, err, &ue)
			require.Equal(t, tc.sym, ue.Name)
		})
	}
}

func TestOverlap(t *testing.T) {
	src := `
		.org $1000
		.byte 1, 2, 3
		.org $1001
		.byte 4
	`
	_, _, err := assembler.Assemble(src, arch.MOS6502(), nil)
	var oe *assembler.OverlapError
	require.ErrorAs(t, err, &oe)
	require.EqualValues(t, 0x1001, oe.Address)
	require.Len(t, oe.Spans, 2)
	require.Equal(t, 3, oe.Spans[0].Line)
	require.Equal(t, 5, oe.Spans[1].Line)
}

func TestModeAmbiguity(t *testing.T) {
	tests := []struct {
		name, src string
	}{
		{"AfterPLP", "plp\nlda #1"},
		{"ForwardFlags", "sep #FLAGS\nFLAGS = $30"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := assembler.Assemble(tc.src, arch.WDC65816(), nil)
			var me *assembler.ModeAmbiguityError
			require.ErrorAs(t, err, &me)
		})
	}
	// A width directive after PLP settles it again.
	assembleAndMatchHex(t, arch.WDC65816(), nil, "plp\n.a8\nlda #1", "28 A9 01")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		def    *arch.Definition
		src    string
		reason assembler.ParseReason
	}{
		{"UnknownMnemonic", arch.MOS6502(), "foo $10", assembler.UnknownMnemonic},
		{"Unsupported", arch.MOS6502(), "sta #5", assembler.UnsupportedAddressingMode},
		{"UnsupportedPrefix", arch.MOS6502(), "jmp z:$10", assembler.UnsupportedAddressingMode},
		{"Malformed", arch.MOS6502(), "lda $10,q", assembler.MalformedOperand},
		{"MissingValue", arch.MOS6502(), "lda #", assembler.MalformedOperand},
		{"DanglingOperator", arch.MOS6502(), ".byte 1 +", assembler.MalformedOperand},
		{"TwoLabels", arch.MOS6502(), "a1: b1: nop", assembler.DuplicateLabelOnLine},
		{"UnknownDirective", arch.MOS6502(), ".foo 1", assembler.UnknownDirective},
		{"LongOn6502", arch.MOS6502(), "lda [$10]", assembler.MalformedOperand},
		{"IndirectOn6502", arch.MOS6502(), "lda ($12)", assembler.UnsupportedAddressingMode},
		{"IndirectStore", arch.MOS6502(), "sta ($12)", assembler.UnsupportedAddressingMode},
		{"IndirectIndexOnly", arch.MOS6502(), "ldx ($12)", assembler.UnsupportedAddressingMode},
		{"IndirectCall", arch.MOS6502(), "jsr ($1234)", assembler.UnsupportedAddressingMode},
		{"IndirectCall65816", arch.WDC65816(), "jsr ($1234)", assembler.UnsupportedAddressingMode},
		{"IndexedIndirectJump6502", arch.MOS6502(), "jmp ($1234,x)", assembler.UnsupportedAddressingMode},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := assembler.Assemble(tc.src, tc.def, nil)
			var pe *assembler.ParseError
			require.ErrorAs(t, err, &pe)
			require.Equal(t, tc.reason, pe.Reason, err.Error())
		})
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name, src string
		reason    assembler.LexReason
	}{
		{"Unterminated", `.byte "abc`, assembler.UnterminatedString},
		{"BadHex", "lda #$", assembler.InvalidNumericLiteral},
		{"BadDecimal", "lda #12ab", assembler.InvalidNumericLiteral},
		{"BadChar", "lda ?", assembler.InvalidCharacter},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := assembler.Assemble(tc.src, arch.MOS6502(), nil)
			var le *assembler.LexError
			require.ErrorAs(t, err, &le)
			require.Equal(t, tc.reason, le.Reason)
			require.Equal(t, 1, le.Pos().Line)
		})
	}
}

func TestCollectErrors(t *testing.T) {
	src := "lda ?\nnop\nfoo\n.byte \"x\nsta #1"
	_, _, err := assembler.Assemble(src, arch.MOS6502(), nil, assembler.WithErrorLimit(0))
	var list assembler.ErrorList
	require.ErrorAs(t, err, &list)
	require.Len(t, list, 4)
	lines := make([]int, len(list))
	for i, e := range list {
		lines[i] = e.Pos().Line
	}
	require.Equal(t, []int{1, 3, 4, 5}, lines)

	var pe *assembler.ParseError
	require.True(t, errors.As(err, &pe))

	// The default stops at the first.
	_, _, err = assembler.Assemble(src, arch.MOS6502(), nil)
	require.False(t, errors.As(err, &list))
}

func TestDeterminism(t *testing.T) {
	src := `
		.org $2000
start:	sep #$30
		ldx #0
@loop:	lda table,x
		sta $0200,x
		inx
		cpx #4
		bne @loop
		rep #$20
		lda #$1234
		rts
table:	.byte 1, 2, 3, 4
	`
	asm := assembler.New(arch.WDC65816(), nil)
	img1, rep1, err := asm.Assemble(src)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, _, err := asm.Assemble(src)
			if err == nil {
				results[i] = img.Bytes(0)
			}
		}()
	}
	wg.Wait()
	for _, r := range results {
		require.Equal(t, img1.Bytes(0), r)
	}

	img2, rep2, err := asm.Assemble(src)
	require.NoError(t, err)
	require.Equal(t, img1.Bytes(0), img2.Bytes(0))
	require.Equal(t, rep1.Symbols, rep2.Symbols)

	var buf bytes.Buffer
	require.NoError(t, rep1.WriteSymbols(&buf))
	require.Contains(t, buf.String(), "start@loop")
	buf.Reset()
	require.NoError(t, rep1.WriteListing(&buf))
	require.Contains(t, buf.String(), "002000  E2 30")
}

// Every instruction and mode of the built-in tables encodes to the opcode
// recorded for it, at the width the mode implies.
func TestTablesEncode(t *testing.T) {
	for _, name := range arch.Names() {
		def, err := arch.Builtin(name)
		require.NoError(t, err)
		enc := assembler.NewEncoder(def)
		state, err := assembler.InitialState(def, nil)
		require.NoError(t, err)
		for _, in := range def.Instructions {
			for _, e := range in.Encodings {
				m, ok := def.Mode(e.Mode)
				require.True(t, ok)
				values := make([]int64, m.Slots())
				op, n, err := enc.Size(in.Mnemonic, e.Mode, state)
				require.NoError(t, err, "%s %s %s", name, in.Mnemonic, e.Mode)
				require.Equal(t, e.Opcode, op)
				pc := uint32(0x1000)
				if m.Relative {
					// A displacement of zero.
					values = []int64{int64(pc) + 1 + int64(n)}
				}
				b, err := enc.Encode(in.Mnemonic, e.Mode, state, values, pc)
				require.NoError(t, err, "%s %s %s", name, in.Mnemonic, e.Mode)
				require.Len(t, b, 1+n)
			}
		}
	}
}
