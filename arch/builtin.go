package arch

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Addressing mode names used by the built-in 65xx definitions.
const (
	Implied                 = "implied"
	Accumulator             = "accumulator"
	Immediate               = "immediate"
	Direct                  = "direct"
	Absolute                = "absolute"
	Long                    = "long"
	DirectX                 = "direct_x"
	AbsoluteX               = "absolute_x"
	LongX                   = "long_x"
	DirectY                 = "direct_y"
	AbsoluteY               = "absolute_y"
	Indirect                = "indirect"
	AbsoluteIndirect        = "absolute_indirect"
	IndexedIndirect         = "indexed_indirect"
	AbsoluteIndexedIndirect = "absolute_indexed_indirect"
	IndirectIndexed         = "indirect_indexed"
	IndirectLong            = "indirect_long"
	AbsoluteIndirectLong    = "absolute_indirect_long"
	IndirectLongY           = "indirect_long_y"
	Stack                   = "stack"
	StackIndirectY          = "stack_indirect_y"
	Relative                = "relative"
	RelativeLong            = "relative_long"
	BlockMove               = "block_move"
)

func modes65xx() []Mode {
	return []Mode{
		{Name: Implied, Syntax: "", Bytes: 0},
		{Name: Accumulator, Syntax: "A", Bytes: 0},
		{Name: Immediate, Syntax: "#{}", Bytes: 1},
		{Name: Direct, Syntax: "{}", Bytes: 1},
		{Name: Absolute, Syntax: "{}", Bytes: 2},
		{Name: Long, Syntax: "{}", Bytes: 3},
		{Name: Relative, Syntax: "{}", Bytes: 1, Relative: true},
		{Name: RelativeLong, Syntax: "{}", Bytes: 2, Relative: true},
		{Name: DirectX, Syntax: "{},X", Bytes: 1},
		{Name: AbsoluteX, Syntax: "{},X", Bytes: 2},
		{Name: LongX, Syntax: "{},X", Bytes: 3},
		{Name: DirectY, Syntax: "{},Y", Bytes: 1},
		{Name: AbsoluteY, Syntax: "{},Y", Bytes: 2},
		{Name: Indirect, Syntax: "({})", Bytes: 1},
		{Name: AbsoluteIndirect, Syntax: "({})", Bytes: 2},
		{Name: IndexedIndirect, Syntax: "({},X)", Bytes: 1},
		{Name: AbsoluteIndexedIndirect, Syntax: "({},X)", Bytes: 2},
		{Name: IndirectIndexed, Syntax: "({}),Y", Bytes: 1},
		{Name: IndirectLong, Syntax: "[{}]", Bytes: 1},
		{Name: AbsoluteIndirectLong, Syntax: "[{}]", Bytes: 2},
		{Name: IndirectLongY, Syntax: "[{}],Y", Bytes: 1},
		{Name: Stack, Syntax: "{},S", Bytes: 1},
		{Name: StackIndirectY, Syntax: "({},S),Y", Bytes: 1},
		{Name: BlockMove, Syntax: "{},{}", Bytes: 2, Reverse: true},
	}
}

func syntax65xx() SyntaxRules {
	return SyntaxRules{
		Comment:         ";",
		LabelEnd:        ":",
		LocalPrefix:     "@",
		DirectivePrefix: ".",
		Immediate:       "#",
		CurrentPC:       "*",
		HexPrefixes:     []string{"$", "0x"},
		BinPrefixes:     []string{"%", "0b"},
		OctPrefixes:     []string{"0o"},
		SizePrefixes:    map[string]int{"z:": 1, "a:": 2, "f:": 3},
	}
}

// table is the compact form of an opcode matrix: mnemonic -> mode -> opcode.
type table map[string]map[string]byte

var (
	// group one ALU instructions share the same mode layout.
	alu6502 = map[string]byte{
		Immediate: 0x09, Direct: 0x05, DirectX: 0x15, Absolute: 0x0D,
		AbsoluteX: 0x1D, AbsoluteY: 0x19, IndexedIndirect: 0x01, IndirectIndexed: 0x11,
	}
	aluBase = map[string]byte{
		"ORA": 0x00, "AND": 0x20, "EOR": 0x40, "ADC": 0x60,
		"STA": 0x80, "LDA": 0xA0, "CMP": 0xC0, "SBC": 0xE0,
	}
	shiftBase = map[string]byte{"ASL": 0x00, "ROL": 0x20, "LSR": 0x40, "ROR": 0x60}
)

func table6502() table {
	t := table{}
	for mn, base := range aluBase {
		m := map[string]byte{}
		for mode, op := range alu6502 {
			if mn == "STA" && mode == Immediate {
				continue
			}
			m[mode] = base + op
		}
		t[mn] = m
	}
	for mn, base := range shiftBase {
		t[mn] = map[string]byte{
			Accumulator: base + 0x0A, Direct: base + 0x06, DirectX: base + 0x16,
			Absolute: base + 0x0E, AbsoluteX: base + 0x1E,
		}
	}
	branches := map[string]byte{
		"BPL": 0x10, "BMI": 0x30, "BVC": 0x50, "BVS": 0x70,
		"BCC": 0x90, "BCS": 0xB0, "BNE": 0xD0, "BEQ": 0xF0,
	}
	for mn, op := range branches {
		t[mn] = map[string]byte{Relative: op}
	}
	implied := map[string]byte{
		"BRK": 0x00, "PHP": 0x08, "CLC": 0x18, "PLP": 0x28, "SEC": 0x38, "RTI": 0x40,
		"PHA": 0x48, "CLI": 0x58, "RTS": 0x60, "PLA": 0x68, "SEI": 0x78, "DEY": 0x88,
		"TXA": 0x8A, "TYA": 0x98, "TXS": 0x9A, "TAY": 0xA8, "TAX": 0xAA, "CLV": 0xB8,
		"TSX": 0xBA, "INY": 0xC8, "DEX": 0xCA, "CLD": 0xD8, "INX": 0xE8, "NOP": 0xEA,
		"SED": 0xF8,
	}
	for mn, op := range implied {
		t[mn] = map[string]byte{Implied: op}
	}
	t["BIT"] = map[string]byte{Direct: 0x24, Absolute: 0x2C}
	t["JMP"] = map[string]byte{Absolute: 0x4C, AbsoluteIndirect: 0x6C}
	t["JSR"] = map[string]byte{Absolute: 0x20}
	t["CPX"] = map[string]byte{Immediate: 0xE0, Direct: 0xE4, Absolute: 0xEC}
	t["CPY"] = map[string]byte{Immediate: 0xC0, Direct: 0xC4, Absolute: 0xCC}
	t["DEC"] = map[string]byte{Direct: 0xC6, DirectX: 0xD6, Absolute: 0xCE, AbsoluteX: 0xDE}
	t["INC"] = map[string]byte{Direct: 0xE6, DirectX: 0xF6, Absolute: 0xEE, AbsoluteX: 0xFE}
	t["LDX"] = map[string]byte{Immediate: 0xA2, Direct: 0xA6, DirectY: 0xB6, Absolute: 0xAE, AbsoluteY: 0xBE}
	t["LDY"] = map[string]byte{Immediate: 0xA0, Direct: 0xA4, DirectX: 0xB4, Absolute: 0xAC, AbsoluteX: 0xBC}
	t["STX"] = map[string]byte{Direct: 0x86, DirectY: 0x96, Absolute: 0x8E}
	t["STY"] = map[string]byte{Direct: 0x84, DirectX: 0x94, Absolute: 0x8C}
	return t
}

func table65C02() table {
	t := table6502()
	for mn, base := range aluBase {
		t[mn][Indirect] = base + 0x12
	}
	t["BIT"][Immediate] = 0x89
	t["BIT"][DirectX] = 0x34
	t["BIT"][AbsoluteX] = 0x3C
	t["DEC"][Accumulator] = 0x3A
	t["INC"][Accumulator] = 0x1A
	t["JMP"][AbsoluteIndexedIndirect] = 0x7C
	t["BRA"] = map[string]byte{Relative: 0x80}
	t["STZ"] = map[string]byte{Direct: 0x64, DirectX: 0x74, Absolute: 0x9C, AbsoluteX: 0x9E}
	t["TRB"] = map[string]byte{Direct: 0x14, Absolute: 0x1C}
	t["TSB"] = map[string]byte{Direct: 0x04, Absolute: 0x0C}
	for mn, op := range map[string]byte{"PHY": 0x5A, "PLY": 0x7A, "PHX": 0xDA, "PLX": 0xFA, "WAI": 0xCB, "STP": 0xDB} {
		t[mn] = map[string]byte{Implied: op}
	}
	return t
}

func table65816() table {
	t := table65C02()
	for mn, base := range aluBase {
		t[mn][Stack] = base + 0x03
		t[mn][IndirectLong] = base + 0x07
		t[mn][Long] = base + 0x0F
		t[mn][StackIndirectY] = base + 0x13
		t[mn][IndirectLongY] = base + 0x17
		t[mn][LongX] = base + 0x1F
	}
	t["JMP"][Long] = 0x5C
	t["JMP"][AbsoluteIndirectLong] = 0xDC
	t["JML"] = map[string]byte{Long: 0x5C, AbsoluteIndirectLong: 0xDC}
	t["JSR"][Long] = 0x22
	t["JSR"][AbsoluteIndexedIndirect] = 0xFC
	t["JSL"] = map[string]byte{Long: 0x22}
	t["BRL"] = map[string]byte{RelativeLong: 0x82}
	t["PER"] = map[string]byte{RelativeLong: 0x62}
	t["PEA"] = map[string]byte{Absolute: 0xF4}
	t["PEI"] = map[string]byte{Indirect: 0xD4}
	t["MVP"] = map[string]byte{BlockMove: 0x44}
	t["MVN"] = map[string]byte{BlockMove: 0x54}
	t["COP"] = map[string]byte{Immediate: 0x02}
	t["WDM"] = map[string]byte{Immediate: 0x42}
	t["REP"] = map[string]byte{Immediate: 0xC2}
	t["SEP"] = map[string]byte{Immediate: 0xE2}
	for mn, op := range map[string]byte{
		"PHD": 0x0B, "TCS": 0x1B, "PLD": 0x2B, "TSC": 0x3B, "PHK": 0x4B, "TCD": 0x5B,
		"RTL": 0x6B, "TDC": 0x7B, "PHB": 0x8B, "TXY": 0x9B, "PLB": 0xAB, "TYX": 0xBB,
		"XBA": 0xEB, "XCE": 0xFB,
	} {
		t[mn] = map[string]byte{Implied: op}
	}
	return t
}

var flows = map[string]Flow{
	"BPL": FlowBranch, "BMI": FlowBranch, "BVC": FlowBranch, "BVS": FlowBranch,
	"BCC": FlowBranch, "BCS": FlowBranch, "BNE": FlowBranch, "BEQ": FlowBranch,
	"BRA": FlowJump, "BRL": FlowJump, "JMP": FlowJump, "JML": FlowJump,
	"JSR": FlowCall, "JSL": FlowCall,
	"RTS": FlowReturn, "RTI": FlowReturn, "RTL": FlowReturn, "STP": FlowReturn,
}

// Immediate operands of these follow the accumulator (m) or index (x) width.
var (
	accumulatorImmediate = []string{"ADC", "AND", "BIT", "CMP", "EOR", "LDA", "ORA", "SBC"}
	indexImmediate       = []string{"CPX", "CPY", "LDX", "LDY"}
)

func (t table) instructions(dims map[string]string) []Instruction {
	names := make([]string, 0, len(t))
	for mn := range t {
		names = append(names, mn)
	}
	sort.Strings(names)
	out := make([]Instruction, 0, len(names))
	for _, mn := range names {
		in := Instruction{Mnemonic: mn, Flow: flows[mn]}
		modes := make([]string, 0, len(t[mn]))
		for m := range t[mn] {
			modes = append(modes, m)
		}
		sort.Slice(modes, func(i, j int) bool { return t[mn][modes[i]] < t[mn][modes[j]] })
		for _, m := range modes {
			e := Encoding{Mode: m, Opcode: t[mn][m]}
			if m == Immediate {
				e.Dimension = dims[mn]
			}
			in.Encodings = append(in.Encodings, e)
		}
		out = append(out, in)
	}
	return out
}

func mustNew(d Definition) *Definition {
	def, err := New(d)
	if err != nil {
		panic(fmt.Sprintf("built-in architecture %s: %v", d.Name, err))
	}
	return def
}

// MOS6502 returns the NMOS 6502 instruction set (documented opcodes only).
var MOS6502 = sync.OnceValue(func() *Definition {
	return mustNew(Definition{
		Name:         "6502",
		AddressBytes: 2,
		VectorBytes:  2,
		Syntax:       syntax6502(),
		Modes:        modes6502(),
		Instructions: table6502().instructions(nil),
	})
})

// WDC65C02 returns the CMOS 65C02 instruction set.
var WDC65C02 = sync.OnceValue(func() *Definition {
	return mustNew(Definition{
		Name:         "65c02",
		AddressBytes: 2,
		VectorBytes:  2,
		Syntax:       syntax6502(),
		Modes:        modes6502(),
		Instructions: table65C02().instructions(nil),
	})
})

// WDC65816 returns the 65816 instruction set in native mode, with the m and
// x flags tracked as width dimensions. Both start at 8 bits.
var WDC65816 = sync.OnceValue(func() *Definition {
	dims := map[string]string{}
	for _, mn := range accumulatorImmediate {
		dims[mn] = "m"
	}
	for _, mn := range indexImmediate {
		dims[mn] = "x"
	}
	return mustNew(Definition{
		Name:                "65816",
		AddressBytes:        3,
		DefaultAddressBytes: 2,
		VectorBytes:         2,
		Syntax:              syntax65xx(),
		Modes:               modes65xx(),
		Instructions:        table65816().instructions(dims),
		Flags: FlagRules{
			Dimensions: []Dimension{
				{Name: "m", Default: Width8, Description: "accumulator and memory"},
				{Name: "x", Default: Width8, Description: "index registers"},
			},
			Bits: []FlagBit{
				{Mask: 0x20, Dimension: "m", Set: Width8, Clear: Width16},
				{Mask: 0x10, Dimension: "x", Set: Width8, Clear: Width16},
			},
			Set:        []string{"SEP"},
			Clear:      []string{"REP"},
			Invalidate: []string{"PLP"},
			Directives: []ModeDirective{
				{Name: "a8", Dimension: "m", Width: Width8},
				{Name: "a16", Dimension: "m", Width: Width16},
				{Name: "i8", Dimension: "x", Width: Width8},
				{Name: "i16", Dimension: "x", Width: Width16},
			},
		},
	})
})

// The 8-bit parts have no long or stack-relative modes and no "f:" prefix.
func modes6502() []Mode {
	var out []Mode
	for _, m := range modes65xx() {
		switch m.Name {
		case Long, LongX, RelativeLong, IndirectLong, AbsoluteIndirectLong,
			IndirectLongY, Stack, StackIndirectY, BlockMove:
			continue
		}
		out = append(out, m)
	}
	return out
}

func syntax6502() SyntaxRules {
	s := syntax65xx()
	delete(s.SizePrefixes, "f:")
	return s
}

var builtins = map[string]func() *Definition{
	"6502":  MOS6502,
	"65c02": WDC65C02,
	"65816": WDC65816,
}

// Builtin returns a built-in definition by name ("6502", "65c02", "65816").
func Builtin(name string) (*Definition, error) {
	f, ok := builtins[strings.TrimPrefix(strings.ToLower(name), "arch")]
	if !ok {
		return nil, fmt.Errorf("unknown architecture %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return f(), nil
}

// Names lists the built-in architectures.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
