// Package arch describes an instruction set as data: mnemonics, addressing
// modes, opcode bytes, operand widths and the processor flags that change
// them. A Definition is built once and is read-only afterwards, so a single
// value can be shared by any number of concurrent assembly runs.
package arch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxDimensions is the number of width dimensions a Definition may track.
const MaxDimensions = 4

// Width is an operand width in bits. WidthUnknown means the width cannot be
// determined statically at this point of the program.
type Width uint8

const (
	WidthUnknown Width = 0
	Width8       Width = 8
	Width16      Width = 16
)

// Bytes returns the width in bytes.
func (w Width) Bytes() int {
	return int(w) / 8
}

func (w Width) String() string {
	if w == WidthUnknown {
		return "?"
	}
	return fmt.Sprintf("%d", w)
}

// Dimension is one trackable processor width, e.g. the 65816 accumulator (m)
// or index registers (x).
type Dimension struct {
	Name        string
	Default     Width
	Description string
}

// Mode is an addressing mode. Syntax is the operand surface pattern, where
// "{}" marks an expression slot and every other character is matched
// literally (letters case-insensitively). Modes sharing a Syntax form a size
// group, ordered by Bytes.
type Mode struct {
	Name   string
	Syntax string
	Bytes  int
	// Relative operands are signed displacements from the next instruction.
	Relative bool
	// Reverse emits the slots in reverse source order (65816 block moves).
	Reverse bool
}

// Slots returns the number of expression slots in the mode's syntax.
func (m *Mode) Slots() int {
	return strings.Count(m.Syntax, "{}")
}

// Encoding maps one addressing mode of an instruction to its opcode. When
// Dimension is set the operand size follows that dimension's current width
// instead of Mode.Bytes.
type Encoding struct {
	Mode      string
	Opcode    byte
	Dimension string
}

// Flow classifies an instruction's effect on control flow.
type Flow uint8

const (
	FlowNone Flow = iota
	FlowBranch
	FlowJump
	FlowCall
	FlowReturn
)

var flowNames = []string{"", "branch", "jump", "call", "return"}

func (f Flow) String() string {
	if int(f) < len(flowNames) {
		return flowNames[f]
	}
	return fmt.Sprintf("flow(%d)", f)
}

// ParseFlow is the inverse of Flow.String.
func ParseFlow(s string) (Flow, error) {
	for i, n := range flowNames {
		if strings.EqualFold(n, s) {
			return Flow(i), nil
		}
	}
	return FlowNone, fmt.Errorf("unknown flow kind %q", s)
}

// Instruction is a mnemonic and the addressing modes it supports.
type Instruction struct {
	Mnemonic  string
	Flow      Flow
	Encodings []Encoding
}

// Encoding returns the encoding for mode.
func (in *Instruction) Encoding(mode string) (Encoding, bool) {
	for _, e := range in.Encodings {
		if e.Mode == mode {
			return e, true
		}
	}
	return Encoding{}, false
}

// Supports reports whether the instruction accepts mode.
func (in *Instruction) Supports(mode string) bool {
	_, ok := in.Encoding(mode)
	return ok
}

// SyntaxRules are the lexical conventions of the source language.
type SyntaxRules struct {
	Comment         string
	LabelEnd        string
	LocalPrefix     string
	DirectivePrefix string
	Immediate       string
	CurrentPC       string
	HexPrefixes     []string
	BinPrefixes     []string
	OctPrefixes     []string
	// SizePrefixes force an operand size in bytes, e.g. "a:" -> 2.
	SizePrefixes map[string]int
}

// FlagBit ties a bit of a status-register mask to a width dimension.
type FlagBit struct {
	Mask      uint32
	Dimension string
	Set       Width
	Clear     Width
}

// ModeDirective is a source directive that sets a dimension explicitly.
type ModeDirective struct {
	Name      string
	Dimension string
	Width     Width
}

// FlagRules describe which statements change the width state.
type FlagRules struct {
	Dimensions []Dimension
	Bits       []FlagBit
	// Set and Clear list mnemonics whose immediate operand sets or clears
	// the masked bits.
	Set   []string
	Clear []string
	// Invalidate lists mnemonics after which every dimension is unknown.
	Invalidate []string
	Directives []ModeDirective
}

// Definition is a complete instruction set description.
type Definition struct {
	Name string
	// AddressBytes is the size of a full address; DefaultAddressBytes is the
	// operand size chosen for symbols whose value is not yet known.
	AddressBytes        int
	DefaultAddressBytes int
	VectorBytes         int

	Syntax       SyntaxRules
	Flags        FlagRules
	Modes        []Mode
	Instructions []Instruction

	modes   map[string]*Mode
	groups  map[string][]*Mode
	syntax  []string
	instrs  map[string]*Instruction
	dims    map[string]int
	opcodes [256]decodeEntry
}

type decodeEntry struct {
	instr *Instruction
	enc   Encoding
	ok    bool
}

// New validates d and builds its lookup tables. The returned Definition must
// not be modified.
func New(d Definition) (*Definition, error) {
	def := d
	def.Modes = append([]Mode(nil), d.Modes...)
	def.Instructions = make([]Instruction, len(d.Instructions))
	for i, in := range d.Instructions {
		in.Mnemonic = strings.ToUpper(in.Mnemonic)
		in.Encodings = append([]Encoding(nil), in.Encodings...)
		def.Instructions[i] = in
	}
	sort.SliceStable(def.Instructions, func(i, j int) bool {
		return def.Instructions[i].Mnemonic < def.Instructions[j].Mnemonic
	})
	if def.AddressBytes == 0 {
		def.AddressBytes = 2
	}
	if def.DefaultAddressBytes == 0 {
		def.DefaultAddressBytes = def.AddressBytes
	}
	if def.VectorBytes == 0 {
		def.VectorBytes = 2
	}
	if err := def.index(); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) index() error {
	d.modes = make(map[string]*Mode, len(d.Modes))
	d.groups = make(map[string][]*Mode)
	d.syntax = nil
	for i := range d.Modes {
		m := &d.Modes[i]
		if _, dup := d.modes[m.Name]; dup {
			return fmt.Errorf("duplicate addressing mode %q", m.Name)
		}
		d.modes[m.Name] = m
		key := NormalizeSyntax(m.Syntax)
		if _, seen := d.groups[key]; !seen {
			d.syntax = append(d.syntax, key)
		}
		d.groups[key] = append(d.groups[key], m)
	}
	for _, g := range d.groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Bytes < g[j].Bytes })
	}
	// Most literal characters first, so "({}),Y" is tried before "{},Y".
	sort.SliceStable(d.syntax, func(i, j int) bool {
		return literalCount(d.syntax[i]) > literalCount(d.syntax[j])
	})

	d.dims = make(map[string]int, len(d.Flags.Dimensions))
	if len(d.Flags.Dimensions) > MaxDimensions {
		return fmt.Errorf("too many width dimensions: %d (max %d)", len(d.Flags.Dimensions), MaxDimensions)
	}
	for i, dim := range d.Flags.Dimensions {
		if _, dup := d.dims[dim.Name]; dup {
			return fmt.Errorf("duplicate dimension %q", dim.Name)
		}
		d.dims[dim.Name] = i
	}

	d.instrs = make(map[string]*Instruction, len(d.Instructions))
	d.opcodes = [256]decodeEntry{}
	for i := range d.Instructions {
		in := &d.Instructions[i]
		if _, dup := d.instrs[in.Mnemonic]; dup {
			return fmt.Errorf("duplicate instruction %q", in.Mnemonic)
		}
		d.instrs[in.Mnemonic] = in
		for _, e := range in.Encodings {
			if !d.opcodes[e.Opcode].ok {
				d.opcodes[e.Opcode] = decodeEntry{instr: in, enc: e, ok: true}
			}
		}
	}
	return nil
}

// Validate checks the definition for internal consistency.
func (d *Definition) Validate() error {
	var errs []error
	if d.AddressBytes < 1 || d.AddressBytes > 4 {
		errs = append(errs, fmt.Errorf("address size %d out of range 1-4", d.AddressBytes))
	}
	if d.DefaultAddressBytes > d.AddressBytes {
		errs = append(errs, fmt.Errorf("default address size %d exceeds address size %d", d.DefaultAddressBytes, d.AddressBytes))
	}
	for _, m := range d.Modes {
		if m.Bytes < 0 || m.Bytes > 4 {
			errs = append(errs, fmt.Errorf("mode %s: operand size %d out of range", m.Name, m.Bytes))
		}
		if n := m.Slots(); n > 0 && m.Bytes%n != 0 {
			errs = append(errs, fmt.Errorf("mode %s: %d bytes cannot be split over %d slots", m.Name, m.Bytes, n))
		}
	}
	for _, in := range d.Instructions {
		seen := make(map[string]bool)
		for _, e := range in.Encodings {
			if _, ok := d.modes[e.Mode]; !ok {
				errs = append(errs, fmt.Errorf("%s: unknown addressing mode %q", in.Mnemonic, e.Mode))
			}
			if seen[e.Mode] {
				errs = append(errs, fmt.Errorf("%s: mode %q encoded twice", in.Mnemonic, e.Mode))
			}
			seen[e.Mode] = true
			if e.Dimension != "" {
				if _, ok := d.dims[e.Dimension]; !ok {
					errs = append(errs, fmt.Errorf("%s %s: unknown dimension %q", in.Mnemonic, e.Mode, e.Dimension))
				}
			}
		}
	}
	for _, b := range d.Flags.Bits {
		if _, ok := d.dims[b.Dimension]; !ok {
			errs = append(errs, fmt.Errorf("flag bit %#x: unknown dimension %q", b.Mask, b.Dimension))
		}
	}
	for _, md := range d.Flags.Directives {
		if _, ok := d.dims[md.Dimension]; !ok {
			errs = append(errs, fmt.Errorf("directive %s: unknown dimension %q", md.Name, md.Dimension))
		}
	}
	for _, list := range [][]string{d.Flags.Set, d.Flags.Clear, d.Flags.Invalidate} {
		for _, mn := range list {
			if _, ok := d.instrs[strings.ToUpper(mn)]; !ok {
				errs = append(errs, fmt.Errorf("flag rule names unknown mnemonic %q", mn))
			}
		}
	}
	return errors.Join(errs...)
}

// Lookup finds an instruction by mnemonic, ignoring case.
func (d *Definition) Lookup(mnemonic string) (*Instruction, bool) {
	in, ok := d.instrs[strings.ToUpper(mnemonic)]
	return in, ok
}

// Mode returns the addressing mode called name.
func (d *Definition) Mode(name string) (*Mode, bool) {
	m, ok := d.modes[name]
	return m, ok
}

// ModesBySyntax returns the size group for a normalized syntax pattern,
// smallest operand first.
func (d *Definition) ModesBySyntax(syntax string) []*Mode {
	return d.groups[NormalizeSyntax(syntax)]
}

// SyntaxPatterns returns every distinct normalized syntax pattern, the most
// specific (most literal characters) first.
func (d *Definition) SyntaxPatterns() []string {
	return d.syntax
}

// Dimension returns the index of the named dimension.
func (d *Definition) Dimension(name string) (int, bool) {
	i, ok := d.dims[name]
	return i, ok
}

// Decode returns the instruction and encoding assigned to opcode. When
// several mnemonics share an opcode (aliases such as JML/JMP) the one sorting
// first wins.
func (d *Definition) Decode(opcode byte) (*Instruction, Encoding, bool) {
	e := d.opcodes[opcode]
	return e.instr, e.enc, e.ok
}

// ModeDirective returns the mode-set directive called name.
func (d *Definition) ModeDirective(name string) (ModeDirective, bool) {
	for _, md := range d.Flags.Directives {
		if strings.EqualFold(md.Name, name) {
			return md, true
		}
	}
	return ModeDirective{}, false
}

// OperandBytes returns the operand size of enc when the encoding's dimension
// (if any) is w.
func (d *Definition) OperandBytes(enc Encoding, w Width) (int, error) {
	m, ok := d.modes[enc.Mode]
	if !ok {
		return 0, fmt.Errorf("unknown addressing mode %q", enc.Mode)
	}
	if enc.Dimension == "" {
		return m.Bytes, nil
	}
	if w == WidthUnknown {
		return 0, fmt.Errorf("width of %s is unknown", enc.Dimension)
	}
	return w.Bytes(), nil
}

// NormalizeSyntax upper-cases a syntax pattern and strips blanks.
func NormalizeSyntax(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

func literalCount(syntax string) int {
	return len(strings.ReplaceAll(syntax, "{}", ""))
}

// hasName reports whether list contains name, ignoring case.
func hasName(list []string, name string) bool {
	for _, s := range list {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// SetsFlags reports whether mnemonic sets status bits from its operand.
func (d *Definition) SetsFlags(mnemonic string) bool { return hasName(d.Flags.Set, mnemonic) }

// ClearsFlags reports whether mnemonic clears status bits from its operand.
func (d *Definition) ClearsFlags(mnemonic string) bool { return hasName(d.Flags.Clear, mnemonic) }

// Invalidates reports whether mnemonic makes every width unknown.
func (d *Definition) Invalidates(mnemonic string) bool {
	return hasName(d.Flags.Invalidate, mnemonic)
}
