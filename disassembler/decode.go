package disassembler

import (
	"errors"
	"fmt"

	"github.com/Urethramancer/tabasm/arch"
	"github.com/Urethramancer/tabasm/assembler"
)

var (
	errUnknownOpcode = errors.New("unknown opcode")
	errTruncated     = errors.New("operand runs past the end of the code")
)

// Instruction represents a single decoded instruction at a specific address.
type Instruction struct {
	Address uint32
	Instr   *arch.Instruction
	Enc     arch.Encoding
	Mode    *arch.Mode
	Operand []byte
	// State is the width state the instruction was decoded under.
	State assembler.ModeState
}

// Size is the length of the instruction in bytes.
func (in *Instruction) Size() uint32 {
	return 1 + uint32(len(in.Operand))
}

// Value returns the operand bytes as an unsigned little-endian number.
func (in *Instruction) Value() int64 {
	var v int64
	for i := len(in.Operand) - 1; i >= 0; i-- {
		v = v<<8 | int64(in.Operand[i])
	}
	return v
}

// Target returns the address a branch, jump or call transfers to when it can
// be read from the operand alone.
func (in *Instruction) Target(def *arch.Definition) (int64, bool) {
	n := len(in.Operand)
	if in.Mode.Relative {
		d := in.Value()
		if sign := int64(1) << (8*n - 1); d&sign != 0 {
			d -= sign << 1
		}
		return int64(in.Address) + int64(in.Size()) + d, true
	}
	if in.Instr.Flow == arch.FlowNone || in.Instr.Flow == arch.FlowReturn || n == 0 {
		return 0, false
	}
	if arch.NormalizeSyntax(in.Mode.Syntax) != "{}" {
		return 0, false
	}
	v := in.Value()
	if n < def.AddressBytes {
		// Short jumps stay in the current bank.
		bank := int64(in.Address) &^ (int64(1)<<(8*n) - 1)
		v |= bank
	}
	return v, true
}

// terminal reports whether execution never falls through to the next
// instruction.
func (in *Instruction) terminal() bool {
	return in.Instr.Flow == arch.FlowJump || in.Instr.Flow == arch.FlowReturn
}

// decode reads the instruction at addr. code starts at base.
func decode(def *arch.Definition, code []byte, base, addr uint32, st assembler.ModeState) (*Instruction, error) {
	off := int(addr - base)
	if addr < base || off >= len(code) {
		return nil, errTruncated
	}
	instr, enc, ok := def.Decode(code[off])
	if !ok {
		return nil, fmt.Errorf("$%02X: %w", code[off], errUnknownOpcode)
	}
	mode, ok := def.Mode(enc.Mode)
	if !ok {
		return nil, fmt.Errorf("%s: unknown addressing mode %q", instr.Mnemonic, enc.Mode)
	}
	w := arch.WidthUnknown
	if enc.Dimension != "" {
		i, _ := def.Dimension(enc.Dimension)
		w = st[i]
	}
	n, err := def.OperandBytes(enc, w)
	if err != nil {
		return nil, err
	}
	if off+1+n > len(code) {
		return nil, errTruncated
	}
	return &Instruction{
		Address: addr,
		Instr:   instr,
		Enc:     enc,
		Mode:    mode,
		Operand: code[off+1 : off+1+n],
		State:   st,
	}, nil
}

// after returns the width state following in. Status pulls keep the widths
// decoded so far; the renderer pins them again with mode directives.
func after(def *arch.Definition, in *Instruction, st assembler.ModeState) assembler.ModeState {
	mn := in.Instr.Mnemonic
	set, clr := def.SetsFlags(mn), def.ClearsFlags(mn)
	if (!set && !clr) || len(in.Operand) == 0 {
		return st
	}
	v := uint32(in.Value())
	for _, b := range def.Flags.Bits {
		if v&b.Mask == 0 {
			continue
		}
		i, _ := def.Dimension(b.Dimension)
		if set {
			st[i] = b.Set
		} else {
			st[i] = b.Clear
		}
	}
	return st
}

// track follows the state the way the assembler will when it reads the
// rendered source back.
func track(def *arch.Definition, in *Instruction, st assembler.ModeState) assembler.ModeState {
	if def.Invalidates(in.Instr.Mnemonic) {
		for i := range def.Flags.Dimensions {
			st[i] = arch.WidthUnknown
		}
		return st
	}
	return after(def, in, st)
}
