package assembler

import (
	"fmt"
	"slices"

	"github.com/Urethramancer/tabasm/arch"
)

// Encoder turns a mnemonic, an addressing mode and operand values into bytes.
// It holds no state beyond the definition and may be shared.
type Encoder struct {
	def *arch.Definition
}

// NewEncoder returns an encoder for def.
func NewEncoder(def *arch.Definition) *Encoder {
	return &Encoder{def: def}
}

func (e *Encoder) encoding(mnemonic, mode string) (arch.Encoding, *arch.Mode, error) {
	in, ok := e.def.Lookup(mnemonic)
	if !ok {
		return arch.Encoding{}, nil, &EncodingError{Reason: UnsupportedCombination, Detail: fmt.Sprintf("no instruction %s", mnemonic)}
	}
	enc, ok := in.Encoding(mode)
	if !ok {
		return arch.Encoding{}, nil, &EncodingError{Reason: UnsupportedCombination, Detail: fmt.Sprintf("%s has no %s mode", mnemonic, mode)}
	}
	m, ok := e.def.Mode(mode)
	if !ok {
		return arch.Encoding{}, nil, &EncodingError{Reason: UnsupportedCombination, Detail: fmt.Sprintf("no mode %s", mode)}
	}
	return enc, m, nil
}

// Size returns the opcode and operand byte count of mnemonic in mode under
// state st. The whole instruction is one byte longer.
func (e *Encoder) Size(mnemonic, mode string, st ModeState) (byte, int, error) {
	enc, _, err := e.encoding(mnemonic, mode)
	if err != nil {
		return 0, 0, err
	}
	var w arch.Width
	if enc.Dimension != "" {
		i, _ := e.def.Dimension(enc.Dimension)
		w = st[i]
		if w == arch.WidthUnknown {
			return 0, 0, &ModeAmbiguityError{Dimension: enc.Dimension, Detail: fmt.Sprintf("%s %s depends on it", mnemonic, mode)}
		}
	}
	n, err := e.def.OperandBytes(enc, w)
	if err != nil {
		return 0, 0, &EncodingError{Reason: UnsupportedCombination, Detail: err.Error()}
	}
	return enc.Opcode, n, nil
}

// Encode returns the instruction bytes for the given slot values, in source
// order. pc is the address of the opcode; relative modes store the distance
// from the following instruction.
func (e *Encoder) Encode(mnemonic, mode string, st ModeState, values []int64, pc uint32) ([]byte, error) {
	op, n, err := e.Size(mnemonic, mode, st)
	if err != nil {
		return nil, err
	}
	_, m, _ := e.encoding(mnemonic, mode)
	slots := m.Slots()
	if len(values) != slots {
		return nil, &EncodingError{Reason: UnsupportedCombination, Detail: fmt.Sprintf("%s %s takes %d operands, got %d", mnemonic, mode, slots, len(values))}
	}

	out := make([]byte, 0, 1+n)
	out = append(out, op)
	if slots == 0 {
		return out, nil
	}
	if m.Reverse {
		values = slices.Clone(values)
		slices.Reverse(values)
	}
	per := n / slots
	for _, v := range values {
		if m.Relative {
			v -= int64(pc) + 1 + int64(n)
		}
		if !fits(v, per, m.Relative) {
			lo, hi := limits(per, m.Relative)
			return nil, &OperandOverflowError{Mode: mode, Value: v, Min: lo, Max: hi}
		}
		out = putLE(out, v, per)
	}
	return out, nil
}
