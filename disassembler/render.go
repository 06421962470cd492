package disassembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Urethramancer/tabasm/arch"
	"github.com/Urethramancer/tabasm/assembler"
)

// render writes the traced program as source, data and all.
func (d *disassembly) render(init assembler.ModeState) string {
	var out strings.Builder
	rules := d.def.Syntax
	fmt.Fprintf(&out, "    %sorg %s\n", rules.DirectivePrefix, hexAddr(int64(d.origin)))

	cur := init
	strs := 1
	n := len(d.code)
	for i := 0; i < n; {
		addr := d.origin + uint32(i)
		if d.skip[i] {
			j := i
			for j < n && d.skip[j] {
				j++
			}
			if rules.Comment != "" {
				fmt.Fprintf(&out, "    %s vector slot %s-%s\n", rules.Comment, hexAddr(int64(addr)), hexAddr(int64(d.origin)+int64(j)-1))
			}
			if j < n {
				fmt.Fprintf(&out, "    %sorg %s\n", rules.DirectivePrefix, hexAddr(int64(d.origin)+int64(j)))
			}
			i = j
			continue
		}

		in, ok := d.insts[addr]
		if !ok {
			j := i + 1
			for j < n && !d.skip[j] {
				if _, ok := d.insts[d.origin+uint32(j)]; ok {
					break
				}
				j++
			}
			out.WriteString(d.formatData(d.code[i:j], addr, &strs))
			i = j
			continue
		}

		if l, ok := d.labels[addr]; ok {
			fmt.Fprintf(&out, "%s%s\n", l.name, rules.LabelEnd)
		}
		d.pin(&out, in, &cur)
		mn := strings.ToLower(in.Instr.Mnemonic)
		if ops := d.operand(in); ops != "" {
			fmt.Fprintf(&out, "    %-8s %s\n", mn, ops)
		} else {
			fmt.Fprintf(&out, "    %s\n", mn)
		}
		cur = track(d.def, in, cur)
		i += int(in.Size())
	}
	return out.String()
}

// pin emits a mode directive for every dimension whose width the assembler
// would not otherwise know to be the one in was decoded with.
func (d *disassembly) pin(out *strings.Builder, in *Instruction, cur *assembler.ModeState) {
	for i, dim := range d.def.Flags.Dimensions {
		w := in.State[i]
		if w == arch.WidthUnknown || w == cur[i] {
			continue
		}
		found := false
		for _, md := range d.def.Flags.Directives {
			if md.Dimension == dim.Name && md.Width == w {
				fmt.Fprintf(out, "    %s%s\n", d.def.Syntax.DirectivePrefix, md.Name)
				found = true
				break
			}
		}
		if !found {
			fmt.Fprintf(out, "    %swidth %s, %d\n", d.def.Syntax.DirectivePrefix, dim.Name, w)
		}
		cur[i] = w
	}
}

// operand renders the operand of in through its mode's syntax pattern.
func (d *disassembly) operand(in *Instruction) string {
	syntax := strings.ToLower(arch.NormalizeSyntax(in.Mode.Syntax))
	slots := in.Mode.Slots()
	if slots == 0 {
		return syntax
	}
	n := len(in.Operand)
	per := n / slots
	vals := make([]int64, slots)
	for k := range vals {
		for i := (k+1)*per - 1; i >= k*per; i-- {
			vals[k] = vals[k]<<8 | int64(in.Operand[i])
		}
	}
	if in.Mode.Reverse {
		for a, b := 0, len(vals)-1; a < b; a, b = a+1, b-1 {
			vals[a], vals[b] = vals[b], vals[a]
		}
	}

	var sb strings.Builder
	k := 0
	for rest := syntax; rest != ""; {
		j := strings.Index(rest, "{}")
		if j < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:j])
		if slots == 1 {
			sb.WriteString(d.value(in, vals[k], n))
		} else {
			sb.WriteString(hexN(vals[k], per))
		}
		k++
		rest = rest[j+2:]
	}
	text := sb.String()

	if !d.ambiguous(in) {
		return text
	}
	p := d.prefix(n)
	if p == "" {
		return text
	}
	if text[0] == '(' || text[0] == '[' {
		return text[:1] + p + text[1:]
	}
	return p + text
}

// value renders a single operand: a label or context name where one stands
// for the same number, otherwise hex.
func (d *disassembly) value(in *Instruction, v int64, n int) string {
	if t, ok := in.Target(d.def); ok {
		fitsField := t >= 0 && t < int64(1)<<(8*n)
		if l, ok := d.labels[uint32(t)]; ok && d.contains(t) && (in.Mode.Relative || fitsField) {
			return l.name
		}
		if name, ok := d.names[t]; ok && (in.Mode.Relative || t == v) {
			return name
		}
		if in.Mode.Relative {
			if t < 0 && d.def.Syntax.CurrentPC != "" {
				return fmt.Sprintf("%s%+d", d.def.Syntax.CurrentPC, t-int64(in.Address))
			}
			return hexAddr(t)
		}
		return hexN(v, n)
	}
	imm := d.def.Syntax.Immediate
	if imm != "" && strings.HasPrefix(arch.NormalizeSyntax(in.Mode.Syntax), imm) {
		return hexN(v, n)
	}
	if name, ok := d.names[v]; ok {
		return name
	}
	return hexN(v, n)
}

// ambiguous reports whether the assembler could pick another mode of the
// same size group for in's operand.
func (d *disassembly) ambiguous(in *Instruction) bool {
	count := 0
	for _, m := range d.def.ModesBySyntax(in.Mode.Syntax) {
		if in.Instr.Supports(m.Name) {
			count++
		}
	}
	return count > 1
}

// prefix returns the size prefix forcing n operand bytes.
func (d *disassembly) prefix(n int) string {
	keys := make([]string, 0, len(d.def.Syntax.SizePrefixes))
	for k, v := range d.def.Syntax.SizePrefixes {
		if v == n {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return strings.ToLower(keys[0])
}
