package config

import (
	"fmt"
	"io"
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/Urethramancer/tabasm/arch"
)

// LoadArch runs the script in r and builds the architecture left in the
// global table arch. name is used in error messages.
func LoadArch(r io.Reader, name string) (*arch.Definition, error) {
	L, t, err := run(r, name, "arch")
	if err != nil {
		return nil, err
	}
	defer L.Close()

	var d decoder
	def := arch.Definition{
		Name:                d.str(t, "arch", "name"),
		AddressBytes:        int(d.num(t, "arch", "address_bytes")),
		DefaultAddressBytes: int(d.num(t, "arch", "default_address_bytes")),
		VectorBytes:         int(d.num(t, "arch", "vector_bytes")),
	}
	if s := d.table(t, "arch", "syntax"); s != nil {
		def.Syntax = d.syntax(s, "arch.syntax")
	}
	if f := d.table(t, "arch", "flags"); f != nil {
		def.Flags = d.flags(f, "arch.flags")
	}
	for i, m := range d.list(t, "arch", "modes") {
		path := fmt.Sprintf("arch.modes[%d]", i+1)
		def.Modes = append(def.Modes, arch.Mode{
			Name:     d.str(m, path, "name"),
			Syntax:   d.str(m, path, "syntax"),
			Bytes:    int(d.num(m, path, "bytes")),
			Relative: d.flag(m, path, "relative"),
			Reverse:  d.flag(m, path, "reverse"),
		})
	}
	for i, in := range d.list(t, "arch", "instructions") {
		path := fmt.Sprintf("arch.instructions[%d]", i+1)
		instr := arch.Instruction{Mnemonic: d.str(in, path, "mnemonic")}
		flow, err := arch.ParseFlow(d.str(in, path, "flow"))
		if err != nil {
			d.fail(path+".flow", "%v", err)
		}
		instr.Flow = flow
		for j, e := range d.list(in, path, "encodings") {
			epath := fmt.Sprintf("%s.encodings[%d]", path, j+1)
			op := d.num(e, epath, "opcode")
			if op < 0 || op > 0xFF {
				d.fail(epath+".opcode", "%d is not a byte", op)
			}
			instr.Encodings = append(instr.Encodings, arch.Encoding{
				Mode:      d.str(e, epath, "mode"),
				Opcode:    byte(op),
				Dimension: d.str(e, epath, "dimension"),
			})
		}
		def.Instructions = append(def.Instructions, instr)
	}
	if err := d.err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	out, err := arch.New(def)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// LoadArchFile loads an architecture from a Lua file.
func LoadArchFile(path string) (*arch.Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadArch(f, path)
}

func (d *decoder) syntax(t *lua.LTable, path string) arch.SyntaxRules {
	return arch.SyntaxRules{
		Comment:         d.str(t, path, "comment"),
		LabelEnd:        d.str(t, path, "label_end"),
		LocalPrefix:     d.str(t, path, "local_prefix"),
		DirectivePrefix: d.str(t, path, "directive_prefix"),
		Immediate:       d.str(t, path, "immediate"),
		CurrentPC:       d.str(t, path, "current_pc"),
		HexPrefixes:     d.strs(t, path, "hex_prefixes"),
		BinPrefixes:     d.strs(t, path, "bin_prefixes"),
		OctPrefixes:     d.strs(t, path, "oct_prefixes"),
		SizePrefixes:    d.numMap(t, path, "size_prefixes"),
	}
}

func (d *decoder) width(t *lua.LTable, path, key string) arch.Width {
	switch n := d.num(t, path, key); n {
	case 0:
		return arch.WidthUnknown
	case 8:
		return arch.Width8
	case 16:
		return arch.Width16
	default:
		d.fail(path+"."+key, "width %d is not 8 or 16", n)
		return arch.WidthUnknown
	}
}

func (d *decoder) flags(t *lua.LTable, path string) arch.FlagRules {
	var f arch.FlagRules
	for i, dim := range d.list(t, path, "dimensions") {
		p := fmt.Sprintf("%s.dimensions[%d]", path, i+1)
		f.Dimensions = append(f.Dimensions, arch.Dimension{
			Name:        d.str(dim, p, "name"),
			Default:     d.width(dim, p, "default"),
			Description: d.str(dim, p, "description"),
		})
	}
	for i, b := range d.list(t, path, "bits") {
		p := fmt.Sprintf("%s.bits[%d]", path, i+1)
		f.Bits = append(f.Bits, arch.FlagBit{
			Mask:      uint32(d.num(b, p, "mask")),
			Dimension: d.str(b, p, "dimension"),
			Set:       d.width(b, p, "set"),
			Clear:     d.width(b, p, "clear"),
		})
	}
	f.Set = d.strs(t, path, "set")
	f.Clear = d.strs(t, path, "clear")
	f.Invalidate = d.strs(t, path, "invalidate")
	for i, md := range d.list(t, path, "directives") {
		p := fmt.Sprintf("%s.directives[%d]", path, i+1)
		f.Directives = append(f.Directives, arch.ModeDirective{
			Name:      d.str(md, p, "name"),
			Dimension: d.str(md, p, "dimension"),
			Width:     d.width(md, p, "width"),
		})
	}
	return f
}

// DumpArch writes def as a Lua script LoadArch reads back to an equal
// definition.
func DumpArch(w io.Writer, def *arch.Definition) error {
	out := &writer{w: w}
	out.line("-- %s architecture", def.Name)
	out.open("arch = {")
	out.line("name = %s,", quote(def.Name))
	out.line("address_bytes = %d,", def.AddressBytes)
	out.line("default_address_bytes = %d,", def.DefaultAddressBytes)
	out.line("vector_bytes = %d,", def.VectorBytes)

	s := def.Syntax
	out.open("syntax = {")
	out.line("comment = %s,", quote(s.Comment))
	out.line("label_end = %s,", quote(s.LabelEnd))
	out.line("local_prefix = %s,", quote(s.LocalPrefix))
	out.line("directive_prefix = %s,", quote(s.DirectivePrefix))
	out.line("immediate = %s,", quote(s.Immediate))
	out.line("current_pc = %s,", quote(s.CurrentPC))
	out.line("hex_prefixes = %s,", quoteList(s.HexPrefixes))
	out.line("bin_prefixes = %s,", quoteList(s.BinPrefixes))
	out.line("oct_prefixes = %s,", quoteList(s.OctPrefixes))
	out.line("size_prefixes = %s,", numMapLiteral(s.SizePrefixes))
	out.close(",")

	f := def.Flags
	out.open("flags = {")
	out.open("dimensions = {")
	for _, dim := range f.Dimensions {
		out.line("{name = %s, default = %d, description = %s},", quote(dim.Name), dim.Default, quote(dim.Description))
	}
	out.close(",")
	out.open("bits = {")
	for _, b := range f.Bits {
		out.line("{mask = 0x%02X, dimension = %s, set = %d, clear = %d},", b.Mask, quote(b.Dimension), b.Set, b.Clear)
	}
	out.close(",")
	out.line("set = %s,", quoteList(f.Set))
	out.line("clear = %s,", quoteList(f.Clear))
	out.line("invalidate = %s,", quoteList(f.Invalidate))
	out.open("directives = {")
	for _, md := range f.Directives {
		out.line("{name = %s, dimension = %s, width = %d},", quote(md.Name), quote(md.Dimension), md.Width)
	}
	out.close(",")
	out.close(",")

	out.open("modes = {")
	for _, m := range def.Modes {
		extra := ""
		if m.Relative {
			extra += ", relative = true"
		}
		if m.Reverse {
			extra += ", reverse = true"
		}
		out.line("{name = %s, syntax = %s, bytes = %d%s},", quote(m.Name), quote(m.Syntax), m.Bytes, extra)
	}
	out.close(",")

	out.open("instructions = {")
	for _, in := range def.Instructions {
		flow := ""
		if in.Flow != arch.FlowNone {
			flow = fmt.Sprintf(", flow = %s", quote(in.Flow.String()))
		}
		out.open("{mnemonic = %s%s, encodings = {", quote(in.Mnemonic), flow)
		for _, e := range in.Encodings {
			dim := ""
			if e.Dimension != "" {
				dim = fmt.Sprintf(", dimension = %s", quote(e.Dimension))
			}
			out.line("{mode = %s, opcode = 0x%02X%s},", quote(e.Mode), e.Opcode, dim)
		}
		out.close("},")
	}
	out.close(",")
	out.close("")
	return out.err
}
