// Package disassembler turns machine code back into source for the same
// table-driven architectures the assembler reads. Its output assembles to
// the bytes it was given.
package disassembler

import (
	"fmt"

	"github.com/Urethramancer/tabasm/arch"
	"github.com/Urethramancer/tabasm/assembler"
	"github.com/Urethramancer/tabasm/project"
)

// LabelType defines the context of a label.
type LabelType int

const (
	// JumpTarget is for branches and jumps.
	JumpTarget LabelType = iota
	// SubroutineEntry is for call targets.
	SubroutineEntry
	// VectorEntry is for exception handlers.
	VectorEntry
)

type label struct {
	kind LabelType
	name string
}

type disassembly struct {
	def    *arch.Definition
	ctx    *project.Context
	code   []byte
	origin uint32

	insts map[uint32]*Instruction
	// owned marks bytes claimed by decoded instructions; skip marks vector
	// slots the assembler fills in from the context.
	owned  []bool
	skip   []bool
	labels map[uint32]label
	names  map[int64]string
}

// Disassemble decodes code loaded at origin and returns source that
// assembles back to the same bytes with a and c. Code is traced from the
// origin and from every exception vector inside the range; whatever is not
// reached is emitted as data.
func Disassemble(code []byte, origin uint32, a *arch.Definition, c *project.Context) (string, error) {
	if c == nil {
		c = project.New()
	}
	init, err := assembler.InitialState(a, c)
	if err != nil {
		return "", err
	}
	if len(code) == 0 {
		return "", nil
	}
	limit := int64(1)<<(8*a.AddressBytes) - 1
	if int64(origin)+int64(len(code))-1 > limit {
		return "", fmt.Errorf("%d bytes at $%X run past the end of the %s address space", len(code), origin, a.Name)
	}

	d := &disassembly{
		def:    a,
		ctx:    c,
		code:   code,
		origin: origin,
		insts:  make(map[uint32]*Instruction),
		owned:  make([]bool, len(code)),
		skip:   make([]bool, len(code)),
		labels: make(map[uint32]label),
		names:  make(map[int64]string),
	}
	for _, s := range c.AllSymbols() {
		if _, ok := d.names[int64(s.Value)]; !ok {
			d.names[int64(s.Value)] = s.Name
		}
	}
	d.trace(init)
	return d.render(init), nil
}

func (d *disassembly) contains(addr int64) bool {
	return addr >= int64(d.origin) && addr < int64(d.origin)+int64(len(d.code))
}

type entry struct {
	addr  uint32
	state assembler.ModeState
}

// trace follows control flow from the entry points and records every
// instruction it reaches.
func (d *disassembly) trace(init assembler.ModeState) {
	q := newQueue()
	q.push(entry{d.origin, init})
	targets := make(map[uint32]label)

	for _, v := range d.ctx.Vectors {
		n := v.Bytes
		if n == 0 {
			n = d.def.VectorBytes
		}
		if !d.contains(int64(v.Address)) || !d.contains(int64(v.Address)+int64(n)-1) {
			continue
		}
		off := int(v.Address - d.origin)
		var h int64
		for i := n - 1; i >= 0; i-- {
			h = h<<8 | int64(d.code[off+i])
		}
		if v.Handler != "" {
			for i := range n {
				d.skip[off+i] = true
			}
		}
		if !d.contains(h) {
			continue
		}
		l := label{kind: VectorEntry}
		if isIdent(v.Handler) {
			if _, known := d.ctx.Symbol(v.Handler); !known {
				l.name = v.Handler
			}
		}
		targets[uint32(h)] = l
		q.push(entry{uint32(h), init})
	}

	for {
		e, ok := q.pop()
		if !ok {
			break
		}
		in, err := decode(d.def, d.code, d.origin, e.addr, e.state)
		if err != nil || !d.claim(in) {
			continue
		}
		d.insts[e.addr] = in
		next := after(d.def, in, e.state)
		if t, ok := in.Target(d.def); ok && d.contains(t) {
			kind := JumpTarget
			if in.Instr.Flow == arch.FlowCall {
				kind = SubroutineEntry
			}
			if _, seen := targets[uint32(t)]; !seen {
				targets[uint32(t)] = label{kind: kind}
			}
			q.push(entry{uint32(t), next})
		}
		if !in.terminal() {
			q.push(entry{e.addr + in.Size(), next})
		}
	}

	// Only targets that decoded as code get a label.
	for addr, l := range targets {
		if _, ok := d.insts[addr]; !ok {
			continue
		}
		if l.name == "" {
			l.name = labelName(addr, l.kind)
		}
		d.labels[addr] = l
	}
}

// claim marks the bytes of in as code unless another instruction or a
// vector slot already holds any of them.
func (d *disassembly) claim(in *Instruction) bool {
	off := int(in.Address - d.origin)
	end := off + int(in.Size())
	for i := off; i < end; i++ {
		if d.owned[i] || d.skip[i] {
			return false
		}
	}
	for i := off; i < end; i++ {
		d.owned[i] = true
	}
	return true
}

func labelName(addr uint32, kind LabelType) string {
	prefix := "L"
	switch kind {
	case SubroutineEntry:
		prefix = "S"
	case VectorEntry:
		prefix = "V"
	}
	if addr > 0xFFFF {
		return fmt.Sprintf("%s%06X", prefix, addr)
	}
	return fmt.Sprintf("%s%04X", prefix, addr)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// addrQueue is a simple worklist of addresses to decode. An address is only
// ever queued once; the first state it is reached with wins.
type addrQueue struct {
	items []entry
	seen  map[uint32]bool
}

func newQueue() *addrQueue {
	return &addrQueue{seen: make(map[uint32]bool)}
}

func (q *addrQueue) push(e entry) {
	if !q.seen[e.addr] {
		q.items = append(q.items, e)
		q.seen[e.addr] = true
	}
}

func (q *addrQueue) pop() (entry, bool) {
	if len(q.items) == 0 {
		return entry{}, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

func hexAddr(v int64) string {
	if v > 0xFFFF {
		return fmt.Sprintf("$%06X", v)
	}
	return fmt.Sprintf("$%04X", v)
}

func hexN(v int64, n int) string {
	return fmt.Sprintf("$%0*X", 2*max(n, 1), v)
}
