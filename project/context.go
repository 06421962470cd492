// Package project holds the per-program Context layered onto an
// architecture: predefined symbols, exception vectors, the default origin,
// initial processor widths and patches applied to the finished image.
package project

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SymbolKind tells where a predefined symbol came from.
type SymbolKind uint8

const (
	// Const is a plain value, e.g. a hardware register address.
	Const SymbolKind = iota
	// Label is an address inside the program.
	Label
	// Vector is defined by an exception table entry.
	Vector
)

var kindNames = []string{"const", "label", "vector"}

func (k SymbolKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// ParseSymbolKind is the inverse of SymbolKind.String.
func ParseSymbolKind(s string) (SymbolKind, error) {
	if s == "" {
		return Const, nil
	}
	for i, n := range kindNames {
		if strings.EqualFold(n, s) {
			return SymbolKind(i), nil
		}
	}
	return Const, fmt.Errorf("unknown symbol kind %q", s)
}

// Symbol is a predefined name with a fixed value.
type Symbol struct {
	Name  string
	Value uint32
	Kind  SymbolKind
}

// ExceptionVector names a vector slot. Name is defined as a constant holding
// Address; when Handler is set its resolved value is written to the slot.
type ExceptionVector struct {
	Name    string
	Address uint32
	// Handler is a symbol name or an expression in source syntax.
	Handler string
	// Bytes overrides the architecture's vector size when non-zero.
	Bytes int
}

// PatchKind selects how a Patch produces its bytes.
type PatchKind uint8

const (
	// PatchData writes Data verbatim.
	PatchData PatchKind = iota
	// PatchRep writes Byte Len times.
	PatchRep
)

// Patch overwrites or extends the assembled image after it is merged.
type Patch struct {
	Kind    PatchKind
	Address uint32
	Data    []byte
	Byte    byte
	Len     int
}

// Bytes returns the patch contents.
func (p Patch) Bytes() []byte {
	if p.Kind == PatchRep {
		b := make([]byte, p.Len)
		for i := range b {
			b[i] = p.Byte
		}
		return b
	}
	return p.Data
}

// Context is read-only once handed to the assembler.
type Context struct {
	Origin    uint32
	HasOrigin bool
	// Fill pads gaps when a segmented image is flattened.
	Fill byte
	// Widths overrides the architecture's initial width per dimension.
	Widths  map[string]int
	Symbols []Symbol
	Vectors []ExceptionVector
	Patches []Patch
}

// New returns an empty context.
func New() *Context {
	return &Context{Widths: map[string]int{}}
}

// SetOrigin sets the default origin.
func (c *Context) SetOrigin(addr uint32) {
	c.Origin = addr
	c.HasOrigin = true
}

// DefSymbol adds a predefined symbol. Names are unique across symbols and
// vectors.
func (c *Context) DefSymbol(s Symbol) error {
	if s.Name == "" {
		return errors.New("symbol needs a name")
	}
	if _, ok := c.Symbol(s.Name); ok {
		return fmt.Errorf("symbol %q already defined", s.Name)
	}
	c.Symbols = append(c.Symbols, s)
	return nil
}

// SetSymbol defines s, replacing any previous symbol of the same name.
func (c *Context) SetSymbol(s Symbol) {
	for i := range c.Symbols {
		if c.Symbols[i].Name == s.Name {
			c.Symbols[i] = s
			return
		}
	}
	c.Symbols = append(c.Symbols, s)
}

// Symbol returns the predefined symbol called name, including vector names.
func (c *Context) Symbol(name string) (Symbol, bool) {
	for _, s := range c.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	for _, v := range c.Vectors {
		if v.Name == name {
			return Symbol{Name: v.Name, Value: v.Address, Kind: Vector}, true
		}
	}
	return Symbol{}, false
}

// AllSymbols returns symbols and vector names, sorted by name.
func (c *Context) AllSymbols() []Symbol {
	out := make([]Symbol, 0, len(c.Symbols)+len(c.Vectors))
	out = append(out, c.Symbols...)
	for _, v := range c.Vectors {
		out = append(out, Symbol{Name: v.Name, Value: v.Address, Kind: Vector})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate reports duplicate names and malformed entries.
func (c *Context) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	check := func(name string) {
		switch {
		case name == "":
			errs = append(errs, errors.New("unnamed symbol"))
		case seen[name]:
			errs = append(errs, fmt.Errorf("symbol %q defined twice", name))
		}
		seen[name] = true
	}
	for _, s := range c.Symbols {
		check(s.Name)
	}
	for _, v := range c.Vectors {
		check(v.Name)
		if v.Bytes < 0 || v.Bytes > 4 {
			errs = append(errs, fmt.Errorf("vector %s: size %d out of range", v.Name, v.Bytes))
		}
	}
	for i, p := range c.Patches {
		if p.Kind == PatchRep && p.Len < 0 {
			errs = append(errs, fmt.Errorf("patch %d: negative length", i))
		}
	}
	for dim, w := range c.Widths {
		if w != 8 && w != 16 {
			errs = append(errs, fmt.Errorf("width %s: %d is not 8 or 16", dim, w))
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy.
func (c *Context) Clone() *Context {
	out := *c
	out.Widths = make(map[string]int, len(c.Widths))
	for k, v := range c.Widths {
		out.Widths[k] = v
	}
	out.Symbols = append([]Symbol(nil), c.Symbols...)
	out.Vectors = append([]ExceptionVector(nil), c.Vectors...)
	out.Patches = make([]Patch, len(c.Patches))
	for i, p := range c.Patches {
		p.Data = append([]byte(nil), p.Data...)
		out.Patches[i] = p
	}
	return &out
}

// Patch applies the context patches, in order, to a raw binary. Patch
// addresses are offsets into data. The result grows when a patch runs past
// the end, and any gap before such a patch takes the fill byte. data itself
// is not changed.
func (c *Context) Patch(data []byte) []byte {
	out := append([]byte(nil), data...)
	for _, p := range c.Patches {
		b := p.Bytes()
		if len(b) == 0 {
			continue
		}
		end := int(p.Address) + len(b)
		for len(out) < end {
			out = append(out, c.Fill)
		}
		copy(out[p.Address:], b)
	}
	return out
}
