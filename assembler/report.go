package assembler

import (
	"fmt"
	"io"
	"strings"
)

// VectorInfo is a context vector after assembly.
type VectorInfo struct {
	Name     string
	Address  uint32
	Handler  string
	Value    uint32
	Resolved bool
}

// SegmentInfo describes one output segment.
type SegmentInfo struct {
	Start uint32
	End   uint32
}

// ListingLine pairs a source line with the bytes it produced.
type ListingLine struct {
	Address uint32
	Bytes   []byte
	Span    Span
	Source  string
}

// Report describes an assembled program alongside its image.
type Report struct {
	Arch     string
	Symbols  []Symbol
	Vectors  []VectorInfo
	Segments []SegmentInfo
	Listing  []ListingLine
}

// Symbol returns the named symbol.
func (r *Report) Symbol(name string) (Symbol, bool) {
	for _, s := range r.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// WriteSymbols prints one "name = $value kind" line per symbol.
func (r *Report) WriteSymbols(w io.Writer) error {
	for _, s := range r.Symbols {
		if _, err := fmt.Fprintf(w, "%-24s = $%06X %s\n", s.Name, uint32(s.Value), s.Kind); err != nil {
			return err
		}
	}
	return nil
}

// WriteListing prints the address, up to four bytes and the source of each
// line. Longer output continues on extra lines.
func (r *Report) WriteListing(w io.Writer) error {
	const perLine = 4
	for _, l := range r.Listing {
		b := l.Bytes
		addr := l.Address
		for first := true; first || len(b) > 0; first = false {
			n := min(perLine, len(b))
			hex := make([]string, n)
			for i := range n {
				hex[i] = fmt.Sprintf("%02X", b[i])
			}
			src := ""
			if first {
				src = l.Source
			}
			if _, err := fmt.Fprintf(w, "%06X  %-12s %5d  %s\n", addr, strings.Join(hex, " "), l.Span.Line, src); err != nil {
				return err
			}
			addr += uint32(n)
			b = b[n:]
		}
	}
	return nil
}
