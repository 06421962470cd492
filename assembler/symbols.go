package assembler

import (
	"sort"

	"github.com/Urethramancer/tabasm/project"
)

// Symbol is a resolved name.
type Symbol struct {
	Name  string
	Value int64
	Kind  project.SymbolKind
	// Span is zero for symbols that came from the context.
	Span Span
}

type entry struct {
	Symbol
	pending bool
}

// SymbolTable maps names to values. Names may be declared before their value
// is known; Freeze ends all changes.
type SymbolTable struct {
	syms   map[string]*entry
	frozen bool
}

// NewSymbolTable returns a table seeded with the context's symbols.
func NewSymbolTable(ctx *project.Context) *SymbolTable {
	t := &SymbolTable{syms: make(map[string]*entry)}
	if ctx != nil {
		for _, s := range ctx.AllSymbols() {
			t.syms[s.Name] = &entry{Symbol: Symbol{Name: s.Name, Value: int64(s.Value), Kind: s.Kind}}
		}
	}
	return t
}

// Declare reserves name. A second declaration is a *DuplicateSymbolError
// carrying both spans.
func (t *SymbolTable) Declare(name string, kind project.SymbolKind, at Span) error {
	if t.frozen {
		return &EncodingError{Span: at, Reason: UnsupportedCombination, Detail: "symbol table is frozen"}
	}
	if e, ok := t.syms[name]; ok {
		return &DuplicateSymbolError{Name: name, First: e.Span, Second: at}
	}
	t.syms[name] = &entry{Symbol: Symbol{Name: name, Kind: kind, Span: at}, pending: true}
	return nil
}

// Set gives a declared name its value.
func (t *SymbolTable) Set(name string, v int64) {
	if t.frozen {
		return
	}
	if e, ok := t.syms[name]; ok {
		e.Value = v
		e.pending = false
	}
}

// Define declares name and sets its value.
func (t *SymbolTable) Define(name string, v int64, kind project.SymbolKind, at Span) error {
	if err := t.Declare(name, kind, at); err != nil {
		return err
	}
	t.Set(name, v)
	return nil
}

// Value returns the value of a known symbol.
func (t *SymbolTable) Value(name string) (int64, bool) {
	e, ok := t.syms[name]
	if !ok || e.pending {
		return 0, false
	}
	return e.Value, true
}

// Lookup returns the full symbol.
func (t *SymbolTable) Lookup(name string) (Symbol, bool) {
	e, ok := t.syms[name]
	if !ok || e.pending {
		return Symbol{}, false
	}
	return e.Symbol, true
}

// Freeze makes the table read-only.
func (t *SymbolTable) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze was called.
func (t *SymbolTable) Frozen() bool {
	return t.frozen
}

// Sorted returns every known symbol ordered by name.
func (t *SymbolTable) Sorted() []Symbol {
	out := make([]Symbol, 0, len(t.syms))
	for _, e := range t.syms {
		if !e.pending {
			out = append(out, e.Symbol)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// env evaluates expressions against the table at a given address.
type env struct {
	t  *SymbolTable
	pc uint32
}

func (e env) Value(name string) (int64, bool) { return e.t.Value(name) }
func (e env) PC() int64                       { return int64(e.pc) }
