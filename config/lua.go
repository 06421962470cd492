// Package config reads and writes architecture and context descriptions as
// Lua tables. A file is an ordinary Lua script run in a sandbox; it must
// leave its description in a global (arch or context).
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// newState returns a Lua state with only the base, table, string and math
// libraries, and without the functions that load code from elsewhere.
func newState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name))
		if err != nil {
			L.Close()
			return nil, fmt.Errorf("open lua library %s: %w", lib.name, err)
		}
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L, nil
}

// run executes the script in r and returns the global table called global.
func run(r io.Reader, name, global string) (*lua.LState, *lua.LTable, error) {
	L, err := newState()
	if err != nil {
		return nil, nil, err
	}
	fn, err := L.Load(r, name)
	if err != nil {
		L.Close()
		return nil, nil, fmt.Errorf("load %s: %w", name, err)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, nil, fmt.Errorf("run %s: %w", name, err)
	}
	t, ok := L.GetGlobal(global).(*lua.LTable)
	if !ok {
		L.Close()
		return nil, nil, fmt.Errorf("%s: no global table %q", name, global)
	}
	return L, t, nil
}

// decoder pulls typed fields out of Lua tables and keeps every problem it
// finds, each tagged with the path of the offending field.
type decoder struct {
	errs []error
}

func (d *decoder) fail(path, format string, args ...any) {
	d.errs = append(d.errs, fmt.Errorf("%s: %s", path, fmt.Sprintf(format, args...)))
}

func (d *decoder) err() error {
	return errors.Join(d.errs...)
}

func (d *decoder) str(t *lua.LTable, path, key string) string {
	switch v := t.RawGetString(key).(type) {
	case *lua.LNilType:
		return ""
	case lua.LString:
		return string(v)
	default:
		d.fail(path+"."+key, "expected a string, got %s", v.Type())
		return ""
	}
}

func (d *decoder) num(t *lua.LTable, path, key string) int64 {
	return d.number(t.RawGetString(key), path+"."+key)
}

// number reads a non-negative integer of at most 32 bits. Every number in
// an architecture or context is a size, an address or a value of that kind.
func (d *decoder) number(v lua.LValue, path string) int64 {
	switch n := v.(type) {
	case *lua.LNilType:
		return 0
	case lua.LNumber:
		f := float64(n)
		switch {
		case f != math.Trunc(f):
			d.fail(path, "%v is not an integer", f)
			return 0
		case f < 0:
			d.fail(path, "%v is negative", f)
			return 0
		case f > math.MaxUint32:
			d.fail(path, "%v does not fit 32 bits", f)
			return 0
		}
		return int64(f)
	default:
		d.fail(path, "expected a number, got %s", v.Type())
		return 0
	}
}

func (d *decoder) flag(t *lua.LTable, path, key string) bool {
	switch v := t.RawGetString(key).(type) {
	case *lua.LNilType:
		return false
	case lua.LBool:
		return bool(v)
	default:
		d.fail(path+"."+key, "expected a boolean, got %s", v.Type())
		return false
	}
}

func (d *decoder) table(t *lua.LTable, path, key string) *lua.LTable {
	switch v := t.RawGetString(key).(type) {
	case *lua.LNilType:
		return nil
	case *lua.LTable:
		return v
	default:
		d.fail(path+"."+key, "expected a table, got %s", v.Type())
		return nil
	}
}

// list returns the array part of t[key] as tables.
func (d *decoder) list(t *lua.LTable, path, key string) []*lua.LTable {
	tbl := d.table(t, path, key)
	if tbl == nil {
		return nil
	}
	out := make([]*lua.LTable, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		e, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			d.fail(fmt.Sprintf("%s.%s[%d]", path, key, i), "expected a table")
			continue
		}
		out = append(out, e)
	}
	return out
}

func (d *decoder) strs(t *lua.LTable, path, key string) []string {
	tbl := d.table(t, path, key)
	if tbl == nil {
		return nil
	}
	var out []string
	for i := 1; i <= tbl.Len(); i++ {
		s, ok := tbl.RawGetInt(i).(lua.LString)
		if !ok {
			d.fail(fmt.Sprintf("%s.%s[%d]", path, key, i), "expected a string")
			continue
		}
		out = append(out, string(s))
	}
	return out
}

// numMap reads a table with string keys and integer values.
func (d *decoder) numMap(t *lua.LTable, path, key string) map[string]int {
	tbl := d.table(t, path, key)
	if tbl == nil {
		return nil
	}
	out := make(map[string]int)
	tbl.ForEach(func(k, v lua.LValue) {
		ks, ok := k.(lua.LString)
		if !ok {
			d.fail(path+"."+key, "key %s is not a string", k)
			return
		}
		out[string(ks)] = int(d.number(v, path+"."+key+"."+string(ks)))
	})
	return out
}

// writer emits Lua table constructors with two-space indentation.
type writer struct {
	w     io.Writer
	depth int
	err   error
}

func (w *writer) line(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, "%s%s\n", strings.Repeat("  ", w.depth), fmt.Sprintf(format, args...))
}

func (w *writer) open(format string, args ...any) {
	w.line(format, args...)
	w.depth++
}

func (w *writer) close(tail string) {
	w.depth--
	w.line("}%s", tail)
}

// quote renders s as a Lua string literal. Lua 5.1 only knows decimal
// escapes, so strconv.Quote will not do.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c < 0x20 || c > 0x7E:
			fmt.Fprintf(&sb, "\\%03d", c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func quoteList(list []string) string {
	q := make([]string, len(list))
	for i, s := range list {
		q[i] = quote(s)
	}
	return "{" + strings.Join(q, ", ") + "}"
}

// numMapLiteral renders m with sorted keys.
func numMapLiteral(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("[%s] = %d", quote(k), m[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
