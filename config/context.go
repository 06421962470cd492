package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/Urethramancer/tabasm/project"
)

// EnvContextPath names the environment variable consulted for the context
// file when none is given explicitly.
const EnvContextPath = "TABASM_CTX_PATH"

// DefaultContextFile is looked for in the working directory last.
const DefaultContextFile = "ctx.lua"

// LoadContext runs the script in r and builds the context left in the
// global table context. Paths of file patches are relative to the directory
// of name.
func LoadContext(r io.Reader, name string) (*project.Context, error) {
	L, t, err := run(r, name, "context")
	if err != nil {
		return nil, err
	}
	defer L.Close()

	var d decoder
	ctx := project.New()
	if v := t.RawGetString("origin"); v != lua.LNil {
		ctx.SetOrigin(uint32(d.number(v, "context.origin")))
	}
	fill := d.num(t, "context", "fill")
	if fill < 0 || fill > 0xFF {
		d.fail("context.fill", "%d is not a byte", fill)
	}
	ctx.Fill = byte(fill)
	for k, v := range d.numMap(t, "context", "widths") {
		ctx.Widths[k] = v
	}

	for i, s := range d.list(t, "context", "symbols") {
		path := fmt.Sprintf("context.symbols[%d]", i+1)
		kind, err := project.ParseSymbolKind(d.str(s, path, "kind"))
		if err != nil {
			d.fail(path+".kind", "%v", err)
		}
		ctx.Symbols = append(ctx.Symbols, project.Symbol{
			Name:  d.str(s, path, "name"),
			Value: uint32(d.num(s, path, "value")),
			Kind:  kind,
		})
	}
	for i, v := range d.list(t, "context", "vectors") {
		path := fmt.Sprintf("context.vectors[%d]", i+1)
		ctx.Vectors = append(ctx.Vectors, project.ExceptionVector{
			Name:    d.str(v, path, "name"),
			Address: uint32(d.num(v, path, "address")),
			Handler: d.str(v, path, "handler"),
			Bytes:   int(d.num(v, path, "bytes")),
		})
	}
	dir := filepath.Dir(name)
	for i, p := range d.list(t, "context", "patches") {
		path := fmt.Sprintf("context.patches[%d]", i+1)
		if patch, ok := d.patch(p, path, dir); ok {
			ctx.Patches = append(ctx.Patches, patch)
		}
	}

	if err := d.err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := ctx.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return ctx, nil
}

func (d *decoder) patch(t *lua.LTable, path, dir string) (project.Patch, bool) {
	p := project.Patch{Address: uint32(d.num(t, path, "address"))}
	switch kind := d.str(t, path, "kind"); kind {
	case "data":
		p.Kind = project.PatchData
		data := d.table(t, path, "data")
		if data == nil {
			break
		}
		for i := 1; i <= data.Len(); i++ {
			b := d.number(data.RawGetInt(i), fmt.Sprintf("%s.data[%d]", path, i))
			if b < 0 || b > 0xFF {
				d.fail(fmt.Sprintf("%s.data[%d]", path, i), "%d is not a byte", b)
			}
			p.Data = append(p.Data, byte(b))
		}
	case "rep":
		p.Kind = project.PatchRep
		b := d.num(t, path, "byte")
		if b < 0 || b > 0xFF {
			d.fail(path+".byte", "%d is not a byte", b)
		}
		p.Byte = byte(b)
		p.Len = int(d.num(t, path, "len"))
	case "file":
		// Files are read now and kept as data.
		p.Kind = project.PatchData
		name := d.str(t, path, "path")
		if !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		data, err := os.ReadFile(name)
		if err != nil {
			d.fail(path+".path", "%v", err)
			return p, false
		}
		p.Data = data
	default:
		d.fail(path+".kind", "unknown patch kind %q", kind)
		return p, false
	}
	return p, true
}

// LoadContextFile loads a context from a Lua file.
func LoadContextFile(path string) (*project.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadContext(f, path)
}

// FindContext returns the context file to use: explicit if set, else the
// file named by TABASM_CTX_PATH, else ctx.lua in the working directory if
// it exists. An empty result means no file.
func FindContext(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvContextPath); env != "" {
		return env
	}
	if _, err := os.Stat(DefaultContextFile); err == nil {
		return DefaultContextFile
	}
	return ""
}

// DumpContext writes ctx as a Lua script LoadContext reads back to an equal
// context. File patches have already become data.
func DumpContext(w io.Writer, ctx *project.Context) error {
	out := &writer{w: w}
	out.open("context = {")
	if ctx.HasOrigin {
		out.line("origin = 0x%04X,", ctx.Origin)
	}
	if ctx.Fill != 0 {
		out.line("fill = 0x%02X,", ctx.Fill)
	}
	if len(ctx.Widths) > 0 {
		out.line("widths = %s,", numMapLiteral(ctx.Widths))
	}
	if len(ctx.Symbols) > 0 {
		out.open("symbols = {")
		for _, s := range ctx.Symbols {
			out.line("{name = %s, value = 0x%04X, kind = %s},", quote(s.Name), s.Value, quote(s.Kind.String()))
		}
		out.close(",")
	}
	if len(ctx.Vectors) > 0 {
		out.open("vectors = {")
		for _, v := range ctx.Vectors {
			var extra strings.Builder
			if v.Handler != "" {
				fmt.Fprintf(&extra, ", handler = %s", quote(v.Handler))
			}
			if v.Bytes != 0 {
				fmt.Fprintf(&extra, ", bytes = %d", v.Bytes)
			}
			out.line("{name = %s, address = 0x%04X%s},", quote(v.Name), v.Address, extra.String())
		}
		out.close(",")
	}
	if len(ctx.Patches) > 0 {
		out.open("patches = {")
		for _, p := range ctx.Patches {
			switch p.Kind {
			case project.PatchRep:
				out.line("{kind = \"rep\", address = 0x%04X, byte = 0x%02X, len = %d},", p.Address, p.Byte, p.Len)
			default:
				out.line("{kind = \"data\", address = 0x%04X, data = %s},", p.Address, byteList(p.Data))
			}
		}
		out.close(",")
	}
	out.close("")
	return out.err
}

// SaveContextFile writes ctx to path, replacing the file only once the new
// contents are complete.
func SaveContextFile(path string, ctx *project.Context) error {
	var buf bytes.Buffer
	if err := DumpContext(&buf, ctx); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func byteList(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("0x%02X", b)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
