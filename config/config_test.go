package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Urethramancer/tabasm/arch"
	"github.com/Urethramancer/tabasm/assembler"
	"github.com/Urethramancer/tabasm/project"
)

func TestArchRoundTrip(t *testing.T) {
	for _, name := range arch.Names() {
		t.Run(name, func(t *testing.T) {
			def, err := arch.Builtin(name)
			require.NoError(t, err)

			var first bytes.Buffer
			require.NoError(t, DumpArch(&first, def))
			loaded, err := LoadArch(bytes.NewReader(first.Bytes()), name+".lua")
			require.NoError(t, err)

			var second bytes.Buffer
			require.NoError(t, DumpArch(&second, loaded))
			require.Equal(t, first.String(), second.String())
			require.Equal(t, def.Modes, loaded.Modes)
			require.Equal(t, def.Instructions, loaded.Instructions)
			require.Equal(t, def.Flags, loaded.Flags)
			require.Equal(t, def.Syntax, loaded.Syntax)
		})
	}
}

func TestLoadedArchAssembles(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DumpArch(&buf, arch.WDC65816()))
	def, err := LoadArch(&buf, "65816.lua")
	require.NoError(t, err)

	src := "rep #$20\nlda #$1234\nmvn $01,$02\nbra *"
	want, _, err := assembler.Assemble(src, arch.WDC65816(), nil)
	require.NoError(t, err)
	got, _, err := assembler.Assemble(src, def, nil)
	require.NoError(t, err)
	require.Equal(t, want.Bytes(0), got.Bytes(0))
}

func TestLoadArchScript(t *testing.T) {
	src := `
local modes = {}
table.insert(modes, {name = "imp", syntax = "", bytes = 0})
table.insert(modes, {name = "abs", syntax = "{}", bytes = 2})
arch = {
  name = "tiny",
  modes = modes,
  instructions = {
    {mnemonic = "nop", encodings = {{mode = "imp", opcode = 0xEA}}},
    {mnemonic = string.upper("jmp"), flow = "jump", encodings = {{mode = "abs", opcode = 0x4C}}},
  },
}
`
	def, err := LoadArch(strings.NewReader(src), "tiny.lua")
	require.NoError(t, err)
	require.Equal(t, "tiny", def.Name)
	in, ok := def.Lookup("JMP")
	require.True(t, ok)
	require.Equal(t, arch.FlowJump, in.Flow)
}

func TestLoadArchErrors(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"Syntax", "arch = {", "load"},
		{"Runtime", "error('boom')", "boom"},
		{"NoTable", "x = 1", `no global table "arch"`},
		{"WrongType", `arch = {name = 5, modes = {{name = "imp", bytes = "x"}}}`, "arch.modes[1].bytes"},
		{"BadOpcode", `arch = {modes = {{name = "imp"}}, instructions = {{mnemonic = "NOP", encodings = {{mode = "imp", opcode = 300}}}}}`, "not a byte"},
		{"BadFlow", `arch = {instructions = {{mnemonic = "NOP", flow = "sideways"}}}`, "unknown flow"},
		{"Invalid", `arch = {instructions = {{mnemonic = "NOP", encodings = {{mode = "nope"}}}}}`, "unknown addressing mode"},
		{"Sandboxed", `dofile("/etc/passwd")`, "run bad.lua"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadArch(strings.NewReader(tc.src), "bad.lua")
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := project.New()
	ctx.SetOrigin(0x8000)
	ctx.Fill = 0xFF
	ctx.Widths["m"] = 16
	ctx.Symbols = []project.Symbol{
		{Name: "PORT", Value: 0xD000, Kind: project.Const},
		{Name: "entry", Value: 0x8010, Kind: project.Label},
	}
	ctx.Vectors = []project.ExceptionVector{
		{Name: "RESET", Address: 0xFFFC, Handler: "entry"},
		{Name: "COP", Address: 0xFFE4, Bytes: 2},
	}
	ctx.Patches = []project.Patch{
		{Kind: project.PatchData, Address: 0x8000, Data: []byte{0xEA, 0x60}},
		{Kind: project.PatchRep, Address: 0x9000, Byte: 0xFF, Len: 4},
	}

	var buf bytes.Buffer
	require.NoError(t, DumpContext(&buf, ctx))
	loaded, err := LoadContext(&buf, "ctx.lua")
	require.NoError(t, err)
	require.Equal(t, ctx, loaded)
}

func TestLoadContextErrors(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"NegativeValue", `context = {symbols = {{name = "X", value = -1}}}`, "context.symbols[1].value: -1 is negative"},
		{"NegativeVector", `context = {vectors = {{name = "RESET", address = -4}}}`, "context.vectors[1].address"},
		{"NegativePatch", `context = {patches = {{kind = "rep", address = -1, byte = 1, len = 1}}}`, "context.patches[1].address"},
		{"NegativeOrigin", `context = {origin = -0x8000}`, "context.origin"},
		{"Fraction", `context = {symbols = {{name = "X", value = 1.5}}}`, "not an integer"},
		{"TooLarge", `context = {symbols = {{name = "X", value = 0x100000000}}}`, "does not fit 32 bits"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadContext(strings.NewReader(tc.src), "ctx.lua")
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestContextFilePatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.bin"), []byte{1, 2, 3}, 0o644))
	path := filepath.Join(dir, "ctx.lua")
	src := `context = {patches = {{kind = "file", address = 0x10, path = "logo.bin"}}}`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	ctx, err := LoadContextFile(path)
	require.NoError(t, err)
	require.Equal(t, []project.Patch{{Kind: project.PatchData, Address: 0x10, Data: []byte{1, 2, 3}}}, ctx.Patches)
	require.False(t, ctx.HasOrigin)

	_, err = LoadContext(strings.NewReader(`context = {patches = {{kind = "file", path = "missing.bin"}}}`), path)
	require.Error(t, err)
	_, err = LoadContext(strings.NewReader(`context = {widths = {m = 12}}`), path)
	require.ErrorContains(t, err, "not 8 or 16")
}

func TestSaveContextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx.lua")
	ctx := project.New()
	require.NoError(t, ctx.DefSymbol(project.Symbol{Name: "COUNT", Value: 3}))
	require.NoError(t, SaveContextFile(path, ctx))

	loaded, err := LoadContextFile(path)
	require.NoError(t, err)
	s, ok := loaded.Symbol("COUNT")
	require.True(t, ok)
	require.EqualValues(t, 3, s.Value)
}

func TestFindContext(t *testing.T) {
	t.Setenv(EnvContextPath, "")
	t.Chdir(t.TempDir())
	require.Equal(t, "given.lua", FindContext("given.lua"))
	require.Equal(t, "", FindContext(""))

	require.NoError(t, os.WriteFile(DefaultContextFile, []byte("context = {}"), 0o644))
	require.Equal(t, DefaultContextFile, FindContext(""))

	t.Setenv(EnvContextPath, "/somewhere/ctx.lua")
	require.Equal(t, "/somewhere/ctx.lua", FindContext(""))
}

func TestQuote(t *testing.T) {
	require.Equal(t, `"a\"b\\c\n\001"`, quote("a\"b\\c\n\x01"))
}
