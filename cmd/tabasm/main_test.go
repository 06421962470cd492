package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Urethramancer/tabasm/arch"
	"github.com/Urethramancer/tabasm/assembler"
	"github.com/Urethramancer/tabasm/project"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"$8000", 0x8000},
		{"0xC000", 0xC000},
		{"%1010", 10},
		{"42", 42},
		{" $ff ", 0xFF},
	}
	for _, tc := range tests {
		got, err := parseNumber(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "$", "0xZZ", "%102", "12ab", "$100000000"} {
		_, err := parseNumber(bad)
		require.Error(t, err, bad)
	}
}

func TestOutputName(t *testing.T) {
	require.Equal(t, "", outputName("main.s", "", 1, false))
	require.Equal(t, "rom.bin", outputName("main.s", "rom.bin", 1, false))
	require.Equal(t, "src/a.bin", outputName("src/a.s", "", 2, false))
	require.Equal(t, "src/b.hex", outputName("src/b.asm", "", 2, true))
	require.Equal(t, filepath.Join("out", "a.bin"), outputName("src/a.s", "out", 2, false))
}

func TestHexDump(t *testing.T) {
	src := ".org $8000\n.fill 18, $EA\n.org $9000\nrts"
	img, _, err := assembler.Assemble(src, arch.MOS6502(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, hexDump(&buf, img))
	require.Equal(t,
		"008000: EA EA EA EA EA EA EA EA EA EA EA EA EA EA EA EA\n"+
			"008010: EA EA\n"+
			"009000: 60\n",
		buf.String())
}

func TestPatchFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "rom.bin")
	require.NoError(t, os.WriteFile(in, []byte{0xEA, 0xEA, 0x60}, 0o644))

	ctx := project.New()
	ctx.Patches = []project.Patch{
		{Kind: project.PatchData, Address: 1, Data: []byte{0x00}},
		{Kind: project.PatchRep, Address: 3, Byte: 0xFF, Len: 2},
	}
	out := filepath.Join(dir, "patched.bin")
	n, err := patchFile(ctx, in, out)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, []byte{0xEA, 0x00, 0x60, 0xFF, 0xFF}, got)

	orig, err := os.ReadFile(in)
	require.NoError(t, err)
	require.Equal(t, []byte{0xEA, 0xEA, 0x60}, orig)

	_, err = patchFile(ctx, filepath.Join(dir, "missing.bin"), out)
	require.Error(t, err)
}
