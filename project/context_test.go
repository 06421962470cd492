package project

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefSymbol(t *testing.T) {
	c := New()
	require.NoError(t, c.DefSymbol(Symbol{Name: "PORT", Value: 0xD000}))
	require.Error(t, c.DefSymbol(Symbol{Name: "PORT", Value: 1}))
	require.Error(t, c.DefSymbol(Symbol{}))

	c.Vectors = append(c.Vectors, ExceptionVector{Name: "RESET", Address: 0xFFFC})
	require.Error(t, c.DefSymbol(Symbol{Name: "RESET"}))

	s, ok := c.Symbol("RESET")
	require.True(t, ok)
	require.Equal(t, Vector, s.Kind)
	require.EqualValues(t, 0xFFFC, s.Value)

	c.SetSymbol(Symbol{Name: "PORT", Value: 0xD010})
	s, _ = c.Symbol("PORT")
	require.EqualValues(t, 0xD010, s.Value)

	all := c.AllSymbols()
	require.Len(t, all, 2)
	require.Equal(t, "PORT", all[0].Name)
}

func TestValidate(t *testing.T) {
	c := New()
	require.NoError(t, c.Validate())

	c.Symbols = []Symbol{{Name: "A1"}, {Name: "A1"}}
	c.Widths["m"] = 12
	c.Vectors = []ExceptionVector{{Name: "V", Bytes: 9}}
	err := c.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "defined twice")
	require.Contains(t, err.Error(), "not 8 or 16")
	require.Contains(t, err.Error(), "size 9")
}

func TestCloneIsDeep(t *testing.T) {
	c := New()
	c.SetOrigin(0x8000)
	c.Widths["m"] = 16
	c.Patches = []Patch{{Kind: PatchData, Data: []byte{1, 2}}}
	d := c.Clone()
	d.Widths["m"] = 8
	d.Patches[0].Data[0] = 9
	require.Equal(t, 16, c.Widths["m"])
	require.EqualValues(t, 1, c.Patches[0].Data[0])
	require.True(t, d.HasOrigin)
}

func TestPatchBytes(t *testing.T) {
	require.Equal(t, []byte{7, 7, 7}, Patch{Kind: PatchRep, Byte: 7, Len: 3}.Bytes())
	require.Equal(t, []byte{1}, Patch{Data: []byte{1}}.Bytes())
}

func TestPatchBinary(t *testing.T) {
	tests := []struct {
		name    string
		patches []Patch
		want    []byte
	}{
		{"Data", []Patch{{Kind: PatchData, Address: 1, Data: []byte{0, 1, 2, 3}}}, []byte{0, 0, 1, 2, 3}},
		{"Rep", []Patch{{Kind: PatchRep, Address: 1, Byte: 5, Len: 4}}, []byte{0, 5, 5, 5, 5}},
		{"Inside", []Patch{{Kind: PatchData, Address: 2, Data: []byte{9}}}, []byte{0, 1, 9, 3}},
		{"Gap", []Patch{{Kind: PatchData, Address: 6, Data: []byte{8}}}, []byte{0, 1, 2, 3, 0xEE, 0xEE, 8}},
		{"InOrder", []Patch{
			{Kind: PatchRep, Address: 0, Byte: 1, Len: 2},
			{Kind: PatchData, Address: 1, Data: []byte{2}},
		}, []byte{1, 2, 2, 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := New()
			ctx.Fill = 0xEE
			ctx.Patches = tc.patches
			in := []byte{0, 1, 2, 3}
			require.Equal(t, tc.want, ctx.Patch(in))
			require.Equal(t, []byte{0, 1, 2, 3}, in)
		})
	}
}

func TestSymbolKinds(t *testing.T) {
	for _, k := range []SymbolKind{Const, Label, Vector} {
		got, err := ParseSymbolKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, got)
	}
	_, err := ParseSymbolKind("macro")
	require.Error(t, err)
}
