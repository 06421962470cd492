package disassembler

import (
	"fmt"
	"slices"
	"strings"
)

// isPrintableASCII checks if a byte can sit inside a quoted string without
// an escape.
func isPrintableASCII(b byte) bool {
	return b >= 0x20 && b <= 0x7E && b != '"' && b != '\\'
}

// formatData renders bytes nothing jumps into. Runs of text become strings,
// everything else hex bytes.
func (d *disassembly) formatData(data []byte, baseAddr uint32, stringCounter *int) string {
	var sb strings.Builder
	n := len(data)
	if n == 0 {
		return ""
	}
	byteDir := d.def.Syntax.DirectivePrefix + "byte"
	end := d.def.Syntax.LabelEnd

	i := 0
	minStrLen := 4
	// Bytes that are not part of a string wait here, so that neighbouring
	// runs share one directive.
	var pending []byte
	flush := func() {
		sb.WriteString(formatHexBytes(byteDir, pending))
		pending = pending[:0]
	}

	for i < n {
		// Skip non-printables first
		start := i
		for start < n && !isPrintableASCII(data[start]) {
			start++
		}
		pending = append(pending, data[i:start]...)

		// Find printable run
		stop := start
		for stop < n && isPrintableASCII(data[stop]) {
			stop++
		}
		if stop <= start {
			i = start
			continue
		}

		run := data[start:stop]
		runAddr := baseAddr + uint32(start)
		isNullTerminated := stop < n && data[stop] == 0x00

		// Printable + NUL, at least 4 chars: a C string.
		if isNullTerminated && len(run) >= minStrLen {
			flush()
			fmt.Fprintf(&sb, "str%d%s\n    %-8s \"%s\",$00\n", *stringCounter, end, byteDir, run)
			(*stringCounter)++
			i = stop + 1
			continue
		}

		// Four aligned printable chars: a tag.
		if len(run) == 4 && runAddr%4 == 0 {
			flush()
			fmt.Fprintf(&sb, "str%d%s\n    %-8s \"%s\"\n", *stringCounter, end, byteDir, run)
			(*stringCounter)++
			i = stop
			continue
		}

		pending = append(pending, run...)
		i = stop
	}
	flush()

	return sb.String()
}

// formatHexBytes formats a slice of bytes into byte directives, 16 bytes per
// line.
func formatHexBytes(dir string, data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var sb strings.Builder
	const bytesPerLine = 16

	for chunk := range slices.Chunk(data, bytesPerLine) {
		fmt.Fprintf(&sb, "    %-8s ", dir)
		for j, b := range chunk {
			if j > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "$%02X", b)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
