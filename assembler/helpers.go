package assembler

// putLE appends the low n bytes of v, least significant first.
func putLE(dst []byte, v int64, n int) []byte {
	for i := 0; i < n; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// limits returns the range an n-byte field accepts. Plain fields take both
// signed and unsigned values; displacements are signed only.
func limits(n int, signed bool) (lo, hi int64) {
	if n <= 0 {
		return 0, 0
	}
	bits := uint(8 * n)
	lo = -(int64(1) << (bits - 1))
	if signed {
		return lo, int64(1)<<(bits-1) - 1
	}
	return lo, int64(1)<<bits - 1
}

// fits reports whether v can be stored in n bytes without truncation.
func fits(v int64, n int, signed bool) bool {
	lo, hi := limits(n, signed)
	return v >= lo && v <= hi
}

// fitsUnsigned is the test used to pick the smallest mode for a known value.
func fitsUnsigned(v int64, n int) bool {
	return v >= 0 && v < int64(1)<<uint(8*n)
}
