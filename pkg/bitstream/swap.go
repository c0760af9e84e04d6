package bitstream

// SwapWords copies src into a new buffer, byte-swapping every complete
// 32-bit word. Configuration words are stored big-endian in .bit files
// and written little-endian to the configuration port. Trailing bytes that
// do not form a full word are copied unchanged.
func SwapWords(src []byte) []byte {
	out := make([]byte, len(src))
	n := len(src) &^ 3
	for i := 0; i < n; i += 4 {
		out[i] = src[i+3]
		out[i+1] = src[i+2]
		out[i+2] = src[i+1]
		out[i+3] = src[i]
	}
	copy(out[n:], src[n:])
	return out
}
