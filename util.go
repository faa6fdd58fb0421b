package tlsengine

import "fmt"

// encodeUint writes the low width bytes of v into dst, big-endian. dst must
// be at least width bytes long.
func encodeUint(v uint64, width int, dst []byte) {
	for i := 0; i < width; i++ {
		dst[width-1-i] = byte(v >> (8 * uint(i)))
	}
}

// decodeUint reads a big-endian integer from the first width bytes of src
// (width at most 8).
func decodeUint(src []byte, width int) (uint64, error) {
	if len(src) < width {
		return 0, fmt.Errorf("tlsengine: truncated %d-byte integer", width)
	}
	var v uint64
	for i := 0; i < width; i++ {
		v = v<<8 | uint64(src[i])
	}
	return v, nil
}
