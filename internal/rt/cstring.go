package rt

import "bytes"

// cstrlen returns the length of b up to its first zero byte.
func cstrlen(b []byte) int {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return i
	}
	return len(b)
}

// cstr returns the logical contents of a null-terminated buffer.
func cstr(b []byte) []byte {
	return b[:cstrlen(b)]
}
