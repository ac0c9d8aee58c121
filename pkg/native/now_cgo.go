//go:build cgo

package native

// #include "now.h"
import "C"

import "unsafe"

// Enabled reports whether Now is backed by the C implementation.
const Enabled = true

// Now calls the C function now with buf's address and capacity. It returns
// the number of bytes written before the nul terminator, or 0 if the
// formatted time does not fit. Bytes past the returned length plus one are
// left in an unspecified state.
func Now(buf []byte) uint {
	if len(buf) == 0 {
		return uint(C.now(nil, 0))
	}
	return uint(C.now((*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf))))
}
