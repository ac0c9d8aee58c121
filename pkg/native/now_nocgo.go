//go:build !cgo

package native

import "time"

// Enabled reports whether Now is backed by the C implementation.
const Enabled = false

// Now formats the current local time into buf followed by a nul byte and
// returns the number of bytes written before the nul, or 0 if it does not
// fit. It mirrors the C implementation used in cgo builds.
func Now(buf []byte) uint {
	s := time.Now().Format(Layout)
	if len(s)+1 > len(buf) {
		return 0
	}
	n := copy(buf, s)
	buf[n] = 0
	return uint(n)
}
