// Package native exposes the C time source compiled into the binary.
//
// The C side is a single function, now(buf, len), built by cgo from now.c.
// When cgo is disabled (for example a CGO_ENABLED=0 cross build) a pure-Go
// implementation with the same contract is linked instead.
package native

// Layout is the Go time layout matching NOW_FORMAT in now.h.
const Layout = "2006-01-02 15:04:05"
