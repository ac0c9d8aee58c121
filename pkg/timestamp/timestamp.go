// Package timestamp reads the current local time from a native source that
// writes nul-terminated text into a caller-owned buffer and reports how many
// bytes it wrote.
package timestamp

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/kalo-build/kalo-now/pkg/native"
)

// DefaultCapacity is the buffer size handed to the source. It is an
// oversized guess, large enough for any formatted local time.
const DefaultCapacity = 1024

var (
	// ErrNativeCallFailed is returned when the source reports zero bytes
	// written: the output did not fit or formatting failed.
	ErrNativeCallFailed = errors.New("native formatting call reported zero bytes written")

	// ErrMalformedNativeOutput is returned when the reported length does not
	// describe a single nul-terminated byte sequence inside the buffer.
	ErrMalformedNativeOutput = errors.New("malformed native output")
)

// Source writes the current time into buf as nul-terminated text and returns
// the number of bytes written excluding the nul, or 0 on failure. It must not
// write past len(buf) or keep buf after returning.
type Source interface {
	Now(buf []byte) uint
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc func(buf []byte) uint

// Now calls f(buf).
func (f SourceFunc) Now(buf []byte) uint {
	return f(buf)
}

// NativeSource is the C now function linked into the binary.
var NativeSource Source = SourceFunc(native.Now)

// Read allocates a buffer of the given capacity, calls source once and
// decodes the result. It is the only place a buffer is handed to a Source.
func Read(source Source, capacity int) (string, error) {
	if capacity < 0 {
		return "", fmt.Errorf("invalid buffer capacity %d", capacity)
	}

	buf := make([]byte, capacity)
	n := source.Now(buf)

	return Decode(buf, n)
}

// Decode validates that buf[:n+1] is exactly one nul-terminated byte sequence
// and returns buf[:n] as text. Invalid UTF-8 is replaced with U+FFFD.
func Decode(buf []byte, n uint) (string, error) {
	if n == 0 {
		return "", ErrNativeCallFailed
	}

	if n >= uint(len(buf)) {
		return "", fmt.Errorf("%w: reported length %d leaves no room for a terminator in %d bytes",
			ErrMalformedNativeOutput, n, len(buf))
	}

	if buf[n] != 0 {
		return "", fmt.Errorf("%w: no nul terminator at offset %d", ErrMalformedNativeOutput, n)
	}

	if i := bytes.IndexByte(buf[:n], 0); i >= 0 {
		return "", fmt.Errorf("%w: interior nul at offset %d", ErrMalformedNativeOutput, i)
	}

	return decodeLossy(buf[:n]), nil
}

func decodeLossy(b []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}
