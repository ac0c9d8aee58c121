package timestamp

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/kalo-build/kalo-now/pkg/native"
)

// fixedSource writes text plus a nul and reports the given length.
func fixedSource(text string, reported uint) SourceFunc {
	return func(buf []byte) uint {
		if len(text)+1 > len(buf) {
			return 0
		}
		n := copy(buf, text)
		buf[n] = 0
		return reported
	}
}

func TestDecode_Scenario(t *testing.T) {
	buf := make([]byte, DefaultCapacity)
	n := copy(buf, "2024-01-01 00:00:00")
	buf[n] = 0

	text, err := Decode(buf, uint(n))

	require.NoError(t, err)
	require.Equal(t, "2024-01-01 00:00:00", text)
}

func TestDecode_ZeroLength(t *testing.T) {
	buf := []byte("2024-01-01 00:00:00\x00")

	_, err := Decode(buf, 0)

	require.ErrorIs(t, err, ErrNativeCallFailed)
	require.NotErrorIs(t, err, ErrMalformedNativeOutput)
}

func TestDecode_MissingTerminator(t *testing.T) {
	buf := []byte("2024-01-01 00:00:00XYZ")

	_, err := Decode(buf, 19)

	require.ErrorIs(t, err, ErrMalformedNativeOutput)
	require.Contains(t, err.Error(), "offset 19")
}

func TestDecode_InteriorNul(t *testing.T) {
	buf := []byte("2024-01\x0001 00:00:00\x00")

	_, err := Decode(buf, 19)

	require.ErrorIs(t, err, ErrMalformedNativeOutput)
	require.Contains(t, err.Error(), "interior nul at offset 7")
}

func TestDecode_LengthOutsideBuffer(t *testing.T) {
	buf := []byte("2024")

	_, err := Decode(buf, 4)
	require.ErrorIs(t, err, ErrMalformedNativeOutput)

	_, err = Decode(buf, 4096)
	require.ErrorIs(t, err, ErrMalformedNativeOutput)
}

func TestDecode_LossyUTF8(t *testing.T) {
	buf := []byte("2024\xff01\x00")

	text, err := Decode(buf, 7)

	require.NoError(t, err)
	require.Equal(t, "2024\uFFFD01", text)
}

func TestDecode_TruncatedRuneAtEnd(t *testing.T) {
	buf := []byte("abc\xe2\x82\x00")

	text, err := Decode(buf, 5)

	require.NoError(t, err)
	require.True(t, utf8.ValidString(text))
	require.True(t, strings.HasPrefix(text, "abc"))
	require.Contains(t, text, "\uFFFD")
}

func TestRead_NativeSourceFits(t *testing.T) {
	for _, capacity := range []int{len(native.Layout) + 1, 32, 256, DefaultCapacity, 8192} {
		text, err := Read(NativeSource, capacity)

		require.NoError(t, err, "capacity %d", capacity)
		require.NotEmpty(t, text)
		_, err = time.ParseInLocation(native.Layout, text, time.Local)
		require.NoError(t, err)
	}
}

func TestRead_NativeSourceTooSmall(t *testing.T) {
	for capacity := 0; capacity <= len(native.Layout); capacity++ {
		_, err := Read(NativeSource, capacity)

		require.ErrorIs(t, err, ErrNativeCallFailed, "capacity %d", capacity)
	}
}

func TestRead_NegativeCapacity(t *testing.T) {
	_, err := Read(NativeSource, -1)

	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNativeCallFailed)
}

func TestRead_StubScenario(t *testing.T) {
	text, err := Read(fixedSource("2024-01-01 00:00:00", 19), DefaultCapacity)

	require.NoError(t, err)
	require.Equal(t, "2024-01-01 00:00:00", text)
}

func TestRead_StubReturnsZero(t *testing.T) {
	source := SourceFunc(func(buf []byte) uint {
		copy(buf, "2024-01-01 00:00:00\x00")
		return 0
	})

	_, err := Read(source, DefaultCapacity)

	require.ErrorIs(t, err, ErrNativeCallFailed)
}

func TestRead_StubClaimsLengthWithoutTerminator(t *testing.T) {
	source := SourceFunc(func(buf []byte) uint {
		copy(buf, "2024-01-01 00:00:00 and more")
		return 19
	})

	_, err := Read(source, DefaultCapacity)

	require.ErrorIs(t, err, ErrMalformedNativeOutput)
}

func TestRead_StubClaimsMoreThanCapacity(t *testing.T) {
	source := SourceFunc(func(buf []byte) uint {
		return uint(len(buf)) + 10
	})

	_, err := Read(source, 16)

	require.ErrorIs(t, err, ErrMalformedNativeOutput)
}

func TestRead_SuccessiveCallsNonDecreasing(t *testing.T) {
	first, err := Read(NativeSource, DefaultCapacity)
	require.NoError(t, err)

	second, err := Read(NativeSource, DefaultCapacity)
	require.NoError(t, err)

	require.LessOrEqual(t, first, second)

	a, err := time.ParseInLocation(native.Layout, first, time.Local)
	require.NoError(t, err)
	b, err := time.ParseInLocation(native.Layout, second, time.Local)
	require.NoError(t, err)
	require.False(t, b.Before(a))
}
