package hostfuncs

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/kalo-build/kalo-now/pkg/timestamp"
)

// now implements kalo.now(buf_ptr, buf_len) -> written for guests. The host
// source fills a private buffer; only a validated, nul-terminated result is
// copied into guest memory. Any failure returns 0 and leaves guest memory
// untouched.
func (h *NowHost) now(ctx context.Context, m api.Module, ptr, length uint32) uint32 {
	if length == 0 {
		return 0
	}

	if _, ok := guestRange(m, ptr, length); !ok {
		h.logger.Debug("now: buffer outside guest memory", "ptr", ptr, "len", length)
		return 0
	}

	buf := make([]byte, length)
	n := h.source.Now(buf)
	if _, err := timestamp.Decode(buf, n); err != nil {
		h.logger.Debug("now: source failed", "len", length, "error", err)
		return 0
	}

	if !m.Memory().Write(ptr, buf[:n+1]) {
		return 0
	}

	return uint32(n)
}

// systemNow implements kalo.system_now: wall-clock Unix nanoseconds, for
// guests that need the instant rather than local-time text.
func systemNow(context.Context) int64 {
	return time.Now().UnixNano()
}
