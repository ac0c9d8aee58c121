// Package hostfuncs lends the native clock to WASM plugins, which cannot
// format local time on their own under WASI.
package hostfuncs

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/kalo-build/kalo-now/pkg/timestamp"
)

// HostModuleName is the module guests import host functions from.
const HostModuleName = "kalo"

// NowHost provides the native time source to WASM plugins. WASI guests have
// no localtime or strftime, so the host formats the time on their behalf
// using the same buffer contract as the C now function.
type NowHost struct {
	source timestamp.Source
	logger hclog.Logger
}

// NewNowHost creates a NowHost backed by source, or by the C implementation
// when source is nil.
func NewNowHost(source timestamp.Source, logger hclog.Logger) *NowHost {
	if source == nil {
		source = timestamp.NativeSource
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &NowHost{
		source: source,
		logger: logger,
	}
}

// Register instantiates the "kalo" module on r, exporting now and
// system_now for guests to import.
func (h *NowHost) Register(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder(HostModuleName).
		NewFunctionBuilder().
		WithFunc(h.now).
		WithParameterNames("buf_ptr", "buf_len").
		WithResultNames("written").
		Export("now").
		NewFunctionBuilder().
		WithFunc(systemNow).
		WithResultNames("unix_nanos").
		Export("system_now").
		Instantiate(ctx)

	return err
}

// guestRange returns the guest memory view for [ptr, ptr+length), or false
// if the module has no memory or the range is out of bounds.
func guestRange(m api.Module, ptr, length uint32) ([]byte, bool) {
	mem := m.Memory()
	if mem == nil {
		return nil, false
	}

	return mem.Read(ptr, length)
}
