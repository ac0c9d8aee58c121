package timestamp

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Capacity is the size of the first buffer handed to the source.
	Capacity int

	// MaxCapacity enables grow-and-retry: while the source reports zero bytes
	// written, the buffer is doubled up to MaxCapacity. Values not above
	// Capacity disable retries.
	MaxCapacity int

	// Logger receives debug output about retries.
	Logger hclog.Logger
}

// Reader reads timestamps from a Source.
type Reader struct {
	source  Source
	options ReaderOptions
}

// NewReader creates a reader over source, or over NativeSource when source
// is nil.
func NewReader(source Source, options *ReaderOptions) *Reader {
	opts := ReaderOptions{
		Capacity: DefaultCapacity,
		Logger:   hclog.NewNullLogger(),
	}

	if options != nil {
		if options.Capacity != 0 {
			opts.Capacity = options.Capacity
		}

		opts.MaxCapacity = options.MaxCapacity

		if options.Logger != nil {
			opts.Logger = options.Logger
		}
	}

	if source == nil {
		source = NativeSource
	}

	return &Reader{
		source:  source,
		options: opts,
	}
}

// Read returns the current timestamp text. Malformed output is never
// retried.
func (r *Reader) Read() (string, error) {
	capacity := r.options.Capacity

	for {
		text, err := Read(r.source, capacity)
		if err == nil {
			return text, nil
		}

		if !errors.Is(err, ErrNativeCallFailed) || capacity >= r.options.MaxCapacity {
			return "", fmt.Errorf("read timestamp with %d byte buffer: %w", capacity, err)
		}

		next := min(max(capacity*2, 1), r.options.MaxCapacity)
		r.options.Logger.Debug("native call reported zero bytes, growing buffer",
			"capacity", capacity, "next", next)
		capacity = next
	}
}

// Now reads the current local time from the C source with a
// DefaultCapacity buffer and no retries.
func Now() (string, error) {
	return NewReader(nil, nil).Read()
}
