// Package stream provides buffered sequential access to remote files: an
// InputStream that reads through a refillable window and an OutputStream
// that batches writes into lease-protected appends.
//
// Streams are not safe for concurrent use, with the exception of
// InputStream.ReadAt, which touches no stream state.
package stream

import (
	"log/slog"

	"github.com/objectfs/webhdfs/pkg/errors"
)

const (
	// DefaultBufferSize is the buffer capacity used when none is configured.
	DefaultBufferSize = 4 << 20

	// MaxReadBufferSize bounds the read window of an InputStream.
	MaxReadBufferSize = 32 << 20

	// MaxWriteBufferSize bounds the pending data of an OutputStream and
	// therefore the size of one append request.
	MaxWriteBufferSize = 4 << 20
)

// Options configures a stream.
type Options struct {
	// BufferSize is the buffer capacity in bytes. Zero selects
	// DefaultBufferSize; other values are clamped to the stream's range.
	BufferSize int

	Logger *slog.Logger
}

func (o Options) capacity(max int) int {
	switch {
	case o.BufferSize == 0:
		if DefaultBufferSize > max {
			return max
		}
		return DefaultBufferSize
	case o.BufferSize < 1:
		return 1
	case o.BufferSize > max:
		return max
	default:
		return o.BufferSize
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func errClosed(op, path string) error {
	return errors.NewError(errors.ErrCodeStreamClosed, "stream is closed").
		WithComponent("stream").
		WithOperation(op).
		WithPath(path)
}
