package stream

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/objectfs/webhdfs/internal/buffer"
	"github.com/objectfs/webhdfs/internal/core"
	"github.com/objectfs/webhdfs/internal/transport"
	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/types"
)

// InputStream reads a remote file through a window of at most capacity
// bytes. The window covers [bufferStart, bufferStart+bufferSize) and
// bufferPointer is the read cursor inside it.
type InputStream struct {
	ctx       context.Context
	exec      *transport.Executor
	path      string
	length    int64
	sessionID string
	capacity  int
	logger    *slog.Logger

	buf           []byte
	filePointer   int64
	bufferStart   int64
	bufferPointer int
	bufferSize    int
	closed        bool
}

// OpenInput stats path and returns a stream positioned at offset zero.
// ctx governs every request the stream makes.
func OpenInput(ctx context.Context, exec *transport.Executor, path string, opts Options) (*InputStream, error) {
	entry, err := core.GetFileStatus(ctx, exec, path, types.UserIDDefault, nil)
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "%s is a directory", path).
			WithComponent("stream").
			WithOperation(transport.OpOpen.String()).
			WithPath(path)
	}

	s := &InputStream{
		ctx:       ctx,
		exec:      exec,
		path:      path,
		length:    entry.Length,
		sessionID: uuid.New().String(),
		capacity:  opts.capacity(MaxReadBufferSize),
	}
	s.logger = opts.logger().With("component", "input-stream", "path", path, "session", s.sessionID)
	s.logger.Debug("Opened input stream", "length", s.length, "buffer", s.capacity)
	return s, nil
}

// Read copies at most len(p) bytes from the current window, refilling the
// window with one request when it is exhausted.
func (s *InputStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, errClosed(transport.OpOpen.String(), s.path)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.filePointer >= s.length {
		return 0, io.EOF
	}

	if s.bufferPointer == s.bufferSize {
		n, err := s.fill()
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
	}

	n := copy(p, s.buf[s.bufferPointer:s.bufferSize])
	s.bufferPointer += n
	s.filePointer += int64(n)
	return n, nil
}

func (s *InputStream) fill() (int, error) {
	if s.buf == nil {
		s.buf = buffer.Get(s.capacity)
	}
	n, err := core.Open(s.ctx, s.exec, core.OpenRequest{
		Path:      s.path,
		Offset:    s.filePointer,
		Length:    s.length - s.filePointer,
		SessionID: s.sessionID,
	}, s.buf, nil)

	// A failed refill leaves an empty window at the current position.
	s.bufferStart = s.filePointer
	s.bufferPointer = 0
	s.bufferSize = 0
	if err != nil {
		return 0, err
	}
	s.bufferSize = n
	return n, nil
}

// Seek moves the read position. Positions outside [0, Length] fail and
// leave the position unchanged. Seeking within the current window does
// not discard it.
func (s *InputStream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, errClosed("SEEK", s.path)
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.filePointer + offset
	case io.SeekEnd:
		pos = s.length + offset
	default:
		return s.filePointer, errors.Newf(errors.ErrCodeInvalidArgument, "invalid whence %d", whence).
			WithComponent("stream").WithOperation("SEEK").WithPath(s.path)
	}
	if pos < 0 || pos > s.length {
		return s.filePointer, errors.Newf(errors.ErrCodeInvalidOffset, "seek to %d outside [0, %d]", pos, s.length).
			WithComponent("stream").WithOperation("SEEK").WithPath(s.path)
	}

	if pos >= s.bufferStart && pos <= s.bufferStart+int64(s.bufferSize) {
		s.bufferPointer = int(pos - s.bufferStart)
	} else {
		s.bufferPointer = 0
		s.bufferSize = 0
	}
	s.filePointer = pos
	return pos, nil
}

// ReadAt reads len(p) bytes at off without using or changing the stream's
// window or position. It is safe to call concurrently.
func (s *InputStream) ReadAt(p []byte, off int64) (int, error) {
	if s.closed {
		return 0, errClosed(transport.OpOpen.String(), s.path)
	}
	if off < 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidOffset, "offset %d must be non-negative", off).
			WithComponent("stream").WithOperation(transport.OpOpen.String()).WithPath(s.path)
	}

	total := 0
	for total < len(p) {
		pos := off + int64(total)
		if pos >= s.length {
			return total, io.EOF
		}
		n, err := core.Open(s.ctx, s.exec, core.OpenRequest{
			Path:      s.path,
			Offset:    pos,
			Length:    s.length - pos,
			SessionID: s.sessionID,
		}, p[total:], nil)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

// Length returns the file length observed when the stream was opened.
func (s *InputStream) Length() int64 {
	return s.length
}

// Position returns the offset of the next byte Read returns.
func (s *InputStream) Position() int64 {
	return s.filePointer
}

// Close releases the buffer. Further calls fail with ErrCodeStreamClosed.
func (s *InputStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	buffer.Put(s.buf)
	s.buf = nil
	s.bufferPointer, s.bufferSize = 0, 0
	s.logger.Debug("Closed input stream", "position", s.filePointer)
	return nil
}

var (
	_ io.ReadSeekCloser = (*InputStream)(nil)
	_ io.ReaderAt       = (*InputStream)(nil)
)
