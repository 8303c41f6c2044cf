package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/objectfs/webhdfs/internal/buffer"
	"github.com/objectfs/webhdfs/internal/core"
	"github.com/objectfs/webhdfs/internal/transport"
	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/types"
)

// OutputStream writes a remote file through lease-protected appends.
// filePointer counts bytes the server has acknowledged; buf[:bufferSize]
// holds data not yet sent.
type OutputStream struct {
	ctx      context.Context
	exec     *transport.Executor
	path     string
	leaseID  string
	capacity int
	logger   *slog.Logger

	buf            []byte
	bufferSize     int
	filePointer    int64
	metadataSynced bool
	closed         bool
}

// CreateOptions configures CreateOutput.
type CreateOptions struct {
	Options

	Overwrite bool
	// Permission is an octal string such as "644"; empty uses the server
	// default.
	Permission string
}

// CreateOutput creates path, including missing parents, and returns a
// stream positioned at offset zero holding the file's lease.
func CreateOutput(ctx context.Context, exec *transport.Executor, path string, opts CreateOptions) (*OutputStream, error) {
	s := newOutput(ctx, exec, path, opts.Options)
	err := core.Create(ctx, exec, core.CreateRequest{
		Path:         path,
		Overwrite:    opts.Overwrite,
		Permission:   opts.Permission,
		LeaseID:      s.leaseID,
		SessionID:    s.leaseID,
		CreateParent: true,
		SyncFlag:     types.SyncData,
	}, nil)
	if err != nil {
		return nil, err
	}
	s.metadataSynced = true
	s.logger.Debug("Created output stream", "overwrite", opts.Overwrite, "buffer", s.capacity)
	return s, nil
}

// AppendOutput returns a stream that appends to the existing file at path.
func AppendOutput(ctx context.Context, exec *transport.Executor, path string, opts Options) (*OutputStream, error) {
	entry, err := core.GetFileStatus(ctx, exec, path, types.UserIDDefault, nil)
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "%s is a directory", path).
			WithComponent("stream").
			WithOperation(transport.OpAppend.String()).
			WithPath(path)
	}

	s := newOutput(ctx, exec, path, opts)
	s.filePointer = entry.Length
	s.metadataSynced = true
	s.logger.Debug("Opened output stream for append", "offset", s.filePointer, "buffer", s.capacity)
	return s, nil
}

func newOutput(ctx context.Context, exec *transport.Executor, path string, opts Options) *OutputStream {
	s := &OutputStream{
		ctx:      ctx,
		exec:     exec,
		path:     path,
		leaseID:  uuid.New().String(),
		capacity: opts.capacity(MaxWriteBufferSize),
	}
	s.logger = opts.logger().With("component", "output-stream", "path", path, "lease", s.leaseID)
	return s
}

// Write buffers p. A write no larger than the buffer capacity is always
// sent in a single append. Larger writes are sent in capacity-sized
// appends. On error n counts the bytes accepted, including any still
// pending in the buffer.
func (s *OutputStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errClosed(transport.OpAppend.String(), s.path)
	}
	if s.buf == nil {
		s.buf = buffer.Get(s.capacity)
	}

	written := 0
	if s.bufferSize+len(p) > s.capacity {
		if len(p) <= s.capacity {
			if err := s.flush(types.SyncData); err != nil {
				return 0, err
			}
		} else {
			for s.bufferSize+len(p)-written > s.capacity {
				n := copy(s.buf[s.bufferSize:s.capacity], p[written:])
				s.bufferSize += n
				written += n
				if err := s.flush(types.SyncData); err != nil {
					return written, err
				}
			}
		}
	}

	n := copy(s.buf[s.bufferSize:], p[written:])
	s.bufferSize += n
	return written + n, nil
}

// Flush sends pending data and makes the file length visible to metadata
// queries. It does nothing when there is no pending data and the
// metadata is already current.
func (s *OutputStream) Flush() error {
	if s.closed {
		return errClosed(transport.OpAppend.String(), s.path)
	}
	return s.flush(types.SyncMetadata)
}

// Close sends pending data, publishes the final length and releases the
// lease. A failed Close leaves the stream open so it can be retried.
func (s *OutputStream) Close() error {
	if s.closed {
		return nil
	}
	if err := s.flush(types.SyncClose); err != nil {
		return err
	}
	s.closed = true
	buffer.Put(s.buf)
	s.buf = nil
	s.logger.Debug("Closed output stream", "length", s.filePointer)
	return nil
}

// FilePointer returns the number of bytes the server has acknowledged.
func (s *OutputStream) FilePointer() int64 {
	return s.filePointer
}

// Buffered returns the number of bytes waiting to be sent.
func (s *OutputStream) Buffered() int {
	return s.bufferSize
}

// LeaseID returns the lease held by the stream.
func (s *OutputStream) LeaseID() string {
	return s.leaseID
}

func (s *OutputStream) flush(flag types.SyncFlag) error {
	if s.bufferSize == 0 && flag == types.SyncMetadata && s.metadataSynced {
		return nil
	}

	var data []byte
	if s.bufferSize > 0 {
		data = s.buf[:s.bufferSize]
	}
	resp, err := core.Append(s.ctx, s.exec, core.AppendRequest{
		Path:      s.path,
		Offset:    s.filePointer,
		Data:      transport.BytesPayload(data),
		LeaseID:   s.leaseID,
		SessionID: s.leaseID,
		SyncFlag:  flag,
	}, nil)
	if err != nil {
		if !s.recoverBadOffset(resp) {
			return err
		}
		s.advance()
		s.metadataSynced = false
		return nil
	}

	s.advance()
	s.metadataSynced = flag != types.SyncData
	return nil
}

func (s *OutputStream) advance() {
	s.filePointer += int64(s.bufferSize)
	s.bufferSize = 0
}

// recoverBadOffset resolves an append whose retry was rejected because an
// earlier attempt already landed. A zero-length append at the expected end
// of file succeeds only if the server holds exactly the data we sent.
func (s *OutputStream) recoverBadOffset(resp *transport.OperationResponse) bool {
	if resp == nil || resp.NumRetries < 1 ||
		resp.HTTPStatus != http.StatusBadRequest ||
		resp.RemoteExceptionName != core.BadOffsetException {
		return false
	}

	expected := s.filePointer + int64(s.bufferSize)
	_, err := core.Append(s.ctx, s.exec, core.AppendRequest{
		Path:      s.path,
		Offset:    expected,
		LeaseID:   s.leaseID,
		SessionID: s.leaseID,
		SyncFlag:  types.SyncData,
	}, nil)
	if err != nil {
		s.logger.Debug("Bad offset probe failed", "offset", expected, "error", err)
		return false
	}

	s.logger.Warn("Recovered append rejected after retry",
		"offset", s.filePointer,
		"bytes", s.bufferSize,
		"attempts", resp.Attempts.String())
	return true
}

var _ io.WriteCloser = (*OutputStream)(nil)
