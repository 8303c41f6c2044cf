package core

import (
	"context"
	"strings"

	"github.com/objectfs/webhdfs/internal/transport"
	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/types"
)

// CreateRequest describes a CREATE call.
type CreateRequest struct {
	Path         string
	Overwrite    bool
	Permission   string
	LeaseID      string
	SessionID    string
	CreateParent bool
	Data         transport.Payload
	SyncFlag     types.SyncFlag
}

// Create creates a file, optionally with initial content. Without overwrite
// the default policy never retries, so a transient failure cannot surface
// as a spurious "already exists".
func Create(ctx context.Context, exec *transport.Executor, req CreateRequest, opts *transport.RequestOptions) error {
	if err := validatePath(transport.OpCreate, req.Path); err != nil {
		return err
	}
	if err := validatePermission(transport.OpCreate, req.Path, req.Permission); err != nil {
		return err
	}

	params := transport.NewQueryParams().
		SetBool("overwrite", req.Overwrite).
		SetIfNotEmpty("permission", req.Permission).
		SetIfNotEmpty("leaseid", req.LeaseID).
		SetIfNotEmpty("filesessionid", req.SessionID).
		SetBool("CreateParent", req.CreateParent).
		SetBool("write", true).
		Set("syncFlag", req.SyncFlag.String())

	kind := policyNone
	if req.Overwrite {
		kind = policyExponential
	}
	_, _, _, err := execute(ctx, exec, transport.OpCreate, req.Path, req.Data, nil, params, opts, kind)
	return err
}

// AppendRequest describes an APPEND call at an explicit offset.
type AppendRequest struct {
	Path      string
	Offset    int64
	Data      transport.Payload
	LeaseID   string
	SessionID string
	SyncFlag  types.SyncFlag
}

// Append appends data at req.Offset. It returns the response so callers can
// inspect the attempt history of a failure.
func Append(ctx context.Context, exec *transport.Executor, req AppendRequest, opts *transport.RequestOptions) (*transport.OperationResponse, error) {
	if err := validatePath(transport.OpAppend, req.Path); err != nil {
		return nil, err
	}
	if err := validateOffset(transport.OpAppend, req.Path, "offset", req.Offset); err != nil {
		return nil, err
	}

	params := transport.NewQueryParams().
		SetBool("append", true).
		SetInt("offset", req.Offset).
		SetIfNotEmpty("leaseid", req.LeaseID).
		SetIfNotEmpty("filesessionid", req.SessionID).
		Set("syncFlag", req.SyncFlag.String())

	_, _, resp, err := execute(ctx, exec, transport.OpAppend, req.Path, req.Data, nil, params, opts, policyExponential)
	return resp, err
}

// ConcurrentAppend appends data at whatever the end of the file is when the
// server applies it. Multiple writers may append concurrently.
func ConcurrentAppend(ctx context.Context, exec *transport.Executor, path string, autoCreate bool, data []byte, opts *transport.RequestOptions) error {
	if err := validatePath(transport.OpConcurrentAppend, path); err != nil {
		return err
	}

	params := transport.NewQueryParams()
	if autoCreate {
		params.Set("appendMode", "autocreate")
	}
	_, _, _, err := execute(ctx, exec, transport.OpConcurrentAppend, path, transport.BytesPayload(data), nil, params, opts, policyNonIdempotent)
	return err
}

// OpenRequest describes an OPEN call reading up to Length bytes at Offset.
type OpenRequest struct {
	Path      string
	Offset    int64
	Length    int64
	SessionID string
}

// Open reads into buf and returns the number of bytes read. At most
// min(req.Length, len(buf)) bytes are requested.
func Open(ctx context.Context, exec *transport.Executor, req OpenRequest, buf []byte, opts *transport.RequestOptions) (int, error) {
	if err := validatePath(transport.OpOpen, req.Path); err != nil {
		return 0, err
	}
	if err := validateOffset(transport.OpOpen, req.Path, "offset", req.Offset); err != nil {
		return 0, err
	}
	if err := validateOffset(transport.OpOpen, req.Path, "length", req.Length); err != nil {
		return 0, err
	}

	length := req.Length
	if length > int64(len(buf)) {
		length = int64(len(buf))
	}
	if length == 0 {
		return 0, nil
	}

	params := transport.NewQueryParams().
		SetBool("read", true).
		SetInt("offset", req.Offset).
		SetInt("length", length).
		SetIfNotEmpty("filesessionid", req.SessionID)

	_, n, _, err := execute(ctx, exec, transport.OpOpen, req.Path, transport.Payload{}, buf[:length], params, opts, policyExponential)
	return n, err
}

// Concat appends the sources to path in order and deletes them.
func Concat(ctx context.Context, exec *transport.Executor, path string, sources []string, opts *transport.RequestOptions) error {
	if err := validatePath(transport.OpConcat, path); err != nil {
		return err
	}
	if err := validateSources(transport.OpConcat, path, sources); err != nil {
		return err
	}

	params := transport.NewQueryParams().Set("sources", strings.Join(sources, ","))
	_, _, _, err := execute(ctx, exec, transport.OpConcat, path, transport.Payload{}, nil, params, opts, policyNonIdempotent)
	return err
}

// MsConcat concatenates sources into path with the source list carried in the
// request body. deleteSourceDir removes the sources' parent directory.
func MsConcat(ctx context.Context, exec *transport.Executor, path string, sources []string, deleteSourceDir bool, opts *transport.RequestOptions) error {
	if err := validatePath(transport.OpMsConcat, path); err != nil {
		return err
	}
	if err := validateSources(transport.OpMsConcat, path, sources); err != nil {
		return err
	}

	params := transport.NewQueryParams()
	if deleteSourceDir {
		params.SetBool("deleteSourceDirectory", true)
	}
	body := []byte("sources=" + strings.Join(sources, ","))
	_, _, _, err := execute(ctx, exec, transport.OpMsConcat, path, transport.BytesPayload(body), nil, params, opts, policyNonIdempotent)
	return err
}

func validateSources(op transport.Operation, path string, sources []string) error {
	if len(sources) == 0 {
		return errors.NewError(errors.ErrCodeInvalidArgument, "at least one source is required").
			WithOperation(op.String()).WithPath(path)
	}
	for _, src := range sources {
		if err := validatePath(op, src); err != nil {
			return err
		}
		if strings.Contains(src, ",") {
			return errors.Newf(errors.ErrCodeInvalidPath, "source %q contains a comma", src).
				WithOperation(op.String()).WithPath(path)
		}
	}
	return nil
}
