// Package core implements one function per webhdfs REST operation on top of
// the transport executor: parameter encoding, default retry policies,
// argument validation and conversion of failed responses into errors.
package core

import (
	"context"
	stderr "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/objectfs/webhdfs/internal/transport"
	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/retry"
)

// BadOffsetException is the remote exception returned when an append is
// sent at an offset other than the current file length.
const BadOffsetException = "BadOffsetException"

var (
	permissionPattern = regexp.MustCompile(`^[0-7]{3,4}$`)
	fsActionPattern   = regexp.MustCompile(`^[r-][w-][x-]$`)
)

type policyKind int

const (
	policyExponential policyKind = iota
	policyNonIdempotent
	policyNone
)

// withDefaults returns a copy of opts whose retry policy is filled in with
// the operation's default when the caller did not choose one.
func withDefaults(exec *transport.Executor, opts *transport.RequestOptions, kind policyKind) *transport.RequestOptions {
	var o transport.RequestOptions
	if opts != nil {
		o = *opts
	}
	if o.RetryPolicy == nil {
		switch kind {
		case policyExponential:
			o.RetryPolicy = retry.NewExponential(exec.RetryConfig())
		case policyNonIdempotent:
			o.RetryPolicy = retry.NewNonIdempotent(exec.RetryConfig())
		default:
			o.RetryPolicy = retry.NewNoRetry()
		}
	}
	return &o
}

// execute runs op and converts any failure into an error.
func execute(
	ctx context.Context,
	exec *transport.Executor,
	op transport.Operation,
	path string,
	payload transport.Payload,
	respBuf []byte,
	params *transport.QueryParams,
	opts *transport.RequestOptions,
	kind policyKind,
) ([]byte, int, *transport.OperationResponse, error) {
	resp := &transport.OperationResponse{}
	body, n, err := exec.Execute(ctx, op, path, payload, respBuf, params, withDefaults(exec, opts, kind), resp)
	if err != nil {
		return nil, 0, resp, err
	}
	if !resp.Successful() {
		return nil, 0, resp, ToError(op, path, resp)
	}
	return body, n, resp, nil
}

// ToError converts a failed response into a *errors.StoreError carrying the
// full transport outcome.
func ToError(op transport.Operation, path string, resp *transport.OperationResponse) *errors.StoreError {
	var e *errors.StoreError
	if resp.Canceled {
		e = errors.Canceled(op.String(), resp.Err)
	} else {
		e = errors.NewError(classify(resp), errorMessage(resp)).
			WithOperation(op.String()).
			WithCause(resp.Err)
	}

	e.WithPath(path).WithComponent("core")
	e.RequestID = resp.RequestID
	e.HTTPStatus = resp.HTTPStatus
	e.RemoteExceptionName = resp.RemoteExceptionName
	e.RemoteExceptionMessage = resp.RemoteExceptionMessage
	e.RemoteExceptionClass = resp.RemoteExceptionClass
	e.TraceID = resp.TraceID
	e.LastLatency = resp.LastLatency
	e.Attempts = append(errors.AttemptLog(nil), resp.Attempts...)
	if resp.NumRetries > 0 {
		e.WithDetail("retries", resp.NumRetries)
	}
	return e
}

func classify(resp *transport.OperationResponse) errors.ErrorCode {
	switch name := resp.RemoteExceptionName; {
	case name == "FileNotFoundException":
		return errors.ErrCodeFileNotFound
	case name == "FileAlreadyExistsException":
		return errors.ErrCodeAlreadyExists
	case name == BadOffsetException:
		return errors.ErrCodeBadOffset
	case name == "AccessControlException" || name == "SecurityException":
		return errors.ErrCodeAccessDenied
	case strings.Contains(name, "Lease") || name == "ConcurrentWriteException":
		return errors.ErrCodeLeaseConflict
	case name == "ThrottledException":
		return errors.ErrCodeThrottled
	}

	switch status := resp.HTTPStatus; {
	case status == 404:
		return errors.ErrCodeFileNotFound
	case status == 403:
		return errors.ErrCodeAccessDenied
	case status == 401:
		return errors.ErrCodeAuthenticationFailed
	case status == 409:
		return errors.ErrCodeAlreadyExists
	case status == 429:
		return errors.ErrCodeThrottled
	case status == 408:
		return errors.ErrCodeOperationTimeout
	case status >= 500:
		return errors.ErrCodeServiceUnavailable
	case status >= 300:
		return errors.ErrCodeRemoteError
	}

	if resp.Err != nil {
		if storeErr, ok := errors.AsStoreError(resp.Err); ok {
			return storeErr.Code
		}
		if stderr.Is(resp.Err, context.DeadlineExceeded) {
			return errors.ErrCodeConnectionTimeout
		}
		if retry.IsConnectionRefused(resp.Err) {
			return errors.ErrCodeConnectionFailed
		}
		return errors.ErrCodeNetworkError
	}
	if resp.Message != "" {
		return errors.ErrCodeResponseDecode
	}
	return errors.ErrCodeOperationFailed
}

func errorMessage(resp *transport.OperationResponse) string {
	switch {
	case resp.RemoteExceptionMessage != "":
		return resp.RemoteExceptionMessage
	case resp.Message != "":
		return resp.Message
	case resp.Err != nil:
		return resp.Err.Error()
	case resp.HTTPMessage != "":
		return resp.HTTPMessage
	default:
		return fmt.Sprintf("operation failed with http status %d", resp.HTTPStatus)
	}
}

// decodeFailure marks resp as failed by the client and returns the error.
func decodeFailure(op transport.Operation, path string, resp *transport.OperationResponse, err error) error {
	resp.Message = fmt.Sprintf("unexpected response body: %v", err)
	resp.Err = nil
	return ToError(op, path, resp).WithCause(err)
}

func validatePath(op transport.Operation, path string) error {
	if path == "" {
		return errors.NewError(errors.ErrCodeInvalidPath, "path cannot be empty").
			WithOperation(op.String())
	}
	if !strings.HasPrefix(path, "/") {
		return errors.Newf(errors.ErrCodeInvalidPath, "path %q must be absolute", path).
			WithOperation(op.String()).WithPath(path)
	}
	return nil
}

func validatePermission(op transport.Operation, path, octal string) error {
	if octal == "" || permissionPattern.MatchString(octal) {
		return nil
	}
	return errors.Newf(errors.ErrCodeInvalidPermission, "permission %q is not an octal string", octal).
		WithOperation(op.String()).WithPath(path)
}

func validateOffset(op transport.Operation, path string, name string, v int64) error {
	if v >= 0 {
		return nil
	}
	return errors.Newf(errors.ErrCodeInvalidOffset, "%s %d must be non-negative", name, v).
		WithOperation(op.String()).WithPath(path)
}
