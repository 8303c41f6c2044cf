package transport

import (
	"time"

	"github.com/objectfs/webhdfs/pkg/errors"
)

// OperationResponse accumulates the outcome of one logical operation across
// all of its physical attempts. Create a fresh one per operation.
type OperationResponse struct {
	// Outcome of the last attempt
	HTTPStatus             int
	HTTPMessage            string
	RemoteExceptionName    string
	RemoteExceptionMessage string
	RemoteExceptionClass   string
	TraceID                string
	RequestID              string
	ContentLength          int64
	LastLatency            time.Duration

	// Err is a failure captured inside the attempt: an unreachable host, an
	// attempt timeout, a body that could not be read.
	Err error

	// Message is an error set by the client itself, e.g. a failed argument
	// check or an undecodable response.
	Message string

	// Canceled is set when the operation stopped because its context ended.
	Canceled bool

	// Kept across attempts
	Attempts   errors.AttemptLog
	NumRetries int
}

// Successful reports whether the last attempt succeeded: no error, no
// client-set message, no remote exception and a status in [100, 300).
func (r *OperationResponse) Successful() bool {
	return r.Err == nil &&
		r.Message == "" &&
		r.RemoteExceptionName == "" &&
		!r.Canceled &&
		r.HTTPStatus >= 100 && r.HTTPStatus < 300
}

// resetForAttempt clears the per-attempt fields. The attempt history and
// retry count are kept.
func (r *OperationResponse) resetForAttempt() {
	r.HTTPStatus = 0
	r.HTTPMessage = ""
	r.RemoteExceptionName = ""
	r.RemoteExceptionMessage = ""
	r.RemoteExceptionClass = ""
	r.TraceID = ""
	r.RequestID = ""
	r.ContentLength = -1
	r.LastLatency = 0
	r.Err = nil
	r.Message = ""
}

// record builds the attempt log entry for the current (failed) attempt.
func (r *OperationResponse) record(attempt int) errors.AttemptRecord {
	rec := errors.AttemptRecord{
		Attempt:             attempt,
		HTTPStatus:          r.HTTPStatus,
		RemoteExceptionName: r.RemoteExceptionName,
		Latency:             r.LastLatency,
	}
	switch {
	case r.Err != nil:
		rec.Error = r.Err.Error()
	case r.Message != "":
		rec.Error = r.Message
	case r.RemoteExceptionName == "" && r.HTTPMessage != "":
		rec.Error = r.HTTPMessage
	}
	return rec
}
