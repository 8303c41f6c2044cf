package errors

import (
	"fmt"
	"strings"
	"time"
)

// AttemptRecord is the outcome of one physical HTTP attempt.
type AttemptRecord struct {
	Attempt             int           `json:"attempt"`
	HTTPStatus          int           `json:"http_status"`
	Error               string        `json:"error,omitempty"`
	RemoteExceptionName string        `json:"remote_exception,omitempty"`
	Latency             time.Duration `json:"latency"`
}

// String formats the record the way it appears in the attempt history.
func (r AttemptRecord) String() string {
	switch {
	case r.RemoteExceptionName != "":
		return fmt.Sprintf("HTTP%d(%s)", r.HTTPStatus, r.RemoteExceptionName)
	case r.Error != "":
		if r.HTTPStatus != 0 {
			return fmt.Sprintf("HTTP%d(%s)", r.HTTPStatus, r.Error)
		}
		return r.Error
	default:
		return fmt.Sprintf("HTTP%d", r.HTTPStatus)
	}
}

// AttemptLog is the ordered history of failed attempts of one logical
// operation. It is never reset between retries.
type AttemptLog []AttemptRecord

// String renders the log as a comma separated history.
func (l AttemptLog) String() string {
	parts := make([]string, 0, len(l))
	for _, r := range l {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}

// Last returns the most recent record, if any.
func (l AttemptLog) Last() (AttemptRecord, bool) {
	if len(l) == 0 {
		return AttemptRecord{}, false
	}
	return l[len(l)-1], true
}
