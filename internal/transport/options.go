package transport

import (
	"time"

	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/retry"
)

// RequestOptions configures one logical operation. A RequestOptions must not
// be shared by concurrent operations since the retry policy counts attempts.
type RequestOptions struct {
	// RetryPolicy decides whether failed attempts are repeated. Nil means
	// no retries.
	RetryPolicy retry.Policy

	// Timeout bounds each physical attempt. Zero uses the executor default.
	Timeout time.Duration

	// RequestID correlates the attempts of the operation. A random id is
	// generated when empty; each attempt is tagged "<id>.<attempt>".
	RequestID string
}

// Payload is a view of Length bytes of Data starting at Offset. The
// executor never retains it beyond the call.
type Payload struct {
	Data   []byte
	Offset int
	Length int

	// Encoding is sent as Content-Encoding when non-empty.
	Encoding string
}

// BytesPayload returns a payload covering all of b.
func BytesPayload(b []byte) Payload {
	return Payload{Data: b, Length: len(b)}
}

// Bytes returns the viewed slice.
func (p Payload) Bytes() []byte {
	if p.Length == 0 {
		return nil
	}
	return p.Data[p.Offset : p.Offset+p.Length]
}

func (p Payload) validate() error {
	if p.Offset < 0 || p.Length < 0 {
		return errors.Newf(errors.ErrCodeInvalidArgument,
			"payload offset %d and length %d must be non-negative", p.Offset, p.Length)
	}
	if p.Offset+p.Length > len(p.Data) {
		return errors.Newf(errors.ErrCodeInvalidArgument,
			"payload range [%d, %d) exceeds buffer of %d bytes", p.Offset, p.Offset+p.Length, len(p.Data))
	}
	return nil
}
