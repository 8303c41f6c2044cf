package types

import (
	"context"
	"time"
)

// Lister enumerates the immediate children of a directory, following
// pagination until the listing is complete.
type Lister interface {
	ListAll(ctx context.Context, path string) ([]DirectoryEntry, error)
}

// MetricsRecorder receives one observation per physical HTTP attempt and
// per completed client-side aggregation.
type MetricsRecorder interface {
	RecordAttempt(operation string, httpStatus int, duration time.Duration, size int64, err error)
	RecordRetry(operation string)
	RecordSummary(directories, files int64)
}
