package transport

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// LatencyCapacity bounds the number of queued latency entries.
	LatencyCapacity = 256
	// LatencyEntriesPerRequest bounds the entries emitted on one request.
	LatencyEntriesPerRequest = 3

	latencyHeader = "x-ms-adl-client-latency"
)

// LatencyTracker queues per-attempt latency records and hands a few of them
// to each outgoing request as a diagnostic header. When the queue is full new
// records are dropped.
type LatencyTracker struct {
	mu       sync.Mutex
	entries  [LatencyCapacity]string
	head     int
	count    int
	disabled bool
	clientID string
}

// NewLatencyTracker creates an enabled tracker. clientID is appended to every
// record.
func NewLatencyTracker(clientID string) *LatencyTracker {
	return &LatencyTracker{clientID: clientID}
}

// Add queues one record of the form
// id.attempt,latencyMs,error,opcode,bytes,clientId.
func (t *LatencyTracker) Add(requestID string, attempt int, latency time.Duration, errText, opName string, bytes int64) {
	if t == nil {
		return
	}

	line := fmt.Sprintf("%s.%d,%d,%s,%s,%d,%s",
		requestID, attempt, latency.Milliseconds(), sanitizeLatencyField(errText), opName, bytes, t.clientID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disabled || t.count == LatencyCapacity {
		return
	}
	t.entries[(t.head+t.count)%LatencyCapacity] = line
	t.count++
}

// Next dequeues up to LatencyEntriesPerRequest records joined by ';'. It
// returns "" when nothing is queued.
func (t *LatencyTracker) Next() string {
	if t == nil {
		return ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disabled || t.count == 0 {
		return ""
	}

	n := t.count
	if n > LatencyEntriesPerRequest {
		n = LatencyEntriesPerRequest
	}
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		lines[i] = t.entries[t.head]
		t.entries[t.head] = ""
		t.head = (t.head + 1) % LatencyCapacity
	}
	t.count -= n
	return strings.Join(lines, ";")
}

// Disable clears the queue and stops recording.
func (t *LatencyTracker) Disable() {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.disabled = true
	t.entries = [LatencyCapacity]string{}
	t.head = 0
	t.count = 0
}

// Enabled reports whether records are being collected.
func (t *LatencyTracker) Enabled() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.disabled
}

// Len returns the number of queued records.
func (t *LatencyTracker) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func sanitizeLatencyField(s string) string {
	return strings.NewReplacer(",", " ", ";", " ", "\n", " ").Replace(s)
}
