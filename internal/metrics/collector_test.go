package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"time"

	storeerrors "github.com/objectfs/webhdfs/pkg/errors"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with valid config", func(t *testing.T) {
		config := &Config{Enabled: true, Namespace: "webhdfs", Subsystem: "test"}
		collector, err := NewCollector(config, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.config != config {
			t.Error("collector.config does not match input config")
		}
		if collector.registry == nil || collector.operationCounter == nil {
			t.Error("metrics were not initialized")
		}
	})

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if !collector.config.Enabled || collector.config.Namespace != "webhdfs" {
			t.Errorf("unexpected default config %+v", collector.config)
		}
	})

	t.Run("disabled collector ignores records", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false}, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		collector.RecordAttempt("OPEN", 200, time.Millisecond, 10, nil)
		collector.RecordRetry("OPEN")
		collector.RecordSummary(1, 2)
		if len(collector.GetMetrics()) != 0 {
			t.Error("disabled collector tracked an operation")
		}
		if err := collector.Start(context.Background()); err != nil {
			t.Errorf("Start() error = %v", err)
		}
	})
}

func TestRecordAttempt(t *testing.T) {
	t.Parallel()
	collector, err := NewCollector(&Config{Enabled: true, Namespace: "webhdfs"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	collector.RecordAttempt("APPEND", 503, 20*time.Millisecond, 4096, errors.New("Service Unavailable"))
	collector.RecordRetry("APPEND")
	collector.RecordAttempt("APPEND", 200, 10*time.Millisecond, 4096, nil)

	ops := collector.GetMetrics()
	appendOps, ok := ops["APPEND"]
	if !ok {
		t.Fatal("APPEND not tracked")
	}
	if appendOps.Count != 2 || appendOps.Errors != 1 || appendOps.Retries != 1 {
		t.Errorf("unexpected aggregate %+v", appendOps)
	}
	if appendOps.AvgDuration != 15*time.Millisecond {
		t.Errorf("AvgDuration = %v, want 15ms", appendOps.AvgDuration)
	}
	if appendOps.TotalSize != 8192 {
		t.Errorf("TotalSize = %d, want 8192", appendOps.TotalSize)
	}

	body := scrape(t, collector)
	for _, want := range []string{
		`webhdfs_operations_total{operation="APPEND",status="error"} 1`,
		`webhdfs_operations_total{operation="APPEND",status="success"} 1`,
		`webhdfs_retries_total{operation="APPEND"} 1`,
		`webhdfs_errors_total{operation="APPEND",type="server"} 1`,
		`webhdfs_operation_duration_seconds_count{operation="APPEND"} 2`,
		`webhdfs_operation_size_bytes_count{operation="APPEND"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestRecordSummary(t *testing.T) {
	t.Parallel()
	collector, err := NewCollector(&Config{Enabled: true, Namespace: "webhdfs", Labels: map[string]string{"account": "acct"}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	collector.RecordSummary(3, 10)
	collector.RecordSummary(1, 5)

	body := scrape(t, collector)
	for _, want := range []string{
		`webhdfs_summary_entries_total{account="acct",type="directory"} 4`,
		`webhdfs_summary_entries_total{account="acct",type="file"} 15`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	refused := &url.Error{Op: "Put", URL: "http://x", Err: syscall.ECONNREFUSED}
	tests := []struct {
		name   string
		status int
		err    error
		want   string
	}{
		{"throttled", 429, errors.New("x"), "throttled"},
		{"request timeout", 408, errors.New("x"), "timeout"},
		{"server", 502, errors.New("x"), "server"},
		{"client", 404, errors.New("FileNotFoundException"), "client"},
		{"deadline", 0, context.DeadlineExceeded, "timeout"},
		{"refused", 0, refused, "connection"},
		{"store error", 0, storeerrors.NewError(storeerrors.ErrCodeTokenUnavailable, "no token"), "auth"},
		{"other", 0, errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.status, tt.err); got != tt.want {
				t.Errorf("classifyError(%d, %v) = %q, want %q", tt.status, tt.err, got, tt.want)
			}
		})
	}
}

func TestResetMetrics(t *testing.T) {
	t.Parallel()
	collector, err := NewCollector(nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	collector.RecordAttempt("OPEN", 200, time.Millisecond, 1, nil)
	before := collector.lastReset
	time.Sleep(time.Millisecond)
	collector.ResetMetrics()

	if len(collector.GetMetrics()) != 0 {
		t.Error("operations were not cleared")
	}
	if !collector.lastReset.After(before) {
		t.Error("lastReset was not updated")
	}
}

func TestDebugOperationsHandler(t *testing.T) {
	t.Parallel()
	collector, err := NewCollector(nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	collector.debugOperationsHandler(rec, httptest.NewRequest(http.MethodGet, "/debug/operations", nil))
	if !strings.Contains(rec.Body.String(), "No operations recorded.") {
		t.Errorf("unexpected empty output %q", rec.Body.String())
	}

	collector.RecordAttempt("LISTSTATUS", 200, time.Millisecond, 100, nil)
	collector.RecordAttempt("DELETE", 200, time.Millisecond, 0, nil)
	rec = httptest.NewRecorder()
	collector.debugOperationsHandler(rec, httptest.NewRequest(http.MethodGet, "/debug/operations", nil))
	out := rec.Body.String()
	if strings.Index(out, "DELETE") > strings.Index(out, "LISTSTATUS") {
		t.Error("operations are not sorted")
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	collector, err := NewCollector(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := collector.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
