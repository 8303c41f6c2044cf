package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"
)

func TestNoRetry(t *testing.T) {
	p := NewNoRetry()
	for _, status := range []int{0, 401, 429, 503} {
		if p.ShouldRetry(status, io.ErrUnexpectedEOF) {
			t.Errorf("NoRetry.ShouldRetry(%d) = true", status)
		}
	}
	if p.Delay() != 0 {
		t.Errorf("NoRetry.Delay() = %v", p.Delay())
	}
}

func TestExponential_RetryableStatuses(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{408, true},
		{429, true},
		{502, true},
		{503, true},
		{504, true},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{500, false},
		{501, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			p := NewExponential(Config{MaxRetries: 3})
			if got := p.ShouldRetry(tt.status, nil); got != tt.want {
				t.Errorf("ShouldRetry(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestExponential_MaxRetries(t *testing.T) {
	p := NewExponential(Config{MaxRetries: 3, InitialDelay: time.Millisecond})

	granted := 0
	for p.ShouldRetry(503, nil) {
		granted++
		if granted > 10 {
			t.Fatal("policy never stopped retrying")
		}
	}

	if granted != 3 {
		t.Errorf("Expected 3 retries, got %d", granted)
	}
	if p.Retries() != 3 {
		t.Errorf("Retries() = %d, want 3", p.Retries())
	}
}

func TestExponential_Backoff(t *testing.T) {
	config := Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}

	var delays []time.Duration
	config.OnRetry = func(retry int, status int, err error, delay time.Duration) {
		delays = append(delays, delay)
	}

	p := NewExponential(config)
	for p.ShouldRetry(503, nil) {
	}

	// 100ms, 200ms, 400ms, 800ms
	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	if len(delays) != len(expected) {
		t.Fatalf("Expected %d delays, got %d", len(expected), len(delays))
	}
	for i := range expected {
		if delays[i] != expected[i] {
			t.Errorf("Delay %d: expected %v, got %v", i, expected[i], delays[i])
		}
	}
}

func TestExponential_MaxDelayCap(t *testing.T) {
	p := NewExponential(Config{
		MaxRetries:   10,
		InitialDelay: time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	})

	for p.ShouldRetry(504, nil) {
		if p.Delay() > 2*time.Second {
			t.Fatalf("Delay %v exceeded configured max", p.Delay())
		}
	}
}

func TestExponential_Jitter(t *testing.T) {
	p := NewExponential(Config{
		MaxRetries:   1,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	})

	if !p.ShouldRetry(503, nil) {
		t.Fatal("expected a retry")
	}
	if p.Delay() < 800*time.Millisecond || p.Delay() > 1200*time.Millisecond {
		t.Errorf("jittered delay %v outside ±20%% of 1s", p.Delay())
	}
}

func TestExponential_ConnectionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"connection reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"connection refused", &url.Error{Op: "Post", URL: "https://x", Err: syscall.ECONNREFUSED}, true},
		{"attempt timeout", fmt.Errorf("attempt: %w", context.DeadlineExceeded), true},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, true},
		{"canceled", &url.Error{Op: "Get", URL: "https://x", Err: context.Canceled}, false},
		{"decode", errors.New("invalid character"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewExponential(Config{MaxRetries: 1})
			if got := p.ShouldRetry(0, tt.err); got != tt.want {
				t.Errorf("ShouldRetry(0, %v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNonIdempotent(t *testing.T) {
	t.Run("retries 401 once", func(t *testing.T) {
		p := NewNonIdempotent(Config{MaxRetries: 3})
		if !p.ShouldRetry(401, nil) {
			t.Fatal("first 401 should be retried")
		}
		if p.Delay() != 0 {
			t.Errorf("401 retry delay = %v, want 0", p.Delay())
		}
		if p.ShouldRetry(401, nil) {
			t.Error("second 401 should not be retried")
		}
	})

	t.Run("retries throttling up to max", func(t *testing.T) {
		p := NewNonIdempotent(Config{MaxRetries: 2, InitialDelay: time.Millisecond})
		granted := 0
		for p.ShouldRetry(429, nil) {
			granted++
		}
		if granted != 2 {
			t.Errorf("Expected 2 retries, got %d", granted)
		}
	})

	t.Run("retries refused connections", func(t *testing.T) {
		p := NewNonIdempotent(Config{MaxRetries: 1})
		refused := &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
		if !p.ShouldRetry(0, refused) {
			t.Error("refused connection should be retried")
		}
	})

	t.Run("does not retry ambiguous failures", func(t *testing.T) {
		p := NewNonIdempotent(Config{MaxRetries: 5})
		if p.ShouldRetry(503, nil) {
			t.Error("503 must not be retried for non-idempotent operations")
		}
		if p.ShouldRetry(0, io.ErrUnexpectedEOF) {
			t.Error("a truncated response must not be retried for non-idempotent operations")
		}
		if p.ShouldRetry(0, &net.OpError{Op: "read", Err: syscall.ECONNRESET}) {
			t.Error("a reset connection must not be retried for non-idempotent operations")
		}
	})
}

func TestFactoriesReturnFreshPolicies(t *testing.T) {
	factory := ExponentialFactory(Config{MaxRetries: 1})
	first := factory()
	if !first.ShouldRetry(503, nil) || first.ShouldRetry(503, nil) {
		t.Fatal("first policy should allow exactly one retry")
	}

	second := factory()
	if !second.ShouldRetry(503, nil) {
		t.Error("a new policy must not share retry counts with a previous one")
	}

	nonIdem := NonIdempotentFactory(Config{MaxRetries: 1})()
	if _, ok := nonIdem.(*NonIdempotent); !ok {
		t.Errorf("NonIdempotentFactory produced %T", nonIdem)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", config.MaxRetries)
	}
	if config.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want 1s", config.InitialDelay)
	}
	if !config.Jitter {
		t.Error("Jitter should default to true")
	}
}
