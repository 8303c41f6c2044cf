// Package retry provides the retry policies consulted by the transport after
// every failed HTTP attempt.
package retry

import (
	"context"
	stderr "errors"
	"io"
	"math"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// Policy decides whether a failed attempt is retried and how long the caller
// waits before the next one. A Policy counts attempts, so one instance serves
// exactly one logical operation.
type Policy interface {
	// ShouldRetry is called after every unsuccessful attempt with the HTTP
	// status (0 when no response was received) and the transport error.
	ShouldRetry(httpStatus int, err error) bool

	// Delay is the backoff to wait before the attempt that a preceding
	// ShouldRetry(true) allowed.
	Delay() time.Duration
}

// Factory creates a fresh Policy for one logical operation.
type Factory func() Policy

// Config defines retry behavior configuration
type Config struct {
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Multiplier is the factor by which delay increases after each retry
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`

	// Jitter adds randomness to delay to prevent thundering herd
	Jitter bool `yaml:"jitter" json:"jitter"`

	// OnRetry is called whenever a retry is granted
	OnRetry func(retry int, httpStatus int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig returns the retry configuration used for idempotent operations.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   4.0,
		Jitter:       true,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	return c
}

// calculateDelay calculates the delay before the given retry (1-based).
func (c Config) calculateDelay(retry int) time.Duration {
	// Exponential backoff: initialDelay * multiplier^(retry-1)
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(retry-1))

	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.Jitter {
		// ±20%
		jitter := delay * 0.2 * (rand.Float64()*2 - 1)
		delay += jitter
	}

	return time.Duration(delay)
}

// NoRetry never retries.
type NoRetry struct{}

// NewNoRetry returns a policy that never retries.
func NewNoRetry() Policy { return NoRetry{} }

// ShouldRetry always returns false.
func (NoRetry) ShouldRetry(int, error) bool { return false }

// Delay always returns zero.
func (NoRetry) Delay() time.Duration { return 0 }

// Exponential retries throttling, gateway and timeout statuses and
// connection-level failures with exponentially growing delay.
type Exponential struct {
	config  Config
	retries int
	delay   time.Duration
}

// NewExponential creates an exponential backoff policy.
func NewExponential(config Config) *Exponential {
	return &Exponential{config: config.withDefaults()}
}

// ExponentialFactory returns a Factory producing Exponential policies.
func ExponentialFactory(config Config) Factory {
	return func() Policy { return NewExponential(config) }
}

// ShouldRetry implements Policy.
func (p *Exponential) ShouldRetry(httpStatus int, err error) bool {
	if isCancellation(err) {
		return false
	}
	if !IsRetryableStatus(httpStatus) && !IsConnectionError(err) {
		return false
	}
	if p.retries >= p.config.MaxRetries {
		return false
	}

	p.retries++
	p.delay = p.config.calculateDelay(p.retries)
	if p.config.OnRetry != nil {
		p.config.OnRetry(p.retries, httpStatus, err, p.delay)
	}
	return true
}

// Delay implements Policy.
func (p *Exponential) Delay() time.Duration { return p.delay }

// Retries returns the number of retries granted so far.
func (p *Exponential) Retries() int { return p.retries }

// NonIdempotent retries only failures where the request certainly had no
// effect on the server: one 401 (token refresh), throttling and refused
// connections.
type NonIdempotent struct {
	config     Config
	retries401 int
	retries    int
	delay      time.Duration
}

// NewNonIdempotent creates the policy used for operations that must not be
// applied twice.
func NewNonIdempotent(config Config) *NonIdempotent {
	return &NonIdempotent{config: config.withDefaults()}
}

// NonIdempotentFactory returns a Factory producing NonIdempotent policies.
func NonIdempotentFactory(config Config) Factory {
	return func() Policy { return NewNonIdempotent(config) }
}

// ShouldRetry implements Policy.
func (p *NonIdempotent) ShouldRetry(httpStatus int, err error) bool {
	if isCancellation(err) {
		return false
	}
	if httpStatus == 401 && p.retries401 == 0 {
		p.retries401++
		p.delay = 0
		return true
	}
	if httpStatus != 429 && !IsConnectionRefused(err) {
		return false
	}
	if p.retries >= p.config.MaxRetries {
		return false
	}

	p.retries++
	p.delay = p.config.calculateDelay(p.retries)
	if p.config.OnRetry != nil {
		p.config.OnRetry(p.retries, httpStatus, err, p.delay)
	}
	return true
}

// Delay implements Policy.
func (p *NonIdempotent) Delay() time.Duration { return p.delay }

// IsRetryableStatus reports whether an HTTP status is transient.
func IsRetryableStatus(status int) bool {
	switch status {
	case 408, 429, 502, 503, 504:
		return true
	}
	return false
}

// IsConnectionError reports whether err is a connection-level failure:
// timeouts, resets, refused connections, truncated bodies or name resolution.
func IsConnectionError(err error) bool {
	if err == nil || isCancellation(err) {
		return false
	}
	if stderr.Is(err, io.EOF) || stderr.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if stderr.Is(err, syscall.ECONNRESET) || stderr.Is(err, syscall.ECONNREFUSED) ||
		stderr.Is(err, syscall.ECONNABORTED) || stderr.Is(err, syscall.EPIPE) {
		return true
	}
	if stderr.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderr.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return stderr.As(err, &dnsErr)
}

// IsConnectionRefused reports whether the request never reached the server.
func IsConnectionRefused(err error) bool {
	return err != nil && stderr.Is(err, syscall.ECONNREFUSED)
}

func isCancellation(err error) bool {
	return err != nil && stderr.Is(err, context.Canceled)
}
