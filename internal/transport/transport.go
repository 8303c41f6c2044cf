// Package transport turns one logical webhdfs operation into one or more
// HTTP attempts, applying the retry policy and recording the outcome of every
// attempt.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	stderr "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/retry"
	"github.com/objectfs/webhdfs/pkg/types"
)

// Version is reported in the User-Agent header.
const Version = "1.0.0"

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "x-ms-client-request-id"
	headerTraceID       = "x-ms-request-id"
	headerUserAgent     = "User-Agent"

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 * 1024
)

// Config configures an Executor.
type Config struct {
	Scheme          string
	Host            string
	UserAgentSuffix string

	// Timeout is the default per-attempt timeout.
	Timeout time.Duration

	// Retry is the backoff configuration of the default retry policies.
	Retry retry.Config

	// RateLimit is the sustained request rate per second; zero disables
	// client-side limiting.
	RateLimit float64
	RateBurst int
}

// Option customizes an Executor.
type Option func(*Executor)

// WithHTTPClient sets the HTTP client used for every attempt.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) { e.httpClient = client }
}

// WithTokenProvider sets the bearer token source.
func WithTokenProvider(tokens TokenProvider) Option {
	return func(e *Executor) { e.tokens = tokens }
}

// WithLatencyTracker sets the latency tracker. Passing nil disables latency
// reporting.
func WithLatencyTracker(tracker *LatencyTracker) Option {
	return func(e *Executor) { e.latency = tracker }
}

// WithRecorder sets the metrics recorder notified of every attempt.
func WithRecorder(recorder types.MetricsRecorder) Option {
	return func(e *Executor) { e.recorder = recorder }
}

// Executor executes operations against one account host. It is safe for
// concurrent use.
type Executor struct {
	config     Config
	httpClient *http.Client
	tokens     TokenProvider
	latency    *LatencyTracker
	limiter    *rate.Limiter
	recorder   types.MetricsRecorder
	logger     *slog.Logger
	clientID   string
	userAgent  string
}

// NewExecutor creates an executor for the configured host.
func NewExecutor(cfg Config, logger *slog.Logger, opts ...Option) (*Executor, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "account host cannot be empty").
			WithComponent("transport")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.Scheme != "https" && cfg.Scheme != "http" {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unsupported scheme %q", cfg.Scheme).
			WithComponent("transport")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	clientID := uuid.New().String()
	e := &Executor{
		config:     cfg,
		httpClient: &http.Client{},
		latency:    NewLatencyTracker(clientID),
		logger:     logger.With("component", "transport", "host", cfg.Host),
		clientID:   clientID,
	}
	for _, opt := range opts {
		opt(e)
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	e.userAgent = "webhdfs-go/" + Version
	if cfg.UserAgentSuffix != "" {
		e.userAgent += " " + cfg.UserAgentSuffix
	}

	return e, nil
}

// Latency returns the executor's latency tracker, which may be nil.
func (e *Executor) Latency() *LatencyTracker {
	return e.latency
}

// RetryConfig returns the backoff configuration for default retry policies.
func (e *Executor) RetryConfig() retry.Config {
	return e.config.Retry
}

// Host returns the account host.
func (e *Executor) Host() string {
	return e.config.Host
}

// Execute runs op against path. Argument errors are returned immediately
// without any network call. Every other outcome, including cancellation, is
// recorded on resp; callers check resp.Successful().
//
// For operations that return a body, the body is read into respBuf when it
// is non-nil and into a freshly sized buffer otherwise. The returned slice
// is that buffer and n is the number of bytes read.
func (e *Executor) Execute(
	ctx context.Context,
	op Operation,
	path string,
	payload Payload,
	respBuf []byte,
	params *QueryParams,
	opts *RequestOptions,
	resp *OperationResponse,
) (body []byte, n int, err error) {
	desc, ok := op.Descriptor()
	if !ok {
		return nil, 0, errors.Newf(errors.ErrCodeInvalidArgument, "unknown operation code %d", int(op))
	}
	if opts == nil {
		return nil, 0, errors.NewError(errors.ErrCodeInvalidArgument, "request options cannot be nil").
			WithOperation(desc.Name)
	}
	if resp == nil {
		return nil, 0, errors.NewError(errors.ErrCodeInvalidArgument, "response holder cannot be nil").
			WithOperation(desc.Name)
	}
	if path == "" {
		return nil, 0, errors.NewError(errors.ErrCodeInvalidPath, "path cannot be empty").
			WithOperation(desc.Name)
	}
	if err := payload.validate(); err != nil {
		return nil, 0, err.(*errors.StoreError).WithOperation(desc.Name).WithPath(path)
	}

	policy := opts.RetryPolicy
	if policy == nil {
		policy = retry.NewNoRetry()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.config.Timeout
	}
	baseID := opts.RequestID
	if baseID == "" {
		baseID = uuid.New().String()
	}

	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			resp.Canceled = true
			resp.Err = ctxErr
			return nil, 0, nil
		}

		resp.resetForAttempt()
		body, n = nil, 0
		resp.RequestID = fmt.Sprintf("%s.%d", baseID, attempt)
		resp.NumRetries = attempt

		if e.limiter != nil {
			if waitErr := e.limiter.Wait(ctx); waitErr != nil {
				if ctx.Err() != nil {
					resp.Canceled = true
					resp.Err = ctx.Err()
					return nil, 0, nil
				}
				resp.Err = waitErr
			}
		}

		start := time.Now()
		if resp.Err == nil {
			body, n = e.attempt(ctx, desc, path, payload, respBuf, params, timeout, resp)
		}
		resp.LastLatency = time.Since(start)

		success := resp.Successful()
		size := int64(n)
		if desc.RequiresBody {
			size = int64(payload.Length)
		}

		var rec errors.AttemptRecord
		errText := ""
		if !success {
			rec = resp.record(attempt)
			errText = rec.String()
		}
		e.latency.Add(baseID, attempt, resp.LastLatency, errText, desc.Name, size)
		if e.recorder != nil {
			e.recorder.RecordAttempt(desc.Name, resp.HTTPStatus, resp.LastLatency, size, attemptError(resp))
		}

		if success {
			return body, n, nil
		}
		resp.Attempts = append(resp.Attempts, rec)

		e.logger.Debug("Attempt failed",
			"operation", desc.Name,
			"path", path,
			"request_id", resp.RequestID,
			"status", resp.HTTPStatus,
			"remote_exception", resp.RemoteExceptionName,
			"error", rec.Error,
			"latency", resp.LastLatency)

		if ctxErr := ctx.Err(); ctxErr != nil {
			resp.Canceled = true
			resp.Err = ctxErr
			return nil, 0, nil
		}

		if !policy.ShouldRetry(resp.HTTPStatus, resp.Err) {
			return nil, 0, nil
		}

		delay := policy.Delay()
		if e.recorder != nil {
			e.recorder.RecordRetry(desc.Name)
		}
		e.logger.Debug("Retrying operation",
			"operation", desc.Name,
			"path", path,
			"attempt", attempt+1,
			"delay", delay)

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				resp.Canceled = true
				resp.Err = ctx.Err()
				return nil, 0, nil
			case <-timer.C:
			}
		}
	}
}

// attempt performs exactly one HTTP request and records its outcome on resp.
func (e *Executor) attempt(
	ctx context.Context,
	desc Descriptor,
	path string,
	payload Payload,
	respBuf []byte,
	params *QueryParams,
	timeout time.Duration,
	resp *OperationResponse,
) ([]byte, int) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := url.URL{
		Scheme:   e.config.Scheme,
		Host:     e.config.Host,
		Path:     desc.Namespace + path,
		RawQuery: params.Encode(desc.Name),
	}

	var bodyReader io.Reader
	if desc.RequiresBody {
		bodyReader = bytes.NewReader(payload.Bytes())
	}

	req, err := http.NewRequestWithContext(attemptCtx, desc.Method, u.String(), bodyReader)
	if err != nil {
		resp.Err = fmt.Errorf("failed to create request: %w", err)
		return nil, 0
	}
	if desc.RequiresBody {
		req.ContentLength = int64(payload.Length)
		req.Header.Set("Content-Type", "application/octet-stream")
		if payload.Encoding != "" {
			req.Header.Set("Content-Encoding", payload.Encoding)
		}
	}

	if e.tokens != nil {
		token, tokenErr := e.tokens.Token(attemptCtx)
		if tokenErr != nil {
			resp.Err = errors.NewError(errors.ErrCodeTokenUnavailable, "failed to obtain access token").
				WithCause(tokenErr)
			return nil, 0
		}
		req.Header.Set(headerAuthorization, "Bearer "+token)
	}
	req.Header.Set(headerRequestID, resp.RequestID)
	req.Header.Set(headerUserAgent, e.userAgent)
	if latency := e.latency.Next(); latency != "" {
		req.Header.Set(latencyHeader, latency)
	}

	httpResp, err := e.httpClient.Do(req)
	if err != nil {
		resp.Err = err
		return nil, 0
	}
	defer func() { _ = httpResp.Body.Close() }()

	resp.HTTPStatus = httpResp.StatusCode
	resp.HTTPMessage = http.StatusText(httpResp.StatusCode)
	resp.TraceID = httpResp.Header.Get(headerTraceID)
	resp.ContentLength = httpResp.ContentLength

	if httpResp.StatusCode >= 300 {
		e.parseRemoteException(httpResp.Body, resp)
		return nil, 0
	}

	if !desc.ReturnsBody {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		return nil, 0
	}

	return readBody(httpResp, respBuf, resp)
}

type remoteExceptionBody struct {
	RemoteException *struct {
		Exception     string `json:"exception"`
		Message       string `json:"message"`
		JavaClassName string `json:"javaClassName"`
	} `json:"RemoteException"`
}

func (e *Executor) parseRemoteException(body io.Reader, resp *OperationResponse) {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return
	}

	var remote remoteExceptionBody
	if json.Unmarshal(data, &remote) != nil || remote.RemoteException == nil {
		resp.HTTPMessage = strings.TrimSpace(string(data))
		return
	}
	resp.RemoteExceptionName = remote.RemoteException.Exception
	resp.RemoteExceptionMessage = remote.RemoteException.Message
	resp.RemoteExceptionClass = remote.RemoteException.JavaClassName
}

func readBody(httpResp *http.Response, respBuf []byte, resp *OperationResponse) ([]byte, int) {
	if respBuf == nil {
		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			resp.Err = fmt.Errorf("failed to read response body: %w", err)
			return nil, 0
		}
		return data, len(data)
	}

	n, err := io.ReadFull(httpResp.Body, respBuf)
	if err != nil && !stderr.Is(err, io.ErrUnexpectedEOF) && !stderr.Is(err, io.EOF) {
		resp.Err = fmt.Errorf("failed to read response body: %w", err)
		return respBuf, n
	}

	// A short body is only legitimate when the server declared it short.
	if httpResp.ContentLength > 0 {
		expected := httpResp.ContentLength
		if expected > int64(len(respBuf)) {
			expected = int64(len(respBuf))
		}
		if int64(n) < expected {
			resp.Err = fmt.Errorf("response body truncated after %d of %d bytes: %w", n, expected, io.ErrUnexpectedEOF)
			return respBuf, n
		}
	}

	_, _ = io.Copy(io.Discard, httpResp.Body)
	return respBuf, n
}

func attemptError(resp *OperationResponse) error {
	switch {
	case resp.Successful():
		return nil
	case resp.Err != nil:
		return resp.Err
	case resp.RemoteExceptionName != "":
		return stderr.New(resp.RemoteExceptionName)
	case resp.Message != "":
		return stderr.New(resp.Message)
	default:
		return fmt.Errorf("http %d", resp.HTTPStatus)
	}
}
