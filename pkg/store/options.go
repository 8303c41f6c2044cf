package store

import (
	"log/slog"
	"net/http"

	"github.com/objectfs/webhdfs/internal/transport"
	"github.com/objectfs/webhdfs/pkg/types"
)

// TokenProvider supplies the bearer token sent with every request. It is
// called once per attempt so implementations can refresh expired tokens.
type TokenProvider = transport.TokenProvider

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc = transport.TokenProviderFunc

// Option customizes a Client.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	tokens     TokenProvider
	httpClient *http.Client
	recorder   types.MetricsRecorder
}

// WithLogger sets the logger used by the client and everything it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTokenProvider sets the token source, taking precedence over a token
// in the configuration.
func WithTokenProvider(tokens TokenProvider) Option {
	return func(o *options) { o.tokens = tokens }
}

// StaticToken authenticates every request with the same token.
func StaticToken(token string) Option {
	return WithTokenProvider(transport.StaticToken(token))
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithMetrics sends attempt and summary observations to recorder instead of
// the built-in Prometheus collector.
func WithMetrics(recorder types.MetricsRecorder) Option {
	return func(o *options) { o.recorder = recorder }
}
