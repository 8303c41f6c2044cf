package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/retry"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "WEBHDFS_"

// Configuration represents the complete client configuration
type Configuration struct {
	Account    AccountConfig    `yaml:"account"`
	Transport  TransportConfig  `yaml:"transport"`
	Streams    StreamsConfig    `yaml:"streams"`
	Summary    SummaryConfig    `yaml:"summary"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// AccountConfig identifies the service endpoint
type AccountConfig struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
	// Token is a static bearer token. Applications that refresh tokens
	// supply a TokenProvider instead.
	Token string `yaml:"token,omitempty"`
}

// TransportConfig represents request execution settings
type TransportConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	UserAgentSuffix string        `yaml:"user_agent_suffix"`
	LatencyTracking bool          `yaml:"latency_tracking"`
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64     `yaml:"rate_limit"`
	RateBurst int         `yaml:"rate_burst"`
	Retry     RetryConfig `yaml:"retry"`
}

// RetryConfig represents the backoff used by default retry policies
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// StreamsConfig represents stream buffer sizes, written as human readable
// sizes such as "4MiB" or "512KB"
type StreamsConfig struct {
	ReadBufferSize  string `yaml:"read_buffer_size"`
	WriteBufferSize string `yaml:"write_buffer_size"`
}

// SummaryConfig represents client-side content summary settings
type SummaryConfig struct {
	Workers      int `yaml:"workers"`
	ListPageSize int `yaml:"list_page_size"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Port         int               `yaml:"port"`
	Path         string            `yaml:"path"`
	Namespace    string            `yaml:"namespace"`
	CustomLabels map[string]string `yaml:"custom_labels"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewDefault returns a configuration with sensible defaults. The account
// host has no default and must be set before Validate succeeds.
func NewDefault() *Configuration {
	def := retry.DefaultConfig()
	return &Configuration{
		Account: AccountConfig{
			Scheme: "https",
		},
		Transport: TransportConfig{
			Timeout:         60 * time.Second,
			LatencyTracking: true,
			Retry: RetryConfig{
				MaxRetries:   def.MaxRetries,
				InitialDelay: def.InitialDelay,
				MaxDelay:     def.MaxDelay,
				Multiplier:   def.Multiplier,
				Jitter:       def.Jitter,
			},
		},
		Streams: StreamsConfig{
			ReadBufferSize:  "4MiB",
			WriteBufferSize: "4MiB",
		},
		Summary: SummaryConfig{
			Workers:      8,
			ListPageSize: 4000,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   true,
				Path:      "/metrics",
				Namespace: "webhdfs",
				CustomLabels: map[string]string{
					"service": "webhdfs",
				},
			},
			Logging: LoggingConfig{
				Level:  "INFO",
				Format: "text",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").
			WithComponent("config").
			WithContext("file", filename).
			WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse config file").
			WithComponent("config").
			WithContext("file", filename).
			WithCause(err)
	}

	return nil
}

// LoadFromEnv overrides settings from WEBHDFS_* environment variables
func (c *Configuration) LoadFromEnv() error {
	env := envReader{}

	// Account
	env.str("HOST", &c.Account.Host)
	env.str("SCHEME", &c.Account.Scheme)
	env.str("TOKEN", &c.Account.Token)

	// Transport
	env.duration("TIMEOUT", &c.Transport.Timeout)
	env.str("USER_AGENT_SUFFIX", &c.Transport.UserAgentSuffix)
	env.boolean("LATENCY_TRACKING", &c.Transport.LatencyTracking)
	env.float("RATE_LIMIT", &c.Transport.RateLimit)
	env.integer("RATE_BURST", &c.Transport.RateBurst)
	env.integer("MAX_RETRIES", &c.Transport.Retry.MaxRetries)
	env.duration("RETRY_INITIAL_DELAY", &c.Transport.Retry.InitialDelay)
	env.duration("RETRY_MAX_DELAY", &c.Transport.Retry.MaxDelay)

	// Streams and summary
	env.str("READ_BUFFER_SIZE", &c.Streams.ReadBufferSize)
	env.str("WRITE_BUFFER_SIZE", &c.Streams.WriteBufferSize)
	env.integer("SUMMARY_WORKERS", &c.Summary.Workers)
	env.integer("LIST_PAGE_SIZE", &c.Summary.ListPageSize)

	// Monitoring
	env.boolean("METRICS_ENABLED", &c.Monitoring.Metrics.Enabled)
	env.integer("METRICS_PORT", &c.Monitoring.Metrics.Port)
	env.str("LOG_LEVEL", &c.Monitoring.Logging.Level)
	env.str("LOG_FORMAT", &c.Monitoring.Logging.Format)

	return env.err
}

// envReader assigns variables that are set and keeps the first parse error.
type envReader struct {
	err error
}

func (r *envReader) lookup(name string) (string, bool) {
	val := os.Getenv(EnvPrefix + name)
	return val, val != ""
}

func (r *envReader) fail(name, val string, cause error) {
	if r.err == nil {
		r.err = errors.Newf(errors.ErrCodeInvalidConfig, "invalid value %q for %s%s", val, EnvPrefix, name).
			WithComponent("config").
			WithCause(cause)
	}
}

func (r *envReader) str(name string, dst *string) {
	if val, ok := r.lookup(name); ok {
		*dst = val
	}
}

func (r *envReader) boolean(name string, dst *bool) {
	if val, ok := r.lookup(name); ok {
		*dst = strings.ToLower(val) == "true"
	}
}

func (r *envReader) integer(name string, dst *int) {
	if val, ok := r.lookup(name); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			r.fail(name, val, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) float(name string, dst *float64) {
	if val, ok := r.lookup(name); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			r.fail(name, val, err)
			return
		}
		*dst = f
	}
}

func (r *envReader) duration(name string, dst *time.Duration) {
	if val, ok := r.lookup(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			r.fail(name, val, err)
			return
		}
		*dst = d
	}
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to marshal config").
			WithComponent("config").
			WithCause(err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to create config directory").
			WithComponent("config").
			WithContext("file", filename).
			WithCause(err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to write config file").
			WithComponent("config").
			WithContext("file", filename).
			WithCause(err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.Newf(errors.ErrCodeInvalidConfig, format, args...).WithComponent("config")
	}

	if c.Account.Host == "" {
		return invalid("account.host is required")
	}
	if c.Account.Scheme != "http" && c.Account.Scheme != "https" {
		return invalid("account.scheme must be http or https, got %q", c.Account.Scheme)
	}

	if c.Transport.Timeout <= 0 {
		return invalid("transport.timeout must be greater than 0")
	}
	if c.Transport.RateLimit < 0 || c.Transport.RateBurst < 0 {
		return invalid("transport.rate_limit and transport.rate_burst cannot be negative")
	}
	r := c.Transport.Retry
	if r.MaxRetries < 0 {
		return invalid("transport.retry.max_retries cannot be negative")
	}
	if r.InitialDelay < 0 || r.MaxDelay < r.InitialDelay {
		return invalid("transport.retry delays must satisfy 0 <= initial_delay <= max_delay")
	}
	if r.Multiplier < 1 {
		return invalid("transport.retry.multiplier must be at least 1")
	}

	if _, err := c.ReadBufferBytes(); err != nil {
		return err
	}
	if _, err := c.WriteBufferBytes(); err != nil {
		return err
	}

	if c.Summary.Workers <= 0 {
		return invalid("summary.workers must be greater than 0")
	}
	if c.Summary.ListPageSize < 0 {
		return invalid("summary.list_page_size cannot be negative")
	}

	if p := c.Monitoring.Metrics.Port; p < 0 || p > 65535 {
		return invalid("monitoring.metrics.port %d out of range", p)
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Monitoring.Logging.Level) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return invalid("invalid log level: %s (must be one of: %s)",
			c.Monitoring.Logging.Level, strings.Join(validLogLevels, ", "))
	}
	if f := c.Monitoring.Logging.Format; f != "text" && f != "json" {
		return invalid("monitoring.logging.format must be text or json, got %q", f)
	}

	return nil
}

// ReadBufferBytes returns the parsed read buffer size.
func (c *Configuration) ReadBufferBytes() (int, error) {
	return parseSize("streams.read_buffer_size", c.Streams.ReadBufferSize)
}

// WriteBufferBytes returns the parsed write buffer size.
func (c *Configuration) WriteBufferBytes() (int, error) {
	return parseSize("streams.write_buffer_size", c.Streams.WriteBufferSize)
}

func parseSize(field, value string) (int, error) {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, errors.Newf(errors.ErrCodeInvalidConfig, "%s: cannot parse %q", field, value).
			WithComponent("config").
			WithCause(err)
	}
	if n == 0 || n > 1<<30 {
		return 0, errors.Newf(errors.ErrCodeInvalidConfig, "%s: %s is out of range", field, humanize.IBytes(n)).
			WithComponent("config")
	}
	return int(n), nil
}

// RetryConfig converts the retry section for the transport layer.
func (t TransportConfig) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:   t.Retry.MaxRetries,
		InitialDelay: t.Retry.InitialDelay,
		MaxDelay:     t.Retry.MaxDelay,
		Multiplier:   t.Retry.Multiplier,
		Jitter:       t.Retry.Jitter,
	}
}

// LogLevel returns the configured slog level, defaulting to Info.
func (c *Configuration) LogLevel() slog.Level {
	switch strings.ToUpper(c.Monitoring.Logging.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format.
func (c *Configuration) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel()}
	if c.Monitoring.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// String renders the configuration as YAML with the token masked.
func (c *Configuration) String() string {
	masked := *c
	if masked.Account.Token != "" {
		masked.Account.Token = "****"
	}
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
