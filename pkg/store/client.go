package store

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/objectfs/webhdfs/internal/config"
	"github.com/objectfs/webhdfs/internal/core"
	"github.com/objectfs/webhdfs/internal/metrics"
	"github.com/objectfs/webhdfs/internal/summary"
	"github.com/objectfs/webhdfs/internal/transport"
	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/stream"
	"github.com/objectfs/webhdfs/pkg/types"
)

// Client is a handle to one account. It is safe for concurrent use; the
// streams it returns are not.
type Client struct {
	config   *config.Configuration
	exec     *transport.Executor
	metrics  *metrics.Collector
	lister   *core.Lister
	engine   *summary.Engine
	logger   *slog.Logger
	readBuf  int
	writeBuf int
}

// New creates a client from a validated configuration.
func New(cfg *config.Configuration, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "configuration is required").
			WithComponent("store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tokens == nil && cfg.Account.Token != "" {
		o.tokens = transport.StaticToken(cfg.Account.Token)
	}

	readBuf, err := cfg.ReadBufferBytes()
	if err != nil {
		return nil, err
	}
	writeBuf, err := cfg.WriteBufferBytes()
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:   cfg,
		logger:   o.logger.With("component", "store", "host", cfg.Account.Host),
		readBuf:  readBuf,
		writeBuf: writeBuf,
	}

	recorder := o.recorder
	if recorder == nil {
		c.metrics, err = metrics.NewCollector(&metrics.Config{
			Enabled:   cfg.Monitoring.Metrics.Enabled,
			Port:      cfg.Monitoring.Metrics.Port,
			Path:      cfg.Monitoring.Metrics.Path,
			Labels:    cfg.Monitoring.Metrics.CustomLabels,
			Namespace: cfg.Monitoring.Metrics.Namespace,
		}, o.logger)
		if err != nil {
			return nil, err
		}
		recorder = c.metrics
	}

	execOpts := []transport.Option{transport.WithRecorder(recorder)}
	if o.tokens != nil {
		execOpts = append(execOpts, transport.WithTokenProvider(o.tokens))
	}
	if o.httpClient != nil {
		execOpts = append(execOpts, transport.WithHTTPClient(o.httpClient))
	}
	if !cfg.Transport.LatencyTracking {
		execOpts = append(execOpts, transport.WithLatencyTracker(nil))
	}

	c.exec, err = transport.NewExecutor(transport.Config{
		Scheme:          cfg.Account.Scheme,
		Host:            cfg.Account.Host,
		UserAgentSuffix: cfg.Transport.UserAgentSuffix,
		Timeout:         cfg.Transport.Timeout,
		Retry:           cfg.Transport.RetryConfig(),
		RateLimit:       cfg.Transport.RateLimit,
		RateBurst:       cfg.Transport.RateBurst,
	}, o.logger, execOpts...)
	if err != nil {
		return nil, err
	}

	c.lister = &core.Lister{Exec: c.exec, PageSize: cfg.Summary.ListPageSize}
	c.engine = summary.New(c.lister, cfg.Summary.Workers,
		summary.WithLogger(o.logger),
		summary.WithRecorder(recorder))

	c.logger.Debug("Client created",
		"scheme", cfg.Account.Scheme,
		"read_buffer", readBuf,
		"write_buffer", writeBuf,
		"summary_workers", c.engine.Workers())
	return c, nil
}

// Start serves the metrics endpoint when one is configured.
func (c *Client) Start(ctx context.Context) error {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Start(ctx)
}

// Close stops the metrics endpoint.
func (c *Client) Close(ctx context.Context) error {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Stop(ctx)
}

// MetricsHandler exposes the built-in collector. It responds 404 when
// metrics are sent to a custom recorder.
func (c *Client) MetricsHandler() http.Handler {
	if c.metrics == nil {
		return http.NotFoundHandler()
	}
	return c.metrics.Handler()
}

// DisableLatencyTracking stops reporting client latency to the service.
func (c *Client) DisableLatencyTracking() {
	if tracker := c.exec.Latency(); tracker != nil {
		tracker.Disable()
	}
}

// Create creates path and returns a stream for writing its content. The
// stream must be closed to commit the file length.
func (c *Client) Create(ctx context.Context, path string, overwrite bool, permission string) (*stream.OutputStream, error) {
	out, err := stream.CreateOutput(ctx, c.exec, path, stream.CreateOptions{
		Options:    c.writeOptions(),
		Overwrite:  overwrite,
		Permission: permission,
	})
	return out, c.finish(transport.OpCreate, path, err)
}

// Append returns a stream writing at the end of an existing file.
func (c *Client) Append(ctx context.Context, path string) (*stream.OutputStream, error) {
	out, err := stream.AppendOutput(ctx, c.exec, path, c.writeOptions())
	return out, c.finish(transport.OpAppend, path, err)
}

// Open returns a stream reading path from the beginning.
func (c *Client) Open(ctx context.Context, path string) (*stream.InputStream, error) {
	in, err := stream.OpenInput(ctx, c.exec, path, stream.Options{
		BufferSize: c.readBuf,
		Logger:     c.logger,
	})
	return in, c.finish(transport.OpOpen, path, err)
}

// ConcurrentAppend appends data at whatever the end of the file is when
// the service applies it. With autoCreate a missing file is created.
func (c *Client) ConcurrentAppend(ctx context.Context, path string, data []byte, autoCreate bool) error {
	err := core.ConcurrentAppend(ctx, c.exec, path, autoCreate, data, nil)
	return c.finish(transport.OpConcurrentAppend, path, err)
}

// Delete removes path and reports whether anything was deleted.
func (c *Client) Delete(ctx context.Context, path string, recursive bool) (bool, error) {
	ok, err := core.Delete(ctx, c.exec, path, recursive, nil)
	return ok, c.finish(transport.OpDelete, path, err)
}

// Rename moves src to dst and reports whether the rename happened.
func (c *Client) Rename(ctx context.Context, src, dst string, overwrite bool) (bool, error) {
	ok, err := core.Rename(ctx, c.exec, src, dst, overwrite, nil)
	return ok, c.finish(transport.OpRename, src, err)
}

// Mkdirs creates path and any missing parents.
func (c *Client) Mkdirs(ctx context.Context, path, permission string) (bool, error) {
	ok, err := core.Mkdirs(ctx, c.exec, path, permission, nil)
	return ok, c.finish(transport.OpMkdirs, path, err)
}

// Stat returns the entry for path.
func (c *Client) Stat(ctx context.Context, path string) (types.DirectoryEntry, error) {
	entry, err := core.GetFileStatus(ctx, c.exec, path, types.UserIDDefault, nil)
	return entry, c.finish(transport.OpGetFileStatus, path, err)
}

// Exists reports whether path exists.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	_, err := core.GetFileStatus(ctx, c.exec, path, types.UserIDDefault, nil)
	if errors.IsNotFound(err) {
		return false, nil
	}
	return err == nil, c.finish(transport.OpGetFileStatus, path, err)
}

// List returns every child of the directory path, following pagination.
func (c *Client) List(ctx context.Context, path string) ([]types.DirectoryEntry, error) {
	entries, err := c.lister.ListAll(ctx, path)
	return entries, c.finish(transport.OpListStatus, path, err)
}

// SetOwner changes the owner and group of path. Empty values are left
// unchanged.
func (c *Client) SetOwner(ctx context.Context, path, owner, group string) error {
	return c.finish(transport.OpSetOwner, path, core.SetOwner(ctx, c.exec, path, owner, group, nil))
}

// SetPermission sets the octal permission of path.
func (c *Client) SetPermission(ctx context.Context, path, permission string) error {
	return c.finish(transport.OpSetPermission, path, core.SetPermission(ctx, c.exec, path, permission, nil))
}

// SetTimes sets access and modification times. Zero times are left
// unchanged.
func (c *Client) SetTimes(ctx context.Context, path string, atime, mtime time.Time) error {
	return c.finish(transport.OpSetTimes, path, core.SetTimes(ctx, c.exec, path, atime, mtime, nil))
}

// SetExpiry sets when a file is deleted by the service.
func (c *Client) SetExpiry(ctx context.Context, path string, option types.ExpiryOption, expireTime int64) error {
	return c.finish(transport.OpSetExpiry, path, core.SetExpiry(ctx, c.exec, path, option, expireTime, nil))
}

// ModifyAclEntries merges entries into the ACL of path.
func (c *Client) ModifyAclEntries(ctx context.Context, path string, entries []types.AclEntry) error {
	return c.finish(transport.OpModifyAclEntries, path, core.ModifyAclEntries(ctx, c.exec, path, entries, nil))
}

// RemoveAclEntries removes entries from the ACL of path. Permissions in
// entries are ignored.
func (c *Client) RemoveAclEntries(ctx context.Context, path string, entries []types.AclEntry) error {
	return c.finish(transport.OpRemoveAclEntries, path, core.RemoveAclEntries(ctx, c.exec, path, entries, nil))
}

// SetAcl replaces the ACL of path.
func (c *Client) SetAcl(ctx context.Context, path string, entries []types.AclEntry) error {
	return c.finish(transport.OpSetAcl, path, core.SetAcl(ctx, c.exec, path, entries, nil))
}

// RemoveDefaultAcl removes the default entries of a directory ACL.
func (c *Client) RemoveDefaultAcl(ctx context.Context, path string) error {
	return c.finish(transport.OpRemoveDefaultAcl, path, core.RemoveDefaultAcl(ctx, c.exec, path, nil))
}

// RemoveAcl removes all named entries and default entries of path.
func (c *Client) RemoveAcl(ctx context.Context, path string) error {
	return c.finish(transport.OpRemoveAcl, path, core.RemoveAcl(ctx, c.exec, path, nil))
}

// GetAclStatus returns the ACL of path.
func (c *Client) GetAclStatus(ctx context.Context, path string) (types.AclStatus, error) {
	status, err := core.GetAclStatus(ctx, c.exec, path, types.UserIDDefault, nil)
	return status, c.finish(transport.OpGetAclStatus, path, err)
}

// CheckAccess fails unless the caller holds the rwx-style action on path.
func (c *Client) CheckAccess(ctx context.Context, path, action string) error {
	return c.finish(transport.OpCheckAccess, path, core.CheckAccess(ctx, c.exec, path, action, nil))
}

// Concat appends the content of sources to path and removes them.
func (c *Client) Concat(ctx context.Context, path string, sources []string) error {
	return c.finish(transport.OpConcat, path, core.Concat(ctx, c.exec, path, sources, nil))
}

// MsConcat concatenates sources into path, creating it when missing.
func (c *Client) MsConcat(ctx context.Context, path string, sources []string, deleteSourceDir bool) error {
	return c.finish(transport.OpMsConcat, path, core.MsConcat(ctx, c.exec, path, sources, deleteSourceDir, nil))
}

// ContentSummary walks the tree below path with the configured number of
// workers and returns its totals.
func (c *Client) ContentSummary(ctx context.Context, path string) (types.ContentSummary, error) {
	totals, err := c.engine.Run(ctx, path)
	return totals, c.finish(transport.OpListStatus, path, err)
}

// ServerContentSummary asks the service for the totals below path.
func (c *Client) ServerContentSummary(ctx context.Context, path string) (types.ContentSummary, error) {
	totals, err := core.GetContentSummary(ctx, c.exec, path, nil)
	return totals, c.finish(transport.OpGetContentSummary, path, err)
}

func (c *Client) writeOptions() stream.Options {
	return stream.Options{BufferSize: c.writeBuf, Logger: c.logger}
}

// finish logs operations that failed after the transport gave up and
// returns err unchanged.
func (c *Client) finish(op transport.Operation, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.IsArgument(err) || errors.IsNotFound(err) || errors.IsCanceled(err) || errors.IsConflict(err) {
		c.logger.Debug("Operation failed", "operation", op.String(), "path", path, "error", err)
		return err
	}

	attrs := []any{"operation", op.String(), "path", path, "error", err}
	if storeErr, ok := errors.AsStoreError(err); ok {
		attrs = append(attrs,
			"code", storeErr.Code,
			"http_status", storeErr.HTTPStatus,
			"attempts", len(storeErr.Attempts),
			"trace_id", storeErr.TraceID)
	}
	c.logger.Error("Operation gave up", attrs...)
	return err
}
