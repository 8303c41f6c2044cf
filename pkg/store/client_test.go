package store

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/webhdfs/internal/config"
	"github.com/objectfs/webhdfs/internal/testserver"
	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/types"
)

func testConfig(server *testserver.Server) *config.Configuration {
	cfg := config.NewDefault()
	cfg.Account.Host = server.Host()
	cfg.Account.Scheme = "http"
	cfg.Transport.Timeout = 5 * time.Second
	cfg.Transport.Retry = config.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
	cfg.Streams.ReadBufferSize = "1KiB"
	cfg.Streams.WriteBufferSize = "1KiB"
	cfg.Summary.Workers = 4
	return cfg
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *testserver.Server) {
	t.Helper()
	server := testserver.New(t)
	client, err := New(testConfig(server), opts...)
	require.NoError(t, err)
	return client, server
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))

	_, err = New(config.NewDefault())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
	assert.Contains(t, err.Error(), "account.host")
}

func TestClient_WriteThenRead(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()

	data := bytes.Repeat([]byte("0123456789abcdef"), 300)
	out, err := client.Create(ctx, "/dir/file.bin", false, "")
	require.NoError(t, err)
	n, err := out.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	require.NoError(t, out.Close())

	stored, ok := server.FileData("/dir/file.bin")
	require.True(t, ok)
	assert.Equal(t, data, stored)
	// Writes are split into buffer-sized appends.
	assert.GreaterOrEqual(t, len(server.CallsFor("APPEND")), len(data)/1024)

	in, err := client.Open(ctx, "/dir/file.bin")
	require.NoError(t, err)
	defer in.Close()
	got, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	entry, err := client.Stat(ctx, "/dir/file.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), entry.Length)
	assert.False(t, entry.IsDir())
}

func TestClient_CreateExisting(t *testing.T) {
	client, server := newTestClient(t)
	server.PutFile("/taken", []byte("x"))

	_, err := client.Create(context.Background(), "/taken", false, "")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	out, err := client.Create(context.Background(), "/taken", true, "600")
	require.NoError(t, err)
	require.NoError(t, out.Close())
	data, _ := server.FileData("/taken")
	assert.Empty(t, data)
}

func TestClient_Append(t *testing.T) {
	client, server := newTestClient(t)
	server.PutFile("/log", []byte("hello "))

	out, err := client.Append(context.Background(), "/log")
	require.NoError(t, err)
	assert.Equal(t, int64(6), out.FilePointer())
	_, err = out.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, out.Close())

	data, _ := server.FileData("/log")
	assert.Equal(t, "hello world", string(data))
}

func TestClient_ConcurrentAppend(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, client.ConcurrentAppend(ctx, "/events", []byte("abcd"), true))
		}()
	}
	wg.Wait()

	data, ok := server.FileData("/events")
	require.True(t, ok)
	assert.Len(t, data, 32)
}

func TestClient_Namespace(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()

	ok, err := client.Mkdirs(ctx, "/a/b", "750")
	require.NoError(t, err)
	assert.True(t, ok)
	server.PutFile("/a/b/one", []byte("1"))
	server.PutFile("/a/b/two", []byte("22"))

	entries, err := client.List(ctx, "/a/b")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/a/b/one", entries[0].FullPath)

	ok, err = client.Rename(ctx, "/a/b/one", "/a/one", false)
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := client.Exists(ctx, "/a/one")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = client.Exists(ctx, "/a/b/one")
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err = client.Delete(ctx, "/a", true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, server.Exists("/a"))
}

func TestClient_StatMissing(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.Stat(context.Background(), "/missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestClient_Attributes(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()
	server.PutFile("/f", []byte("x"))

	require.NoError(t, client.SetOwner(ctx, "/f", "alice", "staff"))
	require.NoError(t, client.SetPermission(ctx, "/f", "600"))
	require.NoError(t, client.SetTimes(ctx, "/f", time.Time{}, time.UnixMilli(1700000000000)))

	entry, err := client.Stat(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.User)
	assert.Equal(t, "staff", entry.Group)
	assert.Equal(t, "600", entry.Permission)

	acl, err := types.ParseAclSpec("user:bob:r-x", false)
	require.NoError(t, err)
	require.NoError(t, client.ModifyAclEntries(ctx, "/f", acl))
	status, err := client.GetAclStatus(ctx, "/f")
	require.NoError(t, err)
	assert.Contains(t, types.AclSpec(status.Entries), "user:bob:r-x")

	require.NoError(t, client.CheckAccess(ctx, "/f", "r--"))
	err = client.CheckAccess(ctx, "/f", "rwz")
	assert.True(t, errors.IsArgument(err))
}

func TestClient_Concat(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()
	server.PutFile("/parts/1", []byte("ab"))
	server.PutFile("/parts/2", []byte("cd"))
	server.PutFile("/whole", nil)

	require.NoError(t, client.Concat(ctx, "/whole", []string{"/parts/1", "/parts/2"}))
	data, _ := server.FileData("/whole")
	assert.Equal(t, "abcd", string(data))
}

func TestClient_ContentSummary(t *testing.T) {
	client, server := newTestClient(t)
	ctx := context.Background()
	for _, p := range []string{"/t/a/1", "/t/a/2", "/t/b/c/3", "/t/4"} {
		server.PutFile(p, []byte(p))
	}

	local, err := client.ContentSummary(ctx, "/t")
	require.NoError(t, err)
	remote, err := client.ServerContentSummary(ctx, "/t")
	require.NoError(t, err)

	assert.Equal(t, remote, local)
	assert.Equal(t, int64(3), local.DirectoryCount)
	assert.Equal(t, int64(4), local.FileCount)
}

func TestClient_Headers(t *testing.T) {
	server := testserver.New(t)
	cfg := testConfig(server)
	cfg.Transport.UserAgentSuffix = "ingest"
	client, err := New(cfg, StaticToken("secret"))
	require.NoError(t, err)

	server.PutFile("/f", nil)
	_, err = client.Stat(context.Background(), "/f")
	require.NoError(t, err)
	_, err = client.Stat(context.Background(), "/f")
	require.NoError(t, err)

	calls := server.CallsFor("GETFILESTATUS")
	require.Len(t, calls, 2)
	assert.Equal(t, "Bearer secret", calls[0].Header.Get("Authorization"))
	assert.Contains(t, calls[0].Header.Get("User-Agent"), "ingest")
	assert.NotEmpty(t, calls[0].Header.Get("x-ms-client-request-id"))
	assert.Empty(t, calls[0].Header.Get("x-ms-adl-client-latency"))
	assert.NotEmpty(t, calls[1].Header.Get("x-ms-adl-client-latency"))
}

func TestClient_TokenFromConfig(t *testing.T) {
	server := testserver.New(t)
	cfg := testConfig(server)
	cfg.Account.Token = "from-config"
	client, err := New(cfg)
	require.NoError(t, err)

	server.PutFile("/f", nil)
	_, err = client.Stat(context.Background(), "/f")
	require.NoError(t, err)
	assert.Equal(t, "Bearer from-config", server.CallsFor("GETFILESTATUS")[0].Header.Get("Authorization"))
}

func TestClient_LatencyTracking(t *testing.T) {
	t.Run("disabled by config", func(t *testing.T) {
		server := testserver.New(t)
		cfg := testConfig(server)
		cfg.Transport.LatencyTracking = false
		client, err := New(cfg)
		require.NoError(t, err)

		server.PutFile("/f", nil)
		for i := 0; i < 3; i++ {
			_, err = client.Stat(context.Background(), "/f")
			require.NoError(t, err)
		}
		for _, call := range server.CallsFor("GETFILESTATUS") {
			assert.Empty(t, call.Header.Get("x-ms-adl-client-latency"))
		}
	})

	t.Run("disabled at runtime", func(t *testing.T) {
		client, server := newTestClient(t)
		server.PutFile("/f", nil)
		_, err := client.Stat(context.Background(), "/f")
		require.NoError(t, err)

		client.DisableLatencyTracking()
		_, err = client.Stat(context.Background(), "/f")
		require.NoError(t, err)

		calls := server.CallsFor("GETFILESTATUS")
		assert.Empty(t, calls[1].Header.Get("x-ms-adl-client-latency"))
	})
}

func TestClient_MetricsHandler(t *testing.T) {
	client, server := newTestClient(t)
	server.PutFile("/f", nil)
	_, err := client.Stat(context.Background(), "/f")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	client.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `operation="GETFILESTATUS"`)
	assert.Contains(t, rec.Body.String(), `service="webhdfs"`)
}

type countingRecorder struct {
	mu       sync.Mutex
	attempts int
	summary  int64
}

func (r *countingRecorder) RecordAttempt(string, int, time.Duration, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
}

func (r *countingRecorder) RecordRetry(string) {}

func (r *countingRecorder) RecordSummary(directories, files int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary += directories + files
}

func TestClient_WithMetrics(t *testing.T) {
	rec := &countingRecorder{}
	client, server := newTestClient(t, WithMetrics(rec))
	server.PutFile("/d/f", nil)

	_, err := client.ContentSummary(context.Background(), "/d")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.attempts)
	assert.Equal(t, int64(1), rec.summary)

	resp := httptest.NewRecorder()
	client.MetricsHandler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestClient_RetriesExhausted(t *testing.T) {
	client, server := newTestClient(t)
	server.PutFile("/f", nil)
	server.Inject(testserver.Fault{Op: "GETFILESTATUS", Status: http.StatusServiceUnavailable})

	_, err := client.Stat(context.Background(), "/f")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	storeErr, ok := errors.AsStoreError(err)
	require.True(t, ok)
	assert.Len(t, storeErr.Attempts, 3)
	assert.Len(t, server.CallsFor("GETFILESTATUS"), 3)
}

func TestClient_StartAndClose(t *testing.T) {
	client, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Port zero leaves the endpoint off.
	require.NoError(t, client.Start(ctx))
	require.NoError(t, client.Close(ctx))
}
