package core

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/webhdfs/internal/testserver"
	"github.com/objectfs/webhdfs/internal/transport"
	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/retry"
	"github.com/objectfs/webhdfs/pkg/types"
)

func newTestExecutor(t *testing.T) (*testserver.Server, *transport.Executor) {
	t.Helper()
	server := testserver.New(t)
	exec, err := transport.NewExecutor(transport.Config{
		Scheme: "http",
		Host:   server.Host(),
		Retry: retry.Config{
			MaxRetries:   3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		},
	}, nil)
	require.NoError(t, err)
	return server, exec
}

func TestCreateAndOpen(t *testing.T) {
	server, exec := newTestExecutor(t)
	ctx := context.Background()

	err := Create(ctx, exec, CreateRequest{
		Path:         "/data/file.txt",
		Permission:   "644",
		CreateParent: true,
		Data:         transport.BytesPayload([]byte("hello world")),
		SyncFlag:     types.SyncClose,
	}, nil)
	require.NoError(t, err)

	data, ok := server.FileData("/data/file.txt")
	require.True(t, ok)
	assert.Equal(t, "hello world", string(data))

	calls := server.CallsFor("CREATE")
	require.Len(t, calls, 1)
	assert.Equal(t, "CLOSE", calls[0].Query.Get("syncFlag"))
	assert.Equal(t, "true", calls[0].Query.Get("write"))
	assert.Equal(t, "644", calls[0].Query.Get("permission"))

	buf := make([]byte, 5)
	n, err := Open(ctx, exec, OpenRequest{Path: "/data/file.txt", Offset: 6, Length: 100}, buf, nil)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))
}

func TestCreate_NoOverwriteIsNotRetried(t *testing.T) {
	server, exec := newTestExecutor(t)
	server.Inject(testserver.Fault{Op: "CREATE", Status: http.StatusServiceUnavailable})

	err := Create(context.Background(), exec, CreateRequest{Path: "/f"}, nil)
	require.Error(t, err)
	assert.Len(t, server.CallsFor("CREATE"), 1)
	assert.True(t, errors.IsTransient(err))
}

func TestCreate_OverwriteIsRetried(t *testing.T) {
	server, exec := newTestExecutor(t)
	server.Inject(testserver.Fault{Op: "CREATE", Status: http.StatusServiceUnavailable, Times: 2})

	err := Create(context.Background(), exec, CreateRequest{Path: "/f", Overwrite: true}, nil)
	require.NoError(t, err)
	assert.Len(t, server.CallsFor("CREATE"), 3)
}

func TestCreate_AlreadyExists(t *testing.T) {
	server, exec := newTestExecutor(t)
	server.PutFile("/f", []byte("x"))

	err := Create(context.Background(), exec, CreateRequest{Path: "/f"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	storeErr, ok := errors.AsStoreError(err)
	require.True(t, ok)
	assert.Equal(t, "FileAlreadyExistsException", storeErr.RemoteExceptionName)
	assert.Equal(t, "CREATE", storeErr.Operation)
	assert.Equal(t, "/f", storeErr.Path)
}

func TestArgumentValidation(t *testing.T) {
	server, exec := newTestExecutor(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		code errors.ErrorCode
	}{
		{"relative path", func() error { _, err := GetFileStatus(ctx, exec, "rel/path", types.UserIDDefault, nil); return err }, errors.ErrCodeInvalidPath},
		{"empty path", func() error { _, err := Delete(ctx, exec, "", false, nil); return err }, errors.ErrCodeInvalidPath},
		{"bad permission", func() error { _, err := Mkdirs(ctx, exec, "/d", "999", nil); return err }, errors.ErrCodeInvalidPermission},
		{"short permission", func() error { return SetPermission(ctx, exec, "/d", "77", nil) }, errors.ErrCodeInvalidPermission},
		{"negative offset", func() error {
			_, err := Open(ctx, exec, OpenRequest{Path: "/f", Offset: -1, Length: 1}, make([]byte, 1), nil)
			return err
		}, errors.ErrCodeInvalidOffset},
		{"negative append offset", func() error {
			_, err := Append(ctx, exec, AppendRequest{Path: "/f", Offset: -5}, nil)
			return err
		}, errors.ErrCodeInvalidOffset},
		{"bad fsaction", func() error { return CheckAccess(ctx, exec, "/f", "rwz", nil) }, errors.ErrCodeInvalidArgument},
		{"empty acl", func() error { return SetAcl(ctx, exec, "/f", nil, nil) }, errors.ErrCodeInvalidArgument},
		{"no sources", func() error { return Concat(ctx, exec, "/f", nil, nil) }, errors.ErrCodeInvalidArgument},
		{"bad expiry", func() error { return SetExpiry(ctx, exec, "/f", types.ExpiryOption("Soon"), 0, nil) }, errors.ErrCodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
			assert.True(t, errors.IsArgument(err))
		})
	}
	assert.Empty(t, server.Calls(), "argument errors never reach the wire")
}

func TestAppend_BadOffset(t *testing.T) {
	server, exec := newTestExecutor(t)
	server.PutFile("/f", []byte("abc"))

	resp, err := Append(context.Background(), exec, AppendRequest{
		Path:     "/f",
		Offset:   1,
		Data:     transport.BytesPayload([]byte("x")),
		SyncFlag: types.SyncData,
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBadOffset))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.HTTPStatus)
	assert.Equal(t, BadOffsetException, resp.RemoteExceptionName)
}

func TestConcurrentAppend(t *testing.T) {
	server, exec := newTestExecutor(t)
	ctx := context.Background()

	err := ConcurrentAppend(ctx, exec, "/logs/a.log", false, []byte("x"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, ConcurrentAppend(ctx, exec, "/logs/a.log", true, []byte("one,"), nil))
	require.NoError(t, ConcurrentAppend(ctx, exec, "/logs/a.log", true, []byte("two"), nil))

	data, _ := server.FileData("/logs/a.log")
	assert.Equal(t, "one,two", string(data))

	calls := server.CallsFor("CONCURRENTAPPEND")
	require.Len(t, calls, 3)
	assert.Equal(t, "autocreate", calls[1].Query.Get("appendMode"))
}

func TestConcurrentAppend_NotRetriedOnServerError(t *testing.T) {
	server, exec := newTestExecutor(t)
	server.Inject(testserver.Fault{Op: "CONCURRENTAPPEND", Status: http.StatusServiceUnavailable})

	err := ConcurrentAppend(context.Background(), exec, "/f", true, []byte("x"), nil)
	require.Error(t, err)
	assert.Len(t, server.CallsFor("CONCURRENTAPPEND"), 1)
}

func TestDeleteRenameMkdirs(t *testing.T) {
	server, exec := newTestExecutor(t)
	ctx := context.Background()

	ok, err := Mkdirs(ctx, exec, "/a/b/c", "750", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, server.Exists("/a/b"))

	server.PutFile("/a/b/c/file", []byte("1"))

	ok, err = Rename(ctx, exec, "/a/b", "/x", false, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, server.Exists("/x/c/file"))
	assert.False(t, server.Exists("/a/b"))

	server.PutFile("/y", []byte("2"))
	ok, err = Rename(ctx, exec, "/x/c/file", "/y", false, nil)
	require.NoError(t, err)
	assert.False(t, ok, "existing destination without overwrite")

	ok, err = Rename(ctx, exec, "/x/c/file", "/y", true, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Delete(ctx, exec, "/x", false, nil)
	require.Error(t, err, "non-empty directory without recursive")

	ok, err = Delete(ctx, exec, "/x", true, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Delete(ctx, exec, "/missing", false, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetFileStatus(t *testing.T) {
	server, exec := newTestExecutor(t)
	server.PutFile("/dir/file.bin", make([]byte, 1234))

	entry, err := GetFileStatus(context.Background(), exec, "/dir/file.bin", types.UserIDObjectID, nil)
	require.NoError(t, err)
	assert.Equal(t, "file.bin", entry.Name)
	assert.Equal(t, "/dir/file.bin", entry.FullPath)
	assert.Equal(t, int64(1234), entry.Length)
	assert.Equal(t, types.EntryFile, entry.Type)
	assert.Equal(t, "640", entry.Permission)
	assert.False(t, entry.LastModifiedTime.IsZero())
	assert.Equal(t, "true", server.CallsFor("GETFILESTATUS")[0].Query.Get("tooid"))

	dir, err := GetFileStatus(context.Background(), exec, "/dir", types.UserIDDefault, nil)
	require.NoError(t, err)
	assert.True(t, dir.IsDir())

	_, err = GetFileStatus(context.Background(), exec, "/nope", types.UserIDDefault, nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListStatus_Paging(t *testing.T) {
	server, exec := newTestExecutor(t)
	for i := 0; i < 7; i++ {
		server.PutFile(fmt.Sprintf("/dir/f%02d", i), []byte{byte(i)})
	}
	server.Mkdir("/dir/sub")

	page, token, err := ListStatus(context.Background(), exec, "/dir", ListOptions{ListSize: 3}, nil)
	require.NoError(t, err)
	assert.Len(t, page, 3)
	assert.Equal(t, "f02", token)
	assert.Equal(t, "/dir/f00", page[0].FullPath)

	all, err := ListAll(context.Background(), exec, "/dir", 3, types.UserIDDefault)
	require.NoError(t, err)
	require.Len(t, all, 8)
	assert.Equal(t, "sub", all[7].Name)
	assert.True(t, all[7].IsDir())

	lists := server.CallsFor("LISTSTATUS")
	// One probe page plus three pages for the full listing.
	require.Len(t, lists, 4)
	assert.Equal(t, "f02", lists[2].Query.Get("listAfter"))
	assert.Equal(t, "f05", lists[3].Query.Get("listAfter"))
}

func TestGetContentSummary(t *testing.T) {
	server, exec := newTestExecutor(t)
	server.PutFile("/r/a", make([]byte, 10))
	server.PutFile("/r/b/c", make([]byte, 5))

	summary, err := GetContentSummary(context.Background(), exec, "/r", nil)
	require.NoError(t, err)
	assert.Equal(t, types.ContentSummary{Length: 15, DirectoryCount: 1, FileCount: 2, SpaceConsumed: 15}, summary)
}

func TestAttributesAndAcl(t *testing.T) {
	server, exec := newTestExecutor(t)
	server.PutFile("/f", []byte("x"))
	ctx := context.Background()

	require.NoError(t, SetOwner(ctx, exec, "/f", "alice", "", nil))
	require.NoError(t, SetPermission(ctx, exec, "/f", "0600", nil))

	mtime := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, SetTimes(ctx, exec, "/f", time.Time{}, mtime, nil))
	call := server.CallsFor("SETTIMES")[0]
	assert.Equal(t, "-1", call.Query.Get("accesstime"))
	assert.Equal(t, "1700000000000", call.Query.Get("modificationtime"))

	require.NoError(t, SetExpiry(ctx, exec, "/f", types.Absolute, 1_800_000_000_000, nil))
	require.NoError(t, SetExpiry(ctx, exec, "/f", types.NeverExpire, 0, nil))
	expiry := server.CallsFor("SETEXPIRY")
	assert.Equal(t, "1800000000000", expiry[0].Query.Get("expireTime"))
	_, hasTime := expiry[1].Query["expireTime"]
	assert.False(t, hasTime)

	entries, err := types.ParseAclSpec("user:bob:r-x,default:group:eng:rwx", false)
	require.NoError(t, err)
	require.NoError(t, SetAcl(ctx, exec, "/f", entries, nil))

	mod, _ := types.ParseAclSpec("user:bob:rwx", false)
	require.NoError(t, ModifyAclEntries(ctx, exec, "/f", mod, nil))

	status, err := GetAclStatus(ctx, exec, "/f", types.UserIDDefault, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", status.Owner)
	assert.Equal(t, "0600", status.Permission)
	assert.Equal(t, "user:bob:rwx,default:group:eng:rwx", types.AclSpec(status.Entries))

	require.NoError(t, RemoveAclEntries(ctx, exec, "/f", mod, nil))
	assert.Equal(t, "user:bob", server.CallsFor("REMOVEACLENTRIES")[0].Query.Get("aclspec"))

	require.NoError(t, RemoveDefaultAcl(ctx, exec, "/f", nil))
	status, err = GetAclStatus(ctx, exec, "/f", types.UserIDDefault, nil)
	require.NoError(t, err)
	assert.Empty(t, status.Entries)

	require.NoError(t, RemoveAcl(ctx, exec, "/f", nil))
	require.NoError(t, CheckAccess(ctx, exec, "/f", "r--", nil))

	err = CheckAccess(ctx, exec, "/missing", "r--", nil)
	assert.True(t, errors.IsNotFound(err))
}

func TestConcat(t *testing.T) {
	server, exec := newTestExecutor(t)
	server.PutFile("/parts/1", []byte("ab"))
	server.PutFile("/parts/2", []byte("cd"))
	ctx := context.Background()

	require.NoError(t, Concat(ctx, exec, "/out", []string{"/parts/1", "/parts/2"}, nil))
	data, _ := server.FileData("/out")
	assert.Equal(t, "abcd", string(data))
	assert.False(t, server.Exists("/parts/1"))

	server.PutFile("/ms/1", []byte("ef"))
	server.PutFile("/ms/2", []byte("gh"))
	require.NoError(t, MsConcat(ctx, exec, "/out2", []string{"/ms/1", "/ms/2"}, true, nil))
	data, _ = server.FileData("/out2")
	assert.Equal(t, "efgh", string(data))
	assert.False(t, server.Exists("/ms"))
}

func TestToError_Classification(t *testing.T) {
	tests := []struct {
		name string
		resp transport.OperationResponse
		code errors.ErrorCode
	}{
		{"not found by name", transport.OperationResponse{HTTPStatus: 404, RemoteExceptionName: "FileNotFoundException"}, errors.ErrCodeFileNotFound},
		{"not found by status", transport.OperationResponse{HTTPStatus: 404}, errors.ErrCodeFileNotFound},
		{"bad offset", transport.OperationResponse{HTTPStatus: 400, RemoteExceptionName: "BadOffsetException"}, errors.ErrCodeBadOffset},
		{"lease", transport.OperationResponse{HTTPStatus: 400, RemoteExceptionName: "ConcurrentWriteException"}, errors.ErrCodeLeaseConflict},
		{"forbidden", transport.OperationResponse{HTTPStatus: 403}, errors.ErrCodeAccessDenied},
		{"throttled", transport.OperationResponse{HTTPStatus: 429}, errors.ErrCodeThrottled},
		{"unavailable", transport.OperationResponse{HTTPStatus: 503}, errors.ErrCodeServiceUnavailable},
		{"timeout", transport.OperationResponse{Err: context.DeadlineExceeded}, errors.ErrCodeConnectionTimeout},
		{"network", transport.OperationResponse{Err: fmt.Errorf("dial: no route")}, errors.ErrCodeNetworkError},
		{"decode", transport.OperationResponse{HTTPStatus: 200, Message: "bad json"}, errors.ErrCodeResponseDecode},
		{"unknown remote", transport.OperationResponse{HTTPStatus: 400, RemoteExceptionName: "IllegalArgumentException"}, errors.ErrCodeRemoteError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.resp
			err := ToError(transport.OpOpen, "/p", &resp)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, "OPEN", err.Operation)
			assert.Equal(t, "/p", err.Path)
		})
	}
}

func TestToError_CarriesHistory(t *testing.T) {
	server, exec := newTestExecutor(t)
	server.Inject(testserver.Fault{Op: "GETFILESTATUS", Status: http.StatusServiceUnavailable})

	_, err := GetFileStatus(context.Background(), exec, "/f", types.UserIDDefault, nil)
	require.Error(t, err)

	storeErr, ok := errors.AsStoreError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, storeErr.HTTPStatus)
	assert.Len(t, storeErr.Attempts, 4, "one initial attempt plus three retries")
	assert.NotEmpty(t, storeErr.RequestID)
	assert.True(t, errors.IsTransient(err))
}

func TestCanceledOperation(t *testing.T) {
	_, exec := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Mkdirs(ctx, exec, "/d", "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCanceled(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.IsTransient(err))
}

func TestCallerPolicyOverridesDefault(t *testing.T) {
	server, exec := newTestExecutor(t)
	server.Inject(testserver.Fault{Op: "MKDIRS", Status: http.StatusServiceUnavailable})

	opts := &transport.RequestOptions{RetryPolicy: retry.NewNoRetry()}
	_, err := Mkdirs(context.Background(), exec, "/d", "", opts)
	require.Error(t, err)
	assert.Len(t, server.CallsFor("MKDIRS"), 1)
}
