package core

import (
	"context"
	"encoding/json"

	"github.com/objectfs/webhdfs/internal/transport"
	"github.com/objectfs/webhdfs/pkg/types"
)

// Delete removes path and reports whether anything was deleted.
func Delete(ctx context.Context, exec *transport.Executor, path string, recursive bool, opts *transport.RequestOptions) (bool, error) {
	if err := validatePath(transport.OpDelete, path); err != nil {
		return false, err
	}
	params := transport.NewQueryParams().SetBool("recursive", recursive)
	return booleanCall(ctx, exec, transport.OpDelete, path, params, opts, policyExponential)
}

// Rename moves src to dst. With overwrite an existing destination is
// replaced.
func Rename(ctx context.Context, exec *transport.Executor, src, dst string, overwrite bool, opts *transport.RequestOptions) (bool, error) {
	if err := validatePath(transport.OpRename, src); err != nil {
		return false, err
	}
	if err := validatePath(transport.OpRename, dst); err != nil {
		return false, err
	}
	params := transport.NewQueryParams().Set("destination", dst)
	if overwrite {
		params.Set("renameoptions", "overwrite")
	}
	return booleanCall(ctx, exec, transport.OpRename, src, params, opts, policyNonIdempotent)
}

// Mkdirs creates path and any missing parents.
func Mkdirs(ctx context.Context, exec *transport.Executor, path, permission string, opts *transport.RequestOptions) (bool, error) {
	if err := validatePath(transport.OpMkdirs, path); err != nil {
		return false, err
	}
	if err := validatePermission(transport.OpMkdirs, path, permission); err != nil {
		return false, err
	}
	params := transport.NewQueryParams().SetIfNotEmpty("permission", permission)
	return booleanCall(ctx, exec, transport.OpMkdirs, path, params, opts, policyExponential)
}

// GetFileStatus returns the metadata of path.
func GetFileStatus(ctx context.Context, exec *transport.Executor, path string, format types.UserIDFormat, opts *transport.RequestOptions) (types.DirectoryEntry, error) {
	if err := validatePath(transport.OpGetFileStatus, path); err != nil {
		return types.DirectoryEntry{}, err
	}
	params := transport.NewQueryParams().SetIfNotEmpty("tooid", format.QueryValue())

	body, n, resp, err := execute(ctx, exec, transport.OpGetFileStatus, path, transport.Payload{}, nil, params, opts, policyExponential)
	if err != nil {
		return types.DirectoryEntry{}, err
	}

	var v getFileStatusJSON
	if err := json.Unmarshal(body[:n], &v); err != nil {
		return types.DirectoryEntry{}, decodeFailure(transport.OpGetFileStatus, path, resp, err)
	}
	if v.FileStatus == nil {
		return types.DirectoryEntry{}, decodeFailure(transport.OpGetFileStatus, path, resp, errMissingField("FileStatus"))
	}
	return v.FileStatus.toEntry(path), nil
}

// ListOptions selects one page of a directory listing.
type ListOptions struct {
	// ListAfter starts the page after this name or continuation token.
	ListAfter string
	// ListBefore ends the page before this name.
	ListBefore string
	// ListSize caps the page; zero lets the server choose.
	ListSize     int
	UserIDFormat types.UserIDFormat
}

// ListStatus returns one page of the children of path and the continuation
// token for the next page. An empty token means the listing is complete.
func ListStatus(ctx context.Context, exec *transport.Executor, path string, list ListOptions, opts *transport.RequestOptions) ([]types.DirectoryEntry, string, error) {
	if err := validatePath(transport.OpListStatus, path); err != nil {
		return nil, "", err
	}
	if err := validateOffset(transport.OpListStatus, path, "listSize", int64(list.ListSize)); err != nil {
		return nil, "", err
	}

	params := transport.NewQueryParams().
		SetIfNotEmpty("listAfter", list.ListAfter).
		SetIfNotEmpty("listBefore", list.ListBefore).
		SetIfNotEmpty("tooid", list.UserIDFormat.QueryValue())
	if list.ListSize > 0 {
		params.SetInt("listSize", int64(list.ListSize))
	}

	body, n, resp, err := execute(ctx, exec, transport.OpListStatus, path, transport.Payload{}, nil, params, opts, policyExponential)
	if err != nil {
		return nil, "", err
	}

	var v listStatusJSON
	if err := json.Unmarshal(body[:n], &v); err != nil {
		return nil, "", decodeFailure(transport.OpListStatus, path, resp, err)
	}
	if v.FileStatuses == nil {
		return nil, "", decodeFailure(transport.OpListStatus, path, resp, errMissingField("FileStatuses"))
	}

	entries := make([]types.DirectoryEntry, 0, len(v.FileStatuses.FileStatus))
	for _, s := range v.FileStatuses.FileStatus {
		entries = append(entries, s.toEntry(path))
	}
	return entries, v.FileStatuses.ContinuationToken, nil
}

// ListAll follows continuation tokens until the listing of path is complete.
// Each page is a separate logical operation with its own retry policy.
func ListAll(ctx context.Context, exec *transport.Executor, path string, pageSize int, format types.UserIDFormat) ([]types.DirectoryEntry, error) {
	var all []types.DirectoryEntry
	list := ListOptions{ListSize: pageSize, UserIDFormat: format}
	for {
		page, token, err := ListStatus(ctx, exec, path, list, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if token == "" || token == list.ListAfter {
			return all, nil
		}
		list.ListAfter = token
	}
}

// Lister enumerates directories through ListAll.
type Lister struct {
	Exec         *transport.Executor
	PageSize     int
	UserIDFormat types.UserIDFormat
}

// ListAll implements types.Lister.
func (l *Lister) ListAll(ctx context.Context, path string) ([]types.DirectoryEntry, error) {
	return ListAll(ctx, l.Exec, path, l.PageSize, l.UserIDFormat)
}

// GetContentSummary asks the server for the recursive totals under path.
func GetContentSummary(ctx context.Context, exec *transport.Executor, path string, opts *transport.RequestOptions) (types.ContentSummary, error) {
	if err := validatePath(transport.OpGetContentSummary, path); err != nil {
		return types.ContentSummary{}, err
	}

	body, n, resp, err := execute(ctx, exec, transport.OpGetContentSummary, path, transport.Payload{}, nil, nil, opts, policyExponential)
	if err != nil {
		return types.ContentSummary{}, err
	}

	var v contentSummaryJSON
	if err := json.Unmarshal(body[:n], &v); err != nil {
		return types.ContentSummary{}, decodeFailure(transport.OpGetContentSummary, path, resp, err)
	}
	if v.ContentSummary == nil {
		return types.ContentSummary{}, decodeFailure(transport.OpGetContentSummary, path, resp, errMissingField("ContentSummary"))
	}
	return types.ContentSummary{
		Length:         v.ContentSummary.Length,
		DirectoryCount: v.ContentSummary.DirectoryCount,
		FileCount:      v.ContentSummary.FileCount,
		SpaceConsumed:  v.ContentSummary.SpaceConsumed,
	}, nil
}

func booleanCall(ctx context.Context, exec *transport.Executor, op transport.Operation, path string, params *transport.QueryParams, opts *transport.RequestOptions, kind policyKind) (bool, error) {
	body, n, resp, err := execute(ctx, exec, op, path, transport.Payload{}, nil, params, opts, kind)
	if err != nil {
		return false, err
	}
	result, err := decodeBoolean(body[:n])
	if err != nil {
		return false, decodeFailure(op, path, resp, err)
	}
	return result, nil
}
