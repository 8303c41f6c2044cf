package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/objectfs/webhdfs/internal/transport"
	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/types"
)

// SetOwner changes the owner and/or group of path. Empty values are left
// unchanged.
func SetOwner(ctx context.Context, exec *transport.Executor, path, owner, group string, opts *transport.RequestOptions) error {
	if err := validatePath(transport.OpSetOwner, path); err != nil {
		return err
	}
	if owner == "" && group == "" {
		return errors.NewError(errors.ErrCodeInvalidArgument, "owner or group must be set").
			WithOperation(transport.OpSetOwner.String()).WithPath(path)
	}
	params := transport.NewQueryParams().
		SetIfNotEmpty("owner", owner).
		SetIfNotEmpty("group", group)
	return simpleCall(ctx, exec, transport.OpSetOwner, path, params, opts)
}

// SetPermission sets the octal permission of path.
func SetPermission(ctx context.Context, exec *transport.Executor, path, permission string, opts *transport.RequestOptions) error {
	if err := validatePath(transport.OpSetPermission, path); err != nil {
		return err
	}
	if permission == "" {
		return errors.NewError(errors.ErrCodeInvalidPermission, "permission cannot be empty").
			WithOperation(transport.OpSetPermission.String()).WithPath(path)
	}
	if err := validatePermission(transport.OpSetPermission, path, permission); err != nil {
		return err
	}
	params := transport.NewQueryParams().Set("permission", permission)
	return simpleCall(ctx, exec, transport.OpSetPermission, path, params, opts)
}

// SetTimes sets the access and modification times of path. A zero time
// leaves that timestamp unchanged.
func SetTimes(ctx context.Context, exec *transport.Executor, path string, atime, mtime time.Time, opts *transport.RequestOptions) error {
	if err := validatePath(transport.OpSetTimes, path); err != nil {
		return err
	}
	if atime.IsZero() && mtime.IsZero() {
		return errors.NewError(errors.ErrCodeInvalidArgument, "access or modification time must be set").
			WithOperation(transport.OpSetTimes.String()).WithPath(path)
	}
	params := transport.NewQueryParams().
		SetInt("accesstime", toMillis(atime)).
		SetInt("modificationtime", toMillis(mtime))
	return simpleCall(ctx, exec, transport.OpSetTimes, path, params, opts)
}

// SetExpiry sets when the file at path expires. expireTime is ignored for
// NeverExpire and is a duration in milliseconds for the relative options.
func SetExpiry(ctx context.Context, exec *transport.Executor, path string, option types.ExpiryOption, expireTime int64, opts *transport.RequestOptions) error {
	if err := validatePath(transport.OpSetExpiry, path); err != nil {
		return err
	}
	if !option.Valid() {
		return errors.Newf(errors.ErrCodeInvalidArgument, "unknown expiry option %q", option).
			WithOperation(transport.OpSetExpiry.String()).WithPath(path)
	}
	if err := validateOffset(transport.OpSetExpiry, path, "expireTime", expireTime); err != nil {
		return err
	}

	params := transport.NewQueryParams().Set("expiryOption", string(option))
	if option != types.NeverExpire {
		params.SetInt("expireTime", expireTime)
	}
	return simpleCall(ctx, exec, transport.OpSetExpiry, path, params, opts)
}

// ModifyAclEntries merges entries into the ACL of path.
func ModifyAclEntries(ctx context.Context, exec *transport.Executor, path string, entries []types.AclEntry, opts *transport.RequestOptions) error {
	return aclCall(ctx, exec, transport.OpModifyAclEntries, path, entries, opts)
}

// RemoveAclEntries removes entries from the ACL of path. Actions in the
// entries are ignored.
func RemoveAclEntries(ctx context.Context, exec *transport.Executor, path string, entries []types.AclEntry, opts *transport.RequestOptions) error {
	stripped := make([]types.AclEntry, len(entries))
	for i, e := range entries {
		e.Action = ""
		stripped[i] = e
	}
	return aclCall(ctx, exec, transport.OpRemoveAclEntries, path, stripped, opts)
}

// SetAcl replaces the ACL of path.
func SetAcl(ctx context.Context, exec *transport.Executor, path string, entries []types.AclEntry, opts *transport.RequestOptions) error {
	return aclCall(ctx, exec, transport.OpSetAcl, path, entries, opts)
}

// RemoveDefaultAcl removes all default entries from the ACL of path.
func RemoveDefaultAcl(ctx context.Context, exec *transport.Executor, path string, opts *transport.RequestOptions) error {
	if err := validatePath(transport.OpRemoveDefaultAcl, path); err != nil {
		return err
	}
	return simpleCall(ctx, exec, transport.OpRemoveDefaultAcl, path, nil, opts)
}

// RemoveAcl removes all non-base entries from the ACL of path.
func RemoveAcl(ctx context.Context, exec *transport.Executor, path string, opts *transport.RequestOptions) error {
	if err := validatePath(transport.OpRemoveAcl, path); err != nil {
		return err
	}
	return simpleCall(ctx, exec, transport.OpRemoveAcl, path, nil, opts)
}

// GetAclStatus returns the ACL of path.
func GetAclStatus(ctx context.Context, exec *transport.Executor, path string, format types.UserIDFormat, opts *transport.RequestOptions) (types.AclStatus, error) {
	if err := validatePath(transport.OpGetAclStatus, path); err != nil {
		return types.AclStatus{}, err
	}
	params := transport.NewQueryParams().SetIfNotEmpty("tooid", format.QueryValue())

	body, n, resp, err := execute(ctx, exec, transport.OpGetAclStatus, path, transport.Payload{}, nil, params, opts, policyExponential)
	if err != nil {
		return types.AclStatus{}, err
	}

	var v aclStatusJSON
	if err := json.Unmarshal(body[:n], &v); err != nil {
		return types.AclStatus{}, decodeFailure(transport.OpGetAclStatus, path, resp, err)
	}
	if v.AclStatus == nil {
		return types.AclStatus{}, decodeFailure(transport.OpGetAclStatus, path, resp, errMissingField("AclStatus"))
	}

	status := types.AclStatus{
		Owner:      v.AclStatus.Owner,
		Group:      v.AclStatus.Group,
		Permission: v.AclStatus.Permission,
		StickyBit:  v.AclStatus.StickyBit,
	}
	for _, s := range v.AclStatus.Entries {
		entry, err := types.ParseAclEntry(s, false)
		if err != nil {
			return types.AclStatus{}, decodeFailure(transport.OpGetAclStatus, path, resp, err)
		}
		status.Entries = append(status.Entries, entry)
	}
	return status, nil
}

// CheckAccess verifies that the caller has the rwx-style access on path.
// An access denial is returned as an error.
func CheckAccess(ctx context.Context, exec *transport.Executor, path, fsAction string, opts *transport.RequestOptions) error {
	if err := validatePath(transport.OpCheckAccess, path); err != nil {
		return err
	}
	if !fsActionPattern.MatchString(fsAction) {
		return errors.Newf(errors.ErrCodeInvalidArgument, "access %q must match [r-][w-][x-]", fsAction).
			WithOperation(transport.OpCheckAccess.String()).WithPath(path)
	}
	params := transport.NewQueryParams().Set("fsaction", fsAction)
	return simpleCall(ctx, exec, transport.OpCheckAccess, path, params, opts)
}

func aclCall(ctx context.Context, exec *transport.Executor, op transport.Operation, path string, entries []types.AclEntry, opts *transport.RequestOptions) error {
	if err := validatePath(op, path); err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.NewError(errors.ErrCodeInvalidArgument, "acl spec cannot be empty").
			WithOperation(op.String()).WithPath(path)
	}
	params := transport.NewQueryParams().Set("aclspec", types.AclSpec(entries))
	return simpleCall(ctx, exec, op, path, params, opts)
}

func simpleCall(ctx context.Context, exec *transport.Executor, op transport.Operation, path string, params *transport.QueryParams, opts *transport.RequestOptions) error {
	_, _, _, err := execute(ctx, exec, op, path, transport.Payload{}, nil, params, opts, policyExponential)
	return err
}
