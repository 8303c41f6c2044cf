package types

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/objectfs/webhdfs/pkg/errors"
)

// AclScope is the scope of an ACL entry.
type AclScope string

const (
	AclScopeAccess  AclScope = "access"
	AclScopeDefault AclScope = "default"
)

// AclType is the principal kind of an ACL entry.
type AclType string

const (
	AclTypeUser  AclType = "user"
	AclTypeGroup AclType = "group"
	AclTypeMask  AclType = "mask"
	AclTypeOther AclType = "other"
)

var actionPattern = regexp.MustCompile(`^[r-][w-][x-]$`)

// AclEntry is one entry of an ACL spec, e.g. "default:user:bob:r-x".
type AclEntry struct {
	Scope  AclScope `json:"scope"`
	Type   AclType  `json:"type"`
	Name   string   `json:"name,omitempty"`
	Action string   `json:"action,omitempty"`
}

// String renders the entry in aclspec form. The action is omitted when
// empty, which is the form REMOVEACLENTRIES expects.
func (e AclEntry) String() string {
	var b strings.Builder
	if e.Scope == AclScopeDefault {
		b.WriteString("default:")
	}
	b.WriteString(string(e.Type))
	b.WriteString(":")
	b.WriteString(e.Name)
	if e.Action != "" {
		b.WriteString(":")
		b.WriteString(e.Action)
	}
	return b.String()
}

// ParseAclEntry parses one aclspec entry. When withoutAction is true the
// action part must be absent.
func ParseAclEntry(s string, withoutAction bool) (AclEntry, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	entry := AclEntry{Scope: AclScopeAccess}

	if len(parts) > 0 && parts[0] == string(AclScopeDefault) {
		entry.Scope = AclScopeDefault
		parts = parts[1:]
	}

	want := 3
	if withoutAction {
		want = 2
	}
	if len(parts) != want {
		return AclEntry{}, errors.Newf(errors.ErrCodeInvalidArgument, "malformed acl entry %q", s)
	}

	switch AclType(parts[0]) {
	case AclTypeUser, AclTypeGroup, AclTypeMask, AclTypeOther:
		entry.Type = AclType(parts[0])
	default:
		return AclEntry{}, errors.Newf(errors.ErrCodeInvalidArgument, "unknown acl type %q", parts[0])
	}
	entry.Name = parts[1]

	if !withoutAction {
		if !actionPattern.MatchString(parts[2]) {
			return AclEntry{}, errors.Newf(errors.ErrCodeInvalidArgument, "invalid acl action %q", parts[2])
		}
		entry.Action = parts[2]
	}
	return entry, nil
}

// ParseAclSpec parses a comma separated list of entries.
func ParseAclSpec(spec string, withoutAction bool) ([]AclEntry, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidArgument, "empty acl spec")
	}
	var entries []AclEntry
	for _, part := range strings.Split(spec, ",") {
		entry, err := ParseAclEntry(part, withoutAction)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// AclSpec renders entries as a comma separated aclspec.
func AclSpec(entries []AclEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}

// AclStatus is the result of GETACLSTATUS.
type AclStatus struct {
	Entries    []AclEntry `json:"entries"`
	Owner      string     `json:"owner"`
	Group      string     `json:"group"`
	Permission string     `json:"permission"`
	StickyBit  bool       `json:"sticky_bit"`
}

// String returns a compact human readable form.
func (s AclStatus) String() string {
	return fmt.Sprintf("owner=%s group=%s perm=%s sticky=%v acl=%s",
		s.Owner, s.Group, s.Permission, s.StickyBit, AclSpec(s.Entries))
}
