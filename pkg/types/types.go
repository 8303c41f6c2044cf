package types

import (
	"time"
)

// EntryType distinguishes files from directories in a listing.
type EntryType string

const (
	EntryFile      EntryType = "FILE"
	EntryDirectory EntryType = "DIRECTORY"
)

// DirectoryEntry is a metadata snapshot of one remote path as returned by
// GETFILESTATUS or LISTSTATUS. It is never mutated after construction.
type DirectoryEntry struct {
	Name             string    `json:"name"`
	FullPath         string    `json:"full_path"`
	Length           int64     `json:"length"`
	Type             EntryType `json:"type"`
	User             string    `json:"user"`
	Group            string    `json:"group"`
	Permission       string    `json:"permission"`
	LastAccessTime   time.Time `json:"last_access_time"`
	LastModifiedTime time.Time `json:"last_modified_time"`
	BlockSize        int64     `json:"block_size"`
	Replication      int       `json:"replication"`
	HasACL           bool      `json:"has_acl"`
	ExpiryTime       time.Time `json:"expiry_time,omitempty"`
}

// IsDir reports whether the entry is a directory.
func (e DirectoryEntry) IsDir() bool {
	return e.Type == EntryDirectory
}

// ContentSummary holds the recursive totals under a directory.
type ContentSummary struct {
	Length         int64 `json:"length"`
	DirectoryCount int64 `json:"directory_count"`
	FileCount      int64 `json:"file_count"`
	SpaceConsumed  int64 `json:"space_consumed"`
}

// SyncFlag is the write intent carried by every append.
type SyncFlag int

const (
	// SyncData appends bytes without any metadata guarantee.
	SyncData SyncFlag = iota
	// SyncMetadata flushes and makes length and mtime visible to stat and list.
	SyncMetadata
	// SyncClose flushes, makes metadata visible and releases the lease.
	SyncClose
)

// String returns the wire value of the flag.
func (f SyncFlag) String() string {
	switch f {
	case SyncData:
		return "DATA"
	case SyncMetadata:
		return "METADATA"
	case SyncClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ExpiryOption selects how SETEXPIRY interprets its expire time.
type ExpiryOption string

const (
	NeverExpire            ExpiryOption = "NeverExpire"
	RelativeToNow          ExpiryOption = "RelativeToNow"
	RelativeToCreationDate ExpiryOption = "RelativeToCreationDate"
	Absolute               ExpiryOption = "Absolute"
)

// Valid reports whether the option is one the server understands.
func (o ExpiryOption) Valid() bool {
	switch o {
	case NeverExpire, RelativeToNow, RelativeToCreationDate, Absolute:
		return true
	}
	return false
}

// UserIDFormat selects how owners and groups are rendered in responses.
type UserIDFormat int

const (
	// UserIDDefault leaves the choice to the server.
	UserIDDefault UserIDFormat = iota
	// UserIDObjectID returns object ids.
	UserIDObjectID
	// UserIDPrincipalName returns user principal names.
	UserIDPrincipalName
)

// QueryValue returns the value of the tooid parameter, or "" when the
// parameter is omitted.
func (f UserIDFormat) QueryValue() string {
	switch f {
	case UserIDObjectID:
		return "true"
	case UserIDPrincipalName:
		return "false"
	default:
		return ""
	}
}
