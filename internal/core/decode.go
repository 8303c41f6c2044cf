package core

import (
	"encoding/json"
	"path"
	"time"

	"github.com/objectfs/webhdfs/pkg/types"
)

type booleanJSON struct {
	Boolean *bool `json:"boolean"`
}

type fileStatusJSON struct {
	PathSuffix       string `json:"pathSuffix"`
	Type             string `json:"type"`
	Length           int64  `json:"length"`
	Owner            string `json:"owner"`
	Group            string `json:"group"`
	Permission       string `json:"permission"`
	AccessTime       int64  `json:"accessTime"`
	ModificationTime int64  `json:"modificationTime"`
	BlockSize        int64  `json:"blockSize"`
	Replication      int    `json:"replication"`
	AclBit           bool   `json:"aclBit"`
	MsExpirationTime int64  `json:"msExpirationTime"`
}

type getFileStatusJSON struct {
	FileStatus *fileStatusJSON `json:"FileStatus"`
}

type listStatusJSON struct {
	FileStatuses *struct {
		FileStatus        []fileStatusJSON `json:"FileStatus"`
		ContinuationToken string           `json:"continuationToken"`
	} `json:"FileStatuses"`
}

type contentSummaryJSON struct {
	ContentSummary *struct {
		DirectoryCount int64 `json:"directoryCount"`
		FileCount      int64 `json:"fileCount"`
		Length         int64 `json:"length"`
		SpaceConsumed  int64 `json:"spaceConsumed"`
	} `json:"ContentSummary"`
}

type aclStatusJSON struct {
	AclStatus *struct {
		Entries    []string `json:"entries"`
		Owner      string   `json:"owner"`
		Group      string   `json:"group"`
		Permission string   `json:"permission"`
		StickyBit  bool     `json:"stickyBit"`
	} `json:"AclStatus"`
}

type errMissingField string

func (e errMissingField) Error() string { return "missing field " + string(e) }

func decodeBoolean(body []byte) (bool, error) {
	var v booleanJSON
	if err := json.Unmarshal(body, &v); err != nil {
		return false, err
	}
	if v.Boolean == nil {
		return false, errMissingField("boolean")
	}
	return *v.Boolean, nil
}

// toEntry builds an entry for a status found under dir. For GETFILESTATUS
// the suffix is empty and dir is the path itself.
func (s fileStatusJSON) toEntry(dir string) types.DirectoryEntry {
	full := dir
	if s.PathSuffix != "" {
		full = path.Join(dir, s.PathSuffix)
	}

	entry := types.DirectoryEntry{
		Name:             path.Base(full),
		FullPath:         full,
		Length:           s.Length,
		Type:             types.EntryFile,
		User:             s.Owner,
		Group:            s.Group,
		Permission:       s.Permission,
		LastAccessTime:   fromMillis(s.AccessTime),
		LastModifiedTime: fromMillis(s.ModificationTime),
		BlockSize:        s.BlockSize,
		Replication:      s.Replication,
		HasACL:           s.AclBit,
		ExpiryTime:       fromMillis(s.MsExpirationTime),
	}
	if s.Type == string(types.EntryDirectory) {
		entry.Type = types.EntryDirectory
	}
	return entry
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return -1
	}
	return t.UnixMilli()
}
