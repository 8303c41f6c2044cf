package transport

import "net/http"

// Operation identifies one REST capability of the service.
type Operation int

const (
	OpOpen Operation = iota + 1
	OpCreate
	OpAppend
	OpConcurrentAppend
	OpDelete
	OpRename
	OpMkdirs
	OpListStatus
	OpGetFileStatus
	OpGetContentSummary
	OpSetOwner
	OpSetPermission
	OpSetTimes
	OpSetExpiry
	OpModifyAclEntries
	OpRemoveAclEntries
	OpRemoveDefaultAcl
	OpRemoveAcl
	OpSetAcl
	OpGetAclStatus
	OpCheckAccess
	OpConcat
	OpMsConcat
)

// Protocol namespaces.
const (
	NamespaceWebHDFS   = "/webhdfs/v1"
	NamespaceExtension = "/WebHdfsExt"
)

// Descriptor is the fixed wire shape of an operation.
type Descriptor struct {
	Name         string
	Method       string
	RequiresBody bool
	ReturnsBody  bool
	Namespace    string
}

// Descriptor returns the wire shape of op. ok is false for values outside
// the enumeration.
func (op Operation) Descriptor() (d Descriptor, ok bool) {
	switch op {
	case OpOpen:
		return Descriptor{"OPEN", http.MethodGet, false, true, NamespaceWebHDFS}, true
	case OpCreate:
		return Descriptor{"CREATE", http.MethodPut, true, false, NamespaceWebHDFS}, true
	case OpAppend:
		return Descriptor{"APPEND", http.MethodPost, true, false, NamespaceWebHDFS}, true
	case OpConcurrentAppend:
		return Descriptor{"CONCURRENTAPPEND", http.MethodPost, true, false, NamespaceExtension}, true
	case OpDelete:
		return Descriptor{"DELETE", http.MethodDelete, false, true, NamespaceWebHDFS}, true
	case OpRename:
		return Descriptor{"RENAME", http.MethodPut, false, true, NamespaceWebHDFS}, true
	case OpMkdirs:
		return Descriptor{"MKDIRS", http.MethodPut, false, true, NamespaceWebHDFS}, true
	case OpListStatus:
		return Descriptor{"LISTSTATUS", http.MethodGet, false, true, NamespaceWebHDFS}, true
	case OpGetFileStatus:
		return Descriptor{"GETFILESTATUS", http.MethodGet, false, true, NamespaceWebHDFS}, true
	case OpGetContentSummary:
		return Descriptor{"GETCONTENTSUMMARY", http.MethodGet, false, true, NamespaceWebHDFS}, true
	case OpSetOwner:
		return Descriptor{"SETOWNER", http.MethodPut, false, false, NamespaceWebHDFS}, true
	case OpSetPermission:
		return Descriptor{"SETPERMISSION", http.MethodPut, false, false, NamespaceWebHDFS}, true
	case OpSetTimes:
		return Descriptor{"SETTIMES", http.MethodPut, false, false, NamespaceWebHDFS}, true
	case OpSetExpiry:
		return Descriptor{"SETEXPIRY", http.MethodPut, false, false, NamespaceExtension}, true
	case OpModifyAclEntries:
		return Descriptor{"MODIFYACLENTRIES", http.MethodPut, false, false, NamespaceWebHDFS}, true
	case OpRemoveAclEntries:
		return Descriptor{"REMOVEACLENTRIES", http.MethodPut, false, false, NamespaceWebHDFS}, true
	case OpRemoveDefaultAcl:
		return Descriptor{"REMOVEDEFAULTACL", http.MethodPut, false, false, NamespaceWebHDFS}, true
	case OpRemoveAcl:
		return Descriptor{"REMOVEACL", http.MethodPut, false, false, NamespaceWebHDFS}, true
	case OpSetAcl:
		return Descriptor{"SETACL", http.MethodPut, false, false, NamespaceWebHDFS}, true
	case OpGetAclStatus:
		return Descriptor{"GETACLSTATUS", http.MethodGet, false, true, NamespaceWebHDFS}, true
	case OpCheckAccess:
		return Descriptor{"CHECKACCESS", http.MethodGet, false, false, NamespaceWebHDFS}, true
	case OpConcat:
		return Descriptor{"CONCAT", http.MethodPost, false, false, NamespaceWebHDFS}, true
	case OpMsConcat:
		return Descriptor{"MSCONCAT", http.MethodPost, true, false, NamespaceExtension}, true
	}
	return Descriptor{}, false
}

// String returns the wire name of the operation.
func (op Operation) String() string {
	if d, ok := op.Descriptor(); ok {
		return d.Name
	}
	return "UNKNOWN"
}
