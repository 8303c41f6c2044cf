/*
Package types provides the data model shared by the webhdfs client packages.

DirectoryEntry and ContentSummary are the decoded forms of GETFILESTATUS,
LISTSTATUS and GETCONTENTSUMMARY responses. SyncFlag is the write intent
attached to every append:

	DATA      append bytes, no metadata guarantee
	METADATA  flush and make length/mtime visible
	CLOSE     flush, make metadata visible, release the lease

AclEntry and AclStatus model the aclspec strings accepted by the ACL
operations:

	entries, err := types.ParseAclSpec("user:bob:r-x,default:group::rwx", false)
	if err != nil {
		return err
	}
	spec := types.AclSpec(entries)

The Lister and MetricsRecorder interfaces decouple the aggregation engine and
the transport from their concrete collaborators so each can be tested
against a fake.
*/
package types
