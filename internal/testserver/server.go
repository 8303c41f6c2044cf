// Package testserver provides an in-memory webhdfs service for tests. It
// implements the subset of the REST protocol used by the client, records
// every request and supports fault injection.
package testserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Call is one request observed by the server.
type Call struct {
	Op      string
	Path    string
	Query   url.Values
	Header  http.Header
	BodyLen int
	Status  int
}

// Fault alters the handling of matching requests.
type Fault struct {
	// Op and Path restrict the fault; empty matches anything.
	Op   string
	Path string

	// Times is the number of requests affected; zero affects all.
	Times int

	// Status and Exception are returned instead of the normal response.
	Status    int
	Exception string

	// Apply runs the request against the namespace before returning the
	// fault, simulating a response lost after the server acted on it.
	Apply bool

	// Delay is waited before the request is handled.
	Delay time.Duration

	hits int
}

type node struct {
	dir        bool
	data       []byte
	owner      string
	group      string
	permission string
	atime      int64
	mtime      int64
	acl        []string
	expiry     int64
	lease      string
}

// Server is an in-memory webhdfs service.
type Server struct {
	*httptest.Server

	// Token, when set, must be presented as the bearer token.
	Token string

	mu     sync.Mutex
	nodes  map[string]*node
	calls  []Call
	faults []*Fault
}

// New starts a server with an empty root directory. The server is closed
// when the test ends.
func New(t interface{ Cleanup(func()) }) *Server {
	s := &Server{nodes: map[string]*node{"/": newDir()}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Host returns the host:port the server listens on.
func (s *Server) Host() string {
	u, _ := url.Parse(s.URL)
	return u.Host
}

// Inject adds a fault. Faults are evaluated in insertion order.
func (s *Server) Inject(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &f)
}

// ClearFaults removes all faults.
func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

// Calls returns the requests observed so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsFor returns the requests for one operation.
func (s *Server) CallsFor(op string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded requests.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// PutFile creates or replaces a file, creating parents.
func (s *Server) PutFile(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirs(path.Dir(p))
	n := newFile()
	n.data = append([]byte(nil), data...)
	s.nodes[p] = n
}

// Mkdir creates a directory and its parents.
func (s *Server) Mkdir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirs(p)
}

// Remove deletes a path and everything below it.
func (s *Server) Remove(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeTree(p)
}

// FileData returns a copy of a file's content.
func (s *Server) FileData(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[p]
	if !ok || n.dir {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

// Exists reports whether p exists.
func (s *Server) Exists(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[p]
	return ok
}

func newDir() *node {
	now := time.Now().UnixMilli()
	return &node{dir: true, owner: "owner", group: "group", permission: "770", atime: now, mtime: now}
}

func newFile() *node {
	now := time.Now().UnixMilli()
	return &node{owner: "owner", group: "group", permission: "640", atime: now, mtime: now}
}

func (s *Server) mkdirs(p string) bool {
	p = path.Clean(p)
	if n, ok := s.nodes[p]; ok {
		return n.dir
	}
	if !s.mkdirs(path.Dir(p)) {
		return false
	}
	s.nodes[p] = newDir()
	return true
}

func (s *Server) removeTree(p string) {
	prefix := strings.TrimSuffix(p, "/") + "/"
	for k := range s.nodes {
		if k == p || strings.HasPrefix(k, prefix) {
			delete(s.nodes, k)
		}
	}
	if p == "/" {
		s.nodes["/"] = newDir()
	}
}

// children returns the sorted names of the immediate children of dir.
func (s *Server) children(dir string) []string {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var names []string
	for k := range s.nodes {
		if k == dir || !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		if rest != "" && !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	query := r.URL.Query()
	call := Call{
		Op:      query.Get("op"),
		Query:   query,
		Header:  r.Header.Clone(),
		BodyLen: len(body),
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/webhdfs/v1"):
		call.Path = strings.TrimPrefix(r.URL.Path, "/webhdfs/v1")
	case strings.HasPrefix(r.URL.Path, "/WebHdfsExt"):
		call.Path = strings.TrimPrefix(r.URL.Path, "/WebHdfsExt")
	}
	if call.Path == "" {
		call.Path = "/"
	}
	call.Path = path.Clean(call.Path)

	fault := s.matchFault(call)
	if fault != nil && fault.Delay > 0 {
		select {
		case <-time.After(fault.Delay):
		case <-r.Context().Done():
		}
	}

	rec := &statusRecorder{ResponseWriter: w}
	switch {
	case s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token:
		writeException(rec, http.StatusUnauthorized, "AuthenticationException", "invalid token")
	case fault != nil && fault.Status != 0 && !fault.Apply:
		writeException(rec, fault.Status, fault.Exception, "injected fault")
	case fault != nil && fault.Status != 0:
		s.dispatch(&statusRecorder{ResponseWriter: discardWriter{}}, call, body)
		writeException(rec, fault.Status, fault.Exception, "injected fault")
	default:
		s.dispatch(rec, call, body)
	}

	call.Status = rec.status
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *Server) matchFault(c Call) *Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.faults {
		if f.Op != "" && f.Op != c.Op {
			continue
		}
		if f.Path != "" && f.Path != c.Path {
			continue
		}
		if f.Times > 0 && f.hits >= f.Times {
			continue
		}
		f.hits++
		return f
	}
	return nil
}

func (s *Server) dispatch(w *statusRecorder, c Call, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.Op {
	case "OPEN":
		s.open(w, c)
	case "CREATE":
		s.create(w, c, body)
	case "APPEND":
		s.append(w, c, body)
	case "CONCURRENTAPPEND":
		s.concurrentAppend(w, c, body)
	case "DELETE":
		s.delete(w, c)
	case "RENAME":
		s.rename(w, c)
	case "MKDIRS":
		writeJSON(w, http.StatusOK, map[string]bool{"boolean": s.mkdirs(c.Path)})
	case "LISTSTATUS":
		s.listStatus(w, c)
	case "GETFILESTATUS":
		s.getFileStatus(w, c)
	case "GETCONTENTSUMMARY":
		s.contentSummary(w, c)
	case "SETOWNER", "SETPERMISSION", "SETTIMES", "SETEXPIRY",
		"MODIFYACLENTRIES", "REMOVEACLENTRIES", "REMOVEDEFAULTACL", "REMOVEACL", "SETACL":
		s.setAttribute(w, c)
	case "GETACLSTATUS":
		s.aclStatus(w, c)
	case "CHECKACCESS":
		if _, ok := s.nodes[c.Path]; !ok {
			notFound(w, c.Path)
			return
		}
		w.WriteHeader(http.StatusOK)
	case "CONCAT":
		s.concat(w, c, strings.Split(c.Query.Get("sources"), ","), false)
	case "MSCONCAT":
		sources := strings.Split(strings.TrimPrefix(string(body), "sources="), ",")
		s.concat(w, c, sources, c.Query.Get("deleteSourceDirectory") == "true")
	default:
		writeException(w, http.StatusBadRequest, "IllegalArgumentException", "unknown operation "+c.Op)
	}
}

func (s *Server) open(w *statusRecorder, c Call) {
	n, ok := s.nodes[c.Path]
	if !ok || n.dir {
		notFound(w, c.Path)
		return
	}
	offset, _ := strconv.ParseInt(c.Query.Get("offset"), 10, 64)
	length, err := strconv.ParseInt(c.Query.Get("length"), 10, 64)
	if err != nil {
		length = int64(len(n.data))
	}
	if offset > int64(len(n.data)) {
		writeException(w, http.StatusBadRequest, "IllegalArgumentException", "offset past end of file")
		return
	}
	end := offset + length
	if end > int64(len(n.data)) {
		end = int64(len(n.data))
	}
	chunk := n.data[offset:end]
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(chunk)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(chunk)
}

func (s *Server) create(w *statusRecorder, c Call, body []byte) {
	if existing, ok := s.nodes[c.Path]; ok {
		if existing.dir || c.Query.Get("overwrite") != "true" {
			writeException(w, http.StatusForbidden, "FileAlreadyExistsException", c.Path+" already exists")
			return
		}
	}
	parent := path.Dir(c.Path)
	if c.Query.Get("CreateParent") == "false" {
		if p, ok := s.nodes[parent]; !ok || !p.dir {
			notFound(w, parent)
			return
		}
	} else if !s.mkdirs(parent) {
		writeException(w, http.StatusBadRequest, "ParentNotDirectoryException", parent+" is a file")
		return
	}

	n := newFile()
	n.data = append([]byte(nil), body...)
	if perm := c.Query.Get("permission"); perm != "" {
		n.permission = perm
	}
	if c.Query.Get("syncFlag") != "CLOSE" {
		n.lease = c.Query.Get("leaseid")
	}
	s.nodes[c.Path] = n
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) append(w *statusRecorder, c Call, body []byte) {
	n, ok := s.nodes[c.Path]
	if !ok || n.dir {
		notFound(w, c.Path)
		return
	}
	lease := c.Query.Get("leaseid")
	if n.lease != "" && lease != "" && n.lease != lease {
		writeException(w, http.StatusBadRequest, "ConcurrentWriteException", "file is leased by another writer")
		return
	}
	if offsetStr := c.Query.Get("offset"); offsetStr != "" {
		offset, _ := strconv.ParseInt(offsetStr, 10, 64)
		if offset != int64(len(n.data)) {
			writeException(w, http.StatusBadRequest, "BadOffsetException",
				"append at offset "+offsetStr+" but file length is "+strconv.Itoa(len(n.data)))
			return
		}
	}
	n.data = append(n.data, body...)
	n.mtime = time.Now().UnixMilli()
	if c.Query.Get("syncFlag") == "CLOSE" {
		n.lease = ""
	} else if lease != "" {
		n.lease = lease
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) concurrentAppend(w *statusRecorder, c Call, body []byte) {
	n, ok := s.nodes[c.Path]
	if !ok {
		if c.Query.Get("appendMode") != "autocreate" {
			notFound(w, c.Path)
			return
		}
		s.mkdirs(path.Dir(c.Path))
		n = newFile()
		s.nodes[c.Path] = n
	}
	if n.dir {
		notFound(w, c.Path)
		return
	}
	n.data = append(n.data, body...)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) delete(w *statusRecorder, c Call) {
	n, ok := s.nodes[c.Path]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"boolean": false})
		return
	}
	if n.dir && len(s.children(c.Path)) > 0 && c.Query.Get("recursive") != "true" {
		writeException(w, http.StatusForbidden, "PathIsNotEmptyDirectoryException", c.Path+" is non empty")
		return
	}
	s.removeTree(c.Path)
	writeJSON(w, http.StatusOK, map[string]bool{"boolean": true})
}

func (s *Server) rename(w *statusRecorder, c Call) {
	dst := path.Clean(c.Query.Get("destination"))
	if _, ok := s.nodes[c.Path]; !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"boolean": false})
		return
	}
	if _, exists := s.nodes[dst]; exists {
		if c.Query.Get("renameoptions") != "overwrite" {
			writeJSON(w, http.StatusOK, map[string]bool{"boolean": false})
			return
		}
		s.removeTree(dst)
	}
	s.mkdirs(path.Dir(dst))

	prefix := c.Path + "/"
	moved := make(map[string]*node)
	for k, n := range s.nodes {
		if k == c.Path {
			moved[dst] = n
		} else if strings.HasPrefix(k, prefix) {
			moved[dst+"/"+k[len(prefix):]] = n
		}
	}
	s.removeTree(c.Path)
	for k, n := range moved {
		s.nodes[k] = n
	}
	writeJSON(w, http.StatusOK, map[string]bool{"boolean": true})
}

func (s *Server) listStatus(w *statusRecorder, c Call) {
	n, ok := s.nodes[c.Path]
	if !ok {
		notFound(w, c.Path)
		return
	}

	var names []string
	if n.dir {
		names = s.children(c.Path)
	} else {
		names = []string{""}
	}

	if after := c.Query.Get("listAfter"); after != "" {
		i := sort.SearchStrings(names, after)
		for i < len(names) && names[i] <= after {
			i++
		}
		names = names[i:]
	}
	if before := c.Query.Get("listBefore"); before != "" {
		i := sort.SearchStrings(names, before)
		names = names[:i]
	}

	token := ""
	if size, err := strconv.Atoi(c.Query.Get("listSize")); err == nil && size > 0 && len(names) > size {
		names = names[:size]
		token = names[size-1]
	}

	statuses := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		if name == "" {
			statuses = append(statuses, fileStatus("", n))
			continue
		}
		statuses = append(statuses, fileStatus(name, s.nodes[path.Join(c.Path, name)]))
	}
	page := map[string]interface{}{"FileStatus": statuses}
	if token != "" {
		page["continuationToken"] = token
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"FileStatuses": page})
}

func (s *Server) getFileStatus(w *statusRecorder, c Call) {
	n, ok := s.nodes[c.Path]
	if !ok {
		notFound(w, c.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"FileStatus": fileStatus("", n)})
}

func (s *Server) contentSummary(w *statusRecorder, c Call) {
	n, ok := s.nodes[c.Path]
	if !ok {
		notFound(w, c.Path)
		return
	}
	var dirs, files, length int64
	if !n.dir {
		files, length = 1, int64(len(n.data))
	} else {
		prefix := strings.TrimSuffix(c.Path, "/") + "/"
		for k, child := range s.nodes {
			if k == c.Path || !strings.HasPrefix(k, prefix) {
				continue
			}
			if child.dir {
				dirs++
			} else {
				files++
				length += int64(len(child.data))
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ContentSummary": map[string]int64{
		"directoryCount": dirs,
		"fileCount":      files,
		"length":         length,
		"spaceConsumed":  length,
	}})
}

func (s *Server) setAttribute(w *statusRecorder, c Call) {
	n, ok := s.nodes[c.Path]
	if !ok {
		notFound(w, c.Path)
		return
	}
	q := c.Query
	switch c.Op {
	case "SETOWNER":
		if v := q.Get("owner"); v != "" {
			n.owner = v
		}
		if v := q.Get("group"); v != "" {
			n.group = v
		}
	case "SETPERMISSION":
		n.permission = q.Get("permission")
	case "SETTIMES":
		if v, _ := strconv.ParseInt(q.Get("accesstime"), 10, 64); v > 0 {
			n.atime = v
		}
		if v, _ := strconv.ParseInt(q.Get("modificationtime"), 10, 64); v > 0 {
			n.mtime = v
		}
	case "SETEXPIRY":
		if n.dir {
			writeException(w, http.StatusBadRequest, "IllegalArgumentException", "expiry applies to files only")
			return
		}
		v, _ := strconv.ParseInt(q.Get("expireTime"), 10, 64)
		switch q.Get("expiryOption") {
		case "NeverExpire":
			n.expiry = 0
		case "RelativeToNow":
			n.expiry = time.Now().UnixMilli() + v
		default:
			n.expiry = v
		}
	case "SETACL":
		n.acl = strings.Split(q.Get("aclspec"), ",")
	case "MODIFYACLENTRIES":
		for _, e := range strings.Split(q.Get("aclspec"), ",") {
			n.acl = replaceAclEntry(n.acl, e)
		}
	case "REMOVEACLENTRIES":
		for _, e := range strings.Split(q.Get("aclspec"), ",") {
			n.acl = removeAclEntry(n.acl, e)
		}
	case "REMOVEDEFAULTACL":
		var kept []string
		for _, e := range n.acl {
			if !strings.HasPrefix(e, "default:") {
				kept = append(kept, e)
			}
		}
		n.acl = kept
	case "REMOVEACL":
		n.acl = nil
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) aclStatus(w *statusRecorder, c Call) {
	n, ok := s.nodes[c.Path]
	if !ok {
		notFound(w, c.Path)
		return
	}
	entries := n.acl
	if entries == nil {
		entries = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"AclStatus": map[string]interface{}{
		"entries":    entries,
		"owner":      n.owner,
		"group":      n.group,
		"permission": n.permission,
		"stickyBit":  false,
	}})
}

func (s *Server) concat(w *statusRecorder, c Call, sources []string, deleteSourceDir bool) {
	target, ok := s.nodes[c.Path]
	if !ok {
		s.mkdirs(path.Dir(c.Path))
		target = newFile()
		s.nodes[c.Path] = target
	}
	for _, src := range sources {
		n, ok := s.nodes[src]
		if !ok || n.dir {
			notFound(w, src)
			return
		}
	}
	for _, src := range sources {
		target.data = append(target.data, s.nodes[src].data...)
		delete(s.nodes, src)
	}
	if deleteSourceDir && len(sources) > 0 {
		s.removeTree(path.Dir(sources[0]))
	}
	w.WriteHeader(http.StatusOK)
}

func fileStatus(name string, n *node) map[string]interface{} {
	typ := "FILE"
	if n.dir {
		typ = "DIRECTORY"
	}
	status := map[string]interface{}{
		"pathSuffix":       name,
		"type":             typ,
		"length":           len(n.data),
		"owner":            n.owner,
		"group":            n.group,
		"permission":       n.permission,
		"accessTime":       n.atime,
		"modificationTime": n.mtime,
		"blockSize":        268435456,
		"replication":      1,
		"aclBit":           len(n.acl) > 0,
	}
	if n.expiry > 0 {
		status["msExpirationTime"] = n.expiry
	}
	return status
}

// aclKey strips the action from an aclspec entry.
func aclKey(entry string) string {
	if i := strings.LastIndex(entry, ":"); i >= 0 {
		return entry[:i]
	}
	return entry
}

func replaceAclEntry(acl []string, entry string) []string {
	key := aclKey(entry)
	for i, e := range acl {
		if aclKey(e) == key {
			acl[i] = entry
			return acl
		}
	}
	return append(acl, entry)
}

func removeAclEntry(acl []string, key string) []string {
	var kept []string
	for _, e := range acl {
		if aclKey(e) != key {
			kept = append(kept, e)
		}
	}
	return kept
}

func notFound(w http.ResponseWriter, p string) {
	writeException(w, http.StatusNotFound, "FileNotFoundException", "File/Folder does not exist: "+p)
}

func writeException(w http.ResponseWriter, status int, name, message string) {
	if name == "" {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]interface{}{"RemoteException": map[string]string{
		"exception":     name,
		"message":       message,
		"javaClassName": "org.apache.hadoop.fs." + name,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

type discardWriter struct{}

func (discardWriter) Header() http.Header         { return http.Header{} }
func (discardWriter) Write(b []byte) (int, error) { return len(b), nil }
func (discardWriter) WriteHeader(int)             {}
