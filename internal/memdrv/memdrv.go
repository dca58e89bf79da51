// Package memdrv is a reference in-memory FilesystemDriver: the
// implementation cmd/smb1d serves by default, backed by a real (if
// ephemeral) tree of directories and files. The dispatcher's tests run
// against the package's own testFilesystem double, not this driver. Grounded on the teacher's examples/smb-server
// populateFilesystem demo (memfs-backed sample tree) and mock_smb.go's
// mockFileData/normalizeMockPath shape, reimplemented against
// smb1d.FilesystemDriver instead of absfs.FileSystem/the client-side mock
// interfaces.
package memdrv

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fileshare/smb1d"
)

// node is one file or directory in the in-memory tree.
type node struct {
	name    string
	isDir   bool
	data    []byte
	attrs   uint32
	modTime time.Time
	created time.Time
	access  time.Time

	children map[string]*node
}

func newDirNode(name string) *node {
	now := time.Now()
	return &node{name: name, isDir: true, children: make(map[string]*node), modTime: now, created: now, access: now}
}

func (n *node) Size() int64 {
	if n.isDir {
		return 0
	}
	return int64(len(n.data))
}

// fileInfo adapts a node to io/fs.FileInfo for GetFileInformation.
type fileInfo struct{ n *node }

func (f fileInfo) Name() string       { return f.n.name }
func (f fileInfo) Size() int64        { return f.n.Size() }
func (f fileInfo) ModTime() time.Time { return f.n.modTime }
func (f fileInfo) IsDir() bool        { return f.n.isDir }
func (f fileInfo) Sys() interface{}   { return f.n }
func (f fileInfo) Mode() fs.FileMode {
	if f.n.isDir {
		return fs.ModeDir | 0755
	}
	return 0644
}

// Driver is the in-memory smb1d.FilesystemDriver implementation. One Driver
// instance backs one share; every path is resolved relative to its root.
type Driver struct {
	mu   sync.RWMutex
	root *node
}

// New builds an empty in-memory driver (a single root directory, no
// files).
func New() *Driver {
	return &Driver{root: newDirNode("/")}
}

// NewPopulated builds a driver pre-seeded with the sample document tree the
// teacher's smb-server example ships, handy for cmd/smb1d's default share
// and for integration tests that need a non-empty starting point.
func NewPopulated() *Driver {
	d := New()
	dirs := []string{
		"/documents",
		"/documents/reports",
		"/photos",
		"/music",
	}
	for _, dir := range dirs {
		if err := d.mkdirAll(dir); err != nil {
			panic(err)
		}
	}
	files := map[string]string{
		"/README.txt":                "in-memory share, contents reset on restart\n",
		"/documents/report.txt":      "quarterly report placeholder\n",
		"/documents/reports/q1.txt":  "Q1 figures placeholder\n",
		"/photos/README.txt":         "photo storage placeholder\n",
		"/music/playlist.txt":        "1. track one\n2. track two\n",
	}
	for p, content := range files {
		n, err := d.touch(p, []byte(content))
		if err != nil {
			panic(err)
		}
		_ = n
	}
	return d
}

func splitPath(p string) []string {
	p = strings.Trim(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}

// walk resolves parts under root, optionally creating intermediate
// directories.
func (d *Driver) walk(parts []string, create bool) (*node, error) {
	cur := d.root
	for i, part := range parts {
		child, ok := cur.children[part]
		if !ok {
			if !create {
				return nil, fs.ErrNotExist
			}
			child = newDirNode(part)
			cur.children[part] = child
		}
		if !child.isDir && i != len(parts)-1 {
			return nil, fs.ErrInvalid
		}
		cur = child
	}
	return cur, nil
}

func (d *Driver) resolve(p string) (*node, error) {
	return d.walk(splitPath(p), false)
}

func (d *Driver) mkdirAll(p string) error {
	_, err := d.walk(splitPath(p), true)
	return err
}

func (d *Driver) touch(p string, content []byte) (*node, error) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return nil, fs.ErrInvalid
	}
	parent, err := d.walk(parts[:len(parts)-1], true)
	if err != nil {
		return nil, err
	}
	name := parts[len(parts)-1]
	now := time.Now()
	n, ok := parent.children[name]
	if !ok {
		n = &node{name: name, created: now}
		parent.children[name] = n
	}
	n.data = content
	n.modTime = now
	n.access = now
	return n, nil
}

// FileExists implements smb1d.FilesystemDriver.
func (d *Driver) FileExists(ctx context.Context, p string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, err := d.resolve(p)
	return err == nil
}

// OpenFile implements smb1d.FilesystemDriver. access/shareAccess are
// advisory here: the in-memory tree has no concept of exclusive locks
// beyond what treeconnect.go/fileops.go already enforce via CheckShareAccess
// before ever calling in.
func (d *Driver) OpenFile(ctx context.Context, p string, access, shareAccess uint32) (smb1d.FileHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	n.access = time.Now()
	return n, nil
}

// CreateFile implements smb1d.FilesystemDriver: creates (or truncates, per
// disposition — fileops.go already decided disposition before calling
// CreateFile, so this always creates/overwrites) the leaf at path.
func (d *Driver) CreateFile(ctx context.Context, p string, access, shareAccess, disposition, attributes uint32) (smb1d.FileHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.touch(p, nil)
	if err != nil {
		return nil, err
	}
	n.attrs = attributes
	return n, nil
}

// CloseFile implements smb1d.FilesystemDriver. The in-memory node needs no
// reference counting: it lives in the tree regardless of open handle
// count, so closing is a no-op.
func (d *Driver) CloseFile(ctx context.Context, h smb1d.FileHandle) error {
	return nil
}

// ReadFile implements smb1d.FilesystemDriver.
func (d *Driver) ReadFile(ctx context.Context, h smb1d.FileHandle, buf []byte, offset int64) (int, error) {
	n, ok := h.(*node)
	if !ok || n.isDir {
		return 0, fs.ErrInvalid
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if offset >= int64(len(n.data)) {
		return 0, nil
	}
	return copy(buf, n.data[offset:]), nil
}

// WriteFile implements smb1d.FilesystemDriver, growing the backing slice as
// needed for writes past the current end of file.
func (d *Driver) WriteFile(ctx context.Context, h smb1d.FileHandle, buf []byte, offset int64) (int, error) {
	n, ok := h.(*node)
	if !ok || n.isDir {
		return 0, fs.ErrInvalid
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	end := offset + int64(len(buf))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[offset:], buf)
	n.modTime = time.Now()
	return len(buf), nil
}

// RenameFile implements smb1d.FilesystemDriver.
func (d *Driver) RenameFile(ctx context.Context, oldPath, newPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	oldParts := splitPath(oldPath)
	if len(oldParts) == 0 {
		return fs.ErrInvalid
	}
	oldParent, err := d.walk(oldParts[:len(oldParts)-1], false)
	if err != nil {
		return err
	}
	name := oldParts[len(oldParts)-1]
	n, ok := oldParent.children[name]
	if !ok {
		return fs.ErrNotExist
	}

	newParts := splitPath(newPath)
	if len(newParts) == 0 {
		return fs.ErrInvalid
	}
	newParent, err := d.walk(newParts[:len(newParts)-1], true)
	if err != nil {
		return err
	}
	delete(oldParent.children, name)
	n.name = newParts[len(newParts)-1]
	newParent.children[n.name] = n
	return nil
}

// DeleteFile implements smb1d.FilesystemDriver.
func (d *Driver) DeleteFile(ctx context.Context, p string) error {
	return d.remove(p, false)
}

// CreateDirectory implements smb1d.FilesystemDriver.
func (d *Driver) CreateDirectory(ctx context.Context, p string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mkdirAll(p)
}

// DeleteDirectory implements smb1d.FilesystemDriver.
func (d *Driver) DeleteDirectory(ctx context.Context, p string) error {
	return d.remove(p, true)
}

func (d *Driver) remove(p string, wantDir bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parts := splitPath(p)
	if len(parts) == 0 {
		return fs.ErrInvalid
	}
	parent, err := d.walk(parts[:len(parts)-1], false)
	if err != nil {
		return err
	}
	name := parts[len(parts)-1]
	n, ok := parent.children[name]
	if !ok {
		return fs.ErrNotExist
	}
	if n.isDir != wantDir {
		return fs.ErrInvalid
	}
	if n.isDir && len(n.children) > 0 {
		return fs.ErrInvalid
	}
	delete(parent.children, name)
	return nil
}

// GetFileInformation implements smb1d.FilesystemDriver.
func (d *Driver) GetFileInformation(ctx context.Context, p string) (fs.FileInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	return fileInfo{n: n}, nil
}

// TreeOpened implements smb1d.FilesystemDriver. The in-memory driver holds
// no per-tree state, so this is a no-op.
func (d *Driver) TreeOpened(ctx context.Context, tree *smb1d.Tree) error { return nil }

// TreeClosed implements smb1d.FilesystemDriver.
func (d *Driver) TreeClosed(ctx context.Context, tree *smb1d.Tree) {}

// StartSearch implements smb1d.FilesystemDriver: pattern is a normalized
// path whose final element may contain '*'/'?' wildcards (MS-CIFS 2.2.1.4.1
// via trans2find.go).
func (d *Driver) StartSearch(ctx context.Context, pattern string) (smb1d.SearchContext, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	parts := splitPath(pattern)
	var dirParts []string
	glob := "*"
	if len(parts) > 0 {
		dirParts = parts[:len(parts)-1]
		glob = parts[len(parts)-1]
	}
	dir, err := d.walk(dirParts, false)
	if err != nil {
		return nil, err
	}
	if !dir.isDir {
		return nil, fs.ErrInvalid
	}

	names := make([]string, 0, len(dir.children))
	for name := range dir.children {
		if ok, _ := path.Match(glob, name); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	records := make([]smb1d.FileInfoRecord, 0, len(names))
	for _, name := range names {
		c := dir.children[name]
		records = append(records, smb1d.FileInfoRecord{
			Name:       c.name,
			Size:       c.Size(),
			IsDir:      c.isDir,
			Attributes: c.attrs,
			ModTime:    c.modTime,
			CreateTime: c.created,
			AccessTime: c.access,
		})
	}
	return &searchContext{records: records}, nil
}

// searchContext implements smb1d.SearchContext over a pre-materialized
// slice of directory entries, snapshotted at StartSearch time so
// concurrent mutation of the tree can't invalidate an in-flight
// enumeration (mirrors mock_smb.go's copy-out-of-the-lock pattern).
type searchContext struct {
	mu      sync.Mutex
	records []smb1d.FileInfoRecord
	pos     int
}

func (s *searchContext) NextFileInfo(info *smb1d.FileInfoRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.records) {
		return false
	}
	*info = s.records[s.pos]
	s.pos++
	return true
}

func (s *searchContext) RestartAt(resumeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.Name == resumeKey {
			s.pos = i
			return nil
		}
	}
	return fs.ErrNotExist
}

func (s *searchContext) HasMoreFiles() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos < len(s.records)
}

func (s *searchContext) Close() error { return nil }
