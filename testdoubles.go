package smb1d

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// testFileData is one entry in a testFilesystem, mirroring the teacher's
// mockFileData shape (mock_smb.go).
type testFileData struct {
	name    string
	content []byte
	isDir   bool
	modTime time.Time
}

func (f *testFileData) Name() string       { return f.name }
func (f *testFileData) Size() int64        { return int64(len(f.content)) }
func (f *testFileData) ModTime() time.Time { return f.modTime }
func (f *testFileData) IsDir() bool        { return f.isDir }
func (f *testFileData) Sys() interface{}   { return nil }

func (f *testFileData) Mode() fs.FileMode {
	if f.isDir {
		return fs.ModeDir | 0755
	}
	return 0644
}

// testFilesystem is the in-memory FilesystemDriver fake used by this
// package's own dispatcher/session tests — narrower and more controllable
// than internal/memdrv (path-keyed error injection, operation log),
// grounded directly on the teacher's MockSMBBackend (mock_smb.go).
type testFilesystem struct {
	mu sync.RWMutex

	files map[string]*testFileData

	errorOnPath map[string]error
	errorOnOp   map[string]error

	opMu sync.Mutex
	ops  []string
}

func newTestFilesystem() *testFilesystem {
	return &testFilesystem{
		files:       map[string]*testFileData{"/": {name: "/", isDir: true, modTime: time.Now()}},
		errorOnPath: make(map[string]error),
		errorOnOp:   make(map[string]error),
	}
}

func normalizeTestPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func (fsys *testFilesystem) addFile(p string, content []byte) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	p = normalizeTestPath(p)
	fsys.files[p] = &testFileData{name: path.Base(p), content: content, modTime: time.Now()}
	fsys.ensureParents(p)
}

func (fsys *testFilesystem) addDir(p string) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	p = normalizeTestPath(p)
	fsys.files[p] = &testFileData{name: path.Base(p), isDir: true, modTime: time.Now()}
	fsys.ensureParents(p)
}

func (fsys *testFilesystem) ensureParents(p string) {
	dir := path.Dir(p)
	if dir == p || dir == "/" {
		return
	}
	if _, ok := fsys.files[dir]; !ok {
		fsys.files[dir] = &testFileData{name: path.Base(dir), isDir: true, modTime: time.Now()}
		fsys.ensureParents(dir)
	}
}

// setError injects an error returned for every call against path p,
// regardless of operation.
func (fsys *testFilesystem) setError(p string, err error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.errorOnPath[normalizeTestPath(p)] = err
}

func (fsys *testFilesystem) checkError(op, p string) error {
	if err, ok := fsys.errorOnOp[op]; ok {
		return err
	}
	if err, ok := fsys.errorOnPath[p]; ok {
		return err
	}
	return nil
}

func (fsys *testFilesystem) recordOp(op string) {
	fsys.opMu.Lock()
	fsys.ops = append(fsys.ops, op)
	fsys.opMu.Unlock()
}

func (fsys *testFilesystem) operations() []string {
	fsys.opMu.Lock()
	defer fsys.opMu.Unlock()
	out := make([]string, len(fsys.ops))
	copy(out, fsys.ops)
	return out
}

func (fsys *testFilesystem) FileExists(ctx context.Context, p string) bool {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	_, ok := fsys.files[normalizeTestPath(p)]
	return ok
}

func (fsys *testFilesystem) OpenFile(ctx context.Context, p string, access, shareAccess uint32) (FileHandle, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	p = normalizeTestPath(p)
	fsys.recordOp("open:" + p)
	if err := fsys.checkError("open", p); err != nil {
		return nil, err
	}
	f, ok := fsys.files[p]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return f, nil
}

func (fsys *testFilesystem) CreateFile(ctx context.Context, p string, access, shareAccess, disposition, attributes uint32) (FileHandle, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	p = normalizeTestPath(p)
	fsys.recordOp("create:" + p)
	if err := fsys.checkError("create", p); err != nil {
		return nil, err
	}
	f := &testFileData{name: path.Base(p), modTime: time.Now()}
	fsys.files[p] = f
	fsys.ensureParents(p)
	return f, nil
}

func (fsys *testFilesystem) CloseFile(ctx context.Context, h FileHandle) error {
	return nil
}

func (fsys *testFilesystem) ReadFile(ctx context.Context, h FileHandle, buf []byte, offset int64) (int, error) {
	f, ok := h.(*testFileData)
	if !ok {
		return 0, fs.ErrInvalid
	}
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	if offset >= int64(len(f.content)) {
		return 0, nil
	}
	return copy(buf, f.content[offset:]), nil
}

func (fsys *testFilesystem) WriteFile(ctx context.Context, h FileHandle, buf []byte, offset int64) (int, error) {
	f, ok := h.(*testFileData)
	if !ok {
		return 0, fs.ErrInvalid
	}
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	end := offset + int64(len(buf))
	if end > int64(len(f.content)) {
		grown := make([]byte, end)
		copy(grown, f.content)
		f.content = grown
	}
	copy(f.content[offset:], buf)
	return len(buf), nil
}

func (fsys *testFilesystem) RenameFile(ctx context.Context, oldPath, newPath string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	oldPath, newPath = normalizeTestPath(oldPath), normalizeTestPath(newPath)
	f, ok := fsys.files[oldPath]
	if !ok {
		return fs.ErrNotExist
	}
	delete(fsys.files, oldPath)
	f.name = path.Base(newPath)
	fsys.files[newPath] = f
	return nil
}

func (fsys *testFilesystem) DeleteFile(ctx context.Context, p string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	p = normalizeTestPath(p)
	if _, ok := fsys.files[p]; !ok {
		return fs.ErrNotExist
	}
	delete(fsys.files, p)
	return nil
}

func (fsys *testFilesystem) CreateDirectory(ctx context.Context, p string) error {
	fsys.addDir(p)
	return nil
}

func (fsys *testFilesystem) DeleteDirectory(ctx context.Context, p string) error {
	return fsys.DeleteFile(ctx, p)
}

func (fsys *testFilesystem) GetFileInformation(ctx context.Context, p string) (fs.FileInfo, error) {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	f, ok := fsys.files[normalizeTestPath(p)]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return f, nil
}

func (fsys *testFilesystem) TreeOpened(ctx context.Context, tree *Tree) error { return nil }
func (fsys *testFilesystem) TreeClosed(ctx context.Context, tree *Tree)      {}

func (fsys *testFilesystem) StartSearch(ctx context.Context, pattern string) (SearchContext, error) {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	pattern = normalizeTestPath(pattern)
	dir, glob := path.Split(pattern)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		dir = "/"
	}

	var names []string
	for p := range fsys.files {
		if p == "/" {
			continue
		}
		if path.Dir(p) != dir {
			continue
		}
		if ok, _ := path.Match(glob, path.Base(p)); ok {
			names = append(names, p)
		}
	}
	sort.Strings(names)

	records := make([]FileInfoRecord, 0, len(names))
	for _, p := range names {
		f := fsys.files[p]
		records = append(records, FileInfoRecord{Name: f.name, Size: f.Size(), IsDir: f.isDir, ModTime: f.modTime})
	}
	return &testSearchContext{records: records}, nil
}

// testSearchContext implements SearchContext over a static slice, the same
// shape internal/memdrv uses.
type testSearchContext struct {
	records []FileInfoRecord
	pos     int
}

func (s *testSearchContext) NextFileInfo(info *FileInfoRecord) bool {
	if s.pos >= len(s.records) {
		return false
	}
	*info = s.records[s.pos]
	s.pos++
	return true
}

func (s *testSearchContext) RestartAt(resumeKey string) error {
	for i, r := range s.records {
		if r.Name == resumeKey {
			s.pos = i
			return nil
		}
	}
	return fs.ErrNotExist
}

func (s *testSearchContext) HasMoreFiles() bool { return s.pos < len(s.records) }
func (s *testSearchContext) Close() error       { return nil }

// testIPCHandler is a no-op IPCHandler fake: IPC$ requests succeed without
// actually speaking any named-pipe RPC dialect, enough to exercise
// TreeConnectAndX/Transaction dispatch in tests that don't care about the
// RPC payload itself.
type testIPCHandler struct {
	calls int
	mu    sync.Mutex
}

func (h *testIPCHandler) ProcessIPCRequest(ctx context.Context, session *Session, cmd Command, req, resp *Packet) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return nil
}

func (h *testIPCHandler) ProcTransaction(ctx context.Context, vc *VirtualCircuit, txn *transactionBuffer, session *Session) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return nil
}
