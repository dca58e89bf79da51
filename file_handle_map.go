package smb1d

import "time"

// OpenFile is the per-FID state kept while a file or directory is open
// within a tree (spec.md §3 "Open file", §9 "handle tuples"). Handle is the
// opaque FileHandle minted by the owning Share's FilesystemDriver.
type OpenFile struct {
	FID uint16

	Handle FileHandle
	Path   string
	IsDir  bool

	Access      uint32
	ShareAccess uint32
	Disposition uint32
	Options     uint32

	CreatedAt  time.Time
	LastAccess time.Time

	DeleteOnClose bool

	PID uint16 // process id that opened the file, for byte-range lock ownership
}

// RegisterOpen indexes of by path so later opens on the same path can run a
// share-mode compatibility check (spec.md §4.6 "Create/Open" edge case
// "conflicting share modes").
func (t *Tree) RegisterOpen(of *OpenFile) {
	t.pathMu.Lock()
	t.byPath[of.Path] = append(t.byPath[of.Path], of)
	t.pathMu.Unlock()
}

func (t *Tree) unregisterPath(of *OpenFile) {
	if of == nil {
		return
	}
	t.pathMu.Lock()
	defer t.pathMu.Unlock()
	handles := t.byPath[of.Path]
	for i, h := range handles {
		if h == of {
			t.byPath[of.Path] = append(handles[:i], handles[i+1:]...)
			break
		}
	}
	if len(t.byPath[of.Path]) == 0 {
		delete(t.byPath, of.Path)
	}
}

// OpensForPath returns every currently open handle on path within this tree.
func (t *Tree) OpensForPath(path string) []*OpenFile {
	t.pathMu.Lock()
	defer t.pathMu.Unlock()
	existing := t.byPath[path]
	out := make([]*OpenFile, len(existing))
	copy(out, existing)
	return out
}

// CheckShareAccess reports whether a new open with desiredAccess/shareAccess
// is compatible with every existing open on path (spec.md §4.6 "Create/Open"
// "share-mode violation" -> StatusSharingViolation).
func (t *Tree) CheckShareAccess(path string, desiredAccess, shareAccess uint32) bool {
	for _, of := range t.OpensForPath(path) {
		if !shareModeCompatible(desiredAccess, shareAccess, of.Access, of.ShareAccess) {
			return false
		}
	}
	return true
}

// shareModeCompatible implements the MS-CIFS share-mode conflict matrix: an
// open succeeds only if each side's requested access is permitted by the
// other side's share mode.
func shareModeCompatible(newAccess, newShare, existingAccess, existingShare uint32) bool {
	if newAccess&FileReadData != 0 && existingShare&FileShareRead == 0 {
		return false
	}
	if newAccess&FileWriteData != 0 && existingShare&FileShareWrite == 0 {
		return false
	}
	if newAccess&DeleteAccess != 0 && existingShare&FileShareDelete == 0 {
		return false
	}
	if existingAccess&FileReadData != 0 && newShare&FileShareRead == 0 {
		return false
	}
	if existingAccess&FileWriteData != 0 && newShare&FileShareWrite == 0 {
		return false
	}
	if existingAccess&DeleteAccess != 0 && newShare&FileShareDelete == 0 {
		return false
	}
	return true
}
