package smb1d

import (
	"path"
	"strings"
)

// pathNormalizer converts the backslash-separated paths carried in SMB1
// requests (TreeConnect UNC names, Open/Create/Rename byte-area paths,
// Trans2 path-info paths) into a canonical forward-slash form the
// FilesystemDriver collaborator can consume.
type pathNormalizer struct {
	caseSensitive bool
}

// newPathNormalizer creates a new path normalizer. caseSensitive controls
// whether paths are folded to lowercase before comparison/lookup, matching
// the teacher's case-insensitive-by-default SMB convention.
func newPathNormalizer(caseSensitive bool) *pathNormalizer {
	return &pathNormalizer{caseSensitive: caseSensitive}
}

// normalize normalizes a share-relative path. Accepted forms:
//   - SMB wire form: path\to\file (backslash separated, no leading slash)
//   - Unix-style: /path/to/file
func (pn *pathNormalizer) normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)

	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	if !pn.caseSensitive {
		p = strings.ToLower(p)
	}

	return p
}

// join joins path components and normalizes the result.
func (pn *pathNormalizer) join(elem ...string) string {
	joined := path.Join(elem...)
	return pn.normalize(joined)
}

// dir returns the directory portion of the path.
func (pn *pathNormalizer) dir(p string) string {
	p = pn.normalize(p)
	return path.Dir(p)
}

// base returns the last element of the path.
func (pn *pathNormalizer) base(p string) string {
	p = pn.normalize(p)
	return path.Base(p)
}

// split splits the path into directory and file components.
func (pn *pathNormalizer) split(p string) (dir, file string) {
	p = pn.normalize(p)
	return path.Split(p)
}

// isAbs returns true if the path is absolute in either separator style.
func isAbs(p string) bool {
	return strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\")
}

// validatePath rejects paths that are empty, contain embedded NULs, or
// attempt to traverse above the share root — the dispatcher calls this
// before handing a path to the FilesystemDriver collaborator.
func validatePath(p string) *SmbError {
	if p == "" {
		return NewSmbError(StatusObjectNameInvalid, "empty path")
	}
	if strings.Contains(p, "\x00") {
		return NewSmbError(StatusObjectNameInvalid, "embedded NUL")
	}

	normalized := strings.ReplaceAll(p, "\\", "/")
	cleaned := path.Clean(normalized)

	if strings.HasPrefix(cleaned, "..") || strings.Contains(cleaned, "/..") {
		return NewSmbError(StatusObjectNameInvalid, "path traversal")
	}

	return nil
}

// toSMBPath converts a normalized Unix-style path to SMB wire format
// (backslash separated, no leading slash).
func toSMBPath(p string) string {
	p = strings.TrimPrefix(p, "/")
	p = strings.ReplaceAll(p, "/", "\\")
	return p
}

// fromSMBPath converts an SMB wire path to normalized Unix-style form.
func fromSMBPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// extractShareName extracts the share name from a UNC path, e.g.
// \\server\share\subpath -> share. Grounded on the teacher's
// smb2_handlers.go extractShareName helper.
func extractShareName(p string) string {
	for len(p) > 0 && (p[0] == '\\' || p[0] == '/') {
		p = p[1:]
	}
	for i := 0; i < len(p); i++ {
		if p[i] == '\\' || p[i] == '/' {
			p = p[i+1:]
			break
		}
	}
	for i := 0; i < len(p); i++ {
		if p[i] == '\\' || p[i] == '/' {
			return p[:i]
		}
	}
	return p
}
