package smb1d

import (
	"fmt"
	"strings"
	"sync"
)

// ShareType distinguishes the resource class advertised by TreeConnectAndX
// and enumerated over IPC$ (spec.md §6 "share-level security", §4.6 "Tree
// connect").
type ShareType int

const (
	ShareTypeDisk ShareType = iota
	ShareTypePrintQueue
	ShareTypeDevice
	ShareTypeIPC
	ShareTypeSpecial
)

func (t ShareType) String() string {
	switch t {
	case ShareTypeDisk:
		return "DISKTREE"
	case ShareTypePrintQueue:
		return "PRINTQ"
	case ShareTypeDevice:
		return "COMM"
	case ShareTypeIPC:
		return "IPC"
	case ShareTypeSpecial:
		return "SPECIAL"
	default:
		return "UNKNOWN"
	}
}

// Share binds a share name to the FilesystemDriver that serves it, plus the
// access policy applied at tree-connect time (spec.md §6 "Share-level
// security", §9 "share table").
type Share struct {
	Name    string
	Type    ShareType
	Comment string

	Driver FilesystemDriver

	ReadOnly bool

	// Password is stored with the share. Neither NTLMAuthenticator nor
	// GuestAuthenticator checks it at TreeConnectAndX time.
	Password string

	MaxTreeConnections int
}

// staticShareRegistry is the in-memory ShareRegistry implementation: a fixed
// table of shares configured at startup, plus the always-present IPC$ pipe
// share (spec.md §4.6 step 5 "IPC$").
type staticShareRegistry struct {
	mu     sync.RWMutex
	shares map[string]*Share
}

// NewShareRegistry builds a registry seeded with shares and an IPC$ entry
// backed by ipc. ipc may be nil if the server exposes no named-pipe surface.
func NewShareRegistry(shares []*Share, ipc FilesystemDriver) *staticShareRegistry {
	r := &staticShareRegistry{shares: make(map[string]*Share, len(shares)+1)}
	for _, s := range shares {
		r.shares[normalizeShareName(s.Name)] = s
	}
	if ipc != nil {
		r.shares[normalizeShareName("IPC$")] = &Share{
			Name:    "IPC$",
			Type:    ShareTypeIPC,
			Comment: "Remote IPC",
			Driver:  ipc,
		}
	}
	return r
}

func normalizeShareName(name string) string {
	return strings.ToUpper(name)
}

// FindShare implements ShareRegistry. create is accepted for interface
// symmetry with drivers that lazily provision per-session shares; the static
// registry ignores it and only ever resolves from its fixed table.
func (r *staticShareRegistry) FindShare(name string, shareType ShareType, session *Session, create bool) (*Share, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	share, ok := r.shares[normalizeShareName(name)]
	if !ok {
		return nil, fmt.Errorf("share %q: %w", name, ErrShareNotFound)
	}
	if shareType != ShareTypeDisk && share.Type != shareType && share.Type != ShareTypeIPC {
		return nil, fmt.Errorf("share %q is not of the requested type: %w", name, ErrShareNotFound)
	}
	return share, nil
}

// AddShare registers or replaces a share at runtime.
func (r *staticShareRegistry) AddShare(share *Share) {
	r.mu.Lock()
	r.shares[normalizeShareName(share.Name)] = share
	r.mu.Unlock()
}

// RemoveShare withdraws a share from future TreeConnectAndX calls; existing
// tree connections are unaffected until their session tears down.
func (r *staticShareRegistry) RemoveShare(name string) {
	r.mu.Lock()
	delete(r.shares, normalizeShareName(name))
	r.mu.Unlock()
}

// ListShares returns a snapshot of every configured share, for IPC$
// NetShareEnum responses.
func (r *staticShareRegistry) ListShares() []*Share {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Share, 0, len(r.shares))
	for _, s := range r.shares {
		out = append(out, s)
	}
	return out
}
