package smb1d

import (
	"context"
	"net"
	"sync"
	"time"
)

// idArena allocates 16-bit handle ids with a next-free scan and wraparound,
// skipping a set of reserved values and the always-unused slot 0 (spec.md
// §4.5, §9 "arenas with handle ids"). It backs UID, TID, FID, and
// search-slot allocation uniformly.
type idArena[T any] struct {
	mu       sync.Mutex
	slots    map[uint16]T
	capacity int
	reserved map[uint16]bool
	next     uint16
}

func newIDArena[T any](capacity int, reserved ...uint16) *idArena[T] {
	r := make(map[uint16]bool, len(reserved))
	for _, v := range reserved {
		r[v] = true
	}
	return &idArena[T]{
		slots:    make(map[uint16]T),
		capacity: capacity,
		reserved: r,
		next:     1,
	}
}

// allocate finds the next free, non-reserved, non-zero id and stores value
// under it. Returns ok=false when the arena is at capacity.
func (a *idArena[T]) allocate(value T) (uint16, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.capacity > 0 && len(a.slots) >= a.capacity {
		return 0, false
	}

	start := a.next
	for {
		id := a.next
		a.next++
		if a.next == 0 {
			a.next = 1
		}
		if id != 0 && !a.reserved[id] {
			if _, taken := a.slots[id]; !taken {
				a.slots[id] = value
				return id, true
			}
		}
		if a.next == start {
			return 0, false
		}
	}
}

func (a *idArena[T]) get(id uint16) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.slots[id]
	return v, ok
}

func (a *idArena[T]) release(id uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.slots, id)
}

func (a *idArena[T]) each(fn func(id uint16, value T)) {
	a.mu.Lock()
	snapshot := make(map[uint16]T, len(a.slots))
	for id, v := range a.slots {
		snapshot[id] = v
	}
	a.mu.Unlock()
	for id, v := range snapshot {
		fn(id, v)
	}
}

func (a *idArena[T]) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}

// SessionState is the connection lifecycle state machine (spec.md §4.4).
type SessionState int

const (
	StateNetBIOSSessionRequest SessionState = iota
	StateSMBNegotiate
	StateSMBSessionSetup
	StateSMBSession
	StateNetBIOSHangup
)

func (s SessionState) String() string {
	switch s {
	case StateNetBIOSSessionRequest:
		return "NetBIOS-SessionRequest"
	case StateSMBNegotiate:
		return "SMB-Negotiate"
	case StateSMBSessionSetup:
		return "SMB-SessionSetup"
	case StateSMBSession:
		return "SMB-Session"
	case StateNetBIOSHangup:
		return "NetBIOS-Hangup"
	default:
		return "Unknown"
	}
}

// reservedUIDs are never allocated (spec.md §3 "Virtual circuit").
var reservedUIDs = []uint16{0, 0xFFFF}

// sessionSetupScratch is the per-PID two-stage-auth bookkeeping a session
// keeps while a multi-leg SessionSetupAndX (SPNEGO) is in progress.
type sessionSetupScratch struct {
	challenge []byte
	partial   UserCredentials
}

// Session is all per-connection state (spec.md §3 "Session"). One is
// created per accepted connection and destroyed only after every owned
// resource has been torn down.
type Session struct {
	mu sync.Mutex

	Transport  TransportKind
	RemoteAddr net.Addr
	CalledName string
	CallingName string

	state SessionState

	Dialect          DialectID
	Capabilities     uint32
	MaxBufferSize    uint32
	MaxMultiplexCount uint16

	circuits *idArena[*VirtualCircuit]

	notifies []*NotifyRequest

	async *asyncQueue

	setupScratch map[uint16]*sessionSetupScratch // keyed by PID

	SigningKey []byte
	signing    *signingState

	readInProgress bool

	framer *Framer
	pool   *PacketPool

	deferredOps map[uint16]func(reason NTStatus) // keyed by MID, for NTCancel

	closeOnce sync.Once
}

// NewSession constructs a session in its initial lifecycle state.
func NewSession(transport TransportKind, remote net.Addr, framer *Framer, pool *PacketPool, maxVCs int) *Session {
	initial := StateSMBNegotiate
	if transport == TransportNetBIOS {
		initial = StateNetBIOSSessionRequest
	}
	return &Session{
		Transport:    transport,
		RemoteAddr:   remote,
		state:        initial,
		circuits:     newIDArena[*VirtualCircuit](maxVCs, reservedUIDs...),
		async:        newAsyncQueue(),
		setupScratch: make(map[uint16]*sessionSetupScratch),
		framer:       framer,
		pool:         pool,
		deferredOps:  make(map[uint16]func(reason NTStatus)),
	}
}

// EnableSigning installs the per-session MD5 signing sequence once a
// SessionSetupAndX derives a session key (spec.md §4.3).
func (s *Session) EnableSigning(key []byte) {
	s.mu.Lock()
	s.SigningKey = key
	s.signing = newSigningState(key)
	s.mu.Unlock()
}

func (s *Session) Signing() *signingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signing
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// SetDialect records the dialect selected during Negotiate (spec.md §4.3).
func (s *Session) SetDialect(d DialectID) {
	s.mu.Lock()
	s.Dialect = d
	s.mu.Unlock()
}

// AllocateVC allocates a new virtual circuit (UID), per spec.md §4.5.
func (s *Session) AllocateVC(identity UserCredentials) (*VirtualCircuit, *SmbError) {
	vc := &VirtualCircuit{
		Identity: identity,
		trees:    newIDArena[*Tree](0, 0),
		searches: newIDArena[SearchContext](0, 0),
	}
	uid, ok := s.circuits.allocate(vc)
	if !ok {
		return nil, NewSmbError(StatusLogonFailure, "too many virtual circuits")
	}
	vc.UID = uid
	return vc, nil
}

func (s *Session) VirtualCircuit(uid uint16) (*VirtualCircuit, bool) {
	return s.circuits.get(uid)
}

func (s *Session) ReleaseVC(uid uint16) {
	if vc, ok := s.circuits.get(uid); ok {
		vc.closeAll()
	}
	s.circuits.release(uid)
}

// SetupScratch returns (creating if necessary) the in-progress session-setup
// state for the request's PID.
func (s *Session) SetupScratch(pid uint16) *sessionSetupScratch {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.setupScratch[pid]
	if !ok {
		sc = &sessionSetupScratch{}
		s.setupScratch[pid] = sc
	}
	return sc
}

func (s *Session) ClearSetupScratch(pid uint16) {
	s.mu.Lock()
	delete(s.setupScratch, pid)
	s.mu.Unlock()
}

// RegisterNotify and UnregisterNotifies implement the bookkeeping half of
// spec.md §3 "Notify request" and §4.4 "Close".
func (s *Session) RegisterNotify(req *NotifyRequest) {
	s.mu.Lock()
	s.notifies = append(s.notifies, req)
	s.mu.Unlock()
}

func (s *Session) Notifies() []*NotifyRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*NotifyRequest, len(s.notifies))
	copy(out, s.notifies)
	return out
}

func (s *Session) clearNotifies() {
	s.mu.Lock()
	s.notifies = nil
	s.mu.Unlock()
}

// RegisterDeferred/CancelDeferred back NTCancel lookups (spec.md §5
// "Cancellation").
func (s *Session) RegisterDeferred(mid uint16, abandon func(reason NTStatus)) {
	s.mu.Lock()
	s.deferredOps[mid] = abandon
	s.mu.Unlock()
}

func (s *Session) ClearDeferred(mid uint16) {
	s.mu.Lock()
	delete(s.deferredOps, mid)
	s.mu.Unlock()
}

func (s *Session) CancelDeferred(mid uint16) bool {
	s.mu.Lock()
	abandon, ok := s.deferredOps[mid]
	delete(s.deferredOps, mid)
	s.mu.Unlock()
	if ok {
		abandon(StatusCancelled)
	}
	return ok
}

// Hangup implements spec.md §4.4 "Close": tear down every virtual circuit
// (which tears down trees, which tears down files), unregister notifies,
// and mark the session dead. The socket itself is closed by the caller
// (listener.go/acceptor.go), which owns the net.Conn.
func (s *Session) Hangup(notifyHandler ChangeNotifyHandler) {
	s.closeOnce.Do(func() {
		s.SetState(StateNetBIOSHangup)
		s.circuits.each(func(_ uint16, vc *VirtualCircuit) { vc.closeAll() })
		if notifyHandler != nil {
			notifyHandler.RemoveNotifyRequests(s)
		}
		s.clearNotifies()
	})
}

// VirtualCircuit is a logged-on user context within a session (spec.md §3
// "Virtual circuit").
type VirtualCircuit struct {
	UID      uint16
	Identity UserCredentials

	trees    *idArena[*Tree]
	searches *idArena[SearchContext]

	txnMu sync.Mutex
	txn   *transactionBuffer
}

func (vc *VirtualCircuit) AllocateTree(tree *Tree) (uint16, bool) {
	return vc.trees.allocate(tree)
}

func (vc *VirtualCircuit) Tree(tid uint16) (*Tree, bool) { return vc.trees.get(tid) }

func (vc *VirtualCircuit) ReleaseTree(tid uint16) {
	if tree, ok := vc.trees.get(tid); ok {
		tree.closeAll()
	}
	vc.trees.release(tid)
}

func (vc *VirtualCircuit) AllocateSearch(ctx SearchContext) (uint16, *SmbError) {
	id, ok := vc.searches.allocate(ctx)
	if !ok {
		return 0, NewSmbError(StatusNoResources, "too many open searches")
	}
	return id, nil
}

func (vc *VirtualCircuit) Search(id uint16) (SearchContext, bool) { return vc.searches.get(id) }

func (vc *VirtualCircuit) ReleaseSearch(id uint16) {
	if ctx, ok := vc.searches.get(id); ok {
		ctx.Close()
	}
	vc.searches.release(id)
}

// BeginTransaction installs buf as the VC's single in-flight transaction,
// per spec.md §5 "attempting to start a second while one is pending is
// SRV-NON-SPECIFIC-ERROR".
func (vc *VirtualCircuit) BeginTransaction(buf *transactionBuffer) *SmbError {
	vc.txnMu.Lock()
	defer vc.txnMu.Unlock()
	if vc.txn != nil {
		return NewSmbError(StatusSrvNonSpecificError, "transaction already in flight")
	}
	vc.txn = buf
	return nil
}

func (vc *VirtualCircuit) PendingTransaction() *transactionBuffer {
	vc.txnMu.Lock()
	defer vc.txnMu.Unlock()
	return vc.txn
}

func (vc *VirtualCircuit) ClearTransaction() {
	vc.txnMu.Lock()
	vc.txn = nil
	vc.txnMu.Unlock()
}

func (vc *VirtualCircuit) closeAll() {
	vc.trees.each(func(_ uint16, t *Tree) { t.closeAll() })
	vc.searches.each(func(id uint16, ctx SearchContext) { ctx.Close() })
	vc.ClearTransaction()
}

// Tree is a bound share connection (spec.md §3 "Tree connection").
type Tree struct {
	TID        uint16
	Share      *Share
	Permission SharePermission

	filesMu sync.Mutex
	files   *idArena[*OpenFile]

	pathMu sync.Mutex
	byPath map[string][]*OpenFile
}

func newTree(share *Share, perm SharePermission, maxFiles int) *Tree {
	return &Tree{
		Share:      share,
		Permission: perm,
		files:      newIDArena[*OpenFile](maxFiles, 0),
		byPath:     make(map[string][]*OpenFile),
	}
}

func (t *Tree) AllocateFile(of *OpenFile) (uint16, bool) {
	t.filesMu.Lock()
	defer t.filesMu.Unlock()
	return t.files.allocate(of)
}

func (t *Tree) File(fid uint16) (*OpenFile, bool) {
	t.filesMu.Lock()
	defer t.filesMu.Unlock()
	return t.files.get(fid)
}

func (t *Tree) ReleaseFile(fid uint16) (*OpenFile, bool) {
	t.filesMu.Lock()
	of, ok := t.files.get(fid)
	t.files.release(fid)
	t.filesMu.Unlock()
	if ok {
		t.unregisterPath(of)
	}
	return of, ok
}

func (t *Tree) closeAll() {
	t.filesMu.Lock()
	files := t.files
	t.filesMu.Unlock()
	files.each(func(_ uint16, of *OpenFile) {
		if of != nil && t.Share != nil && t.Share.Driver != nil {
			_ = t.Share.Driver.CloseFile(context.Background(), of.Handle)
		}
		t.unregisterPath(of)
	})
}

func (t *Tree) CanRead() bool {
	return t.Permission == PermissionReadOnly || t.Permission == PermissionWritable
}

func (t *Tree) CanWrite() bool { return t.Permission == PermissionWritable }

// NotifyRequest is a pending change-notify registration (spec.md §3 "Notify
// request").
type NotifyRequest struct {
	Session       *Session
	DirectoryFID  uint16
	FilterMask    uint32
	WatchSubtree  bool
	MID, PID, TID, UID uint16
	Registered    time.Time

	// Path is the watched directory's tree-relative path, resolved from
	// DirectoryFID at registration time (ntNotifyChange) since a
	// ChangeNotifyHandler keyed by path has no other way to learn it once
	// the request outlives the originating AndX chain.
	Path string

	// Unicode records the originating request's string-encoding
	// convention, since the eventual push carries no request of its own to
	// ask (spec.md §4.3's Unicode/ASCII split).
	Unicode bool
}
