package smb1d

import (
	"context"
	"io/fs"
	"time"
)

// Authenticator is the collaborator that owns credential verification and
// security-mode policy. The core never inspects a password or token itself
// (spec.md §6).
type Authenticator interface {
	// AccessMode reports whether the server authenticates per-user or
	// per-share.
	AccessMode() AccessMode

	// SecurityMode returns the SMB1 security-mode byte advertised at
	// negotiate time (challenge/response bit, signature-enabled bit).
	SecurityMode() byte

	// EncryptionKeyLength returns the legacy LanMan challenge length (8 for
	// NT LM 0.12, 0 when extended security is in use).
	EncryptionKeyLength() int

	// AuthContext returns the challenge bytes for this session, generated
	// fresh per negotiate.
	AuthContext(session *Session) []byte

	// AuthenticateUser validates the credentials presented in a
	// SessionSetupAndX request.
	AuthenticateUser(ctx context.Context, clientInfo UserCredentials, session *Session) (AuthResult, error)

	// AuthenticateShareConnect validates (or grants guest) access to a
	// share at TreeConnectAndX time.
	AuthenticateShareConnect(ctx context.Context, session *Session, share string, password string) (SharePermission, error)

	// HasExtendedSecurity reports whether SPNEGO/NTLMSSP extended security
	// is offered during negotiate.
	HasExtendedSecurity() bool

	// NegTokenInit returns the SPNEGO NegTokenInit blob offered on
	// extended-security negotiate responses.
	NegTokenInit() []byte

	// UsingSPNEGO reports whether this authenticator drives the two-stage
	// SPNEGO exchange instead of legacy challenge/response.
	UsingSPNEGO() bool
}

// AccessMode selects user-level vs share-level security (spec.md §6
// "security-mode").
type AccessMode int

const (
	AccessModeUser AccessMode = iota
	AccessModeShare
)

// UserCredentials carries the decoded SessionSetupAndX byte-area fields the
// authenticator needs to validate a logon.
type UserCredentials struct {
	AccountName     string
	PrimaryDomain   string
	CaseInsensitivePassword []byte
	CaseSensitivePassword   []byte
	NativeOS        string
	NativeLanMan    string
}

// AuthResult is the outcome of AuthenticateUser.
type AuthResult struct {
	Authenticated bool
	Guest         bool
	Denied        bool
}

// SharePermission is the outcome of AuthenticateShareConnect.
type SharePermission int

const (
	PermissionNoAccess SharePermission = iota
	PermissionReadOnly
	PermissionWritable
)

// FilesystemDriver is the "Disk" collaborator: every filesystem-touching
// SMB1 operation funnels through here (spec.md §6). Implementations are
// expected to translate their own failures into the sentinel errors this
// package recognizes (io/fs.ErrNotExist, ErrShareNotFound, etc.) or a
// *SmbError directly; AsSmbError does the rest.
type FilesystemDriver interface {
	// FileExists reports whether path exists under this driver's root.
	FileExists(ctx context.Context, path string) bool

	// OpenFile opens an existing file or directory for the given access
	// mask (MS-FSCC access rights) and share mode.
	OpenFile(ctx context.Context, path string, access, shareAccess uint32) (FileHandle, error)

	// CreateFile creates (or overwrites, per disposition) path.
	CreateFile(ctx context.Context, path string, access, shareAccess, disposition, attributes uint32) (FileHandle, error)

	// CloseFile releases a handle previously returned by OpenFile/CreateFile.
	CloseFile(ctx context.Context, h FileHandle) error

	// ReadFile reads up to len(buf) bytes starting at offset.
	ReadFile(ctx context.Context, h FileHandle, buf []byte, offset int64) (int, error)

	// WriteFile writes buf starting at offset.
	WriteFile(ctx context.Context, h FileHandle, buf []byte, offset int64) (int, error)

	// RenameFile renames/moves oldPath to newPath.
	RenameFile(ctx context.Context, oldPath, newPath string) error

	// DeleteFile removes a file.
	DeleteFile(ctx context.Context, path string) error

	// CreateDirectory creates a directory.
	CreateDirectory(ctx context.Context, path string) error

	// DeleteDirectory removes an empty directory.
	DeleteDirectory(ctx context.Context, path string) error

	// StartSearch begins a Trans2FindFirst2 enumeration for a (possibly
	// wildcarded) path, returning a lazy iterator.
	StartSearch(ctx context.Context, path string) (SearchContext, error)

	// GetFileInformation returns Windows-flavored metadata for path,
	// layered over fs.FileInfo via FileInfoEx where possible.
	GetFileInformation(ctx context.Context, path string) (fs.FileInfo, error)

	// TreeOpened is called once when a tree connection to this driver's
	// share is established.
	TreeOpened(ctx context.Context, tree *Tree) error

	// TreeClosed is called once when the tree connection is torn down.
	TreeClosed(ctx context.Context, tree *Tree)
}

// FileHandle is an opaque per-open-file token minted by a FilesystemDriver;
// the core never interprets it, only threads it back through subsequent
// calls for the same open (spec.md §9 "handle tuples").
type FileHandle interface{}

// SearchContext is a lazy directory-enumeration iterator bound to one
// search slot (spec.md §6, §3 "Search slot").
type SearchContext interface {
	// NextFileInfo advances to the next entry, filling info. Returns false
	// when exhausted.
	NextFileInfo(info *FileInfoRecord) bool

	// RestartAt repositions the cursor to resume from a previously observed
	// entry (resume-key based FindNext2 continuation).
	RestartAt(resumeKey string) error

	// HasMoreFiles reports whether another NextFileInfo call would succeed
	// without actually consuming an entry.
	HasMoreFiles() bool

	// Close releases any resources the search holds open (directory handles,
	// cached listings).
	Close() error
}

// FileInfoRecord is the driver-agnostic shape a SearchContext fills in;
// trans2find.go packs it into whichever info level the request asked for.
type FileInfoRecord struct {
	Name       string
	Size       int64
	IsDir      bool
	Attributes uint32
	ModTime    time.Time
	CreateTime time.Time
	AccessTime time.Time
}

// ChangeNotifyHandler is the collaborator that tracks directory-watch
// registrations and posts events back as async pushes (spec.md §6, §3
// "Notify request").
type ChangeNotifyHandler interface {
	AddNotifyRequest(req *NotifyRequest)
	RemoveNotifyRequests(session *Session)
}

// ShareRegistry resolves a share name to a backing FilesystemDriver at
// TreeConnectAndX time (spec.md §6).
type ShareRegistry interface {
	FindShare(name string, shareType ShareType, session *Session, create bool) (*Share, error)
}

// IPCHandler processes requests against the admin named pipe (IPC$)
// (spec.md §4.6 step 5, §6).
type IPCHandler interface {
	ProcessIPCRequest(ctx context.Context, session *Session, cmd Command, req, resp *Packet) error
	ProcTransaction(ctx context.Context, vc *VirtualCircuit, txn *transactionBuffer, session *Session) error
}
