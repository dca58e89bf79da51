package smb1d

import (
	"errors"
	"fmt"
	"io/fs"
)

// Sentinel errors for conditions that are programmer/config errors rather
// than on-wire SMB errors (mirrors the teacher's errors.go convention).
var (
	// ErrInvalidConfig indicates the server configuration is invalid.
	ErrInvalidConfig = errors.New("smb1d: invalid configuration")

	// ErrConnectionClosed indicates the underlying transport has been closed.
	ErrConnectionClosed = errors.New("smb1d: connection closed")

	// ErrOutOfPoolMemory indicates the packet pool cannot satisfy an allocation.
	ErrOutOfPoolMemory = errors.New("smb1d: out of pool memory")

	// ErrTooLarge indicates a framed message declared a length beyond what the
	// transport allows.
	ErrTooLarge = errors.New("smb1d: message too large")

	// ErrMalformedPacket indicates a structurally invalid SMB1 message.
	ErrMalformedPacket = errors.New("smb1d: malformed packet")

	// ErrShareNotFound indicates a requested share does not exist.
	ErrShareNotFound = errors.New("smb1d: share not found")

	// ErrDeferred signals a handler cannot complete synchronously (see
	// spec.md §4.6 "Deferred completion"); the dispatcher must not release
	// the request's buffer and must wait for an async completion instead.
	ErrDeferred = errors.New("smb1d: operation deferred")
)

// NTStatus is a 32-bit NT status code, per MS-ERREF.
type NTStatus uint32

// Canonical NT status codes used by the dispatcher and handlers (spec.md §7).
const (
	StatusSuccess                NTStatus = 0x00000000
	StatusPending                NTStatus = 0x00000103
	StatusMoreProcessingRequired NTStatus = 0xC0000016
	StatusBufferOverflow         NTStatus = 0x80000005
	StatusNoMoreFiles            NTStatus = 0x80000006
	StatusInvalidParameter       NTStatus = 0xC000000D
	StatusNoSuchFile             NTStatus = 0xC000000F
	StatusEndOfFile              NTStatus = 0xC0000011
	StatusAccessDenied           NTStatus = 0xC0000022
	StatusObjectNameInvalid      NTStatus = 0xC0000033
	StatusObjectNameNotFound     NTStatus = 0xC0000034
	StatusObjectNameCollision    NTStatus = 0xC0000035
	StatusObjectPathNotFound     NTStatus = 0xC000003A
	StatusSharingViolation       NTStatus = 0xC0000043
	StatusLogonFailure           NTStatus = 0xC000006D
	StatusInsufficientResources  NTStatus = 0xC000009A
	StatusFileIsADirectory       NTStatus = 0xC00000BA
	StatusBadNetworkName         NTStatus = 0xC00000CC
	StatusNotADirectory          NTStatus = 0xC0000103
	StatusFileClosed             NTStatus = 0xC0000128
	StatusCancelled              NTStatus = 0xC0000120
	StatusNetworkNameDeleted     NTStatus = 0xC00000C9
	StatusNotFound               NTStatus = 0xC0000225
	StatusNotSupported           NTStatus = 0xC00000BB
	StatusDirectoryNotEmpty      NTStatus = 0xC0000101
	StatusTooManyOpenedFiles     NTStatus = 0xC000011F
	StatusInternalError          NTStatus = 0xC00000E5
	StatusSrvNonSpecificError    NTStatus = 0xC0000001
	StatusInvalidHandle          NTStatus = 0xC0000008
	StatusNetworkNameInvalid     NTStatus = 0xC00000CC
	StatusNoResources            NTStatus = StatusInsufficientResources
)

func (s NTStatus) IsSuccess() bool { return s == StatusSuccess }
func (s NTStatus) IsError() bool   { return s != StatusSuccess && s != StatusPending }

func (s NTStatus) String() string {
	switch s {
	case StatusSuccess:
		return "STATUS_SUCCESS"
	case StatusPending:
		return "STATUS_PENDING"
	case StatusMoreProcessingRequired:
		return "STATUS_MORE_PROCESSING_REQUIRED"
	case StatusBufferOverflow:
		return "STATUS_BUFFER_OVERFLOW"
	case StatusNoMoreFiles:
		return "STATUS_NO_MORE_FILES"
	case StatusInvalidParameter:
		return "STATUS_INVALID_PARAMETER"
	case StatusNoSuchFile:
		return "STATUS_NO_SUCH_FILE"
	case StatusEndOfFile:
		return "STATUS_END_OF_FILE"
	case StatusAccessDenied:
		return "STATUS_ACCESS_DENIED"
	case StatusObjectNameInvalid:
		return "STATUS_OBJECT_NAME_INVALID"
	case StatusObjectNameNotFound:
		return "STATUS_OBJECT_NAME_NOT_FOUND"
	case StatusObjectNameCollision:
		return "STATUS_OBJECT_NAME_COLLISION"
	case StatusObjectPathNotFound:
		return "STATUS_OBJECT_PATH_NOT_FOUND"
	case StatusSharingViolation:
		return "STATUS_SHARING_VIOLATION"
	case StatusLogonFailure:
		return "STATUS_LOGON_FAILURE"
	case StatusInsufficientResources:
		return "STATUS_INSUFFICIENT_RESOURCES"
	case StatusFileIsADirectory:
		return "STATUS_FILE_IS_A_DIRECTORY"
	case StatusBadNetworkName:
		return "STATUS_BAD_NETWORK_NAME"
	case StatusNotADirectory:
		return "STATUS_NOT_A_DIRECTORY"
	case StatusFileClosed:
		return "STATUS_FILE_CLOSED"
	case StatusCancelled:
		return "STATUS_CANCELLED"
	case StatusNetworkNameDeleted:
		return "STATUS_NETWORK_NAME_DELETED"
	case StatusNotFound:
		return "STATUS_NOT_FOUND"
	case StatusNotSupported:
		return "STATUS_NOT_SUPPORTED"
	case StatusDirectoryNotEmpty:
		return "STATUS_DIRECTORY_NOT_EMPTY"
	case StatusTooManyOpenedFiles:
		return "STATUS_TOO_MANY_OPENED_FILES"
	case StatusInternalError:
		return "STATUS_INTERNAL_ERROR"
	default:
		return fmt.Sprintf("STATUS_0x%08X", uint32(s))
	}
}

// DosClass is the legacy error-class octet used when FLG2_LONGERRORCODE is
// clear on the request (spec.md §4.3/§7).
type DosClass uint8

const (
	DosClassSuccess DosClass = 0x00
	DosClassDos     DosClass = 0x01
	DosClassServer  DosClass = 0x02
	DosClassHard    DosClass = 0x03
)

// dosEquivalent maps an NTStatus to its legacy {class, code} pair. Only the
// codes the dispatcher and handlers actually emit need entries; anything else
// degrades to a generic server error, matching real CIFS server behavior for
// statuses that predate the DOS error-code table.
func dosEquivalent(s NTStatus) (DosClass, uint16) {
	switch s {
	case StatusSuccess:
		return DosClassSuccess, 0
	case StatusNoSuchFile:
		return DosClassDos, 2 // ERRbadfile
	case StatusObjectPathNotFound, StatusObjectNameNotFound:
		return DosClassDos, 3 // ERRbadpath
	case StatusTooManyOpenedFiles:
		return DosClassDos, 4 // ERRnofids
	case StatusAccessDenied:
		return DosClassDos, 5 // ERRnoaccess
	case StatusInvalidHandle, StatusFileClosed:
		return DosClassDos, 6 // ERRbadfid
	case StatusInvalidParameter:
		return DosClassServer, 87 // ERRinvalidparam (server class, common choice)
	case StatusObjectNameCollision:
		return DosClassDos, 80 // ERRfilexists
	case StatusLogonFailure:
		return DosClassServer, 2 // ERRbadpw
	case StatusSharingViolation:
		return DosClassDos, 32 // ERRbadshare
	case StatusNoMoreFiles:
		return DosClassDos, 18 // ERRnofiles
	case StatusInsufficientResources, StatusNoResources:
		return DosClassServer, 8 // ERRnoresource (non-standard but conventional)
	default:
		return DosClassServer, 1 // ERRerror / SRV_NON_SPECIFIC_ERROR
	}
}

// SmbError is the single result type handlers and the dispatcher exchange
// instead of raising exceptions (spec.md §9 — "exceptions as control flow").
// It carries both parallel error representations (§7) so the dispatcher can
// pick the one the requesting client negotiated.
type SmbError struct {
	Status  NTStatus
	Message string
	cause   error
}

func (e *SmbError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return e.Status.String()
}

func (e *SmbError) Unwrap() error { return e.cause }

// DosCode returns the legacy {class, code} pair for this error.
func (e *SmbError) DosCode() (DosClass, uint16) { return dosEquivalent(e.Status) }

// NewSmbError builds an SmbError from an NT status and an optional free-form
// message (used for logging only — never sent on the wire).
func NewSmbError(status NTStatus, msg string) *SmbError {
	return &SmbError{Status: status, Message: msg}
}

// WrapSmbError wraps a lower-level collaborator error with an NT status,
// preserving it for Unwrap/errors.Is/As.
func WrapSmbError(status NTStatus, cause error) *SmbError {
	if cause == nil {
		return NewSmbError(status, "")
	}
	return &SmbError{Status: status, Message: cause.Error(), cause: cause}
}

// AsSmbError converts an arbitrary collaborator error into an SmbError,
// mapping common io/fs sentinels to their NT status equivalents. Anything
// unrecognized becomes STATUS_INTERNAL_ERROR per the propagation policy in
// spec.md §7 ("Unhandled exceptions inside a handler ... converted to
// STATUS_INTERNAL_ERROR").
func AsSmbError(err error) *SmbError {
	if err == nil {
		return nil
	}
	var se *SmbError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, ErrShareNotFound):
		return WrapSmbError(StatusBadNetworkName, err)
	case errors.Is(err, ErrMalformedPacket):
		return WrapSmbError(StatusInvalidParameter, err)
	case errors.Is(err, fs.ErrNotExist):
		return WrapSmbError(StatusObjectNameNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return WrapSmbError(StatusObjectNameCollision, err)
	case errors.Is(err, fs.ErrPermission):
		return WrapSmbError(StatusAccessDenied, err)
	default:
		return WrapSmbError(StatusInternalError, err)
	}
}
