package smb1d

import (
	"time"

	"github.com/google/uuid"
)

// ServerOptions is the full server-level configuration surface (spec.md §6
// "Configuration"). Typically populated from a viper config file/flags by
// cmd/smb1d and passed to NewServer.
type ServerOptions struct {
	ServerName    string
	AliasNames    []string
	Domain        string
	ServerComment string

	// EnabledDialects records the highest dialect configured (default NT LM
	// 0.12). Negotiate does not consult it: every string in dialectStrings
	// is accepted.
	EnabledDialects DialectID

	SecurityMode AccessMode

	MaxVirtualCircuitsPerSession int // default 16; 0 means unlimited
	MaxOpenFilesPerTree          int // default 4096; 0 means unlimited
	MaxSearchesPerCircuit        int // default 256; not consulted: search slots per circuit are not capped

	NetBIOSPort int // default 139
	SMBPort     int // default 445

	SocketTimeout    time.Duration // default 900000ms
	SocketKeepAlive  bool          // default true

	PacketPoolMaxSize int // default from DefaultPacketPoolConfig
	OverSizeCeiling   int // default 128 KiB
	LeaseDuration     time.Duration // default 5000ms
	AllocateWait      time.Duration // default 250ms

	MaxPacketsPerThreadRun int // default 4

	EnableNetBIOS bool // default true
	EnableTCPSMB  bool // default true

	HostAnnounce             bool
	HostAnnounceIntervalMin  int

	DisableHashedOpenFileMap bool

	ExtendedSecurity bool

	// StrictNetBIOSName disables the permissive "accept any called name"
	// policy (Open Question 1 in spec.md §9): only "*", "*SMBSERVER", the
	// server's own name, or a configured alias is accepted.
	StrictNetBIOSName bool

	MaxBufferSize     uint32
	MaxMultiplexCount uint16

	ServerGUID [16]byte

	Workers    int // worker pool goroutine count
	QueueDepth int // worker pool queue depth

	NumWorkerPoolQueue int
}

// DefaultServerOptions returns spec.md §6's documented defaults.
func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{
		ServerName:                   "SMB1D",
		EnabledDialects:              DialectNTLM,
		SecurityMode:                 AccessModeUser,
		MaxVirtualCircuitsPerSession: 16,
		MaxOpenFilesPerTree:          4096,
		MaxSearchesPerCircuit:        256,
		NetBIOSPort:                  139,
		SMBPort:                      445,
		SocketTimeout:                900000 * time.Millisecond,
		SocketKeepAlive:              true,
		OverSizeCeiling:              128 * 1024,
		LeaseDuration:                5000 * time.Millisecond,
		AllocateWait:                 250 * time.Millisecond,
		MaxPacketsPerThreadRun:       4,
		EnableNetBIOS:                true,
		EnableTCPSMB:                 true,
		HostAnnounce:                 false,
		HostAnnounceIntervalMin:      12,
		ExtendedSecurity:             true,
		MaxBufferSize:                16644,
		MaxMultiplexCount:            50,
		ServerGUID:                   [16]byte(uuid.New()),
		Workers:                      32,
		QueueDepth:                   1024,
	}
}

// ShareOptions configures one exported share (spec.md §6's per-share
// surface, layered under the top-level ServerOptions).
type ShareOptions struct {
	ShareName string
	SharePath string
	ShareType ShareType

	ReadOnly     bool
	AllowGuest   bool
	AllowedUsers []string
	Users        map[string]string

	Comment string
	Hidden  bool
}

func DefaultShareOptions(name string) ShareOptions {
	return ShareOptions{
		ShareName:  name,
		SharePath:  "/",
		ShareType:  ShareTypeDisk,
		AllowGuest: true,
	}
}
