// Package smb1d implements the protocol-facing core of an SMB1/CIFS file
// server: NetBIOS-over-TCP and direct-TCP transport framing, dialect
// negotiation, session/user/tree/file bookkeeping, and the SMB1 request
// dispatcher.
//
// # Overview
//
// The package accepts connections on the NetBIOS session service port (139)
// or direct SMB-over-TCP (445), negotiates a dialect from Core up through
// "NT LM 0.12", authenticates a user, and then services a stream of SMB1
// requests multiplexed by user id (UID), tree id (TID), and file id (FID)
// over a single connection.
//
// Filesystem semantics, authentication algorithms, and share configuration
// are deliberately kept out of this package; they are consumed through the
// narrow collaborator interfaces in interfaces.go (Authenticator,
// FilesystemDriver, SearchContext, ChangeNotifyHandler, ShareRegistry,
// IPCHandler). See internal/memdrv for a reference in-memory implementation
// and cmd/smb1d for a runnable server built on top of it.
//
// # Basic usage
//
//	opts := smb1d.DefaultServerOptions()
//	opts.ServerName = "FILESRV"
//	shares := smb1d.NewShareRegistry([]*smb1d.Share{
//	    {Name: "PUBLIC", Type: smb1d.ShareTypeDisk, Driver: driver},
//	}, nil)
//	auth := smb1d.NewGuestAuthenticator(false)
//	pool := smb1d.NewPacketPool(smb1d.DefaultPacketPoolConfig(), nil)
//	notify := smb1d.NewChangeNotifyFanout(pool, nil)
//	d := smb1d.NewDispatcher(opts, shares, auth, notify, pool, nil, nil)
//	srv := smb1d.NewServer(opts, shares, auth, notify, d, nil)
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop()
//
// # Concurrency model
//
// Each accepted session owns one reader goroutine that frames incoming
// packets and submits (session, packet) work items to a shared, bounded
// worker pool; the dispatcher runs on whichever worker picks the item up.
// Responses are serialized per-session; ordering guarantees are documented
// in spec.md §5. workerpool_test.go covers the pool's submit,
// panic-recovery and shutdown behaviour.
package smb1d
