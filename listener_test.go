package smb1d

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newListenerTestServer wires a full Server against an in-memory filesystem
// share and binds only the direct-TCP transport to an ephemeral port
// (NetBIOS's session-request handshake, acceptor.go's handleNetBIOSHandshake,
// isn't exercised here).
func newListenerTestServer(t *testing.T) (*Server, *testFilesystem) {
	t.Helper()
	fsys := newTestFilesystem()
	share := &Share{Name: "demo", Type: ShareTypeDisk, Driver: fsys}
	shares := NewShareRegistry([]*Share{share}, nil)
	auth := NewGuestAuthenticator(false)
	pool := NewPacketPool(DefaultPacketPoolConfig(), nil)
	notify := NewChangeNotifyFanout(pool, nil)
	opts := DefaultServerOptions()
	opts.EnableNetBIOS = false
	opts.EnableTCPSMB = true
	opts.SMBPort = 0
	opts.SocketTimeout = 200 * time.Millisecond
	d := NewDispatcher(opts, shares, auth, notify, pool, &testIPCHandler{}, nil)
	srv := NewServer(opts, shares, auth, notify, d, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv, fsys
}

// dialDirectTCP connects to srv's direct-TCP listener and returns the raw
// connection, leaving framing to the caller (spec.md §4.2's length-prefixed
// direct-TCP form carries no NetBIOS session-request handshake).
func dialDirectTCP(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	addr := srv.Addr(TransportDirectTCP)
	require.NotNil(t, addr, "direct-TCP listener did not bind")
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readDirectTCPFrame reads one length-prefixed direct-TCP response frame
// (framer.go's WritePacket: 4-byte big-endian length, then the payload).
func readDirectTCPFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var hdr [4]byte
	_, err := readFullConn(conn, hdr[:])
	require.NoError(t, err)
	length := int(hdr[0])<<24 | int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	body := make([]byte, length)
	_, err = readFullConn(conn, body)
	require.NoError(t, err)
	return append(hdr[:], body...)
}

func readFullConn(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TestServerAcceptsDirectTCPAndDispatchesNegotiate drives a real socket
// connection through Server.Start's accept/read loop end to end (spec.md
// §4.4 "Listen"/"Accept", §4.2 direct-TCP framing), rather than calling
// Dispatch directly the way dispatcher_test.go's harness does.
func TestServerAcceptsDirectTCPAndDispatchesNegotiate(t *testing.T) {
	srv, _ := newListenerTestServer(t)
	conn := dialDirectTCP(t, srv)

	req := negotiateRequestBody("PC NETWORK PROGRAM 1.0", "NT LM 0.12")
	n := len(req) - 4 // direct-TCP length prefix
	req[1], req[2], req[3] = byte(n>>16), byte(n>>8), byte(n)
	_, err := conn.Write(req)
	require.NoError(t, err)

	raw := readDirectTCPFrame(t, conn)
	resp := NewHeader(raw)
	require.True(t, resp.Flags()&FlagResponse != 0)
	require.Equal(t, StatusSuccess, resp.Status())
	require.Equal(t, CmdNegotiate, resp.Command())
}

// TestServerStopClosesAcceptedConnections exercises Stop's shutdown path
// (listener.go): once Stop returns, a peer's read on an already-accepted
// connection observes EOF because serveConn's Hangup/connection-close ran.
func TestServerStopClosesAcceptedConnections(t *testing.T) {
	srv, _ := newListenerTestServer(t)
	conn := dialDirectTCP(t, srv)

	srv.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	require.Error(t, err, "connection should be closed once the server stops")
}
