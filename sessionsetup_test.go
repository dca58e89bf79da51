package smb1d

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestHarnessWithAuth is newTestHarness with the authenticator swapped
// out, letting these tests exercise NTLMAuthenticator's accept/reject/guest
// branches instead of dispatcher_test.go's always-succeeds GuestAuthenticator.
func newTestHarnessWithAuth(t *testing.T, auth Authenticator) *testHarness {
	t.Helper()
	pool := NewPacketPool(DefaultPacketPoolConfig(), nil)
	fsys := newTestFilesystem()
	share := &Share{Name: "demo", Type: ShareTypeDisk, Driver: fsys}
	shares := NewShareRegistry([]*Share{share}, nil)
	notify := NewChangeNotifyFanout(pool, nil)
	opts := DefaultServerOptions()
	d := NewDispatcher(opts, shares, auth, notify, pool, &testIPCHandler{}, nil)

	conn := &bytes.Buffer{}
	framer := NewFramer(TransportDirectTCP, pool, conn)
	sess := NewSession(TransportDirectTCP, nil, framer, pool, 4)

	return &testHarness{t: t, d: d, sess: sess, conn: conn, fsys: fsys, pool: pool}
}

// sessionSetupOnlyBody builds a standalone legacy SessionSetupAndX request
// (no chained TreeConnectAndX) for the given account name, letting these
// tests drive AuthenticateUser's outcome directly without needing a share.
func sessionSetupOnlyBody(pid, mid uint16, accountName string) []byte {
	fixed := make([]byte, 22)
	le.PutUint16(fixed[0:], 16644)
	le.PutUint16(fixed[2:], 50)

	w := NewByteWriter(32, 0, false)
	w.WriteString(accountName)
	w.WriteString("")
	w.WriteString("smb1d-test")
	w.WriteString("smb1d-test")

	return newSingleRequest(CmdSessionSetupAndX, pid, mid, 0, 0, 0, fixed, w.Bytes())
}

// TestSessionSetupRejectsUnknownUserWithoutGuest confirms AuthenticateUser's
// denial surfaces as STATUS_LOGON_FAILURE and never allocates a circuit
// (sessionsetup.go's "result.Denied || !result.Authenticated" branch).
func TestSessionSetupRejectsUnknownUserWithoutGuest(t *testing.T) {
	h := newTestHarnessWithAuth(t, NewNTLMAuthenticator("SMB1D", map[string]string{"alice": "hunter2"}, false, false))
	h.send(negotiateRequestBody("NT LM 0.12"))

	resp := h.send(sessionSetupOnlyBody(1, 1, "bob"))
	require.Equal(t, StatusLogonFailure, resp.Status())
	require.EqualValues(t, 0, resp.UID())
}

// TestSessionSetupFallsBackToGuestWhenAllowed confirms an unrecognized
// account name is accepted as guest when the authenticator allows it
// (auth_ntlm.go's AuthenticateUser guest-fallback branches).
func TestSessionSetupFallsBackToGuestWhenAllowed(t *testing.T) {
	h := newTestHarnessWithAuth(t, NewNTLMAuthenticator("SMB1D", map[string]string{"alice": "hunter2"}, true, false))
	h.send(negotiateRequestBody("NT LM 0.12"))

	resp := h.send(sessionSetupOnlyBody(1, 1, "bob"))
	require.Equal(t, StatusSuccess, resp.Status())
	require.NotEqual(t, uint16(0), resp.UID())
}

// TestSessionSetupExhaustsVirtualCircuitLimit confirms AllocateVC's
// too-many-circuits case (vcircuit.go) surfaces through SessionSetupAndX as
// STATUS_LOGON_FAILURE once the session's per-connection UID budget runs out.
func TestSessionSetupExhaustsVirtualCircuitLimit(t *testing.T) {
	h := newTestHarness(t)
	h.sess.circuits = newIDArena[*VirtualCircuit](1, reservedUIDs...)
	h.send(negotiateRequestBody("NT LM 0.12"))

	first := h.send(sessionSetupAndTreeConnectBody(1, 1, "demo"))
	require.Equal(t, StatusSuccess, first.Status())

	second := h.send(sessionSetupAndTreeConnectBody(2, 2, "demo"))
	require.Equal(t, StatusLogonFailure, second.Status())
}

// TestLogoffReleasesVirtualCircuit confirms cmdLogoffAndX tears down the
// circuit so its UID no longer resolves (sessionsetup.go's cmdLogoffAndX,
// vcircuit.go's ReleaseVC).
func TestLogoffReleasesVirtualCircuit(t *testing.T) {
	h := newTestHarness(t)
	h.send(negotiateRequestBody("NT LM 0.12"))
	setup := h.send(sessionSetupAndTreeConnectBody(1, 1, "demo"))
	uid := setup.UID()
	_, ok := h.sess.VirtualCircuit(uid)
	require.True(t, ok)

	h.send(newSingleRequest(CmdLogoffAndX, 1, 9, uid, 0, 0, nil, nil))

	_, ok = h.sess.VirtualCircuit(uid)
	require.False(t, ok, "logoff should release the virtual circuit")
}
