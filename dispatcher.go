package smb1d

import (
	"context"

	"github.com/sirupsen/logrus"
)

// requestCtx threads the state one request needs through its (possibly
// chained) AndX blocks: the session/circuit/tree it resolved to, and the
// string-encoding convention in force (spec.md §4.3's Unicode/ASCII split).
type requestCtx struct {
	std context.Context

	session *Session
	vc      *VirtualCircuit
	tree    *Tree

	req       *Packet
	reqHeader *Header
	unicode   bool

	pid, mid, uid, tid uint16

	// replyCommand overrides the response header's Command byte; set by a
	// transaction-secondary handler that just completed a pending
	// transaction started under a different top-level command.
	replyCommand    Command
	replyCommandSet bool

	noReply bool
}

// andxHandler executes one command block against rc, returning the extra
// parameter words (excluding any AndX header fields) and byte-area bytes
// for its reply. isAndX tells the dispatcher whether to prepend the
// {AndXCommand,AndXReserved,AndXOffset} header fields.
type andxHandler func(d *dispatcher, rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError)

// dispatcher is the RequestDispatcher implementation: it owns the command
// table and every collaborator a handler needs (spec.md §4.6 "Dispatch",
// §6 "Collaborators"). Grounded on the teacher's SMBHandler/HandleMessage
// (smb2_handlers.go), generalized from SMB2's session-ID addressed commands
// to SMB1's UID/TID/AndX-chained model.
type dispatcher struct {
	opts   *ServerOptions
	shares ShareRegistry
	auth   Authenticator
	notify ChangeNotifyHandler
	pool   *PacketPool
	ipc    IPCHandler

	dirCache *dirListingCache

	log *logrus.Entry
}

// NewDispatcher builds the command router bound to one server's
// collaborators.
func NewDispatcher(opts *ServerOptions, shares ShareRegistry, auth Authenticator, notify ChangeNotifyHandler, pool *PacketPool, ipc IPCHandler, log *logrus.Entry) *dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &dispatcher{
		opts: opts, shares: shares, auth: auth, notify: notify, pool: pool, ipc: ipc,
		dirCache: newDirListingCache(DefaultDirCacheConfig()),
		log:      log,
	}
}

var commandTable = map[Command]andxHandler{
	CmdNegotiate:         (*dispatcher).cmdNegotiate,
	CmdSessionSetupAndX:  (*dispatcher).cmdSessionSetupAndX,
	CmdLogoffAndX:        (*dispatcher).cmdLogoffAndX,
	CmdTreeConnectAndX:   (*dispatcher).cmdTreeConnectAndX,
	CmdTreeDisconnect:    (*dispatcher).cmdTreeDisconnect,
	CmdNTCreateAndX:      (*dispatcher).cmdNTCreateAndX,
	CmdOpenAndX:          (*dispatcher).cmdOpenAndX,
	CmdClose:             (*dispatcher).cmdClose,
	CmdReadAndX:          (*dispatcher).cmdReadAndX,
	CmdRead:              (*dispatcher).cmdRead,
	CmdWriteAndX:         (*dispatcher).cmdWriteAndX,
	CmdWrite:             (*dispatcher).cmdWrite,
	CmdFlush:             (*dispatcher).cmdFlush,
	CmdDelete:            (*dispatcher).cmdDelete,
	CmdRename:            (*dispatcher).cmdRename,
	CmdCreateDirectory:   (*dispatcher).cmdCreateDirectory,
	CmdDeleteDirectory:   (*dispatcher).cmdDeleteDirectory,
	CmdCheckDirectory:    (*dispatcher).cmdCheckDirectory,
	CmdQueryInformation:  (*dispatcher).cmdQueryInformation,
	CmdSetInformation:    (*dispatcher).cmdSetInformation,
	CmdTransaction2:      (*dispatcher).cmdTransaction2,
	CmdTransaction2Sec:   (*dispatcher).cmdTransaction2Secondary,
	CmdTransaction:       (*dispatcher).cmdTransaction,
	CmdTransactionSecond: (*dispatcher).cmdTransactionSecondary,
	CmdNTTransact:        (*dispatcher).cmdNTTransact,
	CmdNTTransactSecond:  (*dispatcher).cmdNTTransactSecondary,
	CmdFindClose2:        (*dispatcher).cmdFindClose2,
	CmdEcho:              (*dispatcher).cmdEcho,
	CmdNTCancel:          (*dispatcher).cmdNTCancel,
}

// andxCapable lists the commands whose reply carries
// {AndXCommand,AndXReserved,AndXOffset} header fields (spec.md §4.3 "AndX
// chains" lists these as the chainable subset).
var andxCapable = map[Command]bool{
	CmdSessionSetupAndX: true,
	CmdLogoffAndX:       true,
	CmdTreeConnectAndX:  true,
	CmdNTCreateAndX:     true,
	CmdOpenAndX:         true,
	CmdReadAndX:         true,
	CmdWriteAndX:        true,
}

// isTransactionReply reports whether cmd's reply uses the common
// Transaction/Transaction2/NTTransact 20-byte parameter block whose
// ParameterOffset/DataOffset fields need post-hoc patching.
func isTransactionReply(cmd Command) bool {
	switch cmd {
	case CmdTransaction, CmdTransactionSecond, CmdTransaction2, CmdTransaction2Sec, CmdNTTransact, CmdNTTransactSecond:
		return true
	default:
		return false
	}
}

// Dispatch implements RequestDispatcher (spec.md §4.6). It validates the
// signature, resolves session/circuit/tree context, walks the request's
// AndX chain executing each sub-command in order, and writes one response
// packet back over the session's framer.
func (d *dispatcher) Dispatch(ctx context.Context, session *Session, pkt *Packet) {
	defer d.pool.Release(pkt)

	header := NewHeader(pkt.buf)
	if !header.ValidSignature() {
		return
	}

	if signing := session.Signing(); signing != nil {
		if !signing.verifyIncoming(pkt.buf[:4+pkt.Length()]) {
			d.log.Warn("message signature verification failed")
		}
	}

	rc := &requestCtx{
		std:       ctx,
		session:   session,
		req:       pkt,
		reqHeader: header,
		unicode:   header.IsUnicode(),
		pid:       header.PID(),
		mid:       header.MID(),
		uid:       header.UID(),
		tid:       header.TID(),
	}

	if header.Command() != CmdNegotiate {
		if vc, ok := session.VirtualCircuit(rc.uid); ok {
			rc.vc = vc
			if tree, ok := vc.Tree(rc.tid); ok {
				rc.tree = tree
			}
		}
	}

	blocks := parseAndxChain(header)
	if len(blocks) == 0 {
		blocks = []andxBlock{{command: header.Command(), nextCmd: CmdNoAndX, wordCount: header.WordCount(), paramsOff: header.ParamWordsOffset(), byteCount: header.ByteCount(), bytesOff: header.ByteAreaOffset()}}
	}

	resp, err := d.pool.Allocate(int(d.opts.MaxBufferSize) + 4096)
	if err != nil {
		return
	}
	defer d.pool.Release(resp)

	respHeader := NewHeader(resp.buf)
	copy(respHeader.body()[:4], smb1Signature[:])
	respHeader.SetFlags(FlagResponse | (header.Flags() & FlagCaseless))
	respHeader.SetFlags2(header.Flags2())
	respHeader.SetPID(rc.pid)
	respHeader.SetMID(rc.mid)
	respHeader.SetTID(rc.tid)

	pos := 4 + headerSize
	prevOffsetField := -1
	var finalStatus NTStatus = StatusSuccess

	for _, blk := range blocks {
		handler, ok := commandTable[blk.command]
		if !ok {
			finalStatus = StatusNotSupported
			pos = appendEmptyBlock(resp, pos, blk.nextCmd)
			break
		}

		params, byteArea, isAndX, serr := handler(d, rc, blk)
		if rc.noReply {
			// Non-final transaction segment: spec.md §4.6 "Transaction
			// reassembly" sends no response until the buffer completes.
			return
		}
		if serr != nil {
			finalStatus = serr.Status
			pos = appendEmptyBlock(resp, pos, CmdNoAndX)
			break
		}

		var wordCount byte
		var fullParams []byte
		if isAndX {
			wordCount = byte(2 + len(params)/2)
			fullParams = make([]byte, 4+len(params))
			fullParams[0] = byte(blk.nextCmd)
			copy(fullParams[4:], params)
		} else {
			wordCount = byte(len(params) / 2)
			fullParams = params
		}

		blockStart := pos
		resp.buf[pos] = wordCount
		copy(resp.buf[pos+1:], fullParams)
		byteCountOff := pos + 1 + int(wordCount)*2
		le.PutUint16(resp.buf[byteCountOff:], uint16(len(byteArea)))
		copy(resp.buf[byteCountOff+2:], byteArea)
		pos = byteCountOff + 2 + len(byteArea)

		if blk.command == CmdReadAndX && len(byteArea) > 0 {
			// DataOffset (spec.md §4.6 "Read"): only known once the byte
			// area's final position in the response is fixed, so the
			// dispatcher patches it in after appending rather than asking
			// the handler to predict its own placement.
			le.PutUint16(resp.buf[blockStart+1+4+10:], uint16(byteCountOff+2))
		}

		if isTransactionReply(blk.command) && len(params) == 20 {
			paramLen := int(le.Uint16(params[6:]))
			parStart := byteCountOff + 2 + 1 // skip the pad byte before parameters
			dataStart := parStart + paramLen
			le.PutUint16(resp.buf[blockStart+1+8:], uint16(parStart))
			le.PutUint16(resp.buf[blockStart+1+14:], uint16(dataStart))
		}

		if prevOffsetField >= 0 {
			le.PutUint16(resp.buf[prevOffsetField:], uint16(blockStart))
		}
		if isAndX {
			prevOffsetField = blockStart + 1 + 2
		} else {
			prevOffsetField = -1
		}

		if blk.nextCmd == CmdNoAndX {
			break
		}
	}

	respHeader.SetUID(rc.uid)
	replyCmd := header.Command()
	if rc.replyCommandSet {
		replyCmd = rc.replyCommand
	}
	respHeader.SetCommand(replyCmd)
	if finalStatus == StatusSuccess {
		respHeader.SetSuccess()
	} else {
		respHeader.SetError(finalStatus)
	}

	length := pos - 4
	resp.SetLength(length)

	if signing := session.Signing(); signing != nil {
		signing.signOutgoing(resp.buf[:4+length])
	}

	if err := session.framer.WritePacket(resp, length); err != nil {
		d.log.WithError(err).Debug("write response failed")
	}
	if err := flushAsync(session, session.framer, d.pool); err != nil {
		d.log.WithError(err).Debug("async flush failed")
	}
}

// appendEmptyBlock writes a zero-param, zero-byte-area terminal block,
// used for error responses (spec.md §4.6 "the current reply is still
// sent" on a chained sub-command error).
func appendEmptyBlock(resp *Packet, pos int, nextCmd Command) int {
	resp.buf[pos] = 0
	le.PutUint16(resp.buf[pos+1:], 0)
	return pos + 1 + 2
}

func (d *dispatcher) cmdEcho(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	w := NewByteWriter(4, 0, rc.unicode)
	w.WriteUint16(1)
	return []byte{1, 0}, w.Bytes(), false, nil
}

func (d *dispatcher) cmdNTCancel(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	rc.session.CancelDeferred(rc.mid)
	return nil, nil, false, NewSmbError(StatusCancelled, "cancel has no reply")
}
