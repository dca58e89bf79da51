package smb1d

import "time"

// NT Transact sub-function codes (MS-CIFS 2.2.4.62, the Function word of
// an SMB_COM_NT_TRANSACT primary segment).
const (
	NTTransactCreate       TransFunction = 0x0001
	NTTransactIOCTL        TransFunction = 0x0002
	NTTransactSetSecurity  TransFunction = 0x0003
	NTTransactNotifyChange TransFunction = 0x0004
	NTTransactQuerySecurity TransFunction = 0x0006
)

// parsedNTTransaction is the decoded view of an NT Transact primary or
// secondary segment. NT Transact widens every count/offset/displacement
// field from Trans2's 16 bits to 32 bits (MS-CIFS 2.2.4.62.1), so it gets
// its own parser rather than reusing parseTrans2Primary.
type parsedNTTransaction struct {
	totalParamCount, totalDataCount uint32
	paramCount, paramOffset         uint32
	paramDisplacement               uint32
	dataCount, dataOffset           uint32
	dataDisplacement                uint32
	function                        uint16
}

func parseNTTransactPrimary(buf []byte, p int) parsedNTTransaction {
	return parsedNTTransaction{
		totalParamCount: le.Uint32(buf[p+3:]),
		totalDataCount:  le.Uint32(buf[p+7:]),
		paramCount:      le.Uint32(buf[p+19:]),
		paramOffset:     le.Uint32(buf[p+23:]),
		dataCount:       le.Uint32(buf[p+27:]),
		dataOffset:      le.Uint32(buf[p+31:]),
		function:        le.Uint16(buf[p+36:]),
	}
}

func parseNTTransactSecondary(buf []byte, p int) parsedNTTransaction {
	return parsedNTTransaction{
		totalParamCount:   le.Uint32(buf[p+3:]),
		totalDataCount:    le.Uint32(buf[p+7:]),
		paramCount:        le.Uint32(buf[p+11:]),
		paramOffset:       le.Uint32(buf[p+15:]),
		paramDisplacement: le.Uint32(buf[p+19:]),
		dataCount:         le.Uint32(buf[p+23:]),
		dataOffset:        le.Uint32(buf[p+27:]),
		dataDisplacement:  le.Uint32(buf[p+31:]),
	}
}

func segmentBytes32(buf []byte, offset, count uint32) []byte {
	start, end := int(offset), int(offset+count)
	if start < 0 || end > len(buf) || start > end {
		return nil
	}
	return buf[start:end]
}

// cmdNTTransact implements SMB_COM_NT_TRANSACT (spec.md §4.3
// "Transactions"): reassembly mirrors Transaction2's, but every count and
// offset field is 32 bits wide, matching NT Transact's support for
// transfers too large for Trans2's 16-bit fields.
func (d *dispatcher) cmdNTTransact(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "nttransact without tree")
	}
	if blk.wordCount < 19 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "nttransact word count too small")
	}
	pt := parseNTTransactPrimary(rc.req.buf, blk.paramsOff)
	paramData := segmentBytes32(rc.req.buf, pt.paramOffset, pt.paramCount)
	data := segmentBytes32(rc.req.buf, pt.dataOffset, pt.dataCount)

	if pt.paramCount >= pt.totalParamCount && pt.dataCount >= pt.totalDataCount {
		return d.runNTTransact(rc, TransFunction(pt.function), paramData, data)
	}

	txn := newTransactionBuffer(CmdNTTransact, pt.totalParamCount, pt.totalDataCount, rc.pid, rc.mid, rc.uid, rc.tid)
	txn.functionCode = pt.function
	if aerr := txn.appendSegment(paramData, 0, data, 0); aerr != nil {
		return nil, nil, false, aerr
	}
	if verr := rc.vc.BeginTransaction(txn); verr != nil {
		return nil, nil, false, verr
	}
	rc.noReply = true
	return nil, nil, false, nil
}

// cmdNTTransactSecondary appends one fragment to a pending NT Transact.
func (d *dispatcher) cmdNTTransactSecondary(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.vc == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "nttransact secondary without circuit")
	}
	txn := rc.vc.PendingTransaction()
	if txn == nil || !txn.matchesSegment(CmdNTTransactSecond, rc.pid, rc.uid, rc.tid) {
		return nil, nil, false, NewSmbError(StatusSrvNonSpecificError, "no matching pending transaction")
	}
	pt := parseNTTransactSecondary(rc.req.buf, blk.paramsOff)
	paramData := segmentBytes32(rc.req.buf, pt.paramOffset, pt.paramCount)
	data := segmentBytes32(rc.req.buf, pt.dataOffset, pt.dataCount)
	if aerr := txn.appendSegment(paramData, pt.paramDisplacement, data, pt.dataDisplacement); aerr != nil {
		rc.vc.ClearTransaction()
		return nil, nil, false, aerr
	}
	if !txn.complete() {
		rc.noReply = true
		return nil, nil, false, nil
	}
	rc.vc.ClearTransaction()
	rc.replyCommand = CmdNTTransact
	rc.replyCommandSet = true
	return d.runNTTransact(rc, TransFunction(txn.functionCode), txn.params, txn.data)
}

// runNTTransact dispatches on the Function code. Only NotifyChange has an
// observable effect in this package; Create/SetSecurity/QuerySecurity and
// unrecognized IOCTL codes report StatusNotSupported rather than faking a
// response, since FilesystemDriver exposes no ACL or reparse-point surface
// (spec.md §6 names none).
func (d *dispatcher) runNTTransact(rc *requestCtx, fn TransFunction, params, data []byte) (respParams, byteArea []byte, isAndX bool, serr *SmbError) {
	switch fn {
	case NTTransactNotifyChange:
		return d.ntNotifyChange(rc, params)
	case NTTransactIOCTL:
		rp, rd, ierr := d.ntIOCTL(rc, params)
		if ierr != nil {
			return nil, nil, false, ierr
		}
		return buildTransReply(rp, rd)
	default:
		return nil, nil, false, NewSmbError(StatusNotSupported, "unsupported nt transact function")
	}
}

// ntNotifyChange implements NT_TRANSACT_NOTIFY_CHANGE: registers a
// directory watch with the notify collaborator. The reply itself is
// deferred; the collaborator's Post queues the eventual notify-change response
// on the session once a matching change is posted (spec.md §3
// "Notify request", §6 "ChangeNotifyHandler").
func (d *dispatcher) ntNotifyChange(rc *requestCtx, params []byte) (respParams, byteArea []byte, isAndX bool, serr *SmbError) {
	if d.notify == nil {
		return nil, nil, false, NewSmbError(StatusNotSupported, "change notification not configured")
	}
	if len(params) < 8 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "notify change: bad parameters")
	}
	filterMask := le.Uint32(params[0:])
	fid := le.Uint16(params[4:])
	watchTree := params[6] != 0

	var path string
	if rc.tree != nil {
		if of, ok := rc.tree.File(fid); ok {
			path = of.Path
		}
	}

	req := &NotifyRequest{
		Session:      rc.session,
		DirectoryFID: fid,
		FilterMask:   filterMask,
		WatchSubtree: watchTree,
		MID:          rc.mid,
		PID:          rc.pid,
		TID:          rc.tid,
		UID:          rc.uid,
		Registered:   time.Now(),
		Path:         path,
		Unicode:      rc.unicode,
	}
	rc.session.RegisterNotify(req)
	d.notify.AddNotifyRequest(req)
	rc.noReply = true
	return nil, nil, false, nil
}
