package smb1d

// cmdTransaction implements SMB_COM_TRANSACTION (MS-CIFS 2.2.4.33), the
// plain (non-Trans2) transaction used almost exclusively for IPC$ named
// pipe RPC calls. Its primary-segment word layout is identical to
// Transaction2's, so parseTrans2Primary/parseTrans2Secondary and the same
// reassembly buffer serve both (spec.md §4.3 "Transactions").
func (d *dispatcher) cmdTransaction(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.vc == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "transaction without circuit")
	}
	if blk.wordCount < 14 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "transaction word count too small")
	}
	pt := parseTrans2Primary(rc.req.buf, blk.paramsOff, int(blk.wordCount))
	paramData := segmentBytes(rc.req.buf, pt.paramOffset, pt.paramCount)
	data := segmentBytes(rc.req.buf, pt.dataOffset, pt.dataCount)

	if pt.paramCount >= pt.totalParamCount && pt.dataCount >= pt.totalDataCount {
		return d.runTransaction(rc, paramData, data)
	}

	txn := newTransactionBuffer(CmdTransaction, pt.totalParamCount, pt.totalDataCount, rc.pid, rc.mid, rc.uid, rc.tid)
	txn.setup = pt.setup
	if aerr := txn.appendSegment(paramData, 0, data, 0); aerr != nil {
		return nil, nil, false, aerr
	}
	if verr := rc.vc.BeginTransaction(txn); verr != nil {
		return nil, nil, false, verr
	}
	rc.noReply = true
	return nil, nil, false, nil
}

// cmdTransactionSecondary appends one fragment to a pending plain
// Transaction, running it once reassembly completes.
func (d *dispatcher) cmdTransactionSecondary(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.vc == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "transaction secondary without circuit")
	}
	txn := rc.vc.PendingTransaction()
	if txn == nil || !txn.matchesSegment(CmdTransactionSecond, rc.pid, rc.uid, rc.tid) {
		return nil, nil, false, NewSmbError(StatusSrvNonSpecificError, "no matching pending transaction")
	}
	pt := parseTrans2Secondary(rc.req.buf, blk.paramsOff)
	paramData := segmentBytes(rc.req.buf, pt.paramOffset, pt.paramCount)
	data := segmentBytes(rc.req.buf, pt.dataOffset, pt.dataCount)
	if aerr := txn.appendSegment(paramData, pt.paramDisplacement, data, pt.dataDisplacement); aerr != nil {
		rc.vc.ClearTransaction()
		return nil, nil, false, aerr
	}
	if !txn.complete() {
		rc.noReply = true
		return nil, nil, false, nil
	}
	rc.vc.ClearTransaction()
	rc.replyCommand = CmdTransaction
	rc.replyCommandSet = true
	return d.runTransaction(rc, txn.params, txn.data)
}

// runTransaction hands a reassembled plain Transaction to the IPC
// collaborator. ProcTransaction rewrites the buffer's params/data in place
// with the reply payload, which is then packed into the common Transaction
// reply shape (spec.md §4.6 step 5 "IPC$ requests are forwarded").
func (d *dispatcher) runTransaction(rc *requestCtx, params, data []byte) (respParams, byteArea []byte, isAndX bool, serr *SmbError) {
	if d.ipc == nil {
		return nil, nil, false, NewSmbError(StatusNotSupported, "no ipc handler configured")
	}
	txn := &transactionBuffer{command: CmdTransaction, params: params, data: data}
	if err := d.ipc.ProcTransaction(rc.std, rc.vc, txn, rc.session); err != nil {
		return nil, nil, false, AsSmbError(err)
	}
	return buildTransReply(txn.params, txn.data)
}
