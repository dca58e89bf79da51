package smb1d

// TransFunction is a Trans2/NTTransact sub-function code: a 16-bit value
// carried in the Setup words, distinct from Command (the 1-byte SMB1
// opcode) even though both select "what operation is this".
type TransFunction uint16

// Trans2 sub-function codes (MS-CIFS 2.2.4.46, the Setup[0] word of every
// Transaction2 primary segment).
const (
	Trans2Open2                TransFunction = 0x0001
	Trans2FindFirst2           TransFunction = 0x0002
	Trans2FindNext2            TransFunction = 0x0003
	Trans2QueryFSInformation   TransFunction = 0x0004
	Trans2SetFSInformation     TransFunction = 0x0005
	Trans2QueryPathInformation TransFunction = 0x0006
	Trans2SetPathInformation   TransFunction = 0x0007
	Trans2QueryFileInformation TransFunction = 0x0008
	Trans2SetFileInformation   TransFunction = 0x0009
	Trans2CreateDirectory      TransFunction = 0x000E
)

// trans2Handler processes one fully-reassembled Transaction2 buffer,
// returning the reply's parameter and data blocks.
type trans2Handler func(d *dispatcher, rc *requestCtx, params, data []byte) (respParams, respData []byte, serr *SmbError)

var trans2Table = map[TransFunction]trans2Handler{
	Trans2FindFirst2:           (*dispatcher).trans2FindFirst2,
	Trans2FindNext2:            (*dispatcher).trans2FindNext2,
	Trans2QueryPathInformation: (*dispatcher).trans2QueryPathInformation,
	Trans2QueryFileInformation: (*dispatcher).trans2QueryFileInformation,
	Trans2SetFileInformation:   (*dispatcher).trans2SetFileInformation,
	Trans2SetPathInformation:   (*dispatcher).trans2SetPathInformation,
}

// parsedTransaction is the decoded view of one Transaction/Transaction2/
// NTTransact primary or secondary segment's fixed fields, common enough
// across the three sub-protocols that one parser covers all of them
// (spec.md §4.3 "Transactions").
type parsedTransaction struct {
	totalParamCount, totalDataCount uint32
	paramCount, paramOffset         uint32
	paramDisplacement               uint32
	dataCount, dataOffset           uint32
	dataDisplacement                uint32
	setup                           []uint16
	functionCode                    uint16
	isSecondary                     bool
}

// parseTrans2Primary decodes an SMB_COM_TRANSACTION2 primary segment's
// 14+SetupCount word parameter block (MS-CIFS 2.2.4.46.1).
func parseTrans2Primary(buf []byte, p int, wordCount int) parsedTransaction {
	setupCount := int(buf[p+26])
	pt := parsedTransaction{
		totalParamCount: uint32(le.Uint16(buf[p+0:])),
		totalDataCount:  uint32(le.Uint16(buf[p+2:])),
		paramCount:      uint32(le.Uint16(buf[p+18:])),
		paramOffset:     uint32(le.Uint16(buf[p+20:])),
		dataCount:       uint32(le.Uint16(buf[p+22:])),
		dataOffset:      uint32(le.Uint16(buf[p+24:])),
	}
	setupOff := p + 28
	for i := 0; i < setupCount && setupOff+i*2+2 <= len(buf); i++ {
		pt.setup = append(pt.setup, le.Uint16(buf[setupOff+i*2:]))
	}
	if len(pt.setup) > 0 {
		pt.functionCode = pt.setup[0]
	}
	return pt
}

// parseTrans2Secondary decodes a Transaction2Secondary fragment's word
// block (MS-CIFS 2.2.4.47.1).
func parseTrans2Secondary(buf []byte, p int) parsedTransaction {
	return parsedTransaction{
		isSecondary:       true,
		totalParamCount:   uint32(le.Uint16(buf[p+0:])),
		totalDataCount:    uint32(le.Uint16(buf[p+2:])),
		paramCount:        uint32(le.Uint16(buf[p+4:])),
		paramOffset:       uint32(le.Uint16(buf[p+6:])),
		paramDisplacement: uint32(le.Uint16(buf[p+8:])),
		dataCount:         uint32(le.Uint16(buf[p+10:])),
		dataOffset:        uint32(le.Uint16(buf[p+12:])),
		dataDisplacement:  uint32(le.Uint16(buf[p+14:])),
	}
}

// segmentBytes slices a field described by a message-relative offset/count
// pair out of the raw request buffer.
func segmentBytes(buf []byte, offset, count uint32) []byte {
	start, end := int(offset), int(offset+count)
	if start < 0 || end > len(buf) || start > end {
		return nil
	}
	return buf[start:end]
}

// cmdTransaction2 implements both the single-packet and first-segment cases
// of SMB_COM_TRANSACTION2 (spec.md §4.6 "Transaction reassembly"): if the
// primary segment's own counts already equal its totals, dispatch inline;
// otherwise start the virtual circuit's reassembly buffer and send no reply
// for this segment (the eventual Trans2FindFirst2/... reply is sent only once
// the secondary fragments complete it).
func (d *dispatcher) cmdTransaction2(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "transaction2 without tree")
	}
	if blk.wordCount < 14 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "trans2 word count too small")
	}
	pt := parseTrans2Primary(rc.req.buf, blk.paramsOff, int(blk.wordCount))

	paramData := segmentBytes(rc.req.buf, pt.paramOffset, pt.paramCount)
	data := segmentBytes(rc.req.buf, pt.dataOffset, pt.dataCount)

	if pt.paramCount >= pt.totalParamCount && pt.dataCount >= pt.totalDataCount {
		return d.runTrans2(rc, TransFunction(pt.functionCode), paramData, data)
	}

	txn := newTransactionBuffer(CmdTransaction2, pt.totalParamCount, pt.totalDataCount, rc.pid, rc.mid, rc.uid, rc.tid)
	txn.functionCode = pt.functionCode
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

// cmdTransaction2Secondary appends one fragment to the pending transaction
// and, once complete, runs the sub-function and reports the reply under the
// original Transaction2 command byte (spec.md §4.6 "reassembly").
func (d *dispatcher) cmdTransaction2Secondary(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.vc == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "trans2 secondary without circuit")
	}
	txn := rc.vc.PendingTransaction()
	if txn == nil || !txn.matchesSegment(CmdTransaction2Sec, rc.pid, rc.uid, rc.tid) {
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
	rc.replyCommand = CmdTransaction2
	rc.replyCommandSet = true
	return d.runTrans2(rc, TransFunction(txn.functionCode), txn.params, txn.data)
}

// runTrans2 dispatches a reassembled Transaction2 buffer on its sub-function
// and serializes its reply into the SMB_COM_TRANSACTION2 response shape:
// {TotalParameterCount,TotalDataCount,Reserved,ParameterCount,ParameterOffset,
// ParameterDisplacement,DataCount,DataOffset,DataDisplacement,SetupCount,
// Reserved2,Setup[]} followed by parameters then data in the byte area
// (spec.md §4.3 "a parameter block and a data block").
func (d *dispatcher) runTrans2(rc *requestCtx, fn TransFunction, params, data []byte) (respParams, byteArea []byte, isAndX bool, serr *SmbError) {
	handler, ok := trans2Table[fn]
	if !ok {
		return nil, nil, false, NewSmbError(StatusNotSupported, "unsupported trans2 sub-function")
	}
	respParamBlock, respDataBlock, herr := handler(d, rc, params, data)
	if herr != nil {
		return nil, nil, false, herr
	}
	return buildTransReply(respParamBlock, respDataBlock)
}

// buildTransReply packs a parameter/data pair into the common 10-word
// Transaction/Transaction2/NTTransact response parameter block plus a byte
// area of [pad, params, data]. ParameterOffset and DataOffset are left zero
// here: this function does not know where the block lands in the reply, so
// the dispatcher patches both once it has placed the block.
func buildTransReply(params, data []byte) (respParams, byteArea []byte, isAndX bool, serr *SmbError) {
	p := make([]byte, 20)
	le.PutUint16(p[0:], uint16(len(params)))  // TotalParameterCount
	le.PutUint16(p[2:], uint16(len(data)))    // TotalDataCount
	le.PutUint16(p[4:], 0)                    // Reserved
	le.PutUint16(p[6:], uint16(len(params)))  // ParameterCount
	le.PutUint16(p[8:], 0)                    // ParameterOffset, patched by dispatcher
	le.PutUint16(p[10:], 0)                   // ParameterDisplacement
	le.PutUint16(p[12:], uint16(len(data)))   // DataCount
	le.PutUint16(p[14:], 0)                   // DataOffset, patched by dispatcher
	le.PutUint16(p[16:], 0)                   // DataDisplacement
	p[18] = 0                                 // SetupCount
	p[19] = 0                                 // Reserved2

	w := NewByteWriter(1+len(params)+len(data), 0, false)
	w.WriteByte(0) // pad before parameters
	w.WriteBytes(params)
	w.WriteBytes(data)

	// ParameterOffset/DataOffset are absolute positions within the final
	// reply, unknowable until the dispatcher places this block; it patches
	// both in after appending, the same way it patches ReadAndX's
	// DataOffset (spec.md §4.6 "Read").
	return p, w.Bytes(), false, nil
}
