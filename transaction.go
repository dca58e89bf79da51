package smb1d

// transactionBuffer is the virtual circuit's single multi-packet
// reassembly slot (spec.md §3 "Transaction reassembly buffer", §4.6
// "Transaction reassembly"). Original synthesis: SMB1's AndX/Transact
// sub-protocols have no SMB2 analogue in the teacher, so this is written
// directly from spec.md's bit-exact description (see DESIGN.md).
type transactionBuffer struct {
	command Command // CmdTransaction, CmdTransaction2, or CmdNTTransact

	functionCode uint16 // Trans2/NTTransact sub-function, once known

	totalParamCount uint32
	totalDataCount  uint32

	paramDisplacement uint32
	dataDisplacement  uint32

	setup []uint16

	params []byte
	data   []byte

	maxParamReturn uint32
	maxDataReturn  uint32

	// PID/MID/UID/TID the first segment arrived under, so the dispatcher can
	// validate later fragments belong to the same logical request.
	pid, mid, uid, tid uint16
}

// newTransactionBuffer allocates backing storage sized to the totals
// declared by the opening segment.
func newTransactionBuffer(cmd Command, totalParams, totalData uint32, pid, mid, uid, tid uint16) *transactionBuffer {
	return &transactionBuffer{
		command:         cmd,
		totalParamCount: totalParams,
		totalDataCount:  totalData,
		params:          make([]byte, totalParams),
		data:            make([]byte, totalData),
		pid:             pid,
		mid:             mid,
		uid:             uid,
		tid:             tid,
	}
}

// appendSegment writes one fragment's parameter/data bytes at their declared
// displacement and advances the running displacement counters (spec.md §3
// "running displacement"). Returns an error if the fragment would overrun
// the declared totals (spec.md §8 "Boundary behaviors").
func (t *transactionBuffer) appendSegment(paramData []byte, paramDisp uint32, data []byte, dataDisp uint32) *SmbError {
	if paramDisp+uint32(len(paramData)) > t.totalParamCount {
		return NewSmbError(StatusSrvNonSpecificError, "parameter segment overruns total")
	}
	if dataDisp+uint32(len(data)) > t.totalDataCount {
		return NewSmbError(StatusSrvNonSpecificError, "data segment overruns total")
	}
	copy(t.params[paramDisp:], paramData)
	copy(t.data[dataDisp:], data)
	if paramDisp+uint32(len(paramData)) > t.paramDisplacement {
		t.paramDisplacement = paramDisp + uint32(len(paramData))
	}
	if dataDisp+uint32(len(data)) > t.dataDisplacement {
		t.dataDisplacement = dataDisp + uint32(len(data))
	}
	return nil
}

// complete reports whether both parameter and data displacements have
// reached their declared totals (spec.md §3 "Completion is declared when...",
// §8 "Σsegment-param-lengths = total-param-length").
func (t *transactionBuffer) complete() bool {
	return t.paramDisplacement >= t.totalParamCount && t.dataDisplacement >= t.totalDataCount
}

// matchesSegment validates that a secondary fragment belongs to this
// in-flight transaction: same command class and same originating PID/UID/TID
// (spec.md §5 "A secondary packet that does not match the pending
// transaction's command class is likewise an error").
func (t *transactionBuffer) matchesSegment(cmd Command, pid, uid, tid uint16) bool {
	secondaryOf := map[Command]Command{
		CmdTransactionSecond: CmdTransaction,
		CmdTransaction2Sec:   CmdTransaction2,
		CmdNTTransactSecond:  CmdNTTransact,
	}
	primary, ok := secondaryOf[cmd]
	if !ok || primary != t.command {
		return false
	}
	return t.pid == pid && t.uid == uid && t.tid == tid
}
