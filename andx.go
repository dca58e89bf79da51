package smb1d

// AndX chain walking (spec.md §4.3 "AndX chains", §4.6 "Chained (AndX)
// execution", §8 "next-offset values form a strictly increasing sequence").
// Original synthesis: SMB1's AndX convention has no SMB2 analogue to adapt
// from in the teacher; written directly from spec.md (see DESIGN.md).

// andxBlock is one parsed link in a chained request: the next command byte,
// the offset (from the start of the message) of that next command's block,
// and this block's own word/byte area bounds within the packet.
type andxBlock struct {
	command   Command
	nextCmd   Command
	nextOff   uint16
	wordCount byte
	paramsOff int // offset of this block's parameter words
	byteCount uint16
	bytesOff  int
}

// parseAndxChain walks a request packet's chained commands starting from
// the primary command at the header's own word count, returning one block
// per command in request order. Termination: nextCmd == CmdNoAndX, a
// malformed next-offset, or running out of packet.
func parseAndxChain(h *Header) []andxBlock {
	var blocks []andxBlock

	wordCount := int(h.WordCount())
	paramsOff := h.ParamWordsOffset()
	cmd := h.Command()

	for {
		if wordCount < 2 {
			// Not an AndX-capable command (too few parameter words for
			// {AndXCommand, AndXReserved, AndXOffset}); treat as terminal.
			break
		}
		nextCmd := Command(h.buf[paramsOff])
		nextOff := le.Uint16(h.buf[paramsOff+2:])

		byteCountOff := paramsOff + wordCount*2
		if byteCountOff+2 > len(h.buf) {
			break
		}
		byteCount := le.Uint16(h.buf[byteCountOff:])
		bytesOff := byteCountOff + 2

		blocks = append(blocks, andxBlock{
			command:   cmd,
			nextCmd:   nextCmd,
			nextOff:   nextOff,
			wordCount: byte(wordCount),
			paramsOff: paramsOff,
			byteCount: byteCount,
			bytesOff:  bytesOff,
		})

		if nextCmd == CmdNoAndX {
			break
		}
		if int(nextOff) <= paramsOff-1 || int(nextOff) >= len(h.buf) {
			// next-offset must strictly increase; a non-increasing or
			// out-of-range offset is malformed (spec.md §4.6 "on a malformed
			// next-offset").
			break
		}

		nextBlockStart := int(nextOff)
		if nextBlockStart >= len(h.buf) {
			break
		}
		wordCount = int(h.buf[nextBlockStart])
		paramsOff = nextBlockStart + 1
		cmd = nextCmd

		if len(blocks) >= 8 {
			// spec.md §4.3: "up to ~7 commands"; bail out rather than loop
			// forever on a hostile chain.
			break
		}
	}

	return blocks
}

// andxReplyWriter appends successive chained sub-replies tail-to-tail into
// a single response packet, tracking the previous block's AndXOffset field
// so it can be back-patched once the next block's start is known (spec.md
// §4.6 "appends the sub-reply at the current end-of-reply offset").
type andxReplyWriter struct {
	resp *Packet
	// offset, within resp.buf, of the AndXOffset field belonging to the
	// block most recently written; 0 means none written yet.
	pendingOffsetField int
}

func newAndxReplyWriter(resp *Packet) *andxReplyWriter {
	return &andxReplyWriter{resp: resp}
}

// startBlock records where the caller is about to write a new AndX block's
// wordCount byte, and back-patches the previous block's AndXOffset to point
// here.
func (w *andxReplyWriter) startBlock(offset int) {
	if w.pendingOffsetField != 0 {
		le.PutUint16(w.resp.buf[w.pendingOffsetField:], uint16(offset))
	}
}

// setPendingOffsetField records where (within this just-written block) the
// AndXOffset parameter word lives, so the next startBlock call can patch it.
func (w *andxReplyWriter) setPendingOffsetField(offset int) {
	w.pendingOffsetField = offset
}

// terminate writes CmdNoAndX into the final block's AndXCommand field,
// ending the chain (spec.md §4.3 "Termination: nextCmd = 0xFF").
func (w *andxReplyWriter) terminate(andxCommandField int) {
	w.resp.buf[andxCommandField] = byte(CmdNoAndX)
}
