package smb1d

// SMB1 signature, the first 4 bytes of every message body (spec.md §4.3).
var smb1Signature = [4]byte{0xFF, 'S', 'M', 'B'}

// Other dialect signatures the framer must recognize well enough to route
// (or refuse) without attempting to parse them (spec.md §1 Non-goals).
var smb2Signature = [4]byte{0xFE, 'S', 'M', 'B'}
var smb2TransformSignature = [4]byte{0xFD, 'S', 'M', 'B'}

// Command is an SMB1 opcode, the single byte at header offset 4.
type Command byte

const (
	CmdCreateDirectory   Command = 0x00
	CmdDeleteDirectory   Command = 0x01
	CmdClose             Command = 0x04
	CmdFlush             Command = 0x05
	CmdDelete            Command = 0x06
	CmdRename            Command = 0x07
	CmdQueryInformation  Command = 0x08
	CmdSetInformation    Command = 0x09
	CmdRead              Command = 0x0A
	CmdWrite             Command = 0x0B
	CmdCheckDirectory    Command = 0x10
	CmdWriteRaw          Command = 0x1D
	CmdTransaction       Command = 0x25
	CmdTransactionSecond Command = 0x26
	CmdFindClose2        Command = 0x34
	CmdTreeDisconnect    Command = 0x71
	CmdNegotiate         Command = 0x72
	CmdSessionSetupAndX  Command = 0x73
	CmdLogoffAndX        Command = 0x74
	CmdTreeConnectAndX   Command = 0x75
	CmdTransaction2      Command = 0x32
	CmdTransaction2Sec   Command = 0x33
	CmdNTTransact        Command = 0xA0
	CmdNTTransactSecond  Command = 0xA1
	CmdNTCreateAndX      Command = 0xA2
	CmdNTCancel          Command = 0xA4
	CmdOpenAndX          Command = 0x2D
	CmdReadAndX          Command = 0x2E
	CmdWriteAndX         Command = 0x2F
	CmdEcho              Command = 0x2B
	CmdNoAndX            Command = 0xFF
)

func (c Command) String() string {
	switch c {
	case CmdCreateDirectory:
		return "CreateDirectory"
	case CmdDeleteDirectory:
		return "DeleteDirectory"
	case CmdClose:
		return "Close"
	case CmdFlush:
		return "Flush"
	case CmdDelete:
		return "Delete"
	case CmdRename:
		return "Rename"
	case CmdQueryInformation:
		return "QueryInformation"
	case CmdSetInformation:
		return "SetInformation"
	case CmdRead:
		return "Read"
	case CmdWrite:
		return "Write"
	case CmdCheckDirectory:
		return "CheckDirectory"
	case CmdTransaction:
		return "Transaction"
	case CmdTransactionSecond:
		return "TransactionSecond"
	case CmdFindClose2:
		return "FindClose2"
	case CmdTreeDisconnect:
		return "TreeDisconnect"
	case CmdNegotiate:
		return "Negotiate"
	case CmdSessionSetupAndX:
		return "SessionSetupAndX"
	case CmdLogoffAndX:
		return "LogoffAndX"
	case CmdTreeConnectAndX:
		return "TreeConnectAndX"
	case CmdTransaction2:
		return "Transaction2"
	case CmdTransaction2Sec:
		return "Transaction2Second"
	case CmdNTTransact:
		return "NTTransact"
	case CmdNTTransactSecond:
		return "NTTransactSecond"
	case CmdNTCreateAndX:
		return "NTCreateAndX"
	case CmdNTCancel:
		return "NTCancel"
	case CmdOpenAndX:
		return "OpenAndX"
	case CmdReadAndX:
		return "ReadAndX"
	case CmdWriteAndX:
		return "WriteAndX"
	case CmdEcho:
		return "Echo"
	case CmdNoAndX:
		return "NoAndX"
	default:
		return "Unknown"
	}
}

// Header flag bits (offset 9), spec.md §4.3.
const (
	FlagCaseless byte = 1 << 3
	FlagResponse byte = 1 << 7
)

// Flags2 bits (offset 10-11, little-endian), spec.md §4.3.
const (
	Flags2LongNames       uint16 = 1 << 0
	Flags2EAs             uint16 = 1 << 1
	Flags2SecuritySigs    uint16 = 1 << 2
	Flags2ExtendedSecurity uint16 = 1 << 11
	Flags2DFS             uint16 = 1 << 12
	Flags2NTStatus        uint16 = 1 << 14 // aka FLG2_LONGERRORCODE
	Flags2Unicode         uint16 = 1 << 15
)

// headerSize is the fixed portion of the SMB1 header, offsets 0-31 from the
// 4-byte framing header, before the variable word count / parameter words.
const headerSize = 32

// Header is a bit-exact view over the 32-byte fixed SMB1 header embedded in
// a packet's buffer starting at offset 4 (after the framing header).
type Header struct {
	buf []byte // the full packet buffer, including the 4-byte frame prefix
}

// NewHeader wraps buf, which must be at least 4+headerSize bytes.
func NewHeader(buf []byte) *Header { return &Header{buf: buf} }

func (h *Header) body() []byte { return h.buf[4:] }

func (h *Header) ValidSignature() bool {
	b := h.body()
	return len(b) >= 4 && b[0] == smb1Signature[0] && b[1] == smb1Signature[1] &&
		b[2] == smb1Signature[2] && b[3] == smb1Signature[3]
}

func (h *Header) Command() Command   { return Command(h.body()[4]) }
func (h *Header) SetCommand(c Command) { h.body()[4] = byte(c) }

func (h *Header) Flags() byte       { return h.body()[9] }
func (h *Header) SetFlags(f byte)   { h.body()[9] = f }

func (h *Header) Flags2() uint16     { return le.Uint16(h.body()[10:]) }
func (h *Header) SetFlags2(f uint16) { le.PutUint16(h.body()[10:], f) }

func (h *Header) PIDHigh() uint16     { return le.Uint16(h.body()[12:]) }
func (h *Header) SetPIDHigh(v uint16) { le.PutUint16(h.body()[12:], v) }

func (h *Header) Signature() [8]byte {
	var s [8]byte
	copy(s[:], h.body()[14:22])
	return s
}
func (h *Header) SetSignature(s [8]byte) { copy(h.body()[14:22], s[:]) }

func (h *Header) TID() uint16     { return le.Uint16(h.body()[24:]) }
func (h *Header) SetTID(v uint16) { le.PutUint16(h.body()[24:], v) }

func (h *Header) PID() uint16     { return le.Uint16(h.body()[26:]) }
func (h *Header) SetPID(v uint16) { le.PutUint16(h.body()[26:], v) }

func (h *Header) UID() uint16     { return le.Uint16(h.body()[28:]) }
func (h *Header) SetUID(v uint16) { le.PutUint16(h.body()[28:], v) }

func (h *Header) MID() uint16     { return le.Uint16(h.body()[30:]) }
func (h *Header) SetMID(v uint16) { le.PutUint16(h.body()[30:], v) }

func (h *Header) WordCount() byte     { return h.body()[32] }
func (h *Header) SetWordCount(v byte) { h.body()[32] = v }

// IsUnicode reports whether strings in this message's byte area are UTF-16LE.
func (h *Header) IsUnicode() bool { return h.Flags2()&Flags2Unicode != 0 }

// IsLongErrorCode reports whether the error field at offset 5 carries a
// 32-bit NT status rather than a {class, code} pair.
func (h *Header) IsLongErrorCode() bool { return h.Flags2()&Flags2NTStatus != 0 }

// SetSuccess zeroes the error fields and sets FLG_RESPONSE.
func (h *Header) SetSuccess() {
	h.SetFlags(h.Flags() | FlagResponse)
	if h.IsLongErrorCode() {
		le.PutUint32(h.body()[5:], 0)
	} else {
		h.body()[5] = 0
		h.body()[6] = 0
		h.body()[7] = 0
	}
}

// SetError writes the status in whichever representation the request
// negotiated and sets FLG_RESPONSE (spec.md §4.3 "Error response", §7).
func (h *Header) SetError(status NTStatus) {
	h.SetFlags(h.Flags() | FlagResponse)
	if h.IsLongErrorCode() {
		le.PutUint32(h.body()[5:], uint32(status))
		return
	}
	class, code := dosEquivalent(status)
	h.body()[5] = byte(class)
	h.body()[6] = byte(code)
	h.body()[7] = byte(code >> 8)
}

// Status reads back the error field using the representation the header
// currently declares.
func (h *Header) Status() NTStatus {
	if h.IsLongErrorCode() {
		return NTStatus(le.Uint32(h.body()[5:]))
	}
	class := h.body()[5]
	if class == 0 {
		return StatusSuccess
	}
	return StatusInternalError
}

// ParamWordsOffset returns the byte offset (from buf[0]) of the first
// parameter word, i.e. right after the word count byte.
func (h *Header) ParamWordsOffset() int { return 4 + headerSize + 1 }

// ByteCountOffset returns the byte offset of the 2-byte ByteCount field,
// which follows WordCount()*2 bytes of parameter words.
func (h *Header) ByteCountOffset() int {
	return h.ParamWordsOffset() + int(h.WordCount())*2
}

// ByteAreaOffset returns the byte offset of the start of the byte area.
func (h *Header) ByteAreaOffset() int { return h.ByteCountOffset() + 2 }

func (h *Header) ByteCount() uint16 {
	return le.Uint16(h.buf[h.ByteCountOffset():])
}
