package smb1d

import (
	"time"
)

// DialectID is the server's internal ranking of an SMB1/LanMan dialect
// string (spec.md §4.3 "Negotiate" — "the server picks the highest id it
// supports"). Higher values are newer dialects; zero means "no common
// dialect found".
type DialectID int

const (
	DialectUnknown DialectID = iota
	DialectCore               // "PC NETWORK PROGRAM 1.0"
	DialectCoreplus           // "MICROSOFT NETWORKS 1.03"
	DialectLanman1            // "MICROSOFT NETWORKS 3.0" / "LANMAN1.0"
	DialectLanman2            // "LM1.2X002"
	DialectNTLM               // "NT LM 0.12"
)

// dialectStrings maps each recognized wire string to its DialectID; the
// DialectID values themselves are ordered by capability (spec.md §4.3
// "dialect strings").
var dialectStrings = map[string]DialectID{
	"PC NETWORK PROGRAM 1.0": DialectCore,
	"MICROSOFT NETWORKS 1.03": DialectCoreplus,
	"MICROSOFT NETWORKS 3.0":  DialectLanman1,
	"LANMAN1.0":                DialectLanman1,
	"LM1.2X002":                DialectLanman2,
	"DOS LM1.2X002":            DialectLanman2,
	"NT LM 0.12":               DialectNTLM,
}

func (d DialectID) String() string {
	switch d {
	case DialectCore:
		return "PC NETWORK PROGRAM 1.0"
	case DialectCoreplus:
		return "MICROSOFT NETWORKS 1.03"
	case DialectLanman1:
		return "LANMAN1.0"
	case DialectLanman2:
		return "LM1.2X002"
	case DialectNTLM:
		return "NT LM 0.12"
	default:
		return "unknown"
	}
}

// requiresAuthentication reports whether the negotiated dialect mandates a
// SessionSetupAndX before tree connects are permitted (spec.md §4.4 "all
// from LanMan upward do").
func (d DialectID) requiresAuthentication() bool {
	return d >= DialectLanman1
}

// parseDialectList decodes the Negotiate request byte area: a run of
// Dialect-tagged (0x02), null-terminated ASCII strings, returning them in
// request order (spec.md §4.3 "a sequence of null-terminated dialect
// strings each prefixed with the Dialect data-type byte").
func parseDialectList(byteArea []byte) []string {
	var out []string
	i := 0
	for i < len(byteArea) {
		if byteArea[i] != 0x02 {
			break
		}
		i++
		start := i
		for i < len(byteArea) && byteArea[i] != 0 {
			i++
		}
		out = append(out, string(byteArea[start:i]))
		if i < len(byteArea) {
			i++ // skip NUL
		}
	}
	return out
}

// selectDialect picks the highest DialectID the server supports that also
// appears in the client's offered list, returning its index into that list
// (the Core/LanMan response's "selected index" parameter word) alongside
// the id itself.
func selectDialect(offered []string) (id DialectID, index int) {
	bestIdx, bestID := -1, DialectUnknown
	for i, name := range offered {
		if d, ok := dialectStrings[name]; ok && d > bestID {
			bestID, bestIdx = d, i
		}
	}
	if bestIdx < 0 {
		return DialectUnknown, -1
	}
	return bestID, bestIdx
}

// negotiateResult is the information the dispatcher needs to build any of
// the three dialect-dependent Negotiate response shapes.
type negotiateResult struct {
	Dialect        DialectID
	SelectedIndex  int
	SecurityMode   byte
	MaxBufferSize  uint32
	MaxMPXCount    uint16
	MaxVCs         uint16
	SessionKey     uint32
	Capabilities   uint32
	ServerTime     time.Time
	TimeZone       int16
	Challenge      []byte
	Domain         string
	ServerName     string
	ExtendedSecurity bool
	ServerGUID     [16]byte
	NegTokenInit   []byte
}

// Capability bits advertised in the NT LM 0.12 Negotiate response
// (spec.md §4.3 "32-bit capability mask").
const (
	CapRawMode        uint32 = 0x00000001
	CapMpxMode        uint32 = 0x00000002
	CapUnicode        uint32 = 0x00000004
	CapLargeFiles     uint32 = 0x00000008
	CapNTSMBs         uint32 = 0x00000010
	CapRPCRemoteAPIs  uint32 = 0x00000020
	CapStatus32       uint32 = 0x00000040
	CapLevelII_OpLocks uint32 = 0x00000080
	CapLockAndRead    uint32 = 0x00000100
	CapNTFind         uint32 = 0x00000200
	CapDFS            uint32 = 0x00001000
	CapLargeReadX     uint32 = 0x00004000
	CapLargeWriteX    uint32 = 0x00008000
	CapExtendedSecurity uint32 = 0x80000000
)

// buildNegotiateResult runs dialect selection and, for dialects requiring
// authentication, consults auth for challenge material (spec.md §4.4
// "asks the authenticator for challenge material").
func buildNegotiateResult(offered []string, opts *ServerOptions, auth Authenticator, session *Session, now time.Time) (*negotiateResult, *SmbError) {
	id, idx := selectDialect(offered)
	if id == DialectUnknown {
		return nil, NewSmbError(StatusNotSupported, "no common dialect")
	}

	res := &negotiateResult{
		Dialect:       id,
		SelectedIndex: idx,
		MaxBufferSize: opts.MaxBufferSize,
		MaxMPXCount:   opts.MaxMultiplexCount,
		MaxVCs:        uint16(opts.MaxVirtualCircuitsPerSession),
		ServerTime:    now,
		ServerName:    opts.ServerName,
		Domain:        opts.Domain,
	}

	if !id.requiresAuthentication() {
		return res, nil
	}

	if auth != nil {
		res.SecurityMode = auth.SecurityMode()
		res.Challenge = auth.AuthContext(session)
		res.ExtendedSecurity = opts.ExtendedSecurity && auth.HasExtendedSecurity()
		if res.ExtendedSecurity {
			res.NegTokenInit = auth.NegTokenInit()
		}
	}

	res.Capabilities = CapUnicode | CapNTSMBs | CapStatus32 | CapLargeFiles | CapNTFind | CapLockAndRead | CapLevelII_OpLocks
	if res.ExtendedSecurity {
		res.Capabilities |= CapExtendedSecurity
	}
	if id >= DialectNTLM {
		res.ServerGUID = opts.ServerGUID
	}

	return res, nil
}

// cmdNegotiate implements Negotiate (spec.md §4.3 "Negotiate"): parse the
// offered dialect list, pick the highest one the server supports, and
// serialize whichever of the three response shapes that dialect requires.
// Negotiate is never AndX-capable, so it always ends a chain.
func (d *dispatcher) cmdNegotiate(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	offered := parseDialectList(rc.req.buf[blk.bytesOff : blk.bytesOff+int(blk.byteCount)])
	res, nerr := buildNegotiateResult(offered, d.opts, d.auth, rc.session, time.Now())
	if nerr != nil {
		w := NewByteWriter(2, 0, false)
		w.WriteUint16(0xFFFF)
		return w.Bytes(), nil, false, nerr
	}

	rc.session.SetDialect(res.Dialect)

	if res.Dialect < DialectLanman1 {
		w := NewByteWriter(2, 0, false)
		w.WriteUint16(uint16(res.SelectedIndex))
		return w.Bytes(), nil, false, nil
	}

	if res.Dialect < DialectNTLM {
		return buildLanmanNegotiateReply(res), res.Challenge, false, nil
	}

	return buildNTLMNegotiateReply(rc, res)
}

// buildLanmanNegotiateReply serializes the 13-word LANMAN1.0/LM1.2X002
// Negotiate response (spec.md §4.3 "pre-NT dialects").
func buildLanmanNegotiateReply(res *negotiateResult) []byte {
	p := make([]byte, 26)
	le.PutUint16(p[0:], uint16(res.SelectedIndex))
	le.PutUint16(p[2:], uint16(res.SecurityMode))
	le.PutUint16(p[4:], uint16(res.MaxBufferSize))
	le.PutUint16(p[6:], res.MaxMPXCount)
	le.PutUint16(p[8:], res.MaxVCs)
	le.PutUint16(p[10:], 0) // RawMode
	le.PutUint32(p[12:], res.SessionKey)
	date, tm := toDosDateTime(res.ServerTime)
	le.PutUint16(p[16:], tm)
	le.PutUint16(p[18:], date)
	le.PutUint16(p[20:], uint16(res.TimeZone))
	le.PutUint16(p[22:], uint16(len(res.Challenge))) // EncryptionKeyLength
	return p // p[24:26] Reserved
}

// buildNTLMNegotiateReply serializes the 17-word "NT LM 0.12" Negotiate
// response, in either its legacy challenge/response shape (word 16 carries
// an 8-byte LanMan challenge in the byte area) or its extended-security
// shape (a SPNEGO NegTokenInit blob plus the server GUID instead).
func buildNTLMNegotiateReply(rc *requestCtx, res *negotiateResult) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	p := make([]byte, 34)
	le.PutUint16(p[0:], uint16(res.SelectedIndex))
	p[2] = res.SecurityMode
	le.PutUint16(p[3:], res.MaxMPXCount)
	le.PutUint16(p[5:], res.MaxVCs)
	le.PutUint32(p[7:], res.MaxBufferSize)
	le.PutUint32(p[11:], 0xFFFF) // MaxRawSize, unused over TCP direct
	le.PutUint32(p[15:], res.SessionKey)
	le.PutUint32(p[19:], res.Capabilities)
	t := TimeToFiletime(res.ServerTime)
	le.PutUint32(p[23:], uint32(t))
	le.PutUint32(p[27:], uint32(t>>32))
	le.PutUint16(p[31:], uint16(res.TimeZone))
	p[33] = byte(len(res.Challenge))

	w := NewByteWriter(64, 0, false)
	if res.ExtendedSecurity {
		w.WriteBytes(res.ServerGUID[:])
		w.WriteBytes(res.NegTokenInit)
	} else {
		w.WriteBytes(res.Challenge)
		w.WriteString(res.Domain)
		w.WriteByte(0)
		w.WriteString(res.ServerName)
		w.WriteByte(0)
	}
	return p, w.Bytes(), false, nil
}
