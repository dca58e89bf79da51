package smb1d

// FSCTL control codes (MS-FSCC 2.3), the function-code table an
// NTTransactIOCTL request's CtlCode selects against. Adapted from the
// teacher's FSCTL constant table (absfs-smbfs's IOCTL handler), narrowed to
// the codes this server can answer meaningfully over a plain
// FilesystemDriver with no DFS/reparse-point/snapshot surface.
const (
	FsctlDfsGetReferrals      uint32 = 0x00060194
	FsctlDfsGetReferralsEx    uint32 = 0x000601B0
	FsctlPipePeek             uint32 = 0x0011400C
	FsctlPipeWait             uint32 = 0x00110018
	FsctlPipeTransceive       uint32 = 0x0011C017
	FsctlSrvCopychunk         uint32 = 0x001440F2
	FsctlSrvEnumerateSnapshots uint32 = 0x00144064
	FsctlSrvRequestResumeKey  uint32 = 0x00140078
	FsctlLmrRequestResiliency uint32 = 0x001401D4
	FsctlSetReparsePoint      uint32 = 0x000900A4
	FsctlGetReparsePoint      uint32 = 0x000900A8
	FsctlValidateNegotiateInfo uint32 = 0x00140204
)

// ntIOCTL implements the NTTransactIOCTL sub-function by looking up
// CtlCode in the FSCTL table above. Only FsctlValidateNegotiateInfo has an
// observable effect in this package (it just echoes the dialect/GUID the
// session already negotiated back at the client, per MS-SMB2 2.2.31.4 used
// defensively by some NT LM 0.12 clients too); every other recognized or
// unrecognized code reports StatusNotSupported rather than fabricate a
// reply, since the driver model exposes no DFS/reparse-point/snapshot
// surface for those to act on.
func (d *dispatcher) ntIOCTL(rc *requestCtx, params []byte) (respParams, respData []byte, serr *SmbError) {
	if len(params) < 4 {
		return nil, nil, NewSmbError(StatusInvalidParameter, "ioctl: missing control code")
	}
	ctlCode := le.Uint32(params[0:])

	switch ctlCode {
	case FsctlValidateNegotiateInfo:
		return d.validateNegotiateInfo(rc)
	default:
		return nil, nil, NewSmbError(StatusNotSupported, "unrecognized fsctl code")
	}
}

// validateNegotiateInfo replies with the server's GUID and currently
// negotiated dialect, letting a client confirm no downgrade attack occurred
// between Negotiate and this request.
func (d *dispatcher) validateNegotiateInfo(rc *requestCtx) (respParams, respData []byte, serr *SmbError) {
	w := NewByteWriter(24, 0, false)
	w.WriteUint32(0) // Capabilities, unused at SMB1
	w.WriteGUID(d.opts.ServerGUID)
	w.WriteUint16(uint16(rc.session.Dialect))
	w.WriteUint16(0) // SecurityMode
	return nil, w.Bytes(), nil
}
