package smb1d

// cmdSessionSetupAndX implements SessionSetupAndX (spec.md §4.5 "Session
// setup"): decodes the LM/NTLM (or extended-security) credentials from the
// byte area, asks the Authenticator to verify them, and on success allocates
// a VirtualCircuit (UID) bound to the resulting identity.
func (d *dispatcher) cmdSessionSetupAndX(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if blk.wordCount < 10 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "session setup word count too small")
	}

	buf := rc.req.buf
	paramsOff := blk.paramsOff

	var caseInsensitiveLen, caseSensitiveLen uint16
	extended := rc.reqHeader.Flags2()&Flags2ExtendedSecurity != 0

	if extended {
		// {AndXCommand,AndXReserved,AndXOffset,MaxBufferSize,MaxMpxCount,
		//  VcNumber,SessionKey,SecurityBlobLength,Reserved,Capabilities}
		caseSensitiveLen = le.Uint16(buf[paramsOff+14:])
	} else {
		if blk.wordCount < 13 {
			return nil, nil, false, NewSmbError(StatusInvalidParameter, "legacy session setup word count too small")
		}
		caseInsensitiveLen = le.Uint16(buf[paramsOff+14:])
		caseSensitiveLen = le.Uint16(buf[paramsOff+16:])
	}

	r := NewByteReader(buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, rc.unicode)

	creds := UserCredentials{}
	if extended {
		creds.CaseSensitivePassword = r.ReadBytes(int(caseSensitiveLen))
		creds.AccountName = r.ReadString()
		creds.NativeOS = r.ReadString()
		creds.NativeLanMan = r.ReadString()
	} else {
		creds.CaseInsensitivePassword = r.ReadBytes(int(caseInsensitiveLen))
		creds.CaseSensitivePassword = r.ReadBytes(int(caseSensitiveLen))
		creds.AccountName = r.ReadString()
		creds.PrimaryDomain = r.ReadString()
		creds.NativeOS = r.ReadString()
		creds.NativeLanMan = r.ReadString()
	}

	result, err := d.auth.AuthenticateUser(rc.std, creds, rc.session)
	if err != nil || result.Denied || !result.Authenticated {
		return nil, nil, false, NewSmbError(StatusLogonFailure, "session setup rejected")
	}

	vc, verr := rc.session.AllocateVC(creds)
	if verr != nil {
		return nil, nil, false, verr
	}
	rc.vc = vc
	rc.uid = vc.UID
	rc.session.SetState(StateSMBSession)

	action := uint16(0)
	if result.Guest {
		action = 1
	}

	w := NewByteWriter(128, 0, rc.unicode)
	w.WriteString(d.opts.ServerName)
	w.WriteString("smb1d")

	extra := make([]byte, 2)
	le.PutUint16(extra, action)
	return extra, w.Bytes(), true, nil
}

// cmdLogoffAndX tears down every virtual circuit allocated under this
// session's UID (spec.md §4.5 "Logoff").
func (d *dispatcher) cmdLogoffAndX(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.vc != nil {
		rc.session.ReleaseVC(rc.vc.UID)
		rc.vc = nil
	}
	return nil, nil, true, nil
}
