package smb1d

import "strings"

// cmdTreeConnectAndX implements TreeConnectAndX (spec.md §4.6 "Tree
// connect"): decode the UNC path and service string, resolve the named
// share, run it past the Authenticator's share-level access check, and bind
// a Tree (TID) into the session's VirtualCircuit. Grounded on the teacher's
// handleTreeConnectImpl (smb2_tree.go), generalized from SMB2's
// structure-size request to SMB1's AndX word/byte layout.
func (d *dispatcher) cmdTreeConnectAndX(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.vc == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "tree connect without session")
	}
	if blk.wordCount < 4 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "tree connect word count too small")
	}

	buf := rc.req.buf
	passwordLen := le.Uint16(buf[blk.paramsOff+6:])

	r := NewByteReader(buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, rc.unicode)
	password := r.ReadBytes(int(passwordLen))
	path := r.ReadString()
	service := readASCIIZ(r)

	shareName := extractShareName(path)
	if shareName == "" {
		return nil, nil, false, NewSmbError(StatusBadNetworkName, "could not parse share name")
	}

	wantType := ShareTypeDisk
	if strings.EqualFold(service, "IPC") {
		wantType = ShareTypeIPC
	}

	share, err := d.shares.FindShare(shareName, wantType, rc.session, false)
	if err != nil {
		return nil, nil, false, AsSmbError(err)
	}

	perm, err := d.auth.AuthenticateShareConnect(rc.std, rc.session, shareName, string(password))
	if err != nil {
		return nil, nil, false, AsSmbError(err)
	}
	if perm == PermissionNoAccess {
		return nil, nil, false, NewSmbError(StatusAccessDenied, "share access denied")
	}
	if share.ReadOnly {
		perm = PermissionReadOnly
	}

	tree := newTree(share, perm, d.opts.MaxOpenFilesPerTree)
	tid, ok := rc.vc.AllocateTree(tree)
	if !ok {
		return nil, nil, false, NewSmbError(StatusInsufficientResources, "too many tree connections")
	}
	tree.TID = tid
	rc.tree = tree
	rc.tid = tid

	if share.Driver != nil {
		if err := share.Driver.TreeOpened(rc.std, tree); err != nil {
			rc.vc.ReleaseTree(tid)
			return nil, nil, false, AsSmbError(err)
		}
	}

	extra := make([]byte, 2)
	le.PutUint16(extra, 0) // OptionalSupport

	w := NewByteWriter(64, 0, false)
	w.WriteString(service)
	w.WriteByte(0)
	w.WriteString("NTFS")
	return extra, w.Bytes(), true, nil
}

// cmdTreeDisconnect implements TreeDisconnect: release every open file on
// the tree, notify the driver, and free the TID.
func (d *dispatcher) cmdTreeDisconnect(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "no tree connected")
	}
	rc.tree.closeAll()
	if rc.tree.Share != nil && rc.tree.Share.Driver != nil {
		rc.tree.Share.Driver.TreeClosed(rc.std, rc.tree)
	}
	if rc.vc != nil {
		rc.vc.ReleaseTree(rc.tid)
	}
	rc.tree = nil
	return nil, nil, false, nil
}

// readASCIIZ reads a NUL-terminated ASCII string (the Service field of
// TreeConnectAndX is never UTF-16, even on Unicode connections).
func readASCIIZ(r *ByteReader) string {
	start := r.Position()
	data := r.data
	i := start
	for i < len(data) && data[i] != 0 {
		i++
	}
	s := string(data[start:i])
	if i < len(data) {
		i++
	}
	r.Seek(i)
	return s
}
