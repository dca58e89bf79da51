package smb1d

// InfoLevel is an SMB_INFO_*/SMB_FIND_FILE_*/SMB_QUERY_FILE_* information
// level code: a 16-bit value carried in a Trans2 parameter word, too wide
// for Command (the 1-byte SMB1 opcode type).
type InfoLevel uint16

// SMB_FIND_FILE_* information levels (MS-CIFS 2.2.1.4.1) for
// Trans2FindFirst2/Trans2FindNext2 reply entries. Grounded on the teacher's
// formatDirEntry (smb2_dir.go), renumbered to SMB1's level constants instead
// of SMB2's FileXxxInformation class bytes.
const (
	InfoStandard              InfoLevel = 0x0001
	InfoQueryEASize           InfoLevel = 0x0002
	FindFileDirectoryInfo     InfoLevel = 0x0101
	FindFileFullDirectoryInfo InfoLevel = 0x0102
	FindFileNamesInfo         InfoLevel = 0x0103
	FindFileBothDirectoryInfo InfoLevel = 0x0104
)

// Trans2FindFirst2/FindNext2 Flags bits (MS-CIFS 2.2.6.2.1).
const (
	FindCloseAfterRequest uint16 = 0x0001
	FindCloseAtEOS        uint16 = 0x0002
	FindReturnResumeKeys  uint16 = 0x0004
	FindContinueFromLast  uint16 = 0x0008
)

// trans2FindFirst2 implements TRANS2_FIND_FIRST2 (spec.md §4.6 "Transact2
// FindFirst"): start a search against the driver, pack up to SearchCount
// entries (MaxDataCount is not consulted), and allocate a search slot for
// any continuation.
func (d *dispatcher) trans2FindFirst2(rc *requestCtx, params, data []byte) (respParams, respData []byte, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, NewSmbError(StatusInvalidParameter, "findfirst2 without tree")
	}
	if len(params) < 12 {
		return nil, nil, NewSmbError(StatusInvalidParameter, "findfirst2 parameter block too small")
	}
	searchCount := int(le.Uint16(params[2:]))
	flags := le.Uint16(params[4:])
	infoLevel := InfoLevel(le.Uint16(params[6:]))

	r := NewByteReader(params[12:], 12, rc.unicode)
	pattern := r.ReadString()
	path := newPathNormalizer(true).normalize(pattern)

	ctx, err := rc.tree.Share.Driver.StartSearch(rc.std, path)
	if err != nil {
		return nil, nil, AsSmbError(err)
	}

	sid, serr2 := rc.vc.AllocateSearch(ctx)
	if serr2 != nil {
		ctx.Close()
		return nil, nil, serr2
	}

	entries, endOfSearch := packSearchEntries(ctx, infoLevel, searchCount)

	if endOfSearch || flags&FindCloseAfterRequest != 0 || (endOfSearch && flags&FindCloseAtEOS != 0) {
		rc.vc.ReleaseSearch(sid)
		sid = 0
	}

	rp := make([]byte, 10)
	le.PutUint16(rp[0:], sid)
	le.PutUint16(rp[2:], uint16(len(entries)))
	if endOfSearch {
		le.PutUint16(rp[4:], 1)
	}
	le.PutUint16(rp[6:], 0) // EaErrorOffset
	le.PutUint16(rp[8:], 0) // LastNameOffset

	return rp, packEntryList(entries, infoLevel), nil
}

// trans2FindNext2 implements TRANS2_FIND_NEXT2: resume a previously
// allocated search slot and pack the next batch of entries.
func (d *dispatcher) trans2FindNext2(rc *requestCtx, params, data []byte) (respParams, respData []byte, serr *SmbError) {
	if rc.vc == nil || len(params) < 12 {
		return nil, nil, NewSmbError(StatusInvalidParameter, "findnext2 parameter block too small")
	}
	sid := le.Uint16(params[0:])
	searchCount := int(le.Uint16(params[2:]))
	infoLevel := InfoLevel(le.Uint16(params[4:]))
	flags := le.Uint16(params[10:])

	ctx, ok := rc.vc.Search(sid)
	if !ok {
		return nil, nil, NewSmbError(StatusInvalidHandle, "unknown search id")
	}

	entries, endOfSearch := packSearchEntries(ctx, infoLevel, searchCount)

	if endOfSearch || flags&FindCloseAfterRequest != 0 {
		rc.vc.ReleaseSearch(sid)
	}

	rp := make([]byte, 8)
	le.PutUint16(rp[0:], uint16(len(entries)))
	if endOfSearch {
		le.PutUint16(rp[2:], 1)
	}
	le.PutUint16(rp[4:], 0) // EaErrorOffset
	le.PutUint16(rp[6:], 0) // LastNameOffset

	return rp, packEntryList(entries, infoLevel), nil
}

// cmdFindClose2 releases a search slot directly (outside the Trans2
// sub-function table: FindClose2 is its own top-level SMB1 command, not a
// Trans2 sub-function, per MS-CIFS 2.2.4.34).
func (d *dispatcher) cmdFindClose2(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.vc == nil || blk.wordCount < 1 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "findclose2: no circuit")
	}
	sid := le.Uint16(rc.req.buf[blk.paramsOff:])
	rc.vc.ReleaseSearch(sid)
	return nil, nil, false, nil
}

// packSearchEntries drains up to max entries from ctx, returning whatever
// it collected and whether the search is now exhausted.
func packSearchEntries(ctx SearchContext, infoLevel InfoLevel, max int) ([]FileInfoRecord, bool) {
	var out []FileInfoRecord
	for len(out) < max {
		var rec FileInfoRecord
		if !ctx.NextFileInfo(&rec) {
			return out, true
		}
		out = append(out, rec)
	}
	return out, !ctx.HasMoreFiles()
}

// packEntryList formats a run of entries at the requested info level,
// chaining NextEntryOffset fields tail-to-tail (spec.md §4.6 "Transact2
// FindFirst" edge case: 5 entries packed for '.', '..', three files").
func packEntryList(entries []FileInfoRecord, level InfoLevel) []byte {
	w := NewByteWriter(64*(len(entries)+1), 0, false)
	offsets := make([]int, 0, len(entries))
	for i, e := range entries {
		start := w.Len()
		offsets = append(offsets, start)
		if i > 0 {
			w.SetUint32At(offsets[i-1], uint32(start-offsets[i-1]))
		}
		w.WriteBytes(formatFindEntry(e, level, uint32(i)))
	}
	return w.Bytes()
}

// formatFindEntry packs one FileInfoRecord at the given SMB_FIND_FILE_*
// level; NextEntryOffset is left zero (the caller backpatches it).
func formatFindEntry(rec FileInfoRecord, level InfoLevel, index uint32) []byte {
	name := EncodeStringToUTF16LE(rec.Name)
	createTime := TimeToFiletime(rec.CreateTime)
	accessTime := TimeToFiletime(rec.AccessTime)
	writeTime := TimeToFiletime(rec.ModTime)
	size := uint64(rec.Size)
	allocSize := (size + 4095) &^ 4095
	if rec.IsDir {
		size, allocSize = 0, 0
	}

	switch level {
	case FindFileDirectoryInfo:
		w := NewByteWriter(64+len(name), 0, false)
		w.WriteUint32(0) // NextEntryOffset
		w.WriteUint32(index)
		w.WriteUint64(createTime)
		w.WriteUint64(accessTime)
		w.WriteUint64(writeTime)
		w.WriteUint64(writeTime) // ChangeTime
		w.WriteUint64(size)
		w.WriteUint64(allocSize)
		w.WriteUint32(rec.Attributes)
		w.WriteUint32(uint32(len(name)))
		w.WriteBytes(name)
		return w.Bytes()

	case FindFileFullDirectoryInfo:
		w := NewByteWriter(68+len(name), 0, false)
		w.WriteUint32(0)
		w.WriteUint32(index)
		w.WriteUint64(createTime)
		w.WriteUint64(accessTime)
		w.WriteUint64(writeTime)
		w.WriteUint64(writeTime)
		w.WriteUint64(size)
		w.WriteUint64(allocSize)
		w.WriteUint32(rec.Attributes)
		w.WriteUint32(uint32(len(name)))
		w.WriteUint32(0) // EaSize
		w.WriteBytes(name)
		return w.Bytes()

	case FindFileBothDirectoryInfo:
		w := NewByteWriter(94+len(name), 0, false)
		w.WriteUint32(0)
		w.WriteUint32(index)
		w.WriteUint64(createTime)
		w.WriteUint64(accessTime)
		w.WriteUint64(writeTime)
		w.WriteUint64(writeTime)
		w.WriteUint64(size)
		w.WriteUint64(allocSize)
		w.WriteUint32(rec.Attributes)
		w.WriteUint32(uint32(len(name)))
		w.WriteUint32(0) // EaSize
		w.WriteByte(0)   // ShortNameLength
		w.WriteByte(0)   // Reserved
		w.WriteZeros(24) // ShortName
		w.WriteBytes(name)
		return w.Bytes()

	case FindFileNamesInfo:
		w := NewByteWriter(12+len(name), 0, false)
		w.WriteUint32(0)
		w.WriteUint32(index)
		w.WriteUint32(uint32(len(name)))
		w.WriteBytes(name)
		return w.Bytes()

	default: // InfoStandard and anything else fall back to the legacy fixed layout
		ascii := []byte(rec.Name)
		cDate, cTime := toDosDateTime(rec.CreateTime)
		aDate, aTime := toDosDateTime(rec.AccessTime)
		wDate, wTime := toDosDateTime(rec.ModTime)
		w := NewByteWriter(23+len(ascii)+1, 0, false)
		w.WriteUint32(0) // ResumeKey reserved for legacy level
		w.WriteUint16(cTime)
		w.WriteUint16(cDate)
		w.WriteUint16(aTime)
		w.WriteUint16(aDate)
		w.WriteUint16(wTime)
		w.WriteUint16(wDate)
		w.WriteUint32(uint32(size))
		w.WriteUint32(uint32(allocSize))
		w.WriteUint16(uint16(rec.Attributes))
		w.WriteByte(byte(len(ascii)))
		w.WriteBytes(ascii)
		w.WriteByte(0)
		return w.Bytes()
	}
}
