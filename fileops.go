package smb1d

// NT create-disposition values (MS-FSCC 2.4, NTCreateAndX Disposition
// parameter).
const (
	FileSupersede   uint32 = 0
	FileOpen        uint32 = 1
	FileCreate      uint32 = 2
	FileOpenIf      uint32 = 3
	FileOverwrite   uint32 = 4
	FileOverwriteIf uint32 = 5
)

// cmdNTCreateAndX implements NTCreateAndX (spec.md §4.6 "Create/Open"):
// decode the fixed 48-byte parameter block, resolve create-disposition
// against FileExists, enforce share-mode compatibility against every other
// open on the path, and mint a new OpenFile (FID). Grounded on the
// teacher's Open/Create handling in smb2_file.go, generalized to SMB1's NT
// disposition/option vocabulary.
func (d *dispatcher) cmdNTCreateAndX(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "create without tree")
	}
	if blk.wordCount < 24 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "nt create word count too small")
	}

	buf := rc.req.buf
	p := blk.paramsOff

	nameLen := le.Uint16(buf[p+5:])
	desiredAccess := le.Uint32(buf[p+15:])
	extAttrs := le.Uint32(buf[p+27:])
	shareAccess := le.Uint32(buf[p+31:])
	disposition := le.Uint32(buf[p+35:])
	createOptions := le.Uint32(buf[p+39:])

	desiredAccess = mapGenericAccess(desiredAccess)

	r := NewByteReader(buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, rc.unicode)
	_ = nameLen
	name := r.ReadString()

	rawPath := newPathNormalizer(true).normalize(name)
	if verr := validatePath(rawPath); verr != nil {
		return nil, nil, false, verr
	}

	if !rc.tree.CanWrite() && (desiredAccess&(FileWriteData|FileAppendData|DeleteAccess) != 0) {
		return nil, nil, false, NewSmbError(StatusAccessDenied, "tree is read-only")
	}
	if !rc.tree.CheckShareAccess(rawPath, desiredAccess, shareAccess) {
		return nil, nil, false, NewSmbError(StatusSharingViolation, "conflicting share mode")
	}

	driver := rc.tree.Share.Driver
	exists := driver.FileExists(rc.std, rawPath)
	wantDir := createOptions&0x00000001 != 0 // FILE_DIRECTORY_FILE

	var createAction uint32
	var handle FileHandle
	var err error

	switch disposition {
	case FileCreate:
		if exists {
			return nil, nil, false, NewSmbError(StatusObjectNameCollision, "already exists")
		}
		handle, err = createNew(rc, driver, rawPath, wantDir, desiredAccess, shareAccess, extAttrs)
		createAction = 2
	case FileOpen:
		if !exists {
			return nil, nil, false, NewSmbError(StatusObjectNameNotFound, "not found")
		}
		handle, err = driver.OpenFile(rc.std, rawPath, desiredAccess, shareAccess)
		createAction = 1
	case FileOpenIf:
		if exists {
			handle, err = driver.OpenFile(rc.std, rawPath, desiredAccess, shareAccess)
			createAction = 1
		} else {
			handle, err = createNew(rc, driver, rawPath, wantDir, desiredAccess, shareAccess, extAttrs)
			createAction = 2
		}
	case FileOverwrite, FileOverwriteIf:
		if !exists {
			if disposition == FileOverwrite {
				return nil, nil, false, NewSmbError(StatusObjectNameNotFound, "not found")
			}
			handle, err = createNew(rc, driver, rawPath, wantDir, desiredAccess, shareAccess, extAttrs)
			createAction = 2
		} else {
			handle, err = driver.CreateFile(rc.std, rawPath, desiredAccess, shareAccess, disposition, extAttrs)
			createAction = 3
		}
	case FileSupersede:
		handle, err = driver.CreateFile(rc.std, rawPath, desiredAccess, shareAccess, disposition, extAttrs)
		createAction = 3
	default:
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "unknown create disposition")
	}
	if err != nil {
		return nil, nil, false, AsSmbError(err)
	}
	if createAction != 1 {
		d.dirCache.invalidate(rawPath)
	}

	info, ierr := driver.GetFileInformation(rc.std, rawPath)
	if ierr != nil {
		driver.CloseFile(rc.std, handle)
		return nil, nil, false, AsSmbError(ierr)
	}

	of := &OpenFile{
		Handle:      handle,
		Path:        rawPath,
		IsDir:       info.IsDir(),
		Access:      desiredAccess,
		ShareAccess: shareAccess,
		Disposition: disposition,
		Options:     createOptions,
		PID:         rc.pid,
	}
	fid, ok := rc.tree.AllocateFile(of)
	if !ok {
		driver.CloseFile(rc.std, handle)
		return nil, nil, false, NewSmbError(StatusTooManyOpenedFiles, "too many open files")
	}
	of.FID = fid
	rc.tree.RegisterOpen(of)

	attrs := modeToAttributes(info.Mode())
	if wa := GetWindowsAttributes(info); wa != nil {
		attrs = wa.Attributes()
	}

	extra := make([]byte, 64)
	extra[0] = 0 // OplockLevel: none granted
	le.PutUint16(extra[1:], fid)
	le.PutUint32(extra[3:], createAction)
	le.PutUint64(extra[7:], TimeToFiletime(info.ModTime()))
	le.PutUint64(extra[15:], TimeToFiletime(info.ModTime()))
	le.PutUint64(extra[23:], TimeToFiletime(info.ModTime()))
	le.PutUint64(extra[31:], TimeToFiletime(info.ModTime()))
	le.PutUint32(extra[39:], attrs)
	le.PutUint64(extra[43:], uint64(info.Size()))
	le.PutUint64(extra[51:], uint64(info.Size()))
	le.PutUint16(extra[59:], 0) // FileType: disk file
	le.PutUint16(extra[61:], 0) // IPCState
	if of.IsDir {
		extra[63] = 1
	}

	return extra, nil, true, nil
}

func createNew(rc *requestCtx, driver FilesystemDriver, path string, isDir bool, access, shareAccess, attrs uint32) (FileHandle, error) {
	if isDir {
		if err := driver.CreateDirectory(rc.std, path); err != nil {
			return nil, err
		}
		return driver.OpenFile(rc.std, path, access, shareAccess)
	}
	return driver.CreateFile(rc.std, path, access, shareAccess, FileCreate, attrs)
}

// cmdOpenAndX implements the legacy (pre-NT) OpenAndX (spec.md §4.6, MS-CIFS
// 2.2.4.7): simpler than NTCreateAndX, no create-disposition vocabulary,
// opens-or-fails against an existing path only.
func (d *dispatcher) cmdOpenAndX(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "open without tree")
	}
	if blk.wordCount < 15 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "open andx word count too small")
	}

	buf := rc.req.buf
	p := blk.paramsOff
	accessMode := le.Uint16(buf[p+4:])

	r := NewByteReader(buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, rc.unicode)
	name := r.ReadString()
	rawPath := newPathNormalizer(true).normalize(name)
	if verr := validatePath(rawPath); verr != nil {
		return nil, nil, false, verr
	}

	driver := rc.tree.Share.Driver
	if !driver.FileExists(rc.std, rawPath) {
		return nil, nil, false, NewSmbError(StatusObjectNameNotFound, "not found")
	}

	access := uint32(FileReadData)
	if accessMode&0x3 != 0 {
		access |= FileWriteData
	}
	handle, err := driver.OpenFile(rc.std, rawPath, access, FileShareRead|FileShareWrite)
	if err != nil {
		return nil, nil, false, AsSmbError(err)
	}

	info, ierr := driver.GetFileInformation(rc.std, rawPath)
	if ierr != nil {
		driver.CloseFile(rc.std, handle)
		return nil, nil, false, AsSmbError(ierr)
	}

	of := &OpenFile{Handle: handle, Path: rawPath, IsDir: info.IsDir(), Access: access, PID: rc.pid}
	fid, ok := rc.tree.AllocateFile(of)
	if !ok {
		driver.CloseFile(rc.std, handle)
		return nil, nil, false, NewSmbError(StatusTooManyOpenedFiles, "too many open files")
	}
	of.FID = fid
	rc.tree.RegisterOpen(of)

	extra := make([]byte, 30)
	le.PutUint16(extra[0:], fid)
	le.PutUint16(extra[2:], modeToAttributes(info.Mode())&0xFFFF)
	le.PutUint32(extra[4:], uint32(TimeToFiletime(info.ModTime())/10000000))
	le.PutUint32(extra[8:], uint32(info.Size()))
	le.PutUint16(extra[12:], accessMode)
	le.PutUint16(extra[14:], 0) // FileType
	le.PutUint16(extra[16:], 0) // IPCState / action
	le.PutUint32(extra[18:], 0) // ServerFID
	le.PutUint16(extra[22:], 0)
	return extra, nil, true, nil
}

// cmdClose implements Close (spec.md §4.6 "Close"): releases the FID and
// its underlying driver handle.
func (d *dispatcher) cmdClose(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil || blk.wordCount < 3 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "close: no tree")
	}
	buf := rc.req.buf
	fid := le.Uint16(buf[blk.paramsOff:])

	of, ok := rc.tree.ReleaseFile(fid)
	if !ok {
		return nil, nil, false, NewSmbError(StatusInvalidHandle, "unknown fid")
	}
	driver := rc.tree.Share.Driver
	if err := driver.CloseFile(rc.std, of.Handle); err != nil {
		return nil, nil, false, AsSmbError(err)
	}
	if of.DeleteOnClose {
		if of.IsDir {
			driver.DeleteDirectory(rc.std, of.Path)
		} else {
			driver.DeleteFile(rc.std, of.Path)
		}
		d.dirCache.invalidate(of.Path)
	}
	return nil, nil, false, nil
}

// cmdReadAndX implements ReadAndX (spec.md §4.6 "Read").
func (d *dispatcher) cmdReadAndX(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil || blk.wordCount < 10 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "readandx: no tree")
	}
	buf := rc.req.buf
	p := blk.paramsOff
	fid := le.Uint16(buf[p+4:])
	offset := int64(le.Uint32(buf[p+6:]))
	maxCount := int(le.Uint16(buf[p+10:]))
	if blk.wordCount >= 12 {
		offset |= int64(le.Uint32(buf[p+24:])) << 32
	}

	of, ok := rc.tree.File(fid)
	if !ok {
		return nil, nil, false, NewSmbError(StatusInvalidHandle, "unknown fid")
	}
	if !rc.tree.CanRead() {
		return nil, nil, false, NewSmbError(StatusAccessDenied, "tree not readable")
	}

	if maxCount > int(d.opts.MaxBufferSize) {
		maxCount = int(d.opts.MaxBufferSize)
	}
	data := make([]byte, maxCount)
	n, err := rc.tree.Share.Driver.ReadFile(rc.std, of.Handle, data, offset)
	if err != nil && n == 0 {
		return nil, nil, false, AsSmbError(err)
	}
	data = data[:n]

	extra := make([]byte, 22)
	le.PutUint16(extra[6:], uint16(n))  // DataLength
	le.PutUint16(extra[10:], 0)         // DataOffset, patched by dispatcher's byte-area placement
	return extra, data, true, nil
}

// cmdRead implements the legacy fixed-size Read command.
func (d *dispatcher) cmdRead(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil || blk.wordCount < 5 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "read: no tree")
	}
	buf := rc.req.buf
	p := blk.paramsOff
	fid := le.Uint16(buf[p:])
	count := int(le.Uint16(buf[p+2:]))
	offset := int64(le.Uint32(buf[p+4:]))

	of, ok := rc.tree.File(fid)
	if !ok {
		return nil, nil, false, NewSmbError(StatusInvalidHandle, "unknown fid")
	}
	data := make([]byte, count)
	n, err := rc.tree.Share.Driver.ReadFile(rc.std, of.Handle, data, offset)
	if err != nil && n == 0 {
		return nil, nil, false, AsSmbError(err)
	}
	data = data[:n]

	extra := make([]byte, 2)
	le.PutUint16(extra, uint16(n))

	w := NewByteWriter(len(data)+3, 0, false)
	w.WriteByte(1) // buffer format
	w.WriteUint16(uint16(len(data)))
	w.WriteBytes(data)
	return extra, w.Bytes(), false, nil
}

// cmdWriteAndX implements WriteAndX (spec.md §4.6 "Write").
func (d *dispatcher) cmdWriteAndX(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil || blk.wordCount < 12 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "writeandx: no tree")
	}
	buf := rc.req.buf
	p := blk.paramsOff
	fid := le.Uint16(buf[p+4:])
	offset := int64(le.Uint32(buf[p+6:]))
	dataLength := int(le.Uint16(buf[p+20:]))
	dataOffset := int(le.Uint16(buf[p+22:]))
	if blk.wordCount >= 14 {
		offset |= int64(le.Uint32(buf[p+28:])) << 32
	}

	of, ok := rc.tree.File(fid)
	if !ok {
		return nil, nil, false, NewSmbError(StatusInvalidHandle, "unknown fid")
	}
	if !rc.tree.CanWrite() {
		return nil, nil, false, NewSmbError(StatusAccessDenied, "tree is read-only")
	}

	start := dataOffset
	if start < 0 || start+dataLength > len(buf) {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "write data out of bounds")
	}
	data := buf[start : start+dataLength]

	n, err := rc.tree.Share.Driver.WriteFile(rc.std, of.Handle, data, offset)
	if err != nil {
		return nil, nil, false, AsSmbError(err)
	}

	extra := make([]byte, 12)
	le.PutUint16(extra[2:], uint16(n))
	return extra, nil, true, nil
}

// cmdWrite implements the legacy fixed-size Write command.
func (d *dispatcher) cmdWrite(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil || blk.wordCount < 5 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "write: no tree")
	}
	buf := rc.req.buf
	p := blk.paramsOff
	fid := le.Uint16(buf[p:])
	count := int(le.Uint16(buf[p+2:]))
	offset := int64(le.Uint32(buf[p+4:]))

	of, ok := rc.tree.File(fid)
	if !ok {
		return nil, nil, false, NewSmbError(StatusInvalidHandle, "unknown fid")
	}
	if !rc.tree.CanWrite() {
		return nil, nil, false, NewSmbError(StatusAccessDenied, "tree is read-only")
	}

	r := NewByteReader(buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, false)
	r.ReadByte() // buffer format
	bufLen := r.ReadUint16()
	data := r.ReadBytes(int(bufLen))
	if int(count) < len(data) {
		data = data[:count]
	}

	n, err := rc.tree.Share.Driver.WriteFile(rc.std, of.Handle, data, offset)
	if err != nil {
		return nil, nil, false, AsSmbError(err)
	}
	extra := make([]byte, 2)
	le.PutUint16(extra, uint16(n))
	return extra, nil, false, nil
}

// cmdFlush implements Flush: a no-op acknowledgement for drivers that don't
// buffer writes themselves.
func (d *dispatcher) cmdFlush(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	return nil, nil, false, nil
}

// cmdDelete implements Delete (spec.md §4.6 "Delete").
func (d *dispatcher) cmdDelete(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "delete: no tree")
	}
	if !rc.tree.CanWrite() {
		return nil, nil, false, NewSmbError(StatusAccessDenied, "tree is read-only")
	}
	r := NewByteReader(rc.req.buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, rc.unicode)
	r.ReadByte() // buffer format 0x04
	name := r.ReadString()
	path := newPathNormalizer(true).normalize(name)
	if verr := validatePath(path); verr != nil {
		return nil, nil, false, verr
	}
	if err := rc.tree.Share.Driver.DeleteFile(rc.std, path); err != nil {
		return nil, nil, false, AsSmbError(err)
	}
	d.dirCache.invalidate(path)
	return nil, nil, false, nil
}

// cmdRename implements Rename (spec.md §4.6 "Rename").
func (d *dispatcher) cmdRename(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "rename: no tree")
	}
	if !rc.tree.CanWrite() {
		return nil, nil, false, NewSmbError(StatusAccessDenied, "tree is read-only")
	}
	r := NewByteReader(rc.req.buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, rc.unicode)
	r.ReadByte() // buffer format 0x04
	oldName := r.ReadString()
	r.ReadByte() // buffer format 0x04
	newName := r.ReadString()

	pn := newPathNormalizer(true)
	oldPath := pn.normalize(oldName)
	newPath := pn.normalize(newName)
	if verr := validatePath(oldPath); verr != nil {
		return nil, nil, false, verr
	}
	if verr := validatePath(newPath); verr != nil {
		return nil, nil, false, verr
	}
	if err := rc.tree.Share.Driver.RenameFile(rc.std, oldPath, newPath); err != nil {
		return nil, nil, false, AsSmbError(err)
	}
	d.dirCache.invalidate(oldPath)
	d.dirCache.invalidate(newPath)
	return nil, nil, false, nil
}

// cmdCreateDirectory implements CreateDirectory.
func (d *dispatcher) cmdCreateDirectory(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "mkdir: no tree")
	}
	if !rc.tree.CanWrite() {
		return nil, nil, false, NewSmbError(StatusAccessDenied, "tree is read-only")
	}
	r := NewByteReader(rc.req.buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, rc.unicode)
	r.ReadByte()
	name := r.ReadString()
	path := newPathNormalizer(true).normalize(name)
	if verr := validatePath(path); verr != nil {
		return nil, nil, false, verr
	}
	if err := rc.tree.Share.Driver.CreateDirectory(rc.std, path); err != nil {
		return nil, nil, false, AsSmbError(err)
	}
	d.dirCache.invalidate(path)
	return nil, nil, false, nil
}

// cmdDeleteDirectory implements DeleteDirectory.
func (d *dispatcher) cmdDeleteDirectory(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "rmdir: no tree")
	}
	if !rc.tree.CanWrite() {
		return nil, nil, false, NewSmbError(StatusAccessDenied, "tree is read-only")
	}
	r := NewByteReader(rc.req.buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, rc.unicode)
	r.ReadByte()
	name := r.ReadString()
	path := newPathNormalizer(true).normalize(name)
	if verr := validatePath(path); verr != nil {
		return nil, nil, false, verr
	}
	if err := rc.tree.Share.Driver.DeleteDirectory(rc.std, path); err != nil {
		return nil, nil, false, AsSmbError(err)
	}
	d.dirCache.invalidate(path)
	return nil, nil, false, nil
}

// cmdCheckDirectory implements CheckDirectory: verify path exists and is a
// directory.
func (d *dispatcher) cmdCheckDirectory(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "checkdir: no tree")
	}
	r := NewByteReader(rc.req.buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, rc.unicode)
	r.ReadByte()
	name := r.ReadString()
	path := newPathNormalizer(true).normalize(name)
	info, err := rc.tree.Share.Driver.GetFileInformation(rc.std, path)
	if err != nil {
		return nil, nil, false, AsSmbError(err)
	}
	if !info.IsDir() {
		return nil, nil, false, NewSmbError(StatusNotADirectory, "not a directory")
	}
	return nil, nil, false, nil
}

// cmdQueryInformation implements the legacy (pre-Trans2) QueryInformation.
func (d *dispatcher) cmdQueryInformation(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "query info: no tree")
	}
	r := NewByteReader(rc.req.buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, rc.unicode)
	r.ReadByte()
	name := r.ReadString()
	path := newPathNormalizer(true).normalize(name)
	info, err := rc.tree.Share.Driver.GetFileInformation(rc.std, path)
	if err != nil {
		return nil, nil, false, AsSmbError(err)
	}

	attrs := modeToAttributes(info.Mode())
	if wa := GetWindowsAttributes(info); wa != nil {
		attrs = wa.Attributes()
	}

	extra := make([]byte, 20)
	le.PutUint16(extra[0:], uint16(attrs))
	le.PutUint32(extra[2:], uint32(TimeToFiletime(info.ModTime())/10000000))
	le.PutUint32(extra[6:], uint32(info.Size()))
	return extra, nil, false, nil
}

// cmdSetInformation implements the legacy SetInformation (attribute change
// only; this SMB1 variant carries no timestamp fields).
func (d *dispatcher) cmdSetInformation(rc *requestCtx, blk andxBlock) (params, byteArea []byte, isAndX bool, serr *SmbError) {
	if rc.tree == nil {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "set info: no tree")
	}
	if !rc.tree.CanWrite() {
		return nil, nil, false, NewSmbError(StatusAccessDenied, "tree is read-only")
	}
	if blk.wordCount < 8 {
		return nil, nil, false, NewSmbError(StatusInvalidParameter, "set info word count too small")
	}
	buf := rc.req.buf
	r := NewByteReader(buf[blk.bytesOff:blk.bytesOff+int(blk.byteCount)], blk.bytesOff, rc.unicode)
	r.ReadByte()
	name := r.ReadString()
	path := newPathNormalizer(true).normalize(name)
	if _, err := rc.tree.Share.Driver.GetFileInformation(rc.std, path); err != nil {
		return nil, nil, false, AsSmbError(err)
	}
	// Attribute-only change; FilesystemDriver exposes no SetAttributes hook
	// distinct from rename/create, so this is acknowledged without effect
	// beyond existence validation.
	return nil, nil, false, nil
}
