package smb1d

import (
	"io/fs"
	"testing"
	"time"
)

type fakeFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return f.size }
func (f fakeFileInfo) Mode() fs.FileMode  { return f.mode }
func (f fakeFileInfo) ModTime() time.Time { return f.modTime }
func (f fakeFileInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeFileInfo) Sys() interface{}   { return nil }

func TestPackQueryInfo_basic(t *testing.T) {
	info := fakeFileInfo{name: "x.txt", size: 4096, modTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	body, serr := packQueryInfo(QueryFileBasicInfo, info, 0)
	if serr != nil {
		t.Fatalf("unexpected error: %v", serr)
	}
	if len(body) != 40 {
		t.Fatalf("FileBasicInformation length = %d, want 40", len(body))
	}
	attrs := le.Uint32(body[32:])
	if attrs == 0 {
		t.Error("expected non-zero FileAttributes")
	}
}

func TestPackQueryInfo_standardReportsDirectoryFlag(t *testing.T) {
	info := fakeFileInfo{name: "dir", mode: fs.ModeDir}
	body, serr := packQueryInfo(QueryFileStandardInfo, info, 0)
	if serr != nil {
		t.Fatalf("unexpected error: %v", serr)
	}
	if body[21] != 1 {
		t.Errorf("Directory flag = %d, want 1", body[21])
	}
}

func TestPackQueryInfo_unsupportedLevel(t *testing.T) {
	_, serr := packQueryInfo(InfoLevel(0xFFFF), fakeFileInfo{}, 0)
	if serr == nil {
		t.Fatal("expected an error for an unsupported information level")
	}
	if serr.Status != StatusNotSupported {
		t.Errorf("status = %v, want StatusNotSupported", serr.Status)
	}
}
