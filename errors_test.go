package smb1d

import (
	"errors"
	"io/fs"
	"testing"
)

func TestSmbError_StatusAndDosCode(t *testing.T) {
	tests := []struct {
		name      string
		status    NTStatus
		wantClass DosClass
		wantCode  uint16
	}{
		{"success", StatusSuccess, DosClassSuccess, 0},
		{"no such file", StatusNoSuchFile, DosClassDos, 2},
		{"path not found", StatusObjectPathNotFound, DosClassDos, 3},
		{"access denied", StatusAccessDenied, DosClassDos, 5},
		{"sharing violation", StatusSharingViolation, DosClassDos, 32},
		{"internal error falls back", StatusInternalError, DosClassServer, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewSmbError(tt.status, "")
			class, code := e.DosCode()
			if class != tt.wantClass || code != tt.wantCode {
				t.Errorf("DosCode() = (%v,%v), want (%v,%v)", class, code, tt.wantClass, tt.wantCode)
			}
		})
	}
}

func TestWrapSmbError_Unwrap(t *testing.T) {
	cause := fs.ErrNotExist
	e := WrapSmbError(StatusNoSuchFile, cause)

	if !errors.Is(e, fs.ErrNotExist) {
		t.Error("expected Unwrap to expose the original cause")
	}
	if e.Status != StatusNoSuchFile {
		t.Errorf("Status = %v, want StatusNoSuchFile", e.Status)
	}
}

func TestAsSmbError_PassesThroughExisting(t *testing.T) {
	original := NewSmbError(StatusAccessDenied, "denied")
	wrapped := AsSmbError(original)
	if wrapped != original {
		t.Error("AsSmbError should return the same *SmbError unchanged")
	}
}

func TestAsSmbError_UnknownBecomesInternalError(t *testing.T) {
	e := AsSmbError(errors.New("boom"))
	if e.Status != StatusInternalError {
		t.Errorf("Status = %v, want StatusInternalError for unmapped errors", e.Status)
	}
}

func TestAsSmbError_Nil(t *testing.T) {
	if AsSmbError(nil) != nil {
		t.Error("AsSmbError(nil) should return nil")
	}
}
